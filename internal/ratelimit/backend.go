package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/storechat/admission/internal/kvstore"
)

// Backend stores token buckets.
type Backend interface {
	Take(ctx context.Context, key string, req kvstore.BucketRequest) (kvstore.BucketState, error)
	Clear(ctx context.Context, key string) error
}

// StoreBackend keeps buckets in the shared key-value store.
type StoreBackend struct {
	store kvstore.Store
}

// NewStoreBackend wraps store.
func NewStoreBackend(store kvstore.Store) *StoreBackend {
	return &StoreBackend{store: store}
}

// Take implements Backend.
func (b *StoreBackend) Take(ctx context.Context, key string, req kvstore.BucketRequest) (kvstore.BucketState, error) {
	return b.store.TakeToken(ctx, key, req)
}

// Clear implements Backend.
func (b *StoreBackend) Clear(ctx context.Context, key string) error {
	return b.store.Del(ctx, key)
}

const localSweepInterval = time.Minute

type localBucket struct {
	tokens     float64
	lastRefill int64 // unix ms
	expiresAt  int64 // unix ms
}

// LocalBackend keeps buckets in process memory. Limits are per process.
type LocalBackend struct {
	mu        sync.Mutex
	buckets   map[string]*localBucket
	lastSweep int64
}

// NewLocalBackend creates an empty LocalBackend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{buckets: make(map[string]*localBucket)}
}

// Take implements Backend with the same arithmetic as the store script.
func (b *LocalBackend) Take(_ context.Context, key string, req kvstore.BucketRequest) (kvstore.BucketState, error) {
	now := req.Now.UnixMilli()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.sweepLocked(now)
	bucket, ok := b.buckets[key]
	if !ok || now >= bucket.expiresAt {
		bucket = &localBucket{tokens: req.MaxTokens, lastRefill: now}
		b.buckets[key] = bucket
	}

	elapsed := max(now-bucket.lastRefill, 0)
	bucket.tokens = math.Min(req.MaxTokens, bucket.tokens+float64(elapsed)*req.RefillPerMs)
	bucket.tokens = math.Max(bucket.tokens, 0)

	allowed := false
	if bucket.tokens >= 1 {
		bucket.tokens--
		allowed = true
	}
	bucket.lastRefill = max(bucket.lastRefill, now)
	bucket.expiresAt = now + req.TTL.Milliseconds()

	return kvstore.BucketState{Allowed: allowed, Tokens: bucket.tokens}, nil
}

// Clear implements Backend.
func (b *LocalBackend) Clear(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.buckets, key)
	b.mu.Unlock()
	return nil
}

// Len returns the number of live buckets.
func (b *LocalBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buckets)
}

func (b *LocalBackend) sweepLocked(now int64) {
	if now-b.lastSweep < localSweepInterval.Milliseconds() {
		return
	}
	b.lastSweep = now
	for key, bucket := range b.buckets {
		if now >= bucket.expiresAt {
			delete(b.buckets, key)
		}
	}
}
