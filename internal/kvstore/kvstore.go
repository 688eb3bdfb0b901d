// Package kvstore is the shared key-value contract used for rate-limit buckets,
// quota caches and session gauges.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kvstore: not found")

// BucketRequest describes one token-bucket take.
type BucketRequest struct {
	Now         time.Time     // Caller clock; the store never reads its own.
	MaxTokens   float64       // Bucket capacity.
	RefillPerMs float64       // Tokens added per elapsed millisecond.
	TTL         time.Duration // Idle expiry of the bucket.
}

// BucketState is the result of a take.
type BucketState struct {
	Allowed bool
	Tokens  float64 // Tokens left after the take.
}

// Store is the key-value contract. Every method is safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Incr(ctx context.Context, key string, delta int64) (int64, error)
	// Release decrements the counter at key and removes it once it drops to zero,
	// in one atomic step. It returns the remaining count, never below zero.
	Release(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	KeysByPrefix(ctx context.Context, prefix string) ([]string, error)
	// TakeToken refills and consumes from the bucket at key in one atomic step.
	TakeToken(ctx context.Context, key string, req BucketRequest) (BucketState, error)
	Ping(ctx context.Context) error
	Close() error
}
