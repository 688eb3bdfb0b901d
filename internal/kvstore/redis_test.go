package kvstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	store, err := NewRedisStore(RedisOptions{Addr: srv.Addr()})
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, srv
}

func TestRedisStoreGetMissingKey(t *testing.T) {
	store, _ := newTestRedisStore(t)
	if _, err := store.Get(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreSetWithTTLExpires(t *testing.T) {
	store, srv := newTestRedisStore(t)
	ctx := context.Background()
	if err := store.SetWithTTL(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("expected v, got %q (%v)", got, err)
	}
	srv.FastForward(2 * time.Second)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected key to expire, got %v", err)
	}
}

func TestRedisStoreIncrAndDel(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	if n, err := store.Incr(ctx, "sessions:t", 1); err != nil || n != 1 {
		t.Fatalf("expected 1, got %d (%v)", n, err)
	}
	if n, err := store.Incr(ctx, "sessions:t", -1); err != nil || n != 0 {
		t.Fatalf("expected 0, got %d (%v)", n, err)
	}
	if err := store.Del(ctx, "sessions:t"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if err := store.Del(ctx); err != nil {
		t.Fatalf("del with no keys: %v", err)
	}
}

func TestRedisStoreReleaseRemovesCounterAtZero(t *testing.T) {
	store, srv := newTestRedisStore(t)
	ctx := context.Background()
	if _, err := store.Incr(ctx, "sessions", 2); err != nil {
		t.Fatalf("incr: %v", err)
	}

	n, err := store.Release(ctx, "sessions")
	if err != nil || n != 1 {
		t.Fatalf("first release: n=%d err=%v", n, err)
	}
	n, err = store.Release(ctx, "sessions")
	if err != nil || n != 0 {
		t.Fatalf("second release: n=%d err=%v", n, err)
	}
	if srv.Exists("sessions") {
		t.Fatalf("expected counter removed at zero")
	}

	// Releasing an absent counter must not leave a negative value behind.
	n, err = store.Release(ctx, "sessions")
	if err != nil || n != 0 {
		t.Fatalf("extra release: n=%d err=%v", n, err)
	}
	if srv.Exists("sessions") {
		t.Fatalf("expected no counter after extra release")
	}
	if n, err = store.Incr(ctx, "sessions", 1); err != nil || n != 1 {
		t.Fatalf("incr after extra release: n=%d err=%v", n, err)
	}
}

func TestRedisStoreKeysByPrefix(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	for _, key := range []string{"ratelimit:a", "ratelimit:b", "quota:a"} {
		if err := store.SetWithTTL(ctx, key, []byte("1"), time.Minute); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	keys, err := store.KeysByPrefix(ctx, "ratelimit:")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "ratelimit:a" || keys[1] != "ratelimit:b" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestRedisStoreTakeTokenDrainsAndRefills(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	req := BucketRequest{Now: now, MaxTokens: 5, RefillPerMs: 5.0 / 60000, TTL: 2 * time.Minute}

	for i := 0; i < 5; i++ {
		state, err := store.TakeToken(ctx, "ratelimit:t", req)
		if err != nil {
			t.Fatalf("take %d: %v", i+1, err)
		}
		if !state.Allowed {
			t.Fatalf("take %d: expected allowed", i+1)
		}
		if want := float64(4 - i); state.Tokens != want {
			t.Fatalf("take %d: expected %.0f tokens left, got %v", i+1, want, state.Tokens)
		}
	}
	state, err := store.TakeToken(ctx, "ratelimit:t", req)
	if err != nil {
		t.Fatalf("take 6: %v", err)
	}
	if state.Allowed {
		t.Fatalf("take 6: expected denial")
	}

	req.Now = now.Add(13 * time.Second)
	state, err = store.TakeToken(ctx, "ratelimit:t", req)
	if err != nil {
		t.Fatalf("take after refill: %v", err)
	}
	if !state.Allowed {
		t.Fatalf("expected one token after 13s refill")
	}
}

func TestRedisStoreTakeTokenCapsRefill(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	req := BucketRequest{Now: now, MaxTokens: 3, RefillPerMs: 3.0 / 1000, TTL: time.Hour}
	if _, err := store.TakeToken(ctx, "b", req); err != nil {
		t.Fatalf("take: %v", err)
	}
	req.Now = now.Add(10 * time.Minute)
	state, err := store.TakeToken(ctx, "b", req)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if state.Tokens != 2 {
		t.Fatalf("expected refill capped at max then one consumed, got %v", state.Tokens)
	}
}

func TestRedisStoreTakeTokenIgnoresClockRegression(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	req := BucketRequest{Now: now, MaxTokens: 2, RefillPerMs: 2.0 / 1000, TTL: time.Hour}
	for i := 0; i < 2; i++ {
		if _, err := store.TakeToken(ctx, "b", req); err != nil {
			t.Fatalf("take: %v", err)
		}
	}
	req.Now = now.Add(-time.Hour)
	state, err := store.TakeToken(ctx, "b", req)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if state.Allowed {
		t.Fatalf("expected a backwards clock to add no tokens")
	}
}

func TestRedisStoreTakeTokenConcurrentNeverOvergrants(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	req := BucketRequest{Now: time.UnixMilli(1_700_000_000_000), MaxTokens: 10, RefillPerMs: 0, TTL: time.Hour}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := store.TakeToken(ctx, "concurrent", req)
			if err != nil {
				t.Errorf("take: %v", err)
				return
			}
			if state.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 10 {
		t.Fatalf("expected exactly 10 grants, got %d", allowed)
	}
}

func TestRedisStoreTakeTokenSetsExpiry(t *testing.T) {
	store, srv := newTestRedisStore(t)
	req := BucketRequest{Now: time.UnixMilli(1_700_000_000_000), MaxTokens: 1, RefillPerMs: 0.001, TTL: 2 * time.Minute}
	if _, err := store.TakeToken(context.Background(), "ttl", req); err != nil {
		t.Fatalf("take: %v", err)
	}
	if ttl := srv.TTL("ttl"); ttl != 2*time.Minute {
		t.Fatalf("expected 2m ttl, got %s", ttl)
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob("a*b?[c]"); got != `a\*b\?\[c\]` {
		t.Fatalf("unexpected escape %q", got)
	}
}
