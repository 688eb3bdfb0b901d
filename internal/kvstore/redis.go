package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const scanBatchSize = 256

// takeTokenScript loads, refills, consumes and stores a bucket atomically.
// Tokens are returned as a string because Redis truncates Lua numbers to integers.
var takeTokenScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local max_tokens = tonumber(ARGV[2])
local refill_rate = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil or last_refill == nil then
  tokens = max_tokens
  last_refill = now
end

local elapsed = now - last_refill
if elapsed < 0 then
  elapsed = 0
end
tokens = math.min(max_tokens, tokens + elapsed * refill_rate)
if tokens < 0 then
  tokens = 0
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
if now > last_refill then
  last_refill = now
end

redis.call('HSET', key,
  'tokens', tostring(tokens),
  'max_tokens', tostring(max_tokens),
  'refill_rate', tostring(refill_rate),
  'last_refill', tostring(last_refill))
redis.call('PEXPIRE', key, ttl_ms)
return {allowed, tostring(tokens)}
`)

// releaseScript decrements a counter and deletes it at zero so no INCR can land in between.
var releaseScript = redis.NewScript(`
local n = redis.call('DECR', KEYS[1])
if n <= 0 then
  redis.call('DEL', KEYS[1])
  return 0
end
return n
`)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MaxRetries   int // -1 disables retries.
}

// RedisStore implements Store on a Redis server.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store. Connections are established lazily,
// so an unreachable server surfaces as errors from individual calls.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, errors.New("kvstore: empty redis addr")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
		MaxRetries:   opts.MaxRetries,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctx).Err(); errPing != nil {
		log.WithError(errPing).Warnf("kvstore: redis %s not reachable at startup", addr)
	}
	return &RedisStore{client: client}, nil
}

// Get returns the value stored at key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: get %s: %w", key, err)
	}
	return data, nil
}

// SetWithTTL stores value at key with an expiry.
func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kvstore: set %s: %w", key, err)
	}
	return nil
}

// Incr adds delta to the integer at key and returns the new value.
func (s *RedisStore) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := s.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("kvstore: incr %s: %w", key, err)
	}
	return n, nil
}

// Release runs the release script against key.
func (s *RedisStore) Release(ctx context.Context, key string) (int64, error) {
	n, err := releaseScript.Run(ctx, s.client, []string{key}).Int64()
	if err != nil {
		return 0, fmt.Errorf("kvstore: release %s: %w", key, err)
	}
	return n, nil
}

// Expire sets the expiry of key.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.PExpire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("kvstore: expire %s: %w", key, err)
	}
	return nil
}

// Del removes keys. Missing keys are ignored.
func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("kvstore: del: %w", err)
	}
	return nil
}

// KeysByPrefix lists keys starting with prefix using SCAN.
func (s *RedisStore) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	match := escapeGlob(prefix) + "*"
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("kvstore: scan %s: %w", prefix, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// TakeToken runs the token-bucket script against key.
func (s *RedisStore) TakeToken(ctx context.Context, key string, req BucketRequest) (BucketState, error) {
	ttlMs := req.TTL.Milliseconds()
	if ttlMs <= 0 {
		ttlMs = 1
	}
	raw, err := takeTokenScript.Run(ctx, s.client, []string{key},
		req.Now.UnixMilli(), req.MaxTokens, req.RefillPerMs, ttlMs,
	).Slice()
	if err != nil {
		return BucketState{}, fmt.Errorf("kvstore: take token %s: %w", key, err)
	}
	return parseBucketReply(raw)
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func parseBucketReply(raw []any) (BucketState, error) {
	if len(raw) != 2 {
		return BucketState{}, fmt.Errorf("kvstore: unexpected bucket reply length %d", len(raw))
	}
	allowed, ok := raw[0].(int64)
	if !ok {
		return BucketState{}, fmt.Errorf("kvstore: unexpected bucket allowed type %T", raw[0])
	}
	tokensText, ok := raw[1].(string)
	if !ok {
		return BucketState{}, fmt.Errorf("kvstore: unexpected bucket tokens type %T", raw[1])
	}
	tokens, err := strconv.ParseFloat(tokensText, 64)
	if err != nil {
		return BucketState{}, fmt.Errorf("kvstore: parse bucket tokens: %w", err)
	}
	return BucketState{Allowed: allowed == 1, Tokens: tokens}, nil
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}
