package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/storechat/admission/internal/admission"
	"github.com/storechat/admission/internal/audit"
	"github.com/storechat/admission/internal/kvstore"
	"github.com/storechat/admission/internal/metrics"
)

// DefaultStoreTimeout bounds each call to the primary backend.
const DefaultStoreTimeout = 50 * time.Millisecond

// Options configures a Limiter.
type Options struct {
	StoreTimeout time.Duration
	Now          func() time.Time
}

// Limiter applies token-bucket limits. The primary backend is authoritative;
// when it fails or times out the fallback answers for that request.
type Limiter struct {
	primary      Backend
	fallback     Backend
	sink         audit.Sink
	storeTimeout time.Duration
	now          func() time.Time
}

// New creates a Limiter. primary may be nil to run on the fallback only.
func New(primary, fallback Backend, sink audit.Sink, opts Options) *Limiter {
	if sink == nil {
		sink = audit.Discard{}
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Limiter{
		primary:      primary,
		fallback:     fallback,
		sink:         sink,
		storeTimeout: opts.StoreTimeout,
		now:          opts.Now,
	}
}

// CheckAndConsume takes one token for identifier. An error is returned only for an
// invalid config or when no backend could answer.
func (l *Limiter) CheckAndConsume(ctx context.Context, identifier string, cfg Config) (Result, error) {
	if cfg.MaxRequests <= 0 {
		return Result{}, &admission.ValidationError{Reason: admission.ReasonInvalidAmount, Field: "max_requests"}
	}
	if cfg.Window <= 0 {
		return Result{}, &admission.ValidationError{Reason: admission.ReasonInvalidAmount, Field: "window"}
	}
	if identifier == "" {
		identifier = UnknownIdentifier
	}

	now := l.now()
	windowMs := float64(cfg.Window.Milliseconds())
	if windowMs < 1 {
		windowMs = 1
	}
	maxTokens := float64(cfg.MaxRequests)
	req := kvstore.BucketRequest{
		Now:         now,
		MaxTokens:   maxTokens,
		RefillPerMs: maxTokens / windowMs,
		TTL:         2 * cfg.Window,
	}

	state, err := l.take(ctx, BucketKey(identifier), req)
	if err != nil {
		metrics.Observe("ratelimit", false, string(admission.ReasonStoreUnavailable))
		return Result{}, err
	}

	result := Result{
		Allowed:   state.Allowed,
		Remaining: int(math.Floor(state.Tokens)),
		ResetAt:   now.Add(msDuration((maxTokens-state.Tokens)*windowMs/maxTokens)),
	}
	if state.Allowed {
		metrics.Observe("ratelimit", true, "")
		return result, nil
	}

	result.RetryAfter = msDuration((1-state.Tokens)*windowMs/maxTokens)
	metrics.Observe("ratelimit", false, string(admission.ReasonRateLimited))
	l.sink.LogEvent(audit.Entry{
		TenantID: tenantFromIdentifier(identifier),
		Type:     audit.EventRateLimitExceeded,
		Severity: audit.SeverityWarning,
		Data: map[string]any{
			"identifier_type": string(cfg.IdentifierType),
			"max_requests":    cfg.MaxRequests,
			"window_ms":       cfg.Window.Milliseconds(),
			"retry_after_ms":  result.RetryAfter.Milliseconds(),
		},
		Sensitive: map[string]string{"identifier": identifier},
	})
	return result, nil
}

func (l *Limiter) take(ctx context.Context, key string, req kvstore.BucketRequest) (kvstore.BucketState, error) {
	if l.primary != nil {
		primaryCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
		started := time.Now()
		state, err := l.primary.Take(primaryCtx, key, req)
		cancel()
		metrics.StoreLatency.WithLabelValues("ratelimit_take").Observe(time.Since(started).Seconds())
		if err == nil {
			return state, nil
		}
		if l.fallback == nil {
			log.WithError(err).Error("ratelimit: shared store unavailable and no fallback configured")
			return kvstore.BucketState{}, &admission.StoreUnavailable{Store: "ratelimit", Err: err}
		}
		metrics.RateLimitFallbacks.Inc()
		log.WithError(err).Warn("ratelimit: shared store unavailable, limiting with local bucket")
	}
	if l.fallback == nil {
		return kvstore.BucketState{}, &admission.StoreUnavailable{Store: "ratelimit", Err: errors.New("no backend configured")}
	}
	return l.fallback.Take(ctx, key, req)
}

// Clear removes the bucket of identifier from every backend.
func (l *Limiter) Clear(ctx context.Context, identifier string) error {
	key := BucketKey(identifier)
	var errPrimary error
	if l.primary != nil {
		errPrimary = l.primary.Clear(ctx, key)
	}
	if l.fallback != nil {
		if err := l.fallback.Clear(ctx, key); err != nil && errPrimary == nil {
			errPrimary = err
		}
	}
	return errPrimary
}

// Denial converts a denied result into the error reported to callers.
func (r Result) Denial(cfg Config) error {
	if r.Allowed {
		return nil
	}
	return &admission.RateLimitExceeded{RetryAfter: r.RetryAfter, Limit: cfg.MaxRequests, ResetAt: r.ResetAt}
}

func msDuration(ms float64) time.Duration {
	if ms <= 0 || math.IsNaN(ms) {
		return 0
	}
	return time.Duration(math.Ceil(ms)) * time.Millisecond
}
