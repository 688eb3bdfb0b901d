package quota

import (
	"context"
	"errors"
	"strconv"

	"github.com/storechat/admission/internal/admission"
	"github.com/storechat/admission/internal/audit"
	"github.com/storechat/admission/internal/kvstore"
	"github.com/storechat/admission/internal/metrics"
	"github.com/storechat/admission/internal/models"
	"github.com/storechat/admission/internal/security"
)

var errNoSessionStore = errors.New("session gauge requires a key-value store")

func sessionKey(tenantID string) string {
	return sessionPrefix + tenantID
}

func (m *Manager) activeSessions(ctx context.Context, tenantID string) (int64, error) {
	if m.kv == nil {
		return 0, errNoSessionStore
	}
	raw, err := m.kv.Get(ctx, sessionKey(tenantID))
	if errors.Is(err, kvstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, errParse := strconv.ParseInt(string(raw), 10, 64)
	if errParse != nil {
		return 0, errParse
	}
	return max(n, 0), nil
}

// SessionsEnabled reports whether a key-value store backs the session gauge.
func (m *Manager) SessionsEnabled() bool {
	return m.kv != nil
}

// ActiveSessions returns the live session count of tenantID.
func (m *Manager) ActiveSessions(ctx context.Context, tenantID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	n, err := m.activeSessions(ctx, tenantID)
	if err != nil {
		return 0, m.storeFailure(tenantID, "sessions", err)
	}
	return n, nil
}

// AcquireSession reserves one concurrent session. The reservation is rolled back when it
// would exceed the limit, so concurrent callers can never overshoot.
func (m *Manager) AcquireSession(ctx context.Context, tenantID string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	limit, err := m.limitFor(ctx, tenantID, models.ResourceConcurrentSessions)
	if err != nil {
		return Result{}, err
	}
	if m.kv == nil {
		return Result{}, m.storeFailure(tenantID, "sessions", errNoSessionStore)
	}

	key := sessionKey(tenantID)
	n, err := m.kv.Incr(ctx, key, 1)
	if err != nil {
		return Result{}, m.storeFailure(tenantID, "sessions", err)
	}
	if limit >= 0 && n > limit {
		if _, errUndo := m.kv.Release(ctx, key); errUndo != nil {
			return Result{}, m.storeFailure(tenantID, "sessions", errUndo)
		}
		metrics.Observe("quota", false, string(admission.ReasonQuotaExceeded))
		m.sink.LogEvent(audit.Entry{
			TenantID: tenantID,
			Type:     audit.EventQuotaExceeded,
			Severity: audit.SeverityWarning,
			Data: map[string]any{
				"resource": string(models.ResourceConcurrentSessions),
				"limit":    limit,
				"used":     n - 1,
			},
		})
		return Result{Allowed: false, Remaining: 0, Limit: limit, Used: n - 1}, nil
	}
	if errExpire := m.kv.Expire(ctx, key, m.sessionTTL); errExpire != nil {
		return Result{}, m.storeFailure(tenantID, "sessions", errExpire)
	}

	metrics.Observe("quota", true, "")
	if limit < 0 {
		return Result{Allowed: true, Remaining: models.Unlimited, Limit: models.Unlimited, Used: n}, nil
	}
	return Result{Allowed: true, Remaining: limit - n, Limit: limit, Used: n}, nil
}

// ReleaseSession returns a session reserved by AcquireSession.
func (m *Manager) ReleaseSession(ctx context.Context, tenantID string) error {
	if !security.IsValidTenantID(tenantID) {
		return &admission.ValidationError{Reason: admission.ReasonInvalidTenantID, Field: "tenant_id"}
	}
	if m.kv == nil {
		return m.storeFailure(tenantID, "sessions", errNoSessionStore)
	}
	ctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	if _, err := m.kv.Release(ctx, sessionKey(tenantID)); err != nil {
		return m.storeFailure(tenantID, "sessions", err)
	}
	return nil
}
