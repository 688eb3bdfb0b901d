// Package quota accounts per-tenant resource usage in daily UTC periods and
// enforces the limits of each tenant's plan.
package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/storechat/admission/internal/admission"
	"github.com/storechat/admission/internal/audit"
	"github.com/storechat/admission/internal/kvstore"
	"github.com/storechat/admission/internal/metrics"
	"github.com/storechat/admission/internal/models"
	"github.com/storechat/admission/internal/security"
	"github.com/storechat/admission/internal/settings"
	"github.com/storechat/admission/internal/tenant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultStoreTimeout bounds the store calls of one quota operation.
	DefaultStoreTimeout = 2 * time.Second
	// DefaultCacheTTL is how long a usage snapshot stays cached.
	DefaultCacheTTL = time.Minute
	// DefaultSessionTTL expires the session gauge of tenants that stop releasing.
	DefaultSessionTTL = 30 * time.Minute

	usageCachePrefix = "quota:"
	sessionPrefix    = "sessions:"
	cacheTimeout     = 100 * time.Millisecond
)

// Result is the outcome of CheckQuota. Remaining and Limit are -1 for unlimited resources.
type Result struct {
	Allowed   bool
	Remaining int64
	Limit     int64
	Used      int64
}

// Denial converts a denied result into the error reported to callers.
func (r Result) Denial(resource models.ResourceKind) error {
	if r.Allowed {
		return nil
	}
	return &admission.QuotaExceeded{Resource: string(resource), Limit: r.Limit, Remaining: 0}
}

// Options configures a Manager.
type Options struct {
	Cache        kvstore.Store
	Sink         audit.Sink
	Settings     *settings.Store // Optional runtime overrides.
	Now          func() time.Time
	StoreTimeout time.Duration
	CacheTTL     time.Duration
	SessionTTL   time.Duration
}

// Manager enforces and records tenant quotas. The database row is the source of truth;
// the cache only mirrors committed rows.
type Manager struct {
	db      *gorm.DB
	tenants *tenant.Store
	kv      kvstore.Store
	sink    audit.Sink
	config  *settings.Store
	now     func() time.Time

	storeTimeout time.Duration
	cacheTTL     time.Duration
	sessionTTL   time.Duration
}

// NewManager creates a Manager.
func NewManager(db *gorm.DB, tenants *tenant.Store, opts Options) *Manager {
	if opts.Sink == nil {
		opts.Sink = audit.Discard{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	return &Manager{
		db:           db,
		tenants:      tenants,
		kv:           opts.Cache,
		sink:         opts.Sink,
		config:       opts.Settings,
		now:          opts.Now,
		storeTimeout: opts.StoreTimeout,
		cacheTTL:     opts.CacheTTL,
		sessionTTL:   opts.SessionTTL,
	}
}

// CheckQuota reports whether tenantID may consume one more unit of resource.
// It always reads the persisted counter; any store failure denies.
func (m *Manager) CheckQuota(ctx context.Context, tenantID string, resource models.ResourceKind) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	limit, err := m.limitFor(ctx, tenantID, resource)
	if err != nil {
		return Result{}, err
	}
	if limit < 0 {
		metrics.Observe("quota", true, "")
		return Result{Allowed: true, Remaining: models.Unlimited, Limit: models.Unlimited}, nil
	}

	var used int64
	if resource == models.ResourceConcurrentSessions {
		used, err = m.activeSessions(ctx, tenantID)
	} else {
		var period models.UsagePeriod
		period, err = m.loadPeriod(ctx, m.db, tenantID, m.now())
		if err == nil {
			used, _ = period.Used(resource)
		}
	}
	if err != nil {
		return Result{}, m.storeFailure(tenantID, "check", err)
	}

	if used < limit {
		metrics.Observe("quota", true, "")
		return Result{Allowed: true, Remaining: max(limit-used-1, 0), Limit: limit, Used: used}, nil
	}

	metrics.Observe("quota", false, string(admission.ReasonQuotaExceeded))
	m.sink.LogEvent(audit.Entry{
		TenantID: tenantID,
		Type:     audit.EventQuotaExceeded,
		Severity: audit.SeverityWarning,
		Data: map[string]any{
			"resource": string(resource),
			"limit":    limit,
			"used":     used,
		},
	})
	return Result{Allowed: false, Remaining: 0, Limit: limit, Used: used}, nil
}

func (m *Manager) limitFor(ctx context.Context, tenantID string, resource models.ResourceKind) (int64, error) {
	row, err := m.tenants.Get(ctx, tenantID)
	if errors.Is(err, tenant.ErrNotFound) {
		return 0, &admission.NotFoundError{Reason: admission.ReasonTenantNotFound, Kind: "tenant"}
	}
	if err != nil {
		return 0, m.storeFailure(tenantID, "limits", err)
	}
	limit, ok := row.Limits().LimitFor(resource)
	if !ok {
		return 0, &admission.ValidationError{Reason: admission.ReasonInvalidResource, Field: "resource"}
	}
	return limit, nil
}

// IncrementUsage adds amount to the current period counter of resource.
func (m *Manager) IncrementUsage(ctx context.Context, tenantID string, resource models.ResourceKind, amount int64) error {
	_, err := m.increment(ctx, "", tenantID, resource, amount)
	return err
}

// IncrementUsageOnce is IncrementUsage keyed by requestKey: a repeated key is not counted again.
// applied is false when the key had already been recorded.
func (m *Manager) IncrementUsageOnce(ctx context.Context, requestKey, tenantID string, resource models.ResourceKind, amount int64) (bool, error) {
	requestKey = strings.TrimSpace(requestKey)
	if requestKey == "" || len(requestKey) > 128 {
		return false, &admission.ValidationError{Reason: admission.ReasonInvalidAmount, Field: "request_key"}
	}
	return m.increment(ctx, requestKey, tenantID, resource, amount)
}

func (m *Manager) increment(ctx context.Context, requestKey, tenantID string, resource models.ResourceKind, amount int64) (bool, error) {
	if !security.IsValidTenantID(tenantID) {
		return false, &admission.ValidationError{Reason: admission.ReasonInvalidTenantID, Field: "tenant_id"}
	}
	if amount <= 0 {
		return false, &admission.ValidationError{Reason: admission.ReasonInvalidAmount, Field: "amount"}
	}
	column, err := usageColumn(resource)
	if err != nil {
		return false, &admission.ValidationError{Reason: admission.ReasonInvalidResource, Field: "resource"}
	}

	ctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	now := m.now()
	applied := true
	var committed models.UsagePeriod
	errTx := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tenants int64
		if errCount := tx.Model(&models.Tenant{}).Where("tenant_id = ?", tenantID).Count(&tenants).Error; errCount != nil {
			return errCount
		}
		if tenants == 0 {
			return &admission.NotFoundError{Reason: admission.ReasonTenantNotFound, Kind: "tenant"}
		}
		if requestKey != "" {
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "request_key"}},
				DoNothing: true,
			}).Create(&models.UsageIncrement{
				TenantID:   tenantID,
				RequestKey: requestKey,
				PeriodKey:  PeriodKey(now),
				Resource:   resource,
				Amount:     amount,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				applied = false
				return nil
			}
		}
		if errEnsure := m.ensurePeriod(tx, tenantID, now); errEnsure != nil {
			return errEnsure
		}
		if errUpdate := tx.Model(&models.UsagePeriod{}).
			Where("tenant_id = ? AND period_key = ?", tenantID, PeriodKey(now)).
			Updates(map[string]any{
				column:       gorm.Expr(column+" + ?", amount),
				"updated_at": now,
			}).Error; errUpdate != nil {
			return errUpdate
		}
		return tx.Where("tenant_id = ? AND period_key = ?", tenantID, PeriodKey(now)).Take(&committed).Error
	})
	if errTx != nil {
		return false, m.storeFailure(tenantID, "increment", errTx)
	}
	if applied {
		m.writeUsageCache(ctx, &committed)
	}
	return applied, nil
}

// ensurePeriod creates the period row for now if missing, carrying cumulative counters forward.
func (m *Manager) ensurePeriod(tx *gorm.DB, tenantID string, now time.Time) error {
	key := PeriodKey(now)
	var count int64
	if err := tx.Model(&models.UsagePeriod{}).Where("tenant_id = ? AND period_key = ?", tenantID, key).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	row := models.UsagePeriod{TenantID: tenantID, PeriodKey: key, PeriodStart: PeriodStart(now)}
	var prev models.UsagePeriod
	errPrev := tx.Where("tenant_id = ? AND period_key < ?", tenantID, key).Order("period_key DESC").Take(&prev).Error
	switch {
	case errPrev == nil:
		row.StorageMB = prev.StorageMB
		row.Embeddings = prev.Embeddings
	case !errors.Is(errPrev, gorm.ErrRecordNotFound):
		return errPrev
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "period_key"}},
		DoNothing: true,
	}).Create(&row).Error
}

// loadPeriod reads the current period without creating it. A missing row reports zero
// daily usage and the cumulative counters of the latest earlier period.
func (m *Manager) loadPeriod(ctx context.Context, db *gorm.DB, tenantID string, now time.Time) (models.UsagePeriod, error) {
	key := PeriodKey(now)
	var row models.UsagePeriod
	err := db.WithContext(ctx).Where("tenant_id = ? AND period_key = ?", tenantID, key).Take(&row).Error
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.UsagePeriod{}, err
	}

	row = models.UsagePeriod{TenantID: tenantID, PeriodKey: key, PeriodStart: PeriodStart(now)}
	var prev models.UsagePeriod
	errPrev := db.WithContext(ctx).Where("tenant_id = ? AND period_key < ?", tenantID, key).Order("period_key DESC").Take(&prev).Error
	switch {
	case errPrev == nil:
		row.StorageMB = prev.StorageMB
		row.Embeddings = prev.Embeddings
	case !errors.Is(errPrev, gorm.ErrRecordNotFound):
		return models.UsagePeriod{}, errPrev
	}
	return row, nil
}

// GetCurrentUsage returns the usage of the current period, served from cache when possible.
func (m *Manager) GetCurrentUsage(ctx context.Context, tenantID string) (models.UsagePeriod, error) {
	ctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	now := m.now()
	if cached, ok := m.readUsageCache(ctx, tenantID, PeriodKey(now)); ok {
		return cached, nil
	}
	row, err := m.loadPeriod(ctx, m.db, tenantID, now)
	if err != nil {
		return models.UsagePeriod{}, m.storeFailure(tenantID, "usage", err)
	}
	m.writeUsageCache(ctx, &row)
	return row, nil
}

func usageCacheKey(tenantID, periodKey string) string {
	return usageCachePrefix + tenantID + ":" + periodKey
}

func (m *Manager) currentCacheTTL() time.Duration {
	return m.config.DurationSeconds(settings.QuotaCacheTTLSecondsKey, m.cacheTTL)
}

func (m *Manager) readUsageCache(ctx context.Context, tenantID, periodKey string) (models.UsagePeriod, bool) {
	if m.kv == nil {
		return models.UsagePeriod{}, false
	}
	cacheCtx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	raw, err := m.kv.Get(cacheCtx, usageCacheKey(tenantID, periodKey))
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			metrics.CacheErrors.WithLabelValues("quota").Inc()
		}
		return models.UsagePeriod{}, false
	}
	var row models.UsagePeriod
	if errDecode := json.Unmarshal(raw, &row); errDecode != nil {
		return models.UsagePeriod{}, false
	}
	return row, true
}

func (m *Manager) writeUsageCache(ctx context.Context, row *models.UsagePeriod) {
	if m.kv == nil || row == nil {
		return
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return
	}
	cacheCtx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if errSet := m.kv.SetWithTTL(cacheCtx, usageCacheKey(row.TenantID, row.PeriodKey), raw, m.currentCacheTTL()); errSet != nil {
		metrics.CacheErrors.WithLabelValues("quota").Inc()
		log.WithError(errSet).Debug("quota: cache write failed")
	}
}

// storeFailure audits a fail-closed denial and wraps err.
func (m *Manager) storeFailure(tenantID, operation string, err error) error {
	var denial admission.Denial
	if errors.As(err, &denial) {
		return err
	}
	metrics.Observe("quota", false, string(admission.ReasonStoreUnavailable))
	log.WithError(err).Warnf("quota: %s failed for %s, denying", operation, tenantID)
	m.sink.LogEvent(audit.Entry{
		TenantID: tenantID,
		Type:     audit.EventStoreUnavailable,
		Severity: audit.SeverityHigh,
		Data:     map[string]any{"store": "quota", "operation": operation},
	})
	return &admission.StoreUnavailable{Store: "quota", Err: fmt.Errorf("%s: %w", operation, err)}
}
