package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/storechat/admission/internal/admission"
	"github.com/storechat/admission/internal/audit"
	"github.com/storechat/admission/internal/config"
	"github.com/storechat/admission/internal/db"
	"github.com/storechat/admission/internal/kvstore"
	"github.com/storechat/admission/internal/models"
	"github.com/storechat/admission/internal/quota"
	"github.com/storechat/admission/internal/ratelimit"
	"github.com/storechat/admission/internal/settings"
	"github.com/storechat/admission/internal/tenant"
	"gorm.io/gorm"
)

// Core holds the stores and admission components shared by every request.
// It is built once at startup and passed explicitly.
type Core struct {
	DB        *gorm.DB
	KV        kvstore.Store
	Audit     *audit.Logger
	Tenants   *tenant.Store
	Validator *tenant.Validator
	Quota     *quota.Manager
	Limiter   *ratelimit.Limiter
	Retention *quota.RetentionCleaner
	Settings  *settings.Store

	rateLimits config.RateLimitConfig
	trialDays  int
}

// Open connects the configured stores and builds a Core over them.
func Open(ctx context.Context, cfg *config.Config) (*Core, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	pool := db.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
	conn, err := db.Open(cfg.Database.DSN, pool)
	if err != nil {
		return nil, err
	}

	var kv kvstore.Store
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		redisStore, errRedis := kvstore.NewRedisStore(kvstore.RedisOptions{
			Addr:         addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolSize:     cfg.Redis.PoolSize,
		})
		if errRedis != nil {
			_ = db.Close(conn)
			return nil, errRedis
		}
		kv = redisStore
	} else {
		log.Warn("app: no redis configured; rate limits are per process and session quotas deny")
	}

	core, err := NewCore(conn, kv, cfg)
	if err != nil {
		if kv != nil {
			_ = kv.Close()
		}
		_ = db.Close(conn)
		return nil, err
	}
	return core, nil
}

// NewCore wires the admission components over already opened stores. kv may be nil.
func NewCore(conn *gorm.DB, kv kvstore.Store, cfg *config.Config) (*Core, error) {
	if conn == nil {
		return nil, errors.New("app: nil database")
	}
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}

	hashKey := []byte(cfg.Audit.HashKey)
	if len(hashKey) == 0 {
		log.Warn("app: audit.hash_key not set; audit hashes will not correlate across restarts")
	}
	auditLogger, err := audit.NewLogger(conn, audit.Options{
		HashKey:       hashKey,
		QueueSize:     cfg.Audit.QueueSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("app: audit logger: %w", err)
	}

	runtimeSettings := settings.NewStore(conn)
	tenants := tenant.NewStore(conn, tenant.StoreOptions{
		Cache:    kv,
		CacheTTL: cfg.Quota.TenantCacheTTL,
		Sink:     auditLogger,
	})

	var primary, fallback ratelimit.Backend
	if kv != nil {
		primary = ratelimit.NewStoreBackend(kv)
	}
	if kv == nil || cfg.RateLimit.FallbackEnabled() {
		fallback = ratelimit.NewLocalBackend()
	}

	return &Core{
		DB:      conn,
		KV:      kv,
		Audit:   auditLogger,
		Tenants: tenants,
		Validator: tenant.NewValidator(tenants, tenant.ValidatorOptions{
			Sink:         auditLogger,
			StoreTimeout: cfg.Quota.StoreTimeout,
		}),
		Quota: quota.NewManager(conn, tenants, quota.Options{
			Cache:        kv,
			Sink:         auditLogger,
			Settings:     runtimeSettings,
			StoreTimeout: cfg.Quota.StoreTimeout,
			CacheTTL:     cfg.Quota.CacheTTL,
			SessionTTL:   cfg.Quota.SessionTTL,
		}),
		Limiter: ratelimit.New(primary, fallback, auditLogger, ratelimit.Options{
			StoreTimeout: cfg.RateLimit.StoreTimeout,
		}),
		Retention:  quota.NewRetentionCleaner(conn, runtimeSettings),
		Settings:   runtimeSettings,
		rateLimits: cfg.RateLimit,
		trialDays:  cfg.Quota.TrialDays,
	}, nil
}

// Start loads DB-backed settings and launches the background loops.
func (c *Core) Start(ctx context.Context) {
	if err := c.Settings.Refresh(ctx); err != nil {
		log.WithError(err).Warn("app: initial settings load failed, using defaults")
	}
	c.Settings.StartRefresher(ctx, settings.DefaultRefreshInterval)
	c.Retention.Start(ctx)
}

// Close drains the audit queue and releases the stores.
func (c *Core) Close(ctx context.Context) error {
	var errs []error
	if c.Audit != nil {
		errs = append(errs, c.Audit.Close(ctx))
	}
	if c.KV != nil {
		errs = append(errs, c.KV.Close())
	}
	errs = append(errs, db.Close(c.DB))
	return errors.Join(errs...)
}

// TrialDays returns the trial length for newly provisioned tenants.
func (c *Core) TrialDays() int {
	return c.Settings.Int(settings.TrialDaysKey, c.trialDays)
}

// Admit runs the admission pipeline: tenant access, optional trial token, quota, then rate
// limits. The first denial is returned; nothing after it is consumed.
func (c *Core) Admit(ctx context.Context, req admission.Request) (admission.Decision, error) {
	decision := admission.Decision{QuotaLimit: models.Unlimited, QuotaRemaining: models.Unlimited}

	op := tenant.OperationContext{Operation: req.Operation, RequestID: req.RequestID, ClientIP: req.ClientIP}
	if err := c.Validator.ValidateTenantAccess(ctx, req.TenantID, op); err != nil {
		return decision, err
	}
	if req.TrialToken != "" {
		if err := c.Validator.ValidateTrialToken(ctx, req.TenantID, req.TrialToken); err != nil {
			return decision, err
		}
	}

	if req.Resource != "" {
		kind := models.ResourceKind(req.Resource)
		res, err := c.Quota.CheckQuota(ctx, req.TenantID, kind)
		if err != nil {
			return decision, err
		}
		if !res.Allowed {
			return decision, res.Denial(kind)
		}
		decision.QuotaLimit, decision.QuotaRemaining = res.Limit, res.Remaining
	}

	policies, err := c.ratePolicies(req)
	if err != nil {
		return decision, err
	}
	for i, policy := range policies {
		res, errCheck := c.Limiter.CheckAndConsume(ctx, policy.identifier, policy.cfg)
		if errCheck != nil {
			return decision, errCheck
		}
		if !res.Allowed {
			return decision, res.Denial(policy.cfg)
		}
		if i == 0 || res.Remaining < decision.RateRemaining {
			decision.RateLimit = policy.cfg.MaxRequests
			decision.RateRemaining = res.Remaining
			decision.RateResetAt = res.ResetAt
		}
	}
	return decision, nil
}

// IncrementUsageOnce records usage of an admitted request.
func (c *Core) IncrementUsageOnce(ctx context.Context, requestKey, tenantID string, resource models.ResourceKind, amount int64) (bool, error) {
	return c.Quota.IncrementUsageOnce(ctx, requestKey, tenantID, resource, amount)
}

type ratePolicy struct {
	identifier string
	cfg        ratelimit.Config
}

// ratePolicies lists the buckets a request draws from. A per-tool policy replaces the
// tenant-wide one for that tool.
func (c *Core) ratePolicies(req admission.Request) ([]ratePolicy, error) {
	var policies []ratePolicy

	tenantPolicy := c.rateLimits.Tenant
	kind := ratelimit.IdentifierTenant
	tool := strings.TrimSpace(req.Tool)
	if toolPolicy, ok := c.rateLimits.Tools[tool]; ok && tool != "" && toolPolicy.Enabled() {
		tenantPolicy, kind = toolPolicy, ratelimit.IdentifierTenantTool
	}
	if tenantPolicy.Enabled() {
		identifier, err := ratelimit.ComposeIdentifier(kind, req.TenantID, tool)
		if err != nil {
			return nil, err
		}
		policies = append(policies, ratePolicy{identifier: identifier, cfg: ratelimit.Config{
			MaxRequests:    tenantPolicy.MaxRequests,
			Window:         tenantPolicy.Window,
			IdentifierType: kind,
		}})
	}

	if ip := strings.TrimSpace(req.ClientIP); ip != "" && c.rateLimits.IP.Enabled() {
		identifier, err := ratelimit.ComposeIdentifier(ratelimit.IdentifierIP, ip, "")
		if err != nil {
			return nil, err
		}
		policies = append(policies, ratePolicy{identifier: identifier, cfg: ratelimit.Config{
			MaxRequests:    c.rateLimits.IP.MaxRequests,
			Window:         c.rateLimits.IP.Window,
			IdentifierType: ratelimit.IdentifierIP,
		}})
	}
	return policies, nil
}
