// Package tenant owns tenant records, their configuration cache, and access validation.
package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/storechat/admission/internal/audit"
	"github.com/storechat/admission/internal/kvstore"
	"github.com/storechat/admission/internal/metrics"
	"github.com/storechat/admission/internal/models"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// DefaultCacheTTL is how long a tenant configuration stays cached.
const DefaultCacheTTL = 30 * time.Second

const (
	cachePrefix  = "tenantcfg:"
	cacheTimeout = 100 * time.Millisecond
)

var (
	// ErrNotFound is returned when a tenant does not exist.
	ErrNotFound = errors.New("tenant: not found")

	// ErrInvalidStatus is returned by SetStatus for unknown statuses.
	ErrInvalidStatus = errors.New("tenant: invalid status")

	errNilDB = errors.New("tenant: nil db")
)

// Store reads and writes tenant records. Reads go through an optional key-value cache;
// cache failures fall through to the database.
type Store struct {
	db       *gorm.DB
	kv       kvstore.Store
	cacheTTL time.Duration
	sink     audit.Sink
	now      func() time.Time

	group singleflight.Group

	// epochs counts invalidations per tenant; a load only fills the cache
	// when no invalidation happened since it started.
	epochs sync.Map // tenantID -> *atomic.Uint64
	loaded func(tenantID string)
}

// StoreOptions configures a Store.
type StoreOptions struct {
	Cache    kvstore.Store
	CacheTTL time.Duration
	Sink     audit.Sink
	Now      func() time.Time
}

// NewStore creates a Store.
func NewStore(db *gorm.DB, opts StoreOptions) *Store {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Sink == nil {
		opts.Sink = audit.Discard{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{db: db, kv: opts.Cache, cacheTTL: opts.CacheTTL, sink: opts.Sink, now: opts.Now}
}

// DB returns the underlying database handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func cacheKey(tenantID string) string {
	return cachePrefix + tenantID
}

// Get returns the tenant with tenantID.
func (s *Store) Get(ctx context.Context, tenantID string) (*models.Tenant, error) {
	if s == nil || s.db == nil {
		return nil, errNilDB
	}
	if cached, ok := s.readCache(ctx, tenantID); ok {
		return cached, nil
	}

	epoch := s.epoch(tenantID)
	v, err, _ := s.group.Do(tenantID+"@"+strconv.FormatUint(epoch, 10), func() (any, error) {
		var row models.Tenant
		if errFind := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Take(&row).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("tenant: load %s: %w", tenantID, errFind)
		}
		if s.loaded != nil {
			s.loaded(tenantID)
		}
		s.fillCache(ctx, &row, epoch)
		return &row, nil
	})
	if err != nil {
		return nil, err
	}
	row := *v.(*models.Tenant)
	return &row, nil
}

func (s *Store) readCache(ctx context.Context, tenantID string) (*models.Tenant, bool) {
	if s.kv == nil {
		return nil, false
	}
	cacheCtx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	raw, err := s.kv.Get(cacheCtx, cacheKey(tenantID))
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			metrics.CacheErrors.WithLabelValues("tenant").Inc()
			log.WithError(err).Debug("tenant: cache read failed, loading from db")
		}
		return nil, false
	}
	var row models.Tenant
	if errDecode := json.Unmarshal(raw, &row); errDecode != nil {
		log.WithError(errDecode).Warn("tenant: discarding undecodable cache entry")
		return nil, false
	}
	return &row, true
}

func (s *Store) epoch(tenantID string) uint64 {
	if counter, ok := s.epochs.Load(tenantID); ok {
		return counter.(*atomic.Uint64).Load()
	}
	return 0
}

// fillCache caches row unless tenantID was invalidated after the load began.
// The second check drops an entry that raced with an invalidation.
func (s *Store) fillCache(ctx context.Context, row *models.Tenant, epoch uint64) {
	if s.kv == nil || s.epoch(row.TenantID) != epoch {
		return
	}
	s.writeCache(ctx, row)
	if s.epoch(row.TenantID) != epoch {
		s.dropCache(ctx, row.TenantID)
	}
}

func (s *Store) writeCache(ctx context.Context, row *models.Tenant) {
	if s.kv == nil {
		return
	}
	raw, err := json.Marshal(row)
	if err != nil {
		log.WithError(err).Warn("tenant: encode cache entry failed")
		return
	}
	cacheCtx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if errSet := s.kv.SetWithTTL(cacheCtx, cacheKey(row.TenantID), raw, s.cacheTTL); errSet != nil {
		metrics.CacheErrors.WithLabelValues("tenant").Inc()
		log.WithError(errSet).Debug("tenant: cache write failed")
	}
}

// Invalidate drops the cached configuration of tenantID. Writers call it after commit.
func (s *Store) Invalidate(ctx context.Context, tenantID string) {
	if s == nil || s.kv == nil {
		return
	}
	counter, _ := s.epochs.LoadOrStore(tenantID, new(atomic.Uint64))
	counter.(*atomic.Uint64).Add(1)
	s.dropCache(ctx, tenantID)
}

func (s *Store) dropCache(ctx context.Context, tenantID string) {
	if err := s.kv.Del(ctx, cacheKey(tenantID)); err != nil {
		metrics.CacheErrors.WithLabelValues("tenant").Inc()
		log.WithError(err).Warnf("tenant: invalidate cache for %s failed", tenantID)
	}
}
