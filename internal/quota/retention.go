package quota

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/storechat/admission/internal/settings"
	"gorm.io/gorm"
)

const (
	defaultRetentionInterval = 6 * time.Hour
	defaultDeleteBatchSize   = 5000
	maxDeleteBatchesPerRun   = 2000
)

// RetentionCleaner periodically deletes usage periods and increment records past retention.
type RetentionCleaner struct {
	db        *gorm.DB
	settings  *settings.Store
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewRetentionCleaner creates a RetentionCleaner. Retention is read from store on every run.
func NewRetentionCleaner(db *gorm.DB, store *settings.Store) *RetentionCleaner {
	if db == nil {
		return nil
	}
	return &RetentionCleaner{
		db:        db,
		settings:  store,
		interval:  defaultRetentionInterval,
		batchSize: defaultDeleteBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the cleanup loop in a background goroutine.
func (c *RetentionCleaner) Start(ctx context.Context) {
	if c == nil {
		return
	}
	go c.run(ctx)
	log.Infof("quota retention cleaner started (interval=%s)", c.interval)
}

func (c *RetentionCleaner) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.cleanupOnce(ctx)
		timer := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// cleanupOnce deletes rows older than the configured retention. It returns the number deleted.
func (c *RetentionCleaner) cleanupOnce(ctx context.Context) int64 {
	retentionDays := c.settings.Int(settings.UsagePeriodRetentionDaysKey, settings.DefaultUsagePeriodRetentionDays)
	if retentionDays <= 0 {
		return 0
	}
	cutoff := c.now().AddDate(0, 0, -retentionDays)
	cutoffKey := PeriodKey(cutoff)

	deletedTotal := int64(0)
	for _, table := range []string{"usage_periods", "usage_increments"} {
		for i := 0; i < maxDeleteBatchesPerRun; i++ {
			if ctx.Err() != nil {
				return deletedTotal
			}
			n, err := c.deleteBatch(ctx, table, cutoffKey)
			if err != nil {
				log.WithError(err).Warnf("quota retention cleaner: delete batch from %s failed", table)
				break
			}
			if n <= 0 {
				break
			}
			deletedTotal += n
		}
	}

	if deletedTotal > 0 {
		log.Infof("quota retention cleaner: deleted %d rows (cutoff=%s retention_days=%d)", deletedTotal, cutoffKey, retentionDays)
	}
	return deletedTotal
}

func (c *RetentionCleaner) deleteBatch(ctx context.Context, table, cutoffKey string) (int64, error) {
	limit := c.batchSize
	if limit <= 0 {
		limit = defaultDeleteBatchSize
	}
	var query string
	switch table {
	case "usage_periods":
		// The latest period of each tenant is kept; it carries the cumulative counters.
		query = `DELETE FROM usage_periods WHERE id IN (
			SELECT up.id FROM usage_periods up
			WHERE up.period_key < ?
			AND up.period_key < (SELECT MAX(p2.period_key) FROM usage_periods p2 WHERE p2.tenant_id = up.tenant_id)
			ORDER BY up.period_key ASC LIMIT ?
		)`
	default:
		query = `DELETE FROM usage_increments WHERE (tenant_id, request_key) IN (
			SELECT tenant_id, request_key FROM usage_increments WHERE period_key < ? ORDER BY period_key ASC LIMIT ?
		)`
	}
	res := c.db.WithContext(ctx).Exec(query, cutoffKey, limit)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
