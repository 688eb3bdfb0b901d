package models

import "time"

// UsagePeriod holds a tenant's resource counters for one UTC day.
type UsagePeriod struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID    string    `gorm:"column:tenant_id;type:varchar(64);not null;uniqueIndex:idx_usage_periods_tenant_period,priority:1"` // Owning tenant.
	PeriodKey   string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_usage_periods_tenant_period,priority:2"`                  // UTC day, YYYY-MM-DD.
	PeriodStart time.Time `gorm:"not null;index"`                                                                                    // Start of the UTC day.

	Queries    int64 `gorm:"not null;default:0"` // Queries executed.
	APICalls   int64 `gorm:"not null;default:0"` // API calls made.
	Uploads    int64 `gorm:"not null;default:0"` // Documents uploaded.
	StorageMB  int64 `gorm:"not null;default:0"` // Stored megabytes, carried forward.
	Embeddings int64 `gorm:"not null;default:0"` // Stored embeddings, carried forward.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (UsagePeriod) TableName() string {
	return "usage_periods"
}

// Used returns the counter for kind; ok is false for kinds not tracked per period.
func (u *UsagePeriod) Used(kind ResourceKind) (int64, bool) {
	if u == nil {
		return 0, false
	}
	switch kind {
	case ResourceQueries:
		return u.Queries, true
	case ResourceAPICalls:
		return u.APICalls, true
	case ResourceUploads:
		return u.Uploads, true
	case ResourceStorageMB:
		return u.StorageMB, true
	case ResourceEmbeddings:
		return u.Embeddings, true
	default:
		return 0, false
	}
}

// UsageIncrement records an applied increment so retries with the same key are not counted twice.
// Keys are scoped to the tenant; two tenants never share a ledger entry.
type UsageIncrement struct {
	TenantID   string `gorm:"column:tenant_id;type:varchar(64);primaryKey;autoIncrement:false"` // Owning tenant.
	RequestKey string `gorm:"type:varchar(128);primaryKey;autoIncrement:false"`                 // Caller-supplied idempotency key.

	PeriodKey string       `gorm:"type:varchar(10);not null"` // Period the increment landed in.
	Resource  ResourceKind `gorm:"type:varchar(32);not null"` // Incremented resource.
	Amount    int64        `gorm:"not null"`                  // Applied amount.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}

// TableName overrides the default table name.
func (UsageIncrement) TableName() string {
	return "usage_increments"
}
