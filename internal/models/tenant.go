package models

import (
	"time"

	"gorm.io/datatypes"
)

// TenantStatus is the lifecycle state of a tenant.
type TenantStatus string

// Tenant lifecycle states.
const (
	TenantStatusPending        TenantStatus = "pending"
	TenantStatusProvisioning   TenantStatus = "provisioning"
	TenantStatusActive         TenantStatus = "active"
	TenantStatusTrial          TenantStatus = "trial"
	TenantStatusSuspended      TenantStatus = "suspended"
	TenantStatusExpired        TenantStatus = "expired"
	TenantStatusDeprovisioning TenantStatus = "deprovisioning"
	TenantStatusDeleted        TenantStatus = "deleted"
)

// Valid reports whether s is a known tenant status.
func (s TenantStatus) Valid() bool {
	switch s {
	case TenantStatusPending, TenantStatusProvisioning, TenantStatusActive, TenantStatusTrial,
		TenantStatusSuspended, TenantStatusExpired, TenantStatusDeprovisioning, TenantStatusDeleted:
		return true
	default:
		return false
	}
}

// AllowsAccess reports whether tenants in this status may be served.
func (s TenantStatus) AllowsAccess() bool {
	return s == TenantStatusActive || s == TenantStatusTrial
}

// Tenant is an isolated customer account.
type Tenant struct {
	TenantID string `gorm:"column:tenant_id;type:varchar(64);primaryKey"` // Tenant identifier.

	Name   string       `gorm:"type:text;not null;default:''"`        // Display name.
	Status TenantStatus `gorm:"type:varchar(32);not null;index"`      // Lifecycle status.
	Plan   string       `gorm:"type:varchar(64);not null;default:''"` // Plan name.

	Quota    datatypes.JSONType[QuotaLimits] `gorm:"not null;default:'{}'"` // Per-resource limits.
	Features datatypes.JSONSlice[string]     `gorm:"not null;default:'[]'"` // Enabled feature flags.

	ExpiresAt *time.Time // Trial expiry, cleared on upgrade.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (Tenant) TableName() string {
	return "tenants"
}

// Limits returns the tenant's quota limits.
func (t *Tenant) Limits() QuotaLimits {
	if t == nil {
		return QuotaLimits{}
	}
	return t.Quota.Data()
}

// TrialExpired reports whether the tenant carries an expiry that has passed at now.
func (t *Tenant) TrialExpired(now time.Time) bool {
	if t == nil || t.ExpiresAt == nil {
		return false
	}
	return now.After(*t.ExpiresAt)
}
