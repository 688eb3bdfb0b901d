package models

import "time"

// TrialToken is a short-lived credential bound one-to-one to a tenant.
type TrialToken struct {
	Token string `gorm:"type:varchar(64);primaryKey"` // Token value.

	TenantID string `gorm:"column:tenant_id;type:varchar(64);not null;uniqueIndex"` // Bound tenant.

	Active    bool      `gorm:"not null;default:true"` // Whether the token is enabled.
	ExpiresAt time.Time `gorm:"not null"`              // Expiration timestamp.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName overrides the default table name.
func (TrialToken) TableName() string {
	return "trial_tokens"
}
