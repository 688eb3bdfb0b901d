package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditEvent is an append-only security event. Rows are never updated or deleted.
type AuditEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID  string `gorm:"column:tenant_id;type:varchar(64);not null;default:'';index"` // Related tenant, when known.
	EventType string `gorm:"type:varchar(64);not null;index"`                             // Closed event taxonomy value.
	Severity  string `gorm:"type:varchar(16);not null;default:'INFO'"`                    // Event severity.

	EventData datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Hashes, lengths and counts only.
	Metadata  datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Request metadata.

	CreatedAt time.Time `gorm:"not null;index"` // Event timestamp.
}

// TableName overrides the default table name.
func (AuditEvent) TableName() string {
	return "audit_events"
}
