package models

import "time"

// Document is an ingested knowledge-base document.
type Document struct {
	ID       string `gorm:"type:varchar(128);primaryKey"`                     // Document ID.
	TenantID string `gorm:"column:tenant_id;type:varchar(64);not null;index"` // Owning tenant.
	Title    string `gorm:"type:text;not null;default:''"`                    // Display title.
	SizeKB   int64  `gorm:"not null;default:0"`                               // Stored size.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName overrides the default table name.
func (Document) TableName() string {
	return "documents"
}

// KnowledgeIndex is a tenant's retrieval index.
type KnowledgeIndex struct {
	ID       string `gorm:"type:varchar(128);primaryKey"`                     // Index ID.
	TenantID string `gorm:"column:tenant_id;type:varchar(64);not null;index"` // Owning tenant.
	Name     string `gorm:"type:text;not null;default:''"`                    // Index name.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName overrides the default table name.
func (KnowledgeIndex) TableName() string {
	return "knowledge_indexes"
}

// Conversation is a stored chat session.
type Conversation struct {
	ID       string `gorm:"type:varchar(128);primaryKey"`                     // Conversation ID.
	TenantID string `gorm:"column:tenant_id;type:varchar(64);not null;index"` // Owning tenant.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName overrides the default table name.
func (Conversation) TableName() string {
	return "conversations"
}
