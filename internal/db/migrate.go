package db

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/storechat/admission/internal/models"
	"gorm.io/gorm"
)

// Migrate runs schema migrations for every table owned by the admission core.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.Tenant{},
		&models.TrialToken{},
		&models.UsagePeriod{},
		&models.UsageIncrement{},
		&models.AuditEvent{},
		&models.Document{},
		&models.KnowledgeIndex{},
		&models.Conversation{},
		&models.Setting{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	log.Infof("db: migrations applied (dialect=%s)", DialectName(conn))
	return nil
}
