package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/storechat/admission/internal/models"
	"gorm.io/gorm/clause"
)

// DefaultRefreshInterval is how often other processes' setting changes are picked up.
const DefaultRefreshInterval = 30 * time.Second

var errNoDB = errors.New("settings: nil db")

// Refresh reloads every setting row into the snapshot. Until the first refresh,
// lookups fall back to their defaults.
func (s *Store) Refresh(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNoDB
	}

	var rows []models.Setting
	if errFind := s.db.WithContext(ctx).
		Select("key", "value", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return fmt.Errorf("settings: load: %w", errFind)
	}

	values := make(map[string]json.RawMessage, len(rows))
	var newest time.Time
	for _, row := range rows {
		values[row.Key] = row.Value
		if at := row.UpdatedAt.UTC(); at.After(newest) {
			newest = at
		}
	}
	s.Replace(newest, values)
	return nil
}

// Set writes key and refreshes the snapshot so the new value applies immediately in this process.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	key = strings.TrimSpace(key)
	if !IsKnownKey(key) {
		return fmt.Errorf("settings: unknown key %q", key)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("settings: encode %s: %w", key, err)
	}
	row := models.Setting{Key: key, Value: raw, UpdatedAt: time.Now().UTC()}
	if errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error; errUpsert != nil {
		return fmt.Errorf("settings: write %s: %w", key, errUpsert)
	}
	return s.Refresh(ctx)
}

// StartRefresher reloads the snapshot every interval until ctx is done.
func (s *Store) StartRefresher(ctx context.Context, interval time.Duration) {
	if s == nil || s.db == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := s.Refresh(ctx); err != nil {
				log.WithError(err).Warn("settings: refresh snapshot failed")
			}
		}
	}()
}
