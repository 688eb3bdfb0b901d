package settings

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"gorm.io/gorm"
)

type snapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

// Store serves DB-backed runtime settings from an in-memory snapshot.
// A nil *Store answers every lookup with the caller's default.
type Store struct {
	db      *gorm.DB
	current atomic.Pointer[snapshot]
}

// NewStore creates a Store reading from db. The snapshot is empty until Refresh or Replace.
func NewStore(db *gorm.DB) *Store {
	s := &Store{db: db}
	s.current.Store(&snapshot{values: map[string]json.RawMessage{}})
	return s
}

// Replace swaps in a new snapshot. Blank keys are dropped and values are copied.
func (s *Store) Replace(updatedAt time.Time, values map[string]json.RawMessage) {
	if s == nil {
		return
	}
	next := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		next[key] = cloneRaw(v)
	}
	s.current.Store(&snapshot{updatedAt: updatedAt.UTC(), values: next})
}

// UpdatedAt returns the newest updated_at among the loaded rows.
func (s *Store) UpdatedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.current.Load().updatedAt
}

// Value returns a copy of the raw value stored for key.
func (s *Store) Value(key string) (json.RawMessage, bool) {
	if s == nil {
		return nil, false
	}
	val, ok := s.current.Load().values[strings.TrimSpace(key)]
	if !ok {
		return nil, false
	}
	return cloneRaw(val), true
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}
