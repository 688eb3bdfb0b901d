// Package audit persists security events without blocking the request path.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/storechat/admission/internal/metrics"
	"github.com/storechat/admission/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultQueueSize     = 4096
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	writeTimeout         = 5 * time.Second
)

// Options configures a Logger.
type Options struct {
	HashKey       []byte
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

// Logger is the database-backed Sink. A single writer goroutine drains a bounded queue;
// events arriving while the queue is full are dropped and counted.
type Logger struct {
	db     *gorm.DB
	hasher *Hasher

	queue         chan models.AuditEvent
	batchSize     int
	flushInterval time.Duration
	now           func() time.Time

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewLogger creates a Logger and starts its writer.
func NewLogger(db *gorm.DB, opts Options) (*Logger, error) {
	l, err := newLogger(db, opts)
	if err != nil {
		return nil, err
	}
	go l.run()
	return l, nil
}

func newLogger(db *gorm.DB, opts Options) (*Logger, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: nil db")
	}
	if len(opts.HashKey) == 0 {
		log.Warn("audit: no hash key configured, digests will not be stable across restarts")
	}
	hasher, err := NewHasher(opts.HashKey)
	if err != nil {
		return nil, err
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	return &Logger{
		db:            db,
		hasher:        hasher,
		queue:         make(chan models.AuditEvent, opts.QueueSize),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		now:           func() time.Time { return time.Now().UTC() },
		done:          make(chan struct{}),
	}, nil
}

// Hasher returns the keyed hasher used for sensitive values.
func (l *Logger) Hasher() *Hasher {
	return l.hasher
}

// LogEvent enqueues an event. It never blocks and never reports failure to the caller.
func (l *Logger) LogEvent(entry Entry) {
	if l == nil {
		return
	}
	if !entry.Type.Valid() {
		log.Warnf("audit: dropping event with unknown type %q", entry.Type)
		metrics.AuditDropped.Inc()
		return
	}
	row, err := l.buildRow(entry)
	if err != nil {
		log.WithError(err).Warn("audit: encode event failed")
		metrics.AuditWriteFailures.Inc()
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		metrics.AuditDropped.Inc()
		return
	}
	select {
	case l.queue <- row:
	default:
		metrics.AuditDropped.Inc()
		log.Warnf("audit: queue full, dropped %s event", entry.Type)
	}
}

func (l *Logger) buildRow(entry Entry) (models.AuditEvent, error) {
	data := make(map[string]any, len(entry.Data)+2*len(entry.Sensitive))
	for k, v := range entry.Data {
		data[k] = v
	}
	for k, v := range entry.Sensitive {
		data[k+"_hash"] = l.hasher.HashSensitive(v)
		data[k+"_length"] = len(v)
	}
	eventData, err := json.Marshal(data)
	if err != nil {
		return models.AuditEvent{}, fmt.Errorf("audit: marshal data: %w", err)
	}
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return models.AuditEvent{}, fmt.Errorf("audit: marshal metadata: %w", err)
	}
	severity := entry.Severity
	if severity == "" {
		severity = SeverityInfo
	}
	return models.AuditEvent{
		TenantID:  entry.TenantID,
		EventType: string(entry.Type),
		Severity:  string(severity),
		EventData: datatypes.JSON(eventData),
		Metadata:  datatypes.JSON(metaJSON),
		CreatedAt: l.now(),
	}, nil
}

func (l *Logger) run() {
	defer close(l.done)
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]models.AuditEvent, 0, l.batchSize)
	for {
		select {
		case row, ok := <-l.queue:
			if !ok {
				l.write(batch)
				return
			}
			batch = append(batch, row)
			if len(batch) >= l.batchSize {
				l.write(batch)
				batch = make([]models.AuditEvent, 0, l.batchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				l.write(batch)
				batch = make([]models.AuditEvent, 0, l.batchSize)
			}
		}
	}
}

func (l *Logger) write(batch []models.AuditEvent) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := l.db.WithContext(ctx).CreateInBatches(batch, l.batchSize).Error; err != nil {
		metrics.AuditWriteFailures.Add(float64(len(batch)))
		log.WithError(err).Warnf("audit: write %d events failed", len(batch))
	}
}

// Close stops accepting events and waits for queued events to be written.
func (l *Logger) Close(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit: close: %w", ctx.Err())
	}
}

// Recent returns the newest events of a tenant, newest first.
func (l *Logger) Recent(ctx context.Context, tenantID string, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []models.AuditEvent
	if err := l.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("audit: list events: %w", err)
	}
	return rows, nil
}
