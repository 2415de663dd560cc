// Package eventlog writes the append-only audit trail. A record lands after
// a delivery clears verification and dedup but before persistence, so the
// trail reflects deliveries accepted for processing rather than raw traffic.
package eventlog

import (
	"context"
	"time"

	"lifelog-ingest/internal/common/logging"
	"lifelog-ingest/internal/models"
	"lifelog-ingest/internal/storage"
)

// Logger appends audit records. Writes are best-effort: a failed append is
// logged as a warning and never fails the delivery.
type Logger struct {
	store  storage.Storage
	logger logging.Logger
}

// New creates an event logger over the storage adapter.
func New(store storage.Storage, logger logging.Logger) *Logger {
	if logger == nil {
		logger = logging.Global()
	}
	return &Logger{store: store, logger: logger}
}

// Record appends one audit record for an accepted delivery result.
func (l *Logger) Record(ctx context.Context, source, eventType, day, dedupeKey, body string) {
	rec := &models.EventLogRecord{
		Source:      source,
		EventType:   eventType,
		Day:         day,
		DedupeKey:   dedupeKey,
		Status:      "accepted",
		Body:        body,
		ProcessedAt: time.Now(),
	}

	if err := l.store.AppendEventLog(ctx, rec); err != nil {
		l.logger.Warn("Event log write failed",
			logging.String("source", source),
			logging.String("event_type", eventType),
			logging.String("day", day),
			logging.Err(err),
		)
	}
}

// List returns audit records for the inspection API, newest first.
func (l *Logger) List(ctx context.Context, filters storage.EventLogFilters, limit, offset int) ([]*models.EventLogRecord, error) {
	return l.store.ListEventLogs(ctx, filters, limit, offset)
}

// Purge removes audit records processed before the cutoff.
func (l *Logger) Purge(ctx context.Context, before time.Time) (int64, error) {
	return l.store.PurgeEventLogs(ctx, before)
}
