// Package storage persists the webhook archive, the append-only event log,
// and daily entries. Two adapters implement the same interface: SQLite for
// single-node deployments and PostgreSQL for shared ones; a factory selects
// by configuration.
package storage

import (
	"context"
	"time"

	"lifelog-ingest/internal/models"
)

// EventLogFilters narrows event-log listings. Zero values match everything.
type EventLogFilters struct {
	Source    string
	EventType string
	Day       string
}

// Storage is the persistence contract for the ingest pipeline.
//
// Archive records and event logs are append-only: nothing here updates or
// deletes individual rows, only PurgeEventLogs removes aged audit data.
type Storage interface {
	// AppendArchiveRecord appends one delivery summary to the per
	// (source, date) archive.
	AppendArchiveRecord(ctx context.Context, rec *models.ArchiveRecord) error

	// HasArchiveRecord reports whether a record with the same
	// (source, date, eventType, dedupeKey) was already archived. This is
	// the persistent dedup tier.
	HasArchiveRecord(ctx context.Context, source, date, eventType, dedupeKey string) (bool, error)

	// ListArchiveRecords returns the archive for one (source, date) in
	// append order.
	ListArchiveRecords(ctx context.Context, source, date string) ([]*models.ArchiveRecord, error)

	// AppendEventLog appends one audit record.
	AppendEventLog(ctx context.Context, rec *models.EventLogRecord) error

	// ListEventLogs returns audit records, newest first.
	ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLogRecord, error)

	// PurgeEventLogs deletes audit records processed before the cutoff and
	// returns how many were removed.
	PurgeEventLogs(ctx context.Context, before time.Time) (int64, error)

	// AppendDailyEntries appends normalized entries for a date on behalf of
	// the daily store collaborator.
	AppendDailyEntries(ctx context.Context, date string, entries []*models.Entry, metadata map[string]interface{}) error

	// ListDailyEntries returns the stored entries of one date in append
	// order.
	ListDailyEntries(ctx context.Context, date string) ([]*models.DailyEntry, error)

	Health() error
	Close() error
}
