package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lifelog-ingest/internal/models"
)

// adapter implements Storage on top of database/sql. The SQLite and
// PostgreSQL constructors differ only in connection setup and DDL; all
// queries are shared and written with ? placeholders, rebound for postgres.
type adapter struct {
	db       *sql.DB
	postgres bool
}

// rebind rewrites ? placeholders to $1..$n for postgres.
func (a *adapter) rebind(query string) string {
	if !a.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (a *adapter) AppendArchiveRecord(ctx context.Context, rec *models.ArchiveRecord) error {
	_, err := a.db.ExecContext(ctx, a.rebind(`
		INSERT INTO archive_records (source, date, event_type, dedupe_key, received_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)`),
		rec.Source, rec.Date, rec.EventType, rec.DedupeKey, rec.ReceivedAt.UTC(), rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to append archive record: %w", err)
	}
	return nil
}

func (a *adapter) HasArchiveRecord(ctx context.Context, source, date, eventType, dedupeKey string) (bool, error) {
	var count int
	err := a.db.QueryRowContext(ctx, a.rebind(`
		SELECT COUNT(1) FROM archive_records
		WHERE source = ? AND date = ? AND event_type = ? AND dedupe_key = ?`),
		source, date, eventType, dedupeKey).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query archive: %w", err)
	}
	return count > 0, nil
}

func (a *adapter) ListArchiveRecords(ctx context.Context, source, date string) ([]*models.ArchiveRecord, error) {
	rows, err := a.db.QueryContext(ctx, a.rebind(`
		SELECT id, source, date, event_type, dedupe_key, received_at, payload
		FROM archive_records
		WHERE source = ? AND date = ?
		ORDER BY id`),
		source, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive records: %w", err)
	}
	defer rows.Close()

	var records []*models.ArchiveRecord
	for rows.Next() {
		rec := &models.ArchiveRecord{}
		var payload sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.Date, &rec.EventType, &rec.DedupeKey, &rec.ReceivedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan archive record: %w", err)
		}
		rec.Payload = payload.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (a *adapter) AppendEventLog(ctx context.Context, rec *models.EventLogRecord) error {
	_, err := a.db.ExecContext(ctx, a.rebind(`
		INSERT INTO event_logs (source, event_type, day, dedupe_key, status, body, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		rec.Source, rec.EventType, rec.Day, rec.DedupeKey, rec.Status, rec.Body, rec.ProcessedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append event log: %w", err)
	}
	return nil
}

func (a *adapter) ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLogRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, source, event_type, day, dedupe_key, status, body, processed_at
		FROM event_logs WHERE 1=1`
	args := []interface{}{}

	if filters.Source != "" {
		query += " AND source = ?"
		args = append(args, filters.Source)
	}
	if filters.EventType != "" {
		query += " AND event_type = ?"
		args = append(args, filters.EventType)
	}
	if filters.Day != "" {
		query += " AND day = ?"
		args = append(args, filters.Day)
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := a.db.QueryContext(ctx, a.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list event logs: %w", err)
	}
	defer rows.Close()

	var records []*models.EventLogRecord
	for rows.Next() {
		rec := &models.EventLogRecord{}
		var dedupeKey, body sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.EventType, &rec.Day, &dedupeKey, &rec.Status, &body, &rec.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event log: %w", err)
		}
		rec.DedupeKey = dedupeKey.String
		rec.Body = body.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (a *adapter) PurgeEventLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := a.db.ExecContext(ctx, a.rebind(`DELETE FROM event_logs WHERE processed_at < ?`), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge event logs: %w", err)
	}
	return res.RowsAffected()
}

func (a *adapter) AppendDailyEntries(ctx context.Context, date string, entries []*models.Entry, metadata map[string]interface{}) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin daily entry transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := a.rebind(`
		INSERT INTO daily_entries (date, name, category, entry_time, duration_minutes, metrics, notes, tags, metadata, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	now := time.Now().UTC()
	for _, entry := range entries {
		merged := entry.Metadata
		if len(metadata) > 0 {
			merged = make(map[string]interface{}, len(entry.Metadata)+len(metadata))
			for k, v := range metadata {
				merged[k] = v
			}
			for k, v := range entry.Metadata {
				merged[k] = v
			}
		}

		metrics, err := marshalJSON(entry.Metrics)
		if err != nil {
			return err
		}
		tags, err := marshalJSON(entry.Tags)
		if err != nil {
			return err
		}
		meta, err := marshalJSON(merged)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, stmt,
			date, entry.Name, entry.Category, entry.Time, entry.DurationMinutes,
			metrics, entry.Notes, tags, meta, entry.Source, now); err != nil {
			return fmt.Errorf("failed to insert daily entry: %w", err)
		}
	}

	return tx.Commit()
}

func (a *adapter) ListDailyEntries(ctx context.Context, date string) ([]*models.DailyEntry, error) {
	rows, err := a.db.QueryContext(ctx, a.rebind(`
		SELECT id, date, name, category, entry_time, duration_minutes, metrics, notes, tags, metadata, source, created_at
		FROM daily_entries
		WHERE date = ?
		ORDER BY id`),
		date)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily entries: %w", err)
	}
	defer rows.Close()

	var records []*models.DailyEntry
	for rows.Next() {
		rec := &models.DailyEntry{Entry: &models.Entry{}}
		var entryTime, metrics, notes, tags, meta, source sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.Entry.Name, &rec.Entry.Category,
			&entryTime, &rec.Entry.DurationMinutes, &metrics, &notes, &tags, &meta,
			&source, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan daily entry: %w", err)
		}
		rec.Entry.Time = entryTime.String
		rec.Entry.Notes = notes.String
		rec.Entry.Source = source.String
		if err := unmarshalJSON(metrics.String, &rec.Entry.Metrics); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(tags.String, &rec.Entry.Tags); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(meta.String, &rec.Entry.Metadata); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode entry field: %w", err)
	}
	return string(data), nil
}

func unmarshalJSON(data string, v interface{}) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("failed to decode entry field: %w", err)
	}
	return nil
}

func (a *adapter) Health() error {
	return a.db.Ping()
}

func (a *adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
