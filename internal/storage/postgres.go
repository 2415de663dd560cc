package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgres connects to PostgreSQL through the pgx stdlib driver and runs
// the schema migration.
func NewPostgres(dsn string) (Storage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	a := &adapter{db: db, postgres: true}
	if err := migratePostgres(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return a, nil
}

func migratePostgres(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS archive_records (
			id BIGSERIAL PRIMARY KEY,
			source TEXT NOT NULL,
			date TEXT NOT NULL,
			event_type TEXT NOT NULL,
			dedupe_key TEXT NOT NULL DEFAULT '',
			received_at TIMESTAMPTZ NOT NULL,
			payload TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_source_date ON archive_records(source, date)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_dedupe ON archive_records(source, date, event_type, dedupe_key)`,
		`CREATE TABLE IF NOT EXISTS event_logs (
			id BIGSERIAL PRIMARY KEY,
			source TEXT NOT NULL,
			event_type TEXT NOT NULL,
			day TEXT NOT NULL,
			dedupe_key TEXT,
			status TEXT NOT NULL DEFAULT 'accepted',
			body TEXT,
			processed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_logs_partition ON event_logs(source, event_type, day)`,
		`CREATE INDEX IF NOT EXISTS idx_event_logs_processed ON event_logs(processed_at)`,
		`CREATE TABLE IF NOT EXISTS daily_entries (
			id BIGSERIAL PRIMARY KEY,
			date TEXT NOT NULL,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			entry_time TEXT,
			duration_minutes DOUBLE PRECISION,
			metrics TEXT,
			notes TEXT,
			tags TEXT,
			metadata TEXT,
			source TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_entries_date ON daily_entries(date)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}
