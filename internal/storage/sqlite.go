package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLite opens (or creates) the SQLite database at path and runs the
// schema migration. Use ":memory:" in tests.
func NewSQLite(path string) (Storage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	a := &adapter{db: db}
	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return a, nil
}

func migrateSQLite(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS archive_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			date TEXT NOT NULL,
			event_type TEXT NOT NULL,
			dedupe_key TEXT NOT NULL DEFAULT '',
			received_at DATETIME NOT NULL,
			payload TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_source_date ON archive_records(source, date)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_dedupe ON archive_records(source, date, event_type, dedupe_key)`,
		`CREATE TABLE IF NOT EXISTS event_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			event_type TEXT NOT NULL,
			day TEXT NOT NULL,
			dedupe_key TEXT,
			status TEXT NOT NULL DEFAULT 'accepted',
			body TEXT,
			processed_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_logs_partition ON event_logs(source, event_type, day)`,
		`CREATE INDEX IF NOT EXISTS idx_event_logs_processed ON event_logs(processed_at)`,
		`CREATE TABLE IF NOT EXISTS daily_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			entry_time TEXT,
			duration_minutes REAL,
			metrics TEXT,
			notes TEXT,
			tags TEXT,
			metadata TEXT,
			source TEXT NOT NULL,
			created_at DATETIME NOT NULL
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
