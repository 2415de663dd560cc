package storage

import (
	"fmt"

	"lifelog-ingest/internal/config"
)

// New selects a storage adapter from configuration. SQLite is the default;
// "postgres" or "postgresql" selects the pgx adapter.
func New(cfg *config.Config) (Storage, error) {
	switch cfg.DatabaseType {
	case "", "sqlite":
		return NewSQLite(cfg.DatabasePath)
	case "postgres", "postgresql":
		return NewPostgres(cfg.PostgresDSN())
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DatabaseType)
	}
}
