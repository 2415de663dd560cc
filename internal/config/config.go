// Package config provides configuration management for the ingest service.
// All values load from environment variables with sensible defaults, are
// collected into one immutable Config at startup, and are validated before
// the server starts.
//
// Environment variables:
//
// Application:
//   - PORT: server port (default 8080)
//   - LOG_LEVEL: debug|info|warn|error (default info)
//   - REPORTING_TIMEZONE: IANA zone entries are reported in (default America/New_York)
//
// Database:
//   - DATABASE_TYPE: "sqlite" or "postgres" (default sqlite)
//   - DATABASE_PATH: sqlite file path (default ./lifelog_ingest.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER,
//     POSTGRES_PASSWORD, POSTGRES_SSL_MODE: postgres connection settings
//
// Redis (optional, enables the shared dedup tier and distributed write locks):
//   - REDIS_ADDRESS, REDIS_PASSWORD, REDIS_DB, REDIS_POOL_SIZE
//
// Per-source webhook settings, <SOURCE> in {WHOOP, CALENDAR, SHORTCUT}:
//   - WEBHOOK_<SOURCE>_ENABLED: enable the source (default true)
//   - WEBHOOK_<SOURCE>_SECRET: HMAC shared secret (signature mode)
//   - WEBHOOK_<SOURCE>_SIGNATURE_HEADER: signature header name (default x-webhook-signature)
//   - WEBHOOK_<SOURCE>_TIMESTAMP_HEADER: timestamp header prepended to the signed bytes
//   - WEBHOOK_<SOURCE>_AUTH_TOKEN: bearer token (auth-token mode)
//   - WEBHOOK_<SOURCE>_VERBOSE: verbose request logging
//
// Provider API hydration:
//   - PROVIDER_<SOURCE>_API_URL, PROVIDER_<SOURCE>_API_TOKEN
//   - PROVIDER_API_TIMEOUT: per-fetch timeout (default 10s)
//
// Notifications:
//   - NOTIFY_WEBHOOK_URL: channel delivery endpoint
//   - NOTIFY_CHANNEL: default channel name (default lifelog)
//   - NOTIFY_CREDENTIALS_DIR: directory holding per-channel token files
//   - NOTIFY_SHARED_TOKEN: shared account fallback credential
//
// Inspection API:
//   - JWT_SECRET: HS256 signing secret (min 32 chars; API disabled when empty)
//   - ADMIN_USERNAME, ADMIN_PASSWORD_HASH: bcrypt-protected login
//
// Retention:
//   - EVENT_LOG_RETENTION_DAYS: audit rows kept (default 90)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// KnownSources lists the webhook sources the service mounts endpoints for.
var KnownSources = []string{"whoop", "calendar", "shortcut"}

// DefaultSignatureHeader is used when a source does not override it.
const DefaultSignatureHeader = "x-webhook-signature"

// SourceConfig holds the webhook verification settings for one source.
type SourceConfig struct {
	Enabled         bool
	Secret          string // HMAC shared secret; empty disables signature mode
	SignatureHeader string
	TimestampHeader string // when set, signed bytes are timestamp||body
	AuthToken       string // bearer token; empty disables auth-token mode
	Verbose         bool
}

// ProviderConfig holds the API settings used for hydration of one source.
type ProviderConfig struct {
	BaseURL string
	Token   string
}

// Config holds all configuration for the ingest service. Built once at
// startup and passed by explicit injection; never mutated afterwards.
type Config struct {
	Port              string
	LogLevel          string
	ReportingTimeZone string

	DatabaseType     string
	DatabasePath     string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	RedisAddress  string
	RedisPassword string
	RedisDB       string
	RedisPoolSize string

	Sources   map[string]SourceConfig
	Providers map[string]ProviderConfig

	ProviderAPITimeout time.Duration

	NotifyWebhookURL     string
	NotifyChannel        string
	NotifyCredentialsDir string
	NotifySharedToken    string

	JWTSecret         string
	AdminUsername     string
	AdminPasswordHash string

	EventLogRetentionDays int
}

// Load creates a Config with values from the environment. Call Validate
// before use.
func Load() *Config {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		ReportingTimeZone: getEnv("REPORTING_TIMEZONE", "America/New_York"),

		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./lifelog_ingest.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "lifelog_ingest"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		Sources:   make(map[string]SourceConfig),
		Providers: make(map[string]ProviderConfig),

		ProviderAPITimeout: getDurationEnv("PROVIDER_API_TIMEOUT", 10*time.Second),

		NotifyWebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyChannel:        getEnv("NOTIFY_CHANNEL", "lifelog"),
		NotifyCredentialsDir: getEnv("NOTIFY_CREDENTIALS_DIR", "./credentials"),
		NotifySharedToken:    getEnv("NOTIFY_SHARED_TOKEN", ""),

		JWTSecret:         getEnv("JWT_SECRET", ""),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		EventLogRetentionDays: getIntEnv("EVENT_LOG_RETENTION_DAYS", 90),
	}

	for _, source := range KnownSources {
		prefix := "WEBHOOK_" + strings.ToUpper(source) + "_"
		cfg.Sources[source] = SourceConfig{
			Enabled:         getBoolEnv(prefix+"ENABLED", true),
			Secret:          getEnv(prefix+"SECRET", ""),
			SignatureHeader: getEnv(prefix+"SIGNATURE_HEADER", DefaultSignatureHeader),
			TimestampHeader: getEnv(prefix+"TIMESTAMP_HEADER", ""),
			AuthToken:       getEnv(prefix+"AUTH_TOKEN", ""),
			Verbose:         getBoolEnv(prefix+"VERBOSE", false),
		}

		apiPrefix := "PROVIDER_" + strings.ToUpper(source) + "_"
		cfg.Providers[source] = ProviderConfig{
			BaseURL: getEnv(apiPrefix+"API_URL", ""),
			Token:   getEnv(apiPrefix+"API_TOKEN", ""),
		}
	}

	return cfg
}

// Source returns the configuration for a source name, with ok=false for
// sources the service does not know.
func (c *Config) Source(name string) (SourceConfig, bool) {
	sc, ok := c.Sources[name]
	return sc, ok
}

// PostgresDSN builds the connection string for the postgres adapter.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresUser, c.PostgresPassword, c.PostgresSSLMode)
}

// InspectionAPIEnabled reports whether the read-only audit API should be
// mounted. It requires both a JWT secret and an admin password hash.
func (c *Config) InspectionAPIEnabled() bool {
	return c.JWTSecret != "" && c.AdminPasswordHash != ""
}

// Validate checks required fields, formats, and cross-field dependencies.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if _, err := time.LoadLocation(c.ReportingTimeZone); err != nil {
		return fmt.Errorf("REPORTING_TIMEZONE must be a valid IANA zone: %w", err)
	}

	switch c.DatabaseType {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'sqlite' or 'postgres'")
	}

	if c.DatabaseType != "sqlite" {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	}

	if c.RedisAddress != "" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if c.ProviderAPITimeout <= 0 {
		return fmt.Errorf("PROVIDER_API_TIMEOUT must be positive")
	}

	if c.EventLogRetentionDays < 1 {
		return fmt.Errorf("EVENT_LOG_RETENTION_DAYS must be at least 1")
	}

	for name, sc := range c.Sources {
		if sc.Enabled && sc.Secret != "" && sc.SignatureHeader == "" {
			return fmt.Errorf("signature header for source %s must not be empty", name)
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
