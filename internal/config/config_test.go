package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "America/New_York", cfg.ReportingTimeZone)
	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, 90, cfg.EventLogRetentionDays)
	assert.Equal(t, 10*time.Second, cfg.ProviderAPITimeout)

	for _, source := range KnownSources {
		sc, ok := cfg.Source(source)
		require.True(t, ok, source)
		assert.True(t, sc.Enabled)
		assert.Equal(t, DefaultSignatureHeader, sc.SignatureHeader)
	}
	_, ok := cfg.Source("garmin")
	assert.False(t, ok)
}

func TestLoadSourceOverrides(t *testing.T) {
	t.Setenv("WEBHOOK_WHOOP_SECRET", "s3cret")
	t.Setenv("WEBHOOK_WHOOP_TIMESTAMP_HEADER", "x-whoop-timestamp")
	t.Setenv("WEBHOOK_CALENDAR_ENABLED", "false")
	t.Setenv("WEBHOOK_SHORTCUT_AUTH_TOKEN", "tok")
	t.Setenv("PROVIDER_WHOOP_API_URL", "https://api.example.com/v1")
	t.Setenv("PROVIDER_WHOOP_API_TOKEN", "api-tok")

	cfg := Load()

	whoop, _ := cfg.Source("whoop")
	assert.Equal(t, "s3cret", whoop.Secret)
	assert.Equal(t, "x-whoop-timestamp", whoop.TimestampHeader)

	calendar, _ := cfg.Source("calendar")
	assert.False(t, calendar.Enabled)

	shortcut, _ := cfg.Source("shortcut")
	assert.Equal(t, "tok", shortcut.AuthToken)

	assert.Equal(t, "https://api.example.com/v1", cfg.Providers["whoop"].BaseURL)
	assert.Equal(t, "api-tok", cfg.Providers["whoop"].Token)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Load()
		return cfg
	}

	assert.NoError(t, base().Validate())

	cfg := base()
	cfg.Port = "notaport"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.ReportingTimeZone = "Mars/Olympus_Mons"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.DatabaseType = "mongodb"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.DatabaseType = "postgres"
	cfg.PostgresHost = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.JWTSecret = "tooshort"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.RedisAddress = "localhost:6379"
	cfg.RedisDB = "99"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.EventLogRetentionDays = 0
	assert.Error(t, cfg.Validate())
}

func TestPostgresDSN(t *testing.T) {
	cfg := Load()
	cfg.PostgresHost = "db"
	cfg.PostgresPassword = "pw"

	dsn := cfg.PostgresDSN()
	assert.Contains(t, dsn, "host=db")
	assert.Contains(t, dsn, "password=pw")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestInspectionAPIEnabled(t *testing.T) {
	cfg := Load()
	assert.False(t, cfg.InspectionAPIEnabled())

	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	assert.False(t, cfg.InspectionAPIEnabled())

	cfg.AdminPasswordHash = "$2a$10$hash"
	assert.True(t, cfg.InspectionAPIEnabled())
}
