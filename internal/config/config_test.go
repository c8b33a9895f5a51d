package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

database:
  url: "postgres://localhost/journeys?sslmode=disable"
  max_open_conns: 10
  max_idle_conns: 2
  conn_max_life_mins: 15

redis:
  addr: "localhost:6380"
  db: 3
  enabled: true

analytics:
  cache_ttl_seconds: 120
  lock_ttl_seconds: 45

events:
  enabled: true
  channel: "journeys:changes"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Test server config
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Test database config
	assert.Equal(t, "postgres://localhost/journeys?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 2, cfg.Database.MaxIdleConns)
	assert.Equal(t, 15, cfg.Database.ConnMaxLifeMins)

	// Test redis config
	assert.Equal(t, "localhost:6380", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.True(t, cfg.Redis.Enabled)

	// Test analytics config
	assert.Equal(t, 120, cfg.Analytics.CacheTTLSeconds)
	assert.Equal(t, 45, cfg.Analytics.LockTTLSeconds)

	// Test events config
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "journeys:changes", cfg.Events.Channel)
}

func TestLoadDefaults(t *testing.T) {
	// Create a minimal config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  url: "postgres://localhost/journeys"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Verify defaults are applied
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns)
	assert.Equal(t, 30, cfg.Database.ConnMaxLifeMins)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 60, cfg.Analytics.CacheTTLSeconds)
	assert.Equal(t, 30, cfg.Analytics.LockTTLSeconds)
	assert.Equal(t, "journey:stage-changed", cfg.Events.Channel)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoadFromEnv(t *testing.T) {
	// Create a minimal config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  url: "postgres://file-host/journeys"

redis:
  addr: "file-host:6379"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	// Set environment variables
	os.Setenv("DATABASE_URL", "postgres://env-host/journeys")
	os.Setenv("REDIS_ADDR", "env-host:6379")
	defer func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("REDIS_ADDR")
	}()

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	// Environment variables should override file values
	assert.Equal(t, "postgres://env-host/journeys", cfg.Database.URL)
	assert.Equal(t, "env-host:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	db := DatabaseConfig{ConnMaxLifeMins: 15}
	assert.Equal(t, 15*time.Minute, db.ConnMaxLifetime())

	a := AnalyticsConfig{CacheTTLSeconds: 120, LockTTLSeconds: 45}
	assert.Equal(t, 120*time.Second, a.CacheTTL())
	assert.Equal(t, 45*time.Second, a.LockTTL())
}
