package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vision-stage-tracker/internal/domain"
)

func TestNewManager_Defaults(t *testing.T) {
	clearEnvVars(t)

	m, err := NewManager("")
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, domain.StorageDriverSQLite, cfg.Storage.Driver)
	assert.True(t, strings.HasSuffix(cfg.Storage.SQLitePath, filepath.Join(DataDirName, "tracker.db")))
	assert.Equal(t, 5*time.Minute, cfg.Storage.ConnMaxLifetime)
	assert.Equal(t, "info", m.GetLoggingConfig().Level)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 10.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, "vision-stage-tracker", cfg.MCP.ServerName)
	assert.NoError(t, m.Validate())
}

func TestNewManager_ConfigFile(t *testing.T) {
	clearEnvVars(t)

	tmpDir, err := os.MkdirTemp("", "config-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "tracker.yaml")
	content := `
server:
  port: 9191
storage:
  driver: postgres
  postgres_url: postgres://tracker@localhost/tracker?sslmode=disable
logging:
  level: debug
  format: text
rate_limit:
  requests_per_second: 2.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, path, m.ConfigFileUsed())
	assert.Equal(t, 9191, m.GetServerConfig().Port)
	assert.Equal(t, domain.StorageDriverPostgres, m.GetStorageConfig().Driver)
	assert.Equal(t, "postgres://tracker@localhost/tracker?sslmode=disable", cfg.Storage.PostgresURL)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 20, cfg.RateLimit.Burst, "unset keys keep their defaults")
	assert.NoError(t, m.Validate())
}

func TestNewManager_MissingExplicitFile(t *testing.T) {
	clearEnvVars(t)

	_, err := NewManager(filepath.Join(os.TempDir(), "no-such-visiontrack-config.yaml"))

	assert.Error(t, err)
}

func TestNewManager_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	os.Setenv("VISIONTRACK_SERVER_PORT", "9090")
	os.Setenv("VISIONTRACK_STORAGE_SQLITE_PATH", "/tmp/visiontrack-test.db")
	os.Setenv("VISIONTRACK_LOGGING_LEVEL", "warn")
	os.Setenv("VISIONTRACK_RATE_LIMIT_ENABLED", "false")

	defer clearEnvVars(t)

	m, err := NewManager("")
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/visiontrack-test.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestManager_Reload(t *testing.T) {
	clearEnvVars(t)
	defer clearEnvVars(t)

	m, err := NewManager("")
	require.NoError(t, err)
	require.Equal(t, 8080, m.GetServerConfig().Port)

	os.Setenv("VISIONTRACK_SERVER_PORT", "7070")
	require.NoError(t, m.Reload())

	assert.Equal(t, 7070, m.GetServerConfig().Port)
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *domain.Config)
		wantErr string
	}{
		{"defaults are valid", func(cfg *domain.Config) {}, ""},
		{"port zero", func(cfg *domain.Config) { cfg.Server.Port = 0 }, "invalid server port"},
		{"port too high", func(cfg *domain.Config) { cfg.Server.Port = 70000 }, "invalid server port"},
		{"unknown driver", func(cfg *domain.Config) { cfg.Storage.Driver = "mysql" }, "invalid storage driver"},
		{"sqlite without path", func(cfg *domain.Config) { cfg.Storage.SQLitePath = " " }, "sqlite path is required"},
		{
			"postgres without url",
			func(cfg *domain.Config) { cfg.Storage.Driver = domain.StorageDriverPostgres },
			"postgres URL is required",
		},
		{"unknown log level", func(cfg *domain.Config) { cfg.Logging.Level = "loud" }, "invalid log level"},
		{"zero rate", func(cfg *domain.Config) { cfg.RateLimit.RequestsPerSecond = 0 }, "requests_per_second must be positive"},
		{"zero burst", func(cfg *domain.Config) { cfg.RateLimit.Burst = 0 }, "burst must be positive"},
		{
			"zero rate ignored when disabled",
			func(cfg *domain.Config) {
				cfg.RateLimit.Enabled = false
				cfg.RateLimit.RequestsPerSecond = 0
			},
			"",
		},
	}

	clearEnvVars(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager("")
			require.NoError(t, err)

			tt.mutate(m.GetConfig())
			err = m.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestManager_SetLogLevel(t *testing.T) {
	clearEnvVars(t)

	m, err := NewManager("")
	require.NoError(t, err)

	m.SetLogLevel("")
	assert.Equal(t, "info", m.GetLoggingConfig().Level)

	m.SetLogLevel("debug")
	assert.Equal(t, "debug", m.GetLoggingConfig().Level)
}

func TestEnsureParentDir(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "nested", "tracker.db")

	require.NoError(t, EnsureParentDir(path))

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.NoError(t, EnsureParentDir("tracker.db"))
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"VISIONTRACK_SERVER_PORT",
		"VISIONTRACK_STORAGE_DRIVER",
		"VISIONTRACK_STORAGE_SQLITE_PATH",
		"VISIONTRACK_STORAGE_POSTGRES_URL",
		"VISIONTRACK_LOGGING_LEVEL",
		"VISIONTRACK_RATE_LIMIT_ENABLED",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
