package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/adlift/internal/config"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "adlift.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "./adlift.db", cfg.DBPath)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
database:
  path: /var/lib/adlift.db
server:
  port: 9000
  token: secret
cache:
  redis_url: redis://localhost:6379/2
  ttl_seconds: 0
monitor:
  interval_seconds: 60
  concurrency: 8
log:
  level: DEBUG
  format: json
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/adlift.db", cfg.DBPath)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, "secret", cfg.Token)
	assert.Equal(t, "redis://localhost:6379/2", cfg.RedisURL)
	assert.Zero(t, cfg.CacheTTL)
	assert.Equal(t, time.Minute, cfg.MonitorInterval)
	assert.Equal(t, 8, cfg.MonitorConcurrency)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "server:\n  port: 9000\n")
	t.Setenv("ADLIFT_PORT", "7070")
	t.Setenv("ADLIFT_DB_PATH", "/tmp/env.db")
	t.Setenv("ADLIFT_CACHE_TTL_SECONDS", "90")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.HTTPPort)
	assert.Equal(t, "/tmp/env.db", cfg.DBPath)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{"bad yaml", "server: [unclosed"},
		{"port out of range", "server:\n  port: 70000\n"},
		{"unknown log level", "log:\n  level: loud\n"},
		{"unknown log format", "log:\n  format: xml\n"},
		{"too many monitor workers", "monitor:\n  concurrency: 500\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeFile(t, tt.file))
			assert.Error(t, err)
		})
	}
}

func TestLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "test_id", 3)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"test_id":3`)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ADLIFT_TEST_DOTENV=loaded\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(wd)
		os.Unsetenv("ADLIFT_TEST_DOTENV")
	})

	require.NoError(t, config.LoadDotEnv())
	assert.Equal(t, "loaded", os.Getenv("ADLIFT_TEST_DOTENV"))
}
