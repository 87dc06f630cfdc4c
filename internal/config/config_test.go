package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/outpost/pkg/schema"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outpost.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// --- loading ---

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Contains(t, cfg.DBPath, "outpost.db")
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
	assert.True(t, cfg.ValidateOutput)
	assert.False(t, cfg.MaskOnStore)
	assert.Empty(t, cfg.CatalogDir)
	assert.Empty(t, cfg.Retention.Schedule)
	assert.False(t, cfg.Seal.Enabled())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
db_path: /var/lib/outpost/outpost.db
catalog_dir: /etc/outpost/catalog
rules_path: /etc/outpost/rules.yaml
log_level: debug
pool_size: 4
validate_output: false
mask_on_store: true
retention:
  schedule: "0 3 * * *"
  max_age: "72h"
  statuses: [succeeded, failed]
seal:
  passphrase: hunter2
  salt: outpost-salt
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/outpost/outpost.db", cfg.DBPath)
	assert.Equal(t, "/etc/outpost/catalog", cfg.CatalogDir)
	assert.Equal(t, "/etc/outpost/rules.yaml", cfg.RulesPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.False(t, cfg.ValidateOutput)
	assert.True(t, cfg.MaskOnStore)
	assert.Equal(t, "0 3 * * *", cfg.Retention.Schedule)
	assert.Equal(t, 72*time.Hour, cfg.Retention.MaxAge())
	assert.Equal(t, []string{"succeeded", "failed"}, cfg.Retention.Statuses)
	assert.True(t, cfg.Seal.Enabled())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("OUTPOST_POOL_SIZE", "32")
	t.Setenv("OUTPOST_LOG_LEVEL", "error")
	t.Setenv("OUTPOST_MASK_ON_STORE", "true")
	t.Setenv("OUTPOST_RETENTION_STATUSES", "succeeded, timeout")

	cfg, err := Load(writeConfig(t, `
pool_size: 4
log_level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.PoolSize)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.True(t, cfg.MaskOnStore)
	assert.Equal(t, []string{"succeeded", "timeout"}, cfg.Retention.Statuses)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "pool_size: {nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

// --- validation ---

func TestLoad_InvalidLogLevel(t *testing.T) {
	_, err := Load(writeConfig(t, "log_level: verbose"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LogLevel")
}

func TestLoad_InvalidPoolSize(t *testing.T) {
	_, err := Load(writeConfig(t, "pool_size: 0"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PoolSize")
}

func TestLoad_InvalidRetentionStatus(t *testing.T) {
	_, err := Load(writeConfig(t, `
retention:
  statuses: [running]
`))
	require.Error(t, err)
}

func TestLoad_BadRetentionMaxAge(t *testing.T) {
	_, err := Load(writeConfig(t, `
retention:
  max_age: "30 days"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retention.max_age")
}

func TestLoad_SealRequiresSalt(t *testing.T) {
	_, err := Load(writeConfig(t, `
seal:
  passphrase: hunter2
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seal.salt")
}

// --- accessors ---

func TestRetention_MaxAge(t *testing.T) {
	r := RetentionConfig{}
	assert.Equal(t, DefaultMaxAge, r.MaxAge())

	r.RawMaxAge = "72h"
	assert.Equal(t, 72*time.Hour, r.MaxAge())
}

func TestRetention_StatusList(t *testing.T) {
	r := RetentionConfig{Statuses: []string{"succeeded", "timeout"}}
	assert.Equal(t, []schema.ExecutionStatus{schema.StatusSucceeded, schema.StatusTimeout}, r.StatusList())

	assert.Nil(t, (&RetentionConfig{}).StatusList())
}

func TestConfig_Level(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"error", "ERROR"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		cfg := Config{LogLevel: tt.in}
		assert.Equal(t, tt.want, cfg.Level().String(), "level %q", tt.in)
	}
}
