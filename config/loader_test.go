package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/memflow/types"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.ShortTerm.Capacity)
	assert.Equal(t, 30*time.Minute, cfg.ShortTerm.TTL)
	assert.Equal(t, 5*time.Minute, cfg.Consolidation.Interval)
	assert.Equal(t, 0.7, cfg.Consolidation.ImportanceThreshold)
	assert.Equal(t, 0.8, cfg.Consolidation.ConfidenceThreshold)
	assert.Equal(t, 365, cfg.LongTerm.RetentionDays)
	assert.Equal(t, "file", cfg.Storage.Driver)
}

func TestLoader_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memflow.yaml")
	yaml := `
short_term:
  capacity: 100
  ttl: 10m
consolidation:
  importance_threshold: 0.5
storage:
  driver: sqlite
  dsn: file:test.db
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.ShortTerm.Capacity)
	assert.Equal(t, 10*time.Minute, cfg.ShortTerm.TTL)
	assert.Equal(t, 0.5, cfg.Consolidation.ImportanceThreshold)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	// 未覆盖的字段保持默认值
	assert.Equal(t, 365, cfg.LongTerm.RetentionDays)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("MEMFLOW_SHORT_TERM_CAPACITY", "7")
	t.Setenv("MEMFLOW_SHORT_TERM_TTL", "90s")
	t.Setenv("MEMFLOW_CONSOLIDATION_IMPORTANCE_THRESHOLD", "0.9")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.ShortTerm.Capacity)
	assert.Equal(t, 90*time.Second, cfg.ShortTerm.TTL)
	assert.Equal(t, 0.9, cfg.Consolidation.ImportanceThreshold)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/memflow.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.ShortTerm.Capacity)
}

func TestConfig_ValidateRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative ttl", func(c *Config) { c.ShortTerm.TTL = -time.Minute }},
		{"zero capacity", func(c *Config) { c.ShortTerm.Capacity = 0 }},
		{"threshold above one", func(c *Config) { c.Consolidation.ImportanceThreshold = 1.5 }},
		{"negative threshold", func(c *Config) { c.Consolidation.ConfidenceThreshold = -0.1 }},
		{"zero interval", func(c *Config) { c.Consolidation.Interval = 0 }},
		{"bad driver", func(c *Config) { c.Storage.Driver = "etcd" }},
		{"zero retention", func(c *Config) { c.LongTerm.RetentionDays = 0 }},
		{"negative token budget", func(c *Config) { c.Context.TokenBudget = -1 }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, types.ErrConfigurationInvalid, types.GetErrorCode(err))
		})
	}
}

func TestConfig_ValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoader_RejectsInvalidYAMLValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("short_term:\n  ttl: -5m\n"), 0o644))

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
	assert.Equal(t, types.ErrConfigurationInvalid, types.GetErrorCode(err))
}
