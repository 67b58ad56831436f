package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/shuffle-linkage/internal/clustering"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(envCfgPath, "")

	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Addr)
	assert.Equal(t, 10, cfg.K)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 5.0, cfg.Eps)
	assert.Equal(t, 2, cfg.MinPts)
	assert.Equal(t, "intersection", cfg.Domain)
	assert.Equal(t, "noise_counts", cfg.NoisePolicy)
	assert.False(t, cfg.Normalize)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkeval.yaml")
	yamlContent := `
addr: ":9191"
strategy: dbscan
eps: 2.5
domain: union
k_min: 3
k_max: 7
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))
	t.Setenv(envCfgPath, path)
	t.Setenv("LINKEVAL_MIN_PTS", "4")
	t.Setenv("LINKEVAL_ADDR", ":7070")
	t.Setenv("LINKEVAL_NORMALIZE", "true")

	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Addr, "env overrides file")
	assert.Equal(t, "dbscan", cfg.Strategy)
	assert.Equal(t, 2.5, cfg.Eps)
	assert.Equal(t, 4, cfg.MinPts)
	assert.Equal(t, "union", cfg.Domain)
	assert.Equal(t, 3, cfg.KMin)
	assert.Equal(t, 7, cfg.KMax)
	assert.True(t, cfg.Normalize)

	p := cfg.ClusterParams()
	assert.Equal(t, clustering.StrategyDBSCAN, p.Strategy)
	assert.Equal(t, 4, p.MinPts)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, errors.Is(err, ErrLoadConfig))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad strategy", func(c *Config) { c.Strategy = "spectral" }},
		{"zero k", func(c *Config) { c.K = 0 }},
		{"inverted k range", func(c *Config) { c.KMin, c.KMax = 8, 3 }},
		{"non-positive eps", func(c *Config) { c.Eps = 0 }},
		{"unset domain", func(c *Config) { c.Domain = "" }},
		{"unset noise policy", func(c *Config) { c.NoisePolicy = "" }},
		{"bad ground truth", func(c *Config) { c.GroundTruth = "oracle" }},
		{"bad histogram", func(c *Config) { c.HistogramMode = "weekly" }},
		{"rate without burst", func(c *Config) { c.RateLimit, c.RateBurst = 1, 0 }},
		{"zero concurrency", func(c *Config) { c.SweepConcurrency = 0 }},
	}
	require.NoError(t, New().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
		})
	}
}
