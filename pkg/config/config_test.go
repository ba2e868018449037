package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Pool.PanelSize)
	assert.Equal(t, 10*time.Second, cfg.Pool.AgentDeadline)
	assert.Equal(t, 30*time.Second, cfg.Pool.RequestTimeout)
	assert.Equal(t, "weighted_label_confidence", cfg.Pool.Rule)
	assert.Equal(t, 3, cfg.Debate.MaxRounds)
	assert.InDelta(t, 0.1, cfg.Reputation.Alpha, 1e-9)
	assert.Equal(t, 30*24*time.Hour, cfg.Reputation.HalfLife)
	assert.InDelta(t, 0.6, cfg.Calibration.ModelWeight, 1e-9)
	assert.Equal(t, "none", cfg.Persistence.Backend)
}

func TestLoadOverridesAndDefaults(t *testing.T) {
	path := writeConfig(t, `
pool:
  panel_size: 5
  rule: simple_majority
debate:
  max_rounds: 2
persistence:
  backend: memory
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Pool.PanelSize)
	assert.Equal(t, "simple_majority", cfg.Pool.Rule)
	assert.Equal(t, 2, cfg.Debate.MaxRounds)
	assert.Equal(t, "memory", cfg.Persistence.Backend)
	// Untouched sections keep their defaults.
	assert.Equal(t, 4, cfg.Pool.Parallelism)
	assert.Equal(t, 2*time.Second, cfg.Evidence.SourceTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "pool: [not a map"))
	assert.Error(t, err)
}

func TestValidateRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"source timeout over cap", func(c *Config) { c.Evidence.SourceTimeout = 5 * time.Second }, "source_timeout"},
		{"agent deadline over cap", func(c *Config) { c.Pool.AgentDeadline = time.Minute }, "agent_deadline"},
		{"request timeout over cap", func(c *Config) { c.Pool.RequestTimeout = 2 * time.Minute }, "request_timeout"},
		{"unknown rule", func(c *Config) { c.Pool.Rule = "plurality" }, "consensus rule"},
		{"rounds over cap", func(c *Config) { c.Debate.MaxRounds = 4 }, "max_rounds"},
		{"challenges over cap", func(c *Config) { c.Debate.MaxChallenges = 9 }, "max_challenges"},
		{"alpha out of range", func(c *Config) { c.Reputation.Alpha = 1.5 }, "alpha"},
		{"model weight out of range", func(c *Config) { c.Calibration.ModelWeight = -0.2 }, "model_weight"},
		{"redis without addr", func(c *Config) { c.Persistence.Backend = "redis" }, "redis_addr"},
		{"unknown backend", func(c *Config) { c.Persistence.Backend = "s3" }, "backend"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestOpenAIKeyEnvFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	cfg, err := Load(writeConfig(t, "{}"))
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Models.OpenAIKey)
}
