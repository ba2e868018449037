// Package config loads and validates the YAML configuration. Components
// never read this struct directly; the engine passes each one its own narrow
// config.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Models      ModelsConfig      `yaml:"models"`
	Evidence    EvidenceConfig    `yaml:"evidence"`
	Pool        PoolConfig        `yaml:"pool"`
	Debate      DebateConfig      `yaml:"debate"`
	Reputation  ReputationConfig  `yaml:"reputation"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Registry    RegistryConfig    `yaml:"registry"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ModelsConfig configures the tier router and backends.
type ModelsConfig struct {
	// OpenAIKey falls back to the OPENAI_API_KEY environment variable.
	OpenAIKey string `yaml:"openai_key"`
	// CheapModel is the cheap-tier model name.
	CheapModel string `yaml:"cheap_model"`
	// ReasoningModel is the reasoning-tier model name.
	ReasoningModel string `yaml:"reasoning_model"`
	// CheapQualityThreshold is the minimum evidence quality for the cheap tier.
	CheapQualityThreshold float64 `yaml:"cheap_quality_threshold"`
	// LowConfidenceThreshold triggers the one-shot reasoning escalation.
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold"`
	// TierRateLimit caps model calls per second per tier. Zero disables.
	TierRateLimit float64 `yaml:"tier_rate_limit"`
}

// EvidenceConfig bounds gathering.
type EvidenceConfig struct {
	SourceTimeout time.Duration `yaml:"source_timeout"`
	TotalTimeout  time.Duration `yaml:"total_timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	// UpdateWeight is the credibility adaptation rate beta.
	UpdateWeight float64 `yaml:"update_weight"`
}

// PoolConfig bounds the verification pool.
type PoolConfig struct {
	Parallelism    int           `yaml:"parallelism"`
	QueueSize      int           `yaml:"queue_size"`
	PanelSize      int           `yaml:"panel_size"`
	AgentDeadline  time.Duration `yaml:"agent_deadline"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// Rule names the consensus rule: simple_majority, confidence_weighted,
	// reputation_weighted, or weighted_label_confidence.
	Rule string `yaml:"rule"`
}

// DebateConfig bounds the adversarial protocol.
type DebateConfig struct {
	MaxRounds     int           `yaml:"max_rounds"`
	MaxChallenges int           `yaml:"max_challenges"`
	MinPriority   float64       `yaml:"min_priority"`
	RoleTimeout   time.Duration `yaml:"role_timeout"`
	// QualityThreshold: adversarial consensus below it goes to debate.
	QualityThreshold float64 `yaml:"quality_threshold"`
	// DisagreementThreshold: more disagreement than this goes to debate.
	DisagreementThreshold float64 `yaml:"disagreement_threshold"`
}

// ReputationConfig tunes the EWMA store.
type ReputationConfig struct {
	Alpha        float64       `yaml:"alpha"`
	HalfLife     time.Duration `yaml:"half_life"`
	SettledAfter int           `yaml:"settled_after"`
}

// CalibrationConfig tunes verdict confidence calibration.
type CalibrationConfig struct {
	// ModelWeight is the share of model confidence; evidence quality gets
	// the remainder.
	ModelWeight float64 `yaml:"model_weight"`
	// ShortageQuality is the evidence quality below which agents answer
	// UNCERTAIN without a model call.
	ShortageQuality float64 `yaml:"shortage_quality"`
}

// RegistryConfig tunes agent liveness.
type RegistryConfig struct {
	// MaxMissedHeartbeats before an agent is swept. Default 3.
	MaxMissedHeartbeats int `yaml:"max_missed_heartbeats"`
	// HeartbeatInterval between sweeps. Default 30s.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// PersistenceConfig selects the result sink.
type PersistenceConfig struct {
	// Backend is "none", "memory", or "redis".
	Backend   string `yaml:"backend"`
	RedisAddr string `yaml:"redis_addr"`
	RedisKey  string `yaml:"redis_key"`
	QueueSize int    `yaml:"queue_size"`
}

// MetricsConfig configures the serve endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file, applies defaults and environment fallbacks, and
// validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Models.OpenAIKey == "" {
		c.Models.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Models.CheapModel == "" {
		c.Models.CheapModel = "gpt-4o-mini"
	}
	if c.Models.ReasoningModel == "" {
		c.Models.ReasoningModel = "gpt-4o"
	}
	if c.Models.CheapQualityThreshold == 0 {
		c.Models.CheapQualityThreshold = 0.8
	}
	if c.Models.LowConfidenceThreshold == 0 {
		c.Models.LowConfidenceThreshold = 0.55
	}

	if c.Evidence.SourceTimeout == 0 {
		c.Evidence.SourceTimeout = 2 * time.Second
	}
	if c.Evidence.TotalTimeout == 0 {
		c.Evidence.TotalTimeout = 8 * time.Second
	}
	if c.Evidence.MaxConcurrent == 0 {
		c.Evidence.MaxConcurrent = 4
	}
	if c.Evidence.UpdateWeight == 0 {
		c.Evidence.UpdateWeight = 0.3
	}

	if c.Pool.Parallelism == 0 {
		c.Pool.Parallelism = 4
	}
	if c.Pool.QueueSize == 0 {
		c.Pool.QueueSize = 32
	}
	if c.Pool.PanelSize == 0 {
		c.Pool.PanelSize = 3
	}
	if c.Pool.AgentDeadline == 0 {
		c.Pool.AgentDeadline = 10 * time.Second
	}
	if c.Pool.RequestTimeout == 0 {
		c.Pool.RequestTimeout = 30 * time.Second
	}
	if c.Pool.Rule == "" {
		c.Pool.Rule = "weighted_label_confidence"
	}

	if c.Debate.MaxRounds == 0 {
		c.Debate.MaxRounds = 3
	}
	if c.Debate.MaxChallenges == 0 {
		c.Debate.MaxChallenges = 5
	}
	if c.Debate.MinPriority == 0 {
		c.Debate.MinPriority = 0.3
	}
	if c.Debate.RoleTimeout == 0 {
		c.Debate.RoleTimeout = 10 * time.Second
	}
	if c.Debate.QualityThreshold == 0 {
		c.Debate.QualityThreshold = 0.7
	}
	if c.Debate.DisagreementThreshold == 0 {
		c.Debate.DisagreementThreshold = 0.3
	}

	if c.Reputation.Alpha == 0 {
		c.Reputation.Alpha = 0.1
	}
	if c.Reputation.HalfLife == 0 {
		c.Reputation.HalfLife = 30 * 24 * time.Hour
	}
	if c.Reputation.SettledAfter == 0 {
		c.Reputation.SettledAfter = 10
	}

	if c.Calibration.ModelWeight == 0 {
		c.Calibration.ModelWeight = 0.6
	}
	if c.Calibration.ShortageQuality == 0 {
		c.Calibration.ShortageQuality = 0.1
	}

	if c.Registry.MaxMissedHeartbeats == 0 {
		c.Registry.MaxMissedHeartbeats = 3
	}
	if c.Registry.HeartbeatInterval == 0 {
		c.Registry.HeartbeatInterval = 30 * time.Second
	}

	if c.Persistence.Backend == "" {
		c.Persistence.Backend = "none"
	}
	if c.Persistence.QueueSize == 0 {
		c.Persistence.QueueSize = 128
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// Validate checks every tunable against its allowed range.
func (c *Config) Validate() error {
	inUnit := func(name string, v float64) error {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0,1], got %v", name, v)
		}
		return nil
	}
	for name, v := range map[string]float64{
		"models.cheap_quality_threshold":  c.Models.CheapQualityThreshold,
		"models.low_confidence_threshold": c.Models.LowConfidenceThreshold,
		"evidence.update_weight":          c.Evidence.UpdateWeight,
		"debate.min_priority":             c.Debate.MinPriority,
		"debate.quality_threshold":        c.Debate.QualityThreshold,
		"debate.disagreement_threshold":   c.Debate.DisagreementThreshold,
		"reputation.alpha":                c.Reputation.Alpha,
		"calibration.model_weight":        c.Calibration.ModelWeight,
		"calibration.shortage_quality":    c.Calibration.ShortageQuality,
	} {
		if err := inUnit(name, v); err != nil {
			return err
		}
	}

	if c.Evidence.SourceTimeout <= 0 || c.Evidence.SourceTimeout > 2*time.Second {
		return fmt.Errorf("evidence.source_timeout must be in (0, 2s], got %v", c.Evidence.SourceTimeout)
	}
	if c.Pool.AgentDeadline <= 0 || c.Pool.AgentDeadline > 10*time.Second {
		return fmt.Errorf("pool.agent_deadline must be in (0, 10s], got %v", c.Pool.AgentDeadline)
	}
	if c.Pool.RequestTimeout < 1*time.Second || c.Pool.RequestTimeout > 60*time.Second {
		return fmt.Errorf("pool.request_timeout must be in [1s, 60s], got %v", c.Pool.RequestTimeout)
	}
	if c.Pool.Parallelism < 1 {
		return fmt.Errorf("pool.parallelism must be at least 1, got %d", c.Pool.Parallelism)
	}
	if c.Pool.PanelSize < 1 {
		return fmt.Errorf("pool.panel_size must be at least 1, got %d", c.Pool.PanelSize)
	}
	switch c.Pool.Rule {
	case "simple_majority", "confidence_weighted", "reputation_weighted", "weighted_label_confidence":
	default:
		return fmt.Errorf("pool.rule %q is not a known consensus rule", c.Pool.Rule)
	}

	if c.Debate.MaxRounds < 1 || c.Debate.MaxRounds > 3 {
		return fmt.Errorf("debate.max_rounds must be in [1,3], got %d", c.Debate.MaxRounds)
	}
	if c.Debate.MaxChallenges < 1 || c.Debate.MaxChallenges > 5 {
		return fmt.Errorf("debate.max_challenges must be in [1,5], got %d", c.Debate.MaxChallenges)
	}
	if c.Reputation.HalfLife <= 0 {
		return fmt.Errorf("reputation.half_life must be positive, got %v", c.Reputation.HalfLife)
	}

	switch c.Persistence.Backend {
	case "none", "memory":
	case "redis":
		if c.Persistence.RedisAddr == "" {
			return fmt.Errorf("persistence.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("persistence.backend %q is not one of none, memory, redis", c.Persistence.Backend)
	}
	return nil
}
