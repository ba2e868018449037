// Package consensusnet verifies factual claims with a pool of specialized
// agents: evidence is gathered from scored sources, verdicts are produced by
// tier-routed model calls, aggregated under trust-weighted consensus, and
// contested results are stress-tested in an adversarial debate.
package consensusnet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/consensusnet/consensusnet/internal/agents"
	"github.com/consensusnet/consensusnet/internal/bus"
	"github.com/consensusnet/consensusnet/internal/claim"
	"github.com/consensusnet/consensusnet/internal/consensus"
	"github.com/consensusnet/consensusnet/internal/debate"
	"github.com/consensusnet/consensusnet/internal/evidence"
	"github.com/consensusnet/consensusnet/internal/model"
	"github.com/consensusnet/consensusnet/internal/persistence"
	"github.com/consensusnet/consensusnet/internal/pool"
	"github.com/consensusnet/consensusnet/internal/registry"
	"github.com/consensusnet/consensusnet/internal/reputation"
	"github.com/consensusnet/consensusnet/pkg/config"
	"github.com/consensusnet/consensusnet/pkg/observability"
)

// Re-exported request/response types, so callers only import the root
// package for the common path.
type (
	Mode    = pool.Mode
	Result  = pool.Result
	Hints   = claim.Hints
	Domain  = claim.Domain
	Urgency = claim.Urgency
	Tier    = model.Tier
)

const (
	ModeSingle      = pool.ModeSingle
	ModeMulti       = pool.ModeMulti
	ModeAdversarial = pool.ModeAdversarial

	TierCheap     = model.TierCheap
	TierReasoning = model.TierReasoning
	TierLocal     = model.TierLocal
)

// Engine is the assembled verification system.
type Engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	bus     *bus.Bus
	reg     *registry.Registry
	rep     *reputation.Store
	creds   *evidence.Credibility
	router  *model.Router
	manager *pool.Manager
	sink    *persistence.Async
}

type engineOptions struct {
	logger   *slog.Logger
	backends map[model.Tier]model.Backend
	sources  []evidence.Source
	sink     persistence.Sink
}

// Option configures the engine at construction time.
type Option func(*engineOptions)

// WithLogger sets the root logger; component loggers derive from it.
func WithLogger(l *slog.Logger) Option {
	return func(o *engineOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithModelBackend installs or overrides the backend for one tier.
func WithModelBackend(tier Tier, b model.Backend) Option {
	return func(o *engineOptions) { o.backends[tier] = b }
}

// WithEvidenceSource adds an evidence source adapter.
func WithEvidenceSource(srcs ...evidence.Source) Option {
	return func(o *engineOptions) { o.sources = append(o.sources, srcs...) }
}

// WithSink overrides the configured persistence backend.
func WithSink(s persistence.Sink) Option {
	return func(o *engineOptions) { o.sink = s }
}

// New assembles an engine from the configuration. The default agent pool is
// one generalist plus the science, news, and tech specialists; custom agents
// can be added with AddAgent.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	observability.InitMetrics()

	o := &engineOptions{
		logger:   slog.Default(),
		backends: make(map[model.Tier]model.Backend),
	}
	for _, opt := range opts {
		opt(o)
	}

	if _, ok := o.backends[model.TierLocal]; !ok {
		o.backends[model.TierLocal] = model.NewLocalBackend()
	}
	if cfg.Models.OpenAIKey != "" {
		if _, ok := o.backends[model.TierCheap]; !ok {
			o.backends[model.TierCheap] = model.NewOpenAIBackend("openai-cheap", model.OpenAIConfig{
				APIKey: cfg.Models.OpenAIKey,
				Model:  cfg.Models.CheapModel,
			})
		}
		if _, ok := o.backends[model.TierReasoning]; !ok {
			o.backends[model.TierReasoning] = model.NewOpenAIBackend("openai-reasoning", model.OpenAIConfig{
				APIKey: cfg.Models.OpenAIKey,
				Model:  cfg.Models.ReasoningModel,
			})
		}
	}

	router := model.NewRouter(model.RouterConfig{
		CheapQualityThreshold:  cfg.Models.CheapQualityThreshold,
		LowConfidenceThreshold: cfg.Models.LowConfidenceThreshold,
		TierRateLimit:          cfg.Models.TierRateLimit,
	}, o.backends, o.logger)

	creds := evidence.NewCredibility(cfg.Evidence.UpdateWeight)
	agg := evidence.NewAggregator(o.sources, creds, evidence.AggregatorConfig{
		SourceTimeout: cfg.Evidence.SourceTimeout,
		TotalTimeout:  cfg.Evidence.TotalTimeout,
		MaxConcurrent: cfg.Evidence.MaxConcurrent,
	}, o.logger)

	msgBus := bus.New(bus.WithLogger(o.logger))
	reg := registry.New()
	rep := reputation.NewStore(reputation.Config{
		Alpha:        cfg.Reputation.Alpha,
		HalfLife:     cfg.Reputation.HalfLife,
		SettledAfter: cfg.Reputation.SettledAfter,
	})

	debater := debate.NewEngine(debate.EngineConfig{
		MaxRounds:     cfg.Debate.MaxRounds,
		MaxChallenges: cfg.Debate.MaxChallenges,
		MinPriority:   cfg.Debate.MinPriority,
		RoleTimeout:   cfg.Debate.RoleTimeout,
	}, debate.NewModelProsecutor(router), debate.NewModelDefender(router), debate.NewModelModerator(router), o.logger)

	var async *persistence.Async
	sink := o.sink
	if sink == nil {
		switch cfg.Persistence.Backend {
		case "memory":
			sink = persistence.NewMemorySink(0)
		case "redis":
			sink = persistence.NewRedisSink(cfg.Persistence.RedisAddr, cfg.Persistence.RedisKey, 0)
		}
	}
	if sink != nil {
		async = persistence.NewAsync(sink, cfg.Persistence.QueueSize, o.logger)
	}

	mgrOpts := []pool.ManagerOption{
		pool.WithDebate(debater),
		pool.WithEvidence(agg),
		pool.WithBus(msgBus),
		pool.WithCredibilityFeedback(creds),
		pool.WithManagerLogger(o.logger),
	}
	if async != nil {
		mgrOpts = append(mgrOpts, pool.WithSink(async))
	}
	manager := pool.NewManager(pool.Config{
		Parallelism:                 cfg.Pool.Parallelism,
		QueueSize:                   cfg.Pool.QueueSize,
		PanelSize:                   cfg.Pool.PanelSize,
		AgentDeadline:               cfg.Pool.AgentDeadline,
		RequestTimeout:              cfg.Pool.RequestTimeout,
		Rule:                        consensus.Rule(cfg.Pool.Rule),
		DebateQualityThreshold:      cfg.Debate.QualityThreshold,
		DebateDisagreementThreshold: cfg.Debate.DisagreementThreshold,
	}, reg, rep, mgrOpts...)

	e := &Engine{
		cfg:     cfg,
		logger:  o.logger,
		bus:     msgBus,
		reg:     reg,
		rep:     rep,
		creds:   creds,
		router:  router,
		manager: manager,
		sink:    async,
	}

	agentCfg := agents.Config{
		ModelConfidenceWeight: cfg.Calibration.ModelWeight,
		ShortageQuality:       cfg.Calibration.ShortageQuality,
	}
	common := []agents.Option{
		agents.WithBus(msgBus),
		agents.WithLogger(o.logger),
		agents.WithConfig(agentCfg),
	}
	defaults := []agents.Verifier{
		agents.NewGeneralist("generalist-1", agg, router, common...),
		agents.NewScience("science-1", agg, router, common...),
		agents.NewNews("news-1", agg, router, common...),
		agents.NewTech("tech-1", agg, router, common...),
	}
	for _, a := range defaults {
		if err := e.AddAgent(a); err != nil {
			return nil, fmt.Errorf("register agent %s: %w", a.ID(), err)
		}
	}
	return e, nil
}

// AddAgent registers an additional verifier with the pool.
func (e *Engine) AddAgent(a agents.Verifier) error { return e.manager.AddAgent(a) }

// RemoveAgent drains and removes a verifier.
func (e *Engine) RemoveAgent(id string) error { return e.manager.RemoveAgent(id) }

// Reputation exposes the reputation store for inspection.
func (e *Engine) Reputation() *reputation.Store { return e.rep }

// Submit verifies one claim. All failures are *Error values from the public
// taxonomy.
func (e *Engine) Submit(ctx context.Context, text string, mode Mode, hints Hints) (*Result, error) {
	res, err := e.manager.Submit(ctx, text, mode, hints)
	if err != nil {
		return nil, wrapError(err)
	}
	return res, nil
}

// Close shuts down the bus and flushes the sink.
func (e *Engine) Close() error {
	e.bus.Close()
	if e.sink != nil {
		return e.sink.Close()
	}
	return nil
}
