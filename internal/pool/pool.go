// Package pool is the verification pool manager: it admits requests under a
// bounded queue, assembles agent panels from the registry, fans verification
// out under per-agent deadlines, folds the verdicts through consensus,
// escalates contested results to debate, and feeds the outcome back into
// reputation and source credibility.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/consensusnet/consensusnet/internal/agents"
	"github.com/consensusnet/consensusnet/internal/bus"
	"github.com/consensusnet/consensusnet/internal/claim"
	"github.com/consensusnet/consensusnet/internal/consensus"
	"github.com/consensusnet/consensusnet/internal/debate"
	"github.com/consensusnet/consensusnet/internal/evidence"
	"github.com/consensusnet/consensusnet/internal/persistence"
	"github.com/consensusnet/consensusnet/internal/registry"
	"github.com/consensusnet/consensusnet/internal/reputation"
	"github.com/consensusnet/consensusnet/internal/verdict"
	"github.com/consensusnet/consensusnet/pkg/observability"
)

// Mode selects the verification strategy for one request.
type Mode string

const (
	// ModeSingle routes to the best-ranked capable agent.
	ModeSingle Mode = "single"
	// ModeMulti runs an agent panel and aggregates by consensus.
	ModeMulti Mode = "multi"
	// ModeAdversarial is multi plus a debate on contested outcomes.
	ModeAdversarial Mode = "adversarial"
)

// Valid reports whether m names a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeSingle, ModeMulti, ModeAdversarial:
		return true
	}
	return false
}

var (
	// ErrOverloaded is returned when the admission queue is full.
	ErrOverloaded = errors.New("verification pool overloaded")
	// ErrNoCapableAgent is returned when no registered agent matches.
	ErrNoCapableAgent = errors.New("no capable agent for claim")
	// ErrIncomplete is returned when fewer than half the panel contributed.
	ErrIncomplete = errors.New("too few agents contributed a verdict")
	// ErrBadMode is returned for an unrecognized mode.
	ErrBadMode = errors.New("unrecognized verification mode")
)

// Config tunes the pool. Zero values take the defaults.
type Config struct {
	// Parallelism bounds concurrently running requests. Default 4.
	Parallelism int
	// QueueSize bounds admitted-but-waiting requests. Default 32.
	QueueSize int
	// PanelSize is the multi-mode panel size K. Default 3.
	PanelSize int
	// AgentDeadline caps each agent's verification. Default 10s.
	AgentDeadline time.Duration
	// RequestTimeout caps a whole request. Default 30s; high-urgency
	// requests get half of it.
	RequestTimeout time.Duration
	// Rule is the consensus rule. Default weighted_label_confidence.
	Rule consensus.Rule
	// DebateQualityThreshold: adversarial requests below it debate. Default 0.7.
	DebateQualityThreshold float64
	// DebateDisagreementThreshold: adversarial requests with more
	// disagreement than this debate. Default 0.3.
	DebateDisagreementThreshold float64
	// StrongConsensusConfidence gates the accuracy penalty for outliers.
	// Default 0.75.
	StrongConsensusConfidence float64
}

func (c Config) withDefaults() Config {
	if c.Parallelism <= 0 {
		c.Parallelism = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 32
	}
	if c.PanelSize <= 0 {
		c.PanelSize = 3
	}
	if c.AgentDeadline <= 0 || c.AgentDeadline > 10*time.Second {
		c.AgentDeadline = 10 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if !c.Rule.Valid() {
		c.Rule = consensus.RuleWeightedLabelConfidence
	}
	if c.DebateQualityThreshold <= 0 {
		c.DebateQualityThreshold = 0.7
	}
	if c.DebateDisagreementThreshold <= 0 {
		c.DebateDisagreementThreshold = 0.3
	}
	if c.StrongConsensusConfidence <= 0 {
		c.StrongConsensusConfidence = 0.75
	}
	return c
}

// Result is the outcome of one verification request.
type Result struct {
	RequestID  string
	Claim      *claim.Claim
	Label      verdict.Label
	Confidence float64
	Mode       Mode
	Verdicts   []*verdict.Verdict
	Consensus  *consensus.Result
	Debate     *debate.Outcome
	// Partial is set when some panel agents missed their deadline but at
	// least half contributed.
	Partial bool
	// Degraded is set when the result rests on fallback paths: every
	// contributing verdict was degraded, or the debate's moderator failed.
	Degraded bool
	Elapsed  time.Duration
}

// Manager owns the agent pool and runs requests end to end.
type Manager struct {
	cfg    Config
	reg    *registry.Registry
	rep    *reputation.Store
	logger *slog.Logger

	// optional collaborators
	debater *debate.Engine
	agg     *evidence.Aggregator
	creds   *evidence.Credibility
	sink    *persistence.Async
	msgBus  *bus.Bus

	sem *semaphore.Weighted

	mu       sync.Mutex
	agents   map[string]agents.Verifier
	admitted int
}

// ManagerOption configures optional collaborators.
type ManagerOption func(*Manager)

// WithDebate enables adversarial escalation.
func WithDebate(e *debate.Engine) ManagerOption {
	return func(m *Manager) { m.debater = e }
}

// WithEvidence gives the debate a fresh evidence bundle to argue over
// instead of running on the verdict text alone.
func WithEvidence(a *evidence.Aggregator) ManagerOption {
	return func(m *Manager) { m.agg = a }
}

// WithBus broadcasts every debate exchange as challenge and response
// messages so observers can follow the transcript live.
func WithBus(mb *bus.Bus) ManagerOption {
	return func(m *Manager) { m.msgBus = mb }
}

// WithCredibilityFeedback routes consensus outcomes back into source
// credibility.
func WithCredibilityFeedback(c *evidence.Credibility) ManagerOption {
	return func(m *Manager) { m.creds = c }
}

// WithSink persists results fire-and-forget.
func WithSink(s *persistence.Async) ManagerOption {
	return func(m *Manager) { m.sink = s }
}

// WithManagerLogger sets the pool logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates an empty pool over the registry and reputation store.
func NewManager(cfg Config, reg *registry.Registry, rep *reputation.Store, opts ...ManagerOption) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:    cfg,
		reg:    reg,
		rep:    rep,
		logger: slog.Default(),
		sem:    semaphore.NewWeighted(int64(cfg.Parallelism)),
		agents: make(map[string]agents.Verifier),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "pool")
	return m
}

// AddAgent registers a verifier with the pool and the registry.
func (m *Manager) AddAgent(v agents.Verifier) error {
	if err := m.reg.Register(v.Profile()); err != nil {
		return err
	}
	m.mu.Lock()
	m.agents[v.ID()] = v
	m.mu.Unlock()
	return nil
}

// RemoveAgent drains and deregisters a verifier. In-flight work finishes.
func (m *Manager) RemoveAgent(agentID string) error {
	if err := m.reg.SetDraining(agentID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.agents, agentID)
	m.mu.Unlock()
	return m.reg.Deregister(agentID)
}

func (m *Manager) agent(id string) (agents.Verifier, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.agents[id]
	return v, ok
}

// Submit runs one verification request. Admission is bounded: requests
// beyond the queue capacity fail fast with ErrOverloaded instead of piling
// up latency.
func (m *Manager) Submit(ctx context.Context, text string, mode Mode, hints claim.Hints) (*Result, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrBadMode, mode)
	}
	c, err := claim.New(text, hints)
	if err != nil {
		return nil, err
	}

	if !m.admit() {
		observability.RequestsTotal.WithLabelValues(string(mode), "overloaded").Inc()
		return nil, ErrOverloaded
	}
	defer m.release()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer m.sem.Release(1)

	timeout := m.cfg.RequestTimeout
	if mode == ModeAdversarial {
		// A debate can add up to MaxRounds of model exchanges on top of the
		// panel itself.
		timeout *= 2
	}
	if hints.Urgency == claim.UrgencyHigh {
		timeout /= 2
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "pool.Submit")
	defer span.End()

	start := time.Now()
	res, err := m.run(ctx, c, mode)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.RequestsTotal.WithLabelValues(string(mode), outcome).Inc()
	observability.RequestDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
	if err != nil {
		return nil, err
	}

	res.Elapsed = elapsed
	m.persist(res)
	return res, nil
}

func (m *Manager) admit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.admitted >= m.cfg.QueueSize+m.cfg.Parallelism {
		return false
	}
	m.admitted++
	return true
}

func (m *Manager) release() {
	m.mu.Lock()
	m.admitted--
	m.mu.Unlock()
}

func (m *Manager) run(ctx context.Context, c *claim.Claim, mode Mode) (*Result, error) {
	ranked := m.reg.Query([]registry.Capability{registry.CapabilityVerify}, c.Domain, m.rep.Trust)
	if len(ranked) == 0 {
		return nil, ErrNoCapableAgent
	}

	res := &Result{
		RequestID: uuid.New().String(),
		Claim:     c,
		Mode:      mode,
	}

	if mode == ModeSingle {
		return m.runSingle(ctx, c, ranked[0], res)
	}
	return m.runPanel(ctx, c, ranked, res)
}

func (m *Manager) runSingle(ctx context.Context, c *claim.Claim, top registry.Ranked, res *Result) (*Result, error) {
	v, err := m.verifyOne(ctx, c, top.Profile.AgentID)
	if err != nil {
		return nil, err
	}
	if v.Cancelled {
		return nil, fmt.Errorf("%w: agent %s timed out", ErrIncomplete, top.Profile.AgentID)
	}
	res.Verdicts = []*verdict.Verdict{v}
	res.Label = v.Label
	res.Confidence = v.Confidence
	res.Degraded = v.Degraded
	return res, nil
}

func (m *Manager) runPanel(ctx context.Context, c *claim.Claim, ranked []registry.Ranked, res *Result) (*Result, error) {
	panel := m.pickPanel(ranked)

	verdicts := make([]*verdict.Verdict, len(panel))
	g, gctx := errgroup.WithContext(ctx)
	for i, agentID := range panel {
		i, agentID := i, agentID
		g.Go(func() error {
			v, err := m.verifyOne(gctx, c, agentID)
			if err != nil {
				m.logger.Warn("panel agent failed",
					slog.String("agent", agentID), slog.String("error", err.Error()))
				return nil
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var inputs []consensus.Input
	contributed := 0
	allDegraded := true
	for _, v := range verdicts {
		if v == nil {
			continue
		}
		res.Verdicts = append(res.Verdicts, v)
		if v.Cancelled {
			continue
		}
		contributed++
		allDegraded = allDegraded && v.Degraded
		inputs = append(inputs, consensus.Input{
			Verdict: v,
			Weight:  m.rep.Trust(v.AgentID, c.Domain),
		})
	}

	quorum := int(math.Ceil(float64(len(panel)) / 2))
	if contributed < quorum {
		return nil, fmt.Errorf("%w: %d of %d", ErrIncomplete, contributed, len(panel))
	}
	res.Partial = contributed < len(panel)

	agg, err := consensus.Aggregate(m.cfg.Rule, inputs)
	if err != nil {
		return nil, fmt.Errorf("aggregate verdicts: %w", err)
	}
	res.Consensus = agg
	res.Label = agg.Label
	res.Confidence = agg.Confidence
	res.Degraded = allDegraded

	if res.Mode == ModeAdversarial && m.shouldDebate(agg) && m.debater != nil {
		m.runDebate(ctx, c, res, agg)
	}

	m.feedback(c, res)
	return res, nil
}

// pickPanel takes the K best-ranked agents, then makes sure both a
// generalist and a specialist sit on the panel when the pool has them.
func (m *Manager) pickPanel(ranked []registry.Ranked) []string {
	k := m.cfg.PanelSize
	if k > len(ranked) {
		k = len(ranked)
	}
	panel := make([]registry.Ranked, k)
	copy(panel, ranked[:k])

	ensure := func(want func(registry.Profile) bool) {
		for _, p := range panel {
			if want(p.Profile) {
				return
			}
		}
		for _, cand := range ranked[k:] {
			if want(cand.Profile) {
				// Displace the lowest-ranked panelist.
				panel[k-1] = cand
				return
			}
		}
	}
	if k > 1 {
		ensure(func(p registry.Profile) bool { return hasCapability(p, registry.CapabilityGeneralist) })
		ensure(func(p registry.Profile) bool {
			return !hasCapability(p, registry.CapabilityGeneralist)
		})
	}

	out := make([]string, len(panel))
	for i, p := range panel {
		out[i] = p.Profile.AgentID
	}
	return out
}

func hasCapability(p registry.Profile, c registry.Capability) bool {
	for _, have := range p.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

func (m *Manager) verifyOne(ctx context.Context, c *claim.Claim, agentID string) (*verdict.Verdict, error) {
	v, ok := m.agent(agentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s not in pool", ErrNoCapableAgent, agentID)
	}
	if err := m.reg.Acquire(agentID); err != nil {
		return nil, err
	}
	defer m.reg.Release(agentID)

	actx, cancel := context.WithTimeout(ctx, m.cfg.AgentDeadline)
	defer cancel()
	out, err := v.Verify(actx, c)
	if err == nil {
		// A completed verification doubles as a liveness signal.
		_ = m.reg.Heartbeat(agentID)
	}
	return out, err
}

// shouldDebate flags contested consensus: low quality or high disagreement.
func (m *Manager) shouldDebate(agg *consensus.Result) bool {
	return agg.Quality < m.cfg.DebateQualityThreshold ||
		(1-agg.Agreement) > m.cfg.DebateDisagreementThreshold
}

// runDebate escalates the leading verdict. A degraded or failed debate
// leaves the consensus result standing.
func (m *Manager) runDebate(ctx context.Context, c *claim.Claim, res *Result, agg *consensus.Result) {
	lead := leadingVerdict(res.Verdicts, agg.Label)
	if lead == nil {
		return
	}
	out, err := m.debater.Run(ctx, c, lead, m.debateBundle(ctx, c))
	if err != nil {
		m.logger.Warn("debate failed, keeping consensus result",
			slog.String("claim", c.ID), slog.String("error", err.Error()))
		return
	}
	res.Debate = out
	m.broadcastDebate(out)
	if out.Degraded {
		res.Degraded = true
		return
	}
	res.Label = out.Refined.Label
	res.Confidence = out.Refined.Confidence
	m.applyDebateReputation(c, out)
}

// debateBundle regathers evidence for the debate so the prosecutor attacks
// the material the verdict rests on, not just its summary.
func (m *Manager) debateBundle(ctx context.Context, c *claim.Claim) *evidence.Bundle {
	if m.agg == nil {
		return nil
	}
	b, err := m.agg.Gather(ctx, c, evidence.Policy{})
	if err != nil {
		m.logger.Debug("evidence for debate unavailable",
			slog.String("claim", c.ID), slog.String("error", err.Error()))
		return nil
	}
	return b
}

// broadcastDebate publishes the transcript exchange by exchange.
func (m *Manager) broadcastDebate(out *debate.Outcome) {
	if m.msgBus == nil {
		return
	}
	for _, r := range out.Rounds {
		for _, ex := range r.Exchanges {
			if err := m.msgBus.Publish(bus.NewMessage("pool", "", bus.KindChallenge, ex.Challenge)); err != nil {
				m.logger.Debug("challenge broadcast failed", slog.String("error", err.Error()))
			}
			if ex.Response == nil {
				continue
			}
			if err := m.msgBus.Publish(bus.NewMessage("pool", "", bus.KindResponse, ex.Response)); err != nil {
				m.logger.Debug("response broadcast failed", slog.String("error", err.Error()))
			}
		}
	}
}

// leadingVerdict picks the highest-confidence contributing verdict carrying
// the consensus label; if none carries it, the highest-confidence one.
func leadingVerdict(verdicts []*verdict.Verdict, label verdict.Label) *verdict.Verdict {
	var lead, any *verdict.Verdict
	for _, v := range verdicts {
		if v == nil || v.Cancelled {
			continue
		}
		if any == nil || v.Confidence > any.Confidence {
			any = v
		}
		if v.Label == label && (lead == nil || v.Confidence > lead.Confidence) {
			lead = v
		}
	}
	if lead != nil {
		return lead
	}
	return any
}

// feedback applies reputation events and source-credibility updates from the
// final outcome. Alignment with a strong final result stands in for ground
// truth, which is rarely available at verification time.
func (m *Manager) feedback(c *claim.Claim, res *Result) {
	now := time.Now().UTC()
	strong := res.Confidence >= m.cfg.StrongConsensusConfidence

	origin := evidence.OriginExternal
	if res.Debate != nil {
		origin = evidence.OriginDebate
	}

	for _, v := range res.Verdicts {
		if v == nil || v.Cancelled {
			continue
		}
		aligned := v.Label == res.Label
		if aligned {
			m.rep.Apply(reputation.Event{AgentID: v.AgentID, Kind: reputation.ConsensusAligned, Domain: c.Domain, At: now})
		} else if strong {
			m.rep.Apply(reputation.Event{AgentID: v.AgentID, Kind: reputation.VerificationIncorrect, Domain: c.Domain, At: now})
		}

		if m.creds == nil || !strong {
			continue
		}
		perf := 0.25
		if aligned {
			perf = 1.0
		}
		for _, src := range v.Sources {
			m.creds.Update(src, perf, origin)
		}
	}
}

// applyDebateReputation credits the initial agent when its verdict survived
// the debate and debits it when the debate flipped it.
func (m *Manager) applyDebateReputation(c *claim.Claim, out *debate.Outcome) {
	now := time.Now().UTC()
	kind := reputation.ChallengeRebutted
	if out.Refined.Label != out.Initial.Label {
		kind = reputation.ChallengeUpheld
	}
	// ChallengeUpheld credits the prosecutor's expertise in spirit; here it
	// lands on the debated agent, so invert: a flip is an accuracy miss.
	if kind == reputation.ChallengeUpheld {
		m.rep.Apply(reputation.Event{AgentID: out.Initial.AgentID, Kind: reputation.VerificationIncorrect, Domain: c.Domain, At: now})
		return
	}
	m.rep.Apply(reputation.Event{AgentID: out.Initial.AgentID, Kind: reputation.VerificationCorrect, Domain: c.Domain, At: now})
}

func (m *Manager) persist(res *Result) {
	if m.sink == nil {
		return
	}
	m.sink.Enqueue(persistence.Record{
		RequestID: res.RequestID,
		ClaimText: res.Claim.Text,
		Payload:   res,
	})
}
