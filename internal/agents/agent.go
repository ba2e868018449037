// Package agents implements the verification agents: the base verifier that
// turns a claim into a verdict via evidence gathering and a routed model
// call, and the mandatory science, news, and tech specializations. The pool
// manager addresses agents only through their declared capabilities.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/consensusnet/consensusnet/internal/bus"
	"github.com/consensusnet/consensusnet/internal/claim"
	"github.com/consensusnet/consensusnet/internal/evidence"
	"github.com/consensusnet/consensusnet/internal/model"
	"github.com/consensusnet/consensusnet/internal/registry"
	"github.com/consensusnet/consensusnet/internal/verdict"
)

// Verifier is the one operation every agent implements.
type Verifier interface {
	ID() string
	Profile() registry.Profile
	Verify(ctx context.Context, c *claim.Claim) (*verdict.Verdict, error)
}

// Config carries the calibration constants. The weights are empirical and
// deliberately configurable.
type Config struct {
	// ModelConfidenceWeight is the share of the model's self-reported
	// confidence in the calibrated confidence. Default 0.6; the evidence
	// quality contributes the remainder.
	ModelConfidenceWeight float64
	// ShortageQuality is the bundle quality below which the agent answers
	// UNCERTAIN without a model call. Default 0.1.
	ShortageQuality float64
}

func (c Config) withDefaults() Config {
	if c.ModelConfidenceWeight <= 0 || c.ModelConfidenceWeight >= 1 {
		c.ModelConfidenceWeight = 0.6
	}
	if c.ShortageQuality <= 0 {
		c.ShortageQuality = 0.1
	}
	return c
}

// PromptFunc renders the verification prompt for a claim and its evidence.
type PromptFunc func(c *claim.Claim, b *evidence.Bundle, strict bool) string

// BaseVerifier is the common agent implementation. Specializations are
// built from it with options; there is no subtype dispatch anywhere.
type BaseVerifier struct {
	id         string
	profile    registry.Profile
	aggregator *evidence.Aggregator
	router     *model.Router
	policy     evidence.Policy
	prompt     PromptFunc
	complexity func(*claim.Claim) claim.Complexity
	cfg        Config
	msgBus     *bus.Bus
	logger     *slog.Logger
}

// Option configures a BaseVerifier.
type Option func(*BaseVerifier)

// WithPolicy sets the evidence-gathering policy.
func WithPolicy(p evidence.Policy) Option {
	return func(b *BaseVerifier) { b.policy = p }
}

// WithPrompt overrides the prompt template.
func WithPrompt(f PromptFunc) Option {
	return func(b *BaseVerifier) { b.prompt = f }
}

// WithComplexity overrides the complexity heuristic.
func WithComplexity(f func(*claim.Claim) claim.Complexity) Option {
	return func(b *BaseVerifier) { b.complexity = f }
}

// WithCapabilities sets the declared capability set.
func WithCapabilities(caps ...registry.Capability) Option {
	return func(b *BaseVerifier) { b.profile.Capabilities = caps }
}

// WithExpertise sets the per-domain expertise scores.
func WithExpertise(e map[claim.Domain]float64) Option {
	return func(b *BaseVerifier) { b.profile.DomainExpertise = e }
}

// WithBus makes the agent broadcast its verdicts as verification_result
// messages.
func WithBus(mb *bus.Bus) Option {
	return func(b *BaseVerifier) { b.msgBus = mb }
}

// WithConfig sets the calibration constants.
func WithConfig(cfg Config) Option {
	return func(b *BaseVerifier) { b.cfg = cfg }
}

// WithLogger sets the agent logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *BaseVerifier) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a generalist verifier; specializations layer options on top.
func New(id string, agg *evidence.Aggregator, router *model.Router, opts ...Option) *BaseVerifier {
	b := &BaseVerifier{
		id: id,
		profile: registry.Profile{
			AgentID:      id,
			Capabilities: []registry.Capability{registry.CapabilityVerify, registry.CapabilityGeneralist},
			DomainExpertise: map[claim.Domain]float64{
				claim.DomainGeneral: 0.7,
				claim.DomainScience: 0.5,
				claim.DomainHealth:  0.5,
				claim.DomainNews:    0.5,
				claim.DomainTech:    0.5,
			},
			MaxLoad: 4,
		},
		aggregator: agg,
		router:     router,
		prompt:     defaultPrompt,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.cfg = b.cfg.withDefaults()
	b.logger = b.logger.With("component", "agent", "agent_id", id)
	return b
}

func (b *BaseVerifier) ID() string { return b.id }

func (b *BaseVerifier) Profile() registry.Profile { return b.profile }

// Verify runs the full pipeline: evidence, tier selection, model call,
// structured-output parsing with one strict retry, and confidence
// calibration. Cancellation is observed at the evidence and model
// boundaries and yields a cancelled verdict, never a swallowed error.
func (b *BaseVerifier) Verify(ctx context.Context, c *claim.Claim) (*verdict.Verdict, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return b.cancelled(c, start, "cancelled before evidence gathering"), nil
	}

	bundle, err := b.aggregator.Gather(ctx, c, b.policy)
	if err != nil {
		if ctx.Err() != nil {
			return b.cancelled(c, start, "cancelled during evidence gathering"), nil
		}
		return nil, fmt.Errorf("gather evidence: %w", err)
	}

	if bundle.OverallQuality < b.cfg.ShortageQuality {
		// Evidence shortage is a verdict, not an error.
		v := b.degraded(c, bundle, "insufficient evidence to assess the claim", "", start)
		return v, nil
	}

	cpx := c.Complexity
	if b.complexity != nil {
		cpx = b.complexity(c)
	}
	tier, err := b.router.Select(model.Selection{
		Complexity:      cpx,
		EvidenceQuality: bundle.OverallQuality,
		Privacy:         c.Hints.Privacy,
	})
	if err != nil {
		return nil, fmt.Errorf("select model tier: %w", err)
	}

	parsed, usedTier, err := b.completeAndParse(ctx, c, bundle, tier)
	if err != nil {
		if ctx.Err() != nil {
			return b.cancelled(c, start, "cancelled during model call"), nil
		}
		// All tiers exhausted: degrade to UNCERTAIN rather than failing the
		// whole task.
		v := b.degraded(c, bundle, fmt.Sprintf("model unavailable: %v", err), string(usedTier), start)
		return v, nil
	}

	if parsed.unparsable {
		v := b.degraded(c, bundle, parsed.Reasoning, string(usedTier), start)
		return v, nil
	}

	// A low-confidence cheap run escalates to the reasoning tier, once.
	if !c.Hints.Privacy && usedTier == model.TierCheap && parsed.Confidence < b.router.LowConfidenceThreshold() {
		if retryTier, selErr := b.router.Select(model.Selection{Previous: usedTier}); selErr == nil {
			if retried, rTier, rErr := b.completeAndParse(ctx, c, bundle, retryTier); rErr == nil {
				parsed, usedTier = retried, rTier
			}
		}
	}

	label, confidence := b.calibrate(parsed, bundle)
	v := b.finish(c, bundle, label, confidence, bundle.OverallQuality, parsed.Reasoning, string(usedTier), start)
	return v, nil
}

type parsedVerdict struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`

	// unparsable marks the double-parse-failure sentinel; it bypasses
	// calibration and escalation.
	unparsable bool
}

// completeAndParse runs the model call and parses the structured output,
// retrying once with a stricter reformat instruction. A second parse failure
// yields an UNCERTAIN parse-error verdict via the returned sentinel.
func (b *BaseVerifier) completeAndParse(ctx context.Context, c *claim.Claim, bundle *evidence.Bundle, tier model.Tier) (parsedVerdict, model.Tier, error) {
	resp, usedTier, err := b.router.Complete(ctx, tier, b.prompt(c, bundle, false))
	if err != nil {
		return parsedVerdict{}, usedTier, err
	}

	var parsed parsedVerdict
	if parseErr := model.ExtractJSON(resp.Text, &parsed); parseErr != nil || !validLabel(parsed.Label) {
		b.logger.Debug("unparsable model output, retrying strict",
			slog.String("claim", c.ID), slog.String("tier", string(usedTier)))
		resp, usedTier, err = b.router.Complete(ctx, usedTier, b.prompt(c, bundle, true))
		if err != nil {
			return parsedVerdict{}, usedTier, err
		}
		if parseErr = model.ExtractJSON(resp.Text, &parsed); parseErr != nil || !validLabel(parsed.Label) {
			if parseErr == nil {
				parseErr = fmt.Errorf("invalid label %q", parsed.Label)
			}
			return parsedVerdict{
				Label:      string(verdict.Uncertain),
				Confidence: 0,
				Reasoning:  fmt.Sprintf("unparsable model output: %v", parseErr),
				unparsable: true,
			}, usedTier, nil
		}
	}
	parsed.Label = strings.ToUpper(strings.TrimSpace(parsed.Label))
	parsed.Confidence = verdict.Clamp01(parsed.Confidence)
	return parsed, usedTier, nil
}

func validLabel(s string) bool {
	switch verdict.Label(strings.ToUpper(strings.TrimSpace(s))) {
	case verdict.True, verdict.False, verdict.Uncertain:
		return true
	}
	return false
}

// calibrate combines model confidence with evidence quality and floors the
// label to UNCERTAIN when the evidence is genuinely split.
func (b *BaseVerifier) calibrate(parsed parsedVerdict, bundle *evidence.Bundle) (verdict.Label, float64) {
	label := verdict.Label(parsed.Label)
	w := b.cfg.ModelConfidenceWeight
	confidence := verdict.Clamp01(w*parsed.Confidence + (1-w)*bundle.OverallQuality)

	sup, con := len(bundle.Supporting), len(bundle.Contradicting)
	if sup > 0 && con > 0 && isClose(sup, con) && label != verdict.Uncertain {
		label = verdict.Uncertain
		if confidence > 0.5 {
			confidence = 0.5
		}
	}
	return label, confidence
}

// isClose treats evidence counts as split when the smaller side is at least
// 60% of the larger.
func isClose(a, b int) bool {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return float64(lo) >= 0.6*float64(hi)
}

func (b *BaseVerifier) finish(c *claim.Claim, bundle *evidence.Bundle, label verdict.Label, confidence, quality float64, reasoning, tier string, start time.Time) *verdict.Verdict {
	var sources []string
	if bundle != nil {
		sources = bundle.SourceIDs()
	}
	v := &verdict.Verdict{
		ClaimID:         c.ID,
		AgentID:         b.id,
		Label:           label,
		Confidence:      verdict.Clamp01(confidence),
		Reasoning:       reasoning,
		Sources:         sources,
		EvidenceQuality: quality,
		ModelTier:       tier,
		Latency:         time.Since(start),
		Timestamp:       time.Now().UTC(),
	}
	b.publish(v)
	return v
}

// degraded produces the fallback UNCERTAIN verdict for the paths where no
// real assessment happened.
func (b *BaseVerifier) degraded(c *claim.Claim, bundle *evidence.Bundle, reasoning, tier string, start time.Time) *verdict.Verdict {
	var sources []string
	var quality float64
	if bundle != nil {
		sources = bundle.SourceIDs()
		quality = bundle.OverallQuality
	}
	v := &verdict.Verdict{
		ClaimID:         c.ID,
		AgentID:         b.id,
		Label:           verdict.Uncertain,
		Reasoning:       reasoning,
		Sources:         sources,
		EvidenceQuality: quality,
		ModelTier:       tier,
		Latency:         time.Since(start),
		Timestamp:       time.Now().UTC(),
		Degraded:        true,
	}
	b.publish(v)
	return v
}

func (b *BaseVerifier) cancelled(c *claim.Claim, start time.Time, partial string) *verdict.Verdict {
	return &verdict.Verdict{
		ClaimID:    c.ID,
		AgentID:    b.id,
		Label:      verdict.Uncertain,
		Confidence: 0,
		Reasoning:  partial,
		Latency:    time.Since(start),
		Timestamp:  time.Now().UTC(),
		Cancelled:  true,
	}
}

func (b *BaseVerifier) publish(v *verdict.Verdict) {
	if b.msgBus == nil {
		return
	}
	msg := bus.NewMessage(b.id, "", bus.KindVerificationResult, v)
	if err := b.msgBus.Publish(msg); err != nil {
		b.logger.Debug("result broadcast failed", slog.String("error", err.Error()))
	}
}
