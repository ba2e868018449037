// Package debate runs the adversarial challenge protocol on a contested
// verdict. A prosecutor attacks the verdict, a defender answers each
// challenge, and a moderator rules on every exchange; the engine folds the
// rulings into a refined verdict with a bounded confidence adjustment.
package debate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/consensusnet/consensusnet/internal/claim"
	"github.com/consensusnet/consensusnet/internal/evidence"
	"github.com/consensusnet/consensusnet/internal/verdict"
	"github.com/consensusnet/consensusnet/pkg/observability"
)

// ChallengeType names what a challenge attacks.
type ChallengeType string

const (
	ChallengeSourceCredibility      ChallengeType = "source_credibility"
	ChallengeEvidenceRelevance      ChallengeType = "evidence_relevance"
	ChallengeLogicalFallacy         ChallengeType = "logical_fallacy"
	ChallengeFactualAccuracy        ChallengeType = "factual_accuracy"
	ChallengeBias                   ChallengeType = "bias"
	ChallengeSufficiency            ChallengeType = "sufficiency"
	ChallengeRecency                ChallengeType = "recency"
	ChallengeAlternativeExplanation ChallengeType = "alternative_explanation"
)

// Strength classifies how damaging a challenge is if it stands.
type Strength string

const (
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
	StrengthCritical Strength = "critical"
)

// Weight maps the strength class to its share of the priority score.
func (s Strength) Weight() float64 {
	switch s {
	case StrengthCritical:
		return 0.5
	case StrengthStrong:
		return 0.4
	case StrengthModerate:
		return 0.25
	default:
		return 0.1
	}
}

// Challenge is one attack on the verdict under debate.
type Challenge struct {
	ID              string
	Type            ChallengeType
	Strength        Strength
	Specificity     float64
	Verifiability   float64
	Impact          float64
	TargetVerdictID string
	Text            string
}

// NewChallenge creates a challenge with a generated id.
func NewChallenge(t ChallengeType, s Strength, text string) Challenge {
	return Challenge{ID: uuid.New().String(), Type: t, Strength: s, Text: text}
}

// PriorityScore ranks challenges for the round:
// strength_weight + 0.2*specificity + 0.3*impact, clamped to [0,1].
func (c Challenge) PriorityScore() float64 {
	return verdict.Clamp01(c.Strength.Weight() + 0.2*verdict.Clamp01(c.Specificity) + 0.3*verdict.Clamp01(c.Impact))
}

// ResponseStance is the defender's position on a challenge.
type ResponseStance string

const (
	StanceRefute         ResponseStance = "refute"
	StancePartialConcede ResponseStance = "partially_concede"
	StanceConcede        ResponseStance = "concede"
)

// Response is the defender's answer to one challenge.
type Response struct {
	ChallengeID        string
	Stance             ResponseStance
	Text               string
	SupportingEvidence []evidence.Item
}

// Assessment is the moderator's ruling on one exchange.
type Assessment struct {
	ChallengeID string
	Upheld      bool
	Rationale   string
}

// Exchange is one challenge with its response and ruling, as recorded in a
// round transcript. Response is nil when the defender missed its deadline.
type Exchange struct {
	Challenge  Challenge
	Response   *Response
	Assessment Assessment
}

// Round is the transcript of one debate round.
type Round struct {
	Number     int
	Exchanges  []Exchange
	Adjustment float64
}

// Outcome is the result of a full debate.
type Outcome struct {
	Initial *verdict.Verdict
	Rounds  []Round
	Refined *verdict.Verdict
	// Quality reflects how decisive the debate was: the share of exchanges
	// that produced a ruling, scaled by round completion.
	Quality float64
	// Degraded is set when the moderator failed and the initial verdict was
	// carried through unchanged.
	Degraded bool
}

// Prosecutor generates challenges against a verdict. surviving carries the
// previous round's unresolved challenges so later rounds sharpen them
// instead of starting over; it is empty in round one.
type Prosecutor interface {
	Challenge(ctx context.Context, c *claim.Claim, v *verdict.Verdict, b *evidence.Bundle, round int, surviving []Challenge) ([]Challenge, error)
}

// Defender answers a single challenge.
type Defender interface {
	Respond(ctx context.Context, c *claim.Claim, v *verdict.Verdict, ch Challenge) (*Response, error)
}

// Moderator rules on a challenge/response exchange. The response is nil when
// the defender produced nothing before its deadline.
type Moderator interface {
	Assess(ctx context.Context, ch Challenge, resp *Response) (Assessment, error)
}

// EngineConfig bounds the protocol. Zero values take the defaults.
type EngineConfig struct {
	// MaxRounds caps the debate. Default and maximum 3.
	MaxRounds int
	// MaxChallenges caps challenges considered per round. Default 5.
	MaxChallenges int
	// MinPriority filters out low-value challenges. Default 0.3.
	MinPriority float64
	// RoleTimeout is the per-contribution deadline. Default 10s.
	RoleTimeout time.Duration
	// MaxAdjustment bounds the total confidence movement. Default 0.6.
	MaxAdjustment float64
	// ConvergenceEpsilon ends the debate when a round moves confidence by
	// less than this. Default 0.02.
	ConvergenceEpsilon float64
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.MaxRounds <= 0 || c.MaxRounds > 3 {
		c.MaxRounds = 3
	}
	if c.MaxChallenges <= 0 {
		c.MaxChallenges = 5
	}
	if c.MinPriority <= 0 {
		c.MinPriority = 0.3
	}
	if c.RoleTimeout <= 0 {
		c.RoleTimeout = 10 * time.Second
	}
	if c.MaxAdjustment <= 0 {
		c.MaxAdjustment = 0.6
	}
	if c.ConvergenceEpsilon <= 0 {
		c.ConvergenceEpsilon = 0.02
	}
	return c
}

// Engine drives the debate state machine.
type Engine struct {
	cfg        EngineConfig
	prosecutor Prosecutor
	defender   Defender
	moderator  Moderator
	logger     *slog.Logger
}

// NewEngine wires the three roles.
func NewEngine(cfg EngineConfig, p Prosecutor, d Defender, m Moderator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:        cfg.withDefaults(),
		prosecutor: p,
		defender:   d,
		moderator:  m,
		logger:     logger.With("component", "debate"),
	}
}

// Run executes the debate on the initial verdict. A moderator failure
// degrades gracefully: the initial verdict is carried through with
// Degraded set, never an error. A missing prosecutor or defender
// contribution within its deadline counts as neutral.
func (e *Engine) Run(ctx context.Context, c *claim.Claim, initial *verdict.Verdict, bundle *evidence.Bundle) (*Outcome, error) {
	ctx, span := observability.StartSpan(ctx, "debate.Run")
	defer span.End()

	out := &Outcome{Initial: initial}
	var total float64
	var surviving []Challenge
	ruled, exchanges := 0, 0

	for round := 1; round <= e.cfg.MaxRounds; round++ {
		challenges := e.gatherChallenges(ctx, c, initial, bundle, round, surviving)
		if len(challenges) == 0 {
			break
		}

		r := Round{Number: round}
		surviving = nil
		for _, ch := range challenges {
			resp := e.gatherResponse(ctx, c, initial, ch)
			assessment, err := e.assess(ctx, ch, resp)
			exchanges++
			if err != nil {
				e.logger.Warn("moderator failed, carrying initial verdict",
					slog.String("claim", c.ID), slog.String("error", err.Error()))
				out.Degraded = true
				out.Refined = initial
				out.Quality = debateQuality(ruled, exchanges, len(out.Rounds), e.cfg.MaxRounds)
				observability.DebatesTotal.WithLabelValues("degraded").Inc()
				return out, nil
			}
			ruled++

			delta := rulingDelta(ch, resp, assessment)
			r.Adjustment += delta
			r.Exchanges = append(r.Exchanges, Exchange{Challenge: ch, Response: resp, Assessment: assessment})

			// An upheld, unconceded challenge of moderate strength or above
			// remains open and seeds the next round.
			if assessment.Upheld && ch.Strength != StrengthWeak && (resp == nil || resp.Stance != StanceConcede) {
				surviving = append(surviving, ch)
			}
		}
		total += r.Adjustment
		out.Rounds = append(out.Rounds, r)

		if len(surviving) == 0 || math.Abs(r.Adjustment) < e.cfg.ConvergenceEpsilon {
			break
		}
	}

	out.Refined = e.refine(initial, total)
	out.Quality = debateQuality(ruled, exchanges, len(out.Rounds), e.cfg.MaxRounds)
	observability.DebatesTotal.WithLabelValues("completed").Inc()
	observability.DebateRounds.Observe(float64(len(out.Rounds)))
	return out, nil
}

// gatherChallenges runs the prosecutor under its deadline, then filters and
// ranks. A failed or silent prosecutor contributes nothing.
func (e *Engine) gatherChallenges(ctx context.Context, c *claim.Claim, v *verdict.Verdict, bundle *evidence.Bundle, round int, surviving []Challenge) []Challenge {
	rctx, cancel := context.WithTimeout(ctx, e.cfg.RoleTimeout)
	defer cancel()

	raw, err := e.prosecutor.Challenge(rctx, c, v, bundle, round, surviving)
	if err != nil {
		e.logger.Debug("prosecutor contributed nothing", slog.Int("round", round), slog.String("error", err.Error()))
		return nil
	}

	filtered := raw[:0]
	for _, ch := range raw {
		if ch.PriorityScore() >= e.cfg.MinPriority {
			filtered = append(filtered, ch)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		pi, pj := filtered[i].PriorityScore(), filtered[j].PriorityScore()
		if pi != pj {
			return pi > pj
		}
		return filtered[i].ID < filtered[j].ID
	})
	if len(filtered) > e.cfg.MaxChallenges {
		filtered = filtered[:e.cfg.MaxChallenges]
	}
	return filtered
}

func (e *Engine) gatherResponse(ctx context.Context, c *claim.Claim, v *verdict.Verdict, ch Challenge) *Response {
	rctx, cancel := context.WithTimeout(ctx, e.cfg.RoleTimeout)
	defer cancel()

	resp, err := e.defender.Respond(rctx, c, v, ch)
	if err != nil {
		e.logger.Debug("defender contributed nothing", slog.String("challenge", ch.ID), slog.String("error", err.Error()))
		return nil
	}
	return resp
}

func (e *Engine) assess(ctx context.Context, ch Challenge, resp *Response) (Assessment, error) {
	rctx, cancel := context.WithTimeout(ctx, e.cfg.RoleTimeout)
	defer cancel()
	return e.moderator.Assess(rctx, ch, resp)
}

// rulingDelta converts one ruling into a confidence adjustment: upheld
// challenges cost by strength (critical -0.2), rebutted ones restore +0.05.
func rulingDelta(ch Challenge, resp *Response, a Assessment) float64 {
	if a.Upheld {
		switch ch.Strength {
		case StrengthCritical:
			return -0.2
		case StrengthStrong:
			return -0.1
		case StrengthModerate:
			return -0.05
		default:
			return -0.02
		}
	}
	if resp != nil && resp.Stance == StanceRefute {
		return 0.05
	}
	return 0
}

// refine applies the bounded total adjustment. The label flips only when
// the adjustment drags a confident verdict down across one half; a verdict
// that started below one half keeps its label.
func (e *Engine) refine(initial *verdict.Verdict, total float64) *verdict.Verdict {
	if total > e.cfg.MaxAdjustment {
		total = e.cfg.MaxAdjustment
	}
	if total < -e.cfg.MaxAdjustment {
		total = -e.cfg.MaxAdjustment
	}

	refined := *initial
	conf := initial.Confidence + total
	label := initial.Label
	if label != verdict.Uncertain && initial.Confidence >= 0.5 && conf < 0.5 {
		label = label.Opposite()
		conf = 1 - verdict.Clamp01(conf)
	}
	refined.Label = label
	refined.Confidence = verdict.Clamp01(conf)
	refined.Reasoning = fmt.Sprintf("%s [debate adjustment %+.2f]", initial.Reasoning, total)
	refined.Timestamp = time.Now().UTC()
	return &refined
}

func debateQuality(ruled, exchanges, rounds, maxRounds int) float64 {
	if exchanges == 0 {
		return 1
	}
	completion := 1.0
	if maxRounds > 0 && rounds > 0 {
		completion = 0.5 + 0.5*float64(rounds)/float64(maxRounds)
	}
	return verdict.Clamp01(float64(ruled) / float64(exchanges) * completion)
}
