package debate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/consensusnet/consensusnet/internal/claim"
	"github.com/consensusnet/consensusnet/internal/evidence"
	"github.com/consensusnet/consensusnet/internal/model"
	"github.com/consensusnet/consensusnet/internal/verdict"
)

// The model-backed roles all run on the reasoning tier: debate only happens
// on contested verdicts, where cheap-tier shortcuts defeat the point.

// ModelProsecutor generates challenges with a model call.
type ModelProsecutor struct {
	router *model.Router
}

// NewModelProsecutor creates a prosecutor over the router.
func NewModelProsecutor(r *model.Router) *ModelProsecutor { return &ModelProsecutor{router: r} }

type rawChallenge struct {
	Type        string  `json:"type"`
	Strength    string  `json:"strength"`
	Specificity float64 `json:"specificity"`
	Impact      float64 `json:"impact"`
	Text        string  `json:"text"`
}

func (p *ModelProsecutor) Challenge(ctx context.Context, c *claim.Claim, v *verdict.Verdict, b *evidence.Bundle, round int, surviving []Challenge) ([]Challenge, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the prosecutor in a fact-verification debate, round %d.\n", round)
	fmt.Fprintf(&sb, "Claim: %s\nVerdict under attack: %s (confidence %.2f)\nReasoning: %s\n\n",
		c.Text, v.Label, v.Confidence, v.Reasoning)
	if b != nil && b.Len() > 0 {
		sb.WriteString("Evidence the verdict rests on:\n")
		for _, it := range b.Items() {
			fmt.Fprintf(&sb, "- [%s] stance: %s: %s\n", it.Tier, it.Stance, it.Content)
		}
	}
	if len(surviving) > 0 {
		sb.WriteString("\nChallenges the defender has not neutralized yet; sharpen these before raising new ones:\n")
		for _, ch := range surviving {
			fmt.Fprintf(&sb, "- (%s, %s) %s\n", ch.Type, ch.Strength, ch.Text)
		}
	}
	sb.WriteString(`
Attack the verdict. List its genuine weaknesses; do not invent any.
Respond with a single JSON object:
{"challenges": [{"type": "source_credibility|evidence_relevance|logical_fallacy|factual_accuracy|bias|sufficiency|recency|alternative_explanation", "strength": "weak|moderate|strong|critical", "specificity": <0..1>, "impact": <0..1>, "text": "..."}]}`)

	resp, _, err := p.router.Complete(ctx, model.TierReasoning, sb.String())
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Challenges []rawChallenge `json:"challenges"`
	}
	if err := model.ExtractJSON(resp.Text, &parsed); err != nil {
		return nil, fmt.Errorf("parse challenges: %w", err)
	}

	out := make([]Challenge, 0, len(parsed.Challenges))
	for _, rc := range parsed.Challenges {
		out = append(out, Challenge{
			ID:              uuid.New().String(),
			Type:            ChallengeType(strings.ToLower(strings.TrimSpace(rc.Type))),
			Strength:        parseStrength(rc.Strength),
			Specificity:     verdict.Clamp01(rc.Specificity),
			Impact:          verdict.Clamp01(rc.Impact),
			TargetVerdictID: v.ClaimID,
			Text:            rc.Text,
		})
	}
	return out, nil
}

func parseStrength(s string) Strength {
	switch Strength(strings.ToLower(strings.TrimSpace(s))) {
	case StrengthCritical:
		return StrengthCritical
	case StrengthStrong:
		return StrengthStrong
	case StrengthModerate:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

// ModelDefender answers challenges with a model call.
type ModelDefender struct {
	router *model.Router
}

// NewModelDefender creates a defender over the router.
func NewModelDefender(r *model.Router) *ModelDefender { return &ModelDefender{router: r} }

func (d *ModelDefender) Respond(ctx context.Context, c *claim.Claim, v *verdict.Verdict, ch Challenge) (*Response, error) {
	prompt := fmt.Sprintf(`You are the defender in a fact-verification debate.
Claim: %s
Your verdict: %s (confidence %.2f)
Reasoning: %s

Challenge (%s, %s): %s

Answer honestly. Concede what you cannot refute.
Respond with a single JSON object:
{"stance": "refute|partially_concede|concede", "text": "..."}`,
		c.Text, v.Label, v.Confidence, v.Reasoning, ch.Type, ch.Strength, ch.Text)

	resp, _, err := d.router.Complete(ctx, model.TierReasoning, prompt)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Stance string `json:"stance"`
		Text   string `json:"text"`
	}
	if err := model.ExtractJSON(resp.Text, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &Response{
		ChallengeID: ch.ID,
		Stance:      parseStance(parsed.Stance),
		Text:        parsed.Text,
	}, nil
}

func parseStance(s string) ResponseStance {
	switch ResponseStance(strings.ToLower(strings.TrimSpace(s))) {
	case StanceRefute:
		return StanceRefute
	case StanceConcede:
		return StanceConcede
	default:
		return StancePartialConcede
	}
}

// ModelModerator rules on exchanges with a model call.
type ModelModerator struct {
	router *model.Router
}

// NewModelModerator creates a moderator over the router.
func NewModelModerator(r *model.Router) *ModelModerator { return &ModelModerator{router: r} }

func (m *ModelModerator) Assess(ctx context.Context, ch Challenge, resp *Response) (Assessment, error) {
	answer := "(the defender produced no answer)"
	if resp != nil {
		answer = fmt.Sprintf("stance %s: %s", resp.Stance, resp.Text)
	}
	prompt := fmt.Sprintf(`You are the neutral moderator in a fact-verification debate.
Challenge (%s, %s): %s
Defender's answer: %s

Rule on the exchange. A challenge is upheld when the defender failed to
neutralize it. An unanswered challenge of moderate strength or above is
upheld.
Respond with a single JSON object:
{"upheld": true|false, "rationale": "..."}`, ch.Type, ch.Strength, ch.Text, answer)

	r, _, err := m.router.Complete(ctx, model.TierReasoning, prompt)
	if err != nil {
		return Assessment{}, err
	}
	var parsed struct {
		Upheld    bool   `json:"upheld"`
		Rationale string `json:"rationale"`
	}
	if err := model.ExtractJSON(r.Text, &parsed); err != nil {
		return Assessment{}, fmt.Errorf("parse ruling: %w", err)
	}
	return Assessment{ChallengeID: ch.ID, Upheld: parsed.Upheld, Rationale: parsed.Rationale}, nil
}
