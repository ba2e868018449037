package model

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// LocalBackend is the privacy tier: a rule-based stand-in that never touches
// the network. It reads the stance markers the verification prompt embeds
// with each evidence excerpt and emits the structured verdict JSON agents
// expect. Confidence is deliberately modest; the tier exists for privacy and
// last-resort degradation, not accuracy.
type LocalBackend struct{}

// NewLocalBackend creates the in-process fallback backend.
func NewLocalBackend() *LocalBackend { return &LocalBackend{} }

func (b *LocalBackend) Name() string { return "local" }

type localVerdict struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (b *LocalBackend) Complete(ctx context.Context, prompt string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	lowered := strings.ToLower(prompt)
	supports := strings.Count(lowered, "stance: supports")
	contradicts := strings.Count(lowered, "stance: contradicts")

	v := localVerdict{Label: "UNCERTAIN", Confidence: 0.3,
		Reasoning: "local tier: insufficient evidence signal"}
	switch {
	case supports > contradicts && supports > 0:
		v = localVerdict{Label: "TRUE",
			Confidence: 0.5 + 0.1*float64(min(supports-contradicts, 3)),
			Reasoning:  "local tier: supporting evidence outweighs contradicting"}
	case contradicts > supports && contradicts > 0:
		v = localVerdict{Label: "FALSE",
			Confidence: 0.5 + 0.1*float64(min(contradicts-supports, 3)),
			Reasoning:  "local tier: contradicting evidence outweighs supporting"}
	}

	out, _ := json.Marshal(v)
	return &Response{
		Text:      string(out),
		TokensIn:  len(strings.Fields(prompt)),
		TokensOut: len(out) / 4,
		Latency:   time.Since(start),
	}, nil
}
