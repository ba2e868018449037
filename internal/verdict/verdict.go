// Package verdict holds the immutable judgment an agent produces for a
// claim. It sits below every other component so that agents, consensus, and
// the debate engine can share the type without depending on each other.
package verdict

import (
	"fmt"
	"time"
)

// Label is the three-valued outcome of a verification.
type Label string

const (
	True      Label = "TRUE"
	False     Label = "FALSE"
	Uncertain Label = "UNCERTAIN"
)

// Opposite returns the flipped truth label. UNCERTAIN has no opposite and is
// returned unchanged.
func (l Label) Opposite() Label {
	switch l {
	case True:
		return False
	case False:
		return True
	}
	return Uncertain
}

// Verdict is an agent's immutable judgment about a claim.
type Verdict struct {
	ClaimID         string
	AgentID         string
	Label           Label
	Confidence      float64
	Reasoning       string
	Sources         []string
	EvidenceQuality float64
	ModelTier       string
	Latency         time.Duration
	Timestamp       time.Time

	// Cancelled marks a verdict produced by an agent that observed
	// cancellation mid-flight. Such verdicts carry partial reasoning and do
	// not contribute to consensus.
	Cancelled bool

	// Degraded marks a verdict produced on a fallback path: evidence could
	// not be gathered, every model tier failed, or the model output never
	// parsed. Such verdicts are honest UNCERTAINs, not assessments.
	Degraded bool
}

func (v *Verdict) String() string {
	return fmt.Sprintf("Verdict{%s by %s: %s %.2f}", v.ClaimID, v.AgentID, v.Label, v.Confidence)
}

// Clamp01 bounds x to [0,1]. Shared by every component that produces
// confidences or quality scores.
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
