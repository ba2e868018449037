// Package consensus combines a set of verdicts into one labelled result
// under a configurable aggregation rule. Aggregation is pure: the same
// verdict multiset and weights always produce the same result.
package consensus

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/consensusnet/consensusnet/internal/verdict"
)

// Rule selects the aggregation strategy.
type Rule string

const (
	// RuleSimpleMajority counts one vote per verdict.
	RuleSimpleMajority Rule = "simple_majority"
	// RuleConfidenceWeighted weighs each vote by the verdict's confidence.
	RuleConfidenceWeighted Rule = "confidence_weighted"
	// RuleReputationWeighted weighs each vote by the agent's trust weight.
	RuleReputationWeighted Rule = "reputation_weighted"
	// RuleWeightedLabelConfidence weighs by trust times confidence. Default.
	RuleWeightedLabelConfidence Rule = "weighted_label_confidence"
)

// Valid reports whether r names a known rule.
func (r Rule) Valid() bool {
	switch r {
	case RuleSimpleMajority, RuleConfidenceWeighted, RuleReputationWeighted, RuleWeightedLabelConfidence:
		return true
	}
	return false
}

// Input pairs a verdict with its agent's trust weight.
type Input struct {
	Verdict *verdict.Verdict
	Weight  float64
}

// Result is the aggregated outcome.
type Result struct {
	Label       verdict.Label
	Confidence  float64
	Agreement   float64
	Quality     float64
	Rule        Rule
	Scores      map[verdict.Label]float64
	Explanation string
}

// ErrNoInputs is returned when there is nothing to aggregate.
var ErrNoInputs = errors.New("no verdicts to aggregate")

var labels = []verdict.Label{verdict.True, verdict.False, verdict.Uncertain}

// Aggregate combines the inputs under the given rule. Cancelled verdicts are
// skipped; if nothing remains, ErrNoInputs is returned.
func Aggregate(rule Rule, inputs []Input) (*Result, error) {
	if !rule.Valid() {
		return nil, fmt.Errorf("unknown consensus rule %q", rule)
	}

	scores := map[verdict.Label]float64{verdict.True: 0, verdict.False: 0, verdict.Uncertain: 0}
	counted := 0
	var contributors []string
	for _, in := range inputs {
		v := in.Verdict
		if v == nil || v.Cancelled {
			continue
		}
		scores[v.Label] += voteWeight(rule, in)
		counted++
		contributors = append(contributors, v.AgentID)
	}
	if counted == 0 {
		return nil, ErrNoInputs
	}

	winner, total := pickWinner(scores)
	confidence := 0.0
	if total > 0 {
		confidence = scores[winner] / total
	} else {
		// All weights zero: nothing distinguishes the labels.
		winner = verdict.Uncertain
	}

	agreement := 1 - normalizedEntropy(scores, total)
	quality := 0.5*confidence + 0.5*agreement

	sort.Strings(contributors)
	return &Result{
		Label:       winner,
		Confidence:  verdict.Clamp01(confidence),
		Agreement:   verdict.Clamp01(agreement),
		Quality:     verdict.Clamp01(quality),
		Rule:        rule,
		Scores:      scores,
		Explanation: fmt.Sprintf("%s over %d verdicts (%s): %s %.2f", rule, counted, strings.Join(contributors, ","), winner, confidence),
	}, nil
}

func voteWeight(rule Rule, in Input) float64 {
	switch rule {
	case RuleSimpleMajority:
		return 1
	case RuleConfidenceWeighted:
		return in.Verdict.Confidence
	case RuleReputationWeighted:
		return in.Weight
	default: // weighted_label_confidence
		return in.Weight * in.Verdict.Confidence
	}
}

// pickWinner returns the label with the highest score. Any tie for the top
// score resolves toward UNCERTAIN.
func pickWinner(scores map[verdict.Label]float64) (verdict.Label, float64) {
	var total float64
	best := labels[0]
	for _, l := range labels {
		total += scores[l]
		if scores[l] > scores[best] {
			best = l
		}
	}
	for _, l := range labels {
		if l != best && scores[l] == scores[best] {
			return verdict.Uncertain, total
		}
	}
	return best, total
}

// normalizedEntropy computes the Shannon entropy of the score distribution,
// scaled to [0,1] by the maximum entropy over three labels.
func normalizedEntropy(scores map[verdict.Label]float64, total float64) float64 {
	if total <= 0 {
		return 1
	}
	var h float64
	for _, l := range labels {
		p := scores[l] / total
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h / math.Log2(float64(len(labels)))
}
