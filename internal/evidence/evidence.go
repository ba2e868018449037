// Package evidence gathers, normalizes, and scores the evidence a claim is
// judged against, and maintains the adaptive credibility of each source.
package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/consensusnet/consensusnet/internal/claim"
	"github.com/consensusnet/consensusnet/internal/verdict"
)

// Stance is an item's relationship to the claim.
type Stance string

const (
	StanceSupports    Stance = "supports"
	StanceContradicts Stance = "contradicts"
	StanceNeutral     Stance = "neutral"
)

// SourceTier is the static class of an evidence source. Tiers bound how far
// adaptive credibility may drift.
type SourceTier string

const (
	TierAcademic      SourceTier = "academic"
	TierEncyclopedic  SourceTier = "encyclopedic"
	TierDocumentation SourceTier = "documentation"
	TierNews          SourceTier = "news"
	TierWeb           SourceTier = "web"
)

// Item is one normalized piece of evidence. Immutable once produced.
type Item struct {
	Content     string
	SourceID    string
	Tier        SourceTier
	Credibility float64
	Relevance   float64
	Timestamp   time.Time
	Stance      Stance
}

// contentHash keys deduplication by normalized content.
func (it Item) contentHash() string {
	sum := sha256.Sum256([]byte(claim.Normalize(it.Content)))
	return hex.EncodeToString(sum[:8])
}

// RawItem is what a source adapter returns before normalization.
type RawItem struct {
	Content   string
	Relevance float64
	Timestamp time.Time
}

// Source is a consumed interface: one evidence adapter. The core is agnostic
// to HTTP, API keys, and parsers behind it.
type Source interface {
	ID() string
	Tier() SourceTier
	Query(ctx context.Context, normalized string, domain claim.Domain) ([]RawItem, error)
}

// Bundle groups evidence by stance with an overall quality score.
type Bundle struct {
	Supporting     []Item
	Contradicting  []Item
	Neutral        []Item
	OverallQuality float64
}

// Items returns every item in the bundle.
func (b *Bundle) Items() []Item {
	out := make([]Item, 0, len(b.Supporting)+len(b.Contradicting)+len(b.Neutral))
	out = append(out, b.Supporting...)
	out = append(out, b.Contradicting...)
	out = append(out, b.Neutral...)
	return out
}

// Len is the total number of items.
func (b *Bundle) Len() int {
	return len(b.Supporting) + len(b.Contradicting) + len(b.Neutral)
}

// SourceIDs returns the distinct contributing source ids in first-seen order.
func (b *Bundle) SourceIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range b.Items() {
		if !seen[it.SourceID] {
			seen[it.SourceID] = true
			out = append(out, it.SourceID)
		}
	}
	return out
}

// maxExpected is the domain-specific normalizer for the quality score: the
// credibility-weighted relevance mass a well-evidenced claim is expected to
// accumulate.
var maxExpected = map[claim.Domain]float64{
	claim.DomainHealth:  4.0,
	claim.DomainScience: 4.0,
	claim.DomainNews:    3.0,
	claim.DomainTech:    3.0,
	claim.DomainGeneral: 2.5,
}

// newBundle partitions items by stance and computes overall quality as
// clamp(sum(credibility*relevance)/max_expected, 0, 1). Quality is zero
// exactly when the bundle is empty.
func newBundle(items []Item, domain claim.Domain) *Bundle {
	b := &Bundle{}
	var mass float64
	for _, it := range items {
		mass += it.Credibility * it.Relevance
		switch it.Stance {
		case StanceSupports:
			b.Supporting = append(b.Supporting, it)
		case StanceContradicts:
			b.Contradicting = append(b.Contradicting, it)
		default:
			b.Neutral = append(b.Neutral, it)
		}
	}
	if b.Len() == 0 {
		b.OverallQuality = 0
		return b
	}
	norm := maxExpected[domain]
	if norm <= 0 {
		norm = maxExpected[claim.DomainGeneral]
	}
	b.OverallQuality = verdict.Clamp01(mass / norm)
	if b.OverallQuality == 0 {
		// Non-empty bundles always carry some quality.
		b.OverallQuality = 0.01
	}
	return b
}
