package evidence

import (
	"sync"

	"github.com/consensusnet/consensusnet/internal/verdict"
)

// FeedbackOrigin distinguishes where a ground-truth signal came from.
// Debate-derived feedback is circular when adversarial runs are frequent, so
// it is applied at half weight; external feedback at full weight.
type FeedbackOrigin string

const (
	OriginExternal FeedbackOrigin = "external"
	OriginDebate   FeedbackOrigin = "debate"
)

// tierBounds are the static floors and ceilings adaptive credibility cannot
// cross.
var tierBounds = map[SourceTier]struct{ floor, ceil float64 }{
	TierAcademic:      {0.75, 1.0},
	TierEncyclopedic:  {0.55, 0.95},
	TierDocumentation: {0.60, 0.95},
	TierNews:          {0.30, 0.85},
	TierWeb:           {0.10, 0.70},
}

// Credibility tracks the adaptive credibility of every known source.
// Updates are serialized per source.
type Credibility struct {
	mu           sync.RWMutex
	sources      map[string]*sourceCred
	updateWeight float64
}

type sourceCred struct {
	mu    sync.Mutex
	tier  SourceTier
	value float64
}

// NewCredibility creates a table with the given adaptation weight β
// (default 0.3).
func NewCredibility(updateWeight float64) *Credibility {
	if updateWeight <= 0 {
		updateWeight = 0.3
	}
	return &Credibility{
		sources:      make(map[string]*sourceCred),
		updateWeight: updateWeight,
	}
}

// Register sets a source's tier and initial credibility, clamped to its
// tier's bounds. Idempotent for the same id.
func (c *Credibility) Register(id string, tier SourceTier, initial float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sources[id]; ok {
		return
	}
	c.sources[id] = &sourceCred{tier: tier, value: clampToTier(tier, initial)}
}

// Get returns the current credibility of a source; unknown sources default
// to the web-tier floor.
func (c *Credibility) Get(id string) float64 {
	c.mu.RLock()
	sc, ok := c.sources[id]
	c.mu.RUnlock()
	if !ok {
		return tierBounds[TierWeb].floor
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.value
}

// Update applies one performance observation in [0,1]:
// cred' = (1-β)·cred + β·performance, kept inside the tier bounds.
func (c *Credibility) Update(id string, performance float64, origin FeedbackOrigin) {
	c.mu.RLock()
	sc, ok := c.sources[id]
	c.mu.RUnlock()
	if !ok {
		return
	}
	beta := c.updateWeight
	if origin == OriginDebate {
		beta /= 2
	}
	performance = verdict.Clamp01(performance)

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.value = clampToTier(sc.tier, (1-beta)*sc.value+beta*performance)
}

func clampToTier(tier SourceTier, v float64) float64 {
	b, ok := tierBounds[tier]
	if !ok {
		b = tierBounds[TierWeb]
	}
	if v < b.floor {
		return b.floor
	}
	if v > b.ceil {
		return b.ceil
	}
	return v
}
