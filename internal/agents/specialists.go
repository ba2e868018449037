package agents

import (
	"math"
	"time"

	"github.com/consensusnet/consensusnet/internal/claim"
	"github.com/consensusnet/consensusnet/internal/evidence"
	"github.com/consensusnet/consensusnet/internal/model"
	"github.com/consensusnet/consensusnet/internal/registry"
)

// NewScience builds the science specialist: academic and encyclopedic
// sources first, news damped, and every claim treated as at least moderate
// so the cheap tier is never picked on flimsy grounds.
func NewScience(id string, agg *evidence.Aggregator, router *model.Router, opts ...Option) *BaseVerifier {
	base := []Option{
		WithCapabilities(registry.CapabilityVerify, registry.CapabilityScience),
		WithExpertise(map[claim.Domain]float64{
			claim.DomainScience: 0.9,
			claim.DomainHealth:  0.7,
			claim.DomainGeneral: 0.4,
		}),
		WithPolicy(evidence.Policy{
			PreferTiers:   []evidence.SourceTier{evidence.TierAcademic, evidence.TierEncyclopedic},
			PenalizeTiers: []evidence.SourceTier{evidence.TierNews},
		}),
		WithComplexity(func(c *claim.Claim) claim.Complexity {
			if c.Complexity == claim.ComplexitySimple {
				return claim.ComplexityModerate
			}
			return c.Complexity
		}),
	}
	return New(id, agg, router, append(base, opts...)...)
}

// NewNews builds the news specialist. Recency matters more than archival
// credibility: each item's relevance is scaled by an exponential age decay
// with a 24 hour scale, floored at half weight.
func NewNews(id string, agg *evidence.Aggregator, router *model.Router, opts ...Option) *BaseVerifier {
	base := []Option{
		WithCapabilities(registry.CapabilityVerify, registry.CapabilityNewsRecency),
		WithExpertise(map[claim.Domain]float64{
			claim.DomainNews:    0.9,
			claim.DomainGeneral: 0.5,
		}),
		WithPolicy(evidence.Policy{
			PreferTiers: []evidence.SourceTier{evidence.TierNews, evidence.TierEncyclopedic},
			Transform:   recencyWeight(time.Now),
		}),
	}
	return New(id, agg, router, append(base, opts...)...)
}

// recencyWeight returns the news transform: relevance *= 0.5 + 0.5*e^(-age_hours/24).
func recencyWeight(now func() time.Time) func(*evidence.Item) {
	return func(it *evidence.Item) {
		age := now().Sub(it.Timestamp).Hours()
		if age < 0 {
			age = 0
		}
		it.Relevance *= 0.5 + 0.5*math.Exp(-age/24)
	}
}

// NewTech builds the technology specialist: official documentation first.
func NewTech(id string, agg *evidence.Aggregator, router *model.Router, opts ...Option) *BaseVerifier {
	base := []Option{
		WithCapabilities(registry.CapabilityVerify, registry.CapabilityTechnicalDocs),
		WithExpertise(map[claim.Domain]float64{
			claim.DomainTech:    0.9,
			claim.DomainGeneral: 0.5,
		}),
		WithPolicy(evidence.Policy{
			PreferTiers: []evidence.SourceTier{evidence.TierDocumentation, evidence.TierEncyclopedic},
		}),
	}
	return New(id, agg, router, append(base, opts...)...)
}

// NewGeneralist is the default verifier with no tier preference.
func NewGeneralist(id string, agg *evidence.Aggregator, router *model.Router, opts ...Option) *BaseVerifier {
	return New(id, agg, router, opts...)
}
