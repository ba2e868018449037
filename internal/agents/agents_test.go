package agents

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/consensusnet/consensusnet/internal/claim"
	"github.com/consensusnet/consensusnet/internal/evidence"
	"github.com/consensusnet/consensusnet/internal/model"
	"github.com/consensusnet/consensusnet/internal/registry"
	"github.com/consensusnet/consensusnet/internal/verdict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustClaim(t *testing.T, text string, hints claim.Hints) *claim.Claim {
	t.Helper()
	c, err := claim.New(text, hints)
	require.NoError(t, err)
	return c
}

// strongEvidence yields a high-quality supporting bundle for a science claim.
func strongEvidence() []evidence.Source {
	return []evidence.Source{
		evidence.NewStubSource("pubmed", evidence.TierAcademic).Return(
			evidence.RawItem{Content: "Peer-reviewed studies confirm the stated boiling point.", Relevance: 0.95},
			evidence.RawItem{Content: "Experimental measurements verified the figure repeatedly.", Relevance: 0.9},
			evidence.RawItem{Content: "Independent laboratories demonstrated the same value.", Relevance: 0.9},
		),
		evidence.NewStubSource("wiki", evidence.TierEncyclopedic).Return(
			evidence.RawItem{Content: "The encyclopedia entry confirms this value under standard conditions.", Relevance: 0.95},
		),
	}
}

func newAgent(t *testing.T, sources []evidence.Source, backends map[model.Tier]model.Backend, opts ...Option) *BaseVerifier {
	t.Helper()
	agg := evidence.NewAggregator(sources, nil, evidence.AggregatorConfig{}, nil)
	router := model.NewRouter(model.RouterConfig{RetryJitter: time.Millisecond}, backends, nil)
	return New("agent-1", agg, router, opts...)
}

func TestVerifyHappyPath(t *testing.T) {
	cheap := model.NewMockBackend("cheap").Respond(`{"label":"TRUE","confidence":0.9,"reasoning":"well supported"}`)
	a := newAgent(t, strongEvidence(), map[model.Tier]model.Backend{model.TierCheap: cheap})

	c := mustClaim(t, "Water boils at 100 degrees Celsius at sea level", claim.Hints{})
	v, err := a.Verify(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, verdict.True, v.Label)
	assert.Equal(t, "agent-1", v.AgentID)
	assert.Equal(t, string(model.TierCheap), v.ModelTier)
	assert.False(t, v.Cancelled)
	assert.Greater(t, v.Confidence, 0.5)
	assert.NotEmpty(t, v.Sources)
	// Calibration blends model confidence with evidence quality.
	want := 0.6*0.9 + 0.4*v.EvidenceQuality
	assert.InDelta(t, want, v.Confidence, 1e-9)
}

func TestVerifyNoEvidenceSkipsModel(t *testing.T) {
	empty := evidence.NewStubSource("wiki", evidence.TierEncyclopedic)
	cheap := model.NewMockBackend("cheap").Respond(`{"label":"TRUE","confidence":0.9,"reasoning":"x"}`)
	a := newAgent(t, []evidence.Source{empty}, map[model.Tier]model.Backend{model.TierCheap: cheap})

	v, err := a.Verify(context.Background(), mustClaim(t, "An unverifiable assertion about nothing", claim.Hints{}))
	require.NoError(t, err)

	assert.Equal(t, verdict.Uncertain, v.Label)
	assert.Zero(t, v.Confidence)
	assert.Zero(t, v.EvidenceQuality)
	assert.True(t, v.Degraded)
	assert.Equal(t, 0, cheap.Calls(), "no model call on evidence shortage")
}

func TestVerifyPrivacyUsesLocalTier(t *testing.T) {
	local := model.NewMockBackend("local").Respond(`{"label":"TRUE","confidence":0.8,"reasoning":"x"}`)
	cheap := model.NewMockBackend("cheap").Respond(`{"label":"TRUE","confidence":0.9,"reasoning":"x"}`)
	a := newAgent(t, strongEvidence(), map[model.Tier]model.Backend{
		model.TierCheap: cheap,
		model.TierLocal: local,
	})

	c := mustClaim(t, "Water boils at 100 degrees Celsius at sea level", claim.Hints{Privacy: true})
	v, err := a.Verify(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, string(model.TierLocal), v.ModelTier)
	assert.Equal(t, 0, cheap.Calls())
	assert.Equal(t, 1, local.Calls())
}

func TestVerifyLowConfidenceEscalatesOnce(t *testing.T) {
	cheap := model.NewMockBackend("cheap").Respond(`{"label":"UNCERTAIN","confidence":0.3,"reasoning":"unsure"}`)
	reasoning := model.NewMockBackend("reasoning").Respond(`{"label":"TRUE","confidence":0.85,"reasoning":"resolved"}`)
	a := newAgent(t, strongEvidence(), map[model.Tier]model.Backend{
		model.TierCheap:     cheap,
		model.TierReasoning: reasoning,
	})

	v, err := a.Verify(context.Background(), mustClaim(t, "Water boils at 100 degrees Celsius at sea level", claim.Hints{}))
	require.NoError(t, err)

	assert.Equal(t, 1, cheap.Calls())
	assert.Equal(t, 1, reasoning.Calls())
	assert.Equal(t, verdict.True, v.Label)
	assert.Equal(t, string(model.TierReasoning), v.ModelTier)
}

func TestVerifyParseRetryStrict(t *testing.T) {
	cheap := model.NewMockBackend("cheap").
		Respond("I think the claim is probably true, around 90% sure.").
		Respond(`{"label":"TRUE","confidence":0.9,"reasoning":"ok"}`)
	a := newAgent(t, strongEvidence(), map[model.Tier]model.Backend{model.TierCheap: cheap})

	v, err := a.Verify(context.Background(), mustClaim(t, "Water boils at 100 degrees Celsius at sea level", claim.Hints{}))
	require.NoError(t, err)

	assert.Equal(t, verdict.True, v.Label)
	prompts := cheap.Prompts()
	require.Len(t, prompts, 2)
	assert.NotContains(t, prompts[0], "ONLY the JSON object")
	assert.Contains(t, prompts[1], "ONLY the JSON object")
}

func TestVerifyDoubleParseFailureUncertain(t *testing.T) {
	cheap := model.NewMockBackend("cheap").Respond("plain prose, twice")
	a := newAgent(t, strongEvidence(), map[model.Tier]model.Backend{model.TierCheap: cheap})

	v, err := a.Verify(context.Background(), mustClaim(t, "Water boils at 100 degrees Celsius at sea level", claim.Hints{}))
	require.NoError(t, err)

	assert.Equal(t, verdict.Uncertain, v.Label)
	assert.Zero(t, v.Confidence)
	assert.True(t, v.Degraded)
	assert.Contains(t, v.Reasoning, "unparsable")
	assert.Equal(t, 2, cheap.Calls())
}

func TestVerifyAllTiersDownDegrades(t *testing.T) {
	down := func(name string) *model.MockBackend {
		return model.NewMockBackend(name).Fail(model.ErrPermanent, "down")
	}
	a := newAgent(t, strongEvidence(), map[model.Tier]model.Backend{
		model.TierCheap:     down("cheap"),
		model.TierReasoning: down("reasoning"),
		model.TierLocal:     down("local"),
	})

	v, err := a.Verify(context.Background(), mustClaim(t, "Water boils at 100 degrees Celsius at sea level", claim.Hints{}))
	require.NoError(t, err)

	assert.Equal(t, verdict.Uncertain, v.Label)
	assert.Zero(t, v.Confidence)
	assert.True(t, v.Degraded)
	assert.Contains(t, v.Reasoning, "model unavailable")
}

func TestVerifyCancellation(t *testing.T) {
	slow := model.NewMockBackend("cheap").
		Respond(`{"label":"TRUE","confidence":0.9,"reasoning":"x"}`).
		WithDelay(200 * time.Millisecond)
	a := newAgent(t, strongEvidence(), map[model.Tier]model.Backend{model.TierCheap: slow})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	v, err := a.Verify(ctx, mustClaim(t, "Water boils at 100 degrees Celsius at sea level", claim.Hints{}))
	require.NoError(t, err)
	assert.True(t, v.Cancelled)
	assert.Equal(t, verdict.Uncertain, v.Label)
}

func TestVerifySplitEvidenceFloorsUncertain(t *testing.T) {
	split := []evidence.Source{
		evidence.NewStubSource("pubmed", evidence.TierAcademic).Return(
			evidence.RawItem{Content: "Studies confirms the effect is real.", Relevance: 0.9},
			evidence.RawItem{Content: "A later replication debunked the effect.", Relevance: 0.9},
		),
		evidence.NewStubSource("wiki", evidence.TierEncyclopedic).Return(
			evidence.RawItem{Content: "Reviews verified the result.", Relevance: 0.9},
			evidence.RawItem{Content: "The original paper was retracted.", Relevance: 0.9},
		),
	}
	cheap := model.NewMockBackend("cheap").Respond(`{"label":"TRUE","confidence":0.9,"reasoning":"x"}`)
	a := newAgent(t, split, map[model.Tier]model.Backend{
		model.TierCheap:     cheap,
		model.TierReasoning: model.NewMockBackend("reasoning").Respond(`{"label":"TRUE","confidence":0.9,"reasoning":"x"}`),
	})

	v, err := a.Verify(context.Background(), mustClaim(t, "Coffee consumption extends lifespan", claim.Hints{}))
	require.NoError(t, err)
	assert.Equal(t, verdict.Uncertain, v.Label)
	assert.LessOrEqual(t, v.Confidence, 0.5)
}

func TestPromptCarriesStanceMarkers(t *testing.T) {
	cheap := model.NewMockBackend("cheap").Respond(`{"label":"TRUE","confidence":0.9,"reasoning":"x"}`)
	a := newAgent(t, strongEvidence(), map[model.Tier]model.Backend{model.TierCheap: cheap})

	_, err := a.Verify(context.Background(), mustClaim(t, "Water boils at 100 degrees Celsius at sea level", claim.Hints{}))
	require.NoError(t, err)

	prompts := cheap.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "stance: supports")
	assert.True(t, strings.Contains(prompts[0], "Water boils"))
}

func TestSpecialistProfiles(t *testing.T) {
	agg := evidence.NewAggregator(nil, nil, evidence.AggregatorConfig{}, nil)
	router := model.NewRouter(model.RouterConfig{}, nil, nil)

	sci := NewScience("sci", agg, router)
	assert.Contains(t, sci.Profile().Capabilities, registry.CapabilityScience)
	assert.InDelta(t, 0.9, sci.Profile().DomainExpertise[claim.DomainScience], 1e-9)
	assert.InDelta(t, 0.7, sci.Profile().DomainExpertise[claim.DomainHealth], 1e-9)

	news := NewNews("news", agg, router)
	assert.Contains(t, news.Profile().Capabilities, registry.CapabilityNewsRecency)

	tech := NewTech("tech", agg, router)
	assert.Contains(t, tech.Profile().Capabilities, registry.CapabilityTechnicalDocs)

	gen := NewGeneralist("gen", agg, router)
	assert.Contains(t, gen.Profile().Capabilities, registry.CapabilityGeneralist)
}

func TestScienceTreatsSimpleAsModerate(t *testing.T) {
	// A simple claim with near-threshold evidence quality stays off the cheap
	// tier only through the complexity override; verify the override directly.
	agg := evidence.NewAggregator(nil, nil, evidence.AggregatorConfig{}, nil)
	router := model.NewRouter(model.RouterConfig{}, nil, nil)
	sci := NewScience("sci", agg, router)

	c := mustClaim(t, "Water is wet", claim.Hints{})
	require.Equal(t, claim.ComplexitySimple, c.Complexity)
	assert.Equal(t, claim.ComplexityModerate, sci.complexity(c))
	assert.Equal(t, claim.ComplexityComplex, sci.complexity(&claim.Claim{Complexity: claim.ComplexityComplex}))
}

func TestRecencyWeight(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	transform := recencyWeight(func() time.Time { return now })

	fresh := evidence.Item{Relevance: 1.0, Timestamp: now}
	transform(&fresh)
	assert.InDelta(t, 1.0, fresh.Relevance, 1e-9)

	dayOld := evidence.Item{Relevance: 1.0, Timestamp: now.Add(-24 * time.Hour)}
	transform(&dayOld)
	assert.InDelta(t, 0.5+0.5/2.718281828459045, dayOld.Relevance, 1e-6)

	ancient := evidence.Item{Relevance: 1.0, Timestamp: now.Add(-90 * 24 * time.Hour)}
	transform(&ancient)
	assert.InDelta(t, 0.5, ancient.Relevance, 1e-3)
	assert.Greater(t, ancient.Relevance, 0.49, "recency never zeroes relevance")
}
