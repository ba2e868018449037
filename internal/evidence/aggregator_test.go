package evidence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/consensusnet/consensusnet/internal/claim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustClaim(t *testing.T, text string, hints claim.Hints) *claim.Claim {
	t.Helper()
	c, err := claim.New(text, hints)
	require.NoError(t, err)
	return c
}

func TestGatherBuildsScoredBundle(t *testing.T) {
	academic := NewStubSource("pubmed", TierAcademic).Return(
		RawItem{Content: "Peer-reviewed studies confirm the claim.", Relevance: 0.9},
	)
	news := NewStubSource("wire", TierNews).Return(
		RawItem{Content: "Reports claim this has been debunked.", Relevance: 0.6},
	)
	agg := NewAggregator([]Source{academic, news}, nil, AggregatorConfig{}, nil)

	c := mustClaim(t, "Vaccines cause autism.", claim.Hints{})
	b, err := agg.Gather(context.Background(), c, Policy{})
	require.NoError(t, err)

	assert.Len(t, b.Supporting, 1)
	assert.Len(t, b.Contradicting, 1)
	assert.Greater(t, b.OverallQuality, 0.0)
	assert.LessOrEqual(t, b.OverallQuality, 1.0)
	assert.ElementsMatch(t, []string{"pubmed", "wire"}, b.SourceIDs())
}

func TestGatherEmptyWhenAllSourcesFail(t *testing.T) {
	down := NewStubSource("down", TierWeb).FailWith(errors.New("boom"))
	agg := NewAggregator([]Source{down}, nil, AggregatorConfig{}, nil)

	b, err := agg.Gather(context.Background(), mustClaim(t, "anything", claim.Hints{}), Policy{})
	require.NoError(t, err)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0.0, b.OverallQuality, "quality must be zero iff bundle empty")
}

func TestGatherSlowSourceTimedOutIndividually(t *testing.T) {
	slow := NewStubSource("slow", TierWeb).
		WithDelay(500 * time.Millisecond).
		Return(RawItem{Content: "late", Relevance: 0.5})
	fast := NewStubSource("fast", TierEncyclopedic).Return(
		RawItem{Content: "evidence that this is accurate", Relevance: 0.8},
	)
	agg := NewAggregator([]Source{slow, fast}, nil, AggregatorConfig{
		SourceTimeout: 50 * time.Millisecond,
	}, nil)

	b, err := agg.Gather(context.Background(), mustClaim(t, "x is y", claim.Hints{}), Policy{})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, "fast", b.Items()[0].SourceID)
}

func TestDedupeKeepsHighestCredibility(t *testing.T) {
	items := []Item{
		{Content: "The Earth orbits the Sun.", SourceID: "a", Credibility: 0.5, Relevance: 0.8},
		{Content: "the earth   orbits the sun.", SourceID: "b", Credibility: 0.9, Relevance: 0.8},
		{Content: "Something else entirely.", SourceID: "c", Credibility: 0.4, Relevance: 0.3},
	}
	out := dedupe(items)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].SourceID)
}

func TestStanceClassification(t *testing.T) {
	tests := []struct {
		content string
		want    Stance
	}{
		{"Multiple studies have demonstrated and verified this result.", StanceSupports},
		{"This claim has been thoroughly debunked; there is no evidence for it.", StanceContradicts},
		{"The topic was discussed at the conference.", StanceNeutral},
		{"Although some say it is true, the paper was retracted and refuted.", StanceContradicts},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyStance("claim", tt.content), "content %q", tt.content)
	}
}

func TestPolicyPenalizeTiersDampsRelevance(t *testing.T) {
	news := NewStubSource("tabloid", TierNews).Return(
		RawItem{Content: "confirms the story", Relevance: 1.0},
	)
	agg := NewAggregator([]Source{news}, nil, AggregatorConfig{}, nil)

	b, err := agg.Gather(context.Background(), mustClaim(t, "x", claim.Hints{}),
		Policy{PenalizeTiers: []SourceTier{TierNews}})
	require.NoError(t, err)
	require.Equal(t, 1, b.Len())
	assert.InDelta(t, 0.5, b.Items()[0].Relevance, 1e-9)
}

func TestPolicyTransformApplied(t *testing.T) {
	src := NewStubSource("s", TierWeb).Return(RawItem{Content: "supports it", Relevance: 0.8})
	agg := NewAggregator([]Source{src}, nil, AggregatorConfig{}, nil)

	b, err := agg.Gather(context.Background(), mustClaim(t, "x", claim.Hints{}),
		Policy{Transform: func(it *Item) { it.Relevance = 0.1 }})
	require.NoError(t, err)
	require.Equal(t, 1, b.Len())
	assert.InDelta(t, 0.1, b.Items()[0].Relevance, 1e-9)
}

func TestCredibilityUpdateRule(t *testing.T) {
	c := NewCredibility(0.3)
	c.Register("src", TierNews, 0.6)

	c.Update("src", 1.0, OriginExternal)
	assert.InDelta(t, 0.7*0.6+0.3*1.0, c.Get("src"), 1e-9)

	// Debate-derived feedback applies at half weight.
	c2 := NewCredibility(0.3)
	c2.Register("src", TierNews, 0.6)
	c2.Update("src", 1.0, OriginDebate)
	assert.InDelta(t, 0.85*0.6+0.15*1.0, c2.Get("src"), 1e-9)
}

func TestCredibilityTierBounds(t *testing.T) {
	c := NewCredibility(0.9)
	c.Register("journal", TierAcademic, 0.9)
	for i := 0; i < 20; i++ {
		c.Update("journal", 0.0, OriginExternal)
	}
	assert.GreaterOrEqual(t, c.Get("journal"), 0.75, "academic floor must hold")

	c.Register("blog", TierWeb, 0.4)
	for i := 0; i < 20; i++ {
		c.Update("blog", 1.0, OriginExternal)
	}
	assert.LessOrEqual(t, c.Get("blog"), 0.70, "web ceiling must hold")
}

func TestBundleQualityBounds(t *testing.T) {
	// Mass far above max_expected clamps to 1.
	items := make([]Item, 10)
	for i := range items {
		items[i] = Item{Content: string(rune('a' + i)), Credibility: 1, Relevance: 1, Stance: StanceSupports}
	}
	b := newBundle(items, claim.DomainGeneral)
	assert.Equal(t, 1.0, b.OverallQuality)

	// Zero-mass non-empty bundle still has nonzero quality.
	b = newBundle([]Item{{Content: "x", Credibility: 0, Relevance: 0}}, claim.DomainGeneral)
	assert.Greater(t, b.OverallQuality, 0.0)
}
