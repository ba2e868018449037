package consensusnet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/consensusnet/consensusnet/internal/evidence"
	"github.com/consensusnet/consensusnet/internal/model"
	"github.com/consensusnet/consensusnet/internal/verdict"
	"github.com/consensusnet/consensusnet/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func academicSource(items ...evidence.RawItem) evidence.Source {
	return evidence.NewStubSource("journal", evidence.TierAcademic).Return(items...)
}

func encyclopedicSource(items ...evidence.RawItem) evidence.Source {
	return evidence.NewStubSource("encyclopedia", evidence.TierEncyclopedic).Return(items...)
}

func newEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	// Keep the engine off the network regardless of the host environment.
	t.Setenv("OPENAI_API_KEY", "")
	if cfg != nil {
		cfg.Models.OpenAIKey = ""
	}
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestVerifyWellEvidencedScienceClaim(t *testing.T) {
	cheap := model.NewMockBackend("cheap").
		Respond(`{"label":"TRUE","confidence":0.95,"reasoning":"matches the standard boiling point"}`)
	e := newEngine(t, nil,
		WithModelBackend(TierCheap, cheap),
		WithEvidenceSource(
			academicSource(
				evidence.RawItem{Content: "Measurements verified the boiling point at standard pressure.", Relevance: 0.95},
				evidence.RawItem{Content: "Peer-reviewed studies confirm the value at sea level.", Relevance: 0.9},
				evidence.RawItem{Content: "Repeated experiments demonstrated the same result.", Relevance: 0.9},
			),
			encyclopedicSource(
				evidence.RawItem{Content: "The reference entry confirms 100 degrees Celsius at sea level.", Relevance: 0.95},
			),
		),
	)

	res, err := e.Submit(context.Background(), "Water boils at 100°C at sea level.", ModeSingle, Hints{})
	require.NoError(t, err)

	assert.Equal(t, verdict.True, res.Label)
	assert.GreaterOrEqual(t, res.Confidence, 0.7)
	require.Len(t, res.Verdicts, 1)
	assert.GreaterOrEqual(t, res.Verdicts[0].EvidenceQuality, 0.5)
	assert.Equal(t, string(TierCheap), res.Verdicts[0].ModelTier)
}

func TestVerifyContestedHealthClaimAdversarial(t *testing.T) {
	// Panel of three: two land on FALSE with modest confidence, one on TRUE.
	cheap := model.NewMockBackend("cheap").
		Respond(`{"label":"FALSE","confidence":0.65,"reasoning":"no causal link in the evidence"}`).
		Respond(`{"label":"FALSE","confidence":0.65,"reasoning":"the founding study was retracted"}`).
		Respond(`{"label":"TRUE","confidence":0.55,"reasoning":"some sources allege a link"}`)
	// The debate transcript, in protocol order: prosecutor, then
	// defender/moderator per challenge, highest priority first.
	reasoning := model.NewMockBackend("reasoning").
		Respond(`{"challenges":[
			{"type":"source_credibility","strength":"critical","specificity":1,"impact":1,"text":"the strongest source was retracted"},
			{"type":"bias","strength":"strong","specificity":1,"impact":1,"text":"dissenting studies were ignored"}]}`).
		Respond(`{"stance":"refute","text":"the retraction cut the other way; the remaining corpus is consistent"}`).
		Respond(`{"upheld":false,"rationale":"the defender neutralized the credibility attack"}`).
		Respond(`{"stance":"partially_concede","text":"coverage of dissent was thin, but it does not change the balance"}`).
		Respond(`{"upheld":false,"rationale":"conceded in part, yet the verdict stands"}`)

	e := newEngine(t, nil,
		WithModelBackend(TierCheap, cheap),
		WithModelBackend(TierReasoning, reasoning),
		WithEvidenceSource(
			academicSource(
				evidence.RawItem{Content: "Large cohort studies found no evidence of a link to autism.", Relevance: 0.95},
				evidence.RawItem{Content: "The original study claiming a link was retracted.", Relevance: 0.95},
				evidence.RawItem{Content: "Extensive reviews debunked the claimed association.", Relevance: 0.95},
			),
			encyclopedicSource(
				evidence.RawItem{Content: "Scientific consensus holds the claim is false.", Relevance: 0.9},
			),
		),
	)

	res, err := e.Submit(context.Background(), "Vaccines cause autism.", ModeAdversarial, Hints{})
	require.NoError(t, err)

	require.NotNil(t, res.Debate, "a split panel is contested")
	require.NotEmpty(t, res.Debate.Rounds)

	strongOrWorse := 0
	concessions := 0
	for _, r := range res.Debate.Rounds {
		for _, ex := range r.Exchanges {
			if ex.Challenge.Strength == "strong" || ex.Challenge.Strength == "critical" {
				strongOrWorse++
			}
			if ex.Response != nil && ex.Response.Stance != "refute" {
				concessions++
			}
		}
	}
	assert.GreaterOrEqual(t, strongOrWorse, 2)
	assert.GreaterOrEqual(t, concessions, 1, "the transcript records concessions")

	assert.Equal(t, verdict.False, res.Label)
	assert.GreaterOrEqual(t, res.Confidence, 0.7)
}

func TestVerifyBreakingNewsAllSourcesDown(t *testing.T) {
	e := newEngine(t, nil,
		WithEvidenceSource(
			evidence.NewStubSource("newswire", evidence.TierNews).FailWith(errors.New("feed unavailable")),
			evidence.NewStubSource("archive", evidence.TierWeb).FailWith(errors.New("timeout")),
		),
	)

	res, err := e.Submit(context.Background(), "BREAKING: Event X happened today.",
		ModeMulti, Hints{Urgency: "high"})
	require.NoError(t, err, "dead sources degrade the result, never the request")

	assert.Equal(t, verdict.Uncertain, res.Label)
	assert.Zero(t, res.Confidence)
	assert.True(t, res.Degraded, "an evidence blackout is flagged, not silent")
	for _, v := range res.Verdicts {
		assert.Zero(t, v.EvidenceQuality)
		assert.True(t, v.Degraded)
	}
}

func TestVerifyUnconfirmedMathClaim(t *testing.T) {
	// Only the local heuristic tier is available; neutral evidence keeps
	// every agent at UNCERTAIN.
	e := newEngine(t, nil,
		WithEvidenceSource(
			encyclopedicSource(
				evidence.RawItem{Content: "The conjecture remains one of the open millennium problems.", Relevance: 0.8},
			),
		),
	)

	res, err := e.Submit(context.Background(), "The Riemann hypothesis has been proved.", ModeAdversarial, Hints{})
	require.NoError(t, err)

	assert.Contains(t, []verdict.Label{verdict.Uncertain, verdict.False}, res.Label)
	require.NotNil(t, res.Consensus)
	assert.Nil(t, res.Debate, "a unanimous UNCERTAIN panel is not contested")
}

func TestVerifyTrivialFactHighConfidence(t *testing.T) {
	cheap := model.NewMockBackend("cheap").
		Respond(`{"label":"TRUE","confidence":0.98,"reasoning":"uncontested geography"}`)
	e := newEngine(t, nil,
		WithModelBackend(TierCheap, cheap),
		WithEvidenceSource(
			encyclopedicSource(
				evidence.RawItem{Content: "The entry confirms Warsaw as the capital.", Relevance: 0.98},
				evidence.RawItem{Content: "Government records verified the capital city.", Relevance: 0.98},
				evidence.RawItem{Content: "Atlases consistently show that it is true.", Relevance: 0.98},
			),
		),
	)

	res, err := e.Submit(context.Background(), "Capital of Poland is Warsaw.", ModeSingle, Hints{})
	require.NoError(t, err)

	assert.Equal(t, verdict.True, res.Label)
	assert.GreaterOrEqual(t, res.Confidence, 0.9)
	assert.Equal(t, string(TierCheap), res.Verdicts[0].ModelTier)
}

func TestConcurrentSubmissionsNeitherDeadlockNorDrop(t *testing.T) {
	cfg := config.Default()
	cfg.Pool.Parallelism = 2
	cfg.Pool.QueueSize = 4

	cheap := model.NewMockBackend("cheap").
		Respond(`{"label":"TRUE","confidence":0.9,"reasoning":"ok"}`)
	e := newEngine(t, cfg,
		WithModelBackend(TierCheap, cheap),
		WithEvidenceSource(
			encyclopedicSource(
				evidence.RawItem{Content: "The entry confirms the statement is true.", Relevance: 0.98},
				evidence.RawItem{Content: "Records verified the statement.", Relevance: 0.98},
				evidence.RawItem{Content: "Reference works demonstrated it holds.", Relevance: 0.98},
			),
		),
	)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.Submit(context.Background(), "Capital of Poland is Warsaw.", ModeSingle, Hints{})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "submission %d", i)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	e := newEngine(t, nil)

	_, err := e.Submit(context.Background(), "", ModeSingle, Hints{})
	var pub *Error
	require.ErrorAs(t, err, &pub)
	assert.Equal(t, KindInputInvalid, pub.Kind)
	assert.False(t, pub.Retryable())

	_, err = e.Submit(context.Background(), "fine claim", Mode("vote"), Hints{})
	require.ErrorAs(t, err, &pub)
	assert.Equal(t, KindInputInvalid, pub.Kind)

	_, err = e.Submit(context.Background(), "fine claim", ModeSingle, Hints{DomainOverride: "astrology"})
	require.ErrorAs(t, err, &pub)
	assert.Equal(t, KindInputInvalid, pub.Kind)
}

func TestPrivacyClaimStaysLocal(t *testing.T) {
	cheap := model.NewMockBackend("cheap").
		Respond(`{"label":"TRUE","confidence":0.9,"reasoning":"ok"}`)
	e := newEngine(t, nil,
		WithModelBackend(TierCheap, cheap),
		WithEvidenceSource(
			encyclopedicSource(
				evidence.RawItem{Content: "Internal records confirm the figure; verified twice.", Relevance: 0.95},
				evidence.RawItem{Content: "The audit demonstrated the same number.", Relevance: 0.95},
				evidence.RawItem{Content: "Reports show that it is accurate and true.", Relevance: 0.95},
			),
		),
	)

	res, err := e.Submit(context.Background(), "Our internal revenue figure was audited correctly.",
		ModeSingle, Hints{Privacy: true})
	require.NoError(t, err)

	assert.Equal(t, 0, cheap.Calls(), "privacy claims never leave the process")
	require.Len(t, res.Verdicts, 1)
	assert.Equal(t, string(TierLocal), res.Verdicts[0].ModelTier)
}
