package reputation

import (
	"math"
	"testing"
	"time"

	"github.com/consensusnet/consensusnet/internal/claim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func TestOverallFormulaInvariant(t *testing.T) {
	s := NewStore(Config{})
	events := []Event{
		{AgentID: "a", Kind: VerificationCorrect, At: t0},
		{AgentID: "a", Kind: ConsensusAligned, At: t0.Add(time.Hour)},
		{AgentID: "a", Kind: ChallengeUpheld, At: t0.Add(2 * time.Hour)},
		{AgentID: "a", Kind: CollaborationHarmful, At: t0.Add(3 * time.Hour)},
		{AgentID: "a", Kind: VerificationIncorrect, At: t0.Add(4 * time.Hour)},
	}
	for _, ev := range events {
		s.Apply(ev)
	}

	rec := s.Snapshot("a")
	for _, v := range []float64{rec.Accuracy, rec.Reliability, rec.Expertise, rec.Collaboration, rec.Overall} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	want := 0.45*rec.Accuracy + 0.25*rec.Reliability + 0.20*rec.Expertise + 0.10*rec.Collaboration
	assert.InDelta(t, want, rec.Overall, 1e-12)
	assert.Equal(t, 5, rec.EventCount)
}

func TestEWMAUpdate(t *testing.T) {
	s := NewStore(Config{Alpha: 0.1})
	s.Apply(Event{AgentID: "a", Kind: VerificationCorrect, At: t0})

	rec := s.Snapshot("a")
	// First event: no decay (fresh record), 0.9*0.5 + 0.1*1.0.
	assert.InDelta(t, 0.55, rec.Accuracy, 1e-9)

	s.Apply(Event{AgentID: "a", Kind: VerificationCorrect, At: t0.Add(time.Minute)})
	rec2 := s.Snapshot("a")
	assert.Greater(t, rec2.Accuracy, rec.Accuracy, "repeated correct verifications raise accuracy")
}

func TestTimeDecay(t *testing.T) {
	halfLife := 30 * 24 * time.Hour
	s := NewStore(Config{Alpha: 0.1, HalfLife: halfLife})
	s.Apply(Event{AgentID: "a", Kind: VerificationCorrect, At: t0})
	base := s.Snapshot("a").Accuracy

	// A second event after one tau decays the held value by e^-1.
	s.Apply(Event{AgentID: "a", Kind: VerificationCorrect, At: t0.Add(halfLife)})
	got := s.Snapshot("a").Accuracy
	want := 0.9*base*math.Exp(-1) + 0.1*1.0
	assert.InDelta(t, want, got, 1e-9)
}

func TestReplayDeterminism(t *testing.T) {
	stream := []Event{
		{AgentID: "a", Kind: VerificationCorrect, Domain: claim.DomainScience, At: t0},
		{AgentID: "a", Kind: ConsensusAligned, At: t0.Add(time.Hour)},
		{AgentID: "b", Kind: VerificationIncorrect, Domain: claim.DomainScience, At: t0.Add(2 * time.Hour)},
		{AgentID: "a", Kind: ChallengeRebutted, Domain: claim.DomainScience, At: t0.Add(26 * time.Hour)},
		{AgentID: "b", Kind: CollaborationHelpful, At: t0.Add(40 * time.Hour)},
	}

	replay := func() (Record, Record, Record) {
		s := NewStore(Config{})
		for _, ev := range stream {
			s.Apply(ev)
		}
		return s.Snapshot("a"), s.Snapshot("b"), s.DomainSnapshot("a", claim.DomainScience)
	}

	a1, b1, d1 := replay()
	a2, b2, d2 := replay()
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.Equal(t, d1, d2)
}

func TestDomainRecordsAreParallel(t *testing.T) {
	s := NewStore(Config{})
	s.Apply(Event{AgentID: "a", Kind: VerificationCorrect, Domain: claim.DomainHealth, At: t0})
	s.Apply(Event{AgentID: "a", Kind: VerificationIncorrect, Domain: claim.DomainTech, At: t0})

	health := s.DomainSnapshot("a", claim.DomainHealth)
	tech := s.DomainSnapshot("a", claim.DomainTech)
	assert.Greater(t, health.Accuracy, tech.Accuracy)

	// Unseen domain falls back to the global record.
	news := s.DomainSnapshot("a", claim.DomainNews)
	assert.Equal(t, s.Snapshot("a"), news)
}

func TestUnknownAgentNeutral(t *testing.T) {
	s := NewStore(Config{})
	rec := s.Snapshot("ghost")
	assert.InDelta(t, 0.5, rec.Overall, 1e-9)
	assert.InDelta(t, 0.5, s.Trust("ghost", claim.DomainGeneral), 1e-9)
}

func TestTrustBlendsUntilSettled(t *testing.T) {
	s := NewStore(Config{SettledAfter: 10})
	for i := 0; i < 3; i++ {
		s.Apply(Event{AgentID: "a", Kind: VerificationCorrect, At: t0.Add(time.Duration(i) * time.Hour)})
	}
	rec := s.Snapshot("a")
	trust := s.Trust("a", claim.DomainGeneral)
	// Partially settled: trust sits between neutral and the raw overall.
	assert.Greater(t, trust, 0.5-1e-9)
	assert.Less(t, trust, rec.Overall+1e-9)

	for i := 3; i < 10; i++ {
		s.Apply(Event{AgentID: "a", Kind: VerificationCorrect, At: t0.Add(time.Duration(i) * time.Hour)})
	}
	assert.InDelta(t, s.Snapshot("a").Overall, s.Trust("a", claim.DomainGeneral), 1e-12)
}

func TestUnrecognizedEventIgnored(t *testing.T) {
	s := NewStore(Config{})
	s.Apply(Event{AgentID: "a", Kind: EventKind("bogus"), At: t0})
	assert.Equal(t, 0, s.Snapshot("a").EventCount)
}

func TestOverallMonotonicInApplicationOrder(t *testing.T) {
	// Applying only positive accuracy events never lowers overall.
	s := NewStore(Config{})
	prev := s.Snapshot("a").Overall
	for i := 0; i < 20; i++ {
		s.Apply(Event{AgentID: "a", Kind: VerificationCorrect, At: t0.Add(time.Duration(i) * time.Minute)})
		cur := s.Snapshot("a").Overall
		require.GreaterOrEqual(t, cur, prev-1e-12)
		prev = cur
	}
}
