// Package reputation tracks per-agent, per-domain performance as a
// time-decayed EWMA over an append-only event stream, and exposes the trust
// weights the consensus engine uses. Updates are serialized per agent;
// readers observe consistent snapshots.
package reputation

import (
	"math"
	"sync"
	"time"

	"github.com/consensusnet/consensusnet/internal/claim"
	"github.com/consensusnet/consensusnet/internal/verdict"
)

// EventKind is a recognized reputation event.
type EventKind string

const (
	VerificationCorrect     EventKind = "verification_correct"
	VerificationIncorrect   EventKind = "verification_incorrect"
	ChallengeUpheld         EventKind = "challenge_upheld"
	ChallengeRebutted       EventKind = "challenge_rebutted"
	ConsensusAligned        EventKind = "consensus_aligned"
	ConsensusOutlierCorrect EventKind = "consensus_outlier_correct"
	CollaborationHelpful    EventKind = "collaboration_helpful"
	CollaborationHarmful    EventKind = "collaboration_harmful"
)

// dimension identifies one of the four tracked performance dimensions.
type dimension int

const (
	dimAccuracy dimension = iota
	dimReliability
	dimExpertise
	dimCollaboration
)

// contribution maps an event kind to the dimension it moves and the target
// value of the observation.
var contribution = map[EventKind]struct {
	dim   dimension
	value float64
}{
	VerificationCorrect:     {dimAccuracy, 1.0},
	VerificationIncorrect:   {dimAccuracy, 0.0},
	ChallengeUpheld:         {dimExpertise, 1.0},
	ChallengeRebutted:       {dimExpertise, 0.0},
	ConsensusAligned:        {dimReliability, 1.0},
	ConsensusOutlierCorrect: {dimExpertise, 1.0},
	CollaborationHelpful:    {dimCollaboration, 1.0},
	CollaborationHarmful:    {dimCollaboration, 0.0},
}

// Overall weighting of the four dimensions.
const (
	weightAccuracy      = 0.45
	weightReliability   = 0.25
	weightExpertise     = 0.20
	weightCollaboration = 0.10
)

// Event is one reputation observation. Domain is optional; domain-tagged
// events update both the global and the domain record.
type Event struct {
	AgentID string
	Kind    EventKind
	Domain  claim.Domain
	At      time.Time
}

// Record is a point-in-time reputation snapshot. All values are in [0,1].
type Record struct {
	Accuracy      float64
	Reliability   float64
	Expertise     float64
	Collaboration float64
	Overall       float64
	LastUpdate    time.Time
	EventCount    int
}

func newRecord() Record {
	// Unknown agents start at the neutral midpoint.
	r := Record{Accuracy: 0.5, Reliability: 0.5, Expertise: 0.5, Collaboration: 0.5}
	r.Overall = overallOf(r)
	return r
}

func overallOf(r Record) float64 {
	return weightAccuracy*r.Accuracy +
		weightReliability*r.Reliability +
		weightExpertise*r.Expertise +
		weightCollaboration*r.Collaboration
}

// Config tunes the EWMA.
type Config struct {
	// Alpha is the EWMA learning rate. Default 0.1.
	Alpha float64
	// HalfLife is the decay constant tau. Default 30 days.
	HalfLife time.Duration
	// SettledAfter is the minimum event count before a reputation is
	// considered settled; below it, Trust blends toward the neutral 0.5.
	// Default 10.
	SettledAfter int
}

func (c Config) withDefaults() Config {
	if c.Alpha <= 0 {
		c.Alpha = 0.1
	}
	if c.HalfLife <= 0 {
		c.HalfLife = 30 * 24 * time.Hour
	}
	if c.SettledAfter <= 0 {
		c.SettledAfter = 10
	}
	return c
}

type agentRep struct {
	mu      sync.Mutex
	global  Record
	domains map[claim.Domain]Record
}

// Store is the event-sourced reputation store.
type Store struct {
	mu     sync.RWMutex
	agents map[string]*agentRep
	cfg    Config
}

// NewStore creates a store with the given configuration.
func NewStore(cfg Config) *Store {
	return &Store{
		agents: make(map[string]*agentRep),
		cfg:    cfg.withDefaults(),
	}
}

// Apply folds one event into the agent's records. Events must carry their
// observation time; replaying the same stream from an empty store is
// deterministic.
func (s *Store) Apply(ev Event) {
	contrib, ok := contribution[ev.Kind]
	if !ok {
		return
	}
	rep := s.repFor(ev.AgentID)

	rep.mu.Lock()
	defer rep.mu.Unlock()
	rep.global = s.applyTo(rep.global, contrib.dim, contrib.value, ev.At)
	if ev.Domain != "" {
		rec, ok := rep.domains[ev.Domain]
		if !ok {
			rec = newRecord()
		}
		rep.domains[ev.Domain] = s.applyTo(rec, contrib.dim, contrib.value, ev.At)
	}
}

func (s *Store) applyTo(rec Record, dim dimension, value float64, at time.Time) Record {
	decay := 1.0
	if !rec.LastUpdate.IsZero() && at.After(rec.LastUpdate) {
		dt := at.Sub(rec.LastUpdate)
		decay = math.Exp(-dt.Seconds() / s.cfg.HalfLife.Seconds())
	}
	alpha := s.cfg.Alpha

	update := func(old float64, active bool) float64 {
		if !active {
			return old
		}
		return verdict.Clamp01((1-alpha)*old*decay + alpha*value)
	}
	rec.Accuracy = update(rec.Accuracy, dim == dimAccuracy)
	rec.Reliability = update(rec.Reliability, dim == dimReliability)
	rec.Expertise = update(rec.Expertise, dim == dimExpertise)
	rec.Collaboration = update(rec.Collaboration, dim == dimCollaboration)
	rec.Overall = overallOf(rec)
	rec.LastUpdate = at
	rec.EventCount++
	return rec
}

func (s *Store) repFor(agentID string) *agentRep {
	s.mu.RLock()
	rep, ok := s.agents[agentID]
	s.mu.RUnlock()
	if ok {
		return rep
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rep, ok = s.agents[agentID]; ok {
		return rep
	}
	rep = &agentRep{global: newRecord(), domains: make(map[claim.Domain]Record)}
	s.agents[agentID] = rep
	return rep
}

// Snapshot returns the agent's global record. Unknown agents get the neutral
// starting record.
func (s *Store) Snapshot(agentID string) Record {
	s.mu.RLock()
	rep, ok := s.agents[agentID]
	s.mu.RUnlock()
	if !ok {
		return newRecord()
	}
	rep.mu.Lock()
	defer rep.mu.Unlock()
	return rep.global
}

// DomainSnapshot returns the agent's record for a domain, falling back to
// the global record when no domain events were seen.
func (s *Store) DomainSnapshot(agentID string, domain claim.Domain) Record {
	s.mu.RLock()
	rep, ok := s.agents[agentID]
	s.mu.RUnlock()
	if !ok {
		return newRecord()
	}
	rep.mu.Lock()
	defer rep.mu.Unlock()
	if rec, ok := rep.domains[domain]; ok {
		return rec
	}
	return rep.global
}

// Trust returns the weight used when aggregating this agent's verdicts in
// the given domain. Unsettled reputations (fewer than SettledAfter events)
// are blended toward the neutral midpoint so a few lucky events cannot
// dominate.
func (s *Store) Trust(agentID string, domain claim.Domain) float64 {
	rec := s.DomainSnapshot(agentID, domain)
	if rec.EventCount >= s.cfg.SettledAfter {
		return rec.Overall
	}
	frac := float64(rec.EventCount) / float64(s.cfg.SettledAfter)
	return 0.5*(1-frac) + rec.Overall*frac
}
