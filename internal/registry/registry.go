// Package registry maintains the live set of verification agents, their
// declared capabilities, availability, and load, and answers capability-set
// queries ranked by domain fit. Matching is by capability, never by concrete
// agent type.
package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/consensusnet/consensusnet/internal/claim"
	"github.com/consensusnet/consensusnet/pkg/observability"
)

// Capability is a named feature an agent declares.
type Capability string

const (
	CapabilityVerify        Capability = "verify"
	CapabilityScience       Capability = "science"
	CapabilityNewsRecency   Capability = "news_recency"
	CapabilityTechnicalDocs Capability = "technical_docs"
	CapabilityGeneralist    Capability = "generalist"
)

// Availability of an agent.
type Availability string

const (
	Idle     Availability = "idle"
	Busy     Availability = "busy"
	Draining Availability = "draining"
)

// Profile describes one registered agent.
type Profile struct {
	AgentID         string
	Capabilities    []Capability
	DomainExpertise map[claim.Domain]float64
	MaxLoad         int
}

// TrustFunc supplies the reputation overall score for ranking. The registry
// never reads the reputation store directly.
type TrustFunc func(agentID string, domain claim.Domain) float64

var (
	ErrAlreadyRegistered = errors.New("agent already registered")
	ErrNotRegistered     = errors.New("agent not registered")
)

type entry struct {
	mu           sync.Mutex
	profile      Profile
	capabilities map[Capability]bool
	availability Availability
	load         int
	missedBeats  int
}

func (e *entry) loadFactor() float64 {
	if e.profile.MaxLoad <= 0 {
		return 0
	}
	f := float64(e.load) / float64(e.profile.MaxLoad)
	if f > 1 {
		f = 1
	}
	return f
}

// Registry is the thread-safe agent directory.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds an agent profile. Agents register on startup.
func (r *Registry) Register(p Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[p.AgentID]; ok {
		return ErrAlreadyRegistered
	}
	caps := make(map[Capability]bool, len(p.Capabilities))
	for _, c := range p.Capabilities {
		caps[c] = true
	}
	if p.MaxLoad <= 0 {
		p.MaxLoad = 4
	}
	r.entries[p.AgentID] = &entry{
		profile:      p,
		capabilities: caps,
		availability: Idle,
	}
	observability.RegisteredAgents.Set(float64(len(r.entries)))
	return nil
}

// Deregister removes an agent, e.g. on graceful shutdown.
func (r *Registry) Deregister(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[agentID]; !ok {
		return ErrNotRegistered
	}
	delete(r.entries, agentID)
	observability.RegisteredAgents.Set(float64(len(r.entries)))
	return nil
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Heartbeat resets the missed-beat counter for an agent.
func (r *Registry) Heartbeat(agentID string) error {
	e, err := r.get(agentID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.missedBeats = 0
	e.mu.Unlock()
	return nil
}

// MissHeartbeat records one missed heartbeat and returns the new count.
func (r *Registry) MissHeartbeat(agentID string) (int, error) {
	e, err := r.get(agentID)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	e.missedBeats++
	n := e.missedBeats
	e.mu.Unlock()
	return n, nil
}

// SweepExpired deregisters agents with at least maxMissed consecutive missed
// heartbeats and returns their ids.
func (r *Registry) SweepExpired(maxMissed int) []string {
	if maxMissed <= 0 {
		maxMissed = 3
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, e := range r.entries {
		e.mu.Lock()
		expired := e.missedBeats >= maxMissed
		e.mu.Unlock()
		if expired {
			delete(r.entries, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		observability.RegisteredAgents.Set(float64(len(r.entries)))
	}
	sort.Strings(removed)
	return removed
}

// Acquire marks the agent as carrying one more in-flight task.
func (r *Registry) Acquire(agentID string) error {
	e, err := r.get(agentID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.load++
	if e.load >= e.profile.MaxLoad {
		e.availability = Busy
	}
	e.mu.Unlock()
	return nil
}

// Release marks one in-flight task as done.
func (r *Registry) Release(agentID string) {
	e, err := r.get(agentID)
	if err != nil {
		return
	}
	e.mu.Lock()
	if e.load > 0 {
		e.load--
	}
	if e.load < e.profile.MaxLoad && e.availability == Busy {
		e.availability = Idle
	}
	e.mu.Unlock()
}

// SetDraining marks an agent as draining; it stops matching queries.
func (r *Registry) SetDraining(agentID string) error {
	e, err := r.get(agentID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.availability = Draining
	e.mu.Unlock()
	return nil
}

func (r *Registry) get(agentID string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[agentID]
	if !ok {
		return nil, ErrNotRegistered
	}
	return e, nil
}

// Ranked is one query result with its computed ranking score.
type Ranked struct {
	Profile Profile
	Score   float64
}

// Query returns agents whose capability set contains all required
// capabilities, ranked by
// 0.6*domain_expertise + 0.3*reputation_overall + 0.1*(1-load_factor),
// ties broken by lexicographic agent id. Draining agents never match.
func (r *Registry) Query(required []Capability, domain claim.Domain, trust TrustFunc) []Ranked {
	r.mu.RLock()
	snapshot := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, e)
	}
	r.mu.RUnlock()

	var out []Ranked
	for _, e := range snapshot {
		e.mu.Lock()
		if e.availability == Draining {
			e.mu.Unlock()
			continue
		}
		match := true
		for _, c := range required {
			if !e.capabilities[c] {
				match = false
				break
			}
		}
		if !match {
			e.mu.Unlock()
			continue
		}
		expertise := e.profile.DomainExpertise[domain]
		loadFactor := e.loadFactor()
		profile := e.profile
		e.mu.Unlock()

		rep := 0.5
		if trust != nil {
			rep = trust(profile.AgentID, domain)
		}
		out = append(out, Ranked{
			Profile: profile,
			Score:   0.6*expertise + 0.3*rep + 0.1*(1-loadFactor),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Profile.AgentID < out[j].Profile.AgentID
	})
	return out
}
