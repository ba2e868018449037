package evidence

import (
	"context"
	"sync"
	"time"

	"github.com/consensusnet/consensusnet/internal/claim"
)

// StubSource is a scripted source for tests and offline runs. It returns its
// configured items for every query, optionally after a delay or with an
// error.
type StubSource struct {
	id   string
	tier SourceTier

	mu    sync.Mutex
	items []RawItem
	err   error
	delay time.Duration
	calls int
}

// NewStubSource creates a stub with a fixed id and tier.
func NewStubSource(id string, tier SourceTier) *StubSource {
	return &StubSource{id: id, tier: tier}
}

// Return sets the items every query yields.
func (s *StubSource) Return(items ...RawItem) *StubSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	return s
}

// FailWith makes every query return err.
func (s *StubSource) FailWith(err error) *StubSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// WithDelay makes queries sleep before answering.
func (s *StubSource) WithDelay(d time.Duration) *StubSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
	return s
}

// Calls reports how many queries were made.
func (s *StubSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *StubSource) ID() string       { return s.id }
func (s *StubSource) Tier() SourceTier { return s.tier }

func (s *StubSource) Query(ctx context.Context, normalized string, domain claim.Domain) ([]RawItem, error) {
	s.mu.Lock()
	s.calls++
	items, err, delay := s.items, s.err, s.delay
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	out := make([]RawItem, len(items))
	copy(out, items)
	return out, nil
}
