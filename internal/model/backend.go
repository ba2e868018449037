// Package model abstracts the language-model layer behind three tiers and a
// deterministic router. The rest of the core never branches on which concrete
// provider served a call; flakiness is absorbed here by the tier ladder.
package model

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Tier is an abstract class of model backend.
type Tier string

const (
	// TierCheap is the high-throughput, low-cost tier.
	TierCheap Tier = "cheap"
	// TierReasoning is the slower tier used for complex claims or weak
	// evidence.
	TierReasoning Tier = "reasoning"
	// TierLocal never leaves the process; mandated for privacy-flagged
	// requests and used as the last rung of the escalation ladder.
	TierLocal Tier = "local"
)

// Next returns the tier one rung up the escalation ladder.
func (t Tier) Next() (Tier, bool) {
	switch t {
	case TierCheap:
		return TierReasoning, true
	case TierReasoning:
		return TierLocal, true
	}
	return "", false
}

// Response is the outcome of a completed model call.
type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
	Latency   time.Duration
}

// Backend is a single model endpoint. Implementations must honor context
// cancellation and deadlines.
type Backend interface {
	// Name identifies the backend for logging and metrics.
	Name() string

	// Complete runs one chat-completion call for the prompt.
	Complete(ctx context.Context, prompt string) (*Response, error)
}

// ErrorKind classifies backend failures for the router's recovery policy.
type ErrorKind string

const (
	// ErrTransient calls are retried once with jitter.
	ErrTransient ErrorKind = "transient"
	// ErrRateLimited calls back off and move to the next tier.
	ErrRateLimited ErrorKind = "rate_limited"
	// ErrPermanent calls fall through to the local tier.
	ErrPermanent ErrorKind = "permanent"
)

// BackendError is the classified failure of a model call.
type BackendError struct {
	Backend string
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %s (%s)", e.Backend, e.Message, e.Kind)
}

func (e *BackendError) Unwrap() error { return e.Err }

// KindOf extracts the error kind, defaulting to permanent for unclassified
// errors and transient for deadline expiry.
func KindOf(err error) ErrorKind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTransient
	}
	return ErrPermanent
}
