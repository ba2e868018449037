package consensusnet

import (
	"context"
	"errors"
	"fmt"

	"github.com/consensusnet/consensusnet/internal/claim"
	"github.com/consensusnet/consensusnet/internal/model"
	"github.com/consensusnet/consensusnet/internal/pool"
)

// ErrorKind is the public failure taxonomy.
type ErrorKind string

const (
	KindInputInvalid     ErrorKind = "INPUT_INVALID"
	KindNoCapableAgent   ErrorKind = "NO_CAPABLE_AGENT"
	KindOverloaded       ErrorKind = "OVERLOADED"
	KindModelUnavailable ErrorKind = "MODEL_UNAVAILABLE"
	KindIncomplete       ErrorKind = "INCOMPLETE"
	KindCancelled        ErrorKind = "CANCELLED"
	KindInternal         ErrorKind = "INTERNAL"
)

// Error is the only error type Submit returns.
type Error struct {
	Kind      ErrorKind
	Message   string
	RequestID string
	cause     error
}

func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s: %s (request %s)", e.Kind, e.Message, e.RequestID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether retrying the same request might succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindOverloaded, KindModelUnavailable, KindIncomplete:
		return true
	}
	return false
}

// wrapError folds internal errors into the public taxonomy.
func wrapError(err error) *Error {
	var pub *Error
	if errors.As(err, &pub) {
		return pub
	}

	kind := KindInternal
	switch {
	case errors.Is(err, claim.ErrEmpty),
		errors.Is(err, claim.ErrTooLong),
		errors.Is(err, claim.ErrBadHint),
		errors.Is(err, pool.ErrBadMode):
		kind = KindInputInvalid
	case errors.Is(err, pool.ErrOverloaded):
		kind = KindOverloaded
	case errors.Is(err, pool.ErrNoCapableAgent):
		kind = KindNoCapableAgent
	case errors.Is(err, pool.ErrIncomplete):
		kind = KindIncomplete
	case errors.Is(err, model.ErrEscalationExhausted), errors.Is(err, model.ErrNoBackend):
		kind = KindModelUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = KindCancelled
	}
	return &Error{Kind: kind, Message: err.Error(), cause: err}
}
