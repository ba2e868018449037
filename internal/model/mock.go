package model

import (
	"context"
	"sync"
	"time"
)

// MockBackend is a scripted backend for tests. Responses and errors are
// consumed in order; the last entry repeats once the script is exhausted.
type MockBackend struct {
	name string

	mu      sync.Mutex
	script  []mockStep
	idx     int
	prompts []string
	delay   time.Duration
}

type mockStep struct {
	text string
	err  error
}

// NewMockBackend creates an empty mock; use Respond/Fail to script it.
func NewMockBackend(name string) *MockBackend {
	return &MockBackend{name: name}
}

// Respond appends a successful completion to the script.
func (m *MockBackend) Respond(text string) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{text: text})
	return m
}

// Fail appends a classified failure to the script.
func (m *MockBackend) Fail(kind ErrorKind, msg string) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{err: &BackendError{Backend: m.name, Kind: kind, Message: msg}})
	return m
}

// WithDelay makes every call sleep, for deadline and cancellation tests.
func (m *MockBackend) WithDelay(d time.Duration) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Prompts returns the prompts seen so far.
func (m *MockBackend) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// Calls returns how many completions were requested.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func (m *MockBackend) Name() string { return m.name }

func (m *MockBackend) Complete(ctx context.Context, prompt string) (*Response, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	if len(m.script) == 0 {
		m.mu.Unlock()
		return nil, &BackendError{Backend: m.name, Kind: ErrPermanent, Message: "mock script empty"}
	}
	step := m.script[m.idx]
	if m.idx < len(m.script)-1 {
		m.idx++
	}
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.err != nil {
		return nil, step.err
	}
	return &Response{Text: step.text, TokensIn: 10, TokensOut: 20, Latency: delay}, nil
}
