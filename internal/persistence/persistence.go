// Package persistence is the optional result sink. Writes are fire and
// forget: verification latency never waits on storage, and a failing sink
// never fails a request.
package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Record is one stored verification outcome.
type Record struct {
	RequestID string    `json:"request_id"`
	ClaimText string    `json:"claim_text"`
	Payload   any       `json:"payload"`
	StoredAt  time.Time `json:"stored_at"`
}

// Sink stores verification records.
type Sink interface {
	Store(ctx context.Context, rec Record) error
	Close() error
}

// Async wraps a sink with a bounded queue and a single writer goroutine.
// When the queue is full the oldest pending record is dropped; results are
// telemetry, not ledger entries.
type Async struct {
	sink   Sink
	queue  chan Record
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	dropped int
}

// NewAsync starts the writer goroutine. queueSize defaults to 128.
func NewAsync(sink Sink, queueSize int, logger *slog.Logger) *Async {
	if queueSize <= 0 {
		queueSize = 128
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		sink:   sink,
		queue:  make(chan Record, queueSize),
		logger: logger.With("component", "persistence"),
		done:   make(chan struct{}),
	}
	go a.drain()
	return a
}

// Enqueue queues a record without blocking. A full queue drops the oldest
// pending record to make room.
func (a *Async) Enqueue(rec Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now().UTC()
	}
	for {
		select {
		case a.queue <- rec:
			return
		default:
		}
		select {
		case <-a.queue:
			a.dropped++
		default:
		}
	}
}

// Dropped reports how many records were displaced by backpressure.
func (a *Async) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close stops accepting records, flushes the queue, and closes the sink.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.sink.Close()
}

func (a *Async) drain() {
	defer close(a.done)
	for rec := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.sink.Store(ctx, rec); err != nil {
			a.logger.Debug("sink write failed", slog.String("request", rec.RequestID), slog.String("error", err.Error()))
		}
		cancel()
	}
}

// NopSink discards everything. The default when persistence is disabled.
type NopSink struct{}

func (NopSink) Store(context.Context, Record) error { return nil }
func (NopSink) Close() error                        { return nil }

// MemorySink keeps the most recent records in a bounded ring. Used in tests
// and single-process deployments.
type MemorySink struct {
	mu   sync.Mutex
	recs []Record
	cap  int
}

// NewMemorySink creates a ring of the given capacity (default 1024).
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemorySink{cap: capacity}
}

func (m *MemorySink) Store(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	if len(m.recs) > m.cap {
		m.recs = m.recs[len(m.recs)-m.cap:]
	}
	return nil
}

func (m *MemorySink) Close() error { return nil }

// Records returns a copy of the stored records, oldest first.
func (m *MemorySink) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.recs))
	copy(out, m.recs)
	return out
}
