// Package bus provides the in-process message bus agents use to exchange
// typed messages. Delivery is at-most-once per (message, recipient),
// priority-ordered within a recipient's queue, FIFO per sender within equal
// priority, and TTL-bounded. Back-pressure is per subscriber: a slow
// subscriber blocks only publishers targeting it, never the whole bus.
package bus

import (
	"container/heap"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/consensusnet/consensusnet/pkg/observability"
	"github.com/google/uuid"
)

// ErrClosed is returned by Publish after the bus has been shut down.
var ErrClosed = errors.New("bus closed")

// Predicate filters messages beyond kind matching. A nil predicate accepts
// everything.
type Predicate func(*Message) bool

// Bus routes messages to subscribers. The zero value is not usable; call New.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool
	seq    atomic.Uint64

	queueSize int
	logger    *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueSize bounds each subscriber's pending queue. Default 64.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithLogger sets the bus logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a message bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:      make(map[string]*subscriber),
		queueSize: 64,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "bus")
	return b
}

// Subscription is a bounded stream of messages for one subscriber.
type Subscription struct {
	sub *subscriber
	bus *Bus
}

// C returns the receive channel. It is closed when the subscription is
// closed.
func (s *Subscription) C() <-chan *Message { return s.sub.out }

// Close detaches the subscriber. Pending undelivered messages are discarded.
func (s *Subscription) Close() {
	s.bus.removeSubscriber(s.sub.id)
	s.sub.close()
}

// Subscribe registers interest in the given kinds for the named recipient.
// Unicast messages are matched by recipient; broadcasts by kind. The
// optional predicate further filters deliveries.
func (b *Bus) Subscribe(recipient string, kinds []Kind, pred Predicate) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := newSubscriber(uuid.New().String(), recipient, kinds, pred, b.queueSize)
	b.subs[sub.id] = sub
	go sub.deliverLoop()
	return &Subscription{sub: sub, bus: b}, nil
}

// Publish enqueues the message for every matching subscriber. It blocks only
// on subscribers whose queues are full, one at a time, and returns ErrClosed
// if the bus has been shut down.
func (b *Bus) Publish(msg *Message) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.matches(msg) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	msg.seq = b.seq.Add(1)
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}
	observability.BusPublishedTotal.WithLabelValues(string(msg.Kind)).Inc()

	for _, sub := range targets {
		if !sub.enqueue(msg) {
			// Subscriber closed between snapshot and enqueue; skip it rather
			// than failing the publish.
			observability.BusSkippedTotal.Inc()
			b.logger.Debug("skipping closed subscriber",
				slog.String("recipient", sub.recipient),
				slog.String("message_id", msg.ID))
		}
	}
	return nil
}

// Close shuts the bus down. Subsequent publishes fail with ErrClosed and all
// subscriptions are closed.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[string]*subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

func (b *Bus) removeSubscriber(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// subscriber holds one recipient's bounded priority queue and delivery loop.
type subscriber struct {
	id        string
	recipient string
	kinds     map[Kind]bool
	pred      Predicate

	mu     sync.Mutex
	cond   *sync.Cond
	queue  msgHeap
	max    int
	closed bool

	out  chan *Message
	done chan struct{}
}

func newSubscriber(id, recipient string, kinds []Kind, pred Predicate, max int) *subscriber {
	s := &subscriber{
		id:        id,
		recipient: recipient,
		kinds:     make(map[Kind]bool, len(kinds)),
		pred:      pred,
		max:       max,
		out:       make(chan *Message),
		done:      make(chan struct{}),
	}
	for _, k := range kinds {
		s.kinds[k] = true
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscriber) matches(msg *Message) bool {
	if len(s.kinds) > 0 && !s.kinds[msg.Kind] {
		return false
	}
	if msg.To != "" && msg.To != s.recipient {
		return false
	}
	if s.pred != nil && !s.pred(msg) {
		return false
	}
	return true
}

// enqueue blocks while the queue is full. Returns false if the subscriber is
// closed.
func (s *subscriber) enqueue(msg *Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) >= s.max && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return false
	}
	heap.Push(&s.queue, msg)
	s.cond.Broadcast()
	return true
}

// deliverLoop drains the priority queue into the out channel, dropping
// expired messages at delivery time.
func (s *subscriber) deliverLoop() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		msg := heap.Pop(&s.queue).(*Message)
		s.cond.Broadcast()
		s.mu.Unlock()

		if msg.Expired(time.Now()) {
			observability.BusExpiredTotal.Inc()
			continue
		}
		select {
		case s.out <- msg:
			observability.BusDeliveredTotal.WithLabelValues(string(msg.Kind)).Inc()
		case <-s.done:
			return
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()
	close(s.done)
}

// msgHeap orders by priority (higher first), then by publish sequence, which
// preserves per-sender FIFO within equal priority.
type msgHeap []*Message

func (h msgHeap) Len() int { return len(h) }

func (h msgHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h msgHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *msgHeap) Push(x any) { *h = append(*h, x.(*Message)) }

func (h *msgHeap) Pop() any {
	old := *h
	n := len(old)
	msg := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return msg
}
