package bus

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the message type used for subscription matching.
type Kind string

const (
	KindVerificationRequest Kind = "verification_request"
	KindVerificationResult  Kind = "verification_result"
	KindChallenge           Kind = "challenge"
	KindResponse            Kind = "response"
	KindEvidenceShare       Kind = "evidence_share"
	KindConsensusVote       Kind = "consensus_vote"
	KindReputationUpdate    Kind = "reputation_update"
)

// Priority orders delivery within a recipient's queue. Higher values are
// delivered first; FIFO within equal priority.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Message is a typed envelope delivered between agents. A message with an
// empty To field is a broadcast to all subscribers of its kind.
type Message struct {
	ID         string
	From       string
	To         string
	Kind       Kind
	Priority   Priority
	Payload    any
	EnqueuedAt time.Time
	TTL        time.Duration

	// seq is the global publish order, assigned by the bus. It keeps
	// delivery FIFO per sender within equal priority.
	seq uint64
}

// NewMessage creates a message with a generated ID and normal priority.
// Leave to empty for broadcast.
func NewMessage(from, to string, kind Kind, payload any) *Message {
	return &Message{
		ID:       uuid.New().String(),
		From:     from,
		To:       to,
		Kind:     kind,
		Priority: PriorityNormal,
		Payload:  payload,
	}
}

// WithPriority sets the priority and returns the message for chaining.
func (m *Message) WithPriority(p Priority) *Message {
	m.Priority = p
	return m
}

// WithTTL bounds the message lifetime. Zero means no expiry.
func (m *Message) WithTTL(ttl time.Duration) *Message {
	m.TTL = ttl
	return m
}

// Expired reports whether the message's TTL has elapsed at the given time.
func (m *Message) Expired(now time.Time) bool {
	if m.TTL <= 0 {
		return false
	}
	return now.After(m.EnqueuedAt.Add(m.TTL))
}

func (m *Message) String() string {
	return fmt.Sprintf("Message{ID:%s, Kind:%s, From:%s, To:%s, Priority:%s}",
		m.ID, m.Kind, m.From, m.To, m.Priority)
}
