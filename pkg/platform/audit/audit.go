// Package audit provides the append-only, hash-chained audit trail.
//
// Every credential issuance, vote (accepted or rejected), status
// transition, and escalation resolution is emitted as an Event. Entries are
// chained by digest: each entry's digest incorporates its predecessor's, so
// altering any historical payload breaks verification from that point on.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names an auditable engine event.
type Action string

const (
	EventRingCreated        Action = "ring_created"
	EventCredentialIssued   Action = "credential_issued"
	EventVoteAccepted       Action = "vote_accepted"
	EventVoteRejected       Action = "vote_rejected"
	EventStatusChanged      Action = "submission_status_changed"
	EventEscalationResolved Action = "escalation_resolved"
)

// Event is emitted from domain logic. It is transport-agnostic so stores
// and sinks can fan out. ActorHash is a salted hash where an actor is
// recorded at all; raw reviewer identities never reach the log.
type Event struct {
	// ID makes Append idempotent: re-appending the same event is a no-op.
	// Zero value gets a fresh ID at emit time.
	ID           uuid.UUID `json:"id"`
	Action       Action    `json:"action"`
	Timestamp    time.Time `json:"timestamp"`
	SubmissionID string    `json:"submission_id,omitempty"`
	RingID       string    `json:"ring_id,omitempty"`
	VoteKind     string    `json:"vote_kind,omitempty"`
	KeyImage     string    `json:"key_image,omitempty"`
	Decision     string    `json:"decision,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	ActorHash    string    `json:"actor_hash,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
}

// Emitter is what services depend on to record events. The concrete
// implementation lives in the publisher subpackage.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Log is the append-only store contract. Sequence numbers are strictly
// increasing and assigned by the store.
type Log interface {
	// Append persists the event and returns its sequence number. Calling
	// Append twice with the same event ID returns the original sequence
	// number without a second entry.
	Append(ctx context.Context, event Event) (uint64, error)
	// Range returns entries with fromSeq <= Seq <= toSeq in order.
	// toSeq == 0 means "to the end".
	Range(ctx context.Context, fromSeq, toSeq uint64) ([]Entry, error)
	// VerifyChain recomputes digests over [fromSeq, toSeq] and reports
	// whether the chain is intact.
	VerifyChain(ctx context.Context, fromSeq, toSeq uint64) (bool, error)
}
