package models

import (
	"time"

	id "proofpals/pkg/domain"
	dErrors "proofpals/pkg/domain-errors"
)

// Status is the submission lifecycle state. Transitions are monotonic:
// pending -> {approved, rejected, escalated}; escalated ->
// {resolved-approved, resolved-rejected} via the resolver only. Everything
// except pending and escalated is terminal.
type Status string

const (
	StatusPending          Status = "pending"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusEscalated        Status = "escalated"
	StatusResolvedApproved Status = "resolved_approved"
	StatusResolvedRejected Status = "resolved_rejected"
)

// Votable reports whether ordinary votes are still accepted.
func (s Status) Votable() bool { return s == StatusPending }

// Resolvable reports whether the admin resolver may act.
func (s Status) Resolvable() bool { return s == StatusEscalated }

// Resolved reports whether an escalation has been resolved.
func (s Status) Resolved() bool {
	return s == StatusResolvedApproved || s == StatusResolvedRejected
}

// Tally counts accepted votes per kind. It mirrors what reviewers see in a
// submission snapshot; it is the authoritative count, not a UI estimate.
type Tally struct {
	Approve  int `json:"approve"`
	Reject   int `json:"reject"`
	Escalate int `json:"escalate"`
	Flag     int `json:"flag"`
}

// ConsensusRule carries the configured thresholds for tally-based
// resolution and the flag semantics.
type ConsensusRule struct {
	// Quorum is the minimum count of approve (or reject) votes before a
	// tally-based transition fires.
	Quorum int
	// Margin is the lead approve must hold over reject (or vice versa).
	Margin int
	// FlagEscalates controls whether a flag vote escalates immediately
	// like escalate does, or only accumulates in the tally.
	FlagEscalates bool
}

// Submission is the reviewed artifact's engine-side record. ContentRef is
// opaque; content storage is not this system's concern.
type Submission struct {
	ID         id.SubmissionID
	ContentRef string
	Genre      string
	RingID     id.RingID
	Status     Status
	Tally      Tally
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DecidedAt  *time.Time
}

// NewSubmission opens a submission for voting under the given ring.
func NewSubmission(submissionID id.SubmissionID, contentRef, genre string, ringID id.RingID, now time.Time) (*Submission, error) {
	if contentRef == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "content_ref is required")
	}
	if ringID.IsNil() {
		return nil, dErrors.New(dErrors.CodeRingUnavailable, "submission requires a ring")
	}
	return &Submission{
		ID:         submissionID,
		ContentRef: contentRef,
		Genre:      genre,
		RingID:     ringID,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// CanAcceptVote validates that an ordinary vote may still be counted.
func (s *Submission) CanAcceptVote() error {
	if !s.Status.Votable() {
		return dErrors.New(dErrors.CodeSubmissionClosed, "submission is no longer accepting votes")
	}
	return nil
}

// ApplyVote counts the vote and evaluates the transition rule. Callers
// must hold the per-submission critical section. Returns the resulting
// status, which equals the previous one when no transition fired.
//
// A single escalate vote (or flag vote, when flags escalate) wins over any
// number of approves, and the transition is immediate.
func (s *Submission) ApplyVote(kind VoteKind, rule ConsensusRule, now time.Time) Status {
	switch kind {
	case VoteApprove:
		s.Tally.Approve++
	case VoteReject:
		s.Tally.Reject++
	case VoteEscalate:
		s.Tally.Escalate++
	case VoteFlag:
		s.Tally.Flag++
	}
	s.UpdatedAt = now

	switch {
	case kind == VoteEscalate, kind == VoteFlag && rule.FlagEscalates:
		s.transition(StatusEscalated, now)
	case s.Tally.Approve >= rule.Quorum && s.Tally.Approve-s.Tally.Reject >= rule.Margin:
		s.transition(StatusApproved, now)
	case s.Tally.Reject >= rule.Quorum && s.Tally.Reject-s.Tally.Approve >= rule.Margin:
		s.transition(StatusRejected, now)
	}
	return s.Status
}

// ApplyResolution finalizes an escalated submission. Callers must have
// validated Resolvable under the same critical section.
func (s *Submission) ApplyResolution(resolution Resolution, now time.Time) {
	if resolution == ResolutionApprove {
		s.transition(StatusResolvedApproved, now)
	} else {
		s.transition(StatusResolvedRejected, now)
	}
}

func (s *Submission) transition(to Status, now time.Time) {
	s.Status = to
	s.UpdatedAt = now
	t := now
	s.DecidedAt = &t
}
