// Package store persists submissions, their votes, and escalation records.
// Submissions and escalations share one keyspace so resolution can commit
// the record and the status flip together.
package store

import (
	"context"
	"fmt"
	"sync"

	"proofpals/internal/submission/models"
	id "proofpals/pkg/domain"
	"proofpals/pkg/platform/sentinel"
	"proofpals/pkg/requestcontext"
)

// InMemory keeps submissions, votes, and escalations under one lock. The
// per-submission critical section the aggregator needs degrades to a
// store-wide lock here; acceptable for tests and dev.
type InMemory struct {
	mu          sync.RWMutex
	submissions map[id.SubmissionID]*models.Submission
	votes       map[id.SubmissionID][]*models.Vote
	escalations map[id.SubmissionID]*models.Escalation
}

func NewInMemory() *InMemory {
	return &InMemory{
		submissions: make(map[id.SubmissionID]*models.Submission),
		votes:       make(map[id.SubmissionID][]*models.Vote),
		escalations: make(map[id.SubmissionID]*models.Escalation),
	}
}

func (s *InMemory) Create(_ context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.submissions[sub.ID]; exists {
		return fmt.Errorf("submission %s: %w", sub.ID, sentinel.ErrDuplicate)
	}
	cp := *sub
	s.submissions[sub.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, subID id.SubmissionID) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[subID]
	if !ok {
		return nil, fmt.Errorf("submission %s: %w", subID, sentinel.ErrNotFound)
	}
	cp := *sub
	return &cp, nil
}

// Execute runs validate then mutate while holding the submission's lock,
// and appends the vote (when non-nil) in the same critical section. This
// is the all-or-nothing tally update the aggregator relies on.
func (s *InMemory) Execute(
	_ context.Context,
	subID id.SubmissionID,
	vote *models.Vote,
	validate func(*models.Submission) error,
	mutate func(*models.Submission),
) (*models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[subID]
	if !ok {
		return nil, fmt.Errorf("submission %s: %w", subID, sentinel.ErrNotFound)
	}
	if err := validate(sub); err != nil {
		return nil, err
	}
	mutate(sub)
	if vote != nil {
		s.votes[subID] = append(s.votes[subID], vote)
	}
	cp := *sub
	return &cp, nil
}

// Resolve writes the escalation record and the resulting status in one
// critical section. Exactly-once: a second resolution hits ErrDuplicate.
func (s *InMemory) Resolve(ctx context.Context, esc *models.Escalation) (*models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[esc.SubmissionID]
	if !ok {
		return nil, fmt.Errorf("submission %s: %w", esc.SubmissionID, sentinel.ErrNotFound)
	}
	if _, resolved := s.escalations[esc.SubmissionID]; resolved {
		return nil, fmt.Errorf("submission %s: %w", esc.SubmissionID, sentinel.ErrDuplicate)
	}
	if !sub.Status.Resolvable() {
		return nil, fmt.Errorf("submission %s status %s: %w", esc.SubmissionID, sub.Status, sentinel.ErrInvalidState)
	}

	s.escalations[esc.SubmissionID] = esc
	sub.ApplyResolution(esc.Resolution, requestcontext.Now(ctx))
	cp := *sub
	return &cp, nil
}

func (s *InMemory) FindEscalation(_ context.Context, subID id.SubmissionID) (*models.Escalation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	esc, ok := s.escalations[subID]
	if !ok {
		return nil, fmt.Errorf("escalation for %s: %w", subID, sentinel.ErrNotFound)
	}
	return esc, nil
}

func (s *InMemory) ListByStatus(_ context.Context, status models.Status) ([]*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Submission
	for _, sub := range s.submissions {
		if sub.Status == status {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemory) ListVotes(_ context.Context, subID id.SubmissionID) ([]*models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.Vote(nil), s.votes[subID]...), nil
}
