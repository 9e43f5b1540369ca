// Package service implements the escalation resolver: the admin path that
// finalizes submissions the ring could not or would not decide.
package service

import (
	"context"
	"errors"

	"proofpals/internal/submission/models"
	id "proofpals/pkg/domain"
	dErrors "proofpals/pkg/domain-errors"
	"proofpals/pkg/platform/audit"
	"proofpals/pkg/platform/sentinel"
	"proofpals/pkg/requestcontext"
)

// Store is the slice of the submission store the resolver needs. Resolve
// must commit the escalation record and the status flip atomically.
type Store interface {
	Resolve(ctx context.Context, esc *models.Escalation) (*models.Submission, error)
	FindEscalation(ctx context.Context, subID id.SubmissionID) (*models.Escalation, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Submission, error)
}

// Service is the escalation resolver.
type Service struct {
	subs  Store
	audit audit.Emitter
}

func New(subs Store, emitter audit.Emitter) *Service {
	return &Service{subs: subs, audit: emitter}
}

// Resolve finalizes an escalated submission exactly once. The resolver's
// identity and rationale are recorded; a second attempt, regardless of
// direction, fails with the already-resolved code.
func (s *Service) Resolve(ctx context.Context, subID id.SubmissionID, resolution models.Resolution, resolverID, rationale string) (*models.Submission, error) {
	if resolverID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "resolver id is required")
	}
	esc := &models.Escalation{
		SubmissionID: subID,
		Resolution:   resolution,
		ResolverID:   resolverID,
		Rationale:    rationale,
		ResolvedAt:   requestcontext.Now(ctx),
	}

	sub, err := s.subs.Resolve(ctx, esc)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "submission not found")
		case errors.Is(err, sentinel.ErrDuplicate):
			return nil, dErrors.New(dErrors.CodeAlreadyResolved, "escalation already resolved")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeNotEscalated, "submission is not escalated")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve escalation")
		}
	}

	s.emitResolved(ctx, sub, esc)
	return sub, nil
}

// GetResolution returns the resolution record for a submission.
func (s *Service) GetResolution(ctx context.Context, subID id.SubmissionID) (*models.Escalation, error) {
	esc, err := s.subs.FindEscalation(ctx, subID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no resolution for submission")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load resolution")
	}
	return esc, nil
}

// ListEscalated returns the submissions awaiting admin resolution.
func (s *Service) ListEscalated(ctx context.Context) ([]*models.Submission, error) {
	subs, err := s.subs.ListByStatus(ctx, models.StatusEscalated)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list escalated submissions")
	}
	return subs, nil
}

func (s *Service) emitResolved(ctx context.Context, sub *models.Submission, esc *models.Escalation) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(ctx, audit.Event{
		Action:       audit.EventEscalationResolved,
		SubmissionID: sub.ID.String(),
		RingID:       sub.RingID.String(),
		Decision:     string(esc.Resolution),
		Reason:       esc.Rationale,
		ActorHash:    esc.ResolverID,
		RequestID:    requestcontext.RequestID(ctx),
	})
}
