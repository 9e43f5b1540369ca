// Package service implements the vote aggregator: the pipeline that turns
// a signed ballot into a tally update, and the submission lifecycle around
// it.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"proofpals/internal/crypto/ringsig"
	"proofpals/internal/ledger"
	ringmodels "proofpals/internal/ring/models"
	"proofpals/internal/submission/metrics"
	"proofpals/internal/submission/models"
	id "proofpals/pkg/domain"
	dErrors "proofpals/pkg/domain-errors"
	"proofpals/pkg/platform/audit"
	"proofpals/pkg/platform/sentinel"
	"proofpals/pkg/requestcontext"
)

// Rejection reasons recorded in audit events and metrics.
const (
	reasonInvalidProof     = "invalid_proof"
	reasonDuplicateVote    = "duplicate_key_image"
	reasonSubmissionClosed = "submission_closed"
)

// Store persists submissions, votes, and escalation records.
type Store interface {
	Create(ctx context.Context, sub *models.Submission) error
	FindByID(ctx context.Context, subID id.SubmissionID) (*models.Submission, error)
	// Execute runs validate then mutate atomically within the submission's
	// critical section, persisting the vote alongside the mutation.
	Execute(ctx context.Context, subID id.SubmissionID, vote *models.Vote,
		validate func(*models.Submission) error, mutate func(*models.Submission)) (*models.Submission, error)
	ListVotes(ctx context.Context, subID id.SubmissionID) ([]*models.Vote, error)
}

// RingSource resolves the ring a submission's votes verify against.
type RingSource interface {
	GetRing(ctx context.Context, ringID id.RingID) (*ringmodels.Ring, error)
}

// CredentialConsumer marks issued credentials spent once their key image
// lands in an accepted vote. Optional: nil disables consumption marking.
type CredentialConsumer interface {
	ConsumeByKeyImage(ctx context.Context, keyImage []byte) error
}

// Service is the vote aggregator and submission lifecycle owner.
type Service struct {
	subs   Store
	rings  RingSource
	ledger ledger.KeyImageLedger
	creds  CredentialConsumer
	audit  audit.Emitter
	rule   models.ConsensusRule
	logger *slog.Logger
}

func New(subs Store, rings RingSource, kil ledger.KeyImageLedger, creds CredentialConsumer, emitter audit.Emitter, rule models.ConsensusRule, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		subs:   subs,
		rings:  rings,
		ledger: kil,
		creds:  creds,
		audit:  emitter,
		rule:   rule,
		logger: logger,
	}
}

// CreateSubmission opens a submission for voting under an existing ring.
func (s *Service) CreateSubmission(ctx context.Context, contentRef, genre string, ringID id.RingID) (*models.Submission, error) {
	ring, err := s.rings.GetRing(ctx, ringID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeRingUnavailable, "ring does not exist")
		}
		return nil, err
	}

	sub, err := models.NewSubmission(id.SubmissionID(uuid.New()), contentRef, genre, ring.ID, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create submission")
	}
	return sub, nil
}

// GetSubmission returns a submission with its current tally.
func (s *Service) GetSubmission(ctx context.Context, subID id.SubmissionID) (*models.Submission, error) {
	sub, err := s.subs.FindByID(ctx, subID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "submission not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load submission")
	}
	return sub, nil
}

// ListVotes returns the accepted votes for a submission, oldest first.
func (s *Service) ListVotes(ctx context.Context, subID id.SubmissionID) ([]*models.Vote, error) {
	if _, err := s.GetSubmission(ctx, subID); err != nil {
		return nil, err
	}
	votes, err := s.subs.ListVotes(ctx, subID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load votes")
	}
	return votes, nil
}

// CastVote runs the full acceptance pipeline for one ballot:
//
//  1. the submission must still be votable,
//  2. the signature must verify against the submission's ring and the
//     canonical payload for (submission, kind, ring),
//  3. the key image must be fresh in the ring's ledger,
//  4. the tally update and vote record commit atomically, re-checking
//     votability inside the critical section.
//
// Rejections at any step leave the tally untouched and are audited with a
// reason. A reservation made by a vote that then loses the closed-state
// re-check stays reserved: the credential was spent on a losing race, not
// refunded, which keeps the ledger append-only.
func (s *Service) CastVote(ctx context.Context, subID id.SubmissionID, kind models.VoteKind, signature, keyImage []byte) (*models.Submission, error) {
	sub, err := s.GetSubmission(ctx, subID)
	if err != nil {
		return nil, err
	}
	if err := sub.CanAcceptVote(); err != nil {
		s.emitRejected(ctx, sub, kind, keyImage, reasonSubmissionClosed)
		return nil, err
	}

	ring, err := s.rings.GetRing(ctx, sub.RingID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeRingUnavailable, "submission's ring is unavailable")
		}
		return nil, err
	}

	sig, err := ringsig.ParseSignature(signature, keyImage, len(ring.Members))
	if err != nil {
		s.emitRejected(ctx, sub, kind, keyImage, reasonInvalidProof)
		return nil, dErrors.New(dErrors.CodeInvalidProof, "malformed ring signature")
	}
	payload := models.VotePayload(sub.ID, kind, sub.RingID)
	if err := ringsig.Verify(ring.Members, payload, sig); err != nil {
		s.emitRejected(ctx, sub, kind, keyImage, reasonInvalidProof)
		return nil, dErrors.New(dErrors.CodeInvalidProof, "ring signature does not verify")
	}

	fresh, err := s.ledger.Reserve(ctx, sub.RingID.String(), keyImage)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "key image ledger unavailable")
	}
	if !fresh {
		s.emitRejected(ctx, sub, kind, keyImage, reasonDuplicateVote)
		return nil, dErrors.New(dErrors.CodeDuplicateVote, "key image already spent for this ring")
	}

	now := requestcontext.Now(ctx)
	vote := models.NewVote(sub.ID, sub.RingID, kind, signature, keyImage, now)
	prevStatus := sub.Status
	updated, err := s.subs.Execute(ctx, sub.ID, vote,
		func(current *models.Submission) error {
			prevStatus = current.Status
			return current.CanAcceptVote()
		},
		func(current *models.Submission) {
			current.ApplyVote(kind, s.rule, now)
		},
	)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeSubmissionClosed) {
			s.emitRejected(ctx, sub, kind, keyImage, reasonSubmissionClosed)
			return nil, err
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "submission not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record vote")
	}

	if s.creds != nil {
		if err := s.creds.ConsumeByKeyImage(ctx, keyImage); err != nil {
			// The vote is already committed; consumption marking is advisory.
			s.logger.WarnContext(ctx, "failed to mark credential consumed",
				"submission_id", sub.ID.String(), "error", err)
		}
	}

	metrics.VotesAccepted.WithLabelValues(string(kind)).Inc()
	s.emitAccepted(ctx, updated, vote)
	if updated.Status != prevStatus {
		metrics.StatusTransitions.WithLabelValues(string(updated.Status)).Inc()
		s.emitStatusChanged(ctx, updated, prevStatus)
	}
	return updated, nil
}

func (s *Service) emitAccepted(ctx context.Context, sub *models.Submission, vote *models.Vote) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(ctx, audit.Event{
		Action:       audit.EventVoteAccepted,
		SubmissionID: sub.ID.String(),
		RingID:       sub.RingID.String(),
		VoteKind:     string(vote.Kind),
		KeyImage:     models.KeyImageHex(vote.KeyImage),
		RequestID:    requestcontext.RequestID(ctx),
	})
}

func (s *Service) emitRejected(ctx context.Context, sub *models.Submission, kind models.VoteKind, keyImage []byte, reason string) {
	metrics.VotesRejected.WithLabelValues(reason).Inc()
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(ctx, audit.Event{
		Action:       audit.EventVoteRejected,
		SubmissionID: sub.ID.String(),
		RingID:       sub.RingID.String(),
		VoteKind:     string(kind),
		KeyImage:     models.KeyImageHex(keyImage),
		Reason:       reason,
		RequestID:    requestcontext.RequestID(ctx),
	})
}

func (s *Service) emitStatusChanged(ctx context.Context, sub *models.Submission, from models.Status) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(ctx, audit.Event{
		Action:       audit.EventStatusChanged,
		SubmissionID: sub.ID.String(),
		RingID:       sub.RingID.String(),
		Decision:     string(sub.Status),
		Reason:       string(from),
		RequestID:    requestcontext.RequestID(ctx),
	})
}
