// Package service implements the credential issuer: one-time anonymous
// voting credentials bound to a (reviewer, submission) pair.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"proofpals/internal/credential/models"
	"proofpals/internal/crypto/ringsig"
	ringmodels "proofpals/internal/ring/models"
	submissionmodels "proofpals/internal/submission/models"
	id "proofpals/pkg/domain"
	dErrors "proofpals/pkg/domain-errors"
	"proofpals/pkg/platform/audit"
	"proofpals/pkg/platform/sentinel"
	"proofpals/pkg/requestcontext"
)

// DefaultTTL bounds how long an unspent credential blocks re-issuance.
const DefaultTTL = 24 * time.Hour

// Store persists credentials and the key shares deposited at enrollment.
type Store interface {
	Create(ctx context.Context, cred *models.Credential, now time.Time) error
	FindByID(ctx context.Context, credID id.CredentialID) (*models.Credential, error)
	MarkConsumed(ctx context.Context, keyImage []byte, now time.Time) error
	DepositShare(ctx context.Context, ringID id.RingID, reviewerHash string, memberIndex int, share []byte) error
	FindShare(ctx context.Context, ringID id.RingID, reviewerHash string) ([]byte, int, error)
}

// RingRegistry is the slice of the ring service the issuer needs.
type RingRegistry interface {
	CreateRing(ctx context.Context, members []ringsig.PublicKey) (*ringmodels.Ring, error)
	GetRing(ctx context.Context, ringID id.RingID) (*ringmodels.Ring, error)
}

// SubmissionSource resolves submissions at issuance time.
type SubmissionSource interface {
	FindByID(ctx context.Context, submissionID id.SubmissionID) (*submissionmodels.Submission, error)
}

// Service is the credential issuer.
type Service struct {
	creds       Store
	rings       RingRegistry
	submissions SubmissionSource
	audit       audit.Emitter
	pepper      string
	ttl         time.Duration
}

func New(creds Store, rings RingRegistry, submissions SubmissionSource, emitter audit.Emitter, pepper string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		creds:       creds,
		rings:       rings,
		submissions: submissions,
		audit:       emitter,
		pepper:      pepper,
		ttl:         ttl,
	}
}

// EnrollRing generates a keypair per reviewer, registers the ring over the
// public keys, and deposits each private share under the reviewer's hash.
// Reviewer identities are consumed here and never stored in clear.
func (s *Service) EnrollRing(ctx context.Context, reviewers []id.ReviewerID) (*ringmodels.Ring, error) {
	if len(reviewers) < ringsig.MinRingSize {
		return nil, dErrors.New(dErrors.CodeInvalidRing, "a ring needs at least two reviewers")
	}
	seen := make(map[id.ReviewerID]struct{}, len(reviewers))
	keys := make([]*ringsig.PrivateKey, len(reviewers))
	members := make([]ringsig.PublicKey, len(reviewers))
	for i, reviewer := range reviewers {
		if reviewer.IsNil() {
			return nil, dErrors.New(dErrors.CodeBadRequest, "reviewer id is required")
		}
		if _, dup := seen[reviewer]; dup {
			return nil, dErrors.New(dErrors.CodeInvalidRing, "duplicate reviewer in ring")
		}
		seen[reviewer] = struct{}{}

		key, pub, err := ringsig.GenerateKey(nil)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate member key")
		}
		keys[i] = key
		members[i] = pub
	}

	ring, err := s.rings.CreateRing(ctx, members)
	if err != nil {
		return nil, err
	}
	for i, reviewer := range reviewers {
		hash := models.HashReviewer(s.pepper, reviewer)
		if err := s.creds.DepositShare(ctx, ring.ID, hash, i, keys[i].Bytes()); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deposit key share")
		}
	}
	return ring, nil
}

// Issue mints a credential for the reviewer against the submission's ring.
// At most one active credential exists per (reviewer, submission) pair;
// expiry or consumption of the old one frees the pair.
func (s *Service) Issue(ctx context.Context, reviewer id.ReviewerID, submissionID id.SubmissionID) (*models.Credential, *ringmodels.Ring, error) {
	if reviewer.IsNil() {
		return nil, nil, dErrors.New(dErrors.CodeBadRequest, "reviewer id is required")
	}

	sub, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "submission not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load submission")
	}
	if !sub.Status.Votable() {
		return nil, nil, dErrors.New(dErrors.CodeSubmissionClosed, "submission is no longer accepting votes")
	}

	ring, err := s.rings.GetRing(ctx, sub.RingID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeRingUnavailable, "submission's ring is unavailable")
		}
		return nil, nil, err
	}

	share, memberIndex, err := s.creds.FindShare(ctx, ring.ID, models.HashReviewer(s.pepper, reviewer))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeForbidden, "reviewer is not a member of the submission's ring")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load key share")
	}

	key, err := ringsig.NewPrivateKey(share)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "deposited key share is corrupt")
	}

	now := requestcontext.Now(ctx)
	cred := &models.Credential{
		ID:           id.CredentialID(uuid.New()),
		RingID:       ring.ID,
		SubmissionID: sub.ID,
		Share:        share,
		MemberIndex:  memberIndex,
		KeyImage:     key.KeyImage(),
		PairHash:     models.HashPair(s.pepper, reviewer, sub.ID),
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.creds.Create(ctx, cred, now); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			return nil, nil, dErrors.New(dErrors.CodeAlreadyIssued, "an active credential already exists for this reviewer and submission")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store credential")
	}

	s.emitIssued(ctx, cred)
	return cred, ring, nil
}

// ConsumeByKeyImage marks the credential behind an accepted vote's key
// image as spent. Votes from externally keyed members have no matching
// credential; that is fine.
func (s *Service) ConsumeByKeyImage(ctx context.Context, keyImage []byte) error {
	if err := s.creds.MarkConsumed(ctx, keyImage, requestcontext.Now(ctx)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark credential consumed")
	}
	return nil
}

func (s *Service) emitIssued(ctx context.Context, cred *models.Credential) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(ctx, audit.Event{
		Action:       audit.EventCredentialIssued,
		SubmissionID: cred.SubmissionID.String(),
		RingID:       cred.RingID.String(),
		ActorHash:    cred.PairHash,
		RequestID:    requestcontext.RequestID(ctx),
	})
}
