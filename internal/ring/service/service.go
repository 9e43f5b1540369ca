// Package service implements the ring registry: creation and lookup of
// immutable reviewer rings.
package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"proofpals/internal/crypto/ringsig"
	"proofpals/internal/ring/models"
	id "proofpals/pkg/domain"
	dErrors "proofpals/pkg/domain-errors"
	"proofpals/pkg/platform/audit"
	"proofpals/pkg/platform/sentinel"
	"proofpals/pkg/requestcontext"
)

// Store persists rings. Rings are write-once; there is no update path.
type Store interface {
	Create(ctx context.Context, ring *models.Ring) error
	FindByID(ctx context.Context, ringID id.RingID) (*models.Ring, error)
}

// Service is the ring registry.
type Service struct {
	rings Store
	audit audit.Emitter
}

func New(rings Store, emitter audit.Emitter) *Service {
	return &Service{rings: rings, audit: emitter}
}

// CreateRing registers a new ring over the given member public keys.
func (s *Service) CreateRing(ctx context.Context, members []ringsig.PublicKey) (*models.Ring, error) {
	ring, err := models.NewRing(id.RingID(uuid.New()), members, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.rings.Create(ctx, ring); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create ring")
	}
	s.emit(ctx, ring)
	return ring, nil
}

// GetRing looks a ring up by ID.
func (s *Service) GetRing(ctx context.Context, ringID id.RingID) (*models.Ring, error) {
	if ringID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "ring id is required")
	}
	ring, err := s.rings.FindByID(ctx, ringID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "ring not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ring")
	}
	return ring, nil
}

func (s *Service) emit(ctx context.Context, ring *models.Ring) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(ctx, audit.Event{
		Action:    audit.EventRingCreated,
		RingID:    ring.ID.String(),
		Decision:  "created",
		RequestID: requestcontext.RequestID(ctx),
	})
}
