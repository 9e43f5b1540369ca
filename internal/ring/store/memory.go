// Package store persists reviewer rings.
package store

import (
	"context"
	"fmt"
	"sync"

	"proofpals/internal/ring/models"
	id "proofpals/pkg/domain"
	"proofpals/pkg/platform/sentinel"
)

// InMemory stores rings in memory for tests and dev. Rings are write-once,
// so reads need no copying beyond the member slice.
type InMemory struct {
	mu    sync.RWMutex
	rings map[id.RingID]*models.Ring
}

func NewInMemory() *InMemory {
	return &InMemory{rings: make(map[id.RingID]*models.Ring)}
}

func (s *InMemory) Create(_ context.Context, ring *models.Ring) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rings[ring.ID]; exists {
		return fmt.Errorf("ring %s: %w", ring.ID, sentinel.ErrDuplicate)
	}
	s.rings[ring.ID] = ring
	return nil
}

func (s *InMemory) FindByID(_ context.Context, ringID id.RingID) (*models.Ring, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ring, ok := s.rings[ringID]
	if !ok {
		return nil, fmt.Errorf("ring %s: %w", ringID, sentinel.ErrNotFound)
	}
	return ring, nil
}
