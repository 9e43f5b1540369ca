// Package store provides credential and key share persistence.
package store

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"proofpals/internal/credential/models"
	id "proofpals/pkg/domain"
	"proofpals/pkg/platform/sentinel"
)

type shareRecord struct {
	share       []byte
	memberIndex int
}

// InMemory keeps credentials and deposited key shares behind one lock so
// the issue-if-none-active check is atomic.
type InMemory struct {
	mu          sync.Mutex
	credentials map[id.CredentialID]*models.Credential
	byPair      map[string]id.CredentialID
	byImage     map[string]id.CredentialID
	shares      map[string]shareRecord
}

func NewInMemory() *InMemory {
	return &InMemory{
		credentials: make(map[id.CredentialID]*models.Credential),
		byPair:      make(map[string]id.CredentialID),
		byImage:     make(map[string]id.CredentialID),
		shares:      make(map[string]shareRecord),
	}
}

func shareKey(ringID id.RingID, reviewerHash string) string {
	return ringID.String() + ":" + reviewerHash
}

func imageKey(keyImage []byte) string {
	return hex.EncodeToString(keyImage)
}

func copyCredential(c *models.Credential) *models.Credential {
	out := *c
	out.Share = append([]byte(nil), c.Share...)
	out.KeyImage = append([]byte(nil), c.KeyImage...)
	if c.ConsumedAt != nil {
		t := *c.ConsumedAt
		out.ConsumedAt = &t
	}
	return &out
}

// Create stores the credential unless an active one already exists for the
// same pair hash. An expired or consumed predecessor does not block.
func (s *InMemory) Create(_ context.Context, cred *models.Credential, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prevID, ok := s.byPair[cred.PairHash]; ok {
		if prev, ok := s.credentials[prevID]; ok && prev.Active(now) {
			return sentinel.ErrDuplicate
		}
	}
	stored := copyCredential(cred)
	s.credentials[stored.ID] = stored
	s.byPair[stored.PairHash] = stored.ID
	s.byImage[imageKey(stored.KeyImage)] = stored.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, credID id.CredentialID) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.credentials[credID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyCredential(cred), nil
}

// MarkConsumed records the spend time on the credential behind the key
// image. Unknown images are a no-op: externally keyed members vote with
// shares the issuer never saw.
func (s *InMemory) MarkConsumed(_ context.Context, keyImage []byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	credID, ok := s.byImage[imageKey(keyImage)]
	if !ok {
		return nil
	}
	cred := s.credentials[credID]
	if cred.ConsumedAt == nil {
		t := now
		cred.ConsumedAt = &t
	}
	return nil
}

// DepositShare binds a ring member's private share to a hashed reviewer so
// issuance can later look it up without storing the reviewer in clear.
func (s *InMemory) DepositShare(_ context.Context, ringID id.RingID, reviewerHash string, memberIndex int, share []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := shareKey(ringID, reviewerHash)
	if _, ok := s.shares[key]; ok {
		return sentinel.ErrDuplicate
	}
	s.shares[key] = shareRecord{share: append([]byte(nil), share...), memberIndex: memberIndex}
	return nil
}

func (s *InMemory) FindShare(_ context.Context, ringID id.RingID, reviewerHash string) ([]byte, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.shares[shareKey(ringID, reviewerHash)]
	if !ok {
		return nil, 0, sentinel.ErrNotFound
	}
	return append([]byte(nil), rec.share...), rec.memberIndex, nil
}
