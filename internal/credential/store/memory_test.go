package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"proofpals/internal/credential/models"
	id "proofpals/pkg/domain"
	"proofpals/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite

	ctx   context.Context
	now   time.Time
	store *InMemory
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	s.store = NewInMemory()
}

func (s *MemoryStoreSuite) credential(pairHash string, image byte) *models.Credential {
	return &models.Credential{
		ID:           id.CredentialID(uuid.New()),
		RingID:       id.RingID(uuid.New()),
		SubmissionID: id.SubmissionID(uuid.New()),
		Share:        []byte{0x01},
		KeyImage:     []byte{image},
		PairHash:     pairHash,
		IssuedAt:     s.now,
		ExpiresAt:    s.now.Add(time.Hour),
	}
}

func (s *MemoryStoreSuite) TestCreateBlocksActivePair() {
	s.Require().NoError(s.store.Create(s.ctx, s.credential("pair-a", 0x01), s.now))
	s.ErrorIs(s.store.Create(s.ctx, s.credential("pair-a", 0x02), s.now), sentinel.ErrDuplicate)
	s.NoError(s.store.Create(s.ctx, s.credential("pair-b", 0x03), s.now))
}

func (s *MemoryStoreSuite) TestExpiredPairDoesNotBlock() {
	s.Require().NoError(s.store.Create(s.ctx, s.credential("pair-a", 0x01), s.now))
	s.NoError(s.store.Create(s.ctx, s.credential("pair-a", 0x02), s.now.Add(2*time.Hour)))
}

func (s *MemoryStoreSuite) TestMarkConsumedFreesPair() {
	cred := s.credential("pair-a", 0x01)
	s.Require().NoError(s.store.Create(s.ctx, cred, s.now))
	s.Require().NoError(s.store.MarkConsumed(s.ctx, cred.KeyImage, s.now))

	found, err := s.store.FindByID(s.ctx, cred.ID)
	s.Require().NoError(err)
	s.NotNil(found.ConsumedAt)
	s.False(found.Active(s.now))

	s.NoError(s.store.Create(s.ctx, s.credential("pair-a", 0x02), s.now))
}

func (s *MemoryStoreSuite) TestMarkConsumedUnknownImageIsNoop() {
	s.NoError(s.store.MarkConsumed(s.ctx, []byte{0xff}, s.now))
}

func (s *MemoryStoreSuite) TestShareRoundTrip() {
	ringID := id.RingID(uuid.New())
	s.Require().NoError(s.store.DepositShare(s.ctx, ringID, "hash-a", 2, []byte{0x0a}))

	share, index, err := s.store.FindShare(s.ctx, ringID, "hash-a")
	s.Require().NoError(err)
	s.Equal([]byte{0x0a}, share)
	s.Equal(2, index)

	s.ErrorIs(s.store.DepositShare(s.ctx, ringID, "hash-a", 2, []byte{0x0b}), sentinel.ErrDuplicate)

	_, _, err = s.store.FindShare(s.ctx, ringID, "hash-b")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestFindReturnsCopy() {
	cred := s.credential("pair-a", 0x01)
	s.Require().NoError(s.store.Create(s.ctx, cred, s.now))

	found, err := s.store.FindByID(s.ctx, cred.ID)
	s.Require().NoError(err)
	found.Share[0] = 0xff

	again, err := s.store.FindByID(s.ctx, cred.ID)
	s.Require().NoError(err)
	s.Equal([]byte{0x01}, again.Share)
}
