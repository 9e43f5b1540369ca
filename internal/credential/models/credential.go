package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"proofpals/internal/crypto/ringsig"
	id "proofpals/pkg/domain"
)

// Credential is a one-time anonymous voting capability: a private key
// share whose public key sits in the submission's ring, plus the key image
// that share will spend. The reviewer it was issued to appears nowhere;
// only PairHash, a salted one-way hash, survives issuance.
type Credential struct {
	ID           id.CredentialID
	RingID       id.RingID
	SubmissionID id.SubmissionID
	Share        []byte
	MemberIndex  int
	KeyImage     []byte
	PairHash     string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	ConsumedAt   *time.Time
}

// Active reports whether the credential still blocks re-issuance for its
// pair: not consumed and not past its TTL.
func (c *Credential) Active(now time.Time) bool {
	return c.ConsumedAt == nil && now.Before(c.ExpiresAt)
}

// Signer reconstructs the ring signature key from the share.
func (c *Credential) Signer() (*ringsig.PrivateKey, error) {
	return ringsig.NewPrivateKey(c.Share)
}

// HashPair derives the write-once issuance key for (reviewer, submission).
// The pepper keeps the hash non-invertible even against an attacker who
// can enumerate reviewer IDs.
func HashPair(pepper string, reviewerID id.ReviewerID, submissionID id.SubmissionID) string {
	h := sha256.New()
	h.Write([]byte(pepper))
	h.Write([]byte(reviewerID.String()))
	h.Write([]byte(submissionID.String()))
	return hex.EncodeToString(h.Sum(nil))
}

// HashReviewer derives the key under which a reviewer's ring shares are
// deposited. Same pepper, different domain than HashPair.
func HashReviewer(pepper string, reviewerID id.ReviewerID) string {
	h := sha256.New()
	h.Write([]byte(pepper))
	h.Write([]byte("member:"))
	h.Write([]byte(reviewerID.String()))
	return hex.EncodeToString(h.Sum(nil))
}
