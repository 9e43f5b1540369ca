package models

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	id "proofpals/pkg/domain"
	dErrors "proofpals/pkg/domain-errors"
)

// VoteKind is one of the four review verdicts.
type VoteKind string

const (
	VoteApprove  VoteKind = "approve"
	VoteReject   VoteKind = "reject"
	VoteEscalate VoteKind = "escalate"
	VoteFlag     VoteKind = "flag"
)

// ParseVoteKind validates a wire-level vote kind.
func ParseVoteKind(s string) (VoteKind, error) {
	switch VoteKind(s) {
	case VoteApprove, VoteReject, VoteEscalate, VoteFlag:
		return VoteKind(s), nil
	default:
		return "", dErrors.New(dErrors.CodeBadRequest, "vote_kind must be one of approve, reject, escalate, flag")
	}
}

// Vote is an accepted, immutable ballot. Signature and KeyImage are the
// wire bytes; the vote carries no voter identity by construction.
type Vote struct {
	ID           id.VoteID
	SubmissionID id.SubmissionID
	RingID       id.RingID
	Kind         VoteKind
	Signature    []byte
	KeyImage     []byte
	ReceivedAt   time.Time
}

// NewVote builds the persistent record for an accepted vote.
func NewVote(submissionID id.SubmissionID, ringID id.RingID, kind VoteKind, signature, keyImage []byte, now time.Time) *Vote {
	return &Vote{
		ID:           id.VoteID(uuid.New()),
		SubmissionID: submissionID,
		RingID:       ringID,
		Kind:         kind,
		Signature:    signature,
		KeyImage:     keyImage,
		ReceivedAt:   now,
	}
}

// KeyImageHex renders a key image for audit records and API responses.
func KeyImageHex(keyImage []byte) string {
	return hex.EncodeToString(keyImage)
}

// VotePayload is the canonical byte string a vote signature covers:
// submission id, vote kind, and ring id, length-prefixed so field
// boundaries cannot be confused. Signer and verifier must agree on this
// byte-for-byte.
func VotePayload(submissionID id.SubmissionID, kind VoteKind, ringID id.RingID) []byte {
	h := sha256.New()
	for _, field := range [][]byte{
		[]byte(submissionID.String()),
		[]byte(kind),
		[]byte(ringID.String()),
	} {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(field)))
		h.Write(l[:])
		h.Write(field)
	}
	return h.Sum(nil)
}
