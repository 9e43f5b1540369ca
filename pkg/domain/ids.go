// Package domain holds typed identifiers shared across modules. Each
// aggregate gets its own ID type so a ring ID cannot be passed where a
// submission ID belongs.
package domain

import (
	"github.com/google/uuid"

	dErrors "proofpals/pkg/domain-errors"
)

type (
	// SubmissionID identifies a reviewed submission.
	SubmissionID uuid.UUID
	// RingID identifies an immutable reviewer ring.
	RingID uuid.UUID
	// CredentialID identifies an issued voting credential.
	CredentialID uuid.UUID
	// VoteID identifies an accepted vote record.
	VoteID uuid.UUID
	// ReviewerID identifies a reviewer in the enrollment directory. It is
	// hashed before it touches credential or audit storage.
	ReviewerID uuid.UUID
)

func parseUUID(s, what string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+what)
	}
	return parsed, nil
}

func ParseSubmissionID(s string) (SubmissionID, error) {
	parsed, err := parseUUID(s, "submission id")
	return SubmissionID(parsed), err
}

func ParseRingID(s string) (RingID, error) {
	parsed, err := parseUUID(s, "ring id")
	return RingID(parsed), err
}

func ParseCredentialID(s string) (CredentialID, error) {
	parsed, err := parseUUID(s, "credential id")
	return CredentialID(parsed), err
}

func ParseVoteID(s string) (VoteID, error) {
	parsed, err := parseUUID(s, "vote id")
	return VoteID(parsed), err
}

func ParseReviewerID(s string) (ReviewerID, error) {
	parsed, err := parseUUID(s, "reviewer id")
	return ReviewerID(parsed), err
}

func (id SubmissionID) String() string { return uuid.UUID(id).String() }
func (id RingID) String() string       { return uuid.UUID(id).String() }
func (id CredentialID) String() string { return uuid.UUID(id).String() }
func (id VoteID) String() string       { return uuid.UUID(id).String() }
func (id ReviewerID) String() string   { return uuid.UUID(id).String() }

func (id SubmissionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RingID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id CredentialID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id VoteID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ReviewerID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
