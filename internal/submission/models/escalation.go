package models

import (
	"time"

	id "proofpals/pkg/domain"
	dErrors "proofpals/pkg/domain-errors"
)

// Resolution is an admin's verdict on an escalated submission.
type Resolution string

const (
	ResolutionApprove Resolution = "approve"
	ResolutionReject  Resolution = "reject"
)

// ParseResolution validates a wire-level resolution.
func ParseResolution(s string) (Resolution, error) {
	switch Resolution(s) {
	case ResolutionApprove, ResolutionReject:
		return Resolution(s), nil
	default:
		return "", dErrors.New(dErrors.CodeBadRequest, "resolution must be approve or reject")
	}
}

// Escalation records the exactly-once admin override for a submission that
// reached escalated. ResolverID is the admin's identity; admins act in the
// open, unlike reviewers.
type Escalation struct {
	SubmissionID id.SubmissionID
	Resolution   Resolution
	ResolverID   string
	Rationale    string
	ResolvedAt   time.Time
}
