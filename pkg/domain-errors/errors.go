// Package domainerrors defines the coded error type services return.
// Codes classify failures for the HTTP boundary and for callers that
// branch on failure class; the message is operator-facing.
package domainerrors

import "errors"

// Code classifies a domain failure.
type Code string

const (
	CodeBadRequest       Code = "bad_request"
	CodeNotFound         Code = "not_found"
	CodeConflict         Code = "conflict"
	CodeForbidden        Code = "forbidden"
	CodeInternal         Code = "internal"
	CodeInvalidRing      Code = "invalid_ring"
	CodeAlreadyIssued    Code = "already_issued"
	CodeSubmissionClosed Code = "submission_closed"
	CodeRingUnavailable  Code = "ring_unavailable"
	CodeInvalidProof     Code = "invalid_proof"
	CodeDuplicateVote    Code = "duplicate_vote"
	CodeNotEscalated     Code = "not_escalated"
	CodeAlreadyResolved  Code = "already_resolved"
)

// Error is a coded domain error. It optionally wraps a cause, which stays
// out of client responses but is available for logging via Unwrap.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// errors that are not domain errors.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}
