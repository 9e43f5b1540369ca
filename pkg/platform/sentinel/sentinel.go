package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
// These represent factual states about stored resources:
// - ErrNotFound: entity does not exist in the store
// - ErrDuplicate: a uniqueness constraint (key image, pair hash) was hit
// - ErrExpired: credential past its TTL
// - ErrInvalidState: entity in the wrong state for the requested mutation
// - ErrUnavailable: backing service temporarily unreachable; safe to retry
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("duplicate")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
