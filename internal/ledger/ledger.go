// Package ledger is the double-vote guard: a durable set of spent key
// images. A vote counts if and only if its key image reserves successfully.
package ledger

import "context"

// KeyImageLedger records spent key images per ring.
type KeyImageLedger interface {
	// Reserve atomically inserts the key image if absent and returns true,
	// or returns false leaving the ledger unchanged if already present.
	// Must be linearizable per key image: of two concurrent reservations,
	// exactly one succeeds. Safe to re-call on storage timeouts; a retry
	// that hits its own earlier write still reports false, which callers
	// treat as DuplicateVote (the vote was not counted twice either way).
	Reserve(ctx context.Context, ringID string, keyImage []byte) (bool, error)
}
