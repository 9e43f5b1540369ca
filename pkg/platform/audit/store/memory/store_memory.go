// Package memory provides the in-memory audit log for tests and dev.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"proofpals/pkg/platform/audit"
)

// Store is an append-only in-memory audit chain.
type Store struct {
	mu      sync.RWMutex
	entries []audit.Entry
	byEvent map[uuid.UUID]uint64
}

func New() *Store {
	return &Store{byEvent: make(map[uuid.UUID]uint64)}
}

func (s *Store) Append(ctx context.Context, event audit.Event) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq, ok := s.byEvent[event.ID]; ok {
		return seq, nil
	}

	payload, err := audit.EncodePayload(event)
	if err != nil {
		return 0, err
	}
	prev := audit.GenesisDigest
	if n := len(s.entries); n > 0 {
		prev = s.entries[n-1].Digest
	}
	seq := uint64(len(s.entries)) + 1
	payloadDigest := audit.PayloadDigest(payload)
	entry := audit.Entry{
		Seq:           seq,
		EventID:       event.ID.String(),
		PrevDigest:    prev,
		PayloadDigest: payloadDigest,
		Digest:        audit.ChainDigest(prev, payloadDigest, seq),
		Payload:       payload,
		Timestamp:     event.Timestamp,
	}
	s.entries = append(s.entries, entry)
	s.byEvent[event.ID] = seq
	return seq, nil
}

func (s *Store) Range(ctx context.Context, fromSeq, toSeq uint64) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if fromSeq == 0 {
		fromSeq = 1
	}
	if toSeq == 0 || toSeq > uint64(len(s.entries)) {
		toSeq = uint64(len(s.entries))
	}
	if fromSeq > toSeq {
		return nil, nil
	}
	out := make([]audit.Entry, 0, toSeq-fromSeq+1)
	for _, e := range s.entries[fromSeq-1 : toSeq] {
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) VerifyChain(ctx context.Context, fromSeq, toSeq uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if fromSeq == 0 {
		fromSeq = 1
	}
	if toSeq == 0 || toSeq > uint64(len(s.entries)) {
		toSeq = uint64(len(s.entries))
	}
	if fromSeq > toSeq {
		return true, nil
	}
	prev := audit.GenesisDigest
	if fromSeq > 1 {
		prev = s.entries[fromSeq-2].Digest
	}
	return audit.VerifyEntries(prev, s.entries[fromSeq-1:toSeq]), nil
}

// Tamper overwrites a stored payload in place. Test hook for chain
// verification; never part of the Log contract.
func (s *Store) Tamper(seq uint64, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq == 0 || seq > uint64(len(s.entries)) {
		return
	}
	s.entries[seq-1].Payload = payload
}
