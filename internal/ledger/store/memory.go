// Package store provides the key image ledger implementations.
package store

import (
	"context"
	"encoding/hex"
	"sync"
)

// InMemory is a mutex-guarded set for tests and dev.
type InMemory struct {
	mu    sync.Mutex
	spent map[string]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{spent: make(map[string]struct{})}
}

func ledgerKey(ringID string, keyImage []byte) string {
	return ringID + ":" + hex.EncodeToString(keyImage)
}

func (s *InMemory) Reserve(_ context.Context, ringID string, keyImage []byte) (bool, error) {
	key := ledgerKey(ringID, keyImage)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, spent := s.spent[key]; spent {
		return false, nil
	}
	s.spent[key] = struct{}{}
	return true, nil
}
