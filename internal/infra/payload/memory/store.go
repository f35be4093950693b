// Package memory provides the in-memory payload store used for tests and
// single-run exports where spilling compressed entities to disk is
// unnecessary.
package memory

import (
	"sync"

	"chadograph/internal/cache"
)

// Compile-time contract assertion.
var _ cache.PayloadStore = (*Store)(nil)

type key struct {
	typ cache.EntityType
	id  string
}

// Store keeps compressed payloads in a process-local map.
type Store struct {
	mu       sync.RWMutex
	payloads map[key][]byte
}

// NewStore returns an empty in-memory payload store.
func NewStore() *Store {
	return &Store{payloads: make(map[key][]byte)}
}

// Put stores the payload for (typ, id), overwriting any previous payload.
func (s *Store) Put(typ cache.EntityType, id string, payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.mu.Lock()
	s.payloads[key{typ: typ, id: id}] = cp
	s.mu.Unlock()
	return nil
}

// Get returns the payload for (typ, id) and whether it exists.
func (s *Store) Get(typ cache.EntityType, id string) ([]byte, bool, error) {
	s.mu.RLock()
	payload, ok := s.payloads[key{typ: typ, id: id}]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return cp, true, nil
}

// Close releases the backing map.
func (s *Store) Close() error {
	s.mu.Lock()
	s.payloads = nil
	s.mu.Unlock()
	return nil
}
