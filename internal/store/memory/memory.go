// Package memory is an in-process snapshot store, used when persistence is disabled and in tests.
package memory

import (
	"context"
	"sync"

	"github.com/chatpe/chatpe-server/internal/store"
)

// Store keeps encoded snapshots in a map.
type Store struct {
	mu      sync.Mutex
	data    map[string][]byte
	saves   int
	saveErr error
}

// New returns an empty store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Load decodes the stored snapshot of a room.
func (s *Store) Load(_ context.Context, key string) (*store.Snapshot, error) {
	s.mu.Lock()
	data, ok := s.data[key]
	s.mu.Unlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return store.Decode(data)
}

// Save encodes and stores a snapshot. It fails with the error set by FailSaves, if any.
func (s *Store) Save(_ context.Context, key string, snap *store.Snapshot) error {
	data, err := store.Encode(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.data[key] = data
	s.saves++
	return nil
}

// FailSaves makes subsequent saves return err; nil restores normal behaviour.
func (s *Store) FailSaves(err error) {
	s.mu.Lock()
	s.saveErr = err
	s.mu.Unlock()
}

// Saves returns how many saves succeeded.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
