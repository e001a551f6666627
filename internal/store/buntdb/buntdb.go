package buntdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/buntdb"

	"github.com/chatpe/chatpe-server/internal/store"
)

const keyPrefix = "room:"

// BuntStore implements store.Store on a BuntDB file (or ":memory:").
type BuntStore struct {
	db *buntdb.DB
}

// New opens the BuntDB database at path.
func New(path string) (*BuntStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open buntdb: %w", err)
	}
	return &BuntStore{db: db}, nil
}

// Load retrieves the snapshot of a room.
func (s *BuntStore) Load(_ context.Context, key string) (*store.Snapshot, error) {
	var raw string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(keyPrefix + key)
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return store.Decode([]byte(raw))
}

// Save stores the snapshot of a room, replacing any previous one.
func (s *BuntStore) Save(_ context.Context, key string, snap *store.Snapshot) error {
	data, err := store.Encode(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(keyPrefix+key, string(data), nil)
		return err
	})
}

// Close closes the database.
func (s *BuntStore) Close() error {
	return s.db.Close()
}
