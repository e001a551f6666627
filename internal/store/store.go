// Package store defines the persistence collaborator for room snapshots.
//
// The core only ever calls Load when a room is first referenced and Save from
// the periodic flush. Backends treat the snapshot as an opaque JSON document.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Load when no snapshot exists for a room.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is the persisted projection of a room. Typing state is not part of it.
type Snapshot struct {
	Key         string             `json:"key"`
	DisplayName string             `json:"displayName"`
	Owner       string             `json:"owner,omitempty"`
	Messages    []Message          `json:"messages"`
	PinnedID    string             `json:"pinnedMessageId,omitempty"`
	Registry    map[string]Binding `json:"registry"`
	SavedAt     time.Time          `json:"savedAt"`
}

// Message is a persisted chat message.
type Message struct {
	ID             string              `json:"id"`
	Timestamp      int64               `json:"ts"`
	Pseudonym      string              `json:"pseudonym"`
	SenderIdentity string              `json:"senderIdentity,omitempty"`
	SenderName     string              `json:"senderName,omitempty"`
	Type           string              `json:"type"`
	Content        string              `json:"content"`
	ReplyTo        *Reply              `json:"replyTo,omitempty"`
	Reactions      map[string][]string `json:"reactions,omitempty"`
}

// Reply is the normalized reference to the message being replied to.
type Reply struct {
	ID        string `json:"id"`
	Pseudonym string `json:"pseudonym"`
	Preview   string `json:"preview"`
}

// Binding records which identity a pseudonym was issued to.
type Binding struct {
	Identity    string    `json:"identity"`
	DisplayName string    `json:"displayName"`
	BoundAt     time.Time `json:"boundAt"`
}

// Store loads and saves room snapshots.
type Store interface {
	Load(ctx context.Context, key string) (*Snapshot, error)
	Save(ctx context.Context, key string, snap *Snapshot) error
	Close() error
}

// Encode serializes a snapshot for storage.
func Encode(snap *Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, errors.New("nil snapshot")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a stored snapshot.
func Decode(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Registry == nil {
		snap.Registry = make(map[string]Binding)
	}
	return &snap, nil
}
