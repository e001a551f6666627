package core

import (
	"time"

	"github.com/chatpe/chatpe-server/internal/store"
)

// Snapshot captures the persisted projection of the room.
func (r *Room) Snapshot(now time.Time) *store.Snapshot {
	snap := &store.Snapshot{
		Key:         r.Key,
		DisplayName: r.DisplayName,
		Owner:       r.Owner,
		PinnedID:    r.PinnedID,
		Messages:    make([]store.Message, 0, len(r.Messages)),
		Registry:    make(map[string]store.Binding, len(r.Registry)),
		SavedAt:     now.UTC(),
	}
	for _, m := range r.Messages {
		rec := store.Message{
			ID:             m.ID,
			Timestamp:      m.Timestamp,
			Pseudonym:      m.Pseudonym,
			SenderIdentity: m.SenderIdentity,
			SenderName:     m.SenderName,
			Type:           string(m.Type),
			Content:        m.Content,
			Reactions:      cloneReactions(m.Reactions),
		}
		if m.ReplyTo != nil {
			rec.ReplyTo = &store.Reply{ID: m.ReplyTo.ID, Pseudonym: m.ReplyTo.Pseudonym, Preview: m.ReplyTo.Preview}
		}
		snap.Messages = append(snap.Messages, rec)
	}
	for p, b := range r.Registry {
		snap.Registry[p] = store.Binding{Identity: b.Identity, DisplayName: b.DisplayName, BoundAt: b.BoundAt}
	}
	return snap
}

// RestoreRoom rebuilds a room from a snapshot, repairing a dangling pin and
// out-of-order timestamps.
func RestoreRoom(snap *store.Snapshot, fallbackName string) *Room {
	name := snap.DisplayName
	if name == "" {
		name = fallbackName
	}
	r := NewRoom(snap.Key, name)
	r.Owner = snap.Owner
	for _, rec := range snap.Messages {
		m := &Message{
			ID:             rec.ID,
			Timestamp:      rec.Timestamp,
			Pseudonym:      rec.Pseudonym,
			SenderIdentity: rec.SenderIdentity,
			SenderName:     rec.SenderName,
			Type:           MessageType(rec.Type),
			Content:        rec.Content,
			Reactions:      make(map[string][]string, len(rec.Reactions)),
		}
		for emoji, names := range rec.Reactions {
			if len(names) > 0 {
				m.Reactions[emoji] = append([]string(nil), names...)
			}
		}
		if rec.ReplyTo != nil {
			m.ReplyTo = &Reply{ID: rec.ReplyTo.ID, Pseudonym: rec.ReplyTo.Pseudonym, Preview: rec.ReplyTo.Preview}
		}
		r.Append(m)
	}
	if r.Find(snap.PinnedID) != nil {
		r.PinnedID = snap.PinnedID
	}
	for p, b := range snap.Registry {
		_ = r.Bind(p, Binding{Identity: b.Identity, DisplayName: b.DisplayName, BoundAt: b.BoundAt})
	}
	return r
}
