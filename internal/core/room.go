package core

import (
	"html"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/chatpe/chatpe-server/internal/clock"
)

// maxRoomNameRunes bounds a renamed room's display name.
const maxRoomNameRunes = 64

var roomNamePolicy = bluemonday.StrictPolicy()

// Binding records the identity a pseudonym was issued to.
type Binding struct {
	Identity    string
	DisplayName string
	BoundAt     time.Time
}

// RevealEntry is one row of the privileged pseudonym mapping.
type RevealEntry struct {
	Pseudonym   string
	Identity    string
	DisplayName string
}

// Room holds the mutable state of one chat room. It is not safe for
// concurrent use; the hub serializes access per room.
type Room struct {
	Key         string
	DisplayName string
	Owner       string
	Messages    []*Message
	PinnedID    string
	Typing      map[string]bool
	Registry    map[string]Binding

	// byIdentity indexes Registry for pseudonym reuse.
	byIdentity map[string]string
}

// NewRoom constructs an empty room.
func NewRoom(key, displayName string) *Room {
	if displayName == "" {
		displayName = key
	}
	return &Room{
		Key:         key,
		DisplayName: displayName,
		Typing:      make(map[string]bool),
		Registry:    make(map[string]Binding),
		byIdentity:  make(map[string]string),
	}
}

// Prune removes messages older than ttl and clears a pin that pointed at one.
func (r *Room) Prune(now time.Time, ttl time.Duration) (removed int, pinCleared bool) {
	if ttl <= 0 {
		return 0, false
	}
	// Messages are in time order, so the expired ones form a prefix.
	cut := 0
	for cut < len(r.Messages) && clock.Expired(r.Messages[cut].Timestamp, ttl, now) {
		cut++
	}
	if cut == 0 {
		return 0, false
	}
	for _, m := range r.Messages[:cut] {
		if m.ID == r.PinnedID {
			r.PinnedID = ""
			pinCleared = true
		}
	}
	r.Messages = slices.Clone(r.Messages[cut:])
	return cut, pinCleared
}

// Append adds a message at the end. Timestamps never go backwards within a room.
func (r *Room) Append(m *Message) {
	if n := len(r.Messages); n > 0 && m.Timestamp < r.Messages[n-1].Timestamp {
		m.Timestamp = r.Messages[n-1].Timestamp
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	r.Messages = append(r.Messages, m)
}

// Find returns the message with id, or nil.
func (r *Room) Find(id string) *Message {
	if id == "" {
		return nil
	}
	for _, m := range r.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// SetPin toggles the pin. Pinning a message that is not present is a no-op.
func (r *Room) SetPin(id string) (pinned string, changed bool) {
	if id == "" {
		return r.PinnedID, false
	}
	if id == r.PinnedID {
		r.PinnedID = ""
		return "", true
	}
	if r.Find(id) == nil {
		return r.PinnedID, false
	}
	r.PinnedID = id
	return id, true
}

// ToggleReaction flips pseudonym's membership in the emoji set of a message.
// Empty sets are removed. It returns a copy of the resulting reactions.
func (r *Room) ToggleReaction(id, emoji, pseudonym string) (map[string][]string, bool) {
	m := r.Find(id)
	if m == nil {
		return nil, false
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	names := m.Reactions[emoji]
	if i := slices.Index(names, pseudonym); i >= 0 {
		names = slices.Delete(slices.Clone(names), i, i+1)
	} else {
		names = append(slices.Clone(names), pseudonym)
	}
	if len(names) == 0 {
		delete(m.Reactions, emoji)
	} else {
		m.Reactions[emoji] = names
	}
	return cloneReactions(m.Reactions), true
}

// SetTyping records the typing flag and reports whether it changed.
func (r *Room) SetTyping(pseudonym string, typing bool) bool {
	if r.Typing[pseudonym] == typing {
		return false
	}
	if typing {
		r.Typing[pseudonym] = true
	} else {
		delete(r.Typing, pseudonym)
	}
	return true
}

// ClaimOwner makes identity the owner if the room has none yet.
func (r *Room) ClaimOwner(identity string) bool {
	if r.Owner != "" || identity == "" {
		return false
	}
	r.Owner = identity
	return true
}

// CanRename reports whether identity may rename the room.
func (r *Room) CanRename(identity string) bool {
	return identity != "" && identity == r.Owner
}

// Rename sets the display name. Only the owner may rename.
func (r *Room) Rename(name, requester string) (string, error) {
	if !r.CanRename(requester) {
		return "", ErrForbidden
	}
	clean := strings.TrimSpace(html.UnescapeString(roomNamePolicy.Sanitize(name)))
	clean = truncateRunes(clean, maxRoomNameRunes)
	if clean == "" {
		return "", ErrInvalidInput
	}
	r.DisplayName = clean
	return clean, nil
}

// PseudonymFor returns the pseudonym previously bound to identity.
func (r *Room) PseudonymFor(identity string) (string, bool) {
	p, ok := r.byIdentity[identity]
	return p, ok
}

// Bind records pseudonym → identity. A pseudonym already bound to someone
// else is rejected so registry keys stay unique.
func (r *Room) Bind(pseudonym string, b Binding) error {
	if pseudonym == "" || b.Identity == "" {
		return ErrInvalidInput
	}
	if existing, ok := r.Registry[pseudonym]; ok {
		if existing.Identity != b.Identity {
			return ErrInvalidInput
		}
		return nil
	}
	r.Registry[pseudonym] = b
	if _, ok := r.byIdentity[b.Identity]; !ok {
		r.byIdentity[b.Identity] = pseudonym
	}
	return nil
}

// Taken reports whether a pseudonym is bound or seen on a stored message.
func (r *Room) Taken(pseudonym string) bool {
	if _, ok := r.Registry[pseudonym]; ok {
		return true
	}
	for _, m := range r.Messages {
		if m.Pseudonym == pseudonym {
			return true
		}
	}
	return false
}

// RevealMapping projects the registry plus sender metadata of messages whose
// pseudonym was never registered. Registry entries win.
func (r *Room) RevealMapping() []RevealEntry {
	entries := make([]RevealEntry, 0, len(r.Registry))
	seen := make(map[string]struct{}, len(r.Registry))
	for p, b := range r.Registry {
		entries = append(entries, RevealEntry{Pseudonym: p, Identity: b.Identity, DisplayName: b.DisplayName})
		seen[p] = struct{}{}
	}
	for _, m := range r.Messages {
		if m.SenderIdentity == "" {
			continue
		}
		if _, ok := seen[m.Pseudonym]; ok {
			continue
		}
		name := m.SenderName
		if name == "" {
			name = m.SenderIdentity
		}
		entries = append(entries, RevealEntry{Pseudonym: m.Pseudonym, Identity: m.SenderIdentity, DisplayName: name})
		seen[m.Pseudonym] = struct{}{}
	}
	slices.SortFunc(entries, func(a, b RevealEntry) int { return strings.Compare(a.Pseudonym, b.Pseudonym) })
	return entries
}
