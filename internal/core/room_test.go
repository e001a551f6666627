package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chatpe/chatpe-server/internal/clock"
)

func msgAt(id string, ts int64, pseudonym string) *Message {
	return &Message{ID: id, Timestamp: ts, Pseudonym: pseudonym, Type: MessageText, Content: id}
}

func assertPinValid(t *testing.T, r *Room) {
	t.Helper()
	if r.PinnedID != "" && r.Find(r.PinnedID) == nil {
		t.Fatalf("pin %q points at a missing message", r.PinnedID)
	}
}

func assertNoEmptyReactions(t *testing.T, r *Room) {
	t.Helper()
	for _, m := range r.Messages {
		for emoji, names := range m.Reactions {
			if len(names) == 0 {
				t.Fatalf("message %s has empty reaction set for %q", m.ID, emoji)
			}
		}
	}
}

func TestPruneTTLWindow(t *testing.T) {
	now := testStart
	ttl := time.Hour
	tms := clock.Millis(now)

	r := NewRoom("CS", "")
	r.Append(msgAt("m1", tms-4000, "A"))
	r.Append(msgAt("m2", tms-2000, "B"))

	if removed, _ := r.Prune(now, ttl); removed != 0 {
		t.Fatalf("expected nothing pruned at t, got %d", removed)
	}

	// Cutoff at t-3000 sits between the two messages.
	between := now.Add(ttl - 3*time.Second)
	removed, _ := r.Prune(between, ttl)
	if removed != 1 || len(r.Messages) != 1 || r.Messages[0].ID != "m2" {
		t.Fatalf("expected only m1 pruned with cutoff t-3000, got removed=%d messages=%d", removed, len(r.Messages))
	}

	removed, _ = r.Prune(now.Add(ttl+time.Millisecond), ttl)
	if removed != 1 || len(r.Messages) != 0 {
		t.Fatalf("expected m2 pruned at t+ttl+1, got removed=%d left=%d", removed, len(r.Messages))
	}
}

func TestPruneIsIdempotent(t *testing.T) {
	tms := clock.Millis(testStart)
	r := NewRoom("CS", "")
	for i, off := range []int64{90_000, 70_000, 10_000, 0} {
		r.Append(msgAt(string(rune('a'+i)), tms-off, "A"))
	}

	r.Prune(testStart, time.Minute)
	first := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		first = append(first, m.ID)
	}
	if removed, _ := r.Prune(testStart, time.Minute); removed != 0 {
		t.Fatalf("second prune removed %d", removed)
	}
	if len(first) != 2 || len(r.Messages) != 2 {
		t.Fatalf("expected 2 messages left, got %v", first)
	}
}

func TestPruneClearsPinnedMessage(t *testing.T) {
	tms := clock.Millis(testStart)
	r := NewRoom("CS", "")
	r.Append(msgAt("old", tms-120_000, "A"))
	r.Append(msgAt("new", tms, "A"))
	r.SetPin("old")

	_, cleared := r.Prune(testStart, time.Minute)
	if !cleared || r.PinnedID != "" {
		t.Fatalf("expected pin cleared, got %q", r.PinnedID)
	}
	assertPinValid(t, r)
}

func TestAppendKeepsTimestampsMonotonic(t *testing.T) {
	r := NewRoom("CS", "")
	r.Append(msgAt("a", 2000, "A"))
	r.Append(msgAt("b", 1000, "A"))
	if r.Messages[1].Timestamp != 2000 {
		t.Fatalf("expected clamped timestamp 2000, got %d", r.Messages[1].Timestamp)
	}
}

func TestSetPinToggleAndMissing(t *testing.T) {
	r := NewRoom("CS", "")
	r.Append(msgAt("m1", 1, "A"))
	r.Append(msgAt("m2", 2, "A"))

	if pinned, changed := r.SetPin("m1"); !changed || pinned != "m1" {
		t.Fatalf("expected m1 pinned, got %q %v", pinned, changed)
	}
	if pinned, changed := r.SetPin("ghost"); changed || pinned != "m1" {
		t.Fatalf("pinning a missing message should no-op, got %q %v", pinned, changed)
	}
	if pinned, changed := r.SetPin("m2"); !changed || pinned != "m2" {
		t.Fatalf("expected m2 pinned, got %q %v", pinned, changed)
	}
	if pinned, changed := r.SetPin("m2"); !changed || pinned != "" {
		t.Fatalf("expected toggle off, got %q %v", pinned, changed)
	}
	assertPinValid(t, r)
}

func TestToggleReactionRemovesEmptySets(t *testing.T) {
	r := NewRoom("CS", "")
	r.Append(msgAt("m1", 1, "A"))

	got, ok := r.ToggleReaction("m1", "👍", "AnonX")
	if !ok || len(got["👍"]) != 1 {
		t.Fatalf("unexpected reactions %v", got)
	}
	got, _ = r.ToggleReaction("m1", "👍", "AnonY")
	if strings.Join(got["👍"], ",") != "AnonX,AnonY" {
		t.Fatalf("expected insertion order, got %v", got["👍"])
	}

	// The returned map is a copy.
	got["👍"][0] = "mutated"
	if r.Messages[0].Reactions["👍"][0] != "AnonX" {
		t.Fatalf("returned reactions alias room state")
	}

	r.ToggleReaction("m1", "👍", "AnonX")
	got, _ = r.ToggleReaction("m1", "👍", "AnonY")
	if _, present := got["👍"]; present {
		t.Fatalf("expected emoji key removed, got %v", got)
	}
	assertNoEmptyReactions(t, r)

	if _, ok := r.ToggleReaction("ghost", "👍", "AnonX"); ok {
		t.Fatalf("reacting to a missing message should no-op")
	}
}

func TestSetTypingReportsChanges(t *testing.T) {
	r := NewRoom("CS", "")
	if !r.SetTyping("A", true) {
		t.Fatalf("expected change")
	}
	if r.SetTyping("A", true) {
		t.Fatalf("expected no change on repeat")
	}
	if !r.SetTyping("A", false) || r.SetTyping("A", false) {
		t.Fatalf("unexpected typing change results")
	}
	if len(r.Typing) != 0 {
		t.Fatalf("cleared typing flags should not be stored")
	}
}

func TestRenameOwnerOnly(t *testing.T) {
	r := NewRoom("CS", "Computer Science")
	if !r.ClaimOwner("CS1") || r.ClaimOwner("CS2") {
		t.Fatalf("ownership should go to the first claimer only")
	}

	if _, err := r.Rename("Hijacked", "CS2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if r.DisplayName != "Computer Science" {
		t.Fatalf("name changed by non-owner: %q", r.DisplayName)
	}

	name, err := r.Rename("  <b>Study</b> &amp; chill  ", "CS1")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if name != "Study & chill" {
		t.Fatalf("expected sanitized name, got %q", name)
	}

	long, _ := r.Rename(strings.Repeat("é", 100), "CS1")
	if len([]rune(long)) != maxRoomNameRunes {
		t.Fatalf("expected name truncated to %d runes, got %d", maxRoomNameRunes, len([]rune(long)))
	}

	if _, err := r.Rename("<script></script>", "CS1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for an empty result, got %v", err)
	}
}

func TestBindKeepsRegistryUnique(t *testing.T) {
	r := NewRoom("CS", "")
	if err := r.Bind("Anon-1000", Binding{Identity: "CS1"}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := r.Bind("Anon-1000", Binding{Identity: "CS2"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected rebinding to another identity to fail, got %v", err)
	}
	if err := r.Bind("Anon-1000", Binding{Identity: "CS1"}); err != nil {
		t.Fatalf("rebinding to the same identity should be fine, got %v", err)
	}
	if b := r.Registry["Anon-1000"]; b.Identity != "CS1" {
		t.Fatalf("registry entry overwritten: %+v", b)
	}
	if p, ok := r.PseudonymFor("CS1"); !ok || p != "Anon-1000" {
		t.Fatalf("expected reuse lookup, got %q %v", p, ok)
	}
}

func TestRevealMappingRegistryWins(t *testing.T) {
	r := NewRoom("CS", "")
	_ = r.Bind("Ghost-2000", Binding{Identity: "CS1", DisplayName: "Alice"})
	r.Append(&Message{ID: "m1", Timestamp: 1, Pseudonym: "Ghost-2000", SenderIdentity: "CS1", SenderName: "Someone else"})
	r.Append(&Message{ID: "m2", Timestamp: 2, Pseudonym: "Anon-1000", SenderIdentity: "CS2", SenderName: "Bob"})
	r.Append(&Message{ID: "m3", Timestamp: 3, Pseudonym: "Echo-3000"})

	entries := r.RevealMapping()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].Pseudonym != "Anon-1000" || entries[0].Identity != "CS2" || entries[0].DisplayName != "Bob" {
		t.Fatalf("unexpected fallback entry %+v", entries[0])
	}
	if entries[1].Pseudonym != "Ghost-2000" || entries[1].DisplayName != "Alice" {
		t.Fatalf("registry entry should take precedence, got %+v", entries[1])
	}
	if len(r.Registry) != 1 {
		t.Fatalf("reveal must not write to the registry")
	}
}

func TestSnapshotRestoreRepairsState(t *testing.T) {
	r := NewRoom("CS", "Computer Science")
	r.ClaimOwner("CS1")
	_ = r.Bind("Anon-1000", Binding{Identity: "CS1", DisplayName: "Alice"})
	r.Append(msgAt("m1", 1000, "Anon-1000"))
	r.Append(&Message{ID: "m2", Timestamp: 2000, Pseudonym: "Anon-1000", Type: MessageText, Content: "re", ReplyTo: &Reply{ID: "m1", Pseudonym: "Anon-1000", Preview: "m1"}})
	r.ToggleReaction("m1", "🔥", "Anon-1000")
	r.SetPin("m2")
	r.SetTyping("Anon-1000", true)

	snap := r.Snapshot(testStart)
	snap.Messages[0].Reactions["💤"] = nil
	restored := RestoreRoom(snap, "fallback")

	if restored.DisplayName != "Computer Science" || restored.Owner != "CS1" || restored.PinnedID != "m2" {
		t.Fatalf("unexpected restored room %+v", restored)
	}
	if len(restored.Typing) != 0 {
		t.Fatalf("typing state should not be persisted")
	}
	if p, ok := restored.PseudonymFor("CS1"); !ok || p != "Anon-1000" {
		t.Fatalf("registry not restored")
	}
	if restored.Messages[1].ReplyTo == nil || restored.Messages[1].ReplyTo.ID != "m1" {
		t.Fatalf("reply not restored")
	}
	assertNoEmptyReactions(t, restored)

	snap.PinnedID = "gone"
	if RestoreRoom(snap, "").PinnedID != "" {
		t.Fatalf("dangling pin should be dropped on restore")
	}
}
