package core

import (
	"errors"
	"slices"
	"testing"
)

func TestDirectoryLongestPrefixWins(t *testing.T) {
	dir := NewStaticDirectory([]RoomRule{
		{Key: "ENG", Name: "Engineering", Prefixes: []string{"E"}},
		{Key: "CS", Name: "Computer Science", Prefixes: []string{"ecs", "CS"}},
	}, "LOBBY", map[string]string{"cs101": "Alice"}, []string{" cs999 "})

	p, err := dir.Resolve(" ecs42 ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.RoomKey != "CS" || p.DisplayName != "ECS42" || p.Privileged {
		t.Fatalf("unexpected placement %+v", p)
	}

	p, _ = dir.Resolve("E7")
	if p.RoomKey != "ENG" || p.RoomName != "Engineering" {
		t.Fatalf("unexpected placement %+v", p)
	}

	p, _ = dir.Resolve("CS101")
	if p.DisplayName != "Alice" {
		t.Fatalf("expected configured display name, got %q", p.DisplayName)
	}
	p, _ = dir.Resolve("CS999")
	if !p.Privileged {
		t.Fatalf("expected admin to be privileged")
	}

	p, _ = dir.Resolve("ZZ1")
	if p.RoomKey != "LOBBY" || p.RoomName != "LOBBY" {
		t.Fatalf("expected default room, got %+v", p)
	}

	if _, err := dir.Resolve("   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDirectoryRoomKeys(t *testing.T) {
	dir := NewStaticDirectory([]RoomRule{
		{Key: "A", Prefixes: []string{"A"}},
		{Key: "B", Name: "Bravo", Prefixes: []string{"B"}},
	}, "B", nil, nil)

	if keys := dir.RoomKeys(); !slices.Equal(keys, []string{"B", "A"}) {
		t.Fatalf("unexpected keys %v", keys)
	}
	if dir.RoomName("A") != "A" || dir.RoomName("B") != "Bravo" || dir.RoomName("C") != "C" {
		t.Fatalf("unexpected room names")
	}
}
