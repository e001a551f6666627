package core

import (
	"strings"
)

// Placement is where an identity lands after authentication.
type Placement struct {
	RoomKey     string
	RoomName    string
	DisplayName string
	Privileged  bool
}

// Directory resolves identities to rooms and display names.
type Directory interface {
	Resolve(identity string) (Placement, error)
	RoomName(key string) string
	RoomKeys() []string
}

// RoomRule assigns identities starting with any of Prefixes to a room.
type RoomRule struct {
	Key      string
	Name     string
	Prefixes []string
}

// StaticDirectory is a Directory built from configuration.
type StaticDirectory struct {
	rules       []RoomRule
	defaultRoom RoomRule
	names       map[string]string
	admins      map[string]struct{}
}

// NormalizeIdentity trims and upper-cases an identity key.
func NormalizeIdentity(identity string) string {
	return strings.ToUpper(strings.TrimSpace(identity))
}

// NewStaticDirectory builds a directory. Identities matching no rule go to defaultRoom.
func NewStaticDirectory(rules []RoomRule, defaultRoom string, names map[string]string, admins []string) *StaticDirectory {
	d := &StaticDirectory{
		names:  make(map[string]string, len(names)),
		admins: make(map[string]struct{}, len(admins)),
	}
	for _, rule := range rules {
		if rule.Key == "" {
			continue
		}
		if rule.Name == "" {
			rule.Name = rule.Key
		}
		prefixes := make([]string, 0, len(rule.Prefixes))
		for _, p := range rule.Prefixes {
			if p = NormalizeIdentity(p); p != "" {
				prefixes = append(prefixes, p)
			}
		}
		rule.Prefixes = prefixes
		d.rules = append(d.rules, rule)
		if rule.Key == defaultRoom {
			d.defaultRoom = rule
		}
	}
	if d.defaultRoom.Key == "" {
		d.defaultRoom = RoomRule{Key: defaultRoom, Name: defaultRoom}
	}
	for id, name := range names {
		d.names[NormalizeIdentity(id)] = name
	}
	for _, id := range admins {
		d.admins[NormalizeIdentity(id)] = struct{}{}
	}
	return d
}

// Resolve picks the rule with the longest matching prefix.
func (d *StaticDirectory) Resolve(identity string) (Placement, error) {
	identity = NormalizeIdentity(identity)
	if identity == "" {
		return Placement{}, ErrInvalidInput
	}
	room := d.defaultRoom
	best := -1
	for _, rule := range d.rules {
		for _, p := range rule.Prefixes {
			if strings.HasPrefix(identity, p) && len(p) > best {
				room, best = rule, len(p)
			}
		}
	}
	if room.Key == "" {
		return Placement{}, ErrNotFound
	}
	name := d.names[identity]
	if name == "" {
		name = identity
	}
	_, admin := d.admins[identity]
	return Placement{
		RoomKey:     room.Key,
		RoomName:    room.Name,
		DisplayName: name,
		Privileged:  admin,
	}, nil
}

// RoomName returns the configured display name for a room key.
func (d *StaticDirectory) RoomName(key string) string {
	for _, rule := range d.rules {
		if rule.Key == key {
			return rule.Name
		}
	}
	if key == d.defaultRoom.Key {
		return d.defaultRoom.Name
	}
	return key
}

// RoomKeys lists every configured room, default first.
func (d *StaticDirectory) RoomKeys() []string {
	keys := make([]string, 0, len(d.rules)+1)
	if d.defaultRoom.Key != "" {
		keys = append(keys, d.defaultRoom.Key)
	}
	for _, rule := range d.rules {
		if rule.Key != d.defaultRoom.Key {
			keys = append(keys, rule.Key)
		}
	}
	return keys
}
