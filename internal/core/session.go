package core

import "time"

// Session binds an authenticated identity and device to one room and pseudonym.
// Sessions are immutable once created and live only in memory.
type Session struct {
	ID          string
	Identity    string
	DeviceID    string
	RoomKey     string
	RoomName    string
	Pseudonym   string
	DisplayName string
	Privileged  bool
	CreatedAt   time.Time
}

// Presence receives connection lifecycle notifications for an identity.
type Presence interface {
	Connected(identity string)
	Disconnected(identity string)
	Touch(identity string)
}

type noopPresence struct{}

func (noopPresence) Connected(string)    {}
func (noopPresence) Disconnected(string) {}
func (noopPresence) Touch(string)        {}
