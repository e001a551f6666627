package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventJoined delivers the room snapshot to a client that just joined.
	EventJoined EventKind = iota
	// EventMessage notifies clients about a new message.
	EventMessage
	// EventTyping notifies clients about a typing flag change.
	EventTyping
	// EventPinned notifies clients about the pin state.
	EventPinned
	// EventReaction carries the full reaction set of a message.
	EventReaction
	// EventRenamed notifies clients about a new room name.
	EventRenamed
	// EventRevealMapping is the privileged mapping, sent only to the requester.
	EventRevealMapping
	// EventError notifies one client about a rejected request.
	EventError
)

// Event is sent to clients to describe what happened in a room.
// Events never share mutable state with the room they describe.
type Event struct {
	Kind      EventKind
	Room      string
	Joined    *JoinedSnapshot
	Message   *Message
	Pseudonym string
	IsTyping  bool
	MessageID string // empty pin means unpinned
	By        string
	Reactions map[string][]string
	Name      string
	Reveal    []RevealEntry
	Error     *CoreError
}

// JoinedSnapshot is the full room state sent once on join.
type JoinedSnapshot struct {
	RoomKey    string
	RoomName   string
	CanRename  bool
	Roster     []string
	Messages   []*Message
	PinnedID   string
	Pseudonym  string
	Privileged bool
}
