// Package proto defines the JSON frames exchanged over the real-time connection.
// Every frame is a flat object whose "type" field selects its shape.
package proto

// Inbound is the envelope for frames coming from the client. Only Type is
// decoded first; the payload is decoded again into the matching struct.
type Inbound struct {
	Type string `json:"type"`
}

const (
	InboundTypeJoin    = "join"
	InboundTypeMessage = "message"
	InboundTypeTyping  = "typing"
	InboundTypePin     = "pin"
	InboundTypeReact   = "react"
	InboundTypeRename  = "rename"
	InboundTypeReveal  = "reveal"

	// Names used by older web clients.
	InboundTypePinMessage   = "pin-message"
	InboundTypeReactMessage = "react-message"
	InboundTypeRenameRoom   = "rename-room"
	InboundTypeAdminReveal  = "admin-reveal"

	OutboundTypeJoined        = "joined"
	OutboundTypeMessage       = "message"
	OutboundTypeTyping        = "typing"
	OutboundTypePinned        = "pinned"
	OutboundTypeReaction      = "reaction"
	OutboundTypeRenamed       = "renamed"
	OutboundTypeRevealMapping = "revealMapping"
	OutboundTypeError         = "error"
)

// MessageData sends a chat message.
type MessageData struct {
	MessageType string    `json:"messageType"`
	Content     string    `json:"content"`
	ReplyTo     *ReplyRef `json:"replyTo,omitempty"`
}

// ReplyRef points at the message being answered. Clients may send more
// fields; only the id is trusted.
type ReplyRef struct {
	ID string `json:"id"`
}

// TypingData toggles the sender's typing indicator.
type TypingData struct {
	IsTyping bool `json:"isTyping"`
}

// PinData toggles the room pin.
type PinData struct {
	MessageID string `json:"messageId"`
}

// ReactData toggles a reaction.
type ReactData struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// RenameData renames the room.
type RenameData struct {
	Name string `json:"name"`
}

// Message is a chat message as clients see it. Sender identity never leaves the server.
type Message struct {
	ID        string              `json:"id"`
	Timestamp int64               `json:"timestamp"`
	Pseudonym string              `json:"pseudonym"`
	Type      string              `json:"type"`
	Content   string              `json:"content"`
	ReplyTo   *Reply              `json:"replyTo,omitempty"`
	Reactions map[string][]string `json:"reactions"`
}

// Reply is the quoted reference carried by a reply.
type Reply struct {
	ID        string `json:"id"`
	Pseudonym string `json:"pseudonym"`
	Preview   string `json:"preview"`
}

// RoomMeta describes the room in a joined frame.
type RoomMeta struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	CanRename bool   `json:"canRename"`
}

// Self describes the receiving session.
type Self struct {
	Pseudonym    string `json:"pseudonym"`
	IsPrivileged bool   `json:"isPrivileged"`
}

// Joined is the full room snapshot sent once after join.
type Joined struct {
	Type            string    `json:"type"`
	Room            RoomMeta  `json:"room"`
	Roster          []string  `json:"roster"`
	Messages        []Message `json:"messages"`
	PinnedMessageID *string   `json:"pinnedMessageId"`
	You             Self      `json:"you"`
}

// NewMessage carries one appended message.
type NewMessage struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// Typing reports a typing flag change.
type Typing struct {
	Type      string `json:"type"`
	Pseudonym string `json:"pseudonym"`
	IsTyping  bool   `json:"isTyping"`
}

// Pinned reports the pin state. MessageID is null when nothing is pinned.
type Pinned struct {
	Type      string  `json:"type"`
	MessageID *string `json:"messageId"`
	By        string  `json:"by,omitempty"`
}

// Reaction carries the full reaction map of one message.
type Reaction struct {
	Type      string              `json:"type"`
	MessageID string              `json:"messageId"`
	Reactions map[string][]string `json:"reactions"`
}

// Renamed reports a new room name.
type Renamed struct {
	Type string `json:"type"`
	Name string `json:"name"`
	By   string `json:"by"`
}

// RevealEntry is one pseudonym mapping row.
type RevealEntry struct {
	Pseudonym   string `json:"pseudonym"`
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
}

// RevealMapping is the privileged mapping answer.
type RevealMapping struct {
	Type    string        `json:"type"`
	Entries []RevealEntry `json:"entries"`
}

// Error describes a rejected request.
type Error struct {
	Type    string `json:"type"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}
