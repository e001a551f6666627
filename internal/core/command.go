package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendMessage appends a message to the room.
	CommandSendMessage CommandKind = iota
	// CommandTyping updates the sender's typing flag.
	CommandTyping
	// CommandPin toggles the room pin.
	CommandPin
	// CommandReact toggles a reaction on a message.
	CommandReact
	// CommandRename renames the room (owner only).
	CommandRename
	// CommandReveal asks for the pseudonym mapping (privileged only).
	CommandReveal
)

// Command represents an action requested by a joined client.
type Command struct {
	Kind        CommandKind
	MessageType MessageType
	Content     string
	ReplyTo     string
	IsTyping    bool
	MessageID   string
	Emoji       string
	Name        string
}
