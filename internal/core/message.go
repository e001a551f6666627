package core

import (
	"strings"
	"unicode/utf8"
)

// MessageType is the kind of content a message carries.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageAudio MessageType = "audio"
)

const (
	// maxTextRunes is how much of an accepted text message is kept.
	maxTextRunes = 1200
	// replyPreviewRunes bounds the quoted preview attached to replies.
	replyPreviewRunes = 120
	// maxEmojiBytes bounds a reaction key; ZWJ sequences can be long.
	maxEmojiBytes = 64
)

// Message is the domain model for a chat message.
type Message struct {
	ID             string
	Timestamp      int64 // unix ms
	Pseudonym      string
	SenderIdentity string
	SenderName     string
	Type           MessageType
	Content        string
	ReplyTo        *Reply
	Reactions      map[string][]string
}

// Reply is the normalized reference to the message being answered.
type Reply struct {
	ID        string
	Pseudonym string
	Preview   string
}

// Limits bounds message content by type.
type Limits struct {
	MaxTextBytes  int
	MaxImageBytes int
	MaxAudioBytes int
}

// DefaultLimits mirror the sizes the web client enforces before upload.
func DefaultLimits() Limits {
	return Limits{
		MaxTextBytes:  2_000,
		MaxImageBytes: 1_000_000,
		MaxAudioBytes: 2_000_000,
	}
}

// Check validates content against its type bound.
func (l Limits) Check(typ MessageType, content string) error {
	if content == "" {
		return ErrInvalidInput
	}
	var limit int
	switch typ {
	case MessageText:
		if strings.TrimSpace(content) == "" {
			return ErrInvalidInput
		}
		limit = l.MaxTextBytes
	case MessageImage:
		if !strings.HasPrefix(content, "data:image/") {
			return ErrInvalidInput
		}
		limit = l.MaxImageBytes
	case MessageAudio:
		if !strings.HasPrefix(content, "data:audio/") {
			return ErrInvalidInput
		}
		limit = l.MaxAudioBytes
	default:
		return ErrInvalidInput
	}
	if limit > 0 && len(content) > limit {
		return ErrPayloadTooLarge
	}
	return nil
}

// Clone returns a copy that shares no mutable state with m.
func (m *Message) Clone() *Message {
	cp := *m
	if m.ReplyTo != nil {
		reply := *m.ReplyTo
		cp.ReplyTo = &reply
	}
	cp.Reactions = cloneReactions(m.Reactions)
	return &cp
}

// preview is the short form of a message quoted by replies.
func (m *Message) preview() string {
	switch m.Type {
	case MessageImage:
		return "[image]"
	case MessageAudio:
		return "[audio]"
	default:
		return truncateRunes(m.Content, replyPreviewRunes)
	}
}

func cloneReactions(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for emoji, names := range in {
		out[emoji] = append([]string(nil), names...)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func validEmoji(emoji string) bool {
	return emoji != "" && len(emoji) <= maxEmojiBytes && utf8.ValidString(emoji) &&
		strings.TrimSpace(emoji) == emoji
}
