package http

import (
	"encoding/json"
	"errors"

	"github.com/chatpe/chatpe-server/internal/core"
	"github.com/chatpe/chatpe-server/internal/proto"
)

var errUnknownType = errors.New("unknown message type")

// inboundToCommand decodes a client frame. A join frame yields join=true and no command.
func inboundToCommand(data []byte) (cmd *core.Command, join bool, err error) {
	var inbound proto.Inbound
	if err := json.Unmarshal(data, &inbound); err != nil {
		return nil, false, err
	}

	switch inbound.Type {
	case proto.InboundTypeJoin:
		return nil, true, nil

	case proto.InboundTypeMessage:
		var msg proto.MessageData
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, false, err
		}
		typ := msg.MessageType
		if typ == "" {
			typ = string(core.MessageText)
		}
		cmd := &core.Command{
			Kind:        core.CommandSendMessage,
			MessageType: core.MessageType(typ),
			Content:     msg.Content,
		}
		if msg.ReplyTo != nil {
			cmd.ReplyTo = msg.ReplyTo.ID
		}
		return cmd, false, nil

	case proto.InboundTypeTyping:
		var typing proto.TypingData
		if err := json.Unmarshal(data, &typing); err != nil {
			return nil, false, err
		}
		return &core.Command{Kind: core.CommandTyping, IsTyping: typing.IsTyping}, false, nil

	case proto.InboundTypePin, proto.InboundTypePinMessage:
		var pin proto.PinData
		if err := json.Unmarshal(data, &pin); err != nil {
			return nil, false, err
		}
		return &core.Command{Kind: core.CommandPin, MessageID: pin.MessageID}, false, nil

	case proto.InboundTypeReact, proto.InboundTypeReactMessage:
		var react proto.ReactData
		if err := json.Unmarshal(data, &react); err != nil {
			return nil, false, err
		}
		return &core.Command{Kind: core.CommandReact, MessageID: react.MessageID, Emoji: react.Emoji}, false, nil

	case proto.InboundTypeRename, proto.InboundTypeRenameRoom:
		var rename proto.RenameData
		if err := json.Unmarshal(data, &rename); err != nil {
			return nil, false, err
		}
		return &core.Command{Kind: core.CommandRename, Name: rename.Name}, false, nil

	case proto.InboundTypeReveal, proto.InboundTypeAdminReveal:
		return &core.Command{Kind: core.CommandReveal}, false, nil

	default:
		return nil, false, errUnknownType
	}
}

func messageFromCore(m *core.Message) proto.Message {
	out := proto.Message{
		ID:        m.ID,
		Timestamp: m.Timestamp,
		Pseudonym: m.Pseudonym,
		Type:      string(m.Type),
		Content:   m.Content,
		Reactions: m.Reactions,
	}
	if out.Reactions == nil {
		out.Reactions = map[string][]string{}
	}
	if m.ReplyTo != nil {
		out.ReplyTo = &proto.Reply{ID: m.ReplyTo.ID, Pseudonym: m.ReplyTo.Pseudonym, Preview: m.ReplyTo.Preview}
	}
	return out
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func outboundFromEvent(event *core.Event) any {
	switch event.Kind {
	case core.EventJoined:
		snap := event.Joined
		messages := make([]proto.Message, 0, len(snap.Messages))
		for _, m := range snap.Messages {
			messages = append(messages, messageFromCore(m))
		}
		return proto.Joined{
			Type:            proto.OutboundTypeJoined,
			Room:            proto.RoomMeta{Key: snap.RoomKey, Name: snap.RoomName, CanRename: snap.CanRename},
			Roster:          snap.Roster,
			Messages:        messages,
			PinnedMessageID: optionalID(snap.PinnedID),
			You:             proto.Self{Pseudonym: snap.Pseudonym, IsPrivileged: snap.Privileged},
		}
	case core.EventMessage:
		return proto.NewMessage{Type: proto.OutboundTypeMessage, Message: messageFromCore(event.Message)}
	case core.EventTyping:
		return proto.Typing{Type: proto.OutboundTypeTyping, Pseudonym: event.Pseudonym, IsTyping: event.IsTyping}
	case core.EventPinned:
		return proto.Pinned{Type: proto.OutboundTypePinned, MessageID: optionalID(event.MessageID), By: event.By}
	case core.EventReaction:
		return proto.Reaction{Type: proto.OutboundTypeReaction, MessageID: event.MessageID, Reactions: event.Reactions}
	case core.EventRenamed:
		return proto.Renamed{Type: proto.OutboundTypeRenamed, Name: event.Name, By: event.By}
	case core.EventRevealMapping:
		entries := make([]proto.RevealEntry, 0, len(event.Reveal))
		for _, e := range event.Reveal {
			entries = append(entries, proto.RevealEntry{Pseudonym: e.Pseudonym, Identity: e.Identity, DisplayName: e.DisplayName})
		}
		return proto.RevealMapping{Type: proto.OutboundTypeRevealMapping, Entries: entries}
	case core.EventError:
		if event.Error == nil {
			return proto.Error{Type: proto.OutboundTypeError, Reason: core.ErrCodeInternal}
		}
		return proto.Error{Type: proto.OutboundTypeError, Reason: event.Error.Code, Message: event.Error.Message}
	default:
		return proto.Error{Type: proto.OutboundTypeError, Reason: core.ErrCodeInternal}
	}
}
