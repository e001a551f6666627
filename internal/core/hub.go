package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chatpe/chatpe-server/internal/clock"
	"github.com/chatpe/chatpe-server/internal/store"
)

// DefaultMessageTTL is how long messages stay in a room.
const DefaultMessageTTL = 30 * time.Minute

// Options configures a Hub.
type Options struct {
	MessageTTL time.Duration
	Limits     Limits
	Directory  Directory
	Store      store.Store
	Presence   Presence
	Clock      clock.Clock
	Logger     *zerolog.Logger
	// IntN drives pseudonym generation; rand.IntN when nil.
	IntN IntN
}

// Hub owns live sessions, connections and room subscriber sets.
//
// Locking: each room has its own mutex covering its state, its subscribers
// and the broadcast of events it produces. Hub.mu covers the session and
// connection indices. A room mutex may be held while taking Hub.mu, never
// the other way around.
type Hub struct {
	ttl       time.Duration
	limits    Limits
	directory Directory
	store     store.Store
	presence  Presence
	clock     clock.Clock
	log       *zerolog.Logger
	intn      IntN

	mu        sync.RWMutex
	sessions  map[string]*Session
	bySession map[string]map[*Client]struct{}

	roomsMu sync.Mutex
	rooms   map[string]*roomChannel
}

type roomChannel struct {
	mu      sync.Mutex
	room    *Room
	clients map[*Client]struct{}
	dirty   bool
}

// Stats summarizes hub occupancy.
type Stats struct {
	Rooms       int
	Sessions    int
	Connections int
}

// NewHub creates a new chat hub instance.
func NewHub(opts Options) *Hub {
	if opts.MessageTTL <= 0 {
		opts.MessageTTL = DefaultMessageTTL
	}
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits()
	}
	if opts.Directory == nil {
		opts.Directory = NewStaticDirectory(nil, "Secret Room", nil, nil)
	}
	if opts.Presence == nil {
		opts.Presence = noopPresence{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &Hub{
		ttl:       opts.MessageTTL,
		limits:    opts.Limits,
		directory: opts.Directory,
		store:     opts.Store,
		presence:  opts.Presence,
		clock:     opts.Clock,
		log:       opts.Logger,
		intn:      opts.IntN,
		sessions:  make(map[string]*Session),
		bySession: make(map[string]map[*Client]struct{}),
		rooms:     make(map[string]*roomChannel),
	}
}

// Preload loads snapshots of the given rooms so they are live before anyone logs in.
func (h *Hub) Preload(ctx context.Context, keys []string) {
	for _, key := range keys {
		h.roomChannel(ctx, key)
	}
}

// roomChannel returns the room for key, creating it (and loading its snapshot) on first use.
func (h *Hub) roomChannel(ctx context.Context, key string) *roomChannel {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	if rc, ok := h.rooms[key]; ok {
		return rc
	}

	name := h.directory.RoomName(key)
	room := NewRoom(key, name)
	dirty := true
	if h.store != nil {
		snap, err := h.store.Load(ctx, key)
		switch {
		case err == nil:
			room = RestoreRoom(snap, name)
			dirty = false
			h.log.Info().Str("room", key).Int("messages", len(room.Messages)).Msg("room restored from snapshot")
		case errors.Is(err, store.ErrNotFound):
		default:
			h.log.Warn().Err(err).Str("room", key).Msg("failed to load room snapshot")
		}
	}

	rc := &roomChannel{room: room, clients: make(map[*Client]struct{}), dirty: dirty}
	h.rooms[key] = rc
	return rc
}

func (h *Hub) roomList() []*roomChannel {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	out := make([]*roomChannel, 0, len(h.rooms))
	for _, rc := range h.rooms {
		out = append(out, rc)
	}
	return out
}

// ==== Sessions ====

// OpenSession creates a session for an authenticated identity, reusing the
// identity's pseudonym in its room or generating a fresh one.
func (h *Hub) OpenSession(ctx context.Context, identity, deviceID string) (*Session, error) {
	placement, err := h.directory.Resolve(identity)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	identity = NormalizeIdentity(identity)
	now := h.clock.Now()

	rc := h.roomChannel(ctx, placement.RoomKey)
	rc.mu.Lock()
	pseudonym, ok := rc.room.PseudonymFor(identity)
	if !ok {
		live := h.livePseudonyms(placement.RoomKey)
		pseudonym, err = GeneratePseudonym(h.intn, func(name string) bool {
			_, inUse := live[name]
			return inUse || rc.room.Taken(name)
		})
		if err != nil {
			rc.mu.Unlock()
			return nil, err
		}
		if err := rc.room.Bind(pseudonym, Binding{Identity: identity, DisplayName: placement.DisplayName, BoundAt: now}); err != nil {
			rc.mu.Unlock()
			return nil, fmt.Errorf("bind pseudonym: %w", err)
		}
		rc.dirty = true
	}
	roomName := rc.room.DisplayName
	rc.mu.Unlock()

	session := &Session{
		ID:          uuid.NewString(),
		Identity:    identity,
		DeviceID:    deviceID,
		RoomKey:     placement.RoomKey,
		RoomName:    roomName,
		Pseudonym:   pseudonym,
		DisplayName: placement.DisplayName,
		Privileged:  placement.Privileged,
		CreatedAt:   now,
	}

	h.mu.Lock()
	h.sessions[session.ID] = session
	h.mu.Unlock()

	h.log.Info().Str("session_id", session.ID).Str("room", session.RoomKey).Str("pseudonym", pseudonym).Msg("session opened")
	return session, nil
}

// livePseudonyms collects pseudonyms of sessions currently in a room.
func (h *Hub) livePseudonyms(roomKey string) map[string]struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]struct{})
	for _, s := range h.sessions {
		if s.RoomKey == roomKey {
			out[s.Pseudonym] = struct{}{}
		}
	}
	return out
}

// Session looks up a live session.
func (h *Hub) Session(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// EndSession deletes a session and closes its connections.
func (h *Hub) EndSession(id string, reason CloseReason) bool {
	h.mu.Lock()
	_, ok := h.sessions[id]
	delete(h.sessions, id)
	clients := h.bySession[id]
	delete(h.bySession, id)
	h.mu.Unlock()

	for c := range clients {
		c.close(reason)
	}
	if ok {
		h.log.Info().Str("session_id", id).Str("reason", reason.String()).Int("connections", len(clients)).Msg("session ended")
	}
	return ok
}

// ==== Connections ====

// Connect redeems a session id for a new connection in the Connecting state.
func (h *Hub) Connect(sessionID string) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	session, ok := h.sessions[sessionID]
	if !ok {
		return nil, ErrUnauthorized
	}
	client := NewClient(uuid.NewString(), session)
	set := h.bySession[sessionID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.bySession[sessionID] = set
	}
	set[client] = struct{}{}
	return client, nil
}

// Join subscribes the client to its session's room and sends it the room snapshot.
func (h *Hub) Join(ctx context.Context, client *Client) error {
	session := client.Session
	if _, ok := h.Session(session.ID); !ok {
		client.close(CloseSessionInvalid)
		return ErrUnauthorized
	}

	rc := h.roomChannel(ctx, session.RoomKey)
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if client.state != ClientConnecting || client.closed() {
		return ErrInvalidInput
	}

	if rc.room.ClaimOwner(session.Identity) {
		rc.dirty = true
		h.log.Info().Str("room", session.RoomKey).Str("pseudonym", session.Pseudonym).Msg("room owner assigned")
	}
	h.pruneLocked(rc)

	rc.clients[client] = struct{}{}
	client.state = ClientJoined
	h.presence.Connected(session.Identity)

	messages := make([]*Message, 0, len(rc.room.Messages))
	for _, m := range rc.room.Messages {
		messages = append(messages, m.Clone())
	}
	snapshot := &JoinedSnapshot{
		RoomKey:    rc.room.Key,
		RoomName:   rc.room.DisplayName,
		CanRename:  rc.room.CanRename(session.Identity),
		Roster:     roster(rc),
		Messages:   messages,
		PinnedID:   rc.room.PinnedID,
		Pseudonym:  session.Pseudonym,
		Privileged: session.Privileged,
	}
	h.unicastLocked(rc, client, &Event{Kind: EventJoined, Room: rc.room.Key, Joined: snapshot})
	return nil
}

// roster lists the pseudonyms of joined clients.
func roster(rc *roomChannel) []string {
	seen := make(map[string]struct{}, len(rc.clients))
	out := make([]string, 0, len(rc.clients))
	for c := range rc.clients {
		if _, ok := seen[c.Session.Pseudonym]; ok {
			continue
		}
		seen[c.Session.Pseudonym] = struct{}{}
		out = append(out, c.Session.Pseudonym)
	}
	slices.Sort(out)
	return out
}

// Leave unsubscribes and forgets the client. It is safe to call more than once.
func (h *Hub) Leave(ctx context.Context, client *Client) {
	session := client.Session

	h.mu.Lock()
	if set := h.bySession[session.ID]; set != nil {
		delete(set, client)
		if len(set) == 0 {
			delete(h.bySession, session.ID)
		}
	}
	h.mu.Unlock()

	rc := h.roomChannel(ctx, session.RoomKey)
	rc.mu.Lock()
	wasJoined := client.state == ClientJoined
	client.state = ClientClosed
	delete(rc.clients, client)
	if wasJoined {
		h.presence.Disconnected(session.Identity)
		if rc.room.SetTyping(session.Pseudonym, false) {
			h.broadcastLocked(rc, &Event{Kind: EventTyping, Room: rc.room.Key, Pseudonym: session.Pseudonym, IsTyping: false})
		}
	}
	rc.mu.Unlock()
	client.close(CloseNone)
}

// Dispatch applies a command from a joined client to its room and fans out the result.
// Rejected commands that the client should hear about produce a unicast error event.
func (h *Hub) Dispatch(ctx context.Context, client *Client, cmd *Command) error {
	session := client.Session
	rc := h.roomChannel(ctx, session.RoomKey)

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if client.state != ClientJoined || client.closed() {
		return ErrInvalidInput
	}
	h.presence.Touch(session.Identity)

	switch cmd.Kind {
	case CommandSendMessage:
		return h.sendMessageLocked(rc, client, cmd)

	case CommandTyping:
		if rc.room.SetTyping(session.Pseudonym, cmd.IsTyping) {
			h.broadcastLocked(rc, &Event{Kind: EventTyping, Room: rc.room.Key, Pseudonym: session.Pseudonym, IsTyping: cmd.IsTyping})
		}
		return nil

	case CommandPin:
		pinned, changed := rc.room.SetPin(cmd.MessageID)
		if !changed {
			return ErrNotFound
		}
		rc.dirty = true
		h.broadcastLocked(rc, &Event{Kind: EventPinned, Room: rc.room.Key, MessageID: pinned, By: session.Pseudonym})
		return nil

	case CommandReact:
		if !validEmoji(cmd.Emoji) {
			return ErrInvalidInput
		}
		reactions, ok := rc.room.ToggleReaction(cmd.MessageID, cmd.Emoji, session.Pseudonym)
		if !ok {
			return ErrNotFound
		}
		rc.dirty = true
		h.broadcastLocked(rc, &Event{Kind: EventReaction, Room: rc.room.Key, MessageID: cmd.MessageID, Reactions: reactions})
		return nil

	case CommandRename:
		name, err := rc.room.Rename(cmd.Name, session.Identity)
		if err != nil {
			return err
		}
		rc.dirty = true
		h.log.Info().Str("room", rc.room.Key).Str("pseudonym", session.Pseudonym).Msg("room renamed")
		h.broadcastLocked(rc, &Event{Kind: EventRenamed, Room: rc.room.Key, Name: name, By: session.Pseudonym})
		return nil

	case CommandReveal:
		if !session.Privileged {
			return ErrForbidden
		}
		h.log.Info().Str("room", rc.room.Key).Str("session_id", session.ID).Msg("pseudonym mapping revealed")
		h.unicastLocked(rc, client, &Event{Kind: EventRevealMapping, Room: rc.room.Key, Reveal: rc.room.RevealMapping()})
		return nil

	default:
		return ErrInvalidInput
	}
}

func (h *Hub) sendMessageLocked(rc *roomChannel, client *Client, cmd *Command) error {
	session := client.Session
	if err := h.limits.Check(cmd.MessageType, cmd.Content); err != nil {
		if errors.Is(err, ErrPayloadTooLarge) {
			h.unicastLocked(rc, client, &Event{
				Kind:  EventError,
				Room:  rc.room.Key,
				Error: coreError(ErrCodePayloadTooLarge, "Message too large"),
			})
		}
		return err
	}

	content := cmd.Content
	if cmd.MessageType == MessageText {
		content = truncateRunes(content, maxTextRunes)
	}

	msg := &Message{
		ID:             uuid.NewString(),
		Timestamp:      clock.Millis(h.clock.Now()),
		Pseudonym:      session.Pseudonym,
		SenderIdentity: session.Identity,
		SenderName:     session.DisplayName,
		Type:           cmd.MessageType,
		Content:        content,
	}
	if source := rc.room.Find(cmd.ReplyTo); source != nil {
		msg.ReplyTo = &Reply{ID: source.ID, Pseudonym: source.Pseudonym, Preview: source.preview()}
	}

	rc.room.Append(msg)
	h.pruneLocked(rc)
	rc.dirty = true

	h.broadcastLocked(rc, &Event{Kind: EventMessage, Room: rc.room.Key, Message: msg.Clone()})
	if rc.room.SetTyping(session.Pseudonym, false) {
		h.broadcastLocked(rc, &Event{Kind: EventTyping, Room: rc.room.Key, Pseudonym: session.Pseudonym, IsTyping: false})
	}
	return nil
}

// pruneLocked drops expired messages and tells subscribers when the pin went with them.
func (h *Hub) pruneLocked(rc *roomChannel) int {
	removed, pinCleared := rc.room.Prune(h.clock.Now(), h.ttl)
	if removed == 0 {
		return 0
	}
	rc.dirty = true
	if pinCleared {
		h.broadcastLocked(rc, &Event{Kind: EventPinned, Room: rc.room.Key})
	}
	return removed
}

// broadcastLocked offers ev to every subscriber. A subscriber whose buffer is
// full is dropped and closed; the rest still receive the event.
func (h *Hub) broadcastLocked(rc *roomChannel, ev *Event) {
	for c := range rc.clients {
		if !c.deliver(ev) {
			delete(rc.clients, c)
			c.close(CloseSlowConsumer)
			h.log.Warn().Str("room", rc.room.Key).Str("client_id", c.ID).Msg("dropping slow client")
		}
	}
}

func (h *Hub) unicastLocked(rc *roomChannel, c *Client, ev *Event) {
	if !c.deliver(ev) {
		delete(rc.clients, c)
		c.close(CloseSlowConsumer)
	}
}

// ==== Background work ====

// PruneAll prunes every room and returns how many messages were removed.
func (h *Hub) PruneAll() int {
	total := 0
	for _, rc := range h.roomList() {
		rc.mu.Lock()
		total += h.pruneLocked(rc)
		rc.mu.Unlock()
	}
	return total
}

// Flush saves every dirty room. A room whose save fails stays dirty and is retried next time.
func (h *Hub) Flush(ctx context.Context) (int, error) {
	if h.store == nil {
		return 0, nil
	}
	saved := 0
	var errs []error
	for _, rc := range h.roomList() {
		rc.mu.Lock()
		if !rc.dirty {
			rc.mu.Unlock()
			continue
		}
		h.pruneLocked(rc)
		snap := rc.room.Snapshot(h.clock.Now())
		rc.dirty = false
		rc.mu.Unlock()

		if err := h.store.Save(ctx, snap.Key, snap); err != nil {
			rc.mu.Lock()
			rc.dirty = true
			rc.mu.Unlock()
			h.log.Warn().Err(err).Str("room", snap.Key).Msg("failed to save room snapshot")
			errs = append(errs, fmt.Errorf("save room %s: %w", snap.Key, err))
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

// Stats reports hub occupancy.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	sessions := len(h.sessions)
	conns := 0
	for _, set := range h.bySession {
		conns += len(set)
	}
	h.mu.RUnlock()

	h.roomsMu.Lock()
	rooms := len(h.rooms)
	h.roomsMu.Unlock()

	return Stats{Rooms: rooms, Sessions: sessions, Connections: conns}
}

// Shutdown closes every connection, clears sessions and writes a final flush.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	clients := make([]*Client, 0)
	for _, set := range h.bySession {
		for c := range set {
			clients = append(clients, c)
		}
	}
	h.sessions = make(map[string]*Session)
	h.bySession = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close(CloseShutdown)
	}

	_, err := h.Flush(ctx)
	return err
}
