package core

import (
	"context"
	"testing"
	"time"

	"github.com/chatpe/chatpe-server/internal/clock"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent fails if an event of kind arrives within a short window.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event kind %v: %+v", kind, ev)
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

var testStart = time.UnixMilli(1_700_000_000_000)

func newTestHub(t *testing.T, opts Options) (*Hub, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(testStart)
	if opts.Clock == nil {
		opts.Clock = clk
	}
	if opts.Directory == nil {
		opts.Directory = NewStaticDirectory(
			[]RoomRule{{Key: "CS", Name: "Computer Science", Prefixes: []string{"CS"}}},
			"CS", map[string]string{"CS1": "Alice", "CS2": "Bob"}, []string{"CS9"},
		)
	}
	return NewHub(opts), clk
}

// joinAs opens a session for identity, connects and joins it, and consumes the joined event.
func joinAs(t *testing.T, hub *Hub, identity string) (*Client, *JoinedSnapshot) {
	t.Helper()
	ctx := context.Background()

	session, err := hub.OpenSession(ctx, identity, "dev-"+identity)
	if err != nil {
		t.Fatalf("open session for %s: %v", identity, err)
	}
	client, err := hub.Connect(session.ID)
	if err != nil {
		t.Fatalf("connect %s: %v", identity, err)
	}
	if err := hub.Join(ctx, client); err != nil {
		t.Fatalf("join %s: %v", identity, err)
	}
	ev := mustEvent(t, client.Events, EventJoined)
	return client, ev.Joined
}

func sendText(t *testing.T, hub *Hub, c *Client, text string) *Message {
	t.Helper()
	if err := hub.Dispatch(context.Background(), c, &Command{Kind: CommandSendMessage, MessageType: MessageText, Content: text}); err != nil {
		t.Fatalf("send %q: %v", text, err)
	}
	return mustEvent(t, c.Events, EventMessage).Message
}
