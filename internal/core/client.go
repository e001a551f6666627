package core

import "sync"

// ClientState tracks a connection through Connecting → Joined → Closed.
type ClientState int

const (
	ClientConnecting ClientState = iota
	ClientJoined
	ClientClosed
)

// CloseReason explains why the hub closed a client.
type CloseReason int

const (
	CloseNone CloseReason = iota
	// CloseLoggedOut follows an explicit logout.
	CloseLoggedOut
	// CloseSuperseded follows a newer login for the same identity.
	CloseSuperseded
	// CloseSessionInvalid is used when the session vanished under the client.
	CloseSessionInvalid
	// CloseSlowConsumer is used when the client's event buffer overflowed.
	CloseSlowConsumer
	// CloseShutdown is used when the hub is shutting down.
	CloseShutdown
)

func (r CloseReason) String() string {
	switch r {
	case CloseLoggedOut:
		return "Logged out"
	case CloseSuperseded:
		return "Session replaced"
	case CloseSessionInvalid:
		return "Invalid session"
	case CloseSlowConsumer:
		return "Too slow"
	case CloseShutdown:
		return "Server shutting down"
	default:
		return "closing"
	}
}

const clientEventBuffer = 128

// Client is one live connection as seen by the core layer.
type Client struct {
	ID      string
	Session *Session
	Events  chan *Event

	// state is guarded by the mutex of the session's room.
	state ClientState

	done      chan struct{}
	closeOnce sync.Once
	reasonMu  sync.Mutex
	reason    CloseReason
}

// NewClient constructs a client with initialized channels.
func NewClient(id string, session *Session) *Client {
	return &Client{
		ID:      id,
		Session: session,
		Events:  make(chan *Event, clientEventBuffer),
		done:    make(chan struct{}),
	}
}

// Done is closed once the hub has closed the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// CloseReason reports why the hub closed the client.
func (c *Client) CloseReason() CloseReason {
	c.reasonMu.Lock()
	defer c.reasonMu.Unlock()
	return c.reason
}

func (c *Client) close(reason CloseReason) {
	c.closeOnce.Do(func() {
		c.reasonMu.Lock()
		c.reason = reason
		c.reasonMu.Unlock()
		close(c.done)
	})
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// deliver queues an event without blocking. It reports false when the buffer is full.
func (c *Client) deliver(ev *Event) bool {
	if c.closed() {
		return true
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
