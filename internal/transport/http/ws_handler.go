package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/chatpe/chatpe-server/internal/core"
)

// Authorizer redeems a connection token for a live session id.
type Authorizer interface {
	Authorize(token string) (string, error)
}

var errClosedByHub = errors.New("closed by hub")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub       *core.Hub
	auth      Authorizer
	log       *zerolog.Logger
	readLimit int64
	rateLimit int
}

// WSOptions tunes per-connection limits.
type WSOptions struct {
	// ReadLimit bounds a single inbound frame in bytes.
	ReadLimit int64
	// MaxEventsPerMinute drops inbound frames above the rate; 0 disables.
	MaxEventsPerMinute int
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authorizer Authorizer, opts WSOptions, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		hub:       hub,
		auth:      authorizer,
		log:       logger,
		readLimit: opts.ReadLimit,
		rateLimit: opts.MaxEventsPerMinute,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	client, err := h.redeem(r.URL.Query().Get("token"))
	if err != nil {
		h.log.Debug().Err(err).Msg("ws rejected")
		conn.Close(websocket.StatusPolicyViolation, core.CloseSessionInvalid.String())
		return
	}
	defer h.hub.Leave(context.WithoutCancel(ctx), client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := newRateLimiter(h.rateLimit, nil)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	// The write loop already sent the close frame; the read loop may have
	// returned first with the resulting close error.
	select {
	case <-client.Done():
		h.log.Debug().Str("client_id", client.ID).Str("reason", client.CloseReason().String()).Msg("ws closed by hub")
		return
	default:
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "read error"
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// redeem turns a connection token into a client in the Connecting state.
func (h *WSHandler) redeem(token string) (*core.Client, error) {
	sessionID, err := h.auth.Authorize(token)
	if err != nil {
		return nil, err
	}
	return h.hub.Connect(sessionID)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, limiter *rateLimiter) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		if !limiter.allow() {
			h.log.Debug().Str("client_id", client.ID).Msg("inbound rate limit exceeded")
			continue
		}

		cmd, join, err := inboundToCommand(data)
		if err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("dropping malformed inbound")
			continue
		}
		if join {
			if err := h.hub.Join(ctx, client); err != nil {
				h.log.Debug().Err(err).Str("client_id", client.ID).Msg("join rejected")
			}
			continue
		}
		if err := h.hub.Dispatch(ctx, client, cmd); err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Str("code", core.ErrorCode(err)).Msg("command rejected")
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			// Flush what was queued before the hub closed us, then close
			// while the read loop is still running to complete the handshake.
			for {
				select {
				case event := <-client.Events:
					if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
						return err
					}
				default:
					status, reason := closeStatusFor(client.CloseReason())
					_ = conn.Close(status, reason)
					return errClosedByHub
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func closeStatusFor(reason core.CloseReason) (websocket.StatusCode, string) {
	switch reason {
	case core.CloseLoggedOut:
		return websocket.StatusNormalClosure, reason.String()
	case core.CloseShutdown:
		return websocket.StatusGoingAway, reason.String()
	case core.CloseSlowConsumer:
		return websocket.StatusTryAgainLater, reason.String()
	default:
		return websocket.StatusPolicyViolation, reason.String()
	}
}
