package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/chatpe/chatpe-server/internal/proto"
	"github.com/chatpe/chatpe-server/scripts/wsclient"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	identity := flag.String("identity", "CS001", "identity to log in as")
	device := flag.String("device", "cli-device", "device id")
	accessKey := flag.String("access-key", "", "access key, if the server requires one")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	session, err := wsclient.Login(ctx, *base, *identity, *device, *accessKey)
	if err != nil {
		return err
	}

	conn, err := wsclient.Dial(ctx, *base, session.Token)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeJoin}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	fmt.Printf("Connected to %s as %s in room %s\n", *base, session.Pseudonym, session.RoomName)
	fmt.Println("Type messages and press Enter to send. /pin <id>, /react <id> <emoji>, /rename <name>, /reveal, /logout. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	if loggedOut := writeLoop(ctx, conn); loggedOut {
		if err := wsclient.Logout(context.Background(), *base, session.SessionID); err != nil {
			log.Printf("logout: %v", err)
		}
	}

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) {
				fmt.Printf("connection closed: %s\n", closeErr.Reason)
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		var head proto.Inbound
		if err := json.Unmarshal(raw, &head); err != nil {
			log.Printf("decode frame: %v", err)
			continue
		}

		switch head.Type {
		case proto.OutboundTypeJoined:
			var evt proto.Joined
			if err := json.Unmarshal(raw, &evt); err != nil {
				log.Printf("unmarshal joined: %v", err)
				continue
			}
			for _, m := range evt.Messages {
				printMessage(m)
			}
			fmt.Printf("[%s] online: %s\n", evt.Room.Name, strings.Join(evt.Roster, ", "))
		case proto.OutboundTypeMessage:
			var evt proto.NewMessage
			if err := json.Unmarshal(raw, &evt); err != nil {
				log.Printf("unmarshal message: %v", err)
				continue
			}
			printMessage(evt.Message)
		case proto.OutboundTypeRenamed:
			var evt proto.Renamed
			if err := json.Unmarshal(raw, &evt); err == nil {
				fmt.Printf("room renamed to %q by %s\n", evt.Name, evt.By)
			}
		case proto.OutboundTypeRevealMapping:
			var evt proto.RevealMapping
			if err := json.Unmarshal(raw, &evt); err == nil {
				for _, e := range evt.Entries {
					fmt.Printf("  %s = %s (%s)\n", e.Pseudonym, e.Identity, e.DisplayName)
				}
			}
		case proto.OutboundTypeTyping:
		default:
			fmt.Printf("%s\n", raw)
		}
	}
}

func printMessage(m proto.Message) {
	if m.Type != "text" {
		fmt.Printf("[%s] %s sent %s (%d bytes)\n", m.ID, m.Pseudonym, m.Type, len(m.Content))
		return
	}
	fmt.Printf("[%s] %s: %s\n", m.ID, m.Pseudonym, m.Content)
}

// writeLoop sends stdin lines until EOF or cancellation. It reports whether
// the user asked to log out.
func writeLoop(ctx context.Context, conn *websocket.Conn) bool {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-lines:
			if !ok {
				return false
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if text == "/logout" {
				return true
			}

			if err := wsjson.Write(ctx, conn, frameFor(text)); err != nil {
				log.Printf("send error: %v", err)
				return false
			}
		}
	}
}

func frameFor(text string) map[string]any {
	fields := strings.Fields(text)
	switch {
	case fields[0] == "/pin" && len(fields) == 2:
		return map[string]any{"type": proto.InboundTypePin, "messageId": fields[1]}
	case fields[0] == "/react" && len(fields) == 3:
		return map[string]any{"type": proto.InboundTypeReact, "messageId": fields[1], "emoji": fields[2]}
	case fields[0] == "/rename" && len(fields) > 1:
		return map[string]any{"type": proto.InboundTypeRename, "name": strings.TrimSpace(strings.TrimPrefix(text, "/rename"))}
	case fields[0] == "/reveal":
		return map[string]any{"type": proto.InboundTypeReveal}
	default:
		return map[string]any{"type": proto.InboundTypeMessage, "messageType": "text", "content": text}
	}
}
