package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/chatpe/chatpe-server/internal/proto"
	"github.com/chatpe/chatpe-server/scripts/wsclient"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	identity := flag.String("identity", "CS001", "identity to log in as")
	device := flag.String("device", "smoke-device", "device id")
	accessKey := flag.String("access-key", "", "access key, if the server requires one")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	session, err := wsclient.Login(ctx, *base, *identity, *device, *accessKey)
	if err != nil {
		return err
	}
	fmt.Printf("Logged in: session=%s pseudonym=%s room=%s\n", session.SessionID, session.Pseudonym, session.RoomKey)
	defer func() {
		if err := wsclient.Logout(context.Background(), *base, session.SessionID); err != nil {
			log.Printf("logout: %v", err)
		}
	}()

	conn, err := wsclient.Dial(ctx, *base, session.Token)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeJoin}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var head proto.Inbound
		if err := json.Unmarshal(raw, &head); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		fmt.Printf("Received frame: type=%s\n", head.Type)

		switch head.Type {
		case proto.OutboundTypeJoined:
			var joined proto.Joined
			if err := json.Unmarshal(raw, &joined); err != nil {
				return fmt.Errorf("unmarshal joined: %w", err)
			}
			fmt.Printf("Joined: room=%s roster=%v history=%d\n", joined.Room.Name, joined.Roster, len(joined.Messages))
			msg := map[string]any{"type": proto.InboundTypeMessage, "messageType": "text", "content": *text}
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		case proto.OutboundTypeMessage:
			var evt proto.NewMessage
			if err := json.Unmarshal(raw, &evt); err != nil {
				fmt.Printf("Raw data: %s\n", string(raw))
				return fmt.Errorf("unmarshal message: %w", err)
			}
			fmt.Printf("Message: id=%s from=%s text=%q ts=%d\n", evt.Message.ID, evt.Message.Pseudonym, evt.Message.Content, evt.Message.Timestamp)
			return nil
		case proto.OutboundTypeError:
			var evt proto.Error
			if err := json.Unmarshal(raw, &evt); err == nil {
				return fmt.Errorf("server error: %s %s", evt.Reason, evt.Message)
			}
		default:
			// keep looping for message
		}
	}
}
