// Package wsclient is the login and dial plumbing shared by the dev scripts.
package wsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	transporthttp "github.com/chatpe/chatpe-server/internal/transport/http"
)

// Login runs the challenge and login exchange against base (http://host:port).
func Login(ctx context.Context, base, identity, deviceID, accessKey string) (transporthttp.SessionResponse, error) {
	var challenge transporthttp.ChallengeResponse
	if err := post(ctx, base+"/api/auth/challenge", transporthttp.ChallengeRequest{
		Identity:  identity,
		DeviceID:  deviceID,
		AccessKey: accessKey,
	}, &challenge); err != nil {
		return transporthttp.SessionResponse{}, fmt.Errorf("challenge: %w", err)
	}

	var session transporthttp.SessionResponse
	if err := post(ctx, base+"/api/login", transporthttp.LoginRequest{
		Identity: identity,
		Code:     challenge.Code,
		DeviceID: deviceID,
	}, &session); err != nil {
		return transporthttp.SessionResponse{}, fmt.Errorf("login: %w", err)
	}
	return session, nil
}

// Logout ends the session. Errors are reported but the server always acknowledges.
func Logout(ctx context.Context, base, sessionID string) error {
	return post(ctx, base+"/api/logout", transporthttp.LogoutRequest{SessionID: sessionID}, nil)
}

// Dial opens the real-time connection for a token.
func Dial(ctx context.Context, base, token string) (*websocket.Conn, error) {
	wsURL := strings.Replace(base, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(token)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

func post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e transporthttp.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("status %d: %s (%s)", resp.StatusCode, e.Error, e.Code)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
