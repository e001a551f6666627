package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chatpe/chatpe-server/internal/clock"
	"github.com/chatpe/chatpe-server/internal/core"
)

func newTestAuthService(t *testing.T) (*Service, *core.Hub, *clock.Manual) {
	t.Helper()

	clk := clock.NewManual(time.UnixMilli(1_700_000_000_000))
	locks := NewDeviceLock(clk)
	dir := core.NewStaticDirectory([]core.RoomRule{{Key: "CS", Name: "Computer Science", Prefixes: []string{"CS"}}}, "CS", nil, []string{"ADMIN1"})
	hub := core.NewHub(core.Options{Directory: dir, Presence: locks, Clock: clk})

	svc := NewService(Config{
		Token: TokenConfig{Secret: []byte("test-secret-change-me"), Issuer: "test"},
	}, hub, locks, clk, nil)
	return svc, hub, clk
}

func login(t *testing.T, svc *Service, identity, device string) *Grant {
	t.Helper()
	c, err := svc.RequestChallenge(identity, device, "")
	if err != nil {
		t.Fatalf("request challenge: %v", err)
	}
	grant, err := svc.Login(context.Background(), identity, c.Code, device)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return grant
}

func TestLoginIssuesSessionAndToken(t *testing.T) {
	svc, hub, _ := newTestAuthService(t)

	grant := login(t, svc, " cs101 ", "dev-a")
	s := grant.Session
	if s.Identity != "CS101" || s.RoomKey != "CS" || s.DeviceID != "dev-a" {
		t.Fatalf("unexpected session %+v", s)
	}
	if s.Pseudonym == "" {
		t.Fatalf("expected a pseudonym")
	}
	if _, ok := hub.Session(s.ID); !ok {
		t.Fatalf("session should be live in the hub")
	}

	id, err := svc.Authorize(grant.Token)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if id != s.ID {
		t.Fatalf("expected session %s, got %s", s.ID, id)
	}
}

func TestLoginRejectsWrongCode(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	if _, err := svc.RequestChallenge("CS101", "dev-a", ""); err != nil {
		t.Fatalf("request challenge: %v", err)
	}
	if _, err := svc.Login(context.Background(), "CS101", "nope", "dev-a"); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "", "123456", "dev-a"); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLoginFromOtherDeviceConflicts(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	login(t, svc, "CS101", "dev-a")

	if _, err := svc.RequestChallenge("CS101", "dev-b", ""); !errors.Is(err, core.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited for challenge, got %v", err)
	}

	// A challenge issued to the bound device cannot be redeemed from another one.
	c, err := svc.RequestChallenge("CS101", "dev-a", "")
	if err != nil {
		t.Fatalf("request challenge: %v", err)
	}
	if _, err := svc.Login(context.Background(), "CS101", c.Code, "dev-b"); !errors.Is(err, core.ErrDeviceConflict) {
		t.Fatalf("expected ErrDeviceConflict, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "CS101", c.Code, "dev-a"); err != nil {
		t.Fatalf("code should not be consumed by the rejected attempt: %v", err)
	}
}

func TestReloginSupersedesPreviousSession(t *testing.T) {
	svc, hub, _ := newTestAuthService(t)

	first := login(t, svc, "CS101", "dev-a")
	client, err := hub.Connect(first.Session.ID)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	second := login(t, svc, "CS101", "dev-a")
	if second.Session.ID == first.Session.ID {
		t.Fatalf("expected a new session id")
	}
	if second.Session.Pseudonym != first.Session.Pseudonym {
		t.Fatalf("expected stable pseudonym, got %q then %q", first.Session.Pseudonym, second.Session.Pseudonym)
	}
	if _, ok := hub.Session(first.Session.ID); ok {
		t.Fatalf("previous session should be gone")
	}

	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatalf("previous connection was not closed")
	}
	if client.CloseReason() != core.CloseSuperseded {
		t.Fatalf("expected CloseSuperseded, got %v", client.CloseReason())
	}

	if _, err := svc.Authorize(first.Token); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("old token should not authorize, got %v", err)
	}
}

func TestConcurrentLoginsOnlyOneWins(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	c, err := svc.RequestChallenge("CS101", "dev-a", "")
	if err != nil {
		t.Fatalf("request challenge: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, dev := range []string{"dev-a", "dev-b", "dev-c", "dev-d"} {
		wg.Add(1)
		go func(dev string) {
			defer wg.Done()
			if _, err := svc.Login(context.Background(), "CS101", c.Code, dev); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(dev)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one successful login, got %d", wins)
	}
}

func TestLogoutReleasesLockAndClosesConnections(t *testing.T) {
	svc, hub, _ := newTestAuthService(t)

	grant := login(t, svc, "CS101", "dev-a")
	client, err := hub.Connect(grant.Session.ID)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	svc.Logout(grant.Session.ID)
	svc.Logout(grant.Session.ID)
	svc.Logout("unknown")

	<-client.Done()
	if client.CloseReason() != core.CloseLoggedOut {
		t.Fatalf("expected CloseLoggedOut, got %v", client.CloseReason())
	}
	if _, ok := svc.Locks().Get("CS101"); ok {
		t.Fatalf("device lock should be released")
	}
	login(t, svc, "CS101", "dev-b")
}

func TestResume(t *testing.T) {
	svc, _, clk := newTestAuthService(t)
	grant := login(t, svc, "CS101", "dev-a")

	clk.Advance(time.Second)
	resumed, err := svc.Resume(grant.Session.ID, "dev-a")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Session.ID != grant.Session.ID || resumed.Token == "" {
		t.Fatalf("unexpected resume grant %+v", resumed)
	}
	if _, err := svc.Resume(grant.Session.ID, "dev-b"); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for other device, got %v", err)
	}
	if _, err := svc.Resume("missing", "dev-a"); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown session, got %v", err)
	}
}

func TestAccessKeyRequired(t *testing.T) {
	hash, err := HashAccessKey("open-sesame")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	clk := clock.NewManual(time.Now())
	locks := NewDeviceLock(clk)
	hub := core.NewHub(core.Options{Presence: locks, Clock: clk})
	svc := NewService(Config{AccessKeyHash: hash, Token: TokenConfig{Secret: []byte("x")}}, hub, locks, clk, nil)

	if _, err := svc.RequestChallenge("S1", "dev", "wrong"); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.RequestChallenge("S1", "dev", " open-sesame "); err != nil {
		t.Fatalf("expected matching key to pass, got %v", err)
	}
}

func TestAuthorizeRejectsBadTokens(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	if _, err := svc.Authorize(""); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty token, got %v", err)
	}
	if _, err := svc.Authorize("not-a-jwt"); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for garbage, got %v", err)
	}

	other := TokenConfig{Secret: []byte("other-secret"), Issuer: "test"}
	forged, err := IssueToken(other, "whatever", "dev-a", time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Authorize(forged); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for forged token, got %v", err)
	}
}

func TestChallengesConsumedAndSwept(t *testing.T) {
	svc, _, clk := newTestAuthService(t)

	login(t, svc, "CS101", "dev-a")
	if n := svc.Challenges().Len(); n != 0 {
		t.Fatalf("login should consume its challenge, %d left", n)
	}

	if _, err := svc.RequestChallenge("CS102", "dev-b", ""); err != nil {
		t.Fatalf("request challenge: %v", err)
	}
	if n := svc.SweepChallenges(); n != 0 {
		t.Fatalf("fresh challenge should survive the sweep, removed %d", n)
	}

	clk.Advance(DefaultChallengeWindow + time.Second)
	if n := svc.SweepChallenges(); n != 1 {
		t.Fatalf("expected one expired challenge swept, got %d", n)
	}
	if n := svc.Challenges().Len(); n != 0 {
		t.Fatalf("store should be empty after sweep, has %d", n)
	}
}
