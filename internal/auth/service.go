package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatpe/chatpe-server/internal/clock"
	"github.com/chatpe/chatpe-server/internal/core"
)

// Config configures the authentication service.
type Config struct {
	ChallengeWindow time.Duration
	Token           TokenConfig
	// AccessKeyHash is a bcrypt hash challenge requests must match. Empty disables the check.
	AccessKeyHash string
}

// Grant is what a successful login or resume hands back to the caller.
type Grant struct {
	Session *core.Session
	Token   string
}

// Service is the authentication boundary: challenges, logins, resumes and logouts.
type Service struct {
	// mu makes lock checks, challenge consumption and occupancy updates atomic per call.
	mu         sync.Mutex
	hub        *core.Hub
	challenges *ChallengeStore
	locks      *DeviceLock
	tokens     TokenConfig
	accessKey  string
	clock      clock.Clock
	log        *zerolog.Logger
}

// NewService wires the service to the hub and the device lock the hub reports presence to.
func NewService(cfg Config, hub *core.Hub, locks *DeviceLock, clk clock.Clock, logger *zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if locks == nil {
		locks = NewDeviceLock(clk)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		hub:        hub,
		challenges: NewChallengeStore(cfg.ChallengeWindow, clk),
		locks:      locks,
		tokens:     cfg.Token,
		accessKey:  cfg.AccessKeyHash,
		clock:      clk,
		log:        logger,
	}
}

// Challenges exposes the underlying challenge store.
func (s *Service) Challenges() *ChallengeStore {
	return s.challenges
}

// Locks exposes the device lock table.
func (s *Service) Locks() *DeviceLock {
	return s.locks
}

// RequestChallenge issues a one-time code. No code is revealed while the
// identity is bound to another device.
func (s *Service) RequestChallenge(identity, deviceID, accessKey string) (Challenge, error) {
	identity = core.NormalizeIdentity(identity)
	deviceID = strings.TrimSpace(deviceID)
	if identity == "" || deviceID == "" {
		return Challenge{}, core.ErrInvalidInput
	}
	if s.accessKey != "" && CompareAccessKey(s.accessKey, accessKey) != nil {
		return Challenge{}, fmt.Errorf("%w: bad access key", core.ErrUnauthorized)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.locks.Check(identity, deviceID); err != nil {
		return Challenge{}, fmt.Errorf("%w: identity is bound to another device", core.ErrRateLimited)
	}
	c, err := s.challenges.Issue(identity)
	if err != nil {
		return Challenge{}, err
	}
	return c, nil
}

// Login redeems a challenge code and opens a session. A previous session of
// the same identity is ended and its connections closed.
func (s *Service) Login(ctx context.Context, identity, code, deviceID string) (*Grant, error) {
	identity = core.NormalizeIdentity(identity)
	deviceID = strings.TrimSpace(deviceID)
	code = strings.TrimSpace(code)
	if identity == "" || deviceID == "" || code == "" {
		return nil, core.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Conflict is checked first so a wrong-device attempt does not burn the code.
	if err := s.locks.Check(identity, deviceID); err != nil {
		return nil, err
	}
	if err := s.challenges.Validate(identity, code); err != nil {
		return nil, err
	}

	session, err := s.hub.OpenSession(ctx, identity, deviceID)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	previous, err := s.locks.Acquire(identity, deviceID, session.ID)
	if err != nil {
		s.hub.EndSession(session.ID, core.CloseSessionInvalid)
		return nil, err
	}
	if previous != "" {
		s.hub.EndSession(previous, core.CloseSuperseded)
	}

	token, err := IssueToken(s.tokens, session.ID, deviceID, s.clock.Now())
	if err != nil {
		s.hub.EndSession(session.ID, core.CloseSessionInvalid)
		s.locks.Release(identity, session.ID)
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.log.Info().
		Str("session_id", session.ID).
		Str("room", session.RoomKey).
		Str("pseudonym", session.Pseudonym).
		Bool("superseded", previous != "").
		Msg("login succeeded")
	return &Grant{Session: session, Token: token}, nil
}

// Resume reissues a connection token for a live session on the same device.
func (s *Service) Resume(sessionID, deviceID string) (*Grant, error) {
	sessionID = strings.TrimSpace(sessionID)
	deviceID = strings.TrimSpace(deviceID)
	if sessionID == "" || deviceID == "" {
		return nil, core.ErrInvalidInput
	}
	session, ok := s.hub.Session(sessionID)
	if !ok || session.DeviceID != deviceID {
		return nil, core.ErrUnauthorized
	}
	token, err := IssueToken(s.tokens, session.ID, deviceID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.locks.Touch(session.Identity)
	return &Grant{Session: session, Token: token}, nil
}

// Logout ends the session and releases the device lock if it still points at it.
// Unknown sessions are acknowledged the same way.
func (s *Service) Logout(sessionID string) {
	session, ok := s.hub.Session(sessionID)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.hub.EndSession(session.ID, core.CloseLoggedOut)
	released := s.locks.Release(session.Identity, session.ID)
	s.log.Info().Str("session_id", session.ID).Bool("lock_released", released).Msg("logout")
}

// Authorize turns a connection token back into a live session id.
func (s *Service) Authorize(token string) (string, error) {
	if token == "" {
		return "", core.ErrUnauthorized
	}
	claims, err := ParseToken(s.tokens, token, s.clock.Now())
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrUnauthorized, err)
	}
	session, ok := s.hub.Session(claims.Subject)
	if !ok || session.DeviceID != claims.Device {
		return "", core.ErrUnauthorized
	}
	return session.ID, nil
}

// SweepChallenges removes expired challenges.
func (s *Service) SweepChallenges() int {
	return s.challenges.Sweep()
}
