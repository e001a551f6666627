package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/chatpe/chatpe-server/internal/clock"
	"github.com/chatpe/chatpe-server/internal/core"
)

const (
	// DefaultChallengeWindow is how long an issued code stays valid.
	DefaultChallengeWindow = 15 * time.Second
	codeDigits             = 6
)

// ErrInvalidCode is returned when no challenge matches the presented code.
var ErrInvalidCode = fmt.Errorf("%w: invalid code", core.ErrUnauthorized)

var codeSpace = big.NewInt(1_000_000)

// Challenge is a one-time code issued to an identity.
type Challenge struct {
	Identity  string
	Code      string
	ExpiresAt time.Time
}

// ChallengeStore keeps at most one live challenge per identity.
type ChallengeStore struct {
	mu         sync.Mutex
	window     time.Duration
	clock      clock.Clock
	challenges map[string]Challenge
	newCode    func() (string, error)
}

// NewChallengeStore creates a store whose codes live for window.
func NewChallengeStore(window time.Duration, clk clock.Clock) *ChallengeStore {
	if window <= 0 {
		window = DefaultChallengeWindow
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &ChallengeStore{
		window:     window,
		clock:      clk,
		challenges: make(map[string]Challenge),
		newCode:    randomCode,
	}
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// Issue creates a fresh challenge, replacing any previous one for identity.
func (s *ChallengeStore) Issue(identity string) (Challenge, error) {
	code, err := s.newCode()
	if err != nil {
		return Challenge{}, err
	}
	c := Challenge{
		Identity:  identity,
		Code:      code,
		ExpiresAt: s.clock.Now().Add(s.window),
	}

	s.mu.Lock()
	s.challenges[identity] = c
	s.mu.Unlock()
	return c, nil
}

// Validate consumes the challenge if code matches and it has not expired.
func (s *ChallengeStore) Validate(identity, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[identity]
	if !ok {
		return ErrInvalidCode
	}
	if s.clock.Now().After(c.ExpiresAt) {
		delete(s.challenges, identity)
		return core.ErrExpired
	}
	if subtle.ConstantTimeCompare([]byte(c.Code), []byte(code)) != 1 {
		return ErrInvalidCode
	}
	delete(s.challenges, identity)
	return nil
}

// Sweep deletes expired challenges and returns how many were removed.
func (s *ChallengeStore) Sweep() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, c := range s.challenges {
		if now.After(c.ExpiresAt) {
			delete(s.challenges, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored challenges.
func (s *ChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}
