// Package clock provides the time source used by expiry and pruning logic.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Real is the wall clock.
type Real struct{}

// Now returns time.Now.
func (Real) Now() time.Time { return time.Now() }

// Manual is a clock that only moves when told to. Used in tests.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a manual clock set to start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Millis returns t as unix milliseconds, the timestamp unit used on the wire.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// Expired reports whether a timestamp (unix ms) has fallen out of a ttl window at now.
// A timestamp exactly on the cutoff is still live.
func Expired(tsMillis int64, ttl time.Duration, now time.Time) bool {
	return tsMillis < Millis(now)-ttl.Milliseconds()
}
