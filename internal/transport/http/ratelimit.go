package http

import (
	"sync"
	"time"

	"github.com/chatpe/chatpe-server/internal/clock"
)

const rateWindow = time.Minute

// rateLimiter is a sliding one-minute window over the inbound frames of one
// connection. It keeps the accepted timestamps in a ring of size limit.
type rateLimiter struct {
	mu    sync.Mutex
	clock clock.Clock
	limit int
	ring  []time.Time
	next  int
	count int
}

func newRateLimiter(limit int, clk clock.Clock) *rateLimiter {
	if limit <= 0 {
		return nil
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &rateLimiter{clock: clk, limit: limit, ring: make([]time.Time, limit)}
}

// allow records a frame and reports whether it fits in the window.
// A nil limiter allows everything.
func (r *rateLimiter) allow() bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if r.count == r.limit {
		// The oldest accepted frame sits at next once the ring is full.
		if now.Sub(r.ring[r.next]) < rateWindow {
			return false
		}
		r.count--
	}
	r.ring[r.next] = now
	r.next = (r.next + 1) % r.limit
	r.count++
	return true
}
