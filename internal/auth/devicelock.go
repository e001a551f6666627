package auth

import (
	"sync"
	"time"

	"github.com/chatpe/chatpe-server/internal/clock"
	"github.com/chatpe/chatpe-server/internal/core"
)

// Occupancy binds an identity to its one current session and device.
type Occupancy struct {
	SessionID       string
	DeviceID        string
	LastActivityAt  time.Time
	LiveConnections int
}

// DeviceLock enforces that an identity is used from a single device.
// It also implements core.Presence to track live connections.
type DeviceLock struct {
	mu    sync.Mutex
	clock clock.Clock
	occ   map[string]*Occupancy
}

// NewDeviceLock creates an empty lock table.
func NewDeviceLock(clk clock.Clock) *DeviceLock {
	if clk == nil {
		clk = clock.Real{}
	}
	return &DeviceLock{clock: clk, occ: make(map[string]*Occupancy)}
}

// Check fails with core.ErrDeviceConflict if identity is bound to a different device.
func (l *DeviceLock) Check(identity, deviceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkLocked(identity, deviceID)
}

func (l *DeviceLock) checkLocked(identity, deviceID string) error {
	if o, ok := l.occ[identity]; ok && o.DeviceID != deviceID {
		return core.ErrDeviceConflict
	}
	return nil
}

// Acquire points the occupancy at sessionID and returns the session it replaced, if any.
func (l *DeviceLock) Acquire(identity, deviceID, sessionID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkLocked(identity, deviceID); err != nil {
		return "", err
	}
	now := l.clock.Now()
	o, ok := l.occ[identity]
	if !ok {
		l.occ[identity] = &Occupancy{SessionID: sessionID, DeviceID: deviceID, LastActivityAt: now}
		return "", nil
	}
	previous := o.SessionID
	o.SessionID = sessionID
	o.LastActivityAt = now
	if previous == sessionID {
		return "", nil
	}
	return previous, nil
}

// Release clears the occupancy only if it still points at sessionID.
func (l *DeviceLock) Release(identity, sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.occ[identity]
	if !ok || o.SessionID != sessionID {
		return false
	}
	delete(l.occ, identity)
	return true
}

// Get returns a copy of the occupancy for identity.
func (l *DeviceLock) Get(identity string) (Occupancy, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.occ[identity]
	if !ok {
		return Occupancy{}, false
	}
	return *o, true
}

// Touch records activity.
func (l *DeviceLock) Touch(identity string) {
	l.mu.Lock()
	if o, ok := l.occ[identity]; ok {
		o.LastActivityAt = l.clock.Now()
	}
	l.mu.Unlock()
}

// Connected counts a joined connection.
func (l *DeviceLock) Connected(identity string) {
	l.mu.Lock()
	if o, ok := l.occ[identity]; ok {
		o.LiveConnections++
		o.LastActivityAt = l.clock.Now()
	}
	l.mu.Unlock()
}

// Disconnected uncounts a connection.
func (l *DeviceLock) Disconnected(identity string) {
	l.mu.Lock()
	if o, ok := l.occ[identity]; ok && o.LiveConnections > 0 {
		o.LiveConnections--
	}
	l.mu.Unlock()
}
