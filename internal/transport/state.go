package transport

import (
	"sync"
	"time"
)

// Travel limits reported by the firmware until the first INFO line arrives.
const (
	DefaultMinLimit = -1024
	DefaultMaxLimit = 1024
)

// DeviceState is the transport's view of the actuator. Only the transport
// worker writes it; everyone else reads snapshots.
type DeviceState struct {
	Position  int       `json:"position"`
	MinLimit  int       `json:"min_limit"`
	MaxLimit  int       `json:"max_limit"`
	Connected bool      `json:"connected"`
	AtLimit   string    `json:"at_limit,omitempty"` // "L" or "R" after a LIMIT_REACHED reply
	Homing    bool      `json:"homing"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// stateCell guards a DeviceState for one writer and many readers.
type stateCell struct {
	mu sync.RWMutex
	s  DeviceState
}

func newStateCell() *stateCell {
	return &stateCell{s: NewDeviceState()}
}

func (c *stateCell) snapshot() DeviceState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s
}

// setConnected updates the link flag and reports whether it changed.
func (c *stateCell) setConnected(v bool, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := c.s.Connected != v
	c.s.Connected = v
	c.s.UpdatedAt = now
	return changed
}

// apply folds one telemetry message into the state.
func (c *stateCell) apply(t Telemetry, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Apply(t)
	c.s.UpdatedAt = now
}

// NewDeviceState returns the state of a device that has not reported yet.
func NewDeviceState() DeviceState {
	return DeviceState{MinLimit: DefaultMinLimit, MaxLimit: DefaultMaxLimit}
}

// Apply folds one telemetry message into s. Any parsed line proves the link
// is up.
func (s *DeviceState) Apply(t Telemetry) {
	switch t.Kind {
	case KindMove:
		s.Position = t.Position
		s.AtLimit = ""
	case KindInfo:
		s.Position = t.Position
		s.MinLimit = t.MinLimit
		s.MaxLimit = t.MaxLimit
	case KindLimit:
		s.AtLimit = t.Dir.String()
	case KindHoming:
		s.Homing = true
	case KindHomeComplete:
		s.Position = 0
		s.Homing = false
		s.AtLimit = ""
	case KindError:
		s.LastError = t.Reason
	}
	s.Connected = true
}
