// Package gpio drives the optional status outputs of the tracker head.
package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/PanTrack/internal/debug"
)

// Level is the logical state of an output.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Driver abstracts the pin backend so the tracker runs the same on a
// Raspberry Pi and on a development machine.
type Driver interface {
	SetupOutput(pin int) error
	WritePin(pin int, level Level) error
	Close() error
}

// NewDriver returns the mock driver when mock is true, the go-rpio driver
// otherwise.
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	}
	return NewRPiDriver()
}

// MockDriver keeps pin levels in memory.
type MockDriver struct {
	mu     sync.Mutex
	levels map[int]Level
	writes int
	closed bool
}

func NewMockDriver() *MockDriver {
	return &MockDriver{levels: make(map[int]Level)}
}

func (m *MockDriver) SetupOutput(pin int) error {
	debug.GPIO("SetupOutput", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("gpio %d: driver closed", pin)
	}
	m.levels[pin] = Low
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("gpio %d: driver closed", pin)
	}
	m.levels[pin] = level
	m.writes++
	return nil
}

// Level returns the last level written to pin.
func (m *MockDriver) Level(pin int) Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin]
}

// Writes returns the number of WritePin calls.
func (m *MockDriver) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	m.mu.Lock()
	defer m.mu.Unlock()
	for pin := range m.levels {
		m.levels[pin] = Low
	}
	m.closed = true
	return nil
}
