// Package indicator shows link and tracking status on two LEDs.
package indicator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/PanTrack/internal/hw/gpio"
)

// Indicator mirrors the tracker status on output pins. A pin number of 0
// disables that LED. Pins are only written when their level changes.
type Indicator struct {
	drv       gpio.Driver
	connected int
	tracking  int

	mu    sync.Mutex
	state map[int]gpio.Level
}

// New configures the pins on drv.
func New(drv gpio.Driver, connectedPin, trackingPin int) (*Indicator, error) {
	ind := &Indicator{
		drv:       drv,
		connected: connectedPin,
		tracking:  trackingPin,
		state:     make(map[int]gpio.Level),
	}
	for _, pin := range []int{connectedPin, trackingPin} {
		if pin == 0 {
			continue
		}
		if err := drv.SetupOutput(pin); err != nil {
			return nil, fmt.Errorf("indicator pin %d: %w", pin, err)
		}
		ind.state[pin] = gpio.Low
	}
	return ind, nil
}

// Update sets both LEDs.
func (i *Indicator) Update(connected, tracking bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return errors.Join(
		i.set(i.connected, gpio.Level(connected)),
		i.set(i.tracking, gpio.Level(tracking)),
	)
}

func (i *Indicator) set(pin int, level gpio.Level) error {
	if pin == 0 {
		return nil
	}
	if cur, ok := i.state[pin]; ok && cur == level {
		return nil
	}
	if err := i.drv.WritePin(pin, level); err != nil {
		return err
	}
	i.state[pin] = level
	return nil
}

// Close turns both LEDs off and releases the driver.
func (i *Indicator) Close() error {
	err := i.Update(false, false)
	return errors.Join(err, i.drv.Close())
}
