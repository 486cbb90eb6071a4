package gpio

import (
	"fmt"

	"github.com/cjeanneret/PanTrack/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver drives BCM pins through /dev/gpiomem using go-rpio.
type RPiDriver struct {
	pins map[int]rpio.Pin
}

// NewRPiDriver maps GPIO memory. It fails off a Raspberry Pi.
func NewRPiDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	return &RPiDriver{pins: make(map[int]rpio.Pin)}, nil
}

func (r *RPiDriver) SetupOutput(pin int) error {
	debug.GPIO("SetupOutput", pin, nil)
	if pin <= 0 || pin > 27 {
		return fmt.Errorf("gpio %d: not a BCM header pin", pin)
	}
	p := rpio.Pin(pin)
	p.Output()
	p.Low()
	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, ok := r.pins[pin]
	if !ok {
		if err := r.SetupOutput(pin); err != nil {
			return err
		}
		p = r.pins[pin]
	}
	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

// Close switches every LED off and releases the pins as inputs.
func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")
	for pin, p := range r.pins {
		debug.Verbose("Releasing pin %d", pin)
		p.Low()
		p.Input()
	}
	return rpio.Close()
}
