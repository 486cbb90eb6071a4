package motion

import (
	"math"
	"time"
)

// Rate maps the tracking error to a command interval: far from center the
// actuator gets commands up to MaxHz, near center they thin out to MinHz.
type Rate struct {
	MinHz       float64
	MaxHz       float64
	RangePx     int           // error at which MaxHz is reached
	MinInterval time.Duration // never command faster than this

	interval time.Duration
}

// NewRate creates a rate controller. The interval starts at minInterval so
// the first command of a session is not held back.
func NewRate(minHz, maxHz float64, rangePx int, minInterval time.Duration) *Rate {
	return &Rate{
		MinHz:       minHz,
		MaxHz:       maxHz,
		RangePx:     rangePx,
		MinInterval: minInterval,
		interval:    minInterval,
	}
}

// Update recomputes the interval from the absolute error and returns it.
func (r *Rate) Update(absErr int) time.Duration {
	e := math.Max(0, math.Min(float64(absErr), float64(r.RangePx)))
	frac := 0.0
	if r.RangePx > 0 {
		frac = e / float64(r.RangePx)
	}
	hz := r.MinHz + frac*(r.MaxHz-r.MinHz)

	interval := time.Duration(float64(time.Second) / hz)
	if interval < r.MinInterval {
		interval = r.MinInterval
	}
	r.interval = interval
	return interval
}

// Interval returns the most recently computed command interval.
func (r *Rate) Interval() time.Duration {
	return r.interval
}
