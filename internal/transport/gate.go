package transport

import "time"

// Enqueuer accepts commands without blocking.
type Enqueuer interface {
	Enqueue(cmd Command) bool
}

// Gate rate-limits command emission from the control loop. A command is
// handed to the queue only when at least the current interval has passed
// since the last one that was accepted. Gate is not safe for concurrent
// use; it belongs to the control loop.
type Gate struct {
	q    Enqueuer
	now  func() time.Time
	last time.Time
}

// NewGate creates a gate in front of q. now defaults to time.Now.
func NewGate(q Enqueuer, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{q: q, now: now}
}

// Submit enqueues cmd if interval has elapsed since the last accepted
// command. It reports whether the command was queued.
func (g *Gate) Submit(cmd Command, interval time.Duration) bool {
	now := g.now()
	if !g.last.IsZero() && now.Sub(g.last) < interval {
		return false
	}
	return g.enqueue(cmd, now)
}

// Force enqueues cmd regardless of the interval. Operator actions use it so
// a Home or Info request is never swallowed by the rate limit.
func (g *Gate) Force(cmd Command) bool {
	return g.enqueue(cmd, g.now())
}

func (g *Gate) enqueue(cmd Command, now time.Time) bool {
	if !g.q.Enqueue(cmd) {
		return false
	}
	g.last = now
	return true
}
