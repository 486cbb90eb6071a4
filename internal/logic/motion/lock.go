package motion

// Lock keeps the actuator from reversing on single-frame detector jitter.
// A proposal that differs from the locked direction must be repeated
// `required` consecutive times before the lock switches to it.
type Lock struct {
	required int
	locked   Direction
	pending  int
}

// NewLock creates an idle lock.
func NewLock(required int) *Lock {
	if required < 1 {
		required = 1
	}
	return &Lock{required: required}
}

// Apply feeds one proposal and returns the direction in effect this cycle.
func (l *Lock) Apply(proposed Direction) Direction {
	switch {
	case proposed == l.locked:
		l.pending = 0
	case !l.locked.Moving():
		l.locked = proposed
		l.pending = 0
	default:
		l.pending++
		if l.pending >= l.required {
			l.locked = proposed
			l.pending = 0
		}
	}
	return l.locked
}

// Force sets the lock without waiting for confirmation.
func (l *Lock) Force(d Direction) {
	l.locked = d
	l.pending = 0
}

// Reset returns the lock to idle.
func (l *Lock) Reset() {
	l.Force(Stop)
}

// Locked returns the direction currently in effect.
func (l *Lock) Locked() Direction {
	return l.locked
}

// Pending returns how many consecutive contrary proposals have been seen.
func (l *Lock) Pending() int {
	return l.pending
}
