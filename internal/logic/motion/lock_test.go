package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLock_FirstProposalAdoptedImmediately(t *testing.T) {
	l := NewLock(3)
	assert.Equal(t, Left, l.Apply(Left))
	assert.Equal(t, 0, l.Pending())
}

func TestLock_ReversalNeedsSustainedEvidence(t *testing.T) {
	l := NewLock(3)
	l.Apply(Right)

	assert.Equal(t, Right, l.Apply(Left), "first contrary proposal")
	assert.Equal(t, Right, l.Apply(Left), "second contrary proposal")
	assert.Equal(t, Left, l.Apply(Left), "third contrary proposal flips")
	assert.Equal(t, 0, l.Pending())
}

func TestLock_ReaffirmResetsPending(t *testing.T) {
	l := NewLock(3)
	l.Apply(Right)
	l.Apply(Left)
	l.Apply(Left)
	assert.Equal(t, Right, l.Apply(Right))
	assert.Equal(t, 0, l.Pending())

	assert.Equal(t, Right, l.Apply(Left))
	assert.Equal(t, Right, l.Apply(Left))
}

func TestLock_ResetAndForce(t *testing.T) {
	l := NewLock(3)
	l.Apply(Right)
	l.Reset()
	assert.Equal(t, Stop, l.Locked())
	assert.Equal(t, Left, l.Apply(Left))

	l.Force(Right)
	assert.Equal(t, Right, l.Locked())
}
