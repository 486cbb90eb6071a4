package transport

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// startWorker runs tr until the test ends.
func startWorker(t *testing.T, tr *Transport) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("worker did not stop")
		}
	})
	return cancel
}

// sequence hands out the given ports one after the other, then fails.
func sequence(ports ...*testPort) Opener {
	var mu sync.Mutex
	return func() (Porter, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(ports) == 0 {
			return nil, errors.New("no device")
		}
		p := ports[0]
		ports = ports[1:]
		return p, nil
	}
}

func TestEnqueue_DropsWhenFull(t *testing.T) {
	tr := New(nil, Options{QueueSize: 2})

	assert.True(t, tr.Enqueue(CmdLeft))
	assert.True(t, tr.Enqueue(CmdLeft))
	assert.False(t, tr.Enqueue(CmdRight))

	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, 2, tr.Cap())
	st := tr.Stats()
	assert.Equal(t, int64(2), st.Enqueued)
	assert.Equal(t, int64(1), st.Dropped)
}

func TestNew_Defaults(t *testing.T) {
	tr := New(nil, Options{})
	assert.Equal(t, 1, tr.Cap())
	assert.Equal(t, "actuator", tr.opts.Name)
	assert.Positive(t, tr.opts.Reconnect)
}

func TestRun_WritesCommandsInOrder(t *testing.T) {
	port := newTestPort()
	tr := New(sequence(port), Options{QueueSize: 8})
	startWorker(t, tr)

	require.Eventually(t, func() bool { return tr.State().Connected }, waitFor, tick)

	for _, c := range []Command{CmdLeft, CmdLeft, CmdRight, CmdStop} {
		require.True(t, tr.Enqueue(c))
	}
	assert.Eventually(t, func() bool { return port.Written() == "LLRS" }, waitFor, tick)
	assert.Eventually(t, func() bool { return tr.Stats().Sent == 4 }, waitFor, tick)
}

func TestRun_AppliesTelemetry(t *testing.T) {
	port := newTestPort()
	tr := New(sequence(port), Options{QueueSize: 4})
	startWorker(t, tr)

	require.NoError(t, port.Emit("INFO:P:7,L:-10,R:10"))
	require.Eventually(t, func() bool { return tr.State().Position == 7 }, waitFor, tick)
	st := tr.State()
	assert.Equal(t, -10, st.MinLimit)
	assert.Equal(t, 10, st.MaxLimit)

	require.NoError(t, port.Emit("R:LIMIT_REACHED"))
	assert.Eventually(t, func() bool { return tr.State().AtLimit == "R" }, waitFor, tick)

	require.NoError(t, port.Emit("garbage"))
	require.NoError(t, port.Emit("L:20,P:-13"))
	assert.Eventually(t, func() bool { return tr.State().Position == -13 }, waitFor, tick)

	stats := tr.Stats()
	assert.Equal(t, int64(3), stats.LinesParsed)
	assert.Equal(t, int64(1), stats.LinesRejected)
}

func TestRun_DiscardsInvalidUTF8(t *testing.T) {
	port := newTestPort()
	tr := New(sequence(port), Options{QueueSize: 4})
	startWorker(t, tr)

	require.Eventually(t, func() bool { return tr.State().Connected }, waitFor, tick)
	require.NoError(t, port.Emit("L:20,P:\xff\xfe"))
	require.NoError(t, port.Emit("R:20,P:40"))
	require.Eventually(t, func() bool { return tr.State().Position == 40 }, waitFor, tick)

	assert.True(t, tr.State().Connected)
	stats := tr.Stats()
	assert.Equal(t, int64(1), stats.LinesRejected)
	assert.Equal(t, int64(1), stats.LinesParsed)
	assert.Zero(t, stats.Reconnects)
}

func TestRun_OversizedLineKeepsConnection(t *testing.T) {
	port := newTestPort()
	tr := New(sequence(port), Options{QueueSize: 4})
	startWorker(t, tr)

	require.Eventually(t, func() bool { return tr.State().Connected }, waitFor, tick)
	require.NoError(t, port.Emit(strings.Repeat("x", 70000)))
	require.NoError(t, port.Emit("R:20,P:40"))
	require.Eventually(t, func() bool { return tr.State().Position == 40 }, waitFor, tick)

	assert.True(t, tr.State().Connected)
	assert.False(t, port.IsClosed())
	stats := tr.Stats()
	assert.Equal(t, int64(1), stats.LinesRejected)
	assert.Zero(t, stats.Reconnects)
}

func TestLineReader(t *testing.T) {
	long := strings.Repeat("y", maxLineLen*3)
	lr := newLineReader(strings.NewReader("S:STOP\r\n" + long + "\nHOME:COMPLETE\npartial"))

	line, err := lr.next()
	require.NoError(t, err)
	assert.Equal(t, "S:STOP", string(line))

	_, err = lr.next()
	assert.ErrorIs(t, err, errLineTooLong)

	line, err = lr.next()
	require.NoError(t, err)
	assert.Equal(t, "HOME:COMPLETE", string(line))

	_, err = lr.next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRun_ReconnectsAfterHangup(t *testing.T) {
	first, second := newTestPort(), newTestPort()
	tr := New(sequence(first, second), Options{QueueSize: 4, Reconnect: tick})
	startWorker(t, tr)

	require.Eventually(t, func() bool { return tr.State().Connected }, waitFor, tick)
	first.Hangup()

	require.Eventually(t, func() bool { return tr.Stats().Reconnects == 1 }, waitFor, tick)
	assert.True(t, first.IsClosed())

	require.Eventually(t, func() bool { return tr.State().Connected }, waitFor, tick)
	require.True(t, tr.Enqueue(CmdRight))
	assert.Eventually(t, func() bool { return second.Written() == "R" }, waitFor, tick)
}

func TestRun_WriteErrorTriggersReconnect(t *testing.T) {
	port := newTestPort()
	port.FailWrites(errors.New("unplugged"))
	tr := New(sequence(port), Options{QueueSize: 4, Reconnect: time.Hour})
	startWorker(t, tr)

	require.Eventually(t, func() bool { return tr.State().Connected }, waitFor, tick)
	require.True(t, tr.Enqueue(CmdLeft))

	assert.Eventually(t, func() bool { return tr.Stats().WriteErrors == 1 }, waitFor, tick)
	assert.Eventually(t, func() bool { return !tr.State().Connected }, waitFor, tick)
	assert.True(t, port.IsClosed())
}

func TestRun_OpenFailureKeepsRetrying(t *testing.T) {
	tr := New(sequence(), Options{QueueSize: 4, Reconnect: tick})
	startWorker(t, tr)

	assert.Eventually(t, func() bool { return tr.Stats().OpenFailures >= 3 }, waitFor, tick)
	assert.False(t, tr.State().Connected)

	// The control loop keeps producing while the device is away.
	assert.True(t, tr.Enqueue(CmdLeft))
}

func TestRun_SettleDelaysFirstWrite(t *testing.T) {
	port := newTestPort()
	tr := New(sequence(port), Options{QueueSize: 4, Settle: 100 * time.Millisecond})
	startWorker(t, tr)

	require.True(t, tr.Enqueue(CmdLeft))
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, port.Written())
	assert.Eventually(t, func() bool { return port.Written() == "L" }, waitFor, tick)
}

func TestShutdown_SendsFinalStop(t *testing.T) {
	port := newTestPort()
	tr := New(sequence(port), Options{QueueSize: 4})
	startWorker(t, tr)
	require.Eventually(t, func() bool { return tr.State().Connected }, waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, tr.Shutdown(ctx))
	assert.Equal(t, "S", port.Written())
}

func TestShutdown_DiscardsPendingAndReportsDisconnected(t *testing.T) {
	tr := New(nil, Options{QueueSize: 4})
	tr.Enqueue(CmdLeft)
	tr.Enqueue(CmdRight)
	startWorker(t, tr)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	err := tr.Shutdown(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, tr.Len())
}

func TestShutdown_BoundedByContext(t *testing.T) {
	tr := New(nil, Options{QueueSize: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tr.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
