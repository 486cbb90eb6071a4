// Package transport owns the serial link to the actuator. Commands produced
// by the control loop go through a bounded queue to a single worker that
// writes them, reads telemetry lines back and keeps DeviceState current.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/cjeanneret/PanTrack/internal/debug"
)

// ErrNotConnected is returned by Shutdown when no port is open.
var ErrNotConnected = errors.New("actuator not connected")

// Options tune the worker.
type Options struct {
	Name      string        // port name used in log lines
	QueueSize int           // outbound queue capacity
	Settle    time.Duration // wait after opening before the first write
	Reconnect time.Duration // backoff after an open or I/O failure
	Yield     time.Duration // pause after each write
}

// Stats are running counters kept by the transport.
type Stats struct {
	Enqueued      int64 `json:"enqueued"`
	Dropped       int64 `json:"dropped"`
	Sent          int64 `json:"sent"`
	WriteErrors   int64 `json:"write_errors"`
	LinesParsed   int64 `json:"lines_parsed"`
	LinesRejected int64 `json:"lines_rejected"`
	OpenFailures  int64 `json:"open_failures"`
	Reconnects    int64 `json:"reconnects"`
}

type finalReq struct {
	cmd  Command
	done chan error
}

// Transport decouples command production from serial I/O.
type Transport struct {
	open  Opener
	opts  Options
	queue chan Command
	final chan finalReq
	state *stateCell
	now   func() time.Time

	enqueued, dropped, sent, writeErrors    atomic.Int64
	parsed, rejected, openFails, reconnects atomic.Int64
}

// New creates a transport. A nil opener runs permanently disconnected: the
// queue still fills and drops, nothing is written.
func New(open Opener, opts Options) *Transport {
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.Reconnect <= 0 {
		opts.Reconnect = 100 * time.Millisecond
	}
	if opts.Name == "" {
		opts.Name = "actuator"
	}
	return &Transport{
		open:  open,
		opts:  opts,
		queue: make(chan Command, opts.QueueSize),
		final: make(chan finalReq),
		state: newStateCell(),
		now:   time.Now,
	}
}

// Enqueue queues cmd without blocking. When the queue is full the command is
// dropped: by the time it could be sent it would be stale anyway.
func (t *Transport) Enqueue(cmd Command) bool {
	select {
	case t.queue <- cmd:
		t.enqueued.Add(1)
		return true
	default:
		t.dropped.Add(1)
		return false
	}
}

// Len returns the number of queued commands.
func (t *Transport) Len() int {
	return len(t.queue)
}

// Cap returns the queue capacity.
func (t *Transport) Cap() int {
	return cap(t.queue)
}

// State returns a snapshot of the device state.
func (t *Transport) State() DeviceState {
	return t.state.snapshot()
}

// Stats returns a snapshot of the counters.
func (t *Transport) Stats() Stats {
	return Stats{
		Enqueued:      t.enqueued.Load(),
		Dropped:       t.dropped.Load(),
		Sent:          t.sent.Load(),
		WriteErrors:   t.writeErrors.Load(),
		LinesParsed:   t.parsed.Load(),
		LinesRejected: t.rejected.Load(),
		OpenFailures:  t.openFails.Load(),
		Reconnects:    t.reconnects.Load(),
	}
}

// Shutdown discards pending commands and sends a final Stop, waiting until
// it is written or ctx expires.
func (t *Transport) Shutdown(ctx context.Context) error {
	for {
		select {
		case <-t.queue:
			continue
		default:
		}
		break
	}

	done := make(chan error, 1)
	select {
	case t.final <- finalReq{cmd: CmdStop, done: done}:
	case <-ctx.Done():
		return fmt.Errorf("final stop not delivered: %w", ctx.Err())
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("final stop not confirmed: %w", ctx.Err())
	}
}

// Run is the worker loop. It returns only when ctx is cancelled; open and
// I/O failures are retried after a backoff.
func (t *Transport) Run(ctx context.Context) error {
	if t.open == nil {
		debug.Info("No serial port configured, running disconnected")
		for {
			select {
			case <-ctx.Done():
				return nil
			case req := <-t.final:
				req.done <- ErrNotConnected
			}
		}
	}

	failing := false
	for {
		if ctx.Err() != nil {
			return nil
		}

		port, err := t.open()
		if err != nil {
			t.openFails.Add(1)
			if !failing {
				debug.Error(err)
				failing = true
			}
			t.markConnected(false)
			t.backoff(ctx)
			continue
		}
		failing = false
		t.markConnected(true)

		err = t.serve(ctx, port)
		if cerr := port.Close(); cerr != nil {
			debug.Trace("closing %s: %v", t.opts.Name, cerr)
		}
		if ctx.Err() != nil {
			return nil
		}
		debug.Error(fmt.Errorf("%s: %w", t.opts.Name, err))
		t.reconnects.Add(1)
		t.markConnected(false)
		t.backoff(ctx)
	}
}

// serve drives one open port until an I/O error or cancellation.
func (t *Transport) serve(ctx context.Context, port Porter) error {
	if !t.wait(ctx, t.opts.Settle) {
		return ctx.Err()
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	// The blocking read runs on its own goroutine so the loop below can keep
	// writing commands while waiting for telemetry. Closing the port ends it.
	go func() {
		lr := newLineReader(port)
		for {
			raw, err := lr.next()
			if errors.Is(err, errLineTooLong) {
				t.rejected.Add(1)
				debug.Trace("%s: discarded oversized telemetry line", t.opts.Name)
				continue
			}
			if err != nil {
				readErr <- fmt.Errorf("read: %w", err)
				return
			}
			if !utf8.Valid(raw) {
				t.rejected.Add(1)
				continue
			}
			select {
			case lines <- string(raw):
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case req := <-t.final:
			req.done <- t.write(port, req.cmd)

		case cmd := <-t.queue:
			if err := t.write(port, cmd); err != nil {
				return err
			}
			t.wait(ctx, t.opts.Yield)

		case line := <-lines:
			t.handleLine(line)

		case err := <-readErr:
			return err
		}
	}
}

// maxLineLen bounds a telemetry line. Firmware replies are a few dozen bytes.
const maxLineLen = 256

var errLineTooLong = errors.New("telemetry line too long")

// lineReader splits the telemetry stream into lines, trimming the trailing
// CR. Lines longer than maxLineLen are skipped whole.
type lineReader struct {
	r *bufio.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, maxLineLen)}
}

// next returns the following line. The slice is only valid until the next
// call.
func (l *lineReader) next() ([]byte, error) {
	line, err := l.r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = l.r.ReadSlice('\n')
		}
		if err != nil {
			return nil, err
		}
		return nil, errLineTooLong
	}
	if err != nil {
		return nil, err
	}
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

func (t *Transport) write(port Porter, cmd Command) error {
	n, err := port.Write([]byte{byte(cmd)})
	if err == nil && n != 1 {
		err = io.ErrShortWrite
	}
	if err == nil {
		if d, ok := port.(drainer); ok {
			err = d.Drain()
		}
	}
	if err != nil {
		t.writeErrors.Add(1)
		debug.Command(cmd.String(), false)
		return fmt.Errorf("write %s: %w", cmd, err)
	}
	t.sent.Add(1)
	debug.Command(cmd.String(), true)
	return nil
}

func (t *Transport) handleLine(line string) {
	debug.Serial(line)
	tel, ok := ParseTelemetry(line)
	if !ok {
		t.rejected.Add(1)
		return
	}
	t.parsed.Add(1)
	wasConnected := t.state.snapshot().Connected
	t.state.apply(tel, t.now())
	if !wasConnected {
		debug.Connection(t.opts.Name, true)
	}
	if tel.Kind == KindLimit || tel.Kind == KindError {
		debug.Live("Actuator reported %s %s%s", tel.Kind, tel.Dir, tel.Reason)
	}
}

func (t *Transport) markConnected(v bool) {
	if t.state.setConnected(v, t.now()) {
		debug.Connection(t.opts.Name, v)
	}
}

// backoff waits for the reconnect delay, answering a shutdown request with
// ErrNotConnected in the meantime.
func (t *Transport) backoff(ctx context.Context) {
	timer := time.NewTimer(t.opts.Reconnect)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case req := <-t.final:
			req.done <- ErrNotConnected
		}
	}
}

// wait sleeps for d unless ctx ends first. It reports whether the full
// delay elapsed.
func (t *Transport) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
