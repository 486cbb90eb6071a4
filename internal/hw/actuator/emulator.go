// Package actuator emulates the pan head firmware so the tracker can run
// and be tested without a board attached.
package actuator

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/PanTrack/internal/debug"
	"github.com/cjeanneret/PanTrack/internal/transport"
)

// Firmware constants for the 28BYJ-48 head.
const (
	BaseStepSize = 20
	StepIncrease = 8
	MaxStepSize  = 100
	MinPosition  = -1024
	MaxPosition  = 1024
	SlowRPM      = 12
	FastRPM      = 18
	Cooldown     = 30 * time.Millisecond
)

var banner = []string{
	"=== Face Tracker Arduino v2.0 ===",
	"Testing stepper motor...",
	"Motor test complete",
	"Arduino Ready - Send L/R/S/H/I commands",
}

// Options configure an Emulator.
type Options struct {
	Cooldown time.Duration    // commands closer than this are discarded; 0 disables
	Now      func() time.Time // defaults to time.Now
	Quiet    bool             // skip the startup banner
}

// Emulator behaves like the serial side of the firmware: it accepts
// single-byte commands on Write and produces telemetry lines on Read.
type Emulator struct {
	opts Options

	mu          sync.Mutex
	cond        *sync.Cond
	out         bytes.Buffer
	closed      bool
	position    int
	last        transport.Command
	consecutive int
	lastAt      time.Time
}

// New creates an emulated head at position 0.
func New(opts Options) *Emulator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Emulator{opts: opts, last: transport.CmdStop}
	e.cond = sync.NewCond(&e.mu)
	if !opts.Quiet {
		for _, l := range banner {
			e.println(l)
		}
	}
	return e
}

// Opener returns a transport.Opener that powers up a fresh emulator on
// every open, the way the board resets when the port is opened.
func Opener(opts Options) transport.Opener {
	return func() (transport.Porter, error) {
		debug.Verbose("Opening emulated actuator")
		return New(opts), nil
	}
}

// Position returns the emulated step position.
func (e *Emulator) Position() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// Write handles the first byte of p as a command and discards the rest,
// matching the firmware flushing its input buffer after each command.
func (e *Emulator) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p) == 0 {
		return 0, nil
	}

	now := e.opts.Now()
	if e.opts.Cooldown > 0 && !e.lastAt.IsZero() && now.Sub(e.lastAt) < e.opts.Cooldown {
		debug.Trace("emulator: %q discarded during cooldown", p[0])
		return len(p), nil
	}
	e.process(transport.Command(p[0]))
	e.lastAt = now
	return len(p), nil
}

func (e *Emulator) process(cmd transport.Command) {
	if cmd == e.last && cmd != transport.CmdStop {
		e.consecutive++
	} else {
		e.consecutive = 0
	}

	switch cmd {
	case transport.CmdLeft:
		e.move(cmd, -1)
	case transport.CmdRight:
		e.move(cmd, 1)
	case transport.CmdStop:
		e.println("S:STOP")
	case transport.CmdHome:
		e.println("HOMING...")
		e.position = 0
		e.consecutive = 0
		e.println("HOME:COMPLETE")
	case transport.CmdInfo:
		e.println(fmt.Sprintf("INFO:P:%d,L:%d,R:%d", e.position, MinPosition, MaxPosition))
	default:
		e.println("ERROR:INVALID_COMMAND")
	}
	e.last = cmd
}

func (e *Emulator) move(cmd transport.Command, sign int) {
	step := e.stepSize()
	next := e.position + sign*step
	if next < MinPosition || next > MaxPosition {
		e.println(fmt.Sprintf("%s:LIMIT_REACHED", cmd))
		return
	}
	rpm := SlowRPM
	if step > 2*BaseStepSize {
		rpm = FastRPM
	}
	e.println(fmt.Sprintf("Moving %s:%d at %dRPM", cmd, step, rpm))
	e.position = next
	e.println(fmt.Sprintf("%s:%d,P:%d", cmd, step, e.position))
}

// stepSize grows with consecutive identical moves.
func (e *Emulator) stepSize() int {
	return min(BaseStepSize+e.consecutive*StepIncrease, MaxStepSize)
}

func (e *Emulator) println(line string) {
	e.out.WriteString(line)
	e.out.WriteString("\r\n")
	e.cond.Broadcast()
}

// ReadLines returns the lines produced so far without blocking.
func (e *Emulator) ReadLines() []string {
	e.mu.Lock()
	data := e.out.String()
	e.out.Reset()
	e.mu.Unlock()

	var lines []string
	for _, l := range strings.Split(data, "\r\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Read blocks until telemetry is available or the emulator is closed.
func (e *Emulator) Read(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.out.Len() == 0 && !e.closed {
		e.cond.Wait()
	}
	if e.out.Len() == 0 {
		return 0, io.EOF
	}
	return e.out.Read(p)
}

func (e *Emulator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.out.Reset()
	e.cond.Broadcast()
	return nil
}
