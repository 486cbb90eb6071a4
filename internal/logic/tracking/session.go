// Package tracking runs the per-frame control loop: detections in, rate
// limited actuator commands out.
package tracking

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cjeanneret/PanTrack/internal/config"
	"github.com/cjeanneret/PanTrack/internal/debug"
	"github.com/cjeanneret/PanTrack/internal/logic/geometry"
	"github.com/cjeanneret/PanTrack/internal/logic/motion"
	"github.com/cjeanneret/PanTrack/internal/transport"
	"github.com/cjeanneret/PanTrack/internal/vision"
)

// ErrQuit is returned by Run when the operator ended the session.
var ErrQuit = errors.New("session ended by operator")

// Snapshot describes one processed frame.
type Snapshot struct {
	Frame          int64   `json:"frame"`
	Target         bool    `json:"target"`
	RawX           int     `json:"raw_x,omitempty"`
	Smoothed       int     `json:"smoothed"`
	Error          int     `json:"error"`
	Direction      string  `json:"direction"`
	Status         string  `json:"status"`
	Intensity      int     `json:"intensity"`
	IntervalMs     float64 `json:"interval_ms"`
	Sent           bool    `json:"sent"`
	Centered       bool    `json:"centered"` // inside the display deadband
	FrameCenter    int     `json:"frame_center"`
	NoTargetFrames int     `json:"no_target_frames"`
	FPS            float64 `json:"fps"`
}

// Options wire a session to its surroundings. Zero values are usable.
type Options struct {
	Now     func() time.Time // clock for rate gating and FPS
	OnFrame func(Snapshot)   // called after every frame from the loop goroutine
	Pace    bool             // sleep between frames to honour frame.fps
}

// Session owns the tracking state of one run. Step and Run must be called
// from a single goroutine; Do may be called from anywhere.
type Session struct {
	cfg   *config.Config
	ctrl  *motion.Controller
	state *motion.State
	gate  *transport.Gate
	frame geometry.Frame
	opts  Options

	requests chan request

	frames     int64
	fpsFrames  int
	fpsSince   time.Time
	fps        float64
	lastStatus motion.Status
}

// New creates a session sending commands to q.
func New(cfg *config.Config, q transport.Enqueuer, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctrl := motion.NewController(motion.ParamsFromConfig(cfg))
	return &Session{
		cfg:      cfg,
		ctrl:     ctrl,
		state:    ctrl.NewState(),
		gate:     transport.NewGate(q, opts.Now),
		frame:    geometry.Frame{Width: cfg.Frame.Width, Height: cfg.Frame.Height},
		opts:     opts,
		requests: make(chan request, 8),
	}
}

// request is one queued operator input. x is only used by calibration.
type request struct {
	action Action
	x      int
}

// Do queues an operator action for the next frame boundary. It reports
// false when too many actions are already waiting.
func (s *Session) Do(a Action) bool {
	return s.submit(request{action: a})
}

// Calibrate queues a new setpoint in pixels, for cameras whose optical
// center is not the middle of the frame. Out-of-frame values are clamped.
func (s *Session) Calibrate(px int) bool {
	return s.submit(request{action: actionCalibrate, x: px})
}

func (s *Session) submit(r request) bool {
	select {
	case s.requests <- r:
		return true
	default:
		return false
	}
}

// Start requests device info so limits are known before the first move.
func (s *Session) Start() {
	debug.Info("Tracking session started (center=%d, deadband=%dpx)", s.state.FrameCenter, s.cfg.Control.DeadbandPx)
	s.gate.Force(transport.CmdInfo)
	s.fpsSince = s.opts.Now()
}

// Step processes the detections of one frame and returns what was decided.
func (s *Session) Step(boxes []geometry.Box) Snapshot {
	s.frames++
	snap := Snapshot{Frame: s.frames}

	var d motion.Decision
	if box, ok := geometry.Largest(boxes); ok {
		x := box.CenterX()
		if !s.cfg.Frame.Mirror {
			// Error signs assume a mirrored view.
			x = s.frame.Mirror(x)
		}
		s.state.NoTargetFrames = 0
		d = s.ctrl.Decide(s.state, x)
		snap.Target = true
		snap.RawX = x
	} else {
		d = s.ctrl.Search(s.state)
	}

	snap.Sent = s.gate.Submit(commandFor(d.Direction), d.Interval)
	snap.Smoothed = d.Smoothed
	snap.Error = d.Error
	snap.Direction = d.Direction.String()
	snap.Status = d.Status.String()
	snap.Intensity = d.Intensity
	snap.IntervalMs = float64(d.Interval) / float64(time.Millisecond)
	snap.Centered = snap.Target && abs(d.Error) <= s.cfg.Control.UIDeadbandPx
	snap.FrameCenter = s.state.FrameCenter
	snap.NoTargetFrames = s.state.NoTargetFrames

	s.updateFPS()
	snap.FPS = s.fps

	if d.Status != s.lastStatus {
		debug.Live("Status %s -> %s", s.lastStatus, d.Status)
		s.lastStatus = d.Status
	}
	if debug.IsEnabled(debug.LevelVerbose) {
		debug.Decision(snap.Direction, snap.Status, d.Intensity, d.Error)
	}

	if s.opts.OnFrame != nil {
		s.opts.OnFrame(snap)
	}
	return snap
}

// Run pulls frames from det until it is exhausted, ctx ends or the operator
// quits. Exhausting the detector is not an error.
func (s *Session) Run(ctx context.Context, det vision.Detector) error {
	s.Start()
	interval := s.cfg.FrameInterval()
	for {
		if quit := s.drainActions(); quit {
			return ErrQuit
		}

		started := s.opts.Now()
		boxes, err := det.Next(ctx)
		if errors.Is(err, io.EOF) {
			debug.Info("Detector finished after %d frames", s.frames)
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.Step(boxes)

		if s.opts.Pace {
			wait := interval - s.opts.Now().Sub(started)
			if wait > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(wait):
				}
			}
		}
	}
}

// drainActions applies every pending action. It reports whether one of them
// was Quit.
func (s *Session) drainActions() bool {
	for {
		select {
		case r := <-s.requests:
			if s.apply(r) {
				return true
			}
		default:
			return false
		}
	}
}

func (s *Session) apply(r request) (quit bool) {
	debug.Info("Operator action: %s", r.action)
	switch r.action {
	case ActionReset:
		s.ctrl.ResetHistory(s.state)
	case ActionHome:
		s.gate.Force(transport.CmdHome)
	case ActionInfo:
		s.gate.Force(transport.CmdInfo)
	case ActionRecenter:
		s.ctrl.Recenter(s.state)
		debug.Info("Center recalibrated: %d", s.state.FrameCenter)
	case actionCalibrate:
		s.ctrl.SetFrameCenter(s.state, r.x)
		debug.Info("Center calibrated: %d", s.state.FrameCenter)
	case ActionQuit:
		return true
	}
	return false
}

// updateFPS refreshes the frame rate once per second.
func (s *Session) updateFPS() {
	s.fpsFrames++
	now := s.opts.Now()
	if s.fpsSince.IsZero() {
		s.fpsSince = now
		return
	}
	if elapsed := now.Sub(s.fpsSince); elapsed >= time.Second {
		s.fps = float64(s.fpsFrames) / elapsed.Seconds()
		s.fpsFrames = 0
		s.fpsSince = now
	}
}

// Frames returns the number of frames processed.
func (s *Session) Frames() int64 {
	return s.frames
}

// FrameCenter returns the current setpoint.
func (s *Session) FrameCenter() int {
	return s.state.FrameCenter
}

func commandFor(d motion.Direction) transport.Command {
	switch d {
	case motion.Left:
		return transport.CmdLeft
	case motion.Right:
		return transport.CmdRight
	default:
		return transport.CmdStop
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
