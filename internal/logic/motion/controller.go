package motion

import (
	"time"

	"github.com/cjeanneret/PanTrack/internal/config"
)

// Params are the fixed tuning values of a Controller.
type Params struct {
	FrameCenter       int // default setpoint, restored by Recenter
	DeadbandPx        int
	CenteredRequired  int
	DirLockRequired   int
	MaxNoTargetFrames int
	ExtendedFrames    int

	HistorySize int
	Window      int
	OutlierPx   int

	MinHz        float64
	MaxHz        float64
	ErrorRangePx int
	MinInterval  time.Duration
}

// ParamsFromConfig extracts controller tuning from the application config.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		FrameCenter:       cfg.FrameCenterX(),
		DeadbandPx:        cfg.Control.DeadbandPx,
		CenteredRequired:  cfg.Control.CenteredRequired,
		DirLockRequired:   cfg.Control.DirLockRequired,
		MaxNoTargetFrames: cfg.Search.MaxNoTargetFrames,
		ExtendedFrames:    cfg.Search.ExtendedFrames,
		HistorySize:       cfg.Filter.History,
		Window:            cfg.Filter.Window,
		OutlierPx:         cfg.Filter.OutlierPx,
		MinHz:             cfg.Rate.MinHz,
		MaxHz:             cfg.Rate.MaxHz,
		ErrorRangePx:      cfg.Rate.ErrorRangePx,
		MinInterval:       cfg.MinInterval(),
	}
}

// State is everything a tracking session mutates between frames. It is owned
// by a single goroutine and handed to the Controller on every call.
type State struct {
	Filter *Filter
	Lock   *Lock
	Rate   *Rate

	FrameCenter    int
	LastDirection  Direction
	RotationActive bool
	CenteredFrames int
	NoTargetFrames int
}

// Decision is the outcome of one control cycle.
type Decision struct {
	Direction Direction
	Status    Status
	Intensity int
	Error     int // smoothed position minus frame center, 0 without a target
	Smoothed  int
	Interval  time.Duration // command interval in effect after this cycle
}

// Controller turns measurements into direction decisions. It holds no
// per-session state of its own, see State.
type Controller struct {
	p Params
}

// NewController creates a controller with the given tuning.
func NewController(p Params) *Controller {
	return &Controller{p: p}
}

// Params returns the controller tuning.
func (c *Controller) Params() Params {
	return c.p
}

// NewState returns a fresh session state: empty history, idle lock,
// setpoint at the configured frame center.
func (c *Controller) NewState() *State {
	return &State{
		Filter:      NewFilter(c.p.HistorySize, c.p.Window, c.p.OutlierPx),
		Lock:        NewLock(c.p.DirLockRequired),
		Rate:        NewRate(c.p.MinHz, c.p.MaxHz, c.p.ErrorRangePx, c.p.MinInterval),
		FrameCenter: c.p.FrameCenter,
	}
}

// Decide runs one control cycle for a frame that has a measurement.
func (c *Controller) Decide(s *State, x int) Decision {
	smoothed := s.Filter.Smooth(x)
	err := smoothed - s.FrameCenter
	d := Decision{Error: err, Smoothed: smoothed}

	if abs(err) <= c.p.DeadbandPx {
		s.CenteredFrames++
		if s.CenteredFrames >= c.p.CenteredRequired {
			s.LastDirection = Stop
			s.RotationActive = false
			s.Lock.Reset()
			d.Direction = Stop
			d.Status = StatusCentered
			d.Intensity = IntensityNone
			d.Interval = s.Rate.Interval()
			return d
		}

		// One in-band sample is not enough to stop; keep correcting gently.
		s.RotationActive = true
		d.Direction = s.LastDirection
		if !d.Direction.Moving() {
			d.Direction = toward(err)
		}
		d.Status = StatusNearCenter
		d.Intensity = IntensityLow
		d.Interval = s.Rate.Update(abs(err))
		return d
	}

	s.CenteredFrames = 0
	s.RotationActive = true
	s.LastDirection = s.Lock.Apply(toward(err))

	d.Direction = s.LastDirection
	d.Status = StatusRotatingLeft
	if d.Direction == Right {
		d.Status = StatusRotatingRight
	}
	d.Intensity = IntensityHigh
	d.Interval = s.Rate.Update(abs(err))
	return d
}

// Recenter restores the configured frame center as setpoint.
func (c *Controller) Recenter(s *State) {
	s.FrameCenter = c.p.FrameCenter
}

// ResetHistory clears the position filter.
func (c *Controller) ResetHistory(s *State) {
	s.Filter.Reset()
}

// SetFrameCenter moves the setpoint, e.g. when an operator calibrates the
// camera offset. Values outside the frame are clamped to it.
func (c *Controller) SetFrameCenter(s *State, px int) {
	s.FrameCenter = max(0, min(px, 2*c.p.FrameCenter))
}
