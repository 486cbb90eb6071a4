package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/PanTrack/internal/config"
	"github.com/cjeanneret/PanTrack/internal/logic/geometry"
	"github.com/cjeanneret/PanTrack/internal/transport"
	"github.com/cjeanneret/PanTrack/internal/vision"
)

type recorder struct {
	cmds []transport.Command
}

func (r *recorder) Enqueue(cmd transport.Command) bool {
	r.cmds = append(r.cmds, cmd)
	return true
}

// clock advances by step on every reading.
type clock struct {
	t    time.Time
	step time.Duration
}

func (c *clock) Now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

// target returns a 40px wide box centered on x.
func target(x int) []geometry.Box {
	return []geometry.Box{{X: x - 20, Y: 100, W: 40, H: 40}}
}

func newSession(t *testing.T, cfg *config.Config, opts Options) (*Session, *recorder) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Now == nil {
		opts.Now = (&clock{t: time.Unix(0, 0), step: 50 * time.Millisecond}).Now
	}
	rec := &recorder{}
	return New(cfg, rec, opts), rec
}

func TestSession_StartRequestsInfo(t *testing.T) {
	s, rec := newSession(t, nil, Options{})
	s.Start()
	assert.Equal(t, []transport.Command{transport.CmdInfo}, rec.cmds)
}

func TestSession_TargetLeftOfCenterRotatesRight(t *testing.T) {
	s, rec := newSession(t, nil, Options{})

	for i := 0; i < 5; i++ {
		snap := s.Step(target(220))
		require.True(t, snap.Target)
		assert.Equal(t, -100, snap.Error)
		assert.Equal(t, "R", snap.Direction)
		assert.Equal(t, "rotating-right", snap.Status)
		assert.True(t, snap.Sent)
	}
	want := []transport.Command{'R', 'R', 'R', 'R', 'R'}
	if diff := cmp.Diff(want, rec.cmds); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_UnmirroredFramesAreFlipped(t *testing.T) {
	cfg := config.Default()
	cfg.Frame.Mirror = false
	s, _ := newSession(t, cfg, Options{})

	snap := s.Step(target(220))
	assert.Equal(t, 419, snap.RawX)
	assert.Equal(t, "L", snap.Direction)
}

func TestSession_RateGateThrottles(t *testing.T) {
	// 5ms per frame is faster than any command interval.
	s, rec := newSession(t, nil, Options{Now: (&clock{t: time.Unix(0, 0), step: 5 * time.Millisecond}).Now})

	var sent int
	for i := 0; i < 20; i++ {
		if s.Step(target(500)).Sent {
			sent++
		}
	}
	assert.Equal(t, sent, len(rec.cmds))
	assert.Less(t, sent, 20)
	assert.Greater(t, sent, 1)
}

func TestSession_SettlesToStop(t *testing.T) {
	s, rec := newSession(t, nil, Options{})

	for i := 0; i < 4; i++ {
		s.Step(target(250))
	}
	var last Snapshot
	for i := 0; i < 15; i++ {
		last = s.Step(target(320))
	}
	assert.Equal(t, "S", last.Direction)
	assert.Equal(t, "centered", last.Status)
	assert.True(t, last.Centered)
	assert.Equal(t, transport.CmdStop, rec.cmds[len(rec.cmds)-1])
	assert.NotContains(t, rec.cmds, transport.CmdLeft)
}

func TestSession_UIDeadband(t *testing.T) {
	s, _ := newSession(t, nil, Options{})
	// Outside the control deadband but inside the display one.
	snap := s.Step(target(335))
	assert.Equal(t, 15, snap.Error)
	assert.Equal(t, "rotating-left", snap.Status)
	assert.True(t, snap.Centered)

	s2, _ := newSession(t, nil, Options{})
	snap = s2.Step(target(350))
	assert.False(t, snap.Centered)
}

func TestSession_IdleWithoutTargetSendsStop(t *testing.T) {
	s, rec := newSession(t, nil, Options{})
	snap := s.Step(nil)
	assert.False(t, snap.Target)
	assert.Equal(t, "S", snap.Direction)
	assert.Equal(t, "no-target", snap.Status)
	assert.Equal(t, 1, snap.NoTargetFrames)
	assert.Equal(t, []transport.Command{transport.CmdStop}, rec.cmds)
}

func TestSession_LostTargetSearchesThenStops(t *testing.T) {
	s, _ := newSession(t, nil, Options{})
	for i := 0; i < 5; i++ {
		s.Step(target(100))
	}

	var statuses []string
	for i := 0; i < 30; i++ {
		statuses = append(statuses, s.Step(nil).Status)
	}
	assert.Equal(t, "coasting", statuses[0])
	assert.Equal(t, "searching-opposite", statuses[14])
	assert.Equal(t, "lost", statuses[29])

	snap := s.Step(target(100))
	assert.Zero(t, snap.NoTargetFrames)
}

func TestSession_FPS(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0), step: 100 * time.Millisecond}
	s, _ := newSession(t, nil, Options{Now: clk.Now})
	s.Start()

	var snap Snapshot
	for i := 0; i < 5; i++ {
		// Step reads the clock twice per frame: once in the gate, once for FPS.
		snap = s.Step(nil)
	}
	assert.InDelta(t, 5.0, snap.FPS, 0.01)
}

func TestSession_OnFrame(t *testing.T) {
	var got []Snapshot
	s, _ := newSession(t, nil, Options{OnFrame: func(sn Snapshot) { got = append(got, sn) }})
	s.Step(nil)
	s.Step(target(100))
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[1].Frame)
	assert.Equal(t, int64(2), s.Frames())
}

func TestRun_ExhaustedDetector(t *testing.T) {
	s, rec := newSession(t, nil, Options{})
	det := vision.NewScript([][]geometry.Box{target(100), target(100), nil})

	require.NoError(t, s.Run(context.Background(), det))
	assert.Equal(t, int64(3), s.Frames())
	assert.Equal(t, transport.CmdInfo, rec.cmds[0])
}

func TestRun_OperatorActions(t *testing.T) {
	s, rec := newSession(t, nil, Options{})
	for i := 0; i < 4; i++ {
		s.Step(target(100))
	}
	s.state.FrameCenter = 50

	require.True(t, s.Do(ActionHome))
	require.True(t, s.Do(ActionInfo))
	require.True(t, s.Do(ActionReset))
	require.True(t, s.Do(ActionRecenter))
	rec.cmds = nil

	require.NoError(t, s.Run(context.Background(), vision.NewScript(nil)))
	assert.Equal(t, []transport.Command{transport.CmdInfo, transport.CmdHome, transport.CmdInfo}, rec.cmds)
	assert.Zero(t, s.state.Filter.Len())
	assert.Equal(t, 320, s.FrameCenter())
}

func TestRun_Calibrate(t *testing.T) {
	var snaps []Snapshot
	s, _ := newSession(t, nil, Options{OnFrame: func(snap Snapshot) { snaps = append(snaps, snap) }})

	require.True(t, s.Calibrate(400))
	require.NoError(t, s.Run(context.Background(), vision.NewScript([][]geometry.Box{target(400)})))
	require.Len(t, snaps, 1)
	assert.Equal(t, 400, snaps[0].FrameCenter)
	assert.Zero(t, snaps[0].Error)

	require.True(t, s.Calibrate(5000))
	require.NoError(t, s.Run(context.Background(), vision.NewScript(nil)))
	assert.Equal(t, 640, s.FrameCenter())

	require.True(t, s.Do(ActionRecenter))
	require.NoError(t, s.Run(context.Background(), vision.NewScript(nil)))
	assert.Equal(t, 320, s.FrameCenter())
}

func TestRun_Quit(t *testing.T) {
	s, _ := newSession(t, nil, Options{})
	require.True(t, s.Do(ActionQuit))
	err := s.Run(context.Background(), vision.NewScript([][]geometry.Box{nil, nil}))
	assert.ErrorIs(t, err, ErrQuit)
	assert.Zero(t, s.Frames())
}

func TestRun_CancelledContext(t *testing.T) {
	s, _ := newSession(t, nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx, vision.NewScript([][]geometry.Box{nil})))
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in   string
		want Action
	}{
		{"reset", ActionReset},
		{"r", ActionReset},
		{"HOME", ActionHome},
		{"i", ActionInfo},
		{"recenter", ActionRecenter},
		{"c", ActionRecenter},
		{" quit ", ActionQuit},
	}
	for _, tt := range tests {
		got, err := ParseAction(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseAction("jump")
	assert.Error(t, err)
	_, err = ParseAction("calibrate")
	assert.Error(t, err, "calibration needs a pixel value")
	assert.Len(t, Actions(), 5)
	assert.Equal(t, "home", ActionHome.String())
}
