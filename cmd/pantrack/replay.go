package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/cjeanneret/PanTrack/internal/config"
	"github.com/cjeanneret/PanTrack/internal/debug"
	"github.com/cjeanneret/PanTrack/internal/hw/actuator"
	"github.com/cjeanneret/PanTrack/internal/logic/tracking"
	"github.com/cjeanneret/PanTrack/internal/transport"
	"github.com/cjeanneret/PanTrack/internal/vision"
)

func newReplayCmd(g *globalFlags) *cobra.Command {
	var plot bool
	var width int
	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Run a recorded detection stream against the firmware emulator",
		Long: `Replays a detection recording frame by frame on a virtual clock at frame.fps,
sending commands straight to the emulated head, then prints a summary and
plots of the tracking error and head position.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			debug.Init(cfg.Defaults.DebugLevel)

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open recording: %w", err)
			}
			defer f.Close()

			res, err := replay(cmd.Context(), cfg, vision.NewJSONLines(f))
			if err != nil {
				return err
			}
			res.print(cmd.OutOrStdout(), plot, width)
			return nil
		},
	}
	cmd.Flags().BoolVar(&plot, "plot", true, "print error and position plots")
	cmd.Flags().IntVar(&width, "width", 80, "plot width in columns")
	return cmd
}

// emulatedLink feeds commands to an emulator synchronously so a replay is
// deterministic, and folds the replies into a device state.
type emulatedLink struct {
	emu      *actuator.Emulator
	sent     map[transport.Command]int
	state    transport.DeviceState
	limits   map[string]int // limit hits per side
	rejected int
}

func (l *emulatedLink) Enqueue(cmd transport.Command) bool {
	if _, err := l.emu.Write([]byte{byte(cmd)}); err != nil {
		return false
	}
	l.sent[cmd]++
	for _, line := range l.emu.ReadLines() {
		t, ok := transport.ParseTelemetry(line)
		if !ok {
			l.rejected++
			continue
		}
		l.state.Apply(t)
		if t.Kind == transport.KindLimit {
			l.limits[l.state.AtLimit]++
		}
	}
	return true
}

type replayResult struct {
	frames    int64
	errors    []float64
	positions []float64
	statuses  map[string]int
	link      *emulatedLink
	final     tracking.Snapshot
}

func replay(ctx context.Context, cfg *config.Config, det vision.Detector) (*replayResult, error) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }

	link := &emulatedLink{
		emu:    actuator.New(actuator.Options{Cooldown: actuator.Cooldown, Now: clock, Quiet: true}),
		sent:   make(map[transport.Command]int),
		state:  transport.NewDeviceState(),
		limits: make(map[string]int),
	}
	res := &replayResult{statuses: make(map[string]int), link: link}

	sess := tracking.New(cfg, link, tracking.Options{
		Now: clock,
		OnFrame: func(s tracking.Snapshot) {
			res.errors = append(res.errors, float64(s.Error))
			res.positions = append(res.positions, float64(link.state.Position))
			res.statuses[s.Status]++
			res.final = s
			now = now.Add(cfg.FrameInterval())
		},
	})
	err := sess.Run(ctx, det)
	if err != nil && !errors.Is(err, tracking.ErrQuit) {
		return nil, err
	}
	res.frames = sess.Frames()
	return res, nil
}

func (r *replayResult) print(w io.Writer, plot bool, width int) {
	fmt.Fprintf(w, "frames:    %d\n", r.frames)
	fmt.Fprintf(w, "commands:  L=%d R=%d S=%d I=%d H=%d\n",
		r.link.sent[transport.CmdLeft], r.link.sent[transport.CmdRight], r.link.sent[transport.CmdStop],
		r.link.sent[transport.CmdInfo], r.link.sent[transport.CmdHome])
	fmt.Fprintf(w, "position:  %d [%d, %d] (limit hits L=%d R=%d)\n", r.link.state.Position,
		r.link.state.MinLimit, r.link.state.MaxLimit, r.link.limits["L"], r.link.limits["R"])
	fmt.Fprintf(w, "final:     %s %s, error %dpx\n", r.final.Direction, r.final.Status, r.final.Error)
	for _, st := range []string{"centered", "near-center", "rotating-left", "rotating-right", "coasting", "searching-opposite", "lost", "no-target"} {
		if n := r.statuses[st]; n > 0 {
			fmt.Fprintf(w, "  %-20s %d\n", st, n)
		}
	}

	if !plot || len(r.errors) < 2 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, asciigraph.Plot(r.errors, asciigraph.Height(10), asciigraph.Width(width), asciigraph.Caption("error (px)")))
	fmt.Fprintln(w)
	fmt.Fprintln(w, asciigraph.Plot(r.positions, asciigraph.Height(10), asciigraph.Width(width), asciigraph.Caption("head position (steps)")))
}
