package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cjeanneret/PanTrack/internal/config"
	"github.com/cjeanneret/PanTrack/internal/debug"
	"github.com/cjeanneret/PanTrack/internal/hw/actuator"
	"github.com/cjeanneret/PanTrack/internal/hw/gpio"
	"github.com/cjeanneret/PanTrack/internal/hw/indicator"
	"github.com/cjeanneret/PanTrack/internal/logic/tracking"
	"github.com/cjeanneret/PanTrack/internal/transport"
	"github.com/cjeanneret/PanTrack/internal/vision"
	"github.com/cjeanneret/PanTrack/internal/web"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	cfgPath string
	debug   int
	port    string
}

// load reads the config file and applies CLI overrides.
func (g *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(g.cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyOverrides(cfg, g.port, g.debug)
	return cfg, nil
}

// applyOverrides mutates cfg with CLI values. An empty port and a negative
// debug level mean "use the config file".
func applyOverrides(cfg *config.Config, port string, debugLevel int) {
	if port != "" {
		cfg.Serial.Port = port
	}
	if debugLevel >= 0 {
		cfg.Defaults.DebugLevel = debugLevel
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "pantrack",
		Short:         "Keep a tracked target centered with a single-axis pan head",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&g.cfgPath, "config", filepath.Join("configs", "default.yaml"), "path to config file")
	root.PersistentFlags().IntVar(&g.debug, "debug", -1, "debug level 0-4 (default from config)")
	root.PersistentFlags().StringVar(&g.port, "port", "", "serial port, e.g. /dev/ttyUSB0 or COM10 (default from config)")

	root.AddCommand(newRunCmd(g), newReplayCmd(g), newPortsCmd())
	return root
}

type runOptions struct {
	web        *webPortFlag
	simulate   bool
	detections string
	pace       bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	o := &runOptions{web: &webPortFlag{defaultPort: 8080}}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Track targets read from a detector stream",
		Long: `Reads one JSON object per frame from --detections ({"boxes":[{"x":..,"y":..,"w":..,"h":..}]})
and drives the pan head over the serial link.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			return runTracker(cmd.Context(), cfg, o)
		},
	}
	f := cmd.Flags()
	f.Var(o.web, "web", "start web server on port; --web for default 8080, --web=8980 for custom port")
	f.Lookup("web").NoOptDefVal = strconv.Itoa(o.web.defaultPort)
	f.BoolVar(&o.simulate, "simulate", false, "drive the firmware emulator instead of a serial port")
	f.StringVar(&o.detections, "detections", "-", "detection stream file, - for stdin")
	f.BoolVar(&o.pace, "pace", false, "replay the stream at frame.fps instead of as fast as it arrives")
	return cmd
}

// openerFor picks the actuator channel: the emulator, a serial port, or none.
func openerFor(cfg *config.Config, simulate bool) (transport.Opener, string, error) {
	if simulate {
		return actuator.Opener(actuator.Options{Cooldown: actuator.Cooldown}), "emulator", nil
	}
	if cfg.Serial.Port == "" {
		return nil, "", nil
	}
	open, err := transport.SerialOpener(cfg.Serial.Port, transport.PortOptions{
		BaudRate: cfg.Serial.BaudRate,
		DataBits: cfg.Serial.DataBits,
		StopBits: cfg.Serial.StopBits,
		Parity:   cfg.Serial.Parity,
	})
	if err != nil {
		return nil, "", fmt.Errorf("serial options: %w", err)
	}
	return open, cfg.Serial.Port, nil
}

func openDetections(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open detections: %w", err)
	}
	return f, nil
}

func runTracker(ctx context.Context, cfg *config.Config, o *runOptions) error {
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.PrintStruct("Control", cfg.Control)
	debug.PrintStruct("Rate", cfg.Rate)

	debug.Step(1, "Initializing indicator LEDs")
	drv, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	ind, err := indicator.New(drv, cfg.Indicator.ConnectedPin, cfg.Indicator.TrackingPin)
	if err != nil {
		drv.Close()
		return err
	}
	defer func() {
		if err := ind.Close(); err != nil {
			debug.Error(fmt.Errorf("closing indicator: %w", err))
		}
	}()

	debug.Step(2, "Opening actuator link")
	open, name, err := openerFor(cfg, o.simulate)
	if err != nil {
		return err
	}
	settle := cfg.SettleDelay()
	if o.simulate {
		settle = 0
	}
	debug.Value("Actuator", name)
	tr := transport.New(open, transport.Options{
		Name:      name,
		QueueSize: cfg.Transport.QueueSize,
		Settle:    settle,
		Reconnect: cfg.ReconnectDelay(),
		Yield:     cfg.PollInterval(),
	})

	// The worker outlives ctx so the final Stop can still be written.
	trCtx, stopTransport := context.WithCancel(context.Background())
	trDone := make(chan error, 1)
	go func() { trDone <- tr.Run(trCtx) }()

	debug.Step(3, "Opening detector stream")
	src, err := openDetections(o.detections)
	if err != nil {
		stopTransport()
		<-trDone
		return err
	}
	defer src.Close()

	var handlers *web.Handlers
	sess := tracking.New(cfg, tr, tracking.Options{
		Pace: o.pace,
		OnFrame: func(s tracking.Snapshot) {
			if err := ind.Update(tr.State().Connected, s.Target); err != nil {
				debug.Trace("indicator: %v", err)
			}
			if handlers != nil {
				handlers.Observe(s)
			}
		},
	})

	webCtx, stopWeb := context.WithCancel(ctx)
	defer stopWeb()
	if port := o.web.port(); port > 0 {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		handlers = web.NewHandlers(broadcaster, tr, sess.Do, web.TuningFromConfig(cfg), nil)
		handlers.Calibrate = sess.Calibrate
		srv, err := web.NewServer(fmt.Sprintf(":%d", port), handlers)
		if err != nil {
			stopTransport()
			<-trDone
			return err
		}
		go func() {
			if err := srv.Run(webCtx); err != nil {
				debug.Error(fmt.Errorf("web server: %w", err))
			}
		}()
	}

	debug.Section("Tracking")
	runErr := sess.Run(ctx, vision.NewJSONLines(src))
	if errors.Is(runErr, tracking.ErrQuit) {
		runErr = nil
	}

	debug.Section("Shutdown")
	shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownWait())
	if err := tr.Shutdown(shCtx); err != nil {
		debug.Verbose("Final stop not sent: %v", err)
	}
	cancel()
	stopTransport()
	<-trDone

	st := tr.Stats()
	debug.Summary("Transport")
	debug.Value("Frames", sess.Frames())
	debug.Value("Commands sent", st.Sent)
	debug.Value("Commands dropped", st.Dropped)
	debug.Value("Reconnects", st.Reconnects)
	return runErr
}

// webPortFlag implements pflag.Value for --web: 0 = disabled, --web → 8080, --web=8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

var _ pflag.Value = (*webPortFlag)(nil)

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) Type() string { return "port" }

func (w *webPortFlag) port() int { return w.val }
