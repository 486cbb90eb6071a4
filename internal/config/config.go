package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SerialConfig describes the serial link to the actuator board.
type SerialConfig struct {
	Port        string `yaml:"port"`         // e.g., "/dev/ttyUSB0" or "COM10". Empty = run disconnected.
	BaudRate    int    `yaml:"baud_rate"`    // firmware talks at 9600
	DataBits    int    `yaml:"data_bits"`    // 5-8
	StopBits    int    `yaml:"stop_bits"`    // 1 or 2
	Parity      string `yaml:"parity"`       // N, E or O
	SettleMs    int    `yaml:"settle_ms"`    // wait after open (board resets on DTR)
	ReconnectMs int    `yaml:"reconnect_ms"` // backoff after an I/O failure
}

// FrameConfig describes the camera frames fed to the detector.
type FrameConfig struct {
	Width  int  `yaml:"width"`  // pixels
	Height int  `yaml:"height"` // pixels
	FPS    int  `yaml:"fps"`    // nominal capture rate, used for replay timing
	Mirror bool `yaml:"mirror"` // frames are flipped horizontally for display
}

// FilterConfig tunes the position filter.
type FilterConfig struct {
	History   int `yaml:"history"`    // ring buffer capacity
	Window    int `yaml:"window"`     // most recent samples used for the estimate
	OutlierPx int `yaml:"outlier_px"` // max distance from the window median
}

// ControlConfig tunes the error & hysteresis controller.
type ControlConfig struct {
	DeadbandPx       int `yaml:"deadband_px"`       // tight deadband used for decisions
	UIDeadbandPx     int `yaml:"ui_deadband_px"`    // wider deadband shown to operators
	CenteredRequired int `yaml:"centered_required"` // in-band frames before Stop
	DirLockRequired  int `yaml:"dir_lock_required"` // contrary frames before a reversal
}

// RateConfig maps error magnitude to command frequency.
type RateConfig struct {
	MinHz         float64 `yaml:"min_hz"`          // near center
	MaxHz         float64 `yaml:"max_hz"`          // far from center
	ErrorRangePx  int     `yaml:"error_range_px"`  // error at which MaxHz is reached
	MinIntervalMs int     `yaml:"min_interval_ms"` // hardware-safe ceiling
}

// SearchConfig tunes the no-target policy.
type SearchConfig struct {
	MaxNoTargetFrames int `yaml:"max_no_target_frames"` // end of coasting
	ExtendedFrames    int `yaml:"extended_frames"`      // end of reverse search
}

// TransportConfig tunes the command queue and worker.
type TransportConfig struct {
	QueueSize      int `yaml:"queue_size"`       // bounded outbound queue
	PollMs         int `yaml:"poll_ms"`          // worker idle yield
	ShutdownWaitMs int `yaml:"shutdown_wait_ms"` // best-effort wait for the final Stop
}

// IndicatorConfig wires optional status LEDs (BCM numbering, 0 = not used).
type IndicatorConfig struct {
	ConnectedPin int `yaml:"connected_pin"`
	TrackingPin  int `yaml:"tracking_pin"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	Frame     FrameConfig     `yaml:"frame"`
	Filter    FilterConfig    `yaml:"filter"`
	Control   ControlConfig   `yaml:"control"`
	Rate      RateConfig      `yaml:"rate"`
	Search    SearchConfig    `yaml:"search"`
	Transport TransportConfig `yaml:"transport"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Defaults: DefaultsConfig{MockGPIO: true}}
	cfg.Frame.Mirror = true
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, fills in defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Config{Frame: FrameConfig{Mirror: true}, Defaults: DefaultsConfig{MockGPIO: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Serial.BaudRate <= 0 {
		c.Serial.BaudRate = 9600
	}
	if c.Serial.DataBits == 0 {
		c.Serial.DataBits = 8
	}
	if c.Serial.StopBits == 0 {
		c.Serial.StopBits = 1
	}
	if c.Serial.Parity == "" {
		c.Serial.Parity = "N"
	}
	if c.Serial.SettleMs < 0 {
		c.Serial.SettleMs = 0
	} else if c.Serial.SettleMs == 0 {
		c.Serial.SettleMs = 2000 // Arduino resets when the port opens
	}
	if c.Serial.ReconnectMs <= 0 {
		c.Serial.ReconnectMs = 100
	}

	if c.Frame.Width <= 0 {
		c.Frame.Width = 640
	}
	if c.Frame.Height <= 0 {
		c.Frame.Height = 480
	}
	if c.Frame.FPS <= 0 {
		c.Frame.FPS = 30
	}

	if c.Filter.History == 0 {
		c.Filter.History = 8
	}
	if c.Filter.Window == 0 {
		c.Filter.Window = 5
	}
	if c.Filter.OutlierPx == 0 {
		c.Filter.OutlierPx = 100
	}

	if c.Control.DeadbandPx == 0 {
		c.Control.DeadbandPx = 8
	}
	if c.Control.UIDeadbandPx == 0 {
		c.Control.UIDeadbandPx = 20
	}
	if c.Control.CenteredRequired == 0 {
		c.Control.CenteredRequired = 5
	}
	if c.Control.DirLockRequired == 0 {
		c.Control.DirLockRequired = 3
	}

	if c.Rate.MinHz == 0 {
		c.Rate.MinHz = 12
	}
	if c.Rate.MaxHz == 0 {
		c.Rate.MaxHz = 45
	}
	if c.Rate.ErrorRangePx == 0 {
		c.Rate.ErrorRangePx = 200
	}
	if c.Rate.MinIntervalMs == 0 {
		c.Rate.MinIntervalMs = 10
	}

	if c.Search.MaxNoTargetFrames == 0 {
		c.Search.MaxNoTargetFrames = 15
	}
	if c.Search.ExtendedFrames == 0 {
		c.Search.ExtendedFrames = 30
	}

	if c.Transport.QueueSize == 0 {
		c.Transport.QueueSize = 16
	}
	if c.Transport.PollMs == 0 {
		c.Transport.PollMs = 1
	}
	if c.Transport.ShutdownWaitMs == 0 {
		c.Transport.ShutdownWaitMs = 100
	}
}

// Validate checks ranges after defaults have been applied.
func (c *Config) Validate() error {
	if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
		return fmt.Errorf("serial.data_bits must be between 5 and 8, got %d", c.Serial.DataBits)
	}
	if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
		return fmt.Errorf("serial.stop_bits must be 1 or 2, got %d", c.Serial.StopBits)
	}
	if c.Filter.History < 3 || c.Filter.History > 32 {
		return fmt.Errorf("filter.history must be between 3 and 32, got %d", c.Filter.History)
	}
	if c.Filter.Window < 1 || c.Filter.Window > c.Filter.History {
		return fmt.Errorf("filter.window must be between 1 and filter.history (%d), got %d", c.Filter.History, c.Filter.Window)
	}
	if c.Filter.OutlierPx < 0 {
		return fmt.Errorf("filter.outlier_px must be >= 0, got %d", c.Filter.OutlierPx)
	}
	if c.Control.DeadbandPx < 0 {
		return fmt.Errorf("control.deadband_px must be >= 0, got %d", c.Control.DeadbandPx)
	}
	if c.Control.CenteredRequired < 1 {
		return fmt.Errorf("control.centered_required must be >= 1, got %d", c.Control.CenteredRequired)
	}
	if c.Control.DirLockRequired < 1 {
		return fmt.Errorf("control.dir_lock_required must be >= 1, got %d", c.Control.DirLockRequired)
	}
	if c.Rate.MinHz <= 0 || c.Rate.MaxHz < c.Rate.MinHz {
		return fmt.Errorf("rate: need 0 < min_hz <= max_hz, got %.2f and %.2f", c.Rate.MinHz, c.Rate.MaxHz)
	}
	if c.Rate.ErrorRangePx <= 0 {
		return fmt.Errorf("rate.error_range_px must be > 0, got %d", c.Rate.ErrorRangePx)
	}
	if c.Rate.MinIntervalMs < 0 {
		return fmt.Errorf("rate.min_interval_ms must be >= 0, got %d", c.Rate.MinIntervalMs)
	}
	if c.Search.MaxNoTargetFrames < 1 || c.Search.ExtendedFrames < c.Search.MaxNoTargetFrames {
		return fmt.Errorf("search: need 1 <= max_no_target_frames <= extended_frames, got %d and %d",
			c.Search.MaxNoTargetFrames, c.Search.ExtendedFrames)
	}
	if c.Transport.QueueSize < 1 {
		return fmt.Errorf("transport.queue_size must be >= 1, got %d", c.Transport.QueueSize)
	}
	return nil
}

// FrameCenterX returns half the frame width, the default tracking setpoint.
func (c *Config) FrameCenterX() int {
	return c.Frame.Width / 2
}

// SettleDelay returns the wait after opening the serial port.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Serial.SettleMs) * time.Millisecond
}

// ReconnectDelay returns the worker backoff after an I/O failure.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Serial.ReconnectMs) * time.Millisecond
}

// MinInterval returns the shortest allowed gap between two commands.
func (c *Config) MinInterval() time.Duration {
	return time.Duration(c.Rate.MinIntervalMs) * time.Millisecond
}

// PollInterval returns the worker idle yield.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Transport.PollMs) * time.Millisecond
}

// ShutdownWait returns how long shutdown waits for the final Stop to go out.
func (c *Config) ShutdownWait() time.Duration {
	return time.Duration(c.Transport.ShutdownWaitMs) * time.Millisecond
}

// FrameInterval returns the nominal time between two frames.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Frame.FPS)
}
