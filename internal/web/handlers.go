package web

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cjeanneret/PanTrack/internal/config"
	"github.com/cjeanneret/PanTrack/internal/debug"
	"github.com/cjeanneret/PanTrack/internal/logic/tracking"
	"github.com/cjeanneret/PanTrack/internal/transport"
)

// Actuator is the read side of the transport.
type Actuator interface {
	State() transport.DeviceState
	Stats() transport.Stats
}

// ActionFunc queues an operator action on the running session. It reports
// false when the action could not be queued.
type ActionFunc func(a tracking.Action) bool

// CalibrateFunc queues a new setpoint in pixels on the running session.
type CalibrateFunc func(px int) bool

// Tuning is the subset of the configuration shown to operators.
type Tuning struct {
	FrameWidth       int     `json:"frame_width"`
	FrameHeight      int     `json:"frame_height"`
	DeadbandPx       int     `json:"deadband_px"`
	UIDeadbandPx     int     `json:"ui_deadband_px"`
	CenteredRequired int     `json:"centered_required"`
	DirLockRequired  int     `json:"dir_lock_required"`
	MinHz            float64 `json:"min_hz"`
	MaxHz            float64 `json:"max_hz"`
	SerialPort       string  `json:"serial_port"`
}

// TuningFromConfig extracts the operator view of cfg.
func TuningFromConfig(cfg *config.Config) Tuning {
	return Tuning{
		FrameWidth:       cfg.Frame.Width,
		FrameHeight:      cfg.Frame.Height,
		DeadbandPx:       cfg.Control.DeadbandPx,
		UIDeadbandPx:     cfg.Control.UIDeadbandPx,
		CenteredRequired: cfg.Control.CenteredRequired,
		DirLockRequired:  cfg.Control.DirLockRequired,
		MinHz:            cfg.Rate.MinHz,
		MaxHz:            cfg.Rate.MaxHz,
		SerialPort:       cfg.Serial.Port,
	}
}

// StateResponse is the body of GET /state.
type StateResponse struct {
	Session   string                `json:"session"`
	Frame     *tracking.Snapshot    `json:"frame,omitempty"`
	Device    transport.DeviceState `json:"device"`
	Transport transport.Stats       `json:"transport"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Actuator    Actuator
	Do          ActionFunc
	Calibrate   CalibrateFunc // optional; nil makes POST /control/center return 503
	Tuning      Tuning
	staticFS    fs.FS

	mu     sync.RWMutex
	latest *tracking.Snapshot
}

// NewHandlers creates handlers with the given dependencies.
// If do is nil, POST /control returns 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, act Actuator, do ActionFunc, tuning Tuning, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Actuator:    act,
		Do:          do,
		Tuning:      tuning,
		staticFS:    staticFS,
	}
}

// Observe records the latest frame and pushes it to live clients. It is
// meant to be the session's OnFrame callback.
func (h *Handlers) Observe(snap tracking.Snapshot) {
	h.mu.Lock()
	h.latest = &snap
	h.mu.Unlock()

	evt := StatusEvent{Frame: &snap}
	if h.Actuator != nil {
		dev := h.Actuator.State()
		evt.Device = &dev
	}
	h.Broadcaster.Publish(evt)
}

// Latest returns the most recent frame, if any.
func (h *Handlers) Latest() (tracking.Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return tracking.Snapshot{}, false
	}
	return *h.latest, true
}

// HandleConfig returns the operator tuning view as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Tuning)
}

// HandleState returns the latest frame with device state and counters.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	resp := StateResponse{Session: h.Broadcaster.Session()}
	if snap, ok := h.Latest(); ok {
		resp.Frame = &snap
	}
	if h.Actuator != nil {
		resp.Device = h.Actuator.State()
		resp.Transport = h.Actuator.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleControl handles POST /control/{action}.
func (h *Handlers) HandleControl(w http.ResponseWriter, r *http.Request) {
	a, err := tracking.ParseAction(r.PathValue("action"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	status, msg := h.queue(a)
	if status != http.StatusAccepted {
		http.Error(w, msg, status)
		return
	}
	writeJSON(w, status, map[string]string{"status": "queued", "action": a.String()})
}

// HandleCenter handles POST /control/center?x=<px>, moving the setpoint to
// the given pixel column.
func (h *Handlers) HandleCenter(w http.ResponseWriter, r *http.Request) {
	x, err := strconv.Atoi(r.URL.Query().Get("x"))
	if err != nil {
		http.Error(w, "x must be a pixel column", http.StatusBadRequest)
		return
	}
	status, msg := h.calibrate(x)
	if status != http.StatusAccepted {
		http.Error(w, msg, status)
		return
	}
	writeJSON(w, status, map[string]any{"status": "queued", "action": "calibrate", "x": x})
}

func (h *Handlers) calibrate(x int) (int, string) {
	if h.Calibrate == nil {
		return http.StatusServiceUnavailable, "tracking not running"
	}
	if !h.Calibrate(x) {
		return http.StatusServiceUnavailable, "too many pending actions"
	}
	debug.Info("Operator requested center at %dpx", x)
	h.Broadcaster.Broadcast("info", "Center calibration queued: "+strconv.Itoa(x))
	return http.StatusAccepted, ""
}

// queue hands a to the session and returns the HTTP status describing the
// outcome.
func (h *Handlers) queue(a tracking.Action) (int, string) {
	if h.Do == nil {
		return http.StatusServiceUnavailable, "tracking not running"
	}
	if !h.Do(a) {
		return http.StatusServiceUnavailable, "too many pending actions"
	}
	debug.Info("Operator requested %s", a)
	h.Broadcaster.Broadcast("info", "Action queued: "+a.String())
	return http.StatusAccepted, ""
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
