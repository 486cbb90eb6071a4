package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/PanTrack/internal/logic/tracking"
	"github.com/cjeanneret/PanTrack/internal/transport"
)

// StatusEvent is one message pushed to SSE and websocket clients. Log lines
// carry Msg; per-frame updates carry Frame and Device.
type StatusEvent struct {
	Time    string                 `json:"t"`
	Session string                 `json:"session"`
	Level   string                 `json:"l,omitempty"`
	Msg     string                 `json:"msg,omitempty"`
	Frame   *tracking.Snapshot     `json:"frame,omitempty"`
	Device  *transport.DeviceState `json:"device,omitempty"`
}

// StatusBroadcaster distributes status messages to multiple clients.
type StatusBroadcaster struct {
	session string
	now     func() time.Time

	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a broadcaster stamped with a fresh session id.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		session: uuid.NewString(),
		now:     time.Now,
		clients: make(map[chan string]struct{}),
	}
}

// Session returns the id attached to every event.
func (b *StatusBroadcaster) Session() string {
	return b.session
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of subscribers.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish stamps evt and sends it to every subscriber. Slow clients miss
// messages rather than blocking the tracking loop.
func (b *StatusBroadcaster) Publish(evt StatusEvent) {
	evt.Time = b.now().Format(time.RFC3339Nano)
	evt.Session = b.session
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Broadcast sends a log message with the given level.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.Publish(StatusEvent{Level: level, Msg: msg})
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// BroadcastWriter implements io.Writer; each Write broadcasts the content to SSE clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StatusBroadcaster as io.Writer for use with debug.SetOutput.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if msg := strings.TrimSpace(line); msg != "" {
			w.b.BroadcastMsg(msg)
		}
	}
	return len(p), nil
}
