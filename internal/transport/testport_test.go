package transport

import (
	"errors"
	"io"
	"sync"
)

// testPort is an in-memory Porter. Lines pushed with Emit are read by the
// worker; bytes written by the worker are recorded.
type testPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu       sync.Mutex
	written  []byte
	writeErr error
	closed   bool
	notify   chan struct{}
}

func newTestPort() *testPort {
	r, w := io.Pipe()
	return &testPort{r: r, w: w, notify: make(chan struct{}, 64)}
}

func (p *testPort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *testPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.written = append(p.written, b...)
	select {
	case p.notify <- struct{}{}:
	default:
	}
	return len(b), nil
}

func (p *testPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.w.Close()
	return p.r.Close()
}

// Emit sends a line as if the actuator printed it.
func (p *testPort) Emit(line string) error {
	_, err := p.w.Write([]byte(line + "\n"))
	return err
}

// Hangup simulates the device disappearing.
func (p *testPort) Hangup() {
	p.w.CloseWithError(io.ErrUnexpectedEOF)
}

func (p *testPort) FailWrites(err error) {
	p.mu.Lock()
	p.writeErr = err
	p.mu.Unlock()
}

func (p *testPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.written)
}

func (p *testPort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
