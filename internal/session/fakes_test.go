package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lanternchat/streamhub/internal/transport"
)

// waitFor polls until cond holds. The manager dials off the caller's
// goroutine, so tests observing connect side effects need to wait.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for " + msg)
}

// fakeTransport is a scriptable duplex channel. With autoOpen the open
// event fires inside Connect; otherwise the test calls Open itself to
// hold the manager in Connecting.
type fakeTransport struct {
	sessionID  string
	h          transport.Handlers
	autoOpen   bool
	connectErr error

	mu        sync.Mutex
	connected bool
	closed    bool
	sent      [][]byte
}

func (ft *fakeTransport) Connect(ctx context.Context) error {
	if ft.connectErr != nil {
		return ft.connectErr
	}
	ft.mu.Lock()
	ft.connected = true
	ft.mu.Unlock()
	if ft.autoOpen {
		ft.h.OnOpen()
	}
	return nil
}

func (ft *fakeTransport) SendBinary(data []byte) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if !ft.connected {
		return transport.ErrNotConnected
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	ft.sent = append(ft.sent, buf)
	return nil
}

func (ft *fakeTransport) SendText(text string) error {
	return ft.SendBinary([]byte(text))
}

func (ft *fakeTransport) Close() error {
	ft.mu.Lock()
	ft.closed = true
	ft.connected = false
	ft.mu.Unlock()
	return nil
}

// Open fires the open event (manual-open transports).
func (ft *fakeTransport) Open() { ft.h.OnOpen() }

// RemoteClose simulates the server closing the channel.
func (ft *fakeTransport) RemoteClose(code int, reason string) {
	ft.mu.Lock()
	ft.connected = false
	ft.mu.Unlock()
	ft.h.OnClose(code, reason)
}

// DeliverBinary injects inbound binary data.
func (ft *fakeTransport) DeliverBinary(data []byte) { ft.h.OnBinary(data) }

// DeliverText injects inbound text data.
func (ft *fakeTransport) DeliverText(text string) { ft.h.OnText(text) }

func (ft *fakeTransport) SentFrames() [][]byte {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	out := make([][]byte, len(ft.sent))
	copy(out, ft.sent)
	return out
}

func (ft *fakeTransport) Connected() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.connected
}

func (ft *fakeTransport) Closed() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.closed
}

// fakeFactory records every transport it hands out.
type fakeFactory struct {
	autoOpen   bool
	connectErr error

	mu      sync.Mutex
	created []*fakeTransport
}

func (f *fakeFactory) factory() transport.Factory {
	return func(sessionID string, h transport.Handlers) transport.Transport {
		ft := &fakeTransport{
			sessionID:  sessionID,
			h:          h,
			autoOpen:   f.autoOpen,
			connectErr: f.connectErr,
		}
		f.mu.Lock()
		f.created = append(f.created, ft)
		f.mu.Unlock()
		return ft
	}
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

func (f *fakeFactory) at(i int) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[i]
}

// fakeScheduler records timers instead of running them; tests fire
// them explicitly for virtual time.
type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []*fakeTimer
}

type fakeTimer struct {
	Delay time.Duration
	fn    func()

	mu      sync.Mutex
	stopped bool
	fired   bool
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	ft := &fakeTimer{Delay: d, fn: fn}
	s.mu.Lock()
	s.scheduled = append(s.scheduled, ft)
	s.mu.Unlock()
	return ft
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scheduled)
}

func (s *fakeScheduler) at(i int) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled[i]
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.scheduled) == 0 {
		return nil
	}
	return s.scheduled[len(s.scheduled)-1]
}

func (ft *fakeTimer) Stop() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if ft.fired {
		return false
	}
	ft.stopped = true
	return true
}

// Fire runs the scheduled call unless it was stopped.
func (ft *fakeTimer) Fire() {
	ft.mu.Lock()
	if ft.stopped || ft.fired {
		ft.mu.Unlock()
		return
	}
	ft.fired = true
	fn := ft.fn
	ft.mu.Unlock()
	fn()
}

func (ft *fakeTimer) Stopped() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.stopped
}
