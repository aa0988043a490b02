// ABOUTME: Tests for the connection manager: reconnect backoff schedule and cap,
// ABOUTME: manual-close suppression, send-while-closed failures, and auth URLs.
package conn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/2389-research/pulse/wire"
)

type readResult struct {
	data []byte
	err  error
}

// fakeTransport simulates one socket: reads come from an inbox, writes are
// recorded, and Close injects a read error like a real socket teardown.
type fakeTransport struct {
	mu      sync.Mutex
	inbox   chan readResult
	written [][]byte
	closed  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: make(chan readResult, 32)}
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	r := <-t.inbox
	return r.data, r.err
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = append(t.written, data)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.inbox <- readResult{err: errors.New("use of closed connection")}
	return nil
}

func (t *fakeTransport) deliver(data string) {
	t.inbox <- readResult{data: []byte(data)}
}

func (t *fakeTransport) fail() {
	t.inbox <- readResult{err: errors.New("connection reset by peer")}
}

func (t *fakeTransport) writtenFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.written))
	copy(out, t.written)
	return out
}

// fakeDialer hands out transports in order, then errors.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	urls       []string
	failAfter  bool
}

func (d *fakeDialer) dial(_ context.Context, rawURL string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, rawURL)
	if len(d.transports) == 0 {
		return nil, errors.New("connection refused")
	}
	t := d.transports[0]
	d.transports = d.transports[1:]
	return t, nil
}

// recordedTimer captures scheduled reconnect tasks for manual firing.
type recordedTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *recordedTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type timerRecorder struct {
	mu     sync.Mutex
	timers []*recordedTimer
}

func (r *timerRecorder) factory(d time.Duration, fn func()) Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &recordedTimer{delay: d, fn: fn}
	r.timers = append(r.timers, t)
	return t
}

func (r *timerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

func (r *timerRecorder) at(i int) *recordedTimer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timers[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type managerFixture struct {
	mgr    *Manager
	dialer *fakeDialer
	timers *timerRecorder
	mu     sync.Mutex
	frames [][]byte
}

func newFixture(transports ...*fakeTransport) *managerFixture {
	f := &managerFixture{
		dialer: &fakeDialer{transports: transports},
		timers: &timerRecorder{},
	}
	f.mgr = NewManager(Config{
		Endpoints: map[wire.Channel]string{wire.ChannelChat: "ws://api.test/ws/chat"},
		Dialer:    f.dialer.dial,
		Token:     func() string { return "tok-1" },
		OnFrame: func(_ wire.Channel, raw []byte) {
			f.mu.Lock()
			f.frames = append(f.frames, raw)
			f.mu.Unlock()
		},
		NewTimer: f.timers.factory,
	})
	return f
}

func (f *managerFixture) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestBackoffDelays(t *testing.T) {
	p := DefaultBackoffPolicy()
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for attempt, d := range want {
		if got := p.Delay(attempt); got != d {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, d)
		}
	}
	if p.Exhausted(4) {
		t.Error("attempt 4 should be within budget")
	}
	if !p.Exhausted(5) {
		t.Error("attempt 5 should exhaust the budget")
	}
}

func TestConnectDeliversFramesInOrder(t *testing.T) {
	transport := newFakeTransport()
	f := newFixture(transport)

	f.mgr.Connect(context.Background(), wire.ChannelChat)
	if got := f.mgr.Status(wire.ChannelChat); got != StatusOpen {
		t.Fatalf("status = %s, want open", got)
	}

	transport.deliver(`{"type":"chat_chunk","text":"a"}`)
	transport.deliver(`{"type":"chat_chunk","text":"b"}`)
	waitFor(t, "frames", func() bool { return f.frameCount() == 2 })

	f.mu.Lock()
	defer f.mu.Unlock()
	if !strings.Contains(string(f.frames[0]), `"a"`) || !strings.Contains(string(f.frames[1]), `"b"`) {
		t.Errorf("frames out of order: %q, %q", f.frames[0], f.frames[1])
	}
}

func TestDialCarriesToken(t *testing.T) {
	f := newFixture(newFakeTransport())
	f.mgr.Connect(context.Background(), wire.ChannelChat)

	f.dialer.mu.Lock()
	defer f.dialer.mu.Unlock()
	if len(f.dialer.urls) != 1 || f.dialer.urls[0] != "ws://api.test/ws/chat?token=tok-1" {
		t.Errorf("dialed %v", f.dialer.urls)
	}
}

func TestReconnectBackoffScheduleAndCap(t *testing.T) {
	transport := newFakeTransport()
	f := newFixture(transport) // later dials fail: connection refused

	f.mgr.Connect(context.Background(), wire.ChannelChat)
	transport.fail()

	// First reconnect is scheduled by the read pump.
	waitFor(t, "first reconnect timer", func() bool { return f.timers.count() == 1 })

	wantDelays := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	for i, want := range wantDelays {
		timer := f.timers.at(i)
		if timer.delay != want {
			t.Errorf("attempt %d scheduled at %v, want %v", i+1, timer.delay, want)
		}
		// Firing dials, fails, and schedules the next attempt synchronously.
		timer.fn()
	}

	if got := f.timers.count(); got != len(wantDelays) {
		t.Errorf("expected no further attempts, got %d timers", got)
	}
	if got := f.mgr.Status(wire.ChannelChat); got != StatusDisconnected {
		t.Errorf("status = %s, want disconnected", got)
	}
}

func TestReconnectAttemptResetsOnOpen(t *testing.T) {
	first := newFakeTransport()
	second := newFakeTransport()
	f := newFixture(first)

	f.mgr.Connect(context.Background(), wire.ChannelChat)
	first.fail()
	waitFor(t, "reconnect timer", func() bool { return f.timers.count() == 1 })

	// Make the retry succeed.
	f.dialer.mu.Lock()
	f.dialer.transports = []*fakeTransport{second}
	f.dialer.mu.Unlock()
	f.timers.at(0).fn()

	waitFor(t, "reopen", func() bool { return f.mgr.Status(wire.ChannelChat) == StatusOpen })

	// A fresh drop starts the schedule over at the base delay.
	second.fail()
	waitFor(t, "second schedule", func() bool { return f.timers.count() == 2 })
	if got := f.timers.at(1).delay; got != time.Second {
		t.Errorf("delay after reset = %v, want 1s", got)
	}
}

func TestManualCloseSuppressesReconnect(t *testing.T) {
	transport := newFakeTransport()
	f := newFixture(transport)

	f.mgr.Connect(context.Background(), wire.ChannelChat)
	f.mgr.Close(wire.ChannelChat)

	waitFor(t, "closed", func() bool { return f.mgr.Status(wire.ChannelChat) == StatusClosed })
	if got := f.timers.count(); got != 0 {
		t.Errorf("manual close scheduled %d reconnect attempts", got)
	}
}

func TestManualCloseCancelsPendingReconnect(t *testing.T) {
	transport := newFakeTransport()
	f := newFixture(transport)

	f.mgr.Connect(context.Background(), wire.ChannelChat)
	transport.fail()
	waitFor(t, "reconnect timer", func() bool { return f.timers.count() == 1 })

	f.mgr.Close(wire.ChannelChat)
	if !f.timers.at(0).stopped {
		t.Error("pending reconnect timer was not stopped")
	}

	// Even a stray fire must not redial after manual close.
	f.dialer.mu.Lock()
	dialsBefore := len(f.dialer.urls)
	f.dialer.mu.Unlock()
	f.timers.at(0).fn()
	f.dialer.mu.Lock()
	dialsAfter := len(f.dialer.urls)
	f.dialer.mu.Unlock()
	if dialsAfter != dialsBefore {
		t.Error("stray timer fire redialed after manual close")
	}
}

func TestSendWhileNotOpenFailsLocally(t *testing.T) {
	f := newFixture()
	err := f.mgr.Send(wire.ChannelChat, wire.NewPing())
	if err == nil {
		t.Fatal("expected error for send on closed channel")
	}
	if !strings.Contains(err.Error(), "not open") {
		t.Errorf("error = %v", err)
	}
}

func TestSendEncodesFrame(t *testing.T) {
	transport := newFakeTransport()
	f := newFixture(transport)
	f.mgr.Connect(context.Background(), wire.ChannelChat)

	if err := f.mgr.Send(wire.ChannelChat, wire.NewPing()); err != nil {
		t.Fatalf("send: %v", err)
	}
	frames := transport.writtenFrames()
	if len(frames) != 1 || string(frames[0]) != `{"type":"ping"}` {
		t.Errorf("written = %v", frames)
	}
}

func TestLifecycleEvents(t *testing.T) {
	transport := newFakeTransport()
	f := newFixture(transport)

	events := f.mgr.Events().Subscribe()
	f.mgr.Connect(context.Background(), wire.ChannelChat)

	want := []Status{StatusConnecting, StatusOpen}
	for _, status := range want {
		select {
		case ev := <-events:
			if ev.Status != status {
				t.Errorf("event = %s, want %s", ev.Status, status)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s event", status)
		}
	}
}
