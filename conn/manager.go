// ABOUTME: Connection manager owning one persistent transport per logical channel,
// ABOUTME: with authenticated dialing, bounded reconnect, and manual-close suppression.
package conn

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/2389-research/pulse/wire"
)

// Status is the lifecycle state of a channel connection.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosing    Status = "closing"
	StatusClosed     Status = "closed"

	// StatusDisconnected is the permanent state after the reconnect budget
	// is exhausted. Recovery requires a user-visible action.
	StatusDisconnected Status = "disconnected"
)

// Transport is one physical bidirectional socket. Owned exclusively by the
// Manager; no other component touches it.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a transport to the given URL.
type Dialer func(ctx context.Context, rawURL string) (Transport, error)

// Timer is a cancellable scheduled task.
type Timer interface {
	Stop() bool
}

// TimerFactory schedules fn after d; tests substitute a manual version so
// backoff needs no real delays.
type TimerFactory func(d time.Duration, fn func()) Timer

func realTimer(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// TokenFunc supplies the current bearer credential for dialing. Reconnects
// call it again, so a rotated token is picked up automatically.
type TokenFunc func() string

// FrameHandler receives raw inbound frames in arrival order.
type FrameHandler func(channel wire.Channel, raw []byte)

// channelConn is the managed state for one channel's connection.
type channelConn struct {
	channel          wire.Channel
	status           Status
	transport        Transport
	reconnectAttempt int
	manualClose      bool
	reconnectTimer   Timer

	// gen guards against stale read pumps and timers acting on a
	// connection that has since been replaced.
	gen int
}

// Config configures a Manager.
type Config struct {
	// Endpoints maps each channel to its websocket URL (without the token
	// parameter).
	Endpoints map[wire.Channel]string

	Dialer  Dialer
	Token   TokenFunc
	OnFrame FrameHandler
	Backoff BackoffPolicy

	// NewTimer defaults to time.AfterFunc.
	NewTimer TimerFactory
}

// Manager owns one connection per logical channel and re-establishes each
// after unexpected failure with bounded exponential backoff.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	conns    map[wire.Channel]*channelConn
	emitter  *Emitter
	newTimer TimerFactory
}

// NewManager creates a Manager. The Dialer, Token, and OnFrame fields of cfg
// must be set; Backoff defaults to DefaultBackoffPolicy when zero.
func NewManager(cfg Config) *Manager {
	if cfg.Backoff == (BackoffPolicy{}) {
		cfg.Backoff = DefaultBackoffPolicy()
	}
	newTimer := cfg.NewTimer
	if newTimer == nil {
		newTimer = realTimer
	}
	return &Manager{
		cfg:      cfg,
		conns:    make(map[wire.Channel]*channelConn),
		emitter:  NewEmitter(),
		newTimer: newTimer,
	}
}

// Events returns the lifecycle event emitter for connection indicators.
func (m *Manager) Events() *Emitter {
	return m.emitter
}

// Status returns the current state of a channel's connection.
func (m *Manager) Status(channel wire.Channel) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[channel]
	if !ok {
		return StatusClosed
	}
	return c.status
}

// Connect opens the channel's connection. A dial failure is handled like an
// unexpected drop: the reconnect schedule takes over.
func (m *Manager) Connect(ctx context.Context, channel wire.Channel) {
	m.mu.Lock()
	endpoint, ok := m.cfg.Endpoints[channel]
	if !ok {
		m.mu.Unlock()
		log.Printf("conn: no endpoint configured for channel %s", channel)
		return
	}

	c := m.conns[channel]
	if c == nil {
		c = &channelConn{channel: channel}
		m.conns[channel] = c
	}
	if c.status == StatusOpen || c.status == StatusConnecting {
		m.mu.Unlock()
		return
	}
	c.manualClose = false
	c.reconnectAttempt = 0
	c.status = StatusConnecting
	c.gen++
	gen := c.gen
	m.mu.Unlock()

	m.emitter.Emit(LifecycleEvent{Channel: channel, Status: StatusConnecting})
	m.dial(ctx, c, endpoint, gen)
}

// dial opens the transport and installs it, or hands failure to the
// reconnect schedule.
func (m *Manager) dial(ctx context.Context, c *channelConn, endpoint string, gen int) {
	transport, err := m.cfg.Dialer(ctx, m.authURL(endpoint))
	m.mu.Lock()
	if c.gen != gen || c.manualClose {
		m.mu.Unlock()
		if err == nil {
			_ = transport.Close()
		}
		return
	}

	if err != nil {
		log.Printf("conn: dial %s failed: %v", c.channel, err)
		m.scheduleReconnectLocked(ctx, c, endpoint, err)
		m.mu.Unlock()
		return
	}

	c.transport = transport
	c.status = StatusOpen
	c.reconnectAttempt = 0
	m.mu.Unlock()

	m.emitter.Emit(LifecycleEvent{Channel: c.channel, Status: StatusOpen})
	go m.readPump(ctx, c, transport, endpoint, gen)
}

// readPump delivers inbound frames in arrival order until the transport
// fails, then routes the close through the reconnect logic.
func (m *Manager) readPump(ctx context.Context, c *channelConn, transport Transport, endpoint string, gen int) {
	for {
		raw, err := transport.ReadMessage()
		if err != nil {
			m.handleClose(ctx, c, endpoint, gen, err)
			return
		}
		m.cfg.OnFrame(c.channel, raw)
	}
}

// handleClose reacts to a transport failure. Owner-initiated closes were
// flagged via manualClose before the transport was touched, which is what
// suppresses the reconnect schedule.
func (m *Manager) handleClose(ctx context.Context, c *channelConn, endpoint string, gen int, cause error) {
	m.mu.Lock()
	if c.gen != gen {
		m.mu.Unlock()
		return
	}
	c.transport = nil

	if c.manualClose {
		c.status = StatusClosed
		m.mu.Unlock()
		m.emitter.Emit(LifecycleEvent{Channel: c.channel, Status: StatusClosed})
		return
	}

	c.status = StatusClosed
	m.scheduleReconnectLocked(ctx, c, endpoint, cause)
	m.mu.Unlock()
}

// scheduleReconnectLocked arms the backoff timer for the next attempt, or
// surfaces the permanent disconnected state once the budget is spent.
// Caller holds m.mu.
func (m *Manager) scheduleReconnectLocked(ctx context.Context, c *channelConn, endpoint string, cause error) {
	if m.cfg.Backoff.Exhausted(c.reconnectAttempt) {
		c.status = StatusDisconnected
		log.Printf("conn: channel %s gave up after %d attempts: %v", c.channel, c.reconnectAttempt, cause)
		m.emitter.Emit(LifecycleEvent{Channel: c.channel, Status: StatusDisconnected, Attempt: c.reconnectAttempt, Err: cause})
		return
	}

	delay := m.cfg.Backoff.Delay(c.reconnectAttempt)
	c.reconnectAttempt++
	attempt := c.reconnectAttempt
	c.status = StatusConnecting
	c.gen++
	gen := c.gen

	m.emitter.Emit(LifecycleEvent{Channel: c.channel, Status: StatusConnecting, Attempt: attempt, Err: cause})

	c.reconnectTimer = m.newTimer(delay, func() {
		m.mu.Lock()
		stale := c.gen != gen || c.manualClose
		m.mu.Unlock()
		if stale {
			return
		}
		m.dial(ctx, c, endpoint, gen)
	})
}

// Send encodes and transmits a frame on the channel. It fails locally when
// the connection is not open; the transport is never touched in that case.
func (m *Manager) Send(channel wire.Channel, frame any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conns[channel]
	if !ok || c.status != StatusOpen || c.transport == nil {
		return fmt.Errorf("channel %s is not open", channel)
	}

	data, err := wire.Encode(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := c.transport.WriteMessage(data); err != nil {
		return fmt.Errorf("send on %s: %w", channel, err)
	}
	return nil
}

// Close shuts down a channel's connection on behalf of its owner
// (unmount/logout). manualClose is set before the transport is closed so the
// drop is never mistaken for a failure and rescheduled.
func (m *Manager) Close(channel wire.Channel) {
	m.mu.Lock()
	c, ok := m.conns[channel]
	if !ok {
		m.mu.Unlock()
		return
	}

	c.manualClose = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}

	transport := c.transport
	if transport == nil {
		// Nothing live: no read pump will observe the close, so settle the
		// state here.
		c.status = StatusClosed
		c.gen++
		m.mu.Unlock()
		m.emitter.Emit(LifecycleEvent{Channel: channel, Status: StatusClosed})
		return
	}

	c.status = StatusClosing
	m.mu.Unlock()

	m.emitter.Emit(LifecycleEvent{Channel: channel, Status: StatusClosing})
	_ = transport.Close()
}

// CloseAll closes every channel, e.g. on logout.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	channels := make([]wire.Channel, 0, len(m.conns))
	for ch := range m.conns {
		channels = append(channels, ch)
	}
	m.mu.Unlock()

	for _, ch := range channels {
		m.Close(ch)
	}
}

// authURL appends the current bearer token to the endpoint as a query
// parameter.
func (m *Manager) authURL(endpoint string) string {
	token := ""
	if m.cfg.Token != nil {
		token = m.cfg.Token()
	}
	if token == "" {
		return endpoint
	}
	sep := "?"
	if u, err := url.Parse(endpoint); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return endpoint + sep + "token=" + url.QueryEscape(token)
}
