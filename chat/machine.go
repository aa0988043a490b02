// ABOUTME: Chat stream state machine: accumulates streamed chunks, tracks tool
// ABOUTME: invocations, and finalizes exactly one assistant message per turn.
package chat

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389-research/pulse/wire"
)

// cancelGrace is how long a requested cancellation waits for the server's
// terminal frame before the turn is force-finalized locally.
const cancelGrace = 3 * time.Second

// cancelledError is the synthetic error attached when the server never
// acknowledges a cancellation.
const cancelledError = "Cancelled by user"

// State is the machine's lifecycle state. One round-trip per user turn.
type State int

const (
	StateIdle State = iota
	StateStreaming
)

// ErrTurnInFlight is returned when a send is attempted while a turn is
// already streaming.
var ErrTurnInFlight = errors.New("chat: a turn is already in flight")

// Sender transmits outbound frames on the chat channel. A send against a
// connection that is not open must fail locally without touching the
// transport; the machine turns that failure into a finalized error turn.
type Sender interface {
	Send(frame any) error
}

// Timer is a cancellable scheduled task.
type Timer interface {
	Stop() bool
}

// TimerFactory schedules fn after d. Tests substitute a manual
// implementation so the cancellation grace period needs no real delay.
type TimerFactory func(d time.Duration, fn func()) Timer

func realTimer(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Option configures a Machine.
type Option func(*Machine)

// WithTimerFactory replaces the cancellation safety timer scheduler.
func WithTimerFactory(f TimerFactory) Option {
	return func(m *Machine) { m.newTimer = f }
}

// WithClock replaces the message timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithOnMessage registers a hook invoked for every materialized message,
// e.g. to persist finalized turns. The hook runs under the machine's lock
// and must not call back into the machine.
func WithOnMessage(fn func(Message)) Option {
	return func(m *Machine) { m.onMessage = fn }
}

// TurnConfig carries the routing fields every chat_message frame needs.
type TurnConfig struct {
	Provider string
	Model    string
	OrgID    string
}

// Machine drives one chat conversation: idle -> streaming -> idle per user
// turn. All mutation goes through its methods; readers get copies.
type Machine struct {
	mu     sync.Mutex
	state  State
	sender Sender
	cfg    TurnConfig

	conversationID string

	buf      strings.Builder
	tools    []*ToolCall
	suppress bool

	cancelTimer Timer
	newTimer    TimerFactory
	now         func() time.Time
	onMessage   func(Message)

	messages []Message
	version  uint64
}

// NewMachine creates an idle chat machine sending through the given Sender.
func NewMachine(sender Sender, cfg TurnConfig, opts ...Option) *Machine {
	m := &Machine{
		sender:   sender,
		cfg:      cfg,
		newTimer: realTimer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConversationID returns the server-assigned conversation id, if any.
func (m *Machine) ConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationID
}

// Messages returns a copy of the finalized message history.
func (m *Machine) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Tools returns a snapshot of the in-flight turn's tool calls.
func (m *Machine) Tools() []ToolCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ToolCall, len(m.tools))
	for i, tc := range m.tools {
		out[i] = *tc
	}
	return out
}

// Draft returns the streaming text accumulated so far for the in-flight
// turn. Empty when idle.
func (m *Machine) Draft() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateStreaming {
		return ""
	}
	return m.buf.String()
}

// Version increments on every state change; observers poll it to detect
// updates without diffing messages.
func (m *Machine) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// SendMessage materializes the user message, enters streaming, and transmits
// the turn request. Valid only from idle. If the connection is not open the
// turn is immediately finalized with a local error instead of leaving the
// machine stuck streaming; the failure surfaces as message state, not as a
// returned error.
func (m *Machine) SendMessage(content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return ErrTurnInFlight
	}

	m.appendMessage(Message{
		ID:             uuid.NewString(),
		ConversationID: m.conversationID,
		Role:           RoleUser,
		Content:        content,
		CreatedAt:      m.now(),
	})

	m.state = StateStreaming
	m.buf.Reset()
	m.tools = nil
	m.suppress = false
	m.version++

	frame := wire.NewChatMessage(content, m.conversationID, m.cfg.Provider, m.cfg.Model, m.cfg.OrgID)
	if err := m.sender.Send(frame); err != nil {
		m.finishLocked(m.conversationID, nil, nil, "Not connected: "+err.Error())
	}
	return nil
}

// AppendChunk appends streamed text to the turn buffer. Chunks arriving
// while idle or after a cancellation was requested are dropped.
func (m *Machine) AppendChunk(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateStreaming || m.suppress {
		return
	}
	m.buf.WriteString(text)
	m.version++
}

// ToolPreparingEvent records that the server is preparing a tool. Creates
// the tool call if absent; an existing call is never regressed.
func (m *Machine) ToolPreparingEvent(id, name, display string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateStreaming {
		return
	}
	if m.findTool(id) != nil {
		return
	}
	m.tools = append(m.tools, &ToolCall{ID: id, Name: name, Status: ToolPreparing, Display: display})
	m.version++
}

// ToolStartEvent transitions a tool to running, creating it directly at
// running when the server skipped the preparing phase.
func (m *Machine) ToolStartEvent(id, name, display string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateStreaming {
		return
	}
	tc := m.findTool(id)
	if tc == nil {
		m.tools = append(m.tools, &ToolCall{ID: id, Name: name, Status: ToolRunning, Display: display})
		m.version++
		return
	}
	if toolRank(tc.Status) >= toolRank(ToolRunning) {
		return
	}
	tc.Status = ToolRunning
	if display != "" {
		tc.Display = display
	}
	m.version++
}

// ToolEndEvent completes a tool with its summary. Unknown ids are a no-op.
func (m *Machine) ToolEndEvent(id, summary string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateStreaming {
		return
	}
	tc := m.findTool(id)
	if tc == nil {
		return
	}
	if toolRank(tc.Status) >= toolRank(ToolDone) {
		return
	}
	tc.Status = ToolDone
	tc.Summary = summary
	m.version++
}

// Finish finalizes the in-flight turn into exactly one assistant message.
// A repeat call while idle is ignored, which guards against duplicate
// terminal frames producing duplicate assistant messages.
func (m *Machine) Finish(conversationID string, usage *wire.Usage, toolCalls []wire.ToolCallData, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishLocked(conversationID, usage, toolCalls, errMsg)
}

// Cancel requests cooperative cancellation of the in-flight turn: sends the
// cancel frame if possible, suppresses further chunks, and arms a safety
// timer that force-finalizes the turn if the server never acknowledges.
// A no-op while idle.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateStreaming {
		return
	}

	// Best effort: a send failure just means the server can't hear us and
	// the safety timer will finalize locally.
	_ = m.sender.Send(wire.NewCancel())

	m.suppress = true
	m.version++

	if m.cancelTimer != nil {
		m.cancelTimer.Stop()
	}
	m.cancelTimer = m.newTimer(cancelGrace, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.finishLocked(m.conversationID, nil, nil, cancelledError)
	})
}

// finishLocked implements Finish under m.mu. The locally-tracked tool-call
// set is preferred over the terminal frame's list because it carries richer
// display and summary data; the frame's list is used only when nothing was
// tracked locally.
func (m *Machine) finishLocked(conversationID string, usage *wire.Usage, toolCalls []wire.ToolCallData, errMsg string) {
	if m.state != StateStreaming {
		return
	}

	if m.cancelTimer != nil {
		m.cancelTimer.Stop()
		m.cancelTimer = nil
	}

	if conversationID != "" {
		m.conversationID = conversationID
	}

	var finalTools []ToolCall
	if len(m.tools) > 0 {
		finalTools = make([]ToolCall, len(m.tools))
		for i, tc := range m.tools {
			finalTools[i] = *tc
		}
	} else if len(toolCalls) > 0 {
		finalTools = make([]ToolCall, len(toolCalls))
		for i, tc := range toolCalls {
			status := ToolStatus(tc.Status)
			if toolRank(status) < 0 {
				status = ToolDone
			}
			finalTools[i] = ToolCall{ID: tc.ID, Name: tc.Name, Status: status, Summary: tc.Summary}
		}
	}

	m.appendMessage(Message{
		ID:             uuid.NewString(),
		ConversationID: m.conversationID,
		Role:           RoleAssistant,
		Content:        m.buf.String(),
		ToolCalls:      finalTools,
		Usage:          usage,
		Error:          errMsg,
		CreatedAt:      m.now(),
	})

	m.buf.Reset()
	m.tools = nil
	m.suppress = false
	m.state = StateIdle
	m.version++
}

// appendMessage records a materialized message and invokes the hook.
// Caller holds m.mu.
func (m *Machine) appendMessage(msg Message) {
	m.messages = append(m.messages, msg)
	m.version++
	if m.onMessage != nil {
		m.onMessage(msg)
	}
}

// findTool returns the tracked tool call with the given id, or nil.
// Caller holds m.mu.
func (m *Machine) findTool(id string) *ToolCall {
	for _, tc := range m.tools {
		if tc.ID == id {
			return tc
		}
	}
	return nil
}
