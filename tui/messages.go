// ABOUTME: Bubble Tea message types used in the dashboard TUI message loop.
// ABOUTME: Each type wraps domain events for the tea.Msg interface (which is interface{}).
package tui

import (
	"time"

	"github.com/2389-research/pulse/conn"
	"github.com/2389-research/pulse/stage"
)

// LifecycleMsg wraps a channel lifecycle event for the Bubble Tea message loop.
type LifecycleMsg struct {
	Event conn.LifecycleEvent
}

// TickMsg is sent periodically to refresh streaming text and progress panels.
type TickMsg struct {
	Time time.Time
}

// ChatSentMsg reports the outcome of submitting a chat message.
type ChatSentMsg struct {
	Err error
}

// ConnectResultMsg reports the outcome of connecting the backend to its
// upstream source.
type ConnectResultMsg struct {
	Err error
}

// PhaseStartedMsg reports the outcome of starting a pipeline phase.
type PhaseStartedMsg struct {
	Stage stage.Stage
	Err   error
}
