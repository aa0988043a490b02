// ABOUTME: Bridge connecting the session layer to the Bubble Tea message loop.
// ABOUTME: Provides tea.Cmd factories for lifecycle events, chat submission, phase starts, and ticks.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/pulse/api"
	"github.com/2389-research/pulse/conn"
	"github.com/2389-research/pulse/session"
	"github.com/2389-research/pulse/stage"
)

// WaitForLifecycleCmd returns a tea.Cmd that blocks on the lifecycle event
// channel and sends a LifecycleMsg when an event arrives. Re-issue it after
// each message to keep the subscription draining.
func WaitForLifecycleCmd(events <-chan conn.LifecycleEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-events
		if !ok {
			return nil
		}
		return LifecycleMsg{Event: evt}
	}
}

// TickCmd returns a tea.Cmd that sends a TickMsg after the given interval.
// Used to refresh streaming text and progress timelines.
func TickCmd(interval time.Duration) tea.Cmd {
	return func() tea.Msg {
		time.Sleep(interval)
		return TickMsg{Time: time.Now()}
	}
}

// SendChatCmd submits a chat message through the session.
func SendChatCmd(s *session.Session, content string) tea.Cmd {
	return func() tea.Msg {
		return ChatSentMsg{Err: s.SendChat(content)}
	}
}

// ConnectCmd connects the backend to its upstream source.
func ConnectCmd(ctx context.Context, s *session.Session, req api.ConnectRequest) tea.Cmd {
	return func() tea.Msg {
		return ConnectResultMsg{Err: s.ConnectUpstream(ctx, req)}
	}
}

// StartPhaseCmd starts the pipeline phase behind the given stage.
func StartPhaseCmd(ctx context.Context, s *session.Session, st stage.Stage) tea.Cmd {
	return func() tea.Msg {
		var err error
		switch st {
		case stage.Extract:
			err = s.StartExtraction(ctx)
		case stage.Analyze:
			err = s.StartAnalysis(ctx)
		case stage.Generate:
			err = s.StartGeneration(ctx)
		}
		return PhaseStartedMsg{Stage: st, Err: err}
	}
}
