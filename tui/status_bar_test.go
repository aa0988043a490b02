// ABOUTME: Tests for the status bar model covering channel status tracking,
// ABOUTME: stage gate display, and reconnect attempt rendering.
package tui

import (
	"strings"
	"testing"

	"github.com/2389-research/pulse/conn"
	"github.com/2389-research/pulse/stage"
	"github.com/2389-research/pulse/wire"
)

func TestStatusBarTracksChannels(t *testing.T) {
	m := NewStatusBarModel()
	if m.ChatStatus() != conn.StatusClosed {
		t.Errorf("initial chat status = %s", m.ChatStatus())
	}

	m.SetChannelStatus(wire.ChannelChat, conn.StatusOpen, 0)
	m.SetChannelStatus(wire.ChannelPipeline, conn.StatusConnecting, 2)

	if m.ChatStatus() != conn.StatusOpen {
		t.Errorf("chat status = %s", m.ChatStatus())
	}
	if m.PipelineStatus() != conn.StatusConnecting {
		t.Errorf("pipeline status = %s", m.PipelineStatus())
	}
}

func TestStatusBarViewShowsStatuses(t *testing.T) {
	m := NewStatusBarModel()
	m.SetWidth(120)
	m.SetChannelStatus(wire.ChannelChat, conn.StatusOpen, 0)

	view := m.View()
	if !strings.Contains(view, "open") {
		t.Errorf("view missing chat status: %q", view)
	}
	for _, name := range []string{"connect", "extract", "analyze", "generate"} {
		if !strings.Contains(view, name) {
			t.Errorf("view missing stage %q: %q", name, view)
		}
	}
}

func TestStatusBarViewShowsRetryAttempt(t *testing.T) {
	m := NewStatusBarModel()
	m.SetWidth(120)
	m.SetChannelStatus(wire.ChannelPipeline, conn.StatusConnecting, 3)

	if !strings.Contains(m.View(), "retry #3") {
		t.Errorf("view missing retry count: %q", m.View())
	}
}

func TestStatusBarStageInputs(t *testing.T) {
	m := NewStatusBarModel()
	m.SetInputs(stage.Inputs{ConnectionStatus: stage.ConnectedStatus})
	if m.inputs.ConnectionStatus != stage.ConnectedStatus {
		t.Error("inputs not recorded")
	}
}
