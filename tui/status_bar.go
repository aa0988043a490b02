// ABOUTME: Implements a single-line status bar for the bottom of the TUI.
// ABOUTME: Displays channel connection states, the stage gate, and reconnect attempts.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/pulse/conn"
	"github.com/2389-research/pulse/stage"
	"github.com/2389-research/pulse/wire"
)

// StatusBarModel displays connection and stage-gate state in a single line.
type StatusBarModel struct {
	chatStatus     conn.Status
	pipelineStatus conn.Status
	attempt        int
	inputs         stage.Inputs
	width          int
}

// NewStatusBarModel creates a StatusBarModel with both channels closed.
func NewStatusBarModel() StatusBarModel {
	return StatusBarModel{
		chatStatus:     conn.StatusClosed,
		pipelineStatus: conn.StatusClosed,
	}
}

// SetChannelStatus records the latest status of one channel. A reconnect
// attempt count is only meaningful while connecting.
func (m *StatusBarModel) SetChannelStatus(channel wire.Channel, status conn.Status, attempt int) {
	switch channel {
	case wire.ChannelChat:
		m.chatStatus = status
	case wire.ChannelPipeline:
		m.pipelineStatus = status
	}
	m.attempt = attempt
}

// SetInputs updates the stage gate inputs shown in the bar.
func (m *StatusBarModel) SetInputs(in stage.Inputs) {
	m.inputs = in
}

// SetWidth sets the bar width for rendering.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// ChatStatus returns the last recorded chat channel status.
func (m StatusBarModel) ChatStatus() conn.Status {
	return m.chatStatus
}

// PipelineStatus returns the last recorded pipeline channel status.
func (m StatusBarModel) PipelineStatus() conn.Status {
	return m.pipelineStatus
}

// View renders the status bar as a single styled line.
func (m StatusBarModel) View() string {
	chat := StyleForChannel(m.chatStatus).Render(string(m.chatStatus))
	pipeline := StyleForChannel(m.pipelineStatus).Render(string(m.pipelineStatus))

	var stages []string
	for _, s := range stage.Stages() {
		label := s.String()
		if stage.Enterable(m.inputs, s) {
			stages = append(stages, StageEnterableStyle.Render(label))
		} else {
			stages = append(stages, StageLockedStyle.Render(label))
		}
	}

	content := fmt.Sprintf("chat: %s | pipeline: %s | stages: %s",
		chat, pipeline, strings.Join(stages, " > "))
	if m.attempt > 0 {
		content += fmt.Sprintf(" | retry #%d", m.attempt)
	}

	style := StatusBarStyle.Width(m.width)
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Left, style.Render(content))
}
