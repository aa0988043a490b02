// ABOUTME: Implements the chat panel: a scrollable transcript with streaming text
// ABOUTME: and tool-call lines, plus a textinput for composing the next message.
package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/pulse/chat"
)

// ChatPanelModel renders the conversation and owns the compose input.
type ChatPanelModel struct {
	messages  []chat.Message
	draft     string
	tools     []chat.ToolCall
	streaming bool

	viewport viewport.Model
	input    textinput.Model
	focused  bool
	width    int
	height   int
}

// NewChatPanelModel creates a chat panel with an initialized text input.
func NewChatPanelModel() ChatPanelModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your pipeline..."
	return ChatPanelModel{
		viewport: viewport.New(80, 10),
		input:    ti,
	}
}

// Sync refreshes the transcript from a machine snapshot.
func (m *ChatPanelModel) Sync(machine *chat.Machine) {
	m.messages = machine.Messages()
	m.draft = machine.Draft()
	m.tools = machine.Tools()
	m.streaming = machine.State() == chat.StateStreaming
	m.syncViewport()
}

// SetFocused routes keyboard input to the compose field when focused.
func (m *ChatPanelModel) SetFocused(focused bool) {
	m.focused = focused
	if focused {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

// IsFocused returns whether the panel is focused.
func (m ChatPanelModel) IsFocused() bool {
	return m.focused
}

// Streaming reports whether an assistant turn is in flight.
func (m ChatPanelModel) Streaming() bool {
	return m.streaming
}

// InputValue returns the current compose text.
func (m ChatPanelModel) InputValue() string {
	return m.input.Value()
}

// ClearInput empties the compose field after a successful submit.
func (m *ChatPanelModel) ClearInput() {
	m.input.SetValue("")
}

// HandleKey forwards a key message to the compose input.
func (m *ChatPanelModel) HandleKey(msg tea.KeyMsg) tea.Cmd {
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// SetSize sets the available dimensions and updates the viewport.
func (m *ChatPanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	vpWidth := w - 2
	vpHeight := h - 4
	if vpWidth < 1 {
		vpWidth = 1
	}
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight
	m.input.Width = vpWidth - 2
	m.syncViewport()
}

// formatToolCall renders one tool call line for the transcript.
func formatToolCall(tc chat.ToolCall) string {
	line := "  [" + tc.Name
	switch tc.Status {
	case chat.ToolDone:
		line += ": " + tc.Summary
	case chat.ToolError:
		line += ": error"
	default:
		line += "..."
	}
	line += "]"
	return ToolStyle.Render(line)
}

func (m *ChatPanelModel) syncViewport() {
	var b strings.Builder
	for _, msg := range m.messages {
		switch msg.Role {
		case chat.RoleUser:
			b.WriteString(UserStyle.Render("you: ") + msg.Content)
		case chat.RoleAssistant:
			if msg.Error != "" {
				b.WriteString(ErrorTextStyle.Render(msg.Error))
			} else {
				b.WriteString(AssistantStyle.Render(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				b.WriteString("\n" + formatToolCall(tc))
			}
		}
		b.WriteString("\n")
	}

	if m.streaming {
		for _, tc := range m.tools {
			b.WriteString(formatToolCall(tc) + "\n")
		}
		if m.draft != "" {
			b.WriteString(AssistantStyle.Render(m.draft))
		} else {
			b.WriteString(NeutralStyle.Render("..."))
		}
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// View renders the chat panel with the compose input at the bottom.
func (m ChatPanelModel) View() string {
	title := "CHAT"
	if m.focused {
		title = "CHAT (focused)"
	}
	body := TitleStyle.Render(title) + "\n" + m.viewport.View() + "\n" + m.input.View()
	return BorderStyle.Width(m.width - 2).Render(body)
}
