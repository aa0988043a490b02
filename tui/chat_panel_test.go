// ABOUTME: Tests for the chat panel covering transcript sync from the machine,
// ABOUTME: streaming draft display, tool-call lines, and compose input handling.
package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/pulse/chat"
)

type nullSender struct{}

func (nullSender) Send(any) error { return nil }

func testMachine() *chat.Machine {
	return chat.NewMachine(nullSender{}, chat.TurnConfig{Provider: "anthropic", Model: "m"})
}

func TestChatPanelSyncsTranscript(t *testing.T) {
	machine := testMachine()
	if err := machine.SendMessage("show me the runs"); err != nil {
		t.Fatal(err)
	}
	machine.AppendChunk("Looking")
	machine.AppendChunk(" now")

	m := NewChatPanelModel()
	m.SetSize(80, 20)
	m.Sync(machine)

	view := m.View()
	if !strings.Contains(view, "show me the runs") {
		t.Errorf("view missing user message: %q", view)
	}
	if !strings.Contains(view, "Looking now") {
		t.Errorf("view missing streaming draft: %q", view)
	}
	if !m.Streaming() {
		t.Error("expected streaming")
	}
}

func TestChatPanelShowsToolCalls(t *testing.T) {
	machine := testMachine()
	if err := machine.SendMessage("query"); err != nil {
		t.Fatal(err)
	}
	machine.ToolStartEvent("t1", "query_runs", "Querying runs")
	machine.ToolEndEvent("t1", "3 runs")

	m := NewChatPanelModel()
	m.SetSize(80, 20)
	m.Sync(machine)

	view := m.View()
	if !strings.Contains(view, "query_runs") {
		t.Errorf("view missing tool name: %q", view)
	}
	if !strings.Contains(view, "3 runs") {
		t.Errorf("view missing tool summary: %q", view)
	}
}

func TestChatPanelShowsErrorTurn(t *testing.T) {
	machine := testMachine()
	if err := machine.SendMessage("hello"); err != nil {
		t.Fatal(err)
	}
	machine.Finish("", nil, nil, "Not connected: channel chat is not open")

	m := NewChatPanelModel()
	m.SetSize(80, 20)
	m.Sync(machine)

	if !strings.Contains(m.View(), "Not connected") {
		t.Errorf("view = %q", m.View())
	}
	if m.Streaming() {
		t.Error("expected idle after finalize")
	}
}

func TestChatPanelInput(t *testing.T) {
	m := NewChatPanelModel()
	m.SetFocused(true)
	m.SetSize(80, 20)

	for _, r := range "hi" {
		m.HandleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	if m.InputValue() != "hi" {
		t.Errorf("input = %q", m.InputValue())
	}
	m.ClearInput()
	if m.InputValue() != "" {
		t.Errorf("input after clear = %q", m.InputValue())
	}
}

func TestFormatToolCall(t *testing.T) {
	running := formatToolCall(chat.ToolCall{ID: "t1", Name: "search", Status: chat.ToolRunning})
	if !strings.Contains(running, "search...") {
		t.Errorf("running line = %q", running)
	}
	done := formatToolCall(chat.ToolCall{ID: "t1", Name: "search", Status: chat.ToolDone, Summary: "5 hits"})
	if !strings.Contains(done, "5 hits") {
		t.Errorf("done line = %q", done)
	}
}
