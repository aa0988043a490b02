// ABOUTME: Implements a scrollable pipeline timeline panel using the bubbles viewport.
// ABOUTME: Renders every pipeline kind's progress log with color-coded statuses.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"

	"github.com/2389-research/pulse/progress"
	"github.com/2389-research/pulse/wire"
)

// timelineKinds fixes the display order of the pipeline sections.
var timelineKinds = []string{
	wire.PipelineExtraction,
	wire.PipelineAnalysis,
	wire.PipelineGeneration,
	wire.PipelineContextEngine,
}

// TimelinePanelModel is a scrollable panel showing pipeline progress per kind.
type TimelinePanelModel struct {
	entries  map[string][]progress.Entry
	viewport viewport.Model
	focused  bool
	width    int
	height   int
}

// NewTimelinePanelModel creates an empty timeline panel.
func NewTimelinePanelModel() TimelinePanelModel {
	return TimelinePanelModel{
		entries:  make(map[string][]progress.Entry),
		viewport: viewport.New(80, 10),
	}
}

// SetEntries replaces the displayed entries for one pipeline kind.
func (m *TimelinePanelModel) SetEntries(kind string, entries []progress.Entry) {
	m.entries[kind] = entries
	m.syncViewport()
}

// SetFocused sets whether this panel accepts keyboard input.
func (m *TimelinePanelModel) SetFocused(focused bool) {
	m.focused = focused
}

// IsFocused returns whether the panel is focused.
func (m TimelinePanelModel) IsFocused() bool {
	return m.focused
}

// SetSize sets the available dimensions and updates the viewport.
func (m *TimelinePanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	vpWidth := w - 2
	vpHeight := h - 3
	if vpWidth < 1 {
		vpWidth = 1
	}
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight
	m.syncViewport()
}

// ScrollUp moves the viewport up one line.
func (m *TimelinePanelModel) ScrollUp() {
	m.viewport.SetYOffset(m.viewport.YOffset - 1)
}

// ScrollDown moves the viewport down one line.
func (m *TimelinePanelModel) ScrollDown() {
	m.viewport.SetYOffset(m.viewport.YOffset + 1)
}

// formatEntry renders one progress entry as a single line.
func formatEntry(e progress.Entry) string {
	line := fmt.Sprintf("  %s", e.Phase)
	if e.Total > 0 {
		line += fmt.Sprintf(" [%d/%d]", e.Current, e.Total)
	}
	if e.Detail != "" {
		line += " " + e.Detail
	}
	if e.Error != "" {
		line += " " + ErrorTextStyle.Render(e.Error)
	}
	return StyleForStatus(e.Status).Render(line)
}

func (m *TimelinePanelModel) syncViewport() {
	var b strings.Builder
	for _, kind := range timelineKinds {
		entries := m.entries[kind]
		if len(entries) == 0 {
			continue
		}
		b.WriteString(TitleStyle.Render(kind))
		b.WriteString("\n")
		for _, e := range entries {
			b.WriteString(formatEntry(e))
			b.WriteString("\n")
		}
	}
	if b.Len() == 0 {
		b.WriteString("No pipeline activity yet.")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// View renders the timeline panel.
func (m TimelinePanelModel) View() string {
	title := "PIPELINE"
	if m.focused {
		title = "PIPELINE (focused)"
	}
	body := TitleStyle.Render(title) + "\n" + m.viewport.View()
	return BorderStyle.Width(m.width - 2).Render(body)
}
