// ABOUTME: Defines lipgloss style constants for the dashboard TUI panels and status colors.
// ABOUTME: Provides StyleForStatus and StyleForChannel to map domain statuses to display styles.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/pulse/conn"
	"github.com/2389-research/pulse/progress"
)

var (
	// Panel borders
	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))

	// Title styling
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	// Progress entry colors
	RunningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	DoneStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	FailedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	CancelledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	NeutralStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

	// Connection status colors
	OpenStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	ConnectingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	DisconnectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	ClosedStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	// Chat roles
	UserStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true)
	AssistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	ToolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	ErrorTextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	// Stage gate display
	StageLockedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	StageEnterableStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

// StyleForStatus returns the appropriate lipgloss style for a progress status.
func StyleForStatus(status progress.Status) lipgloss.Style {
	switch status {
	case progress.StatusRunning:
		return RunningStyle
	case progress.StatusDone:
		return DoneStyle
	case progress.StatusFailed:
		return FailedStyle
	case progress.StatusCancelled:
		return CancelledStyle
	default:
		return NeutralStyle
	}
}

// StyleForChannel returns the appropriate lipgloss style for a channel status.
func StyleForChannel(status conn.Status) lipgloss.Style {
	switch status {
	case conn.StatusOpen:
		return OpenStyle
	case conn.StatusConnecting:
		return ConnectingStyle
	case conn.StatusDisconnected:
		return DisconnectedStyle
	default:
		return ClosedStyle
	}
}
