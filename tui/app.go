// ABOUTME: Top-level Bubble Tea AppModel composing the chat panel, pipeline timeline,
// ABOUTME: and status bar into the inline dashboard layout with keyboard routing.
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/pulse/api"
	"github.com/2389-research/pulse/conn"
	"github.com/2389-research/pulse/session"
	"github.com/2389-research/pulse/stage"
)

// FocusTarget indicates which panel currently has keyboard focus.
type FocusTarget int

const (
	FocusChat FocusTarget = iota
	FocusTimeline
)

// AppModel is the top-level Bubble Tea model that composes the dashboard
// panels and routes messages between them.
type AppModel struct {
	chatPanel ChatPanelModel
	timeline  TimelinePanelModel
	statusBar StatusBarModel

	sess       *session.Session
	connectReq api.ConnectRequest
	ctx        context.Context
	events     <-chan conn.LifecycleEvent

	focus  FocusTarget
	notice string
	width  int
	height int
}

// NewAppModel creates an AppModel bound to a started session. The connect
// request is sent when the user triggers the connect stage.
func NewAppModel(ctx context.Context, sess *session.Session, connectReq api.ConnectRequest) AppModel {
	m := AppModel{
		chatPanel:  NewChatPanelModel(),
		timeline:   NewTimelinePanelModel(),
		statusBar:  NewStatusBarModel(),
		sess:       sess,
		connectReq: connectReq,
		ctx:        ctx,
		events:     sess.Manager().Events().Subscribe(),
		focus:      FocusChat,
	}
	m.chatPanel.SetFocused(true)
	return m
}

// Init implements tea.Model.
func (m AppModel) Init() tea.Cmd {
	return tea.Batch(
		WaitForLifecycleCmd(m.events),
		TickCmd(100*time.Millisecond),
	)
}

// Update implements tea.Model.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case LifecycleMsg:
		evt := msg.Event
		m.statusBar.SetChannelStatus(evt.Channel, evt.Status, evt.Attempt)
		if evt.Err != nil {
			m.notice = evt.Err.Error()
		}
		return m, WaitForLifecycleCmd(m.events)

	case TickMsg:
		m.refresh()
		return m, TickCmd(100 * time.Millisecond)

	case ChatSentMsg:
		if msg.Err != nil {
			m.notice = msg.Err.Error()
		} else {
			m.chatPanel.ClearInput()
		}
		m.refresh()
		return m, nil

	case ConnectResultMsg:
		if msg.Err != nil {
			m.notice = fmt.Sprintf("connect: %v", msg.Err)
		} else {
			m.notice = "upstream connected"
		}
		m.refresh()
		return m, nil

	case PhaseStartedMsg:
		if msg.Err != nil {
			m.notice = fmt.Sprintf("%s: %v", msg.Stage, msg.Err)
		} else {
			m.notice = fmt.Sprintf("%s started", msg.Stage)
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// handleKey routes keyboard input by focus target.
func (m AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		if m.focus == FocusChat {
			m.focus = FocusTimeline
		} else {
			m.focus = FocusChat
		}
		m.chatPanel.SetFocused(m.focus == FocusChat)
		m.timeline.SetFocused(m.focus == FocusTimeline)
		return m, nil
	}

	if m.focus == FocusChat {
		switch msg.String() {
		case "enter":
			content := m.chatPanel.InputValue()
			if content == "" || m.chatPanel.Streaming() {
				return m, nil
			}
			return m, SendChatCmd(m.sess, content)
		case "esc":
			if m.chatPanel.Streaming() {
				m.sess.CancelChat()
				m.notice = "cancelling turn"
				return m, nil
			}
			return m, nil
		}
		return m, m.chatPanel.HandleKey(msg)
	}

	switch msg.String() {
	case "up", "k":
		m.timeline.ScrollUp()
	case "down", "j":
		m.timeline.ScrollDown()
	case "c":
		return m, ConnectCmd(m.ctx, m.sess, m.connectReq)
	case "e":
		return m.startPhase(stage.Extract)
	case "a":
		return m.startPhase(stage.Analyze)
	case "g":
		return m.startPhase(stage.Generate)
	case "r":
		m.sess.Reset()
		m.notice = "pipeline state reset"
		m.refresh()
	}
	return m, nil
}

// startPhase starts a phase if its stage gate is open, otherwise surfaces
// the lock in the notice line without a request.
func (m AppModel) startPhase(s stage.Stage) (tea.Model, tea.Cmd) {
	if !stage.Enterable(m.sess.StageInputs(), s) {
		m.notice = fmt.Sprintf("%s is locked", s)
		return m, nil
	}
	return m, StartPhaseCmd(m.ctx, m.sess, s)
}

// refresh pulls fresh snapshots from the session into the panels.
func (m *AppModel) refresh() {
	m.chatPanel.Sync(m.sess.Machine())
	for _, kind := range timelineKinds {
		if l := m.sess.ProgressLog(kind); l != nil {
			m.timeline.SetEntries(kind, l.Entries())
		}
	}
	m.statusBar.SetInputs(m.sess.StageInputs())
}

// Notice returns the current transient notice line.
func (m AppModel) Notice() string {
	return m.notice
}

// View implements tea.Model.
func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.width < 40 || m.height < 10 {
		return fmt.Sprintf("Terminal too small (%dx%d). Minimum: 40x10.", m.width, m.height)
	}

	statusBarHeight := 1
	noticeHeight := 1
	panelHeight := m.height - statusBarHeight - noticeHeight

	chatWidth := m.width * 60 / 100
	if chatWidth < 20 {
		chatWidth = 20
	}
	timelineWidth := m.width - chatWidth
	if timelineWidth < 20 {
		timelineWidth = 20
	}

	m.chatPanel.SetSize(chatWidth, panelHeight)
	m.timeline.SetSize(timelineWidth, panelHeight)
	m.statusBar.SetWidth(m.width)

	panels := lipgloss.JoinHorizontal(lipgloss.Top, m.chatPanel.View(), m.timeline.View())

	notice := m.notice
	if notice == "" {
		notice = " "
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		panels,
		NeutralStyle.Render(notice),
		m.statusBar.View(),
	)
}
