// Package ui is the terminal front end: it turns key presses into looper and
// viewer commands and renders the engine's status line.
package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/audiolibrelab/miditake/internal/looper"
	"github.com/audiolibrelab/miditake/internal/viewer"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	helpStyle  = lipgloss.NewStyle().Faint(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	stateStyles = map[looper.State]lipgloss.Style{
		looper.StateIdle:      lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
		looper.StateCapturing: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		looper.StateReplaying: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
	}
)

// Model is the bubbletea model for the interactive looper session.
type Model struct {
	commands chan<- looper.Command
	viewer   *viewer.Viewer
	notices  <-chan looper.Notice
	status   func() looper.Status

	state    looper.State
	takeLen  int
	takeDur  time.Duration
	lastText string
	lastWarn bool
	quitting bool
}

// NoticeMsg carries an engine notice into the bubbletea loop.
type NoticeMsg looper.Notice

type tickMsg time.Time

// New builds the UI model. notices must be the channel the engine's notifier
// writes to; status is polled to keep the take counter fresh while capturing.
func New(commands chan<- looper.Command, v *viewer.Viewer, notices <-chan looper.Notice, status func() looper.Status) Model {
	return Model{
		commands: commands,
		viewer:   v,
		notices:  notices,
		status:   status,
	}
}

func listenNotices(ch <-chan looper.Notice) tea.Cmd {
	return func() tea.Msg {
		return NoticeMsg(<-ch)
	}
}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(listenNotices(m.notices), tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case " ", "p":
			m.commands <- looper.CommandPlay
		case "s", "esc":
			m.commands <- looper.CommandStop
		case "e":
			m.commands <- looper.CommandExport

		// Viewer navigation bypasses the engine entirely.
		case "right", "l":
			m.viewer.NextPage()
		case "left", "h":
			m.viewer.PrevPage()
		case "tab", "n":
			m.viewer.NextDocument()
		}

	case NoticeMsg:
		m.state = msg.State
		m.takeLen = msg.TakeLen
		m.lastText = msg.Text
		m.lastWarn = msg.Warning
		return m, listenNotices(m.notices)

	case tickMsg:
		st := m.status()
		m.state = st.State
		m.takeLen = st.TakeLen
		m.takeDur = st.TakeDuration
		return m, tick()
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	out := titleStyle.Render("miditake") + "\n\n"

	st := stateStyles[m.state]
	out += fmt.Sprintf("  state: %s\n", st.Render(m.state.String()))
	out += fmt.Sprintf("  take:  %d events, %s\n", m.takeLen, m.takeDur.Round(time.Millisecond))

	if doc, page := m.viewer.Document(); doc != "" {
		out += fmt.Sprintf("  score: %s p.%d\n", doc, page)
	}

	if m.lastText != "" {
		style := infoStyle
		if m.lastWarn {
			style = warnStyle
		}
		out += "\n  " + style.Render(m.lastText) + "\n"
	}

	out += "\n" + helpStyle.Render(
		"  play to record · space replay · s stop · e export\n"+
			"  ←/→ page · tab next score · q quit")
	return out
}
