// Package tui renders a live view of an autopilot run.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/edsandoval/autopilot/internal/autopilot"
)

const tickInterval = 250 * time.Millisecond

// Config holds the callbacks that connect the view to a run.
type Config struct {
	// RequestStop asks the run to stop after the current ticket.
	RequestStop func()
	// Cancel aborts the run, interrupting the current ticket.
	Cancel func()
}

// Message types sent into the program while a run is in progress.
type (
	// EventMsg carries an autopilot progress event.
	EventMsg struct {
		Event autopilot.Event
	}

	// OutputMsg carries streamed agent output.
	OutputMsg struct {
		TicketID string
		Text     string
	}

	tickMsg time.Time
)

// Model is the Bubble Tea model for an autopilot run.
type Model struct {
	cfg  Config
	keys KeyMap
	help help.Model

	list     list.Model
	viewport viewport.Model
	progress progress.Model

	tickets []TicketInfo
	output  string

	runID   string
	current int
	total   int
	closed  int
	failed  int

	running       bool
	stopRequested bool
	cancelled     bool
	done          bool
	result        *autopilot.Result

	showHelp  bool
	quitting  bool
	animFrame int
	startTime time.Time

	width  int
	height int
}

// New creates the model.
func New(cfg Config) Model {
	vp := viewport.New(80, 20)
	vp.SetContent("Waiting for agent output...")

	delegate := list.NewDefaultDelegate()
	tickets := list.New([]list.Item{}, delegate, ticketPanelWidth-4, 10)
	tickets.SetShowTitle(false)
	tickets.SetShowStatusBar(false)
	tickets.SetShowHelp(false)
	tickets.SetFilteringEnabled(false)

	h := help.New()
	h.Styles.ShortKey = keyStyle
	h.Styles.ShortDesc = descStyle
	h.Styles.ShortSeparator = descStyle

	return Model{
		cfg:       cfg,
		keys:      DefaultKeyMap(),
		help:      h,
		list:      tickets,
		viewport:  vp,
		progress:  progress.New(progress.WithDefaultGradient()),
		running:   true,
		startTime: time.Now(),
	}
}

// Result returns the run result once the completed event has arrived.
func (m Model) Result() *autopilot.Result {
	return m.result
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resize()
		return m, nil

	case tickMsg:
		m.animFrame++
		if m.running {
			m.syncList()
		}
		return m, tickCmd()

	case EventMsg:
		m.handleEvent(msg.Event)
		return m, nil

	case OutputMsg:
		m.appendOutput(msg.Text)
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Stop):
		m.requestStop()
		return m, nil

	case key.Matches(msg, m.keys.Quit):
		if m.running && !m.stopRequested {
			m.requestStop()
			return m, nil
		}
		if m.running && m.cfg.Cancel != nil {
			m.cfg.Cancel()
		}
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) requestStop() {
	if !m.running || m.stopRequested {
		return
	}
	m.stopRequested = true
	if m.cfg.RequestStop != nil {
		m.cfg.RequestStop()
	}
	m.appendOutput("\n[Stop requested: finishing the current ticket]\n")
}

func (m *Model) handleEvent(ev autopilot.Event) {
	switch e := ev.(type) {
	case autopilot.NoTickets:
		m.runID = e.RunID
		m.running = false
		m.done = true
		m.output = "No pending tickets.\n"
		m.viewport.SetContent(m.output)

	case autopilot.Started:
		m.runID = e.RunID
		m.total = e.Total
		m.setTickets(e.Tickets)
		m.output = ""
		m.viewport.SetContent(m.output)

	case autopilot.Processing:
		m.current = e.Current
		m.setTicketState(e.Ticket.ID, TicketWorking, "")
		m.appendOutput(fmt.Sprintf("── %s (%d/%d) ──\n", e.Ticket.ID, e.Current, e.Total))

	case autopilot.TicketCompleted:
		m.closed++
		m.setTicketState(e.Outcome.Ticket.ID, TicketClosed, e.Outcome.TestBranch)
		m.appendOutput(fmt.Sprintf("\n[Closed: %s -> %s]\n", e.Outcome.Ticket.ID, e.Outcome.TestBranch))

	case autopilot.TicketFailed:
		m.failed++
		m.setTicketState(e.Outcome.Ticket.ID, TicketFailed, e.Error)
		m.appendOutput(fmt.Sprintf("\n[Error: %s: %s]\n", e.Outcome.Ticket.ID, e.Error))

	case autopilot.Cancelled:
		m.cancelled = true
		m.skipQueued()
		m.appendOutput(fmt.Sprintf("\n[Stopped: %d ticket(s) left pending]\n", e.Remaining))

	case autopilot.Completed:
		m.running = false
		m.done = true
		m.result = e.Result
		m.appendOutput(fmt.Sprintf("\n[Run complete: %d closed, %d failed. Press q to exit]\n",
			len(e.Result.Completed), len(e.Result.Failed)))
	}
}

func (m *Model) appendOutput(text string) {
	atBottom := m.viewport.AtBottom()
	m.output += text
	m.viewport.SetContent(m.output)
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Loading...\n"
	}

	view := m.renderLayout()
	if m.showHelp {
		return m.renderHelpOverlay(view)
	}
	return view
}
