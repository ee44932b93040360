package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Layout constants
const (
	ticketPanelWidth = 35
	minHeight        = 10
	chromeHeight     = 7 // header, status (2 lines), footer and borders
)

// Color palette
var (
	primaryColor   = lipgloss.Color("205") // Pink
	secondaryColor = lipgloss.Color("86")  // Cyan
	mutedColor     = lipgloss.Color("241") // Gray
	successColor   = lipgloss.Color("78")  // Green
	warningColor   = lipgloss.Color("214") // Orange
	errorColor     = lipgloss.Color("196") // Red
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	statusItemStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	statusLabelStyle = lipgloss.NewStyle().
				Foreground(mutedColor)

	ticketPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(mutedColor)

	outputPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(secondaryColor)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(secondaryColor).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	keyStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	descStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	runningStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	stoppingStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Bold(true)

	failedCountStyle = lipgloss.NewStyle().
				Foreground(errorColor)
)

func (m *Model) resize() {
	height, outputWidth := m.panelSize()
	m.viewport.Width = outputWidth - 4
	m.viewport.Height = height - 4
	m.list.SetSize(ticketPanelWidth-4, height-4)
	m.progress.Width = m.width - 20
	if m.progress.Width < 10 {
		m.progress.Width = 10
	}
}

func (m Model) panelSize() (height, outputWidth int) {
	height = m.height - chromeHeight
	if height < minHeight {
		height = minHeight
	}
	outputWidth = m.width - ticketPanelWidth - 4
	if outputWidth < 20 {
		outputWidth = 20
	}
	return height, outputWidth
}

func (m Model) renderLayout() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderStatusBar(),
		m.renderMainContent(),
		m.renderFooter(),
	)
}

// renderHeader renders the title and run state.
func (m Model) renderHeader() string {
	title := "⚡ autopilot"
	if m.runID != "" {
		title = fmt.Sprintf("⚡ autopilot run %s", shortID(m.runID))
	}
	left := titleStyle.Render(title)

	var status string
	switch {
	case m.running && m.stopRequested:
		status = stoppingStyle.Render("◌ STOPPING")
	case m.running:
		status = runningStyle.Render("● RUNNING")
	case m.cancelled:
		status = stoppingStyle.Render("■ STOPPED")
	default:
		status = doneStyle.Render("■ DONE")
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(status) - 2
	if padding < 0 {
		padding = 0
	}
	return headerStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + status)
}

// renderStatusBar renders counts, elapsed time and the batch progress bar.
func (m Model) renderStatusBar() string {
	item := func(label, value string) string {
		return statusLabelStyle.Render(label+" ") + statusItemStyle.Render(value)
	}

	failed := statusItemStyle.Render(fmt.Sprintf("%d", m.failed))
	if m.failed > 0 {
		failed = failedCountStyle.Render(fmt.Sprintf("%d", m.failed))
	}

	statsLine := lipgloss.JoinHorizontal(lipgloss.Center,
		item("Ticket:", fmt.Sprintf("%d/%d", m.current, m.total)), " │ ",
		item("Closed:", fmt.Sprintf("%d", m.closed)), " │ ",
		statusLabelStyle.Render("Failed: ")+failed, " │ ",
		item("Time:", formatDuration(time.Since(m.startTime))),
	)

	var progressLine string
	if m.total > 0 {
		progressLine = m.progress.ViewAs(m.percent())
	}

	return statusBarStyle.Width(m.width).Render(
		lipgloss.JoinVertical(lipgloss.Left, statsLine, progressLine),
	)
}

func (m Model) percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.closed+m.failed) / float64(m.total)
}

// formatDuration formats a duration as M:SS or H:MM:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	mins := d / time.Minute
	d -= mins * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mins, s)
	}
	return fmt.Sprintf("%d:%02d", mins, s)
}

func (m Model) renderMainContent() string {
	height, outputWidth := m.panelSize()
	return lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderTicketPanel(height),
		m.renderOutputPanel(outputWidth, height),
	)
}

func (m Model) renderTicketPanel(height int) string {
	title := panelTitleStyle.Render("Tickets")
	return ticketPanelStyle.
		Width(ticketPanelWidth).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, m.list.View()))
}

func (m Model) renderOutputPanel(width, height int) string {
	title := panelTitleStyle.Render("Agent Output")
	return outputPanelStyle.
		Width(width).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, m.viewport.View()))
}

func (m Model) renderFooter() string {
	return footerStyle.Width(m.width).Render(m.help.View(m.keys))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Help overlay styles
var (
	helpOverlayStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor).
				Padding(1, 2).
				Background(lipgloss.Color("235"))

	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true).
			Width(12)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

// renderHelpOverlay draws the key bindings centered over background.
func (m Model) renderHelpOverlay(background string) string {
	title := helpTitleStyle.Render("Keyboard Shortcuts")

	var lines []string
	for _, group := range m.keys.FullHelp() {
		for _, b := range group {
			h := b.Help()
			lines = append(lines, helpKeyStyle.Render(h.Key)+helpDescStyle.Render(h.Desc))
		}
	}
	lines = append(lines, "", helpDescStyle.Render("Interrupting twice cancels the current ticket."))

	overlay := helpOverlayStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		title, lipgloss.JoinVertical(lipgloss.Left, lines...)))

	x := (m.width - lipgloss.Width(overlay)) / 2
	y := (m.height - lipgloss.Height(overlay)) / 2
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return placeOverlay(x, y, overlay, background)
}

// placeOverlay places fg on top of bg at the given cell position.
func placeOverlay(x, y int, fg, bg string) string {
	bgLines := strings.Split(bg, "\n")
	fgLines := strings.Split(fg, "\n")

	for len(bgLines) < y+len(fgLines) {
		bgLines = append(bgLines, "")
	}

	for i, fgLine := range fgLines {
		row := y + i
		bgLine := bgLines[row]
		if w := lipgloss.Width(bgLine); w < x {
			bgLine += strings.Repeat(" ", x-w)
		}

		after := ""
		if lipgloss.Width(bgLine) > x+lipgloss.Width(fgLine) {
			after = substringFromWidth(bgLine, x+lipgloss.Width(fgLine))
		}
		bgLines[row] = truncateWidth(bgLine, x) + fgLine + after
	}
	return strings.Join(bgLines, "\n")
}

func truncateWidth(s string, w int) string {
	if w <= 0 {
		return ""
	}
	var b strings.Builder
	width := 0
	for _, r := range s {
		rw := lipgloss.Width(string(r))
		if width+rw > w {
			break
		}
		b.WriteRune(r)
		width += rw
	}
	return b.String()
}

func substringFromWidth(s string, w int) string {
	width := 0
	for i, r := range s {
		if width >= w {
			return s[i:]
		}
		width += lipgloss.Width(string(r))
	}
	return ""
}
