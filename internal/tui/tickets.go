package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"github.com/edsandoval/autopilot/internal/autopilot"
)

// TicketState is a ticket's position within the current run.
type TicketState string

const (
	TicketQueued  TicketState = "queued"
	TicketWorking TicketState = "working"
	TicketClosed  TicketState = "closed"
	TicketFailed  TicketState = "error"
	TicketSkipped TicketState = "skipped"
)

// TicketInfo holds a ticket row for display.
type TicketInfo struct {
	ID        string
	Name      string
	State     TicketState
	Detail    string
	AnimFrame int
}

// ticketItem implements list.Item.
type ticketItem struct {
	info TicketInfo
}

var (
	iconQueued  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("○")
	iconClosed  = lipgloss.NewStyle().Foreground(lipgloss.Color("78")).Render("●")
	iconFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	iconSkipped = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("⊘")

	// Pulsing colors for the working indicator
	pulseColors = []lipgloss.Color{"214", "215", "216", "215"}
)

func (t ticketItem) Title() string {
	icon := iconQueued
	prefix := "  "
	switch t.info.State {
	case TicketWorking:
		pulse := lipgloss.NewStyle().Foreground(pulseColors[t.info.AnimFrame%len(pulseColors)])
		icon = pulse.Render("◐")
		prefix = pulse.Bold(true).Render("▶") + " "
	case TicketClosed:
		icon = iconClosed
	case TicketFailed:
		icon = iconFailed
	case TicketSkipped:
		icon = iconSkipped
	}

	label := t.info.ID
	if t.info.Name != "" && t.info.Name != t.info.ID {
		label = fmt.Sprintf("%s %s", t.info.ID, t.info.Name)
	}
	return fmt.Sprintf("%s%s %s", prefix, icon, label)
}

func (t ticketItem) Description() string {
	if t.info.Detail != "" {
		return "  " + t.info.Detail
	}
	return "  " + string(t.info.State)
}

func (t ticketItem) FilterValue() string {
	return t.info.ID
}

func (m *Model) setTickets(refs []autopilot.TicketRef) {
	m.tickets = make([]TicketInfo, len(refs))
	for i, r := range refs {
		m.tickets[i] = TicketInfo{ID: r.ID, Name: r.Name, State: TicketQueued}
	}
	m.syncList()
}

func (m *Model) setTicketState(id string, state TicketState, detail string) {
	for i := range m.tickets {
		if m.tickets[i].ID == id {
			m.tickets[i].State = state
			m.tickets[i].Detail = detail
		}
	}
	m.syncList()
}

// skipQueued marks every ticket still queued as skipped after a stop.
func (m *Model) skipQueued() {
	for i := range m.tickets {
		if m.tickets[i].State == TicketQueued {
			m.tickets[i].State = TicketSkipped
		}
	}
	m.syncList()
}

func (m *Model) syncList() {
	items := make([]list.Item, len(m.tickets))
	for i, t := range m.tickets {
		t.AnimFrame = m.animFrame
		items[i] = ticketItem{info: t}
	}
	m.list.SetItems(items)
}
