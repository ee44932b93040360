package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/edsandoval/autopilot/internal/autopilot"
	"github.com/edsandoval/autopilot/internal/ticket"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return nm, cmd
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func started(ids ...string) autopilot.Started {
	refs := make([]autopilot.TicketRef, len(ids))
	for i, id := range ids {
		refs[i] = autopilot.TicketRef{ID: id, Name: id}
	}
	return autopilot.Started{RunID: "0b5c9d2e-run", Total: len(ids), Tickets: refs}
}

func TestNew(t *testing.T) {
	m := New(Config{})

	if !m.running {
		t.Error("expected running to be true by default")
	}
	if m.stopRequested || m.done || m.quitting || m.showHelp {
		t.Errorf("unexpected initial flags: %+v", m)
	}
	if m.startTime.IsZero() {
		t.Error("expected startTime to be set")
	}
	if m.Init() == nil {
		t.Error("expected Init to return a tick command")
	}
}

func TestUpdateWindowSize(t *testing.T) {
	m, _ := update(t, New(Config{}), tea.WindowSizeMsg{Width: 120, Height: 40})

	if m.width != 120 || m.height != 40 {
		t.Errorf("expected 120x40, got %dx%d", m.width, m.height)
	}
	if m.viewport.Width != 120-ticketPanelWidth-8 {
		t.Errorf("unexpected viewport width %d", m.viewport.Width)
	}
}

func TestUpdateEvents(t *testing.T) {
	m := New(Config{})
	m, _ = update(t, m, EventMsg{started("T-1", "T-2", "T-3")})

	if m.total != 3 || len(m.tickets) != 3 {
		t.Fatalf("expected 3 tickets, got total=%d tickets=%d", m.total, len(m.tickets))
	}
	for _, tk := range m.tickets {
		if tk.State != TicketQueued {
			t.Errorf("expected %s queued, got %s", tk.ID, tk.State)
		}
	}

	m, _ = update(t, m, EventMsg{autopilot.Processing{Current: 1, Total: 3, Ticket: autopilot.TicketRef{ID: "T-1"}}})
	if m.current != 1 || m.tickets[0].State != TicketWorking {
		t.Errorf("expected T-1 working, got %+v", m.tickets[0])
	}

	m, _ = update(t, m, OutputMsg{TicketID: "T-1", Text: "editing login.go\n"})
	if !strings.Contains(m.output, "editing login.go") {
		t.Errorf("expected output to contain agent text, got %q", m.output)
	}

	m, _ = update(t, m, EventMsg{autopilot.TicketCompleted{Current: 1, Total: 3, Outcome: autopilot.Outcome{
		Ticket: &ticket.Ticket{ID: "T-1"}, Success: true, TestBranch: "test/copilot/T-1",
	}}})
	if m.closed != 1 || m.tickets[0].State != TicketClosed || m.tickets[0].Detail != "test/copilot/T-1" {
		t.Errorf("expected T-1 closed, got %+v", m.tickets[0])
	}

	m, _ = update(t, m, EventMsg{autopilot.Processing{Current: 2, Total: 3, Ticket: autopilot.TicketRef{ID: "T-2"}}})
	m, _ = update(t, m, EventMsg{autopilot.TicketFailed{Current: 2, Total: 3, Error: "no changes detected",
		Outcome: autopilot.Outcome{Ticket: &ticket.Ticket{ID: "T-2"}}}})
	if m.failed != 1 || m.tickets[1].State != TicketFailed {
		t.Errorf("expected T-2 failed, got %+v", m.tickets[1])
	}
	if got := m.percent(); got < 0.66 || got > 0.67 {
		t.Errorf("expected progress 2/3, got %f", got)
	}

	m, _ = update(t, m, EventMsg{autopilot.Cancelled{Processed: 2, Remaining: 1}})
	if m.tickets[2].State != TicketSkipped {
		t.Errorf("expected T-3 skipped, got %s", m.tickets[2].State)
	}

	res := &autopilot.Result{Cancelled: true}
	m, _ = update(t, m, EventMsg{autopilot.Completed{Result: res}})
	if m.running || !m.done || m.Result() != res {
		t.Errorf("expected finished run, got running=%v done=%v", m.running, m.done)
	}
}

func TestUpdateNoTickets(t *testing.T) {
	m, _ := update(t, New(Config{}), EventMsg{autopilot.NoTickets{RunID: "r"}})
	if m.running || !m.done {
		t.Error("expected run to be done")
	}
	if !strings.Contains(m.output, "No pending tickets") {
		t.Errorf("unexpected output %q", m.output)
	}
}

func TestStopKey(t *testing.T) {
	stops := 0
	m := New(Config{RequestStop: func() { stops++ }})

	m, cmd := update(t, m, keyMsg("s"))
	if cmd != nil {
		t.Error("expected no command from stop key")
	}
	if !m.stopRequested || stops != 1 {
		t.Errorf("expected one stop request, got stopRequested=%v calls=%d", m.stopRequested, stops)
	}

	m, _ = update(t, m, keyMsg("s"))
	if stops != 1 {
		t.Errorf("expected stop to be requested once, got %d", stops)
	}
}

func TestQuitTwiceCancels(t *testing.T) {
	stops, cancels := 0, 0
	m := New(Config{
		RequestStop: func() { stops++ },
		Cancel:      func() { cancels++ },
	})

	m, cmd := update(t, m, keyMsg("ctrl+c"))
	if cmd != nil || m.quitting {
		t.Error("expected first interrupt to only request a stop")
	}
	if stops != 1 {
		t.Errorf("expected 1 stop request, got %d", stops)
	}

	m, cmd = update(t, m, keyMsg("ctrl+c"))
	if !m.quitting || cmd == nil {
		t.Error("expected second interrupt to quit")
	}
	if cancels != 1 {
		t.Errorf("expected 1 cancel, got %d", cancels)
	}
}

func TestQuitWhenDone(t *testing.T) {
	cancels := 0
	m := New(Config{Cancel: func() { cancels++ }})
	m, _ = update(t, m, EventMsg{autopilot.Completed{Result: &autopilot.Result{}}})

	m, cmd := update(t, m, keyMsg("q"))
	if !m.quitting || cmd == nil {
		t.Error("expected q to quit a finished run")
	}
	if cancels != 0 {
		t.Error("expected no cancel after the run finished")
	}
}

func TestHelpOverlay(t *testing.T) {
	m, _ := update(t, New(Config{}), tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = update(t, m, keyMsg("?"))
	if !m.showHelp {
		t.Fatal("expected help to be shown")
	}
	if !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Error("expected help overlay in view")
	}

	m, _ = update(t, m, keyMsg("x"))
	if m.showHelp {
		t.Error("expected any key to dismiss help")
	}
}

func TestTickAdvancesAnimation(t *testing.T) {
	m := New(Config{})
	m, cmd := update(t, m, tickMsg(time.Now()))
	if m.animFrame != 1 {
		t.Errorf("expected animFrame 1, got %d", m.animFrame)
	}
	if cmd == nil {
		t.Error("expected tick to reschedule")
	}
}

func TestView(t *testing.T) {
	m := New(Config{})
	if got := m.View(); got != "Loading...\n" {
		t.Errorf("expected loading view before size, got %q", got)
	}

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = update(t, m, EventMsg{started("T-1")})
	view := m.View()
	for _, want := range []string{"autopilot run 0b5c9d2e", "RUNNING", "Tickets", "Agent Output", "T-1"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}

	m, _ = update(t, m, keyMsg("s"))
	if !strings.Contains(m.View(), "STOPPING") {
		t.Error("expected STOPPING after stop request")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{65 * time.Second, "1:05"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestPlaceOverlay(t *testing.T) {
	bg := "aaaaa\nbbbbb\nccccc"
	got := placeOverlay(1, 1, "XY", bg)
	want := "aaaaa\nbXYbb\nccccc"
	if got != want {
		t.Errorf("placeOverlay = %q, want %q", got, want)
	}
}
