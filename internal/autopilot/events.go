package autopilot

import (
	"time"

	"github.com/edsandoval/autopilot/internal/ticket"
)

// EventKind names an event variant.
type EventKind string

const (
	KindNoTickets       EventKind = "no_tickets"
	KindStarted         EventKind = "started"
	KindProcessing      EventKind = "processing"
	KindTicketCompleted EventKind = "ticket_completed"
	KindTicketFailed    EventKind = "ticket_failed"
	KindCancelled       EventKind = "cancelled"
	KindCompleted       EventKind = "completed"
)

// Event is a progress notification. The set of variants is closed: only
// the types in this file implement it.
type Event interface {
	Kind() EventKind
	sealed()
}

// TicketRef identifies a ticket in events.
type TicketRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func refOf(t *ticket.Ticket) TicketRef {
	return TicketRef{ID: t.ID, Name: t.Name}
}

// Outcome records how one ticket's resolution ended.
type Outcome struct {
	Ticket        *ticket.Ticket
	Success       bool
	Duration      time.Duration
	Error         string
	Summary       string
	TestBranch    string
	CommitMessage string
	Warnings      []string
}

// Result aggregates a whole run. Partial success is always visible.
type Result struct {
	RunID     string
	Completed []Outcome
	Failed    []Outcome
	Cancelled bool
	Duration  time.Duration
}

// Processed returns the number of tickets attempted.
func (r *Result) Processed() int {
	return len(r.Completed) + len(r.Failed)
}

// NoTickets is emitted when nothing is pending.
type NoTickets struct {
	RunID string
}

// Started is emitted once the batch is selected.
type Started struct {
	RunID   string
	Total   int
	Tickets []TicketRef
}

// Processing is emitted when a ticket has been marked working.
type Processing struct {
	Current int
	Total   int
	Ticket  TicketRef
}

// TicketCompleted is emitted when a ticket closes successfully.
type TicketCompleted struct {
	Current int
	Total   int
	Outcome Outcome
}

// TicketFailed is emitted when a ticket ends in error.
type TicketFailed struct {
	Current int
	Total   int
	Outcome Outcome
	Error   string
}

// Cancelled is emitted when a stop request is honored.
type Cancelled struct {
	Processed int
	Remaining int
}

// Completed is emitted last with the aggregate result.
type Completed struct {
	Result *Result
}

func (NoTickets) Kind() EventKind       { return KindNoTickets }
func (Started) Kind() EventKind         { return KindStarted }
func (Processing) Kind() EventKind      { return KindProcessing }
func (TicketCompleted) Kind() EventKind { return KindTicketCompleted }
func (TicketFailed) Kind() EventKind    { return KindTicketFailed }
func (Cancelled) Kind() EventKind       { return KindCancelled }
func (Completed) Kind() EventKind       { return KindCompleted }

func (NoTickets) sealed()       {}
func (Started) sealed()         {}
func (Processing) sealed()      {}
func (TicketCompleted) sealed() {}
func (TicketFailed) sealed()    {}
func (Cancelled) sealed()       {}
func (Completed) sealed()       {}
