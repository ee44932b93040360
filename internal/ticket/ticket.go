package ticket

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusPending   Status = "pending"
	StatusBranching Status = "branching"
	StatusWorking   Status = "working"
	StatusStopped   Status = "stopped"
	StatusClosed    Status = "closed"
	StatusError     Status = "error"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending, StatusBranching, StatusWorking,
	StatusStopped, StatusClosed, StatusError,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether automated flows may no longer move the ticket.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusError
}

// BranchPrefix is prepended to the ticket id to form its working branch.
const BranchPrefix = "copilot/"

// TestBranchPrefix is prepended to the working branch to form the review branch.
const TestBranchPrefix = "test/"

// BranchName returns the working branch for a ticket id.
func BranchName(id string) string {
	return BranchPrefix + id
}

// TestBranchName returns the review branch for a ticket id.
func TestBranchName(id string) string {
	return TestBranchPrefix + BranchPrefix + id
}

// Ticket is a unit of work tracked through the resolution lifecycle.
type Ticket struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	StoppedAt   *time.Time `json:"stoppedAt,omitempty"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
	Branch      string     `json:"branch,omitempty"`
	Error       string     `json:"error,omitempty"`
	Summary     string     `json:"summary,omitempty"`
}

// Clone returns a deep copy of t.
func (t *Ticket) Clone() *Ticket {
	c := *t
	c.StartedAt = cloneTime(t.StartedAt)
	c.StoppedAt = cloneTime(t.StoppedAt)
	c.ClosedAt = cloneTime(t.ClosedAt)
	return &c
}

// Matches reports whether idOrName refers to t, ignoring case.
func (t *Ticket) Matches(idOrName string) bool {
	return strings.EqualFold(t.ID, idOrName) || strings.EqualFold(t.Name, idOrName)
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var (
	// ErrNotFound is returned when no ticket matches an id or name.
	ErrNotFound = errors.New("ticket not found")

	// ErrExists is returned when creating a ticket whose id is taken.
	ErrExists = errors.New("ticket already exists")

	// ErrBusy is returned when editing the description of a working ticket.
	ErrBusy = errors.New("ticket is being worked on")

	// ErrInvalidID is returned for ids that cannot name a branch and directory.
	ErrInvalidID = errors.New("invalid ticket id")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateID checks that id is usable as a branch suffix and directory name.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) || strings.Contains(id, "..") ||
		strings.HasSuffix(id, ".") || strings.HasSuffix(id, ".lock") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// transitions is the adjacency set of legal status changes.
var transitions = map[Status][]Status{
	StatusPending:   {StatusBranching, StatusWorking},
	StatusBranching: {StatusWorking, StatusError},
	StatusWorking:   {StatusStopped, StatusClosed, StatusError},
	StatusStopped:   {StatusWorking, StatusClosed},
}

// InvalidTransitionError reports a status change outside the lifecycle.
type InvalidTransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
	}
	return fmt.Sprintf("ticket %s: invalid transition %s -> %s", e.ID, e.From, e.To)
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an *InvalidTransitionError unless from -> to is legal.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
