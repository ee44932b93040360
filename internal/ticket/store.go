package ticket

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Store persists ticket records.
type Store interface {
	// List returns every ticket in store order.
	List(ctx context.Context) ([]*Ticket, error)
	// Get finds a ticket by id or name, ignoring case.
	Get(ctx context.Context, idOrName string) (*Ticket, error)
	// Create adds a pending ticket whose name equals its id.
	Create(ctx context.Context, id, description string) (*Ticket, error)
	// Update applies a partial change, validating any status transition.
	Update(ctx context.Context, id string, p Patch) (*Ticket, error)
	// Delete removes a ticket, reporting whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	Close() error
}

// Patch is a partial ticket update. Nil fields are left unchanged.
type Patch struct {
	Name        *string
	Description *string
	Status      *Status
	StartedAt   *time.Time
	StoppedAt   *time.Time
	ClosedAt    *time.Time
	Branch      *string
	Error       *string
	Summary     *string
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// Apply mutates t according to p. t is left untouched on error.
func (p Patch) Apply(t *Ticket) error {
	next := t.Clone()

	if p.Status != nil && *p.Status != t.Status {
		if err := ValidateTransition(t.Status, *p.Status); err != nil {
			var ite *InvalidTransitionError
			if errors.As(err, &ite) {
				ite.ID = t.ID
			}
			return err
		}
		next.Status = *p.Status
		if next.Status != StatusError {
			next.Error = ""
		}
	}
	if p.Description != nil && *p.Description != t.Description {
		if t.Status == StatusWorking {
			return fmt.Errorf("%w: %s", ErrBusy, t.ID)
		}
		next.Description = *p.Description
	}
	if p.Name != nil {
		next.Name = *p.Name
	}
	// Timestamps are set once and never cleared.
	if p.StartedAt != nil {
		next.StartedAt = cloneTime(p.StartedAt)
	}
	if p.StoppedAt != nil {
		next.StoppedAt = cloneTime(p.StoppedAt)
	}
	if p.ClosedAt != nil {
		next.ClosedAt = cloneTime(p.ClosedAt)
	}
	if p.Branch != nil {
		next.Branch = *p.Branch
	}
	if p.Error != nil {
		if next.Status != StatusError {
			return fmt.Errorf("ticket %s: error message requires status %s", t.ID, StatusError)
		}
		next.Error = *p.Error
	}
	if p.Summary != nil {
		if next.Status != StatusClosed {
			return fmt.Errorf("ticket %s: summary requires status %s", t.ID, StatusClosed)
		}
		next.Summary = *p.Summary
	}

	*t = *next
	return nil
}

// newTicket builds a pending ticket after validating its id.
func newTicket(id, description string, now time.Time) (*Ticket, error) {
	id = strings.TrimSpace(id)
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	return &Ticket{
		ID:          id,
		Name:        id,
		Description: description,
		Status:      StatusPending,
		CreatedAt:   now.UTC(),
	}, nil
}

// Drivers supported by Open.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Open returns a store for driver at path. An empty driver is inferred
// from the file extension.
func Open(driver, path string) (Store, error) {
	if driver == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".db", ".sqlite", ".sqlite3":
			driver = DriverSQLite
		default:
			driver = DriverJSON
		}
	}
	switch driver {
	case DriverJSON:
		return NewJSONStore(path), nil
	case DriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown ticket store driver %q", driver)
	}
}
