// Package lifecycle implements the interactive, one-ticket-at-a-time
// operations: start, stop, close, resolve and delete.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edsandoval/autopilot/internal/pipeline"
	"github.com/edsandoval/autopilot/internal/ticket"
	"github.com/edsandoval/autopilot/internal/worktree"
)

// Worktrees is the worktree surface the service needs.
type Worktrees interface {
	Ensure(ctx context.Context, ticketID string) (string, error)
	Teardown(ctx context.Context, ticketID string) []string
}

// Resolver runs one ticket through the resolution pipeline.
type Resolver interface {
	Resolve(ctx context.Context, t *ticket.Ticket, opts pipeline.Options) *pipeline.Result
}

// Service applies user-driven lifecycle changes to tickets.
type Service struct {
	store     ticket.Store
	worktrees Worktrees
	resolver  Resolver
	baseRepo  string
	logger    *slog.Logger

	// Now stamps lifecycle timestamps. Defaults to time.Now.
	Now func() time.Time
}

// New creates a service. baseRepo is the base repository path; when it
// is not a git repository, Start marks tickets working without a branch.
func New(store ticket.Store, worktrees Worktrees, resolver Resolver, baseRepo string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		worktrees: worktrees,
		resolver:  resolver,
		baseRepo:  baseRepo,
		logger:    logger.With("component", "lifecycle"),
		Now:       time.Now,
	}
}

// Create adds a pending ticket.
func (s *Service) Create(ctx context.Context, id, description string) (*ticket.Ticket, error) {
	t, err := s.store.Create(ctx, id, description)
	if err != nil {
		return nil, err
	}
	s.logger.Info("ticket created", "ticket", t.ID)
	return t, nil
}

// Edit changes a ticket's name or description. Nil leaves a field as is.
func (s *Service) Edit(ctx context.Context, idOrName string, name, description *string) (*ticket.Ticket, error) {
	t, err := s.store.Get(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	return s.store.Update(ctx, t.ID, ticket.Patch{Name: name, Description: description})
}

// Start begins manual work on a ticket. A pending ticket passes through
// branching while its worktree and branch are created; a stopped ticket
// goes straight back to working.
func (s *Service) Start(ctx context.Context, idOrName string) (*ticket.Ticket, error) {
	t, err := s.store.Get(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if err := ticket.ValidateTransition(t.Status, ticket.StatusWorking); err != nil {
		return nil, s.transitionError(t, err)
	}
	log := s.logger.With("ticket", t.ID)

	patch := ticket.Patch{Status: ticket.Ptr(ticket.StatusWorking)}
	if t.StartedAt == nil {
		now := s.Now()
		patch.StartedAt = &now
	}

	if !worktree.IsGitRepo(s.baseRepo) {
		log.Info("base repository is not a git repository, starting without a branch")
		return s.store.Update(ctx, t.ID, patch)
	}

	if t.Status == ticket.StatusPending {
		if _, err := s.store.Update(ctx, t.ID, ticket.Patch{Status: ticket.Ptr(ticket.StatusBranching)}); err != nil {
			return nil, err
		}
	}

	if _, err := s.worktrees.Ensure(ctx, t.ID); err != nil {
		log.Error("creating worktree failed", "error", err)
		if t.Status == ticket.StatusPending {
			if _, uerr := s.store.Update(context.WithoutCancel(ctx), t.ID, ticket.Patch{
				Status: ticket.Ptr(ticket.StatusError),
				Error:  ticket.Ptr(err.Error()),
			}); uerr != nil {
				log.Error("recording failure failed", "error", uerr)
			}
		}
		return nil, err
	}

	patch.Branch = ticket.Ptr(ticket.BranchName(t.ID))
	started, err := s.store.Update(ctx, t.ID, patch)
	if err != nil {
		return nil, err
	}
	log.Info("ticket started", "branch", started.Branch)
	return started, nil
}

// Stop pauses work on a ticket.
func (s *Service) Stop(ctx context.Context, idOrName string) (*ticket.Ticket, error) {
	t, err := s.store.Get(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	return s.store.Update(ctx, t.ID, ticket.Patch{
		Status:    ticket.Ptr(ticket.StatusStopped),
		StoppedAt: &now,
	})
}

// Close marks a ticket done without running the pipeline.
func (s *Service) Close(ctx context.Context, idOrName string) (*ticket.Ticket, error) {
	t, err := s.store.Get(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	return s.store.Update(ctx, t.ID, ticket.Patch{
		Status:   ticket.Ptr(ticket.StatusClosed),
		ClosedAt: &now,
	})
}

// Resolve runs the pipeline for one ticket and records the outcome the
// same way an autopilot run does. The pipeline result is returned even
// when it failed; err is reserved for store problems.
func (s *Service) Resolve(ctx context.Context, idOrName string) (*ticket.Ticket, *pipeline.Result, error) {
	t, err := s.store.Get(ctx, idOrName)
	if err != nil {
		return nil, nil, err
	}
	if t.Status != ticket.StatusWorking {
		now := s.Now()
		if t, err = s.store.Update(ctx, t.ID, ticket.Patch{
			Status:    ticket.Ptr(ticket.StatusWorking),
			StartedAt: &now,
		}); err != nil {
			return nil, nil, err
		}
	}

	res := s.resolver.Resolve(ctx, t, pipeline.Options{})

	var patch ticket.Patch
	if res.Success {
		now := s.Now()
		patch = ticket.Patch{Status: ticket.Ptr(ticket.StatusClosed), ClosedAt: &now}
		if res.Summary != "" {
			patch.Summary = ticket.Ptr(res.Summary)
		}
	} else {
		patch = ticket.Patch{Status: ticket.Ptr(ticket.StatusError), Error: ticket.Ptr(res.ErrorMessage())}
	}
	updated, err := s.store.Update(context.WithoutCancel(ctx), t.ID, patch)
	if err != nil {
		return nil, res, fmt.Errorf("recording outcome: %w", err)
	}
	return updated, res, nil
}

// Delete tears down a ticket's worktree and branches, then removes the
// record. Teardown problems are returned as warnings and do not block
// the deletion.
func (s *Service) Delete(ctx context.Context, idOrName string) ([]string, error) {
	t, err := s.store.Get(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if t.Status == ticket.StatusWorking || t.Status == ticket.StatusBranching {
		return nil, fmt.Errorf("%w: %s is %s", ticket.ErrBusy, t.ID, t.Status)
	}

	warnings := s.worktrees.Teardown(ctx, t.ID)
	for _, w := range warnings {
		s.logger.Warn("teardown", "ticket", t.ID, "warning", w)
	}

	ok, err := s.store.Delete(ctx, t.ID)
	if err != nil {
		return warnings, err
	}
	if !ok {
		return warnings, fmt.Errorf("%w: %s", ticket.ErrNotFound, t.ID)
	}
	s.logger.Info("ticket deleted", "ticket", t.ID)
	return warnings, nil
}

func (s *Service) transitionError(t *ticket.Ticket, err error) error {
	if ite, ok := err.(*ticket.InvalidTransitionError); ok {
		ite.ID = t.ID
	}
	return err
}
