// Package autopilot resolves every pending ticket sequentially, with
// progress events and a cooperative stop switch.
package autopilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/edsandoval/autopilot/internal/pipeline"
	"github.com/edsandoval/autopilot/internal/ticket"
)

// ErrAlreadyRunning is returned by Start while a run is in progress.
var ErrAlreadyRunning = errors.New("autopilot is already running")

// Provisioner prepares ticket worktrees ahead of resolution.
type Provisioner interface {
	Ensure(ctx context.Context, ticketID string) (string, error)
}

// Resolver runs one ticket through the resolution pipeline.
type Resolver interface {
	Resolve(ctx context.Context, t *ticket.Ticket, opts pipeline.Options) *pipeline.Result
}

// Status is a read-only view of the orchestrator.
type Status struct {
	Running       bool
	StopRequested bool
	RunID         string
}

// Orchestrator runs autopilot batches. At most one run is active per
// orchestrator.
type Orchestrator struct {
	store     ticket.Store
	worktrees Provisioner
	resolver  Resolver
	logger    *slog.Logger

	// Now is the clock used for ticket timestamps. Defaults to time.Now.
	Now func() time.Time

	mu     sync.Mutex
	active *Run
}

// New creates an orchestrator.
func New(store ticket.Store, worktrees Provisioner, resolver Resolver, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     store,
		worktrees: worktrees,
		resolver:  resolver,
		logger:    logger.With("component", "autopilot"),
		Now:       time.Now,
	}
}

// Run is the handle of an in-progress batch.
type Run struct {
	id     string
	stop   atomic.Bool
	done   chan struct{}
	result *Result
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// RequestStop asks the run to stop before the next ticket. The ticket
// being processed always finishes.
func (r *Run) RequestStop() { r.stop.Store(true) }

// StopRequested reports whether a stop has been requested.
func (r *Run) StopRequested() bool { return r.stop.Load() }

// Done is closed when the run has finished.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes and returns its result.
func (r *Run) Wait() *Result {
	<-r.done
	return r.result
}

// Start selects pending tickets and processes them in the background.
// onProgress may be nil; it is called from the run's goroutine.
func (o *Orchestrator) Start(ctx context.Context, onProgress func(Event)) (*Run, error) {
	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	run := &Run{id: uuid.NewString(), done: make(chan struct{})}
	o.active = run
	o.mu.Unlock()

	tickets, err := o.pending(ctx)
	if err != nil {
		o.release(run)
		close(run.done)
		return nil, err
	}

	emit := func(ev Event) {
		if onProgress != nil {
			onProgress(ev)
		}
	}
	go o.execute(ctx, run, tickets, emit)
	return run, nil
}

// Run starts a batch and waits for it to finish.
func (o *Orchestrator) Run(ctx context.Context, onProgress func(Event)) (*Result, error) {
	run, err := o.Start(ctx, onProgress)
	if err != nil {
		return nil, err
	}
	return run.Wait(), nil
}

// RequestStop stops the active run at the next ticket boundary. It has
// no effect when nothing is running.
func (o *Orchestrator) RequestStop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		o.active.RequestStop()
	}
}

// Status reports whether a run is active.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return Status{}
	}
	return Status{Running: true, StopRequested: o.active.StopRequested(), RunID: o.active.id}
}

func (o *Orchestrator) release(run *Run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == run {
		o.active = nil
	}
}

// pending returns pending tickets oldest first, ties in store order.
func (o *Orchestrator) pending(ctx context.Context) ([]*ticket.Ticket, error) {
	all, err := o.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}
	var pending []*ticket.Ticket
	for _, t := range all {
		if t.Status == ticket.StatusPending {
			pending = append(pending, t)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *Run, tickets []*ticket.Ticket, emit func(Event)) {
	start := time.Now()
	res := &Result{RunID: run.id}
	log := o.logger.With("run", run.id)

	defer func() {
		run.result = res
		o.release(run)
		close(run.done)
	}()

	if len(tickets) == 0 {
		log.Info("no pending tickets")
		emit(NoTickets{RunID: run.id})
		res.Duration = time.Since(start)
		return
	}

	total := len(tickets)
	refs := make([]TicketRef, total)
	for i, t := range tickets {
		refs[i] = refOf(t)
	}
	log.Info("autopilot started", "tickets", total)
	emit(Started{RunID: run.id, Total: total, Tickets: refs})

	worktrees := o.provision(ctx, tickets, log)

	for i, t := range tickets {
		if run.StopRequested() || ctx.Err() != nil {
			log.Info("autopilot cancelled", "processed", i, "remaining", total-i)
			res.Cancelled = true
			emit(Cancelled{Processed: i, Remaining: total - i})
			break
		}

		current := i + 1
		outcome := o.process(ctx, t, worktrees[t.ID], current, total, emit, log)
		if outcome.Success {
			res.Completed = append(res.Completed, outcome)
			emit(TicketCompleted{Current: current, Total: total, Outcome: outcome})
		} else {
			res.Failed = append(res.Failed, outcome)
			emit(TicketFailed{Current: current, Total: total, Outcome: outcome, Error: outcome.Error})
		}
	}

	res.Duration = time.Since(start)
	log.Info("autopilot finished",
		"completed", len(res.Completed), "failed", len(res.Failed),
		"cancelled", res.Cancelled, "duration", res.Duration.Round(time.Millisecond))
	emit(Completed{Result: res})
}

// provision ensures a worktree for every ticket. Failures are logged and
// left for the ticket's own resolution to report.
func (o *Orchestrator) provision(ctx context.Context, tickets []*ticket.Ticket, log *slog.Logger) map[string]string {
	paths := make(map[string]string, len(tickets))
	for _, t := range tickets {
		path, err := o.worktrees.Ensure(ctx, t.ID)
		if err != nil {
			log.Warn("provisioning worktree failed", "ticket", t.ID, "error", err)
			continue
		}
		paths[t.ID] = path
	}
	return paths
}

// process resolves one ticket and records the outcome on its record.
func (o *Orchestrator) process(ctx context.Context, t *ticket.Ticket, worktree string, current, total int, emit func(Event), log *slog.Logger) Outcome {
	// Outcome writes must land even if ctx is cancelled mid-resolution.
	writeCtx := context.WithoutCancel(ctx)
	log = log.With("ticket", t.ID)

	started := o.Now()
	working, err := o.store.Update(writeCtx, t.ID, ticket.Patch{
		Status:    ticket.Ptr(ticket.StatusWorking),
		StartedAt: &started,
	})
	if err != nil {
		log.Error("marking ticket working failed", "error", err)
		return Outcome{Ticket: t, Error: err.Error()}
	}
	emit(Processing{Current: current, Total: total, Ticket: refOf(working)})

	pr := o.resolver.Resolve(ctx, working, pipeline.Options{Worktree: worktree})
	outcome := Outcome{
		Ticket:        working,
		Success:       pr.Success,
		Duration:      pr.Duration,
		Error:         pr.ErrorMessage(),
		Summary:       pr.Summary,
		TestBranch:    pr.TestBranch,
		CommitMessage: pr.CommitMessage,
		Warnings:      pr.Warnings,
	}

	var patch ticket.Patch
	if pr.Success {
		closed := o.Now()
		patch = ticket.Patch{Status: ticket.Ptr(ticket.StatusClosed), ClosedAt: &closed}
		if pr.Summary != "" {
			patch.Summary = ticket.Ptr(pr.Summary)
		}
	} else {
		patch = ticket.Patch{Status: ticket.Ptr(ticket.StatusError), Error: ticket.Ptr(pr.ErrorMessage())}
	}

	updated, err := o.store.Update(writeCtx, t.ID, patch)
	if err != nil {
		log.Error("recording outcome failed", "error", err)
		outcome.Success = false
		outcome.Error = fmt.Sprintf("recording outcome: %v", err)
		return outcome
	}
	outcome.Ticket = updated

	if pr.Success {
		log.Info("ticket closed", "test_branch", pr.TestBranch)
	} else {
		log.Warn("ticket failed", "error", pr.ErrorMessage())
	}
	return outcome
}
