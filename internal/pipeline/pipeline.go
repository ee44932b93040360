// Package pipeline drives one ticket through a resolution attempt:
// validate, acquire a worktree, run the agent, commit, enrich and publish
// a test branch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edsandoval/autopilot/internal/agent"
	"github.com/edsandoval/autopilot/internal/config"
	"github.com/edsandoval/autopilot/internal/enrich"
	"github.com/edsandoval/autopilot/internal/ticket"
	"github.com/edsandoval/autopilot/internal/worktree"
)

// ErrNoChanges means the agent ran but left the worktree unchanged.
var ErrNoChanges = errors.New("no changes detected")

// Worktrees is the subset of worktree.Manager the pipeline uses.
type Worktrees interface {
	Ensure(ctx context.Context, ticketID string) (string, error)
	Remove(ctx context.Context, path string) []string
	HasChanges(ctx context.Context, path string) (bool, error)
	Diff(ctx context.Context, path string) (string, error)
	Commit(ctx context.Context, path, ticketID, message string) (bool, error)
	CreateTestBranch(ctx context.Context, ticketID string) (string, error)
}

// Enricher generates commit messages and change reports.
type Enricher interface {
	CommitMessage(ctx context.Context, diff, ticketID string) (string, error)
	Summarize(ctx context.Context, ticketID, diff, commitMessage string) (string, error)
}

// Options configures a single resolution.
type Options struct {
	// Worktree is a pre-provisioned worktree path. Empty means ensure one.
	Worktree string
}

// Result is the outcome of one resolution attempt.
type Result struct {
	TicketID      string
	Success       bool
	HasChanges    bool
	Worktree      string
	TestBranch    string
	CommitMessage string
	Summary       string
	Duration      time.Duration

	// Err is the failure, if any. It is never returned as an error value.
	Err error

	// Warnings lists cleanup problems that did not affect the outcome.
	Warnings []string
}

// ErrorMessage returns the failure text, or "" on success.
func (r *Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// NoChanges reports whether the attempt ended without a diff.
func (r *Result) NoChanges() bool {
	return errors.Is(r.Err, ErrNoChanges)
}

// Pipeline resolves tickets one at a time.
type Pipeline struct {
	cfg       *config.Config
	worktrees Worktrees
	agent     agent.Agent
	enricher  Enricher
	prompts   *PromptBuilder
	logger    *slog.Logger

	// OnOutput receives agent output chunks as they arrive (optional).
	OnOutput func(ticketID, chunk string)
}

// New creates a pipeline. enricher may be nil to disable enrichment.
func New(cfg *config.Config, worktrees Worktrees, a agent.Agent, enricher Enricher, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:       cfg,
		worktrees: worktrees,
		agent:     a,
		enricher:  enricher,
		prompts:   NewPromptBuilder(cfg),
		logger:    logger.With("component", "pipeline"),
	}
}

// Resolve runs the full resolution for t. Failures are reported in the
// result, never returned.
func (p *Pipeline) Resolve(ctx context.Context, t *ticket.Ticket, opts Options) *Result {
	start := time.Now()
	res := &Result{TicketID: t.ID}
	defer func() { res.Duration = time.Since(start) }()
	log := p.logger.With("ticket", t.ID)

	if err := p.validate(); err != nil {
		log.Error("configuration invalid", "error", err)
		res.Err = err
		return res
	}

	path := opts.Worktree
	if path == "" {
		var err error
		if path, err = p.worktrees.Ensure(ctx, t.ID); err != nil {
			log.Error("acquiring worktree failed", "error", err)
			res.Err = err
			return res
		}
	}
	res.Worktree = path

	if err := p.runAgent(ctx, t, path); err != nil {
		log.Error("agent failed", "error", err)
		res.Err = err
		if p.cfg.ShouldCleanupOnError() {
			res.Warnings = p.worktrees.Remove(ctx, path)
			res.Worktree = ""
		}
		return res
	}

	changed, err := p.worktrees.HasChanges(ctx, path)
	if err != nil {
		res.Err = err
		return res
	}
	if !changed {
		log.Warn("agent produced no changes", "worktree", path)
		res.Err = ErrNoChanges
		return res
	}
	res.HasChanges = true

	diff, err := p.worktrees.Diff(ctx, path)
	if err != nil {
		log.Warn("reading diff failed", "error", err)
	}

	message := p.commitMessage(ctx, t.ID, diff)
	committed, err := p.worktrees.Commit(ctx, path, t.ID, message)
	if err != nil {
		log.Error("commit failed", "error", err)
		res.Err = err
		return res
	}
	if !committed {
		res.HasChanges = false
		res.Err = ErrNoChanges
		return res
	}
	res.CommitMessage = message
	res.Summary = p.summarize(ctx, t.ID, diff, message)

	branch, err := p.worktrees.CreateTestBranch(ctx, t.ID)
	if err != nil {
		log.Error("creating test branch failed", "error", err)
		res.Err = err
		return res
	}
	res.TestBranch = branch
	res.Success = true

	log.Info("ticket resolved", "test_branch", branch, "duration", time.Since(start).Round(time.Millisecond))
	return res
}

// validate checks required paths and agent reachability without side effects.
func (p *Pipeline) validate() error {
	if err := p.cfg.RequirePaths(); err != nil {
		return err
	}
	if p.agent == nil {
		return config.NewError("agent", "no code-generation agent configured")
	}
	if !p.agent.Available() {
		return config.NewError("agent", fmt.Sprintf("%s CLI is not installed or not in PATH", p.agent.Name()))
	}
	return nil
}

func (p *Pipeline) runAgent(ctx context.Context, t *ticket.Ticket, dir string) error {
	prompt, err := p.prompts.Build(t)
	if err != nil {
		return &agent.ExecutionError{Agent: p.agent.Name(), Message: "building prompt", Err: err}
	}

	opts := agent.RunOpts{
		Dir:     dir,
		Model:   p.cfg.Model,
		Timeout: p.cfg.Agent.Timeout(),
	}

	var done chan struct{}
	if p.OnOutput != nil {
		stream := make(chan string, 100)
		done = make(chan struct{})
		opts.Stream = stream
		go func() {
			defer close(done)
			for chunk := range stream {
				p.OnOutput(t.ID, chunk)
			}
		}()
		defer func() {
			close(stream)
			<-done
		}()
	}

	result, err := p.agent.Run(ctx, prompt, opts)
	if err != nil {
		var execErr *agent.ExecutionError
		if errors.As(err, &execErr) {
			return err
		}
		return &agent.ExecutionError{Agent: p.agent.Name(), Message: err.Error(), Err: err}
	}

	switch sig, reason := agent.ParseSignal(result.Output); sig {
	case agent.SignalBlocked:
		return &agent.ExecutionError{Agent: p.agent.Name(), Message: "blocked: " + reason}
	case agent.SignalEject:
		return &agent.ExecutionError{Agent: p.agent.Name(), Message: "ejected: " + reason}
	}
	return nil
}

// commitMessage falls back to the deterministic default on any failure.
func (p *Pipeline) commitMessage(ctx context.Context, ticketID, diff string) string {
	if p.enricher != nil && diff != "" {
		msg, err := p.enricher.CommitMessage(ctx, diff, ticketID)
		if err == nil && msg != "" {
			return msg
		}
		p.logger.Warn("commit message enrichment failed, using default", "ticket", ticketID, "error", err)
	}
	return worktree.DefaultCommitMessage(ticketID)
}

// summarize always returns a report, substituting a failure notice.
func (p *Pipeline) summarize(ctx context.Context, ticketID, diff, message string) string {
	if p.enricher == nil {
		return enrich.FailureReport(ticketID, nil)
	}
	summary, err := p.enricher.Summarize(ctx, ticketID, diff, message)
	if err != nil {
		p.logger.Warn("summary enrichment failed", "ticket", ticketID, "error", err)
		return enrich.FailureReport(ticketID, err)
	}
	return summary
}
