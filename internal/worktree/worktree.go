// Package worktree maps tickets to isolated git worktrees on dedicated
// branches forked from a shared base branch.
package worktree

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/edsandoval/autopilot/internal/config"
	"github.com/edsandoval/autopilot/internal/ticket"
)

// ErrNotGitRepo is returned when a directory is not a git repository.
var ErrNotGitRepo = errors.New("not a git repository")

// Worktree is an active ticket worktree.
type Worktree struct {
	TicketID string
	Path     string
	Branch   string
}

// Manager creates, locates and destroys ticket worktrees.
type Manager struct {
	automationRoot string
	baseRepo       string
	baseBranch     string
	remote         string
	runner         CommandRunner
	logger         *slog.Logger
}

// NewManager creates a manager from configuration. A nil runner uses
// ExecRunner and a nil logger uses slog.Default.
func NewManager(cfg *config.Config, runner CommandRunner, logger *slog.Logger) *Manager {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseBranch := cfg.BaseBranch
	if baseBranch == "" {
		baseBranch = config.DefaultBaseBranch
	}
	return &Manager{
		automationRoot: cfg.AutomationRoot,
		baseRepo:       cfg.BaseRepositoryPath,
		baseBranch:     baseBranch,
		remote:         cfg.Remote,
		runner:         runner,
		logger:         logger.With("component", "worktree"),
	}
}

// IsGitRepo reports whether dir holds a .git directory or file.
func IsGitRepo(dir string) bool {
	if dir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// Path returns the conventional worktree path for a ticket.
func (m *Manager) Path(ticketID string) string {
	return filepath.Join(m.automationRoot, ticketID)
}

// Exists returns the worktree path when its directory is present. It
// does not consult git.
func (m *Manager) Exists(ticketID string) (string, bool) {
	if m.automationRoot == "" {
		return "", false
	}
	path := m.Path(ticketID)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return path, true
}

// Ensure returns the worktree for a ticket, creating its branch and
// checkout from the base branch when absent.
func (m *Manager) Ensure(ctx context.Context, ticketID string) (string, error) {
	if m.automationRoot == "" {
		return "", config.NewError("automation_root", "automation root path is not configured")
	}
	if m.baseRepo == "" {
		return "", config.NewError("base_repository_path", "base repository path is not configured")
	}
	if err := ticket.ValidateID(ticketID); err != nil {
		return "", err
	}
	if path, ok := m.Exists(ticketID); ok {
		m.logger.Debug("reusing worktree", "ticket", ticketID, "path", path)
		return path, nil
	}

	path := m.Path(ticketID)
	branch := ticket.BranchName(ticketID)
	log := m.logger.With("ticket", ticketID)

	if _, err := m.git(ctx, m.baseRepo, "checkout", m.baseBranch); err != nil {
		return "", err
	}
	if m.hasRemote(ctx) {
		if _, err := m.git(ctx, m.baseRepo, "pull", m.remote, m.baseBranch); err != nil {
			return "", err
		}
	} else {
		log.Debug("no remote configured, skipping pull", "remote", m.remote)
	}

	if _, err := m.git(ctx, m.baseRepo, "branch", branch, m.baseBranch); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return "", err
		}
		log.Debug("branch already exists", "branch", branch)
	}

	if err := os.MkdirAll(m.automationRoot, 0o755); err != nil {
		return "", fmt.Errorf("creating automation root: %w", err)
	}
	// Stale registrations from directories deleted by hand block `worktree add`.
	if _, err := m.git(ctx, m.baseRepo, "worktree", "prune"); err != nil {
		log.Debug("git worktree prune failed", "error", err)
	}
	if _, err := m.git(ctx, m.baseRepo, "worktree", "add", path, branch); err != nil {
		return "", err
	}

	log.Info("worktree created", "path", path, "branch", branch)
	return path, nil
}

// Remove force-removes a worktree, falling back to deleting the directory.
// It never fails; problems are logged and returned as warnings.
func (m *Manager) Remove(ctx context.Context, path string) []string {
	var warnings []string
	warn := func(msg string, err error) {
		m.logger.Warn(msg, "path", path, "error", err)
		warnings = append(warnings, fmt.Sprintf("%s: %v", msg, err))
	}

	if m.baseRepo != "" {
		_, err := m.git(ctx, m.baseRepo, "worktree", "remove", "--force", path)
		if err == nil {
			return nil
		}
		warn("git worktree remove failed", err)
	}

	if err := os.RemoveAll(path); err != nil {
		warn("removing worktree directory failed", err)
		return warnings
	}
	if m.baseRepo != "" {
		if _, err := m.git(ctx, m.baseRepo, "worktree", "prune"); err != nil {
			warn("git worktree prune failed", err)
		}
	}
	return warnings
}

// CreateTestBranch recreates test/copilot/<id> from the ticket branch. The
// base repository is left on the base branch; the new branch is never
// checked out.
func (m *Manager) CreateTestBranch(ctx context.Context, ticketID string) (string, error) {
	if m.baseRepo == "" {
		return "", config.NewError("base_repository_path", "base repository path is not configured")
	}
	test := ticket.TestBranchName(ticketID)

	if _, err := m.git(ctx, m.baseRepo, "checkout", m.baseBranch); err != nil {
		return "", err
	}
	if m.BranchExists(ctx, m.baseRepo, test) {
		if err := m.DeleteBranch(ctx, m.baseRepo, test); err != nil {
			return "", err
		}
	}
	if _, err := m.git(ctx, m.baseRepo, "branch", test, ticket.BranchName(ticketID)); err != nil {
		return "", err
	}

	m.logger.Info("test branch created", "ticket", ticketID, "branch", test)
	return test, nil
}

// BranchExists reports whether a local branch exists in repo.
func (m *Manager) BranchExists(ctx context.Context, repo, branch string) bool {
	_, err := m.runner.Run(ctx, "git", "-C", repo, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// DeleteBranch force-deletes a local branch in repo.
func (m *Manager) DeleteBranch(ctx context.Context, repo, branch string) error {
	_, err := m.git(ctx, repo, "branch", "-D", branch)
	return err
}

// Teardown removes a ticket's worktree and both of its branches. Failures
// never abort the teardown and are returned as warnings.
func (m *Manager) Teardown(ctx context.Context, ticketID string) []string {
	var warnings []string

	if path, ok := m.Exists(ticketID); ok {
		warnings = append(warnings, m.Remove(ctx, path)...)
	}
	if !IsGitRepo(m.baseRepo) {
		return warnings
	}
	for _, branch := range []string{ticket.BranchName(ticketID), ticket.TestBranchName(ticketID)} {
		if !m.BranchExists(ctx, m.baseRepo, branch) {
			continue
		}
		if err := m.DeleteBranch(ctx, m.baseRepo, branch); err != nil {
			m.logger.Warn("deleting branch failed", "ticket", ticketID, "branch", branch, "error", err)
			warnings = append(warnings, fmt.Sprintf("deleting branch %s: %v", branch, err))
		}
	}
	return warnings
}

// List returns the ticket worktrees known to the base repository.
func (m *Manager) List(ctx context.Context) ([]*Worktree, error) {
	if m.baseRepo == "" {
		return nil, config.NewError("base_repository_path", "base repository path is not configured")
	}
	out, err := m.git(ctx, m.baseRepo, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreeList(out)
}

func (m *Manager) hasRemote(ctx context.Context) bool {
	if m.remote == "" {
		return false
	}
	_, err := m.runner.Run(ctx, "git", "-C", m.baseRepo, "remote", "get-url", m.remote)
	return err == nil
}

// git runs a git subcommand in dir, wrapping failures in *GitError.
func (m *Manager) git(ctx context.Context, dir string, args ...string) ([]byte, error) {
	out, err := m.runner.Run(ctx, "git", append([]string{"-C", dir}, args...)...)
	if err != nil {
		return out, &GitError{Dir: dir, Args: args, Err: err}
	}
	return out, nil
}

// parseWorktreeList parses `git worktree list --porcelain`, keeping only
// worktrees on ticket branches:
//
//	worktree /path/to/worktree
//	HEAD <commit>
//	branch refs/heads/<branch>
//	<blank line>
func parseWorktreeList(output []byte) ([]*Worktree, error) {
	var worktrees []*Worktree
	var current *Worktree

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "worktree "):
			current = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch ") && current != nil:
			branch := strings.TrimPrefix(line, "branch refs/heads/")
			if strings.HasPrefix(branch, ticket.BranchPrefix) {
				current.Branch = branch
				current.TicketID = strings.TrimPrefix(branch, ticket.BranchPrefix)
				worktrees = append(worktrees, current)
			}
			current = nil
		case line == "":
			current = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parsing worktree list: %w", err)
	}
	return worktrees, nil
}
