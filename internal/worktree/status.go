package worktree

import (
	"context"
	"fmt"
	"strings"
)

// DefaultCommitMessage is used when no message is supplied.
func DefaultCommitMessage(ticketID string) string {
	return fmt.Sprintf("[feat]: Implement functionality for %s task", ticketID)
}

// Change is one entry of `git status --porcelain`.
type Change struct {
	Status string // two-letter XY code
	Path   string
}

// Changes lists uncommitted changes in a worktree.
func (m *Manager) Changes(ctx context.Context, path string) ([]Change, error) {
	out, err := m.git(ctx, path, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseStatus(string(out)), nil
}

// HasChanges reports whether a worktree has anything to commit.
func (m *Manager) HasChanges(ctx context.Context, path string) (bool, error) {
	changes, err := m.Changes(ctx, path)
	if err != nil {
		return false, err
	}
	return len(changes) > 0, nil
}

// Diff stages everything in the worktree and returns the staged diff.
func (m *Manager) Diff(ctx context.Context, path string) (string, error) {
	if _, err := m.git(ctx, path, "add", "-A"); err != nil {
		return "", err
	}
	out, err := m.git(ctx, path, "diff", "--cached")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Commit stages all changes and commits them. It returns false without
// committing when there is nothing to commit.
func (m *Manager) Commit(ctx context.Context, path, ticketID, message string) (bool, error) {
	if _, err := m.git(ctx, path, "add", "-A"); err != nil {
		return false, err
	}
	changed, err := m.HasChanges(ctx, path)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	if strings.TrimSpace(message) == "" {
		message = DefaultCommitMessage(ticketID)
	}
	if _, err := m.git(ctx, path, "commit", "-m", message); err != nil {
		return false, err
	}
	m.logger.Info("committed", "ticket", ticketID, "message", message)
	return true, nil
}

// parseStatus parses porcelain v1 lines of the form "XY PATH".
func parseStatus(output string) []Change {
	var changes []Change
	for _, line := range strings.Split(output, "\n") {
		if len(line) < 4 {
			continue
		}
		changes = append(changes, Change{Status: line[:2], Path: line[3:]})
	}
	return changes
}
