package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edsandoval/autopilot/internal/ticket"
)

var worktreeCmd = &cobra.Command{
	Use:     "worktree",
	Aliases: []string{"wt"},
	Short:   "Inspect and manage ticket worktrees",
}

var worktreeEnsureCmd = &cobra.Command{
	Use:   "ensure <id>",
	Short: "Create (or reuse) the worktree for a ticket",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		id := args[0]
		if t, err := a.store.Get(cmd.Context(), id); err == nil {
			id = t.ID
		}
		path, err := a.worktrees.Ensure(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ticket.BranchName(id), path)
		return nil
	},
}

var worktreeRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a ticket's worktree, keeping its branches",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		path, ok := a.worktrees.Exists(args[0])
		if !ok {
			return fmt.Errorf("no worktree for %s", args[0])
		}
		for _, w := range a.worktrees.Remove(cmd.Context(), path) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", path)
		return nil
	},
}

var worktreeListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List ticket worktrees",
	Args:    usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		wts, err := a.worktrees.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(wts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No worktrees.")
			return nil
		}
		for _, wt := range wts {
			fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-30s %s\n", wt.TicketID, wt.Branch, wt.Path)
		}
		return nil
	},
}

func init() {
	worktreeCmd.AddCommand(worktreeEnsureCmd, worktreeRemoveCmd, worktreeListCmd)
	rootCmd.AddCommand(worktreeCmd)
}
