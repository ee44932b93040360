package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/edsandoval/autopilot/internal/autopilot"
	"github.com/edsandoval/autopilot/internal/config"
	"github.com/edsandoval/autopilot/internal/tui"
	"github.com/edsandoval/autopilot/internal/watch"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resolve every pending ticket, oldest first",
	Long: `Run processes all pending tickets one at a time in creation order. Each
ticket is marked working, resolved in its worktree and then closed or
marked error. Press s (or interrupt once) to stop after the current
ticket; interrupt twice to cancel it.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonl, _ := cmd.Flags().GetBool("jsonl")
		headless, _ := cmd.Flags().GetBool("headless")
		if jsonl || !isTerminal() {
			headless = true
		}

		var res *autopilot.Result
		var err error
		if headless {
			res, err = runHeadless(cmd.Context(), jsonl, cmd.OutOrStdout())
		} else {
			res, err = runTUI(cmd.Context(), cmd.OutOrStdout())
		}
		if err != nil {
			return err
		}
		return resultError(res)
	},
}

func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// resultError turns a partially failed run into exit status 1.
func resultError(res *autopilot.Result) error {
	if res == nil || len(res.Failed) == 0 {
		return nil
	}
	return &exitError{code: exitFailure, err: fmt.Errorf("%d of %d ticket(s) failed", len(res.Failed), res.Processed())}
}

// interrupts stops the run on the first signal and cancels it on the second.
func interrupts(run *autopilot.Run, cancel context.CancelFunc, onFirst func()) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigs)
		count := 0
		for {
			select {
			case <-run.Done():
				return
			case <-sigs:
				count++
				if count == 1 {
					run.RequestStop()
					if onFirst != nil {
						onFirst()
					}
					continue
				}
				cancel()
				return
			}
		}
	}()
}

func runHeadless(ctx context.Context, jsonl bool, stdout io.Writer) (*autopilot.Result, error) {
	a, err := loadApp(os.Stderr)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	out := autopilot.NewHeadlessOutput(jsonl)
	out.SetWriter(stdout)

	p, err := a.pipeline(out.Output)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	orch := autopilot.New(a.store, a.worktrees, p, a.logger)
	run, err := orch.Start(ctx, out.Handle)
	if err != nil {
		return nil, err
	}
	interrupts(run, func() {
		out.Interrupted()
		cancel()
	}, func() {
		a.logger.Warn("stopping after the current ticket, interrupt again to cancel it")
	})
	return run.Wait(), nil
}

func runTUI(ctx context.Context, stdout io.Writer) (*autopilot.Result, error) {
	// The terminal belongs to the TUI; logs go to a file.
	logPath := filepath.Join(config.DataDir(), "autopilot.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	defer logFile.Close()

	a, err := loadApp(logFile)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var orch *autopilot.Orchestrator
	prog := tea.NewProgram(tui.New(tui.Config{
		RequestStop: func() { orch.RequestStop() },
		Cancel:      cancel,
	}), tea.WithAltScreen(), tea.WithContext(ctx))

	p, err := a.pipeline(func(ticketID, chunk string) {
		prog.Send(tui.OutputMsg{TicketID: ticketID, Text: chunk})
	})
	if err != nil {
		return nil, err
	}
	orch = autopilot.New(a.store, a.worktrees, p, a.logger)

	run, err := orch.Start(ctx, func(ev autopilot.Event) {
		prog.Send(tui.EventMsg{Event: ev})
	})
	if err != nil {
		return nil, err
	}
	interrupts(run, cancel, nil)

	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		a.logger.Error("tui exited", "error", err)
	}

	// Quitting early cancels the run; wait for its outcome to be recorded.
	res := run.Wait()
	fmt.Fprintf(stdout, "Closed %d, failed %d", len(res.Completed), len(res.Failed))
	if res.Cancelled {
		fmt.Fprint(stdout, " (stopped early)")
	}
	fmt.Fprintf(stdout, " in %s\n", res.Duration.Round(time.Second))
	for _, o := range res.Failed {
		fmt.Fprintf(stdout, "  %s: %s\n", o.Ticket.ID, o.Error)
	}
	return res, nil
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve a single ticket now",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		jsonl, _ := cmd.Flags().GetBool("jsonl")
		out := autopilot.NewHeadlessOutput(jsonl)
		out.SetWriter(cmd.OutOrStdout())

		p, err := a.pipeline(out.Output)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		t, res, err := a.lifecycle(p).Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
		}
		if !res.Success {
			var ce *config.Error
			if errors.As(res.Err, &ce) {
				return res.Err
			}
			return &exitError{code: exitFailure, err: fmt.Errorf("%s: %w", t.ID, res.Err)}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Closed %s\nCommit: %s\nTest branch: %s\n", t.ID, res.CommitMessage, res.TestBranch)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run autopilot whenever tickets change or on a schedule",
	Long: `Watch runs autopilot at startup, whenever the ticket store changes and,
with --schedule, on a cron schedule such as "*/15 * * * *" or "@every 1h".
Output is headless.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		jsonl, _ := cmd.Flags().GetBool("jsonl")
		out := autopilot.NewHeadlessOutput(jsonl)
		out.SetWriter(cmd.OutOrStdout())

		p, err := a.pipeline(out.Output)
		if err != nil {
			return err
		}

		opts := watch.Options{
			StorePath:  a.cfg.Store.Path,
			Schedule:   a.cfg.Watch.Schedule,
			NoFS:       a.cfg.Watch.NoFS,
			OnProgress: out.Handle,
		}
		if cmd.Flags().Changed("schedule") {
			opts.Schedule, _ = cmd.Flags().GetString("schedule")
		}
		if noFS, _ := cmd.Flags().GetBool("no-fs"); noFS {
			opts.NoFS = true
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		orch := autopilot.New(a.store, a.worktrees, p, a.logger)
		err = watch.New(orch, opts, a.logger).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	runCmd.Flags().Bool("headless", false, "print progress lines instead of the TUI")
	runCmd.Flags().Bool("jsonl", false, "print progress as JSON Lines (implies --headless)")
	resolveCmd.Flags().Bool("jsonl", false, "print agent output as JSON Lines")
	watchCmd.Flags().Bool("jsonl", false, "print progress as JSON Lines")
	watchCmd.Flags().String("schedule", "", "cron schedule for periodic runs")
	watchCmd.Flags().Bool("no-fs", false, "poll instead of watching the store file")

	rootCmd.AddCommand(runCmd, resolveCmd, watchCmd)
}
