package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/edsandoval/autopilot/internal/agent"
	"github.com/edsandoval/autopilot/internal/config"
	"github.com/edsandoval/autopilot/internal/enrich"
	"github.com/edsandoval/autopilot/internal/lifecycle"
	"github.com/edsandoval/autopilot/internal/pipeline"
	"github.com/edsandoval/autopilot/internal/ticket"
	"github.com/edsandoval/autopilot/internal/worktree"
)

var version = "dev"

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// exitError carries a process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error {
	return &exitError{code: exitUsage, err: err}
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// exitCode maps an error returned by a command to the process status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var ce *config.Error
	if errors.As(err, &ce) {
		return exitUsage
	}
	return exitFailure
}

var rootCmd = &cobra.Command{
	Use:   "autopilot",
	Short: "Resolve development tickets with a coding agent in isolated git worktrees",
	Long: `Autopilot tracks development tickets and resolves them unattended. Each
ticket gets its own git worktree on a copilot/<id> branch forked from the
base branch; a coding agent makes the change, the result is committed and
a test/copilot/<id> branch is left for review.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath string
	verbose    bool
	logJSON    bool
)

// app holds the components a command needs, built from configuration.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     ticket.Store
	worktrees *worktree.Manager
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if logJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

// loadApp loads configuration and opens the ticket store. Logs go to logw.
func loadApp(logw io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(logw)
	slog.SetDefault(logger)

	store, err := ticket.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		worktrees: worktree.NewManager(cfg, nil, logger),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// pipeline builds the resolution pipeline from configuration.
func (a *app) pipeline(onOutput func(ticketID, chunk string)) (*pipeline.Pipeline, error) {
	ag, err := agent.New(a.cfg.Agent.Kind, a.cfg.Agent.Command)
	if err != nil {
		return nil, config.NewError("agent.kind", err.Error())
	}
	enricher, err := enrich.FromConfig(a.cfg.Enrichment, a.logger)
	if err != nil {
		return nil, err
	}
	var e pipeline.Enricher
	if enricher != nil {
		e = enricher
	}
	p := pipeline.New(a.cfg, a.worktrees, ag, e, a.logger)
	p.OnOutput = onOutput
	return p, nil
}

func (a *app) lifecycle(resolver lifecycle.Resolver) *lifecycle.Service {
	return lifecycle.New(a.store, a.worktrees, resolver, a.cfg.BaseRepositoryPath, a.logger)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  usageArgs(cobra.NoArgs),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "autopilot %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	rootCmd.AddCommand(versionCmd)
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}
