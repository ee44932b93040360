// Package watch triggers autopilot runs unattended: when the ticket
// store changes on disk, on a cron schedule, and once at startup.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/edsandoval/autopilot/internal/autopilot"
)

const (
	DefaultDebounce     = 500 * time.Millisecond
	DefaultPollInterval = 30 * time.Second
)

// Runner starts an autopilot run and waits for it.
type Runner interface {
	Run(ctx context.Context, onProgress func(autopilot.Event)) (*autopilot.Result, error)
}

// Options configures a Watcher.
type Options struct {
	// StorePath is the ticket store file to watch.
	StorePath string
	// Schedule is an optional cron expression, e.g. "*/15 * * * *" or "@every 1h".
	Schedule string
	// NoFS disables filesystem notifications in favor of polling.
	NoFS bool

	Debounce     time.Duration
	PollInterval time.Duration

	OnProgress func(autopilot.Event)
	// OnResult is called after every finished run.
	OnResult func(reason string, res *autopilot.Result)
}

// Watcher serializes triggers into autopilot runs.
type Watcher struct {
	runner   Runner
	opts     Options
	logger   *slog.Logger
	triggers chan string
}

// New creates a watcher.
func New(runner Runner, opts Options, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Watcher{
		runner:   runner,
		opts:     opts,
		logger:   logger.With("component", "watch"),
		triggers: make(chan string, 1),
	}
}

// Trigger requests a run. Requests arriving while one is queued are
// coalesced.
func (w *Watcher) Trigger(reason string) {
	select {
	case w.triggers <- reason:
	default:
		w.logger.Debug("trigger coalesced", "reason", reason)
	}
}

// Run blocks until ctx is cancelled, running autopilot once per trigger.
func (w *Watcher) Run(ctx context.Context) error {
	if w.opts.Schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(w.opts.Schedule, func() { w.Trigger("schedule") }); err != nil {
			return fmt.Errorf("watch: invalid schedule %q: %w", w.opts.Schedule, err)
		}
		c.Start()
		defer c.Stop()
		w.logger.Info("schedule registered", "schedule", w.opts.Schedule)
	}

	if fw := w.initWatcher(); fw != nil {
		defer fw.Close()
		go w.runWatcher(ctx, fw)
	} else {
		go w.poll(ctx)
	}

	w.Trigger("startup")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return ctx.Err()
		case reason := <-w.triggers:
			w.runOnce(ctx, reason)
		}
	}
}

func (w *Watcher) runOnce(ctx context.Context, reason string) {
	w.logger.Debug("run triggered", "reason", reason)
	res, err := w.runner.Run(ctx, w.opts.OnProgress)
	if errors.Is(err, autopilot.ErrAlreadyRunning) {
		w.logger.Debug("autopilot already running, trigger skipped", "reason", reason)
		return
	}
	if err != nil {
		w.logger.Error("autopilot run failed", "reason", reason, "error", err)
		return
	}
	if res.Processed() > 0 {
		w.logger.Info("autopilot run finished", "reason", reason,
			"completed", len(res.Completed), "failed", len(res.Failed), "cancelled", res.Cancelled)
	}
	if w.opts.OnResult != nil {
		w.opts.OnResult(reason, res)
	}
}

// initWatcher watches the store's directory. It returns nil when
// notifications are disabled or unavailable, which selects polling.
func (w *Watcher) initWatcher() *fsnotify.Watcher {
	if w.opts.NoFS || w.opts.StorePath == "" {
		return nil
	}
	dir := filepath.Dir(w.opts.StorePath)
	if _, err := os.Stat(dir); err != nil {
		w.logger.Warn("store directory missing, falling back to polling", "dir", dir)
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("creating watcher failed, falling back to polling", "error", err)
		return nil
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		w.logger.Warn("watching store failed, falling back to polling", "dir", dir, "error", err)
		return nil
	}
	return fw
}

// runWatcher debounces store writes into triggers.
func (w *Watcher) runWatcher(ctx context.Context, fw *fsnotify.Watcher) {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if !w.isStoreEvent(ev) {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.opts.Debounce)
		case <-timer.C:
			w.Trigger("store changed")
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// isStoreEvent matches writes to the store file and its SQLite journal
// siblings (-wal, -journal) and the atomic-rename temp file.
func (w *Watcher) isStoreEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return strings.HasPrefix(filepath.Base(ev.Name), filepath.Base(w.opts.StorePath))
}

func (w *Watcher) poll(ctx context.Context) {
	w.logger.Info("polling for tickets", "interval", w.opts.PollInterval)
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Trigger("poll")
		}
	}
}
