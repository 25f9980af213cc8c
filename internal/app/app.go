// Package app provides the top-level application lifecycle for the open
// oracle publisher. It wires the venues, the ledger submitter and the
// optional history, cache, archive and notification sinks, then runs the
// configured mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/openoracle/internal/config"
	"github.com/alanyoungcy/openoracle/internal/domain"
)

// ErrAllVenuesFailed is returned by the once mode when no venue published
// anything.
var ErrAllVenuesFailed = errors.New("app: every venue failed")

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	out       io.Writer
	now       func() time.Time
	startedAt time.Time
	cycles    cycleTracker
	closers   []func()
}

// cycleTracker remembers the most recent publish cycle for the status API.
type cycleTracker struct {
	mu     sync.RWMutex
	report domain.CycleReport
	ok     bool
}

func (t *cycleTracker) record(report domain.CycleReport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report, t.ok = report, true
}

// LastCycle returns the most recent cycle, if any ran.
func (t *cycleTracker) LastCycle() (domain.CycleReport, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.report, t.ok
}

// New creates a new App from the given configuration and logger. Results are
// printed to stdout.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "app")),
		out:       os.Stdout,
		now:       time.Now,
		startedAt: time.Now().UTC(),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode and blocks until the mode finishes or the context is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return a.RunMode(ctx, deps)
}

// RunMode runs the configured mode against already wired dependencies.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	switch strings.ToLower(a.cfg.Mode) {
	case "once":
		return a.OnceMode(ctx, deps)
	case "daemon":
		return a.DaemonMode(ctx, deps)
	case "status":
		return a.StatusMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
