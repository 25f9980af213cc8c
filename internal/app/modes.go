package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/openoracle/internal/cache/redis"
	"github.com/alanyoungcy/openoracle/internal/domain"
	"github.com/alanyoungcy/openoracle/internal/server"
	"github.com/alanyoungcy/openoracle/internal/server/handler"
	"github.com/alanyoungcy/openoracle/internal/server/ws"
)

const (
	pruneInterval   = 24 * time.Hour
	historyLimit    = 5
	shutdownTimeout = 10 * time.Second
)

// OnceMode runs a single publish cycle, records it and prints every published
// key with its transaction. It returns ErrAllVenuesFailed when no venue
// published anything.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting once mode")

	report, err := a.cycle(ctx, deps)
	if err != nil {
		return fmt.Errorf("once mode: %w", err)
	}

	for _, p := range report.Publications() {
		fmt.Fprintf(a.out, "%s -> %s\n", p.Key, p.TxHash)
	}
	for _, vr := range report.Venues {
		if vr.Err != nil {
			fmt.Fprintf(a.out, "%s failed: %v\n", vr.Venue, vr.Err)
		}
	}

	if report.AllFailed() {
		return ErrAllVenuesFailed
	}
	return nil
}

// DaemonMode publishes immediately and then every publish.interval, prunes
// publication history once a day and, when enabled, serves the operator API,
// until ctx is cancelled.
func (a *App) DaemonMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting daemon mode",
		slog.Duration("interval", a.cfg.Publish.Interval.Duration),
		slog.Int("retention_days", a.cfg.Publish.RetentionDays),
		slog.Bool("server", a.cfg.Server.Enabled),
	)

	g, ctx := errgroup.WithContext(ctx)
	trigger := make(chan struct{}, 1)

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, trigger)
	}

	g.Go(func() error {
		return a.loop(ctx, a.cfg.Publish.Interval.Duration, trigger, func(ctx context.Context) {
			if _, err := a.cycle(ctx, deps); err != nil && ctx.Err() == nil {
				a.logger.WarnContext(ctx, "publish cycle skipped", slog.String("error", err.Error()))
			}
		})
	})

	if retention := a.retention(); retention > 0 {
		g.Go(func() error {
			return a.loop(ctx, pruneInterval, nil, func(ctx context.Context) {
				if _, err := deps.Recorder.Prune(ctx, retention, a.now()); err != nil && ctx.Err() == nil {
					a.logger.WarnContext(ctx, "prune failed", slog.String("error", err.Error()))
				}
			})
		})
	}

	return g.Wait()
}

// startServer runs the operator API, and the WebSocket hub when publish
// events are available, inside g. The server shuts down when ctx ends.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, trigger chan<- struct{}) {
	var hub *ws.Hub
	if deps.Subscriber != nil {
		hub = ws.NewHub(deps.Subscriber, a.logger, ws.Config{Mode: a.cfg.Mode, StartedAt: a.startedAt})
		g.Go(func() error { return hub.Run(ctx) })
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, server.Handlers{
		Health: handler.NewHealthHandler(),
		Status: handler.NewStatusHandler(handler.StatusInfo{
			Mode:        a.cfg.Mode,
			Account:     deps.Account,
			Venues:      deps.Venues,
			Assets:      a.cfg.Publish.Assets,
			PublishMode: a.cfg.Publish.Mode,
			StartedAt:   a.startedAt,
		}, &a.cycles),
		Publications: handler.NewPublicationHandler(deps.Recorder, a.keys(deps), a.logger),
		Publish:      handler.NewPublishHandler(trigger, a.logger),
		Audit:        handler.NewAuditHandler(deps.Recorder, a.logger),
	}, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// StatusMode prints the latest cached price and the newest stored
// publications of every configured venue and asset.
func (a *App) StatusMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting status mode")

	keys := a.keys(deps)
	prices, err := deps.Recorder.LatestPrices(ctx, keys)
	if err != nil {
		return fmt.Errorf("status mode: %w", err)
	}
	for _, k := range keys {
		p, ok := prices[k]
		if !ok {
			fmt.Fprintf(a.out, "%s: no cached price\n", k)
			continue
		}
		fmt.Fprintf(a.out, "%s: price=%d attested_at=%s tx=%s\n",
			k, p.Price, p.AttestedAt.UTC().Format(time.RFC3339), p.TxHash)
	}

	for _, venue := range deps.Venues {
		records, err := deps.Recorder.VenueHistory(ctx, venue)
		if err != nil {
			return fmt.Errorf("status mode: %w", err)
		}
		for _, r := range records {
			history, err := deps.Recorder.KeyHistory(ctx, r.Key, historyLimit)
			if err != nil {
				return fmt.Errorf("status mode: %w", err)
			}
			txs := make([]string, 0, len(history))
			for _, h := range history {
				txs = append(txs, h.TxHash)
			}
			fmt.Fprintf(a.out, "%s: last published %s (%d recent: %s)\n",
				r.Key, r.PublishedAt.UTC().Format(time.RFC3339), len(history), strings.Join(txs, ", "))
		}
	}
	return nil
}

// cycle runs one publish cycle under the account lock and records it. Sink
// failures are logged by the recorder and do not fail the cycle.
func (a *App) cycle(ctx context.Context, deps *Dependencies) (domain.CycleReport, error) {
	if deps.LockManager != nil {
		unlock, err := deps.LockManager.Acquire(ctx, redis.PublishLockKey(deps.Account), a.cfg.Publish.LockTTL.Duration)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.CycleReport{}, fmt.Errorf("another publisher holds the lock for %s: %w", deps.Account, err)
			}
			return domain.CycleReport{}, err
		}
		defer unlock()
	}

	report := deps.Publisher.PublishCycle(ctx, a.cfg.Publish.Assets)
	a.cycles.record(report)
	if err := deps.Recorder.Record(ctx, report); err != nil {
		a.logger.WarnContext(ctx, "cycle recorded with errors",
			slog.String("cycle_id", report.ID),
			slog.String("error", err.Error()),
		)
	}
	return report, nil
}

func (a *App) retention() time.Duration {
	return time.Duration(a.cfg.Publish.RetentionDays) * 24 * time.Hour
}

// keys lists every "<Venue>:<ASSET>" the publisher is configured for.
func (a *App) keys(deps *Dependencies) []string {
	var keys []string
	for _, venue := range deps.Venues {
		for _, asset := range a.cfg.Publish.Assets {
			keys = append(keys, domain.ResultKey(venue, asset))
		}
	}
	return keys
}

// loop runs fn immediately, then on each tick of interval and on each
// trigger, until ctx is cancelled. A nil trigger only ticks.
func (a *App) loop(ctx context.Context, interval time.Duration, trigger <-chan struct{}, fn func(context.Context)) error {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		case <-trigger:
			fn(ctx)
		}
	}
}
