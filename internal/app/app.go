// Package app provides the top-level application lifecycle for strikebot. It
// wires the stores, feeds, signal engine, coordinator and notifications, and
// runs them as one supervised goroutine tree.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/strikelab/strikebot/internal/config"
)

// instanceLockTTL bounds how long a crashed process keeps the lock.
const instanceLockTTL = 30 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, reconciles trades
// left pending by a previous run, starts the feed and coordination
// goroutines, and blocks until the context is cancelled or a loop fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.Bool("dry_run", a.cfg.Strategy.DryRun),
		slog.Any("assets", a.cfg.Strategy.Assets),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// Single-instance guard: two engines against one wallet would double
	// every order pair.
	if deps.InstanceLock != nil {
		release, err := deps.InstanceLock.Hold(ctx, "engine", instanceLockTTL)
		if err != nil {
			return fmt.Errorf("app: instance lock: %w", err)
		}
		a.closers = append(a.closers, release)
	}

	// Trades fired before a restart may still await resolution.
	if err := deps.Coordinator.Reconcile(ctx); err != nil {
		a.logger.WarnContext(ctx, "startup reconciliation incomplete",
			slog.String("error", err.Error()),
		)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.PriceFeed.Run(ctx)
	})
	g.Go(func() error {
		return deps.OddsFeed.Run(ctx)
	})
	g.Go(func() error {
		return deps.Coordinator.Run(ctx)
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx,
				a.cfg.S3.ArchiveInterval.Duration,
				a.cfg.S3.ArchiveRetention.Duration,
			)
		})
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
