// Package app provides the top-level application lifecycle for the
// marketplace daemon. It wires together the store, caches, oracle, payment
// rail, blob storage, and notifications, bootstraps the settlement engine,
// and runs the HTTP/WebSocket server until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gavelhq/gavel/internal/config"
)

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

// Run is the main entry point. It wires all dependencies for the configured
// mode, bootstraps the engine, starts the server goroutines, and blocks until
// the context is cancelled. On return it runs all registered cleanup
// functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	mode := strings.ToLower(a.cfg.Mode)

	var (
		deps    *Dependencies
		cleanup func()
		err     error
	)
	switch mode {
	case "serve":
		deps, cleanup, err = Wire(ctx, a.cfg)
	case "standalone":
		deps, cleanup, err = WireStandalone(ctx, a.cfg)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return a.serve(ctx, deps)
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
