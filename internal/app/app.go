// Package app provides the top-level application lifecycle for limitbot.
// It wires the stores, caches, chain clients, and services, and starts the
// goroutines for the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyip/limitbot/internal/config"
)

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions called in reverse order on shutdown.
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

// Run wires all dependencies, selects the operating mode, and blocks until
// the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	redacted := config.RedactedConfig(a.cfg)
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", redacted.Mode),
		slog.String("log_level", redacted.LogLevel),
		slog.String("rpc_url", redacted.Chain.RPCURL),
		slog.String("postgres_host", redacted.Postgres.Host),
		slog.String("redis_addr", redacted.Redis.Addr),
	)

	// Keygen runs before wiring: it touches no store or chain client.
	if strings.ToLower(a.cfg.Mode) == "keygen" {
		return a.KeygenMode(ctx)
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "serve":
		return a.ServeMode(ctx, deps)
	case "archive":
		return a.ArchiveMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
