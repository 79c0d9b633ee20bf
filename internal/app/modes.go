package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/market"
	"github.com/gavelhq/gavel/internal/notify"
	"github.com/gavelhq/gavel/internal/server"
	"github.com/gavelhq/gavel/internal/server/handler"
	"github.com/gavelhq/gavel/internal/server/ws"
)

// serve bootstraps the settlement engine and runs the HTTP/WebSocket server,
// the event relay, and the archival loop until the context is cancelled.
func (a *App) serve(ctx context.Context, deps *Dependencies) error {
	engine := market.NewEngine(
		deps.Store, deps.Oracle, deps.Rail, deps.Locks, deps.Audit,
		deps.Operator, a.logger,
	)
	if deps.StatusCache != nil {
		engine = engine.WithStatusCache(deps.StatusCache)
	}
	if deps.Bus != nil {
		engine = engine.WithEventBus(deps.Bus)
	}

	if err := engine.Bootstrap(ctx, domain.GlobalConfig{
		PlatformFeeBps: a.cfg.Market.PlatformFeeBps,
		FeeRecipient:   common.HexToAddress(a.cfg.Market.FeeRecipient),
		Owner:          common.HexToAddress(a.cfg.Market.Owner),
	}); err != nil {
		return fmt.Errorf("app: bootstrap: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub, only when an event bus is wired.
	var hub *ws.Hub
	if deps.Bus != nil {
		hub = ws.NewHub(deps.Bus, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	// Notification relay forwards market events to Telegram/Discord.
	if deps.Bus != nil && deps.Notifier != nil {
		relay := notify.NewRelay(deps.Bus, deps.Notifier, a.logger)
		g.Go(func() error {
			return relay.Run(ctx)
		})
	}

	// Archival loop ships old audit rows and settled auctions to S3.
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps)
		})
	}

	// HTTP server.
	if a.cfg.Server.Enabled {
		checks := make(map[string]handler.HealthCheck, len(deps.Health))
		for name, probe := range deps.Health {
			checks[name] = probe
		}
		handlers := server.Handlers{
			Health:   handler.NewHealthHandler(checks, a.logger),
			Listings: handler.NewListingHandler(engine, a.logger),
			Auctions: handler.NewAuctionHandler(engine, a.logger),
			Escrow:   handler.NewEscrowHandler(engine, a.logger),
			Admin:    handler.NewAdminHandler(engine, a.logger),
			Status:   handler.NewStatusHandler(engine, a.logger),
		}
		if deps.Registry != nil && deps.DevFund != nil {
			handlers.Dev = handler.NewDevHandler(deps.Registry, deps.DevFund, deps.Operator, a.logger)
		}

		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimiter: deps.RateLimiter,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		}, handlers, hub, a.logger)

		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// runArchiver periodically moves audit rows older than the retention window
// to cold storage and snapshots settled auctions.
func (a *App) runArchiver(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)

			if n, err := deps.Archiver.ArchiveAuditLog(ctx, cutoff); err != nil {
				a.logger.ErrorContext(ctx, "audit archival failed",
					slog.String("error", err.Error()),
				)
			} else if n > 0 {
				a.logger.InfoContext(ctx, "archived audit entries",
					slog.Int64("count", n),
					slog.Time("cutoff", cutoff),
				)
			}

			if n, err := deps.Archiver.ArchiveSettledAuctions(ctx, cutoff); err != nil {
				a.logger.ErrorContext(ctx, "auction archival failed",
					slog.String("error", err.Error()),
				)
			} else if n > 0 {
				a.logger.InfoContext(ctx, "archived settled auctions",
					slog.Int64("count", n),
				)
			}
		}
	}
}
