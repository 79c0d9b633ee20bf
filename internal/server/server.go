// Package server exposes the marketplace engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/server/handler"
	"github.com/gavelhq/gavel/internal/server/middleware"
	"github.com/gavelhq/gavel/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimiter, when set, throttles mutating requests per client IP.
	RateLimiter domain.RateLimiter
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Listings *handler.ListingHandler
	Auctions *handler.AuctionHandler
	Escrow   *handler.EscrowHandler
	Admin    *handler.AdminHandler
	Status   *handler.StatusHandler

	// Dev is only set in standalone mode.
	Dev *handler.DevHandler
}

// Server is the HTTP + WebSocket API server for the marketplace.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Fixed-price listings.
	mux.HandleFunc("GET /api/listings", handlers.Listings.ListListings)
	mux.HandleFunc("POST /api/listings", handlers.Listings.CreateListing)
	mux.HandleFunc("PUT /api/listings/{id}", handlers.Listings.UpdateListing)
	mux.HandleFunc("DELETE /api/listings/{id}", handlers.Listings.CancelListing)
	mux.HandleFunc("POST /api/listings/{id}/buy", handlers.Listings.BuyItem)

	// Auctions.
	mux.HandleFunc("GET /api/auctions", handlers.Auctions.ListAuctions)
	mux.HandleFunc("POST /api/auctions", handlers.Auctions.CreateAuction)
	mux.HandleFunc("POST /api/auctions/{id}/bids", handlers.Auctions.PlaceBid)
	mux.HandleFunc("GET /api/auctions/{id}/bids", handlers.Auctions.ListBids)
	mux.HandleFunc("POST /api/auctions/{id}/end", handlers.Auctions.EndAuction)
	mux.HandleFunc("DELETE /api/auctions/{id}", handlers.Auctions.CancelAuction)

	// Pull-payment escrow.
	mux.HandleFunc("POST /api/escrow/withdraw", handlers.Escrow.Withdraw)
	mux.HandleFunc("GET /api/escrow/{address}", handlers.Escrow.PendingReturn)

	// Unified asset status.
	mux.HandleFunc("GET /api/status/{id}", handlers.Status.GetStatus)

	// Owner-gated configuration and audit log.
	mux.HandleFunc("POST /api/admin/pause", handlers.Admin.TogglePause)
	mux.HandleFunc("PUT /api/admin/fee", handlers.Admin.SetPlatformFee)
	mux.HandleFunc("PUT /api/admin/fee-recipient", handlers.Admin.SetFeeRecipient)
	mux.HandleFunc("GET /api/admin/config", handlers.Admin.GetConfig)
	mux.HandleFunc("GET /api/audit", handlers.Admin.ListAudit)

	// Standalone-mode seeding endpoints.
	if handlers.Dev != nil {
		mux.HandleFunc("POST /api/dev/mint", handlers.Dev.Mint)
		mux.HandleFunc("POST /api/dev/deposit", handlers.Dev.Deposit)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Throttle mutating requests before they reach the engine.
	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateWindow)(h)
	}

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
