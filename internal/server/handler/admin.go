package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
)

// AdminService defines the owner-gated methods the admin handler needs from
// the engine, plus the config and audit read surface.
type AdminService interface {
	TogglePause(ctx context.Context, caller common.Address) (bool, error)
	SetPlatformFee(ctx context.Context, caller common.Address, bps int64) error
	SetFeeRecipient(ctx context.Context, caller, recipient common.Address) error
	Config(ctx context.Context) (domain.GlobalConfig, error)
	AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
	HeldBalance(ctx context.Context) (int64, error)
}

// AdminHandler serves the owner-gated configuration endpoints and the audit
// log read surface.
type AdminHandler struct {
	engine AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler with the given engine and logger.
func NewAdminHandler(engine AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		engine: engine,
		logger: logHandler(logger, "admin"),
	}
}

// callerRequest is the body for owner-gated operations with no other inputs.
type callerRequest struct {
	Caller string `json:"caller"`
}

// TogglePause flips the circuit breaker.
// POST /api/admin/pause
func (h *AdminHandler) TogglePause(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	paused, err := h.engine.TogglePause(r.Context(), caller)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"paused": paused})
}

// setFeeRequest is the body for updating the platform fee.
type setFeeRequest struct {
	Caller string `json:"caller"`
	FeeBps int64  `json:"fee_bps"`
}

// SetPlatformFee updates the platform fee in basis points.
// PUT /api/admin/fee
func (h *AdminHandler) SetPlatformFee(w http.ResponseWriter, r *http.Request) {
	var req setFeeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.SetPlatformFee(r.Context(), caller, req.FeeBps); err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"fee_bps": req.FeeBps})
}

// setRecipientRequest is the body for updating the fee recipient.
type setRecipientRequest struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
}

// SetFeeRecipient updates the account that receives platform fees.
// PUT /api/admin/fee-recipient
func (h *AdminHandler) SetFeeRecipient(w http.ResponseWriter, r *http.Request) {
	var req setRecipientRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recipient, err := parseAddress("recipient", req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.SetFeeRecipient(r.Context(), caller, recipient); err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"recipient": recipient.Hex()})
}

// GetConfig returns the current marketplace configuration and the total
// balance the escrow account must hold to cover pending returns and open
// bids.
// GET /api/admin/config
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.engine.Config(r.Context())
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	held, err := h.engine.HeldBalance(r.Context())
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"platform_fee_bps": cfg.PlatformFeeBps,
		"fee_recipient":    cfg.FeeRecipient.Hex(),
		"owner":            cfg.Owner.Hex(),
		"paused":           cfg.Paused,
		"held_balance":     held,
	})
}

// auditEntryView is the JSON shape of one audit log row.
type auditEntryView struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt string         `json:"created_at"`
}

// ListAudit returns committed state transitions, newest first.
// GET /api/audit?limit=50&offset=0&since=...&until=...
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	entries, err := h.engine.AuditLog(r.Context(), opts)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	views := make([]auditEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, auditEntryView{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": views,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}
