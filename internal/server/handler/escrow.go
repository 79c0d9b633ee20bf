package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// EscrowService defines the escrow methods the handler needs from the engine.
type EscrowService interface {
	Withdraw(ctx context.Context, caller common.Address) (int64, error)
	PendingReturn(ctx context.Context, addr common.Address) (int64, error)
}

// EscrowHandler serves the pull-payment endpoints.
type EscrowHandler struct {
	engine EscrowService
	logger *slog.Logger
}

// NewEscrowHandler creates an EscrowHandler with the given engine and logger.
func NewEscrowHandler(engine EscrowService, logger *slog.Logger) *EscrowHandler {
	return &EscrowHandler{
		engine: engine,
		logger: logHandler(logger, "escrow"),
	}
}

// withdrawRequest is the body for claiming pending funds.
type withdrawRequest struct {
	Caller string `json:"caller"`
}

// Withdraw pays out the caller's full pending-returns balance.
// POST /api/escrow/withdraw
func (h *EscrowHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := h.engine.Withdraw(r.Context(), caller)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address": caller.Hex(),
		"amount":  amount,
	})
}

// PendingReturn reports the amount an address could withdraw right now.
// GET /api/escrow/{address}
func (h *EscrowHandler) PendingReturn(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := h.engine.PendingReturn(r.Context(), addr)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr.Hex(),
		"amount":  amount,
	})
}
