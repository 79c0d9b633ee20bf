package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/oracle"
)

// DevHandler exposes seeding endpoints for standalone mode: minting assets
// into the in-memory ownership registry and funding accounts on the ledger.
// It is never registered when the server runs against real infrastructure.
type DevHandler struct {
	registry *oracle.Registry
	fund     func(ctx context.Context, addr common.Address, amount int64) error
	operator common.Address
	logger   *slog.Logger
}

// NewDevHandler creates a DevHandler over the in-memory registry and a
// funding callback.
func NewDevHandler(registry *oracle.Registry, fund func(ctx context.Context, addr common.Address, amount int64) error, operator common.Address, logger *slog.Logger) *DevHandler {
	return &DevHandler{
		registry: registry,
		fund:     fund,
		operator: operator,
		logger:   logHandler(logger, "dev"),
	}
}

// mintRequest is the body for seeding an asset.
type mintRequest struct {
	AssetID int64  `json:"asset_id"`
	Owner   string `json:"owner"`
}

// Mint seeds an asset into the ownership registry with marketplace approval.
// POST /api/dev/mint
func (h *DevHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.registry.Mint(req.AssetID, owner, h.operator)
	h.logger.InfoContext(r.Context(), "minted dev asset",
		slog.Int64("asset_id", req.AssetID),
		slog.String("owner", owner.Hex()),
	)

	writeJSON(w, http.StatusCreated, map[string]any{
		"asset_id": req.AssetID,
		"owner":    owner.Hex(),
	})
}

// depositRequest is the body for funding an account.
type depositRequest struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// Deposit credits an account on the payment ledger.
// POST /api/dev/deposit
func (h *DevHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	addr, err := parseAddress("address", req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	if err := h.fund(r.Context(), addr, req.Amount); err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr.Hex(),
		"amount":  req.Amount,
	})
}
