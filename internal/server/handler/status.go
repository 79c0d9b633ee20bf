package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
)

// StatusService defines the status query the handler needs from the engine.
type StatusService interface {
	GetStatus(ctx context.Context, assetID int64) (domain.StatusView, error)
}

// StatusHandler serves the unified per-asset status query.
type StatusHandler struct {
	engine StatusService
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler with the given engine and logger.
func NewStatusHandler(engine StatusService, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		engine: engine,
		logger: logHandler(logger, "status"),
	}
}

// statusResponse is the JSON shape of the status query. The end time is
// omitted for listings and unlisted assets, the seller for unlisted assets.
type statusResponse struct {
	AssetID int64              `json:"asset_id"`
	Status  domain.AssetStatus `json:"status"`
	Price   int64              `json:"price"`
	Seller  string             `json:"seller,omitempty"`
	EndTime *time.Time         `json:"end_time,omitempty"`
}

// GetStatus reports whether an asset is listed, in auction, or neither,
// together with the price a buyer would act on.
// GET /api/status/{id}
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	assetID, err := assetIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := h.engine.GetStatus(r.Context(), assetID)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	resp := statusResponse{
		AssetID: st.AssetID,
		Status:  st.Status,
		Price:   st.Price,
	}
	if st.Status != domain.AssetStatusNone {
		resp.Seller = st.Seller.Hex()
	}
	if !st.EndTime.IsZero() {
		t := st.EndTime
		resp.EndTime = &t
	}

	writeJSON(w, http.StatusOK, resp)
}
