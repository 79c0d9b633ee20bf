package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
)

// ListingService defines the methods that the listing handler requires from
// the settlement engine. It is declared locally so the handler package does
// not depend on the concrete engine implementation.
type ListingService interface {
	ListItem(ctx context.Context, assetID int64, seller common.Address, price int64) (domain.Listing, error)
	UpdateListing(ctx context.Context, assetID int64, caller common.Address, newPrice int64) (domain.Listing, error)
	CancelListing(ctx context.Context, assetID int64, caller common.Address) error
	BuyItem(ctx context.Context, assetID int64, buyer common.Address, paid int64) error
	ListListings(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error)
}

// ListingHandler serves the fixed-price listing endpoints.
type ListingHandler struct {
	engine ListingService
	logger *slog.Logger
}

// NewListingHandler creates a ListingHandler with the given engine and logger.
func NewListingHandler(engine ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		engine: engine,
		logger: logHandler(logger, "listing"),
	}
}

// listingView is the JSON shape of a listing in API responses.
type listingView struct {
	AssetID   int64     `json:"asset_id"`
	Seller    string    `json:"seller"`
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toListingView(l domain.Listing) listingView {
	return listingView{
		AssetID:   l.AssetID,
		Seller:    l.Seller.Hex(),
		Price:     l.Price,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

// listListingsResponse wraps the list endpoint output with metadata.
type listListingsResponse struct {
	Listings []listingView `json:"listings"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

// ListListings returns active listings, newest first, with pagination.
// GET /api/listings?limit=50&offset=0
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	listings, err := h.engine.ListListings(r.Context(), opts)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	views := make([]listingView, 0, len(listings))
	for _, l := range listings {
		views = append(views, toListingView(l))
	}

	writeJSON(w, http.StatusOK, listListingsResponse{
		Listings: views,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}

// createListingRequest is the body for listing an item at a fixed price.
type createListingRequest struct {
	AssetID int64  `json:"asset_id"`
	Seller  string `json:"seller"`
	Price   int64  `json:"price"`
}

// CreateListing lists an item for sale.
// POST /api/listings
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	seller, err := parseAddress("seller", req.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lst, err := h.engine.ListItem(r.Context(), req.AssetID, seller, req.Price)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toListingView(lst))
}

// updateListingRequest is the body for changing the price of a listing.
type updateListingRequest struct {
	Caller string `json:"caller"`
	Price  int64  `json:"price"`
}

// UpdateListing changes the price of an existing listing.
// PUT /api/listings/{id}
func (h *ListingHandler) UpdateListing(w http.ResponseWriter, r *http.Request) {
	assetID, err := assetIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req updateListingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lst, err := h.engine.UpdateListing(r.Context(), assetID, caller, req.Price)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toListingView(lst))
}

// cancelListingRequest is the body for taking a listing down.
type cancelListingRequest struct {
	Caller string `json:"caller"`
}

// CancelListing removes a listing without a sale.
// DELETE /api/listings/{id}
func (h *ListingHandler) CancelListing(w http.ResponseWriter, r *http.Request) {
	assetID, err := assetIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req cancelListingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.CancelListing(r.Context(), assetID, caller); err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"asset_id": assetID, "cancelled": true})
}

// buyRequest is the body for purchasing a listed item.
type buyRequest struct {
	Buyer   string `json:"buyer"`
	Payment int64  `json:"payment"`
}

// BuyItem purchases a listed item at or above the asking price. Overpayment
// is refunded as part of the settlement.
// POST /api/listings/{id}/buy
func (h *ListingHandler) BuyItem(w http.ResponseWriter, r *http.Request) {
	assetID, err := assetIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	buyer, err := parseAddress("buyer", req.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.BuyItem(r.Context(), assetID, buyer, req.Payment); err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"asset_id": assetID,
		"buyer":    buyer.Hex(),
		"sold":     true,
	})
}
