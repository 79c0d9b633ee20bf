package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
)

// AuctionService defines the methods that the auction handler requires from
// the settlement engine.
type AuctionService interface {
	CreateAuction(ctx context.Context, assetID int64, seller common.Address, startingPrice int64, duration time.Duration) (domain.Auction, error)
	PlaceBid(ctx context.Context, assetID int64, bidder common.Address, amount int64) (domain.Auction, error)
	EndAuction(ctx context.Context, assetID int64) (domain.Auction, error)
	CancelAuction(ctx context.Context, assetID int64, caller common.Address) error
	ListAuctions(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error)
	ListBids(ctx context.Context, assetID int64, opts domain.ListOpts) ([]domain.Bid, error)
}

// AuctionHandler serves the auction lifecycle endpoints.
type AuctionHandler struct {
	engine AuctionService
	logger *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler with the given engine and logger.
func NewAuctionHandler(engine AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		engine: engine,
		logger: logHandler(logger, "auction"),
	}
}

// auctionView is the JSON shape of an auction in API responses. The highest
// bidder is omitted until a bid has been accepted.
type auctionView struct {
	AssetID       int64     `json:"asset_id"`
	Seller        string    `json:"seller"`
	StartingPrice int64     `json:"starting_price"`
	HighestBid    int64     `json:"highest_bid"`
	HighestBidder string    `json:"highest_bidder,omitempty"`
	CurrentPrice  int64     `json:"current_price"`
	EndTime       time.Time `json:"end_time"`
	Settled       bool      `json:"settled"`
	CreatedAt     time.Time `json:"created_at"`
}

func toAuctionView(a domain.Auction) auctionView {
	v := auctionView{
		AssetID:       a.AssetID,
		Seller:        a.Seller.Hex(),
		StartingPrice: a.StartingPrice,
		HighestBid:    a.HighestBid,
		CurrentPrice:  a.CurrentPrice(),
		EndTime:       a.EndTime,
		Settled:       a.Settled,
		CreatedAt:     a.CreatedAt,
	}
	if a.HasBid() {
		v.HighestBidder = a.HighestBidder.Hex()
	}
	return v
}

// bidView is the JSON shape of a journaled bid.
type bidView struct {
	AssetID  int64     `json:"asset_id"`
	Bidder   string    `json:"bidder"`
	Amount   int64     `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

// listAuctionsResponse wraps the list endpoint output with metadata.
type listAuctionsResponse struct {
	Auctions []auctionView `json:"auctions"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

// ListAuctions returns auctions, newest first, with pagination.
// GET /api/auctions?limit=50&offset=0
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	auctions, err := h.engine.ListAuctions(r.Context(), opts)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	views := make([]auctionView, 0, len(auctions))
	for _, a := range auctions {
		views = append(views, toAuctionView(a))
	}

	writeJSON(w, http.StatusOK, listAuctionsResponse{
		Auctions: views,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}

// createAuctionRequest is the body for opening an auction.
type createAuctionRequest struct {
	AssetID         int64  `json:"asset_id"`
	Seller          string `json:"seller"`
	StartingPrice   int64  `json:"starting_price"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// CreateAuction opens an English auction for an asset.
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	seller, err := parseAddress("seller", req.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	auc, err := h.engine.CreateAuction(r.Context(), req.AssetID, seller, req.StartingPrice, duration)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAuctionView(auc))
}

// placeBidRequest is the body for bidding on an auction.
type placeBidRequest struct {
	Bidder string `json:"bidder"`
	Amount int64  `json:"amount"`
}

// PlaceBid escrows a bid on an open auction. The previous highest bid, if
// any, becomes withdrawable by its bidder.
// POST /api/auctions/{id}/bids
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	assetID, err := assetIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req placeBidRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	bidder, err := parseAddress("bidder", req.Bidder)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	auc, err := h.engine.PlaceBid(r.Context(), assetID, bidder, req.Amount)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuctionView(auc))
}

// EndAuction settles an expired auction. Callable by anyone once the end
// time has passed.
// POST /api/auctions/{id}/end
func (h *AuctionHandler) EndAuction(w http.ResponseWriter, r *http.Request) {
	assetID, err := assetIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	auc, err := h.engine.EndAuction(r.Context(), assetID)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuctionView(auc))
}

// cancelAuctionRequest is the body for cancelling a bidless auction.
type cancelAuctionRequest struct {
	Caller string `json:"caller"`
}

// CancelAuction removes an auction that has received no bids.
// DELETE /api/auctions/{id}
func (h *AuctionHandler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	assetID, err := assetIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req cancelAuctionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.CancelAuction(r.Context(), assetID, caller); err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"asset_id": assetID, "cancelled": true})
}

// ListBids returns the accepted-bid history for an asset, oldest first.
// GET /api/auctions/{id}/bids
func (h *AuctionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	assetID, err := assetIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bids, err := h.engine.ListBids(r.Context(), assetID, parseListOpts(r))
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}

	views := make([]bidView, 0, len(bids))
	for _, b := range bids {
		views = append(views, bidView{
			AssetID:  b.AssetID,
			Bidder:   b.Bidder.Hex(),
			Amount:   b.Amount,
			PlacedAt: b.PlacedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"asset_id": assetID, "bids": views})
}
