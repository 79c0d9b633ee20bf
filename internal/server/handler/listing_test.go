package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
)

var (
	testSeller = common.HexToAddress("0x0000000000000000000000000000000000000001")
	testBuyer  = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

// stubListingService records calls and returns canned results.
type stubListingService struct {
	listing domain.Listing
	err     error

	buyCalls int
	lastPaid int64
}

func (s *stubListingService) ListItem(ctx context.Context, assetID int64, seller common.Address, price int64) (domain.Listing, error) {
	if s.err != nil {
		return domain.Listing{}, s.err
	}
	return domain.Listing{AssetID: assetID, Seller: seller, Price: price, Active: true}, nil
}

func (s *stubListingService) UpdateListing(ctx context.Context, assetID int64, caller common.Address, newPrice int64) (domain.Listing, error) {
	if s.err != nil {
		return domain.Listing{}, s.err
	}
	l := s.listing
	l.Price = newPrice
	return l, nil
}

func (s *stubListingService) CancelListing(ctx context.Context, assetID int64, caller common.Address) error {
	return s.err
}

func (s *stubListingService) BuyItem(ctx context.Context, assetID int64, buyer common.Address, paid int64) error {
	s.buyCalls++
	s.lastPaid = paid
	return s.err
}

func (s *stubListingService) ListListings(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []domain.Listing{s.listing}, nil
}

func newListingRig(svc *stubListingService) *ListingHandler {
	return NewListingHandler(svc, slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))
}

func TestCreateListing(t *testing.T) {
	h := newListingRig(&stubListingService{})

	body := fmt.Sprintf(`{"asset_id":7,"seller":"%s","price":100}`, testSeller.Hex())
	req := httptest.NewRequest(http.MethodPost, "/api/listings", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreateListing(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body)
	}
	var got listingView
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.AssetID != 7 || got.Price != 100 || got.Seller != testSeller.Hex() {
		t.Errorf("response = %+v", got)
	}
}

func TestCreateListingBadBody(t *testing.T) {
	h := newListingRig(&stubListingService{})

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"asset_id":`},
		{"unknown field", `{"asset_id":1,"seller":"0x01","price":1,"extra":true}`},
		{"bad address", `{"asset_id":1,"seller":"not-hex","price":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/listings", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.CreateListing(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestEngineErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("market: %w: price must be positive", domain.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("market: %w: caller is not the seller", domain.ErrAuthorization), http.StatusForbidden},
		{fmt.Errorf("market: %w: item already listed", domain.ErrState), http.StatusConflict},
		{fmt.Errorf("market: %w: collect failed", domain.ErrTransfer), http.StatusBadGateway},
		{fmt.Errorf("store: listing: %w", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		h := newListingRig(&stubListingService{err: tc.err})
		body := fmt.Sprintf(`{"buyer":"%s","payment":100}`, testBuyer.Hex())
		req := httptest.NewRequest(http.MethodPost, "/api/listings/7/buy", strings.NewReader(body))
		req.SetPathValue("id", "7")
		rec := httptest.NewRecorder()

		h.BuyItem(rec, req)

		if rec.Code != tc.want {
			t.Errorf("BuyItem with %v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestBuyItemPassesPayment(t *testing.T) {
	svc := &stubListingService{}
	h := newListingRig(svc)

	body := fmt.Sprintf(`{"buyer":"%s","payment":150}`, testBuyer.Hex())
	req := httptest.NewRequest(http.MethodPost, "/api/listings/7/buy", strings.NewReader(body))
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()

	h.BuyItem(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body)
	}
	if svc.buyCalls != 1 || svc.lastPaid != 150 {
		t.Errorf("buyCalls = %d, lastPaid = %d, want 1 and 150", svc.buyCalls, svc.lastPaid)
	}
}

func TestBuyItemBadAssetID(t *testing.T) {
	h := newListingRig(&stubListingService{})

	req := httptest.NewRequest(http.MethodPost, "/api/listings/abc/buy", strings.NewReader(`{}`))
	req.SetPathValue("id", "abc")
	rec := httptest.NewRecorder()

	h.BuyItem(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestParseListOpts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/listings?limit=1000&offset=20&since=2026-01-01T00:00:00Z", nil)

	opts := parseListOpts(req)

	if opts.Limit != 500 {
		t.Errorf("Limit = %d, want 500 (capped)", opts.Limit)
	}
	if opts.Offset != 20 {
		t.Errorf("Offset = %d, want 20", opts.Offset)
	}
	if opts.Since == nil || !opts.Since.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Since = %v, want 2026-01-01", opts.Since)
	}
	if opts.Until != nil {
		t.Errorf("Until = %v, want nil", opts.Until)
	}
}
