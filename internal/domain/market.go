// Package domain defines the marketplace types, error taxonomy, and the
// store/collaborator interfaces that the settlement engine is built on.
package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Amounts are int64 values in the smallest currency unit. Asset ids are the
// int64 token ids of the NFT contract the marketplace trades.

// AssetStatus is the unified lifecycle view of an asset id.
type AssetStatus string

const (
	AssetStatusNone      AssetStatus = "none"
	AssetStatusListed    AssetStatus = "listed"
	AssetStatusInAuction AssetStatus = "in_auction"
)

// Listing is a fixed-price sale offer. At most one exists per asset id, and
// never alongside an active auction for the same asset.
type Listing struct {
	AssetID   int64
	Seller    common.Address
	Price     int64 // > 0
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Auction is an English auction: ascending bids, highest bid at expiry wins.
// HighestBid == 0 means no bid has been placed and HighestBidder is the zero
// address.
type Auction struct {
	AssetID       int64
	Seller        common.Address
	StartingPrice int64 // > 0
	HighestBid    int64
	HighestBidder common.Address
	EndTime       time.Time
	Active        bool
	Settled       bool
	CreatedAt     time.Time
}

// HasBid reports whether at least one bid has been accepted.
func (a Auction) HasBid() bool {
	return a.HighestBid > 0
}

// CurrentPrice is the highest bid, or the starting price before any bid.
func (a Auction) CurrentPrice() int64 {
	if a.HighestBid > 0 {
		return a.HighestBid
	}
	return a.StartingPrice
}

// Bid is one accepted bid, journaled for history queries. The escrowed amount
// itself lives in the auction's HighestBid / the pending-returns ledger.
type Bid struct {
	AssetID  int64
	Bidder   common.Address
	Amount   int64
	PlacedAt time.Time
}

// StatusView is the read-only aggregate returned by the status query:
// the asset's lifecycle state plus the price a buyer would act on. EndTime is
// zero for listings and unlisted assets.
type StatusView struct {
	AssetID int64          `json:"asset_id"`
	Status  AssetStatus    `json:"status"`
	Price   int64          `json:"price"`
	Seller  common.Address `json:"seller"`
	EndTime time.Time      `json:"end_time"`
}
