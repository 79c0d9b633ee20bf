package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and optional time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketplaceStore is the authoritative state of the marketplace: listings,
// auctions, the pending-returns ledger, the bid journal, and the global
// config. Read methods serve the query surface; all mutation happens inside
// a MarketplaceTx obtained from Begin.
type MarketplaceStore interface {
	Begin(ctx context.Context) (MarketplaceTx, error)

	Listing(ctx context.Context, assetID int64) (Listing, error)
	Auction(ctx context.Context, assetID int64) (Auction, error)
	ListListings(ctx context.Context, opts ListOpts) ([]Listing, error)
	ListAuctions(ctx context.Context, opts ListOpts) ([]Auction, error)
	ListBids(ctx context.Context, assetID int64, opts ListOpts) ([]Bid, error)

	PendingReturn(ctx context.Context, addr common.Address) (int64, error)
	// PendingTotal is the sum of every pending-returns entry.
	PendingTotal(ctx context.Context) (int64, error)
	// OpenBidTotal is the sum of HighestBid over active, unsettled auctions.
	// PendingTotal + OpenBidTotal is the balance the system must hold.
	OpenBidTotal(ctx context.Context) (int64, error)

	Config(ctx context.Context) (GlobalConfig, error)
}

// MarketplaceTx is one serialized mutating operation. All writes are staged
// until Commit; Rollback (or Commit failure) leaves the store untouched, which
// is what makes every engine operation all-or-nothing. Reads inside the
// transaction observe the staged writes.
type MarketplaceTx interface {
	Listing(ctx context.Context, assetID int64) (Listing, error)
	SaveListing(ctx context.Context, l Listing) error
	DeleteListing(ctx context.Context, assetID int64) error

	Auction(ctx context.Context, assetID int64) (Auction, error)
	SaveAuction(ctx context.Context, a Auction) error
	DeleteAuction(ctx context.Context, assetID int64) error

	AppendBid(ctx context.Context, b Bid) error

	PendingReturn(ctx context.Context, addr common.Address) (int64, error)
	SetPendingReturn(ctx context.Context, addr common.Address, amount int64) error

	Config(ctx context.Context) (GlobalConfig, error)
	SaveConfig(ctx context.Context, cfg GlobalConfig) error

	Commit(ctx context.Context) error
	// Rollback discards the transaction. Calling it after Commit is a no-op,
	// so it is safe to defer unconditionally.
	Rollback(ctx context.Context) error
}

// AuditEntry is a single audit log row, one per committed state transition.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
