package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OwnershipOracle is the narrow capability set the engine needs from the NFT
// contract: validate sellers at listing/auction-creation time and execute the
// asset transfer at settlement. The engine never stores asset ownership
// itself.
type OwnershipOracle interface {
	OwnerOf(ctx context.Context, assetID int64) (common.Address, error)
	TransferFrom(ctx context.Context, from, to common.Address, assetID int64) error
	GetApproved(ctx context.Context, assetID int64) (common.Address, error)
	IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error)
}

// Payment is one outbound leg of a settlement.
type Payment struct {
	To     common.Address
	Amount int64
}

// PaymentRail moves funds between the marketplace escrow account and the
// outside world. Transfer pays out a single leg (withdrawals); TransferBatch
// executes a multi-leg payout all-or-nothing so a sale's seller proceeds, fee
// payout, and overpayment refund land together or not at all; Collect pulls
// the inbound amount that a buy/bid call carries into escrow before any state
// changes.
type PaymentRail interface {
	Transfer(ctx context.Context, to common.Address, amount int64) error
	TransferBatch(ctx context.Context, payments []Payment) error
	Collect(ctx context.Context, from common.Address, amount int64) error
}

// LockManager serializes mutating operations per key (asset id, withdrawing
// address, config). Implementations may block until the lock is free or fail
// fast with ErrLockHeld.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StatusCache is a read-through cache for status queries. Cache failures are
// never fatal; the store remains authoritative.
type StatusCache interface {
	Set(ctx context.Context, st StatusView) error
	Get(ctx context.Context, assetID int64) (StatusView, error)
	Invalidate(ctx context.Context, assetID int64) error
}

// RateLimiter throttles requests per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is a single entry read back from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventBus fans audit events out to downstream consumers: ephemeral Pub/Sub
// for live subscribers and a durable stream for indexers that replay.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
