package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// FeeDenominator converts basis points to a fraction: 10000 bps = 100%.
	FeeDenominator = 10000

	// MaxFeeBps caps the platform fee at 10%.
	MaxFeeBps = 1000

	// MinAuctionDuration and MaxAuctionDuration bound endTime - creationTime.
	MinAuctionDuration = time.Hour
	MaxAuctionDuration = 7 * 24 * time.Hour
)

// GlobalConfig is the owner-gated marketplace configuration. It is stored as
// a single record and mutated only through the guarded admin operations,
// never a hidden singleton.
type GlobalConfig struct {
	PlatformFeeBps int64 // 0..MaxFeeBps
	FeeRecipient   common.Address
	Paused         bool
	Owner          common.Address
}
