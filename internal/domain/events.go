package domain

// Audit event names, one per observable state transition. Every event detail
// carries the asset id and the addresses/amounts relevant to the transition.
const (
	EventItemListed          = "item_listed"
	EventListingUpdated      = "listing_updated"
	EventListingCancelled    = "listing_cancelled"
	EventItemSold            = "item_sold"
	EventAuctionCreated      = "auction_created"
	EventBidPlaced           = "bid_placed"
	EventBidOutbid           = "bid_outbid"
	EventAuctionEnded        = "auction_ended"
	EventAuctionCancelled    = "auction_cancelled"
	EventFundsWithdrawn      = "funds_withdrawn"
	EventPlatformFeeUpdated  = "platform_fee_updated"
	EventFeeRecipientUpdated = "fee_recipient_updated"
	EventMarketplacePaused   = "marketplace_paused"
)

// EventChannel is the bus channel all marketplace events are published on.
const EventChannel = "market.events"

// EventStream is the durable stream mirroring EventChannel for replay.
const EventStream = "stream:market.events"
