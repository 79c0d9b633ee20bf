package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gavelhq/gavel/internal/domain"
)

// Relay consumes the marketplace event bus and turns selected events into
// operator notifications. It runs until the context is cancelled; bus or
// sender failures are logged and never stop the relay.
type Relay struct {
	bus      domain.EventBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewRelay creates a relay from the bus to the notifier.
func NewRelay(bus domain.EventBus, notifier *Notifier, logger *slog.Logger) *Relay {
	return &Relay{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_relay")),
	}
}

// busEvent is the envelope the engine publishes on the event channel.
type busEvent struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Run subscribes to the event channel and forwards events until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ch, err := r.bus.Subscribe(ctx, domain.EventChannel)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", domain.EventChannel, err)
	}

	r.logger.InfoContext(ctx, "notification relay started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			var ev busEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				r.logger.WarnContext(ctx, "malformed bus event",
					slog.String("error", err.Error()),
				)
				continue
			}
			title, message := render(ev)
			if err := r.notifier.Notify(ctx, ev.Type, title, message); err != nil {
				r.logger.WarnContext(ctx, "notification delivery failed",
					slog.String("event", ev.Type),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// render formats a bus event into a notification title and body.
func render(ev busEvent) (title, message string) {
	assetID := ev.Payload["asset_id"]

	switch ev.Type {
	case domain.EventItemSold:
		return "Item sold",
			fmt.Sprintf("Asset %v sold for %v (fee %v) to %v", assetID, ev.Payload["price"], ev.Payload["fee"], ev.Payload["buyer"])
	case domain.EventAuctionEnded:
		if sold, _ := ev.Payload["sold"].(bool); sold {
			return "Auction won",
				fmt.Sprintf("Asset %v won by %v at %v (fee %v)", assetID, ev.Payload["winner"], ev.Payload["price"], ev.Payload["fee"])
		}
		return "Auction closed unsold", fmt.Sprintf("Asset %v received no bids", assetID)
	case domain.EventBidOutbid:
		return "Bidder outbid",
			fmt.Sprintf("Asset %v: %v outbid at %v by a bid of %v; funds are claimable", assetID, ev.Payload["bidder"], ev.Payload["amount"], ev.Payload["new_amount"])
	case domain.EventMarketplacePaused:
		if paused, _ := ev.Payload["paused"].(bool); paused {
			return "Marketplace paused", "All operations are frozen"
		}
		return "Marketplace resumed", "Operations are accepted again"
	default:
		body, _ := json.Marshal(ev.Payload)
		return ev.Type, string(body)
	}
}
