package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
)

// CreateAuction opens an English auction on an asset. Duration is clamped
// nowhere: out-of-range durations are rejected outright so a fat-fingered
// value never silently becomes a week-long commitment.
func (e *Engine) CreateAuction(ctx context.Context, assetID int64, seller common.Address, startingPrice int64, duration time.Duration) (domain.Auction, error) {
	if startingPrice <= 0 {
		return domain.Auction{}, fmt.Errorf("%w: starting price must be positive, got %d", domain.ErrValidation, startingPrice)
	}
	if duration < domain.MinAuctionDuration || duration > domain.MaxAuctionDuration {
		return domain.Auction{}, fmt.Errorf("%w: duration %s outside [%s, %s]",
			domain.ErrValidation, duration, domain.MinAuctionDuration, domain.MaxAuctionDuration)
	}

	unlock, err := e.lock(ctx, assetKey(assetID))
	if err != nil {
		return domain.Auction{}, err
	}
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("market: begin create auction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := guardNotPaused(ctx, tx); err != nil {
		return domain.Auction{}, err
	}

	if _, err := tx.Listing(ctx, assetID); err == nil {
		return domain.Auction{}, fmt.Errorf("%w: asset %d is already listed", domain.ErrState, assetID)
	} else if !isNotFound(err) {
		return domain.Auction{}, fmt.Errorf("market: read listing: %w", err)
	}
	if prev, err := tx.Auction(ctx, assetID); err == nil {
		// A settled row survives only to keep EndAuction idempotent; a new
		// auction replaces it.
		if !prev.Settled {
			return domain.Auction{}, fmt.Errorf("%w: asset %d is already in an auction", domain.ErrState, assetID)
		}
	} else if !isNotFound(err) {
		return domain.Auction{}, fmt.Errorf("market: read auction: %w", err)
	}

	if err := e.verifySellerAndApproval(ctx, assetID, seller); err != nil {
		return domain.Auction{}, err
	}

	now := e.now()
	auc := domain.Auction{
		AssetID:       assetID,
		Seller:        seller,
		StartingPrice: startingPrice,
		EndTime:       now.Add(duration),
		Active:        true,
		CreatedAt:     now,
	}
	if err := tx.SaveAuction(ctx, auc); err != nil {
		return domain.Auction{}, fmt.Errorf("market: save auction: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Auction{}, fmt.Errorf("market: commit create auction: %w", err)
	}

	e.invalidateStatus(ctx, assetID)
	e.emit(ctx, domain.EventAuctionCreated, map[string]any{
		"asset_id":       assetID,
		"seller":         seller.Hex(),
		"starting_price": startingPrice,
		"end_time":       auc.EndTime.Format(time.RFC3339),
	})
	return auc, nil
}

// PlaceBid escrows a bid on an open auction. The full bid amount is pulled
// from the bidder; the previous highest bid, if any, is credited to that
// bidder's pending returns rather than pushed back, so a hostile bidder can
// never block the auction by refusing a refund.
func (e *Engine) PlaceBid(ctx context.Context, assetID int64, bidder common.Address, amount int64) (domain.Auction, error) {
	if amount <= 0 {
		return domain.Auction{}, fmt.Errorf("%w: bid must be positive, got %d", domain.ErrValidation, amount)
	}

	unlock, err := e.lock(ctx, assetKey(assetID))
	if err != nil {
		return domain.Auction{}, err
	}
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("market: begin bid: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := guardNotPaused(ctx, tx); err != nil {
		return domain.Auction{}, err
	}

	auc, err := tx.Auction(ctx, assetID)
	if err != nil {
		if isNotFound(err) {
			return domain.Auction{}, fmt.Errorf("%w: asset %d is not in an auction", domain.ErrState, assetID)
		}
		return domain.Auction{}, fmt.Errorf("market: read auction: %w", err)
	}
	now := e.now()
	if !auc.Active || auc.Settled || !now.Before(auc.EndTime) {
		return domain.Auction{}, fmt.Errorf("%w: auction for asset %d has ended", domain.ErrState, assetID)
	}
	if bidder == auc.Seller {
		return domain.Auction{}, fmt.Errorf("%w: seller cannot bid on their own auction", domain.ErrAuthorization)
	}
	if auc.HasBid() {
		if amount <= auc.HighestBid {
			return domain.Auction{}, fmt.Errorf("%w: bid %d must exceed current bid %d", domain.ErrValidation, amount, auc.HighestBid)
		}
	} else if amount < auc.StartingPrice {
		return domain.Auction{}, fmt.Errorf("%w: bid %d below starting price %d", domain.ErrValidation, amount, auc.StartingPrice)
	}

	prevBidder := auc.HighestBidder
	prevBid := auc.HighestBid

	if auc.HasBid() {
		pending, err := tx.PendingReturn(ctx, prevBidder)
		if err != nil && !isNotFound(err) {
			return domain.Auction{}, fmt.Errorf("market: read pending return: %w", err)
		}
		if err := tx.SetPendingReturn(ctx, prevBidder, pending+prevBid); err != nil {
			return domain.Auction{}, fmt.Errorf("market: credit pending return: %w", err)
		}
	}

	auc.HighestBid = amount
	auc.HighestBidder = bidder
	if err := tx.SaveAuction(ctx, auc); err != nil {
		return domain.Auction{}, fmt.Errorf("market: save auction: %w", err)
	}
	if err := tx.AppendBid(ctx, domain.Bid{AssetID: assetID, Bidder: bidder, Amount: amount, PlacedAt: now}); err != nil {
		return domain.Auction{}, fmt.Errorf("market: append bid: %w", err)
	}

	if err := e.rail.Collect(ctx, bidder, amount); err != nil {
		return domain.Auction{}, fmt.Errorf("%w: collect bid from bidder: %v", domain.ErrTransfer, err)
	}

	if err := tx.Commit(ctx); err != nil {
		e.refundCollected(ctx, bidder, amount)
		return domain.Auction{}, fmt.Errorf("market: commit bid: %w", err)
	}

	e.invalidateStatus(ctx, assetID)
	e.emit(ctx, domain.EventBidPlaced, map[string]any{
		"asset_id": assetID,
		"bidder":   bidder.Hex(),
		"amount":   amount,
	})
	if prevBid > 0 && prevBidder != bidder {
		e.emit(ctx, domain.EventBidOutbid, map[string]any{
			"asset_id":   assetID,
			"bidder":     prevBidder.Hex(),
			"amount":     prevBid,
			"new_amount": amount,
		})
	}
	return auc, nil
}

// EndAuction settles an auction whose end time has passed. Anyone may call
// it; expiry is decided by the clock, not the caller. A sold auction pays
// the seller and the fee recipient from the escrowed winning bid and moves
// the asset to the winner; an auction with no bids simply closes. Settlement
// is idempotent: a second call on a settled auction reports a state error
// and moves no funds.
func (e *Engine) EndAuction(ctx context.Context, assetID int64) (domain.Auction, error) {
	unlock, err := e.lock(ctx, assetKey(assetID))
	if err != nil {
		return domain.Auction{}, err
	}
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("market: begin settle: %w", err)
	}
	defer tx.Rollback(ctx)

	cfg, err := guardNotPaused(ctx, tx)
	if err != nil {
		return domain.Auction{}, err
	}

	auc, err := tx.Auction(ctx, assetID)
	if err != nil {
		if isNotFound(err) {
			return domain.Auction{}, fmt.Errorf("%w: asset %d is not in an auction", domain.ErrState, assetID)
		}
		return domain.Auction{}, fmt.Errorf("market: read auction: %w", err)
	}
	if auc.Settled {
		return domain.Auction{}, fmt.Errorf("%w: auction for asset %d is already settled", domain.ErrState, assetID)
	}
	if e.now().Before(auc.EndTime) {
		return domain.Auction{}, fmt.Errorf("%w: auction for asset %d has not ended yet", domain.ErrState, assetID)
	}

	auc.Active = false
	auc.Settled = true
	if err := tx.SaveAuction(ctx, auc); err != nil {
		return domain.Auction{}, fmt.Errorf("market: save auction: %w", err)
	}

	var feeAmount int64
	if auc.HasBid() {
		var sellerAmount int64
		sellerAmount, feeAmount = splitFee(auc.HighestBid, cfg.PlatformFeeBps)

		if err := e.oracle.TransferFrom(ctx, auc.Seller, auc.HighestBidder, assetID); err != nil {
			return domain.Auction{}, fmt.Errorf("%w: transfer asset %d to winner: %v", domain.ErrTransfer, assetID, err)
		}
		payments := []domain.Payment{{To: auc.Seller, Amount: sellerAmount}}
		if feeAmount > 0 {
			payments = append(payments, domain.Payment{To: cfg.FeeRecipient, Amount: feeAmount})
		}
		if err := e.rail.TransferBatch(ctx, payments); err != nil {
			if rerr := e.oracle.TransferFrom(ctx, auc.HighestBidder, auc.Seller, assetID); rerr != nil {
				e.logger.ErrorContext(ctx, "asset return after payout failure also failed",
					slog.Int64("asset_id", assetID),
					slog.String("error", rerr.Error()),
				)
			}
			return domain.Auction{}, fmt.Errorf("%w: pay out auction proceeds: %v", domain.ErrTransfer, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Auction{}, fmt.Errorf("market: commit settle: %w", err)
	}

	e.invalidateStatus(ctx, assetID)
	detail := map[string]any{
		"asset_id": assetID,
		"seller":   auc.Seller.Hex(),
		"sold":     auc.HasBid(),
	}
	if auc.HasBid() {
		detail["winner"] = auc.HighestBidder.Hex()
		detail["price"] = auc.HighestBid
		detail["fee"] = feeAmount
	}
	e.emit(ctx, domain.EventAuctionEnded, detail)
	return auc, nil
}

// CancelAuction aborts an auction that has received no bids. Once the first
// bid is escrowed the seller is committed and only settlement can close the
// auction.
func (e *Engine) CancelAuction(ctx context.Context, assetID int64, caller common.Address) error {
	unlock, err := e.lock(ctx, assetKey(assetID))
	if err != nil {
		return err
	}
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("market: begin cancel auction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := guardNotPaused(ctx, tx); err != nil {
		return err
	}

	auc, err := tx.Auction(ctx, assetID)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: asset %d is not in an auction", domain.ErrState, assetID)
		}
		return fmt.Errorf("market: read auction: %w", err)
	}
	if auc.Seller != caller {
		return fmt.Errorf("%w: only the seller may cancel the auction", domain.ErrAuthorization)
	}
	if auc.Settled {
		return fmt.Errorf("%w: auction for asset %d is already settled", domain.ErrState, assetID)
	}
	if auc.HasBid() {
		return fmt.Errorf("%w: auction for asset %d has bids and cannot be cancelled", domain.ErrState, assetID)
	}

	if err := tx.DeleteAuction(ctx, assetID); err != nil {
		return fmt.Errorf("market: delete auction: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("market: commit cancel auction: %w", err)
	}

	e.invalidateStatus(ctx, assetID)
	e.emit(ctx, domain.EventAuctionCancelled, map[string]any{
		"asset_id": assetID,
		"seller":   caller.Hex(),
	})
	return nil
}
