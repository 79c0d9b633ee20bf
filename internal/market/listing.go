package market

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
)

// ListItem puts an asset up for sale at a fixed price. The seller must own
// the asset and must have approved the marketplace operator to transfer it;
// the asset itself stays in the seller's wallet until a sale completes.
func (e *Engine) ListItem(ctx context.Context, assetID int64, seller common.Address, price int64) (domain.Listing, error) {
	if price <= 0 {
		return domain.Listing{}, fmt.Errorf("%w: price must be positive, got %d", domain.ErrValidation, price)
	}

	unlock, err := e.lock(ctx, assetKey(assetID))
	if err != nil {
		return domain.Listing{}, err
	}
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("market: begin list: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := guardNotPaused(ctx, tx); err != nil {
		return domain.Listing{}, err
	}

	if _, err := tx.Listing(ctx, assetID); err == nil {
		return domain.Listing{}, fmt.Errorf("%w: asset %d is already listed", domain.ErrState, assetID)
	} else if !isNotFound(err) {
		return domain.Listing{}, fmt.Errorf("market: read listing: %w", err)
	}
	if auc, err := tx.Auction(ctx, assetID); err == nil {
		// A settled row survives only to keep EndAuction idempotent; it no
		// longer occupies the asset.
		if !auc.Settled {
			return domain.Listing{}, fmt.Errorf("%w: asset %d is in an auction", domain.ErrState, assetID)
		}
	} else if !isNotFound(err) {
		return domain.Listing{}, fmt.Errorf("market: read auction: %w", err)
	}

	if err := e.verifySellerAndApproval(ctx, assetID, seller); err != nil {
		return domain.Listing{}, err
	}

	now := e.now()
	lst := domain.Listing{
		AssetID:   assetID,
		Seller:    seller,
		Price:     price,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.SaveListing(ctx, lst); err != nil {
		return domain.Listing{}, fmt.Errorf("market: save listing: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Listing{}, fmt.Errorf("market: commit list: %w", err)
	}

	e.invalidateStatus(ctx, assetID)
	e.emit(ctx, domain.EventItemListed, map[string]any{
		"asset_id": assetID,
		"seller":   seller.Hex(),
		"price":    price,
	})
	return lst, nil
}

// UpdateListing changes the asking price of an active listing. Only the
// seller may reprice.
func (e *Engine) UpdateListing(ctx context.Context, assetID int64, caller common.Address, newPrice int64) (domain.Listing, error) {
	if newPrice <= 0 {
		return domain.Listing{}, fmt.Errorf("%w: price must be positive, got %d", domain.ErrValidation, newPrice)
	}

	unlock, err := e.lock(ctx, assetKey(assetID))
	if err != nil {
		return domain.Listing{}, err
	}
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("market: begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := guardNotPaused(ctx, tx); err != nil {
		return domain.Listing{}, err
	}

	lst, err := tx.Listing(ctx, assetID)
	if err != nil {
		if isNotFound(err) {
			return domain.Listing{}, fmt.Errorf("%w: asset %d is not listed", domain.ErrState, assetID)
		}
		return domain.Listing{}, fmt.Errorf("market: read listing: %w", err)
	}
	if lst.Seller != caller {
		return domain.Listing{}, fmt.Errorf("%w: only the seller may update the listing", domain.ErrAuthorization)
	}

	oldPrice := lst.Price
	lst.Price = newPrice
	lst.UpdatedAt = e.now()
	if err := tx.SaveListing(ctx, lst); err != nil {
		return domain.Listing{}, fmt.Errorf("market: save listing: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Listing{}, fmt.Errorf("market: commit update: %w", err)
	}

	e.invalidateStatus(ctx, assetID)
	e.emit(ctx, domain.EventListingUpdated, map[string]any{
		"asset_id":  assetID,
		"seller":    caller.Hex(),
		"old_price": oldPrice,
		"new_price": newPrice,
	})
	return lst, nil
}

// CancelListing takes an asset off the market. Only the seller may cancel.
func (e *Engine) CancelListing(ctx context.Context, assetID int64, caller common.Address) error {
	unlock, err := e.lock(ctx, assetKey(assetID))
	if err != nil {
		return err
	}
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("market: begin cancel: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := guardNotPaused(ctx, tx); err != nil {
		return err
	}

	lst, err := tx.Listing(ctx, assetID)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: asset %d is not listed", domain.ErrState, assetID)
		}
		return fmt.Errorf("market: read listing: %w", err)
	}
	if lst.Seller != caller {
		return fmt.Errorf("%w: only the seller may cancel the listing", domain.ErrAuthorization)
	}

	if err := tx.DeleteListing(ctx, assetID); err != nil {
		return fmt.Errorf("market: delete listing: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("market: commit cancel: %w", err)
	}

	e.invalidateStatus(ctx, assetID)
	e.emit(ctx, domain.EventListingCancelled, map[string]any{
		"asset_id": assetID,
		"seller":   caller.Hex(),
	})
	return nil
}

// BuyItem settles a fixed-price sale atomically: the buyer's payment is
// pulled into escrow, the asset moves from seller to buyer, and the escrowed
// funds are paid out to the seller, the fee recipient, and (for any
// overpayment) back to the buyer in one batch. Any failure after the payment
// was collected refunds the buyer before the operation reports the error;
// the listing itself is removed only when the whole chain succeeded.
func (e *Engine) BuyItem(ctx context.Context, assetID int64, buyer common.Address, paid int64) error {
	unlock, err := e.lock(ctx, assetKey(assetID))
	if err != nil {
		return err
	}
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("market: begin buy: %w", err)
	}
	defer tx.Rollback(ctx)

	cfg, err := guardNotPaused(ctx, tx)
	if err != nil {
		return err
	}

	lst, err := tx.Listing(ctx, assetID)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: asset %d is not listed", domain.ErrState, assetID)
		}
		return fmt.Errorf("market: read listing: %w", err)
	}
	if buyer == lst.Seller {
		return fmt.Errorf("%w: seller cannot buy their own listing", domain.ErrValidation)
	}
	if paid < lst.Price {
		return fmt.Errorf("%w: payment %d below price %d", domain.ErrValidation, paid, lst.Price)
	}

	sellerAmount, feeAmount := splitFee(lst.Price, cfg.PlatformFeeBps)

	if err := tx.DeleteListing(ctx, assetID); err != nil {
		return fmt.Errorf("market: delete listing: %w", err)
	}

	// Interactions. Payment first, so a buyer who cannot pay never touches
	// the asset; asset second, so funds are refundable if it cannot move.
	if err := e.rail.Collect(ctx, buyer, paid); err != nil {
		return fmt.Errorf("%w: collect payment from buyer: %v", domain.ErrTransfer, err)
	}
	if err := e.oracle.TransferFrom(ctx, lst.Seller, buyer, assetID); err != nil {
		e.refundCollected(ctx, buyer, paid)
		return fmt.Errorf("%w: transfer asset %d: %v", domain.ErrTransfer, assetID, err)
	}

	payments := []domain.Payment{{To: lst.Seller, Amount: sellerAmount}}
	if feeAmount > 0 {
		payments = append(payments, domain.Payment{To: cfg.FeeRecipient, Amount: feeAmount})
	}
	if excess := paid - lst.Price; excess > 0 {
		payments = append(payments, domain.Payment{To: buyer, Amount: excess})
	}
	if err := e.rail.TransferBatch(ctx, payments); err != nil {
		// The asset already moved; try to put it back, refund the buyer
		// either way, and surface the failure.
		if rerr := e.oracle.TransferFrom(ctx, buyer, lst.Seller, assetID); rerr != nil {
			e.logger.ErrorContext(ctx, "asset return after payout failure also failed",
				slog.Int64("asset_id", assetID),
				slog.String("error", rerr.Error()),
			)
		}
		e.refundCollected(ctx, buyer, paid)
		return fmt.Errorf("%w: pay out sale proceeds: %v", domain.ErrTransfer, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("market: commit buy: %w", err)
	}

	e.invalidateStatus(ctx, assetID)
	e.emit(ctx, domain.EventItemSold, map[string]any{
		"asset_id": assetID,
		"seller":   lst.Seller.Hex(),
		"buyer":    buyer.Hex(),
		"price":    lst.Price,
		"fee":      feeAmount,
	})
	return nil
}
