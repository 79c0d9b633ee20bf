package market

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
)

// GetStatus returns the unified lifecycle view of an asset: whether it is
// listed, in an auction, or neither, and the price a buyer would act on.
// The cached view, when present, is served as-is; mutations invalidate it.
func (e *Engine) GetStatus(ctx context.Context, assetID int64) (domain.StatusView, error) {
	if assetID < 0 {
		return domain.StatusView{}, fmt.Errorf("%w: negative asset id %d", domain.ErrValidation, assetID)
	}

	if e.cache != nil {
		if st, err := e.cache.Get(ctx, assetID); err == nil {
			return st, nil
		} else if !isNotFound(err) {
			e.logger.WarnContext(ctx, "status cache read failed",
				slog.Int64("asset_id", assetID),
				slog.String("error", err.Error()),
			)
		}
	}

	st := domain.StatusView{AssetID: assetID, Status: domain.AssetStatusNone}

	if lst, err := e.store.Listing(ctx, assetID); err == nil {
		st.Status = domain.AssetStatusListed
		st.Price = lst.Price
		st.Seller = lst.Seller
	} else if !isNotFound(err) {
		return domain.StatusView{}, fmt.Errorf("market: read listing: %w", err)
	} else if auc, err := e.store.Auction(ctx, assetID); err == nil {
		if !auc.Settled {
			st.Status = domain.AssetStatusInAuction
			st.Price = auc.CurrentPrice()
			st.Seller = auc.Seller
			st.EndTime = auc.EndTime
		}
	} else if !isNotFound(err) {
		return domain.StatusView{}, fmt.Errorf("market: read auction: %w", err)
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, st); err != nil {
			e.logger.WarnContext(ctx, "status cache write failed",
				slog.Int64("asset_id", assetID),
				slog.String("error", err.Error()),
			)
		}
	}
	return st, nil
}

// ListListings returns fixed-price listings, newest first.
func (e *Engine) ListListings(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	lst, err := e.store.ListListings(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market: list listings: %w", err)
	}
	return lst, nil
}

// ListAuctions returns auctions, newest first, settled ones included.
func (e *Engine) ListAuctions(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	aucs, err := e.store.ListAuctions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market: list auctions: %w", err)
	}
	return aucs, nil
}

// ListBids returns the accepted-bid journal for one auction, oldest first.
func (e *Engine) ListBids(ctx context.Context, assetID int64, opts domain.ListOpts) ([]domain.Bid, error) {
	bids, err := e.store.ListBids(ctx, assetID, opts)
	if err != nil {
		return nil, fmt.Errorf("market: list bids: %w", err)
	}
	return bids, nil
}

// PendingReturn reads an address's claimable pull-payment balance.
func (e *Engine) PendingReturn(ctx context.Context, addr common.Address) (int64, error) {
	amount, err := e.store.PendingReturn(ctx, addr)
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("market: read pending return: %w", err)
	}
	return amount, nil
}

// HeldBalance is the total the system must be holding on behalf of users:
// every pending return plus every escrowed highest bid on an open auction.
func (e *Engine) HeldBalance(ctx context.Context) (int64, error) {
	pending, err := e.store.PendingTotal(ctx)
	if err != nil {
		return 0, fmt.Errorf("market: sum pending returns: %w", err)
	}
	open, err := e.store.OpenBidTotal(ctx)
	if err != nil {
		return 0, fmt.Errorf("market: sum open bids: %w", err)
	}
	return pending + open, nil
}

// Config exposes the current global configuration for the API surface.
func (e *Engine) Config(ctx context.Context) (domain.GlobalConfig, error) {
	cfg, err := e.store.Config(ctx)
	if err != nil {
		return domain.GlobalConfig{}, fmt.Errorf("market: read config: %w", err)
	}
	return cfg, nil
}

// AuditLog exposes the audit trail for the API surface.
func (e *Engine) AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	entries, err := e.audit.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market: list audit log: %w", err)
	}
	return entries, nil
}
