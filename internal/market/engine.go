// Package market implements the escrow-and-settlement core of the
// marketplace: the listing and auction lifecycles, bid escrow with
// pull-payment refunds, atomic fee distribution, and the pause switch that
// freezes all fund movement.
//
// Every mutating operation follows the same discipline: acquire the per-key
// lock, stage all internal state changes in a store transaction, invoke the
// external collaborators (ownership oracle, payment rail) only once the
// staged state is final, and commit only if every external call succeeded.
// The transaction boundary is what makes each operation all-or-nothing; the
// per-key lock is what keeps two operations on the same asset from reading
// stale state.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
)

// lockTTL bounds how long a distributed per-key lock may outlive a crashed
// holder. In-process lock managers ignore it.
const lockTTL = 15 * time.Second

// configLockKey serializes admin operations, which touch no single asset.
const configLockKey = "config"

// Engine owns the marketplace state machine. It is safe for concurrent use;
// operations on the same asset id are serialized through the lock manager.
type Engine struct {
	store  domain.MarketplaceStore
	oracle domain.OwnershipOracle
	rail   domain.PaymentRail
	locks  domain.LockManager
	audit  domain.AuditStore
	cache  domain.StatusCache
	bus    domain.EventBus
	logger *slog.Logger

	// operator is the address the marketplace transfers assets with; sellers
	// must have approved it on the NFT contract before listing.
	operator common.Address

	// now is swapped out in tests to control auction expiry.
	now func() time.Time
}

// NewEngine creates an Engine. The status cache and event bus are optional
// and attached with WithStatusCache / WithEventBus.
func NewEngine(
	store domain.MarketplaceStore,
	oracle domain.OwnershipOracle,
	rail domain.PaymentRail,
	locks domain.LockManager,
	audit domain.AuditStore,
	operator common.Address,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		store:    store,
		oracle:   oracle,
		rail:     rail,
		locks:    locks,
		audit:    audit,
		operator: operator,
		logger:   logger.With(slog.String("component", "market")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithStatusCache attaches a read-through cache for status queries.
func (e *Engine) WithStatusCache(c domain.StatusCache) *Engine {
	e.cache = c
	return e
}

// WithEventBus attaches a bus that every audit event is also published on.
func (e *Engine) WithEventBus(b domain.EventBus) *Engine {
	e.bus = b
	return e
}

// Bootstrap seeds the global config when the store holds none yet, so a
// fresh deployment starts with the configured owner, fee, and recipient.
// An existing config is left untouched; admin operations own it from there.
func (e *Engine) Bootstrap(ctx context.Context, cfg domain.GlobalConfig) error {
	if cfg.PlatformFeeBps < 0 || cfg.PlatformFeeBps > domain.MaxFeeBps {
		return fmt.Errorf("%w: platform fee %d bps exceeds cap %d", domain.ErrValidation, cfg.PlatformFeeBps, domain.MaxFeeBps)
	}
	if cfg.Owner == (common.Address{}) {
		return fmt.Errorf("%w: owner address must not be zero", domain.ErrValidation)
	}
	if cfg.FeeRecipient == (common.Address{}) {
		return fmt.Errorf("%w: fee recipient must not be zero", domain.ErrValidation)
	}

	unlock, err := e.lock(ctx, configLockKey)
	if err != nil {
		return err
	}
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("market: begin bootstrap: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Config(ctx); err == nil {
		return nil // already bootstrapped
	} else if !isNotFound(err) {
		return fmt.Errorf("market: read config: %w", err)
	}

	if err := tx.SaveConfig(ctx, cfg); err != nil {
		return fmt.Errorf("market: save initial config: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("market: commit bootstrap: %w", err)
	}

	e.logger.InfoContext(ctx, "marketplace config bootstrapped",
		slog.String("owner", cfg.Owner.Hex()),
		slog.String("fee_recipient", cfg.FeeRecipient.Hex()),
		slog.Int64("platform_fee_bps", cfg.PlatformFeeBps),
	)
	return nil
}

// lock acquires the serialization lock for key, mapping a contended
// non-blocking lock to the StateError the losing caller is promised.
func (e *Engine) lock(ctx context.Context, key string) (func(), error) {
	unlock, err := e.locks.Acquire(ctx, key, lockTTL)
	if err != nil {
		if isLockHeld(err) {
			return nil, fmt.Errorf("%w: concurrent operation in progress", domain.ErrState)
		}
		return nil, fmt.Errorf("market: acquire lock %s: %w", key, err)
	}
	return unlock, nil
}

func assetKey(assetID int64) string {
	return fmt.Sprintf("asset:%d", assetID)
}

func escrowKey(addr common.Address) string {
	return "escrow:" + addr.Hex()
}

// guardNotPaused reads the config inside the transaction and rejects the
// operation when the circuit breaker is on.
func guardNotPaused(ctx context.Context, tx domain.MarketplaceTx) (domain.GlobalConfig, error) {
	cfg, err := tx.Config(ctx)
	if err != nil {
		return domain.GlobalConfig{}, fmt.Errorf("market: read config: %w", err)
	}
	if cfg.Paused {
		return domain.GlobalConfig{}, fmt.Errorf("%w: paused", domain.ErrState)
	}
	return cfg, nil
}

// verifySellerAndApproval checks, via the ownership oracle, that seller owns
// the asset and has authorized the marketplace operator to transfer it.
func (e *Engine) verifySellerAndApproval(ctx context.Context, assetID int64, seller common.Address) error {
	owner, err := e.oracle.OwnerOf(ctx, assetID)
	if err != nil {
		return fmt.Errorf("%w: ownerOf(%d): %v", domain.ErrTransfer, assetID, err)
	}
	if owner != seller {
		return fmt.Errorf("%w: caller does not own asset %d", domain.ErrAuthorization, assetID)
	}

	approved, err := e.oracle.GetApproved(ctx, assetID)
	if err != nil {
		return fmt.Errorf("%w: getApproved(%d): %v", domain.ErrTransfer, assetID, err)
	}
	if approved == e.operator {
		return nil
	}
	all, err := e.oracle.IsApprovedForAll(ctx, seller, e.operator)
	if err != nil {
		return fmt.Errorf("%w: isApprovedForAll(%d): %v", domain.ErrTransfer, assetID, err)
	}
	if !all {
		return fmt.Errorf("%w: marketplace not approved to transfer asset %d", domain.ErrAuthorization, assetID)
	}
	return nil
}

// emit records a committed state transition: append to the audit log and
// publish on the event bus. Both sinks are post-commit and non-fatal: the
// state change already happened and must not be reported as failed.
func (e *Engine) emit(ctx context.Context, event string, detail map[string]any) {
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}

	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{"type": event, "payload": detail})
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, domain.EventChannel, payload); err != nil {
		e.logger.WarnContext(ctx, "event publish failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
	if err := e.bus.StreamAppend(ctx, domain.EventStream, payload); err != nil {
		e.logger.WarnContext(ctx, "event stream append failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// invalidateStatus drops the cached status view after a mutation.
func (e *Engine) invalidateStatus(ctx context.Context, assetID int64) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, assetID); err != nil {
		e.logger.WarnContext(ctx, "status cache invalidate failed",
			slog.Int64("asset_id", assetID),
			slog.String("error", err.Error()),
		)
	}
}

// refundCollected compensates a failed operation that had already pulled
// inbound funds into escrow. The ledger rail cannot reject a payout of funds
// it just accepted, so failure here indicates a rail defect and is logged at
// error level.
func (e *Engine) refundCollected(ctx context.Context, to common.Address, amount int64) {
	if err := e.rail.Transfer(ctx, to, amount); err != nil {
		e.logger.ErrorContext(ctx, "refund of collected funds failed",
			slog.String("to", to.Hex()),
			slog.Int64("amount", amount),
			slog.String("error", err.Error()),
		)
	}
}

// reclaimPaid compensates a failed operation that had already paid funds out
// of escrow: the payout is pulled back so the ledger agrees with the store,
// which rolled the operation back. A failure here leaves the payout and the
// restored claim both live and is logged at error level.
func (e *Engine) reclaimPaid(ctx context.Context, from common.Address, amount int64) {
	if err := e.rail.Collect(ctx, from, amount); err != nil {
		e.logger.ErrorContext(ctx, "reclaim of paid out funds failed",
			slog.String("from", from.Hex()),
			slog.Int64("amount", amount),
			slog.String("error", err.Error()),
		)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

func isLockHeld(err error) bool {
	return errors.Is(err, domain.ErrLockHeld)
}
