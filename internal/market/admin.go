package market

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
)

// requireOwner loads the config and rejects callers other than the owner.
func requireOwner(ctx context.Context, tx domain.MarketplaceTx, caller common.Address) (domain.GlobalConfig, error) {
	cfg, err := tx.Config(ctx)
	if err != nil {
		return domain.GlobalConfig{}, fmt.Errorf("market: read config: %w", err)
	}
	if cfg.Owner != caller {
		return domain.GlobalConfig{}, fmt.Errorf("%w: caller is not the marketplace owner", domain.ErrAuthorization)
	}
	return cfg, nil
}

// TogglePause flips the circuit breaker. While paused every mutating
// operation is rejected, freezing all fund movement in one call. Returns the
// new paused state. Pause itself is deliberately exempt from the paused
// check so the owner can always unpause.
func (e *Engine) TogglePause(ctx context.Context, caller common.Address) (bool, error) {
	unlock, err := e.lock(ctx, configLockKey)
	if err != nil {
		return false, err
	}
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("market: begin toggle pause: %w", err)
	}
	defer tx.Rollback(ctx)

	cfg, err := requireOwner(ctx, tx, caller)
	if err != nil {
		return false, err
	}

	cfg.Paused = !cfg.Paused
	if err := tx.SaveConfig(ctx, cfg); err != nil {
		return false, fmt.Errorf("market: save config: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("market: commit toggle pause: %w", err)
	}

	e.emit(ctx, domain.EventMarketplacePaused, map[string]any{
		"paused": cfg.Paused,
		"owner":  caller.Hex(),
	})
	return cfg.Paused, nil
}

// SetPlatformFee changes the basis-point fee taken on every sale. The cap
// protects sellers from a compromised or careless owner key.
func (e *Engine) SetPlatformFee(ctx context.Context, caller common.Address, bps int64) error {
	if bps < 0 || bps > domain.MaxFeeBps {
		return fmt.Errorf("%w: fee %d bps outside [0, %d]", domain.ErrValidation, bps, domain.MaxFeeBps)
	}

	unlock, err := e.lock(ctx, configLockKey)
	if err != nil {
		return err
	}
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("market: begin set fee: %w", err)
	}
	defer tx.Rollback(ctx)

	cfg, err := requireOwner(ctx, tx, caller)
	if err != nil {
		return err
	}

	oldBps := cfg.PlatformFeeBps
	cfg.PlatformFeeBps = bps
	if err := tx.SaveConfig(ctx, cfg); err != nil {
		return fmt.Errorf("market: save config: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("market: commit set fee: %w", err)
	}

	e.emit(ctx, domain.EventPlatformFeeUpdated, map[string]any{
		"old_bps": oldBps,
		"new_bps": bps,
	})
	return nil
}

// SetFeeRecipient changes where platform fees are pushed.
func (e *Engine) SetFeeRecipient(ctx context.Context, caller, recipient common.Address) error {
	if recipient == (common.Address{}) {
		return fmt.Errorf("%w: fee recipient must not be zero", domain.ErrValidation)
	}

	unlock, err := e.lock(ctx, configLockKey)
	if err != nil {
		return err
	}
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("market: begin set fee recipient: %w", err)
	}
	defer tx.Rollback(ctx)

	cfg, err := requireOwner(ctx, tx, caller)
	if err != nil {
		return err
	}

	old := cfg.FeeRecipient
	cfg.FeeRecipient = recipient
	if err := tx.SaveConfig(ctx, cfg); err != nil {
		return fmt.Errorf("market: save config: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("market: commit set fee recipient: %w", err)
	}

	e.emit(ctx, domain.EventFeeRecipientUpdated, map[string]any{
		"old_recipient": old.Hex(),
		"new_recipient": recipient.Hex(),
	})
	return nil
}
