package market

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
)

// Withdraw pays out the caller's entire pending-return balance. The ledger
// entry is zeroed before the payment rail is invoked; a rail failure rolls
// the zeroing back, and a commit failure after a successful payout pulls the
// payout back, so the funds are either paid or still claimable, never both
// and never neither.
func (e *Engine) Withdraw(ctx context.Context, caller common.Address) (int64, error) {
	unlock, err := e.lock(ctx, escrowKey(caller))
	if err != nil {
		return 0, err
	}
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("market: begin withdraw: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := guardNotPaused(ctx, tx); err != nil {
		return 0, err
	}

	amount, err := tx.PendingReturn(ctx, caller)
	if err != nil && !isNotFound(err) {
		return 0, fmt.Errorf("market: read pending return: %w", err)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: no pending funds to withdraw", domain.ErrState)
	}

	if err := tx.SetPendingReturn(ctx, caller, 0); err != nil {
		return 0, fmt.Errorf("market: zero pending return: %w", err)
	}

	if err := e.rail.Transfer(ctx, caller, amount); err != nil {
		return 0, fmt.Errorf("%w: pay out withdrawal: %v", domain.ErrTransfer, err)
	}

	if err := tx.Commit(ctx); err != nil {
		e.reclaimPaid(ctx, caller, amount)
		return 0, fmt.Errorf("market: commit withdraw: %w", err)
	}

	e.emit(ctx, domain.EventFundsWithdrawn, map[string]any{
		"address": caller.Hex(),
		"amount":  amount,
	})
	return amount, nil
}
