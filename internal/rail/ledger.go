// Package rail implements the payment rail over an account-balance ledger.
// The marketplace holds escrowed funds in a single system account; every
// collect debits the payer into that account, every payout debits it back
// out. What the ledger is stored in (memory or postgres) is behind the
// BalanceStore interface.
package rail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
)

// BalanceStore is the slice of the balance ledger the rail needs: atomic
// single moves and all-or-nothing multi-leg moves from one source account.
// A move fails when the source account cannot cover it.
type BalanceStore interface {
	Move(ctx context.Context, from, to common.Address, amount int64) error
	MoveBatch(ctx context.Context, from common.Address, payments []domain.Payment) error
}

// Ledger is a domain.PaymentRail that settles against a BalanceStore.
type Ledger struct {
	balances BalanceStore
	escrow   common.Address
	logger   *slog.Logger
}

// NewLedger creates a rail holding escrowed funds in the escrow account.
func NewLedger(balances BalanceStore, escrow common.Address, logger *slog.Logger) *Ledger {
	return &Ledger{
		balances: balances,
		escrow:   escrow,
		logger:   logger.With(slog.String("component", "rail")),
	}
}

// Transfer pays amount out of escrow to a single recipient.
func (l *Ledger) Transfer(ctx context.Context, to common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("rail: transfer amount %d must be positive", amount)
	}
	if err := l.balances.Move(ctx, l.escrow, to, amount); err != nil {
		return fmt.Errorf("rail: transfer %d to %s: %w", amount, to.Hex(), err)
	}
	return nil
}

// TransferBatch pays every leg out of escrow, all-or-nothing.
func (l *Ledger) TransferBatch(ctx context.Context, payments []domain.Payment) error {
	for _, p := range payments {
		if p.Amount <= 0 {
			return fmt.Errorf("rail: batch leg amount %d must be positive", p.Amount)
		}
	}
	if err := l.balances.MoveBatch(ctx, l.escrow, payments); err != nil {
		return fmt.Errorf("rail: batch payout: %w", err)
	}
	return nil
}

// Collect pulls amount from the payer's account into escrow.
func (l *Ledger) Collect(ctx context.Context, from common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("rail: collect amount %d must be positive", amount)
	}
	if err := l.balances.Move(ctx, from, l.escrow, amount); err != nil {
		return fmt.Errorf("rail: collect %d from %s: %w", amount, from.Hex(), err)
	}
	return nil
}
