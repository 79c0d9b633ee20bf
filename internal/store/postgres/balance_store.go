package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gavelhq/gavel/internal/domain"
)

// BalanceStore is the account ledger the payment rail settles against.
// Moves run in a transaction with the source row locked, so a debit can
// never race another past the balance check.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a ledger backed by the given connection pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Balance reads an account's current balance; missing accounts hold zero.
func (s *BalanceStore) Balance(ctx context.Context, addr common.Address) (int64, error) {
	const query = `SELECT COALESCE((SELECT amount FROM balances WHERE address = $1), 0)`
	var amount int64
	if err := s.pool.QueryRow(ctx, query, addr.Hex()).Scan(&amount); err != nil {
		return 0, fmt.Errorf("postgres: get balance %s: %w", addr.Hex(), err)
	}
	return amount, nil
}

// Deposit credits an account from outside the ledger.
func (s *BalanceStore) Deposit(ctx context.Context, addr common.Address, amount int64) error {
	const query = `
		INSERT INTO balances (address, amount) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`
	if _, err := s.pool.Exec(ctx, query, addr.Hex(), amount); err != nil {
		return fmt.Errorf("postgres: deposit %d to %s: %w", amount, addr.Hex(), err)
	}
	return nil
}

func (s *BalanceStore) Move(ctx context.Context, from, to common.Address, amount int64) error {
	return s.move(ctx, from, []domain.Payment{{To: to, Amount: amount}})
}

func (s *BalanceStore) MoveBatch(ctx context.Context, from common.Address, payments []domain.Payment) error {
	return s.move(ctx, from, payments)
}

func (s *BalanceStore) move(ctx context.Context, from common.Address, payments []domain.Payment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin move: %w", err)
	}
	defer tx.Rollback(ctx)

	var total int64
	for _, p := range payments {
		total += p.Amount
	}

	var held int64
	err = tx.QueryRow(ctx, `SELECT amount FROM balances WHERE address = $1 FOR UPDATE`, from.Hex()).Scan(&held)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("postgres: lock source balance: %w", err)
	}
	if held < total {
		return fmt.Errorf("postgres: account %s holds %d, needs %d", from.Hex(), held, total)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE balances SET amount = amount - $2 WHERE address = $1`, from.Hex(), total); err != nil {
		return fmt.Errorf("postgres: debit %s: %w", from.Hex(), err)
	}
	for _, p := range payments {
		if _, err := tx.Exec(ctx, `
			INSERT INTO balances (address, amount) VALUES ($1, $2)
			ON CONFLICT (address) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`,
			p.To.Hex(), p.Amount); err != nil {
			return fmt.Errorf("postgres: credit %s: %w", p.To.Hex(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit move: %w", err)
	}
	return nil
}
