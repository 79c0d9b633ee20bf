package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
)

// Balances is an in-memory account ledger for the payment rail.
type Balances struct {
	mu       sync.RWMutex
	accounts map[common.Address]int64
}

// NewBalances creates an empty ledger.
func NewBalances() *Balances {
	return &Balances{accounts: make(map[common.Address]int64)}
}

// Deposit credits an account from outside the ledger.
func (b *Balances) Deposit(addr common.Address, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[addr] += amount
}

// Balance reads an account's current balance.
func (b *Balances) Balance(addr common.Address) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.accounts[addr]
}

func (b *Balances) Move(ctx context.Context, from, to common.Address, amount int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.accounts[from] < amount {
		return fmt.Errorf("memory: account %s holds %d, needs %d", from.Hex(), b.accounts[from], amount)
	}
	b.accounts[from] -= amount
	b.accounts[to] += amount
	return nil
}

func (b *Balances) MoveBatch(ctx context.Context, from common.Address, payments []domain.Payment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total int64
	for _, p := range payments {
		total += p.Amount
	}
	if b.accounts[from] < total {
		return fmt.Errorf("memory: account %s holds %d, batch needs %d", from.Hex(), b.accounts[from], total)
	}
	b.accounts[from] -= total
	for _, p := range payments {
		b.accounts[p.To] += p.Amount
	}
	return nil
}
