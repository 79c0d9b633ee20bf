package rail

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/store/memory"
)

var (
	escrowAddr = common.HexToAddress("0x00000000000000000000000000000000000e5c01")
	buyerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	sellerAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	feeAddr    = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

func newTestLedger() (*Ledger, *memory.Balances) {
	balances := memory.NewBalances()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLedger(balances, escrowAddr, logger), balances
}

func TestCollectThenTransfer(t *testing.T) {
	ledger, balances := newTestLedger()
	ctx := context.Background()
	balances.Deposit(buyerAddr, 100)

	if err := ledger.Collect(ctx, buyerAddr, 60); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := balances.Balance(escrowAddr); got != 60 {
		t.Errorf("escrow balance = %d, want 60", got)
	}
	if got := balances.Balance(buyerAddr); got != 40 {
		t.Errorf("buyer balance = %d, want 40", got)
	}

	if err := ledger.Transfer(ctx, sellerAddr, 60); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := balances.Balance(sellerAddr); got != 60 {
		t.Errorf("seller balance = %d, want 60", got)
	}
	if got := balances.Balance(escrowAddr); got != 0 {
		t.Errorf("escrow balance = %d, want 0", got)
	}
}

func TestCollectInsufficientFunds(t *testing.T) {
	ledger, balances := newTestLedger()
	ctx := context.Background()
	balances.Deposit(buyerAddr, 10)

	if err := ledger.Collect(ctx, buyerAddr, 50); err == nil {
		t.Fatal("Collect succeeded with insufficient funds")
	}
	if got := balances.Balance(buyerAddr); got != 10 {
		t.Errorf("buyer balance = %d, want 10 untouched", got)
	}
	if got := balances.Balance(escrowAddr); got != 0 {
		t.Errorf("escrow balance = %d, want 0", got)
	}
}

func TestTransferBatchAllOrNothing(t *testing.T) {
	ledger, balances := newTestLedger()
	ctx := context.Background()
	balances.Deposit(escrowAddr, 100)

	// Legs sum to 110, escrow holds 100: nothing may move.
	err := ledger.TransferBatch(ctx, []domain.Payment{
		{To: sellerAddr, Amount: 98},
		{To: feeAddr, Amount: 12},
	})
	if err == nil {
		t.Fatal("TransferBatch succeeded beyond escrow balance")
	}
	if got := balances.Balance(escrowAddr); got != 100 {
		t.Errorf("escrow balance = %d, want 100 untouched", got)
	}
	if got := balances.Balance(sellerAddr); got != 0 {
		t.Errorf("seller balance = %d, want 0", got)
	}

	if err := ledger.TransferBatch(ctx, []domain.Payment{
		{To: sellerAddr, Amount: 98},
		{To: feeAddr, Amount: 2},
	}); err != nil {
		t.Fatalf("TransferBatch: %v", err)
	}
	if got := balances.Balance(sellerAddr); got != 98 {
		t.Errorf("seller balance = %d, want 98", got)
	}
	if got := balances.Balance(feeAddr); got != 2 {
		t.Errorf("fee balance = %d, want 2", got)
	}
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	if err := ledger.Transfer(ctx, sellerAddr, 0); err == nil {
		t.Error("Transfer accepted zero amount")
	}
	if err := ledger.Collect(ctx, buyerAddr, -5); err == nil {
		t.Error("Collect accepted negative amount")
	}
	if err := ledger.TransferBatch(ctx, []domain.Payment{{To: feeAddr, Amount: 0}}); err == nil {
		t.Error("TransferBatch accepted zero-amount leg")
	}
}
