package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
)

// Outbid, then withdraw: the displaced bidder's full amount is claimable
// exactly once.
func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(7, seller)
	f.balances.Deposit(bidderA, 10)
	f.balances.Deposit(bidderB, 12)

	if _, err := f.engine.CreateAuction(ctx, 7, seller, 5, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.PlaceBid(ctx, 7, bidderA, 10); err != nil {
		t.Fatalf("bid A: %v", err)
	}
	if _, err := f.engine.PlaceBid(ctx, 7, bidderB, 12); err != nil {
		t.Fatalf("bid B: %v", err)
	}

	amount, err := f.engine.Withdraw(ctx, bidderA)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount != 10 {
		t.Errorf("withdrew %d, want 10", amount)
	}
	if bal := f.balances.Balance(bidderA); bal != 10 {
		t.Errorf("bidder A balance = %d, want 10", bal)
	}
	if pending, _ := f.engine.PendingReturn(ctx, bidderA); pending != 0 {
		t.Errorf("pending after withdraw = %d, want 0", pending)
	}

	// Nothing left to claim.
	_, err = f.engine.Withdraw(ctx, bidderA)
	wantErrClass(t, err, domain.ErrState)
}

func TestWithdrawNothingPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.Withdraw(ctx, bidderA)
	wantErrClass(t, err, domain.ErrState)
}

// A rail failure restores the ledger entry so the funds stay claimable.
func TestWithdrawRestoredOnRailFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(7, seller)
	f.balances.Deposit(bidderA, 10)
	f.balances.Deposit(bidderB, 12)

	if _, err := f.engine.CreateAuction(ctx, 7, seller, 5, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.PlaceBid(ctx, 7, bidderA, 10); err != nil {
		t.Fatalf("bid A: %v", err)
	}
	if _, err := f.engine.PlaceBid(ctx, 7, bidderB, 12); err != nil {
		t.Fatalf("bid B: %v", err)
	}

	f.rail.failTransfer = true
	_, err := f.engine.Withdraw(ctx, bidderA)
	wantErrClass(t, err, domain.ErrTransfer)

	if pending, _ := f.engine.PendingReturn(ctx, bidderA); pending != 10 {
		t.Errorf("pending after failed withdraw = %d, want 10 restored", pending)
	}
	if bal := f.balances.Balance(bidderA); bal != 0 {
		t.Errorf("bidder A balance = %d, want 0", bal)
	}

	f.rail.failTransfer = false
	if _, err := f.engine.Withdraw(ctx, bidderA); err != nil {
		t.Fatalf("retry withdraw: %v", err)
	}
	if bal := f.balances.Balance(bidderA); bal != 10 {
		t.Errorf("bidder A balance = %d after retry, want 10", bal)
	}
}

// commitFailStore makes the next Commit fail once, leaving the transaction
// uncommitted so the deferred rollback discards it.
type commitFailStore struct {
	domain.MarketplaceStore
	fail *bool
}

func (s commitFailStore) Begin(ctx context.Context) (domain.MarketplaceTx, error) {
	tx, err := s.MarketplaceStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return commitFailTx{MarketplaceTx: tx, fail: s.fail}, nil
}

type commitFailTx struct {
	domain.MarketplaceTx
	fail *bool
}

func (t commitFailTx) Commit(ctx context.Context) error {
	if *t.fail {
		*t.fail = false
		return errors.New("commit refused")
	}
	return t.MarketplaceTx.Commit(ctx)
}

// A commit failure after the payout pulls the payout back: the claim is
// still pending and the caller's balance is untouched.
func TestWithdrawReclaimedOnCommitFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(7, seller)
	f.balances.Deposit(bidderA, 10)
	f.balances.Deposit(bidderB, 12)

	if _, err := f.engine.CreateAuction(ctx, 7, seller, 5, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.PlaceBid(ctx, 7, bidderA, 10); err != nil {
		t.Fatalf("bid A: %v", err)
	}
	if _, err := f.engine.PlaceBid(ctx, 7, bidderB, 12); err != nil {
		t.Fatalf("bid B: %v", err)
	}

	fail := true
	f.engine.store = commitFailStore{MarketplaceStore: f.store, fail: &fail}

	_, err := f.engine.Withdraw(ctx, bidderA)
	if err == nil {
		t.Fatal("withdraw succeeded despite commit failure")
	}
	if pending, _ := f.engine.PendingReturn(ctx, bidderA); pending != 10 {
		t.Errorf("pending after failed commit = %d, want 10 restored", pending)
	}
	if bal := f.balances.Balance(bidderA); bal != 0 {
		t.Errorf("bidder A balance = %d, want 0", bal)
	}

	if _, err := f.engine.Withdraw(ctx, bidderA); err != nil {
		t.Fatalf("retry withdraw: %v", err)
	}
	if bal := f.balances.Balance(bidderA); bal != 10 {
		t.Errorf("bidder A balance = %d after retry, want 10", bal)
	}
}
