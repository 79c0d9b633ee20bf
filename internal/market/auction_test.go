package market

import (
	"context"
	"testing"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
)

func TestCreateAuction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(7, seller)

	auc, err := f.engine.CreateAuction(ctx, 7, seller, 5, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if auc.StartingPrice != 5 || !auc.Active || auc.Settled || auc.HasBid() {
		t.Errorf("unexpected auction: %+v", auc)
	}
	if got, want := auc.EndTime, f.now.Add(time.Hour); !got.Equal(want) {
		t.Errorf("end time = %v, want %v", got, want)
	}

	st, err := f.engine.GetStatus(ctx, 7)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != domain.AssetStatusInAuction || st.Price != 5 {
		t.Errorf("status = %+v, want in_auction at starting price 5", st)
	}
}

func TestCreateAuctionDurationBounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cases := []struct {
		duration time.Duration
		ok       bool
	}{
		{3599 * time.Second, false},
		{3600 * time.Second, true},
		{604800 * time.Second, true},
		{604801 * time.Second, false},
	}
	for i, tc := range cases {
		assetID := int64(100 + i)
		f.oracle.mint(assetID, seller)
		_, err := f.engine.CreateAuction(ctx, assetID, seller, 5, tc.duration)
		if tc.ok && err != nil {
			t.Errorf("duration %v: unexpected error %v", tc.duration, err)
		}
		if !tc.ok {
			wantErrClass(t, err, domain.ErrValidation)
		}
	}
}

func TestCreateAuctionValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(7, seller)

	_, err := f.engine.CreateAuction(ctx, 7, seller, 0, time.Hour)
	wantErrClass(t, err, domain.ErrValidation)

	_, err = f.engine.CreateAuction(ctx, 7, buyer, 5, time.Hour)
	wantErrClass(t, err, domain.ErrAuthorization)
}

// Accepted bids are strictly increasing; the first must meet the starting
// price and each outbid amount lands in the loser's pending returns.
func TestPlaceBidMonotonic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(7, seller)
	f.balances.Deposit(bidderA, 100)
	f.balances.Deposit(bidderB, 100)

	if _, err := f.engine.CreateAuction(ctx, 7, seller, 5, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := f.engine.PlaceBid(ctx, 7, bidderA, 4)
	wantErrClass(t, err, domain.ErrValidation)

	auc, err := f.engine.PlaceBid(ctx, 7, bidderA, 10)
	if err != nil {
		t.Fatalf("first bid: %v", err)
	}
	if auc.HighestBid != 10 || auc.HighestBidder != bidderA {
		t.Errorf("after first bid: %+v", auc)
	}

	// Equal bid rejected.
	_, err = f.engine.PlaceBid(ctx, 7, bidderB, 10)
	wantErrClass(t, err, domain.ErrValidation)

	auc, err = f.engine.PlaceBid(ctx, 7, bidderB, 12)
	if err != nil {
		t.Fatalf("second bid: %v", err)
	}
	if auc.HighestBid != 12 || auc.HighestBidder != bidderB {
		t.Errorf("after second bid: %+v", auc)
	}

	pending, err := f.engine.PendingReturn(ctx, bidderA)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending != 10 {
		t.Errorf("bidder A pending = %d, want 10", pending)
	}

	bids, err := f.engine.ListBids(ctx, 7, domain.ListOpts{})
	if err != nil {
		t.Fatalf("list bids: %v", err)
	}
	if len(bids) != 2 || bids[0].Amount != 10 || bids[1].Amount != 12 {
		t.Errorf("bid journal = %+v, want [10, 12]", bids)
	}
}

func TestPlaceBidRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(7, seller)
	f.balances.Deposit(seller, 100)
	f.balances.Deposit(bidderA, 100)

	if _, err := f.engine.CreateAuction(ctx, 7, seller, 5, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Seller cannot bid on their own auction.
	_, err := f.engine.PlaceBid(ctx, 7, seller, 10)
	wantErrClass(t, err, domain.ErrAuthorization)

	// No auction on this asset.
	_, err = f.engine.PlaceBid(ctx, 8, bidderA, 10)
	wantErrClass(t, err, domain.ErrState)

	// Expired auction.
	f.advance(2 * time.Hour)
	_, err = f.engine.PlaceBid(ctx, 7, bidderA, 10)
	wantErrClass(t, err, domain.ErrState)
}

// A bid whose escrow collection fails leaves no trace: no journal entry, no
// highest-bid change, no pending credit for the previous bidder.
func TestPlaceBidAtomicOnCollectFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(7, seller)
	f.balances.Deposit(bidderA, 100)

	if _, err := f.engine.CreateAuction(ctx, 7, seller, 5, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.PlaceBid(ctx, 7, bidderA, 10); err != nil {
		t.Fatalf("first bid: %v", err)
	}

	// Bidder B has no funds.
	_, err := f.engine.PlaceBid(ctx, 7, bidderB, 12)
	wantErrClass(t, err, domain.ErrTransfer)

	auc, err := f.store.Auction(ctx, 7)
	if err != nil {
		t.Fatalf("read auction: %v", err)
	}
	if auc.HighestBid != 10 || auc.HighestBidder != bidderA {
		t.Errorf("auction mutated by failed bid: %+v", auc)
	}
	if pending, _ := f.engine.PendingReturn(ctx, bidderA); pending != 0 {
		t.Errorf("bidder A pending = %d, want 0", pending)
	}
	bids, _ := f.engine.ListBids(ctx, 7, domain.ListOpts{})
	if len(bids) != 1 {
		t.Errorf("bid journal has %d entries, want 1", len(bids))
	}
}

// Winner path: after expiry anyone may settle; the asset moves to the winner
// and the escrowed bid is split between seller and fee recipient.
func TestEndAuctionWithWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(7, seller)
	f.balances.Deposit(bidderA, 100)
	f.balances.Deposit(bidderB, 100)

	if _, err := f.engine.CreateAuction(ctx, 7, seller, 5, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.PlaceBid(ctx, 7, bidderA, 10); err != nil {
		t.Fatalf("bid A: %v", err)
	}
	if _, err := f.engine.PlaceBid(ctx, 7, bidderB, 100); err != nil {
		t.Fatalf("bid B: %v", err)
	}

	// Not ended yet.
	_, err := f.engine.EndAuction(ctx, 7)
	wantErrClass(t, err, domain.ErrState)

	f.advance(2 * time.Hour)
	auc, err := f.engine.EndAuction(ctx, 7)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !auc.Settled || auc.Active {
		t.Errorf("auction not settled: %+v", auc)
	}

	if owner, _ := f.oracle.OwnerOf(ctx, 7); owner != bidderB {
		t.Errorf("asset owner = %s, want winner", owner.Hex())
	}
	if bal := f.balances.Balance(seller); bal != 98 {
		t.Errorf("seller balance = %d, want 98", bal)
	}
	if bal := f.balances.Balance(feeRecipient); bal != 2 {
		t.Errorf("fee recipient balance = %d, want 2", bal)
	}
	// Bidder A's escrowed 10 stays claimable.
	if bal := f.balances.Balance(escrowAcct); bal != 10 {
		t.Errorf("escrow balance = %d, want 10 pending", bal)
	}
}

// Settling twice succeeds once; the second call reports a state error and
// moves nothing.
func TestEndAuctionIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(7, seller)
	f.balances.Deposit(bidderA, 100)

	if _, err := f.engine.CreateAuction(ctx, 7, seller, 5, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.PlaceBid(ctx, 7, bidderA, 10); err != nil {
		t.Fatalf("bid: %v", err)
	}
	f.advance(2 * time.Hour)

	if _, err := f.engine.EndAuction(ctx, 7); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	transfersAfterFirst := f.oracle.transfers
	sellerAfterFirst := f.balances.Balance(seller)

	_, err := f.engine.EndAuction(ctx, 7)
	wantErrClass(t, err, domain.ErrState)

	if f.oracle.transfers != transfersAfterFirst {
		t.Error("second settle moved the asset")
	}
	if f.balances.Balance(seller) != sellerAfterFirst {
		t.Error("second settle moved funds")
	}
}

// A won auction releases the asset: the winner can put it straight back up
// for auction, and expiry is then judged against the new row.
func TestReauctionAfterSettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(7, seller)
	f.balances.Deposit(bidderA, 100)

	if _, err := f.engine.CreateAuction(ctx, 7, seller, 5, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.PlaceBid(ctx, 7, bidderA, 10); err != nil {
		t.Fatalf("bid: %v", err)
	}
	f.advance(2 * time.Hour)
	if _, err := f.engine.EndAuction(ctx, 7); err != nil {
		t.Fatalf("settle: %v", err)
	}

	// The winner approves the marketplace and re-auctions the asset.
	f.oracle.operatorAll[bidderA] = true
	auc, err := f.engine.CreateAuction(ctx, 7, bidderA, 20, time.Hour)
	if err != nil {
		t.Fatalf("re-auction after settlement: %v", err)
	}
	if auc.Seller != bidderA || auc.StartingPrice != 20 || !auc.Active || auc.Settled || auc.HasBid() {
		t.Errorf("replacement auction carries stale state: %+v", auc)
	}

	// The new auction has not ended; the old one's settlement is history.
	_, err = f.engine.EndAuction(ctx, 7)
	wantErrClass(t, err, domain.ErrState)

	st, err := f.engine.GetStatus(ctx, 7)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != domain.AssetStatusInAuction || st.Price != 20 {
		t.Errorf("status = %+v, want in_auction at 20", st)
	}
}

// Unsold path: zero bids, expiry, settle. Asset stays with the seller, no
// funds move, auction_ended reports no sale.
func TestEndAuctionNoBids(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(9, seller)

	if _, err := f.engine.CreateAuction(ctx, 9, seller, 1, 3600*time.Second); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.advance(2 * time.Hour)

	auc, err := f.engine.EndAuction(ctx, 9)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !auc.Settled || auc.HasBid() {
		t.Errorf("unexpected auction: %+v", auc)
	}
	if owner, _ := f.oracle.OwnerOf(ctx, 9); owner != seller {
		t.Errorf("asset owner = %s, want seller", owner.Hex())
	}
	if f.oracle.transfers != 0 {
		t.Error("asset transfer occurred on unsold auction")
	}
	if bal := f.balances.Balance(escrowAcct); bal != 0 {
		t.Errorf("escrow balance = %d, want 0", bal)
	}

	got := f.events(t)
	if got[len(got)-1] != domain.EventAuctionEnded {
		t.Errorf("last event = %s, want %s", got[len(got)-1], domain.EventAuctionEnded)
	}
	entries, _ := f.audit.List(ctx, domain.ListOpts{Limit: 1})
	if sold, ok := entries[0].Detail["sold"].(bool); !ok || sold {
		t.Errorf("auction_ended detail = %+v, want sold=false", entries[0].Detail)
	}
}

// A payout failure during settlement rolls the whole settlement back so it
// can be retried.
func TestEndAuctionAtomicOnRailFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(7, seller)
	f.balances.Deposit(bidderA, 100)

	if _, err := f.engine.CreateAuction(ctx, 7, seller, 5, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.PlaceBid(ctx, 7, bidderA, 10); err != nil {
		t.Fatalf("bid: %v", err)
	}
	f.advance(2 * time.Hour)

	f.rail.failBatch = true
	_, err := f.engine.EndAuction(ctx, 7)
	wantErrClass(t, err, domain.ErrTransfer)

	auc, err := f.store.Auction(ctx, 7)
	if err != nil {
		t.Fatalf("read auction: %v", err)
	}
	if auc.Settled {
		t.Error("auction marked settled despite payout failure")
	}
	if owner, _ := f.oracle.OwnerOf(ctx, 7); owner != seller {
		t.Errorf("asset owner = %s, want back with seller", owner.Hex())
	}

	// Retry succeeds once the rail recovers.
	f.rail.failBatch = false
	if _, err := f.engine.EndAuction(ctx, 7); err != nil {
		t.Fatalf("retry settle: %v", err)
	}
	if bal := f.balances.Balance(seller); bal != 10-10*250/10000 {
		t.Errorf("seller balance = %d after retry", bal)
	}
}

func TestCancelAuction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(7, seller)
	f.balances.Deposit(bidderA, 100)

	if _, err := f.engine.CreateAuction(ctx, 7, seller, 5, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := f.engine.CancelAuction(ctx, 7, bidderA)
	wantErrClass(t, err, domain.ErrAuthorization)

	if err := f.engine.CancelAuction(ctx, 7, seller); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	st, _ := f.engine.GetStatus(ctx, 7)
	if st.Status != domain.AssetStatusNone {
		t.Errorf("status = %s, want none", st.Status)
	}
}

func TestCancelAuctionBlockedByBid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(7, seller)
	f.balances.Deposit(bidderA, 100)

	if _, err := f.engine.CreateAuction(ctx, 7, seller, 5, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.PlaceBid(ctx, 7, bidderA, 10); err != nil {
		t.Fatalf("bid: %v", err)
	}

	err := f.engine.CancelAuction(ctx, 7, seller)
	wantErrClass(t, err, domain.ErrState)
}

// The funds invariant: escrow always holds exactly the pending returns plus
// the open highest bids, through bids, outbids, settlement, and withdrawal.
func TestHeldBalanceInvariant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(7, seller)
	f.oracle.mint(8, seller)
	f.balances.Deposit(bidderA, 200)
	f.balances.Deposit(bidderB, 200)

	check := func(stage string) {
		t.Helper()
		held, err := f.engine.HeldBalance(ctx)
		if err != nil {
			t.Fatalf("%s: held balance: %v", stage, err)
		}
		if bal := f.balances.Balance(escrowAcct); bal != held {
			t.Errorf("%s: escrow holds %d, ledger says %d", stage, bal, held)
		}
	}

	if _, err := f.engine.CreateAuction(ctx, 7, seller, 5, time.Hour); err != nil {
		t.Fatalf("create 7: %v", err)
	}
	if _, err := f.engine.CreateAuction(ctx, 8, seller, 5, time.Hour); err != nil {
		t.Fatalf("create 8: %v", err)
	}
	check("after create")

	if _, err := f.engine.PlaceBid(ctx, 7, bidderA, 10); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if _, err := f.engine.PlaceBid(ctx, 7, bidderB, 20); err != nil {
		t.Fatalf("outbid: %v", err)
	}
	if _, err := f.engine.PlaceBid(ctx, 8, bidderA, 30); err != nil {
		t.Fatalf("bid 8: %v", err)
	}
	check("after bids")

	f.advance(2 * time.Hour)
	if _, err := f.engine.EndAuction(ctx, 7); err != nil {
		t.Fatalf("settle 7: %v", err)
	}
	check("after settle")

	if _, err := f.engine.Withdraw(ctx, bidderA); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	check("after withdraw")
}
