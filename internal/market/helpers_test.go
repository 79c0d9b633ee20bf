package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/lock"
	"github.com/gavelhq/gavel/internal/rail"
	"github.com/gavelhq/gavel/internal/store/memory"
)

var (
	owner        = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	feeRecipient = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	operator     = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	escrowAcct   = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	seller       = common.HexToAddress("0x0000000000000000000000000000000000000001")
	buyer        = common.HexToAddress("0x0000000000000000000000000000000000000002")
	bidderA      = common.HexToAddress("0x000000000000000000000000000000000000000a")
	bidderB      = common.HexToAddress("0x000000000000000000000000000000000000000b")
)

// fakeOracle is an in-memory asset registry with per-call failure injection.
type fakeOracle struct {
	mu           sync.Mutex
	owners       map[int64]common.Address
	operatorAll  map[common.Address]bool
	failTransfer bool
	transfers    int
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		owners:      make(map[int64]common.Address),
		operatorAll: make(map[common.Address]bool),
	}
}

func (o *fakeOracle) mint(assetID int64, to common.Address) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.owners[assetID] = to
	o.operatorAll[to] = true
}

func (o *fakeOracle) OwnerOf(ctx context.Context, assetID int64) (common.Address, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	owner, ok := o.owners[assetID]
	if !ok {
		return common.Address{}, fmt.Errorf("no such asset %d", assetID)
	}
	return owner, nil
}

func (o *fakeOracle) TransferFrom(ctx context.Context, from, to common.Address, assetID int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failTransfer {
		return errors.New("transfer reverted")
	}
	if o.owners[assetID] != from {
		return fmt.Errorf("asset %d not owned by %s", assetID, from.Hex())
	}
	o.owners[assetID] = to
	o.transfers++
	return nil
}

func (o *fakeOracle) GetApproved(ctx context.Context, assetID int64) (common.Address, error) {
	return common.Address{}, nil
}

func (o *fakeOracle) IsApprovedForAll(ctx context.Context, owner, op common.Address) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.operatorAll[owner], nil
}

// failingRail wraps a real rail with switchable failure injection.
type failingRail struct {
	inner        domain.PaymentRail
	failTransfer bool
	failBatch    bool
	failCollect  bool
}

func (r *failingRail) Transfer(ctx context.Context, to common.Address, amount int64) error {
	if r.failTransfer {
		return errors.New("rail down")
	}
	return r.inner.Transfer(ctx, to, amount)
}

func (r *failingRail) TransferBatch(ctx context.Context, payments []domain.Payment) error {
	if r.failBatch {
		return errors.New("rail down")
	}
	return r.inner.TransferBatch(ctx, payments)
}

func (r *failingRail) Collect(ctx context.Context, from common.Address, amount int64) error {
	if r.failCollect {
		return errors.New("rail down")
	}
	return r.inner.Collect(ctx, from, amount)
}

type fixture struct {
	engine   *Engine
	store    *memory.Store
	audit    *memory.AuditStore
	balances *memory.Balances
	oracle   *fakeOracle
	rail     *failingRail
	now      time.Time
}

// advance moves the engine clock forward.
func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
	f.engine.now = func() time.Time { return f.now }
}

// events returns the emitted event names, oldest first.
func (f *fixture) events(t *testing.T) []string {
	t.Helper()
	entries, err := f.audit.List(context.Background(), domain.ListOpts{})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	names := make([]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		names = append(names, entries[i].Event)
	}
	return names
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	audit := memory.NewAuditStore()
	balances := memory.NewBalances()
	oracle := newFakeOracle()
	logger := slog.Default()
	r := &failingRail{inner: rail.NewLedger(balances, escrowAcct, logger)}

	eng := NewEngine(store, oracle, r, lock.NewLocal(), audit, operator, logger)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	eng.now = func() time.Time { return start }

	if err := eng.Bootstrap(context.Background(), domain.GlobalConfig{
		PlatformFeeBps: 250,
		FeeRecipient:   feeRecipient,
		Owner:          owner,
	}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	return &fixture{
		engine:   eng,
		store:    store,
		audit:    audit,
		balances: balances,
		oracle:   oracle,
		rail:     r,
		now:      start,
	}
}

func wantErrClass(t *testing.T, err, class error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error wrapping %v, got nil", class)
	}
	if !errors.Is(err, class) {
		t.Fatalf("expected error wrapping %v, got %v", class, err)
	}
}
