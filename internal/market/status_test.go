package market

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
)

func TestGetStatusNone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	st, err := f.engine.GetStatus(ctx, 42)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != domain.AssetStatusNone || st.Price != 0 {
		t.Errorf("status = %+v, want none", st)
	}

	_, err = f.engine.GetStatus(ctx, -1)
	wantErrClass(t, err, domain.ErrValidation)
}

func TestGetStatusAuctionPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.oracle.mint(7, seller)
	f.balances.Deposit(bidderA, 100)

	if _, err := f.engine.CreateAuction(ctx, 7, seller, 5, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	st, _ := f.engine.GetStatus(ctx, 7)
	if st.Price != 5 {
		t.Errorf("price before bids = %d, want starting price 5", st.Price)
	}

	if _, err := f.engine.PlaceBid(ctx, 7, bidderA, 10); err != nil {
		t.Fatalf("bid: %v", err)
	}
	st, _ = f.engine.GetStatus(ctx, 7)
	if st.Price != 10 {
		t.Errorf("price after bid = %d, want highest bid 10", st.Price)
	}
	if st.EndTime.IsZero() {
		t.Error("auction status missing end time")
	}
}

// memCache is a map-backed StatusCache recording hits for cache tests.
type memCache struct {
	mu     sync.Mutex
	views  map[int64]domain.StatusView
	hits   int
	stores int
}

func newMemCache() *memCache {
	return &memCache{views: make(map[int64]domain.StatusView)}
}

func (c *memCache) Set(ctx context.Context, st domain.StatusView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[st.AssetID] = st
	c.stores++
	return nil
}

func (c *memCache) Get(ctx context.Context, assetID int64) (domain.StatusView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.views[assetID]
	if !ok {
		return domain.StatusView{}, domain.ErrNotFound
	}
	c.hits++
	return st, nil
}

func (c *memCache) Invalidate(ctx context.Context, assetID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, assetID)
	return nil
}

func TestGetStatusCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cache := newMemCache()
	f.engine.WithStatusCache(cache)
	f.oracle.mint(5, seller)

	if _, err := f.engine.ListItem(ctx, 5, seller, 100); err != nil {
		t.Fatalf("list: %v", err)
	}

	// First read fills the cache, second is served from it.
	if _, err := f.engine.GetStatus(ctx, 5); err != nil {
		t.Fatalf("status: %v", err)
	}
	if _, err := f.engine.GetStatus(ctx, 5); err != nil {
		t.Fatalf("status: %v", err)
	}
	if cache.hits != 1 {
		t.Errorf("cache hits = %d, want 1", cache.hits)
	}

	// Repricing invalidates; the next read sees the new price.
	if _, err := f.engine.UpdateListing(ctx, 5, seller, 120); err != nil {
		t.Fatalf("update: %v", err)
	}
	st, err := f.engine.GetStatus(ctx, 5)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Price != 120 {
		t.Errorf("price = %d, want 120 after invalidation", st.Price)
	}
}

func TestListListingsPagination(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := int64(1); i <= 5; i++ {
		f.oracle.mint(i, seller)
		f.advance(time.Minute)
		if _, err := f.engine.ListItem(ctx, i, seller, 100*i); err != nil {
			t.Fatalf("list %d: %v", i, err)
		}
	}

	all, err := f.engine.ListListings(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("got %d listings, want 5", len(all))
	}
	// Newest first.
	if all[0].AssetID != 5 {
		t.Errorf("first listing = asset %d, want 5", all[0].AssetID)
	}

	pg, err := f.engine.ListListings(ctx, domain.ListOpts{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(pg) != 2 || pg[0].AssetID != 3 || pg[1].AssetID != 2 {
		t.Errorf("page = %+v, want assets [3, 2]", pg)
	}
}
