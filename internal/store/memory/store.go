// Package memory implements the marketplace stores on in-process maps. It
// backs standalone mode and the test suite; postgres is the durable
// equivalent.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gavelhq/gavel/internal/domain"
)

// Store holds all marketplace state in memory. Transactions stage their
// writes and apply them under the store lock at commit, so a rolled-back
// operation leaves no trace.
type Store struct {
	mu       sync.RWMutex
	listings map[int64]domain.Listing
	auctions map[int64]domain.Auction
	bids     map[int64][]domain.Bid
	pending  map[common.Address]int64
	cfg      *domain.GlobalConfig
}

// NewStore creates an empty store with no config seeded.
func NewStore() *Store {
	return &Store{
		listings: make(map[int64]domain.Listing),
		auctions: make(map[int64]domain.Auction),
		bids:     make(map[int64][]domain.Bid),
		pending:  make(map[common.Address]int64),
	}
}

func (s *Store) Begin(ctx context.Context) (domain.MarketplaceTx, error) {
	return &tx{
		s:        s,
		listings: make(map[int64]*domain.Listing),
		auctions: make(map[int64]*domain.Auction),
		pending:  make(map[common.Address]int64),
	}, nil
}

func (s *Store) Listing(ctx context.Context, assetID int64) (domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[assetID]
	if !ok {
		return domain.Listing{}, fmt.Errorf("memory: listing %d: %w", assetID, domain.ErrNotFound)
	}
	return l, nil
}

func (s *Store) Auction(ctx context.Context, assetID int64) (domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auctions[assetID]
	if !ok {
		return domain.Auction{}, fmt.Errorf("memory: auction %d: %w", assetID, domain.ErrNotFound)
	}
	return a, nil
}

func (s *Store) ListListings(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	s.mu.RLock()
	all := make([]domain.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		if opts.Since != nil && l.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && l.CreatedAt.After(*opts.Until) {
			continue
		}
		all = append(all, l)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, opts), nil
}

func (s *Store) ListAuctions(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	s.mu.RLock()
	all := make([]domain.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		if opts.Since != nil && a.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && a.CreatedAt.After(*opts.Until) {
			continue
		}
		all = append(all, a)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, opts), nil
}

func (s *Store) ListBids(ctx context.Context, assetID int64, opts domain.ListOpts) ([]domain.Bid, error) {
	s.mu.RLock()
	all := make([]domain.Bid, len(s.bids[assetID]))
	copy(all, s.bids[assetID])
	s.mu.RUnlock()
	return page(all, opts), nil
}

func (s *Store) PendingReturn(ctx context.Context, addr common.Address) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	amount, ok := s.pending[addr]
	if !ok {
		return 0, fmt.Errorf("memory: pending return %s: %w", addr.Hex(), domain.ErrNotFound)
	}
	return amount, nil
}

func (s *Store) PendingTotal(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, amount := range s.pending {
		total += amount
	}
	return total, nil
}

func (s *Store) OpenBidTotal(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, a := range s.auctions {
		if a.Active && !a.Settled {
			total += a.HighestBid
		}
	}
	return total, nil
}

func (s *Store) Config(ctx context.Context) (domain.GlobalConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return domain.GlobalConfig{}, fmt.Errorf("memory: config: %w", domain.ErrNotFound)
	}
	return *s.cfg, nil
}

func page[T any](all []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(all) {
			return nil
		}
		all = all[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all
}

// tx stages writes in overlay maps; a nil pointer is a staged delete. Reads
// consult the overlay first so the transaction sees its own writes.
type tx struct {
	s        *Store
	listings map[int64]*domain.Listing
	auctions map[int64]*domain.Auction
	bids     []domain.Bid
	pending  map[common.Address]int64
	cfg      *domain.GlobalConfig
	done     bool
}

func (t *tx) Listing(ctx context.Context, assetID int64) (domain.Listing, error) {
	if staged, ok := t.listings[assetID]; ok {
		if staged == nil {
			return domain.Listing{}, fmt.Errorf("memory: listing %d: %w", assetID, domain.ErrNotFound)
		}
		return *staged, nil
	}
	return t.s.Listing(ctx, assetID)
}

func (t *tx) SaveListing(ctx context.Context, l domain.Listing) error {
	t.listings[l.AssetID] = &l
	return nil
}

func (t *tx) DeleteListing(ctx context.Context, assetID int64) error {
	t.listings[assetID] = nil
	return nil
}

func (t *tx) Auction(ctx context.Context, assetID int64) (domain.Auction, error) {
	if staged, ok := t.auctions[assetID]; ok {
		if staged == nil {
			return domain.Auction{}, fmt.Errorf("memory: auction %d: %w", assetID, domain.ErrNotFound)
		}
		return *staged, nil
	}
	return t.s.Auction(ctx, assetID)
}

func (t *tx) SaveAuction(ctx context.Context, a domain.Auction) error {
	t.auctions[a.AssetID] = &a
	return nil
}

func (t *tx) DeleteAuction(ctx context.Context, assetID int64) error {
	t.auctions[assetID] = nil
	return nil
}

func (t *tx) AppendBid(ctx context.Context, b domain.Bid) error {
	t.bids = append(t.bids, b)
	return nil
}

func (t *tx) PendingReturn(ctx context.Context, addr common.Address) (int64, error) {
	if amount, ok := t.pending[addr]; ok {
		return amount, nil
	}
	return t.s.PendingReturn(ctx, addr)
}

func (t *tx) SetPendingReturn(ctx context.Context, addr common.Address, amount int64) error {
	t.pending[addr] = amount
	return nil
}

func (t *tx) Config(ctx context.Context) (domain.GlobalConfig, error) {
	if t.cfg != nil {
		return *t.cfg, nil
	}
	return t.s.Config(ctx)
}

func (t *tx) SaveConfig(ctx context.Context, cfg domain.GlobalConfig) error {
	t.cfg = &cfg
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("memory: transaction already finished")
	}
	t.done = true

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, l := range t.listings {
		if l == nil {
			delete(t.s.listings, id)
		} else {
			t.s.listings[id] = *l
		}
	}
	for id, a := range t.auctions {
		if a == nil {
			delete(t.s.auctions, id)
		} else {
			t.s.auctions[id] = *a
		}
	}
	for _, b := range t.bids {
		t.s.bids[b.AssetID] = append(t.s.bids[b.AssetID], b)
	}
	for addr, amount := range t.pending {
		if amount == 0 {
			delete(t.s.pending, addr)
		} else {
			t.s.pending[addr] = amount
		}
	}
	if t.cfg != nil {
		cfg := *t.cfg
		t.s.cfg = &cfg
	}
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}
