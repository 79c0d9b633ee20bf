package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gavelhq/gavel/internal/domain"
)

// MarketplaceStore implements domain.MarketplaceStore on PostgreSQL. Mutating
// operations run inside a database transaction whose row reads take
// SELECT ... FOR UPDATE locks, so a commit either lands whole or not at all.
type MarketplaceStore struct {
	pool *pgxpool.Pool
}

// NewMarketplaceStore creates a store backed by the given connection pool.
func NewMarketplaceStore(pool *pgxpool.Pool) *MarketplaceStore {
	return &MarketplaceStore{pool: pool}
}

func (s *MarketplaceStore) Begin(ctx context.Context) (domain.MarketplaceTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &marketplaceTx{tx: tx}, nil
}

const listingColumns = `asset_id, seller, price, active, created_at, updated_at`

func scanListing(row pgx.Row) (domain.Listing, error) {
	var l domain.Listing
	var seller string
	if err := row.Scan(&l.AssetID, &seller, &l.Price, &l.Active, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return domain.Listing{}, err
	}
	l.Seller = common.HexToAddress(seller)
	return l, nil
}

func (s *MarketplaceStore) Listing(ctx context.Context, assetID int64) (domain.Listing, error) {
	const query = `SELECT ` + listingColumns + ` FROM listings WHERE asset_id = $1`
	l, err := scanListing(s.pool.QueryRow(ctx, query, assetID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, fmt.Errorf("postgres: listing %d: %w", assetID, domain.ErrNotFound)
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %d: %w", assetID, err)
	}
	return l, nil
}

const auctionColumns = `asset_id, seller, starting_price, highest_bid, highest_bidder, end_time, active, settled, created_at`

func scanAuction(row pgx.Row) (domain.Auction, error) {
	var a domain.Auction
	var seller, bidder string
	if err := row.Scan(&a.AssetID, &seller, &a.StartingPrice, &a.HighestBid, &bidder,
		&a.EndTime, &a.Active, &a.Settled, &a.CreatedAt); err != nil {
		return domain.Auction{}, err
	}
	a.Seller = common.HexToAddress(seller)
	if bidder != "" {
		a.HighestBidder = common.HexToAddress(bidder)
	}
	return a, nil
}

func (s *MarketplaceStore) Auction(ctx context.Context, assetID int64) (domain.Auction, error) {
	const query = `SELECT ` + auctionColumns + ` FROM auctions WHERE asset_id = $1`
	a, err := scanAuction(s.pool.QueryRow(ctx, query, assetID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Auction{}, fmt.Errorf("postgres: auction %d: %w", assetID, domain.ErrNotFound)
		}
		return domain.Auction{}, fmt.Errorf("postgres: get auction %d: %w", assetID, err)
	}
	return a, nil
}

// pageClause appends time filters, ordering, and pagination to a query.
func pageClause(query string, args []any, opts domain.ListOpts, timeCol string) (string, []any) {
	argIdx := len(args) + 1
	if opts.Since != nil {
		query += fmt.Sprintf(" AND %s >= $%d", timeCol, argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND %s <= $%d", timeCol, argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}
	query += fmt.Sprintf(" ORDER BY %s DESC", timeCol)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

func (s *MarketplaceStore) ListListings(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	query, args := pageClause(`SELECT `+listingColumns+` FROM listings WHERE 1=1`, nil, opts, "created_at")
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list listings rows: %w", err)
	}
	return listings, nil
}

func (s *MarketplaceStore) ListAuctions(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	query, args := pageClause(`SELECT `+auctionColumns+` FROM auctions WHERE 1=1`, nil, opts, "created_at")
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list auctions: %w", err)
	}
	defer rows.Close()

	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list auctions rows: %w", err)
	}
	return auctions, nil
}

func (s *MarketplaceStore) ListBids(ctx context.Context, assetID int64, opts domain.ListOpts) ([]domain.Bid, error) {
	query := `SELECT asset_id, bidder, amount, placed_at FROM bids WHERE asset_id = $1 ORDER BY placed_at ASC`
	args := []any{assetID}
	argIdx := 2
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids: %w", err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		var b domain.Bid
		var bidder string
		if err := rows.Scan(&b.AssetID, &bidder, &b.Amount, &b.PlacedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		b.Bidder = common.HexToAddress(bidder)
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bids rows: %w", err)
	}
	return bids, nil
}

// ListSettledBefore returns auctions settled before the cutoff, for archival.
func (s *MarketplaceStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Auction, error) {
	const query = `SELECT ` + auctionColumns + ` FROM auctions WHERE settled AND end_time < $1 ORDER BY end_time ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled auctions: %w", err)
	}
	defer rows.Close()

	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list settled auctions rows: %w", err)
	}
	return auctions, nil
}

func (s *MarketplaceStore) PendingReturn(ctx context.Context, addr common.Address) (int64, error) {
	const query = `SELECT amount FROM pending_returns WHERE address = $1`
	var amount int64
	err := s.pool.QueryRow(ctx, query, addr.Hex()).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("postgres: pending return %s: %w", addr.Hex(), domain.ErrNotFound)
		}
		return 0, fmt.Errorf("postgres: get pending return: %w", err)
	}
	return amount, nil
}

func (s *MarketplaceStore) PendingTotal(ctx context.Context) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM pending_returns`
	var total int64
	if err := s.pool.QueryRow(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("postgres: sum pending returns: %w", err)
	}
	return total, nil
}

func (s *MarketplaceStore) OpenBidTotal(ctx context.Context) (int64, error) {
	const query = `SELECT COALESCE(SUM(highest_bid), 0) FROM auctions WHERE active AND NOT settled`
	var total int64
	if err := s.pool.QueryRow(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("postgres: sum open bids: %w", err)
	}
	return total, nil
}

const configQuery = `SELECT platform_fee_bps, fee_recipient, paused, owner FROM marketplace_config WHERE id = 1`

func scanConfig(row pgx.Row) (domain.GlobalConfig, error) {
	var cfg domain.GlobalConfig
	var recipient, owner string
	if err := row.Scan(&cfg.PlatformFeeBps, &recipient, &cfg.Paused, &owner); err != nil {
		return domain.GlobalConfig{}, err
	}
	cfg.FeeRecipient = common.HexToAddress(recipient)
	cfg.Owner = common.HexToAddress(owner)
	return cfg, nil
}

func (s *MarketplaceStore) Config(ctx context.Context) (domain.GlobalConfig, error) {
	cfg, err := scanConfig(s.pool.QueryRow(ctx, configQuery))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GlobalConfig{}, fmt.Errorf("postgres: config: %w", domain.ErrNotFound)
		}
		return domain.GlobalConfig{}, fmt.Errorf("postgres: get config: %w", err)
	}
	return cfg, nil
}

// marketplaceTx wraps a pgx transaction. Row reads lock the rows they touch
// so concurrent transactions on the same asset serialize at the database.
type marketplaceTx struct {
	tx   pgx.Tx
	done bool
}

func (t *marketplaceTx) Listing(ctx context.Context, assetID int64) (domain.Listing, error) {
	const query = `SELECT ` + listingColumns + ` FROM listings WHERE asset_id = $1 FOR UPDATE`
	l, err := scanListing(t.tx.QueryRow(ctx, query, assetID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, fmt.Errorf("postgres: listing %d: %w", assetID, domain.ErrNotFound)
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %d: %w", assetID, err)
	}
	return l, nil
}

func (t *marketplaceTx) SaveListing(ctx context.Context, l domain.Listing) error {
	const query = `
		INSERT INTO listings (asset_id, seller, price, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (asset_id) DO UPDATE SET
			seller = EXCLUDED.seller,
			price = EXCLUDED.price,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`
	_, err := t.tx.Exec(ctx, query, l.AssetID, l.Seller.Hex(), l.Price, l.Active, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save listing %d: %w", l.AssetID, err)
	}
	return nil
}

func (t *marketplaceTx) DeleteListing(ctx context.Context, assetID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM listings WHERE asset_id = $1`, assetID); err != nil {
		return fmt.Errorf("postgres: delete listing %d: %w", assetID, err)
	}
	return nil
}

func (t *marketplaceTx) Auction(ctx context.Context, assetID int64) (domain.Auction, error) {
	const query = `SELECT ` + auctionColumns + ` FROM auctions WHERE asset_id = $1 FOR UPDATE`
	a, err := scanAuction(t.tx.QueryRow(ctx, query, assetID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Auction{}, fmt.Errorf("postgres: auction %d: %w", assetID, domain.ErrNotFound)
		}
		return domain.Auction{}, fmt.Errorf("postgres: get auction %d: %w", assetID, err)
	}
	return a, nil
}

func (t *marketplaceTx) SaveAuction(ctx context.Context, a domain.Auction) error {
	bidder := ""
	if a.HasBid() {
		bidder = a.HighestBidder.Hex()
	}
	const query = `
		INSERT INTO auctions (asset_id, seller, starting_price, highest_bid, highest_bidder, end_time, active, settled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (asset_id) DO UPDATE SET
			seller = EXCLUDED.seller,
			starting_price = EXCLUDED.starting_price,
			highest_bid = EXCLUDED.highest_bid,
			highest_bidder = EXCLUDED.highest_bidder,
			end_time = EXCLUDED.end_time,
			active = EXCLUDED.active,
			settled = EXCLUDED.settled,
			created_at = EXCLUDED.created_at`
	_, err := t.tx.Exec(ctx, query, a.AssetID, a.Seller.Hex(), a.StartingPrice,
		a.HighestBid, bidder, a.EndTime, a.Active, a.Settled, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save auction %d: %w", a.AssetID, err)
	}
	return nil
}

func (t *marketplaceTx) DeleteAuction(ctx context.Context, assetID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM auctions WHERE asset_id = $1`, assetID); err != nil {
		return fmt.Errorf("postgres: delete auction %d: %w", assetID, err)
	}
	return nil
}

func (t *marketplaceTx) AppendBid(ctx context.Context, b domain.Bid) error {
	const query = `INSERT INTO bids (asset_id, bidder, amount, placed_at) VALUES ($1, $2, $3, $4)`
	if _, err := t.tx.Exec(ctx, query, b.AssetID, b.Bidder.Hex(), b.Amount, b.PlacedAt); err != nil {
		return fmt.Errorf("postgres: append bid: %w", err)
	}
	return nil
}

func (t *marketplaceTx) PendingReturn(ctx context.Context, addr common.Address) (int64, error) {
	const query = `SELECT amount FROM pending_returns WHERE address = $1 FOR UPDATE`
	var amount int64
	err := t.tx.QueryRow(ctx, query, addr.Hex()).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("postgres: pending return %s: %w", addr.Hex(), domain.ErrNotFound)
		}
		return 0, fmt.Errorf("postgres: get pending return: %w", err)
	}
	return amount, nil
}

func (t *marketplaceTx) SetPendingReturn(ctx context.Context, addr common.Address, amount int64) error {
	if amount == 0 {
		if _, err := t.tx.Exec(ctx, `DELETE FROM pending_returns WHERE address = $1`, addr.Hex()); err != nil {
			return fmt.Errorf("postgres: clear pending return: %w", err)
		}
		return nil
	}
	const query = `
		INSERT INTO pending_returns (address, amount) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET amount = EXCLUDED.amount`
	if _, err := t.tx.Exec(ctx, query, addr.Hex(), amount); err != nil {
		return fmt.Errorf("postgres: set pending return: %w", err)
	}
	return nil
}

func (t *marketplaceTx) Config(ctx context.Context) (domain.GlobalConfig, error) {
	cfg, err := scanConfig(t.tx.QueryRow(ctx, configQuery+` FOR UPDATE`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GlobalConfig{}, fmt.Errorf("postgres: config: %w", domain.ErrNotFound)
		}
		return domain.GlobalConfig{}, fmt.Errorf("postgres: get config: %w", err)
	}
	return cfg, nil
}

func (t *marketplaceTx) SaveConfig(ctx context.Context, cfg domain.GlobalConfig) error {
	const query = `
		INSERT INTO marketplace_config (id, platform_fee_bps, fee_recipient, paused, owner)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			platform_fee_bps = EXCLUDED.platform_fee_bps,
			fee_recipient = EXCLUDED.fee_recipient,
			paused = EXCLUDED.paused,
			owner = EXCLUDED.owner`
	_, err := t.tx.Exec(ctx, query, cfg.PlatformFeeBps, cfg.FeeRecipient.Hex(), cfg.Paused, cfg.Owner.Hex())
	if err != nil {
		return fmt.Errorf("postgres: save config: %w", err)
	}
	return nil
}

func (t *marketplaceTx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("postgres: transaction already finished")
	}
	t.done = true
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (t *marketplaceTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}
