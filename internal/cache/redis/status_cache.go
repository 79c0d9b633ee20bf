package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gavelhq/gavel/internal/domain"
)

// statusTTL caps how long a stale status view can outlive a missed
// invalidation.
const statusTTL = 5 * time.Minute

// StatusCache implements domain.StatusCache using JSON-serialized status
// views under status:{assetID} keys. Mutating operations invalidate; the
// store stays authoritative.
type StatusCache struct {
	rdb *redis.Client
}

// NewStatusCache creates a StatusCache backed by the given Client.
func NewStatusCache(c *Client) *StatusCache {
	return &StatusCache{rdb: c.Underlying()}
}

func statusKey(assetID int64) string {
	return "status:" + strconv.FormatInt(assetID, 10)
}

// Set stores a status view with the cache TTL.
func (sc *StatusCache) Set(ctx context.Context, st domain.StatusView) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redis: marshal status %d: %w", st.AssetID, err)
	}
	if err := sc.rdb.Set(ctx, statusKey(st.AssetID), data, statusTTL).Err(); err != nil {
		return fmt.Errorf("redis: set status %d: %w", st.AssetID, err)
	}
	return nil
}

// Get retrieves a cached status view. It returns domain.ErrNotFound when the
// key does not exist.
func (sc *StatusCache) Get(ctx context.Context, assetID int64) (domain.StatusView, error) {
	data, err := sc.rdb.Get(ctx, statusKey(assetID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.StatusView{}, domain.ErrNotFound
		}
		return domain.StatusView{}, fmt.Errorf("redis: get status %d: %w", assetID, err)
	}

	var st domain.StatusView
	if err := json.Unmarshal(data, &st); err != nil {
		return domain.StatusView{}, fmt.Errorf("redis: unmarshal status %d: %w", assetID, err)
	}
	return st, nil
}

// Invalidate drops the cached view for an asset.
func (sc *StatusCache) Invalidate(ctx context.Context, assetID int64) error {
	if err := sc.rdb.Del(ctx, statusKey(assetID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate status %d: %w", assetID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.StatusCache = (*StatusCache)(nil)
