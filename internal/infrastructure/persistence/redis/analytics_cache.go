package redis

import (
	"context"
	"errors"
	"time"

	"github.com/safecircle-app/safecircle/internal/domain/analytics"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
)

// snapshotKey is the single key holding the serialized aggregate snapshot.
const snapshotKey = PrefixAnalytics + "snapshot"

// AnalyticsCache implements analytics.Cache on Redis. The cached copy is
// refreshed after every rebuild and is allowed to lag between rebuilds;
// callers fall back to PostgreSQL on a miss.
type AnalyticsCache struct {
	cache *Cache
}

// NewAnalyticsCache creates a new AnalyticsCache.
func NewAnalyticsCache(cache *Cache) *AnalyticsCache {
	return &AnalyticsCache{cache: cache}
}

// Get returns the cached snapshot, or ErrNotFound on a miss.
func (c *AnalyticsCache) Get(ctx context.Context) (*analytics.Snapshot, error) {
	var s analytics.Snapshot
	if err := c.cache.Get(ctx, snapshotKey, &s); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Set stores the snapshot with a TTL. A snapshot older than the TTL is worse
// than a miss, so it expires on its own.
func (c *AnalyticsCache) Set(ctx context.Context, s *analytics.Snapshot, ttl time.Duration) error {
	return c.cache.Set(ctx, snapshotKey, s, ttl)
}

// Invalidate drops the cached snapshot.
func (c *AnalyticsCache) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, snapshotKey)
}
