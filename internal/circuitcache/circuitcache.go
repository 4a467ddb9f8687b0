// Package circuitcache is an optional Redis-backed cache that lets
// multiple fold worker processes share a provider's open/closed circuit
// state (spec.md §4.5's breaker, extended across processes). It is
// reconstructible, not load-bearing: a process that can't reach Redis,
// or runs with it disabled, falls back to the store-backed consecutive
// failure count it already consults, so a cache outage degrades to
// per-process circuit state rather than failing calls.
package circuitcache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client scoped to circuit-breaker keys.
type Cache struct {
	client *redis.Client
	prefix string
}

// New connects to addr. The connection is lazy; Redis is only contacted
// on the first Ping/IsOpen/MarkOpen/Clear call.
func New(addr, password string, db int) *Cache {
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: "fold:circuit:",
	}
}

// Ping verifies the connection is reachable, used at startup so a
// misconfigured cache is surfaced immediately instead of on the first
// provider call.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// IsOpen reports whether providerID's circuit has been marked open by
// any process and has not yet expired. A Redis error is treated as "not
// open" rather than propagated, since the caller always has its own
// store-backed view to fall back on.
func (c *Cache) IsOpen(ctx context.Context, providerID string) bool {
	n, err := c.client.Exists(ctx, c.key(providerID)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// MarkOpen records that providerID's circuit is open for ttl, visible to
// every process sharing this cache.
func (c *Cache) MarkOpen(ctx context.Context, providerID string, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(providerID), "1", ttl).Err()
}

// Clear removes providerID's open marker, called after a successful
// call resets its consecutive-failure count.
func (c *Cache) Clear(ctx context.Context, providerID string) error {
	return c.client.Del(ctx, c.key(providerID)).Err()
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) key(providerID string) string {
	return c.prefix + providerID
}
