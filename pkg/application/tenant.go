package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolCache lazily opens and caches one connection pool per Application
// schema. Each pool's search_path is pinned to that Application's schema at
// connection time, so a query issued against it can never see another
// Application's tables even if it forgets to qualify a table name.
type PoolCache struct {
	databaseURL string

	mu    sync.Mutex
	pools map[int]*pgxpool.Pool
}

// NewPoolCache builds an empty cache over the given base database URL.
func NewPoolCache(databaseURL string) *PoolCache {
	return &PoolCache{databaseURL: databaseURL, pools: make(map[int]*pgxpool.Pool)}
}

// Get returns the pool for applicationID, opening and caching one on first
// use.
func (c *PoolCache) Get(ctx context.Context, applicationID int) (*pgxpool.Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pool, ok := c.pools[applicationID]; ok {
		return pool, nil
	}

	scopedURL, err := withSearchPath(c.databaseURL, SchemaName(applicationID))
	if err != nil {
		return nil, fmt.Errorf("building scoped database URL: %w", err)
	}

	pool, err := pgxpool.New(ctx, scopedURL)
	if err != nil {
		return nil, fmt.Errorf("opening pool for application %d: %w", applicationID, err)
	}

	c.pools[applicationID] = pool
	return pool, nil
}

// Evict closes and forgets the pool for applicationID, if any. Call this
// after dropping an Application's schema so a later reuse of the same ID
// does not hand back a pool pointed at a schema that no longer exists.
func (c *PoolCache) Evict(applicationID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pool, ok := c.pools[applicationID]; ok {
		pool.Close()
		delete(c.pools, applicationID)
	}
}

// Close closes every cached pool.
func (c *PoolCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, pool := range c.pools {
		pool.Close()
		delete(c.pools, id)
	}
}
