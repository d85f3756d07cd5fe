// Package stockcache holds a session's last-known view of ledger stock.
// The cache is advisory: it may lag the ledger between refreshes, and the
// commit protocol never trusts it.
package stockcache

import (
	"context"
	"sync"
	"time"
)

// Snapshotter is the single ledger read the cache depends on.
type Snapshotter interface {
	Snapshot(ctx context.Context) (map[int64]int64, error)
}

// Cache is a read-mostly local projection of the stock ledger. It is owned
// by one session; the periodic refresh poller is the only other writer.
type Cache struct {
	ledger Snapshotter

	mu          sync.RWMutex
	quantities  map[int64]int64
	refreshedAt time.Time
}

// New returns an empty cache. Read reports 0 until the first Refresh or
// Restore.
func New(ledger Snapshotter) *Cache {
	return &Cache{ledger: ledger, quantities: make(map[int64]int64)}
}

// Refresh replaces the whole snapshot from the ledger. This is the only
// cache operation that performs I/O.
func (c *Cache) Refresh(ctx context.Context) error {
	snapshot, err := c.ledger.Snapshot(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.quantities = snapshot
	c.refreshedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// Read returns the last-refreshed quantity, or 0 for products never seen.
func (c *Cache) Read(productID int64) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.quantities[productID]
}

// RefreshedAt reports when the snapshot was last replaced. The zero time
// means the cache has never been refreshed or restored.
func (c *Cache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}

// Snapshot copies the current view for persistence.
func (c *Cache) Snapshot() map[int64]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int64]int64, len(c.quantities))
	for id, qty := range c.quantities {
		out[id] = qty
	}
	return out
}

// Restore loads a persisted snapshot taken at refreshedAt.
func (c *Cache) Restore(snapshot map[int64]int64, refreshedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quantities = make(map[int64]int64, len(snapshot))
	for id, qty := range snapshot {
		c.quantities[id] = qty
	}
	c.refreshedAt = refreshedAt
}
