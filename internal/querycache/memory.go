package querycache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"card-scan-workers/internal/models"
)

// MemoryCache is an in-process TTL cache. Expired entries are evicted by a
// background janitor every cleanupInterval.
type MemoryCache struct {
	store *gocache.Cache
}

func NewMemoryCache(ttl, cleanupInterval time.Duration) *MemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = ttl
	}
	return &MemoryCache{store: gocache.New(ttl, cleanupInterval)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]models.CandidateRecord, bool) {
	v, ok := c.store.Get(key)
	recordLookup("memory", ok)
	if !ok {
		return nil, false
	}
	return clone(v.([]models.CandidateRecord)), true
}

func (c *MemoryCache) Set(_ context.Context, key string, records []models.CandidateRecord) {
	c.store.SetDefault(key, clone(records))
}

// Len returns the number of cached queries, expired ones included until the
// janitor runs.
func (c *MemoryCache) Len() int {
	return c.store.ItemCount()
}

// Flush drops every entry.
func (c *MemoryCache) Flush() {
	c.store.Flush()
}
