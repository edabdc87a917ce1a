package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ProviderCache is a short-TTL cache in front of read-heavy provider
// lookups (project and label listings), keyed by connection and query.
// Entries expire by TTL only; writes do not invalidate, which gives an
// acceptable staleness window in exchange for not hammering provider
// APIs during a burst of syncs.
type ProviderCache struct {
	lru *expirable.LRU[string, any]
}

// NewProviderCache creates a cache holding up to size entries for ttl.
func NewProviderCache(size int, ttl time.Duration) *ProviderCache {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ProviderCache{
		lru: expirable.NewLRU[string, any](size, nil, ttl),
	}
}

func cacheKey(connectionID uuid.UUID, query string) string {
	return connectionID.String() + "/" + query
}

// Get returns the cached value for a connection-scoped query.
func (c *ProviderCache) Get(connectionID uuid.UUID, query string) (any, bool) {
	return c.lru.Get(cacheKey(connectionID, query))
}

// Set stores a value for a connection-scoped query.
func (c *ProviderCache) Set(connectionID uuid.UUID, query string, value any) {
	c.lru.Add(cacheKey(connectionID, query), value)
}
