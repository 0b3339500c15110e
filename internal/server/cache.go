package server

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// searchCache memoizes search responses for identical requests.
// Entries expire on their TTL and the whole cache is purged whenever
// the index changes (reindex, record deletion).
type searchCache struct {
	lru *expirable.LRU[string, *SearchResponse]
}

// newSearchCache creates a cache. Size zero or negative disables
// caching entirely.
func newSearchCache(size int, ttl time.Duration) *searchCache {
	if size <= 0 {
		return &searchCache{}
	}
	return &searchCache{lru: expirable.NewLRU[string, *SearchResponse](size, nil, ttl)}
}

func (c *searchCache) Get(key string) (*SearchResponse, bool) {
	if c.lru == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

func (c *searchCache) Add(key string, resp *SearchResponse) {
	if c.lru != nil {
		c.lru.Add(key, resp)
	}
}

func (c *searchCache) Purge() {
	if c.lru != nil {
		c.lru.Purge()
	}
}

// cacheKey produces a fixed-length key covering every request knob.
func cacheKey(q, kind string, limit int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d", q, kind, limit)))
	return hex.EncodeToString(h[:])
}
