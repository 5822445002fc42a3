package driven

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/alorle/playlist-proxy/internal/playlist"
	port "github.com/alorle/playlist-proxy/internal/port/driven"
	"github.com/alorle/playlist-proxy/metrics"
)

// ResultLRUCache implements the ResultCache port with a fixed-capacity,
// least-recently-used in-memory store whose entries expire after a TTL.
// It is safe for concurrent use.
type ResultLRUCache struct {
	lru    *expirable.LRU[string, playlist.Result]
	logger *slog.Logger
}

// NewResultLRUCache creates a cache holding at most size results for ttl each.
func NewResultLRUCache(size int, ttl time.Duration, logger *slog.Logger) *ResultLRUCache {
	c := &ResultLRUCache{logger: logger}
	c.lru = expirable.NewLRU[string, playlist.Result](size, c.onEvict, ttl)
	return c
}

// KeyFor returns the hex SHA-256 digest of url.
func (c *ResultLRUCache) KeyFor(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Get returns a copy of the fresh result stored under key.
func (c *ResultLRUCache) Get(key string) (playlist.Result, bool) {
	result, ok := c.lru.Get(key)
	if !ok {
		metrics.SetCacheEntries(c.lru.Len())
		return playlist.Result{}, false
	}
	return result.Clone(), true
}

// Put stores a copy of result under key and restarts its TTL.
func (c *ResultLRUCache) Put(key string, result playlist.Result) {
	c.lru.Add(key, result.Clone())
	metrics.SetCacheEntries(c.lru.Len())
}

// Len returns the number of entries, expired ones not yet purged included.
func (c *ResultLRUCache) Len() int {
	return c.lru.Len()
}

// onEvict runs with the LRU lock held and must not call back into the cache.
func (c *ResultLRUCache) onEvict(key string, _ playlist.Result) {
	c.logger.Debug("playlist cache entry evicted", "key", key)
}

var _ port.ResultCache = (*ResultLRUCache)(nil)
