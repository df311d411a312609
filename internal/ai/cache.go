package ai

import (
	"sync"
	"time"

	"github.com/applifix/backend/internal/utils"
)

// maxCacheEntries bounds the cache; prompts embed the conversation, so most
// keys are never read twice.
const maxCacheEntries = 512

type cacheEntry struct {
	value string
	exp   time.Time
}

// responseCache is a small TTL cache owned by one generator instance. Prompts
// are stored by hash.
type responseCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	max   int
	now   func() time.Time
	store map[string]cacheEntry
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{ttl: ttl, max: maxCacheEntries, now: time.Now, store: map[string]cacheEntry{}}
}

func (c *responseCache) get(key string) (string, bool) {
	if c == nil || c.ttl <= 0 {
		return "", false
	}
	key = utils.HexKey(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.store[key]; ok {
		if c.now().Before(e.exp) {
			return e.value, true
		}
		delete(c.store, key)
	}
	return "", false
}

func (c *responseCache) set(key, value string) {
	if c == nil || c.ttl <= 0 {
		return
	}
	key = utils.HexKey(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, ok := c.store[key]; !ok && len(c.store) >= c.max {
		c.evict(now)
	}
	c.store[key] = cacheEntry{
		value: value,
		exp:   now.Add(c.ttl),
	}
}

// evict drops expired entries, and the entry closest to expiry when none are.
func (c *responseCache) evict(now time.Time) {
	var oldest string
	var oldestExp time.Time
	for k, e := range c.store {
		if !now.Before(e.exp) {
			delete(c.store, k)
			continue
		}
		if oldest == "" || e.exp.Before(oldestExp) {
			oldest, oldestExp = k, e.exp
		}
	}
	if len(c.store) >= c.max && oldest != "" {
		delete(c.store, oldest)
	}
}
