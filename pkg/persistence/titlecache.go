package persistence

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// titleEntry pairs a cached title with the time it was fetched, so
// Title can apply the TTL eviction the teacher's market registry never
// needed (the teacher keeps markets in process memory forever).
type titleEntry struct {
	title    string
	cachedAt time.Time
}

// TitleCache is a bounded LRU over market titles, avoiding a ledger
// round trip (and a stampede under load) on every notification.
type TitleCache struct {
	cache *lru.Cache[string, titleEntry]
	ttl   time.Duration
	load  func(ctx context.Context, marketID string) (string, error)
}

// NewTitleCache builds a cache of the given size and per-entry TTL,
// backed by load for misses.
func NewTitleCache(size int, ttl time.Duration, load func(ctx context.Context, marketID string) (string, error)) (*TitleCache, error) {
	c, err := lru.New[string, titleEntry](size)
	if err != nil {
		return nil, err
	}
	return &TitleCache{cache: c, ttl: ttl, load: load}, nil
}

// Title returns a market's display title, serving from cache when the
// entry hasn't expired and otherwise loading and repopulating it.
func (c *TitleCache) Title(ctx context.Context, marketID string) (string, error) {
	if entry, ok := c.cache.Get(marketID); ok && time.Since(entry.cachedAt) < c.ttl {
		return entry.title, nil
	}

	title, err := c.load(ctx, marketID)
	if err != nil {
		return "", err
	}
	c.cache.Add(marketID, titleEntry{title: title, cachedAt: time.Now()})
	return title, nil
}
