// Package feedcache memoizes parsed feeds for a short window so that a feed
// fetched during validation is not fetched again when the source is created.
package feedcache

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"ai-feed-reader/internal/domain/entity"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultTTL     = 180 * time.Second
	DefaultMaxSize = 999
)

// Config holds cache tuning. Zero values fall back to the defaults.
type Config struct {
	TTL     time.Duration
	MaxSize int
}

type entry struct {
	feed     entity.Feed
	storedAt time.Time
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Size    int           `json:"size"`
	MaxSize int           `json:"max_size"`
	TTL     time.Duration `json:"ttl"`
	Hits    uint64        `json:"hits"`
	Misses  uint64        `json:"misses"`
}

// Cache is a TTL and capacity bounded LRU of parsed feeds keyed by normalized URL.
// Every operation runs under one mutex.
type Cache struct {
	mu      sync.Mutex
	lru     *expirable.LRU[string, entry]
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	hits    uint64
	misses  uint64
}

// New creates a cache. The underlying LRU also expires entries in the
// background so memory is returned even for keys that are never read again.
func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	return &Cache{
		lru:     expirable.NewLRU[string, entry](cfg.MaxSize, nil, cfg.TTL),
		ttl:     cfg.TTL,
		maxSize: cfg.MaxSize,
		now:     time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns a copy of the cached feed for rawURL. Entries older than the TTL are absent.
func (c *Cache) Get(rawURL string) (*entity.Feed, bool) {
	key := Normalize(rawURL)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		c.lru.Remove(key)
		c.misses++
		return nil, false
	}
	c.hits++
	feed := e.feed
	feed.Entries = append([]entity.FeedEntry(nil), e.feed.Entries...)
	return &feed, true
}

// Put stores feed under rawURL, evicting the least recently used entry when full.
func (c *Cache) Put(rawURL string, feed entity.Feed) {
	key := Normalize(rawURL)
	feed.Entries = append([]entity.FeedEntry(nil), feed.Entries...)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry{feed: feed, storedAt: c.now()})
}

// Clear drops every entry and resets the hit counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.hits, c.misses = 0, 0
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:    c.lru.Len(),
		MaxSize: c.maxSize,
		TTL:     c.ttl,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// Normalize maps URLs that differ only in scheme/host/path case, query
// parameter order or fragment to one key. Unparsable input is returned unchanged.
func Normalize(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.ToLower(u.Path)
	u.RawPath = ""
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			sort.Strings(q[k])
		}
		u.RawQuery = q.Encode() // Encode はキー順にソートする
	}
	return u.String()
}
