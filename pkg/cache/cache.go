// Package cache is the output cache: a bounded fingerprint → entry mapping
// that lets repeated prompts skip agent execution entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Entry is one cached pipeline output.
type Entry struct {
	Output     string    `json:"output"`
	Confidence int       `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Fingerprint derives the stable cache key for a prompt/provider pair. The
// prompt is normalized first (trim, collapse inner whitespace, lowercase) so
// formatting differences do not defeat the cache. The provider is folded in
// because different providers produce different outputs for the same prompt.
func Fingerprint(prompt, provider string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(prompt), " "))
	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(provider))
	return hex.EncodeToString(h.Sum(nil))
}

// Cache is a bounded LRU with TTL expiry and at-most-one concurrent build
// per fingerprint. Safe for concurrent use.
type Cache struct {
	lru     *expirable.LRU[string, Entry]
	group   singleflight.Group
	maxSize int

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache holding up to maxSize entries, each expiring ttl after
// insertion. maxSize below 1 is clamped to 1; a non-positive ttl disables
// time-based expiry.
func New(maxSize int, ttl time.Duration) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache{
		lru:     expirable.NewLRU[string, Entry](maxSize, nil, ttl),
		maxSize: maxSize,
	}
}

// Get returns the entry for fp, if present and unexpired.
func (c *Cache) Get(fp string) (Entry, bool) {
	entry, ok := c.lru.Get(fp)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return entry, ok
}

// Put stores output under fp with createdAt = now.
func (c *Cache) Put(fp, output string, confidence int) {
	c.lru.Add(fp, Entry{
		Output:     output,
		Confidence: confidence,
		CreatedAt:  time.Now(),
	})
}

// GetOrBuild returns the cached entry for fp or invokes builder to produce
// one. Concurrent callers for the same fingerprint share a single build and
// all receive its result. A failed build caches nothing: the error goes to
// every waiter and the next caller starts a fresh build.
func (c *Cache) GetOrBuild(ctx context.Context, fp string, builder func(ctx context.Context) (Entry, error)) (Entry, error) {
	if entry, ok := c.Get(fp); ok {
		return entry, nil
	}

	v, err, _ := c.group.Do(fp, func() (any, error) {
		// Double-check: another caller may have completed a build between
		// our miss and acquiring the flight slot.
		if entry, ok := c.lru.Get(fp); ok {
			return entry, nil
		}
		entry, err := builder(ctx)
		if err != nil {
			return Entry{}, err
		}
		c.lru.Add(fp, entry)
		return entry, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns current counters. HitRate is 0 when no lookups happened yet.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	s := Stats{
		Hits:    hits,
		Misses:  misses,
		Size:    c.lru.Len(),
		MaxSize: c.maxSize,
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// Purge drops every entry and resets nothing else; counters keep counting.
func (c *Cache) Purge() {
	c.lru.Purge()
}
