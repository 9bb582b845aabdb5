package evidence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cache stores summaries by query key.
type Cache interface {
	Get(ctx context.Context, key string) (Summary, bool, error)
	Set(ctx context.Context, key string, s Summary, ttl time.Duration) error
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   func() time.Time
}

type memoryEntry struct {
	summary   Summary
	expiresAt time.Time
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), clock: time.Now}
}

// WithClock overrides the clock for testing.
func (c *MemoryCache) WithClock(clock func() time.Time) *MemoryCache {
	c.clock = clock
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) (Summary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Summary{}, false, nil
	}
	if !c.clock().Before(e.expiresAt) {
		delete(c.entries, key)
		return Summary{}, false, nil
	}
	return e.summary.Normalized(), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, s Summary, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{summary: s.Normalized(), expiresAt: c.clock().Add(ttl)}
	return nil
}

// Scoper is implemented by providers whose answers depend on the caller.
// CacheScope names the partition a cached summary may be shared within, or
// fails when the caller may not fetch at all.
type Scoper interface {
	CacheScope(ctx context.Context) (string, error)
}

// CachedProvider serves summaries from a cache, fetching from next on a miss.
// Cache failures are logged and bypassed; they never fail a fetch.
type CachedProvider struct {
	next   Provider
	cache  Cache
	ttl    time.Duration
	scope  func(context.Context) (string, error)
	logger *slog.Logger
}

// NewCachedProvider wraps next with cache. A non-positive ttl disables caching.
// When next is a Scoper, entries are keyed by its scope as well as the query.
func NewCachedProvider(next Provider, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &CachedProvider{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With("component", "evidence.cache"),
	}
	if s, ok := next.(Scoper); ok {
		p.scope = s.CacheScope
	}
	return p
}

// key resolves the caller's partition before any lookup.
func (p *CachedProvider) key(ctx context.Context, q Query) (string, error) {
	if p.scope == nil {
		return q.Key(), nil
	}
	part, err := p.scope(ctx)
	if err != nil {
		return "", err
	}
	return part + "|" + q.Key(), nil
}

// Summary implements Provider.
func (p *CachedProvider) Summary(ctx context.Context, q Query) (Summary, error) {
	if p.ttl <= 0 || p.cache == nil {
		return p.next.Summary(ctx, q)
	}
	if err := q.Validate(); err != nil {
		return Summary{}, err
	}

	key, err := p.key(ctx, q)
	if err != nil {
		return Summary{}, err
	}
	if s, ok, err := p.cache.Get(ctx, key); err != nil {
		p.logger.WarnContext(ctx, "evidence cache read failed", "key", key, "error", err)
	} else if ok {
		return s, nil
	}

	s, err := p.next.Summary(ctx, q)
	if err != nil {
		return Summary{}, err
	}
	s = s.Normalized()
	if err := p.cache.Set(ctx, key, s, p.ttl); err != nil {
		p.logger.WarnContext(ctx, "evidence cache write failed", "key", key, "error", err)
	}
	return s, nil
}
