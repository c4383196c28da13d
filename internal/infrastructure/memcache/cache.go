// Package memcache is an in-process, size-capped cache whose entries expire
// after a per-entry TTL.
package memcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrMalformedKey is returned for empty keys.
	ErrMalformedKey = errors.New("malformed cache key")
	ErrInvalidTTL   = errors.New("invalid ttl")
)

type Config struct {
	DefaultTTL time.Duration
	MaxEntries int
}

// Stats is a snapshot of the cache counters. Size counts stored entries,
// including expired ones not yet collected, which are also reported in Expired.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Size      int     `json:"size"`
	Evictions int64   `json:"evictions"`
	Expired   int     `json:"expired"`
}

// Observer receives cache events. Calls happen with the cache lock held and
// must not call back into the cache.
type Observer interface {
	Hit()
	Miss()
	Evicted()
	Expired(n int)
}

type noopObserver struct{}

func (noopObserver) Hit()        {}
func (noopObserver) Miss()       {}
func (noopObserver) Evicted()    {}
func (noopObserver) Expired(int) {}

type Option func(*options)

type options struct {
	now      func() time.Time
	observer Observer
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache maps string keys to values of type V. All operations take a single
// mutex; the LRU store evicts the least recently used entry when MaxEntries
// is reached.
type Cache[V any] struct {
	mu         sync.Mutex
	store      *lru.Cache[string, entry[V]]
	defaultTTL time.Duration
	now        func() time.Time
	observer   Observer

	hits      int64
	misses    int64
	evictions int64
}

func New[V any](cfg Config, opts ...Option) (*Cache[V], error) {
	if cfg.DefaultTTL <= 0 {
		return nil, fmt.Errorf("memcache: default ttl must be positive, got %s", cfg.DefaultTTL)
	}
	if cfg.MaxEntries <= 0 {
		return nil, fmt.Errorf("memcache: max entries must be positive, got %d", cfg.MaxEntries)
	}
	o := options{now: time.Now, observer: noopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	store, err := lru.New[string, entry[V]](cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("memcache: %w", err)
	}
	return &Cache[V]{
		store:      store,
		defaultTTL: cfg.DefaultTTL,
		now:        o.now,
		observer:   o.observer,
	}, nil
}

// Get returns the value stored under key if it has not expired. Expired
// entries are removed and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool, error) {
	var zero V
	if key == "" {
		return zero, false, ErrMalformedKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store.Get(key)
	if ok && !c.now().Before(e.expiresAt) {
		c.store.Remove(key)
		c.observer.Expired(1)
		ok = false
	}
	if !ok {
		c.misses++
		c.observer.Miss()
		return zero, false, nil
	}
	c.hits++
	c.observer.Hit()
	return e.value, true, nil
}

// Set stores value under key for ttl, replacing any previous value and expiry.
// A zero ttl selects the default TTL.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) error {
	if key == "" {
		return ErrMalformedKey
	}
	if ttl < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTTL, ttl)
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store.Add(key, entry[V]{value: value, expiresAt: c.now().Add(ttl)}) {
		c.evictions++
		c.observer.Evicted()
	}
	return nil
}

// Invalidate removes key. Removing an absent key is not an error.
func (c *Cache[V]) Invalidate(key string) error {
	if key == "" {
		return ErrMalformedKey
	}
	c.mu.Lock()
	c.store.Remove(key)
	c.mu.Unlock()
	return nil
}

// InvalidatePrefix removes every key starting with prefix.
func (c *Cache[V]) InvalidatePrefix(prefix string) int {
	return c.InvalidateMatching(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// InvalidateMatching removes every key for which match returns true.
func (c *Cache[V]) InvalidateMatching(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, k := range c.store.Keys() {
		if match(k) {
			c.store.Remove(k)
			n++
		}
	}
	return n
}

// Clear drops every entry. Counters are kept.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.store.Purge()
	c.mu.Unlock()
}

func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expired := 0
	for _, k := range c.store.Keys() {
		if e, ok := c.store.Peek(k); ok && !now.Before(e.expiresAt) {
			expired++
		}
	}

	s := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Size:      c.store.Len(),
		Evictions: c.evictions,
		Expired:   expired,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// CleanupExpired removes all expired entries and returns how many were removed.
func (c *Cache[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for _, k := range c.store.Keys() {
		if e, ok := c.store.Peek(k); ok && !now.Before(e.expiresAt) {
			c.store.Remove(k)
			n++
		}
	}
	if n > 0 {
		c.observer.Expired(n)
	}
	return n
}

// Run sweeps expired entries every interval until ctx is done.
func (c *Cache[V]) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CleanupExpired()
		}
	}
}
