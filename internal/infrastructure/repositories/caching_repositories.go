package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
	"github.com/torrecontrole/sentinela/internal/core/ports"
	"github.com/torrecontrole/sentinela/internal/infrastructure/memcache"
)

// Utility helpers
func cacheSetSilently(c ports.Cache, ctx context.Context, key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.Set(ctx, key, b, ttl)
}

func cacheGet[T any](c ports.Cache, ctx context.Context, key string) (*T, bool) {
	if c == nil {
		return nil, false
	}
	b, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}
	return &v, true
}

const defaultLoadTimeout = 30 * time.Second

// CachingDataSource decorates a ListStore with the in-process expiring cache
// and an optional shared second level. Concurrent misses on one key share a
// single remote load. Empty results are never cached.
type CachingDataSource struct {
	inner  ports.ListStore
	local  *memcache.Cache[desvio.Rows]
	shared ports.Cache
	ttlFor func(dataset string) time.Duration
	sf     singleflight.Group
	logger *logrus.Logger

	loadTimeout time.Duration
}

// CachingOption customizes a CachingDataSource.
type CachingOption func(*CachingDataSource)

// WithLoadTimeout bounds a shared remote load. The load runs detached from
// the caller that started it, so this is what stops it.
func WithLoadTimeout(d time.Duration) CachingOption {
	return func(c *CachingDataSource) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// NewCachingDataSource wraps inner. shared may be nil; ttlFor selects the TTL
// of a dataset and may return 0 for the cache default.
func NewCachingDataSource(inner ports.ListStore, local *memcache.Cache[desvio.Rows], shared ports.Cache, ttlFor func(dataset string) time.Duration, logger *logrus.Logger, opts ...CachingOption) *CachingDataSource {
	if ttlFor == nil {
		ttlFor = func(string) time.Duration { return 0 }
	}
	c := &CachingDataSource{
		inner:       inner,
		local:       local,
		shared:      shared,
		ttlFor:      ttlFor,
		logger:      logger,
		loadTimeout: defaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns a private copy of the query result, from cache when fresh.
// Concurrent misses share one remote load that outlives any single caller;
// a caller whose ctx ends stops waiting without failing the others.
func (c *CachingDataSource) Load(ctx context.Context, q desvio.Query) (desvio.Rows, error) {
	key, err := q.Key()
	if err != nil {
		return nil, err
	}
	if rows, ok, _ := c.local.Get(key); ok {
		return rows.Clone(), nil
	}

	ch := c.sf.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		ttl := c.ttlFor(q.Dataset)
		if v, ok := cacheGet[desvio.Rows](c.shared, loadCtx, key); ok && len(*v) > 0 {
			_ = c.local.Set(key, *v, ttl)
			return *v, nil
		}
		rows, err := c.inner.Load(loadCtx, q)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			_ = c.local.Set(key, rows.Clone(), ttl)
			cacheSetSilently(c.shared, loadCtx, key, rows, ttl)
		}
		return rows, nil
	})

	var r singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-ch:
	}
	res, err, shared := r.Val, r.Err, r.Shared
	if err != nil {
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{"dataset": q.Dataset, "key": key}).WithError(err).Warn("failed to load dataset")
		}
		return nil, err
	}
	rows, ok := res.(desvio.Rows)
	if !ok {
		return nil, fmt.Errorf("unexpected type from singleflight result")
	}
	if c.logger != nil && shared {
		c.logger.WithFields(logrus.Fields{"dataset": q.Dataset}).Debug("dataset load coalesced")
	}
	return rows.Clone(), nil
}

// Save writes through to the remote store and drops the dataset's cached queries.
func (c *CachingDataSource) Save(ctx context.Context, dataset string, record desvio.Record) error {
	if err := c.inner.Save(ctx, dataset, record); err != nil {
		return err
	}
	c.InvalidateDataset(ctx, dataset)
	return nil
}

func (c *CachingDataSource) SaveBatch(ctx context.Context, dataset string, records desvio.Rows) (int, error) {
	saved, err := c.inner.SaveBatch(ctx, dataset, records)
	if saved > 0 {
		c.InvalidateDataset(ctx, dataset)
	}
	return saved, err
}

func (c *CachingDataSource) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}

func (c *CachingDataSource) Invalidate(ctx context.Context, q desvio.Query) error {
	key, err := q.Key()
	if err != nil {
		return err
	}
	if err := c.local.Invalidate(key); err != nil {
		return err
	}
	if c.shared != nil {
		if err := c.shared.Delete(ctx, key); err != nil && c.logger != nil {
			c.logger.WithFields(logrus.Fields{"key": key}).WithError(err).Warn("failed to invalidate shared cache entry")
		}
	}
	return nil
}

// InvalidateDataset drops every cached query of dataset and returns how many
// local entries were removed.
func (c *CachingDataSource) InvalidateDataset(ctx context.Context, dataset string) int {
	n := c.local.InvalidateMatching(func(key string) bool {
		return desvio.BelongsTo(key, dataset)
	})
	if c.shared != nil {
		prefix := desvio.DatasetPrefix(dataset)
		_ = c.shared.Delete(ctx, prefix)
		if _, err := c.shared.DeletePrefix(ctx, prefix+"|"); err != nil && c.logger != nil {
			c.logger.WithFields(logrus.Fields{"dataset": dataset}).WithError(err).Warn("failed to invalidate shared cache")
		}
	}
	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{"dataset": dataset, "entries": n}).Debug("dataset cache invalidated")
	}
	return n
}

// Clear empties both cache levels.
func (c *CachingDataSource) Clear(ctx context.Context) {
	c.local.Clear()
	if c.shared != nil {
		if _, err := c.shared.DeletePrefix(ctx, desvio.DatasetPrefix("")); err != nil && c.logger != nil {
			c.logger.WithError(err).Warn("failed to clear shared cache")
		}
	}
}

func (c *CachingDataSource) Stats() ports.CacheStats {
	s := c.local.Stats()
	return ports.CacheStats{
		Hits:      s.Hits,
		Misses:    s.Misses,
		HitRate:   s.HitRate,
		Size:      s.Size,
		Evictions: s.Evictions,
		Expired:   s.Expired,
	}
}
