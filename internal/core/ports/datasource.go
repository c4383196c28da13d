package ports

import (
	"context"

	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
)

// DatasetLoader fetches a list snapshot. It is all the refresh coordinator
// needs from the data layer.
type DatasetLoader interface {
	Load(ctx context.Context, q desvio.Query) (desvio.Rows, error)
}

// DatasetReloader can drop a cached query before loading it again.
type DatasetReloader interface {
	DatasetLoader
	Invalidate(ctx context.Context, q desvio.Query) error
}

// ListStore is the remote list service holding the desvio data.
type ListStore interface {
	DatasetLoader
	// Save updates the item named by record's ID, or creates one when the
	// record has no ID.
	Save(ctx context.Context, dataset string, record desvio.Record) error
	// SaveBatch saves records concurrently and returns how many succeeded
	// together with the joined error of the failures.
	SaveBatch(ctx context.Context, dataset string, records desvio.Rows) (int, error)
	Ping(ctx context.Context) error
}

// CacheStats mirrors the expiring cache counters.
type CacheStats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Size      int     `json:"size"`
	Evictions int64   `json:"evictions"`
	Expired   int     `json:"expired"`
}

// DataSource is the cached view of the ListStore used by services.
type DataSource interface {
	ListStore
	// Invalidate drops the cached entry of one query.
	Invalidate(ctx context.Context, q desvio.Query) error
	// InvalidateDataset drops every cached entry of dataset and returns how many were dropped.
	InvalidateDataset(ctx context.Context, dataset string) int
	Clear(ctx context.Context)
	Stats() CacheStats
}
