package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/systemshift/cypherview/internal/metrics"
)

// Upstream fetches raw query results.
type Upstream interface {
	Fetch(ctx context.Context, database, query string) ([]byte, error)
}

// Fetcher puts a Store in front of an Upstream. Concurrent misses for the
// same key share one upstream call. Store failures are logged and treated
// as misses, so a broken cache never blocks a fetch.
type Fetcher struct {
	upstream Upstream
	store    Store
	ttl      time.Duration
	name     string
	logger   *zap.Logger
	metrics  *metrics.Collector
	group    singleflight.Group
}

// NewFetcher wraps upstream. name labels the cache metrics.
func NewFetcher(upstream Upstream, store Store, ttl time.Duration, name string, logger *zap.Logger, m *metrics.Collector) *Fetcher {
	return &Fetcher{
		upstream: upstream,
		store:    store,
		ttl:      ttl,
		name:     name,
		logger:   logger,
		metrics:  m,
	}
}

// Fetch returns the cached result for the query or fetches and stores it.
func (f *Fetcher) Fetch(ctx context.Context, database, query string) ([]byte, error) {
	key := Key(database, query)

	if data, ok, err := f.store.Get(ctx, key); err != nil {
		f.logger.Warn("Cache read failed", zap.String("cache", f.name), zap.Error(err))
	} else if ok {
		f.metrics.CacheHits.WithLabelValues(f.name).Inc()
		return data, nil
	}
	f.metrics.CacheMisses.WithLabelValues(f.name).Inc()

	v, err, shared := f.group.Do(key, func() (interface{}, error) {
		data, err := f.upstream.Fetch(ctx, database, query)
		if err != nil {
			return nil, err
		}
		if err := f.store.Set(ctx, key, data, f.ttl); err != nil {
			f.logger.Warn("Cache write failed", zap.String("cache", f.name), zap.Error(err))
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		f.logger.Debug("Shared in-flight fetch", zap.String("database", database))
	}
	return v.([]byte), nil
}

// Invalidate drops the cached result for a query.
func (f *Fetcher) Invalidate(ctx context.Context, database, query string) error {
	return f.store.Delete(ctx, Key(database, query))
}
