package template

import (
	"context"
	"fmt"
	"time"

	"github.com/flyteorg/flytestdlib/promutils"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
)

type lruCatalogMetrics struct {
	CacheHit       prometheus.Counter
	CacheMiss      prometheus.Counter
	CacheReadError prometheus.Counter
	FetchLatency   promutils.StopWatch
}

type lruCatalog struct {
	cache   *lru.Cache
	catalog Catalog
	metrics *lruCatalogMetrics
}

func (l *lruCatalog) GetTemplate(ctx context.Context, uri string) (*FlowTemplate, error) {
	if s, ok := l.cache.Get(uri); ok {
		t, ok := s.(*FlowTemplate)
		if !ok {
			l.metrics.CacheReadError.Inc()
			return nil, fmt.Errorf("cached item in template catalog is not expected type '*FlowTemplate'")
		}

		l.metrics.CacheHit.Inc()
		return t, nil
	}

	l.metrics.CacheMiss.Inc()

	timer := l.metrics.FetchLatency.Start()
	t, err := l.catalog.GetTemplate(ctx, uri)
	timer.Stop()
	if err != nil {
		return nil, err
	}

	l.cache.Add(uri, t)
	return t, nil
}

func (l *lruCatalog) Remove(ctx context.Context, uri string) error {
	if err := l.catalog.Remove(ctx, uri); err != nil {
		return err
	}

	l.cache.Remove(uri)
	return nil
}

func NewLRUCatalog(catalog Catalog, size int, scope promutils.Scope) (Catalog, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}

	lruScope := scope.NewSubScope("lru")
	metrics := &lruCatalogMetrics{
		FetchLatency:   lruScope.MustNewStopWatch("fetch", "Total Time to read from underlying datastorage", time.Millisecond),
		CacheHit:       lruScope.MustNewCounter("cache_hit", "Number of times a template was found in lru cache"),
		CacheMiss:      lruScope.MustNewCounter("cache_miss", "Number of times a template was not found in lru cache"),
		CacheReadError: lruScope.MustNewCounter("cache_read_error", "Failed to read from lru cache"),
	}

	return &lruCatalog{
		cache:   cache,
		catalog: catalog,
		metrics: metrics,
	}, nil
}
