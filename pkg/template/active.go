package template

import (
	"context"
	"sync"
	"time"

	"github.com/flyteorg/flytestdlib/promutils"
	"github.com/prometheus/client_golang/prometheus"
)

type activeCatalogMetrics struct {
	TotalItems   prometheus.Gauge
	CacheHit     prometheus.Counter
	CacheMiss    prometheus.Counter
	ReadError    prometheus.Counter
	FetchLatency promutils.StopWatch
}

// activeCatalog keeps every template it has ever read until it is removed explicitly.
type activeCatalog struct {
	catalog Catalog
	metrics *activeCatalogMetrics
	mu      sync.RWMutex
	store   map[string]*FlowTemplate
}

func (a *activeCatalog) GetTemplate(ctx context.Context, uri string) (*FlowTemplate, error) {
	a.mu.RLock()
	t, ok := a.store[uri]
	a.mu.RUnlock()
	if ok {
		a.metrics.CacheHit.Inc()
		return t, nil
	}

	a.metrics.CacheMiss.Inc()

	timer := a.metrics.FetchLatency.Start()
	t, err := a.catalog.GetTemplate(ctx, uri)
	timer.Stop()
	if err != nil {
		a.metrics.ReadError.Inc()
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.store[uri]; !ok {
		a.metrics.TotalItems.Inc()
	}

	a.store[uri] = t
	return t, nil
}

func (a *activeCatalog) Remove(ctx context.Context, uri string) error {
	if err := a.catalog.Remove(ctx, uri); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.store[uri]; ok {
		a.metrics.TotalItems.Dec()
		delete(a.store, uri)
	}

	return nil
}

func NewActiveCatalog(catalog Catalog, scope promutils.Scope) Catalog {
	activeScope := scope.NewSubScope("active")
	metrics := &activeCatalogMetrics{
		TotalItems:   activeScope.MustNewGauge("total_items", "Total Items in cache"),
		FetchLatency: activeScope.MustNewStopWatch("fetch", "Total Time to read from underlying datastorage", time.Millisecond),
		CacheHit:     activeScope.MustNewCounter("cache_hit", "Number of times a template was found in active cache"),
		CacheMiss:    activeScope.MustNewCounter("cache_miss", "Number of times a template was not found in active cache"),
		ReadError:    activeScope.MustNewCounter("cache_read_error", "Failed to read from underlying storage"),
	}

	return &activeCatalog{
		catalog: catalog,
		metrics: metrics,
		store:   map[string]*FlowTemplate{},
	}
}
