package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flyteorg/flytestdlib/logger"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"

	"github.com/flyteorg/flowcompiler/pkg/spec"
)

var ErrExecutorNotFound = fmt.Errorf("spec executor not found")

// Registry maps executor URIs to SpecExecutors. It is owned by whoever builds the flow graph and handed to the edge
// factories, there is no process wide instance.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]SpecExecutor
}

func (r *Registry) Register(e SpecExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executors[e.URI()]; ok {
		return fmt.Errorf("spec executor [%s] already registered", e.URI())
	}

	r.executors[e.URI()] = e
	return nil
}

func (r *Registry) Get(uri string) (SpecExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[uri]
	if !ok {
		return nil, fmt.Errorf("%w: [%s]", ErrExecutorNotFound, uri)
	}

	return e, nil
}

// URIs returns the registered executor URIs in sorted order.
func (r *Registry) URIs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uris := maps.Keys(r.executors)
	slices.Sort(uris)
	return uris
}

func NewRegistry() *Registry {
	return &Registry{
		executors: map[string]SpecExecutor{},
	}
}

// NewRegistryFromConfig instantiates every configured executor.
func NewRegistryFromConfig(ctx context.Context, cfg *Config) (*Registry, error) {
	r := NewRegistry()
	for _, eCfg := range cfg.Executors {
		var e SpecExecutor
		switch eCfg.Type {
		case TypeInMemory, "":
			e = NewInMemorySpecExecutor(eCfg.URI, spec.Config(eCfg.Config))
		case TypeGRPC:
			conn, err := DialExecutor(ctx, eCfg.Endpoint, cfg.MaxRetries)
			if err != nil {
				return nil, err
			}

			e = NewGRPCSpecExecutor(eCfg.URI, conn, eCfg, cfg.HealthCheckTimeout.Duration, cfg.HealthCacheTTL.Duration,
				NewInMemorySpecProducer(), clock.RealClock{})
		default:
			return nil, fmt.Errorf("no such spec executor type available: %s", eCfg.Type)
		}

		if err := r.Register(e); err != nil {
			return nil, err
		}

		logger.Infof(ctx, "registered spec executor [%s] of type [%s]", eCfg.URI, eCfg.Type)
	}

	return r, nil
}

// SelectHealthy returns the first executor reporting Healthy within timeout, or the first executor when none does.
func SelectHealthy(ctx context.Context, executors []SpecExecutor, timeout time.Duration) (SpecExecutor, error) {
	if len(executors) == 0 {
		return nil, ErrExecutorNotFound
	}

	for _, e := range executors {
		h, err := GetWithTimeout(ctx, e.GetHealth(ctx), timeout)
		if err != nil {
			logger.Debugf(ctx, "health of executor [%s] unavailable: %v", e.URI(), err)
			continue
		}

		if h == Healthy {
			return e, nil
		}
	}

	logger.Warnf(ctx, "no healthy executor among [%d], falling back to [%s]", len(executors), executors[0].URI())
	return executors[0], nil
}
