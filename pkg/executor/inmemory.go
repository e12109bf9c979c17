package executor

import (
	"context"
	"sync"

	"github.com/flyteorg/flytestdlib/logger"
	"github.com/pkg/errors"

	"github.com/flyteorg/flowcompiler/pkg/spec"
)

// InMemorySpecProducer keeps the produced job specs in memory. It backs local executors and tests.
type InMemorySpecProducer struct {
	mu    sync.RWMutex
	specs map[string]*spec.JobSpec
	order []string
}

func (p *InMemorySpecProducer) AddSpec(ctx context.Context, jobSpec *spec.JobSpec) Future {
	if jobSpec == nil {
		return NewSyncFuture(nil, errors.New("nil job spec"))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.specs[jobSpec.URI]; !ok {
		p.order = append(p.order, jobSpec.URI)
	}

	p.specs[jobSpec.URI] = jobSpec
	logger.Debugf(ctx, "added job spec [%s]", jobSpec.URI)
	return NewSyncFuture(jobSpec, nil)
}

func (p *InMemorySpecProducer) DeleteSpec(ctx context.Context, uri string) Future {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.specs[uri]; !ok {
		return NewSyncFuture(nil, errors.Errorf("job spec [%s] not found", uri))
	}

	delete(p.specs, uri)
	for i, u := range p.order {
		if u == uri {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}

	logger.Debugf(ctx, "deleted job spec [%s]", uri)
	return NewSyncFuture(uri, nil)
}

// ListSpecs resolves to the job specs in insertion order.
func (p *InMemorySpecProducer) ListSpecs(_ context.Context) Future {
	p.mu.RLock()
	defer p.mu.RUnlock()
	res := make([]*spec.JobSpec, 0, len(p.order))
	for _, uri := range p.order {
		res = append(res, p.specs[uri])
	}

	return NewSyncFuture(res, nil)
}

func NewInMemorySpecProducer() *InMemorySpecProducer {
	return &InMemorySpecProducer{
		specs: map[string]*spec.JobSpec{},
	}
}

// InMemorySpecExecutor is an always healthy executor answering every query synchronously.
type InMemorySpecExecutor struct {
	uri         string
	description string
	config      spec.Config
	producer    SpecProducer
}

func (e *InMemorySpecExecutor) URI() string {
	return e.uri
}

func (e *InMemorySpecExecutor) Description() string {
	return e.description
}

func (e *InMemorySpecExecutor) GetConfig(_ context.Context) Future {
	return NewSyncFuture(e.config, nil)
}

func (e *InMemorySpecExecutor) GetProducer(_ context.Context) Future {
	return NewSyncFuture(e.producer, nil)
}

func (e *InMemorySpecExecutor) GetHealth(_ context.Context) Future {
	return NewSyncFuture(Healthy, nil)
}

func NewInMemorySpecExecutor(uri string, cfg spec.Config) *InMemorySpecExecutor {
	return &InMemorySpecExecutor{
		uri:         uri,
		description: "in-memory spec executor",
		config:      cfg,
		producer:    NewInMemorySpecProducer(),
	}
}
