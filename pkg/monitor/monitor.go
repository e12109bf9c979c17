// Package monitor keeps a flow graph in sync with the data node and flow edge definitions of a Source.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flyteorg/flytestdlib/errors"
	"github.com/flyteorg/flytestdlib/logger"
	"github.com/flyteorg/flytestdlib/promutils"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/maps"
	"golang.org/x/time/rate"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"

	"github.com/flyteorg/flowcompiler/pkg/executor"
	"github.com/flyteorg/flowcompiler/pkg/flowgraph"
	"github.com/flyteorg/flowcompiler/pkg/flowgraph/loader"
	"github.com/flyteorg/flowcompiler/pkg/spec"
)

type metrics struct {
	SyncLatency   promutils.StopWatch
	SyncFailure   prometheus.Counter
	NodesAdded    prometheus.Counter
	NodesRemoved  prometheus.Counter
	EdgesAdded    prometheus.Counter
	EdgesRemoved  prometheus.Counter
	Rejected      prometheus.Counter
	NodeCount     prometheus.Gauge
	EdgeCount     prometheus.Gauge
	WatchTriggers prometheus.Counter
}

// Monitor applies the difference between consecutive snapshots of a Source to a flow graph. Definitions that fail to
// instantiate or to register are left out of the applied state and retried on the next sync.
type Monitor struct {
	source    Source
	mutator   flowgraph.Mutator
	executors *executor.Registry
	resync    time.Duration
	watch     bool
	limiter   *rate.Limiter
	metrics   *metrics

	syncMu  sync.Mutex
	applied *loader.Definitions
	healthy atomic.Bool
}

// changes lists what a sync removes and adds, ids in sorted order.
type changes struct {
	deleteEdges []string
	deleteNodes []string
	addNodes    []string
	addEdges    []string
}

func configChanged(a, b spec.Config) bool {
	return !maps.Equal(a, b)
}

// diff computes the mutations turning the applied definitions into next. Edges touching a removed or changed node are
// removed and re-added so the node can be replaced.
func diff(applied, next *loader.Definitions) changes {
	deleteNodes := sets.NewString()
	addNodes := sets.NewString()
	for id, cfg := range applied.Nodes {
		if nextCfg, ok := next.Nodes[id]; !ok || configChanged(cfg, nextCfg) {
			deleteNodes.Insert(id)
		}
	}

	for id, cfg := range next.Nodes {
		if appliedCfg, ok := applied.Nodes[id]; !ok || configChanged(appliedCfg, cfg) {
			addNodes.Insert(id)
		}
	}

	deleteEdges := sets.NewString()
	addEdges := sets.NewString()
	for id, cfg := range applied.Edges {
		nextCfg, ok := next.Edges[id]
		if !ok || configChanged(cfg, nextCfg) ||
			deleteNodes.Has(cfg[flowgraph.FlowEdgeSourceKey]) || deleteNodes.Has(cfg[flowgraph.FlowEdgeDestinationKey]) {
			deleteEdges.Insert(id)
		}
	}

	for id := range next.Edges {
		if _, ok := applied.Edges[id]; !ok || deleteEdges.Has(id) {
			addEdges.Insert(id)
		}
	}

	return changes{
		deleteEdges: deleteEdges.List(),
		deleteNodes: deleteNodes.List(),
		addNodes:    addNodes.List(),
		addEdges:    addEdges.List(),
	}
}

func (m *Monitor) reject(ctx context.Context, kind, id string, err error) {
	m.metrics.Rejected.Inc()
	logger.Errorf(ctx, "rejected %s [%s]: %v", kind, id, err)
}

// Sync loads a snapshot from the source and applies it to the graph.
func (m *Monitor) Sync(ctx context.Context) error {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	timer := m.metrics.SyncLatency.Start()
	defer timer.Stop()

	next, err := m.source.Load(ctx)
	if err != nil {
		m.metrics.SyncFailure.Inc()
		logger.Errorf(ctx, "failed to load flow graph definitions: %v", err)
		return err
	}

	c := diff(m.applied, next)
	if len(c.deleteEdges)+len(c.deleteNodes)+len(c.addNodes)+len(c.addEdges) == 0 {
		logger.Debugf(ctx, "flow graph is up to date")
		m.healthy.Store(true)
		return nil
	}

	applied := loader.NewDefinitions()
	maps.Copy(applied.Nodes, next.Nodes)
	maps.Copy(applied.Edges, next.Edges)

	// Instances are created before taking the graph lock, executor lookups are not cheap.
	nodes := make([]flowgraph.DataNode, 0, len(c.addNodes))
	for _, id := range c.addNodes {
		n, err := flowgraph.NewDataNode(next.Nodes[id])
		if err != nil {
			m.reject(ctx, "data node", id, err)
			delete(applied.Nodes, id)
			continue
		}

		nodes = append(nodes, n)
	}

	edges := make([]flowgraph.FlowEdge, 0, len(c.addEdges))
	for _, id := range c.addEdges {
		e, err := flowgraph.NewFlowEdge(ctx, next.Edges[id], m.executors)
		if err != nil {
			m.reject(ctx, "flow edge", id, err)
			delete(applied.Edges, id)
			continue
		}

		edges = append(edges, e)
	}

	err = m.mutator.Mutate(func(g flowgraph.FlowGraph) error {
		for _, id := range c.deleteEdges {
			if err := g.DeleteFlowEdge(id); err != nil && !errors.IsCausedBy(err, flowgraph.ErrFlowEdgeNotFound) {
				m.reject(ctx, "flow edge removal", id, err)
				continue
			}

			m.metrics.EdgesRemoved.Inc()
		}

		for _, id := range c.deleteNodes {
			if err := g.DeleteDataNode(id); err != nil && !errors.IsCausedBy(err, flowgraph.ErrDataNodeNotFound) {
				m.reject(ctx, "data node removal", id, err)
				continue
			}

			m.metrics.NodesRemoved.Inc()
		}

		for _, n := range nodes {
			if err := g.AddDataNode(n); err != nil {
				m.reject(ctx, "data node", n.ID(), err)
				delete(applied.Nodes, n.ID())
				continue
			}

			m.metrics.NodesAdded.Inc()
		}

		for _, e := range edges {
			if err := g.AddFlowEdge(e); err != nil {
				m.reject(ctx, "flow edge", e.ID(), err)
				delete(applied.Edges, e.ID())
				continue
			}

			m.metrics.EdgesAdded.Inc()
		}

		m.metrics.NodeCount.Set(float64(len(g.Nodes())))
		m.metrics.EdgeCount.Set(float64(len(g.Edges())))
		return nil
	})

	if err != nil {
		m.metrics.SyncFailure.Inc()
		logger.Errorf(ctx, "failed to apply flow graph definitions: %v", err)
		return err
	}

	logger.Infof(ctx, "flow graph synced, removed [%d] edges and [%d] nodes, added [%d] nodes and [%d] edges",
		len(c.deleteEdges), len(c.deleteNodes), len(nodes), len(edges))
	m.applied = applied
	m.healthy.Store(true)
	return nil
}

// Healthy reports whether the first snapshot has been applied.
func (m *Monitor) Healthy() bool {
	return m.healthy.Load()
}

// Ready is Healthy, the graph serves compilations as soon as one snapshot is applied.
func (m *Monitor) Ready() bool {
	return m.Healthy()
}

// WaitForHealthy polls Healthy until it reports true or timeout elapses.
func (m *Monitor) WaitForHealthy(ctx context.Context, timeout time.Duration) error {
	err := wait.PollUntilContextTimeout(ctx, 10*time.Millisecond, timeout, true, func(context.Context) (bool, error) {
		return m.Healthy(), nil
	})

	if err != nil {
		return fmt.Errorf("flow graph monitor not healthy after [%v]: %w", timeout, err)
	}

	return nil
}

// Start syncs the graph every resync interval and, for sources that can watch, whenever the source changes. It
// returns immediately, the loops stop when ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	go wait.UntilWithContext(ctx, func(ctx context.Context) {
		_ = m.Sync(ctx)
	}, m.resync)

	w, ok := m.source.(Watcher)
	if !m.watch || !ok {
		return
	}

	triggers := make(chan struct{}, 1)
	go func() {
		if err := w.Watch(ctx, func() {
			select {
			case triggers <- struct{}{}:
			default:
			}
		}); err != nil {
			logger.Errorf(ctx, "flow graph watch stopped: %v", err)
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-triggers:
			}

			if err := m.limiter.Wait(ctx); err != nil {
				return
			}

			m.metrics.WatchTriggers.Inc()
			_ = m.Sync(ctx)
		}
	}()
}

// Option customizes a Monitor.
type Option func(m *Monitor)

func WithWatch(watch bool) Option {
	return func(m *Monitor) {
		m.watch = watch
	}
}

func WithTriggerLimit(qps float64, burst int) Option {
	return func(m *Monitor) {
		m.limiter = rate.NewLimiter(rate.Limit(qps), burst)
	}
}

func New(source Source, mutator flowgraph.Mutator, executors *executor.Registry, resync time.Duration,
	scope promutils.Scope, opts ...Option) *Monitor {

	monitorScope := scope.NewSubScope("monitor")
	m := &Monitor{
		source:    source,
		mutator:   mutator,
		executors: executors,
		resync:    resync,
		watch:     true,
		limiter:   rate.NewLimiter(rate.Limit(1), 1),
		applied:   loader.NewDefinitions(),
		metrics: &metrics{
			SyncLatency:   monitorScope.MustNewStopWatch("sync", "Time to sync the flow graph", time.Millisecond),
			SyncFailure:   monitorScope.MustNewCounter("sync_failure", "Number of failed flow graph syncs"),
			NodesAdded:    monitorScope.MustNewCounter("nodes_added", "Number of data nodes added"),
			NodesRemoved:  monitorScope.MustNewCounter("nodes_removed", "Number of data nodes removed"),
			EdgesAdded:    monitorScope.MustNewCounter("edges_added", "Number of flow edges added"),
			EdgesRemoved:  monitorScope.MustNewCounter("edges_removed", "Number of flow edges removed"),
			Rejected:      monitorScope.MustNewCounter("rejected", "Number of definitions that could not be applied"),
			NodeCount:     monitorScope.MustNewGauge("nodes", "Number of data nodes in the flow graph"),
			EdgeCount:     monitorScope.MustNewGauge("edges", "Number of flow edges in the flow graph"),
			WatchTriggers: monitorScope.MustNewCounter("watch_triggers", "Number of syncs caused by source changes"),
		},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// NewFromConfig builds the monitor of the configured source. kubeClient is only used by the config map source.
func NewFromConfig(cfg *Config, graphDir string, kubeClient kubernetes.Interface, mutator flowgraph.Mutator,
	executors *executor.Registry, scope promutils.Scope) (*Monitor, error) {

	var source Source
	switch cfg.Source {
	case SourceTypeDirectory, "":
		source = NewDirectorySource(graphDir)
	case SourceTypeConfigMap:
		if kubeClient == nil {
			return nil, fmt.Errorf("config map source requires a kubernetes client")
		}

		source = NewConfigMapSource(kubeClient, cfg.ConfigMap.Namespace, cfg.ConfigMap.Name)
	default:
		return nil, fmt.Errorf("no such flow graph source type available: %s", cfg.Source)
	}

	return New(source, mutator, executors, cfg.ResyncInterval.Duration, scope,
		WithWatch(cfg.Watch), WithTriggerLimit(cfg.TriggerQPS, cfg.TriggerBurst)), nil
}
