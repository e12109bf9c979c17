// Package compiler turns FlowSpecs into dags of job execution plans by searching paths through a flow graph.
package compiler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flyteorg/flytestdlib/contextutils"
	"github.com/flyteorg/flytestdlib/logger"
	"github.com/flyteorg/flytestdlib/promutils"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/flyteorg/flowcompiler/pkg/compiler/errors"
	"github.com/flyteorg/flowcompiler/pkg/compiler/validators"
	"github.com/flyteorg/flowcompiler/pkg/dag"
	"github.com/flyteorg/flowcompiler/pkg/flowgraph"
	"github.com/flyteorg/flowcompiler/pkg/flowgraph/weights"
	"github.com/flyteorg/flowcompiler/pkg/monitor"
	"github.com/flyteorg/flowcompiler/pkg/plan"
	"github.com/flyteorg/flowcompiler/pkg/spec"
	"github.com/flyteorg/flowcompiler/pkg/template"
)

var ErrNilSpec = fmt.Errorf("nil flow spec")

// MonitorFactory builds the monitor keeping the graph of the compiler up to date.
type MonitorFactory func(mutator flowgraph.Mutator, scope promutils.Scope) (*monitor.Monitor, error)

type compilerMetrics struct {
	Scope                 promutils.Scope
	CompileLatency        promutils.StopWatch
	MutationLatency       promutils.StopWatch
	CompilationFailure    prometheus.Counter
	FlowCompilationFailed prometheus.Counter
	FlowCompiled          prometheus.Counter
}

// Compilation is the outcome of compiling one FlowSpec.
type Compilation struct {
	FlowSpec *spec.FlowSpec
	Dag      *dag.Dag[*plan.JobExecutionPlan]
	// Paths holds the path of every dataset that compiled, in dataset order.
	Paths  []*flowgraph.FlowGraphPath
	Errors errors.CompileErrors
}

// MultiHopFlowCompiler compiles flows against a flow graph. Compilations share the graph through a read lock, graph
// mutations take the write lock. sync.RWMutex blocks new readers while a writer waits, so mutations are not starved
// by a steady stream of compilations.
type MultiHopFlowCompiler struct {
	cfg     *Config
	graph   flowgraph.FlowGraph
	catalog template.Catalog
	lock    sync.RWMutex
	monitor *monitor.Monitor
	metrics *compilerMetrics
	cancel  context.CancelFunc

	monitorFactory  MonitorFactory
	weightSource    weights.LoadSource
	weightsInterval time.Duration
}

type Option func(c *MultiHopFlowCompiler)

// WithMonitor attaches a graph monitor. The compiler starts it and waits for its first sync on construction.
func WithMonitor(factory MonitorFactory) Option {
	return func(c *MultiHopFlowCompiler) {
		c.monitorFactory = factory
	}
}

// WithEdgeWeights refreshes edge weights from source every interval.
func WithEdgeWeights(source weights.LoadSource, interval time.Duration) Option {
	return func(c *MultiHopFlowCompiler) {
		c.weightSource = source
		c.weightsInterval = interval
	}
}

// Mutate runs fn on the graph under the write lock.
func (c *MultiHopFlowCompiler) Mutate(fn func(g flowgraph.FlowGraph) error) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	timer := c.metrics.MutationLatency.Start()
	defer timer.Stop()
	return fn(c.graph)
}

// Graph returns a view of the graph whose reads take the read lock and whose mutations take the write lock.
func (c *MultiHopFlowCompiler) Graph() flowgraph.FlowGraph {
	return &guardedGraph{c: c}
}

// Healthy reports whether the attached monitor, if any, has synced the graph.
func (c *MultiHopFlowCompiler) Healthy() bool {
	return c.monitor == nil || c.monitor.Healthy()
}

// Stop ends the background monitor and weight refresh loops.
func (c *MultiHopFlowCompiler) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// CompileFlow compiles flowSpec into a dag of job execution plans. Flows that cannot be compiled yield an empty dag,
// the reasons are logged. Only a nil flowSpec is returned as an error.
func (c *MultiHopFlowCompiler) CompileFlow(ctx context.Context, flowSpec *spec.FlowSpec) (
	*dag.Dag[*plan.JobExecutionPlan], error) {

	res, err := c.Compile(ctx, flowSpec)
	if err != nil {
		return nil, err
	}

	return res.Dag, nil
}

// Compile is CompileFlow returning the paths and the errors of the compilation next to the dag.
func (c *MultiHopFlowCompiler) Compile(ctx context.Context, flowSpec *spec.FlowSpec) (*Compilation, error) {
	if flowSpec == nil {
		return nil, ErrNilSpec
	}

	if !flowSpec.GetConfig().HasPath(spec.FlowExecutionIDKey) {
		flowSpec = flowSpec.WithConfig(flowSpec.GetConfig().WithValue(spec.FlowExecutionIDKey, uuid.New().String()))
	}

	ctx = contextutils.WithWorkflowID(ctx, fmt.Sprintf("%s.%s", flowSpec.FlowGroup(), flowSpec.FlowName()))
	timer := c.metrics.CompileLatency.Start()
	defer timer.Stop()

	res := &Compilation{
		FlowSpec: flowSpec,
		Errors:   errors.NewCompileErrors(),
	}

	if !validators.ValidateFlowSpec(flowSpec, res.Errors) {
		return c.failed(ctx, res), nil
	}

	subSpecs := spec.SplitByDatasetDescriptors(flowSpec)
	paths := make([]*flowgraph.FlowGraphPath, len(subSpecs))
	dags := make([]*dag.Dag[*plan.JobExecutionPlan], len(subSpecs))
	compileErrs := make([]*errors.CompileError, len(subSpecs))

	c.lock.RLock()
	group := errgroup.Group{}
	if c.cfg.MaxConcurrentSearches > 0 {
		group.SetLimit(c.cfg.MaxConcurrentSearches)
	}

	for i, sub := range subSpecs {
		i, sub := i, sub
		group.Go(func() error {
			paths[i], dags[i], compileErrs[i] = c.compileDataset(ctx, sub)
			return nil
		})
	}

	_ = group.Wait()

	// Dags are merged in dataset order while the read lock is held, edges and nodes of the paths stay consistent.
	var merged *dag.Dag[*plan.JobExecutionPlan]
	for i := range subSpecs {
		if compileErrs[i] != nil {
			c.metrics.CompilationFailure.Inc()
			res.Errors.Collect(compileErrs[i])
			logger.Errorf(ctx, "failed to compile dataset [%d] of %s from [%s] to %v: %v", i, flowSpec,
				flowSpec.Source(), flowSpec.Destinations(), compileErrs[i])
			continue
		}

		res.Paths = append(res.Paths, paths[i])
		if merged == nil {
			merged = dags[i]
			continue
		}

		merged = merged.Merge(dags[i])
	}
	c.lock.RUnlock()

	if merged == nil || merged.IsEmpty() {
		return c.failed(ctx, res), nil
	}

	res.Dag = merged
	c.metrics.FlowCompiled.Inc()
	logger.Infof(ctx, "compiled %s into [%d] jobs", flowSpec, len(merged.Nodes()))
	return res, nil
}

func (c *MultiHopFlowCompiler) failed(ctx context.Context, res *Compilation) *Compilation {
	c.metrics.FlowCompilationFailed.Inc()
	if !res.Errors.HasErrors() {
		res.Errors.Collect(errors.NewEmptyDagErr(res.FlowSpec.String()))
	}

	logger.Errorf(ctx, "failed to compile %s: %v", res.FlowSpec, res.Errors)
	res.Paths = nil
	res.Dag = dag.New[*plan.JobExecutionPlan](nil)
	return res
}

// compileDataset finds and resolves the path of a single dataset. Callers hold the read lock.
func (c *MultiHopFlowCompiler) compileDataset(ctx context.Context, flowSpec *spec.FlowSpec) (
	*flowgraph.FlowGraphPath, *dag.Dag[*plan.JobExecutionPlan], *errors.CompileError) {

	subject := fmt.Sprintf("%s:%s", flowSpec, spec.NewDatasetDescriptor(flowSpec.GetConfig(),
		spec.FlowInputDatasetDescriptorPrefix).Path)
	tag := flowSpec.GetConfig().GetString(spec.FlowPathFinderKey, c.cfg.PathFinder)
	pf, err := flowgraph.NewPathFinder(tag, c.graph, c.catalog, flowSpec, flowgraph.PathFinderOptions{
		HealthCheckTimeout: c.cfg.HealthCheckTimeout.Duration,
	})

	if err != nil {
		return nil, nil, errors.NewPathNotFoundErr(subject, err)
	}

	p, err := pf.FindPath(ctx)
	if err != nil {
		return nil, nil, errors.NewPathNotFoundErr(subject, err)
	}

	d, err := p.AsDag()
	if err != nil {
		return nil, nil, errors.NewPlanFailedErr(subject, err)
	}

	return p, d, nil
}

func NewMultiHopFlowCompiler(ctx context.Context, cfg *Config, graph flowgraph.FlowGraph, catalog template.Catalog,
	scope promutils.Scope, opts ...Option) (*MultiHopFlowCompiler, error) {

	if graph == nil {
		graph = flowgraph.NewBaseFlowGraph(catalog, flowgraph.WithPathFinder(cfg.PathFinder),
			flowgraph.WithHealthCheckTimeout(cfg.HealthCheckTimeout.Duration))
	}

	compilerScope := scope.NewSubScope("compiler")
	c := &MultiHopFlowCompiler{
		cfg:     cfg,
		graph:   graph,
		catalog: catalog,
		metrics: &compilerMetrics{
			Scope:                 compilerScope,
			CompileLatency:        compilerScope.MustNewStopWatch("compile", "Time to compile a flow", time.Millisecond),
			MutationLatency:       compilerScope.MustNewStopWatch("mutation", "Time the graph is locked by a mutation", time.Millisecond),
			CompilationFailure:    compilerScope.MustNewCounter("compilation_failure", "Number of datasets that failed to compile"),
			FlowCompilationFailed: compilerScope.MustNewCounter("flow_compilation_failed", "Number of flows compiled to an empty dag"),
			FlowCompiled:          compilerScope.MustNewCounter("flow_compiled", "Number of flows compiled"),
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	bgCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	if c.monitorFactory != nil {
		m, err := c.monitorFactory(c, scope)
		if err != nil {
			cancel()
			return nil, err
		}

		c.monitor = m
		m.Start(bgCtx)
		if err := m.WaitForHealthy(ctx, cfg.ReadyTimeout.Duration); err != nil {
			cancel()
			logger.Errorf(ctx, "flow graph monitor did not become healthy: %v", err)
			return nil, err
		}
	}

	if c.weightSource != nil {
		weights.NewRefresher(c.weightSource, c, c.weightsInterval, scope).Start(bgCtx)
	}

	logger.Infof(ctx, "multi hop flow compiler ready, path finder [%s]", cfg.PathFinder)
	return c, nil
}
