package flowgraph

import (
	"context"
	"sync"
	"time"

	"github.com/flyteorg/flytestdlib/contextutils"
	"github.com/flyteorg/flytestdlib/errors"
	"github.com/flyteorg/flytestdlib/logger"

	"github.com/flyteorg/flowcompiler/pkg/executor"
	"github.com/flyteorg/flowcompiler/pkg/spec"
	"github.com/flyteorg/flowcompiler/pkg/template"
)

const (
	DijkstraPathFinderType = "dijkstra"
	BFSPathFinderType      = "bfs"

	DefaultHealthCheckTimeout = 5 * time.Second
)

// PathFinder finds and resolves the path of a single FlowSpec.
type PathFinder interface {
	FindPath(ctx context.Context) (*FlowGraphPath, error)
}

type PathFinderOptions struct {
	HealthCheckTimeout time.Duration
}

type PathFinderFactory func(graph FlowGraph, catalog template.Catalog, flowSpec *spec.FlowSpec,
	opts PathFinderOptions) PathFinder

var (
	pathFindersMu sync.RWMutex
	pathFinders   = map[string]PathFinderFactory{
		DijkstraPathFinderType: NewDijkstraPathFinder,
		BFSPathFinderType:      NewBFSPathFinder,
	}
)

func RegisterPathFinder(tag string, factory PathFinderFactory) {
	pathFindersMu.Lock()
	defer pathFindersMu.Unlock()
	pathFinders[tag] = factory
}

func NewPathFinder(tag string, graph FlowGraph, catalog template.Catalog, flowSpec *spec.FlowSpec,
	opts PathFinderOptions) (PathFinder, error) {

	pathFindersMu.RLock()
	factory, ok := pathFinders[typeTag(tag)]
	pathFindersMu.RUnlock()
	if !ok {
		return nil, errors.Errorf(ErrUnknownType, "no path finder registered for [%s]", tag)
	}

	if opts.HealthCheckTimeout <= 0 {
		opts.HealthCheckTimeout = DefaultHealthCheckTimeout
	}

	return factory(graph, catalog, flowSpec, opts), nil
}

// searchFunc returns the edges leading from start to a state accepted by the search space.
type searchFunc func(space *searchSpace, start searchState) ([]FlowEdge, bool)

type pathFinder struct {
	graph    FlowGraph
	catalog  template.Catalog
	flowSpec *spec.FlowSpec
	opts     PathFinderOptions
	search   searchFunc
}

func (p *pathFinder) activeNode(id string) (DataNode, error) {
	n, ok := p.graph.GetNode(id)
	if !ok {
		return nil, errors.Errorf(ErrPathFinder, "flow graph has no data node [%s]", id)
	}

	if !n.IsActive() {
		return nil, errors.Errorf(ErrPathFinder, "data node [%s] is inactive", id)
	}

	return n, nil
}

// FindPath searches a path from the flow source to every flow destination, then resolves the jobs of every hop.
// Failing to reach any destination fails the whole flow.
func (p *pathFinder) FindPath(ctx context.Context) (*FlowGraphPath, error) {
	if p.flowSpec == nil {
		return nil, errors.Errorf(ErrPathFinder, "nil flow spec")
	}

	cfg := p.flowSpec.GetConfig()
	srcID := p.flowSpec.Source()
	destIDs := p.flowSpec.Destinations()
	if len(srcID) == 0 || len(destIDs) == 0 {
		return nil, errors.Errorf(ErrPathFinder, "%s needs [%s] and [%s]", p.flowSpec, spec.FlowSourceIdentifierKey,
			spec.FlowDestinationIdentifierKey)
	}

	if _, err := p.activeNode(srcID); err != nil {
		return nil, err
	}

	input := spec.NewDatasetDescriptor(cfg, spec.FlowInputDatasetDescriptorPrefix)
	output := spec.NewDatasetDescriptor(cfg, spec.FlowOutputDatasetDescriptorPrefix)
	if len(output.Path) == 0 {
		output.Path = input.Path
	}

	path := &FlowGraphPath{flowSpec: p.flowSpec}
	var unreachable []string
	// first template skipped because it did not resolve, the likely reason a destination is unreachable
	var skipped error
	for _, destID := range destIDs {
		if _, err := p.activeNode(destID); err != nil {
			return nil, err
		}

		space := &searchSpace{
			ctx:       ctx,
			graph:     p.graph,
			catalog:   p.catalog,
			flowCfg:   cfg,
			inputPath: input.Path,
			target:    destID,
			output:    spec.DatasetDescriptor{Format: output.Format, Encryption: output.Encryption},
			timeout:   p.opts.HealthCheckTimeout,
			resolved:  map[string]error{},
		}

		start := searchState{node: srcID, format: input.Format, encryption: input.Encryption}
		edges, found := p.search(space, start)
		if !found {
			if space.templateErr != nil {
				return nil, space.templateErr
			}

			if skipped == nil {
				skipped = space.resolveErr
			}

			unreachable = append(unreachable, destID)
			continue
		}

		hops, err := p.resolve(ctx, edges, input, output)
		if err != nil {
			return nil, err
		}

		logger.Debugf(ctx, "%s: found path of [%d] hops from [%s] to [%s]", p.flowSpec, len(hops), srcID, destID)
		path.paths = append(path.paths, hops)
	}

	if len(unreachable) > 0 {
		if skipped != nil {
			return nil, errors.Wrapf(ErrPathNotFound, skipped, "%s: no path from [%s] to %v", p.flowSpec, srcID,
				unreachable)
		}

		return nil, errors.Errorf(ErrPathNotFound, "%s: no path from [%s] to %v", p.flowSpec, srcID, unreachable)
	}

	return path, nil
}

// resolve turns the edges of a path into hops. The input path of a hop is the output path of the previous one; the
// output path is the one declared by the template, the flow output path on the last hop, the input path otherwise.
func (p *pathFinder) resolve(ctx context.Context, edges []FlowEdge, input, output spec.DatasetDescriptor) (
	[]*FlowEdgeContext, error) {

	flowCfg := p.flowSpec.GetConfig()
	current := input
	hops := make([]*FlowEdgeContext, 0, len(edges))
	for i, edge := range edges {
		ctx := contextutils.WithJobID(ctx, edge.ID())
		tmpl, err := p.catalog.GetTemplate(ctx, edge.TemplateURI())
		if err != nil {
			return nil, err
		}

		e, err := executor.SelectHealthy(ctx, edge.Executors(), p.opts.HealthCheckTimeout)
		if err != nil {
			return nil, errors.Wrapf(ErrPathFinder, err, "flow edge [%s] has no usable executor", edge.ID())
		}

		executorCfg := executorConfig(ctx, e, p.opts.HealthCheckTimeout)
		subs, err := edgeSubstitutions(p.graph, flowCfg, edge, executorCfg, current.Path)
		if err != nil {
			return nil, err
		}

		to, err := tmpl.ResolveOutputPath(subs)
		if err != nil {
			return nil, errors.Wrapf(template.ErrTemplate, err, "failed to resolve output path of [%s]", edge.TemplateURI())
		}

		if len(to) == 0 {
			to = current.Path
			if i == len(edges)-1 && len(output.Path) > 0 {
				to = output.Path
			}
		}

		subs[spec.JobToKey] = to
		jobs, err := tmpl.Resolve(subs)
		if err != nil {
			return nil, err
		}

		next := transition(current, tmpl)
		next.Path = to
		hops = append(hops, &FlowEdgeContext{
			Edge:     edge,
			Template: tmpl,
			Executor: e,
			Input:    current,
			Output:   next,
			Jobs:     jobs,
		})

		current = next
	}

	return hops, nil
}

func executorConfig(ctx context.Context, e executor.SpecExecutor, timeout time.Duration) spec.Config {
	v, err := executor.GetWithTimeout(ctx, e.GetConfig(ctx), timeout)
	if err != nil {
		logger.Warnf(ctx, "failed to read config of executor [%s]: %v", e.URI(), err)
		return spec.Config{}
	}

	if c, ok := v.(spec.Config); ok {
		return c
	}

	return spec.Config{}
}

// edgeSubstitutions returns the values a hop over edge resolves its template with, including the file system uris
// of both ends.
func edgeSubstitutions(graph FlowGraph, flowCfg spec.Config, edge FlowEdge, executorCfg spec.Config, from string) (
	spec.Config, error) {

	subs, err := hopSubstitutions(flowCfg, edge, executorCfg, from)
	if err != nil {
		return nil, errors.Wrapf(template.ErrTemplate, err, "flow edge [%s]", edge.ID())
	}

	if src, ok := graph.GetNode(edge.Src()); ok && len(src.FsURI()) > 0 {
		subs[spec.JobSourceFsURIKey] = src.FsURI()
	}

	if dest, ok := graph.GetNode(edge.Dest()); ok && len(dest.FsURI()) > 0 {
		subs[spec.JobTargetFsURIKey] = dest.FsURI()
	}

	return subs, nil
}

// hopSubstitutions layers the values specific to one hop over the flow config, the edge config and the executor
// config, in that order of precedence.
func hopSubstitutions(flowCfg spec.Config, edge FlowEdge, executorCfg spec.Config, from string) (spec.Config, error) {
	res, err := spec.Config{
		spec.FlowEdgeIDKey: edge.ID(),
		spec.JobFromKey:    from,
	}.WithFallback(flowCfg)
	if err != nil {
		return nil, err
	}

	if res, err = res.WithFallback(edge.RawConfig()); err != nil {
		return nil, err
	}

	return res.WithFallback(executorCfg)
}

// transition returns the dataset produced by running tmpl on current. Attributes the template does not declare are
// carried over.
func transition(current spec.DatasetDescriptor, tmpl *template.FlowTemplate) spec.DatasetDescriptor {
	next := current
	out := tmpl.OutputDataset.Descriptor()
	if len(out.Platform) > 0 {
		next.Platform = out.Platform
	}

	if len(out.Format) > 0 {
		next.Format = out.Format
	}

	if len(out.Encryption) > 0 {
		next.Encryption = out.Encryption
	}

	return next
}

func NewDijkstraPathFinder(graph FlowGraph, catalog template.Catalog, flowSpec *spec.FlowSpec,
	opts PathFinderOptions) PathFinder {

	return &pathFinder{
		graph:    graph,
		catalog:  catalog,
		flowSpec: flowSpec,
		opts:     opts,
		search:   dijkstra,
	}
}

func NewBFSPathFinder(graph FlowGraph, catalog template.Catalog, flowSpec *spec.FlowSpec,
	opts PathFinderOptions) PathFinder {

	return &pathFinder{
		graph:    graph,
		catalog:  catalog,
		flowSpec: flowSpec,
		opts:     opts,
		search:   bfs,
	}
}
