package flowgraph

import (
	"context"
	"sync"
	"time"

	"github.com/flyteorg/flytestdlib/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/flyteorg/flowcompiler/pkg/spec"
	"github.com/flyteorg/flowcompiler/pkg/template"
)

//go:generate mockery -name FlowGraph -output=mocks -case=underscore

// FlowGraph is the registry of data nodes and the flow edges between them.
type FlowGraph interface {
	// AddDataNode rejects a node whose id is already registered.
	AddDataNode(node DataNode) error
	// DeleteDataNode rejects the deletion of a node that is still the endpoint of any edge.
	DeleteDataNode(id string) error
	GetNode(id string) (DataNode, bool)
	// AddFlowEdge requires both endpoints to be registered and rejects duplicate edge ids.
	AddFlowEdge(edge FlowEdge) error
	DeleteFlowEdge(edgeID string) error
	GetEdge(edgeID string) (FlowEdge, bool)
	// GetEdges returns the outgoing edges of a node sorted by edge id.
	GetEdges(nodeID string) []FlowEdge
	SetEdgeWeight(edgeID string, w float64) error
	// Nodes returns every node sorted by id.
	Nodes() []DataNode
	// Edges returns every edge sorted by id.
	Edges() []FlowEdge
	FindPath(ctx context.Context, flowSpec *spec.FlowSpec) (*FlowGraphPath, error)
}

// Mutator gives fn exclusive access to a flow graph, no compilation observes the graph while fn runs.
type Mutator interface {
	Mutate(fn func(g FlowGraph) error) error
}

type Option func(g *BaseFlowGraph)

// WithPathFinder sets the path finder used when a flow does not pick one.
func WithPathFinder(tag string) Option {
	return func(g *BaseFlowGraph) {
		g.pathFinder = tag
	}
}

// WithHealthCheckTimeout bounds the wait on executor health and config while resolving a path.
func WithHealthCheckTimeout(timeout time.Duration) Option {
	return func(g *BaseFlowGraph) {
		g.healthCheckTimeout = timeout
	}
}

type BaseFlowGraph struct {
	catalog            template.Catalog
	pathFinder         string
	healthCheckTimeout time.Duration

	mu       sync.RWMutex
	nodes    map[string]DataNode
	edges    map[string]FlowEdge
	outgoing map[string]sets.String
	incoming map[string]sets.String
}

func (g *BaseFlowGraph) AddDataNode(node DataNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[node.ID()]; ok {
		return errors.Errorf(ErrDuplicateDataNode, "data node [%s] already exists", node.ID())
	}

	g.nodes[node.ID()] = node
	g.outgoing[node.ID()] = sets.NewString()
	g.incoming[node.ID()] = sets.NewString()
	return nil
}

func (g *BaseFlowGraph) DeleteDataNode(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[id]; !ok {
		return errors.Errorf(ErrDataNodeNotFound, "data node [%s] does not exist", id)
	}

	dependents := g.outgoing[id].Union(g.incoming[id])
	if dependents.Len() > 0 {
		return errors.Errorf(ErrDataNodeHasEdges, "data node [%s] is still used by edges %v", id, dependents.List())
	}

	delete(g.nodes, id)
	delete(g.outgoing, id)
	delete(g.incoming, id)
	return nil
}

func (g *BaseFlowGraph) GetNode(id string) (DataNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

func (g *BaseFlowGraph) AddFlowEdge(edge FlowEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.edges[edge.ID()]; ok {
		return errors.Errorf(ErrDuplicateFlowEdge, "flow edge [%s] already exists", edge.ID())
	}

	for _, id := range []string{edge.Src(), edge.Dest()} {
		if _, ok := g.nodes[id]; !ok {
			return errors.Errorf(ErrDataNodeNotFound, "flow edge [%s] references unknown data node [%s]", edge.ID(), id)
		}
	}

	g.edges[edge.ID()] = edge
	g.outgoing[edge.Src()].Insert(edge.ID())
	g.incoming[edge.Dest()].Insert(edge.ID())
	return nil
}

func (g *BaseFlowGraph) DeleteFlowEdge(edgeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	edge, ok := g.edges[edgeID]
	if !ok {
		return errors.Errorf(ErrFlowEdgeNotFound, "flow edge [%s] does not exist", edgeID)
	}

	delete(g.edges, edgeID)
	g.outgoing[edge.Src()].Delete(edgeID)
	g.incoming[edge.Dest()].Delete(edgeID)
	return nil
}

func (g *BaseFlowGraph) GetEdge(edgeID string) (FlowEdge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[edgeID]
	return e, ok
}

func (g *BaseFlowGraph) GetEdges(nodeID string) []FlowEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids, ok := g.outgoing[nodeID]
	if !ok {
		return []FlowEdge{}
	}

	res := make([]FlowEdge, 0, ids.Len())
	for _, id := range ids.List() {
		res = append(res, g.edges[id])
	}

	return res
}

func (g *BaseFlowGraph) SetEdgeWeight(edgeID string, w float64) error {
	g.mu.RLock()
	edge, ok := g.edges[edgeID]
	g.mu.RUnlock()
	if !ok {
		return errors.Errorf(ErrFlowEdgeNotFound, "flow edge [%s] does not exist", edgeID)
	}

	return edge.SetWeight(w)
}

func (g *BaseFlowGraph) Nodes() []DataNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := maps.Keys(g.nodes)
	slices.Sort(ids)
	res := make([]DataNode, 0, len(ids))
	for _, id := range ids {
		res = append(res, g.nodes[id])
	}

	return res
}

func (g *BaseFlowGraph) Edges() []FlowEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := maps.Keys(g.edges)
	slices.Sort(ids)
	res := make([]FlowEdge, 0, len(ids))
	for _, id := range ids {
		res = append(res, g.edges[id])
	}

	return res
}

// FindPath runs the path finder named by the flow config, or the graph default when the flow names none.
func (g *BaseFlowGraph) FindPath(ctx context.Context, flowSpec *spec.FlowSpec) (*FlowGraphPath, error) {
	tag := flowSpec.GetConfig().GetString(spec.FlowPathFinderKey, g.pathFinder)
	pf, err := NewPathFinder(tag, g, g.catalog, flowSpec, PathFinderOptions{
		HealthCheckTimeout: g.healthCheckTimeout,
	})

	if err != nil {
		return nil, err
	}

	return pf.FindPath(ctx)
}

func NewBaseFlowGraph(catalog template.Catalog, opts ...Option) *BaseFlowGraph {
	g := &BaseFlowGraph{
		catalog:            catalog,
		pathFinder:         DijkstraPathFinderType,
		healthCheckTimeout: DefaultHealthCheckTimeout,
		nodes:              map[string]DataNode{},
		edges:              map[string]FlowEdge{},
		outgoing:           map[string]sets.String{},
		incoming:           map[string]sets.String{},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}
