package compiler

import (
	"context"

	"github.com/flyteorg/flowcompiler/pkg/flowgraph"
	"github.com/flyteorg/flowcompiler/pkg/spec"
)

// guardedGraph routes every call through the compiler lock.
type guardedGraph struct {
	c *MultiHopFlowCompiler
}

func (g *guardedGraph) read(fn func(graph flowgraph.FlowGraph)) {
	g.c.lock.RLock()
	defer g.c.lock.RUnlock()
	fn(g.c.graph)
}

func (g *guardedGraph) AddDataNode(node flowgraph.DataNode) error {
	return g.c.Mutate(func(graph flowgraph.FlowGraph) error {
		return graph.AddDataNode(node)
	})
}

func (g *guardedGraph) DeleteDataNode(id string) error {
	return g.c.Mutate(func(graph flowgraph.FlowGraph) error {
		return graph.DeleteDataNode(id)
	})
}

func (g *guardedGraph) GetNode(id string) (n flowgraph.DataNode, ok bool) {
	g.read(func(graph flowgraph.FlowGraph) {
		n, ok = graph.GetNode(id)
	})

	return n, ok
}

func (g *guardedGraph) AddFlowEdge(edge flowgraph.FlowEdge) error {
	return g.c.Mutate(func(graph flowgraph.FlowGraph) error {
		return graph.AddFlowEdge(edge)
	})
}

func (g *guardedGraph) DeleteFlowEdge(edgeID string) error {
	return g.c.Mutate(func(graph flowgraph.FlowGraph) error {
		return graph.DeleteFlowEdge(edgeID)
	})
}

func (g *guardedGraph) GetEdge(edgeID string) (e flowgraph.FlowEdge, ok bool) {
	g.read(func(graph flowgraph.FlowGraph) {
		e, ok = graph.GetEdge(edgeID)
	})

	return e, ok
}

func (g *guardedGraph) GetEdges(nodeID string) (edges []flowgraph.FlowEdge) {
	g.read(func(graph flowgraph.FlowGraph) {
		edges = graph.GetEdges(nodeID)
	})

	return edges
}

func (g *guardedGraph) SetEdgeWeight(edgeID string, w float64) error {
	return g.c.Mutate(func(graph flowgraph.FlowGraph) error {
		return graph.SetEdgeWeight(edgeID, w)
	})
}

func (g *guardedGraph) Nodes() (nodes []flowgraph.DataNode) {
	g.read(func(graph flowgraph.FlowGraph) {
		nodes = graph.Nodes()
	})

	return nodes
}

func (g *guardedGraph) Edges() (edges []flowgraph.FlowEdge) {
	g.read(func(graph flowgraph.FlowGraph) {
		edges = graph.Edges()
	})

	return edges
}

func (g *guardedGraph) FindPath(ctx context.Context, flowSpec *spec.FlowSpec) (p *flowgraph.FlowGraphPath, err error) {
	g.read(func(graph flowgraph.FlowGraph) {
		p, err = graph.FindPath(ctx, flowSpec)
	})

	return p, err
}
