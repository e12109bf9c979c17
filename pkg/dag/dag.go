// Package dag contains a generic directed acyclic graph used to hold compiled job execution plans. Nodes only know
// their parents; the Dag derives the start nodes, end nodes and the parent to children adjacency from them.
package dag

import (
	"fmt"
)

// Node wraps a payload together with the nodes it depends on. A node without parents is a start node.
type Node[T any] struct {
	value       T
	parentNodes []*Node[T]
}

func NewNode[T any](value T) *Node[T] {
	return &Node[T]{value: value}
}

func (n *Node[T]) Value() T {
	return n.value
}

func (n *Node[T]) ParentNodes() []*Node[T] {
	return n.parentNodes
}

func (n *Node[T]) AddParentNode(parent *Node[T]) {
	n.parentNodes = append(n.parentNodes, parent)
}

// Dag is an ordered collection of nodes. Node identity is pointer identity, passing the same node twice leads to
// undefined results.
//
// Concatenate and Merge mutate the receiver and return it. The argument dag shares its nodes with the result and
// must not be used on its own afterwards.
type Dag[T any] struct {
	nodes          []*Node[T]
	startNodes     []*Node[T]
	endNodes       []*Node[T]
	parentChildMap map[*Node[T]][]*Node[T]
}

// New builds a Dag from a flat node list. The list is trusted to be acyclic.
func New[T any](nodes []*Node[T]) *Dag[T] {
	d := &Dag[T]{
		nodes:          append([]*Node[T]{}, nodes...),
		startNodes:     []*Node[T]{},
		endNodes:       []*Node[T]{},
		parentChildMap: make(map[*Node[T]][]*Node[T], len(nodes)),
	}

	for _, node := range d.nodes {
		if len(node.parentNodes) == 0 {
			d.startNodes = append(d.startNodes, node)
			continue
		}

		for _, parent := range node.parentNodes {
			d.parentChildMap[parent] = append(d.parentChildMap[parent], node)
		}
	}

	for _, node := range d.nodes {
		if _, ok := d.parentChildMap[node]; !ok {
			d.endNodes = append(d.endNodes, node)
		}
	}

	return d
}

func (d *Dag[T]) Nodes() []*Node[T] {
	return d.nodes
}

func (d *Dag[T]) StartNodes() []*Node[T] {
	return d.startNodes
}

func (d *Dag[T]) EndNodes() []*Node[T] {
	return d.endNodes
}

// Children returns the nodes that depend on node, or an empty slice.
func (d *Dag[T]) Children(node *Node[T]) []*Node[T] {
	if children, ok := d.parentChildMap[node]; ok {
		return children
	}

	return []*Node[T]{}
}

// Parents returns the nodes node depends on, or an empty slice.
func (d *Dag[T]) Parents(node *Node[T]) []*Node[T] {
	if node == nil || node.parentNodes == nil {
		return []*Node[T]{}
	}

	return node.parentNodes
}

func (d *Dag[T]) IsEmpty() bool {
	return d == nil || len(d.nodes) == 0
}

// Concatenate appends other so that every node of d completes before any node of other starts. End nodes of d listed
// in forkNodes do not gain a successor: they stay end nodes of the result and their parents take over the
// dependency on the start nodes of other.
func (d *Dag[T]) Concatenate(other *Dag[T], forkNodes ...*Node[T]) *Dag[T] {
	if other.IsEmpty() {
		return d
	}

	if d.IsEmpty() {
		return other
	}

	forks := make(map[*Node[T]]struct{}, len(forkNodes))
	for _, f := range forkNodes {
		forks[f] = struct{}{}
	}

	for _, node := range d.dependentNodes(forks) {
		d.parentChildMap[node] = append(d.parentChildMap[node], other.startNodes...)
		for _, otherStart := range other.startNodes {
			otherStart.AddParentNode(node)
		}
	}

	endNodes := append([]*Node[T]{}, other.endNodes...)
	for _, node := range d.endNodes {
		if _, ok := forks[node]; ok {
			endNodes = append(endNodes, node)
		}
	}

	d.endNodes = endNodes

	for parent, children := range other.parentChildMap {
		d.parentChildMap[parent] = append(d.parentChildMap[parent], children...)
	}

	for _, otherStart := range other.startNodes {
		if len(otherStart.parentNodes) == 0 {
			d.startNodes = append(d.startNodes, otherStart)
		}
	}

	d.nodes = append(d.nodes, other.nodes...)
	return d
}

// dependentNodes returns, in order and without duplicates, the nodes that must complete before the next dag starts:
// the non-fork end nodes and the parents of fork end nodes.
func (d *Dag[T]) dependentNodes(forks map[*Node[T]]struct{}) []*Node[T] {
	seen := make(map[*Node[T]]struct{}, len(d.endNodes))
	dependents := make([]*Node[T], 0, len(d.endNodes))
	add := func(node *Node[T]) {
		if _, ok := seen[node]; ok {
			return
		}

		seen[node] = struct{}{}
		dependents = append(dependents, node)
	}

	for _, node := range d.endNodes {
		if _, isFork := forks[node]; !isFork {
			add(node)
			continue
		}

		for _, parent := range node.parentNodes {
			add(parent)
		}
	}

	return dependents
}

// Merge adds the nodes of other to d without creating any dependency between them.
func (d *Dag[T]) Merge(other *Dag[T]) *Dag[T] {
	if other.IsEmpty() {
		return d
	}

	if d.IsEmpty() {
		return other
	}

	for parent, children := range other.parentChildMap {
		d.parentChildMap[parent] = append(d.parentChildMap[parent], children...)
	}

	d.startNodes = append(d.startNodes, other.startNodes...)
	d.endNodes = append(d.endNodes, other.endNodes...)
	d.nodes = append(d.nodes, other.nodes...)
	return d
}

func (d *Dag[T]) String() string {
	if d == nil {
		return "Dag{}"
	}

	return fmt.Sprintf("Dag{nodes: %d, start: %d, end: %d}", len(d.nodes), len(d.startNodes), len(d.endNodes))
}
