package dag

// Structure captures how the nodes of a Dag are connected. Together with a node lookup it is enough to implement a
// traversal.
type Structure[T any] interface {
	// The nodes without any upstream dependency.
	StartNodes() []*Node[T]
	// Lookup for upstream edges, all nodes the given node depends on.
	Parents(node *Node[T]) []*Node[T]
	// Lookup for downstream edges, all nodes depending on the given node.
	Children(node *Node[T]) []*Node[T]
}

var _ Structure[int] = &Dag[int]{}

// Walk visits every node reachable from the start nodes in topological order. A node is visited only after all of
// its parents. Traversal stops at the first error returned by visit.
func Walk[T any](s Structure[T], visit func(node *Node[T]) error) error {
	pending := map[*Node[T]]int{}
	queue := append([]*Node[T]{}, s.StartNodes()...)
	visited := make(map[*Node[T]]struct{}, len(queue))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if _, ok := visited[node]; ok {
			continue
		}

		visited[node] = struct{}{}
		if err := visit(node); err != nil {
			return err
		}

		for _, child := range s.Children(node) {
			remaining, ok := pending[child]
			if !ok {
				remaining = len(s.Parents(child))
			}

			remaining--
			pending[child] = remaining
			if remaining <= 0 {
				queue = append(queue, child)
			}
		}
	}

	return nil
}
