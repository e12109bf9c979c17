package flowgraph

import (
	"container/heap"
	"context"
	"strings"
	"time"

	"github.com/flyteorg/flytestdlib/errors"
	"github.com/flyteorg/flytestdlib/logger"

	"github.com/flyteorg/flowcompiler/pkg/spec"
	"github.com/flyteorg/flowcompiler/pkg/template"
)

// searchState is a data node together with the shape of the dataset sitting in it. The same node may be visited in
// several states, which is how a self loop converting a dataset in place ends up on a path.
type searchState struct {
	node       string
	format     string
	encryption string
}

func (s searchState) key() string {
	return strings.Join([]string{s.node, strings.ToLower(s.format), strings.ToLower(s.encryption)}, "|")
}

func (s searchState) descriptor() spec.DatasetDescriptor {
	return spec.DatasetDescriptor{Format: s.format, Encryption: s.encryption}
}

type move struct {
	edge FlowEdge
	next searchState
}

// searchSpace exposes the active part of the flow graph as a state graph.
type searchSpace struct {
	ctx     context.Context
	graph   FlowGraph
	catalog template.Catalog
	flowCfg spec.Config
	// input path of the flow, stands in for the path of any hop while checking that a template resolves
	inputPath string
	target    string
	output    spec.DatasetDescriptor
	timeout   time.Duration
	// first template lookup failure, reported when no path is found
	templateErr error
	// first template that could not be resolved against the flow, reported when no path is found
	resolveErr error
	// resolution outcome per edge id
	resolved map[string]error
}

func (s *searchSpace) accepts(st searchState) bool {
	return st.node == s.target && s.output.Contains(st.descriptor())
}

// moves lists the transitions out of st in edge id order. Inactive edges, edges into inactive nodes, edges whose
// template cannot consume the current dataset and edges whose template does not resolve against the flow are left out.
func (s *searchSpace) moves(st searchState) []move {
	edges := s.graph.GetEdges(st.node)
	res := make([]move, 0, len(edges))
	for _, e := range edges {
		if !e.IsActive() {
			continue
		}

		dest, ok := s.graph.GetNode(e.Dest())
		if !ok || !dest.IsActive() {
			continue
		}

		tmpl, err := s.catalog.GetTemplate(s.ctx, e.TemplateURI())
		if err != nil {
			logger.Warnf(s.ctx, "skipping flow edge [%s], failed to load template [%s]: %v", e.ID(), e.TemplateURI(), err)
			if s.templateErr == nil {
				s.templateErr = err
			}

			continue
		}

		if !tmpl.InputDataset.Descriptor().Contains(st.descriptor()) {
			continue
		}

		if err := s.resolvable(e, tmpl); err != nil {
			continue
		}

		next := transition(st.descriptor(), tmpl)
		res = append(res, move{
			edge: e,
			next: searchState{node: e.Dest(), format: next.Format, encryption: next.Encryption},
		})
	}

	return res
}

// resolvable resolves the jobs of tmpl for a hop over e with the flow config, the edge config and the config of one
// of the edge executors. The flow input path stands in for the hop paths, so the outcome is kept per edge for the
// whole search.
func (s *searchSpace) resolvable(e FlowEdge, tmpl *template.FlowTemplate) error {
	if err, ok := s.resolved[e.ID()]; ok {
		return err
	}

	executorCfgs := []spec.Config{{}}
	if len(e.Executors()) > 0 {
		executorCfgs = executorCfgs[:0]
		for _, ex := range e.Executors() {
			executorCfgs = append(executorCfgs, executorConfig(s.ctx, ex, s.timeout))
		}
	}

	var err error
	for _, executorCfg := range executorCfgs {
		if err = tryResolve(s.graph, s.flowCfg, e, tmpl, executorCfg, s.inputPath); err == nil {
			break
		}
	}

	if err != nil {
		logger.Infof(s.ctx, "skipping flow edge [%s], template [%s] does not resolve: %v", e.ID(), e.TemplateURI(), err)
		if s.resolveErr == nil {
			s.resolveErr = err
		}
	}

	s.resolved[e.ID()] = err
	return err
}

func tryResolve(graph FlowGraph, flowCfg spec.Config, e FlowEdge, tmpl *template.FlowTemplate, executorCfg spec.Config,
	from string) error {

	subs, err := edgeSubstitutions(graph, flowCfg, e, executorCfg, from)
	if err != nil {
		return err
	}

	to, err := tmpl.ResolveOutputPath(subs)
	if err != nil {
		return errors.Wrapf(template.ErrTemplate, err, "failed to resolve output path of [%s]", e.TemplateURI())
	}

	if len(to) == 0 {
		to = from
	}

	subs[spec.JobToKey] = to
	_, err = tmpl.Resolve(subs)
	return err
}

// originPrefix keeps the start state apart from a state reached again through a loop, so a path has at least one
// hop.
const originPrefix = "^"

type step struct {
	edge FlowEdge
	prev string
}

func backtrack(steps map[string]step, startKey, endKey string) []FlowEdge {
	var res []FlowEdge
	for k := endKey; k != startKey; k = steps[k].prev {
		res = append(res, steps[k].edge)
	}

	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}

	return res
}

type queueItem struct {
	key  string
	node string
	dist float64
}

// stateQueue orders by distance, ties broken by node id and then state key.
type stateQueue []queueItem

func (q stateQueue) Len() int {
	return len(q)
}

func (q stateQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}

	if q[i].node != q[j].node {
		return q[i].node < q[j].node
	}

	return q[i].key < q[j].key
}

func (q stateQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *stateQueue) Push(x interface{}) {
	*q = append(*q, x.(queueItem))
}

func (q *stateQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// dijkstra finds the path of least total weight. At equal distance the predecessor edge with the smallest id wins.
func dijkstra(space *searchSpace, start searchState) ([]FlowEdge, bool) {
	originKey := originPrefix + start.key()
	dist := map[string]float64{originKey: 0}
	states := map[string]searchState{originKey: start}
	steps := map[string]step{}
	settled := map[string]bool{}

	q := &stateQueue{{key: originKey, node: start.node}}
	for q.Len() > 0 {
		item := heap.Pop(q).(queueItem)
		if settled[item.key] || item.dist > dist[item.key] {
			continue
		}

		settled[item.key] = true
		st := states[item.key]
		if item.key != originKey && space.accepts(st) {
			return backtrack(steps, originKey, item.key), true
		}

		for _, m := range space.moves(st) {
			k := m.next.key()
			if settled[k] {
				continue
			}

			d := item.dist + m.edge.Weight()
			old, seen := dist[k]
			switch {
			case !seen || d < old:
				dist[k] = d
				states[k] = m.next
				steps[k] = step{edge: m.edge, prev: item.key}
				heap.Push(q, queueItem{key: k, node: m.next.node, dist: d})
			case d == old && m.edge.ID() < steps[k].edge.ID():
				steps[k] = step{edge: m.edge, prev: item.key}
			}
		}
	}

	return nil, false
}

// bfs finds the path with the fewest hops, edges are expanded in id order.
func bfs(space *searchSpace, start searchState) ([]FlowEdge, bool) {
	originKey := originPrefix + start.key()
	states := map[string]searchState{originKey: start}
	steps := map[string]step{}
	visited := map[string]bool{originKey: true}

	queue := []string{originKey}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		for _, m := range space.moves(states[k]) {
			next := m.next.key()
			if visited[next] {
				continue
			}

			visited[next] = true
			states[next] = m.next
			steps[next] = step{edge: m.edge, prev: k}
			if space.accepts(m.next) {
				return backtrack(steps, originKey, next), true
			}

			queue = append(queue, next)
		}
	}

	return nil, false
}
