package plan

import (
	"fmt"

	"github.com/flyteorg/flowcompiler/pkg/dag"
)

// NewJobExecutionPlanDag links the plans of one hop through their job dependencies.
func NewJobExecutionPlanDag(plans []*JobExecutionPlan) (*dag.Dag[*JobExecutionPlan], error) {
	nodes := make([]*dag.Node[*JobExecutionPlan], 0, len(plans))
	byName := make(map[string]*dag.Node[*JobExecutionPlan], len(plans))
	for _, p := range plans {
		n := dag.NewNode(p)
		if _, ok := byName[p.JobName()]; ok {
			return nil, fmt.Errorf("duplicate job [%s]", p.JobName())
		}

		byName[p.JobName()] = n
		nodes = append(nodes, n)
	}

	for _, n := range nodes {
		for _, dep := range n.Value().Dependencies() {
			parent, ok := byName[dep]
			if !ok {
				return nil, fmt.Errorf("job [%s] depends on unknown job [%s]", n.Value().JobName(), dep)
			}

			n.AddParentNode(parent)
		}
	}

	d := dag.New(nodes)
	visited := 0
	_ = dag.Walk[*JobExecutionPlan](d, func(*dag.Node[*JobExecutionPlan]) error {
		visited++
		return nil
	})

	if visited != len(nodes) {
		return nil, fmt.Errorf("job dependencies form a cycle among %d jobs", len(nodes)-visited)
	}

	return d, nil
}

// ForkNodes returns the end nodes of d whose jobs do not block the next hop.
func ForkNodes(d *dag.Dag[*JobExecutionPlan]) []*dag.Node[*JobExecutionPlan] {
	var res []*dag.Node[*JobExecutionPlan]
	for _, n := range d.EndNodes() {
		if n.Value().ForkOnConcat() {
			res = append(res, n)
		}
	}

	return res
}
