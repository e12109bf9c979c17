package flowgraph

import (
	"github.com/flyteorg/flowcompiler/pkg/dag"
	"github.com/flyteorg/flowcompiler/pkg/executor"
	"github.com/flyteorg/flowcompiler/pkg/plan"
	"github.com/flyteorg/flowcompiler/pkg/spec"
	"github.com/flyteorg/flowcompiler/pkg/template"
)

// FlowEdgeContext is one resolved hop of a path.
type FlowEdgeContext struct {
	Edge     FlowEdge
	Template *template.FlowTemplate
	Executor executor.SpecExecutor
	// Input and Output describe the dataset before and after the hop.
	Input  spec.DatasetDescriptor
	Output spec.DatasetDescriptor
	Jobs   []*template.ResolvedJob
}

// FlowGraphPath holds one resolved path per destination of a flow.
type FlowGraphPath struct {
	flowSpec *spec.FlowSpec
	paths    [][]*FlowEdgeContext
}

func (p *FlowGraphPath) FlowSpec() *spec.FlowSpec {
	return p.flowSpec
}

func (p *FlowGraphPath) Paths() [][]*FlowEdgeContext {
	return p.paths
}

// EdgeIDs lists the edge ids of every path.
func (p *FlowGraphPath) EdgeIDs() [][]string {
	res := make([][]string, 0, len(p.paths))
	for _, hops := range p.paths {
		ids := make([]string, 0, len(hops))
		for _, hop := range hops {
			ids = append(ids, hop.Edge.ID())
		}

		res = append(res, ids)
	}

	return res
}

// AsDag builds the job dag of the path. The jobs of a hop are linked by their dependencies, consecutive hops are
// concatenated and the paths to different destinations are merged. Every call returns a fresh dag.
func (p *FlowGraphPath) AsDag() (*dag.Dag[*plan.JobExecutionPlan], error) {
	var res *dag.Dag[*plan.JobExecutionPlan]
	for _, hops := range p.paths {
		var pathDag *dag.Dag[*plan.JobExecutionPlan]
		for _, hop := range hops {
			hopDag, err := hop.AsDag(p.flowSpec)
			if err != nil {
				return nil, err
			}

			if pathDag == nil {
				pathDag = hopDag
				continue
			}

			pathDag = pathDag.Concatenate(hopDag, plan.ForkNodes(pathDag)...)
		}

		if pathDag == nil {
			continue
		}

		if res == nil {
			res = pathDag
			continue
		}

		res = res.Merge(pathDag)
	}

	if res == nil {
		return dag.New[*plan.JobExecutionPlan](nil), nil
	}

	return res, nil
}

// AsDag returns the plans of the hop linked by their job dependencies.
func (c *FlowEdgeContext) AsDag(flowSpec *spec.FlowSpec) (*dag.Dag[*plan.JobExecutionPlan], error) {
	plans := make([]*plan.JobExecutionPlan, 0, len(c.Jobs))
	tag := plan.DatasetTag(c.Input.Path, c.Output.Path)
	for _, job := range c.Jobs {
		p, err := plan.NewJobExecutionPlan(flowSpec, job, c.Edge.ID(), c.Edge.TemplateURI(), tag, c.Executor)
		if err != nil {
			return nil, err
		}

		plans = append(plans, p)
	}

	return plan.NewJobExecutionPlanDag(plans)
}
