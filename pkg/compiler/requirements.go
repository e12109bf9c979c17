package compiler

import (
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/flyteorg/flowcompiler/pkg/compiler/errors"
	"github.com/flyteorg/flowcompiler/pkg/flowgraph"
)

// FlowExecutionRequirements is the set of templates and executors a compiled flow depends on.
type FlowExecutionRequirements struct {
	templateURIs []string
	executorURIs []string
	edgeIDs      []string
}

func (r FlowExecutionRequirements) GetRequiredTemplateURIs() []string {
	return r.templateURIs
}

func (r FlowExecutionRequirements) GetRequiredExecutorURIs() []string {
	return r.executorURIs
}

func (r FlowExecutionRequirements) GetRequiredEdgeIDs() []string {
	return r.edgeIDs
}

// GetRequirements computes the requirements of the given paths. Hops lacking their template or executor are reported
// as errors.
func GetRequirements(paths ...*flowgraph.FlowGraphPath) (reqs FlowExecutionRequirements, err error) {
	errs := errors.NewCompileErrors()
	templateURIs := sets.NewString()
	executorURIs := sets.NewString()
	edgeIDs := sets.NewString()
	for _, p := range paths {
		if p == nil {
			continue
		}

		for _, hops := range p.Paths() {
			for _, hop := range hops {
				updateHopRequirements(hop, templateURIs, executorURIs, edgeIDs, errs)
			}
		}
	}

	reqs.templateURIs = templateURIs.List()
	reqs.executorURIs = executorURIs.List()
	reqs.edgeIDs = edgeIDs.List()
	if errs.HasErrors() {
		return reqs, errs
	}

	return reqs, nil
}

func updateHopRequirements(hop *flowgraph.FlowEdgeContext, templateURIs, executorURIs, edgeIDs sets.String,
	errs errors.CompileErrors) {

	edgeIDs.Insert(hop.Edge.ID())
	if hop.Template == nil {
		errs.Collect(errors.NewHopIncompleteErr(hop.Edge.ID(), "template"))
	} else {
		templateURIs.Insert(hop.Edge.TemplateURI())
	}

	if hop.Executor == nil {
		errs.Collect(errors.NewHopIncompleteErr(hop.Edge.ID(), "executor"))
	} else {
		executorURIs.Insert(hop.Executor.URI())
	}
}
