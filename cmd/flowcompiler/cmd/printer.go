package cmd

import (
	"fmt"
	"io"
	"strings"

	gotree "github.com/DiSiqueira/GoTree"
	"github.com/fatih/color"
	"github.com/ghodss/yaml"

	"github.com/flyteorg/flowcompiler/pkg/compiler"
	compilerErrors "github.com/flyteorg/flowcompiler/pkg/compiler/errors"
	"github.com/flyteorg/flowcompiler/pkg/dag"
	"github.com/flyteorg/flowcompiler/pkg/flowgraph/loader"
	"github.com/flyteorg/flowcompiler/pkg/plan"
	"github.com/flyteorg/flowcompiler/pkg/spec"
)

type OutputFormat = string

const (
	OutputFormatTree OutputFormat = "tree"
	OutputFormatYaml OutputFormat = "yaml"
	OutputFormatJSON OutputFormat = "json"
)

var AllOutputFormats = []OutputFormat{OutputFormatTree, OutputFormatYaml, OutputFormatJSON}

// JobView is the printable form of a job execution plan.
type JobView struct {
	Name         string            `json:"name"`
	URI          string            `json:"uri"`
	Executor     string            `json:"executor"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Config       map[string]string `json:"config,omitempty"`
}

// CompilationView is the printable form of a compilation.
type CompilationView struct {
	Flow      string     `json:"flow"`
	Jobs      []JobView  `json:"jobs"`
	Paths     [][]string `json:"paths,omitempty"`
	Templates []string   `json:"templates,omitempty"`
	Executors []string   `json:"executors,omitempty"`
	Errors    []string   `json:"errors,omitempty"`
}

// LoadFlowSpec decodes a flow spec stored as properties, yaml or json, name only selects the format.
func LoadFlowSpec(name string, raw []byte) (*spec.FlowSpec, error) {
	cfg, err := loader.Decode(name, raw)
	if err != nil {
		return nil, err
	}

	return &spec.FlowSpec{
		URI:    fmt.Sprintf("gobblin-flow:/%s/%s", cfg.GetString(spec.FlowGroupKey, ""), cfg.GetString(spec.FlowNameKey, "")),
		Config: cfg,
	}, nil
}

func jobViews(d *dag.Dag[*plan.JobExecutionPlan], withConfig bool) ([]JobView, error) {
	var res []JobView
	err := dag.Walk[*plan.JobExecutionPlan](d, func(n *dag.Node[*plan.JobExecutionPlan]) error {
		p := n.Value()
		v := JobView{
			Name:         p.JobName(),
			URI:          p.JobSpec.URI,
			Dependencies: p.Dependencies(),
		}

		if p.SpecExecutor != nil {
			v.Executor = p.SpecExecutor.URI()
		}

		if withConfig {
			v.Config = p.JobSpec.Config
		}

		res = append(res, v)
		return nil
	})

	return res, err
}

func newCompilationView(res *compiler.Compilation, withConfig bool) (*CompilationView, error) {
	jobs, err := jobViews(res.Dag, withConfig)
	if err != nil {
		return nil, err
	}

	v := &CompilationView{
		Flow: res.FlowSpec.String(),
		Jobs: jobs,
	}

	for _, p := range res.Paths {
		v.Paths = append(v.Paths, p.EdgeIDs()...)
	}

	if reqs, err := compiler.GetRequirements(res.Paths...); err == nil {
		v.Templates = reqs.GetRequiredTemplateURIs()
		v.Executors = reqs.GetRequiredExecutorURIs()
	} else {
		v.Errors = append(v.Errors, err.Error())
	}

	for _, e := range errorsOf(res.Errors) {
		v.Errors = append(v.Errors, e.Error())
	}

	return v, nil
}

func errorsOf(errs compilerErrors.CompileErrors) []*compilerErrors.CompileError {
	if errs == nil {
		return nil
	}

	return errs.Errors()
}

// treeText renders the dag with every job under each of its parents, jobs already printed are marked.
func treeText(res *compiler.Compilation) string {
	root := gotree.New(color.CyanString(res.FlowSpec.String()))
	printed := map[*dag.Node[*plan.JobExecutionPlan]]struct{}{}
	var add func(parent gotree.Tree, n *dag.Node[*plan.JobExecutionPlan])
	add = func(parent gotree.Tree, n *dag.Node[*plan.JobExecutionPlan]) {
		p := n.Value()
		text := fmt.Sprintf("%s %s", color.GreenString(p.JobName()), color.YellowString("@%s", executorURI(p)))
		if _, ok := printed[n]; ok {
			parent.Add(text + " (see above)")
			return
		}

		printed[n] = struct{}{}
		child := parent.Add(text)
		for _, c := range res.Dag.Children(n) {
			add(child, c)
		}
	}

	for _, n := range res.Dag.StartNodes() {
		add(root, n)
	}

	return root.Print()
}

func executorURI(p *plan.JobExecutionPlan) string {
	if p.SpecExecutor == nil {
		return ""
	}

	return p.SpecExecutor.URI()
}

// PrintCompilation writes res to w in the given format.
func PrintCompilation(w io.Writer, res *compiler.Compilation, format OutputFormat, withConfig bool) error {
	switch format {
	case OutputFormatTree, "":
		if _, err := fmt.Fprint(w, treeText(res)); err != nil {
			return err
		}

		v, err := newCompilationView(res, false)
		if err != nil {
			return err
		}

		for _, p := range v.Paths {
			fmt.Fprintf(w, "%s %s\n", color.BlueString("path:"), strings.Join(p, " -> "))
		}

		for _, e := range v.Errors {
			fmt.Fprintln(w, color.RedString(e))
		}

		return nil
	case OutputFormatYaml, OutputFormatJSON:
		v, err := newCompilationView(res, withConfig)
		if err != nil {
			return err
		}

		raw, err := yaml.Marshal(v)
		if err != nil {
			return err
		}

		if format == OutputFormatJSON {
			if raw, err = yaml.YAMLToJSON(raw); err != nil {
				return err
			}
		}

		_, err = w.Write(raw)
		return err
	}

	return fmt.Errorf("unknown output format [%s], options %v", format, AllOutputFormats)
}

// formatExt maps a content type to the extension LoadFlowSpec understands.
func formatExt(contentType string) string {
	switch {
	case strings.Contains(contentType, "json"):
		return ".json"
	case strings.Contains(contentType, "yaml"):
		return ".yaml"
	}

	return ".properties"
}
