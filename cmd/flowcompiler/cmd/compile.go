package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/flyteorg/flytestdlib/logger"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	ctrlConfig "github.com/flyteorg/flowcompiler/pkg/config"
	"github.com/flyteorg/flowcompiler/pkg/monitor"
)

type CompileOptions struct {
	flowSpecPath string
	graphDir     string
	outputFormat OutputFormat
	showConfig   bool
}

// Compile loads the graph once from the graph directory, compiles the flow spec and prints the result.
func (c *CompileOptions) Compile(ctx context.Context, out io.Writer) error {
	cfg := ctrlConfig.GetConfig()
	flowSpecPath := c.flowSpecPath
	if len(flowSpecPath) == 0 {
		flowSpecPath = cfg.FlowSpecPath
	}

	graphDir := c.graphDir
	if len(graphDir) == 0 {
		graphDir = cfg.GraphDir
	}

	raw, err := os.ReadFile(flowSpecPath)
	if err != nil {
		return errors.Wrapf(err, "failed to read flow spec [%s]", flowSpecPath)
	}

	flowSpec, err := LoadFlowSpec(flowSpecPath, raw)
	if err != nil {
		return err
	}

	env, err := newEnvironment(ctx, cfg.MetricsPrefix)
	if err != nil {
		return err
	}

	monitorCfg := *monitor.GetConfig()
	monitorCfg.Source = monitor.SourceTypeDirectory
	monitorCfg.Watch = false
	comp, err := env.newCompiler(ctx, &monitorCfg, graphDir)
	if err != nil {
		return err
	}

	defer comp.Stop()

	res, err := comp.Compile(ctx, flowSpec)
	if err != nil {
		return err
	}

	if err := PrintCompilation(out, res, c.outputFormat, c.showConfig); err != nil {
		return err
	}

	if res.Dag.IsEmpty() {
		logger.Errorf(ctx, "%s compiled to an empty dag", flowSpec)
		return fmt.Errorf("%s compiled to an empty dag", flowSpec)
	}

	return nil
}

func NewCompileCommand() *cobra.Command {
	compileOpts := &CompileOptions{}
	compileCmd := &cobra.Command{
		Use:   "compile",
		Short: "Compiles a flow spec against the flow graph of a directory and prints the job dag.",
		Long: `The flow spec is a properties, yaml or json file holding the flow config, e.g.
  flow.group=team
  flow.name=dataset
  gobblin.flow.sourceIdentifier=LocalFS-1
  gobblin.flow.destinationIdentifier=ADLS-1
  gobblin.flow.input.dataset.descriptor.path=/data/team/dataset`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return compileOpts.Compile(context.Background(), cmd.OutOrStdout())
		},
	}

	compileCmd.Flags().StringVarP(&compileOpts.flowSpecPath, "flow-spec", "f", "", "Path of the flow spec to compile.")
	compileCmd.Flags().StringVarP(&compileOpts.graphDir, "graph-dir", "g", "", "Directory holding the data node and flow edge definitions.")
	compileCmd.Flags().StringVarP(&compileOpts.outputFormat, "output", "o", OutputFormatTree, fmt.Sprintf("Output format. Options %v", AllOutputFormats))
	compileCmd.Flags().BoolVar(&compileOpts.showConfig, "show-config", false, "Print the resolved config of every job (yaml and json output).")
	return compileCmd
}
