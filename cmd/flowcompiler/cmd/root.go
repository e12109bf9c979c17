// Commands for the flow compiler.
package cmd

import (
	"context"
	"flag"
	"os"
	"runtime"
	"strings"

	"github.com/flyteorg/flytestdlib/config"
	"github.com/flyteorg/flytestdlib/config/viper"
	"github.com/flyteorg/flytestdlib/contextutils"
	"github.com/flyteorg/flytestdlib/logger"
	"github.com/flyteorg/flytestdlib/promutils"
	"github.com/flyteorg/flytestdlib/promutils/labeled"
	"github.com/flyteorg/flytestdlib/storage"
	"github.com/flyteorg/flytestdlib/version"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/client-go/kubernetes"
	restclient "k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog"

	"github.com/flyteorg/flowcompiler/pkg/compiler"
	"github.com/flyteorg/flowcompiler/pkg/executor"
	"github.com/flyteorg/flowcompiler/pkg/flowgraph"
	"github.com/flyteorg/flowcompiler/pkg/monitor"
	"github.com/flyteorg/flowcompiler/pkg/template"
)

const (
	appName = "flowcompiler"
)

var (
	cfgFile        string
	configAccessor = viper.NewAccessor(config.Options{StrictMode: true})
)

// rootCmd loads the config sections before any sub command runs.
var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Compiles flows moving datasets between data nodes into dags of jobs.",
	Long: `Searches the cheapest path through a graph of data nodes and flow edges and resolves the job templates of
every hop into job execution plans.`,
	PersistentPreRunE: initConfig,
}

// Execute runs the command line, exits non zero on failure.
func Execute() {
	version.LogBuildInformation(appName)
	logger.Infof(context.TODO(), "Detected: %d CPU's\n", runtime.NumCPU())
	if err := rootCmd.Execute(); err != nil {
		logger.Error(context.TODO(), err)
		os.Exit(1)
	}
}

func init() {
	// storage metrics are labeled by flow and edge, the keys must be set before any data store is built
	labeled.SetMetricKeys(contextutils.WorkflowIDKey, contextutils.JobIDKey)

	// klog flags such as --logtostderr are accepted next to the config flags
	klog.InitFlags(flag.CommandLine)
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	err := flag.CommandLine.Parse([]string{})
	if err != nil {
		logAndExit(err)
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file holding the flowcompiler, compiler, monitor, executors, templateCatalog and weights sections")

	configAccessor.InitializePflags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(viper.GetConfigCommand())
	rootCmd.AddCommand(NewCompileCommand())
	rootCmd.AddCommand(NewServeCommand())
}

func initConfig(cmd *cobra.Command, _ []string) error {
	configAccessor = viper.NewAccessor(config.Options{
		StrictMode:  false,
		SearchPaths: []string{cfgFile},
	})

	configAccessor.InitializePflags(cmd.PersistentFlags())

	err := configAccessor.UpdateConfig(context.TODO())
	if err != nil {
		return err
	}

	return nil
}

func logAndExit(err error) {
	logger.Error(context.Background(), err)
	os.Exit(-1)
}

// newKubeClient builds a client from the configured kube config file, or the in cluster config when none is set.
func newKubeClient(cfg *monitor.Config) (kubernetes.Interface, error) {
	var restCfg *restclient.Config
	var err error
	if len(cfg.KubeConfigPath) > 0 {
		restCfg, err = clientcmd.BuildConfigFromFlags(cfg.MasterURL, os.ExpandEnv(cfg.KubeConfigPath))
	} else {
		restCfg, err = restclient.InClusterConfig()
	}

	if err != nil {
		return nil, errors.Wrapf(err, "failed to load kube config [%s]", cfg.KubeConfigPath)
	}

	restCfg.QPS = cfg.KubeConfig.QPS
	restCfg.Burst = cfg.KubeConfig.Burst
	restCfg.Timeout = cfg.KubeConfig.Timeout.Duration
	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build kubernetes client")
	}

	return client, nil
}

func safeMetricName(original string) string {
	return strings.Replace(original, "-", "_", -1)
}

// environment holds what both the compile and the serve commands build from config.
type environment struct {
	scope     promutils.Scope
	executors *executor.Registry
	catalog   template.Catalog
}

func newEnvironment(ctx context.Context, metricsPrefix string) (*environment, error) {
	scope := promutils.NewScope(safeMetricName(metricsPrefix)).NewSubScope(appName)
	executors, err := executor.NewRegistryFromConfig(ctx, executor.GetConfig())
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize spec executors")
	}

	store, err := storage.NewDataStore(storage.GetConfig(), scope.NewSubScope("storage"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize template store")
	}

	catalog, err := template.NewCatalog(ctx, template.GetConfig(), store, scope)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize template catalog")
	}

	return &environment{
		scope:     scope,
		executors: executors,
		catalog:   catalog,
	}, nil
}

// newCompiler builds a compiler whose graph is filled by a monitor of the given config.
func (e *environment) newCompiler(ctx context.Context, monitorCfg *monitor.Config, graphDir string,
	opts ...compiler.Option) (*compiler.MultiHopFlowCompiler, error) {

	var kubeClient kubernetes.Interface
	if monitorCfg.Source == monitor.SourceTypeConfigMap {
		client, err := newKubeClient(monitorCfg)
		if err != nil {
			return nil, err
		}

		kubeClient = client
	}

	opts = append(opts, compiler.WithMonitor(func(mutator flowgraph.Mutator, scope promutils.Scope) (*monitor.Monitor, error) {
		return monitor.NewFromConfig(monitorCfg, graphDir, kubeClient, mutator, e.executors, scope)
	}))

	return compiler.NewMultiHopFlowCompiler(ctx, compiler.GetConfig(), nil, e.catalog, e.scope, opts...)
}
