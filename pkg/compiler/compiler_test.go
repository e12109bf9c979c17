package compiler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flyteorg/flytestdlib/config"
	"github.com/flyteorg/flytestdlib/contextutils"
	"github.com/flyteorg/flytestdlib/promutils"
	"github.com/flyteorg/flytestdlib/promutils/labeled"
	"github.com/flyteorg/flytestdlib/storage"
	"github.com/go-test/deep"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyteorg/flowcompiler/pkg/compiler/errors"
	"github.com/flyteorg/flowcompiler/pkg/dag"
	"github.com/flyteorg/flowcompiler/pkg/executor"
	"github.com/flyteorg/flowcompiler/pkg/flowgraph"
	"github.com/flyteorg/flowcompiler/pkg/flowgraph/weights"
	"github.com/flyteorg/flowcompiler/pkg/monitor"
	"github.com/flyteorg/flowcompiler/pkg/plan"
	"github.com/flyteorg/flowcompiler/pkg/spec"
	"github.com/flyteorg/flowcompiler/pkg/template"
)

func init() {
	labeled.SetMetricKeys(contextutils.WorkflowIDKey, contextutils.JobIDKey)
}

const (
	executorURI  = "local://executor"
	copyTemplate = `
jobs:
  - name: distcp
    config:
      copy.source: ${source.filebased.fs.uri}${from}
      copy.target: ${target.filebased.fs.uri}${to}
`
	publishTemplate = `
jobs:
  - name: distcp
    config:
      copy.source: ${source.filebased.fs.uri}${from}
      copy.target: ${target.filebased.fs.uri}${to}
  - name: publish
    dependencies:
      - distcp
    config:
      publish.dir: ${to}
`
)

func newCatalog(t testing.TB) template.Catalog {
	ctx := context.TODO()
	store, err := storage.NewDataStore(&storage.Config{Type: storage.TypeMemory}, promutils.NewTestScope())
	require.NoError(t, err)

	root := storage.DataReference("s3://bucket/templates")
	for uri, body := range map[string]string{"copy": copyTemplate, "publish": publishTemplate} {
		ref, err := store.ConstructReference(ctx, root, uri)
		require.NoError(t, err)
		require.NoError(t, store.WriteRaw(ctx, ref, int64(len(body)), storage.Options{}, bytes.NewReader([]byte(body))))
	}

	return template.NewPassthroughCatalog(store, root)
}

func newExecutors(t testing.TB) []executor.SpecExecutor {
	return []executor.SpecExecutor{executor.NewInMemorySpecExecutor(executorURI, nil)}
}

func addEdge(t testing.TB, g flowgraph.FlowGraph, src, dest, templateURI string, weight float64) {
	e, err := flowgraph.NewBaseFlowEdge(src, dest, templateURI, templateURI, newExecutors(t), weight, true, nil)
	require.NoError(t, err)
	require.NoError(t, g.AddFlowEdge(e))
}

// newGraph: LocalFS-1 -> HDFS-1 -> ADLS-1 (1 + 1) and LocalFS-1 -> HDFS-2 -> ADLS-1 (1 + 2).
func newGraph(t testing.TB, catalog template.Catalog) *flowgraph.BaseFlowGraph {
	g := flowgraph.NewBaseFlowGraph(catalog)
	for id, uri := range map[string]string{
		"LocalFS-1": "file:///",
		"HDFS-1":    "hdfs://nn01:8020/",
		"HDFS-2":    "hdfs://nn02:8020/",
		"ADLS-1":    "adl://store.net/",
	} {
		n, err := flowgraph.NewFileSystemDataNode(id, uri, true)
		require.NoError(t, err)
		require.NoError(t, g.AddDataNode(n))
	}

	addEdge(t, g, "LocalFS-1", "HDFS-1", "copy", 1)
	addEdge(t, g, "HDFS-1", "ADLS-1", "publish", 1)
	addEdge(t, g, "LocalFS-1", "HDFS-2", "copy", 1)
	addEdge(t, g, "HDFS-2", "ADLS-1", "publish", 2)
	return g
}

func testConfig() *Config {
	return &Config{
		PathFinder:            flowgraph.DijkstraPathFinderType,
		ReadyTimeout:          config.Duration{Duration: 5 * time.Second},
		HealthCheckTimeout:    config.Duration{Duration: time.Second},
		MaxConcurrentSearches: 2,
	}
}

func newCompiler(t testing.TB, opts ...Option) *MultiHopFlowCompiler {
	catalog := newCatalog(t)
	c, err := NewMultiHopFlowCompiler(context.TODO(), testConfig(), newGraph(t, catalog), catalog,
		promutils.NewTestScope(), opts...)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func newFlowSpec(extra spec.Config) *spec.FlowSpec {
	cfg := spec.Config{
		spec.FlowGroupKey:                 "testTeam",
		spec.FlowNameKey:                  "testDataset",
		spec.FlowSourceIdentifierKey:      "LocalFS-1",
		spec.FlowDestinationIdentifierKey: "ADLS-1",
	}

	cfg[spec.FlowInputDatasetDescriptorPrefix+"."+spec.DatasetPathKey] = "/data/testTeam/testDataset"
	for k, v := range extra {
		cfg[k] = v
	}

	return &spec.FlowSpec{URI: "gobblin-flow:/testTeam/testDataset", Config: cfg}
}

type jobView struct {
	Name         string
	Dependencies []string
	Parents      []string
	Executor     string
	Config       map[string]string
}

// project flattens a dag into comparable values, in topological order then by name.
func project(t testing.TB, d *dag.Dag[*plan.JobExecutionPlan]) []jobView {
	var res []jobView
	require.NoError(t, dag.Walk[*plan.JobExecutionPlan](d, func(n *dag.Node[*plan.JobExecutionPlan]) error {
		var parents []string
		for _, p := range d.Parents(n) {
			parents = append(parents, p.Value().JobName())
		}

		sort.Strings(parents)
		res = append(res, jobView{
			Name:         n.Value().JobName(),
			Dependencies: n.Value().Dependencies(),
			Parents:      parents,
			Executor:     n.Value().SpecExecutor.URI(),
			Config:       n.Value().JobSpec.Config,
		})

		return nil
	}))

	return res
}

func TestCompileFlow(t *testing.T) {
	ctx := context.TODO()
	c := newCompiler(t)

	d, err := c.CompileFlow(ctx, newFlowSpec(nil))
	require.NoError(t, err)
	jobs := project(t, d)
	require.Len(t, jobs, 3)
	tag := plan.DatasetTag("/data/testTeam/testDataset", "/data/testTeam/testDataset")
	assert.Equal(t, "testTeam_testDataset_distcp_LocalFS-1-HDFS-1-copy_"+tag, jobs[0].Name)
	assert.Equal(t, "testTeam_testDataset_distcp_HDFS-1-ADLS-1-publish_"+tag, jobs[1].Name)
	assert.Equal(t, "testTeam_testDataset_publish_HDFS-1-ADLS-1-publish_"+tag, jobs[2].Name)
	assert.Equal(t, []string{jobs[0].Name}, jobs[1].Parents)
	assert.Equal(t, []string{jobs[1].Name}, jobs[2].Dependencies)
	assert.Equal(t, "hdfs://nn01:8020//data/testTeam/testDataset", jobs[0].Config["copy.target"])
	assert.Equal(t, "/data/testTeam/testDataset", jobs[2].Config["publish.dir"])
	assert.Equal(t, executorURI, jobs[2].Executor)

	executionID := jobs[0].Config[spec.FlowExecutionIDKey]
	assert.NotEmpty(t, executionID)
	for _, j := range jobs {
		assert.Equal(t, executionID, j.Config[spec.FlowExecutionIDKey])
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.FlowCompiled))
}

func TestCompileFlow_NilSpec(t *testing.T) {
	c := newCompiler(t)
	_, err := c.CompileFlow(context.TODO(), nil)
	assert.Equal(t, ErrNilSpec, err)
}

func TestCompileFlow_Invalid(t *testing.T) {
	c := newCompiler(t)
	res, err := c.Compile(context.TODO(), newFlowSpec(spec.Config{spec.FlowSourceIdentifierKey: ""}))
	require.NoError(t, err)
	assert.True(t, res.Dag.IsEmpty())
	require.True(t, res.Errors.HasErrors())
	assert.Equal(t, errors.ValueRequired, res.Errors.Errors()[0].Code())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.FlowCompilationFailed))
}

func TestCompileFlow_Idempotent(t *testing.T) {
	ctx := context.TODO()
	c := newCompiler(t)
	flow := newFlowSpec(spec.Config{spec.FlowExecutionIDKey: "1234"})

	first, err := c.CompileFlow(ctx, flow)
	require.NoError(t, err)
	second, err := c.CompileFlow(ctx, flow)
	require.NoError(t, err)

	assert.False(t, first == second)
	assert.Nil(t, deep.Equal(project(t, first), project(t, second)))
}

func TestCompileFlow_AfterEdgeDeletion(t *testing.T) {
	ctx := context.TODO()
	c := newCompiler(t)

	require.NoError(t, c.Mutate(func(g flowgraph.FlowGraph) error {
		if err := g.DeleteFlowEdge("HDFS-1:ADLS-1:publish"); err != nil {
			return err
		}

		return g.DeleteFlowEdge("HDFS-2:ADLS-1:publish")
	}))

	res, err := c.Compile(ctx, newFlowSpec(nil))
	require.NoError(t, err)
	assert.True(t, res.Dag.IsEmpty())
	assert.Empty(t, res.Paths)
	require.Equal(t, 1, res.Errors.ErrorCount())
	assert.Equal(t, errors.PathNotFound, res.Errors.Errors()[0].Code())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.CompilationFailure))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.FlowCompilationFailed))
}

func TestCompileFlow_Datasets(t *testing.T) {
	ctx := context.TODO()
	c := newCompiler(t)
	res, err := c.Compile(ctx, newFlowSpec(spec.Config{
		spec.FlowInputDatasetDescriptorPrefix + ".0":  "/data/a",
		spec.FlowInputDatasetDescriptorPrefix + ".1":  "/data/b",
		spec.FlowOutputDatasetDescriptorPrefix + ".1": "/out/b",
	}))

	require.NoError(t, err)
	assert.False(t, res.Errors.HasErrors())
	require.Len(t, res.Paths, 2)
	assert.Len(t, res.Dag.Nodes(), 6)
	assert.Len(t, res.Dag.StartNodes(), 2)
	assert.Len(t, res.Dag.EndNodes(), 2)

	var targets []string
	for _, n := range res.Dag.EndNodes() {
		targets = append(targets, n.Value().JobSpec.Config["publish.dir"])
	}

	sort.Strings(targets)
	assert.Equal(t, []string{"/data/a", "/out/b"}, targets)

	uris := map[string]bool{}
	for _, n := range res.Dag.Nodes() {
		uris[n.Value().JobSpec.URI] = true
	}

	assert.Len(t, uris, 6)
}

func TestCompileFlow_PartialDatasets(t *testing.T) {
	ctx := context.TODO()
	c := newCompiler(t)
	res, err := c.Compile(ctx, newFlowSpec(spec.Config{
		spec.FlowInputDatasetDescriptorPrefix + ".0": "/data/${flow.name}/a",
		spec.FlowInputDatasetDescriptorPrefix + ".1": "/data/${dataset.owner}/b",
	}))

	require.NoError(t, err)
	require.NotNil(t, res.Dag)
	assert.False(t, res.Dag.IsEmpty())
	assert.Len(t, res.Dag.Nodes(), 3)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, [][]string{{"LocalFS-1:HDFS-1:copy", "HDFS-1:ADLS-1:publish"}}, res.Paths[0].EdgeIDs())

	require.Equal(t, 1, res.Errors.ErrorCount())
	assert.Equal(t, errors.PathNotFound, res.Errors.Errors()[0].Code())
	assert.Contains(t, res.Errors.Errors()[0].Error(), "/data/${dataset.owner}/b")

	for _, n := range res.Dag.EndNodes() {
		assert.Equal(t, "/data/testDataset/a", n.Value().JobSpec.Config["publish.dir"])
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.CompilationFailure))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.metrics.FlowCompilationFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.FlowCompiled))
}

func TestCompileFlow_Multicast(t *testing.T) {
	c := newCompiler(t)
	res, err := c.Compile(context.TODO(), newFlowSpec(spec.Config{spec.FlowDestinationIdentifierKey: "ADLS-1,HDFS-2"}))
	require.NoError(t, err)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, [][]string{
		{"LocalFS-1:HDFS-1:copy", "HDFS-1:ADLS-1:publish"},
		{"LocalFS-1:HDFS-2:copy"},
	}, res.Paths[0].EdgeIDs())
	assert.Len(t, res.Dag.Nodes(), 4)
}

func TestCompileFlow_BFSOverride(t *testing.T) {
	c := newCompiler(t)
	require.NoError(t, c.Mutate(func(g flowgraph.FlowGraph) error {
		addEdge(t, g, "LocalFS-1", "ADLS-1", "copy", 10)
		return nil
	}))

	res, err := c.Compile(context.TODO(), newFlowSpec(nil))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"LocalFS-1:HDFS-1:copy", "HDFS-1:ADLS-1:publish"}}, res.Paths[0].EdgeIDs())

	res, err = c.Compile(context.TODO(), newFlowSpec(spec.Config{spec.FlowPathFinderKey: flowgraph.BFSPathFinderType}))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"LocalFS-1:ADLS-1:copy"}}, res.Paths[0].EdgeIDs())
}

func TestCompileFlow_ConcurrentMutations(t *testing.T) {
	ctx := context.TODO()
	c := newCompiler(t)

	wg := sync.WaitGroup{}
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}

			assert.NoError(t, c.Mutate(func(g flowgraph.FlowGraph) error {
				return g.SetEdgeWeight("HDFS-2:ADLS-1:publish", float64(i%3))
			}))
		}
	}()

	compiles := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		compiles.Add(1)
		go func() {
			defer compiles.Done()
			for j := 0; j < 10; j++ {
				d, err := c.CompileFlow(ctx, newFlowSpec(nil))
				assert.NoError(t, err)
				assert.Len(t, d.Nodes(), 3)
			}
		}()
	}

	compiles.Wait()
	close(stop)
	wg.Wait()
}

func TestGraphView(t *testing.T) {
	c := newCompiler(t)
	g := c.Graph()
	assert.Len(t, g.Nodes(), 4)
	assert.Len(t, g.Edges(), 4)
	assert.Len(t, g.GetEdges("LocalFS-1"), 2)

	require.NoError(t, g.AddDataNode(flowgraph.NewBaseDataNode("extra", true)))
	_, ok := g.GetNode("extra")
	assert.True(t, ok)
	require.NoError(t, g.DeleteDataNode("extra"))

	require.NoError(t, g.SetEdgeWeight("LocalFS-1:HDFS-1:copy", 0.5))
	e, ok := g.GetEdge("LocalFS-1:HDFS-1:copy")
	require.True(t, ok)
	assert.Equal(t, 0.5, e.Weight())

	p, err := g.FindPath(context.TODO(), newFlowSpec(spec.Config{spec.FlowExecutionIDKey: "1"}))
	require.NoError(t, err)
	assert.Len(t, p.Paths(), 1)

	require.NoError(t, g.DeleteFlowEdge("LocalFS-1:HDFS-1:copy"))
	addEdge(t, g, "LocalFS-1", "HDFS-1", "copy", 1)
	assert.Len(t, g.Edges(), 4)
}

func TestGetRequirements(t *testing.T) {
	c := newCompiler(t)
	res, err := c.Compile(context.TODO(), newFlowSpec(spec.Config{spec.FlowDestinationIdentifierKey: "ADLS-1,HDFS-2"}))
	require.NoError(t, err)

	reqs, err := GetRequirements(res.Paths...)
	require.NoError(t, err)
	assert.Equal(t, []string{"copy", "publish"}, reqs.GetRequiredTemplateURIs())
	assert.Equal(t, []string{executorURI}, reqs.GetRequiredExecutorURIs())
	assert.Equal(t, []string{"HDFS-1:ADLS-1:publish", "LocalFS-1:HDFS-1:copy", "LocalFS-1:HDFS-2:copy"},
		reqs.GetRequiredEdgeIDs())

	t.Run("incomplete hop", func(t *testing.T) {
		hop := res.Paths[0].Paths()[0][0]
		executorBackup := hop.Executor
		hop.Executor = nil
		defer func() {
			hop.Executor = executorBackup
		}()

		_, err := GetRequirements(res.Paths...)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), string(errors.HopIncomplete))
	})
}

func writeDefinition(t testing.TB, root, rel, content string) {
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0600))
}

func TestNewMultiHopFlowCompiler_Monitor(t *testing.T) {
	ctx := context.TODO()
	root := t.TempDir()
	for id, uri := range map[string]string{"LocalFS-1": "file:///", "ADLS-1": "adl://store.net/"} {
		writeDefinition(t, root, id+"/node.properties", fmt.Sprintf("fs.uri=%s\n", uri))
	}

	writeDefinition(t, root, "LocalFS-1/ADLS-1/publish.yaml", strings.Join([]string{
		"flowEdge:",
		"  flowTemplateDirUri: publish",
		"  specExecutors: " + executorURI,
	}, "\n"))

	registry := executor.NewRegistry()
	require.NoError(t, registry.Register(executor.NewInMemorySpecExecutor(executorURI, nil)))

	catalog := newCatalog(t)
	c, err := NewMultiHopFlowCompiler(ctx, testConfig(), nil, catalog, promutils.NewTestScope(),
		WithMonitor(func(mutator flowgraph.Mutator, scope promutils.Scope) (*monitor.Monitor, error) {
			return monitor.New(monitor.NewDirectorySource(root), mutator, registry, time.Hour, scope,
				monitor.WithWatch(false)), nil
		}))

	require.NoError(t, err)
	defer c.Stop()
	assert.True(t, c.Healthy())

	d, err := c.CompileFlow(ctx, newFlowSpec(nil))
	require.NoError(t, err)
	assert.Len(t, d.Nodes(), 2)

	t.Run("monitor never healthy", func(t *testing.T) {
		cfg := testConfig()
		cfg.ReadyTimeout = config.Duration{Duration: 50 * time.Millisecond}
		_, err := NewMultiHopFlowCompiler(ctx, cfg, nil, catalog, promutils.NewTestScope(),
			WithMonitor(func(mutator flowgraph.Mutator, scope promutils.Scope) (*monitor.Monitor, error) {
				return monitor.New(monitor.NewDirectorySource(filepath.Join(root, "missing")), mutator, registry,
					time.Hour, scope, monitor.WithWatch(false)), nil
			}))

		assert.Error(t, err)
	})

	t.Run("monitor factory failure", func(t *testing.T) {
		_, err := NewMultiHopFlowCompiler(ctx, testConfig(), nil, catalog, promutils.NewTestScope(),
			WithMonitor(func(flowgraph.Mutator, promutils.Scope) (*monitor.Monitor, error) {
				return nil, fmt.Errorf("no source")
			}))

		assert.Error(t, err)
	})
}

func TestNewMultiHopFlowCompiler_EdgeWeights(t *testing.T) {
	ctx := context.TODO()
	c := newCompiler(t, WithEdgeWeights(weights.NewStaticSource(map[string]float64{
		"HDFS-1:ADLS-1:publish": 5,
	}), 10*time.Millisecond))

	assert.Eventually(t, func() bool {
		res, err := c.Compile(ctx, newFlowSpec(nil))
		return err == nil && len(res.Paths) == 1 &&
			res.Paths[0].EdgeIDs()[0][0] == "LocalFS-1:HDFS-2:copy"
	}, 5*time.Second, 20*time.Millisecond)
}
