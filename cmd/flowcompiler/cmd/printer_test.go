package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flyteorg/flytestdlib/config"
	"github.com/flyteorg/flytestdlib/promutils"
	"github.com/flyteorg/flytestdlib/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyteorg/flowcompiler/pkg/compiler"
	"github.com/flyteorg/flowcompiler/pkg/executor"
	"github.com/flyteorg/flowcompiler/pkg/flowgraph"
	"github.com/flyteorg/flowcompiler/pkg/template"
)

const (
	testTemplate = `
jobs:
  - name: distcp
    config:
      copy.target: ${target.filebased.fs.uri}${to}
  - name: publish
    dependencies:
      - distcp
`
	testFlowSpec = `
flow.group=team
flow.name=dataset
flow.executionId=42
gobblin.flow.sourceIdentifier=LocalFS-1
gobblin.flow.destinationIdentifier=HDFS-1
gobblin.flow.input.dataset.descriptor.path=/data/team/dataset
`
)

func newTestCompiler(t *testing.T) *compiler.MultiHopFlowCompiler {
	ctx := context.TODO()
	store, err := storage.NewDataStore(&storage.Config{Type: storage.TypeMemory}, promutils.NewTestScope())
	require.NoError(t, err)
	root := storage.DataReference("s3://bucket/templates")
	ref, err := store.ConstructReference(ctx, root, "copy")
	require.NoError(t, err)
	require.NoError(t, store.WriteRaw(ctx, ref, int64(len(testTemplate)), storage.Options{},
		strings.NewReader(testTemplate)))

	catalog := template.NewPassthroughCatalog(store, root)
	g := flowgraph.NewBaseFlowGraph(catalog)
	local, err := flowgraph.NewFileSystemDataNode("LocalFS-1", "file:///", true)
	require.NoError(t, err)
	hdfs, err := flowgraph.NewFileSystemDataNode("HDFS-1", "hdfs://nn:8020", true)
	require.NoError(t, err)
	require.NoError(t, g.AddDataNode(local))
	require.NoError(t, g.AddDataNode(hdfs))
	e, err := flowgraph.NewBaseFlowEdge("LocalFS-1", "HDFS-1", "copy", "copy",
		[]executor.SpecExecutor{executor.NewInMemorySpecExecutor("local://executor", nil)}, 1, true, nil)
	require.NoError(t, err)
	require.NoError(t, g.AddFlowEdge(e))

	c, err := compiler.NewMultiHopFlowCompiler(ctx, &compiler.Config{
		PathFinder:         flowgraph.DijkstraPathFinderType,
		HealthCheckTimeout: config.Duration{Duration: flowgraph.DefaultHealthCheckTimeout},
	}, g, catalog, promutils.NewTestScope())
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func TestLoadFlowSpec(t *testing.T) {
	f, err := LoadFlowSpec("flow.properties", []byte(testFlowSpec))
	require.NoError(t, err)
	assert.Equal(t, "gobblin-flow:/team/dataset", f.URI)
	assert.Equal(t, "LocalFS-1", f.Source())

	f, err = LoadFlowSpec("flow.yaml", []byte("flow:\n  group: team\n  name: dataset\n"))
	require.NoError(t, err)
	assert.Equal(t, "dataset", f.FlowName())

	_, err = LoadFlowSpec("flow.txt", []byte(testFlowSpec))
	assert.Error(t, err)
}

func TestPrintCompilation(t *testing.T) {
	ctx := context.TODO()
	c := newTestCompiler(t)
	f, err := LoadFlowSpec("flow.properties", []byte(testFlowSpec))
	require.NoError(t, err)
	res, err := c.Compile(ctx, f)
	require.NoError(t, err)

	t.Run("tree", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, PrintCompilation(buf, res, OutputFormatTree, false))
		assert.Contains(t, buf.String(), "team_dataset_distcp_LocalFS-1-HDFS-1-copy")
		assert.Contains(t, buf.String(), "team_dataset_publish_LocalFS-1-HDFS-1-copy")
		assert.Contains(t, buf.String(), "LocalFS-1:HDFS-1:copy")
	})

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, PrintCompilation(buf, res, OutputFormatJSON, true))
		v := &CompilationView{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), v))
		require.Len(t, v.Jobs, 2)
		assert.True(t, strings.HasPrefix(v.Jobs[0].Name, "team_dataset_distcp_LocalFS-1-HDFS-1-copy_"), v.Jobs[0].Name)
		assert.Equal(t, []string{v.Jobs[0].Name}, v.Jobs[1].Dependencies)
		assert.Equal(t, "hdfs://nn:8020/data/team/dataset", v.Jobs[0].Config["copy.target"])
		assert.Equal(t, []string{"copy"}, v.Templates)
		assert.Equal(t, []string{"local://executor"}, v.Executors)
		assert.Empty(t, v.Errors)
	})

	t.Run("yaml", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, PrintCompilation(buf, res, OutputFormatYaml, false))
		assert.Contains(t, buf.String(), "jobs:")
		assert.NotContains(t, buf.String(), "copy.target")
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Error(t, PrintCompilation(&bytes.Buffer{}, res, "xml", false))
	})
}

type unhealthyCompiler struct {
	*compiler.MultiHopFlowCompiler
}

func (unhealthyCompiler) Healthy() bool {
	return false
}

func TestHandlers(t *testing.T) {
	c := newTestCompiler(t)

	t.Run("healthz", func(t *testing.T) {
		w := httptest.NewRecorder()
		healthHandler(c).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		healthHandler(unhealthyCompiler{c}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("compile", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/v1/compile", strings.NewReader(testFlowSpec))
		r.Header.Set("Content-Type", "text/x-java-properties")
		compileHandler(c).ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
		v := &CompilationView{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
		assert.Len(t, v.Jobs, 2)
	})

	t.Run("unreachable destination", func(t *testing.T) {
		body := strings.Replace(testFlowSpec, "destinationIdentifier=HDFS-1", "destinationIdentifier=ADLS-1", 1)
		w := httptest.NewRecorder()
		compileHandler(c).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/compile", strings.NewReader(body)))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		v := &CompilationView{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
		assert.NotEmpty(t, v.Errors)
	})

	t.Run("method", func(t *testing.T) {
		w := httptest.NewRecorder()
		compileHandler(c).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/compile", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("bad body", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/v1/compile", strings.NewReader("{not json"))
		r.Header.Set("Content-Type", "application/json")
		compileHandler(c).ServeHTTP(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
