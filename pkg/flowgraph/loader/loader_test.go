package loader

import (
	"testing"
	"testing/fstest"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyteorg/flowcompiler/pkg/flowgraph"
	"github.com/flyteorg/flowcompiler/pkg/spec"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindDataNode, KindOf("HDFS-1/HDFS-1.properties"))
	assert.Equal(t, KindFlowEdge, KindOf("/HDFS-1/HDFS-3/copy.properties"))
	assert.Equal(t, KindUnknown, KindOf("README.md"))
	assert.Equal(t, KindUnknown, KindOf("a/b/c/d.yaml"))
}

func TestDecode(t *testing.T) {
	t.Run("properties", func(t *testing.T) {
		cfg, err := Decode("n.properties", []byte("data.node.id=HDFS-1\nfs.uri=hdfs://nn:8020\ntemplate.path=${from}/out\n"))
		require.NoError(t, err)
		assert.Equal(t, spec.Config{
			"data.node.id":  "HDFS-1",
			"fs.uri":        "hdfs://nn:8020",
			"template.path": "${from}/out",
		}, cfg)
	})

	t.Run("yaml", func(t *testing.T) {
		cfg, err := Decode("e.yaml", []byte(`
flowEdge:
  source: a
  weight: 0.5
  isActive: true
  specExecutors:
    - local://one
    - local://two
`))
		require.NoError(t, err)
		assert.Equal(t, spec.Config{
			"flowEdge.source":        "a",
			"flowEdge.weight":        "0.5",
			"flowEdge.isActive":      "true",
			"flowEdge.specExecutors": "local://one,local://two",
		}, cfg)
	})

	t.Run("json", func(t *testing.T) {
		cfg, err := Decode("n.json", []byte(`{"data.node.id": "n"}`))
		require.NoError(t, err)
		assert.Equal(t, "n", cfg["data.node.id"])
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := Decode("n.txt", nil)
		assert.Equal(t, ErrUnsupportedFormat, errors.Cause(err))
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := Decode("n.yaml", []byte("a: ["))
		assert.Error(t, err)
	})
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"LocalFS-1/LocalFS-1.properties":          {Data: []byte("fs.uri=file:///\n")},
		"HDFS-1/node.yaml":                        {Data: []byte("data.node.id: HDFS-1\nfs.uri: hdfs://nn:8020\n")},
		"LocalFS-1/HDFS-1/localToHdfs.properties": {Data: []byte("flowEdge.flowTemplateDirUri=templates/localToHdfs\n")},
		"HDFS-1/HDFS-1/convert.yaml":              {Data: []byte("flowEdge:\n  name: convert\n  weight: 2\n")},
		"README.md":                               {Data: []byte("ignored")},
		".git/objects/ab/cd.properties":           {Data: []byte("ignored=true")},
		"LocalFS-1/HDFS-1/notes.txt":              {Data: []byte("ignored")},
	}

	defs, err := LoadFS(fsys)
	require.NoError(t, err)
	assert.Len(t, defs.Nodes, 2)
	assert.Equal(t, "LocalFS-1", defs.Nodes["LocalFS-1"][flowgraph.DataNodeIDKey])
	assert.Equal(t, "hdfs://nn:8020", defs.Nodes["HDFS-1"][flowgraph.DataNodeFsURIKey])

	require.Len(t, defs.Edges, 2)
	edge := defs.Edges["LocalFS-1:HDFS-1:localToHdfs"]
	assert.Equal(t, "LocalFS-1", edge[flowgraph.FlowEdgeSourceKey])
	assert.Equal(t, "HDFS-1", edge[flowgraph.FlowEdgeDestinationKey])
	assert.Equal(t, "localToHdfs", edge[flowgraph.FlowEdgeNameKey])
	assert.Equal(t, "2", defs.Edges["HDFS-1:HDFS-1:convert"][flowgraph.FlowEdgeWeightKey])

	t.Run("mismatched location", func(t *testing.T) {
		_, err := LoadFS(fstest.MapFS{"a/node.properties": {Data: []byte("data.node.id=b\n")}})
		assert.Error(t, err)
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := LoadFS(fstest.MapFS{
			"a/one.properties": {Data: []byte("data.node.id=a\n")},
			"a/two.yaml":       {Data: []byte("data.node.id: a\n")},
		})
		assert.Error(t, err)
	})
}
