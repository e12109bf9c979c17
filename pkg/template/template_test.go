package template

import (
	"bytes"
	"context"
	"testing"

	"github.com/flyteorg/flytestdlib/contextutils"
	"github.com/flyteorg/flytestdlib/errors"
	"github.com/flyteorg/flytestdlib/promutils"
	"github.com/flyteorg/flytestdlib/promutils/labeled"
	"github.com/flyteorg/flytestdlib/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyteorg/flowcompiler/pkg/spec"
)

func init() {
	labeled.SetMetricKeys(contextutils.WorkflowIDKey, contextutils.JobIDKey)
}

const copyTemplate = `
name: hdfs-to-adl
description: copies files between file systems
inputDataset:
  platform: hdfs
  format: avro
outputDataset:
  platform: adls
  format: avro
  path: ${to}/copied
config:
  copy.retries: 3
  copy.paths:
    - a
    - b
  copy.source: ${source.filebased.fs.uri}${from}
jobs:
  - name: distcp
    requiredConfig:
      - from
    config:
      job.description: copy ${from} to ${to}
  - name: publish
    dependencies:
      - distcp
    forkOnConcat: true
    config:
      publish.target: ${copy.source}/published
`

func TestParse(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		tmpl, err := Parse("flowEdgeTemplates/hdfsToAdl", []byte(copyTemplate))
		require.NoError(t, err)
		assert.Equal(t, "flowEdgeTemplates/hdfsToAdl", tmpl.URI)
		assert.Equal(t, "hdfs-to-adl", tmpl.Name)
		assert.Len(t, tmpl.Jobs, 2)
		assert.Equal(t, spec.DatasetDescriptor{Platform: "adls", Format: "avro", Path: "${to}/copied"}, tmpl.OutputDataset.Descriptor())
		assert.Equal(t, "3", tmpl.RawConfig()["copy.retries"])
		assert.Equal(t, "a,b", tmpl.RawConfig()["copy.paths"])
	})

	t.Run("json", func(t *testing.T) {
		tmpl, err := Parse("t.json", []byte(`{"name": "t", "jobs": [{"name": "j"}]}`))
		require.NoError(t, err)
		assert.Equal(t, "j", tmpl.Jobs[0].Name)
		assert.Equal(t, spec.DatasetDescriptor{}, tmpl.InputDataset.Descriptor())
	})

	t.Run("invalid", func(t *testing.T) {
		for name, raw := range map[string]string{
			"no jobs":        `name: t`,
			"unnamed job":    "jobs:\n  - description: x",
			"duplicate job":  "jobs:\n  - name: a\n  - name: a",
			"unknown dep":    "jobs:\n  - name: a\n    dependencies: [b]",
			"malformed yaml": "jobs: [",
		} {
			t.Run(name, func(t *testing.T) {
				_, err := Parse("t", []byte(raw))
				assert.Error(t, err)
				assert.True(t, errors.IsCausedBy(err, ErrTemplate))
			})
		}
	})
}

func TestResolve(t *testing.T) {
	tmpl, err := Parse("t", []byte(copyTemplate))
	require.NoError(t, err)

	subs := spec.Config{
		spec.JobFromKey:        "/data/in",
		spec.JobToKey:          "/data/out",
		spec.JobSourceFsURIKey: "hdfs://nn:8020",
	}

	t.Run("substitutes placeholders", func(t *testing.T) {
		jobs, err := tmpl.Resolve(subs)
		require.NoError(t, err)
		require.Len(t, jobs, 2)

		assert.Equal(t, "distcp", jobs[0].Name)
		assert.Equal(t, "copy /data/in to /data/out", jobs[0].Config[spec.JobDescriptionKey])
		assert.False(t, jobs[0].ForkOnConcat)

		assert.Equal(t, "publish", jobs[1].Name)
		assert.Equal(t, []string{"distcp"}, jobs[1].Dependencies)
		assert.True(t, jobs[1].ForkOnConcat)
		assert.Equal(t, "hdfs://nn:8020/data/in/published", jobs[1].Config["publish.target"])
	})

	t.Run("user values win", func(t *testing.T) {
		jobs, err := tmpl.Resolve(subs.WithValue("copy.retries", "7"))
		require.NoError(t, err)
		assert.Equal(t, "7", jobs[0].Config["copy.retries"])
	})

	t.Run("missing placeholder", func(t *testing.T) {
		_, err := tmpl.Resolve(spec.Config{spec.JobFromKey: "/in"})
		assert.Error(t, err)
		assert.True(t, errors.IsCausedBy(err, ErrTemplate))
	})

	t.Run("required config", func(t *testing.T) {
		_, err := tmpl.Resolve(spec.Config{spec.JobFromKey: "", spec.JobToKey: "/o", spec.JobSourceFsURIKey: "x"})
		assert.Error(t, err)
		assert.True(t, errors.IsCausedBy(err, ErrTemplate))
	})

	t.Run("cycle", func(t *testing.T) {
		cyclic, err := Parse("c", []byte("config:\n  a: ${b}\n  b: ${a}\njobs:\n  - name: j"))
		require.NoError(t, err)
		_, err = cyclic.Resolve(spec.Config{})
		assert.Error(t, err)
	})

	t.Run("output path", func(t *testing.T) {
		p, err := tmpl.ResolveOutputPath(subs)
		assert.NoError(t, err)
		assert.Equal(t, "/data/out/copied", p)

		_, err = tmpl.ResolveOutputPath(spec.Config{})
		assert.Error(t, err)

		bare, err := Parse("b", []byte("jobs:\n  - name: j"))
		require.NoError(t, err)
		p, err = bare.ResolveOutputPath(subs)
		assert.NoError(t, err)
		assert.Empty(t, p)
	})
}

func TestPassthroughCatalog(t *testing.T) {
	ctx := context.TODO()
	scope := promutils.NewTestScope()
	store, err := storage.NewDataStore(&storage.Config{Type: storage.TypeMemory}, scope.NewSubScope("storage"))
	require.NoError(t, err)

	root := storage.DataReference("s3://bucket/templates")
	ref, err := store.ConstructReference(ctx, root, "flowEdgeTemplates", "hdfsToAdl")
	require.NoError(t, err)
	raw := []byte(copyTemplate)
	require.NoError(t, store.WriteRaw(ctx, ref, int64(len(raw)), storage.Options{}, bytes.NewReader(raw)))

	catalog := NewPassthroughCatalog(store, root)

	t.Run("relative uri", func(t *testing.T) {
		tmpl, err := catalog.GetTemplate(ctx, "flowEdgeTemplates/hdfsToAdl")
		assert.NoError(t, err)
		assert.Equal(t, "hdfs-to-adl", tmpl.Name)
	})

	t.Run("absolute uri", func(t *testing.T) {
		tmpl, err := catalog.GetTemplate(ctx, ref.String())
		assert.NoError(t, err)
		assert.Equal(t, "hdfs-to-adl", tmpl.Name)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := catalog.GetTemplate(ctx, "flowEdgeTemplates/missing")
		assert.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := catalog.GetTemplate(ctx, "")
		assert.Equal(t, ErrLocationEmpty, err)
	})

	t.Run("no root", func(t *testing.T) {
		_, err := NewPassthroughCatalog(store, "").GetTemplate(ctx, "flowEdgeTemplates/hdfsToAdl")
		assert.True(t, errors.IsCausedBy(err, ErrInvalidURI))
	})

	assert.NoError(t, catalog.Remove(ctx, "anything"))
}

func TestNewCatalog(t *testing.T) {
	ctx := context.TODO()
	store, err := storage.NewDataStore(&storage.Config{Type: storage.TypeMemory}, promutils.NewTestScope())
	require.NoError(t, err)

	for _, policy := range []Policy{PolicyActive, PolicyLRU, PolicyPassThrough} {
		t.Run(policy, func(t *testing.T) {
			c, err := NewCatalog(ctx, &Config{Policy: policy, Size: 2, Root: "s3://bucket"}, store, promutils.NewTestScope())
			assert.NoError(t, err)
			assert.NotNil(t, c)
		})
	}

	_, err = NewCatalog(ctx, &Config{}, store, promutils.NewTestScope())
	assert.Error(t, err)
}
