package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyteorg/flowcompiler/pkg/dag"
	"github.com/flyteorg/flowcompiler/pkg/executor"
	"github.com/flyteorg/flowcompiler/pkg/spec"
	"github.com/flyteorg/flowcompiler/pkg/template"
)

var testFlow = &spec.FlowSpec{
	Version:     "1",
	Description: "test flow",
	Config: spec.Config{
		spec.FlowGroupKey: "group",
		spec.FlowNameKey:  "flow",
	},
}

func newPlan(t *testing.T, name string, deps []string, fork bool) *JobExecutionPlan {
	p, err := NewJobExecutionPlan(testFlow, &template.ResolvedJob{
		Name:         name,
		Dependencies: deps,
		ForkOnConcat: fork,
		Config:       spec.Config{"k": "v"},
	}, "A:B:copy", "templates/copy", "", executor.NewInMemorySpecExecutor("local://e", nil))
	require.NoError(t, err)
	return p
}

func TestNewJobExecutionPlan(t *testing.T) {
	p := newPlan(t, "publish", []string{"distcp"}, true)

	assert.Equal(t, "group_flow_publish_A-B-copy", p.JobName())
	assert.Equal(t, "gobblin-job:///group/flow/group_flow_publish_A-B-copy", p.JobSpec.URI)
	assert.Equal(t, []string{"group_flow_distcp_A-B-copy"}, p.Dependencies())
	assert.True(t, p.ForkOnConcat())
	assert.Equal(t, "A:B:copy", p.JobSpec.Config[spec.FlowEdgeIDKey])
	assert.Equal(t, "templates/copy", p.JobSpec.TemplateURI)
	assert.Equal(t, "group", p.JobSpec.Config[spec.JobGroupKey])
	assert.Equal(t, "v", p.JobSpec.Config["k"])
	assert.Equal(t, "test flow", p.JobSpec.Description)
	assert.Equal(t, ExecutionStatusPending, p.ExecutionStatus)
	assert.Equal(t, "PENDING", p.ExecutionStatus.String())
	assert.Equal(t, "group_flow_publish_A-B-copy@local://e", p.String())

	_, err := NewJobExecutionPlan(testFlow, nil, "e", "t", "", nil)
	assert.Error(t, err)
}

func TestNewJobExecutionPlan_DatasetTag(t *testing.T) {
	newTagged := func(tag string) *JobExecutionPlan {
		p, err := NewJobExecutionPlan(testFlow, &template.ResolvedJob{
			Name:         "publish",
			Dependencies: []string{"distcp"},
		}, "A:B:copy", "templates/copy", tag, nil)
		require.NoError(t, err)
		return p
	}

	a := newTagged(DatasetTag("/data/a", "/data/a"))
	b := newTagged(DatasetTag("/data/b", "/data/b"))
	assert.NotEqual(t, a.JobName(), b.JobName())
	assert.NotEqual(t, a.JobSpec.URI, b.JobSpec.URI)

	tag := DatasetTag("/data/a", "/data/a")
	assert.Equal(t, "group_flow_publish_A-B-copy_"+tag, a.JobName())
	assert.Equal(t, []string{"group_flow_distcp_A-B-copy_" + tag}, a.Dependencies())
	assert.Equal(t, a.JobName(), a.JobSpec.Config[spec.JobNameKey])
}

func TestDatasetTag(t *testing.T) {
	assert.Empty(t, DatasetTag("", ""))
	assert.Len(t, DatasetTag("/data/a", ""), 8)
	assert.Equal(t, DatasetTag("/data/a", "/out/a"), DatasetTag("/data/a", "/out/a"))
	assert.NotEqual(t, DatasetTag("/data/a", "/out/a"), DatasetTag("/data/a", "/out/b"))
	assert.NotEqual(t, DatasetTag("/data/ab", ""), DatasetTag("/data/a", "b"))
}

func TestNewJobExecutionPlanDag(t *testing.T) {
	t.Run("dependencies", func(t *testing.T) {
		extract := newPlan(t, "extract", nil, false)
		distcp := newPlan(t, "distcp", []string{"extract"}, false)
		publish := newPlan(t, "publish", []string{"distcp"}, true)
		audit := newPlan(t, "audit", []string{"extract"}, false)

		d, err := NewJobExecutionPlanDag([]*JobExecutionPlan{publish, distcp, extract, audit})
		require.NoError(t, err)
		assert.Len(t, d.Nodes(), 4)
		require.Len(t, d.StartNodes(), 1)
		assert.Equal(t, extract, d.StartNodes()[0].Value())
		assert.Len(t, d.EndNodes(), 2)
		assert.Len(t, d.Children(d.StartNodes()[0]), 2)

		forks := ForkNodes(d)
		require.Len(t, forks, 1)
		assert.Equal(t, publish, forks[0].Value())

		var order []string
		assert.NoError(t, dag.Walk[*JobExecutionPlan](d, func(n *dag.Node[*JobExecutionPlan]) error {
			order = append(order, n.Value().JobName())
			return nil
		}))
		assert.Equal(t, extract.JobName(), order[0])
		assert.Len(t, order, 4)
	})

	t.Run("unknown dependency", func(t *testing.T) {
		_, err := NewJobExecutionPlanDag([]*JobExecutionPlan{newPlan(t, "a", []string{"b"}, false)})
		assert.Error(t, err)
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := NewJobExecutionPlanDag([]*JobExecutionPlan{newPlan(t, "a", nil, false), newPlan(t, "a", nil, false)})
		assert.Error(t, err)
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := NewJobExecutionPlanDag([]*JobExecutionPlan{
			newPlan(t, "a", []string{"b"}, false),
			newPlan(t, "b", []string{"a"}, false),
		})
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		d, err := NewJobExecutionPlanDag(nil)
		assert.NoError(t, err)
		assert.True(t, d.IsEmpty())
	})
}
