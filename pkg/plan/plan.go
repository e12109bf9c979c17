package plan

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/flyteorg/flowcompiler/pkg/executor"
	"github.com/flyteorg/flowcompiler/pkg/spec"
	"github.com/flyteorg/flowcompiler/pkg/template"
)

type ExecutionStatus int

const (
	ExecutionStatusUnknown ExecutionStatus = iota
	ExecutionStatusPending
	ExecutionStatusRunning
	ExecutionStatusComplete
	ExecutionStatusFailed
	ExecutionStatusCancelled
)

func (s ExecutionStatus) String() string {
	switch s {
	case ExecutionStatusPending:
		return "PENDING"
	case ExecutionStatusRunning:
		return "RUNNING"
	case ExecutionStatusComplete:
		return "COMPLETE"
	case ExecutionStatusFailed:
		return "FAILED"
	case ExecutionStatusCancelled:
		return "CANCELLED"
	}

	return "UNKNOWN"
}

// JobExecutionPlan binds a fully resolved JobSpec to the executor that will run it.
type JobExecutionPlan struct {
	JobSpec         *spec.JobSpec
	SpecExecutor    executor.SpecExecutor
	ExecutionStatus ExecutionStatus
	FailedAttempts  int
}

func (p *JobExecutionPlan) JobName() string {
	return p.JobSpec.JobName()
}

// Dependencies returns the full names of the jobs of the same hop this plan waits for.
func (p *JobExecutionPlan) Dependencies() []string {
	return p.JobSpec.Config.GetStringList(spec.JobDependenciesKey)
}

// ForkOnConcat reports whether the next hop may start without waiting for this job.
func (p *JobExecutionPlan) ForkOnConcat() bool {
	return p.JobSpec.Config.GetBool(spec.JobForkOnConcatKey, false)
}

func (p *JobExecutionPlan) String() string {
	uri := ""
	if p.SpecExecutor != nil {
		uri = p.SpecExecutor.URI()
	}

	return fmt.Sprintf("%s@%s", p.JobName(), uri)
}

// JobName qualifies a template job name with its flow, the edge it runs on and the dataset tag of the hop, so jobs
// stay unique within a compiled flow that moves several datasets over the same edges.
func JobName(flowGroup, flowName, jobName, edgeID, datasetTag string) string {
	parts := []string{flowGroup, flowName, jobName, sanitize(edgeID)}
	if len(datasetTag) > 0 {
		parts = append(parts, datasetTag)
	}

	return strings.Join(parts, spec.JobNameComponentSep)
}

// DatasetTag hashes the paths a hop reads and writes. It is empty when the hop names neither.
func DatasetTag(inputPath, outputPath string) string {
	if len(inputPath) == 0 && len(outputPath) == 0 {
		return ""
	}

	hash := fnv.New32a()
	for _, p := range []string{inputPath, "\x00", outputPath} {
		if _, err := hash.Write([]byte(p)); err != nil {
			return ""
		}
	}

	return fmt.Sprintf("%08x", hash.Sum32())
}

func sanitize(s string) string {
	return strings.NewReplacer(":", "-", "/", "-", " ", "-").Replace(s)
}

// NewJobExecutionPlan creates the plan for one resolved template job of the hop over edgeID. datasetTag is shared by
// every job of the hop, see DatasetTag.
func NewJobExecutionPlan(flowSpec *spec.FlowSpec, job *template.ResolvedJob, edgeID, templateURI, datasetTag string,
	e executor.SpecExecutor) (*JobExecutionPlan, error) {

	if job == nil {
		return nil, fmt.Errorf("nil job for edge [%s]", edgeID)
	}

	flowGroup := flowSpec.FlowGroup()
	flowName := flowSpec.FlowName()
	name := JobName(flowGroup, flowName, job.Name, edgeID, datasetTag)
	uri, err := spec.NewJobSpecURI(flowGroup, flowName, name)
	if err != nil {
		return nil, err
	}

	cfg := job.Config.Copy()
	cfg[spec.JobNameKey] = name
	cfg[spec.JobGroupKey] = flowGroup
	cfg[spec.FlowEdgeIDKey] = edgeID
	cfg[spec.JobTemplatePathKey] = templateURI
	cfg[spec.JobForkOnConcatKey] = fmt.Sprintf("%t", job.ForkOnConcat)
	if len(job.Dependencies) > 0 {
		deps := make([]string, 0, len(job.Dependencies))
		for _, d := range job.Dependencies {
			deps = append(deps, JobName(flowGroup, flowName, d, edgeID, datasetTag))
		}

		cfg[spec.JobDependenciesKey] = strings.Join(deps, ",")
	} else {
		delete(cfg, spec.JobDependenciesKey)
	}

	return &JobExecutionPlan{
		JobSpec: &spec.JobSpec{
			URI:         uri,
			Version:     flowSpec.Version,
			Description: cfg.GetString(spec.JobDescriptionKey, flowSpec.Description),
			Config:      cfg,
			TemplateURI: templateURI,
		},
		SpecExecutor:    e,
		ExecutionStatus: ExecutionStatusPending,
	}, nil
}
