package spec

import (
	"fmt"
	"net/url"
)

// FlowSpec is the logical request to move a dataset from a source data node to one or more destination data nodes.
type FlowSpec struct {
	URI          string
	Version      string
	Description  string
	Config       Config
	TemplateURIs []string
}

func (f *FlowSpec) GetConfig() Config {
	if f == nil || f.Config == nil {
		return Config{}
	}

	return f.Config
}

func (f *FlowSpec) FlowGroup() string {
	return f.GetConfig().GetString(FlowGroupKey, "")
}

func (f *FlowSpec) FlowName() string {
	return f.GetConfig().GetString(FlowNameKey, "")
}

func (f *FlowSpec) Source() string {
	return f.GetConfig().GetString(FlowSourceIdentifierKey, "")
}

// Destinations returns the comma separated destination identifiers; more than one means a multicast flow.
func (f *FlowSpec) Destinations() []string {
	return f.GetConfig().GetStringList(FlowDestinationIdentifierKey)
}

func (f *FlowSpec) String() string {
	return fmt.Sprintf("FlowSpec[%s:%s]", f.FlowGroup(), f.FlowName())
}

// WithConfig returns a shallow copy of f carrying cfg.
func (f *FlowSpec) WithConfig(cfg Config) *FlowSpec {
	return &FlowSpec{
		URI:          f.URI,
		Version:      f.Version,
		Description:  f.Description,
		Config:       cfg,
		TemplateURIs: f.TemplateURIs,
	}
}

// JobSpec is one fully parameterized job of a hop.
type JobSpec struct {
	URI         string
	Version     string
	Description string
	Config      Config
	TemplateURI string
}

func (j *JobSpec) JobName() string {
	return j.Config.GetString(JobNameKey, "")
}

func (j *JobSpec) String() string {
	return fmt.Sprintf("JobSpec[%s]", j.URI)
}

// NewJobSpecURI builds the job spec uri gobblin-job:/<flowGroup>/<flowName>/<jobName>.
func NewJobSpecURI(flowGroup, flowName, jobName string) (string, error) {
	u := &url.URL{
		Scheme: "gobblin-job",
		Path:   fmt.Sprintf("/%s/%s/%s", flowGroup, flowName, jobName),
	}

	if _, err := url.Parse(u.String()); err != nil {
		return "", err
	}

	return u.String(), nil
}
