package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/flyteorg/flytestdlib/errors"
	"github.com/ghodss/yaml"

	"github.com/flyteorg/flowcompiler/pkg/spec"
)

const maxResolveDepth = 16

var placeholderRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// RawConfig is a template config section as written in the document. Scalars and lists are flattened to strings when
// the template is resolved.
type RawConfig map[string]interface{}

// DatasetTemplate constrains the dataset an edge consumes or produces. Empty attributes are unconstrained.
type DatasetTemplate struct {
	Platform   string `json:"platform,omitempty"`
	Format     string `json:"format,omitempty"`
	Path       string `json:"path,omitempty"`
	Encryption string `json:"encryption,omitempty"`
}

func (d *DatasetTemplate) Descriptor() spec.DatasetDescriptor {
	if d == nil {
		return spec.DatasetDescriptor{}
	}

	return spec.DatasetDescriptor{
		Platform:   d.Platform,
		Format:     d.Format,
		Path:       d.Path,
		Encryption: d.Encryption,
	}
}

// JobTemplate is one parameterized job of a hop.
type JobTemplate struct {
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Dependencies   []string  `json:"dependencies,omitempty"`
	ForkOnConcat   bool      `json:"forkOnConcat,omitempty"`
	RequiredConfig []string  `json:"requiredConfig,omitempty"`
	Config         RawConfig `json:"config,omitempty"`
}

// FlowTemplate describes the jobs performing a hop over a flow edge.
type FlowTemplate struct {
	URI           string           `json:"-"`
	Name          string           `json:"name"`
	Description   string           `json:"description,omitempty"`
	InputDataset  *DatasetTemplate `json:"inputDataset,omitempty"`
	OutputDataset *DatasetTemplate `json:"outputDataset,omitempty"`
	Config        RawConfig        `json:"config,omitempty"`
	Jobs          []JobTemplate    `json:"jobs"`
}

// ResolvedJob is a job template with every placeholder substituted.
type ResolvedJob struct {
	Name         string
	Dependencies []string
	ForkOnConcat bool
	Config       spec.Config
}

// Parse reads a YAML or JSON template document.
func Parse(uri string, raw []byte) (*FlowTemplate, error) {
	t := &FlowTemplate{}
	if err := yaml.Unmarshal(raw, t); err != nil {
		return nil, errors.Wrapf(ErrTemplate, err, "failed to parse template [%s]", uri)
	}

	t.URI = uri
	if err := t.validate(); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *FlowTemplate) validate() error {
	if len(t.Jobs) == 0 {
		return errors.Errorf(ErrTemplate, "template [%s] declares no jobs", t.URI)
	}

	names := make(map[string]struct{}, len(t.Jobs))
	for _, j := range t.Jobs {
		if len(j.Name) == 0 {
			return errors.Errorf(ErrTemplate, "template [%s] has a job without a name", t.URI)
		}

		if _, ok := names[j.Name]; ok {
			return errors.Errorf(ErrTemplate, "template [%s] declares job [%s] twice", t.URI, j.Name)
		}

		names[j.Name] = struct{}{}
	}

	for _, j := range t.Jobs {
		for _, dep := range j.Dependencies {
			if _, ok := names[dep]; !ok {
				return errors.Errorf(ErrTemplate, "job [%s] of template [%s] depends on unknown job [%s]", j.Name, t.URI, dep)
			}
		}
	}

	return nil
}

// RawConfig returns the template level configuration.
func (t *FlowTemplate) RawConfig() spec.Config {
	return flatten(t.Config)
}

// ResolveOutputPath substitutes the placeholders of the output dataset path, returns "" when the template does not
// declare one.
func (t *FlowTemplate) ResolveOutputPath(substitutions spec.Config) (string, error) {
	if t.OutputDataset == nil || len(t.OutputDataset.Path) == 0 {
		return "", nil
	}

	return substitute(t.OutputDataset.Path, substitutions, 0)
}

// Resolve merges substitutions over each job config (falling back to the template level config) and substitutes
// every ${key} placeholder. User supplied values win over template values.
func (t *FlowTemplate) Resolve(substitutions spec.Config) ([]*ResolvedJob, error) {
	templateCfg := t.RawConfig()
	res := make([]*ResolvedJob, 0, len(t.Jobs))
	for _, j := range t.Jobs {
		jobCfg, err := flatten(j.Config).WithFallback(templateCfg)
		if err != nil {
			return nil, errors.Wrapf(ErrTemplate, err, "failed to merge config of job [%s]", j.Name)
		}

		merged, err := substitutions.WithFallback(jobCfg)
		if err != nil {
			return nil, errors.Wrapf(ErrTemplate, err, "failed to merge config of job [%s]", j.Name)
		}

		resolved, err := resolveConfig(merged)
		if err != nil {
			return nil, errors.Wrapf(ErrTemplate, err, "failed to resolve job [%s] of template [%s]", j.Name, t.URI)
		}

		var missing []string
		for _, key := range j.RequiredConfig {
			if v, ok := resolved[key]; !ok || len(v) == 0 {
				missing = append(missing, key)
			}
		}

		if len(missing) > 0 {
			return nil, errors.Errorf(ErrTemplate, "job [%s] of template [%s] is missing required config %v", j.Name, t.URI, missing)
		}

		res = append(res, &ResolvedJob{
			Name:         j.Name,
			Dependencies: append([]string{}, j.Dependencies...),
			ForkOnConcat: j.ForkOnConcat || resolved.GetBool(spec.JobForkOnConcatKey, false),
			Config:       resolved,
		})
	}

	return res, nil
}

func resolveConfig(cfg spec.Config) (spec.Config, error) {
	res := make(spec.Config, len(cfg))
	var unresolved []string
	for _, k := range cfg.Keys() {
		v, err := substitute(cfg[k], cfg, 0)
		if err != nil {
			unresolved = append(unresolved, fmt.Sprintf("%s: %v", k, err))
			continue
		}

		res[k] = v
	}

	if len(unresolved) > 0 {
		return nil, fmt.Errorf("unresolved placeholders [%s]", strings.Join(unresolved, "; "))
	}

	return res, nil
}

func substitute(value string, lookup spec.Config, depth int) (string, error) {
	if depth > maxResolveDepth {
		return "", fmt.Errorf("substitution depth exceeded in [%s]", value)
	}

	var missing []string
	out := placeholderRegex.ReplaceAllStringFunc(value, func(m string) string {
		key := strings.TrimSpace(m[2 : len(m)-1])
		v, ok := lookup[key]
		if !ok {
			missing = append(missing, key)
			return m
		}

		return v
	})

	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("missing %v", missing)
	}

	if out != value && placeholderRegex.MatchString(out) {
		return substitute(out, lookup, depth+1)
	}

	return out, nil
}

func flatten(raw RawConfig) spec.Config {
	res := make(spec.Config, len(raw))
	for k, v := range raw {
		res[k] = stringify(v)
	}

	return res
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, stringify(p))
		}

		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", t)
	}
}
