package flowgraph

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/flyteorg/flytestdlib/errors"

	"github.com/flyteorg/flowcompiler/pkg/executor"
	"github.com/flyteorg/flowcompiler/pkg/spec"
)

// Flow edge configuration keys.
const (
	FlowEdgeSourceKey        = "flowEdge.source"
	FlowEdgeDestinationKey   = "flowEdge.destination"
	FlowEdgeNameKey          = "flowEdge.name"
	FlowEdgeIDKey            = "flowEdge.id"
	FlowEdgeTemplateDirKey   = "flowEdge.flowTemplateDirUri"
	FlowEdgeSpecExecutorsKey = "flowEdge.specExecutors"
	FlowEdgeWeightKey        = "flowEdge.weight"
	FlowEdgeIsActiveKey      = "flowEdge.isActive"
	FlowEdgeClassKey         = "flowEdge.class"

	EdgeIDSeparator = ":"

	BaseFlowEdgeType = "BaseFlowEdge"
	DefaultWeight    = 1.0
)

// FlowEdge is a directed hop between two data nodes, performed by the jobs of a flow template on one of a set of
// executors.
type FlowEdge interface {
	ID() string
	Src() string
	Dest() string
	Name() string
	Weight() float64
	SetWeight(w float64) error
	TemplateURI() string
	Executors() []executor.SpecExecutor
	IsActive() bool
	RawConfig() spec.Config
}

// EdgeID is the identity of the edge named name going from src to dest.
func EdgeID(src, dest, name string) string {
	return strings.Join([]string{src, dest, name}, EdgeIDSeparator)
}

type FlowEdgeFactory func(ctx context.Context, cfg spec.Config, executors *executor.Registry) (FlowEdge, error)

var (
	flowEdgeFactoriesMu sync.RWMutex
	flowEdgeFactories   = map[string]FlowEdgeFactory{
		BaseFlowEdgeType: newBaseFlowEdgeFromConfig,
	}
)

func RegisterFlowEdgeType(tag string, factory FlowEdgeFactory) {
	flowEdgeFactoriesMu.Lock()
	defer flowEdgeFactoriesMu.Unlock()
	flowEdgeFactories[tag] = factory
}

// NewFlowEdge instantiates the edge described by cfg, resolving its executors against the registry.
func NewFlowEdge(ctx context.Context, cfg spec.Config, executors *executor.Registry) (FlowEdge, error) {
	tag := typeTag(cfg.GetString(FlowEdgeClassKey, BaseFlowEdgeType))
	flowEdgeFactoriesMu.RLock()
	factory, ok := flowEdgeFactories[tag]
	flowEdgeFactoriesMu.RUnlock()
	if !ok {
		return nil, errors.Errorf(ErrUnknownType, "no flow edge type registered for [%s]", tag)
	}

	return factory(ctx, cfg, executors)
}

type flowEdgeDefinition struct {
	Source      string  `mapstructure:"flowEdge.source"`
	Destination string  `mapstructure:"flowEdge.destination"`
	Name        string  `mapstructure:"flowEdge.name"`
	ID          string  `mapstructure:"flowEdge.id"`
	TemplateURI string  `mapstructure:"flowEdge.flowTemplateDirUri"`
	Weight      float64 `mapstructure:"flowEdge.weight"`
	IsActive    bool    `mapstructure:"flowEdge.isActive"`
}

func newBaseFlowEdgeFromConfig(ctx context.Context, cfg spec.Config, registry *executor.Registry) (FlowEdge, error) {
	def := &flowEdgeDefinition{
		Weight:   DefaultWeight,
		IsActive: true,
	}

	if err := decodeConfig(cfg, def); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, err, "failed to decode flow edge config")
	}

	for key, v := range map[string]string{
		FlowEdgeSourceKey:      def.Source,
		FlowEdgeDestinationKey: def.Destination,
		FlowEdgeNameKey:        def.Name,
		FlowEdgeTemplateDirKey: def.TemplateURI,
	} {
		if len(v) == 0 {
			return nil, errors.Errorf(ErrInvalidConfig, "flow edge config is missing [%s]", key)
		}
	}

	id := EdgeID(def.Source, def.Destination, def.Name)
	if len(def.ID) > 0 && def.ID != id {
		return nil, errors.Errorf(ErrInvalidConfig, "flow edge id [%s] does not match [%s]", def.ID, id)
	}

	uris := cfg.GetStringList(FlowEdgeSpecExecutorsKey)
	if len(uris) == 0 {
		return nil, errors.Errorf(ErrInvalidConfig, "flow edge [%s] declares no spec executor", id)
	}

	executors := make([]executor.SpecExecutor, 0, len(uris))
	for _, uri := range uris {
		if registry == nil {
			return nil, errors.Errorf(ErrInvalidConfig, "no executor registry to resolve [%s] of flow edge [%s]", uri, id)
		}

		e, err := registry.Get(uri)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidConfig, err, "flow edge [%s]", id)
		}

		executors = append(executors, e)
	}

	return NewBaseFlowEdge(def.Source, def.Destination, def.Name, def.TemplateURI, executors, def.Weight, def.IsActive,
		cfg)
}

// BaseFlowEdge is the default FlowEdge implementation. Its weight is the only mutable attribute.
type BaseFlowEdge struct {
	id          string
	src         string
	dest        string
	name        string
	templateURI string
	executors   []executor.SpecExecutor
	active      bool
	cfg         spec.Config

	mu     sync.RWMutex
	weight float64
}

func (e *BaseFlowEdge) ID() string {
	return e.id
}

func (e *BaseFlowEdge) Src() string {
	return e.src
}

func (e *BaseFlowEdge) Dest() string {
	return e.dest
}

func (e *BaseFlowEdge) Name() string {
	return e.name
}

func (e *BaseFlowEdge) Weight() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weight
}

func (e *BaseFlowEdge) SetWeight(w float64) error {
	if err := validateWeight(w); err != nil {
		return errors.Wrapf(ErrInvalidConfig, err, "flow edge [%s]", e.id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.weight = w
	return nil
}

func (e *BaseFlowEdge) TemplateURI() string {
	return e.templateURI
}

func (e *BaseFlowEdge) Executors() []executor.SpecExecutor {
	return e.executors
}

func (e *BaseFlowEdge) IsActive() bool {
	return e.active
}

func (e *BaseFlowEdge) RawConfig() spec.Config {
	return e.cfg
}

func (e *BaseFlowEdge) String() string {
	return e.id
}

func validateWeight(w float64) error {
	if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return fmt.Errorf("invalid weight [%v], weights must be finite and non-negative", w)
	}

	return nil
}

func NewBaseFlowEdge(src, dest, name, templateURI string, executors []executor.SpecExecutor, weight float64,
	active bool, cfg spec.Config) (*BaseFlowEdge, error) {

	if err := validateWeight(weight); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, err, "flow edge [%s]", EdgeID(src, dest, name))
	}

	if cfg == nil {
		cfg = spec.Config{}
	}

	return &BaseFlowEdge{
		id:          EdgeID(src, dest, name),
		src:         src,
		dest:        dest,
		name:        name,
		templateURI: templateURI,
		executors:   executors,
		active:      active,
		cfg:         cfg.Copy(),
		weight:      weight,
	}, nil
}
