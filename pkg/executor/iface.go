package executor

import (
	"context"
	"fmt"

	"github.com/flyteorg/flowcompiler/pkg/spec"
)

//go:generate mockery -all -output=mocks -case=underscore

type Health int

const (
	HealthUnknown Health = iota
	Healthy
	Unhealthy
)

func (h Health) String() string {
	return [...]string{"Unknown", "Healthy", "Unhealthy"}[h]
}

var ErrProducerNotFound = fmt.Errorf("spec producer not found")

// SpecProducer hands job specs to the execution engine behind a SpecExecutor.
type SpecProducer interface {
	AddSpec(ctx context.Context, jobSpec *spec.JobSpec) Future
	DeleteSpec(ctx context.Context, uri string) Future
	ListSpecs(ctx context.Context) Future
}

// SpecExecutor is an execution engine endpoint a hop's jobs run on. Every query returns a Future: network backed
// executors answer asynchronously.
type SpecExecutor interface {
	URI() string
	Description() string
	// Resolves to a spec.Config.
	GetConfig(ctx context.Context) Future
	// Resolves to a SpecProducer.
	GetProducer(ctx context.Context) Future
	// Resolves to a Health.
	GetHealth(ctx context.Context) Future
}
