package compiler

import (
	"time"

	"github.com/flyteorg/flytestdlib/config"

	ctrlConfig "github.com/flyteorg/flowcompiler/pkg/config"
	"github.com/flyteorg/flowcompiler/pkg/flowgraph"
)

//go:generate pflags Config --default-var=defaultConfig

var (
	defaultConfig = &Config{
		PathFinder:            flowgraph.DijkstraPathFinderType,
		ReadyTimeout:          config.Duration{Duration: 5 * time.Second},
		HealthCheckTimeout:    config.Duration{Duration: flowgraph.DefaultHealthCheckTimeout},
		MaxConcurrentSearches: 4,
	}

	configSection = ctrlConfig.MustRegisterSubSection("compiler", defaultConfig)
)

type Config struct {
	PathFinder            string          `json:"pathFinder" pflag:",Path finder used when a flow does not name one."`
	ReadyTimeout          config.Duration `json:"readyTimeout" pflag:",Max wait for the graph monitor to become healthy on startup."`
	HealthCheckTimeout    config.Duration `json:"healthCheckTimeout" pflag:",Bound of the executor health and config lookups during path resolution."`
	MaxConcurrentSearches int             `json:"maxConcurrentSearches" pflag:",Max datasets of a flow searched concurrently."`
}

func GetConfig() *Config {
	return configSection.GetConfig().(*Config)
}

func SetConfig(cfg *Config) error {
	return configSection.SetConfig(cfg)
}
