package executor

import (
	"time"

	"github.com/flyteorg/flytestdlib/config"

	ctrlConfig "github.com/flyteorg/flowcompiler/pkg/config"
)

//go:generate pflags Config --default-var=defaultConfig

type Type = string

const (
	TypeInMemory Type = "InMemory"
	TypeGRPC     Type = "GRPC"
)

var (
	defaultConfig = &Config{
		HealthCheckTimeout: config.Duration{Duration: 5 * time.Second},
		HealthCacheTTL:     config.Duration{Duration: 30 * time.Second},
		MaxRetries:         3,
		Executors: []ExecutorConfig{
			{
				URI:  "local://executor",
				Type: TypeInMemory,
			},
		},
	}

	configSection = ctrlConfig.MustRegisterSubSection("executors", defaultConfig)
)

type ExecutorConfig struct {
	URI         string            `json:"uri" pflag:",Identity of the executor referenced by flow edges."`
	Type        Type              `json:"type" pflag:",Executor implementation to initialize."`
	Endpoint    string            `json:"endpoint" pflag:",Address of a remote executor."`
	ServiceName string            `json:"serviceName" pflag:",Service name reported by the remote health service."`
	Config      map[string]string `json:"config" pflag:"-"`
}

type Config struct {
	HealthCheckTimeout config.Duration  `json:"healthCheckTimeout" pflag:",Timeout of a single remote health check."`
	HealthCacheTTL     config.Duration  `json:"healthCacheTTL" pflag:",How long a remote health answer is reused."`
	MaxRetries         uint             `json:"maxRetries" pflag:",Retries of remote calls."`
	Executors          []ExecutorConfig `json:"executors" pflag:"-"`
}

func GetConfig() *Config {
	return configSection.GetConfig().(*Config)
}

func SetConfig(cfg *Config) error {
	return configSection.SetConfig(cfg)
}
