package weights

import (
	"time"

	"github.com/flyteorg/flytestdlib/config"

	ctrlConfig "github.com/flyteorg/flowcompiler/pkg/config"
)

//go:generate pflags Config --default-var=defaultConfig

type Type = string

const (
	TypeNoop   Type = "noop"
	TypeStatic Type = "static"
	TypeRedis  Type = "redis"
)

var (
	defaultConfig = &Config{
		Type:            TypeNoop,
		RefreshInterval: config.Duration{Duration: time.Minute},
		Redis: RedisConfig{
			Key:        "flowgraph:edge-load",
			MaxRetries: 3,
		},
	}

	configSection = ctrlConfig.MustRegisterSubSection("weights", defaultConfig)
)

type RedisConfig struct {
	HostPaths   []string `json:"hostPaths" pflag:",Redis hosts locations."`
	PrimaryName string   `json:"primaryName" pflag:",Redis primary name, only needed for sentinel setups."`
	HostKey     string   `json:"hostKey" pflag:",Key for local Redis access"`
	MaxRetries  int      `json:"maxRetries" pflag:",See Redis client options for more info"`
	Key         string   `json:"key" pflag:",Hash holding the load of every flow edge, keyed by edge id."`
}

type Config struct {
	Type            Type               `json:"type" pflag:",Which edge load source to use"`
	RefreshInterval config.Duration    `json:"refreshInterval" pflag:",How often edge weights are refreshed"`
	Redis           RedisConfig        `json:"redis" pflag:",Config for the redis load source."`
	Static          map[string]float64 `json:"static" pflag:"-,Fixed edge loads keyed by edge id."`
}

func GetConfig() *Config {
	return configSection.GetConfig().(*Config)
}

func SetConfig(cfg *Config) error {
	return configSection.SetConfig(cfg)
}
