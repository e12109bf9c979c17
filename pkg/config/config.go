package config

import (
	"github.com/flyteorg/flytestdlib/config"
)

//go:generate pflags Config --default-var=defaultConfig

const configSectionKey = "flowcompiler"

var (
	defaultConfig = &Config{
		MetricsPrefix: "flyte:",
		ProfilerPort: config.Port{
			Port: 10254,
		},
		GraphDir: "/etc/flowgraph",
	}

	configSection = config.MustRegisterSection(configSectionKey, defaultConfig)
)

// Config is the top level configuration of the flow compiler service. Component specific configuration lives in
// sub-sections registered through MustRegisterSubSection.
type Config struct {
	MetricsPrefix string      `json:"metrics-prefix" pflag:",An optional prefix for all published metrics."`
	ProfilerPort  config.Port `json:"prof-port" pflag:",Profiler port"`
	GraphDir      string      `json:"graph-dir" pflag:",Directory holding the data node and flow edge definitions."`
	FlowSpecPath  string      `json:"flow-spec" pflag:",Path of a flow spec file to compile (compile command only)."`
}

func GetConfig() *Config {
	return configSection.GetConfig().(*Config)
}

func SetConfig(cfg *Config) error {
	return configSection.SetConfig(cfg)
}

func MustRegisterSubSection(subSectionKey string, section config.Config) config.Section {
	return configSection.MustRegisterSection(subSectionKey, section)
}
