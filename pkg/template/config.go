package template

import (
	ctrlConfig "github.com/flyteorg/flowcompiler/pkg/config"
)

//go:generate pflags Config --default-var=defaultConfig

type Policy = string

const (
	PolicyActive      = "Active"
	PolicyLRU         = "LRU"
	PolicyPassThrough = "PassThrough"
)

var (
	defaultConfig = &Config{
		Policy: PolicyLRU,
		Size:   1000,
		Root:   "file:///etc/flowgraph/templates",
	}

	configSection = ctrlConfig.MustRegisterSubSection("templateCatalog", defaultConfig)
)

type Config struct {
	Policy Policy `json:"policy" pflag:",Template catalog caching policy to initialize"`
	Size   int    `json:"size" pflag:",The maximum size of the LRU cache"`
	Root   string `json:"root" pflag:",Location relative template URIs are resolved against"`
}

func GetConfig() *Config {
	return configSection.GetConfig().(*Config)
}

func SetConfig(cfg *Config) error {
	return configSection.SetConfig(cfg)
}
