package monitor

import (
	"time"

	"github.com/flyteorg/flytestdlib/config"

	ctrlConfig "github.com/flyteorg/flowcompiler/pkg/config"
)

//go:generate pflags Config --default-var=defaultConfig

type SourceType = string

const (
	SourceTypeDirectory SourceType = "directory"
	SourceTypeConfigMap SourceType = "configmap"
)

var (
	defaultConfig = &Config{
		Source:         SourceTypeDirectory,
		ResyncInterval: config.Duration{Duration: time.Minute},
		Watch:          true,
		TriggerQPS:     1,
		TriggerBurst:   1,
		ConfigMap: ConfigMapConfig{
			Namespace: "flyte",
			Name:      "flowgraph",
		},
	}

	configSection = ctrlConfig.MustRegisterSubSection("monitor", defaultConfig)
)

type ConfigMapConfig struct {
	Namespace string `json:"namespace" pflag:",Namespace of the config map holding the graph."`
	Name      string `json:"name" pflag:",Name of the config map holding the graph."`
}

// KubeClientConfig tunes the client talking to the kube API server.
type KubeClientConfig struct {
	QPS     float32         `json:"qps" pflag:",Max QPS to the api server."`
	Burst   int             `json:"burst" pflag:",Max burst rate to the api server."`
	Timeout config.Duration `json:"timeout" pflag:",Max duration allowed for a request to the api server."`
}

type Config struct {
	Source         SourceType       `json:"source" pflag:",Where the data node and flow edge definitions are read from."`
	ResyncInterval config.Duration  `json:"resyncInterval" pflag:",Interval of the full graph resync."`
	Watch          bool             `json:"watch" pflag:",Resync when files of the graph directory change."`
	TriggerQPS     float64          `json:"triggerQPS" pflag:",Max rate of resyncs caused by file changes."`
	TriggerBurst   int              `json:"triggerBurst" pflag:",Burst of resyncs caused by file changes."`
	ConfigMap      ConfigMapConfig  `json:"configMap" pflag:",Config map source settings."`
	KubeConfigPath string           `json:"kube-config" pflag:",Path to kubernetes client config file."`
	MasterURL      string           `json:"master" pflag:",Address of the kube API server."`
	KubeConfig     KubeClientConfig `json:"kube-client-config" pflag:",Configuration to control the Kubernetes client"`
}

func GetConfig() *Config {
	return configSection.GetConfig().(*Config)
}

func SetConfig(cfg *Config) error {
	return configSection.SetConfig(cfg)
}
