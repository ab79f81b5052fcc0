package config

import (
	"time"
)

// Config is the top-level configuration structure for brokerctl.
type Config struct {
	GlobalSettings GlobalSettings        `yaml:"globalSettings"`
	Containers     []ContainerDefinition `yaml:"containers"`
	Manifests      []ManifestDefinition  `yaml:"manifests"`
	Forwards       []ForwardDefinition   `yaml:"forwards"`
	Readiness      ReadinessConfig       `yaml:"readiness"`
}

// GlobalSettings carries environment-wide knobs. Every field can also be
// set through a BROKERCTL_* environment variable, which wins over both
// config files.
type GlobalSettings struct {
	KubeContext     string `yaml:"kubeContext,omitempty" envconfig:"KUBE_CONTEXT"`
	Namespace       string `yaml:"namespace,omitempty" envconfig:"NAMESPACE"`
	LogLevel        string `yaml:"logLevel,omitempty" envconfig:"LOG_LEVEL"`
	BootstrapServer string `yaml:"bootstrapServer,omitempty" envconfig:"BOOTSTRAP_SERVER"`
}

// ContainerDefinition describes one Docker container started during `up`.
type ContainerDefinition struct {
	Name        string            `yaml:"name"`
	Image       string            `yaml:"image"`
	Env         map[string]string `yaml:"env,omitempty"`
	Ports       map[int]int       `yaml:"ports,omitempty"` // container port -> host port
	Command     []string          `yaml:"command,omitempty"`
	NetworkMode string            `yaml:"networkMode,omitempty"`
	WaitForLog  string            `yaml:"waitForLog,omitempty"`  // optional startup log pattern
	WaitTimeout time.Duration     `yaml:"waitTimeout,omitempty"` // defaults to 30s when WaitForLog is set
}

// ManifestKind is the kind of Kubernetes object a manifest file holds.
type ManifestKind string

const (
	ManifestKindDeployment ManifestKind = "deployment"
	ManifestKindService    ManifestKind = "service"
)

// ManifestDefinition points at a YAML manifest applied during `up` and
// deleted during `down`. Manifests are applied in declaration order.
type ManifestDefinition struct {
	Name string       `yaml:"name"`
	Kind ManifestKind `yaml:"kind"`
	Path string       `yaml:"path"`
}

// ForwardDefinition describes one tunnel opened after readiness. Exactly
// one of PodName and Selector should be set.
type ForwardDefinition struct {
	Name       string `yaml:"name"`
	PodName    string `yaml:"podName,omitempty"`
	Selector   string `yaml:"selector,omitempty"`
	Namespace  string `yaml:"namespace,omitempty"` // defaults to the global namespace
	LocalPort  int    `yaml:"localPort"`
	RemotePort int    `yaml:"remotePort"`
}

// ReadinessConfig tunes the readiness gate run between manifest apply and
// tunnel opening. An empty Checks list falls back to the built-in Kafka
// checks.
type ReadinessConfig struct {
	Timeout      time.Duration     `yaml:"timeout,omitempty" envconfig:"READINESS_TIMEOUT"`
	PollInterval time.Duration     `yaml:"pollInterval,omitempty" envconfig:"READINESS_POLL_INTERVAL"`
	Checks       []CheckDefinition `yaml:"checks,omitempty"`
}

// CheckDefinition is one readiness check in config form. Command checks
// set Command (and optionally Expect); log checks set LogPattern.
type CheckDefinition struct {
	Name       string   `yaml:"name"`
	Command    []string `yaml:"command,omitempty"`
	Expect     string   `yaml:"expect,omitempty"`
	LogPattern string   `yaml:"logPattern,omitempty"`
}
