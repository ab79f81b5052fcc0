package config

import "time"

// GetDefaultConfig returns the built-in configuration: no containers, no
// manifests, no forwards, and conservative readiness timing. Everything
// interesting comes from the layered config files.
func GetDefaultConfig() Config {
	return Config{
		GlobalSettings: GlobalSettings{
			Namespace:       "default",
			LogLevel:        "info",
			BootstrapServer: "localhost:9092",
		},
		Containers: []ContainerDefinition{},
		Manifests:  []ManifestDefinition{},
		Forwards:   []ForwardDefinition{},
		Readiness: ReadinessConfig{
			Timeout:      2 * time.Minute,
			PollInterval: 5 * time.Second,
		},
	}
}
