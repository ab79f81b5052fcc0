package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/brokerctl"
	projectConfigDir = ".brokerctl"
	configFileName   = "config.yaml"

	envPrefix = "brokerctl"
)

// LoadConfig loads the brokerctl configuration by layering default, user,
// and project settings, then applying BROKERCTL_* environment overrides.
func LoadConfig() (Config, error) {
	// 1. Start with the default configuration
	config := GetDefaultConfig()

	// 2. User-specific configuration
	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional; a missing home directory is not fatal.
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	// 3. Project-specific configuration
	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	// 4. Environment overrides win over every file layer.
	if err := envconfig.Process(envPrefix, &config.GlobalSettings); err != nil {
		return Config{}, fmt.Errorf("error applying environment overrides: %w", err)
	}
	if err := envconfig.Process(envPrefix, &config.Readiness); err != nil {
		return Config{}, fmt.Errorf("error applying environment overrides: %w", err)
	}

	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a Config from a YAML file.
func loadConfigFromFile(filePath string) (Config, error) {
	var config Config
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base'. Scalar settings are
// overridden field by field; named lists are merged by name, keeping base
// declaration order and appending overlay-only entries, since containers
// and manifests are applied in order.
func mergeConfigs(base, overlay Config) Config {
	merged := base

	if overlay.GlobalSettings.KubeContext != "" {
		merged.GlobalSettings.KubeContext = overlay.GlobalSettings.KubeContext
	}
	if overlay.GlobalSettings.Namespace != "" {
		merged.GlobalSettings.Namespace = overlay.GlobalSettings.Namespace
	}
	if overlay.GlobalSettings.LogLevel != "" {
		merged.GlobalSettings.LogLevel = overlay.GlobalSettings.LogLevel
	}
	if overlay.GlobalSettings.BootstrapServer != "" {
		merged.GlobalSettings.BootstrapServer = overlay.GlobalSettings.BootstrapServer
	}

	if overlay.Readiness.Timeout != 0 {
		merged.Readiness.Timeout = overlay.Readiness.Timeout
	}
	if overlay.Readiness.PollInterval != 0 {
		merged.Readiness.PollInterval = overlay.Readiness.PollInterval
	}
	if len(overlay.Readiness.Checks) > 0 {
		// Checks replace wholesale: their order is the probe order and
		// interleaving two layers would scramble it.
		merged.Readiness.Checks = overlay.Readiness.Checks
	}

	merged.Containers = mergeContainers(merged.Containers, overlay.Containers)
	merged.Manifests = mergeManifests(merged.Manifests, overlay.Manifests)
	merged.Forwards = mergeForwards(merged.Forwards, overlay.Forwards)

	return merged
}

func mergeContainers(base, overlay []ContainerDefinition) []ContainerDefinition {
	byName := make(map[string]ContainerDefinition)
	for _, c := range overlay {
		byName[c.Name] = c
	}
	merged := make([]ContainerDefinition, 0, len(base)+len(overlay))
	seen := make(map[string]bool)
	for _, c := range base {
		if o, ok := byName[c.Name]; ok {
			merged = append(merged, o)
		} else {
			merged = append(merged, c)
		}
		seen[c.Name] = true
	}
	for _, c := range overlay {
		if !seen[c.Name] {
			merged = append(merged, c)
		}
	}
	return merged
}

func mergeManifests(base, overlay []ManifestDefinition) []ManifestDefinition {
	byName := make(map[string]ManifestDefinition)
	for _, m := range overlay {
		byName[m.Name] = m
	}
	merged := make([]ManifestDefinition, 0, len(base)+len(overlay))
	seen := make(map[string]bool)
	for _, m := range base {
		if o, ok := byName[m.Name]; ok {
			merged = append(merged, o)
		} else {
			merged = append(merged, m)
		}
		seen[m.Name] = true
	}
	for _, m := range overlay {
		if !seen[m.Name] {
			merged = append(merged, m)
		}
	}
	return merged
}

func mergeForwards(base, overlay []ForwardDefinition) []ForwardDefinition {
	byName := make(map[string]ForwardDefinition)
	for _, f := range overlay {
		byName[f.Name] = f
	}
	merged := make([]ForwardDefinition, 0, len(base)+len(overlay))
	seen := make(map[string]bool)
	for _, f := range base {
		if o, ok := byName[f.Name]; ok {
			merged = append(merged, o)
		} else {
			merged = append(merged, f)
		}
		seen[f.Name] = true
	}
	for _, f := range overlay {
		if !seen[f.Name] {
			merged = append(merged, f)
		}
	}
	return merged
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
