// Package config loads the brokerctl configuration by layering defaults,
// the user config (~/.config/brokerctl/config.yaml), the project config
// (./.brokerctl/config.yaml), and finally BROKERCTL_* environment
// variables on top of the global settings.
package config
