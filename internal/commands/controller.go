// Package commands contains the CLI commands for the application.
package commands

import (
	"github.com/rs/zerolog"

	"github.com/halcyon-id/halcyon/internal/config"
)

type Flags struct {
	LogLevel   string
	ConfigPath string
}

type Controller struct {
	Flags  *Flags
	Logger zerolog.Logger
}

// policyConfig resolves the policy configuration: an explicit --config path
// wins, then a halcyon.json found from the working directory, then defaults.
func (c *Controller) policyConfig() (config.PolicyConfig, error) {
	if c.Flags != nil && c.Flags.ConfigPath != "" {
		cfg, err := config.LoadConfigFromPath(c.Flags.ConfigPath)
		if err != nil {
			return config.PolicyConfig{}, err
		}
		return cfg.Policy, nil
	}

	if cfg, _, err := config.LoadConfig(); err == nil {
		return cfg.Policy, nil
	}

	return config.Default().Policy, nil
}
