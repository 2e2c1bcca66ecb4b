// Package config loads the halcyon.json configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/halcyon-id/halcyon/internal/gateway"
	"github.com/halcyon-id/halcyon/internal/policy"
)

// Config represents the halcyon.json configuration file.
type Config struct {
	Policy PolicyConfig `json:"policy"`
}

// PolicyConfig configures the policy decision core.
type PolicyConfig struct {
	// BundlePath is the compiled bundle to load. Empty disables enforcement.
	BundlePath string `json:"bundle_path"`

	// ExpectedVersion, when set, must match the bundle's declared version.
	ExpectedVersion string `json:"expected_version"`

	// Entrypoints validated at load time.
	Entrypoints []string `json:"entrypoints"`

	// Watch reloads the bundle when the file changes.
	Watch bool `json:"watch"`

	Limits LimitsConfig     `json:"limits"`
	Pool   PoolSizingConfig `json:"pool"`

	// FailureMode is "fail_closed" (default) or "fail_open"; overrides are
	// keyed by entrypoint name.
	FailureMode          string            `json:"failure_mode"`
	FailureModeOverrides map[string]string `json:"failure_mode_overrides"`
}

// LimitsConfig bounds per-evaluation resource use.
type LimitsConfig struct {
	MemoryPages   uint32 `json:"memory_pages"`
	Fuel          uint64 `json:"fuel"`
	CallTimeoutMS int    `json:"call_timeout_ms"`
}

// PoolSizingConfig bounds the instance pool.
type PoolSizingConfig struct {
	// MinIdle instances are pre-warmed at load. Zero uses the default of 1;
	// a negative value disables pre-warming.
	MinIdle      int `json:"min_idle"`
	MaxInstances int `json:"max_instances"`
}

// LoadConfig loads halcyon.json from the current directory or a parent.
func LoadConfig() (*Config, string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current directory: %w", err)
	}

	return loadConfigFromDir(dir)
}

// LoadConfigFromPath loads the configuration from a specific path.
func LoadConfigFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// Default returns a configuration with every default applied and no bundle.
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

func (c *Config) applyDefaults() {
	p := &c.Policy
	if len(p.Entrypoints) == 0 {
		p.Entrypoints = policy.StandardEntrypoints()
	}
	if p.Pool.MinIdle == 0 {
		p.Pool.MinIdle = 1
	}
	if p.Pool.MaxInstances == 0 {
		p.Pool.MaxInstances = 8
	}
	if p.FailureMode == "" {
		p.FailureMode = string(gateway.FailClosed)
	}
}

// PolicyLimits converts the configured limits, leaving runtime defaults in
// place for unset values.
func (p PolicyConfig) PolicyLimits() policy.Limits {
	return policy.Limits{
		MemoryPages:     p.Limits.MemoryPages,
		Fuel:            p.Limits.Fuel,
		MaxCallDuration: time.Duration(p.Limits.CallTimeoutMS) * time.Millisecond,
	}
}

// LoadOptions converts the configured loading and pool parameters.
func (p PolicyConfig) LoadOptions() policy.LoadOptions {
	return policy.LoadOptions{
		Entrypoints:     p.Entrypoints,
		ExpectedVersion: p.ExpectedVersion,
		MinIdle:         p.Pool.MinIdle,
		MaxInstances:    p.Pool.MaxInstances,
	}
}

// GatewayConfig converts the configured failure posture.
func (p PolicyConfig) GatewayConfig() gateway.Config {
	overrides := make(map[string]gateway.FailureMode, len(p.FailureModeOverrides))
	for entrypoint, mode := range p.FailureModeOverrides {
		overrides[entrypoint] = gateway.FailureMode(mode)
	}
	return gateway.Config{
		DefaultFailureMode:   gateway.FailureMode(p.FailureMode),
		FailureModeOverrides: overrides,
	}
}

// loadConfigFromDir searches for halcyon.json in the given directory and its
// parents.
func loadConfigFromDir(startDir string) (*Config, string, error) {
	dir := startDir
	for {
		configPath := filepath.Join(dir, "halcyon.json")
		if _, err := os.Stat(configPath); err == nil {
			config, err := LoadConfigFromPath(configPath)
			if err != nil {
				return nil, "", err
			}
			return config, dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return nil, "", fmt.Errorf("no halcyon.json found in %s or any parent directory", startDir)
}
