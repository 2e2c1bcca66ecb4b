package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-id/halcyon/internal/gateway"
	"github.com/halcyon-id/halcyon/internal/policy"
)

// Test Plan for configuration loading:
// - A full halcyon.json round-trips into the typed config
// - Defaults fill in everything a minimal file omits
// - The upward search finds halcyon.json in a parent directory
// - The converters map config onto policy and gateway parameters

const fullConfig = `{
  "policy": {
    "bundle_path": "/srv/policies/policy.wasm",
    "expected_version": "2026-08",
    "entrypoints": ["register", "email_add"],
    "watch": true,
    "limits": {
      "memory_pages": 64,
      "fuel": 250000,
      "call_timeout_ms": 100
    },
    "pool": {
      "min_idle": 2,
      "max_instances": 16
    },
    "failure_mode": "fail_closed",
    "failure_mode_overrides": {
      "email_add": "fail_open"
    }
  }
}`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "halcyon.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFromPath(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), fullConfig)

	config, err := LoadConfigFromPath(path)
	require.NoError(t, err)

	p := config.Policy
	assert.Equal(t, "/srv/policies/policy.wasm", p.BundlePath)
	assert.Equal(t, "2026-08", p.ExpectedVersion)
	assert.Equal(t, []string{"register", "email_add"}, p.Entrypoints)
	assert.True(t, p.Watch)
	assert.Equal(t, uint32(64), p.Limits.MemoryPages)
	assert.Equal(t, uint64(250000), p.Limits.Fuel)
	assert.Equal(t, 100, p.Limits.CallTimeoutMS)
	assert.Equal(t, 2, p.Pool.MinIdle)
	assert.Equal(t, 16, p.Pool.MaxInstances)
}

func TestLoadConfigFromPath_Defaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), `{"policy": {"bundle_path": "policy.wasm"}}`)

	config, err := LoadConfigFromPath(path)
	require.NoError(t, err)

	p := config.Policy
	assert.Equal(t, policy.StandardEntrypoints(), p.Entrypoints)
	assert.Equal(t, 1, p.Pool.MinIdle)
	assert.Equal(t, 8, p.Pool.MaxInstances)
	assert.Equal(t, string(gateway.FailClosed), p.FailureMode)
	assert.False(t, p.Watch)
}

// Test: an explicit negative min_idle disables pre-warming instead of being
// overwritten by the default
func TestLoadConfigFromPath_DisabledPrewarm(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(),
		`{"policy": {"pool": {"min_idle": -1, "max_instances": 4}}}`)

	config, err := LoadConfigFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, -1, config.Policy.Pool.MinIdle)
	assert.Equal(t, -1, config.Policy.LoadOptions().MinIdle)
}

func TestLoadConfigFromPath_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadConfigFromPath(filepath.Join(t.TempDir(), "halcyon.json"))
	assert.ErrorContains(t, err, "failed to read config file")

	path := writeConfig(t, t.TempDir(), "{not json")
	_, err = LoadConfigFromPath(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoadConfig_SearchesParents(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeConfig(t, root, fullConfig)
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	config, foundDir, err := loadConfigFromDir(nested)
	require.NoError(t, err)
	assert.Equal(t, root, foundDir)
	assert.Equal(t, "/srv/policies/policy.wasm", config.Policy.BundlePath)

	_, _, err = loadConfigFromDir(filepath.Join(t.TempDir(), "empty"))
	assert.ErrorContains(t, err, "no halcyon.json found")
}

func TestPolicyConfig_Converters(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), fullConfig)
	config, err := LoadConfigFromPath(path)
	require.NoError(t, err)
	p := config.Policy

	limits := p.PolicyLimits()
	assert.Equal(t, uint32(64), limits.MemoryPages)
	assert.Equal(t, uint64(250000), limits.Fuel)
	assert.Equal(t, 100*time.Millisecond, limits.MaxCallDuration)

	opts := p.LoadOptions()
	assert.Equal(t, []string{"register", "email_add"}, opts.Entrypoints)
	assert.Equal(t, "2026-08", opts.ExpectedVersion)
	assert.Equal(t, 2, opts.MinIdle)
	assert.Equal(t, 16, opts.MaxInstances)

	gc := p.GatewayConfig()
	assert.Equal(t, gateway.FailClosed, gc.DefaultFailureMode)
	assert.Equal(t, gateway.FailOpen, gc.FailureModeOverrides["email_add"])
}

func TestDefault(t *testing.T) {
	t.Parallel()

	config := Default()
	assert.Empty(t, config.Policy.BundlePath)
	assert.Equal(t, policy.StandardEntrypoints(), config.Policy.Entrypoints)
	assert.Equal(t, string(gateway.FailClosed), config.Policy.FailureMode)
}
