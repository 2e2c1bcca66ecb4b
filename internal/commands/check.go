package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/halcyon-id/halcyon/internal/policy"
)

// Check loads and validates a policy bundle, reporting its version, checksum
// and entrypoints. It exercises the exact validation the service performs at
// activation, so operators can vet a bundle before deploying it.
func (c *Controller) Check(ctx context.Context, bundlePath string) error {
	cfg, err := c.policyConfig()
	if err != nil {
		return err
	}
	if bundlePath == "" {
		bundlePath = cfg.BundlePath
	}
	if bundlePath == "" {
		return fmt.Errorf("no bundle path given and none configured")
	}

	data, err := os.ReadFile(bundlePath)
	if err != nil {
		return fmt.Errorf("failed to read bundle: %w", err)
	}

	runtime, err := policy.NewRuntime(ctx, cfg.PolicyLimits(), c.Logger)
	if err != nil {
		return err
	}
	defer runtime.Close(ctx)

	bundle, err := policy.LoadBundle(ctx, runtime, data, cfg.LoadOptions())
	if err != nil {
		return err
	}
	defer bundle.Retire(ctx)

	version := bundle.Version()
	if version == "" {
		version = "(none)"
	}

	fmt.Printf("bundle:      %s\n", bundlePath)
	fmt.Printf("version:     %s\n", version)
	fmt.Printf("checksum:    %s\n", bundle.Checksum())
	fmt.Printf("entrypoints: %s\n", strings.Join(bundle.Entrypoints(), ", "))

	return nil
}
