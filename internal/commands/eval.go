package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/halcyon-id/halcyon/internal/policy"
)

// ErrPolicyDenied is returned by Eval when the evaluation succeeds and the
// decision is a deny. Distinct from every failure so callers can map it to a
// dedicated exit code.
var ErrPolicyDenied = errors.New("request denied by policy")

// Eval evaluates one entrypoint of a bundle against a JSON input document
// and prints the decision. Meant for operator smoke-testing of bundles
// against known inputs.
func (c *Controller) Eval(ctx context.Context, bundlePath, entrypoint, inputPath string) error {
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

	inputData, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read input document: %w", err)
	}
	var input any
	if err := json.Unmarshal(inputData, &input); err != nil {
		return fmt.Errorf("input document is not valid JSON: %w", err)
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

	opts := cfg.LoadOptions()
	opts.Entrypoints = []string{entrypoint}

	bundle, err := policy.LoadBundle(ctx, runtime, data, opts)
	if err != nil {
		return err
	}
	defer bundle.Retire(ctx)

	decision, err := bundle.Evaluate(ctx, entrypoint, input)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(decision, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !decision.Allowed() {
		return ErrPolicyDenied
	}
	return nil
}
