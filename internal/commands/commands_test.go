package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-id/halcyon/internal/testutil"
)

// Test Plan for the CLI commands:
// - Check validates a bundle on disk and rejects a missing or broken one
// - Eval runs one entrypoint against a JSON document and signals denies
//   through ErrPolicyDenied
// - Schema writes the input-shape artifacts
// - An explicit config path feeds the commands their parameters

func testController(t *testing.T, configJSON string) *Controller {
	t.Helper()

	flags := &Flags{}
	if configJSON != "" {
		path := filepath.Join(t.TempDir(), "halcyon.json")
		require.NoError(t, os.WriteFile(path, []byte(configJSON), 0o644))
		flags.ConfigPath = path
	} else {
		// Pin the config so the upward search cannot pick up a stray file.
		path := filepath.Join(t.TempDir(), "halcyon.json")
		require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
		flags.ConfigPath = path
	}

	return &Controller{Flags: flags, Logger: zerolog.Nop()}
}

func writeBundle(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.wasm")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestCheck(t *testing.T) {
	t.Parallel()

	c := testController(t, `{"policy":{"entrypoints":["register"]}}`)
	path := writeBundle(t, testutil.NewPolicyModule().
		WithVersion("v1").
		Static("register", `{"violations":[]}`).
		Build())

	require.NoError(t, c.Check(context.Background(), path))
}

func TestCheck_Failures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("no bundle path anywhere", func(t *testing.T) {
		t.Parallel()
		c := testController(t, "")
		assert.ErrorContains(t, c.Check(ctx, ""), "no bundle path given")
	})

	t.Run("unreadable bundle", func(t *testing.T) {
		t.Parallel()
		c := testController(t, "")
		err := c.Check(ctx, filepath.Join(t.TempDir(), "missing.wasm"))
		assert.ErrorContains(t, err, "failed to read bundle")
	})

	t.Run("bundle missing configured entrypoints", func(t *testing.T) {
		t.Parallel()
		c := testController(t, `{"policy":{"entrypoints":["register","email_add"]}}`)
		path := writeBundle(t, testutil.AllowAllBundle("register"))
		err := c.Check(ctx, path)
		assert.ErrorContains(t, err, `missing export "policy_email_add"`)
	})
}

func TestEval(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := testController(t, "")

	bundle := writeBundle(t, testutil.NewPolicyModule().
		DenyContaining("register", `"username":"admin"`,
			`{"violations":[{"code":"reserved_username","msg":"this username is reserved"}]}`,
			`{"violations":[]}`).
		Build())

	writeInput := func(doc string) string {
		path := filepath.Join(t.TempDir(), "input.json")
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
		return path
	}

	t.Run("allowed input", func(t *testing.T) {
		err := c.Eval(ctx, bundle, "register", writeInput(`{"username":"alice"}`))
		assert.NoError(t, err)
	})

	t.Run("denied input", func(t *testing.T) {
		err := c.Eval(ctx, bundle, "register", writeInput(`{"username":"admin"}`))
		assert.ErrorIs(t, err, ErrPolicyDenied)
	})

	t.Run("invalid input document", func(t *testing.T) {
		err := c.Eval(ctx, bundle, "register", writeInput(`{not json`))
		assert.ErrorContains(t, err, "not valid JSON")
	})

	t.Run("entrypoint not exported", func(t *testing.T) {
		err := c.Eval(ctx, bundle, "client_register", writeInput(`{}`))
		assert.ErrorContains(t, err, `missing export "policy_client_register"`)
	})
}

func TestSchema(t *testing.T) {
	t.Parallel()

	c := testController(t, "")
	dir := filepath.Join(t.TempDir(), "schemas")

	require.NoError(t, c.Schema(context.Background(), dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}
