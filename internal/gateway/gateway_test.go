package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-id/halcyon/internal/policy"
)

// Test Plan for Gateway:
// - An allow decision passes the request through
// - A deny decision surfaces as a RejectionError carrying the codes
// - No configured bundle means no enforcement
// - Fail-closed propagates sandbox failures; fail-open allows them
// - Contract errors propagate regardless of failure mode
// - Failure-mode overrides apply per entrypoint

// mockEvaluator returns canned results and records what it was asked.
type mockEvaluator struct {
	decision   *policy.Decision
	err        error
	entrypoint string
	input      any
}

func (m *mockEvaluator) Evaluate(_ context.Context, entrypoint string, input any) (*policy.Decision, error) {
	m.entrypoint = entrypoint
	m.input = input
	if m.err != nil {
		return nil, m.err
	}
	return m.decision, nil
}

func newGateway(eval *mockEvaluator, config Config) *Gateway {
	return New(eval, config, zerolog.Nop())
}

func TestGateway_Allow(t *testing.T) {
	t.Parallel()

	eval := &mockEvaluator{decision: &policy.Decision{}}
	g := newGateway(eval, Config{})

	input := RegistrationInput{Username: "alice", Email: "alice@example.com"}
	require.NoError(t, g.AuthorizeRegistration(context.Background(), input))

	assert.Equal(t, policy.EntrypointRegister, eval.entrypoint)
	assert.Equal(t, input, eval.input)
}

func TestGateway_Deny(t *testing.T) {
	t.Parallel()

	eval := &mockEvaluator{decision: &policy.Decision{Violations: []policy.Violation{
		{Code: "username_too_short", Message: "username must be longer"},
		{Code: "email_domain_banned", Message: "email domain not allowed"},
	}}}
	g := newGateway(eval, Config{})

	err := g.AuthorizeRegistration(context.Background(), RegistrationInput{Username: "x"})
	require.Error(t, err)

	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, policy.EntrypointRegister, rejection.Entrypoint)
	assert.Equal(t, []string{"username_too_short", "email_domain_banned"}, rejection.Codes())
	assert.Contains(t, err.Error(), "register denied by policy")
}

func TestGateway_NoBundleAllows(t *testing.T) {
	t.Parallel()

	eval := &mockEvaluator{err: policy.ErrNoBundle}

	// Even under fail-closed: an absent bundle is configuration, not failure.
	g := newGateway(eval, Config{DefaultFailureMode: FailClosed})
	assert.NoError(t, g.AuthorizeEmailAdd(context.Background(), EmailAddInput{Email: "a@b.test"}))
}

func TestGateway_FailureModes(t *testing.T) {
	t.Parallel()

	sandboxErr := &policy.EvaluationError{
		Kind:       policy.EvalTimeout,
		Entrypoint: policy.EntrypointAuthorizationGrant,
		Err:        context.DeadlineExceeded,
	}

	t.Run("fail-closed propagates sandbox failures", func(t *testing.T) {
		t.Parallel()
		g := newGateway(&mockEvaluator{err: sandboxErr}, Config{})

		err := g.AuthorizeGrant(context.Background(), GrantInput{Scope: "openid"})
		require.Error(t, err)
		var evalErr *policy.EvaluationError
		assert.ErrorAs(t, err, &evalErr)
	})

	t.Run("fail-open allows sandbox failures", func(t *testing.T) {
		t.Parallel()
		g := newGateway(&mockEvaluator{err: sandboxErr}, Config{DefaultFailureMode: FailOpen})

		assert.NoError(t, g.AuthorizeGrant(context.Background(), GrantInput{Scope: "openid"}))
	})

	t.Run("fail-open never covers contract errors", func(t *testing.T) {
		t.Parallel()
		for _, contractErr := range []error{
			policy.ErrUnknownEntrypoint,
			policy.ErrInvalidInput,
			policy.ErrBundleRetired,
			errors.New("connection refused"),
		} {
			g := newGateway(&mockEvaluator{err: contractErr}, Config{DefaultFailureMode: FailOpen})
			err := g.AuthorizeGrant(context.Background(), GrantInput{})
			assert.ErrorIs(t, err, contractErr)
		}
	})

	t.Run("per-entrypoint override wins", func(t *testing.T) {
		t.Parallel()
		config := Config{
			DefaultFailureMode: FailClosed,
			FailureModeOverrides: map[string]FailureMode{
				policy.EntrypointAuthorizationGrant: FailOpen,
			},
		}

		g := newGateway(&mockEvaluator{err: sandboxErr}, config)
		assert.NoError(t, g.AuthorizeGrant(context.Background(), GrantInput{}))

		registerErr := &policy.EvaluationError{
			Kind:       policy.EvalTrap,
			Entrypoint: policy.EntrypointRegister,
			Err:        errors.New("unreachable"),
		}
		g = newGateway(&mockEvaluator{err: registerErr}, config)
		assert.Error(t, g.AuthorizeRegistration(context.Background(), RegistrationInput{}))
	})
}

func TestGateway_EntrypointRouting(t *testing.T) {
	t.Parallel()

	cases := []struct {
		entrypoint string
		call       func(g *Gateway) error
	}{
		{policy.EntrypointRegister, func(g *Gateway) error {
			return g.AuthorizeRegistration(context.Background(), RegistrationInput{})
		}},
		{policy.EntrypointClientRegister, func(g *Gateway) error {
			return g.AuthorizeClientRegistration(context.Background(), ClientRegistrationInput{})
		}},
		{policy.EntrypointAuthorizationGrant, func(g *Gateway) error {
			return g.AuthorizeGrant(context.Background(), GrantInput{})
		}},
		{policy.EntrypointEmailAdd, func(g *Gateway) error {
			return g.AuthorizeEmailAdd(context.Background(), EmailAddInput{})
		}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.entrypoint, func(t *testing.T) {
			t.Parallel()
			eval := &mockEvaluator{decision: &policy.Decision{}}
			require.NoError(t, tc.call(newGateway(eval, Config{})))
			assert.Equal(t, tc.entrypoint, eval.entrypoint)
		})
	}
}
