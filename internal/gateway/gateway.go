// Package gateway adapts protocol decision points to policy evaluation. Each
// decision site builds its typed input document, evaluates the matching
// entrypoint, and maps the decision back onto the call site's control flow,
// so the protocol layer needs no sandbox-specific knowledge.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/halcyon-id/halcyon/internal/policy"
)

// FailureMode selects what a decision site does when evaluation itself fails
// (trap, timeout, resource exhaustion). Policy denies are unaffected.
type FailureMode string

const (
	// FailClosed propagates the evaluation error, failing the flow. The
	// default: silently bypassing policy on sandbox failure is a security
	// regression.
	FailClosed FailureMode = "fail_closed"

	// FailOpen logs the evaluation error and allows the request.
	FailOpen FailureMode = "fail_open"
)

// Config holds the gateway's failure posture.
type Config struct {
	// DefaultFailureMode applies to every entrypoint without an override.
	// Empty means FailClosed.
	DefaultFailureMode FailureMode

	// FailureModeOverrides is keyed by entrypoint name.
	FailureModeOverrides map[string]FailureMode
}

func (c Config) mode(entrypoint string) FailureMode {
	if mode, ok := c.FailureModeOverrides[entrypoint]; ok {
		return mode
	}
	if c.DefaultFailureMode != "" {
		return c.DefaultFailureMode
	}
	return FailClosed
}

// Evaluator is the policy surface the gateway depends on.
type Evaluator interface {
	Evaluate(ctx context.Context, entrypoint string, input any) (*policy.Decision, error)
}

// Gateway translates domain requests into policy evaluations.
type Gateway struct {
	evaluator Evaluator
	config    Config
	logger    zerolog.Logger
}

// New creates a gateway over an evaluator.
func New(evaluator Evaluator, config Config, logger zerolog.Logger) *Gateway {
	return &Gateway{
		evaluator: evaluator,
		config:    config,
		logger:    logger.With().Str("component", "policy-gateway").Logger(),
	}
}

// RejectionError is a policy deny: a successful evaluation whose outcome is
// "no". It is not an internal error and carries the violation codes the
// protocol layer renders to the user.
type RejectionError struct {
	Entrypoint string
	Violations []policy.Violation
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s denied by policy: %s", e.Entrypoint, strings.Join(e.Codes(), ", "))
}

// Codes returns the violation codes in policy order.
func (e *RejectionError) Codes() []string {
	codes := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		codes[i] = v.Code
	}
	return codes
}

// AuthorizeRegistration evaluates a candidate account registration.
func (g *Gateway) AuthorizeRegistration(ctx context.Context, input RegistrationInput) error {
	return g.authorize(ctx, policy.EntrypointRegister, input)
}

// AuthorizeClientRegistration evaluates OAuth2/OIDC dynamic client
// registration metadata.
func (g *Gateway) AuthorizeClientRegistration(ctx context.Context, input ClientRegistrationInput) error {
	return g.authorize(ctx, policy.EntrypointClientRegister, input)
}

// AuthorizeGrant evaluates an authorization grant before issuance.
func (g *Gateway) AuthorizeGrant(ctx context.Context, input GrantInput) error {
	return g.authorize(ctx, policy.EntrypointAuthorizationGrant, input)
}

// AuthorizeEmailAdd evaluates attaching an email address to an account.
func (g *Gateway) AuthorizeEmailAdd(ctx context.Context, input EmailAddInput) error {
	return g.authorize(ctx, policy.EntrypointEmailAdd, input)
}

func (g *Gateway) authorize(ctx context.Context, entrypoint string, input any) error {
	decision, err := g.evaluator.Evaluate(ctx, entrypoint, input)
	if err != nil {
		// No bundle configured means enforcement is off, by configuration.
		if errors.Is(err, policy.ErrNoBundle) {
			g.logger.Debug().Str("entrypoint", entrypoint).Msg("no policy bundle, allowing")
			return nil
		}

		// Fail-open only covers sandbox failures. Contract errors are host
		// integration bugs and always propagate.
		if _, isEval := policy.IsEvaluationError(err); isEval && g.config.mode(entrypoint) == FailOpen {
			g.logger.Warn().Err(err).Str("entrypoint", entrypoint).
				Msg("policy evaluation failed, allowing (fail-open)")
			return nil
		}

		return fmt.Errorf("policy evaluation failed: %w", err)
	}

	if decision.Allowed() {
		return nil
	}

	g.logger.Info().
		Str("entrypoint", entrypoint).
		Strs("violations", decision.Codes()).
		Msg("request denied by policy")

	return &RejectionError{Entrypoint: entrypoint, Violations: decision.Violations}
}
