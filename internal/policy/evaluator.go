package policy

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Evaluator holds the atomically-swappable current bundle. Each evaluation
// snapshots the reference once, so it binds to exactly one bundle for its
// whole duration; swapping affects only evaluations issued afterwards.
//
// Running without a bundle is a valid configuration state: Evaluate then
// returns ErrNoBundle and callers treat enforcement as disabled.
type Evaluator struct {
	current atomic.Pointer[Bundle]
	logger  zerolog.Logger
}

// NewEvaluator creates an evaluator with no bundle loaded.
func NewEvaluator(logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.With().Str("component", "policy-evaluator").Logger(),
	}
}

// Enabled reports whether a bundle is currently published.
func (e *Evaluator) Enabled() bool {
	return e.current.Load() != nil
}

// Current returns the currently published bundle, or nil.
func (e *Evaluator) Current() *Bundle {
	return e.current.Load()
}

// Swap publishes bundle for future evaluations and returns the previous one.
// The caller retires the returned bundle once it no longer needs it;
// evaluations already in flight keep using it undisturbed.
func (e *Evaluator) Swap(bundle *Bundle) *Bundle {
	previous := e.current.Swap(bundle)

	event := e.logger.Info()
	if bundle != nil {
		event = event.Str("version", bundle.Version()).Str("checksum", bundle.Checksum())
	}
	event.Bool("enabled", bundle != nil).Msg("policy bundle published")

	return previous
}

// Evaluate runs an entrypoint against the currently published bundle.
func (e *Evaluator) Evaluate(ctx context.Context, entrypoint string, input any) (*Decision, error) {
	bundle := e.current.Load()
	if bundle == nil {
		return nil, ErrNoBundle
	}
	return bundle.Evaluate(ctx, entrypoint, input)
}

// Close retires the current bundle, if any, and unpublishes it.
func (e *Evaluator) Close(ctx context.Context) error {
	if previous := e.current.Swap(nil); previous != nil {
		return previous.Retire(ctx)
	}
	return nil
}
