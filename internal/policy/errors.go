package policy

import (
	"errors"
	"fmt"
)

var (
	// Load-time errors. Permanent for the offered bytes; a previously active
	// bundle stays in force.
	ErrEmptyBundle     = errors.New("bundle bytes cannot be empty")
	ErrVersionMismatch = errors.New("bundle version mismatch")

	// Contract errors. Integration bugs in the host, not policy failures.
	ErrUnknownEntrypoint = errors.New("unknown policy entrypoint")
	ErrInvalidInput      = errors.New("input document cannot be serialized")

	// State errors.
	ErrNoBundle      = errors.New("no policy bundle loaded")
	ErrBundleRetired = errors.New("policy bundle has been retired")
	ErrPoolShutdown  = errors.New("instance pool is shut down")
)

// EvaluationErrorKind classifies per-call sandbox failures.
type EvaluationErrorKind string

const (
	// EvalTrap: the policy trapped (unreachable, out-of-bounds access, or an
	// explicit abort).
	EvalTrap EvaluationErrorKind = "trap"

	// EvalFuelExhausted: the call exceeded its function-call budget.
	EvalFuelExhausted EvaluationErrorKind = "fuel_exhausted"

	// EvalTimeout: the call exceeded its wall-clock ceiling.
	EvalTimeout EvaluationErrorKind = "timeout"

	// EvalCanceled: the caller's context was canceled mid-call.
	EvalCanceled EvaluationErrorKind = "canceled"

	// EvalBadOutput: the policy returned a document the host cannot decode.
	EvalBadOutput EvaluationErrorKind = "bad_output"
)

// EvaluationError is a per-call failure. The bundle remains usable for
// subsequent calls; the instance that produced it is discarded.
type EvaluationError struct {
	Kind       EvaluationErrorKind
	Entrypoint string
	Err        error
}

func (e *EvaluationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("policy evaluation of %q failed: %s", e.Entrypoint, e.Kind)
	}
	return fmt.Sprintf("policy evaluation of %q failed (%s): %v", e.Entrypoint, e.Kind, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// IsEvaluationError reports whether err is a per-call evaluation failure, and
// if so returns it.
func IsEvaluationError(err error) (*EvaluationError, bool) {
	var ee *EvaluationError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
