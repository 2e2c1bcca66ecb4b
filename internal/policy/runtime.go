package policy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Limits bounds the resources one evaluation may consume.
type Limits struct {
	// MemoryPages caps the linear memory of each instance, in 64KiB pages.
	MemoryPages uint32

	// Fuel caps the number of sandboxed function calls per evaluation.
	// Exhaustion aborts the call with EvalFuelExhausted. Zero selects the
	// default; FuelUnlimited disables metering.
	Fuel uint64

	// MaxCallDuration is the wall-clock ceiling per evaluation, enforced
	// independently of any caller-supplied deadline.
	MaxCallDuration time.Duration
}

// FuelUnlimited disables fuel metering, leaving the wall-clock ceiling as the
// only execution bound.
const FuelUnlimited uint64 = math.MaxUint64

// DefaultLimits returns the limits used when configuration leaves them unset.
func DefaultLimits() Limits {
	return Limits{
		MemoryPages:     160, // 10MiB
		Fuel:            1_000_000,
		MaxCallDuration: 250 * time.Millisecond,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MemoryPages == 0 {
		l.MemoryPages = d.MemoryPages
	}
	if l.Fuel == 0 {
		l.Fuel = d.Fuel
	}
	if l.MaxCallDuration == 0 {
		l.MaxCallDuration = d.MaxCallDuration
	}
	return l
}

// Runtime is the shared compilation and isolation substrate for all bundles in
// the process. Compilation happens once per bundle load; instances created
// from a compiled module are cheap.
type Runtime struct {
	wz     wazero.Runtime
	limits Limits
	logger zerolog.Logger
}

// NewRuntime creates the sandbox runtime. Instances are terminated when their
// call context is done, so a hung policy cannot block the host indefinitely.
func NewRuntime(ctx context.Context, limits Limits, logger zerolog.Logger) (*Runtime, error) {
	limits = limits.withDefaults()

	cfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(limits.MemoryPages).
		WithCloseOnContextDone(true).
		WithCustomSections(true)

	wz := wazero.NewRuntimeWithConfig(ctx, cfg)

	// Bundles built with WASI-targeting toolchains expect the preview1 host
	// module to be present even when they never touch host I/O.
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, wz); err != nil {
		_ = wz.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	return &Runtime{
		wz:     wz,
		limits: limits,
		logger: logger.With().Str("component", "policy-runtime").Logger(),
	}, nil
}

// Limits returns the per-evaluation resource limits this runtime enforces.
func (r *Runtime) Limits() Limits { return r.limits }

// Compile compiles bundle bytes into a module instances can be created from.
// CPU-bound; callers keep it off the evaluation path.
func (r *Runtime) Compile(ctx context.Context, data []byte) (*CompiledModule, error) {
	if len(data) == 0 {
		return nil, ErrEmptyBundle
	}

	// The listener factory must be present at compile time for fuel
	// accounting to be wired into the generated code.
	ctx = experimental.WithFunctionListenerFactory(ctx, fuelFactory{})

	compiled, err := r.wz.CompileModule(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to compile module: %w", err)
	}

	return &CompiledModule{runtime: r, compiled: compiled}, nil
}

// Close releases the runtime and everything compiled against it.
func (r *Runtime) Close(ctx context.Context) error {
	return r.wz.Close(ctx)
}
