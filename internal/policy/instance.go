package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
)

// Instance is one live execution context bound to a compiled module: its own
// linear memory and export bindings. Not safe for concurrent use; the pool
// guarantees exclusivity per evaluation.
type Instance struct {
	module     api.Module
	allocate   api.Function
	deallocate api.Function
	limits     Limits
}

// Call invokes an entrypoint export with the serialized input document and
// returns the raw output document. The call carries the runtime's fuel budget
// and wall-clock ceiling in addition to whatever deadline ctx already has.
//
// On any error the instance must be treated as corrupted and discarded.
func (i *Instance) Call(ctx context.Context, export string, input []byte) ([]byte, error) {
	fn := i.module.ExportedFunction(export)
	if fn == nil {
		return nil, fmt.Errorf("%w: no export %q", ErrUnknownEntrypoint, export)
	}

	if i.limits.MaxCallDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.limits.MaxCallDuration)
		defer cancel()
	}
	if i.limits.Fuel > 0 && i.limits.Fuel != FuelUnlimited {
		ctx = withFuel(ctx, i.limits.Fuel)
	}

	// Copy the input into sandbox memory using the bundle's allocator.
	inputPtr, err := i.allocate.Call(ctx, uint64(len(input)))
	if err != nil {
		return nil, sandboxError(export, fmt.Errorf("failed to allocate memory for input: %w", err))
	}
	defer func() { _, _ = i.deallocate.Call(ctx, inputPtr[0]) }()

	if !i.module.Memory().Write(uint32(inputPtr[0]), input) {
		return nil, sandboxError(export, errors.New("failed to write input to memory"))
	}

	result, err := fn.Call(ctx, inputPtr[0], uint64(len(input)))
	if err != nil {
		return nil, sandboxError(export, err)
	}

	// Result is ptr << 32 | len of the output document.
	packed := result[0]
	if packed == 0 {
		return nil, sandboxError(export, errors.New("entrypoint returned null"))
	}
	outputPtr := uint32(packed >> 32)
	outputLen := uint32(packed & 0xFFFFFFFF)

	output, ok := i.module.Memory().Read(outputPtr, outputLen)
	if !ok {
		return nil, sandboxError(export, errors.New("failed to read output from memory"))
	}

	// Copy before handing the memory back to the bundle.
	outputCopy := make([]byte, len(output))
	copy(outputCopy, output)

	_, _ = i.deallocate.Call(ctx, uint64(outputPtr))

	return outputCopy, nil
}

// Close releases the instance and its linear memory.
func (i *Instance) Close(ctx context.Context) error {
	return i.module.Close(ctx)
}

// sandboxError classifies a failed sandbox call into the evaluation error
// taxonomy. Resource aborts surface as sys.ExitError with a telltale code.
func sandboxError(entrypoint string, err error) error {
	kind := EvalTrap

	var exit *sys.ExitError
	if errors.As(err, &exit) {
		switch exit.ExitCode() {
		case fuelExhaustedExit:
			kind = EvalFuelExhausted
		case sys.ExitCodeDeadlineExceeded:
			kind = EvalTimeout
		case sys.ExitCodeContextCanceled:
			kind = EvalCanceled
		}
	}

	return &EvaluationError{Kind: kind, Entrypoint: entrypoint, Err: err}
}
