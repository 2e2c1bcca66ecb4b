package policy

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
)

// fuelExhaustedExit is the exit code used to abort a call that ran out of
// fuel. Chosen outside the range policies plausibly pass to proc_exit.
const fuelExhaustedExit uint32 = 0xf0e1ed

type fuelKey struct{}

// fuelTank is the per-call budget. Sandbox execution is single-threaded per
// instance, so plain fields suffice.
type fuelTank struct {
	remaining int64
	tripped   bool
}

// withFuel arms fuel accounting for one call.
func withFuel(ctx context.Context, budget uint64) context.Context {
	return context.WithValue(ctx, fuelKey{}, &fuelTank{remaining: int64(budget)})
}

// fuelFactory attaches a call-counting listener to every sandboxed function.
// Calls without a tank in their context (e.g. instantiation) are not metered.
type fuelFactory struct{}

func (fuelFactory) NewFunctionListener(api.FunctionDefinition) experimental.FunctionListener {
	return fuelListener{}
}

type fuelListener struct{}

func (fuelListener) Before(ctx context.Context, mod api.Module, _ api.FunctionDefinition, _ []uint64, _ experimental.StackIterator) {
	tank, ok := ctx.Value(fuelKey{}).(*fuelTank)
	if !ok {
		return
	}
	tank.remaining--
	if tank.remaining < 0 && !tank.tripped {
		tank.tripped = true
		// Closing the module makes the in-flight call exit at the next
		// termination checkpoint with our sentinel code.
		_ = mod.CloseWithExitCode(ctx, fuelExhaustedExit)
	}
}

func (fuelListener) After(context.Context, api.Module, api.FunctionDefinition, []uint64) {}

func (fuelListener) Abort(context.Context, api.Module, api.FunctionDefinition, error) {}
