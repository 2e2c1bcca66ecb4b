package policy

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Exports every bundle must provide, alongside one "policy_<name>" function
// per entrypoint.
const (
	exportAllocate   = "allocate"
	exportDeallocate = "deallocate"
	exportInitialize = "_initialize"

	entrypointExportPrefix = "policy_"

	// versionSection is the custom section carrying the bundle version.
	versionSection = "bundle-version"
)

// ExportName maps a logical entrypoint name to its export identifier.
func ExportName(entrypoint string) string {
	return entrypointExportPrefix + entrypoint
}

// CompiledModule is an immutable compiled bundle. It is freely shared across
// concurrent evaluations; mutable state lives only in instances.
type CompiledModule struct {
	runtime  *Runtime
	compiled wazero.CompiledModule
}

func (m *CompiledModule) exportedFunctions() map[string]api.FunctionDefinition {
	return m.compiled.ExportedFunctions()
}

// customSection returns the contents of the named custom section, if present.
func (m *CompiledModule) customSection(name string) ([]byte, bool) {
	for _, s := range m.compiled.CustomSections() {
		if s.Name() == name {
			return s.Data(), true
		}
	}
	return nil, false
}

// Instantiate creates a fresh, isolated execution instance. Each concurrent
// evaluation needs its own.
func (m *CompiledModule) Instantiate(ctx context.Context) (*Instance, error) {
	// Anonymous instance, and no _start: bundles are reactor-style modules.
	config := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions()

	module, err := m.runtime.wz.InstantiateModule(ctx, m.compiled, config)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}

	if initialize := module.ExportedFunction(exportInitialize); initialize != nil {
		if _, err := initialize.Call(ctx); err != nil {
			_ = module.Close(ctx)
			return nil, fmt.Errorf("failed to call %s: %w", exportInitialize, err)
		}
	}

	allocate := module.ExportedFunction(exportAllocate)
	if allocate == nil {
		_ = module.Close(ctx)
		return nil, fmt.Errorf("%s function not found", exportAllocate)
	}

	deallocate := module.ExportedFunction(exportDeallocate)
	if deallocate == nil {
		_ = module.Close(ctx)
		return nil, fmt.Errorf("%s function not found", exportDeallocate)
	}

	return &Instance{
		module:     module,
		allocate:   allocate,
		deallocate: deallocate,
		limits:     m.runtime.limits,
	}, nil
}

// Close releases the compiled module. Call only after every instance created
// from it is gone.
func (m *CompiledModule) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
