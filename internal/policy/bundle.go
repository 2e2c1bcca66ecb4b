package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero/api"
)

// LoadOptions controls bundle loading and validation.
type LoadOptions struct {
	// Entrypoints the host intends to call. Defaults to StandardEntrypoints.
	// Loading fails fast if any is not exported by the bundle.
	Entrypoints []string

	// ExpectedVersion, when non-empty, must match the bundle's version
	// custom section.
	ExpectedVersion string

	// Pool sizing. Zero values default to MinIdle 1, MaxInstances 8; a
	// negative MinIdle disables pre-warming.
	MinIdle      int
	MaxInstances int
}

func (o LoadOptions) withDefaults() LoadOptions {
	if len(o.Entrypoints) == 0 {
		o.Entrypoints = StandardEntrypoints()
	}
	if o.MaxInstances == 0 {
		o.MaxInstances = 8
	}
	switch {
	case o.MinIdle < 0:
		o.MinIdle = 0
	case o.MinIdle == 0:
		o.MinIdle = 1
	}
	return o
}

// Bundle is an immutable loaded policy artifact: one compiled module, the
// validated entrypoint mapping, and a bounded instance pool. A bundle never
// mutates after load; reloading produces a new bundle and in-flight
// evaluations finish against the one they started with.
type Bundle struct {
	module      *CompiledModule
	pool        *InstancePool
	entrypoints map[string]string // logical name -> export identifier
	version     string
	checksum    [sha256.Size]byte

	mu      sync.RWMutex
	retired bool
}

// LoadBundle compiles and validates bundle bytes against the runtime and
// returns an immutable handle. Validation failures are permanent for these
// bytes; the caller keeps whatever bundle was previously active.
func LoadBundle(ctx context.Context, runtime *Runtime, data []byte, opts LoadOptions) (*Bundle, error) {
	opts = opts.withDefaults()

	module, err := runtime.Compile(ctx, data)
	if err != nil {
		return nil, err
	}

	version := ""
	if raw, ok := module.customSection(versionSection); ok {
		version = string(raw)
	}
	if opts.ExpectedVersion != "" && version != opts.ExpectedVersion {
		_ = module.Close(ctx)
		return nil, fmt.Errorf("%w: want %q, bundle declares %q",
			ErrVersionMismatch, opts.ExpectedVersion, version)
	}

	entrypoints, err := resolveEntrypoints(module, opts.Entrypoints)
	if err != nil {
		_ = module.Close(ctx)
		return nil, err
	}

	pool, err := NewInstancePool(ctx, PoolConfig{
		MinIdle:      opts.MinIdle,
		MaxInstances: opts.MaxInstances,
		Factory:      moduleFactory{module: module},
	})
	if err != nil {
		_ = module.Close(ctx)
		return nil, fmt.Errorf("failed to create instance pool: %w", err)
	}

	bundle := &Bundle{
		module:      module,
		pool:        pool,
		entrypoints: entrypoints,
		version:     version,
		checksum:    sha256.Sum256(data),
	}

	runtime.logger.Info().
		Str("version", version).
		Str("checksum", bundle.Checksum()).
		Strs("entrypoints", opts.Entrypoints).
		Msg("policy bundle loaded")

	return bundle, nil
}

// Version returns the bundle's declared version, or "" when it declares none.
func (b *Bundle) Version() string { return b.version }

// Checksum returns the hex SHA-256 of the bundle bytes.
func (b *Bundle) Checksum() string { return hex.EncodeToString(b.checksum[:]) }

// Entrypoints returns the validated logical entrypoint names, sorted.
func (b *Bundle) Entrypoints() []string {
	names := make([]string, 0, len(b.entrypoints))
	for name := range b.entrypoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate runs one entrypoint against an input document and returns the
// decision. The input must serialize to JSON; the only externally observable
// effect is the returned decision.
func (b *Bundle) Evaluate(ctx context.Context, entrypoint string, input any) (*Decision, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.retired {
		return nil, ErrBundleRetired
	}

	export, ok := b.entrypoints[entrypoint]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntrypoint, entrypoint)
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	raw, err := b.pool.Evaluate(ctx, export, payload)
	if err != nil {
		return nil, err
	}

	var decision Decision
	if err := json.Unmarshal(raw, &decision); err != nil {
		return nil, &EvaluationError{Kind: EvalBadOutput, Entrypoint: entrypoint, Err: err}
	}

	return &decision, nil
}

// Retire blocks new evaluations, waits for in-flight ones to finish, then
// releases the pool and the compiled module. Idempotent.
func (b *Bundle) Retire(ctx context.Context) error {
	b.mu.Lock()
	alreadyRetired := b.retired
	b.retired = true
	b.mu.Unlock()
	if alreadyRetired {
		return nil
	}

	err := b.pool.Shutdown(ctx)
	if closeErr := b.module.Close(ctx); err == nil {
		err = closeErr
	}
	return err
}

// moduleFactory adapts a compiled module to the pool's factory contract.
type moduleFactory struct {
	module *CompiledModule
}

func (f moduleFactory) Instantiate(ctx context.Context) (PooledInstance, error) {
	return f.module.Instantiate(ctx)
}

// resolveEntrypoints validates the memory helpers and every requested
// entrypoint export, failing with one descriptive error naming everything
// that is missing or mis-typed.
func resolveEntrypoints(module *CompiledModule, entrypoints []string) (map[string]string, error) {
	exports := module.exportedFunctions()

	var problems []string
	checkExport := func(name string, params, results []api.ValueType) {
		def, ok := exports[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("missing export %q", name))
			return
		}
		if !typesEqual(def.ParamTypes(), params) || !typesEqual(def.ResultTypes(), results) {
			problems = append(problems, fmt.Sprintf("export %q has wrong signature", name))
		}
	}

	checkExport(exportAllocate, []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32})
	checkExport(exportDeallocate, []api.ValueType{api.ValueTypeI32}, nil)

	resolved := make(map[string]string, len(entrypoints))
	for _, name := range entrypoints {
		export := ExportName(name)
		checkExport(export,
			[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
			[]api.ValueType{api.ValueTypeI64})
		resolved[name] = export
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("invalid bundle: %s", strings.Join(problems, "; "))
	}

	return resolved, nil
}

func typesEqual(got, want []api.ValueType) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
