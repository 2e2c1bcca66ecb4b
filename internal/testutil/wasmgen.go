// Package testutil provides hand-assembled WebAssembly policy modules for
// tests. Emitting the binaries directly keeps the test suite free of an
// external wasm toolchain while still exercising real sandbox execution.
package testutil

// Modules produced here follow the policy bundle ABI: exported "memory",
// "allocate" (bump allocator), "deallocate" (no-op), and one
// "policy_<name>" function per entrypoint returning ptr<<32|len of a JSON
// decision document.

// Function index layout: 0 allocate, 1 deallocate, 2 helper (empty body,
// target of call-loop entrypoints), 3+i one per entrypoint.

const (
	// Data segments start here; the bump allocator starts above them.
	dataBase = 1024
	heapBase = 8192
)

type behavior int

const (
	// behaviorStatic returns a fixed decision document.
	behaviorStatic behavior = iota
	// behaviorScan returns the deny document when the input contains a
	// needle, the allow document otherwise.
	behaviorScan
	// behaviorSpin loops forever without calling any function.
	behaviorSpin
	// behaviorSpinCalls loops forever calling the helper, consuming fuel.
	behaviorSpinCalls
)

type entrypoint struct {
	name     string
	behavior behavior
	result   string // static result, or the allow document for scans
	needle   string
	deny     string
}

// PolicyModule assembles one test bundle.
type PolicyModule struct {
	version     string
	entrypoints []entrypoint
}

// NewPolicyModule returns an empty module builder.
func NewPolicyModule() *PolicyModule {
	return &PolicyModule{}
}

// WithVersion adds a "bundle-version" custom section.
func (m *PolicyModule) WithVersion(version string) *PolicyModule {
	m.version = version
	return m
}

// Static adds an entrypoint that always returns decisionJSON.
func (m *PolicyModule) Static(name, decisionJSON string) *PolicyModule {
	m.entrypoints = append(m.entrypoints, entrypoint{
		name: name, behavior: behaviorStatic, result: decisionJSON,
	})
	return m
}

// DenyContaining adds an entrypoint returning denyJSON when the raw input
// document contains needle, and allowJSON otherwise.
func (m *PolicyModule) DenyContaining(name, needle, denyJSON, allowJSON string) *PolicyModule {
	m.entrypoints = append(m.entrypoints, entrypoint{
		name: name, behavior: behaviorScan, result: allowJSON, needle: needle, deny: denyJSON,
	})
	return m
}

// Spin adds an entrypoint that never terminates and never calls a function.
// It only stops when the host interrupts execution.
func (m *PolicyModule) Spin(name string) *PolicyModule {
	m.entrypoints = append(m.entrypoints, entrypoint{name: name, behavior: behaviorSpin})
	return m
}

// SpinCalls adds an entrypoint that loops forever making function calls, so
// a call-counting budget terminates it.
func (m *PolicyModule) SpinCalls(name string) *PolicyModule {
	m.entrypoints = append(m.entrypoints, entrypoint{name: name, behavior: behaviorSpinCalls})
	return m
}

// AllowAllBundle builds a bundle whose entrypoints all return an empty
// violations list.
func AllowAllBundle(entrypoints ...string) []byte {
	m := NewPolicyModule()
	for _, name := range entrypoints {
		m.Static(name, `{"violations":[]}`)
	}
	return m.Build()
}

// Build emits the wasm binary.
func (m *PolicyModule) Build() []byte {
	// Lay out data blobs first so code can embed their addresses.
	var data []byte
	blob := func(s string) (offset, length int64) {
		offset = int64(dataBase + len(data))
		data = append(data, s...)
		return offset, int64(len(s))
	}
	packed := func(s string) int64 {
		off, n := blob(s)
		return off<<32 | n
	}

	type compiled struct {
		name string
		body []byte
	}
	funcs := make([]compiled, 0, len(m.entrypoints))
	for _, e := range m.entrypoints {
		var body []byte
		switch e.behavior {
		case behaviorStatic:
			body = staticBody(packed(e.result))
		case behaviorScan:
			needleOff, needleLen := blob(e.needle)
			body = scanBody(needleOff, needleLen, packed(e.deny), packed(e.result))
		case behaviorSpin:
			body = spinBody()
		case behaviorSpinCalls:
			body = spinCallsBody()
		}
		funcs = append(funcs, compiled{name: e.name, body: body})
	}

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// Type section: t0 (i32)->(i32), t1 (i32)->(), t2 (i32,i32)->(i64), t3 ()->().
	out = append(out, section(1, vec(
		funcType([]byte{i32}, []byte{i32}),
		funcType([]byte{i32}, nil),
		funcType([]byte{i32, i32}, []byte{i64}),
		funcType(nil, nil),
	))...)

	// Function section: type index per function.
	typeIndices := [][]byte{uleb(0), uleb(1), uleb(3)}
	for range funcs {
		typeIndices = append(typeIndices, uleb(2))
	}
	out = append(out, section(3, vec(typeIndices...))...)

	// Memory section: one memory, min 2 pages, no max.
	out = append(out, section(5, vec([]byte{0x00, 0x02}))...)

	// Global section: g0 mutable i32, the bump allocator cursor.
	global := append([]byte{i32, 0x01, opI32Const}, sleb(heapBase)...)
	global = append(global, opEnd)
	out = append(out, section(6, vec(global))...)

	// Export section.
	exports := [][]byte{
		export("memory", 0x02, 0),
		export("allocate", 0x00, 0),
		export("deallocate", 0x00, 1),
	}
	for i, f := range funcs {
		exports = append(exports, export("policy_"+f.name, 0x00, uint64(3+i)))
	}
	out = append(out, section(7, vec(exports...))...)

	// Code section.
	bodies := [][]byte{
		codeEntry(1, allocateBody()), // one i32 local
		codeEntry(0, []byte{opEnd}),  // deallocate: no-op
		codeEntry(0, []byte{opEnd}),  // helper: no-op
	}
	for _, f := range funcs {
		locals := 0
		if len(f.body) > 0 && f.body[0] == scanBodyMarker {
			locals = 3
			f.body = f.body[1:]
		}
		bodies = append(bodies, codeEntry(locals, f.body))
	}
	out = append(out, section(10, vec(bodies...))...)

	// Data section: one active segment with every blob.
	if len(data) > 0 {
		segment := append([]byte{0x00, opI32Const}, sleb(dataBase)...)
		segment = append(segment, opEnd)
		segment = append(segment, uleb(uint64(len(data)))...)
		segment = append(segment, data...)
		out = append(out, section(11, vec(segment))...)
	}

	if m.version != "" {
		custom := append(wasmName("bundle-version"), m.version...)
		out = append(out, section(0, custom)...)
	}

	return out
}

// Value types and opcodes used below.
const (
	i32 = 0x7f
	i64 = 0x7e

	opBlock     = 0x02
	opLoop      = 0x03
	opIf        = 0x04
	opEnd       = 0x0b
	opBr        = 0x0c
	opBrIf      = 0x0d
	opReturn    = 0x0f
	opCall      = 0x10
	opLocalGet  = 0x20
	opLocalSet  = 0x21
	opGlobalGet = 0x23
	opGlobalSet = 0x24
	opI32Load8U = 0x2d
	opI32Const  = 0x41
	opI64Const  = 0x42
	opI32Ne     = 0x47
	opI32GtS    = 0x4a
	opI32GeS    = 0x4e
	opI32Add    = 0x6a
	opI32Sub    = 0x6b

	blockVoid = 0x40

	// First byte of a scan body, signalling it declares three i32 locals.
	scanBodyMarker = 0xff
)

// allocateBody bumps the global cursor and returns the previous value.
// Local 1 (first past the size parameter) holds the result.
func allocateBody() []byte {
	return []byte{
		opGlobalGet, 0x00,
		opLocalSet, 0x01,
		opGlobalGet, 0x00,
		opLocalGet, 0x00,
		opI32Add,
		opGlobalSet, 0x00,
		opLocalGet, 0x01,
		opEnd,
	}
}

func staticBody(packed int64) []byte {
	body := append([]byte{opI64Const}, sleb(packed)...)
	return append(body, opEnd)
}

func spinBody() []byte {
	return []byte{
		opLoop, blockVoid,
		opBr, 0x00,
		opEnd,
		opI64Const, 0x00,
		opEnd,
	}
}

func spinCallsBody() []byte {
	return []byte{
		opLoop, blockVoid,
		opCall, 0x02, // helper
		opBr, 0x00,
		opEnd,
		opI64Const, 0x00,
		opEnd,
	}
}

// scanBody searches the input [ptr, ptr+len) for the needle and picks the
// deny or allow document. Params: 0 ptr, 1 len. Locals: 2 i, 3 j, 4 end.
func scanBody(needleOff, needleLen, denyPacked, allowPacked int64) []byte {
	var b []byte
	emit := func(bytes ...byte) { b = append(b, bytes...) }
	emitSleb := func(op byte, v int64) { b = append(append(b, op), sleb(v)...) }

	emit(scanBodyMarker)

	// end = ptr + len - needleLen
	emit(opLocalGet, 0x00, opLocalGet, 0x01, opI32Add)
	emitSleb(opI32Const, needleLen)
	emit(opI32Sub, opLocalSet, 0x04)

	// i = ptr
	emit(opLocalGet, 0x00, opLocalSet, 0x02)

	emit(opBlock, blockVoid) // no-match
	emit(opLoop, blockVoid)  // outer: one candidate position per iteration

	// i > end -> no match anywhere
	emit(opLocalGet, 0x02, opLocalGet, 0x04, opI32GtS, opBrIf, 0x01)

	// j = 0
	emit(opI32Const, 0x00, opLocalSet, 0x03)

	emit(opBlock, blockVoid) // mismatch at this position
	emit(opLoop, blockVoid)  // inner: one needle byte per iteration

	// j >= needleLen -> full match, return deny
	emit(opLocalGet, 0x03)
	emitSleb(opI32Const, needleLen)
	emit(opI32GeS)
	emit(opIf, blockVoid)
	emitSleb(opI64Const, denyPacked)
	emit(opReturn)
	emit(opEnd)

	// input[i+j] != needle[j] -> mismatch
	emit(opLocalGet, 0x02, opLocalGet, 0x03, opI32Add)
	emit(opI32Load8U, 0x00, 0x00)
	emitSleb(opI32Const, needleOff)
	emit(opLocalGet, 0x03, opI32Add)
	emit(opI32Load8U, 0x00, 0x00)
	emit(opI32Ne, opBrIf, 0x01)

	// j++
	emit(opLocalGet, 0x03, opI32Const, 0x01, opI32Add, opLocalSet, 0x03)
	emit(opBr, 0x00)
	emit(opEnd) // inner loop
	emit(opEnd) // mismatch block

	// i++
	emit(opLocalGet, 0x02, opI32Const, 0x01, opI32Add, opLocalSet, 0x02)
	emit(opBr, 0x00)
	emit(opEnd) // outer loop
	emit(opEnd) // no-match block

	emitSleb(opI64Const, allowPacked)
	emit(opEnd)

	return b
}

// Binary-format helpers.

func uleb(n uint64) []byte {
	var b []byte
	for {
		c := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if n == 0 {
			return b
		}
	}
}

func sleb(n int64) []byte {
	var b []byte
	for {
		c := byte(n & 0x7f)
		n >>= 7
		if (n == 0 && c&0x40 == 0) || (n == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func section(id byte, contents []byte) []byte {
	out := append([]byte{id}, uleb(uint64(len(contents)))...)
	return append(out, contents...)
}

func vec(items ...[]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

func funcType(params, results []byte) []byte {
	out := []byte{0x60}
	out = append(out, uleb(uint64(len(params)))...)
	out = append(out, params...)
	out = append(out, uleb(uint64(len(results)))...)
	return append(out, results...)
}

func wasmName(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func export(name string, kind byte, index uint64) []byte {
	out := append(wasmName(name), kind)
	return append(out, uleb(index)...)
}

// codeEntry wraps a function body with its size prefix and i32 local
// declarations.
func codeEntry(i32Locals int, body []byte) []byte {
	var entry []byte
	if i32Locals == 0 {
		entry = append(uleb(0), body...)
	} else {
		locals := append(uleb(1), uleb(uint64(i32Locals))...)
		locals = append(locals, i32)
		entry = append(locals, body...)
	}
	return append(uleb(uint64(len(entry))), entry...)
}
