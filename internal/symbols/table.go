// Package symbols implements the runtime-symbol binding table (C7): a
// read-only-after-init map from name to host-supplied address, consulted
// identically by the interpreter and the native backend.
package symbols

import "fmt"

// Address is a host function pointer, opaque to the core. The host
// supplies these; the core never dereferences one directly — the
// interpreter invokes it through a platform thunk and the backend emits
// a call through the declared extern.
type Address uintptr

// HostFunc is a Go-callable shim for a runtime symbol, used by the
// interpreter (tier 0) as its "platform-specific thunk per signature"
// (§4.3). The native backend only needs a symbol's Address to emit a
// call through the declared extern; the interpreter additionally needs
// something it can invoke directly from Go, since it has no machine
// call stack to transfer control through. Args/results are the
// interpreter's boxed register values (see internal/interp).
type HostFunc func(args []uint64) uint64

// Table is the runtime-symbol binding table. Safe for concurrent reads
// once Freeze has been called; Register before Freeze is not goroutine-safe,
// matching compile_module's single-threaded ingest contract (§5).
type Table struct {
	entries map[string]Address
	funcs   map[string]HostFunc
	frozen  bool
}

// New builds a Table from the host-supplied (name, address) pairs passed
// to create(config) per §6.
func New(pairs map[string]Address) *Table {
	t := &Table{entries: make(map[string]Address, len(pairs))}
	for name, addr := range pairs {
		t.entries[name] = addr
	}
	return t
}

// Register adds or replaces a binding. Panics if called after Freeze —
// the table is "read-only after initialization" (§5).
func (t *Table) Register(name string, addr Address) {
	if t.frozen {
		panic("symbols: Register called on a frozen table")
	}
	if t.entries == nil {
		t.entries = map[string]Address{}
	}
	t.entries[name] = addr
}

// RegisterFunc binds name to a Go-callable shim for interpreter-tier
// execution. Independent of Register/Lookup: a symbol may have an
// Address (for the backend), a HostFunc (for the interpreter), or both.
func (t *Table) RegisterFunc(name string, fn HostFunc) {
	if t.frozen {
		panic("symbols: RegisterFunc called on a frozen table")
	}
	if t.funcs == nil {
		t.funcs = map[string]HostFunc{}
	}
	t.funcs[name] = fn
}

// LookupFunc resolves name to its interpreter-tier Go shim.
func (t *Table) LookupFunc(name string) (HostFunc, bool) {
	fn, ok := t.funcs[name]
	return fn, ok
}

// Freeze marks the table read-only. compile_module calls this once
// ingest completes.
func (t *Table) Freeze() { t.frozen = true }

// Lookup resolves name to its bound address.
func (t *Table) Lookup(name string) (Address, bool) {
	addr, ok := t.entries[name]
	return addr, ok
}

// MustLookup is Lookup but panics with a descriptive message on miss —
// used at call sites where an unresolved runtime symbol is a
// finalization-time error per §4.4's "unresolved cross-module reference".
func (t *Table) MustLookup(name string) Address {
	addr, ok := t.entries[name]
	if !ok {
		panic(fmt.Sprintf("symbols: unresolved runtime symbol %q", name))
	}
	return addr
}

// Names returns every registered symbol name, for diagnostics.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for n := range t.entries {
		names = append(names, n)
	}
	return names
}

// Core runtime symbol names (§4.7's "at minimum" list and §6's fixed C
// signatures). The engine registers these from the host config; the
// backend and interpreter refer to functions by these names when
// resolving extern calls and intrinsic fallbacks.
const (
	Malloc  = "malloc"
	Realloc = "realloc"
	Free    = "free"

	GlobalLoad  = "rayzor_global_load"
	GlobalStore = "rayzor_global_store"

	StringLiteral = "haxe_string_literal"

	ArrayLength = "haxe_array_length"
	ArrayGetPtr = "haxe_array_get_ptr"

	MathSqrt  = "haxe_math_sqrt"
	MathAbs   = "haxe_math_abs"
	MathFloor = "haxe_math_floor"
	MathCeil  = "haxe_math_ceil"
	MathRound = "haxe_math_round"
	StdInt    = "haxe_std_int"

	WaitAllThreads = "rayzor_wait_all_threads"
)
