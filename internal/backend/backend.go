// Package backend implements C4: lowering one mir.Module to native code
// through an external codegen library (llir/llvm), replacing the
// teacher's eleven hand-rolled per-(OS,arch) byte emitters with a single
// ABI-aware lowering pass (§4.4).
package backend

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"

	"github.com/rayzor-lang/rayzor/internal/mir"
	"github.com/rayzor-lang/rayzor/internal/symbols"
)

func zeroInitOf(t types.Type) constant.Constant {
	return constant.NewZeroInitializer(t)
}

// OptLevel selects which of the controller's per-level backends a Module
// belongs to. The teacher's VM has no notion of optimization level at
// all (it only interprets); this dimension comes from spec.md §4.6's "one
// native backend for each optimization level" requirement.
type OptLevel int

const (
	OptNone OptLevel = iota
	OptSpeed
	OptSpeedAndSize
)

func (o OptLevel) String() string {
	switch o {
	case OptNone:
		return "none"
	case OptSpeed:
		return "speed"
	case OptSpeedAndSize:
		return "speed_and_size"
	default:
		return "unknown"
	}
}

// Config configures one Backend instance. IntrinsicSet and PromotionPolicy
// are both host-extensible per §9 Open Question decisions (a) and (b).
type Config struct {
	Level            OptLevel
	Promotion        PromotionPolicy
	Intrinsics       IntrinsicSet
	InlineArrayIntrinsics bool // not read by the backend; array accessors are always runtime calls
}

// DefaultConfig returns the non-Windows promotion policy and
// DefaultIntrinsicSet (math intrinsics inlined). Array accessors are not
// inlined under any configuration.
func DefaultConfig(level OptLevel) Config {
	return Config{
		Level:      level,
		Promotion:  PromotionNonWindows,
		Intrinsics: DefaultIntrinsicSet(),
	}
}

// Backend holds everything shared across every module compiled at one
// optimization level: the declaration caches (§4.4 "A name-keyed cache
// ensures cross-module sharing") and a module counter for symbol naming.
type Backend struct {
	cfg     Config
	symbols *symbols.Table

	moduleCounter int

	// moduleCounters gives every mir.Module a stable symbol-naming counter
	// that survives across repeated CompileFunction calls against the same
	// module (the tiered controller's promotion path): symbolName must
	// assign the same native name to a FuncID every time it is declared,
	// in whichever CompiledModule, or a sibling function's extern
	// declaration in a later single-function recompile would not agree
	// with the name the function originally compiled under.
	moduleCounters map[*mir.Module]int

	// sharedSignatures is the name-keyed cache of §4.4's "A name-keyed
	// cache ensures cross-module sharing of extern and stdlib-wrapper
	// declarations": since each compiled module is its own *ir.Module
	// (llir/llvm has no notion of one Go value spanning multiple
	// modules, unlike the teacher's single-process VM.funcs table), what
	// is actually shared across modules is symbol identity — the same
	// name must resolve to the same ABI-resolved signature everywhere it
	// is declared, so every module's `declare` for "malloc" links
	// against the one runtime address. A mismatch here is the "ABI
	// mismatch" failure mode.
	sharedSignatures map[string]MachineSignature
}

// New creates a Backend bound to one optimization level and one runtime
// symbol table; the symbol table supplies extern addresses the
// finalization step resolves against.
func New(cfg Config, tab *symbols.Table) *Backend {
	return &Backend{
		cfg:              cfg,
		symbols:          tab,
		sharedSignatures: map[string]MachineSignature{},
		moduleCounters:   map[*mir.Module]int{},
	}
}

// counterFor returns the stable symbol-naming counter for m, assigning one
// on first use.
func (b *Backend) counterFor(m *mir.Module) int {
	if c, ok := b.moduleCounters[m]; ok {
		return c
	}
	b.moduleCounter++
	b.moduleCounters[m] = b.moduleCounter
	return b.moduleCounter
}

// CompiledModule is one backend-compiled mir.Module: the llir/llvm
// in-memory module plus the FuncID -> *ir.Func map the finalization and
// get_function_ptr lookups need.
type CompiledModule struct {
	Source      *mir.Module
	LLVM        *ir.Module
	Funcs       map[mir.FuncID]*ir.Func // non-extern, defined functions
	Externs     map[mir.FuncID]*ir.Func
	ExternsByName map[string]*ir.Func // lets call glue reach a runtime symbol (malloc, haxe_string_literal, ...) without its FuncID
	Globals     map[mir.GlobalID]*ir.Global
	strRodata map[string]*ir.Global // content-keyed string literal byte arrays
	counter     int

	// FunctionAddrs holds the loaded-code addresses FinalizeModule/
	// FinalizeFunction resolved, populated lazily since a CompiledModule
	// is useful (its LLVM text can be emitted) before any finalization
	// happens at all.
	FunctionAddrs map[mir.FuncID]FunctionPointer
}

// Error is a structured failure per §4.4 "Failure modes": verifier error,
// unsupported instruction, unresolved cross-module reference, duplicate
// definition, or ABI mismatch. The offending function is absent from the
// finalized module; compilation of sibling functions is unaffected.
type Error struct {
	Kind     ErrorKind
	Function string
	Detail   string
}

type ErrorKind int

const (
	ErrVerifier ErrorKind = iota
	ErrUnsupportedInstruction
	ErrUnresolvedReference
	ErrDuplicateDefinition
	ErrABIMismatch
)

func (e *Error) Error() string {
	return fmt.Sprintf("backend: %s in %q: %s", e.kindLabel(), e.Function, e.Detail)
}

func (e *Error) kindLabel() string {
	switch e.Kind {
	case ErrVerifier:
		return "verifier error"
	case ErrUnsupportedInstruction:
		return "unsupported instruction"
	case ErrUnresolvedReference:
		return "unresolved cross-module reference"
	case ErrDuplicateDefinition:
		return "duplicate definition"
	case ErrABIMismatch:
		return "ABI mismatch"
	default:
		return "backend error"
	}
}

// CompileModule runs the full declaration + body pass over m, collecting
// every function-level error instead of aborting at the first (§4.4: a
// failing function is simply absent, siblings still compile).
func (b *Backend) CompileModule(m *mir.Module) (*CompiledModule, []error) {
	cm := &CompiledModule{
		Source:        m,
		LLVM:          ir.NewModule(),
		Funcs:         map[mir.FuncID]*ir.Func{},
		Externs:       map[mir.FuncID]*ir.Func{},
		ExternsByName: map[string]*ir.Func{},
		Globals:       map[mir.GlobalID]*ir.Global{},
		counter:       b.counterFor(m),
	}

	for _, g := range m.Globals {
		gv := cm.LLVM.NewGlobalDef(fmt.Sprintf("m%d_global_%d_%s", cm.counter, g.ID, g.Name), zeroInitOf(blobType(maxInt(mir.SizeOf(g.Type), 1))))
		cm.Globals[g.ID] = gv
	}

	dp := &declPass{b: b, cm: cm}
	var errs []error

	// Declaration pass: every function gets a signature and symbol name
	// before any body is translated, so forward and mutually-recursive
	// references resolve regardless of declaration order (§4.4).
	for _, f := range m.AllFunctions() {
		if err := dp.declare(f); err != nil {
			errs = append(errs, err)
		}
	}

	// Body pass: only non-extern, non-generic functions have bodies.
	for _, f := range m.Functions {
		if f.IsExternDecl() {
			continue
		}
		lf, ok := cm.Funcs[f.ID]
		if !ok {
			continue // declaration failed; already recorded above
		}
		bp := &bodyPass{b: b, cm: cm, src: f, dst: lf}
		if err := bp.run(); err != nil {
			errs = append(errs, err)
			delete(cm.Funcs, f.ID) // offending function absent from finalized module
		}
	}

	return cm, errs
}

// CompileFunction runs the declaration pass over every function in m (so
// id's cross-references resolve against the same symbol names a full
// CompileModule would have produced) but translates only id's body. This
// is the "backend's single-function path" §4.6's promotion worker calls:
// promoting one function to a higher tier recompiles just that function,
// it does not re-lower the whole module.
func (b *Backend) CompileFunction(m *mir.Module, id mir.FuncID) (*CompiledModule, error) {
	f, ok := m.FunctionByID(id)
	if !ok {
		return nil, &Error{Kind: ErrUnresolvedReference, Function: "", Detail: fmt.Sprintf("promote: unknown function id %d", id)}
	}
	if f.IsExternDecl() {
		return nil, &Error{Kind: ErrUnresolvedReference, Function: f.Name, Detail: "promote: cannot compile an extern declaration"}
	}

	cm := &CompiledModule{
		Source:        m,
		LLVM:          ir.NewModule(),
		Funcs:         map[mir.FuncID]*ir.Func{},
		Externs:       map[mir.FuncID]*ir.Func{},
		ExternsByName: map[string]*ir.Func{},
		Globals:       map[mir.GlobalID]*ir.Global{},
		counter:       b.counterFor(m),
	}
	for _, g := range m.Globals {
		gv := cm.LLVM.NewGlobalDef(fmt.Sprintf("m%d_global_%d_%s", cm.counter, g.ID, g.Name), zeroInitOf(blobType(maxInt(mir.SizeOf(g.Type), 1))))
		cm.Globals[g.ID] = gv
	}

	dp := &declPass{b: b, cm: cm}
	for _, other := range m.AllFunctions() {
		if other.ID == id {
			if err := dp.declare(other); err != nil {
				return nil, err
			}
			continue
		}
		// Every other function is declared import-only under the name it
		// was (or will be) assigned by this same counter, so the symbol
		// this module calls out to is the very one the controller already
		// has an address for, or will finalize separately: this
		// compilation unit only needs to call out to them, never define
		// them, since they already live (at whatever tier) in the
		// controller's dispatch table.
		if runtimeName, ok := runtimeMappedName(b, other); ok {
			if err := dp.declareExternLike(other, runtimeName); err != nil {
				return nil, err
			}
			continue
		}
		name := symbolName(cm, other)
		if err := dp.declareExternLike(other, name); err != nil {
			return nil, err
		}
	}

	lf, ok := cm.Funcs[id]
	if !ok {
		return nil, &Error{Kind: ErrVerifier, Function: f.Name, Detail: "declaration of promoted function failed"}
	}
	bp := &bodyPass{b: b, cm: cm, src: f, dst: lf}
	if err := bp.run(); err != nil {
		return nil, err
	}
	return cm, nil
}

// symbolName implements the naming policy of §4.4's declaration pass.
func symbolName(cm *CompiledModule, f *mir.Function) string {
	if f.IsExternDecl() {
		return f.Name // extern functions keep their given name, Import linkage
	}
	if f.QualifiedName != f.Name && f.QualifiedName != "" {
		return fmt.Sprintf("m%d__%s__func_%d", cm.counter, f.QualifiedName, f.ID)
	}
	return fmt.Sprintf("m%d_func_%d", cm.counter, f.ID)
}

// runtimeMappedName reports whether f is a runtime-mapped stdlib wrapper
// that must keep its original name with Export linkage so forward
// references into runtime symbol bindings still link up (§4.4). This
// backend approximates the rule the same way the lowerer approximates
// calling-convention selection (lower.go's callingConvention): an
// extern C-convention function whose name matches a registered runtime
// symbol is runtime-mapped.
func runtimeMappedName(b *Backend, f *mir.Function) (string, bool) {
	if !f.IsExternDecl() {
		return "", false
	}
	if _, ok := b.symbols.Lookup(f.Name); ok {
		return f.Name, true
	}
	return "", false
}
