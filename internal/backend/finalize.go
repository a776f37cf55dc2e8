package backend

import "github.com/rayzor-lang/rayzor/internal/mir"

// FunctionPointer is the address space spec.md's get_function_ptr returns
// a FuncId's code at. llir/llvm only builds in-memory IR and text; turning
// that IR into loaded, executable machine code (what the original's
// Cranelift JIT does internally via get_finalized_function) is a host
// concern this package does not implement in pure Go — the host compiles
// or JITs the emitted module (llc, an ORC JIT binding, gollvm, ...) and
// reports back the addresses its loader assigned. Resolver models that
// handoff.
type FunctionPointer uintptr

// Resolver maps a finalized symbol name to the address the host's
// loader/JIT assigned it, once cm.LLVM has actually been turned into
// loaded code outside this package.
type Resolver func(symbolName string) (FunctionPointer, bool)

// FinalizeModule implements §4.4's per-module finalization mode: every
// non-extern function this Backend successfully compiled gets an address
// looked up by its native symbol name. A function whose address the
// resolver can't supply is an unresolved-reference error; the rest of the
// module still finalizes (matching CompileModule's per-function failure
// isolation).
func (b *Backend) FinalizeModule(cm *CompiledModule, resolve Resolver) []error {
	var errs []error
	if cm.FunctionAddrs == nil {
		cm.FunctionAddrs = map[mir.FuncID]FunctionPointer{}
	}
	for id, fn := range cm.Funcs {
		addr, ok := resolve(fn.Name())
		if !ok {
			errs = append(errs, &Error{Kind: ErrUnresolvedReference, Function: fn.Name(),
				Detail: "finalization produced no address for this symbol"})
			continue
		}
		cm.FunctionAddrs[id] = addr
	}
	return errs
}

// FinalizeFunction implements §4.4's per-function finalization mode: the
// background promotion path recompiles and finalizes a single function
// rather than the whole module, so a tiered controller's promotion queue
// never pays for a full-module re-finalize per promoted function.
func (b *Backend) FinalizeFunction(cm *CompiledModule, id mir.FuncID, resolve Resolver) error {
	fn, ok := cm.Funcs[id]
	if !ok {
		return &Error{Kind: ErrUnresolvedReference, Detail: "finalize of function absent from this compiled module"}
	}
	addr, ok := resolve(fn.Name())
	if !ok {
		return &Error{Kind: ErrUnresolvedReference, Function: fn.Name(),
			Detail: "finalization produced no address for this symbol"}
	}
	if cm.FunctionAddrs == nil {
		cm.FunctionAddrs = map[mir.FuncID]FunctionPointer{}
	}
	cm.FunctionAddrs[id] = addr
	return nil
}

// GetFunctionPtr is spec.md §4.4's get_function_ptr(FuncId) -> *const u8:
// the address a prior Finalize* call recorded, or false before
// finalization or for a function whose compilation failed.
func (cm *CompiledModule) GetFunctionPtr(id mir.FuncID) (FunctionPointer, bool) {
	addr, ok := cm.FunctionAddrs[id]
	return addr, ok
}

// FunctionSize returns a proxy for id's compiled size: the length of its
// generated LLVM IR text. This package never holds real machine code
// (FinalizeFunction only resolves an address the host's loader/JIT
// assigned elsewhere), so IR text length is the best size signal
// available in-process, for a controller reporting to
// profiler.Profiler.RecordSize on each promotion (§9's size/speed
// tradeoff note).
func (cm *CompiledModule) FunctionSize(id mir.FuncID) (int, bool) {
	fn, ok := cm.Funcs[id]
	if !ok {
		return 0, false
	}
	return len(fn.LLString()), true
}
