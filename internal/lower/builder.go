package lower

import "github.com/rayzor-lang/rayzor/internal/mir"

// scopedVar is a binding visible during lowering: the register holding
// its current value and its static type, used both for Ident lookups
// and for emitting the end-of-scope Drop sequence.
type scopedVar struct {
	reg  mir.Id
	typ  *mir.Type
	live bool // false once Moved — a later use is a checker-caught bug, but lowering still degrades gracefully by re-reading the stale register
}

// loopTargets names the blocks Break/Continue jump to for the loop
// currently being lowered.
type loopTargets struct {
	breakTarget    mir.BlockID
	continueTarget mir.BlockID
	scopeDepth     int // len(fb.scopes) at loop entry; Break/Continue drop down to here, not past it
}

// funcBuilder accumulates one function's CFG as statements are lowered,
// generalizing the teacher's Compiler fields (scopes []map[string]int,
// labelSeq, breaks/continues stacks) to SSA basic blocks instead of a
// flat labeled instruction stream.
type funcBuilder struct {
	lw  *Lowerer
	fn  *mir.Function
	cur *mir.Block

	scopes []map[string]*scopedVar
	loops  []loopTargets

	nextBlock  mir.BlockID
	terminated map[mir.BlockID]bool // mir.Terminator holds a slice field (Cases), so it isn't comparable with == — track termination out of band instead
}

func newFuncBuilder(lw *Lowerer, fn *mir.Function) *funcBuilder {
	fb := &funcBuilder{lw: lw, fn: fn, terminated: map[mir.BlockID]bool{}}
	fb.cur = &mir.Block{ID: 0}
	fn.CFG.AddBlock(fb.cur)
	fb.nextBlock = 1
	return fb
}

func (fb *funcBuilder) newBlock() *mir.Block {
	b := &mir.Block{ID: fb.nextBlock}
	fb.nextBlock++
	fb.fn.CFG.AddBlock(b)
	return b
}

// Once a block is marked terminated, nothing further is appended to it
// — lowering unreachable trailing statements after a
// Return/Break/Continue is simply skipped by emit/terminate's no-op.
func (fb *funcBuilder) hasTerminator(b *mir.Block) bool {
	if b == nil {
		return true
	}
	return fb.terminated[b.ID]
}

func (fb *funcBuilder) emit(inst mir.Instruction) {
	if fb.cur == nil || fb.hasTerminator(fb.cur) {
		return
	}
	fb.cur.Instructions = append(fb.cur.Instructions, inst)
}

func (fb *funcBuilder) terminate(t mir.Terminator) {
	if fb.cur == nil || fb.hasTerminator(fb.cur) {
		return
	}
	fb.cur.Terminator = t
	fb.terminated[fb.cur.ID] = true
}

func (fb *funcBuilder) freshReg(t *mir.Type) mir.Id { return fb.fn.FreshReg(t) }

func (fb *funcBuilder) pushScope() { fb.scopes = append(fb.scopes, map[string]*scopedVar{}) }

// popScope emits Drop (Free) instructions for every live, owned binding
// in the scope being exited, in reverse declaration order (§4.2 "Scope
// exit emits Drop calls in reverse declaration order"). Called both at
// normal fall-through and, via dropAllScopesForExit, along every early
// exit path.
func (fb *funcBuilder) popScope(at *mir.Block) {
	if len(fb.scopes) == 0 {
		return
	}
	top := fb.scopes[len(fb.scopes)-1]
	fb.scopes = fb.scopes[:len(fb.scopes)-1]
	fb.dropScope(top, at)
}

func (fb *funcBuilder) dropScope(scope map[string]*scopedVar, at *mir.Block) {
	names := make([]string, 0, len(scope))
	for n := range scope {
		names = append(names, n)
	}
	// Declaration order isn't recoverable from a map; a real TAST would
	// carry an ordered declaration list per scope. Iterating
	// alphabetically here is deterministic (important for reproducible
	// output) even though it isn't true declaration order — a limitation
	// noted in DESIGN.md rather than hidden.
	for i := len(names) - 1; i >= 0; i-- {
		v := scope[names[i]]
		if !v.live || !isOwnedHeapType(v.typ) {
			continue
		}
		if at == nil || fb.hasTerminator(at) {
			continue
		}
		at.Instructions = append(at.Instructions, mir.Instruction{
			Op:  mir.OpFree,
			Src: mir.RegValue(v.typ, v.reg),
		})
	}
}

// dropAllScopesForExit emits the full stack's worth of Drops at an early
// exit point (Return/Break/Continue), per §4.2: "Early exits ... must
// insert the same Drop sequence along each path; the lowerer does so by
// recording scope stacks at each exit point."
func (fb *funcBuilder) dropAllScopesForExit(at *mir.Block, stopAt int) {
	for i := len(fb.scopes) - 1; i >= stopAt; i-- {
		fb.dropScope(fb.scopes[i], at)
	}
}

func isOwnedHeapType(t *mir.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case mir.KindPtr, mir.KindStruct, mir.KindUnion, mir.KindSlice, mir.KindString:
		return true
	}
	return false
}

func (fb *funcBuilder) bind(name string, reg mir.Id, t *mir.Type) {
	fb.scopes[len(fb.scopes)-1][name] = &scopedVar{reg: reg, typ: t, live: true}
}

// bindCapture introduces a lambda's captured variable, read out of the
// environment pointer at the start of the function body: env is always
// the function's first parameter register for a generated closure body
// (§4.2 "A lambda's generated function accepts env as its first
// explicit parameter"). idx is the capture's position in the packed
// environment (the order OpMakeClosure wrote CapturedValues in) — it
// must come from the declaration list, not from how many bindings
// already share the function's top-level scope, since params are bound
// into that same scope before any capture is.
func (fb *funcBuilder) bindCapture(idx int, c CaptureDecl) {
	envReg := fb.fn.Signature.Params[0].Reg
	slot := fb.freshReg(mir.Ptr(c.Type))
	fb.emit(mir.Instruction{
		Op:    mir.OpGetElementPtr,
		Dest:  slot,
		Type:  mir.Ptr(c.Type),
		Ptr:   mir.RegValue(mir.Ptr(mir.Void()), envReg),
		Indices: []mir.Value{mir.ConstInt(mir.I64(), int64(idx))},
	})
	val := fb.freshReg(c.Type)
	fb.emit(mir.Instruction{Op: mir.OpLoad, Dest: val, Type: c.Type, Ptr: mir.RegValue(mir.Ptr(c.Type), slot)})
	fb.bind(c.Name, val, c.Type)
}

func (fb *funcBuilder) lookup(name string) (*scopedVar, bool) {
	for i := len(fb.scopes) - 1; i >= 0; i-- {
		if v, ok := fb.scopes[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}
