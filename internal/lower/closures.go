package lower

import "github.com/rayzor-lang/rayzor/internal/mir"

// closureObjectType is the heap {fn_id, env_ptr} pair's static MIR
// shape. Its concrete width is fixed (two machine words); modeling it
// as Ptr(Void) here is sufficient for the interpreter and is resolved
// to the backend's real ABI-level pair type during codegen.
func closureObjectType() *mir.Type { return mir.Ptr(mir.Void()) }

// lowerClosureExpr emits MakeClosure with captures in the TAST's
// declared order (§4.2 "captured values listed in deterministic
// order"), or plain FunctionRef when there is nothing to capture
// (§3 "FunctionRef produces a closure object wrapping a static function
// with a null environment").
func (fb *funcBuilder) lowerClosureExpr(ex *ClosureExpr) mir.Value {
	ty := closureObjectType()
	if len(ex.Captures) == 0 {
		dest := fb.freshReg(ty)
		fb.emit(mir.Instruction{Op: mir.OpFunctionRef, Dest: dest, Type: ty, RefFunc: ex.Func})
		return mir.RegValue(ty, dest)
	}

	captured := make([]mir.Value, len(ex.Captures))
	for i, c := range ex.Captures {
		v, ok := fb.lookup(c.Name)
		if !ok {
			continue
		}
		if c.ByRef {
			captured[i] = fb.lowerOwnedReadVar(v, borrowOp(c.Mutable))
			continue
		}
		captured[i] = fb.lowerOwnedReadVar(v, mir.OpMove)
		v.live = false
	}

	dest := fb.freshReg(ty)
	fb.emit(mir.Instruction{Op: mir.OpMakeClosure, Dest: dest, Type: ty, ClosureFunc: ex.Func, CapturedValues: captured})
	return mir.RegValue(ty, dest)
}
