package backend

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

// closureSize matches internal/interp/calls.go's closureLayout: a 16-byte
// heap pair {fn_ptr:8, env_ptr:8}. Unlike the interpreter, which stores a
// FuncID in the first word and redispatches through module.FunctionByID
// (so a promoted function's call sites keep working after a tier swap),
// this backend stores the real native function pointer this Backend
// compiled: the cross-tier redispatch indirection lives at the tiered
// controller's Caller boundary, outside any single compiled module.
const closureSize = 16

func (bp *bodyPass) ptrField(blk *ir.Block, base value.Value, byteOff int64) value.Value {
	raw := blk.NewBitCast(base, types.NewPointer(types.I8))
	addr := blk.NewGetElementPtr(types.I8, raw, constant.NewInt(types.I64, byteOff))
	return blk.NewBitCast(addr, types.NewPointer(types.NewPointer(types.I8)))
}

func (bp *bodyPass) closureFuncPtr(blk *ir.Block, closure value.Value) value.Value {
	return blk.NewLoad(types.NewPointer(types.I8), bp.ptrField(blk, closure, 0))
}

func (bp *bodyPass) closureEnvPtr(blk *ir.Block, closure value.Value) value.Value {
	return blk.NewLoad(types.NewPointer(types.I8), bp.ptrField(blk, closure, 8))
}

func (bp *bodyPass) allocClosure(blk *ir.Block, fnPtr, envPtr value.Value) value.Value {
	mallocFn := bp.runtimeFunc("malloc", []types.Type{types.I64}, types.NewPointer(types.I8))
	obj := blk.NewCall(mallocFn, constant.NewInt(types.I64, closureSize))
	blk.NewStore(fnPtr, bp.ptrField(blk, obj, 0))
	blk.NewStore(envPtr, bp.ptrField(blk, obj, 8))
	return obj
}

// closureForFuncRef wraps a bare top-level function reference in the same
// {fn_ptr, env_ptr} shape as a captured closure, with a null env pointer
// (internal/interp's makeFunctionRefClosure): OpCallIndirect never needs
// to special-case "plain function" versus "closure".
func (bp *bodyPass) closureForFuncRef(blk *ir.Block, id mir.FuncID) (value.Value, error) {
	fn, _, _, err := bp.resolveDirectCallee(id)
	if err != nil {
		return nil, err
	}
	fnPtr := blk.NewBitCast(fn, types.NewPointer(types.I8))
	nullEnv := constant.NewNull(types.NewPointer(types.I8))
	return bp.allocClosure(blk, fnPtr, nullEnv), nil
}

// translateMakeClosure packs CapturedValues into a heap env block (one
// 8-byte slot per value, sign/zero-extended to a full word exactly as
// internal/interp's arena.WriteU64 does implicitly by storing Value.Bits)
// then builds the {fn_ptr, env_ptr} pair.
func (bp *bodyPass) translateMakeClosure(blk *ir.Block, inst mir.Instruction) error {
	fn, _, _, err := bp.resolveDirectCallee(inst.ClosureFunc)
	if err != nil {
		return err
	}
	fnPtr := blk.NewBitCast(fn, types.NewPointer(types.I8))

	var envPtr value.Value = constant.NewNull(types.NewPointer(types.I8))
	if n := len(inst.CapturedValues); n > 0 {
		mallocFn := bp.runtimeFunc("malloc", []types.Type{types.I64}, types.NewPointer(types.I8))
		env := blk.NewCall(mallocFn, constant.NewInt(types.I64, int64(n*8)))
		for i, cv := range inst.CapturedValues {
			v, err := bp.valueOf(blk, cv)
			if err != nil {
				return bp.wrap(err)
			}
			slot := blk.NewGetElementPtr(types.I8, env, constant.NewInt(types.I64, int64(i*8)))
			word := widenToWord(blk, v, cv.Ty)
			typed := blk.NewBitCast(slot, types.NewPointer(word.Type()))
			blk.NewStore(word, typed)
		}
		envPtr = env
	}

	bp.regs[inst.Dest] = bp.allocClosure(blk, fnPtr, envPtr)
	return nil
}

// widenToWord promotes a sub-64-bit integer to i64 so every captured slot
// is a uniform 8-byte word; pointers and 64-bit values pass through.
func widenToWord(blk *ir.Block, v value.Value, t *mir.Type) value.Value {
	if t == nil || !(t.IsInteger() || t.Kind == mir.KindBool) {
		return v
	}
	if t.BitWidth() >= 64 {
		return v
	}
	if t.Kind == mir.KindBool || t.IsSigned() {
		return blk.NewSExt(v, types.I64)
	}
	return blk.NewZExt(v, types.I64)
}

func (bp *bodyPass) translateClosureFunc(blk *ir.Block, inst mir.Instruction) error {
	closure, err := bp.valueOf(blk, inst.Closure)
	if err != nil {
		return bp.wrap(err)
	}
	bp.regs[inst.Dest] = bp.closureFuncPtr(blk, closure)
	return nil
}

func (bp *bodyPass) translateClosureEnv(blk *ir.Block, inst mir.Instruction) error {
	closure, err := bp.valueOf(blk, inst.Closure)
	if err != nil {
		return bp.wrap(err)
	}
	bp.regs[inst.Dest] = bp.closureEnvPtr(blk, closure)
	return nil
}

// traceClosureOrigin recovers the FuncID a closure value was built from,
// for diagnostics only (cranelift_backend.rs's find_function_ref_source):
// a direct function reference names its own FuncID; a register traces
// back one step to the OpFunctionRef/OpMakeClosure that defined it. Any
// other shape (a closure loaded out of a struct field, returned from a
// call, etc.) is not traced further — callers fall back to reporting the
// register number when this returns false.
func (bp *bodyPass) traceClosureOrigin(v mir.Value) (mir.FuncID, bool) {
	if v.Kind == mir.ValFuncRef {
		return v.Func, true
	}
	if v.Kind != mir.ValReg {
		return 0, false
	}
	for _, blkID := range bp.src.CFG.Order {
		for _, inst := range bp.src.CFG.Blocks[blkID].Instructions {
			if inst.Dest != v.Reg {
				continue
			}
			switch inst.Op {
			case mir.OpFunctionRef:
				return inst.RefFunc, true
			case mir.OpMakeClosure:
				return inst.ClosureFunc, true
			}
			return 0, false
		}
	}
	return 0, false
}
