package backend

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

// translateInst appends the machine instruction(s) for one MIR
// instruction to blk, recording its result (if any) in bp.regs.
// Ownership instructions (Move/Clone/Borrow*/EndBorrow) are no-ops at the
// value level here exactly as they are in internal/interp (§4.3): C8 has
// already checked the discipline statically, so every tier just forwards
// the bit pattern.
func (bp *bodyPass) translateInst(blk *ir.Block, inst mir.Instruction) error {
	switch inst.Op {
	case mir.OpConst:
		v, err := bp.valueOf(blk, inst.Const)
		if err != nil {
			return bp.wrap(err)
		}
		bp.regs[inst.Dest] = v

	case mir.OpCopy, mir.OpMove, mir.OpClone, mir.OpBorrowImmutable, mir.OpBorrowMutable:
		v, err := bp.valueOf(blk, inst.Src)
		if err != nil {
			return bp.wrap(err)
		}
		bp.regs[inst.Dest] = v

	case mir.OpEndBorrow:
		// no machine effect

	case mir.OpFree:
		v, err := bp.valueOf(blk, inst.Src)
		if err != nil {
			return bp.wrap(err)
		}
		freeFn := bp.runtimeFunc("free", []types.Type{types.NewPointer(types.I8)}, types.Void)
		blk.NewCall(freeFn, v)

	case mir.OpBinOp:
		return bp.translateBinOp(blk, inst)

	case mir.OpUnOp:
		return bp.translateUnOp(blk, inst)

	case mir.OpCmp:
		return bp.translateCmp(blk, inst)

	case mir.OpCast, mir.OpBitCast:
		return bp.translateCast(blk, inst)

	case mir.OpAlloc:
		size := mir.SizeOf(inst.AllocType) * maxInt(inst.AllocCount, 1)
		mallocFn := bp.runtimeFunc("malloc", []types.Type{types.I64}, types.NewPointer(types.I8))
		call := blk.NewCall(mallocFn, constant.NewInt(types.I64, int64(maxInt(size, 1))))
		bp.regs[inst.Dest] = call

	case mir.OpLoad:
		ptr, err := bp.valueOf(blk, inst.Ptr)
		if err != nil {
			return bp.wrap(err)
		}
		target := llvmType(inst.Type)
		typed := blk.NewBitCast(ptr, types.NewPointer(target))
		bp.regs[inst.Dest] = blk.NewLoad(target, typed)

	case mir.OpStore:
		ptr, err := bp.valueOf(blk, inst.Ptr)
		if err != nil {
			return bp.wrap(err)
		}
		val, err := bp.valueOf(blk, inst.StoreValue)
		if err != nil {
			return bp.wrap(err)
		}
		typed := blk.NewBitCast(ptr, types.NewPointer(val.Type()))
		blk.NewStore(val, typed)

	case mir.OpGetElementPtr:
		return bp.translateGEP(blk, inst)

	case mir.OpPtrAdd:
		base, err := bp.valueOf(blk, inst.Ptr)
		if err != nil {
			return bp.wrap(err)
		}
		off, err := bp.valueOf(blk, inst.Offset)
		if err != nil {
			return bp.wrap(err)
		}
		off64 := coerce(blk, off, inst.Offset.Ty, types.I64, mir.I64())
		raw := blk.NewBitCast(base, types.NewPointer(types.I8))
		bp.regs[inst.Dest] = blk.NewGetElementPtr(types.I8, raw, off64)

	case mir.OpCreateStruct:
		return bp.translateCreateStruct(blk, inst)

	case mir.OpCreateUnion:
		return bp.translateCreateUnion(blk, inst)

	case mir.OpExtractValue:
		return bp.translateExtractValue(blk, inst)

	case mir.OpCallDirect:
		return bp.translateCallDirect(blk, inst)

	case mir.OpCallIndirect:
		return bp.translateCallIndirect(blk, inst)

	case mir.OpFunctionRef:
		v, err := bp.closureForFuncRef(blk, inst.RefFunc)
		if err != nil {
			return bp.wrap(err)
		}
		bp.regs[inst.Dest] = v

	case mir.OpMakeClosure:
		return bp.translateMakeClosure(blk, inst)

	case mir.OpClosureFunc:
		return bp.translateClosureFunc(blk, inst)

	case mir.OpClosureEnv:
		return bp.translateClosureEnv(blk, inst)

	case mir.OpLoadGlobal:
		return bp.translateLoadGlobal(blk, inst)

	case mir.OpStoreGlobal:
		return bp.translateStoreGlobal(blk, inst)

	case mir.OpUndef:
		bp.regs[inst.Dest] = zeroOf(llvmType(inst.Type))

	default:
		return &Error{Kind: ErrUnsupportedInstruction, Function: bp.src.Name,
			Detail: fmt.Sprintf("op %d (vector ops are not yet lowered by this backend)", inst.Op)}
	}
	return nil
}

// zeroOf picks a deterministic zero value for t. The MIR model has no
// meaningful "undefined" bit pattern to preserve the way LLVM's own
// poison/undef does, so OpUndef destinations get a concrete zero instead —
// keeping codegen output deterministic between runs.
func zeroOf(t types.Type) value.Value {
	switch tt := t.(type) {
	case *types.IntType:
		return constant.NewInt(tt, 0)
	case *types.FloatType:
		return constant.NewFloat(tt, 0)
	case *types.PointerType:
		return constant.NewNull(tt)
	default:
		return constant.NewZeroInitializer(t)
	}
}

func (bp *bodyPass) wrap(err error) error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Kind: ErrUnsupportedInstruction, Function: bp.src.Name, Detail: err.Error()}
}

func (bp *bodyPass) translateBinOp(blk *ir.Block, inst mir.Instruction) error {
	x, err := bp.valueOf(blk, inst.LHS)
	if err != nil {
		return bp.wrap(err)
	}
	y, err := bp.valueOf(blk, inst.RHS)
	if err != nil {
		return bp.wrap(err)
	}
	isFloat := inst.Type != nil && (inst.Type.Kind == mir.KindF32 || inst.Type.Kind == mir.KindF64)
	signed := inst.Type != nil && inst.Type.IsInteger() && inst.Type.IsSigned()
	var result value.Value
	switch inst.BinOp {
	case mir.BinAdd:
		if isFloat {
			result = blk.NewFAdd(x, y)
		} else {
			result = blk.NewAdd(x, y)
		}
	case mir.BinSub:
		if isFloat {
			result = blk.NewFSub(x, y)
		} else {
			result = blk.NewSub(x, y)
		}
	case mir.BinMul:
		if isFloat {
			result = blk.NewFMul(x, y)
		} else {
			result = blk.NewMul(x, y)
		}
	case mir.BinDiv:
		switch {
		case isFloat:
			result = blk.NewFDiv(x, y)
		case signed:
			result = blk.NewSDiv(x, y)
		default:
			result = blk.NewUDiv(x, y)
		}
	case mir.BinMod:
		switch {
		case isFloat:
			result = blk.NewFRem(x, y)
		case signed:
			result = blk.NewSRem(x, y)
		default:
			result = blk.NewURem(x, y)
		}
	case mir.BinAnd:
		result = blk.NewAnd(x, y)
	case mir.BinOr:
		result = blk.NewOr(x, y)
	case mir.BinXor:
		result = blk.NewXor(x, y)
	case mir.BinShl:
		result = blk.NewShl(x, y)
	case mir.BinShr:
		if signed {
			result = blk.NewAShr(x, y)
		} else {
			result = blk.NewLShr(x, y)
		}
	default:
		return &Error{Kind: ErrUnsupportedInstruction, Function: bp.src.Name, Detail: "unknown BinOpKind"}
	}
	bp.regs[inst.Dest] = result
	return nil
}

func (bp *bodyPass) translateUnOp(blk *ir.Block, inst mir.Instruction) error {
	x, err := bp.valueOf(blk, inst.Operand)
	if err != nil {
		return bp.wrap(err)
	}
	isFloat := inst.Type != nil && (inst.Type.Kind == mir.KindF32 || inst.Type.Kind == mir.KindF64)
	switch inst.UnOp {
	case mir.UnNeg:
		if isFloat {
			bp.regs[inst.Dest] = blk.NewFNeg(x)
		} else {
			it, _ := x.Type().(*types.IntType)
			bp.regs[inst.Dest] = blk.NewSub(constant.NewInt(it, 0), x)
		}
	case mir.UnNot:
		it, _ := x.Type().(*types.IntType)
		bp.regs[inst.Dest] = blk.NewXor(x, constant.NewInt(it, 1))
	case mir.UnBitNot:
		it, _ := x.Type().(*types.IntType)
		bp.regs[inst.Dest] = blk.NewXor(x, constant.NewInt(it, -1))
	default:
		return &Error{Kind: ErrUnsupportedInstruction, Function: bp.src.Name, Detail: "unknown UnOpKind"}
	}
	return nil
}

func (bp *bodyPass) translateCmp(blk *ir.Block, inst mir.Instruction) error {
	x, err := bp.valueOf(blk, inst.LHS)
	if err != nil {
		return bp.wrap(err)
	}
	y, err := bp.valueOf(blk, inst.RHS)
	if err != nil {
		return bp.wrap(err)
	}
	srcTy := inst.LHS.Ty
	isFloat := srcTy != nil && (srcTy.Kind == mir.KindF32 || srcTy.Kind == mir.KindF64)
	signed := srcTy != nil && srcTy.IsInteger() && srcTy.IsSigned()
	if isFloat {
		bp.regs[inst.Dest] = blk.NewFCmp(floatPred(inst.Cmp), x, y)
		return nil
	}
	bp.regs[inst.Dest] = blk.NewICmp(intPred(inst.Cmp, signed), x, y)
	return nil
}

func intPred(c mir.CmpKind, signed bool) enum.IPred {
	switch c {
	case mir.CmpEq:
		return enum.IPredEQ
	case mir.CmpNeq:
		return enum.IPredNE
	case mir.CmpLt:
		if signed {
			return enum.IPredSLT
		}
		return enum.IPredULT
	case mir.CmpLeq:
		if signed {
			return enum.IPredSLE
		}
		return enum.IPredULE
	case mir.CmpGt:
		if signed {
			return enum.IPredSGT
		}
		return enum.IPredUGT
	case mir.CmpGeq:
		if signed {
			return enum.IPredSGE
		}
		return enum.IPredUGE
	}
	return enum.IPredEQ
}

func floatPred(c mir.CmpKind) enum.FPred {
	switch c {
	case mir.CmpEq:
		return enum.FPredOEQ
	case mir.CmpNeq:
		return enum.FPredONE
	case mir.CmpLt:
		return enum.FPredOLT
	case mir.CmpLeq:
		return enum.FPredOLE
	case mir.CmpGt:
		return enum.FPredOGT
	case mir.CmpGeq:
		return enum.FPredOGE
	}
	return enum.FPredOEQ
}

func (bp *bodyPass) translateCast(blk *ir.Block, inst mir.Instruction) error {
	x, err := bp.valueOf(blk, inst.CastFrom)
	if err != nil {
		return bp.wrap(err)
	}
	from := inst.CastFrom.Ty
	to := inst.CastTo
	target := llvmType(to)
	bp.regs[inst.Dest] = coerce(blk, x, from, target, to)
	return nil
}

// coerce widens/narrows/reinterprets x from mir type "from" to the llvm
// type "target" (mir type "to"), matching the ABI glue's sextend/ireduce
// rule (§4.4): sign-extend signed sources, zero-extend unsigned, truncate
// when narrowing, bitcast between same-width int/float or pointer kinds.
func coerce(blk *ir.Block, x value.Value, from *mir.Type, target types.Type, to *mir.Type) value.Value {
	if from == nil || to == nil {
		return x
	}
	if from.Kind == to.Kind {
		return x
	}
	switch {
	case from.IsInteger() && to.IsInteger():
		fw, tw := from.BitWidth(), to.BitWidth()
		switch {
		case tw > fw && from.IsSigned():
			return blk.NewSExt(x, target)
		case tw > fw:
			return blk.NewZExt(x, target)
		case tw < fw:
			return blk.NewTrunc(x, target)
		default:
			return blk.NewBitCast(x, target)
		}
	case from.IsInteger() && (to.Kind == mir.KindF64 || to.Kind == mir.KindF32):
		if from.IsSigned() {
			return blk.NewSIToFP(x, target)
		}
		return blk.NewUIToFP(x, target)
	case (from.Kind == mir.KindF32 || from.Kind == mir.KindF64) && to.IsInteger():
		if to.IsSigned() {
			return blk.NewFPToSI(x, target)
		}
		return blk.NewFPToUI(x, target)
	case from.Kind == mir.KindF32 && to.Kind == mir.KindF64:
		return blk.NewFPExt(x, target)
	case from.Kind == mir.KindF64 && to.Kind == mir.KindF32:
		return blk.NewFPTrunc(x, target)
	default:
		return blk.NewBitCast(x, target)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
