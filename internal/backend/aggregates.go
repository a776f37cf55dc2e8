package backend

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

// translateGEP mirrors internal/interp/ops.go's OpGetElementPtr exactly:
// every index contributes idx*mir.SizeOf(inst.Type) bytes, where inst.Type
// is fixed for the whole instruction (the word-stride convention, not a
// per-level structural walk) — so this lowers to integer arithmetic over
// an i8 base pointer rather than an LLVM struct-typed getelementptr.
func (bp *bodyPass) translateGEP(blk *ir.Block, inst mir.Instruction) error {
	base, err := bp.valueOf(blk, inst.Ptr)
	if err != nil {
		return bp.wrap(err)
	}
	stride := int64(mir.SizeOf(inst.Type))
	off := value.Value(constant.NewInt(types.I64, 0))
	for _, idxVal := range inst.Indices {
		idx, err := bp.valueOf(blk, idxVal)
		if err != nil {
			return bp.wrap(err)
		}
		idx64 := coerce(blk, idx, idxVal.Ty, types.I64, mir.I64())
		scaled := blk.NewMul(idx64, constant.NewInt(types.I64, stride))
		off = blk.NewAdd(off, scaled)
	}
	raw := blk.NewBitCast(base, types.NewPointer(types.I8))
	bp.regs[inst.Dest] = blk.NewGetElementPtr(types.I8, raw, off)
	return nil
}

// translateCreateStruct allocates SizeOf(StructType) bytes through the
// runtime allocator and writes each field at its layout.go-computed
// offset, matching internal/interp's OpCreateStruct (which uses its own
// arena in place of a real allocator). The destination register holds the
// resulting pointer, per llvmType's "aggregates are always boxed" rule.
func (bp *bodyPass) translateCreateStruct(blk *ir.Block, inst mir.Instruction) error {
	size := mir.SizeOf(inst.StructType)
	mallocFn := bp.runtimeFunc("malloc", []types.Type{types.I64}, types.NewPointer(types.I8))
	ptr := blk.NewCall(mallocFn, constant.NewInt(types.I64, int64(maxInt(size, 1))))
	for i, fv := range inst.FieldValues {
		v, err := bp.valueOf(blk, fv)
		if err != nil {
			return bp.wrap(err)
		}
		fieldOff := mir.FieldOffset(inst.StructType, i)
		fieldTy := llvmType(inst.StructType.Fields[i].Type)
		dst := gepConst(blk, ptr, fieldOff, fieldTy)
		blk.NewStore(v, dst)
	}
	bp.regs[inst.Dest] = ptr
	return nil
}

// translateCreateUnion writes the discriminant tag then, when the chosen
// variant carries a payload, the payload value at UnionPayloadOffset,
// matching internal/interp's OpCreateUnion.
func (bp *bodyPass) translateCreateUnion(blk *ir.Block, inst mir.Instruction) error {
	size := mir.SizeOf(inst.UnionType)
	mallocFn := bp.runtimeFunc("malloc", []types.Type{types.I64}, types.NewPointer(types.I8))
	ptr := blk.NewCall(mallocFn, constant.NewInt(types.I64, int64(maxInt(size, 1))))
	tagDst := blk.NewBitCast(ptr, types.NewPointer(types.I32))
	blk.NewStore(constant.NewInt(types.I32, int64(inst.Discriminant)), tagDst)
	if inst.Discriminant < len(inst.UnionType.Variants) && len(inst.UnionType.Variants[inst.Discriminant].Fields) > 0 {
		v, err := bp.valueOf(blk, inst.UnionValue)
		if err != nil {
			return bp.wrap(err)
		}
		payloadOff := mir.UnionPayloadOffset(inst.UnionType)
		dst := gepConst(blk, ptr, payloadOff, v.Type())
		blk.NewStore(v, dst)
	}
	bp.regs[inst.Dest] = ptr
	return nil
}

// translateExtractValue walks inst.ExtractIdx through the aggregate's
// static type computing a byte offset exactly as internal/interp's
// OpExtractValue does (struct fields via FieldOffset, union payloads via
// UnionPayloadOffset with the discriminant-then-payload convention, arrays
// via element stride, and an idx*8 fallback otherwise) and loads the
// result at that offset — as a pointer, without a load, when the
// extracted field is itself an aggregate kind (boxed aggregates only ever
// exist behind a pointer).
func (bp *bodyPass) translateExtractValue(blk *ir.Block, inst mir.Instruction) error {
	agg, err := bp.valueOf(blk, inst.Aggregate)
	if err != nil {
		return bp.wrap(err)
	}
	t := bp.aggregateElemType(inst)
	for t != nil && (t.Kind == mir.KindPtr || t.Kind == mir.KindRef) {
		t = t.Elem
	}

	raw := blk.NewBitCast(agg, types.NewPointer(types.I8))
	off := value.Value(constant.NewInt(types.I64, 0))
	for _, idx := range inst.ExtractIdx {
		switch {
		case t != nil && t.Kind == mir.KindStruct:
			off = blk.NewAdd(off, constant.NewInt(types.I64, int64(mir.FieldOffset(t, idx))))
			t = t.Fields[idx].Type
		case t != nil && t.Kind == mir.KindUnion:
			if idx == 0 {
				t = mir.I32()
				continue
			}
			fieldIdx := idx - 1
			var variantFields []mir.Field
			for _, v := range t.Variants {
				if len(v.Fields) > 0 {
					variantFields = v.Fields
					break
				}
			}
			payloadOff := mir.UnionPayloadOffset(t)
			for i := 0; i < fieldIdx && i < len(variantFields); i++ {
				payloadOff += mir.SizeOf(variantFields[i].Type)
			}
			off = blk.NewAdd(off, constant.NewInt(types.I64, int64(payloadOff)))
			if fieldIdx < len(variantFields) {
				t = variantFields[fieldIdx].Type
			} else {
				t = nil
			}
		case t != nil && (t.Kind == mir.KindArray || t.Kind == mir.KindVector):
			off = blk.NewAdd(off, constant.NewInt(types.I64, int64(idx)*int64(mir.SizeOf(t.Elem))))
			t = t.Elem
		default:
			off = blk.NewAdd(off, constant.NewInt(types.I64, int64(idx)*8))
			t = nil
		}
	}

	fieldPtr := blk.NewGetElementPtr(types.I8, raw, off)
	resultTy := llvmType(inst.Type)
	if inst.Type != nil && isAggregateKind(inst.Type.Kind) {
		bp.regs[inst.Dest] = blk.NewBitCast(fieldPtr, resultTy)
		return nil
	}
	typed := blk.NewBitCast(fieldPtr, types.NewPointer(resultTy))
	bp.regs[inst.Dest] = blk.NewLoad(resultTy, typed)
	return nil
}

func (bp *bodyPass) aggregateElemType(inst mir.Instruction) *mir.Type {
	if inst.Aggregate.Kind == mir.ValReg {
		return bp.src.RegisterTypes[inst.Aggregate.Reg]
	}
	return nil
}

func isAggregateKind(k mir.TypeKind) bool {
	switch k {
	case mir.KindString, mir.KindSlice, mir.KindStruct, mir.KindUnion,
		mir.KindArray, mir.KindVector, mir.KindOpaque, mir.KindAny:
		return true
	}
	return false
}

// gepConst computes base+offset with a constant byte offset, typed as a
// pointer to want.
func gepConst(blk *ir.Block, base value.Value, offset int, want types.Type) value.Value {
	raw := blk.NewBitCast(base, types.NewPointer(types.I8))
	fieldPtr := blk.NewGetElementPtr(types.I8, raw, constant.NewInt(types.I64, int64(offset)))
	return blk.NewBitCast(fieldPtr, types.NewPointer(want))
}
