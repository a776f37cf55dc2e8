package interp

import (
	"fmt"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

// exec executes a single non-terminator instruction against fr, mutating
// fr's registers and the interpreter's arena as a side effect.
func (in *Interpreter) exec(fr *frame, inst mir.Instruction) error {
	switch inst.Op {
	case mir.OpConst:
		fr.set(inst.Dest, in.evalOperand(fr, inst.Const))

	case mir.OpCopy, mir.OpMove, mir.OpClone, mir.OpBorrowImmutable, mir.OpBorrowMutable:
		// All five share the same runtime bit pattern: ownership is a
		// static discipline checked by C8, not something tier 0 needs to
		// re-enforce at the value level (§4.3 "ownership instructions are
		// no-ops at the value level; they exist so every tier observes
		// the same Drop points").
		fr.set(inst.Dest, in.evalOperand(fr, inst.Src))

	case mir.OpEndBorrow, mir.OpFree:
		v := in.evalOperand(fr, inst.Src)
		if inst.Op == mir.OpFree && !v.IsNull() {
			in.arena.Free(v.Ptr)
		}

	case mir.OpBinOp:
		return in.execBinOp(fr, inst)

	case mir.OpUnOp:
		return in.execUnOp(fr, inst)

	case mir.OpCmp:
		fr.set(inst.Dest, in.execCmp(fr, inst))

	case mir.OpCast, mir.OpBitCast:
		fr.set(inst.Dest, in.execCast(fr, inst))

	case mir.OpAlloc:
		size := mir.SizeOf(inst.AllocType) * maxInt(inst.AllocCount, 1)
		fr.set(inst.Dest, PtrValue(in.arena.Alloc(size)))

	case mir.OpLoad:
		ptr := in.evalOperand(fr, inst.Ptr)
		width := mir.SizeOf(inst.Type)
		if isFloatType(inst.Type) {
			fr.set(inst.Dest, Value{Bits: in.arena.ReadAt(ptr.Ptr, width)})
		} else {
			fr.set(inst.Dest, signExtendIfNeeded(in.arena.ReadAt(ptr.Ptr, width), width, inst.Type))
		}

	case mir.OpStore:
		ptr := in.evalOperand(fr, inst.Ptr)
		val := in.evalOperand(fr, inst.StoreValue)
		width := mir.SizeOf(storeValueType(fr, inst))
		in.arena.WriteAt(ptr.Ptr, width, val.Bits)

	case mir.OpGetElementPtr:
		base := in.evalOperand(fr, inst.Ptr)
		off := uint64(0)
		t := inst.Type
		for i, idxVal := range inst.Indices {
			_ = i
			idx := in.evalOperand(fr, idxVal).Int()
			off += uint64(idx) * uint64(mir.SizeOf(t))
		}
		fr.set(inst.Dest, PtrValue(base.Ptr+off))

	case mir.OpPtrAdd:
		base := in.evalOperand(fr, inst.Ptr)
		off := in.evalOperand(fr, inst.Offset)
		fr.set(inst.Dest, PtrValue(base.Ptr+uint64(off.Int())))

	case mir.OpCreateStruct:
		off := in.arena.Alloc(mir.SizeOf(inst.StructType))
		for i, fv := range inst.FieldValues {
			v := in.evalOperand(fr, fv)
			fieldOff := off + uint64(mir.FieldOffset(inst.StructType, i))
			in.arena.WriteAt(fieldOff, mir.SizeOf(inst.StructType.Fields[i].Type), v.Bits)
		}
		fr.set(inst.Dest, PtrValue(off))

	case mir.OpCreateUnion:
		off := in.arena.Alloc(mir.SizeOf(inst.UnionType))
		in.arena.WriteU32(off, uint64(inst.Discriminant))
		if inst.Discriminant < len(inst.UnionType.Variants) {
			payload := in.evalOperand(fr, inst.UnionValue)
			in.arena.WriteAt(off+uint64(mir.UnionPayloadOffset(inst.UnionType)), 8, payload.Bits)
		}
		fr.set(inst.Dest, PtrValue(off))

	case mir.OpExtractValue:
		agg := in.evalOperand(fr, inst.Aggregate)
		off := agg.Ptr
		t := aggregateElemType(fr, inst)
		for t != nil && (t.Kind == mir.KindPtr || t.Kind == mir.KindRef) {
			t = t.Elem
		}
		for _, idx := range inst.ExtractIdx {
			switch {
			case t != nil && t.Kind == mir.KindStruct:
				off += uint64(mir.FieldOffset(t, idx))
				t = t.Fields[idx].Type
			case t != nil && t.Kind == mir.KindUnion:
				// idx 0 selects the discriminant tag; idx>=1 selects field
				// (idx-1) of the variant the caller has already branched
				// on, so its type comes from the matching variant's
				// Fields list (variant 0 when there is exactly one
				// payload-bearing arm, the common Option/Result shape).
				if idx == 0 {
					off += 0
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
				off += uint64(payloadOff)
				if fieldIdx < len(variantFields) {
					t = variantFields[fieldIdx].Type
				} else {
					t = nil
				}
			case t != nil && (t.Kind == mir.KindArray || t.Kind == mir.KindVector):
				off += uint64(idx) * uint64(mir.SizeOf(t.Elem))
				t = t.Elem
			default:
				off += uint64(idx) * 8
				t = nil
			}
		}
		fr.set(inst.Dest, Value{Bits: in.arena.ReadAt(off, mir.SizeOf(inst.Type)), Ptr: off})

	case mir.OpCallDirect:
		return in.execCallDirect(fr, inst)

	case mir.OpCallIndirect:
		return in.execCallIndirect(fr, inst)

	case mir.OpFunctionRef:
		fr.set(inst.Dest, in.makeFunctionRefClosure(inst.RefFunc))

	case mir.OpMakeClosure:
		fr.set(inst.Dest, in.makeClosure(fr, inst))

	case mir.OpClosureFunc:
		c := in.evalOperand(fr, inst.Closure)
		fr.set(inst.Dest, IntValue(int64(in.arena.ReadU64(c.Ptr))))

	case mir.OpClosureEnv:
		c := in.evalOperand(fr, inst.Closure)
		fr.set(inst.Dest, PtrValue(in.arena.ReadU64(c.Ptr+8)))

	case mir.OpVectorLoad:
		fr.set(inst.Dest, in.evalOperand(fr, inst.Ptr))
	case mir.OpVectorStore:
		ptr := in.evalOperand(fr, inst.Ptr)
		val := in.evalOperand(fr, inst.StoreValue)
		in.arena.WriteU64(ptr.Ptr, val.Bits)
	case mir.OpVectorSplat:
		fr.set(inst.Dest, in.execVectorSplat(fr, inst))
	case mir.OpVectorExtract:
		fr.set(inst.Dest, in.execVectorExtract(fr, inst))
	case mir.OpVectorInsert:
		fr.set(inst.Dest, in.execVectorInsert(fr, inst))
	case mir.OpVectorBinOp:
		return in.execVectorBinOp(fr, inst)
	case mir.OpVectorUnaryOp:
		return in.execVectorUnaryOp(fr, inst)
	case mir.OpVectorMinMax:
		fr.set(inst.Dest, in.execVectorMinMax(fr, inst))
	case mir.OpVectorReduce:
		fr.set(inst.Dest, in.execVectorReduce(fr, inst))

	case mir.OpLoadGlobal:
		fr.set(inst.Dest, in.loadGlobal(inst.Global, inst.Type))

	case mir.OpStoreGlobal:
		in.storeGlobal(inst.Global, in.evalOperand(fr, inst.StoreValue))

	case mir.OpUndef:
		fr.set(inst.Dest, Value{})

	default:
		return &Trap{Kind: TrapUnreachable, Function: fr.fn.Name, Message: fmt.Sprintf("unhandled op %d", inst.Op)}
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func isFloatType(t *mir.Type) bool {
	return t != nil && (t.Kind == mir.KindF32 || t.Kind == mir.KindF64)
}

// signExtendIfNeeded widens a narrower-than-64-bit integer load according
// to its signedness, so register values are always canonically
// sign/zero-extended to 64 bits regardless of the load width — matching
// the ABI-level integer promotion rule applied at extern call boundaries
// (see callExtern).
func signExtendIfNeeded(raw uint64, width int, t *mir.Type) Value {
	if t == nil || !t.IsInteger() || width >= 8 {
		return Value{Bits: raw}
	}
	if !t.IsSigned() {
		return Value{Bits: raw}
	}
	shift := uint(64 - width*8)
	signed := int64(raw<<shift) >> shift
	return Value{Bits: uint64(signed)}
}

func storeValueType(fr *frame, inst mir.Instruction) *mir.Type {
	if inst.StoreValue.Kind == mir.ValReg {
		if t := fr.typeOf(inst.StoreValue.Reg); t != nil {
			return t
		}
	}
	return mir.I64()
}

func aggregateElemType(fr *frame, inst mir.Instruction) *mir.Type {
	if inst.Aggregate.Kind == mir.ValReg {
		return fr.typeOf(inst.Aggregate.Reg)
	}
	return nil
}

func (in *Interpreter) execBinOp(fr *frame, inst mir.Instruction) error {
	lhs := in.evalOperand(fr, inst.LHS)
	rhs := in.evalOperand(fr, inst.RHS)

	if isFloatType(inst.Type) {
		a, b := lhs.Float(), rhs.Float()
		var r float64
		switch inst.BinOp {
		case mir.BinAdd:
			r = a + b
		case mir.BinSub:
			r = a - b
		case mir.BinMul:
			r = a * b
		case mir.BinDiv:
			r = a / b
		default:
			return &Trap{Kind: TrapUnreachable, Function: fr.fn.Name, Message: "invalid float binop"}
		}
		if isF32(inst.Type) {
			r = truncToF32(r)
		}
		fr.set(inst.Dest, FloatValue(r))
		return nil
	}

	a, b := lhs.Int(), rhs.Int()
	var r int64
	switch inst.BinOp {
	case mir.BinAdd:
		r = a + b
	case mir.BinSub:
		r = a - b
	case mir.BinMul:
		r = a * b
	case mir.BinDiv:
		if b == 0 {
			return &Trap{Kind: TrapDivisionByZero, Function: fr.fn.Name, Message: "division by zero"}
		}
		r = a / b
	case mir.BinMod:
		if b == 0 {
			return &Trap{Kind: TrapDivisionByZero, Function: fr.fn.Name, Message: "modulo by zero"}
		}
		r = a % b
	case mir.BinAnd:
		r = a & b
	case mir.BinOr:
		r = a | b
	case mir.BinXor:
		r = a ^ b
	case mir.BinShl:
		r = a << uint(b)
	case mir.BinShr:
		r = a >> uint(b)
	}
	fr.set(inst.Dest, IntValue(r))
	return nil
}

func (in *Interpreter) execUnOp(fr *frame, inst mir.Instruction) error {
	v := in.evalOperand(fr, inst.Operand)
	switch inst.UnOp {
	case mir.UnNeg:
		if isFloatType(inst.Type) {
			fr.set(inst.Dest, FloatValue(-v.Float()))
		} else {
			fr.set(inst.Dest, IntValue(-v.Int()))
		}
	case mir.UnNot:
		fr.set(inst.Dest, BoolValue(!v.Bool()))
	case mir.UnBitNot:
		fr.set(inst.Dest, IntValue(^v.Int()))
	}
	return nil
}

func (in *Interpreter) execCmp(fr *frame, inst mir.Instruction) Value {
	lhs := in.evalOperand(fr, inst.LHS)
	rhs := in.evalOperand(fr, inst.RHS)

	var cmp int
	if isFloatType(operandType(fr, inst.LHS)) {
		a, b := lhs.Float(), rhs.Float()
		switch {
		case a < b:
			cmp = -1
		case a > b:
			cmp = 1
		default:
			cmp = 0
		}
	} else {
		a, b := lhs.Int(), rhs.Int()
		switch {
		case a < b:
			cmp = -1
		case a > b:
			cmp = 1
		default:
			cmp = 0
		}
	}

	switch inst.Cmp {
	case mir.CmpEq:
		return BoolValue(cmp == 0)
	case mir.CmpNeq:
		return BoolValue(cmp != 0)
	case mir.CmpLt:
		return BoolValue(cmp < 0)
	case mir.CmpLeq:
		return BoolValue(cmp <= 0)
	case mir.CmpGt:
		return BoolValue(cmp > 0)
	case mir.CmpGeq:
		return BoolValue(cmp >= 0)
	}
	return BoolValue(false)
}

func operandType(fr *frame, v mir.Value) *mir.Type {
	if v.Kind == mir.ValReg {
		return fr.typeOf(v.Reg)
	}
	if v.Kind == mir.ValConstFloat {
		return mir.F64()
	}
	return mir.I64()
}

func (in *Interpreter) execCast(fr *frame, inst mir.Instruction) Value {
	v := in.evalOperand(fr, inst.CastFrom)
	from := operandType(fr, inst.CastFrom)
	to := inst.CastTo

	switch {
	case isFloatType(from) && to.IsInteger():
		return IntValue(int64(v.Float()))
	case from != nil && from.IsInteger() && isFloatType(to):
		return FloatValue(float64(v.Int()))
	case isFloatType(from) && isFloatType(to):
		if to.Kind == mir.KindF32 {
			return FloatValue(truncToF32(v.Float()))
		}
		return v
	case from != nil && to != nil && from.IsInteger() && to.IsInteger():
		width := to.BitWidth()
		if width >= 64 {
			return v
		}
		mask := uint64(1)<<uint(width) - 1
		raw := v.Bits & mask
		if to.IsSigned() {
			shift := uint(64 - width)
			return IntValue(int64(raw<<shift) >> shift)
		}
		return UintValue(raw)
	default:
		// bitcast: reinterpret without conversion
		return v
	}
}

func (in *Interpreter) loadGlobal(id mir.GlobalID, t *mir.Type) Value {
	if in.globals == nil {
		return Value{}
	}
	return in.globals[id]
}

func (in *Interpreter) storeGlobal(id mir.GlobalID, v Value) {
	if in.globals == nil {
		in.globals = map[mir.GlobalID]Value{}
	}
	in.globals[id] = v
}
