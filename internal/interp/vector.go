package interp

import "github.com/rayzor-lang/rayzor/internal/mir"

// Vector operations are emulated lane-wise here since pure Go has no
// portable SIMD intrinsics (§4.3's "emulated lane-wise when hardware SIMD
// is not accessible" — true of every Go build, so the interpreter always
// takes this path). A vector value is represented exactly like a small
// array: an arena pointer to Count contiguous Elem-sized slots.

func vectorElemSize(t *mir.Type) int { return mir.SizeOf(t.Elem) }

func (in *Interpreter) execVectorSplat(fr *frame, inst mir.Instruction) Value {
	vt := inst.Type
	es := vectorElemSize(vt)
	off := in.arena.Alloc(es * vt.Count)
	val := in.evalOperand(fr, inst.VecElem)
	for i := 0; i < vt.Count; i++ {
		in.arena.WriteAt(off+uint64(i*es), es, val.Bits)
	}
	return PtrValue(off)
}

func (in *Interpreter) execVectorExtract(fr *frame, inst mir.Instruction) Value {
	vec := in.evalOperand(fr, inst.VecValue)
	vt := operandType(fr, inst.VecValue)
	es := vectorElemSize(vt)
	idx := in.evalOperand(fr, inst.VecIndex).Int()
	return Value{Bits: in.arena.ReadAt(vec.Ptr+uint64(idx)*uint64(es), es)}
}

func (in *Interpreter) execVectorInsert(fr *frame, inst mir.Instruction) Value {
	vec := in.evalOperand(fr, inst.VecValue)
	vt := operandType(fr, inst.VecValue)
	es := vectorElemSize(vt)
	total := es * vt.Count
	newOff := in.arena.Alloc(total)
	in.arena.WriteBytes(newOff, in.arena.ReadBytes(vec.Ptr, total))
	idx := in.evalOperand(fr, inst.VecIndex).Int()
	elem := in.evalOperand(fr, inst.VecElem)
	in.arena.WriteAt(newOff+uint64(idx)*uint64(es), es, elem.Bits)
	return PtrValue(newOff)
}

func (in *Interpreter) execVectorBinOp(fr *frame, inst mir.Instruction) error {
	lhs := in.evalOperand(fr, inst.LHS)
	rhs := in.evalOperand(fr, inst.RHS)
	vt := inst.Type
	es := vectorElemSize(vt)
	destOff := in.arena.Alloc(es * vt.Count)
	for i := 0; i < vt.Count; i++ {
		a := Value{Bits: in.arena.ReadAt(lhs.Ptr+uint64(i*es), es)}
		b := Value{Bits: in.arena.ReadAt(rhs.Ptr+uint64(i*es), es)}
		r := applyBinOp(inst.BinOp, vt.Elem, a, b)
		in.arena.WriteAt(destOff+uint64(i*es), es, r.Bits)
	}
	fr.set(inst.Dest, PtrValue(destOff))
	return nil
}

func (in *Interpreter) execVectorUnaryOp(fr *frame, inst mir.Instruction) error {
	src := in.evalOperand(fr, inst.Operand)
	vt := inst.Type
	es := vectorElemSize(vt)
	destOff := in.arena.Alloc(es * vt.Count)
	for i := 0; i < vt.Count; i++ {
		v := Value{Bits: in.arena.ReadAt(src.Ptr+uint64(i*es), es)}
		r := applyUnOp(inst.UnOp, vt.Elem, v)
		in.arena.WriteAt(destOff+uint64(i*es), es, r.Bits)
	}
	fr.set(inst.Dest, PtrValue(destOff))
	return nil
}

// execVectorMinMax: VecValue and VecElem are reused here as the two
// source vector pointers (rather than vector+scalar, their role in
// Splat/Insert) — the flat Instruction layout trades a dedicated field
// for reuse across ops, per the struct's own "not every field applies to
// every Op" contract. VecReduce selects the direction: BinAdd for
// lane-wise minimum, BinSub for lane-wise maximum.
func (in *Interpreter) execVectorMinMax(fr *frame, inst mir.Instruction) Value {
	a := in.evalOperand(fr, inst.VecValue)
	b := in.evalOperand(fr, inst.VecElem)
	vt := inst.Type
	es := vectorElemSize(vt)
	destOff := in.arena.Alloc(es * vt.Count)
	wantMax := inst.VecReduce == mir.BinSub
	for i := 0; i < vt.Count; i++ {
		av := Value{Bits: in.arena.ReadAt(a.Ptr+uint64(i*es), es)}
		bv := Value{Bits: in.arena.ReadAt(b.Ptr+uint64(i*es), es)}
		var pick Value
		if laneLess(vt.Elem, av, bv) != wantMax {
			pick = av
		} else {
			pick = bv
		}
		in.arena.WriteAt(destOff+uint64(i*es), es, pick.Bits)
	}
	return PtrValue(destOff)
}

func (in *Interpreter) execVectorReduce(fr *frame, inst mir.Instruction) Value {
	vec := in.evalOperand(fr, inst.VecValue)
	vt := operandType(fr, inst.VecValue)
	es := vectorElemSize(vt)
	acc := Value{Bits: in.arena.ReadAt(vec.Ptr, es)}
	for i := 1; i < vt.Count; i++ {
		v := Value{Bits: in.arena.ReadAt(vec.Ptr+uint64(i*es), es)}
		acc = applyBinOp(inst.VecReduce, vt.Elem, acc, v)
	}
	return acc
}

func laneLess(elem *mir.Type, a, b Value) bool {
	if isFloatType(elem) {
		return a.Float() < b.Float()
	}
	return a.Int() < b.Int()
}

func applyBinOp(op mir.BinOpKind, elem *mir.Type, a, b Value) Value {
	if isFloatType(elem) {
		x, y := a.Float(), b.Float()
		switch op {
		case mir.BinAdd:
			return FloatValue(x + y)
		case mir.BinSub:
			return FloatValue(x - y)
		case mir.BinMul:
			return FloatValue(x * y)
		case mir.BinDiv:
			return FloatValue(x / y)
		}
		return FloatValue(0)
	}
	x, y := a.Int(), b.Int()
	switch op {
	case mir.BinAdd:
		return IntValue(x + y)
	case mir.BinSub:
		return IntValue(x - y)
	case mir.BinMul:
		return IntValue(x * y)
	case mir.BinDiv:
		if y == 0 {
			return IntValue(0)
		}
		return IntValue(x / y)
	case mir.BinMod:
		if y == 0 {
			return IntValue(0)
		}
		return IntValue(x % y)
	case mir.BinAnd:
		return IntValue(x & y)
	case mir.BinOr:
		return IntValue(x | y)
	case mir.BinXor:
		return IntValue(x ^ y)
	case mir.BinShl:
		return IntValue(x << uint(y))
	case mir.BinShr:
		return IntValue(x >> uint(y))
	}
	return IntValue(0)
}

func applyUnOp(op mir.UnOpKind, elem *mir.Type, v Value) Value {
	switch op {
	case mir.UnNeg:
		if isFloatType(elem) {
			return FloatValue(-v.Float())
		}
		return IntValue(-v.Int())
	case mir.UnNot:
		return BoolValue(!v.Bool())
	case mir.UnBitNot:
		return IntValue(^v.Int())
	}
	return v
}
