package lower

import "github.com/rayzor-lang/rayzor/internal/mir"

// lowerExpr evaluates e, emitting whatever instructions are needed, and
// returns the mir.Value an enclosing instruction can reference directly
// (a constant or a fresh register).
func (fb *funcBuilder) lowerExpr(e Expr) mir.Value {
	switch ex := e.(type) {
	case *IntLit:
		return mir.ConstInt(ex.Type, ex.Value)
	case *FloatLit:
		return mir.ConstFloat(ex.Type, ex.Value)
	case *BoolLit:
		return mir.ConstBool(ex.Value)
	case *StringLit:
		return mir.ConstString(ex.Value)
	case *Ident:
		return fb.lowerIdent(ex)
	case *Binary:
		return fb.lowerBinary(ex)
	case *Unary:
		return fb.lowerUnary(ex)
	case *Call:
		return fb.lowerCall(ex)
	case *FieldAccess:
		return fb.lowerFieldAccess(ex)
	case *IndexExpr:
		return fb.lowerIndex(ex)
	case *StructLit:
		return fb.lowerStructLit(ex)
	case *EnumConstruct:
		return fb.lowerEnumConstruct(ex)
	case *ClosureExpr:
		return fb.lowerClosureExpr(ex)
	case *BorrowExpr:
		return fb.lowerOwnedRead(ex.X, borrowOp(ex.Mutable))
	case *CloneExpr:
		return fb.lowerOwnedRead(ex.X, mir.OpClone)
	}
	return mir.Value{}
}

func borrowOp(mutable bool) mir.Op {
	if mutable {
		return mir.OpBorrowMutable
	}
	return mir.OpBorrowImmutable
}

// lowerIdent reads a local or global binding, inserting the ownership
// instruction the TAST's annotation calls for (§4.2 "For every
// expression's declared ownership kind ... the lowerer emits the
// matching instruction").
func (fb *funcBuilder) lowerIdent(ex *Ident) mir.Value {
	v, ok := fb.lookup(ex.Name)
	if !ok {
		if g, ok := fb.lw.globalIDs[ex.Name]; ok {
			dest := fb.freshReg(ex.Type)
			fb.emit(mir.Instruction{Op: mir.OpLoadGlobal, Dest: dest, Type: ex.Type, Global: g})
			return mir.RegValue(ex.Type, dest)
		}
		return mir.Value{}
	}
	if ex.Owner == mir.OwnMove {
		v.live = false
	}
	return fb.lowerOwnedReadVar(v, opForOwnership(ex.Owner))
}

func opForOwnership(o mir.Ownership) mir.Op {
	switch o {
	case mir.OwnMove:
		return mir.OpMove
	case mir.OwnBorrowImmutable:
		return mir.OpBorrowImmutable
	case mir.OwnBorrowMutable:
		return mir.OpBorrowMutable
	case mir.OwnClone:
		return mir.OpClone
	default:
		return mir.OpCopy
	}
}

// lowerOwnedRead resolves e to a named binding (the only shape Borrow
// and Clone apply to in this language) and emits op against it.
func (fb *funcBuilder) lowerOwnedRead(e Expr, op mir.Op) mir.Value {
	name := identName(e)
	if name == "" {
		return fb.lowerExpr(e)
	}
	v, ok := fb.lookup(name)
	if !ok {
		return fb.lowerExpr(e)
	}
	if op == mir.OpMove {
		v.live = false
	}
	return fb.lowerOwnedReadVar(v, op)
}

func (fb *funcBuilder) lowerOwnedReadVar(v *scopedVar, op mir.Op) mir.Value {
	dest := fb.freshReg(v.typ)
	fb.emit(mir.Instruction{Op: op, Dest: dest, Type: v.typ, Src: mir.RegValue(v.typ, v.reg)})
	return mir.RegValue(v.typ, dest)
}

func (fb *funcBuilder) lowerBinary(ex *Binary) mir.Value {
	lhs := fb.lowerExpr(ex.LHS)
	rhs := fb.lowerExpr(ex.RHS)
	dest := fb.freshReg(ex.Type)
	if ex.IsCompare {
		fb.emit(mir.Instruction{Op: mir.OpCmp, Dest: dest, Type: ex.Type, Cmp: ex.Cmp, LHS: lhs, RHS: rhs})
	} else {
		fb.emit(mir.Instruction{Op: mir.OpBinOp, Dest: dest, Type: ex.Type, BinOp: ex.Op, LHS: lhs, RHS: rhs})
	}
	return mir.RegValue(ex.Type, dest)
}

func (fb *funcBuilder) lowerUnary(ex *Unary) mir.Value {
	operand := fb.lowerExpr(ex.X)
	dest := fb.freshReg(ex.Type)
	fb.emit(mir.Instruction{Op: mir.OpUnOp, Dest: dest, Type: ex.Type, UnOp: ex.Op, Operand: operand})
	return mir.RegValue(ex.Type, dest)
}

// lowerCallArg evaluates one call argument honoring its declared
// ownership rather than the generic Ident default, since a Borrow or
// Clone argument needs OpBorrow*/OpClone even though reading an Ident
// bare would otherwise default to Copy.
func (fb *funcBuilder) lowerCallArg(e Expr, own mir.Ownership) mir.Value {
	name := identName(e)
	if name == "" {
		return fb.lowerExpr(e)
	}
	v, ok := fb.lookup(name)
	if !ok {
		return fb.lowerExpr(e)
	}
	op := opForOwnership(own)
	if op == mir.OpMove {
		v.live = false
	}
	return fb.lowerOwnedReadVar(v, op)
}

func (fb *funcBuilder) lowerCall(ex *Call) mir.Value {
	fn := ex.Func
	typeArgs := ex.TypeArgs
	if len(typeArgs) > 0 && ex.Generic != "" {
		if specID, err := fb.lw.monomorphize(ex.Generic, typeArgs); err == nil {
			fn = specID
		}
		typeArgs = nil
	}

	args := make([]mir.Value, len(ex.Args))
	for i, a := range ex.Args {
		var own mir.Ownership
		if i < len(ex.ArgOwners) {
			own = ex.ArgOwners[i]
		}
		args[i] = fb.lowerCallArg(a, own)
	}

	inst := mir.Instruction{
		Op:           mir.OpCallDirect,
		Type:         ex.Type,
		CallFunc:     fn,
		Args:         args,
		ArgOwnership: ex.ArgOwners,
		TypeArgs:     typeArgs,
		IsTail:       ex.Tail,
	}
	if ex.Type == nil || ex.Type.Kind == mir.KindVoid {
		fb.emit(inst)
		return mir.Value{}
	}
	dest := fb.freshReg(ex.Type)
	inst.Dest = dest
	fb.emit(inst)
	return mir.RegValue(ex.Type, dest)
}

func (fb *funcBuilder) lowerFieldAccess(ex *FieldAccess) mir.Value {
	agg := fb.lowerExpr(ex.X)
	dest := fb.freshReg(ex.Type)
	fb.emit(mir.Instruction{
		Op:         mir.OpExtractValue,
		Dest:       dest,
		Type:       ex.Type,
		Aggregate:  agg,
		ExtractIdx: []int{ex.Index},
	})
	return mir.RegValue(ex.Type, dest)
}

func (fb *funcBuilder) lowerIndex(ex *IndexExpr) mir.Value {
	base := fb.lowerExpr(ex.X)
	idx := fb.lowerExpr(ex.Idx)
	ptrTy := mir.Ptr(ex.Type)
	ptr := fb.freshReg(ptrTy)
	fb.emit(mir.Instruction{Op: mir.OpGetElementPtr, Dest: ptr, Type: ptrTy, Ptr: base, Indices: []mir.Value{idx}})
	dest := fb.freshReg(ex.Type)
	fb.emit(mir.Instruction{Op: mir.OpLoad, Dest: dest, Type: ex.Type, Ptr: mir.RegValue(ptrTy, ptr)})
	return mir.RegValue(ex.Type, dest)
}

func (fb *funcBuilder) lowerStructLit(ex *StructLit) mir.Value {
	fields := make([]mir.Value, len(ex.Fields))
	for i, f := range ex.Fields {
		fields[i] = fb.lowerExpr(f)
	}
	dest := fb.freshReg(ex.Type)
	fb.emit(mir.Instruction{Op: mir.OpCreateStruct, Dest: dest, Type: ex.Type, StructType: ex.Type, FieldValues: fields})
	return mir.RegValue(ex.Type, dest)
}

// typeOfExpr recovers the static MIR type an already-typed expression
// produces, without re-walking it — every node already carries the
// type its own annotation pass computed.
func typeOfExpr(e Expr) *mir.Type {
	switch ex := e.(type) {
	case *IntLit:
		return ex.Type
	case *FloatLit:
		return ex.Type
	case *BoolLit:
		return mir.Bool()
	case *StringLit:
		return mir.StringT()
	case *Ident:
		return ex.Type
	case *Binary:
		return ex.Type
	case *Unary:
		return ex.Type
	case *Call:
		return ex.Type
	case *FieldAccess:
		return ex.Type
	case *IndexExpr:
		return ex.Type
	case *StructLit:
		return ex.Type
	case *EnumConstruct:
		return ex.Type
	case *ClosureExpr:
		return closureObjectType()
	case *BorrowExpr:
		return mir.Ref(typeOfExpr(ex.X))
	case *CloneExpr:
		return typeOfExpr(ex.X)
	}
	return nil
}

func (fb *funcBuilder) lowerEnumConstruct(ex *EnumConstruct) mir.Value {
	var payload mir.Value
	if ex.Payload != nil {
		payload = fb.lowerExpr(ex.Payload)
	}
	dest := fb.freshReg(ex.Type)
	fb.emit(mir.Instruction{
		Op:           mir.OpCreateUnion,
		Dest:         dest,
		Type:         ex.Type,
		UnionType:    ex.Type,
		Discriminant: ex.Tag,
		UnionValue:   payload,
	})
	return mir.RegValue(ex.Type, dest)
}
