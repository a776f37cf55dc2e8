package lower

import "github.com/rayzor-lang/rayzor/internal/mir"

func (fb *funcBuilder) lowerStmts(stmts []Stmt) {
	for _, s := range stmts {
		fb.lowerStmt(s)
	}
}

func (fb *funcBuilder) lowerStmt(s Stmt) {
	switch st := s.(type) {
	case *ExprStmt:
		fb.lowerExpr(st.X)

	case *VarDecl:
		val := fb.lowerCallArg(st.Init, st.Owner)
		reg := fb.materializeReg(val, st.Type)
		fb.bind(st.Name, reg, st.Type)

	case *Assign:
		val := fb.lowerCallArg(st.Value, st.Owner)
		fb.lowerAssignTarget(st.Target, val)

	case *If:
		fb.lowerIf(st)

	case *While:
		fb.lowerWhile(st)

	case *ForRange:
		fb.lowerForRange(st)

	case *ForArray:
		fb.lowerForArray(st)

	case *ForIterable:
		fb.lowerForIterable(st)

	case *Return:
		fb.lowerReturn(st)

	case *Break:
		fb.lowerBreak()

	case *Continue:
		fb.lowerContinue()

	case *Match:
		fb.lowerMatch(st)
	}
}

// materializeReg ensures val is addressable by a register, wrapping a
// bare constant in OpConst when nothing already computed one (an
// IntLit/FloatLit/etc. initializer never goes through an instruction on
// its own).
func (fb *funcBuilder) materializeReg(val mir.Value, t *mir.Type) mir.Id {
	if val.Kind == mir.ValReg {
		return val.Reg
	}
	dest := fb.freshReg(t)
	fb.emit(mir.Instruction{Op: mir.OpConst, Dest: dest, Type: t, Const: val})
	return dest
}

// lowerAssignTarget writes val back to a local (a pure SSA rename — the
// scope's live binding simply now refers to a new register) or, for a
// composite lvalue, to an address computed from the aggregate's static
// layout (§4.2).
func (fb *funcBuilder) lowerAssignTarget(target Expr, val mir.Value) {
	switch t := target.(type) {
	case *Ident:
		v, ok := fb.lookup(t.Name)
		if !ok {
			return
		}
		v.reg = fb.materializeReg(val, t.Type)
		v.live = true

	case *FieldAccess:
		agg := fb.lowerExpr(t.X)
		structTy := typeOfExpr(t.X)
		offset := mir.FieldOffset(structTy, t.Index)
		ptrTy := mir.Ptr(t.Type)
		ptr := fb.freshReg(ptrTy)
		fb.emit(mir.Instruction{Op: mir.OpPtrAdd, Dest: ptr, Type: ptrTy, Ptr: agg, Offset: mir.ConstInt(mir.I64(), int64(offset))})
		fb.emit(mir.Instruction{Op: mir.OpStore, Ptr: mir.RegValue(ptrTy, ptr), StoreValue: val})

	case *IndexExpr:
		base := fb.lowerExpr(t.X)
		idx := fb.lowerExpr(t.Idx)
		ptrTy := mir.Ptr(t.Type)
		ptr := fb.freshReg(ptrTy)
		fb.emit(mir.Instruction{Op: mir.OpGetElementPtr, Dest: ptr, Type: ptrTy, Ptr: base, Indices: []mir.Value{idx}})
		fb.emit(mir.Instruction{Op: mir.OpStore, Ptr: mir.RegValue(ptrTy, ptr), StoreValue: val})
	}
}

// lowerIf desugars to CondBranch plus a merge block (§4.2 "if ... desugars
// to CondBranch plus a merge block"). Statement-level if never produces a
// value, so no phi is needed at the merge point itself.
func (fb *funcBuilder) lowerIf(st *If) {
	cond := fb.lowerExpr(st.Cond)
	thenBlock := fb.newBlock()
	mergeBlock := fb.newBlock()

	if st.Else == nil {
		fb.terminate(mir.CondBranch(cond, thenBlock.ID, mergeBlock.ID))
		fb.cur = thenBlock
		fb.pushScope()
		fb.lowerStmts(st.Then)
		fb.popScope(fb.cur)
		fb.terminate(mir.Branch(mergeBlock.ID))
		fb.cur = mergeBlock
		return
	}

	elseBlock := fb.newBlock()
	fb.terminate(mir.CondBranch(cond, thenBlock.ID, elseBlock.ID))

	fb.cur = thenBlock
	fb.pushScope()
	fb.lowerStmts(st.Then)
	fb.popScope(fb.cur)
	fb.terminate(mir.Branch(mergeBlock.ID))

	fb.cur = elseBlock
	fb.pushScope()
	fb.lowerStmts(st.Else)
	fb.popScope(fb.cur)
	fb.terminate(mir.Branch(mergeBlock.ID))

	fb.cur = mergeBlock
}

// loopCarriedVar tracks one already-declared outer binding that the loop
// body reassigns. Without this, a straight SSA rename (lowerAssignTarget's
// Ident case) would only be visible within the single lowering pass that
// produced it — the block's instructions are static and re-executed
// verbatim on every runtime iteration, so a variable mutated in the body
// needs a header-block phi exactly like the loop's own counter, or later
// iterations would keep reading the value it held on entry.
type loopCarriedVar struct {
	v        *scopedVar
	phiReg   mir.Id
	entryReg mir.Id
}

// prepareLoopCarried finds every outer binding body reassigns and rewires
// each to a fresh placeholder register that the header's phi will define,
// recording what's needed to complete the phi once the latch's final
// register for each is known. Must run before body is lowered, so that
// every read within body (and within any nested construct) observes the
// phi register rather than the pre-loop one.
func (fb *funcBuilder) prepareLoopCarried(body []Stmt) []*loopCarriedVar {
	names := map[string]bool{}
	collectAssignedIdents(body, names)
	var carried []*loopCarriedVar
	for name := range names {
		v, ok := fb.lookup(name)
		if !ok {
			continue
		}
		phiReg := fb.freshReg(v.typ)
		carried = append(carried, &loopCarriedVar{v: v, phiReg: phiReg, entryReg: v.reg})
		v.reg = phiReg
	}
	return carried
}

// finishLoopCarried completes each phi once the value flowing in along
// the back edge is known — latchReg is read per-var at call time, so
// callers control exactly which point in the loop's tail that value is
// captured at (directly after the body for While/ForIterable, or after
// the body but paired with the latch block's ID for ForRange/ForArray,
// since the carried var's register doesn't change again between the two).
func finishLoopCarried(header *mir.Block, preheaderID, latchID mir.BlockID, carried []*loopCarriedVar) {
	for _, c := range carried {
		header.PhiNodes = append(header.PhiNodes, mir.PhiNode{
			Dest: c.phiReg,
			Type: c.v.typ,
			Incoming: []mir.PhiIncoming{
				{Pred: preheaderID, Value: c.entryReg},
				{Pred: latchID, Value: c.v.reg},
			},
		})
	}
}

// collectAssignedIdents walks a loop body (recursing into nested blocks,
// including nested loops — an outer-scope variable mutated inside a
// nested loop still needs the outer loop's own phi, and the nested loop
// wires its own phi independently) collecting every identifier an Assign
// targets directly.
func collectAssignedIdents(stmts []Stmt, out map[string]bool) {
	for _, s := range stmts {
		switch st := s.(type) {
		case *Assign:
			if name := identName(st.Target); name != "" {
				out[name] = true
			}
		case *If:
			collectAssignedIdents(st.Then, out)
			collectAssignedIdents(st.Else, out)
		case *While:
			collectAssignedIdents(st.Body, out)
		case *ForRange:
			collectAssignedIdents(st.Body, out)
		case *ForArray:
			collectAssignedIdents(st.Body, out)
		case *ForIterable:
			collectAssignedIdents(st.Body, out)
		case *Match:
			for _, arm := range st.Arms {
				collectAssignedIdents(arm.Body, out)
			}
		}
	}
}

// lowerWhile builds header/body/exit blocks (§4.2). Continue re-enters
// the header (re-testing the condition); Break jumps straight to exit.
func (fb *funcBuilder) lowerWhile(st *While) {
	preheader := fb.cur
	header := fb.newBlock()
	body := fb.newBlock()
	exit := fb.newBlock()

	fb.terminate(mir.Branch(header.ID))

	carried := fb.prepareLoopCarried(st.Body)

	fb.cur = header
	cond := fb.lowerExpr(st.Cond)
	fb.terminate(mir.CondBranch(cond, body.ID, exit.ID))

	fb.loops = append(fb.loops, loopTargets{breakTarget: exit.ID, continueTarget: header.ID, scopeDepth: len(fb.scopes)})
	fb.cur = body
	fb.pushScope()
	fb.lowerStmts(st.Body)
	fb.popScope(fb.cur)
	latch := fb.cur
	fb.terminate(mir.Branch(header.ID))
	fb.loops = fb.loops[:len(fb.loops)-1]

	finishLoopCarried(header, preheader.ID, latch.ID, carried)

	fb.cur = exit
}

// lowerForRange implements the counted loop via a header-block phi
// merging the preheader's initial value with the latch's incremented
// value — the shape the interpreter's phi-resolution-by-predecessor
// logic expects (§4.2, §8 "for i in 0..5").
func (fb *funcBuilder) lowerForRange(st *ForRange) {
	lo := fb.lowerExpr(st.Lo)
	preheader := fb.cur
	loReg := fb.materializeReg(lo, intType(st))

	header := fb.newBlock()
	body := fb.newBlock()
	latch := fb.newBlock()
	exit := fb.newBlock()

	fb.terminate(mir.Branch(header.ID))

	counterTy := intType(st)
	counter := fb.freshReg(counterTy)

	carried := fb.prepareLoopCarried(st.Body)

	fb.cur = header
	hi := fb.lowerExpr(st.Hi)
	cond := fb.freshReg(mir.Bool())
	fb.emit(mir.Instruction{Op: mir.OpCmp, Dest: cond, Type: mir.Bool(), Cmp: mir.CmpLt, LHS: mir.RegValue(counterTy, counter), RHS: hi})
	fb.terminate(mir.CondBranch(mir.RegValue(mir.Bool(), cond), body.ID, exit.ID))

	fb.loops = append(fb.loops, loopTargets{breakTarget: exit.ID, continueTarget: latch.ID, scopeDepth: len(fb.scopes)})
	fb.cur = body
	fb.pushScope()
	fb.bind(st.Var, counter, counterTy)
	fb.lowerStmts(st.Body)
	fb.popScope(fb.cur)
	finishLoopCarried(header, preheader.ID, latch.ID, carried)
	fb.terminate(mir.Branch(latch.ID))

	fb.cur = latch
	next := fb.freshReg(counterTy)
	fb.emit(mir.Instruction{
		Op: mir.OpBinOp, Dest: next, Type: counterTy, BinOp: mir.BinAdd,
		LHS: mir.RegValue(counterTy, counter), RHS: mir.ConstInt(counterTy, 1),
	})
	fb.terminate(mir.Branch(header.ID))
	fb.loops = fb.loops[:len(fb.loops)-1]

	header.PhiNodes = append(header.PhiNodes, mir.PhiNode{
		Dest: counter,
		Type: counterTy,
		Incoming: []mir.PhiIncoming{
			{Pred: preheader.ID, Value: loReg},
			{Pred: latch.ID, Value: next},
		},
	})

	fb.cur = exit
}

func intType(st *ForRange) *mir.Type {
	if t := typeOfExpr(st.Lo); t != nil {
		return t
	}
	return mir.I64()
}

// lowerForArray reads `.length` once into a loop-invariant bound, then
// walks the index 0..length via the same header/body/latch shape as
// ForRange (§4.2 "for-array ... reading .length once").
func (fb *funcBuilder) lowerForArray(st *ForArray) {
	arr := fb.lowerExpr(st.Array)
	arrTy := typeOfExpr(st.Array)
	elemTy := arrayElemType(arrTy)

	lengthTy := mir.I64()
	var lengthVal mir.Value
	if arrTy != nil && arrTy.Kind == mir.KindArray {
		// A fixed-size array's length is static; no runtime read needed.
		lengthVal = mir.ConstInt(lengthTy, int64(arrTy.Count))
	} else {
		// Slice = {ptr, len}; len is the second machine word.
		lenPtrTy := mir.Ptr(lengthTy)
		lenPtr := fb.freshReg(lenPtrTy)
		fb.emit(mir.Instruction{Op: mir.OpPtrAdd, Dest: lenPtr, Type: lenPtrTy, Ptr: arr, Offset: mir.ConstInt(mir.I64(), mir.PointerSize)})
		lenReg := fb.freshReg(lengthTy)
		fb.emit(mir.Instruction{Op: mir.OpLoad, Dest: lenReg, Type: lengthTy, Ptr: mir.RegValue(lenPtrTy, lenPtr)})
		lengthVal = mir.RegValue(lengthTy, lenReg)
	}
	length := fb.materializeReg(lengthVal, lengthTy)

	preheader := fb.cur
	idxTy := mir.I64()
	idx0 := fb.materializeReg(mir.ConstInt(idxTy, 0), idxTy)

	header := fb.newBlock()
	body := fb.newBlock()
	latch := fb.newBlock()
	exit := fb.newBlock()

	fb.terminate(mir.Branch(header.ID))

	carried := fb.prepareLoopCarried(st.Body)

	idx := fb.freshReg(idxTy)
	fb.cur = header
	cond := fb.freshReg(mir.Bool())
	fb.emit(mir.Instruction{Op: mir.OpCmp, Dest: cond, Type: mir.Bool(), Cmp: mir.CmpLt, LHS: mir.RegValue(idxTy, idx), RHS: mir.RegValue(lengthTy, length)})
	fb.terminate(mir.CondBranch(mir.RegValue(mir.Bool(), cond), body.ID, exit.ID))

	fb.loops = append(fb.loops, loopTargets{breakTarget: exit.ID, continueTarget: latch.ID, scopeDepth: len(fb.scopes)})
	fb.cur = body
	fb.pushScope()
	ptrTy := mir.Ptr(elemTy)
	ptr := fb.freshReg(ptrTy)
	fb.emit(mir.Instruction{Op: mir.OpGetElementPtr, Dest: ptr, Type: ptrTy, Ptr: arr, Indices: []mir.Value{mir.RegValue(idxTy, idx)}})
	val := fb.freshReg(elemTy)
	fb.emit(mir.Instruction{Op: mir.OpLoad, Dest: val, Type: elemTy, Ptr: mir.RegValue(ptrTy, ptr)})
	fb.bind(st.Var, val, elemTy)
	fb.lowerStmts(st.Body)
	fb.popScope(fb.cur)
	finishLoopCarried(header, preheader.ID, latch.ID, carried)
	fb.terminate(mir.Branch(latch.ID))

	fb.cur = latch
	next := fb.freshReg(idxTy)
	fb.emit(mir.Instruction{Op: mir.OpBinOp, Dest: next, Type: idxTy, BinOp: mir.BinAdd, LHS: mir.RegValue(idxTy, idx), RHS: mir.ConstInt(idxTy, 1)})
	fb.terminate(mir.Branch(header.ID))
	fb.loops = fb.loops[:len(fb.loops)-1]

	header.PhiNodes = append(header.PhiNodes, mir.PhiNode{
		Dest: idx,
		Type: idxTy,
		Incoming: []mir.PhiIncoming{
			{Pred: preheader.ID, Value: idx0},
			{Pred: latch.ID, Value: next},
		},
	})

	fb.cur = exit
}

func arrayElemType(t *mir.Type) *mir.Type {
	if t != nil && t.Elem != nil {
		return t.Elem
	}
	return mir.I64()
}

// lowerForIterable desugars to `iter = x.iterator(); while (iter.hasNext())
// { v = iter.next(); body }` (§4.2), reusing lowerWhile's header/body/exit
// shape directly rather than re-deriving it.
func (fb *funcBuilder) lowerForIterable(st *ForIterable) {
	iterable := fb.lowerExpr(st.Iterable)
	iterTy := mir.Ptr(mir.Void())
	iterReg := fb.freshReg(iterTy)
	fb.emit(mir.Instruction{Op: mir.OpCallDirect, Dest: iterReg, Type: iterTy, CallFunc: st.IteratorFunc, Args: []mir.Value{iterable}})

	preheader := fb.cur
	header := fb.newBlock()
	body := fb.newBlock()
	exit := fb.newBlock()
	fb.terminate(mir.Branch(header.ID))

	carried := fb.prepareLoopCarried(st.Body)

	fb.cur = header
	hasNext := fb.freshReg(mir.Bool())
	fb.emit(mir.Instruction{Op: mir.OpCallDirect, Dest: hasNext, Type: mir.Bool(), CallFunc: st.HasNextFunc, Args: []mir.Value{mir.RegValue(iterTy, iterReg)}})
	fb.terminate(mir.CondBranch(mir.RegValue(mir.Bool(), hasNext), body.ID, exit.ID))

	fb.loops = append(fb.loops, loopTargets{breakTarget: exit.ID, continueTarget: header.ID, scopeDepth: len(fb.scopes)})
	fb.cur = body
	fb.pushScope()
	elemTy := st.ElemType
	if elemTy == nil {
		elemTy = mir.Void()
	}
	val := fb.freshReg(elemTy)
	fb.emit(mir.Instruction{Op: mir.OpCallDirect, Dest: val, Type: elemTy, CallFunc: st.NextFunc, Args: []mir.Value{mir.RegValue(iterTy, iterReg)}})
	fb.bind(st.Var, val, elemTy)
	fb.lowerStmts(st.Body)
	fb.popScope(fb.cur)
	latch := fb.cur
	fb.terminate(mir.Branch(header.ID))
	fb.loops = fb.loops[:len(fb.loops)-1]

	finishLoopCarried(header, preheader.ID, latch.ID, carried)

	fb.cur = exit
}

func (fb *funcBuilder) lowerReturn(st *Return) {
	fb.dropAllScopesForExit(fb.cur, 0)
	if st.Value == nil {
		fb.terminate(mir.ReturnVoid())
		return
	}
	val := fb.lowerExpr(st.Value)
	fb.terminate(mir.Return(val))
}

func (fb *funcBuilder) lowerBreak() {
	if len(fb.loops) == 0 {
		return
	}
	lt := fb.loops[len(fb.loops)-1]
	fb.dropAllScopesForExit(fb.cur, lt.scopeDepth)
	fb.terminate(mir.Branch(lt.breakTarget))
}

func (fb *funcBuilder) lowerContinue() {
	if len(fb.loops) == 0 {
		return
	}
	lt := fb.loops[len(fb.loops)-1]
	fb.dropAllScopesForExit(fb.cur, lt.scopeDepth)
	fb.terminate(mir.Branch(lt.continueTarget))
}
