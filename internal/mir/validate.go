package mir

import "fmt"

// ValidationErrorKind classifies a validator finding, mirroring §7's
// "MIR validation errors" taxonomy.
type ValidationErrorKind int

const (
	ErrSSAViolation ValidationErrorKind = iota
	ErrPhiMismatch
	ErrUnreachableBlock
	ErrTypeMismatch
	ErrDanglingRegister
)

// ValidationError is one finding from Validate. The validator reports
// every failure before returning rather than aborting on the first
// (§4.1).
type ValidationError struct {
	Kind     ValidationErrorKind
	Function string
	Block    BlockID
	Message  string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("mir: %s: block %d: %s", e.Function, e.Block, e.Message)
}

// Validate checks f against every invariant in §3 and returns every
// violation found; a nil/empty result means f is well-formed.
func Validate(f *Function) []ValidationError {
	var errs []ValidationError
	if f.IsExternDecl() {
		if f.Attributes.Linkage != LinkImport {
			errs = append(errs, ValidationError{
				Kind: ErrSSAViolation, Function: f.Name,
				Message: "extern function must have Import linkage (invariant 3)",
			})
		}
		return errs
	}

	defined := map[Id]BlockID{}
	reachable := reachableBlocks(f.CFG)

	// Pass 1: record every definition site (phi dests + instruction dests).
	for _, id := range f.CFG.Order {
		b := f.CFG.Blocks[id]
		for _, phi := range b.PhiNodes {
			if prev, dup := defined[phi.Dest]; dup {
				errs = append(errs, ValidationError{
					Kind: ErrSSAViolation, Function: f.Name, Block: id,
					Message: fmt.Sprintf("register %%%d redefined (also defined in block %d)", phi.Dest, prev),
				})
			}
			defined[phi.Dest] = id
		}
		for _, inst := range b.Instructions {
			if !definesDest(inst.Op) {
				continue
			}
			if prev, dup := defined[inst.Dest]; dup {
				errs = append(errs, ValidationError{
					Kind: ErrSSAViolation, Function: f.Name, Block: id,
					Message: fmt.Sprintf("register %%%d redefined (also defined in block %d)", inst.Dest, prev),
				})
			}
			defined[inst.Dest] = id
		}
	}

	// Pass 2: phi incoming list must cover exactly the predecessor set (invariant 2).
	preds := f.CFG.Predecessors()
	for _, id := range f.CFG.Order {
		if !reachable[id] {
			continue
		}
		b := f.CFG.Blocks[id]
		blockPreds := preds[id]
		for _, phi := range b.PhiNodes {
			seen := map[BlockID]bool{}
			for _, inc := range phi.Incoming {
				seen[inc.Pred] = true
			}
			for _, p := range blockPreds {
				if !seen[p] {
					errs = append(errs, ValidationError{
						Kind: ErrPhiMismatch, Function: f.Name, Block: id,
						Message: fmt.Sprintf("phi for %%%d missing incoming value for predecessor block %d", phi.Dest, p),
					})
				}
			}
			if len(phi.Incoming) != len(blockPreds) {
				errs = append(errs, ValidationError{
					Kind: ErrPhiMismatch, Function: f.Name, Block: id,
					Message: fmt.Sprintf("phi for %%%d has %d incoming values, block has %d predecessors", phi.Dest, len(phi.Incoming), len(blockPreds)),
				})
			}
		}
	}

	// Pass 3: entry block must have no predecessors; every other reachable
	// block must be reachable (no dead blocks left after simplification).
	if len(preds[f.CFG.Entry]) != 0 {
		errs = append(errs, ValidationError{
			Kind: ErrSSAViolation, Function: f.Name, Block: f.CFG.Entry,
			Message: "entry block must have no predecessors",
		})
	}
	for _, id := range f.CFG.Order {
		if !reachable[id] {
			errs = append(errs, ValidationError{
				Kind: ErrUnreachableBlock, Function: f.Name, Block: id,
				Message: "block is unreachable from entry; run simplify before validating",
			})
		}
	}

	// Pass 4: every use must name a register defined in a block that
	// dominates the use (approximated here as: defined in a block that
	// reaches the use along every path — computed via dominance).
	dom := computeDominators(f.CFG, reachable)
	for _, id := range f.CFG.Order {
		if !reachable[id] {
			continue
		}
		b := f.CFG.Blocks[id]
		checkVal := func(v Value) {
			if v.Kind != ValReg {
				return
			}
			defBlock, ok := defined[v.Reg]
			if !ok {
				errs = append(errs, ValidationError{
					Kind: ErrDanglingRegister, Function: f.Name, Block: id,
					Message: fmt.Sprintf("use of undefined register %%%d", v.Reg),
				})
				return
			}
			if !dominates(dom, defBlock, id) {
				errs = append(errs, ValidationError{
					Kind: ErrSSAViolation, Function: f.Name, Block: id,
					Message: fmt.Sprintf("use of %%%d in block %d not dominated by its definition in block %d", v.Reg, id, defBlock),
				})
			}
		}
		for _, phi := range b.PhiNodes {
			for _, inc := range phi.Incoming {
				defBlock, ok := defined[inc.Value]
				if !ok {
					errs = append(errs, ValidationError{
						Kind: ErrDanglingRegister, Function: f.Name, Block: id,
						Message: fmt.Sprintf("phi for %%%d: use of undefined register %%%d on edge from block %d", phi.Dest, inc.Value, inc.Pred),
					})
					continue
				}
				// A phi operand is live on its incoming edge, not at the phi
				// itself: the definition must dominate inc.Pred, the
				// predecessor block for that edge, not the block holding
				// the phi (standard SSA phi-operand dominance rule).
				if !reachable[inc.Pred] {
					continue
				}
				if !dominates(dom, defBlock, inc.Pred) {
					errs = append(errs, ValidationError{
						Kind: ErrSSAViolation, Function: f.Name, Block: id,
						Message: fmt.Sprintf("phi for %%%d: %%%d on edge from block %d not dominated by its definition in block %d", phi.Dest, inc.Value, inc.Pred, defBlock),
					})
				}
			}
		}
		for _, inst := range b.Instructions {
			forEachOperand(inst, checkVal)
		}
		forEachTermOperand(b.Terminator, checkVal)
	}

	return errs
}

func definesDest(op Op) bool {
	switch op {
	case OpStore, OpFree, OpEndBorrow, OpVectorStore, OpStoreGlobal:
		return false
	default:
		return true
	}
}

func reachableBlocks(cfg *CFG) map[BlockID]bool {
	reachable := map[BlockID]bool{}
	var visit func(id BlockID)
	visit = func(id BlockID) {
		if reachable[id] {
			return
		}
		reachable[id] = true
		b, ok := cfg.Blocks[id]
		if !ok {
			return
		}
		for _, succ := range b.Terminator.Successors() {
			visit(succ)
		}
	}
	visit(cfg.Entry)
	return reachable
}

// computeDominators is the standard iterative dataflow dominator
// computation (Cooper/Harvey/Kennedy), restricted to reachable blocks.
func computeDominators(cfg *CFG, reachable map[BlockID]bool) map[BlockID]map[BlockID]bool {
	order := make([]BlockID, 0, len(cfg.Order))
	for _, id := range cfg.Order {
		if reachable[id] {
			order = append(order, id)
		}
	}
	dom := map[BlockID]map[BlockID]bool{}
	all := map[BlockID]bool{}
	for _, id := range order {
		all[id] = true
	}
	for _, id := range order {
		if id == cfg.Entry {
			dom[id] = map[BlockID]bool{id: true}
		} else {
			dom[id] = cloneSet(all)
		}
	}
	preds := cfg.Predecessors()
	changed := true
	for changed {
		changed = false
		for _, id := range order {
			if id == cfg.Entry {
				continue
			}
			var newDom map[BlockID]bool
			for _, p := range preds[id] {
				if !reachable[p] {
					continue
				}
				if newDom == nil {
					newDom = cloneSet(dom[p])
				} else {
					intersect(newDom, dom[p])
				}
			}
			if newDom == nil {
				newDom = map[BlockID]bool{}
			}
			newDom[id] = true
			if !setEqual(newDom, dom[id]) {
				dom[id] = newDom
				changed = true
			}
		}
	}
	return dom
}

func dominates(dom map[BlockID]map[BlockID]bool, a, b BlockID) bool {
	set, ok := dom[b]
	if !ok {
		return false
	}
	return set[a]
}

func cloneSet(s map[BlockID]bool) map[BlockID]bool {
	c := make(map[BlockID]bool, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

func intersect(a, b map[BlockID]bool) {
	for k := range a {
		if !b[k] {
			delete(a, k)
		}
	}
}

func setEqual(a, b map[BlockID]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// forEachOperand visits every Value operand of inst that could be a use of
// a prior register (skips Dest, which is a definition, not a use).
func forEachOperand(inst Instruction, visit func(Value)) {
	switch inst.Op {
	case OpCopy, OpMove, OpClone, OpBorrowImmutable, OpBorrowMutable, OpFree, OpEndBorrow:
		visit(inst.Src)
	case OpBinOp:
		visit(inst.LHS)
		visit(inst.RHS)
	case OpUnOp:
		visit(inst.Operand)
	case OpCmp:
		visit(inst.LHS)
		visit(inst.RHS)
	case OpCast, OpBitCast:
		visit(inst.CastFrom)
	case OpLoad, OpVectorLoad:
		visit(inst.Ptr)
	case OpStore, OpVectorStore:
		visit(inst.Ptr)
		visit(inst.StoreValue)
	case OpGetElementPtr:
		visit(inst.Ptr)
		for _, idx := range inst.Indices {
			visit(idx)
		}
	case OpPtrAdd:
		visit(inst.Ptr)
		visit(inst.Offset)
	case OpCreateStruct:
		for _, v := range inst.FieldValues {
			visit(v)
		}
	case OpCreateUnion:
		visit(inst.UnionValue)
	case OpExtractValue:
		visit(inst.Aggregate)
	case OpCallDirect:
		for _, a := range inst.Args {
			visit(a)
		}
	case OpCallIndirect:
		visit(inst.FuncPtr)
		for _, a := range inst.Args {
			visit(a)
		}
	case OpMakeClosure:
		for _, v := range inst.CapturedValues {
			visit(v)
		}
	case OpClosureFunc, OpClosureEnv:
		visit(inst.Closure)
	case OpVectorSplat:
		visit(inst.VecElem)
	case OpVectorExtract:
		visit(inst.VecValue)
		visit(inst.VecIndex)
	case OpVectorInsert:
		visit(inst.VecValue)
		visit(inst.VecIndex)
		visit(inst.VecElem)
	case OpVectorMinMax:
		visit(inst.VecValue)
		visit(inst.VecElem)
	case OpVectorReduce:
		visit(inst.VecValue)
	case OpStoreGlobal:
		visit(inst.StoreValue)
	}
}

func forEachTermOperand(t Terminator, visit func(Value)) {
	switch t.Kind {
	case TermReturn:
		if t.HasValue {
			visit(t.Value)
		}
	case TermCondBranch:
		visit(t.Cond)
	case TermSwitch:
		visit(t.SwitchValue)
	}
}
