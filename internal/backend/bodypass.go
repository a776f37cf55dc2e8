package backend

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

// run translates bp.src's CFG into bp.dst's body: pre-create every block,
// bind parameters (undoing sret/env/ConvC promotion so the function body
// sees the same register values internal/interp would compute), walk
// blocks once in reverse postorder building every instruction and a typed
// phi skeleton, then wire every pending phi's incoming edges.
func (bp *bodyPass) run() error {
	bp.sig = buildSignature(bp.b.cfg, bp.src)
	bp.blocks = map[mir.BlockID]*ir.Block{}
	bp.regs = map[mir.Id]value.Value{}

	rpo := bp.src.CFG.ReversePostorder()
	for _, id := range rpo {
		bp.blocks[id] = bp.dst.NewBlock(fmt.Sprintf("bb%d", id))
	}
	if len(rpo) == 0 {
		return &Error{Kind: ErrVerifier, Function: bp.src.Name, Detail: "function has no reachable blocks"}
	}
	entry := bp.blocks[bp.src.CFG.Entry]

	if err := bp.bindParams(entry); err != nil {
		return err
	}

	for _, id := range rpo {
		srcBlock := bp.src.CFG.Blocks[id]
		blk := bp.blocks[id]
		for _, node := range srcBlock.PhiNodes {
			// Built directly rather than through Block.NewPhi: with no
			// incoming edges known yet, NewPhi would leave the type
			// undetermined until the first Incoming is appended, but the
			// body pass needs a type immediately (other instructions in
			// this same first pass may already reference the phi's
			// register as an operand).
			phi := &ir.InstPhi{Typ: llvmType(node.Type)}
			blk.Insts = append(blk.Insts, phi)
			bp.regs[node.Dest] = phi
			bp.pendingPhis = append(bp.pendingPhis, pendingPhi{inst: phi, block: srcBlock, node: node})
		}
		for _, inst := range srcBlock.Instructions {
			if err := bp.translateInst(blk, inst); err != nil {
				return err
			}
		}
		if err := bp.translateTerm(blk, srcBlock.Terminator); err != nil {
			return err
		}
	}

	for _, pp := range bp.pendingPhis {
		for _, inc := range pp.node.Incoming {
			predBlock, ok := bp.blocks[inc.Pred]
			if !ok {
				return &Error{Kind: ErrVerifier, Function: bp.src.Name,
					Detail: fmt.Sprintf("phi for %%%d names unreachable predecessor block %d", pp.node.Dest, inc.Pred)}
			}
			v, ok := bp.regs[inc.Value]
			if !ok {
				return &Error{Kind: ErrVerifier, Function: bp.src.Name,
					Detail: fmt.Sprintf("phi for %%%d reads %%%d before it is defined", pp.node.Dest, inc.Value)}
			}
			v = coercePhiIncoming(predBlock, v, pp.node.Type)
			pp.inst.Incs = append(pp.inst.Incs, ir.NewIncoming(v, predBlock))
		}
	}

	return nil
}

// coercePhiIncoming inserts an int-width coercion at the end of pred (still
// legal since LLVM basic blocks execute Insts in slice order regardless of
// when an element was appended, and the terminator is a separate field) so
// a phi's incoming values always match its declared type even when a loop
// latch computed a different source width. Pointer/aggregate mismatches
// are not expected to occur and are passed through unchanged.
func coercePhiIncoming(pred *ir.Block, v value.Value, want *mir.Type) value.Value {
	wt := llvmType(want)
	if v.Type().Equal(wt) {
		return v
	}
	it, ok := wt.(*types.IntType)
	if !ok {
		return v
	}
	vit, ok := v.Type().(*types.IntType)
	if !ok {
		return v
	}
	if it.BitSize > vit.BitSize {
		return pred.NewZExt(v, it)
	}
	return pred.NewTrunc(v, it)
}

// bindParams binds bp.src's parameter registers to entry's llvm parameter
// values, reversing any ABI-level transformation buildSignature applied:
// sret/env params are skipped when indexing source params, and a
// ConvC-promoted parameter is narrowed back to its source width so the
// body's instructions see the same values as every other tier.
func (bp *bodyPass) bindParams(entry *ir.Block) error {
	llvmParams := bp.dst.Params
	idx := 0
	if bp.sig.UsesSRet {
		bp.sretSlot = llvmParams[idx]
		idx++
	}
	if bp.sig.NeedsEnv {
		bp.envParam = llvmParams[idx]
		idx++
	}
	params := bp.src.Signature.Params
	for i, p := range params {
		lp := llvmParams[idx+i]
		var v value.Value = lp
		if bp.src.Signature.Convention == mir.ConvC {
			_, _, promoted := Promote(bp.b.cfg.Promotion, p.Type)
			if promoted {
				v = entry.NewTrunc(lp, llvmType(p.Type))
			}
		}
		bp.regs[p.Reg] = v
	}
	return nil
}

// translateTerm lowers one MIR terminator. TermReturn writes through the
// sret slot (or promotes the value back up) exactly mirroring
// buildSignature's construction; TermNoReturn compiles to unreachable
// since the source guarantees control never falls through it (§4.4).
func (bp *bodyPass) translateTerm(blk *ir.Block, t mir.Terminator) error {
	switch t.Kind {
	case mir.TermReturn:
		if bp.sig.UsesSRet {
			if t.HasValue {
				v, err := bp.valueOf(blk, t.Value)
				if err != nil {
					return bp.wrap(err)
				}
				blobTy := blobType(mir.SizeOf(bp.src.Signature.ReturnType))
				srcTyped := blk.NewBitCast(v, types.NewPointer(blobTy))
				loaded := blk.NewLoad(blobTy, srcTyped)
				blk.NewStore(loaded, bp.sretSlot)
			}
			blk.NewRet(nil)
			return nil
		}
		if !t.HasValue {
			blk.NewRet(nil)
			return nil
		}
		v, err := bp.valueOf(blk, t.Value)
		if err != nil {
			return bp.wrap(err)
		}
		if bp.src.Signature.Convention == mir.ConvC && bp.sig.Promoted {
			v = coerce(blk, v, t.Value.Ty, llvmType(bp.sig.MIRReturn), bp.sig.MIRReturn)
			_, signed, _ := Promote(bp.b.cfg.Promotion, bp.src.Signature.ReturnType)
			target := bp.sig.ReturnType.(*types.IntType)
			if it, ok := v.Type().(*types.IntType); ok && it.BitSize != target.BitSize {
				if signed {
					v = blk.NewSExt(v, target)
				} else {
					v = blk.NewZExt(v, target)
				}
			}
		}
		blk.NewRet(v)
		return nil

	case mir.TermBranch:
		blk.NewBr(bp.blocks[t.Target])
		return nil

	case mir.TermCondBranch:
		cond, err := bp.valueOf(blk, t.Cond)
		if err != nil {
			return bp.wrap(err)
		}
		blk.NewCondBr(cond, bp.blocks[t.TrueTarget], bp.blocks[t.FalseTarget])
		return nil

	case mir.TermSwitch:
		v, err := bp.valueOf(blk, t.SwitchValue)
		if err != nil {
			return bp.wrap(err)
		}
		it, ok := v.Type().(*types.IntType)
		if !ok {
			return &Error{Kind: ErrVerifier, Function: bp.src.Name, Detail: "switch value is not an integer"}
		}
		cases := make([]*ir.Case, len(t.Cases))
		for i, c := range t.Cases {
			cases[i] = ir.NewCase(constant.NewInt(it, c.Value), bp.blocks[c.Target])
		}
		blk.NewSwitch(v, bp.blocks[t.Default], cases...)
		return nil

	case mir.TermUnreachable, mir.TermNoReturn:
		blk.NewUnreachable()
		return nil
	}
	return &Error{Kind: ErrVerifier, Function: bp.src.Name, Detail: "unknown terminator kind"}
}

// runtimeFunc returns (declaring on first use) the extern *ir.Func for a
// fixed-signature runtime symbol such as malloc/free — these are called
// directly by MIR memory ops rather than going through a mir.Function, so
// the lowerer never emits an extern declaration for them; the backend
// declares them itself the first time a module needs one; repeat lookups
// by the same name return the cached *ir.Func for THIS module (a *ir.Func
// still cannot cross modules, same reasoning as Backend.sharedSignatures).
func (bp *bodyPass) runtimeFunc(name string, params []types.Type, ret types.Type) *ir.Func {
	if fn, ok := bp.cm.ExternsByName[name]; ok {
		return fn
	}
	irParams := make([]*ir.Param, len(params))
	for i, t := range params {
		irParams[i] = ir.NewParam("", t)
	}
	fn := bp.cm.LLVM.NewFunc(name, ret, irParams...)
	bp.cm.ExternsByName[name] = fn
	return fn
}
