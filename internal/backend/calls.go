package backend

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

// translateCallDirect resolves inst.CallFunc within this module (direct
// calls never cross modules; the controller resolves cross-module calls
// through closures/symbols, never a bare FuncID, per §3 "Modules") and
// builds the call per the same ABI buildSignature constructed: sret slot
// first, env pointer second when the callee needs one, then arguments
// promoted at C-extern call sites exactly as their signature was.
func (bp *bodyPass) translateCallDirect(blk *ir.Block, inst mir.Instruction) error {
	callee, calleeSig, calleeMIR, err := bp.resolveDirectCallee(inst.CallFunc)
	if err != nil {
		return err
	}

	var sretAlloca value.Value
	args := make([]value.Value, 0, len(inst.Args)+2)
	if calleeSig.UsesSRet {
		blobTy := blobType(mir.SizeOf(calleeSig.MIRReturn))
		sretAlloca = blk.NewAlloca(blobTy)
		args = append(args, sretAlloca)
	}
	if calleeSig.NeedsEnv {
		env, err := bp.envArgument(blk, calleeMIR)
		if err != nil {
			return err
		}
		args = append(args, env)
	}
	for i, a := range inst.Args {
		v, err := bp.valueOf(blk, a)
		if err != nil {
			return bp.wrap(err)
		}
		if calleeMIR != nil && calleeMIR.Signature.Convention == mir.ConvC && i < len(calleeSig.Params) {
			want := calleeSig.Params[len(calleeSig.Params)-len(inst.Args)+i]
			if want.MIRType != nil {
				machineTy, _, _ := Promote(bp.b.cfg.Promotion, want.MIRType)
				v = coerce(blk, v, a.Ty, llvmType(machineTy), machineTy)
			}
		}
		args = append(args, v)
	}

	var call value.Value
	if calleeMIR != nil && calleeMIR.IsExternDecl() && !calleeSig.UsesSRet {
		if inlined, ok := bp.tryInlineMathCall(blk, calleeMIR.Name, args); ok {
			call = inlined
		}
	}
	if call == nil {
		call = blk.NewCall(callee, args...)
	}

	if calleeSig.UsesSRet {
		bp.regs[inst.Dest] = sretAlloca
		return nil
	}
	if calleeMIR != nil && calleeMIR.Signature.Convention == mir.ConvC && calleeSig.Promoted {
		bp.regs[inst.Dest] = coerce(blk, call, calleeSig.MIRReturn, llvmType(inst.Type), inst.Type)
		return nil
	}
	bp.regs[inst.Dest] = call
	return nil
}

// envArgument supplies the implicit environment pointer a Haxe-convention
// callee expects: always null, since a direct call names a static
// function and carries no closure state. A closure value's env travels
// through OpCallIndirect instead, which reads it explicitly via
// OpClosureEnv.
func (bp *bodyPass) envArgument(blk *ir.Block, callee *mir.Function) (value.Value, error) {
	return zeroOf(types.NewPointer(types.I8)), nil
}

func (bp *bodyPass) resolveDirectCallee(id mir.FuncID) (*ir.Func, MachineSignature, *mir.Function, error) {
	if f, ok := bp.cm.Source.Functions[id]; ok {
		fn, ok := bp.cm.Funcs[id]
		if !ok {
			return nil, MachineSignature{}, nil, &Error{Kind: ErrUnresolvedReference, Function: bp.src.Name,
				Detail: fmt.Sprintf("call to function %d whose own compilation failed", id)}
		}
		return fn, buildSignature(bp.b.cfg, f), f, nil
	}
	if f, ok := bp.cm.Source.ExternFunctions[id]; ok {
		fn, ok := bp.cm.Externs[id]
		if !ok {
			return nil, MachineSignature{}, nil, &Error{Kind: ErrUnresolvedReference, Function: bp.src.Name,
				Detail: fmt.Sprintf("call to extern function %d that failed to declare", id)}
		}
		return fn, buildSignature(bp.b.cfg, f), f, nil
	}
	return nil, MachineSignature{}, nil, &Error{Kind: ErrUnresolvedReference, Function: bp.src.Name,
		Detail: fmt.Sprintf("call to unknown function id %d", id)}
}

// translateCallIndirect calls through a closure value: {fn_ptr@0,
// env_ptr@8}, read via the same two field loads internal/interp's
// OpClosureFunc/OpClosureEnv perform, then an indirect call through a
// pointer cast to inst.Signature's machine function type.
func (bp *bodyPass) translateCallIndirect(blk *ir.Block, inst mir.Instruction) error {
	closure, err := bp.valueOf(blk, inst.FuncPtr)
	if err != nil {
		wrapped := bp.wrap(err)
		if id, ok := bp.traceClosureOrigin(inst.FuncPtr); ok {
			if e, ok := wrapped.(*Error); ok {
				e.Detail = fmt.Sprintf("%s (closure traced to function %d)", e.Detail, id)
			}
		}
		return wrapped
	}
	fnPtr := bp.closureFuncPtr(blk, closure)
	env := bp.closureEnvPtr(blk, closure)

	sigTy := inst.Signature
	var retTy types.Type = types.Void
	if sigTy != nil && sigTy.Return != nil && sigTy.Return.Kind != mir.KindVoid {
		retTy = llvmType(sigTy.Return)
	}
	paramTys := []types.Type{types.NewPointer(types.I8)} // env pointer, always first for a Haxe-convention indirect call
	for _, p := range sigTy.Params {
		paramTys = append(paramTys, llvmType(p))
	}
	fnTy := types.NewFunc(retTy, paramTys...)
	typedFn := blk.NewBitCast(fnPtr, types.NewPointer(fnTy))

	args := make([]value.Value, 0, len(inst.Args)+1)
	args = append(args, env)
	for _, a := range inst.Args {
		v, err := bp.valueOf(blk, a)
		if err != nil {
			return bp.wrap(err)
		}
		args = append(args, v)
	}
	call := blk.NewCall(typedFn, args...)
	bp.regs[inst.Dest] = call
	return nil
}
