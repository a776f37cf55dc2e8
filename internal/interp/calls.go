package interp

import (
	"fmt"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

// closureLayout: a closure object is a 16-byte heap pair {fn_id:8, env:8}
// (§4.2's "{fn_ptr, env_ptr} pair"; the interpreter stores a FuncID rather
// than a machine code address in the fn_ptr slot, since it dispatches by
// ID through the module/Caller rather than jumping to native code). The
// env area, when non-null, is a flat block of 8-byte slots, one per
// captured value, in the order OpMakeClosure lists them.
const closureSize = 16

func (in *Interpreter) makeClosure(fr *frame, inst mir.Instruction) Value {
	var envOff uint64
	if n := len(inst.CapturedValues); n > 0 {
		envOff = in.arena.Alloc(n * 8)
		for i, cv := range inst.CapturedValues {
			v := in.evalOperand(fr, cv)
			in.arena.WriteU64(envOff+uint64(i*8), v.Bits)
		}
	}
	obj := in.arena.Alloc(closureSize)
	in.arena.WriteU64(obj, uint64(inst.ClosureFunc))
	in.arena.WriteU64(obj+8, envOff)
	return PtrValue(obj)
}

// makeFunctionRefClosure wraps a bare function reference in the same
// {fn_id, env} shape as a captured closure, with a null env, so
// OpCallIndirect never needs to distinguish "closure" from "function
// pointer" — both are just closures, one with an empty environment.
func (in *Interpreter) makeFunctionRefClosure(id mir.FuncID) Value {
	obj := in.arena.Alloc(closureSize)
	in.arena.WriteU64(obj, uint64(id))
	in.arena.WriteU64(obj+8, 0)
	return PtrValue(obj)
}

func (in *Interpreter) execCallDirect(fr *frame, inst mir.Instruction) error {
	args := make([]Value, len(inst.Args))
	for i, a := range inst.Args {
		args[i] = in.evalOperand(fr, a)
	}

	result, err := in.dispatch(inst.CallFunc, args)
	if err != nil {
		return err
	}
	if len(result) > 0 {
		fr.set(inst.Dest, result[0])
	}
	return nil
}

func (in *Interpreter) execCallIndirect(fr *frame, inst mir.Instruction) error {
	closure := in.evalOperand(fr, inst.FuncPtr)
	fnID := mir.FuncID(in.arena.ReadU64(closure.Ptr))
	env := in.arena.ReadU64(closure.Ptr + 8)

	fn, ok := in.module.FunctionByID(fnID)
	if !ok {
		return &Trap{Kind: TrapUnreachable, Function: fr.fn.Name, Message: fmt.Sprintf("call through unresolved closure target %d", fnID)}
	}

	// Run binds arguments to the declared parameters only, so the env is
	// passed when the callee declares it explicitly (a lambda's leading
	// "env" parameter); an implicit env has no parameter to receive it.
	args := make([]Value, 0, len(inst.Args)+1)
	if fn.Signature.Convention == mir.ConvHaxe && !fn.NeedsEnvParam() {
		args = append(args, PtrValue(env))
	}
	for _, a := range inst.Args {
		args = append(args, in.evalOperand(fr, a))
	}

	result, err := in.dispatch(fnID, args)
	if err != nil {
		return err
	}
	if len(result) > 0 {
		fr.set(inst.Dest, result[0])
	} else {
		fr.set(inst.Dest, Value{})
	}
	return nil
}

// dispatch routes a call either through the tiered controller (if one was
// injected as Caller, letting a promoted function's call sites reach
// native code transparently) or, absent one, by direct recursive
// execution against this interpreter — the shape New's zero-value Caller
// takes when interp is used standalone as a MIR test oracle.
func (in *Interpreter) dispatch(id mir.FuncID, args []Value) ([]Value, error) {
	if in.caller != nil {
		return in.caller.Call(id, args)
	}
	fn, ok := in.module.FunctionByID(id)
	if !ok {
		return nil, &Trap{Message: fmt.Sprintf("call to unknown function %d", id)}
	}
	return in.Run(fn, args)
}

// callExtern invokes a host runtime symbol through its registered
// interpreter-tier shim. Unlike the backend, which emits a direct machine
// call and must apply C-ABI integer promotion at the call site, the
// interpreter always passes full 64-bit words — there is no narrower
// machine register to worry about — so no promotion step is needed here.
func (in *Interpreter) callExtern(fn *mir.Function, args []Value) ([]Value, error) {
	if in.symbols == nil {
		return nil, &Trap{Kind: TrapExternFailure, Function: fn.Name, Message: "no runtime symbol table bound"}
	}
	shim, ok := in.symbols.LookupFunc(fn.Name)
	if !ok {
		return nil, &Trap{Kind: TrapExternFailure, Function: fn.Name, Message: fmt.Sprintf("unresolved extern %q", fn.Name)}
	}
	raw := make([]uint64, len(args))
	for i, a := range args {
		raw[i] = a.Bits
	}
	result := shim(raw)
	if fn.Signature.ReturnType == nil || fn.Signature.ReturnType.Kind == mir.KindVoid {
		return nil, nil
	}
	return []Value{{Bits: result}}, nil
}
