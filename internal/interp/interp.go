package interp

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rayzor-lang/rayzor/internal/mir"
	"github.com/rayzor-lang/rayzor/internal/symbols"
)

// Caller lets the interpreter dispatch CallDirect through whatever tier
// currently owns the callee, per §4.3 "CallDirect to a function known to
// the tiered controller is dispatched through the controller's lookup,
// so calls may cross tiers transparently." internal/tiered.Controller
// implements this; internal/interp never imports internal/tiered, which
// keeps the dependency direction tier-0-is-a-leaf.
type Caller interface {
	Call(id mir.FuncID, args []Value) ([]Value, error)
}

// TrapKind classifies a runtime execution error per §7's "Runtime
// execution errors".
type TrapKind int

const (
	TrapDivisionByZero TrapKind = iota
	TrapUnreachable
	TrapExternFailure
)

// Trap is a runtime error raised by executing MIR, carrying enough
// context for the host to translate it into a diagnostic (§7).
type Trap struct {
	Kind     TrapKind
	Function string
	Message  string
}

func (t *Trap) Error() string {
	return fmt.Sprintf("interp: trap in %s: %s", t.Function, t.Message)
}

// Interpreter executes MIR directly: tier 0, and the oracle the native
// backend's output is checked against (§4.3).
type Interpreter struct {
	module  *mir.Module
	symbols *symbols.Table
	caller  Caller
	arena   *Arena
	log     *zap.Logger

	strings map[string]uint64          // interned string literal content -> arena header offset
	globals map[mir.GlobalID]Value     // mutable module-level storage for LoadGlobal/StoreGlobal
}

// New builds an Interpreter over module, resolving extern calls against
// symtab and cross-tier CallDirect through caller.
func New(module *mir.Module, symtab *symbols.Table, caller Caller, log *zap.Logger) *Interpreter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Interpreter{
		module:  module,
		symbols: symtab,
		caller:  caller,
		arena:   NewArena(),
		log:     log,
		strings: map[string]uint64{},
	}
}

// Arena exposes the interpreter's backing memory, e.g. for a host that
// wants to copy a returned struct out by pointer.
func (in *Interpreter) Arena() *Arena { return in.arena }

// Run executes fn with args and returns its result values (zero or one,
// per spec.md's single-return-value Terminator.Return — multi-return is
// expressed as a Struct return in MIR).
func (in *Interpreter) Run(fn *mir.Function, args []Value) ([]Value, error) {
	if fn.IsExternDecl() {
		return in.callExtern(fn, args)
	}

	fr := newFrame(fn)
	for i, p := range fn.Signature.Params {
		if i < len(args) {
			fr.set(p.Reg, args[i])
		}
	}

	for {
		block, ok := fn.CFG.Blocks[fr.curBlock]
		if !ok {
			return nil, &Trap{Kind: TrapUnreachable, Function: fn.Name, Message: fmt.Sprintf("no such block %d", fr.curBlock)}
		}

		in.resolvePhis(fr, block)

		for _, inst := range block.Instructions {
			if err := in.exec(fr, inst); err != nil {
				return nil, err
			}
		}

		result, next, done, err := in.execTerminator(fr, block.Terminator)
		if err != nil {
			return nil, err
		}
		if done {
			return result, nil
		}
		fr.predBlock = fr.curBlock
		fr.curBlock = next
	}
}

func (in *Interpreter) resolvePhis(fr *frame, block *mir.Block) {
	if len(block.PhiNodes) == 0 {
		return
	}
	// All phis in a block read the *previous* block's register values
	// simultaneously — compute every new value before writing any of
	// them, so a phi can't observe a sibling phi's already-updated dest.
	newVals := make(map[mir.Id]Value, len(block.PhiNodes))
	for _, phi := range block.PhiNodes {
		for _, inc := range phi.Incoming {
			if inc.Pred == fr.predBlock {
				newVals[phi.Dest] = fr.get(inc.Value)
				break
			}
		}
	}
	for id, v := range newVals {
		fr.set(id, v)
	}
}

func (in *Interpreter) execTerminator(fr *frame, t mir.Terminator) (result []Value, next mir.BlockID, done bool, err error) {
	switch t.Kind {
	case mir.TermReturn:
		if !t.HasValue {
			return nil, 0, true, nil
		}
		return []Value{in.evalOperand(fr, t.Value)}, 0, true, nil
	case mir.TermBranch:
		return nil, t.Target, false, nil
	case mir.TermCondBranch:
		c := in.evalOperand(fr, t.Cond)
		if c.Bool() {
			return nil, t.TrueTarget, false, nil
		}
		return nil, t.FalseTarget, false, nil
	case mir.TermSwitch:
		v := in.evalOperand(fr, t.SwitchValue).Int()
		for _, c := range t.Cases {
			if c.Value == v {
				return nil, c.Target, false, nil
			}
		}
		return nil, t.Default, false, nil
	case mir.TermUnreachable:
		return nil, 0, true, &Trap{Kind: TrapUnreachable, Function: fr.fn.Name, Message: "unreachable terminator reached"}
	case mir.TermNoReturn:
		return nil, 0, true, nil
	}
	return nil, 0, true, &Trap{Kind: TrapUnreachable, Function: fr.fn.Name, Message: "unknown terminator kind"}
}

// evalOperand resolves a mir.Value (which may itself be a constant, not
// just a register reference) to an interpreter Value.
func (in *Interpreter) evalOperand(fr *frame, v mir.Value) Value {
	switch v.Kind {
	case mir.ValConstInt:
		return IntValue(v.Int)
	case mir.ValConstFloat:
		return FloatValue(v.Float)
	case mir.ValConstBool:
		return BoolValue(v.Bool)
	case mir.ValConstString:
		return PtrValue(in.internString(v.Str))
	case mir.ValNull:
		return NullPtr()
	case mir.ValFuncRef:
		return in.makeFunctionRefClosure(v.Func)
	case mir.ValReg:
		return fr.get(v.Reg)
	}
	return Value{}
}

func (in *Interpreter) internString(s string) uint64 {
	if off, ok := in.strings[s]; ok {
		return off
	}
	bytesOff := in.arena.Alloc(len(s))
	in.arena.WriteBytes(bytesOff, []byte(s))
	header := in.arena.Alloc(24) // {ptr,len,tag} per §3 String layout
	in.arena.WriteU64(header, bytesOff)
	in.arena.WriteU64(header+8, uint64(len(s)))
	in.arena.WriteU64(header+16, 0)
	in.strings[s] = header
	return header
}

// floatOp32 / floatOp64 pick the right float width for a BinOp/UnOp based
// on the MIR type so e.g. f32 arithmetic doesn't silently widen.
func isF32(t *mir.Type) bool { return t != nil && t.Kind == mir.KindF32 }

func truncToF32(f float64) float64 { return float64(float32(f)) }
