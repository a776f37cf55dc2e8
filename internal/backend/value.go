package backend

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

// bodyPass accumulates per-function state while translating one
// mir.Function's CFG into a matching llir/llvm function body (§4.4 "Body
// pass"). Registers are resolved in two passes: one walk of the source
// CFG's blocks in reverse-postorder builds every instruction (definitions
// always precede uses within a block, and across blocks except through a
// phi, by the SSA invariant the lowerer already guarantees), and a second
// pass over pendingPhis wires each phi's incoming edges, since a loop header's phi may
// reference a latch-block value that doesn't exist yet on the first pass
// — the same two-pass shape other_examples' llir/ll frontend uses to
// resolve forward block/local references.
type bodyPass struct {
	b   *Backend
	cm  *CompiledModule
	src *mir.Function
	dst *ir.Func

	blocks map[mir.BlockID]*ir.Block
	regs   map[mir.Id]value.Value
	sig    MachineSignature

	sretSlot value.Value // valid when sig.UsesSRet
	envParam value.Value // valid when sig.NeedsEnv

	pendingPhis []pendingPhi
	strCache    map[string]value.Value
}

type pendingPhi struct {
	inst  *ir.InstPhi
	block *mir.Block
	node  mir.PhiNode
}

// valueOf resolves a mir.Value operand to its llir/llvm value, emitting
// instructions into blk when doing so requires one (a string literal or a
// bare function reference both lower to a runtime call, §4.4 "Closures" /
// "String literals"). blk must be the block currently under construction
// by the caller — always safe in both translation passes, since constants
// and registers resolve without reference to block position and phi
// incoming values (the only cross-block-position reads) never reach
// valueOf (run's pendingPhis loop reads bp.regs directly).
func (bp *bodyPass) valueOf(blk *ir.Block, v mir.Value) (value.Value, error) {
	switch v.Kind {
	case mir.ValConstInt:
		t := llvmType(v.Ty)
		it, ok := t.(*types.IntType)
		if !ok {
			return nil, fmt.Errorf("const int with non-integer type %s", v.Ty)
		}
		return constant.NewInt(it, v.Int), nil
	case mir.ValConstFloat:
		t := llvmType(v.Ty)
		ft, ok := t.(*types.FloatType)
		if !ok {
			return nil, fmt.Errorf("const float with non-float type %s", v.Ty)
		}
		return constant.NewFloat(ft, v.Float), nil
	case mir.ValConstBool:
		if v.Bool {
			return constant.True, nil
		}
		return constant.False, nil
	case mir.ValConstString:
		return bp.stringLiteral(blk, v.Str)
	case mir.ValNull:
		pt, ok := llvmType(v.Ty).(*types.PointerType)
		if !ok {
			pt = types.NewPointer(types.I8)
		}
		return constant.NewNull(pt), nil
	case mir.ValFuncRef:
		return bp.closureForFuncRef(blk, v.Func)
	case mir.ValReg:
		val, ok := bp.regs[v.Reg]
		if !ok {
			return nil, fmt.Errorf("register %%%d used before definition", v.Reg)
		}
		return val, nil
	default:
		return nil, fmt.Errorf("unhandled mir.Value kind %d", v.Kind)
	}
}
