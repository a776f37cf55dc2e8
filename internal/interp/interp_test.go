package interp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rayzor-lang/rayzor/internal/interp"
	"github.com/rayzor-lang/rayzor/internal/mir"
	"github.com/rayzor-lang/rayzor/internal/symbols"
)

func newInterp(m *mir.Module) *interp.Interpreter {
	tab := symbols.New(nil)
	return interp.New(m, tab, nil, nil)
}

// arithmeticModule builds fn(a, b) { return a + b } or a * b depending on op.
func arithmeticModule(op mir.BinOpKind) (*mir.Module, *mir.Function) {
	m := mir.NewModule("arith")
	f := m.DeclareFunction("calc", mir.Signature{
		Params:     []mir.Param{{Name: "a", Type: mir.I64()}, {Name: "b", Type: mir.I64()}},
		ReturnType: mir.I64(),
		Convention: mir.ConvC,
	})
	a := f.FreshReg(mir.I64())
	b := f.FreshReg(mir.I64())
	r := f.FreshReg(mir.I64())
	f.Signature.Params[0].Reg = a
	f.Signature.Params[1].Reg = b

	f.CFG = mir.NewCFG(0)
	f.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpBinOp, Dest: r, Type: mir.I64(), BinOp: op, LHS: mir.RegValue(nil, a), RHS: mir.RegValue(nil, b)},
		},
		Terminator: mir.Return(mir.RegValue(nil, r)),
	})
	return m, f
}

func TestArithmeticAddition(t *testing.T) {
	m, f := arithmeticModule(mir.BinAdd)
	in := newInterp(m)
	result, err := in.Run(f, []interp.Value{interp.IntValue(10), interp.IntValue(20)})
	require.NoError(t, err)
	require.Equal(t, int64(30), result[0].Int())
}

func TestArithmeticMultiplication(t *testing.T) {
	m, f := arithmeticModule(mir.BinMul)
	in := newInterp(m)
	result, err := in.Run(f, []interp.Value{interp.IntValue(10), interp.IntValue(20)})
	require.NoError(t, err)
	require.Equal(t, int64(200), result[0].Int())
}

// controlFlowModule builds: if cond { return 1 } else { return 2 }.
func controlFlowModule() (*mir.Module, *mir.Function) {
	m := mir.NewModule("ctrl")
	f := m.DeclareFunction("branch", mir.Signature{
		Params:     []mir.Param{{Name: "cond", Type: mir.Bool()}},
		ReturnType: mir.I64(),
		Convention: mir.ConvC,
	})
	cond := f.FreshReg(mir.Bool())
	f.Signature.Params[0].Reg = cond

	f.CFG = mir.NewCFG(0)
	f.CFG.AddBlock(&mir.Block{
		ID:         0,
		Terminator: mir.CondBranch(mir.RegValue(nil, cond), 1, 2),
	})
	f.CFG.AddBlock(&mir.Block{ID: 1, Terminator: mir.Return(mir.ConstInt(mir.I64(), 1))})
	f.CFG.AddBlock(&mir.Block{ID: 2, Terminator: mir.Return(mir.ConstInt(mir.I64(), 2))})
	return m, f
}

func TestControlFlowBranch(t *testing.T) {
	m, f := controlFlowModule()
	in := newInterp(m)

	result, err := in.Run(f, []interp.Value{interp.BoolValue(true)})
	require.NoError(t, err)
	require.Equal(t, int64(1), result[0].Int())

	result, err = in.Run(f, []interp.Value{interp.BoolValue(false)})
	require.NoError(t, err)
	require.Equal(t, int64(2), result[0].Int())
}

// rangeSumModule builds a counted loop summing 0..5 (exclusive) via phi
// accumulators, mirroring how the lowerer desugars a range-for.
func rangeSumModule() (*mir.Module, *mir.Function) {
	m := mir.NewModule("loop")
	f := m.DeclareFunction("rangeSum", mir.Signature{ReturnType: mir.I64(), Convention: mir.ConvC})

	i0 := f.FreshReg(mir.I64())
	sum0 := f.FreshReg(mir.I64())
	i := f.FreshReg(mir.I64())
	sum := f.FreshReg(mir.I64())
	cond := f.FreshReg(mir.Bool())
	sumNext := f.FreshReg(mir.I64())
	iNext := f.FreshReg(mir.I64())

	f.CFG = mir.NewCFG(0)
	f.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpConst, Dest: i0, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 0)},
			{Op: mir.OpConst, Dest: sum0, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 0)},
		},
		Terminator: mir.Branch(1),
	})
	f.CFG.AddBlock(&mir.Block{
		ID: 1,
		PhiNodes: []mir.PhiNode{
			{Dest: i, Type: mir.I64(), Incoming: []mir.PhiIncoming{{Pred: 0, Value: i0}, {Pred: 2, Value: iNext}}},
			{Dest: sum, Type: mir.I64(), Incoming: []mir.PhiIncoming{{Pred: 0, Value: sum0}, {Pred: 2, Value: sumNext}}},
		},
		Instructions: []mir.Instruction{
			{Op: mir.OpCmp, Dest: cond, Type: mir.Bool(), Cmp: mir.CmpLt, LHS: mir.RegValue(nil, i), RHS: mir.ConstInt(mir.I64(), 5)},
		},
		Terminator: mir.CondBranch(mir.RegValue(nil, cond), 2, 3),
	})
	f.CFG.AddBlock(&mir.Block{
		ID: 2,
		Instructions: []mir.Instruction{
			{Op: mir.OpBinOp, Dest: sumNext, Type: mir.I64(), BinOp: mir.BinAdd, LHS: mir.RegValue(nil, sum), RHS: mir.RegValue(nil, i)},
			{Op: mir.OpBinOp, Dest: iNext, Type: mir.I64(), BinOp: mir.BinAdd, LHS: mir.RegValue(nil, i), RHS: mir.ConstInt(mir.I64(), 1)},
		},
		Terminator: mir.Branch(1),
	})
	f.CFG.AddBlock(&mir.Block{ID: 3, Terminator: mir.Return(mir.RegValue(nil, sum))})
	return m, f
}

func TestRangeForSum(t *testing.T) {
	m, f := rangeSumModule()
	in := newInterp(m)
	result, err := in.Run(f, nil)
	require.NoError(t, err)
	require.Equal(t, int64(10), result[0].Int())
}

// arrayIterationModule sums a 3-element i64 array [10,20,30] via
// GetElementPtr/Load in a loop, giving 60.
func arrayIterationModule() (*mir.Module, *mir.Function) {
	m := mir.NewModule("arr")
	arrType := mir.ArrayOf(mir.I64(), 3)
	f := m.DeclareFunction("arraySum", mir.Signature{ReturnType: mir.I64(), Convention: mir.ConvC})

	arr := f.FreshReg(mir.Ptr(arrType))
	idx0 := f.FreshReg(mir.I64())
	sum0 := f.FreshReg(mir.I64())
	idx := f.FreshReg(mir.I64())
	sum := f.FreshReg(mir.I64())
	cond := f.FreshReg(mir.Bool())
	elemPtr := f.FreshReg(mir.Ptr(mir.I64()))
	elem := f.FreshReg(mir.I64())
	sumNext := f.FreshReg(mir.I64())
	idxNext := f.FreshReg(mir.I64())
	v0 := f.FreshReg(mir.I64())
	v1 := f.FreshReg(mir.I64())
	v2 := f.FreshReg(mir.I64())

	f.CFG = mir.NewCFG(0)
	f.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpAlloc, Dest: arr, Type: mir.Ptr(arrType), AllocType: arrType, AllocCount: 1},
			{Op: mir.OpConst, Dest: v0, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 10)},
			{Op: mir.OpConst, Dest: v1, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 20)},
			{Op: mir.OpConst, Dest: v2, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 30)},
			{Op: mir.OpGetElementPtr, Dest: elemPtr, Type: mir.Ptr(mir.I64()), Ptr: mir.RegValue(nil, arr), Indices: []mir.Value{mir.ConstInt(mir.I64(), 0)}},
			{Op: mir.OpStore, Ptr: mir.RegValue(nil, elemPtr), StoreValue: mir.RegValue(nil, v0)},
			{Op: mir.OpGetElementPtr, Dest: elemPtr, Type: mir.Ptr(mir.I64()), Ptr: mir.RegValue(nil, arr), Indices: []mir.Value{mir.ConstInt(mir.I64(), 1)}},
			{Op: mir.OpStore, Ptr: mir.RegValue(nil, elemPtr), StoreValue: mir.RegValue(nil, v1)},
			{Op: mir.OpGetElementPtr, Dest: elemPtr, Type: mir.Ptr(mir.I64()), Ptr: mir.RegValue(nil, arr), Indices: []mir.Value{mir.ConstInt(mir.I64(), 2)}},
			{Op: mir.OpStore, Ptr: mir.RegValue(nil, elemPtr), StoreValue: mir.RegValue(nil, v2)},
			{Op: mir.OpConst, Dest: idx0, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 0)},
			{Op: mir.OpConst, Dest: sum0, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 0)},
		},
		Terminator: mir.Branch(1),
	})
	f.CFG.AddBlock(&mir.Block{
		ID: 1,
		PhiNodes: []mir.PhiNode{
			{Dest: idx, Type: mir.I64(), Incoming: []mir.PhiIncoming{{Pred: 0, Value: idx0}, {Pred: 2, Value: idxNext}}},
			{Dest: sum, Type: mir.I64(), Incoming: []mir.PhiIncoming{{Pred: 0, Value: sum0}, {Pred: 2, Value: sumNext}}},
		},
		Instructions: []mir.Instruction{
			{Op: mir.OpCmp, Dest: cond, Type: mir.Bool(), Cmp: mir.CmpLt, LHS: mir.RegValue(nil, idx), RHS: mir.ConstInt(mir.I64(), 3)},
		},
		Terminator: mir.CondBranch(mir.RegValue(nil, cond), 2, 3),
	})
	f.CFG.AddBlock(&mir.Block{
		ID: 2,
		Instructions: []mir.Instruction{
			{Op: mir.OpGetElementPtr, Dest: elemPtr, Type: mir.Ptr(mir.I64()), Ptr: mir.RegValue(nil, arr), Indices: []mir.Value{mir.RegValue(nil, idx)}},
			{Op: mir.OpLoad, Dest: elem, Type: mir.I64(), Ptr: mir.RegValue(nil, elemPtr)},
			{Op: mir.OpBinOp, Dest: sumNext, Type: mir.I64(), BinOp: mir.BinAdd, LHS: mir.RegValue(nil, sum), RHS: mir.RegValue(nil, elem)},
			{Op: mir.OpBinOp, Dest: idxNext, Type: mir.I64(), BinOp: mir.BinAdd, LHS: mir.RegValue(nil, idx), RHS: mir.ConstInt(mir.I64(), 1)},
		},
		Terminator: mir.Branch(1),
	})
	f.CFG.AddBlock(&mir.Block{ID: 3, Terminator: mir.Return(mir.RegValue(nil, sum))})
	return m, f
}

func TestArrayIterationSum(t *testing.T) {
	m, f := arrayIterationModule()
	in := newInterp(m)
	result, err := in.Run(f, nil)
	require.NoError(t, err)
	require.Equal(t, int64(60), result[0].Int())
}

// closureAdd3Module builds a closure over captured=3, whose body computes
// env[0] + param, then calls it with 4 to get 7.
func closureAdd3Module() (*mir.Module, *mir.Function, *mir.Function) {
	m := mir.NewModule("closure")

	body := m.DeclareFunction("addEnv", mir.Signature{
		Params: []mir.Param{
			{Name: "env", Type: mir.Ptr(mir.Void())},
			{Name: "x", Type: mir.I64()},
		},
		ReturnType: mir.I64(),
		Convention: mir.ConvHaxe,
	})
	envReg := body.FreshReg(mir.Ptr(mir.Void()))
	xReg := body.FreshReg(mir.I64())
	body.Signature.Params[0].Reg = envReg
	body.Signature.Params[1].Reg = xReg
	captured := body.FreshReg(mir.I64())
	resultReg := body.FreshReg(mir.I64())
	body.CFG = mir.NewCFG(0)
	body.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpLoad, Dest: captured, Type: mir.I64(), Ptr: mir.RegValue(nil, envReg)},
			{Op: mir.OpBinOp, Dest: resultReg, Type: mir.I64(), BinOp: mir.BinAdd, LHS: mir.RegValue(nil, captured), RHS: mir.RegValue(nil, xReg)},
		},
		Terminator: mir.Return(mir.RegValue(nil, resultReg)),
	})

	caller := m.DeclareFunction("makeAndCall", mir.Signature{ReturnType: mir.I64(), Convention: mir.ConvC})
	capturedVal := caller.FreshReg(mir.I64())
	closureReg := caller.FreshReg(mir.Ptr(mir.Void()))
	callResult := caller.FreshReg(mir.I64())
	caller.CFG = mir.NewCFG(0)
	caller.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpConst, Dest: capturedVal, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 3)},
			{Op: mir.OpMakeClosure, Dest: closureReg, Type: mir.Ptr(mir.Void()), ClosureFunc: body.ID, CapturedValues: []mir.Value{mir.RegValue(nil, capturedVal)}},
			{Op: mir.OpCallIndirect, Dest: callResult, Type: mir.I64(), FuncPtr: mir.RegValue(nil, closureReg), Args: []mir.Value{mir.ConstInt(mir.I64(), 4)}},
		},
		Terminator: mir.Return(mir.RegValue(nil, callResult)),
	})

	return m, caller, body
}

func TestClosureCapturesInt(t *testing.T) {
	m, caller, _ := closureAdd3Module()
	in := newInterp(m)
	result, err := in.Run(caller, nil)
	require.NoError(t, err)
	require.Equal(t, int64(7), result[0].Int())
}

// optionMatchModule builds a two-variant enum Option{Some(i64), None},
// constructs Some(42), and switches on its discriminant to extract the
// payload, mirroring how the lowerer desugars a pattern match.
func optionMatchModule() (*mir.Module, *mir.Function) {
	m := mir.NewModule("enum")
	optionType := mir.UnionOf(
		mir.UnionVariant{Tag: 0, Name: "Some", Fields: []mir.Field{{Name: "value", Type: mir.I64()}}},
		mir.UnionVariant{Tag: 1, Name: "None"},
	)
	m.DeclareType("Option", optionType)

	f := m.DeclareFunction("matchSome", mir.Signature{ReturnType: mir.I64(), Convention: mir.ConvC})
	payload := f.FreshReg(mir.I64())
	opt := f.FreshReg(mir.Ptr(optionType))
	disc := f.FreshReg(mir.I32())
	out := f.FreshReg(mir.I64())
	matched := f.FreshReg(mir.I64())

	f.CFG = mir.NewCFG(0)
	f.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpConst, Dest: payload, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 42)},
			{Op: mir.OpCreateUnion, Dest: opt, Type: mir.Ptr(optionType), UnionType: optionType, Discriminant: 0, UnionValue: mir.RegValue(nil, payload)},
			{Op: mir.OpLoad, Dest: disc, Type: mir.I32(), Ptr: mir.RegValue(nil, opt)},
		},
		Terminator: mir.Switch(mir.RegValue(nil, disc), []mir.SwitchCase{{Value: 0, Target: 1}, {Value: 1, Target: 2}}, 2),
	})
	f.CFG.AddBlock(&mir.Block{
		ID: 1,
		Instructions: []mir.Instruction{
			{Op: mir.OpExtractValue, Dest: matched, Type: mir.I64(), Aggregate: mir.RegValue(nil, opt), ExtractIdx: []int{1}},
		},
		Terminator: mir.Branch(3),
	})
	f.CFG.AddBlock(&mir.Block{
		ID: 2,
		Instructions: []mir.Instruction{
			{Op: mir.OpConst, Dest: matched, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 0)},
		},
		Terminator: mir.Branch(3),
	})
	f.CFG.AddBlock(&mir.Block{
		ID: 3,
		PhiNodes: []mir.PhiNode{
			{Dest: out, Type: mir.I64(), Incoming: []mir.PhiIncoming{{Pred: 1, Value: matched}, {Pred: 2, Value: matched}}},
		},
		Terminator: mir.Return(mir.RegValue(nil, out)),
	})
	return m, f
}

func TestEnumOptionPatternMatch(t *testing.T) {
	m, f := optionMatchModule()
	in := newInterp(m)
	result, err := in.Run(f, nil)
	require.NoError(t, err)
	require.Equal(t, int64(42), result[0].Int())
}

func TestDivisionByZeroTraps(t *testing.T) {
	m, f := arithmeticModule(mir.BinDiv)
	in := newInterp(m)
	_, err := in.Run(f, []interp.Value{interp.IntValue(1), interp.IntValue(0)})
	require.Error(t, err)
	trap, ok := err.(*interp.Trap)
	require.True(t, ok)
	require.Equal(t, interp.TrapDivisionByZero, trap.Kind)
}

func TestUseAfterFreePanics(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
	}()
	m := mir.NewModule("uaf")
	f := m.DeclareFunction("bad", mir.Signature{ReturnType: mir.I64(), Convention: mir.ConvC})
	ptr := f.FreshReg(mir.Ptr(mir.I64()))
	f.CFG = mir.NewCFG(0)
	f.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpAlloc, Dest: ptr, Type: mir.Ptr(mir.I64()), AllocType: mir.I64(), AllocCount: 1},
			{Op: mir.OpFree, Src: mir.RegValue(nil, ptr)},
			{Op: mir.OpStore, Ptr: mir.RegValue(nil, ptr), StoreValue: mir.ConstInt(mir.I64(), 1)},
		},
		Terminator: mir.ReturnVoid(),
	})
	in := newInterp(m)
	_, _ = in.Run(f, nil)
}
