package main

import "github.com/rayzor-lang/rayzor/internal/mir"

// scenario is one of §8's end-to-end scenarios: a module, the FuncID of
// its entry point, and the trace output the real engine must reproduce
// exactly, byte for byte.
type scenario struct {
	Name     string
	Describe string
	Build    func() (*mir.Module, mir.FuncID)
	Expected []int64
}

// declareTrace adds the "trace(i64)" extern every scenario calls to
// surface its result, mirroring the source language's built-in.
func declareTrace(m *mir.Module) mir.FuncID {
	fn := m.DeclareExtern("trace", mir.Signature{
		Params:     []mir.Param{{Name: "v", Type: mir.I64()}},
		ReturnType: mir.Void(),
		Convention: mir.ConvC,
	})
	return fn.ID
}

func traceCall(f *mir.Function, traceID mir.FuncID, v mir.Value) mir.Instruction {
	return mir.Instruction{
		Op: mir.OpCallDirect, Dest: f.FreshReg(mir.Void()), Type: mir.Void(),
		CallFunc: traceID, Args: []mir.Value{v},
	}
}

// arithmeticScenario: var a=10; var b=20; trace(a+b); trace(a*b).
func arithmeticScenario() (*mir.Module, mir.FuncID) {
	m := mir.NewModule("arithmetic")
	traceID := declareTrace(m)
	f := m.DeclareFunction("main", mir.Signature{ReturnType: mir.Void(), Convention: mir.ConvC})

	a := f.FreshReg(mir.I64())
	b := f.FreshReg(mir.I64())
	sum := f.FreshReg(mir.I64())
	prod := f.FreshReg(mir.I64())

	f.CFG = mir.NewCFG(0)
	f.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpConst, Dest: a, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 10)},
			{Op: mir.OpConst, Dest: b, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 20)},
			{Op: mir.OpBinOp, Dest: sum, Type: mir.I64(), BinOp: mir.BinAdd, LHS: mir.RegValue(nil, a), RHS: mir.RegValue(nil, b)},
			traceCall(f, traceID, mir.RegValue(nil, sum)),
			{Op: mir.OpBinOp, Dest: prod, Type: mir.I64(), BinOp: mir.BinMul, LHS: mir.RegValue(nil, a), RHS: mir.RegValue(nil, b)},
			traceCall(f, traceID, mir.RegValue(nil, prod)),
		},
		Terminator: mir.ReturnVoid(),
	})
	return m, f.ID
}

// controlFlowScenario: var x=5; if (x>3) trace(1) else trace(0);
// var y=2; if (y>10) trace(100) else trace(2).
func controlFlowScenario() (*mir.Module, mir.FuncID) {
	m := mir.NewModule("control_flow")
	traceID := declareTrace(m)
	f := m.DeclareFunction("main", mir.Signature{ReturnType: mir.Void(), Convention: mir.ConvC})

	cond1 := f.FreshReg(mir.Bool())
	cond2 := f.FreshReg(mir.Bool())

	f.CFG = mir.NewCFG(0)
	f.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpCmp, Dest: cond1, Type: mir.Bool(), Cmp: mir.CmpGt, LHS: mir.ConstInt(mir.I64(), 5), RHS: mir.ConstInt(mir.I64(), 3)},
		},
		Terminator: mir.CondBranch(mir.RegValue(nil, cond1), 1, 2),
	})
	f.CFG.AddBlock(&mir.Block{ID: 1, Instructions: []mir.Instruction{traceCall(f, traceID, mir.ConstInt(mir.I64(), 1))}, Terminator: mir.Branch(3)})
	f.CFG.AddBlock(&mir.Block{ID: 2, Instructions: []mir.Instruction{traceCall(f, traceID, mir.ConstInt(mir.I64(), 0))}, Terminator: mir.Branch(3)})
	f.CFG.AddBlock(&mir.Block{
		ID: 3,
		Instructions: []mir.Instruction{
			{Op: mir.OpCmp, Dest: cond2, Type: mir.Bool(), Cmp: mir.CmpGt, LHS: mir.ConstInt(mir.I64(), 2), RHS: mir.ConstInt(mir.I64(), 10)},
		},
		Terminator: mir.CondBranch(mir.RegValue(nil, cond2), 4, 5),
	})
	f.CFG.AddBlock(&mir.Block{ID: 4, Instructions: []mir.Instruction{traceCall(f, traceID, mir.ConstInt(mir.I64(), 100))}, Terminator: mir.Branch(6)})
	f.CFG.AddBlock(&mir.Block{ID: 5, Instructions: []mir.Instruction{traceCall(f, traceID, mir.ConstInt(mir.I64(), 2))}, Terminator: mir.Branch(6)})
	f.CFG.AddBlock(&mir.Block{ID: 6, Terminator: mir.ReturnVoid()})
	return m, f.ID
}

// rangeForScenario: var s=0; for (i in 0...5) s = s + i; trace(s).
func rangeForScenario() (*mir.Module, mir.FuncID) {
	m := mir.NewModule("range_for")
	traceID := declareTrace(m)
	f := m.DeclareFunction("main", mir.Signature{ReturnType: mir.Void(), Convention: mir.ConvC})

	i0 := f.FreshReg(mir.I64())
	s0 := f.FreshReg(mir.I64())
	i := f.FreshReg(mir.I64())
	s := f.FreshReg(mir.I64())
	cond := f.FreshReg(mir.Bool())
	sNext := f.FreshReg(mir.I64())
	iNext := f.FreshReg(mir.I64())

	f.CFG = mir.NewCFG(0)
	f.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpConst, Dest: i0, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 0)},
			{Op: mir.OpConst, Dest: s0, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 0)},
		},
		Terminator: mir.Branch(1),
	})
	f.CFG.AddBlock(&mir.Block{
		ID: 1,
		PhiNodes: []mir.PhiNode{
			{Dest: i, Type: mir.I64(), Incoming: []mir.PhiIncoming{{Pred: 0, Value: i0}, {Pred: 2, Value: iNext}}},
			{Dest: s, Type: mir.I64(), Incoming: []mir.PhiIncoming{{Pred: 0, Value: s0}, {Pred: 2, Value: sNext}}},
		},
		Instructions: []mir.Instruction{
			{Op: mir.OpCmp, Dest: cond, Type: mir.Bool(), Cmp: mir.CmpLt, LHS: mir.RegValue(nil, i), RHS: mir.ConstInt(mir.I64(), 5)},
		},
		Terminator: mir.CondBranch(mir.RegValue(nil, cond), 2, 3),
	})
	f.CFG.AddBlock(&mir.Block{
		ID: 2,
		Instructions: []mir.Instruction{
			{Op: mir.OpBinOp, Dest: sNext, Type: mir.I64(), BinOp: mir.BinAdd, LHS: mir.RegValue(nil, s), RHS: mir.RegValue(nil, i)},
			{Op: mir.OpBinOp, Dest: iNext, Type: mir.I64(), BinOp: mir.BinAdd, LHS: mir.RegValue(nil, i), RHS: mir.ConstInt(mir.I64(), 1)},
		},
		Terminator: mir.Branch(1),
	})
	f.CFG.AddBlock(&mir.Block{
		ID: 3,
		Instructions: []mir.Instruction{traceCall(f, traceID, mir.RegValue(nil, s))},
		Terminator:   mir.ReturnVoid(),
	})
	return m, f.ID
}

// arrayIterationScenario: var arr=[10,20,30]; var s=0; for (v in arr) s = s + v; trace(s).
func arrayIterationScenario() (*mir.Module, mir.FuncID) {
	m := mir.NewModule("array_iteration")
	traceID := declareTrace(m)
	f := m.DeclareFunction("main", mir.Signature{ReturnType: mir.Void(), Convention: mir.ConvC})

	arrType := mir.ArrayOf(mir.I64(), 3)
	arr := f.FreshReg(mir.Ptr(arrType))
	v0 := f.FreshReg(mir.I64())
	v1 := f.FreshReg(mir.I64())
	v2 := f.FreshReg(mir.I64())
	elemPtr := f.FreshReg(mir.Ptr(mir.I64()))
	idx0 := f.FreshReg(mir.I64())
	s0 := f.FreshReg(mir.I64())
	idx := f.FreshReg(mir.I64())
	s := f.FreshReg(mir.I64())
	cond := f.FreshReg(mir.Bool())
	elem := f.FreshReg(mir.I64())
	sNext := f.FreshReg(mir.I64())
	idxNext := f.FreshReg(mir.I64())

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
			{Op: mir.OpConst, Dest: s0, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 0)},
		},
		Terminator: mir.Branch(1),
	})
	f.CFG.AddBlock(&mir.Block{
		ID: 1,
		PhiNodes: []mir.PhiNode{
			{Dest: idx, Type: mir.I64(), Incoming: []mir.PhiIncoming{{Pred: 0, Value: idx0}, {Pred: 2, Value: idxNext}}},
			{Dest: s, Type: mir.I64(), Incoming: []mir.PhiIncoming{{Pred: 0, Value: s0}, {Pred: 2, Value: sNext}}},
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
			{Op: mir.OpBinOp, Dest: sNext, Type: mir.I64(), BinOp: mir.BinAdd, LHS: mir.RegValue(nil, s), RHS: mir.RegValue(nil, elem)},
			{Op: mir.OpBinOp, Dest: idxNext, Type: mir.I64(), BinOp: mir.BinAdd, LHS: mir.RegValue(nil, idx), RHS: mir.ConstInt(mir.I64(), 1)},
		},
		Terminator: mir.Branch(1),
	})
	f.CFG.AddBlock(&mir.Block{
		ID: 3,
		Instructions: []mir.Instruction{traceCall(f, traceID, mir.RegValue(nil, s))},
		Terminator:   mir.ReturnVoid(),
	})
	return m, f.ID
}

// closureScenario: function makeAdder(n) return x -> x + n;
// var add3 = makeAdder(3); trace(add3(4)).
func closureScenario() (*mir.Module, mir.FuncID) {
	m := mir.NewModule("closure")
	traceID := declareTrace(m)

	lambda := m.DeclareFunction("lambda0", mir.Signature{
		Params: []mir.Param{
			{Name: "env", Type: mir.Ptr(mir.Void())},
			{Name: "x", Type: mir.I64()},
		},
		ReturnType: mir.I64(),
		Convention: mir.ConvHaxe,
	})
	envReg := lambda.FreshReg(mir.Ptr(mir.Void()))
	xReg := lambda.FreshReg(mir.I64())
	lambda.Signature.Params[0].Reg = envReg
	lambda.Signature.Params[1].Reg = xReg
	captured := lambda.FreshReg(mir.I64())
	added := lambda.FreshReg(mir.I64())
	lambda.CFG = mir.NewCFG(0)
	lambda.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpLoad, Dest: captured, Type: mir.I64(), Ptr: mir.RegValue(nil, envReg)},
			{Op: mir.OpBinOp, Dest: added, Type: mir.I64(), BinOp: mir.BinAdd, LHS: mir.RegValue(nil, captured), RHS: mir.RegValue(nil, xReg)},
		},
		Terminator: mir.Return(mir.RegValue(nil, added)),
	})

	f := m.DeclareFunction("main", mir.Signature{ReturnType: mir.Void(), Convention: mir.ConvC})
	n := f.FreshReg(mir.I64())
	closureReg := f.FreshReg(mir.Ptr(mir.Void()))
	result := f.FreshReg(mir.I64())
	f.CFG = mir.NewCFG(0)
	f.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpConst, Dest: n, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 3)},
			{Op: mir.OpMakeClosure, Dest: closureReg, Type: mir.Ptr(mir.Void()), ClosureFunc: lambda.ID, CapturedValues: []mir.Value{mir.RegValue(nil, n)}},
			{Op: mir.OpCallIndirect, Dest: result, Type: mir.I64(), FuncPtr: mir.RegValue(nil, closureReg), Args: []mir.Value{mir.ConstInt(mir.I64(), 4)}},
			traceCall(f, traceID, mir.RegValue(nil, result)),
		},
		Terminator: mir.ReturnVoid(),
	})
	return m, f.ID
}

// enumPatternMatchScenario: enum Option<T> = Some(T) | None;
// var o = Some(41); switch(o) { case Some(v): trace(v+1); case None: trace(0); }.
func enumPatternMatchScenario() (*mir.Module, mir.FuncID) {
	m := mir.NewModule("enum_pattern_match")
	traceID := declareTrace(m)

	optionType := mir.UnionOf(
		mir.UnionVariant{Tag: 0, Name: "Some", Fields: []mir.Field{{Name: "value", Type: mir.I64()}}},
		mir.UnionVariant{Tag: 1, Name: "None"},
	)
	m.DeclareType("Option", optionType)

	f := m.DeclareFunction("main", mir.Signature{ReturnType: mir.Void(), Convention: mir.ConvC})
	payload := f.FreshReg(mir.I64())
	opt := f.FreshReg(mir.Ptr(optionType))
	disc := f.FreshReg(mir.I32())
	v := f.FreshReg(mir.I64())
	plusOne := f.FreshReg(mir.I64())

	f.CFG = mir.NewCFG(0)
	f.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpConst, Dest: payload, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 41)},
			{Op: mir.OpCreateUnion, Dest: opt, Type: mir.Ptr(optionType), UnionType: optionType, Discriminant: 0, UnionValue: mir.RegValue(nil, payload)},
			{Op: mir.OpLoad, Dest: disc, Type: mir.I32(), Ptr: mir.RegValue(nil, opt)},
		},
		Terminator: mir.Switch(mir.RegValue(nil, disc), []mir.SwitchCase{{Value: 0, Target: 1}, {Value: 1, Target: 2}}, 2),
	})
	f.CFG.AddBlock(&mir.Block{
		ID: 1,
		Instructions: []mir.Instruction{
			{Op: mir.OpExtractValue, Dest: v, Type: mir.I64(), Aggregate: mir.RegValue(nil, opt), ExtractIdx: []int{1}},
			{Op: mir.OpBinOp, Dest: plusOne, Type: mir.I64(), BinOp: mir.BinAdd, LHS: mir.RegValue(nil, v), RHS: mir.ConstInt(mir.I64(), 1)},
			traceCall(f, traceID, mir.RegValue(nil, plusOne)),
		},
		Terminator: mir.Branch(3),
	})
	f.CFG.AddBlock(&mir.Block{
		ID: 2,
		Instructions: []mir.Instruction{traceCall(f, traceID, mir.ConstInt(mir.I64(), 0))},
		Terminator:   mir.Branch(3),
	})
	f.CFG.AddBlock(&mir.Block{ID: 3, Terminator: mir.ReturnVoid()})
	return m, f.ID
}

// scenarios lists §8's six end-to-end scenarios in the order spec.md gives
// them, each grounded in the matching internal/interp fixture.
var scenarios = []scenario{
	{Name: "arithmetic", Describe: "var a=10; var b=20; trace(a+b); trace(a*b);", Build: arithmeticScenario, Expected: []int64{30, 200}},
	{Name: "control-flow", Describe: "if/else over two independent conditions", Build: controlFlowScenario, Expected: []int64{1, 2}},
	{Name: "range-for", Describe: "for (i in 0...5) s = s + i; trace(s);", Build: rangeForScenario, Expected: []int64{10}},
	{Name: "array-iteration", Describe: "for (v in [10,20,30]) s = s + v; trace(s);", Build: arrayIterationScenario, Expected: []int64{60}},
	{Name: "closure", Describe: "makeAdder(3)(4)", Build: closureScenario, Expected: []int64{7}},
	{Name: "enum-pattern-match", Describe: "switch(Some(41)) trace(v+1)", Build: enumPatternMatchScenario, Expected: []int64{42}},
}
