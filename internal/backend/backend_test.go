package backend_test

import (
	"strings"
	"testing"

	"github.com/llir/llvm/ir/types"
	"github.com/stretchr/testify/require"

	"github.com/rayzor-lang/rayzor/internal/backend"
	"github.com/rayzor-lang/rayzor/internal/mir"
	"github.com/rayzor-lang/rayzor/internal/symbols"
)

func newBackend() *backend.Backend {
	return backend.New(backend.DefaultConfig(backend.OptNone), symbols.New(nil))
}

// arithmeticModule mirrors internal/interp's own arithmeticModule fixture:
// calc(a, b i64) i64 { return a + b }, C convention, no env/sret.
func arithmeticModule() *mir.Module {
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
			{Op: mir.OpBinOp, Dest: r, Type: mir.I64(), BinOp: mir.BinAdd, LHS: mir.RegValue(mir.I64(), a), RHS: mir.RegValue(mir.I64(), b)},
		},
		Terminator: mir.Return(mir.RegValue(mir.I64(), r)),
	})
	return m
}

func TestCompileModuleArithmeticFunction(t *testing.T) {
	b := newBackend()
	m := arithmeticModule()

	cm, errs := b.CompileModule(m)
	require.Empty(t, errs)
	require.Len(t, cm.Funcs, 1)

	for _, f := range cm.Funcs {
		require.Len(t, f.Params, 2)
		require.Equal(t, types.I64, f.Sig.Ret)
	}
}

// branchModule mirrors internal/interp's controlFlowModule: two reachable
// blocks joined only by the entry's conditional branch (no phi).
func branchModule() *mir.Module {
	m := mir.NewModule("ctrl")
	f := m.DeclareFunction("branch", mir.Signature{
		Params:     []mir.Param{{Name: "cond", Type: mir.Bool()}},
		ReturnType: mir.I64(),
		Convention: mir.ConvC,
	})
	cond := f.FreshReg(mir.Bool())
	f.Signature.Params[0].Reg = cond

	f.CFG = mir.NewCFG(0)
	f.CFG.AddBlock(&mir.Block{ID: 0, Terminator: mir.CondBranch(mir.RegValue(mir.Bool(), cond), 1, 2)})
	f.CFG.AddBlock(&mir.Block{ID: 1, Terminator: mir.Return(mir.ConstInt(mir.I64(), 1))})
	f.CFG.AddBlock(&mir.Block{ID: 2, Terminator: mir.Return(mir.ConstInt(mir.I64(), 2))})
	return m
}

func TestCompileModuleControlFlowBranch(t *testing.T) {
	b := newBackend()
	cm, errs := b.CompileModule(branchModule())
	require.Empty(t, errs)
	require.Len(t, cm.Funcs, 1)
}

// phiLoopModule mirrors internal/interp's rangeSumModule shape closely
// enough to exercise the phi two-pass: a latch block whose incoming value
// to the header's phi is defined after the header itself in RPO.
func phiLoopModule() *mir.Module {
	m := mir.NewModule("loop")
	f := m.DeclareFunction("sum3", mir.Signature{ReturnType: mir.I64(), Convention: mir.ConvC})

	i0 := f.FreshReg(mir.I64())
	sum0 := f.FreshReg(mir.I64())
	i1 := f.FreshReg(mir.I64())
	sum1 := f.FreshReg(mir.I64())
	cond := f.FreshReg(mir.Bool())
	next := f.FreshReg(mir.I64())

	f.CFG = mir.NewCFG(0)
	f.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpConst, Dest: next, Type: mir.I64(), Const: mir.ConstInt(mir.I64(), 0)},
		},
		Terminator: mir.Branch(1),
	})
	f.CFG.AddBlock(&mir.Block{
		ID: 1,
		PhiNodes: []mir.PhiNode{
			{Dest: i0, Type: mir.I64(), Incoming: []mir.PhiIncoming{{Pred: 0, Value: next}, {Pred: 2, Value: i1}}},
			{Dest: sum0, Type: mir.I64(), Incoming: []mir.PhiIncoming{{Pred: 0, Value: next}, {Pred: 2, Value: sum1}}},
		},
		Instructions: []mir.Instruction{
			{Op: mir.OpCmp, Dest: cond, Type: mir.Bool(), Cmp: mir.CmpLt, LHS: mir.RegValue(mir.I64(), i0), RHS: mir.ConstInt(mir.I64(), 3)},
		},
		Terminator: mir.CondBranch(mir.RegValue(mir.Bool(), cond), 2, 3),
	})
	f.CFG.AddBlock(&mir.Block{
		ID: 2,
		Instructions: []mir.Instruction{
			{Op: mir.OpBinOp, Dest: sum1, Type: mir.I64(), BinOp: mir.BinAdd, LHS: mir.RegValue(mir.I64(), sum0), RHS: mir.RegValue(mir.I64(), i0)},
			{Op: mir.OpBinOp, Dest: i1, Type: mir.I64(), BinOp: mir.BinAdd, LHS: mir.RegValue(mir.I64(), i0), RHS: mir.ConstInt(mir.I64(), 1)},
		},
		Terminator: mir.Branch(1),
	})
	f.CFG.AddBlock(&mir.Block{ID: 3, Terminator: mir.Return(mir.RegValue(mir.I64(), sum0))})
	_ = next
	return m
}

func TestCompileModulePhiLoop(t *testing.T) {
	b := newBackend()
	cm, errs := b.CompileModule(phiLoopModule())
	require.Empty(t, errs)
	require.Len(t, cm.Funcs, 1)
}

// sretModule returns a 3-word struct by value, forcing buildSignature's
// sret path.
func sretModule() *mir.Module {
	structTy := mir.StructOf(
		mir.Field{Name: "x", Type: mir.I64()},
		mir.Field{Name: "y", Type: mir.I64()},
		mir.Field{Name: "z", Type: mir.I64()},
	)
	m := mir.NewModule("agg")
	f := m.DeclareFunction("makePoint", mir.Signature{
		ReturnType: structTy,
		Convention: mir.ConvC,
		UsesSRet:   true,
	})
	dest := f.FreshReg(structTy)
	f.CFG = mir.NewCFG(0)
	f.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpCreateStruct, Dest: dest, Type: structTy, StructType: structTy,
				FieldValues: []mir.Value{mir.ConstInt(mir.I64(), 1), mir.ConstInt(mir.I64(), 2), mir.ConstInt(mir.I64(), 3)}},
		},
		Terminator: mir.Return(mir.RegValue(structTy, dest)),
	})
	return m
}

func TestCompileModuleSRetReturn(t *testing.T) {
	b := newBackend()
	cm, errs := b.CompileModule(sretModule())
	require.Empty(t, errs)
	require.Len(t, cm.Funcs, 1)
	for _, f := range cm.Funcs {
		require.Len(t, f.Params, 1, "sret pointer is the only machine parameter")
		require.Equal(t, types.Void, f.Sig.Ret)
	}
}

// closureModule builds a caller that wraps a separate callee as a closure
// value with a null environment and immediately calls it indirectly,
// exercising OpFunctionRef and OpCallIndirect together.
func closureModule() *mir.Module {
	m := mir.NewModule("clo")
	callee := m.DeclareFunction("callee", mir.Signature{
		Params:     []mir.Param{{Name: "x", Type: mir.I64()}},
		ReturnType: mir.I64(),
		Convention: mir.ConvHaxe,
	})
	x := callee.FreshReg(mir.I64())
	callee.Signature.Params[0].Reg = x
	callee.CFG = mir.NewCFG(0)
	callee.CFG.AddBlock(&mir.Block{ID: 0, Terminator: mir.Return(mir.RegValue(mir.I64(), x))})

	sigTy := mir.FuncType([]*mir.Type{mir.I64()}, mir.I64(), false)
	caller := m.DeclareFunction("caller", mir.Signature{ReturnType: mir.I64(), Convention: mir.ConvC})
	clo := caller.FreshReg(mir.Ptr(mir.Any()))
	result := caller.FreshReg(mir.I64())
	caller.CFG = mir.NewCFG(0)
	caller.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpFunctionRef, Dest: clo, Type: mir.Ptr(mir.Any()), RefFunc: callee.ID},
			{Op: mir.OpCallIndirect, Dest: result, Type: mir.I64(), FuncPtr: mir.RegValue(mir.Ptr(mir.Any()), clo),
				Signature: sigTy, Args: []mir.Value{mir.ConstInt(mir.I64(), 41)}},
		},
		Terminator: mir.Return(mir.RegValue(mir.I64(), result)),
	})
	return m
}

func TestCompileModuleClosureIndirectCall(t *testing.T) {
	b := newBackend()
	cm, errs := b.CompileModule(closureModule())
	require.Empty(t, errs)
	require.Len(t, cm.Funcs, 2)
}

func TestABIMismatchAcrossModules(t *testing.T) {
	b := newBackend()

	m1 := mir.NewModule("m1")
	m1.DeclareExtern("shared_extern", mir.Signature{
		Params:     []mir.Param{{Name: "x", Type: mir.I64()}},
		ReturnType: mir.I64(),
		Convention: mir.ConvC,
	})
	_, errs := b.CompileModule(m1)
	require.Empty(t, errs)

	m2 := mir.NewModule("m2")
	m2.DeclareExtern("shared_extern", mir.Signature{
		Params:     []mir.Param{{Name: "x", Type: mir.F64()}},
		ReturnType: mir.I64(),
		Convention: mir.ConvC,
	})
	_, errs = b.CompileModule(m2)
	require.Len(t, errs, 1)
	abiErr, ok := errs[0].(*backend.Error)
	require.True(t, ok)
	require.Equal(t, backend.ErrABIMismatch, abiErr.Kind)
}

// mathCallModule calls the registered sqrt runtime symbol with one f64
// argument, the shape tryInlineMathCall requires.
func mathCallModule() *mir.Module {
	m := mir.NewModule("math")
	sqrtFn := m.DeclareExtern(symbols.MathSqrt, mir.Signature{
		Params:     []mir.Param{{Name: "x", Type: mir.F64()}},
		ReturnType: mir.F64(),
		Convention: mir.ConvC,
	})
	f := m.DeclareFunction("useSqrt", mir.Signature{ReturnType: mir.F64(), Convention: mir.ConvC})
	r := f.FreshReg(mir.F64())
	f.CFG = mir.NewCFG(0)
	f.CFG.AddBlock(&mir.Block{
		ID: 0,
		Instructions: []mir.Instruction{
			{Op: mir.OpCallDirect, Dest: r, Type: mir.F64(), CallFunc: sqrtFn.ID, Args: []mir.Value{mir.ConstFloat(mir.F64(), 2.0)}},
		},
		Terminator: mir.Return(mir.RegValue(mir.F64(), r)),
	})
	return m
}

func TestMathIntrinsicInlining(t *testing.T) {
	b := newBackend()
	cm, errs := b.CompileModule(mathCallModule())
	require.Empty(t, errs)

	text := cm.LLVM.String()
	require.True(t, strings.Contains(text, "llvm.sqrt.f64"), "expected sqrt call inlined as an llvm intrinsic:\n%s", text)
	require.False(t, strings.Contains(text, "call double @"+symbols.MathSqrt), "runtime symbol should not be called once inlined:\n%s", text)
}

func TestMathIntrinsicNotInlinedWhenDisabled(t *testing.T) {
	cfg := backend.DefaultConfig(backend.OptNone)
	cfg.Intrinsics = backend.IntrinsicSet{Math: false}
	b := backend.New(cfg, symbols.New(nil))

	cm, errs := b.CompileModule(mathCallModule())
	require.Empty(t, errs)

	text := cm.LLVM.String()
	require.True(t, strings.Contains(text, "call double @"+symbols.MathSqrt), "expected a plain extern call when math inlining is off:\n%s", text)
}

type stubRegistry struct {
	registered []backend.EnumInfo
}

func (s *stubRegistry) RegisterEnum(info backend.EnumInfo) {
	s.registered = append(s.registered, info)
}

func TestRegisterEnumRTTI(t *testing.T) {
	m := mir.NewModule("enums")
	enumTy := mir.UnionOf(
		mir.UnionVariant{Tag: 0, Name: "None"},
		mir.UnionVariant{Tag: 1, Name: "Some", Fields: []mir.Field{{Name: "value", Type: mir.I64()}}},
	)
	m.DeclareType("Option", enumTy)

	reg := &stubRegistry{}
	backend.RegisterEnumRTTI(m, reg)

	require.Len(t, reg.registered, 1)
	info := reg.registered[0]
	require.Equal(t, "Option", info.Name)
	require.Len(t, info.Variants, 2)
	require.Equal(t, "None", info.Variants[0].Name)
	require.Equal(t, 0, info.Variants[0].ParamCount)
	require.Equal(t, "Some", info.Variants[1].Name)
	require.Equal(t, 1, info.Variants[1].ParamCount)
	require.Equal(t, backend.ParamInt, info.Variants[1].ParamKinds[0])
}

func TestFinalizeModuleResolvesAddresses(t *testing.T) {
	b := newBackend()
	m := arithmeticModule()
	cm, errs := b.CompileModule(m)
	require.Empty(t, errs)

	var symbolName string
	for _, f := range cm.Funcs {
		symbolName = f.Name()
	}
	require.NotEmpty(t, symbolName)

	resolve := func(name string) (backend.FunctionPointer, bool) {
		if name == symbolName {
			return backend.FunctionPointer(0x1000), true
		}
		return 0, false
	}
	finErrs := b.FinalizeModule(cm, resolve)
	require.Empty(t, finErrs)

	for id := range cm.Funcs {
		addr, ok := cm.GetFunctionPtr(id)
		require.True(t, ok)
		require.Equal(t, backend.FunctionPointer(0x1000), addr)
	}
}

func TestFinalizeModuleUnresolvedSymbolIsAnError(t *testing.T) {
	b := newBackend()
	cm, errs := b.CompileModule(arithmeticModule())
	require.Empty(t, errs)

	finErrs := b.FinalizeModule(cm, func(string) (backend.FunctionPointer, bool) { return 0, false })
	require.Len(t, finErrs, 1)
	fe, ok := finErrs[0].(*backend.Error)
	require.True(t, ok)
	require.Equal(t, backend.ErrUnresolvedReference, fe.Kind)
}
