package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rayzor-lang/rayzor/engine"
	"github.com/rayzor-lang/rayzor/internal/interp"
	"github.com/rayzor-lang/rayzor/internal/mir"
)

// arithmeticModule builds fn(a, b) { return a + b }, the same shape used
// throughout internal/interp and internal/tiered's own fixtures.
func arithmeticModule() (*mir.Module, mir.FuncID) {
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
			{Op: mir.OpBinOp, Dest: r, Type: mir.I64(), BinOp: mir.BinAdd, LHS: mir.RegValue(nil, a), RHS: mir.RegValue(nil, b)},
		},
		Terminator: mir.Return(mir.RegValue(nil, r)),
	})
	return m, f.ID
}

func TestCreateCompileModuleExecuteFunction(t *testing.T) {
	m, fid := arithmeticModule()
	cfg := engine.Config{
		ProfileThresholds: engine.ProfileThresholds{Warm: 100, Hot: 10_000, Blazing: 1_000_000},
		SampleRate:        1,
		StartInterpreted:  true,
	}
	e := engine.Create(cfg)
	defer e.Shutdown()

	require.NoError(t, e.CompileModule(m))

	result, err := e.ExecuteFunction(fid, []interp.Value{interp.IntValue(10), interp.IntValue(20)})
	require.NoError(t, err)
	require.Equal(t, int64(30), result[0].Int())
}

func TestExecuteFunctionUnknownIDBeforeCompile(t *testing.T) {
	e := engine.Create(engine.Config{})
	defer e.Shutdown()

	_, err := e.ExecuteFunction(mir.FuncID(7), nil)
	require.Error(t, err)
}

func TestCreateWithoutInvokerStillRunsInterpreted(t *testing.T) {
	m, fid := arithmeticModule()
	e := engine.Create(engine.Config{StartInterpreted: true})
	defer e.Shutdown()

	require.NoError(t, e.CompileModule(m))
	result, err := e.ExecuteFunction(fid, []interp.Value{interp.IntValue(1), interp.IntValue(2)})
	require.NoError(t, err)
	require.Equal(t, int64(3), result[0].Int())
}

func TestProfilerReflectsDispatchedCalls(t *testing.T) {
	m, fid := arithmeticModule()
	e := engine.Create(engine.Config{StartInterpreted: true, SampleRate: 1})
	defer e.Shutdown()

	require.NoError(t, e.CompileModule(m))
	_, err := e.ExecuteFunction(fid, []interp.Value{interp.IntValue(1), interp.IntValue(2)})
	require.NoError(t, err)

	snap := e.Profiler().SnapshotFor(fid)
	require.GreaterOrEqual(t, snap.Counter, uint64(1))
}

func TestRegisterEnumRTTINoEnumsIsANoop(t *testing.T) {
	m, _ := arithmeticModule()
	e := engine.Create(engine.Config{})
	defer e.Shutdown()

	require.NotPanics(t, func() {
		e.RegisterEnumRTTI([]*mir.Module{m}, nil)
	})
}

func TestShutdownIsIdempotent(t *testing.T) {
	e := engine.Create(engine.Config{})
	require.NotPanics(t, func() {
		e.Shutdown()
		e.Shutdown()
	})
}
