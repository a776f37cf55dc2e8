package tiered

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rayzor-lang/rayzor/internal/backend"
	"github.com/rayzor-lang/rayzor/internal/interp"
	"github.com/rayzor-lang/rayzor/internal/mir"
	"github.com/rayzor-lang/rayzor/internal/profiler"
	"github.com/rayzor-lang/rayzor/internal/symbols"
)

// arithmeticModule builds fn(a, b) { return a + b }, mirroring
// internal/interp's own fixture so the dispatch table's interpreted and
// promoted behavior can be compared against the same program.
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

// fakeResolver stands in for the host's real loader/JIT: every distinct
// symbol name it is asked about gets a distinct, stable, nonzero
// address, satisfying both FinalizeModule and FinalizeFunction without
// ever touching an actual toolchain.
func fakeResolver() backend.Resolver {
	seen := map[string]backend.FunctionPointer{}
	next := backend.FunctionPointer(0x1000)
	return func(name string) (backend.FunctionPointer, bool) {
		if addr, ok := seen[name]; ok {
			return addr, true
		}
		next += 0x10
		seen[name] = next
		return next, true
	}
}

func newController(cfg Config) *Controller {
	return New(cfg, symbols.New(nil), zap.NewNop())
}

func TestCompileModuleDefaultsToInterpretedDispatch(t *testing.T) {
	m, fid := arithmeticModule()
	cfg := DefaultConfig()
	cfg.Resolve = fakeResolver()
	c := newController(cfg)

	require.NoError(t, c.CompileModule(m))

	tier, ok := c.SnapshotTier(fid)
	require.True(t, ok)
	require.Equal(t, profiler.TierInterpreted, tier)

	result, err := c.ExecuteFunction(fid, []interp.Value{interp.IntValue(10), interp.IntValue(20)})
	require.NoError(t, err)
	require.Equal(t, int64(30), result[0].Int())
}

func TestExecuteFunctionUnknownIDIsADispatchError(t *testing.T) {
	cfg := DefaultConfig()
	c := newController(cfg)
	m, _ := arithmeticModule()
	require.NoError(t, c.CompileModule(m))

	_, err := c.ExecuteFunction(mir.FuncID(999), nil)
	require.Error(t, err)
	var derr *DispatchError
	require.ErrorAs(t, err, &derr)
}

func TestStartInterpretedFalseInstallsBaselineTier(t *testing.T) {
	m, fid := arithmeticModule()
	cfg := DefaultConfig()
	cfg.StartInterpreted = false
	cfg.Resolve = fakeResolver()
	c := newController(cfg)

	require.NoError(t, c.CompileModule(m))

	tier, ok := c.SnapshotTier(fid)
	require.True(t, ok)
	require.Equal(t, profiler.TierWarm, tier)

	entry := c.entries[fid]
	require.NotZero(t, entry.nativeAddr.Load())
}

func TestTrackCompiledSizeReportsBaselineInstallSize(t *testing.T) {
	m, fid := arithmeticModule()
	cfg := DefaultConfig()
	cfg.StartInterpreted = false
	cfg.TrackCompiledSize = true
	cfg.Resolve = fakeResolver()
	c := newController(cfg)

	require.NoError(t, c.CompileModule(m))

	snap := c.Profiler().SnapshotFor(fid)
	require.Equal(t, profiler.TierWarm, snap.Tier)
	require.Positive(t, snap.SizeBytes)
}

func TestTrackCompiledSizeReportsPromotionSize(t *testing.T) {
	m, fid := arithmeticModule()
	cfg := DefaultConfig()
	cfg.TrackCompiledSize = true
	cfg.Resolve = fakeResolver()
	cfg.Thresholds = profiler.Thresholds{Warm: 1, Hot: 2, Blazing: 1000}
	c := newController(cfg)
	require.NoError(t, c.CompileModule(m))

	_, err := c.ExecuteFunction(fid, []interp.Value{interp.IntValue(1), interp.IntValue(2)})
	require.NoError(t, err)
	_, err = c.ExecuteFunction(fid, []interp.Value{interp.IntValue(1), interp.IntValue(2)})
	require.NoError(t, err)

	c.sweep()
	require.NoError(t, c.group.Wait())

	snap := c.Profiler().SnapshotFor(fid)
	require.Equal(t, profiler.TierHot, snap.Tier)
	require.Positive(t, snap.SizeBytes)
}

func TestPromotionSweepInstallsHigherTierAndNeverDemotes(t *testing.T) {
	m, fid := arithmeticModule()
	cfg := DefaultConfig()
	cfg.Resolve = fakeResolver()
	cfg.Thresholds = profiler.Thresholds{Warm: 1, Hot: 2, Blazing: 1000}
	c := newController(cfg)
	require.NoError(t, c.CompileModule(m))

	_, err := c.ExecuteFunction(fid, []interp.Value{interp.IntValue(1), interp.IntValue(2)})
	require.NoError(t, err)
	_, err = c.ExecuteFunction(fid, []interp.Value{interp.IntValue(1), interp.IntValue(2)})
	require.NoError(t, err)

	c.sweep()
	require.NoError(t, c.group.Wait())

	tier, ok := c.SnapshotTier(fid)
	require.True(t, ok)
	require.Equal(t, profiler.TierHot, tier)
	require.NotZero(t, c.entries[fid].nativeAddr.Load())

	// A subsequent sweep over an unchanged counter must not demote.
	c.sweep()
	require.NoError(t, c.group.Wait())
	tier, ok = c.SnapshotTier(fid)
	require.True(t, ok)
	require.Equal(t, profiler.TierHot, tier)
}

func TestShutdownWaitsForInFlightPromotion(t *testing.T) {
	m, fid := arithmeticModule()
	cfg := DefaultConfig()
	cfg.Resolve = fakeResolver()
	cfg.Thresholds = profiler.Thresholds{Warm: 1, Hot: 1000, Blazing: 100000}
	cfg.EnableBackgroundOptimization = true
	cfg.OptimizationCheckInterval = 5 * time.Millisecond
	c := newController(cfg)
	require.NoError(t, c.CompileModule(m))
	c.Start()

	_, err := c.ExecuteFunction(fid, []interp.Value{interp.IntValue(1), interp.IntValue(2)})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond) // let at least one sweep observe the crossed threshold
	c.Shutdown()

	tier, ok := c.SnapshotTier(fid)
	require.True(t, ok)
	require.Equal(t, profiler.TierWarm, tier)
}

func TestNativeCallerInvokedOncePromoted(t *testing.T) {
	m, fid := arithmeticModule()
	cfg := DefaultConfig()
	cfg.Resolve = fakeResolver()
	cfg.Thresholds = profiler.Thresholds{Warm: 1, Hot: 100000, Blazing: 1000000}
	var invoked mir.FuncID
	cfg.Invoke = func(id mir.FuncID, addr backend.FunctionPointer, args []interp.Value) ([]interp.Value, error) {
		invoked = id
		return []interp.Value{interp.IntValue(42)}, nil
	}
	c := newController(cfg)
	require.NoError(t, c.CompileModule(m))

	_, err := c.ExecuteFunction(fid, []interp.Value{interp.IntValue(1), interp.IntValue(2)})
	require.NoError(t, err)
	c.sweep()
	require.NoError(t, c.group.Wait())

	result, err := c.ExecuteFunction(fid, []interp.Value{interp.IntValue(1), interp.IntValue(2)})
	require.NoError(t, err)
	require.Equal(t, fid, invoked)
	require.Equal(t, int64(42), result[0].Int())
}

func TestExecuteFunctionWithoutInvokerErrorsOnJITTier(t *testing.T) {
	m, fid := arithmeticModule()
	cfg := DefaultConfig()
	cfg.Resolve = fakeResolver()
	cfg.Thresholds = profiler.Thresholds{Warm: 1, Hot: 100000, Blazing: 1000000}
	c := newController(cfg)
	require.NoError(t, c.CompileModule(m))

	_, err := c.ExecuteFunction(fid, []interp.Value{interp.IntValue(1), interp.IntValue(2)})
	require.NoError(t, err)
	c.sweep()
	require.NoError(t, c.group.Wait())

	_, err = c.ExecuteFunction(fid, []interp.Value{interp.IntValue(1), interp.IntValue(2)})
	require.Error(t, err)
	var derr *DispatchError
	require.ErrorAs(t, err, &derr)
}
