package backend

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/rayzor-lang/rayzor/internal/symbols"
)

// IntrinsicSet names the runtime symbols this backend may replace with an
// inlined machine sequence instead of a call. Math is the only switch:
// when set, the float math symbols in mathIntrinsics become llvm.*
// intrinsic calls. The array-length/array-elem-ptr accessors and
// haxe_std_int are never inlined and always go through the runtime call;
// Config.InlineArrayIntrinsics is not consulted anywhere.
type IntrinsicSet struct {
	Math bool
}

// DefaultIntrinsicSet inlines math intrinsics.
func DefaultIntrinsicSet() IntrinsicSet {
	return IntrinsicSet{Math: true}
}

// mathIntrinsics maps a runtime symbol this backend would otherwise call
// by name to the llvm.* intrinsic declaration that computes the same
// single-float-argument result, per symbols.Table's "Math*" entries.
// haxe_std_int is a truncating conversion, not a float intrinsic, so it
// is deliberately absent here and always goes through the runtime call.
var mathIntrinsics = map[string]string{
	symbols.MathSqrt:  "llvm.sqrt.f64",
	symbols.MathAbs:   "llvm.fabs.f64",
	symbols.MathFloor: "llvm.floor.f64",
	symbols.MathCeil:  "llvm.ceil.f64",
	symbols.MathRound: "llvm.round.f64",
}

// tryInlineMathCall emits name(args[0]) as a direct llvm.* intrinsic call
// instead of an extern call, when cfg enables it, name is a known
// single-f64-argument math symbol, and the call shape actually matches
// (one f64 argument, f64 result) — anything else falls back to the
// normal extern call path untouched.
func (bp *bodyPass) tryInlineMathCall(blk *ir.Block, name string, args []value.Value) (value.Value, bool) {
	if !bp.b.cfg.Intrinsics.Math {
		return nil, false
	}
	intrinsic, ok := mathIntrinsics[name]
	if !ok || len(args) != 1 {
		return nil, false
	}
	if _, ok := args[0].Type().(*types.FloatType); !ok {
		return nil, false
	}
	fn := bp.runtimeFunc(intrinsic, []types.Type{types.Double}, types.Double)
	return blk.NewCall(fn, args[0]), true
}
