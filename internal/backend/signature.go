package backend

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

// MachineParam is one parameter of a lowered, ABI-aware signature: its
// LLVM type alongside enough of the originating MIR parameter to drive
// the body pass's coercions.
type MachineParam struct {
	Name    string
	MIRType *mir.Type // nil for the synthetic sret/env parameters
	Type    types.Type
	IsSRet  bool
	IsEnv   bool
}

// MachineSignature is the fully ABI-resolved signature a mir.Function
// compiles to: sret and env parameters prepended, integer promotion
// applied, per §4.4 "Signature construction".
type MachineSignature struct {
	Params       []MachineParam
	ReturnType   types.Type
	MIRReturn    *mir.Type // the function's real MIR return type, nil if void
	UsesSRet     bool
	NeedsEnv     bool
	Promoted     bool // true if the MIR return type itself was integer-promoted
}

// buildSignature implements §4.4's signature-construction bullets.
// Promotion applies "when the callee is a C extern" per the spec text;
// this backend applies it to every ConvC function (extern or not;
// extern is the only ConvC case that currently exists, per lower.go's
// callingConvention, but the rule is phrased on convention, not
// extern-ness, in case that changes upstream in C2).
func buildSignature(cfg Config, f *mir.Function) MachineSignature {
	sig := f.Signature
	ms := MachineSignature{MIRReturn: sig.ReturnType}

	// SUPPLEMENTED FEATURE 1: sret applies uniformly, including to
	// extern functions (the C ABI on ARM64 uses sret for structs > 16
	// bytes regardless of whether the callee is defined in this module).
	if sig.UsesSRet {
		ms.UsesSRet = true
		ms.Params = append(ms.Params, MachineParam{
			Name:   "sret",
			Type:   types.NewPointer(blobType(mir.SizeOf(sig.ReturnType))),
			IsSRet: true,
		})
		ms.ReturnType = types.Void
	} else if sig.ReturnType == nil || sig.ReturnType.Kind == mir.KindVoid {
		ms.ReturnType = types.Void
	} else if sig.Convention == mir.ConvC {
		machineRet, _, promoted := Promote(cfg.Promotion, sig.ReturnType)
		ms.ReturnType = llvmType(machineRet)
		ms.Promoted = promoted
	} else {
		ms.ReturnType = llvmType(sig.ReturnType)
	}

	if f.NeedsEnvParam() {
		ms.NeedsEnv = true
		ms.Params = append(ms.Params, MachineParam{Name: "env", Type: types.NewPointer(types.I8), IsEnv: true})
	}

	for _, p := range sig.Params {
		if sig.Convention == mir.ConvC {
			machineTy, _, _ := Promote(cfg.Promotion, p.Type)
			ms.Params = append(ms.Params, MachineParam{Name: p.Name, MIRType: p.Type, Type: llvmType(machineTy)})
			continue
		}
		ms.Params = append(ms.Params, MachineParam{Name: p.Name, MIRType: p.Type, Type: llvmType(p.Type)})
	}

	return ms
}

// declareFunc creates the *ir.Func skeleton (signature + linkage + name),
// without a body, for use by both the declaration pass and extern/stdlib
// caching.
func declareFunc(m *ir.Module, name string, ms MachineSignature, linkage func(*ir.Func)) *ir.Func {
	params := make([]*ir.Param, len(ms.Params))
	for i, p := range ms.Params {
		params[i] = ir.NewParam(p.Name, p.Type)
	}
	fn := m.NewFunc(name, ms.ReturnType, params...)
	if linkage != nil {
		linkage(fn)
	}
	return fn
}
