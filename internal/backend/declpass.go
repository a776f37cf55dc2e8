package backend

import (
	"reflect"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

// declPass implements §4.4's "Declaration pass": walk every function,
// assign it a native symbol name under the naming policy, and declare its
// ABI-resolved signature. Extern and runtime-mapped stdlib-wrapper names
// are checked against Backend.sharedSignatures so the same symbol always
// resolves to the same ABI across every module this Backend compiles. A
// memory function the module declares as an extern goes through the same
// check; the malloc/free calls that MIR memory ops emit are declared by
// bodyPass.runtimeFunc instead and are not checked here.
type declPass struct {
	b  *Backend
	cm *CompiledModule
}

func (dp *declPass) declare(f *mir.Function) error {
	if name, ok := runtimeMappedName(dp.b, f); ok {
		return dp.declareExternLike(f, name)
	}
	if f.IsExternDecl() {
		return dp.declareExternLike(f, f.Name)
	}

	name := symbolName(dp.cm, f)
	ms := buildSignature(dp.b.cfg, f)
	fn := declareFunc(dp.cm.LLVM, name, ms, func(fn *ir.Func) { fn.Linkage = enum.LinkageExternal })
	dp.cm.Funcs[f.ID] = fn
	return nil
}

// declareExternLike declares f under name in this module, verifying the
// signature matches any previous module's declaration of the same name
// (§4.4's failure mode "ABI mismatch" — two functions claiming the same
// runtime symbol with incompatible signatures).
func (dp *declPass) declareExternLike(f *mir.Function, name string) error {
	ms := buildSignature(dp.b.cfg, f)
	if prior, ok := dp.b.sharedSignatures[name]; ok {
		if !signaturesEqual(prior, ms) {
			return &Error{Kind: ErrABIMismatch, Function: name,
				Detail: "extern symbol declared with incompatible signatures across modules"}
		}
	} else {
		dp.b.sharedSignatures[name] = ms
	}

	linkage := enum.LinkageExternal
	fn := declareFunc(dp.cm.LLVM, name, ms, func(fn *ir.Func) { fn.Linkage = linkage })
	dp.cm.Externs[f.ID] = fn
	dp.cm.ExternsByName[name] = fn
	return nil
}

func signaturesEqual(a, b MachineSignature) bool {
	if a.UsesSRet != b.UsesSRet || a.NeedsEnv != b.NeedsEnv || len(a.Params) != len(b.Params) {
		return false
	}
	if !reflect.DeepEqual(a.ReturnType.String(), b.ReturnType.String()) {
		return false
	}
	for i := range a.Params {
		if a.Params[i].Type.String() != b.Params[i].Type.String() {
			return false
		}
	}
	return true
}
