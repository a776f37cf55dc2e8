package lower

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

// Lowerer is the single accumulator struct that walks typed
// declarations and emits mir.Module contents — the shape-level model
// for the teacher's Compiler (scopes []map[string]int, errors
// []string, a name-keyed cache), generalized to SSA output and
// multierr-backed error accumulation instead of a string slice.
type Lowerer struct {
	module *mir.Module

	funcIDs   map[string]mir.FuncID // declared function name -> module FuncID, for Call resolution
	typeIDs   map[string]mir.TypeID
	globalIDs map[string]mir.GlobalID

	monomorphCache   *lru.Cache[string, mir.FuncID] // (GenericId, []TypeId) -> specialized FuncID, §4.2
	genericTemplates map[string]*FuncDecl           // generic function name -> its unspecialized declaration

	checker *Checker
}

// New creates a Lowerer that will emit into a freshly named module.
func New(moduleName string) *Lowerer {
	cache, err := lru.New[string, mir.FuncID](4096)
	if err != nil {
		// Only returns an error for a non-positive size, which 4096 never is.
		panic(err)
	}
	return &Lowerer{
		module:           mir.NewModule(moduleName),
		funcIDs:          map[string]mir.FuncID{},
		typeIDs:          map[string]mir.TypeID{},
		globalIDs:        map[string]mir.GlobalID{},
		monomorphCache:   cache,
		genericTemplates: map[string]*FuncDecl{},
		checker:          NewChecker(),
	}
}

// Lower translates every declaration into the module, collecting all
// per-declaration errors before returning. A declaration whose checker
// or lowering errors are non-nil contributes no function/type/global to
// the module (§4.2, §4.8: "refuses to emit MIR for a function with any
// violation").
func (lw *Lowerer) Lower(decls []Decl) (*mir.Module, error) {
	var errs error

	// Pre-pass: register every enum/struct/global/function name first so
	// forward references (mutual recursion, a global referencing a
	// function declared later) resolve during the main pass.
	for _, d := range decls {
		switch dd := d.(type) {
		case *EnumDecl:
			lw.preDeclareEnum(dd)
		case *StructDecl:
			lw.preDeclareStruct(dd)
		case *GlobalDecl:
			lw.preDeclareGlobal(dd)
		case *FuncDecl:
			lw.preDeclareFunc(dd)
		}
	}

	for _, d := range decls {
		switch dd := d.(type) {
		case *FuncDecl:
			if len(dd.Generics) > 0 {
				// Lowered lazily, once a call site requests a specific
				// instantiation (generics.go's monomorphize).
				continue
			}
			if err := lw.lowerFuncDecl(dd); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("func %s: %w", dd.Name, err))
				delete(lw.module.Functions, lw.funcIDs[dd.Name])
			}
		case *GlobalDecl:
			// globals are fully declared in the pre-pass; nothing further
			// to lower unless Init references runtime state, which is out
			// of scope for a module-level constant initializer here.
		case *EnumDecl, *StructDecl:
			// types are fully declared in the pre-pass
		}
	}

	return lw.module, errs
}

func (lw *Lowerer) preDeclareEnum(d *EnumDecl) {
	variants := make([]mir.UnionVariant, len(d.Variants))
	for i, v := range d.Variants {
		variants[i] = mir.UnionVariant{Tag: i, Name: v.Name, Fields: v.Fields}
	}
	ty := mir.UnionOf(variants...)
	td := lw.module.DeclareType(d.Name, ty)
	lw.typeIDs[d.Name] = td.ID
}

func (lw *Lowerer) preDeclareStruct(d *StructDecl) {
	ty := mir.StructOf(d.Fields...)
	td := lw.module.DeclareType(d.Name, ty)
	lw.typeIDs[d.Name] = td.ID
}

func (lw *Lowerer) preDeclareGlobal(d *GlobalDecl) {
	g := lw.module.DeclareGlobal(d.Name, d.Type)
	lw.globalIDs[d.Name] = g.ID
}

// preDeclareFunc registers the function's signature so calls to it from
// declarations lowered earlier in source order still resolve, and
// selects its calling convention (§4.2 "Haxe by default; extern or a
// runtime-symbol-matching qualified name is C").
func (lw *Lowerer) preDeclareFunc(d *FuncDecl) {
	if len(d.Generics) > 0 {
		// A generic template has no concrete signature of its own to
		// declare — TypeVar leaves would fail mir.Validate. It's
		// registered here and only turns into real mir.Functions when a
		// call site instantiates it via monomorphize (generics.go).
		lw.genericTemplates[d.Name] = d
		return
	}
	conv := callingConvention(d)
	sig := mir.Signature{ReturnType: d.ReturnType, Convention: conv}
	for _, p := range d.Params {
		sig.Params = append(sig.Params, mir.Param{Name: p.Name, Type: p.Type})
	}
	sig.UsesSRet = usesSRet(d.ReturnType)

	var f *mir.Function
	if d.IsExtern {
		f = lw.module.DeclareExtern(d.Name, sig)
	} else {
		f = lw.module.DeclareFunction(d.Name, sig)
	}
	for i := range sig.Params {
		f.Signature.Params[i].Reg = f.FreshReg(sig.Params[i].Type)
	}
	lw.funcIDs[d.Name] = f.ID
}

// callingConvention implements §4.2's selection rule. A qualified name
// "matching a runtime symbol" is approximated here by the IsExtern flag,
// since TAST input from an upstream resolver is expected to have already
// marked wrapper functions as extern; this lowerer does not itself own
// the runtime-symbol table (that belongs to C7, consulted by C3/C4).
func callingConvention(d *FuncDecl) mir.CallingConvention {
	if d.IsExtern {
		return mir.ConvC
	}
	return mir.ConvHaxe
}

// usesSRet implements §3 invariant 4 / §4.4: a function whose return
// type cannot be carried in a single machine register is returned via a
// caller-supplied pointer.
func usesSRet(ret *mir.Type) bool {
	if ret == nil {
		return false
	}
	switch ret.Kind {
	case mir.KindStruct, mir.KindUnion, mir.KindArray, mir.KindVector:
		return mir.SizeOf(ret) > 8
	}
	return false
}

func (lw *Lowerer) lowerFuncDecl(d *FuncDecl) error {
	if d.IsExtern {
		return nil // extern declarations have no body to lower
	}

	if violations := lw.checker.Check(d); len(violations) > 0 {
		var err error
		for _, v := range violations {
			err = multierr.Append(err, v)
		}
		return err
	}

	fid := lw.funcIDs[d.Name]
	f, _ := lw.module.FunctionByID(fid)
	f.CFG = mir.NewCFG(0)

	fb := newFuncBuilder(lw, f)
	fb.pushScope()
	for i, p := range d.Params {
		fb.bind(p.Name, f.Signature.Params[i].Reg, p.Type)
	}
	for i, c := range d.Captures {
		fb.bindCapture(i, c)
	}

	fb.lowerStmts(d.Body)
	fb.popScope(fb.cur)

	if fb.cur != nil && fb.cur.Terminator.Kind == mir.TermReturn && !fb.cur.Terminator.HasValue && f.Signature.ReturnType != nil && f.Signature.ReturnType.Kind != mir.KindVoid {
		// A body that falls off the end without an explicit return in a
		// non-void function is a lowering bug in the TAST producer, not
		// something this pass can repair; surfaced as an incomplete
		// implementation error per §4.2's error list.
		return fmt.Errorf("function %q falls through without returning a value", d.Name)
	}

	mir.Simplify(f)
	if errs := mir.Validate(f); len(errs) > 0 {
		var err error
		for _, e := range errs {
			err = multierr.Append(err, &e)
		}
		return err
	}
	return nil
}
