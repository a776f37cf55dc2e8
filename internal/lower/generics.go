package lower

import (
	"fmt"
	"strings"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

// monomorphKey composes the lru cache key spec.md §4.2 describes as
// "(GenericId, []TypeId)": the generic function's name plus the
// concrete type arguments it's being instantiated with.
func monomorphKey(name string, typeArgs []*mir.Type) string {
	parts := make([]string, len(typeArgs))
	for i, t := range typeArgs {
		parts[i] = t.String()
	}
	return name + "[" + strings.Join(parts, ",") + "]"
}

func mangleName(name string, typeArgs []*mir.Type) string {
	parts := make([]string, len(typeArgs))
	for i, t := range typeArgs {
		parts[i] = t.String()
	}
	return name + "$" + strings.Join(parts, "$")
}

// monomorphize returns the FuncID of name specialized for typeArgs,
// instantiating and lowering it on first request and serving every
// later request for the same (name, typeArgs) pair out of
// monomorphCache. A call site with generic TypeArgs that names a
// function preDeclareFunc never registered a template for is a lowering
// bug upstream (the TAST producer promised a generic declaration that
// doesn't exist) and is reported rather than silently falling back to
// the unspecialized signature.
func (lw *Lowerer) monomorphize(name string, typeArgs []*mir.Type) (mir.FuncID, error) {
	key := monomorphKey(name, typeArgs)
	if id, ok := lw.monomorphCache.Get(key); ok {
		return id, nil
	}
	tmpl, ok := lw.genericTemplates[name]
	if !ok {
		return 0, fmt.Errorf("no generic template registered for %q", name)
	}
	if len(tmpl.Generics) != len(typeArgs) {
		return 0, fmt.Errorf("%q expects %d type arguments, got %d", name, len(tmpl.Generics), len(typeArgs))
	}

	subst := make(map[string]*mir.Type, len(tmpl.Generics))
	for i, g := range tmpl.Generics {
		subst[g] = typeArgs[i]
	}
	spec := substituteFuncDecl(tmpl, subst)
	spec.Name = mangleName(name, typeArgs)
	spec.Generics = nil

	lw.preDeclareFunc(spec)
	id := lw.funcIDs[spec.Name]
	// Reserve the slot before lowering the body: a generic function
	// recursing on itself at the same instantiation must see its own
	// FuncID already resolvable.
	lw.monomorphCache.Add(key, id)

	if err := lw.lowerFuncDecl(spec); err != nil {
		return 0, fmt.Errorf("instantiating %s: %w", spec.Name, err)
	}
	if f, _ := lw.module.FunctionByID(id); f != nil && f.Signature.ReturnType.HasUnresolvedGenerics() {
		return 0, fmt.Errorf("instantiation %s still has unresolved generics after substitution", spec.Name)
	}
	return id, nil
}

func substituteFuncDecl(tmpl *FuncDecl, subst map[string]*mir.Type) *FuncDecl {
	spec := &FuncDecl{
		Name:       tmpl.Name,
		ReturnType: substType(tmpl.ReturnType, subst),
		IsExtern:   tmpl.IsExtern,
		Body:       tmpl.Body,
		Captures:   tmpl.Captures,
	}
	spec.Params = make([]ParamDecl, len(tmpl.Params))
	for i, p := range tmpl.Params {
		spec.Params[i] = ParamDecl{Name: p.Name, Type: substType(p.Type, subst)}
	}
	return spec
}

// substType replaces every TypeVar leaf reachable from t according to
// subst, leaving t's shape (Ptr/Array/Struct/...) intact. Types that
// don't recursively contain a TypeVar are returned unchanged rather
// than copied, since MIR types are treated as immutable once built.
func substType(t *mir.Type, subst map[string]*mir.Type) *mir.Type {
	if t == nil || !t.HasUnresolvedGenerics() {
		return t
	}
	if t.Kind == mir.KindTypeVar {
		if concrete, ok := subst[t.VarName]; ok {
			return concrete
		}
		return t
	}

	cp := *t
	cp.Elem = substType(t.Elem, subst)
	if len(t.Fields) > 0 {
		cp.Fields = make([]mir.Field, len(t.Fields))
		for i, f := range t.Fields {
			cp.Fields[i] = mir.Field{Name: f.Name, Type: substType(f.Type, subst)}
		}
	}
	if len(t.Variants) > 0 {
		cp.Variants = make([]mir.UnionVariant, len(t.Variants))
		for i, v := range t.Variants {
			fields := make([]mir.Field, len(v.Fields))
			for j, f := range v.Fields {
				fields[j] = mir.Field{Name: f.Name, Type: substType(f.Type, subst)}
			}
			cp.Variants[i] = mir.UnionVariant{Tag: v.Tag, Name: v.Name, Fields: fields}
		}
	}
	if len(t.Params) > 0 {
		cp.Params = make([]*mir.Type, len(t.Params))
		for i, p := range t.Params {
			cp.Params[i] = substType(p, subst)
		}
	}
	cp.Return = substType(t.Return, subst)
	return &cp
}
