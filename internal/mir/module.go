package mir

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// TypeDefinition is a named type registered in a module's type table —
// the source the backend walks to build enum/struct RTTI (§4.4 "Runtime
// enum RTTI").
type TypeDefinition struct {
	ID      TypeID
	Name    string
	Type    *Type
	IsEnum  bool
	Variants []UnionVariant // populated when IsEnum; mirrors Type.Variants for quick RTTI walks
}

// Global is a module-owned static storage slot, accessed only through
// LoadGlobal/StoreGlobal — the core never embeds its address (§4.2
// "Global mutable state").
type Global struct {
	ID   GlobalID
	Name string
	Type *Type
}

// Module is an IrModule: the unit the lowerer hands to the tiered
// controller. Function IDs are dense within a module and are not stable
// across modules (§3 "Modules").
type Module struct {
	Name            string
	Functions       map[FuncID]*Function // non-extern
	ExternFunctions map[FuncID]*Function
	Types           map[TypeID]*TypeDefinition
	Globals         map[GlobalID]*Global

	nextFunc   FuncID
	nextType   TypeID
	nextGlobal GlobalID
}

func NewModule(name string) *Module {
	return &Module{
		Name:            name,
		Functions:       map[FuncID]*Function{},
		ExternFunctions: map[FuncID]*Function{},
		Types:           map[TypeID]*TypeDefinition{},
		Globals:         map[GlobalID]*Global{},
	}
}

// DeclareFunction registers a new, empty non-extern function and returns it.
func (m *Module) DeclareFunction(name string, sig Signature) *Function {
	id := m.nextFunc
	m.nextFunc++
	f := NewFunction(id, name, sig)
	m.Functions[id] = f
	return f
}

// DeclareExtern registers an extern declaration: empty CFG, Import linkage
// (§3 invariant 3).
func (m *Module) DeclareExtern(name string, sig Signature) *Function {
	id := m.nextFunc
	m.nextFunc++
	f := NewFunction(id, name, sig)
	f.Attributes = Attributes{Linkage: LinkImport, IsExtern: true}
	m.ExternFunctions[id] = f
	return f
}

// DeclareType registers a named type definition.
func (m *Module) DeclareType(name string, ty *Type) *TypeDefinition {
	id := m.nextType
	m.nextType++
	td := &TypeDefinition{ID: id, Name: name, Type: ty}
	if ty.Kind == KindUnion {
		td.IsEnum = true
		td.Variants = ty.Variants
	}
	m.Types[id] = td
	return td
}

// DeclareGlobal registers a module-owned global.
func (m *Module) DeclareGlobal(name string, ty *Type) *Global {
	id := m.nextGlobal
	m.nextGlobal++
	g := &Global{ID: id, Name: name, Type: ty}
	m.Globals[id] = g
	return g
}

// FunctionByID looks a function or extern declaration up by ID.
func (m *Module) FunctionByID(id FuncID) (*Function, bool) {
	if f, ok := m.Functions[id]; ok {
		return f, true
	}
	f, ok := m.ExternFunctions[id]
	return f, ok
}

// AllFunctions returns every function (non-extern then extern), each group
// in ascending FuncID order, for passes that must walk the whole module,
// e.g. RTTI registration or declaration. A stable order keeps compiled
// output reproducible across runs (§8's "structurally identical MIR"
// round-trip property) despite Go's randomized map iteration.
func (m *Module) AllFunctions() []*Function {
	all := make([]*Function, 0, len(m.Functions)+len(m.ExternFunctions))
	for _, id := range sortedFuncIDs(m.Functions) {
		all = append(all, m.Functions[id])
	}
	for _, id := range sortedFuncIDs(m.ExternFunctions) {
		all = append(all, m.ExternFunctions[id])
	}
	return all
}

func sortedFuncIDs(fns map[FuncID]*Function) []FuncID {
	ids := maps.Keys(fns)
	slices.Sort(ids)
	return ids
}
