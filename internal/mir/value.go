package mir

// Id is a dense IrId: a register identifier unique within a function.
// Each Id has exactly one defining instruction (SSA, §3 invariant 1).
type Id int

// BlockID identifies an IrBasicBlock within a function's CFG.
type BlockID int

// FuncID identifies an IrFunction within a module. Dense within a module;
// not stable across modules (§3 "Modules").
type FuncID int

// GlobalID identifies a module-owned global variable.
type GlobalID int

// TypeID identifies a TypeDefinition within a module's type table.
type TypeID int

// ValueKind distinguishes the variants of an IrValue.
type ValueKind int

const (
	ValConstInt ValueKind = iota
	ValConstFloat
	ValConstBool
	ValConstString
	ValNull
	ValFuncRef
	ValReg // reference to a register (IrId) defined earlier
)

// Value is an IrValue: either a typed immediate, Null, an interned string
// literal, a Function reference, or a reference to an already-defined
// register. Const* values have Ty recording their concrete type.
type Value struct {
	Kind ValueKind
	Ty   *Type

	Int    int64
	Float  float64
	Bool   bool
	Str    string
	Func   FuncID
	Reg    Id
}

func ConstInt(ty *Type, v int64) Value    { return Value{Kind: ValConstInt, Ty: ty, Int: v} }
func ConstFloat(ty *Type, v float64) Value { return Value{Kind: ValConstFloat, Ty: ty, Float: v} }
func ConstBool(v bool) Value               { return Value{Kind: ValConstBool, Ty: Bool(), Bool: v} }
func ConstString(s string) Value           { return Value{Kind: ValConstString, Ty: StringT(), Str: s} }
func NullValue(ty *Type) Value             { return Value{Kind: ValNull, Ty: ty} }
func FuncRefValue(ty *Type, f FuncID) Value { return Value{Kind: ValFuncRef, Ty: ty, Func: f} }
func RegValue(ty *Type, id Id) Value       { return Value{Kind: ValReg, Ty: ty, Reg: id} }
