// Package lower implements C2 (TAST→MIR lowering) and C8 (the ownership
// and lifetime checker that gates it). It consumes an already-typed,
// already-resolved AST — symbol resolution, namespace/import handling,
// and source parsing all happen upstream and are out of scope here
// (spec.md §1) — and produces a validated mir.Module.
package lower

import "github.com/rayzor-lang/rayzor/internal/mir"

// Ownership mirrors the ownership annotation the type checker attaches
// to every TAST expression (§4.2 "Inputs: a typed AST ... with ownership
// annotations attached to each expression").
type Ownership = mir.Ownership

// Decl is a top-level declaration the lowerer consumes one at a time,
// accumulating all of a declaration's errors before moving to the next
// (§4.2 "collects all errors from a top-level declaration before
// aborting the declaration").
type Decl interface{ declNode() }

// FuncDecl is a typed function declaration ready for lowering.
type FuncDecl struct {
	Name       string
	Params     []ParamDecl
	ReturnType *mir.Type
	Generics   []string // type parameter names; empty for non-generic functions
	Body       []Stmt
	IsExtern   bool
	Captures   []CaptureDecl // non-empty only for lambda bodies produced by a ClosureExpr
}

func (*FuncDecl) declNode() {}

type ParamDecl struct {
	Name string
	Type *mir.Type
}

// CaptureDecl names one variable a lambda captures from its enclosing
// scope, and how.
type CaptureDecl struct {
	Name    string
	Type    *mir.Type
	ByRef   bool // true: BorrowImmutable into the environment; false: Move/Copy by value
	Mutable bool // meaningful only when ByRef
}

// EnumDecl declares a tagged union type (source-level "enum").
type EnumDecl struct {
	Name     string
	Variants []EnumVariantDecl
}

func (*EnumDecl) declNode() {}

type EnumVariantDecl struct {
	Name   string
	Fields []mir.Field
}

// StructDecl declares a plain aggregate type.
type StructDecl struct {
	Name   string
	Fields []mir.Field
}

func (*StructDecl) declNode() {}

// GlobalDecl declares a module-level mutable storage slot (a static
// class field, per §4.2 "Global mutable state").
type GlobalDecl struct {
	Name string
	Type *mir.Type
	Init Expr
}

func (*GlobalDecl) declNode() {}

// Stmt is a typed statement.
type Stmt interface{ stmtNode() }

type ExprStmt struct{ X Expr }
type VarDecl struct {
	Name  string
	Type  *mir.Type
	Init  Expr
	Owner Ownership // ownership kind of the initializing expression
}
type Assign struct {
	Target Expr // Ident or FieldAccess or Index
	Value  Expr
	Owner  Ownership
}
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt // nil when there is no else branch
}
type While struct {
	Cond Expr
	Body []Stmt
}

// ForRange desugars `for i in lo..hi`.
type ForRange struct {
	Var      string
	Lo, Hi   Expr
	Body     []Stmt
}

// ForArray desugars `for v in arr` over a fixed-size array/slice value.
type ForArray struct {
	Var   string
	Array Expr
	Body  []Stmt
}

// ForIterable desugars `for v in iterable` over any other iterable,
// lowered as `iter = x.iterator(); while (iter.hasNext()) { v =
// iter.next(); body }` (§4.2).
type ForIterable struct {
	Var          string
	Iterable     Expr
	ElemType     *mir.Type  // type `.next()` produces
	IteratorFunc mir.FuncID // `.iterator()` method
	HasNextFunc  mir.FuncID // `.hasNext()` method
	NextFunc     mir.FuncID // `.next()` method
	Body         []Stmt
}

type Return struct{ Value Expr } // Value nil for a void return
type Break struct{}
type Continue struct{}

// Match is a pattern-match statement over an enum value.
type Match struct {
	Subject Expr
	Arms    []MatchArm
}
type MatchArm struct {
	Pattern Pattern
	Body    []Stmt
}

func (*ExprStmt) stmtNode()    {}
func (*VarDecl) stmtNode()     {}
func (*Assign) stmtNode()      {}
func (*If) stmtNode()          {}
func (*While) stmtNode()       {}
func (*ForRange) stmtNode()    {}
func (*ForArray) stmtNode()    {}
func (*ForIterable) stmtNode() {}
func (*Return) stmtNode()      {}
func (*Break) stmtNode()       {}
func (*Continue) stmtNode()    {}
func (*Match) stmtNode()       {}

// Pattern is a typed match pattern.
type Pattern interface{ patternNode() }

// ConstructorPattern matches a specific enum variant, binding its payload
// fields into fresh locals in source order (§4.2).
type ConstructorPattern struct {
	VariantTag int
	Bindings   []string // one name per payload field, "_" for unused
}

// VariablePattern always matches, binding the whole subject to a new
// local.
type VariablePattern struct{ Name string }

// WildcardPattern always matches and binds nothing.
type WildcardPattern struct{}

// OrPattern matches if any alternative matches; the checker enforces
// that every alternative binds an identical name set (§4.2).
type OrPattern struct{ Alternatives []Pattern }

func (*ConstructorPattern) patternNode() {}
func (*VariablePattern) patternNode()    {}
func (*WildcardPattern) patternNode()    {}
func (*OrPattern) patternNode()          {}

// Expr is a typed expression, carrying its ownership annotation where
// one applies.
type Expr interface{ exprNode() }

type IntLit struct {
	Value int64
	Type  *mir.Type
}
type FloatLit struct {
	Value float64
	Type  *mir.Type
}
type BoolLit struct{ Value bool }
type StringLit struct{ Value string }
type Ident struct {
	Name  string
	Type  *mir.Type
	Owner Ownership
}
type Binary struct {
	Op          mir.BinOpKind
	Cmp         mir.CmpKind
	IsCompare   bool
	LHS, RHS    Expr
	Type        *mir.Type
}
type Unary struct {
	Op   mir.UnOpKind
	X    Expr
	Type *mir.Type
}
type Call struct {
	Func      mir.FuncID
	Args      []Expr
	ArgOwners []Ownership
	Type      *mir.Type
	TypeArgs  []*mir.Type // non-empty when Func is generic: instantiation arguments
	Generic   string       // source name of the generic template; set iff TypeArgs is non-empty
	Tail      bool
}
type FieldAccess struct {
	X     Expr
	Index int
	Type  *mir.Type
}
type IndexExpr struct {
	X     Expr
	Idx   Expr
	Type  *mir.Type
}
type StructLit struct {
	Type   *mir.Type
	Fields []Expr
}
type EnumConstruct struct {
	Type       *mir.Type
	Tag        int
	Payload    Expr // nil for a unit variant
}

// ClosureExpr names the lambda's generated function and its captures;
// the lowerer resolves Func to a FuncDecl with Captures set, already
// lowered as its own function.
type ClosureExpr struct {
	Func     mir.FuncID
	Captures []CaptureDecl
}
type BorrowExpr struct {
	X       Expr
	Mutable bool
}
type CloneExpr struct{ X Expr }

func (*IntLit) exprNode()        {}
func (*FloatLit) exprNode()      {}
func (*BoolLit) exprNode()       {}
func (*StringLit) exprNode()     {}
func (*Ident) exprNode()         {}
func (*Binary) exprNode()        {}
func (*Unary) exprNode()         {}
func (*Call) exprNode()          {}
func (*FieldAccess) exprNode()   {}
func (*IndexExpr) exprNode()     {}
func (*StructLit) exprNode()     {}
func (*EnumConstruct) exprNode() {}
func (*ClosureExpr) exprNode()   {}
func (*BorrowExpr) exprNode()    {}
func (*CloneExpr) exprNode()     {}
