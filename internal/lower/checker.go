package lower

import (
	"fmt"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

// ViolationKind enumerates the rule categories from spec.md §4.8.
type ViolationKind int

const (
	ViolationUseAfterMove ViolationKind = iota
	ViolationBorrowExclusivity
	ViolationClosureCaptureOutlivesRoot
)

// LifetimeViolation is one ownership/borrow rule violation. This
// package receives no source spans (parsing and resolution are out of
// scope, per tast.go's package doc), so the violation carries the
// offending binding's name and a fix-it suggestion instead — "moved
// here", "borrowed here", "consider Clone" (§4.8).
type LifetimeViolation struct {
	Kind       ViolationKind
	Name       string
	Suggestion string
}

func (v *LifetimeViolation) Error() string {
	return fmt.Sprintf("%s %q: %s", v.label(), v.Name, v.Suggestion)
}

func (v *LifetimeViolation) label() string {
	switch v.Kind {
	case ViolationUseAfterMove:
		return "use after move"
	case ViolationBorrowExclusivity:
		return "borrow exclusivity violated"
	case ViolationClosureCaptureOutlivesRoot:
		return "borrow outlives captured root"
	default:
		return "lifetime violation"
	}
}

// Checker implements C8: it walks one function's body tracking, per
// binding, whether it has been moved and how many borrows are
// currently live over it, refusing MIR emission on any violation
// (§4.8). It runs once per FuncDecl, ahead of CFG construction, so
// lowering never has to unwind partially-emitted MIR on a rejected
// function.
type Checker struct{}

func NewChecker() *Checker { return &Checker{} }

func (c *Checker) Check(d *FuncDecl) []error {
	cc := &checkCtx{
		moved:     map[string]bool{},
		declDepth: map[string]int{},
		borrows:   map[string]*borrowState{},
	}
	for _, p := range d.Params {
		cc.declDepth[p.Name] = 0
	}
	for _, cap := range d.Captures {
		cc.declDepth[cap.Name] = 0
	}
	cc.pushScope()
	cc.checkStmts(d.Body)
	cc.popScope()
	return cc.errs
}

// functionExitDepth is the pseudo-depth a value escapes to when
// returned: shallower than every declared local, since the whole
// function activation (and everything in it) is gone once it returns.
const functionExitDepth = -1

type borrowState struct {
	immut int
	mut   bool
}

type borrowRecord struct {
	name    string
	mutable bool
}

type checkCtx struct {
	moved        map[string]bool
	declDepth    map[string]int
	borrows      map[string]*borrowState
	scopeBorrows [][]borrowRecord
	depth        int
	errs         []error
}

func (cc *checkCtx) pushScope() {
	cc.depth++
	cc.scopeBorrows = append(cc.scopeBorrows, nil)
}

// popScope approximates EndBorrow: every borrow opened in the scope
// being exited ends here, regardless of whether the borrowed
// expression is still lexically reachable.
func (cc *checkCtx) popScope() {
	recs := cc.scopeBorrows[len(cc.scopeBorrows)-1]
	cc.scopeBorrows = cc.scopeBorrows[:len(cc.scopeBorrows)-1]
	for _, r := range recs {
		bs := cc.borrows[r.name]
		if bs == nil {
			continue
		}
		if r.mutable {
			bs.mut = false
		} else if bs.immut > 0 {
			bs.immut--
		}
	}
	cc.depth--
}

func (cc *checkCtx) declare(name string) {
	cc.declDepth[name] = cc.depth
	delete(cc.moved, name)
}

func (cc *checkCtx) fail(kind ViolationKind, name, suggestion string) {
	cc.errs = append(cc.errs, &LifetimeViolation{Kind: kind, Name: name, Suggestion: suggestion})
}

// recordMove applies Move's effect (§4.2/§4.8): the source becomes
// unusable until a later Assign re-initializes it. Moving a borrowed
// value is itself a borrow-exclusivity violation — the borrow would
// outlive a now-invalidated owner.
func (cc *checkCtx) recordMove(name string) {
	if name == "" {
		return
	}
	if cc.moved[name] {
		cc.fail(ViolationUseAfterMove, name, "moved here; consider Clone")
		return
	}
	if bs := cc.borrows[name]; bs != nil && (bs.mut || bs.immut > 0) {
		cc.fail(ViolationBorrowExclusivity, name, "cannot move while borrowed; consider Clone")
		return
	}
	cc.moved[name] = true
}

// recordUse checks a read (Copy, Clone source, or any other
// non-consuming reference) against the unique-owner rule.
func (cc *checkCtx) recordUse(name string) {
	if name == "" {
		return
	}
	if cc.moved[name] {
		cc.fail(ViolationUseAfterMove, name, "moved here; consider Clone")
	}
}

func (cc *checkCtx) recordBorrow(name string, mutable bool) {
	if name == "" {
		return
	}
	if cc.moved[name] {
		cc.fail(ViolationUseAfterMove, name, "moved here; consider Clone")
		return
	}
	bs := cc.borrows[name]
	if bs == nil {
		bs = &borrowState{}
		cc.borrows[name] = bs
	}
	if mutable && (bs.mut || bs.immut > 0) {
		cc.fail(ViolationBorrowExclusivity, name, "already borrowed here")
		return
	}
	if !mutable && bs.mut {
		cc.fail(ViolationBorrowExclusivity, name, "already mutably borrowed here")
		return
	}
	if mutable {
		bs.mut = true
	} else {
		bs.immut++
	}
	top := len(cc.scopeBorrows) - 1
	cc.scopeBorrows[top] = append(cc.scopeBorrows[top], borrowRecord{name: name, mutable: mutable})
}

// checkClosureEscape rejects a by-reference capture whose root is
// declared more deeply than the scope the closure itself escapes to
// (§4.8 "captured-by-reference closures do not outlive their captured
// roots").
func (cc *checkCtx) checkClosureEscape(cl *ClosureExpr, targetDepth int) {
	for _, cap := range cl.Captures {
		if !cap.ByRef {
			continue
		}
		d, ok := cc.declDepth[cap.Name]
		if ok && d > targetDepth {
			cc.fail(ViolationClosureCaptureOutlivesRoot, cap.Name,
				"capture by value or Clone instead of by reference")
		}
	}
}

func identName(e Expr) string {
	if id, ok := e.(*Ident); ok {
		return id.Name
	}
	return ""
}

func (cc *checkCtx) checkStmts(stmts []Stmt) {
	for _, s := range stmts {
		cc.checkStmt(s)
	}
}

func (cc *checkCtx) checkStmt(s Stmt) {
	switch st := s.(type) {
	case *ExprStmt:
		cc.checkExpr(st.X)

	case *VarDecl:
		cc.checkExpr(st.Init)
		cc.declare(st.Name)

	case *Assign:
		cc.checkExpr(st.Value)
		if cl, ok := st.Value.(*ClosureExpr); ok {
			if targetName := identName(st.Target); targetName != "" {
				if d, ok := cc.declDepth[targetName]; ok {
					cc.checkClosureEscape(cl, d)
				}
			}
		}
		if targetName := identName(st.Target); targetName != "" {
			delete(cc.moved, targetName) // re-initialization
		} else {
			cc.checkExpr(st.Target)
		}

	case *If:
		cc.checkExpr(st.Cond)
		cc.pushScope()
		cc.checkStmts(st.Then)
		cc.popScope()
		if st.Else != nil {
			cc.pushScope()
			cc.checkStmts(st.Else)
			cc.popScope()
		}

	case *While:
		cc.checkExpr(st.Cond)
		cc.pushScope()
		cc.checkStmts(st.Body)
		cc.popScope()

	case *ForRange:
		cc.checkExpr(st.Lo)
		cc.checkExpr(st.Hi)
		cc.pushScope()
		cc.declare(st.Var)
		cc.checkStmts(st.Body)
		cc.popScope()

	case *ForArray:
		cc.checkExpr(st.Array)
		cc.pushScope()
		cc.declare(st.Var)
		cc.checkStmts(st.Body)
		cc.popScope()

	case *ForIterable:
		cc.checkExpr(st.Iterable)
		cc.pushScope()
		cc.declare(st.Var)
		cc.checkStmts(st.Body)
		cc.popScope()

	case *Return:
		if st.Value != nil {
			cc.checkExpr(st.Value)
			if cl, ok := st.Value.(*ClosureExpr); ok {
				cc.checkClosureEscape(cl, functionExitDepth)
			}
		}

	case *Break, *Continue:
		// no ownership effect

	case *Match:
		cc.checkExpr(st.Subject)
		for _, arm := range st.Arms {
			cc.pushScope()
			cc.declarePattern(arm.Pattern)
			cc.checkStmts(arm.Body)
			cc.popScope()
		}
	}
}

func (cc *checkCtx) declarePattern(p Pattern) {
	switch pp := p.(type) {
	case *ConstructorPattern:
		for _, name := range pp.Bindings {
			if name != "" && name != "_" {
				cc.declare(name)
			}
		}
	case *VariablePattern:
		cc.declare(pp.Name)
	case *WildcardPattern:
	case *OrPattern:
		for _, alt := range pp.Alternatives {
			cc.declarePattern(alt)
		}
	}
}

func (cc *checkCtx) checkExpr(e Expr) {
	switch ex := e.(type) {
	case nil, *IntLit, *FloatLit, *BoolLit, *StringLit:
		// no bindings involved

	case *Ident:
		if ex.Owner == mir.OwnMove {
			cc.recordMove(ex.Name)
		} else {
			cc.recordUse(ex.Name)
		}

	case *Binary:
		cc.checkExpr(ex.LHS)
		cc.checkExpr(ex.RHS)

	case *Unary:
		cc.checkExpr(ex.X)

	case *Call:
		for i, arg := range ex.Args {
			cc.checkCallArg(arg, ex.ArgOwners, i)
		}

	case *FieldAccess:
		cc.checkExpr(ex.X)

	case *IndexExpr:
		cc.checkExpr(ex.X)
		cc.checkExpr(ex.Idx)

	case *StructLit:
		for _, f := range ex.Fields {
			cc.checkExpr(f)
		}

	case *EnumConstruct:
		if ex.Payload != nil {
			cc.checkExpr(ex.Payload)
		}

	case *ClosureExpr:
		for _, cap := range ex.Captures {
			if cap.ByRef {
				cc.recordBorrow(cap.Name, cap.Mutable)
			} else {
				cc.recordMove(cap.Name)
			}
		}

	case *BorrowExpr:
		cc.recordBorrow(identName(ex.X), ex.Mutable)

	case *CloneExpr:
		cc.recordUse(identName(ex.X))
	}
}

func (cc *checkCtx) checkCallArg(arg Expr, owners []Ownership, i int) {
	var owner Ownership
	if i < len(owners) {
		owner = owners[i]
	}
	name := identName(arg)
	switch owner {
	case mir.OwnMove:
		if name != "" {
			cc.recordMove(name)
			return
		}
	case mir.OwnBorrowImmutable:
		if name != "" {
			cc.recordBorrow(name, false)
			return
		}
	case mir.OwnBorrowMutable:
		if name != "" {
			cc.recordBorrow(name, true)
			return
		}
	}
	cc.checkExpr(arg)
}
