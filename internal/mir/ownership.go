package mir

// Ownership tags an operand or instruction with its ownership discipline
// per §3 invariant 6 / §4.8. The checker (internal/lower's Checker, in
// checker.go) verifies these before a function is accepted into MIR; the
// interpreter and backend trust them without re-checking.
type Ownership int

const (
	OwnNone Ownership = iota
	OwnCopy
	OwnMove
	OwnBorrowImmutable
	OwnBorrowMutable
	OwnClone
)

func (o Ownership) String() string {
	switch o {
	case OwnCopy:
		return "copy"
	case OwnMove:
		return "move"
	case OwnBorrowImmutable:
		return "borrow_imm"
	case OwnBorrowMutable:
		return "borrow_mut"
	case OwnClone:
		return "clone"
	default:
		return "none"
	}
}
