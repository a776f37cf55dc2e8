package backend

import "github.com/rayzor-lang/rayzor/internal/mir"

// PromotionPolicy selects how narrower-than-64-bit integer parameters and
// return values of a C-convention function are widened at the machine
// ABI boundary. spec.md §9(a) leaves the Windows case open; this backend
// ships only the non-Windows rule and structures the switch so a
// PromotionWindows policy (no promotion; pass native width per the
// Windows x64 ABI) can be added without touching any call site — see
// DESIGN.md's Open Question decisions.
type PromotionPolicy int

const (
	// PromotionNonWindows widens every integer type narrower than 64
	// bits to i64 in both parameter and return position: sign-extended
	// for signed types and Bool, zero-extended for unsigned types
	// (§4.4 "Signature construction").
	PromotionNonWindows PromotionPolicy = iota
)

// Promote reports the machine-level type t becomes at a C-ABI boundary
// under p, and whether the value requires sign- or zero-extension to
// reach it. Panics for an unimplemented policy per DESIGN.md's decision
// to fail loudly on a silent mis-promotion rather than guess.
func Promote(p PromotionPolicy, t *mir.Type) (machineType *mir.Type, signExtend bool, needsPromotion bool) {
	switch p {
	case PromotionNonWindows:
		if !t.IsInteger() && t.Kind != mir.KindBool {
			return t, false, false
		}
		if t.BitWidth() >= 64 {
			return t, false, false
		}
		signed := t.Kind == mir.KindBool || (t.IsInteger() && t.IsSigned())
		return mir.I64(), signed, true
	default:
		panic("backend: unimplemented PromotionPolicy")
	}
}
