package backend

import (
	"fmt"

	"github.com/llir/llvm/ir/types"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

// llvmType maps a mir.Type to the llir/llvm type of a VALUE of that type —
// the type a register, parameter, or return slot holds. It is not the type
// of the underlying storage: OpCreateStruct/OpCreateUnion/OpAlloc (like
// their internal/interp counterparts) always allocate their aggregate in
// the arena and hand back a pointer, so every aggregate MIR kind is
// machine-represented as *i8 here, exactly as KindPtr/KindRef are. When
// actual byte storage of a known size is needed — an alloca, or the
// pointee of an sret slot — call blobType(mir.SizeOf(t)) directly instead;
// mir/layout.go's SizeOf/FieldOffset/UnionPayloadOffset remain the single
// source of truth for the byte offsets GetElementPtr computes into it.
func llvmType(t *mir.Type) types.Type {
	if t == nil {
		return types.Void
	}
	switch t.Kind {
	case mir.KindVoid:
		return types.Void
	case mir.KindBool:
		return types.I1
	case mir.KindI8, mir.KindU8:
		return types.I8
	case mir.KindI16, mir.KindU16:
		return types.I16
	case mir.KindI32, mir.KindU32:
		return types.I32
	case mir.KindI64, mir.KindU64:
		return types.I64
	case mir.KindF32:
		return types.Float
	case mir.KindF64:
		return types.Double
	case mir.KindPtr, mir.KindRef:
		return types.NewPointer(types.I8)
	case mir.KindFunction:
		return types.NewPointer(types.I8)
	case mir.KindString, mir.KindSlice, mir.KindStruct, mir.KindUnion,
		mir.KindArray, mir.KindVector, mir.KindOpaque, mir.KindAny:
		return types.NewPointer(types.I8)
	default:
		panic(fmt.Sprintf("backend: llvmType: unhandled mir.Type %s", t.String()))
	}
}

// blobType returns an i8 array of size n bytes — the uniform
// byte-addressable representation for every aggregate MIR type (§4.1's
// layout queries already give exact field offsets; GetElementPtr indexes
// into this array by byte offset rather than by a structurally-matching
// LLVM field index).
func blobType(n int) types.Type {
	if n <= 0 {
		n = 1
	}
	return types.NewArray(uint64(n), types.I8)
}

// isPrimitiveInt reports whether t is a fixed-width integer or Bool — the
// only kinds the ABI glue's post-call coercion (§4.4 "Never coerce when
// the source or destination is a pointer or aggregate") may sextend/ireduce.
func isPrimitiveInt(t *mir.Type) bool {
	return t != nil && (t.IsInteger() || t.Kind == mir.KindBool)
}
