package backend

import "github.com/rayzor-lang/rayzor/internal/mir"

// ParamKind is the coarse runtime-reflection category a variant field's
// mir.Type reduces to, mirroring the original's ir_type_to_param_type:
// RTTI only needs to tell a pattern-match helper how to read a slot back,
// not its exact width.
type ParamKind int

const (
	ParamDynamic ParamKind = iota
	ParamInt
	ParamFloat
	ParamBool
	ParamString
)

func paramKindOf(t *mir.Type) ParamKind {
	if t == nil {
		return ParamDynamic
	}
	switch t.Kind {
	case mir.KindI8, mir.KindI16, mir.KindI32, mir.KindI64,
		mir.KindU8, mir.KindU16, mir.KindU32, mir.KindU64:
		return ParamInt
	case mir.KindF32, mir.KindF64:
		return ParamFloat
	case mir.KindBool:
		return ParamBool
	case mir.KindString:
		return ParamString
	default:
		return ParamDynamic
	}
}

// EnumVariant is one registered variant's reflection shape: its tag name,
// how many payload fields it carries, and each field's coarse kind.
type EnumVariant struct {
	Name       string
	ParamCount int
	ParamKinds []ParamKind
}

// EnumInfo is the {name, variant_count, variant_param_kinds} triple
// spec.md §4.4's "Runtime enum RTTI" registers per enum type, keyed by
// the type's module-assigned ID.
type EnumInfo struct {
	TypeID   mir.TypeID
	Name     string
	Variants []EnumVariant
}

// EnumRTTIRegistry is the runtime-side sink enum layout metadata is
// registered with, implemented by whatever host reflection/pattern-match
// support the engine wires in (spec.md: "registers ... with the runtime
// so reflection and pattern-match runtime helpers have layout
// information"). This package only walks MIR and builds EnumInfo; it
// never touches the registry's storage itself.
type EnumRTTIRegistry interface {
	RegisterEnum(EnumInfo)
}

// RegisterEnumRTTI walks m's type table and registers every enum (a
// Union-kind TypeDefinition) with reg. This replaces the original's
// per-module generated __init__ initializer functions (cranelift_backend.rs's
// register_enum_rtti_from_modules comment: "avoids generating __init__
// code that calls runtime functions via FFI") with a direct Go-side walk:
// llir/llvm has no FFI-call-from-init-function concept to avoid in the
// first place, so the original's workaround is simply unnecessary here —
// the registration happens once, host-side, before any native code runs,
// exactly matching the its single call site ("before call_main").
func RegisterEnumRTTI(m *mir.Module, reg EnumRTTIRegistry) {
	for _, td := range m.Types {
		if !td.IsEnum {
			continue
		}
		info := EnumInfo{TypeID: td.ID, Name: td.Name}
		for _, v := range td.Variants {
			kinds := make([]ParamKind, len(v.Fields))
			for i, f := range v.Fields {
				kinds[i] = paramKindOf(f.Type)
			}
			info.Variants = append(info.Variants, EnumVariant{
				Name:       v.Name,
				ParamCount: len(v.Fields),
				ParamKinds: kinds,
			})
		}
		reg.RegisterEnum(info)
	}
}
