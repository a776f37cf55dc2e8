// Package interp implements C3: a direct-threaded interpreter over MIR
// block instruction streams, used both as tier 0 and as the test oracle
// for the native backend.
package interp

import "math"

// Value is the interpreter's boxed register value: a 64-bit scalar wide
// enough for any primitive (§4.3), plus an arena pointer/offset when the
// register holds a pointer. Aggregates larger than 64 bits are never
// carried by value — they live in the arena and are referenced through a
// Ptr Value.
type Value struct {
	Bits uint64 // raw bit pattern: integer value, float bit pattern, or bool (0/1)
	Ptr  uint64 // arena offset; meaningful only when the register's static type is Ptr/Ref/Slice/String
}

func IntValue(v int64) Value   { return Value{Bits: uint64(v)} }
func UintValue(v uint64) Value { return Value{Bits: v} }
func FloatValue(v float64) Value {
	return Value{Bits: math.Float64bits(v)}
}
func BoolValue(v bool) Value {
	if v {
		return Value{Bits: 1}
	}
	return Value{Bits: 0}
}
func PtrValue(offset uint64) Value { return Value{Ptr: offset, Bits: offset} }
func NullPtr() Value               { return Value{} }

func (v Value) Int() int64     { return int64(v.Bits) }
func (v Value) Uint() uint64   { return v.Bits }
func (v Value) Float() float64 { return math.Float64frombits(v.Bits) }
func (v Value) Bool() bool     { return v.Bits != 0 }
func (v Value) IsNull() bool   { return v.Ptr == 0 }
