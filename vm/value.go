package vm

import (
	"math"
)

// Value is a fox value packed into 64 bits.
//
// Any bit pattern outside the boxed range is a number and is stored as the
// double itself. Boxed values set the exponent, the quiet bit and bit 50
// (qnan). With the sign bit also set the low 48 bits are a heap Ref
// (generation in bits 32..47, arena index below). Without it the low bits
// name nil, false or true.
type Value uint64

const (
	qnan    uint64 = 0x7FFC000000000000
	signBit uint64 = 0x8000000000000000
	refBits uint64 = 0x0000FFFFFFFFFFFF

	// Every NaN entering the VM becomes this pattern. Bit 50 is clear, so a
	// NaN can never alias a boxed value.
	canonicalNaN uint64 = 0x7FF8000000000000
)

const (
	Nil   = Value(qnan | 1)
	False = Value(qnan | 2)
	True  = Value(qnan | 3)
)

// IsNumber reports whether v holds a double.
func (v Value) IsNumber() bool {
	return uint64(v)&qnan != qnan
}

// IsObject reports whether v holds a heap reference.
func (v Value) IsObject() bool {
	return uint64(v)&(signBit|qnan) == signBit|qnan
}

func (v Value) IsNil() bool { return v == Nil }

func (v Value) IsBool() bool { return v|1 == True }

// Float64 unboxes a number. It panics on any other value.
func (v Value) Float64() float64 {
	if !v.IsNumber() {
		panic("vm: Float64 of non-number value")
	}
	return math.Float64frombits(uint64(v))
}

// FromFloat64 boxes f, folding every NaN onto canonicalNaN.
func FromFloat64(f float64) Value {
	if math.IsNaN(f) {
		return Value(canonicalNaN)
	}
	return Value(math.Float64bits(f))
}

// Ref unboxes a heap reference. It panics on any other value.
func (v Value) Ref() Ref {
	if !v.IsObject() {
		panic("vm: Ref of non-object value")
	}
	bits := uint64(v) & refBits
	return Ref{index: uint32(bits), gen: uint16(bits >> 32)}
}

func FromRef(r Ref) Value {
	return Value(signBit | qnan | uint64(r.gen)<<32 | uint64(r.index))
}

// Bool unboxes a boolean. It panics on any other value.
func (v Value) Bool() bool {
	if !v.IsBool() {
		panic("vm: Bool of non-boolean value")
	}
	return v == True
}

func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// IsFalsy is true only for nil and false; 0 and "" are truthy.
func (v Value) IsFalsy() bool {
	return v.IsNil() || v == False
}

// Equal reports whether a and b are equal. Numbers compare with IEEE
// semantics; objects compare by identity, which for interned strings is
// content equality. Values of different kinds are never equal.
func Equal(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return a.Float64() == b.Float64()
	}
	return a == b
}

// mapKey normalizes a value for use as a map key: -0 and 0 collapse to
// one key.
func mapKey(v Value) Value {
	if v.IsNumber() && v.Float64() == 0 {
		return FromFloat64(0)
	}
	return v
}
