package bytecode

import (
	"fmt"
	"math"
)

// FormatVersion is the current code object format version.
// Increment when making incompatible changes to the format.
const FormatVersion uint16 = 1

// ConstantKind identifies the kind of value held in a constant pool entry.
type ConstantKind uint8

const (
	ConstNil ConstantKind = iota
	ConstBool
	ConstNumber
	ConstString
	ConstFunction
)

// String returns a human-readable name for the constant kind.
func (k ConstantKind) String() string {
	switch k {
	case ConstNil:
		return "nil"
	case ConstBool:
		return "bool"
	case ConstNumber:
		return "number"
	case ConstString:
		return "string"
	case ConstFunction:
		return "function"
	default:
		return fmt.Sprintf("ConstantKind(%d)", k)
	}
}

// Constant is an entry in a function's constant pool. Exactly one payload
// field is meaningful, selected by Kind.
type Constant struct {
	Kind     ConstantKind `cbor:"1,keyasint"`
	Bool     bool         `cbor:"2,keyasint,omitempty"`
	Number   float64      `cbor:"3,keyasint,omitempty"`
	String   string       `cbor:"4,keyasint,omitempty"`
	Function *Function    `cbor:"5,keyasint,omitempty"`
}

// Nil returns a nil constant.
func Nil() Constant { return Constant{Kind: ConstNil} }

// Bool returns a boolean constant.
func Bool(b bool) Constant { return Constant{Kind: ConstBool, Bool: b} }

// Number returns a numeric constant.
func Number(n float64) Constant { return Constant{Kind: ConstNumber, Number: n} }

// String returns a string constant.
func String(s string) Constant { return Constant{Kind: ConstString, String: s} }

// Func returns a constant holding a nested function prototype.
func Func(fn *Function) Constant { return Constant{Kind: ConstFunction, Function: fn} }

// same reports whether two constants can share a pool slot.
// Functions are never shared; numbers compare by bit pattern so -0 and NaN stay distinct.
func (c Constant) same(o Constant) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ConstNil:
		return true
	case ConstBool:
		return c.Bool == o.Bool
	case ConstNumber:
		return math.Float64bits(c.Number) == math.Float64bits(o.Number)
	case ConstString:
		return c.String == o.String
	default:
		return false
	}
}

// Function is the immutable code object handed from the front end to the
// engine: instructions, a constant pool and a parallel line table.
type Function struct {
	Name         string     `cbor:"1,keyasint,omitempty"` // empty for the top-level script
	Arity        int        `cbor:"2,keyasint"`
	UpvalueCount int        `cbor:"3,keyasint"`
	Code         []byte     `cbor:"4,keyasint"`
	Constants    []Constant `cbor:"5,keyasint,omitempty"`
	Lines        []int      `cbor:"6,keyasint"` // Lines[i] is the source line of Code[i]
}

// DisplayName returns the function name, or "script" for the top level.
func (f *Function) DisplayName() string {
	if f.Name == "" {
		return "script"
	}
	return f.Name
}

// LineAt returns the source line for the instruction byte at offset,
// or 0 if the offset is outside the line table.
func (f *Function) LineAt(offset int) int {
	if offset < 0 || offset >= len(f.Lines) {
		return 0
	}
	return f.Lines[offset]
}

// Validate checks the structural integrity of the code object and every
// nested function: opcodes are known, operands are in bounds, jumps land on
// instruction boundaries, upvalue indices fit the function's upvalue count,
// the line table is parallel to the code, closure descriptors match upvalue
// counts, and the code ends with RETURN so execution cannot run off the end.
func (f *Function) Validate() error {
	if f == nil {
		return fmt.Errorf("bytecode: nil function")
	}
	if f.Arity < 0 || f.Arity > 255 {
		return fmt.Errorf("bytecode: %s: arity %d out of range", f.DisplayName(), f.Arity)
	}
	if f.UpvalueCount < 0 || f.UpvalueCount > 255 {
		return fmt.Errorf("bytecode: %s: upvalue count %d out of range", f.DisplayName(), f.UpvalueCount)
	}
	if len(f.Lines) != len(f.Code) {
		return fmt.Errorf("bytecode: %s: line table has %d entries for %d code bytes",
			f.DisplayName(), len(f.Lines), len(f.Code))
	}
	for i, c := range f.Constants {
		if c.Kind != ConstFunction {
			continue
		}
		if c.Function == nil {
			return fmt.Errorf("bytecode: %s: function constant %d is nil", f.DisplayName(), i)
		}
		if err := c.Function.Validate(); err != nil {
			return err
		}
	}

	constant := func(at int, want ...ConstantKind) (Constant, error) {
		if at+2 > len(f.Code) {
			return Constant{}, fmt.Errorf("bytecode: %s: truncated operand at %d", f.DisplayName(), at)
		}
		idx := int(f.Code[at])<<8 | int(f.Code[at+1])
		if idx >= len(f.Constants) {
			return Constant{}, fmt.Errorf("bytecode: %s: constant %d out of range at %d", f.DisplayName(), idx, at)
		}
		c := f.Constants[idx]
		if len(want) == 0 {
			return c, nil
		}
		for _, k := range want {
			if c.Kind == k {
				return c, nil
			}
		}
		return Constant{}, fmt.Errorf("bytecode: %s: constant %d is %s at %d", f.DisplayName(), idx, c.Kind, at)
	}
	upvalue := func(index, at int) error {
		if index >= f.UpvalueCount {
			return fmt.Errorf("bytecode: %s: upvalue %d out of range (have %d) at %d",
				f.DisplayName(), index, f.UpvalueCount, at)
		}
		return nil
	}

	type jump struct{ from, to int }
	var (
		jumps  []jump
		starts = make(map[int]bool)
		last   = -1
	)
	for offset := 0; offset < len(f.Code); {
		op := Opcode(f.Code[offset])
		if !op.Valid() {
			return fmt.Errorf("bytecode: %s: unknown opcode 0x%02x at %d", f.DisplayName(), byte(op), offset)
		}
		starts[offset] = true
		last = offset

		switch op {
		case OpConstant:
			if _, err := constant(offset + 1); err != nil {
				return err
			}
		case OpGetGlobal, OpDefineGlobal, OpSetGlobal, OpGetProperty, OpSetProperty,
			OpGetSuper, OpClass, OpMethod, OpOperator, OpImport, OpInvoke, OpSuperInvoke:
			if _, err := constant(offset+1, ConstString); err != nil {
				return err
			}
		case OpGetUpvalue, OpSetUpvalue:
			if offset+1 < len(f.Code) {
				if err := upvalue(int(f.Code[offset+1]), offset); err != nil {
					return err
				}
			}
		case OpJump, OpJumpIfFalse, OpLoop:
			if offset+3 <= len(f.Code) {
				dist := int(f.Code[offset+1])<<8 | int(f.Code[offset+2])
				to := offset + 3 + dist
				if op == OpLoop {
					to = offset + 3 - dist
				}
				jumps = append(jumps, jump{from: offset, to: to})
			}
		case OpClosure:
			c, err := constant(offset+1, ConstFunction)
			if err != nil {
				return err
			}
			n := c.Function.UpvalueCount
			if offset+3+2*n > len(f.Code) {
				return fmt.Errorf("bytecode: %s: truncated closure descriptors at %d", f.DisplayName(), offset)
			}
			for i := 0; i < n; i++ {
				at := offset + 3 + 2*i
				if f.Code[at] == 0 {
					if err := upvalue(int(f.Code[at+1]), offset); err != nil {
						return err
					}
				}
			}
			offset += 3 + 2*n
			continue
		}
		width := op.Info().OperandBytes
		if offset+1+width > len(f.Code) {
			return fmt.Errorf("bytecode: %s: truncated %s at %d", f.DisplayName(), op, offset)
		}
		offset += 1 + width
	}

	for _, j := range jumps {
		if !starts[j.to] {
			return fmt.Errorf("bytecode: %s: %s at %d jumps to %d, not an instruction",
				f.DisplayName(), Opcode(f.Code[j.from]), j.from, j.to)
		}
	}
	if last < 0 || Opcode(f.Code[last]) != OpReturn {
		return fmt.Errorf("bytecode: %s: code does not end with RETURN", f.DisplayName())
	}
	return nil
}
