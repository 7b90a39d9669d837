package bytecode

import "math"

// ---------------------------------------------------------------------------
// Builder: Helper for constructing code objects
// ---------------------------------------------------------------------------

// Capture describes how a closure obtains one upvalue: either a local slot
// of the enclosing frame or an upvalue of the enclosing closure.
type Capture struct {
	IsLocal bool
	Index   byte
}

// Local returns a capture of the enclosing frame's local slot.
func Local(slot byte) Capture { return Capture{IsLocal: true, Index: slot} }

// Enclosing returns a capture of the enclosing closure's upvalue.
func Enclosing(index byte) Capture { return Capture{Index: index} }

// Builder constructs a Function one instruction at a time, keeping the
// line table parallel to the code.
type Builder struct {
	fn   *Function
	line int
}

// NewBuilder creates a builder for a function with the given name and arity.
// An empty name denotes the top-level script.
func NewBuilder(name string, arity int) *Builder {
	return &Builder{
		fn: &Function{
			Name:  name,
			Arity: arity,
			Code:  make([]byte, 0, 64),
			Lines: make([]int, 0, 64),
		},
		line: 1,
	}
}

// Line sets the source line recorded for subsequently emitted bytes.
func (b *Builder) Line(line int) *Builder {
	b.line = line
	return b
}

// Len returns the current code length.
func (b *Builder) Len() int {
	return len(b.fn.Code)
}

func (b *Builder) raw(bytes ...byte) {
	for _, x := range bytes {
		b.fn.Code = append(b.fn.Code, x)
		b.fn.Lines = append(b.fn.Lines, b.line)
	}
}

// AddConstant adds a constant to the pool and returns its index.
// Equal scalar constants share one slot.
func (b *Builder) AddConstant(c Constant) uint16 {
	for i, existing := range b.fn.Constants {
		if existing.same(c) {
			return uint16(i)
		}
	}
	if len(b.fn.Constants) > math.MaxUint16 {
		panic("bytecode: too many constants in one function")
	}
	b.fn.Constants = append(b.fn.Constants, c)
	return uint16(len(b.fn.Constants) - 1)
}

// Emit appends an opcode with no operands and returns its offset.
func (b *Builder) Emit(op Opcode) int {
	offset := b.Len()
	b.raw(byte(op))
	return offset
}

// EmitByte appends an opcode with a single byte operand.
func (b *Builder) EmitByte(op Opcode, operand byte) int {
	offset := b.Len()
	b.raw(byte(op), operand)
	return offset
}

// EmitConstant appends op with a 16-bit constant-pool operand for c.
func (b *Builder) EmitConstant(op Opcode, c Constant) int {
	idx := b.AddConstant(c)
	offset := b.Len()
	b.raw(byte(op), byte(idx>>8), byte(idx))
	return offset
}

// EmitName appends op with a string constant operand (globals, properties,
// classes, methods, modules).
func (b *Builder) EmitName(op Opcode, name string) int {
	return b.EmitConstant(op, String(name))
}

// EmitInvoke appends an INVOKE or SUPER_INVOKE instruction.
func (b *Builder) EmitInvoke(op Opcode, name string, argc byte) int {
	idx := b.AddConstant(String(name))
	offset := b.Len()
	b.raw(byte(op), byte(idx>>8), byte(idx), argc)
	return offset
}

// EmitClosure appends a CLOSURE instruction for fn followed by one
// descriptor per capture. fn.UpvalueCount is set to len(captures).
func (b *Builder) EmitClosure(fn *Function, captures ...Capture) int {
	fn.UpvalueCount = len(captures)
	idx := b.AddConstant(Func(fn))
	offset := b.Len()
	b.raw(byte(OpClosure), byte(idx>>8), byte(idx))
	for _, c := range captures {
		isLocal := byte(0)
		if c.IsLocal {
			isLocal = 1
		}
		b.raw(isLocal, c.Index)
	}
	return offset
}

// ---------------------------------------------------------------------------
// Jumps
// ---------------------------------------------------------------------------

// EmitJump emits a forward jump with a placeholder offset.
// Returns the offset of the placeholder for PatchJump.
func (b *Builder) EmitJump(op Opcode) int {
	b.raw(byte(op), 0xFF, 0xFF)
	return b.Len() - 2
}

// PatchJump points the jump whose placeholder is at the given offset to the
// current end of code.
func (b *Builder) PatchJump(placeholder int) {
	jump := b.Len() - (placeholder + 2)
	if jump > math.MaxUint16 {
		panic("bytecode: too much code to jump over")
	}
	b.fn.Code[placeholder] = byte(jump >> 8)
	b.fn.Code[placeholder+1] = byte(jump)
}

// EmitLoop emits a backward jump to loopStart.
func (b *Builder) EmitLoop(loopStart int) int {
	offset := b.Len()
	jump := offset + 3 - loopStart
	if jump > math.MaxUint16 {
		panic("bytecode: loop body too large")
	}
	b.raw(byte(OpLoop), byte(jump>>8), byte(jump))
	return offset
}

// Build returns the constructed function.
func (b *Builder) Build() *Function {
	return b.fn
}
