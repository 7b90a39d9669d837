package bytecode

import "fmt"

// Opcode represents a single bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack and constants (0x00-0x0F)
	// ========================================================================

	OpConstant Opcode = 0x00 // Push constant: OpConstant <index:u16>
	OpNil      Opcode = 0x01 // Push nil
	OpTrue     Opcode = 0x02 // Push true
	OpFalse    Opcode = 0x03 // Push false
	OpPop      Opcode = 0x04 // Discard top of stack

	// ========================================================================
	// Variables (0x10-0x1F)
	// ========================================================================

	OpGetLocal     Opcode = 0x10 // Push local: OpGetLocal <slot:u8>
	OpSetLocal     Opcode = 0x11 // Store top into local (no pop): OpSetLocal <slot:u8>
	OpGetGlobal    Opcode = 0x12 // Push module variable: OpGetGlobal <name:u16>
	OpDefineGlobal Opcode = 0x13 // Pop into a new module variable: OpDefineGlobal <name:u16>
	OpSetGlobal    Opcode = 0x14 // Store top into an existing module variable: OpSetGlobal <name:u16>
	OpGetUpvalue   Opcode = 0x15 // Push upvalue: OpGetUpvalue <index:u8>
	OpSetUpvalue   Opcode = 0x16 // Store top into upvalue: OpSetUpvalue <index:u8>

	// ========================================================================
	// Properties (0x20-0x2F)
	// ========================================================================

	OpGetProperty Opcode = 0x20 // Replace receiver with field or bound method: <name:u16>
	OpSetProperty Opcode = 0x21 // receiver value -> value: <name:u16>
	OpGetSuper    Opcode = 0x22 // receiver superclass -> bound method: <name:u16>

	// ========================================================================
	// Arithmetic, comparison and logic (0x30-0x3F)
	// ========================================================================

	OpEqual    Opcode = 0x30
	OpGreater  Opcode = 0x31
	OpLess     Opcode = 0x32
	OpAdd      Opcode = 0x33
	OpSubtract Opcode = 0x34
	OpMultiply Opcode = 0x35
	OpDivide   Opcode = 0x36
	OpNot      Opcode = 0x37
	OpNegate   Opcode = 0x38
	OpIs       Opcode = 0x39 // value class -> bool

	// ========================================================================
	// Control flow (0x40-0x4F)
	// ========================================================================

	OpJump        Opcode = 0x40 // Forward jump: OpJump <offset:u16>
	OpJumpIfFalse Opcode = 0x41 // Forward jump if top is falsey (peek): <offset:u16>
	OpLoop        Opcode = 0x42 // Backward jump: OpLoop <offset:u16>

	// ========================================================================
	// Calls and closures (0x50-0x5F)
	// ========================================================================

	OpCall         Opcode = 0x50 // OpCall <argc:u8>
	OpInvoke       Opcode = 0x51 // OpInvoke <name:u16> <argc:u8>
	OpSuperInvoke  Opcode = 0x52 // OpSuperInvoke <name:u16> <argc:u8>
	OpClosure      Opcode = 0x53 // OpClosure <fn:u16> then (isLocal:u8 index:u8) per upvalue
	OpCloseUpvalue Opcode = 0x54 // Close upvalues at top slot and pop it
	OpReturn       Opcode = 0x55 // Return top of stack

	// ========================================================================
	// Classes (0x60-0x6F)
	// ========================================================================

	OpClass    Opcode = 0x60 // Push new class: OpClass <name:u16>
	OpInherit  Opcode = 0x61 // superclass subclass -> superclass
	OpMethod   Opcode = 0x62 // class closure -> class: OpMethod <name:u16>
	OpOperator Opcode = 0x63 // class closure -> class: OpOperator <symbol:u16>

	// ========================================================================
	// Collections (0x70-0x7F)
	// ========================================================================

	OpList            Opcode = 0x70 // Build list from top N values: OpList <count:u8>
	OpMap             Opcode = 0x71 // Build map from top 2N values: OpMap <count:u8>
	OpSubscript       Opcode = 0x72 // container index -> element
	OpSubscriptAssign Opcode = 0x73 // container index value -> value
	OpSlice           Opcode = 0x74 // container from to -> slice

	// ========================================================================
	// Modules and output (0x80-0x8F)
	// ========================================================================

	OpImport    Opcode = 0x80 // Push registered module: OpImport <name:u16>
	OpEndModule Opcode = 0x81 // Record current module, push nil
	OpPrint     Opcode = 0x82 // Pop and print
	OpPrintRepl Opcode = 0x83 // Pop and print unless nil
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of fixed operand bytes (-1 = variable)
	StackEffect  int    // net effect on stack (0 for variable effects)
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpConstant: {"CONSTANT", 2, 1},
	OpNil:      {"NIL", 0, 1},
	OpTrue:     {"TRUE", 0, 1},
	OpFalse:    {"FALSE", 0, 1},
	OpPop:      {"POP", 0, -1},

	OpGetLocal:     {"GET_LOCAL", 1, 1},
	OpSetLocal:     {"SET_LOCAL", 1, 0},
	OpGetGlobal:    {"GET_GLOBAL", 2, 1},
	OpDefineGlobal: {"DEFINE_GLOBAL", 2, -1},
	OpSetGlobal:    {"SET_GLOBAL", 2, 0},
	OpGetUpvalue:   {"GET_UPVALUE", 1, 1},
	OpSetUpvalue:   {"SET_UPVALUE", 1, 0},

	OpGetProperty: {"GET_PROPERTY", 2, 0},
	OpSetProperty: {"SET_PROPERTY", 2, -1},
	OpGetSuper:    {"GET_SUPER", 2, -1},

	OpEqual:    {"EQUAL", 0, -1},
	OpGreater:  {"GREATER", 0, -1},
	OpLess:     {"LESS", 0, -1},
	OpAdd:      {"ADD", 0, -1},
	OpSubtract: {"SUBTRACT", 0, -1},
	OpMultiply: {"MULTIPLY", 0, -1},
	OpDivide:   {"DIVIDE", 0, -1},
	OpNot:      {"NOT", 0, 0},
	OpNegate:   {"NEGATE", 0, 0},
	OpIs:       {"IS", 0, -1},

	OpJump:        {"JUMP", 2, 0},
	OpJumpIfFalse: {"JUMP_IF_FALSE", 2, 0},
	OpLoop:        {"LOOP", 2, 0},

	OpCall:         {"CALL", 1, 0},
	OpInvoke:       {"INVOKE", 3, 0},
	OpSuperInvoke:  {"SUPER_INVOKE", 3, 0},
	OpClosure:      {"CLOSURE", -1, 1},
	OpCloseUpvalue: {"CLOSE_UPVALUE", 0, -1},
	OpReturn:       {"RETURN", 0, -1},

	OpClass:    {"CLASS", 2, 1},
	OpInherit:  {"INHERIT", 0, -1},
	OpMethod:   {"METHOD", 2, -1},
	OpOperator: {"OPERATOR", 2, -1},

	OpList:            {"LIST", 1, 0},
	OpMap:             {"MAP", 1, 0},
	OpSubscript:       {"SUBSCRIPT", 0, -1},
	OpSubscriptAssign: {"SUBSCRIPT_ASSIGN", 0, -2},
	OpSlice:           {"SLICE", 0, -2},

	OpImport:    {"IMPORT", 2, 1},
	OpEndModule: {"END_MODULE", 0, 1},
	OpPrint:     {"PRINT", 0, -1},
	OpPrintRepl: {"PRINT_REPL", 0, -1},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Info().Name
}
