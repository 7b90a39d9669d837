// Package bytecode defines the code object exchanged between a front end and
// the fox virtual machine.
//
// A code object is a tree of Function prototypes. Each Function carries:
//
//   - Code: a byte sequence of opcodes with fixed-width operands
//   - Constants: a pool of nil, boolean, number, string and nested function
//     constants referenced by 16-bit big-endian operands
//   - Lines: a table parallel to Code mapping every byte to a source line
//
// # Operand encoding
//
// Local slots, upvalue indices and argument counts are single bytes.
// JUMP and JUMP_IF_FALSE add an unsigned 16-bit offset measured from the byte
// after the operand; LOOP subtracts it. CLOSURE is followed by one
// (isLocal, index) byte pair per upvalue of the referenced function.
//
// # Construction and transport
//
// Builder assembles functions with label patching and line tracking.
// Marshal and Unmarshal move compiled units through canonical CBOR so that
// front ends written in any language can hand code to the engine.
package bytecode
