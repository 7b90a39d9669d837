package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// Disassemble returns a human-readable listing of the function and, after it,
// every nested function reachable through its constant pool.
func (f *Function) Disassemble() string {
	var sb strings.Builder
	f.disassembleInto(&sb)
	return strings.TrimRight(sb.String(), "\n")
}

func (f *Function) disassembleInto(sb *strings.Builder) {
	fmt.Fprintf(sb, "== %s ==\n", f.DisplayName())
	for offset := 0; offset < len(f.Code); {
		var line string
		line, offset = f.DisassembleInstruction(offset)
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	for _, c := range f.Constants {
		if c.Kind == ConstFunction && c.Function != nil {
			sb.WriteByte('\n')
			c.Function.disassembleInto(sb)
		}
	}
}

// DisassembleInstruction renders the instruction at offset and returns the
// offset of the next instruction.
func (f *Function) DisassembleInstruction(offset int) (string, int) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d ", offset)
	if offset > 0 && f.LineAt(offset) == f.LineAt(offset-1) {
		sb.WriteString("   | ")
	} else {
		fmt.Fprintf(&sb, "%4d ", f.LineAt(offset))
	}

	op := Opcode(f.Code[offset])
	name := op.String()

	short := func(at int) int {
		if at+1 >= len(f.Code) {
			return 0
		}
		return int(f.Code[at])<<8 | int(f.Code[at+1])
	}
	byteAt := func(at int) int {
		if at >= len(f.Code) {
			return 0
		}
		return int(f.Code[at])
	}

	switch op {
	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal, OpGetProperty, OpSetProperty,
		OpGetSuper, OpClass, OpMethod, OpOperator, OpImport:
		idx := short(offset + 1)
		fmt.Fprintf(&sb, "%-16s %4d '%s'", name, idx, f.constantText(idx))
		return sb.String(), offset + 3

	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall, OpList, OpMap:
		fmt.Fprintf(&sb, "%-16s %4d", name, byteAt(offset+1))
		return sb.String(), offset + 2

	case OpInvoke, OpSuperInvoke:
		idx := short(offset + 1)
		fmt.Fprintf(&sb, "%-16s (%d args) %4d '%s'", name, byteAt(offset+3), idx, f.constantText(idx))
		return sb.String(), offset + 4

	case OpJump, OpJumpIfFalse:
		fmt.Fprintf(&sb, "%-16s %4d -> %d", name, offset, offset+3+short(offset+1))
		return sb.String(), offset + 3

	case OpLoop:
		fmt.Fprintf(&sb, "%-16s %4d -> %d", name, offset, offset+3-short(offset+1))
		return sb.String(), offset + 3

	case OpClosure:
		idx := short(offset + 1)
		fmt.Fprintf(&sb, "%-16s %4d '%s'", name, idx, f.constantText(idx))
		next := offset + 3
		if idx < len(f.Constants) && f.Constants[idx].Function != nil {
			for i := 0; i < f.Constants[idx].Function.UpvalueCount; i++ {
				kind := "upvalue"
				if byteAt(next) == 1 {
					kind = "local"
				}
				fmt.Fprintf(&sb, "\n%04d    |                     %s %d", next, kind, byteAt(next+1))
				next += 2
			}
		}
		return sb.String(), next

	default:
		sb.WriteString(name)
		width := op.Info().OperandBytes
		if width < 0 {
			width = 0
		}
		return sb.String(), offset + 1 + width
	}
}

func (f *Function) constantText(idx int) string {
	if idx >= len(f.Constants) {
		return "?"
	}
	c := f.Constants[idx]
	switch c.Kind {
	case ConstNil:
		return "nil"
	case ConstBool:
		return strconv.FormatBool(c.Bool)
	case ConstNumber:
		return strconv.FormatFloat(c.Number, 'g', -1, 64)
	case ConstString:
		s := c.String
		if len(s) > 40 {
			s = s[:37] + "..."
		}
		return strings.ReplaceAll(s, "\n", "\\n")
	case ConstFunction:
		if c.Function == nil {
			return "<fn ?>"
		}
		return "<fn " + c.Function.DisplayName() + ">"
	default:
		return "?"
	}
}
