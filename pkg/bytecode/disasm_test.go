package bytecode

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDisassemble(t *testing.T) {
	b := NewBuilder("", 0)
	b.EmitConstant(OpConstant, Number(1.5))
	b.Emit(OpNegate)
	b.Line(2)
	jump := b.EmitJump(OpJumpIfFalse)
	b.Emit(OpPop)
	b.Line(3)
	b.EmitName(OpGetGlobal, "x")
	b.PatchJump(jump)
	b.Line(4)
	b.EmitLoop(0)
	b.Emit(OpReturn)

	want := strings.Join([]string{
		"== script ==",
		"0000    1 CONSTANT            0 '1.5'",
		"0003    | NEGATE",
		"0004    2 JUMP_IF_FALSE       4 -> 11",
		"0007    | POP",
		"0008    3 GET_GLOBAL          1 'x'",
		"0011    4 LOOP               11 -> 0",
		"0014    | RETURN",
	}, "\n")
	if diff := cmp.Diff(want, b.Build().Disassemble()); diff != "" {
		t.Errorf("disassembly mismatch (-want +got):\n%s", diff)
	}
}

func TestDisassembleNested(t *testing.T) {
	inner := NewBuilder("inner", 0)
	inner.EmitByte(OpGetUpvalue, 0)
	inner.Emit(OpReturn)

	outer := NewBuilder("", 0)
	outer.Emit(OpNil)
	outer.EmitClosure(inner.Build(), Local(0))
	outer.EmitInvoke(OpInvoke, "add", 2)
	outer.Emit(OpReturn)

	got := outer.Build().Disassemble()
	for _, want := range []string{
		"0001    | CLOSURE             0 '<fn inner>'",
		"0004    |                     local 0",
		"0006    | INVOKE           (2 args)    1 'add'",
		"== inner ==",
		"0000    1 GET_UPVALUE         0",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("disassembly missing %q:\n%s", want, got)
		}
	}
}

func TestDisassembleLongString(t *testing.T) {
	b := NewBuilder("", 0)
	b.EmitConstant(OpConstant, String(strings.Repeat("a", 50)+"\n"))
	line, next := b.Build().DisassembleInstruction(0)
	if next != 3 {
		t.Errorf("next = %d, want 3", next)
	}
	if !strings.HasSuffix(line, "'"+strings.Repeat("a", 37)+"...'") {
		t.Errorf("long string not truncated: %q", line)
	}
}
