package vm

import (
	"errors"
	"testing"

	"github.com/chazu/fox/pkg/bytecode"
)

// utilModule defines answer = 42 and double(n) = n * 2, then ends the module.
func utilModule() *bytecode.Function {
	double := bytecode.NewBuilder("double", 1)
	double.EmitByte(bytecode.OpGetLocal, 1)
	double.EmitConstant(bytecode.OpConstant, bytecode.Number(2))
	double.Emit(bytecode.OpMultiply)
	double.Emit(bytecode.OpReturn)

	b := script()
	b.EmitConstant(bytecode.OpConstant, bytecode.Number(42))
	b.EmitName(bytecode.OpDefineGlobal, "answer")
	b.EmitClosure(double.Build())
	b.EmitName(bytecode.OpDefineGlobal, "double")
	b.Emit(bytecode.OpEndModule)
	b.Emit(bytecode.OpReturn)
	return b.Build()
}

func TestImportModule(t *testing.T) {
	vm, out := newTestVM(t)
	if _, err := vm.Interpret("util", utilModule()); err != nil {
		t.Fatalf("util: %v", err)
	}
	if vm.LastModule() != "util" {
		t.Errorf("LastModule = %q, want util", vm.LastModule())
	}

	// import util; print util.answer; print util.double(4); print util
	b := script()
	b.EmitName(bytecode.OpImport, "util")
	b.EmitName(bytecode.OpGetProperty, "answer")
	b.Emit(bytecode.OpPrint)
	b.EmitName(bytecode.OpImport, "util")
	b.EmitConstant(bytecode.OpConstant, bytecode.Number(4))
	b.EmitInvoke(bytecode.OpInvoke, "double", 1)
	b.Emit(bytecode.OpPrint)
	b.EmitName(bytecode.OpImport, "util")
	b.Emit(bytecode.OpPrint)
	b.Emit(bytecode.OpNil)
	b.Emit(bytecode.OpReturn)
	mustInterpret(t, vm, b.Build())

	if want := "42\n8\n<module util>\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestModulesHaveSeparateGlobals(t *testing.T) {
	vm, _ := newTestVM(t)
	if _, err := vm.Interpret("util", utilModule()); err != nil {
		t.Fatalf("util: %v", err)
	}

	b := script()
	b.EmitName(bytecode.OpGetGlobal, "answer")
	b.Emit(bytecode.OpReturn)
	rerr := interpretError(t, vm, b.Build())
	if rerr.Kind != UndefinedVariable {
		t.Errorf("kind = %v, want %v", rerr.Kind, UndefinedVariable)
	}

	// Module functions are callable from other modules.
	b = script()
	b.EmitName(bytecode.OpImport, "util")
	b.EmitName(bytecode.OpGetProperty, "double")
	b.EmitConstant(bytecode.OpConstant, bytecode.Number(5))
	b.EmitByte(bytecode.OpCall, 1)
	b.Emit(bytecode.OpReturn)
	wantNumber(t, mustInterpret(t, vm, b.Build()), 10)
}

func TestModuleErrors(t *testing.T) {
	vm, _ := newTestVM(t)
	if _, err := vm.Interpret("util", utilModule()); err != nil {
		t.Fatalf("util: %v", err)
	}

	b := script()
	b.EmitName(bytecode.OpImport, "nope")
	b.Emit(bytecode.OpReturn)
	rerr := interpretError(t, vm, b.Build())
	if rerr.Kind != ModuleNotFound || rerr.Message != "Module 'nope' not found." {
		t.Errorf("import: kind %v, message %q", rerr.Kind, rerr.Message)
	}

	b = script()
	b.EmitName(bytecode.OpImport, "util")
	b.EmitName(bytecode.OpGetProperty, "missing")
	b.Emit(bytecode.OpReturn)
	rerr = interpretError(t, vm, b.Build())
	if rerr.Kind != UndefinedProperty || rerr.Message != "Undefined property 'missing'." {
		t.Errorf("property: kind %v, message %q", rerr.Kind, rerr.Message)
	}
}

func TestDefineModuleFromHost(t *testing.T) {
	vm, _ := newTestVM(t)
	vm.DefineModule("host")
	vm.DefineVariable("host", "pi", FromFloat64(3.5))

	b := script()
	b.EmitName(bytecode.OpImport, "host")
	b.EmitName(bytecode.OpGetProperty, "pi")
	b.Emit(bytecode.OpReturn)
	wantNumber(t, mustInterpret(t, vm, b.Build()), 3.5)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

func TestLoadRejectsBadCode(t *testing.T) {
	captures := bytecode.NewBuilder("", 0)
	captures.Emit(bytecode.OpNil)
	captures.Emit(bytecode.OpReturn)
	withUpvalues := captures.Build()
	withUpvalues.UpvalueCount = 1

	jumpPastEnd := bytecode.NewBuilder("", 0)
	jumpPastEnd.EmitJump(bytecode.OpJump)
	jumpPastEnd.Emit(bytecode.OpReturn)

	noReturn := bytecode.NewBuilder("", 0)
	noReturn.Emit(bytecode.OpNil)

	badUpvalue := bytecode.NewBuilder("", 0)
	badUpvalue.EmitByte(bytecode.OpGetUpvalue, 3)
	badUpvalue.Emit(bytecode.OpReturn)

	nilConstant := bytecode.NewBuilder("", 0)
	nilConstant.AddConstant(bytecode.Constant{Kind: bytecode.ConstFunction})
	nilConstant.Emit(bytecode.OpNil)
	nilConstant.Emit(bytecode.OpReturn)

	tests := []struct {
		name string
		fn   *bytecode.Function
	}{
		{"nil", nil},
		{"unknown opcode", &bytecode.Function{Code: []byte{0xFF}, Lines: []int{1}}},
		{"bad constant", &bytecode.Function{Code: []byte{byte(bytecode.OpConstant), 0, 9}, Lines: []int{1, 1, 1}}},
		{"top-level upvalues", withUpvalues},
		{"jump past end", jumpPastEnd.Build()},
		{"no return", noReturn.Build()},
		{"bad upvalue", badUpvalue.Build()},
		{"nil function constant", nilConstant.Build()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, _ := newTestVM(t)
			_, err := vm.Interpret("broken", tt.fn)
			if !errors.Is(err, ErrCompile) {
				t.Fatalf("error = %v, want a compile error", err)
			}
			var cerr *CompileError
			if !errors.As(err, &cerr) || cerr.Module != "broken" {
				t.Errorf("error = %#v", err)
			}
		})
	}
}

func TestLoadDoesNotRun(t *testing.T) {
	vm, out := newTestVM(t)

	b := script()
	b.EmitConstant(bytecode.OpConstant, bytecode.String("ran"))
	b.Emit(bytecode.OpPrint)
	b.EmitConstant(bytecode.OpConstant, bytecode.Number(5))
	b.Emit(bytecode.OpReturn)

	h, err := vm.Load("", b.Build())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer vm.ReleaseHandle(h)
	if out.Len() != 0 {
		t.Fatalf("Load executed code: %q", out.String())
	}
	if !vm.HasModule(MainModule) {
		t.Error("Load did not register the main module")
	}

	vm.EnsureSlots(1)
	if err := vm.Call(h); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.String() != "ran\n" {
		t.Errorf("output = %q", out.String())
	}
	if got, _ := vm.GetSlotDouble(0); got != 5 {
		t.Errorf("slot 0 = %v, want 5", got)
	}
}

func TestLoadedFunctionsSurviveCollection(t *testing.T) {
	vm, _ := newTestVM(t, WithGCStress(true))
	if v := mustInterpret(t, vm, utilModule()); v != Nil {
		t.Errorf("module body returned %s, want nil", vm.Format(v))
	}
	double, ok := vm.GetVariable(MainModule, "double")
	if !ok {
		t.Fatal("double not defined")
	}
	vm.Collect()
	if vm.TypeName(double) != "closure" {
		t.Errorf("double is %s after collection", vm.TypeName(double))
	}
	if vm.Format(double) != "<fn double>" {
		t.Errorf("Format = %q", vm.Format(double))
	}
}
