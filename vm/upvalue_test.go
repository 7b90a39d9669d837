package vm

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/fox/pkg/bytecode"
)

func TestClosureOutlivesFrame(t *testing.T) {
	vm, _ := newTestVM(t)

	// fun makeCounter() { var count = 0; fun counter() { count = count + 1; return count } return counter }
	counter := bytecode.NewBuilder("counter", 0)
	counter.EmitByte(bytecode.OpGetUpvalue, 0)
	counter.EmitConstant(bytecode.OpConstant, bytecode.Number(1))
	counter.Emit(bytecode.OpAdd)
	counter.EmitByte(bytecode.OpSetUpvalue, 0)
	counter.Emit(bytecode.OpReturn)

	maker := bytecode.NewBuilder("makeCounter", 0)
	maker.EmitConstant(bytecode.OpConstant, bytecode.Number(0))
	maker.EmitClosure(counter.Build(), bytecode.Local(1))
	maker.Emit(bytecode.OpReturn)

	// var c = makeCounter(); c(); return c()
	b := script()
	b.EmitClosure(maker.Build())
	b.EmitByte(bytecode.OpCall, 0)
	b.EmitName(bytecode.OpDefineGlobal, "c")
	b.EmitName(bytecode.OpGetGlobal, "c")
	b.EmitByte(bytecode.OpCall, 0)
	b.Emit(bytecode.OpPop)
	b.EmitName(bytecode.OpGetGlobal, "c")
	b.EmitByte(bytecode.OpCall, 0)
	b.Emit(bytecode.OpReturn)

	wantNumber(t, mustInterpret(t, vm, b.Build()), 2)
}

func TestClosuresShareCapturedVariable(t *testing.T) {
	vm, _ := newTestVM(t)

	getter := bytecode.NewBuilder("get", 0)
	getter.EmitByte(bytecode.OpGetUpvalue, 0)
	getter.Emit(bytecode.OpReturn)

	setter := bytecode.NewBuilder("set", 1)
	setter.EmitByte(bytecode.OpGetLocal, 1)
	setter.EmitByte(bytecode.OpSetUpvalue, 0)
	setter.Emit(bytecode.OpReturn)

	// var x = 10; var get = ..; var set = ..; set(5); return get() + x
	b := script()
	b.EmitConstant(bytecode.OpConstant, bytecode.Number(10)) // slot 1
	b.EmitClosure(getter.Build(), bytecode.Local(1))          // slot 2
	b.EmitClosure(setter.Build(), bytecode.Local(1))          // slot 3
	b.EmitByte(bytecode.OpGetLocal, 3)
	b.EmitConstant(bytecode.OpConstant, bytecode.Number(5))
	b.EmitByte(bytecode.OpCall, 1)
	b.Emit(bytecode.OpPop)
	b.EmitByte(bytecode.OpGetLocal, 2)
	b.EmitByte(bytecode.OpCall, 0)
	b.EmitByte(bytecode.OpGetLocal, 1)
	b.Emit(bytecode.OpAdd)
	b.Emit(bytecode.OpReturn)

	// Both closures and the local itself see the write.
	wantNumber(t, mustInterpret(t, vm, b.Build()), 10)
}

func TestCloseUpvalueDetachesFromSlot(t *testing.T) {
	vm, _ := newTestVM(t)

	getter := bytecode.NewBuilder("get", 0)
	getter.EmitByte(bytecode.OpGetUpvalue, 0)
	getter.Emit(bytecode.OpReturn)

	// { var x = 1; g = fun() { return x } } var y = 99; return g()
	b := script()
	b.EmitConstant(bytecode.OpConstant, bytecode.Number(1)) // slot 1
	b.EmitClosure(getter.Build(), bytecode.Local(1))
	b.EmitName(bytecode.OpDefineGlobal, "g")
	b.Emit(bytecode.OpCloseUpvalue)
	b.EmitConstant(bytecode.OpConstant, bytecode.Number(99)) // reuses slot 1
	b.EmitName(bytecode.OpGetGlobal, "g")
	b.EmitByte(bytecode.OpCall, 0)
	b.Emit(bytecode.OpReturn)

	wantNumber(t, mustInterpret(t, vm, b.Build()), 1)
}

func TestNestedClosureCapturesEnclosingUpvalue(t *testing.T) {
	vm, _ := newTestVM(t)

	// fun outer() { var x = 3; fun mid() { fun inner() { return x } return inner } return mid }
	inner := bytecode.NewBuilder("inner", 0)
	inner.EmitByte(bytecode.OpGetUpvalue, 0)
	inner.Emit(bytecode.OpReturn)

	mid := bytecode.NewBuilder("mid", 0)
	mid.EmitClosure(inner.Build(), bytecode.Enclosing(0))
	mid.Emit(bytecode.OpReturn)

	outer := bytecode.NewBuilder("outer", 0)
	outer.EmitConstant(bytecode.OpConstant, bytecode.Number(3))
	outer.EmitClosure(mid.Build(), bytecode.Local(1))
	outer.Emit(bytecode.OpReturn)

	// return outer()()()
	b := script()
	b.EmitClosure(outer.Build())
	b.EmitByte(bytecode.OpCall, 0)
	b.EmitByte(bytecode.OpCall, 0)
	b.EmitByte(bytecode.OpCall, 0)
	b.Emit(bytecode.OpReturn)

	wantNumber(t, mustInterpret(t, vm, b.Build()), 3)
}

func TestOpenUpvaluesSortedAndShared(t *testing.T) {
	vm := New()
	f := vm.newFiber(Nil)
	remove := vm.AddRootProvider(RootFunc(func(m *Marker) { m.MarkRef(f.ref) }))
	defer remove()

	for i := 0; i < 5; i++ {
		f.push(FromFloat64(float64(i * 10)))
	}

	first := vm.captureUpvalue(f, 3)
	vm.captureUpvalue(f, 1)
	vm.captureUpvalue(f, 4)
	vm.captureUpvalue(f, 2)
	if again := vm.captureUpvalue(f, 3); again != first {
		t.Errorf("second capture of slot 3 returned %v, want %v", again, first)
	}
	if diff := cmp.Diff([]int{4, 3, 2, 1}, f.OpenUpvalues()); diff != "" {
		t.Errorf("open upvalues mismatch (-want +got):\n%s", diff)
	}

	f.stack[3] = FromFloat64(33)
	f.closeUpvalues(2)
	if diff := cmp.Diff([]int{1}, f.OpenUpvalues()); diff != "" {
		t.Errorf("after close (-want +got):\n%s", diff)
	}

	uv, ok := derefRef[*Upvalue](vm.heap, first)
	if !ok {
		t.Fatal("upvalue was freed")
	}
	if uv.IsOpen() {
		t.Error("slot 3 upvalue still open")
	}
	f.stack[3] = FromFloat64(-1)
	wantNumber(t, uv.get(), 33)
}

func TestOpenUpvalueKeepsFiberAlive(t *testing.T) {
	vm := New()
	f := vm.newFiber(Nil)
	f.push(FromFloat64(7))
	uvRef := vm.captureUpvalue(f, 0)
	h := vm.MakeHandle(FromRef(uvRef))
	defer vm.ReleaseHandle(h)

	vm.Collect()
	if !vm.heap.Valid(f.ref) {
		t.Fatal("fiber aliased by an open upvalue was collected")
	}
	uv, _ := derefRef[*Upvalue](vm.heap, uvRef)
	wantNumber(t, uv.get(), 7)
}
