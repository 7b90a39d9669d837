package vm

import (
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Core bootstrap
// ---------------------------------------------------------------------------

// bootstrapCore installs the built-in globals and method tables.
func (vm *VM) bootstrapCore() {
	vm.DefineFunction(CoreModule, "clock", 0, nativeClock)

	fiberClass := vm.DefineClass(CoreModule, "Fiber", map[string]NativeMethod{
		"new":   {Arity: 1, Fn: nativeFiberNew},
		"yield": {Arity: Variadic, Fn: nativeFiberYield},
	})
	vm.fiberClass = fiberClass.Ref()

	vm.defineNativeMethod(vm.fiberMethods, "call", Variadic, nativeFiberCall)
	vm.defineNativeMethod(vm.fiberMethods, "isDone", 0, nativeFiberIsDone)

	vm.defineNativeMethod(vm.listMethods, "count", 0, nativeListCount)
	vm.defineNativeMethod(vm.listMethods, "add", 1, nativeListAdd)
	vm.defineNativeMethod(vm.listMethods, "insert", 2, nativeListInsert)
	vm.defineNativeMethod(vm.listMethods, "removeAt", 1, nativeListRemoveAt)
	vm.defineNativeMethod(vm.listMethods, "clear", 0, nativeListClear)

	vm.defineNativeMethod(vm.mapMethods, "count", 0, nativeMapCount)
	vm.defineNativeMethod(vm.mapMethods, "containsKey", 1, nativeMapContainsKey)
	vm.defineNativeMethod(vm.mapMethods, "remove", 1, nativeMapRemove)
	vm.defineNativeMethod(vm.mapMethods, "keys", 0, nativeMapKeys)

	vm.defineNativeMethod(vm.stringMethods, "count", 0, nativeStringCount)
	vm.defineNativeMethod(vm.stringMethods, "contains", 1, nativeStringContains)
}

func nativeClock(vm *VM, args []Value) (Value, error) {
	return FromFloat64(time.Since(vm.start).Seconds()), nil
}

// ---------------------------------------------------------------------------
// Fibers
// ---------------------------------------------------------------------------

func nativeFiberNew(vm *VM, args []Value) (Value, error) {
	closure, ok := deref[*Closure](vm.heap, args[1])
	if !ok {
		return Nil, Errorf(TypeMismatch, "Fiber body must be a function.")
	}
	if closure.function.arity > 1 {
		return Nil, Errorf(ArityMismatch, "Fiber body takes at most 1 argument.")
	}
	// args[1] stays on the stack while the fiber is allocated.
	f := vm.newFiber(args[1])
	return FromRef(f.ref), nil
}

func nativeFiberCall(vm *VM, args []Value) (Value, error) {
	if len(args) > 2 {
		return Nil, Errorf(ArityMismatch, "Expected at most 1 argument but got %d.", len(args)-1)
	}
	target, _ := deref[*Fiber](vm.heap, args[0])
	value := Nil
	if len(args) == 2 {
		value = args[1]
	}

	current := vm.fiber
	switch {
	case target.state == FiberDone:
		return Nil, Errorf(FiberError, "Cannot call a finished fiber.")
	case target.state == FiberRunning || target == current:
		return Nil, Errorf(FiberError, "Fiber has already been called.")
	}

	if target.state == FiberNew {
		closure, _ := deref[*Closure](vm.heap, target.entry)
		target.push(target.entry)
		argc := 0
		if closure.function.arity == 1 {
			target.push(value)
			argc = 1
		}
		if err := vm.pushFrame(target, target.entry.Ref(), closure, argc); err != nil {
			return Nil, err
		}
	} else {
		// Resumes a suspended fiber: value becomes the result of its yield.
		target.push(value)
	}

	target.caller = current
	target.state = FiberRunning
	vm.fiber = target
	return Nil, nil
}

func nativeFiberYield(vm *VM, args []Value) (Value, error) {
	if len(args) > 2 {
		return Nil, Errorf(ArityMismatch, "Expected at most 1 argument but got %d.", len(args)-1)
	}
	current := vm.fiber
	caller := current.caller
	if caller == nil {
		return Nil, Errorf(FiberError, "Cannot yield from the root fiber.")
	}
	value := Nil
	if len(args) == 2 {
		value = args[1]
	}

	current.caller = nil
	current.state = FiberSuspended
	vm.fiber = caller
	caller.push(value)
	return Nil, nil
}

func nativeFiberIsDone(vm *VM, args []Value) (Value, error) {
	f, _ := deref[*Fiber](vm.heap, args[0])
	return FromBool(f.state == FiberDone), nil
}

// ---------------------------------------------------------------------------
// Lists
// ---------------------------------------------------------------------------

func nativeListCount(vm *VM, args []Value) (Value, error) {
	l, _ := deref[*List](vm.heap, args[0])
	return FromFloat64(float64(len(l.items))), nil
}

func nativeListAdd(vm *VM, args []Value) (Value, error) {
	l, _ := deref[*List](vm.heap, args[0])
	l.items = append(l.items, args[1])
	vm.heap.grow(args[0].Ref(), valueSize)
	return args[1], nil
}

func nativeListInsert(vm *VM, args []Value) (Value, error) {
	l, _ := deref[*List](vm.heap, args[0])
	n := len(l.items)
	if !args[1].IsNumber() {
		return Nil, Errorf(TypeMismatch, "List index must be a number.")
	}
	i := int(args[1].Float64())
	if i < 0 {
		i += n + 1
	}
	if i < 0 || i > n {
		return Nil, Errorf(IndexOutOfRange, "List index out of bounds.")
	}
	l.items = append(l.items, Nil)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = args[2]
	vm.heap.grow(args[0].Ref(), valueSize)
	return args[2], nil
}

func nativeListRemoveAt(vm *VM, args []Value) (Value, error) {
	l, _ := deref[*List](vm.heap, args[0])
	if !args[1].IsNumber() {
		return Nil, Errorf(TypeMismatch, "List index must be a number.")
	}
	i := int(args[1].Float64())
	if i < 0 {
		i += len(l.items)
	}
	if i < 0 || i >= len(l.items) {
		return Nil, Errorf(IndexOutOfRange, "List index out of bounds.")
	}
	removed := l.items[i]
	l.items = append(l.items[:i], l.items[i+1:]...)
	vm.heap.grow(args[0].Ref(), -valueSize)
	return removed, nil
}

func nativeListClear(vm *VM, args []Value) (Value, error) {
	l, _ := deref[*List](vm.heap, args[0])
	vm.heap.grow(args[0].Ref(), -len(l.items)*valueSize)
	l.items = nil
	return Nil, nil
}

// ---------------------------------------------------------------------------
// Maps
// ---------------------------------------------------------------------------

func nativeMapCount(vm *VM, args []Value) (Value, error) {
	m, _ := deref[*Map](vm.heap, args[0])
	return FromFloat64(float64(len(m.keys))), nil
}

func nativeMapContainsKey(vm *VM, args []Value) (Value, error) {
	m, _ := deref[*Map](vm.heap, args[0])
	_, ok := m.get(args[1])
	return FromBool(ok), nil
}

func nativeMapRemove(vm *VM, args []Value) (Value, error) {
	m, _ := deref[*Map](vm.heap, args[0])
	v, ok := m.remove(args[1])
	if ok {
		vm.heap.grow(args[0].Ref(), -2*valueSize)
	}
	return v, nil
}

func nativeMapKeys(vm *VM, args []Value) (Value, error) {
	m, _ := deref[*Map](vm.heap, args[0])
	keys := make([]Value, len(m.keys))
	copy(keys, m.keys)
	return FromRef(vm.alloc(&List{items: keys})), nil
}

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

func nativeStringCount(vm *VM, args []Value) (Value, error) {
	s, _ := deref[*String](vm.heap, args[0])
	return FromFloat64(float64(len(s.chars))), nil
}

func nativeStringContains(vm *VM, args []Value) (Value, error) {
	s, _ := deref[*String](vm.heap, args[0])
	sub, ok := vm.stringOf(args[1])
	if !ok {
		return Nil, Errorf(TypeMismatch, "Argument must be a string.")
	}
	return FromBool(strings.Contains(s.chars, sub)), nil
}
