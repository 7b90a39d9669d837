package vm

import (
	"errors"
)

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// frameSlots is the number of stack slots a single frame can address.
const frameSlots = 256

// callValue calls callee with argc arguments already on the stack above
// it. Closures push a frame; natives run to completion before returning.
func (vm *VM) callValue(callee Value, argc int) error {
	if callee.IsObject() {
		if obj, ok := vm.heap.Get(callee.Ref()); ok {
			f := vm.fiber
			switch o := obj.(type) {
			case *Closure:
				return vm.callClosure(callee.Ref(), o, argc)

			case *NativeFunction:
				return vm.callNative(o, argc)

			case *BoundMethod:
				f.stack[f.sp-argc-1] = o.receiver
				return vm.callMethod(o.method, argc)

			case *Class:
				// The class stays in the callee slot until the instance
				// replaces it, so it survives the allocation.
				inst := vm.newInstance(callee.Ref())
				f.stack[f.sp-argc-1] = inst
				if init, ok := o.methods[vm.initString]; ok {
					return vm.callMethod(init, argc)
				}
				if argc != 0 {
					return vm.runtimeError(ArityMismatch, "Expected 0 arguments but got %d.", argc)
				}
				return nil
			}
		}
	}
	return vm.runtimeError(NotCallable, "Can only call functions and classes.")
}

// callMethod calls a method table entry with the receiver in the callee slot.
func (vm *VM) callMethod(method Value, argc int) error {
	if method.IsObject() {
		obj, _ := vm.heap.Get(method.Ref())
		switch m := obj.(type) {
		case *Closure:
			return vm.callClosure(method.Ref(), m, argc)
		case *NativeFunction:
			return vm.callNative(m, argc)
		}
	}
	return vm.callValue(method, argc)
}

// callClosure pushes a frame for closure on the current fiber.
func (vm *VM) callClosure(ref Ref, closure *Closure, argc int) error {
	return vm.pushFrame(vm.fiber, ref, closure, argc)
}

func (vm *VM) pushFrame(f *Fiber, ref Ref, closure *Closure, argc int) error {
	if argc != closure.function.arity {
		return vm.runtimeError(ArityMismatch, "Expected %d arguments but got %d.", closure.function.arity, argc)
	}
	if len(f.frames) >= vm.config.MaxFrames {
		return vm.runtimeError(StackOverflow, "Stack overflow.")
	}
	// Every local a one-byte operand can name must exist.
	f.ensure(frameSlots)
	f.frames = append(f.frames, CallFrame{
		closure: ref,
		cl:      closure,
		fn:      closure.function,
		base:    f.sp - argc - 1,
	})
	return nil
}

// callNative runs a native to completion. Its arguments and callee slot
// are replaced by the result unless the native switched fibers, in which
// case the switch has already delivered a value where it belongs.
func (vm *VM) callNative(native *NativeFunction, argc int) error {
	if native.arity != Variadic && native.arity != argc {
		return vm.runtimeError(ArityMismatch, "Expected %d arguments but got %d.", native.arity, argc)
	}

	before := vm.fiber
	base := before.sp - argc - 1

	saved := vm.api
	vm.api = apiState{fiber: before, base: base, count: argc + 1}
	result, err := native.fn(vm, before.stack[base:before.sp])
	vm.api = saved

	if err != nil {
		var rerr *RuntimeError
		if errors.As(err, &rerr) {
			if vm.fiber == nil {
				// Already reported and reset by a nested failure.
				return err
			}
			return vm.fail(&RuntimeError{Kind: rerr.Kind, Message: rerr.Message})
		}
		return vm.runtimeError(NativeError, "%s", err.Error())
	}

	for i := base; i < before.sp; i++ {
		before.stack[i] = Nil
	}
	before.sp = base
	if vm.fiber == before {
		before.push(result)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

// invoke looks up name on the receiver argc slots below the top and calls
// it. Instances check fields before methods; classes use their own table;
// modules use their variables; lists, maps, strings and fibers use the
// built-in tables.
func (vm *VM) invoke(name Ref, argc int) error {
	f := vm.fiber
	receiver := f.peek(argc)

	if receiver.IsObject() {
		obj, _ := vm.heap.Get(receiver.Ref())
		switch o := obj.(type) {
		case *Instance:
			if field, ok := o.fields[name]; ok {
				f.stack[f.sp-argc-1] = field
				return vm.callValue(field, argc)
			}
			class, _ := derefRef[*Class](vm.heap, o.class)
			return vm.invokeFromClass(class, name, argc)

		case *Class:
			return vm.invokeFromClass(o, name, argc)

		case *Module:
			v, ok := o.vars[name]
			if !ok {
				return vm.runtimeError(UndefinedProperty, "Undefined property '%s'.", vm.nameOf(name))
			}
			f.stack[f.sp-argc-1] = v
			return vm.callValue(v, argc)

		case *List:
			return vm.invokeBuiltin(vm.listMethods, name, argc)
		case *Map:
			return vm.invokeBuiltin(vm.mapMethods, name, argc)
		case *String:
			return vm.invokeBuiltin(vm.stringMethods, name, argc)
		case *Fiber:
			return vm.invokeBuiltin(vm.fiberMethods, name, argc)
		}
	}
	return vm.runtimeError(TypeMismatch, "Only instances and modules have methods.")
}

// invokeFromClass calls class's method name with the receiver in place.
func (vm *VM) invokeFromClass(class *Class, name Ref, argc int) error {
	method, ok := class.methods[name]
	if !ok {
		return vm.runtimeError(UndefinedProperty, "Undefined property '%s'.", vm.nameOf(name))
	}
	return vm.callMethod(method, argc)
}

func (vm *VM) invokeBuiltin(table map[Ref]Value, name Ref, argc int) error {
	method, ok := table[name]
	if !ok {
		return vm.runtimeError(UndefinedProperty, "Undefined property '%s'.", vm.nameOf(name))
	}
	return vm.callMethod(method, argc)
}

// invokeOperator dispatches a binary operator to an instance method named
// by the operator symbol. The operands are already in receiver/argument
// position. It reports false if the left operand has no such method.
func (vm *VM) invokeOperator(op string) (bool, error) {
	f := vm.fiber
	inst, ok := deref[*Instance](vm.heap, f.peek(1))
	if !ok {
		return false, nil
	}
	r, ok := vm.strings[op]
	if !ok {
		return false, nil
	}
	class, _ := derefRef[*Class](vm.heap, inst.class)
	method, ok := class.methods[r]
	if !ok {
		return false, nil
	}
	return true, vm.callMethod(method, 1)
}
