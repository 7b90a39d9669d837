package vm

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

// newClass allocates an empty class named name.
func (vm *VM) newClass(name string) Value {
	nameRef := vm.intern(name)
	mark := vm.pin(FromRef(nameRef))
	ref := vm.alloc(&Class{name: nameRef, methods: make(map[Ref]Value)})
	vm.unpin(mark)
	return FromRef(ref)
}

// inherit copies every method of super into sub. Methods defined on sub
// afterwards override the copies; later changes to super are not seen.
func inherit(sub *Class, superRef Ref, super *Class) {
	for name, method := range super.methods {
		sub.methods[name] = method
	}
	sub.super = superRef
}

// isSubclass reports whether class is target or descends from it.
func (vm *VM) isSubclass(class Ref, target Ref) bool {
	for !class.IsZero() {
		if class == target {
			return true
		}
		c, ok := derefRef[*Class](vm.heap, class)
		if !ok {
			return false
		}
		class = c.super
	}
	return false
}

// ClassName returns the name of a class value, or "" if v is not a class.
func (vm *VM) ClassName(v Value) string {
	c, ok := deref[*Class](vm.heap, v)
	if !ok {
		return ""
	}
	return vm.nameOf(c.name)
}

// Method returns the method named name in class v's table.
func (vm *VM) Method(class Value, name string) (Value, bool) {
	c, ok := deref[*Class](vm.heap, class)
	if !ok {
		return Nil, false
	}
	r, ok := vm.strings[name]
	if !ok {
		return Nil, false
	}
	m, ok := c.methods[r]
	return m, ok
}

// ---------------------------------------------------------------------------
// Instances and bound methods
// ---------------------------------------------------------------------------

// newInstance allocates an instance of a rooted class.
func (vm *VM) newInstance(class Ref) Value {
	return FromRef(vm.alloc(&Instance{class: class, fields: make(map[Ref]Value)}))
}

// bindMethod replaces the receiver on top of the stack with a bound method
// for name looked up in class.
func (vm *VM) bindMethod(class *Class, name Ref) error {
	method, ok := class.methods[name]
	if !ok {
		return vm.runtimeError(UndefinedProperty, "Undefined property '%s'.", vm.nameOf(name))
	}
	f := vm.fiber
	bound := vm.alloc(&BoundMethod{receiver: f.peek(0), method: method})
	f.pop()
	f.push(FromRef(bound))
	return nil
}

// Field returns a field of an instance value.
func (vm *VM) Field(instance Value, name string) (Value, bool) {
	inst, ok := deref[*Instance](vm.heap, instance)
	if !ok {
		return Nil, false
	}
	r, ok := vm.strings[name]
	if !ok {
		return Nil, false
	}
	v, ok := inst.fields[r]
	return v, ok
}
