package vm

import (
	"math"
)

// ---------------------------------------------------------------------------
// Subscripts
// ---------------------------------------------------------------------------

// index converts v to a position in a sequence of length n. Negative
// indices count from the end.
func (vm *VM) index(v Value, n int, what string) (int, error) {
	if !v.IsNumber() {
		return 0, vm.runtimeError(TypeMismatch, "%s index must be a number.", what)
	}
	f := v.Float64()
	if f != math.Trunc(f) {
		return 0, vm.runtimeError(TypeMismatch, "%s index must be an integer.", what)
	}
	i := int(f)
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, vm.runtimeError(IndexOutOfRange, "%s index out of bounds.", what)
	}
	return i, nil
}

func (vm *VM) subscript(container, key Value) (Value, error) {
	if container.IsObject() {
		obj, _ := vm.heap.Get(container.Ref())
		switch o := obj.(type) {
		case *List:
			i, err := vm.index(key, len(o.items), "List")
			if err != nil {
				return Nil, err
			}
			return o.items[i], nil

		case *Map:
			v, _ := o.get(key)
			return v, nil

		case *String:
			i, err := vm.index(key, len(o.chars), "String")
			if err != nil {
				return Nil, err
			}
			// The source string is still on the stack.
			return FromRef(vm.intern(o.chars[i : i+1])), nil
		}
	}
	return Nil, vm.runtimeError(TypeMismatch, "Only lists, maps and strings can be subscripted.")
}

func (vm *VM) subscriptAssign(container, key, value Value) error {
	if container.IsObject() {
		obj, _ := vm.heap.Get(container.Ref())
		switch o := obj.(type) {
		case *List:
			i, err := vm.index(key, len(o.items), "List")
			if err != nil {
				return err
			}
			o.items[i] = value
			return nil

		case *Map:
			if o.set(key, value) {
				vm.heap.grow(container.Ref(), 2*valueSize)
			}
			return nil
		}
	}
	return vm.runtimeError(TypeMismatch, "Only lists and maps support subscript assignment.")
}

// bound converts an optional slice bound. nil selects def.
func (vm *VM) bound(v Value, n, def int) (int, error) {
	if v.IsNil() {
		return def, nil
	}
	if !v.IsNumber() || v.Float64() != math.Trunc(v.Float64()) {
		return 0, vm.runtimeError(TypeMismatch, "Slice bounds must be integers.")
	}
	i := int(v.Float64())
	if i < 0 {
		i += n
	}
	if i < 0 || i > n {
		return 0, vm.runtimeError(IndexOutOfRange, "Slice bounds out of range.")
	}
	return i, nil
}

// slice replaces [container, from, to] on the stack with the sub-sequence
// container[from:to].
func (vm *VM) slice() error {
	f := vm.fiber
	container, from, to := f.peek(2), f.peek(1), f.peek(0)

	var n int
	var list *List
	var str *String
	if container.IsObject() {
		obj, _ := vm.heap.Get(container.Ref())
		switch o := obj.(type) {
		case *List:
			list, n = o, len(o.items)
		case *String:
			str, n = o, len(o.chars)
		}
	}
	if list == nil && str == nil {
		return vm.runtimeError(TypeMismatch, "Only lists and strings can be sliced.")
	}

	lo, err := vm.bound(from, n, 0)
	if err != nil {
		return err
	}
	hi, err := vm.bound(to, n, n)
	if err != nil {
		return err
	}
	if lo > hi {
		return vm.runtimeError(IndexOutOfRange, "Slice bounds out of range.")
	}

	var result Value
	if list != nil {
		items := make([]Value, hi-lo)
		copy(items, list.items[lo:hi])
		result = FromRef(vm.alloc(&List{items: items}))
	} else {
		result = FromRef(vm.intern(str.chars[lo:hi]))
	}
	f.sp -= 3
	f.push(result)
	return nil
}

// ---------------------------------------------------------------------------
// Host helpers
// ---------------------------------------------------------------------------

// NewList allocates a list holding a copy of items. The items must be
// rooted by the caller.
func (vm *VM) NewList(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return FromRef(vm.alloc(&List{items: cp}))
}

// ListItems returns a copy of a list's elements.
func (vm *VM) ListItems(v Value) ([]Value, bool) {
	l, ok := deref[*List](vm.heap, v)
	if !ok {
		return nil, false
	}
	cp := make([]Value, len(l.items))
	copy(cp, l.items)
	return cp, true
}

// MapGet looks up key in a map value.
func (vm *VM) MapGet(m, key Value) (Value, bool) {
	mp, ok := deref[*Map](vm.heap, m)
	if !ok {
		return Nil, false
	}
	return mp.get(key)
}
