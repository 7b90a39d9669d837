package vm

// ---------------------------------------------------------------------------
// Upvalue capture and closing
// ---------------------------------------------------------------------------

// captureUpvalue returns the open upvalue for slot on f, creating it if
// none exists. At most one open upvalue exists per slot, so closures that
// capture the same variable share it.
func (vm *VM) captureUpvalue(f *Fiber, slot int) Ref {
	i := 0
	for i < len(f.open) && f.open[i].slot > slot {
		i++
	}
	if i < len(f.open) && f.open[i].slot == slot {
		return f.open[i].ref
	}

	uv := &Upvalue{fiber: f, fiberRef: f.ref, slot: slot}
	ref := vm.alloc(uv)

	f.open = append(f.open, openUpvalue{})
	copy(f.open[i+1:], f.open[i:])
	f.open[i] = openUpvalue{slot: slot, ref: ref, uv: uv}
	return ref
}

// closeUpvalues closes every open upvalue at or above slot. Each one copies
// the current slot value and stops aliasing the stack.
func (f *Fiber) closeUpvalues(slot int) {
	n := 0
	for n < len(f.open) && f.open[n].slot >= slot {
		o := f.open[n]
		o.uv.closed = f.stack[o.slot]
		o.uv.fiber = nil
		o.uv.fiberRef = Ref{}
		n++
	}
	if n > 0 {
		f.open = append(f.open[:0], f.open[n:]...)
	}
}

// OpenUpvalues returns the slots of f's open upvalues, highest first.
func (f *Fiber) OpenUpvalues() []int {
	slots := make([]int, len(f.open))
	for i, o := range f.open {
		slots[i] = o.slot
	}
	return slots
}
