package vm

// ---------------------------------------------------------------------------
// Interned strings
// ---------------------------------------------------------------------------

// intern returns the unique String object for s, allocating it on first
// use. The table is weak: entries whose strings are unreachable are
// evicted by the collector before sweep.
func (vm *VM) intern(s string) Ref {
	if r, ok := vm.strings[s]; ok {
		return r
	}
	r := vm.alloc(&String{chars: s})
	vm.strings[s] = r
	return r
}

// NewString returns the interned string value for s. The result is only
// guaranteed to survive until the next allocation unless it is stored
// somewhere reachable.
func (vm *VM) NewString(s string) Value {
	return FromRef(vm.intern(s))
}

// Interned reports whether s currently has an entry in the intern table.
func (vm *VM) Interned(s string) bool {
	_, ok := vm.strings[s]
	return ok
}

// stringOf returns the contents of a string value.
func (vm *VM) stringOf(v Value) (string, bool) {
	s, ok := deref[*String](vm.heap, v)
	if !ok {
		return "", false
	}
	return s.chars, true
}

// nameOf returns the contents of an interned name reference, or "" if the
// reference is zero.
func (vm *VM) nameOf(r Ref) string {
	s, ok := derefRef[*String](vm.heap, r)
	if !ok {
		return ""
	}
	return s.chars
}
