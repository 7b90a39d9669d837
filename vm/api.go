package vm

import (
	"strings"

	"github.com/chazu/fox/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Slots
// ---------------------------------------------------------------------------

// apiState maps host slots onto a window of a fiber's stack. During a
// native call the window is the native's callee and arguments; otherwise
// it is the bottom of the dedicated host fiber.
type apiState struct {
	fiber *Fiber
	base  int
	count int
}

// SlotType describes the value held in a slot.
type SlotType uint8

const (
	SlotNil SlotType = iota
	SlotBool
	SlotNumber
	SlotString
	SlotList
	SlotMap
	SlotUnknown
)

func (t SlotType) String() string {
	switch t {
	case SlotNil:
		return "nil"
	case SlotBool:
		return "bool"
	case SlotNumber:
		return "number"
	case SlotString:
		return "string"
	case SlotList:
		return "list"
	case SlotMap:
		return "map"
	default:
		return "unknown"
	}
}

// SlotCount returns the number of slots currently available.
func (vm *VM) SlotCount() int {
	return vm.api.count
}

// EnsureSlots makes at least n slots available. New slots hold nil.
// Inside a native, growing the slots may move the stack, so the args slice
// passed to the native must not be used afterwards.
func (vm *VM) EnsureSlots(n int) {
	if vm.api.fiber == nil {
		vm.apiFiber = vm.newFiber(Nil)
		vm.api = apiState{fiber: vm.apiFiber}
	}
	if n <= vm.api.count {
		return
	}
	f := vm.api.fiber
	need := vm.api.base + n
	f.ensure(need - f.sp)
	for f.sp < need {
		f.stack[f.sp] = Nil
		f.sp++
	}
	vm.api.count = n
}

func (vm *VM) slot(i int) (*Value, error) {
	if i < 0 || i >= vm.api.count {
		return nil, hostError(SlotOutOfRange, "slot %d out of range (have %d)", i, vm.api.count)
	}
	return &vm.api.fiber.stack[vm.api.base+i], nil
}

// GetSlot returns the raw value in slot i.
func (vm *VM) GetSlot(i int) (Value, error) {
	p, err := vm.slot(i)
	if err != nil {
		return Nil, err
	}
	return *p, nil
}

// SetSlot stores a raw value in slot i.
func (vm *VM) SetSlot(i int, v Value) error {
	p, err := vm.slot(i)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// GetSlotType reports the type of the value in slot i.
func (vm *VM) GetSlotType(i int) (SlotType, error) {
	v, err := vm.GetSlot(i)
	if err != nil {
		return SlotUnknown, err
	}
	return vm.slotType(v), nil
}

func (vm *VM) slotType(v Value) SlotType {
	switch {
	case v.IsNil():
		return SlotNil
	case v.IsBool():
		return SlotBool
	case v.IsNumber():
		return SlotNumber
	}
	obj, ok := vm.heap.Get(v.Ref())
	if !ok {
		return SlotUnknown
	}
	switch obj.(type) {
	case *String:
		return SlotString
	case *List:
		return SlotList
	case *Map:
		return SlotMap
	default:
		return SlotUnknown
	}
}

func (vm *VM) typedSlot(i int, want SlotType) (Value, error) {
	v, err := vm.GetSlot(i)
	if err != nil {
		return Nil, err
	}
	if got := vm.slotType(v); got != want {
		return Nil, hostError(SlotTypeMismatch, "slot %d holds %s, not %s", i, got, want)
	}
	return v, nil
}

// GetSlotBool reads a boolean slot.
func (vm *VM) GetSlotBool(i int) (bool, error) {
	v, err := vm.typedSlot(i, SlotBool)
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

// GetSlotDouble reads a number slot.
func (vm *VM) GetSlotDouble(i int) (float64, error) {
	v, err := vm.typedSlot(i, SlotNumber)
	if err != nil {
		return 0, err
	}
	return v.Float64(), nil
}

// GetSlotString reads a string slot.
func (vm *VM) GetSlotString(i int) (string, error) {
	v, err := vm.typedSlot(i, SlotString)
	if err != nil {
		return "", err
	}
	s, _ := vm.stringOf(v)
	return s, nil
}

// GetSlotHandle returns a handle pinning the value in slot i.
func (vm *VM) GetSlotHandle(i int) (*Handle, error) {
	v, err := vm.GetSlot(i)
	if err != nil {
		return nil, err
	}
	return vm.MakeHandle(v), nil
}

// SetSlotBool stores a boolean.
func (vm *VM) SetSlotBool(i int, b bool) error {
	return vm.SetSlot(i, FromBool(b))
}

// SetSlotDouble stores a number.
func (vm *VM) SetSlotDouble(i int, f float64) error {
	return vm.SetSlot(i, FromFloat64(f))
}

// SetSlotNil stores nil.
func (vm *VM) SetSlotNil(i int) error {
	return vm.SetSlot(i, Nil)
}

// SetSlotString stores the interned string s.
func (vm *VM) SetSlotString(i int, s string) error {
	if _, err := vm.slot(i); err != nil {
		return err
	}
	return vm.SetSlot(i, vm.NewString(s))
}

// SetSlotNewList stores a new empty list.
func (vm *VM) SetSlotNewList(i int) error {
	if _, err := vm.slot(i); err != nil {
		return err
	}
	return vm.SetSlot(i, vm.NewList())
}

// SetSlotNewMap stores a new empty map.
func (vm *VM) SetSlotNewMap(i int) error {
	if _, err := vm.slot(i); err != nil {
		return err
	}
	return vm.SetSlot(i, FromRef(vm.alloc(newMap())))
}

// SetSlotHandle stores the value a handle holds.
func (vm *VM) SetSlotHandle(i int, h *Handle) error {
	if err := vm.checkHandle(h); err != nil {
		return err
	}
	return vm.SetSlot(i, h.value)
}

// ---------------------------------------------------------------------------
// Lists
// ---------------------------------------------------------------------------

func (vm *VM) listSlot(i int) (*List, Value, error) {
	v, err := vm.typedSlot(i, SlotList)
	if err != nil {
		return nil, Nil, err
	}
	l, _ := deref[*List](vm.heap, v)
	return l, v, nil
}

// GetListCount returns the length of the list in slot.
func (vm *VM) GetListCount(slot int) (int, error) {
	l, _, err := vm.listSlot(slot)
	if err != nil {
		return 0, err
	}
	return len(l.items), nil
}

// GetListElement copies element index of the list in listSlot into
// elementSlot.
func (vm *VM) GetListElement(listSlot, index, elementSlot int) error {
	l, _, err := vm.listSlot(listSlot)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(l.items) {
		return hostError(ListIndexOutOfRange, "index %d out of range (length %d)", index, len(l.items))
	}
	return vm.SetSlot(elementSlot, l.items[index])
}

// SetListElement stores the value in elementSlot at index of the list in
// listSlot.
func (vm *VM) SetListElement(listSlot, index, elementSlot int) error {
	l, _, err := vm.listSlot(listSlot)
	if err != nil {
		return err
	}
	v, err := vm.GetSlot(elementSlot)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(l.items) {
		return hostError(ListIndexOutOfRange, "index %d out of range (length %d)", index, len(l.items))
	}
	l.items[index] = v
	return nil
}

// InsertInList inserts the value in elementSlot before index of the list
// in listSlot. An index of -1 appends.
func (vm *VM) InsertInList(listSlot, index, elementSlot int) error {
	l, lv, err := vm.listSlot(listSlot)
	if err != nil {
		return err
	}
	v, err := vm.GetSlot(elementSlot)
	if err != nil {
		return err
	}
	n := len(l.items)
	if index < 0 {
		index += n + 1
	}
	if index < 0 || index > n {
		return hostError(ListIndexOutOfRange, "index %d out of range (length %d)", index, n)
	}
	l.items = append(l.items, Nil)
	copy(l.items[index+1:], l.items[index:])
	l.items[index] = v
	vm.heap.grow(lv.Ref(), valueSize)
	return nil
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// GetVariableSlot stores a module variable in slot.
func (vm *VM) GetVariableSlot(module, name string, slot int) error {
	if !vm.HasModule(module) {
		return hostError(UnknownModule, "module %q is not defined", module)
	}
	v, ok := vm.GetVariable(module, name)
	if !ok {
		return hostError(UnknownVariable, "module %q has no variable %q", module, name)
	}
	return vm.SetSlot(slot, v)
}

// ---------------------------------------------------------------------------
// Handles
// ---------------------------------------------------------------------------

// Handle pins a value so it survives collection while the host holds it.
type Handle struct {
	value    Value
	released bool
}

// Value returns the pinned value.
func (h *Handle) Value() Value { return h.value }

// MakeHandle pins v until ReleaseHandle.
func (vm *VM) MakeHandle(v Value) *Handle {
	h := &Handle{value: v}
	vm.handles[h] = struct{}{}
	return h
}

// ReleaseHandle unpins the handle's value. The handle may not be used
// afterwards.
func (vm *VM) ReleaseHandle(h *Handle) {
	if h == nil {
		return
	}
	delete(vm.handles, h)
	h.released = true
	h.value = Nil
}

func (vm *VM) checkHandle(h *Handle) error {
	if h == nil || h.released {
		return hostError(StaleHandle, "handle has been released")
	}
	if _, ok := vm.handles[h]; !ok {
		return hostError(StaleHandle, "handle belongs to another vm")
	}
	return nil
}

// parseSignature splits "name(_,_)" into the method name and its arity.
// A bare name has arity 0.
func parseSignature(sig string) (string, int, bool) {
	open := strings.IndexByte(sig, '(')
	if open < 0 {
		return sig, 0, sig != ""
	}
	if open == 0 || !strings.HasSuffix(sig, ")") {
		return "", 0, false
	}
	name, params := sig[:open], sig[open+1:len(sig)-1]
	if params == "" {
		return name, 0, true
	}
	parts := strings.Split(params, ",")
	for _, p := range parts {
		if strings.TrimSpace(p) != "_" {
			return "", 0, false
		}
	}
	return name, len(parts), true
}

// MakeCallHandle builds a callable stub that invokes the method named by
// signature on the receiver in slot 0 with the following slots as
// arguments.
func (vm *VM) MakeCallHandle(signature string) (*Handle, error) {
	name, argc, ok := parseSignature(signature)
	if !ok || argc > 255 {
		return nil, hostError(BadSignature, "malformed signature %q", signature)
	}

	b := bytecode.NewBuilder(signature, argc)
	for i := 0; i <= argc; i++ {
		b.EmitByte(bytecode.OpGetLocal, byte(i))
	}
	b.EmitInvoke(bytecode.OpInvoke, name, byte(argc))
	b.Emit(bytecode.OpReturn)

	h, err := vm.Load(CoreModule, b.Build())
	if err != nil {
		return nil, err
	}
	vm.apiLog.Debugf("call handle %s", signature)
	return h, nil
}

// ---------------------------------------------------------------------------
// Call
// ---------------------------------------------------------------------------

func (vm *VM) callable(v Value) bool {
	if !v.IsObject() {
		return false
	}
	obj, _ := vm.heap.Get(v.Ref())
	switch obj.(type) {
	case *Closure, *NativeFunction, *BoundMethod, *Class:
		return true
	}
	return false
}

// Call invokes the callable held by h. Slot 0 holds the callee or
// receiver and the remaining slots are the arguments. On success the
// result is in slot 0 and exactly one slot remains.
func (vm *VM) Call(h *Handle) error {
	if vm.running {
		return hostError(Busy, "call made while the vm is running")
	}
	if err := vm.checkHandle(h); err != nil {
		return err
	}
	if vm.api.fiber == nil || vm.api.count == 0 {
		return hostError(SlotOutOfRange, "call needs slot 0 for the receiver")
	}
	if !vm.callable(h.value) {
		return hostError(HandleNotCallable, "handle holds %s", vm.TypeName(h.value))
	}

	f := vm.api.fiber
	argc := vm.api.count - 1
	f.state = FiberRunning
	f.sp = vm.api.base + vm.api.count
	vm.fiber = f

	depth := len(f.frames)
	if err := vm.callValue(h.value, argc); err != nil {
		vm.api.count = 0
		return err
	}
	if len(f.frames) > depth {
		if _, err := vm.execute(); err != nil {
			vm.api.count = 0
			return err
		}
	}
	vm.fiber = nil

	for i := 1; i < f.sp; i++ {
		f.stack[i] = Nil
	}
	f.sp = 1
	f.state = FiberSuspended
	vm.api.count = 1
	return nil
}
