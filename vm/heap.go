package vm

import "fmt"

// ---------------------------------------------------------------------------
// Heap: Arena of collectable objects
// ---------------------------------------------------------------------------

// Ref is a generation-checked reference into the heap. The zero Ref never
// names a live object.
type Ref struct {
	index uint32
	gen   uint16
}

// IsZero reports whether r is the null reference.
func (r Ref) IsZero() bool {
	return r.index == 0
}

func (r Ref) String() string {
	if r.IsZero() {
		return "ref(nil)"
	}
	return fmt.Sprintf("ref(%d#%d)", r.index, r.gen)
}

type heapSlot struct {
	obj    Obj
	gen    uint16
	size   int
	marked bool
}

// Heap owns every collectable object. Objects live in slots addressed by
// index; a slot's generation advances each time it is reused so stale
// references are detected instead of aliasing a newer object.
type Heap struct {
	slots []heapSlot // slots[0] is reserved
	free  []uint32

	live           int
	bytesAllocated int
	nextGC         int
}

// NewHeap creates an empty heap that first collects after threshold bytes.
func NewHeap(threshold int) *Heap {
	return &Heap{
		slots:  make([]heapSlot, 1, 1024),
		nextGC: threshold,
	}
}

// insert stores obj and returns its reference. It never triggers a
// collection; callers decide that before inserting.
func (h *Heap) insert(obj Obj, size int) Ref {
	var idx uint32
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		h.slots = append(h.slots, heapSlot{})
		idx = uint32(len(h.slots) - 1)
	}
	s := &h.slots[idx]
	s.obj = obj
	s.size = size
	s.marked = false
	h.live++
	h.bytesAllocated += size
	return Ref{index: idx, gen: s.gen}
}

// Get resolves a reference. It returns false for the zero Ref, freed slots
// and stale generations.
func (h *Heap) Get(r Ref) (Obj, bool) {
	if r.index == 0 || int(r.index) >= len(h.slots) {
		return nil, false
	}
	s := &h.slots[r.index]
	if s.obj == nil || s.gen != r.gen {
		return nil, false
	}
	return s.obj, true
}

// Valid reports whether r still names a live object.
func (h *Heap) Valid(r Ref) bool {
	_, ok := h.Get(r)
	return ok
}

// release frees the slot at idx and bumps its generation.
func (h *Heap) release(idx uint32) {
	s := &h.slots[idx]
	h.bytesAllocated -= s.size
	h.live--
	s.obj = nil
	s.size = 0
	s.marked = false
	s.gen++
	h.free = append(h.free, idx)
}

// Live returns the number of live objects.
func (h *Heap) Live() int { return h.live }

// BytesAllocated returns the running estimate of live object bytes.
func (h *Heap) BytesAllocated() int { return h.bytesAllocated }

// NextGC returns the allocation threshold for the next collection.
func (h *Heap) NextGC() int { return h.nextGC }

// grow adjusts the running byte estimate for an object whose payload
// changed size after allocation (list and map growth).
func (h *Heap) grow(r Ref, delta int) {
	if !h.Valid(r) {
		return
	}
	h.slots[r.index].size += delta
	h.bytesAllocated += delta
}

// ---------------------------------------------------------------------------
// Typed access
// ---------------------------------------------------------------------------

// deref resolves v to a concrete object type.
func deref[T Obj](h *Heap, v Value) (T, bool) {
	var zero T
	if !v.IsObject() {
		return zero, false
	}
	obj, ok := h.Get(v.Ref())
	if !ok {
		return zero, false
	}
	t, ok := obj.(T)
	return t, ok
}

// derefRef is deref for a bare reference.
func derefRef[T Obj](h *Heap, r Ref) (T, bool) {
	var zero T
	obj, ok := h.Get(r)
	if !ok {
		return zero, false
	}
	t, ok := obj.(T)
	return t, ok
}
