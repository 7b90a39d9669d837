package vm

import (
	"time"
)

// ---------------------------------------------------------------------------
// Marker: gray worklist for the mark phase
// ---------------------------------------------------------------------------

// Marker is handed to root providers and object tracers during the mark
// phase. Marking is idempotent; each object is traced once.
type Marker struct {
	heap *Heap
	gray []Ref
}

// MarkRef marks the object named by r. Zero and stale refs are ignored.
func (m *Marker) MarkRef(r Ref) {
	if r.index == 0 || int(r.index) >= len(m.heap.slots) {
		return
	}
	s := &m.heap.slots[r.index]
	if s.obj == nil || s.gen != r.gen || s.marked {
		return
	}
	s.marked = true
	m.gray = append(m.gray, r)
}

// MarkValue marks v if it references a heap object.
func (m *Marker) MarkValue(v Value) {
	if v.IsObject() {
		m.MarkRef(v.Ref())
	}
}

// drain blackens gray objects until the worklist is empty.
func (m *Marker) drain() {
	for len(m.gray) > 0 {
		r := m.gray[len(m.gray)-1]
		m.gray = m.gray[:len(m.gray)-1]
		m.heap.slots[r.index].obj.trace(m)
	}
}

// ---------------------------------------------------------------------------
// Root providers
// ---------------------------------------------------------------------------

// RootProvider contributes roots to every collection. Hosts holding values
// outside the VM register one with AddRootProvider.
type RootProvider interface {
	MarkRoots(m *Marker)
}

// RootFunc adapts a function to RootProvider.
type RootFunc func(m *Marker)

// MarkRoots calls f(m).
func (f RootFunc) MarkRoots(m *Marker) { f(m) }

// AddRootProvider registers p and returns a function that unregisters it.
func (vm *VM) AddRootProvider(p RootProvider) (remove func()) {
	vm.providers = append(vm.providers, p)
	return func() {
		for i, q := range vm.providers {
			if q == p {
				vm.providers = append(vm.providers[:i], vm.providers[i+1:]...)
				return
			}
		}
	}
}

// markRoots marks everything the VM itself keeps alive: running fibers
// and their callers, the host API fiber, modules, handles, in-progress
// load roots, well-known strings and built-in method tables.
func (vm *VM) markRoots(m *Marker) {
	for f := vm.fiber; f != nil; f = f.caller {
		m.MarkRef(f.ref)
	}
	if vm.apiFiber != nil {
		m.MarkRef(vm.apiFiber.ref)
	}
	for _, mod := range vm.modules {
		m.MarkRef(mod)
	}
	m.MarkRef(vm.lastModule)
	for h := range vm.handles {
		m.MarkValue(h.value)
	}
	for _, v := range vm.compilerRoots {
		m.MarkValue(v)
	}
	m.MarkRef(vm.initString)
	m.MarkRef(vm.fiberClass)
	for _, table := range []map[Ref]Value{vm.listMethods, vm.mapMethods, vm.stringMethods, vm.fiberMethods} {
		for name, method := range table {
			m.MarkRef(name)
			m.MarkValue(method)
		}
	}
	for _, p := range vm.providers {
		p.MarkRoots(m)
	}
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// GCStats holds statistics from a single collection.
type GCStats struct {
	BytesBefore    int
	BytesAfter     int
	Freed          int
	EvictedStrings int
	NextGC         int
	Duration       time.Duration
}

// Collect runs a full collection and returns its statistics.
func (vm *VM) Collect() GCStats {
	start := time.Now()
	stats := GCStats{BytesBefore: vm.heap.bytesAllocated}

	m := &Marker{heap: vm.heap}
	vm.markRoots(m)
	m.drain()

	// Weak intern table: drop entries whose strings are about to be freed.
	for s, r := range vm.strings {
		if !vm.heap.slots[r.index].marked {
			delete(vm.strings, s)
			stats.EvictedStrings++
		}
	}

	h := vm.heap
	for i := 1; i < len(h.slots); i++ {
		s := &h.slots[i]
		if s.obj == nil {
			continue
		}
		if s.marked {
			s.marked = false
			continue
		}
		h.release(uint32(i))
		stats.Freed++
	}

	h.nextGC = int(float64(h.bytesAllocated) * vm.config.GCGrowthFactor)
	if h.nextGC < vm.config.InitialGCThreshold {
		h.nextGC = vm.config.InitialGCThreshold
	}

	stats.BytesAfter = h.bytesAllocated
	stats.NextGC = h.nextGC
	stats.Duration = time.Since(start)

	vm.gcCount++
	vm.lastGC = stats
	vm.gcLog.Debugf("collected %d bytes (%d -> %d), freed %d objects, evicted %d strings, next at %d",
		stats.BytesBefore-stats.BytesAfter, stats.BytesBefore, stats.BytesAfter,
		stats.Freed, stats.EvictedStrings, stats.NextGC)
	return stats
}

// GCCount returns the number of collections run so far.
func (vm *VM) GCCount() int { return vm.gcCount }

// LastGC returns the statistics of the most recent collection.
func (vm *VM) LastGC() GCStats { return vm.lastGC }

// Reachable reports whether v would survive a collection started now.
// It runs the mark phase only and leaves the heap unchanged.
func (vm *VM) Reachable(v Value) bool {
	if !v.IsObject() {
		return true
	}
	r := v.Ref()
	if !vm.heap.Valid(r) {
		return false
	}

	m := &Marker{heap: vm.heap}
	vm.markRoots(m)
	m.drain()
	reached := vm.heap.slots[r.index].marked

	for i := range vm.heap.slots {
		vm.heap.slots[i].marked = false
	}
	return reached
}

// alloc inserts obj into the heap, collecting first when the allocation
// would cross the threshold. Everything obj references must already be
// reachable from a root.
func (vm *VM) alloc(obj Obj) Ref {
	size := obj.size()
	if vm.config.GCStress || vm.heap.bytesAllocated+size > vm.heap.nextGC {
		vm.Collect()
	}
	return vm.heap.insert(obj, size)
}
