package vm

import (
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// CallFrame
// ---------------------------------------------------------------------------

// CallFrame is one activation of a closure on a fiber.
type CallFrame struct {
	closure Ref
	cl      *Closure
	fn      *Function
	ip      int // offset of the next instruction
	base    int // stack index of slot 0 (the callee or receiver)
}

// line returns the source line of the instruction last executed.
func (f *CallFrame) line() int {
	return f.fn.proto.LineAt(f.ip - 1)
}

// ---------------------------------------------------------------------------
// Fiber
// ---------------------------------------------------------------------------

// FiberState tracks a fiber's lifecycle.
type FiberState uint8

const (
	FiberNew FiberState = iota
	FiberRunning
	FiberSuspended
	FiberDone
)

func (s FiberState) String() string {
	switch s {
	case FiberNew:
		return "new"
	case FiberRunning:
		return "running"
	case FiberSuspended:
		return "suspended"
	case FiberDone:
		return "done"
	default:
		return "unknown"
	}
}

type openUpvalue struct {
	slot int
	ref  Ref
	uv   *Upvalue
}

// Fiber is an independent execution context with its own value stack,
// frame stack and open upvalues.
type Fiber struct {
	ref    Ref
	id     uuid.UUID
	stack  []Value
	sp     int
	frames []CallFrame

	// open is ordered by slot, highest first.
	open []openUpvalue

	caller *Fiber
	state  FiberState
	entry  Value
}

func (f *Fiber) Kind() ObjKind { return KindFiber }

func (f *Fiber) trace(m *Marker) {
	for _, v := range f.stack[:f.sp] {
		m.MarkValue(v)
	}
	for i := range f.frames {
		m.MarkRef(f.frames[i].closure)
	}
	for _, o := range f.open {
		m.MarkRef(o.ref)
	}
	if f.caller != nil {
		m.MarkRef(f.caller.ref)
	}
	m.MarkValue(f.entry)
}

func (f *Fiber) size() int {
	return headerSize + len(f.stack)*valueSize + cap(f.frames)*48
}

// ID returns the fiber's unique identifier.
func (f *Fiber) ID() uuid.UUID { return f.id }

// State returns the fiber's lifecycle state.
func (f *Fiber) State() FiberState { return f.state }

// newFiber allocates a fiber. entry, when set, is the closure the fiber
// runs on its first call and must already be rooted.
func (vm *VM) newFiber(entry Value) *Fiber {
	f := &Fiber{
		id:     uuid.New(),
		stack:  make([]Value, vm.config.StackSize),
		frames: make([]CallFrame, 0, 8),
		entry:  entry,
	}
	f.ref = vm.alloc(f)
	return f
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (f *Fiber) push(v Value) {
	if f.sp == len(f.stack) {
		grown := make([]Value, len(f.stack)*2+8)
		copy(grown, f.stack)
		f.stack = grown
	}
	f.stack[f.sp] = v
	f.sp++
}

func (f *Fiber) pop() Value {
	f.sp--
	return f.stack[f.sp]
}

func (f *Fiber) peek(distance int) Value {
	return f.stack[f.sp-1-distance]
}

// ensure grows the stack so that n more values fit above sp.
func (f *Fiber) ensure(n int) {
	if f.sp+n <= len(f.stack) {
		return
	}
	size := len(f.stack)*2 + 8
	for size < f.sp+n {
		size *= 2
	}
	grown := make([]Value, size)
	copy(grown, f.stack)
	f.stack = grown
}

func (f *Fiber) frame() *CallFrame {
	return &f.frames[len(f.frames)-1]
}

// reset discards all execution state. Open upvalues are closed first so
// closures that escaped keep the last values they saw.
func (f *Fiber) reset() {
	f.closeUpvalues(0)
	for i := range f.stack[:f.sp] {
		f.stack[i] = Nil
	}
	f.sp = 0
	f.frames = f.frames[:0]
	f.caller = nil
}
