package vm

import (
	"fmt"

	"github.com/chazu/fox/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Object kinds
// ---------------------------------------------------------------------------

// ObjKind identifies the concrete type of a heap object.
type ObjKind uint8

const (
	KindString ObjKind = iota + 1
	KindFunction
	KindClosure
	KindUpvalue
	KindNative
	KindClass
	KindInstance
	KindBoundMethod
	KindModule
	KindFiber
	KindList
	KindMap
)

var kindNames = map[ObjKind]string{
	KindString:      "string",
	KindFunction:    "function",
	KindClosure:     "closure",
	KindUpvalue:     "upvalue",
	KindNative:      "native",
	KindClass:       "class",
	KindInstance:    "instance",
	KindBoundMethod: "bound method",
	KindModule:      "module",
	KindFiber:       "fiber",
	KindList:        "list",
	KindMap:         "map",
}

func (k ObjKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ObjKind(%d)", k)
}

// Obj is implemented by every heap object. trace marks each reference the
// object holds; size is the byte estimate charged against the GC budget.
type Obj interface {
	Kind() ObjKind
	trace(m *Marker)
	size() int
}

const (
	headerSize = 32
	valueSize  = 8
	refSize    = 8
)

// ---------------------------------------------------------------------------
// String
// ---------------------------------------------------------------------------

// String is an immutable, interned character sequence.
type String struct {
	chars string
}

func (s *String) Kind() ObjKind { return KindString }
func (s *String) trace(*Marker) {}
func (s *String) size() int     { return headerSize + len(s.chars) }

// Chars returns the string contents.
func (s *String) Chars() string { return s.chars }

// ---------------------------------------------------------------------------
// Function and Closure
// ---------------------------------------------------------------------------

// Function is a loaded code object. The instruction stream and line table
// are shared with the prototype it was loaded from; constants are
// materialized as heap values.
type Function struct {
	name         Ref // interned name, zero for the top-level script
	arity        int
	upvalueCount int
	constants    []Value
	module       Ref
	proto        *bytecode.Function
}

func (f *Function) Kind() ObjKind { return KindFunction }

func (f *Function) trace(m *Marker) {
	m.MarkRef(f.name)
	m.MarkRef(f.module)
	for _, c := range f.constants {
		m.MarkValue(c)
	}
}

func (f *Function) size() int {
	return headerSize + len(f.constants)*valueSize + len(f.proto.Code)
}

// Arity returns the number of declared parameters.
func (f *Function) Arity() int { return f.arity }

// Closure pairs a function with the upvalues it captured.
type Closure struct {
	fn       Ref
	function *Function
	upvalues []Ref
}

func (c *Closure) Kind() ObjKind { return KindClosure }

func (c *Closure) trace(m *Marker) {
	m.MarkRef(c.fn)
	for _, uv := range c.upvalues {
		m.MarkRef(uv)
	}
}

func (c *Closure) size() int { return headerSize + len(c.upvalues)*refSize }

// ---------------------------------------------------------------------------
// Upvalue
// ---------------------------------------------------------------------------

// Upvalue is a captured variable. While open it aliases a stack slot of
// its fiber; once closed it owns a copy of the value.
type Upvalue struct {
	fiber    *Fiber // nil once closed
	fiberRef Ref
	slot     int
	closed   Value
}

func (u *Upvalue) Kind() ObjKind { return KindUpvalue }

func (u *Upvalue) trace(m *Marker) {
	if u.fiber != nil {
		// The aliased slot belongs to the fiber's stack; keep the fiber.
		m.MarkRef(u.fiberRef)
		return
	}
	m.MarkValue(u.closed)
}

func (u *Upvalue) size() int { return headerSize }

// IsOpen reports whether the upvalue still aliases a stack slot.
func (u *Upvalue) IsOpen() bool { return u.fiber != nil }

func (u *Upvalue) get() Value {
	if u.fiber != nil {
		return u.fiber.stack[u.slot]
	}
	return u.closed
}

func (u *Upvalue) set(v Value) {
	if u.fiber != nil {
		u.fiber.stack[u.slot] = v
		return
	}
	u.closed = v
}

// ---------------------------------------------------------------------------
// Native functions
// ---------------------------------------------------------------------------

// NativeFn is a host function callable from scripts. args[0] holds the
// callee or receiver; the arguments follow. The slice aliases the fiber's
// stack and must not be retained.
type NativeFn func(vm *VM, args []Value) (Value, error)

// Variadic marks a native that accepts any number of arguments.
const Variadic = -1

// NativeFunction wraps a NativeFn as a heap object.
type NativeFunction struct {
	name  string
	arity int
	fn    NativeFn
}

func (n *NativeFunction) Kind() ObjKind { return KindNative }
func (n *NativeFunction) trace(*Marker) {}
func (n *NativeFunction) size() int     { return headerSize }

// ---------------------------------------------------------------------------
// Class, Instance and BoundMethod
// ---------------------------------------------------------------------------

// Class holds a method table keyed by interned method name. Inherited
// methods are copied down at INHERIT time; super is kept only for
// 'is' checks.
type Class struct {
	name    Ref
	methods map[Ref]Value
	super   Ref
}

func (c *Class) Kind() ObjKind { return KindClass }

func (c *Class) trace(m *Marker) {
	m.MarkRef(c.name)
	m.MarkRef(c.super)
	for name, method := range c.methods {
		m.MarkRef(name)
		m.MarkValue(method)
	}
}

func (c *Class) size() int { return headerSize + len(c.methods)*(refSize+valueSize) }

// Instance is an object of a script class with per-instance fields.
type Instance struct {
	class  Ref
	fields map[Ref]Value
}

func (i *Instance) Kind() ObjKind { return KindInstance }

func (i *Instance) trace(m *Marker) {
	m.MarkRef(i.class)
	for name, v := range i.fields {
		m.MarkRef(name)
		m.MarkValue(v)
	}
}

func (i *Instance) size() int { return headerSize + len(i.fields)*(refSize+valueSize) }

// BoundMethod binds a receiver to a method closure or native.
type BoundMethod struct {
	receiver Value
	method   Value
}

func (b *BoundMethod) Kind() ObjKind { return KindBoundMethod }

func (b *BoundMethod) trace(m *Marker) {
	m.MarkValue(b.receiver)
	m.MarkValue(b.method)
}

func (b *BoundMethod) size() int { return headerSize }

// ---------------------------------------------------------------------------
// Module
// ---------------------------------------------------------------------------

// Module is a named namespace of top-level variables.
type Module struct {
	name Ref
	vars map[Ref]Value
}

func (mod *Module) Kind() ObjKind { return KindModule }

func (mod *Module) trace(m *Marker) {
	m.MarkRef(mod.name)
	for name, v := range mod.vars {
		m.MarkRef(name)
		m.MarkValue(v)
	}
}

func (mod *Module) size() int { return headerSize + len(mod.vars)*(refSize+valueSize) }

// ---------------------------------------------------------------------------
// List and Map
// ---------------------------------------------------------------------------

// List is a growable sequence of values.
type List struct {
	items []Value
}

func (l *List) Kind() ObjKind { return KindList }

func (l *List) trace(m *Marker) {
	for _, v := range l.items {
		m.MarkValue(v)
	}
}

func (l *List) size() int { return headerSize + len(l.items)*valueSize }

// Map is an insertion-ordered table. Number keys are normalized so 0 and
// -0 share an entry.
type Map struct {
	keys    []Value
	entries map[Value]Value
}

func newMap() *Map {
	return &Map{entries: make(map[Value]Value)}
}

func (mp *Map) Kind() ObjKind { return KindMap }

func (mp *Map) trace(m *Marker) {
	for _, k := range mp.keys {
		m.MarkValue(k)
		m.MarkValue(mp.entries[k])
	}
}

func (mp *Map) size() int { return headerSize + len(mp.keys)*2*valueSize }

func (mp *Map) get(key Value) (Value, bool) {
	v, ok := mp.entries[mapKey(key)]
	return v, ok
}

// set stores value under key and reports whether the key is new.
func (mp *Map) set(key, value Value) bool {
	key = mapKey(key)
	_, exists := mp.entries[key]
	if !exists {
		mp.keys = append(mp.keys, key)
	}
	mp.entries[key] = value
	return !exists
}

func (mp *Map) remove(key Value) (Value, bool) {
	key = mapKey(key)
	v, ok := mp.entries[key]
	if !ok {
		return Nil, false
	}
	delete(mp.entries, key)
	for i, k := range mp.keys {
		if k == key {
			mp.keys = append(mp.keys[:i], mp.keys[i+1:]...)
			break
		}
	}
	return v, true
}
