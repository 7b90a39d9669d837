package vm

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chazu/fox/pkg/bytecode"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// CoreModule is the module holding built-in globals. Global lookups fall
// back to it after the running function's own module.
const CoreModule = "core"

// MainModule is the module Interpret uses when none is named.
const MainModule = "main"

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// Config holds VM tuning knobs. The zero value is not useful; start from
// DefaultConfig.
type Config struct {
	MaxFrames          int     // call depth per fiber before "Stack overflow."
	StackSize          int     // initial value stack slots per fiber
	InitialGCThreshold int     // bytes allocated before the first collection
	GCGrowthFactor     float64 // next threshold = live bytes * factor
	GCStress           bool    // collect before every allocation
	Trace              bool    // log every executed instruction
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		MaxFrames:          64,
		StackSize:          256,
		InitialGCThreshold: 1 << 20,
		GCGrowthFactor:     2,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.MaxFrames <= 0 {
		c.MaxFrames = d.MaxFrames
	}
	if c.StackSize <= 0 {
		c.StackSize = d.StackSize
	}
	if c.InitialGCThreshold <= 0 {
		c.InitialGCThreshold = d.InitialGCThreshold
	}
	if c.GCGrowthFactor < 1 {
		c.GCGrowthFactor = d.GCGrowthFactor
	}
}

// Option configures a VM.
type Option func(*VM)

// WithConfig replaces the VM configuration.
func WithConfig(c Config) Option {
	return func(vm *VM) { vm.config = c }
}

// WithStdout redirects PRINT output.
func WithStdout(w io.Writer) Option {
	return func(vm *VM) { vm.stdout = w }
}

// WithLogger replaces the interpreter logger.
func WithLogger(l commonlog.Logger) Option {
	return func(vm *VM) { vm.log = l }
}

// WithGCStress enables a collection before every allocation.
func WithGCStress(on bool) Option {
	return func(vm *VM) { vm.config.GCStress = on }
}

// WithMaxFrames sets the per-fiber call depth limit.
func WithMaxFrames(n int) Option {
	return func(vm *VM) { vm.config.MaxFrames = n }
}

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM is a single fox interpreter instance. A VM is not safe for concurrent
// use and is not reentrant: natives may not call back into Interpret or
// Call.
type VM struct {
	id     uuid.UUID
	config Config
	stdout io.Writer
	log    commonlog.Logger
	gcLog  commonlog.Logger
	apiLog commonlog.Logger
	start  time.Time

	heap    *Heap
	strings map[string]Ref

	// Execution
	fiber    *Fiber
	running  bool
	api      apiState
	apiFiber *Fiber

	// Modules
	modules    map[string]Ref
	core       *Module
	lastModule Ref

	// Well-known objects
	initString    Ref
	fiberClass    Ref
	listMethods   map[Ref]Value
	mapMethods    map[Ref]Value
	stringMethods map[Ref]Value
	fiberMethods  map[Ref]Value

	// Extra roots
	handles       map[*Handle]struct{}
	compilerRoots []Value
	providers     []RootProvider

	gcCount int
	lastGC  GCStats
}

// New creates and bootstraps a VM.
func New(opts ...Option) *VM {
	vm := &VM{
		id:            uuid.New(),
		config:        DefaultConfig(),
		stdout:        os.Stdout,
		log:           commonlog.GetLogger("fox.vm"),
		gcLog:         commonlog.GetLogger("fox.gc"),
		apiLog:        commonlog.GetLogger("fox.api"),
		start:         time.Now(),
		strings:       make(map[string]Ref),
		modules:       make(map[string]Ref),
		listMethods:   make(map[Ref]Value),
		mapMethods:    make(map[Ref]Value),
		stringMethods: make(map[Ref]Value),
		fiberMethods:  make(map[Ref]Value),
		handles:       make(map[*Handle]struct{}),
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.config.normalize()
	vm.heap = NewHeap(vm.config.InitialGCThreshold)

	vm.initString = vm.intern("init")
	vm.core = vm.ensureModule(CoreModule)
	vm.bootstrapCore()

	vm.log.Debugf("vm %s ready (max frames %d, gc threshold %d)",
		vm.id, vm.config.MaxFrames, vm.config.InitialGCThreshold)
	return vm
}

// ID returns the VM's unique identifier.
func (vm *VM) ID() uuid.UUID { return vm.id }

// Config returns the active configuration.
func (vm *VM) Config() Config { return vm.config }

// Heap exposes the object arena for inspection.
func (vm *VM) Heap() *Heap { return vm.heap }

// ---------------------------------------------------------------------------
// Pinning
// ---------------------------------------------------------------------------

// pin roots values until unpin is called with the returned mark.
func (vm *VM) pin(vals ...Value) int {
	mark := len(vm.compilerRoots)
	vm.compilerRoots = append(vm.compilerRoots, vals...)
	return mark
}

func (vm *VM) unpin(mark int) {
	for i := mark; i < len(vm.compilerRoots); i++ {
		vm.compilerRoots[i] = Nil
	}
	vm.compilerRoots = vm.compilerRoots[:mark]
}

// PushRoot keeps v alive until the matching PopRoot. Front ends use it for
// objects under construction.
func (vm *VM) PushRoot(v Value) {
	vm.compilerRoots = append(vm.compilerRoots, v)
}

// PopRoot releases the most recent PushRoot.
func (vm *VM) PopRoot() {
	if n := len(vm.compilerRoots); n > 0 {
		vm.unpin(n - 1)
	}
}

// ---------------------------------------------------------------------------
// Modules and host definitions
// ---------------------------------------------------------------------------

func (vm *VM) ensureModule(name string) *Module {
	if r, ok := vm.modules[name]; ok {
		mod, _ := derefRef[*Module](vm.heap, r)
		return mod
	}
	nameRef := vm.intern(name)
	mark := vm.pin(FromRef(nameRef))
	mod := &Module{name: nameRef, vars: make(map[Ref]Value)}
	vm.modules[name] = vm.alloc(mod)
	vm.unpin(mark)
	return mod
}

func (vm *VM) lookupModule(name string) (*Module, bool) {
	r, ok := vm.modules[name]
	if !ok {
		return nil, false
	}
	return derefRef[*Module](vm.heap, r)
}

// DefineModule registers an empty module if name is not yet known.
func (vm *VM) DefineModule(name string) {
	vm.ensureModule(name)
}

// HasModule reports whether a module is registered.
func (vm *VM) HasModule(name string) bool {
	_, ok := vm.modules[name]
	return ok
}

// LastModule returns the name of the module whose body most recently
// executed END_MODULE, or "" if none has.
func (vm *VM) LastModule() string {
	mod, ok := derefRef[*Module](vm.heap, vm.lastModule)
	if !ok {
		return ""
	}
	return vm.nameOf(mod.name)
}

// setVar binds name to v in mod. v must be rooted by the caller.
func (vm *VM) setVar(mod *Module, name string, v Value) {
	mark := vm.pin(v)
	mod.vars[vm.intern(name)] = v
	vm.unpin(mark)
}

// DefineVariable binds name to v in module, creating the module if needed.
func (vm *VM) DefineVariable(module, name string, v Value) {
	vm.setVar(vm.ensureModule(module), name, v)
}

// GetVariable looks up a top-level variable.
func (vm *VM) GetVariable(module, name string) (Value, bool) {
	mod, ok := vm.lookupModule(module)
	if !ok {
		return Nil, false
	}
	r, ok := vm.strings[name]
	if !ok {
		return Nil, false
	}
	v, ok := mod.vars[r]
	return v, ok
}

// RemoveVariable deletes a top-level variable and reports whether it existed.
func (vm *VM) RemoveVariable(module, name string) bool {
	mod, ok := vm.lookupModule(module)
	if !ok {
		return false
	}
	r, ok := vm.strings[name]
	if !ok {
		return false
	}
	if _, ok := mod.vars[r]; !ok {
		return false
	}
	delete(mod.vars, r)
	return true
}

// newNative allocates a native function value. The result must be stored
// somewhere reachable before the next allocation.
func (vm *VM) newNative(name string, arity int, fn NativeFn) Value {
	return FromRef(vm.alloc(&NativeFunction{name: name, arity: arity, fn: fn}))
}

// DefineFunction registers a native function as a module variable.
// arity excludes the callee slot; use Variadic to accept any count.
func (vm *VM) DefineFunction(module, name string, arity int, fn NativeFn) {
	mod := vm.ensureModule(module)
	nameRef := vm.intern(name)
	mark := vm.pin(FromRef(nameRef))
	mod.vars[nameRef] = vm.newNative(name, arity, fn)
	vm.unpin(mark)
}

// NativeMethod describes one method of a host-defined class.
type NativeMethod struct {
	Arity int
	Fn    NativeFn
}

// DefineClass registers a class whose methods are natives. Methods are
// reachable both on the class itself (args[0] is the class) and on its
// instances (args[0] is the instance).
func (vm *VM) DefineClass(module, name string, methods map[string]NativeMethod) Value {
	mod := vm.ensureModule(module)
	class := vm.newClass(name)
	vm.setVar(mod, name, class)
	c, _ := deref[*Class](vm.heap, class)
	for method, m := range methods {
		vm.defineNativeMethod(c.methods, method, m.Arity, m.Fn)
	}
	return class
}

// defineNativeMethod installs a native into a reachable method table.
func (vm *VM) defineNativeMethod(table map[Ref]Value, name string, arity int, fn NativeFn) {
	nameRef := vm.intern(name)
	mark := vm.pin(FromRef(nameRef))
	table[nameRef] = vm.newNative(name, arity, fn)
	vm.unpin(mark)
}

// ---------------------------------------------------------------------------
// Execution entry points
// ---------------------------------------------------------------------------

// Interpret loads fn into module and runs it to completion on a fresh
// fiber. It returns the value the top-level function returned.
//
// The result is not rooted: once Interpret returns, the next allocation may
// collect it. Hosts that keep an object result must pass it to MakeHandle
// before touching the VM again.
func (vm *VM) Interpret(module string, fn *bytecode.Function) (Value, error) {
	if vm.running {
		return Nil, hostError(Busy, "interpret called while the vm is running")
	}
	if module == "" {
		module = MainModule
	}

	mark := len(vm.compilerRoots)
	closure, err := vm.load(module, fn)
	if err != nil {
		vm.unpin(mark)
		return Nil, err
	}

	f := vm.newFiber(Nil)
	vm.fiber = f
	vm.unpin(mark)
	f.state = FiberRunning
	f.push(closure)

	vm.log.Debugf("interpret module %s", module)
	if err := vm.callValue(closure, 0); err != nil {
		return Nil, err
	}
	result, err := vm.execute()
	vm.fiber = nil
	return result, err
}

// execute runs the interpreter loop with the reentrancy guard held.
func (vm *VM) execute() (Value, error) {
	vm.running = true
	defer func() { vm.running = false }()
	return vm.run()
}

// Stdout returns the writer PRINT writes to.
func (vm *VM) Stdout() io.Writer { return vm.stdout }

func (vm *VM) String() string {
	return fmt.Sprintf("VM(%s, %d objects)", vm.id, vm.heap.live)
}
