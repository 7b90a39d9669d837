package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/fox/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Loading code objects
// ---------------------------------------------------------------------------

// load validates proto and materializes it, and every nested function, as
// heap objects belonging to module. It returns the top-level closure. All
// objects created stay pinned; the caller unpins once the closure is
// reachable from a root.
func (vm *VM) load(module string, proto *bytecode.Function) (Value, error) {
	if proto == nil {
		return Nil, &CompileError{Module: module, Err: errors.New("no code object")}
	}
	if err := proto.Validate(); err != nil {
		return Nil, &CompileError{Module: module, Err: err}
	}
	if proto.UpvalueCount != 0 {
		return Nil, &CompileError{Module: module, Err: fmt.Errorf("top-level function %s captures %d upvalues", proto.DisplayName(), proto.UpvalueCount)}
	}

	vm.ensureModule(module)
	fnVal := vm.loadFunction(vm.modules[module], proto)
	function, _ := deref[*Function](vm.heap, fnVal)

	closure := FromRef(vm.alloc(&Closure{fn: fnVal.Ref(), function: function}))
	vm.PushRoot(closure)
	vm.log.Debugf("loaded %s into module %s (%d code bytes)", proto.DisplayName(), module, len(proto.Code))
	return closure, nil
}

func (vm *VM) loadFunction(module Ref, proto *bytecode.Function) Value {
	fn := &Function{
		arity:        proto.Arity,
		upvalueCount: proto.UpvalueCount,
		constants:    make([]Value, len(proto.Constants)),
		module:       module,
		proto:        proto,
	}
	if proto.Name != "" {
		fn.name = vm.intern(proto.Name)
		vm.PushRoot(FromRef(fn.name))
	}
	for i, c := range proto.Constants {
		switch c.Kind {
		case bytecode.ConstNil:
			fn.constants[i] = Nil
		case bytecode.ConstBool:
			fn.constants[i] = FromBool(c.Bool)
		case bytecode.ConstNumber:
			fn.constants[i] = FromFloat64(c.Number)
		case bytecode.ConstString:
			v := FromRef(vm.intern(c.String))
			vm.PushRoot(v)
			fn.constants[i] = v
		case bytecode.ConstFunction:
			fn.constants[i] = vm.loadFunction(module, c.Function)
		}
	}
	v := FromRef(vm.alloc(fn))
	vm.PushRoot(v)
	return v
}

// Load materializes a code object into module without running it and
// returns a handle to its top-level closure.
func (vm *VM) Load(module string, proto *bytecode.Function) (*Handle, error) {
	if module == "" {
		module = MainModule
	}
	mark := len(vm.compilerRoots)
	closure, err := vm.load(module, proto)
	if err != nil {
		vm.unpin(mark)
		return nil, err
	}
	h := vm.MakeHandle(closure)
	vm.unpin(mark)
	return h, nil
}
