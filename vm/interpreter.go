package vm

import (
	"fmt"

	"github.com/chazu/fox/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Runtime errors
// ---------------------------------------------------------------------------

// runtimeError builds a RuntimeError, captures the trace and resets
// execution state.
func (vm *VM) runtimeError(kind RuntimeErrorKind, format string, args ...any) error {
	return vm.fail(&RuntimeError{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// fail attaches the active call trace to err, innermost frame first, then
// discards the stacks of the running fiber and every fiber waiting on it.
func (vm *VM) fail(err *RuntimeError) error {
	for f := vm.fiber; f != nil; f = f.caller {
		for i := len(f.frames) - 1; i >= 0; i-- {
			frame := &f.frames[i]
			err.Trace = append(err.Trace, TraceEntry{
				Line:     frame.line(),
				Function: vm.nameOf(frame.fn.name),
			})
		}
	}
	vm.log.Debugf("runtime error: %s", err.Error())

	for f := vm.fiber; f != nil; {
		next := f.caller
		f.reset()
		f.state = FiberDone
		f = next
	}
	vm.fiber = nil
	return err
}

// ---------------------------------------------------------------------------
// Main loop
// ---------------------------------------------------------------------------

// run executes until the fiber that has no caller returns from its last
// frame. The result is left in that fiber's slot 0 and returned.
func (vm *VM) run() (Value, error) {
	for {
		f := vm.fiber
		frame := f.frame()
		code := frame.fn.proto.Code

		if vm.config.Trace {
			text, _ := frame.fn.proto.DisassembleInstruction(frame.ip)
			vm.log.Debugf("%s [sp=%d]", text, f.sp)
		}

		op := bytecode.Opcode(code[frame.ip])
		frame.ip++

		readByte := func() int {
			b := code[frame.ip]
			frame.ip++
			return int(b)
		}
		readShort := func() int {
			s := int(code[frame.ip])<<8 | int(code[frame.ip+1])
			frame.ip += 2
			return s
		}
		readConstant := func() Value {
			return frame.fn.constants[readShort()]
		}
		readName := func() Ref {
			return readConstant().Ref()
		}

		switch op {
		case bytecode.OpConstant:
			f.push(readConstant())
		case bytecode.OpNil:
			f.push(Nil)
		case bytecode.OpTrue:
			f.push(True)
		case bytecode.OpFalse:
			f.push(False)
		case bytecode.OpPop:
			f.pop()

		// --- Variables ---

		case bytecode.OpGetLocal:
			f.push(f.stack[frame.base+readByte()])

		case bytecode.OpSetLocal:
			f.stack[frame.base+readByte()] = f.peek(0)

		case bytecode.OpGetGlobal:
			name := readName()
			v, ok := vm.global(frame.fn, name)
			if !ok {
				return Nil, vm.runtimeError(UndefinedVariable, "Undefined variable '%s'.", vm.nameOf(name))
			}
			f.push(v)

		case bytecode.OpDefineGlobal:
			name := readName()
			mod, _ := derefRef[*Module](vm.heap, frame.fn.module)
			mod.vars[name] = f.peek(0)
			f.pop()

		case bytecode.OpSetGlobal:
			name := readName()
			mod, _ := derefRef[*Module](vm.heap, frame.fn.module)
			if _, ok := mod.vars[name]; !ok {
				return Nil, vm.runtimeError(UndefinedVariable, "Undefined variable '%s'.", vm.nameOf(name))
			}
			mod.vars[name] = f.peek(0)

		case bytecode.OpGetUpvalue:
			uv, _ := derefRef[*Upvalue](vm.heap, frame.cl.upvalues[readByte()])
			f.push(uv.get())

		case bytecode.OpSetUpvalue:
			uv, _ := derefRef[*Upvalue](vm.heap, frame.cl.upvalues[readByte()])
			uv.set(f.peek(0))

		// --- Properties ---

		case bytecode.OpGetProperty:
			if err := vm.getProperty(readName()); err != nil {
				return Nil, err
			}

		case bytecode.OpSetProperty:
			name := readName()
			inst, ok := deref[*Instance](vm.heap, f.peek(1))
			if !ok {
				return Nil, vm.runtimeError(TypeMismatch, "Only instances have fields.")
			}
			inst.fields[name] = f.peek(0)
			v := f.pop()
			f.pop()
			f.push(v)

		case bytecode.OpGetSuper:
			name := readName()
			super, ok := deref[*Class](vm.heap, f.peek(0))
			if !ok {
				return Nil, vm.runtimeError(BadSuperclass, "Superclass must be a class.")
			}
			method, ok := super.methods[name]
			if !ok {
				return Nil, vm.runtimeError(UndefinedProperty, "Undefined property '%s'.", vm.nameOf(name))
			}
			bound := vm.alloc(&BoundMethod{receiver: f.peek(1), method: method})
			f.pop()
			f.pop()
			f.push(FromRef(bound))

		// --- Operators ---

		case bytecode.OpEqual:
			b := f.pop()
			a := f.pop()
			f.push(FromBool(Equal(a, b)))

		case bytecode.OpGreater, bytecode.OpLess, bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide:
			if err := vm.arithmetic(op); err != nil {
				return Nil, err
			}

		case bytecode.OpAdd:
			if err := vm.add(); err != nil {
				return Nil, err
			}

		case bytecode.OpNot:
			f.push(FromBool(f.pop().IsFalsy()))

		case bytecode.OpNegate:
			if !f.peek(0).IsNumber() {
				return Nil, vm.runtimeError(TypeMismatch, "Operand must be a number.")
			}
			f.push(FromFloat64(-f.pop().Float64()))

		case bytecode.OpIs:
			class := f.peek(0)
			if _, ok := deref[*Class](vm.heap, class); !ok {
				return Nil, vm.runtimeError(TypeMismatch, "Right operand of 'is' must be a class.")
			}
			result := false
			if inst, ok := deref[*Instance](vm.heap, f.peek(1)); ok {
				result = vm.isSubclass(inst.class, class.Ref())
			}
			f.pop()
			f.pop()
			f.push(FromBool(result))

		// --- Control flow ---

		case bytecode.OpJump:
			offset := readShort()
			frame.ip += offset

		case bytecode.OpJumpIfFalse:
			offset := readShort()
			if f.peek(0).IsFalsy() {
				frame.ip += offset
			}

		case bytecode.OpLoop:
			offset := readShort()
			frame.ip -= offset

		// --- Calls and closures ---

		case bytecode.OpCall:
			argc := readByte()
			if err := vm.callValue(f.peek(argc), argc); err != nil {
				return Nil, err
			}

		case bytecode.OpInvoke:
			name := readName()
			argc := readByte()
			if err := vm.invoke(name, argc); err != nil {
				return Nil, err
			}

		case bytecode.OpSuperInvoke:
			name := readName()
			argc := readByte()
			super, ok := deref[*Class](vm.heap, f.peek(0))
			if !ok {
				return Nil, vm.runtimeError(BadSuperclass, "Superclass must be a class.")
			}
			f.pop()
			if err := vm.invokeFromClass(super, name, argc); err != nil {
				return Nil, err
			}

		case bytecode.OpClosure:
			fnVal := readConstant()
			function, _ := deref[*Function](vm.heap, fnVal)
			closure := &Closure{
				fn:       fnVal.Ref(),
				function: function,
				upvalues: make([]Ref, function.upvalueCount),
			}
			f.push(FromRef(vm.alloc(closure)))
			for i := range closure.upvalues {
				isLocal := readByte()
				index := readByte()
				if isLocal == 1 {
					closure.upvalues[i] = vm.captureUpvalue(f, frame.base+index)
				} else {
					closure.upvalues[i] = frame.cl.upvalues[index]
				}
			}

		case bytecode.OpCloseUpvalue:
			f.closeUpvalues(f.sp - 1)
			f.pop()

		case bytecode.OpReturn:
			result := f.pop()
			f.closeUpvalues(frame.base)
			base := frame.base
			f.frames = f.frames[:len(f.frames)-1]
			for i := base; i < f.sp; i++ {
				f.stack[i] = Nil
			}
			f.sp = base

			if len(f.frames) > 0 {
				f.push(result)
				continue
			}

			f.state = FiberDone
			if f.caller == nil {
				f.push(result)
				return result, nil
			}
			caller := f.caller
			f.caller = nil
			vm.fiber = caller
			caller.state = FiberRunning
			caller.push(result)

		// --- Classes ---

		case bytecode.OpClass:
			name := readName()
			ref := vm.alloc(&Class{name: name, methods: make(map[Ref]Value)})
			f.push(FromRef(ref))

		case bytecode.OpInherit:
			super, ok := deref[*Class](vm.heap, f.peek(1))
			if !ok {
				return Nil, vm.runtimeError(BadSuperclass, "Superclass must be a class.")
			}
			sub, _ := deref[*Class](vm.heap, f.peek(0))
			inherit(sub, f.peek(1).Ref(), super)
			f.pop()

		case bytecode.OpMethod, bytecode.OpOperator:
			name := readName()
			class, ok := deref[*Class](vm.heap, f.peek(1))
			if !ok {
				return Nil, vm.runtimeError(TypeMismatch, "Methods can only be defined on classes.")
			}
			class.methods[name] = f.peek(0)
			f.pop()

		// --- Collections ---

		case bytecode.OpList:
			n := readByte()
			items := make([]Value, n)
			copy(items, f.stack[f.sp-n:f.sp])
			ref := vm.alloc(&List{items: items})
			f.sp -= n
			f.push(FromRef(ref))

		case bytecode.OpMap:
			n := readByte()
			m := newMap()
			for i := f.sp - 2*n; i < f.sp; i += 2 {
				m.set(f.stack[i], f.stack[i+1])
			}
			ref := vm.alloc(m)
			f.sp -= 2 * n
			f.push(FromRef(ref))

		case bytecode.OpSubscript:
			v, err := vm.subscript(f.peek(1), f.peek(0))
			if err != nil {
				return Nil, err
			}
			f.pop()
			f.pop()
			f.push(v)

		case bytecode.OpSubscriptAssign:
			if err := vm.subscriptAssign(f.peek(2), f.peek(1), f.peek(0)); err != nil {
				return Nil, err
			}
			v := f.pop()
			f.pop()
			f.pop()
			f.push(v)

		case bytecode.OpSlice:
			if err := vm.slice(); err != nil {
				return Nil, err
			}

		// --- Modules and output ---

		case bytecode.OpImport:
			name := readName()
			ref, ok := vm.modules[vm.nameOf(name)]
			if !ok {
				return Nil, vm.runtimeError(ModuleNotFound, "Module '%s' not found.", vm.nameOf(name))
			}
			f.push(FromRef(ref))

		case bytecode.OpEndModule:
			vm.lastModule = frame.fn.module
			f.push(Nil)

		case bytecode.OpPrint:
			fmt.Fprintln(vm.stdout, vm.Format(f.pop()))

		case bytecode.OpPrintRepl:
			if v := f.pop(); !v.IsNil() {
				fmt.Fprintln(vm.stdout, vm.Format(v))
			}

		default:
			return Nil, vm.runtimeError(TypeMismatch, "Unknown opcode 0x%02x.", byte(op))
		}
	}
}

// global resolves a global in fn's module, then in the core module.
func (vm *VM) global(fn *Function, name Ref) (Value, bool) {
	if mod, ok := derefRef[*Module](vm.heap, fn.module); ok {
		if v, ok := mod.vars[name]; ok {
			return v, true
		}
	}
	v, ok := vm.core.vars[name]
	return v, ok
}

// getProperty replaces the receiver on top of the stack with its property.
func (vm *VM) getProperty(name Ref) error {
	f := vm.fiber
	receiver := f.peek(0)
	if receiver.IsObject() {
		obj, _ := vm.heap.Get(receiver.Ref())
		switch o := obj.(type) {
		case *Instance:
			if v, ok := o.fields[name]; ok {
				f.pop()
				f.push(v)
				return nil
			}
			class, _ := derefRef[*Class](vm.heap, o.class)
			return vm.bindMethod(class, name)

		case *Module:
			v, ok := o.vars[name]
			if !ok {
				return vm.runtimeError(UndefinedProperty, "Undefined property '%s'.", vm.nameOf(name))
			}
			f.pop()
			f.push(v)
			return nil

		case *Class:
			v, ok := o.methods[name]
			if !ok {
				return vm.runtimeError(UndefinedProperty, "Undefined property '%s'.", vm.nameOf(name))
			}
			f.pop()
			f.push(v)
			return nil
		}
	}
	return vm.runtimeError(TypeMismatch, "Only instances have properties.")
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

var operatorNames = map[bytecode.Opcode]string{
	bytecode.OpAdd:      "+",
	bytecode.OpSubtract: "-",
	bytecode.OpMultiply: "*",
	bytecode.OpDivide:   "/",
	bytecode.OpGreater:  ">",
	bytecode.OpLess:     "<",
}

func (vm *VM) arithmetic(op bytecode.Opcode) error {
	f := vm.fiber
	if !f.peek(0).IsNumber() || !f.peek(1).IsNumber() {
		if handled, err := vm.invokeOperator(operatorNames[op]); handled || err != nil {
			return err
		}
		return vm.runtimeError(TypeMismatch, "Operands must be numbers.")
	}
	b := f.pop().Float64()
	a := f.pop().Float64()
	switch op {
	case bytecode.OpGreater:
		f.push(FromBool(a > b))
	case bytecode.OpLess:
		f.push(FromBool(a < b))
	case bytecode.OpSubtract:
		f.push(FromFloat64(a - b))
	case bytecode.OpMultiply:
		f.push(FromFloat64(a * b))
	case bytecode.OpDivide:
		f.push(FromFloat64(a / b))
	}
	return nil
}

func (vm *VM) add() error {
	f := vm.fiber
	a, b := f.peek(1), f.peek(0)
	if a.IsNumber() && b.IsNumber() {
		f.pop()
		f.pop()
		f.push(FromFloat64(a.Float64() + b.Float64()))
		return nil
	}
	if as, ok := vm.stringOf(a); ok {
		if bs, ok := vm.stringOf(b); ok {
			// Both operands stay on the stack while the result is interned.
			r := vm.intern(as + bs)
			f.pop()
			f.pop()
			f.push(FromRef(r))
			return nil
		}
	}
	if handled, err := vm.invokeOperator("+"); handled || err != nil {
		return err
	}
	return vm.runtimeError(TypeMismatch, "Operands must be two numbers or two strings.")
}
