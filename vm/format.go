package vm

import (
	"strconv"
	"strings"
)

// maxFormatDepth bounds recursion through self-referencing collections.
const maxFormatDepth = 8

// Format renders v the way PRINT does.
func (vm *VM) Format(v Value) string {
	var sb strings.Builder
	vm.format(&sb, v, 0)
	return sb.String()
}

// FormatNumber renders a number in shortest round-trip form.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (vm *VM) format(sb *strings.Builder, v Value, depth int) {
	switch {
	case v.IsNumber():
		sb.WriteString(FormatNumber(v.Float64()))
		return
	case v == Nil:
		sb.WriteString("nil")
		return
	case v == True:
		sb.WriteString("true")
		return
	case v == False:
		sb.WriteString("false")
		return
	}

	obj, ok := vm.heap.Get(v.Ref())
	if !ok {
		sb.WriteString("<freed>")
		return
	}
	switch o := obj.(type) {
	case *String:
		sb.WriteString(o.chars)
	case *Function:
		vm.formatFunction(sb, o)
	case *Closure:
		vm.formatFunction(sb, o.function)
	case *NativeFunction:
		sb.WriteString("<native fn>")
	case *Upvalue:
		sb.WriteString("upvalue")
	case *Class:
		sb.WriteString(vm.nameOf(o.name))
	case *Instance:
		class, _ := derefRef[*Class](vm.heap, o.class)
		sb.WriteString(vm.nameOf(class.name))
		sb.WriteString(" instance")
	case *BoundMethod:
		vm.format(sb, o.method, depth)
	case *Module:
		sb.WriteString("<module ")
		sb.WriteString(vm.nameOf(o.name))
		sb.WriteString(">")
	case *Fiber:
		sb.WriteString("<fiber>")
	case *List:
		if depth >= maxFormatDepth {
			sb.WriteString("[...]")
			return
		}
		sb.WriteByte('[')
		for i, item := range o.items {
			if i > 0 {
				sb.WriteString(", ")
			}
			vm.format(sb, item, depth+1)
		}
		sb.WriteByte(']')
	case *Map:
		if depth >= maxFormatDepth {
			sb.WriteString("{...}")
			return
		}
		sb.WriteByte('{')
		for i, k := range o.keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			vm.format(sb, k, depth+1)
			sb.WriteString(": ")
			vm.format(sb, o.entries[k], depth+1)
		}
		sb.WriteByte('}')
	}
}

func (vm *VM) formatFunction(sb *strings.Builder, fn *Function) {
	if fn.name.IsZero() {
		sb.WriteString("<script>")
		return
	}
	sb.WriteString("<fn ")
	sb.WriteString(vm.nameOf(fn.name))
	sb.WriteByte('>')
}

// TypeName returns a short name for v's type.
func (vm *VM) TypeName(v Value) string {
	switch {
	case v.IsNumber():
		return "number"
	case v.IsNil():
		return "nil"
	case v.IsBool():
		return "bool"
	}
	obj, ok := vm.heap.Get(v.Ref())
	if !ok {
		return "freed"
	}
	return obj.Kind().String()
}
