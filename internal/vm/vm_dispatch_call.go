package vm

import (
	"fortio.org/safecast"
)

// opObject executes the object-system and call opcodes.
func (vm *VM) opObject(op Op) {
	switch op {
	case OpNew:
		idx, ok := vm.popInt()
		if !ok {
			return
		}
		argc, ok := vm.popArgc()
		if !ok {
			return
		}
		if idx < 0 || int(idx) >= len(vm.metas) {
			vm.popN(argc)
			vm.throw(ExcBadValue, "NEW: metaclass index %d not loaded", idx)
			return
		}
		m := vm.metas[idx]
		id := m.Construct(vm, argc)
		if id == InvalidObj {
			if vm.pending == nil {
				vm.throw(ExcBadValue, "%s cannot be constructed", m.Descriptor())
			}
			return
		}
		vm.push(ObjValue(id))

	case OpGetProp:
		prop, ok := vm.popProp()
		if !ok {
			return
		}
		recv := vm.pop()
		vm.getProp(recv, prop, 0)
		if vm.pending == nil {
			vm.push(vm.r0)
		}

	case OpSetProp:
		v := vm.pop()
		prop, ok := vm.popProp()
		if !ok {
			return
		}
		o := vm.object(vm.pop())
		if o == nil {
			return
		}
		vm.setPropValue(o, prop, v)

	case OpPropCall:
		argc, ok := vm.popArgc()
		if !ok {
			return
		}
		prop, ok := vm.popProp()
		if !ok {
			return
		}
		recv := vm.pop()
		vm.getProp(recv, prop, argc)

	case OpCall, OpCallBif:
		argc, ok := vm.popArgc()
		if !ok {
			return
		}
		fn := vm.pop()
		if op == OpCallBif && fn.Kind != KindBifPtr {
			vm.popN(argc)
			vm.throw(ExcBadType, "CALLBIF: built-in function pointer required, got %v", fn.Kind)
			return
		}
		vm.callValue(fn, argc)

	case OpGetR0:
		vm.push(vm.r0)

	case OpRetVal:
		vm.r0 = vm.pop()
		vm.returning = true

	case OpPushHandler:
		target, ok := vm.popInt()
		if !ok {
			return
		}
		pc, err := safecast.Conv[uint32](target)
		if err != nil || pc >= vm.codeWords {
			panic(vm.eb.outsideProgram(uint32(target))) //nolint:gosec // reported as given
		}
		vm.handlers = append(vm.handlers, handler{target: pc, sp: vm.sp, fp: vm.fp})

	case OpPopHandler:
		if len(vm.handlers) <= vm.handlerBase {
			panic(vm.eb.badFrame("POPHANDLER without a handler"))
		}
		vm.handlers = vm.handlers[:len(vm.handlers)-1]

	case OpThrow:
		vm.throwValue(vm.pop())

	case OpFail:
		vm.failFlag = true
	}
}

// popArgc pops an argument count, which must not exceed the stack below it.
func (vm *VM) popArgc() (int, bool) {
	n, ok := vm.popInt()
	if !ok {
		return 0, false
	}
	argc, err := safecast.Conv[int](n)
	if err != nil || argc < 0 {
		vm.throw(ExcBadValue, "negative argument count %d", n)
		return 0, false
	}
	vm.need(argc, 0)
	return argc, true
}
