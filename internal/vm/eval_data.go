package vm

// Typed pushes take their operand from the stack, since a code word only
// carries a 28-bit literal and no type.

func (vm *VM) opTypedPush(op Op) {
	switch op {
	case OpPushNil:
		vm.push(NilValue)
		return
	case OpPushTrue:
		vm.push(TrueValue)
		return
	case OpPushBif:
		fn, ok := vm.popInt()
		if !ok {
			return
		}
		set, ok := vm.popInt()
		if !ok {
			return
		}
		if set < 0 || fn < 0 || int(set) >= len(vm.funcSets) || int(fn) >= len(vm.funcSets[set].Funcs) {
			panic(vm.eb.badBif(uint16(set), uint16(fn))) //nolint:gosec // reported as given
		}
		vm.push(BifValue(uint16(set), uint16(fn))) //nolint:gosec // bounds checked above
		return
	}

	n, ok := vm.popInt()
	if !ok {
		return
	}
	if n < 0 {
		vm.throw(ExcBadValue, "%s: negative operand %d", op, n)
		return
	}
	u := uint32(n)
	switch op {
	case OpPushObj:
		vm.push(ObjValue(ObjID(u)))
	case OpPushProp:
		if u > 0xffff {
			vm.throw(ExcBadValue, "PUSHPROP: property id %d out of range", u)
			return
		}
		vm.push(PropValue(PropID(u)))
	case OpPushStr:
		if _, ok := vm.constString(u); !ok {
			panic(vm.eb.badPoolOffset(u))
		}
		vm.push(SStringValue(u))
	case OpPushList:
		if _, ok := vm.constList(u); !ok {
			panic(vm.eb.badPoolOffset(u))
		}
		vm.push(ListValue(u))
	case OpPushFunc:
		if u >= vm.codeWords {
			panic(vm.eb.badFunction(u))
		}
		vm.push(FuncValue(u))
	case OpPushEnum:
		vm.push(EnumValue(u))
	}
}

func (vm *VM) opFrame(op Op) {
	switch op {
	case OpFrame:
		n, ok := vm.popInt()
		if !ok {
			return
		}
		vm.openFrame(int(n))
	case OpEndFrame:
		vm.closeFrame()
	case OpGetLocal:
		below, slot := vm.popLocalRef()
		vm.push(vm.getLocal(below, slot))
	case OpSetLocal:
		below, slot := vm.popLocalRef()
		v := vm.pop()
		vm.setLocal(below, slot, v)
	}
}

// popLocalRef pops "var below". Malformed operands are integrity errors.
func (vm *VM) popLocalRef() (below, slot int) {
	b := vm.pop()
	s := vm.pop()
	if b.Kind != KindInt || s.Kind != KindInt {
		panic(vm.eb.badFrame("local reference operands must be integers"))
	}
	return int(b.Int()), int(s.Int())
}
