package vm

// Integer arithmetic wraps in 32-bit two's complement. Either operand being
// a BigNumber promotes the operation.

func (vm *VM) opArith(op Op) {
	b := vm.pop()
	a := vm.pop()
	if a.Kind == KindInt && b.Kind == KindInt {
		if r, ok := vm.intArith(op, a.Int(), b.Int()); ok {
			vm.push(IntValue(r))
		}
		return
	}
	if op == OpPlus {
		if vm.isString(a) {
			vm.push(vm.newString(vm.displayString(a) + vm.displayString(b)))
			return
		}
		if a.Kind == KindList || vm.objectOf(a, ListMeta.Desc.Base) != nil {
			l, _ := vm.listOf(a)
			vm.push(vm.newList(append(append([]Value(nil), l...), b)))
			return
		}
	}
	if vm.isBig(a) || vm.isBig(b) {
		vm.push(vm.bigArith(op, a, b))
		return
	}
	vm.throw(ExcBadType, "%s: cannot combine %v and %v", op, a.Kind, b.Kind)
}

func (vm *VM) intArith(op Op, x, y int32) (int32, bool) {
	switch op {
	case OpPlus, OpIncr:
		return x + y, true
	case OpMinus, OpDecr:
		return x - y, true
	case OpMult:
		return x * y, true
	case OpDiv:
		if y == 0 {
			vm.throw(ExcDivideByZero, "%d / 0", x)
			return 0, false
		}
		// MinInt32 / -1 wraps to MinInt32.
		return x / y, true
	}
	panic(vm.eb.unknownOp(int32(op)))
}

func (vm *VM) opNegate() {
	a := vm.pop()
	switch {
	case a.Kind == KindInt:
		vm.push(IntValue(-a.Int()))
	case vm.isBig(a):
		n, _ := vm.bigOf(a)
		vm.push(vm.newBig(n.Negated()))
	default:
		vm.throw(ExcBadType, "UMINUS: number required, got %v", a.Kind)
	}
}

// isString reports whether v is a string constant or string object.
func (vm *VM) isString(v Value) bool {
	return v.Kind == KindSString || vm.objectOf(v, StringMeta.Desc.Base) != nil
}
