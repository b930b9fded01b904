package vm

// Structured control flow and loop aggregates.
//
// A counted loop keeps its limit and index on the stack:
//
//	lim idx LOOP body LOOPEND
//
// LOOP skips to LOOPEND once idx exceeds lim; LOOPEND pops both and, while
// idx < lim, pushes lim and idx+1 and jumps back to LOOP.

func (vm *VM) opControl(op Op) {
	switch op {
	case OpIf:
		if !vm.pop().Truthy() {
			vm.jump(scanIfFalse)
		}
	case OpElse:
		vm.jump(scanElse)
	case OpEndIf, OpDepend:
	case OpLoop:
		idx, lim := vm.peek(0), vm.peek(1)
		if idx.Kind != KindInt || lim.Kind != KindInt {
			vm.throw(ExcBadType, "LOOP: integer bounds required, got %v and %v", lim.Kind, idx.Kind)
			return
		}
		if idx.Int() > lim.Int() {
			vm.jump(scanLoopExit)
		}
	case OpLoopNext:
		vm.jump(scanLoopExit)
	case OpLoopEnd:
		idx := vm.pop()
		lim := vm.pop()
		if idx.Kind != KindInt || lim.Kind != KindInt {
			vm.throw(ExcBadType, "LOOPEND: integer bounds required, got %v and %v", lim.Kind, idx.Kind)
			return
		}
		if idx.Int() < lim.Int() {
			vm.push(lim)
			vm.push(IntValue(idx.Int() + 1))
			vm.jump(scanLoopBack)
		}
	case OpDepCase, OpDepElse:
		// Reached by falling out of the previous case body.
		vm.jump(scanDepEnd)
	case OpDepExec:
		if !vm.pop().Truthy() {
			vm.jump(scanDepNext)
		}
	case OpEndDep:
		vm.pop()
	case OpReturn:
		vm.returning = true
	}
}

// opAggregate folds the loop's current value into the accumulator that sits
// below the loop bounds.
func (vm *VM) opAggregate(op Op) {
	if op == OpCount {
		acc := vm.peek(2)
		if acc.IsNil() {
			acc = IntValue(0)
		}
		if acc.Kind != KindInt {
			vm.throw(ExcBadType, "COUNT: integer accumulator required, got %v", acc.Kind)
			return
		}
		vm.stack[vm.sp-3] = IntValue(acc.Int() + 1)
		return
	}
	val := vm.pop()
	acc := vm.peek(2)
	if acc.IsNil() {
		vm.stack[vm.sp-3] = val
		return
	}
	switch op {
	case OpSum:
		if acc.Kind == KindInt && val.Kind == KindInt {
			vm.stack[vm.sp-3] = IntValue(acc.Int() + val.Int())
			return
		}
		r := vm.bigArith(OpPlus, acc, val)
		if vm.pending == nil {
			vm.stack[vm.sp-3] = r
		}
	case OpMin, OpMax:
		c, ok := vm.compareValues(val, acc)
		if !ok {
			return
		}
		if (op == OpMin && c < 0) || (op == OpMax && c > 0) {
			vm.stack[vm.sp-3] = val
		}
	}
}
