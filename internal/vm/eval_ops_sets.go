package vm

func (vm *VM) opSet(op Op) {
	switch op {
	case OpNewSet:
		vm.push(vm.newSet())

	case OpUnion:
		b := vm.setOf(vm.pop())
		if b == nil {
			return
		}
		a := vm.setOf(vm.pop())
		if a == nil {
			return
		}
		members := append(append([]Value(nil), a.members...), b.members...)
		vm.push(vm.newSet(members...))

	case OpInclude, OpExclude:
		m := vm.pop()
		s := vm.setOf(vm.pop())
		if s == nil {
			return
		}
		if op == OpInclude {
			vm.setInclude(s, m)
		} else {
			vm.setExclude(s, m)
		}

	case OpInSet:
		m := vm.pop()
		s := vm.setOf(vm.pop())
		if s == nil {
			return
		}
		vm.push(BoolValue(vm.setIndex(s, m) >= 0))

	case OpSetSize:
		s := vm.setOf(vm.pop())
		if s == nil {
			return
		}
		vm.push(intResult(vm, len(s.members)))

	case OpSetMemb:
		i, ok := vm.popInt()
		if !ok {
			return
		}
		s := vm.setOf(vm.pop())
		if s == nil {
			return
		}
		if i < 1 || int(i) > len(s.members) {
			vm.throw(ExcIndexRange, "set member %d out of range 1..%d", i, len(s.members))
			return
		}
		vm.push(s.members[i-1])

	case OpContSize:
		trans, ok := vm.popTrans()
		if !ok {
			return
		}
		c := vm.object(vm.pop())
		if c == nil {
			return
		}
		vm.push(intResult(vm, len(vm.contents(c.id, trans))))

	case OpContMemb:
		trans, ok := vm.popTrans()
		if !ok {
			return
		}
		i, ok := vm.popInt()
		if !ok {
			return
		}
		c := vm.object(vm.pop())
		if c == nil {
			return
		}
		members := vm.contents(c.id, trans)
		if i < 1 || int(i) > len(members) {
			vm.throw(ExcIndexRange, "container member %d out of range 1..%d", i, len(members))
			return
		}
		vm.push(ObjValue(members[i-1]))
	}
}
