package vm

import "strings"

// valuesEqual is the value equality behind EQ, NE and collection lookups.
// Strings compare by content, numbers across int and BigNumber, and objects
// through their metaclass.
func (vm *VM) valuesEqual(a, b Value) bool {
	if a.Same(b) {
		return true
	}
	switch {
	case a.Kind == KindInt && b.Kind == KindInt:
		return false
	case a.Kind == KindObj:
		if o := vm.objects.Lookup(a.Obj()); o != nil {
			return o.Meta.Equals(vm, o, b)
		}
		return false
	case b.Kind == KindObj:
		if o := vm.objects.Lookup(b.Obj()); o != nil {
			return o.Meta.Equals(vm, o, a)
		}
		return false
	case a.Kind == KindSString && b.Kind == KindSString:
		x, _ := vm.stringOf(a)
		y, _ := vm.stringOf(b)
		return x == y
	case a.Kind == KindList && b.Kind == KindList:
		x, _ := vm.listOf(a)
		y, _ := vm.listOf(b)
		return vm.listsEqual(x, y)
	}
	return false
}

// compareValues orders two integers, numbers or strings. Incomparable
// operands throw ExcBadType.
func (vm *VM) compareValues(a, b Value) (int, bool) {
	if a.Kind == KindInt && b.Kind == KindInt {
		x, y := a.Int(), b.Int()
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	if vm.isBig(a) || vm.isBig(b) {
		x, ok1 := vm.bigOf(a)
		y, ok2 := vm.bigOf(b)
		if ok1 && ok2 {
			return x.Cmp(y), true
		}
	}
	if vm.isString(a) && vm.isString(b) {
		x, _ := vm.stringOf(a)
		y, _ := vm.stringOf(b)
		return strings.Compare(x, y), true
	}
	if a.Kind == KindObj {
		if o := vm.objects.Lookup(a.Obj()); o != nil {
			if c, ok := o.Meta.Compare(vm, o, b); ok {
				return c, true
			}
		}
	}
	vm.throw(ExcBadType, "cannot compare %v and %v", a.Kind, b.Kind)
	return 0, false
}

func (vm *VM) opEquality(op Op) {
	b := vm.pop()
	a := vm.pop()
	eq := vm.valuesEqual(a, b)
	vm.push(BoolValue(eq == (op == OpEq)))
}

func (vm *VM) opRelational(op Op) {
	b := vm.pop()
	a := vm.pop()
	c, ok := vm.compareValues(a, b)
	if !ok {
		return
	}
	var r bool
	switch op {
	case OpLt:
		r = c < 0
	case OpLe:
		r = c <= 0
	case OpGt:
		r = c > 0
	case OpGe:
		r = c >= 0
	}
	vm.push(BoolValue(r))
}

// opStringEq compares two strings, STREQ after normalisation and case
// folding, STREXACT byte for byte.
func (vm *VM) opStringEq(op Op) {
	b, ok := vm.popString()
	if !ok {
		return
	}
	a, ok := vm.popString()
	if !ok {
		return
	}
	if op == OpStrExact {
		vm.push(BoolValue(a == b))
		return
	}
	vm.push(BoolValue(equalFold(a, b)))
}

// opBetween pushes lo <= v <= hi. Bounds given in either order work.
func (vm *VM) opBetween() {
	hi := vm.pop()
	lo := vm.pop()
	v := vm.pop()
	c1, ok := vm.compareValues(lo, hi)
	if !ok {
		return
	}
	if c1 > 0 {
		lo, hi = hi, lo
	}
	c1, ok = vm.compareValues(v, lo)
	if !ok {
		return
	}
	c2, ok := vm.compareValues(v, hi)
	if !ok {
		return
	}
	vm.push(BoolValue(c1 >= 0 && c2 <= 0))
}
