package vm

import (
	"errors"
	"fmt"

	"storyvm/internal/vm/bignum"
)

// BigNumberMeta holds arbitrary-precision integers.
var BigNumberMeta = &bigNumberMeta{BaseMetaclass{Desc: Descriptor{Base: "bignumber", Version: 30001}}}

type bigNumberMeta struct{ BaseMetaclass }

// Intrinsic methods of BigNumbers.
const (
	BigToInteger PropID = MethodBase + iota
	BigAbs
	BigAnd
	BigOr
	BigXor
	BigShl
	BigShr
)

// BigTryParse is the static method bignumber.tryParse(str), which returns nil
// instead of throwing when str is not a number.
const BigTryParse PropID = MethodBase

func bigExt(o *Object) bignum.BigInt { return o.Ext.(bignum.BigInt) }

// Construct accepts an integer or a decimal string.
func (m *bigNumberMeta) Construct(vm *VM, argc int) ObjID {
	if !vm.checkArgc("bignumber", argc, 1, 0) {
		return InvalidObj
	}
	arg := vm.pop()
	var n bignum.BigInt
	if arg.Kind == KindInt {
		n = bignum.IntFromInt64(int64(arg.Int()))
	} else if s, ok := vm.stringOf(arg); ok {
		var err error
		if n, err = bignum.ParseInt(s); err != nil {
			vm.throw(ExcBadValue, "bignumber %q: %v", s, err)
			return InvalidObj
		}
	} else {
		vm.throw(ExcBadType, "bignumber needs an integer or string, got %v", arg)
		return InvalidObj
	}
	id, _ := vm.newObject(m, n)
	return id
}

func (m *bigNumberMeta) CallStaticProp(vm *VM, prop PropID, argc int) (Value, bool) {
	if prop != BigTryParse {
		return Value{}, false
	}
	if !vm.checkArgc("tryParse", argc, 1, 0) {
		return NilValue, true
	}
	s, ok := vm.popString()
	if !ok {
		return NilValue, true
	}
	n, err := bignum.ParseInt(s)
	if err != nil {
		return NilValue, true
	}
	return vm.newBig(n), true
}

func (m *bigNumberMeta) LoadImage(_ *VM, o *Object, data []byte) error {
	n, err := bignum.FromBytes(data)
	if err != nil {
		return fmt.Errorf("bignumber %d: %w", o.id, err)
	}
	o.Ext = n
	return nil
}

func (m *bigNumberMeta) Save(_ *VM, o *Object) ([]byte, error) { return bigExt(o).Bytes(), nil }

func (m *bigNumberMeta) Restore(vm *VM, o *Object, data []byte) error {
	return m.LoadImage(vm, o, data)
}

func (m *bigNumberMeta) CastToString(_ *VM, o *Object) (string, bool) {
	return bignum.FormatInt(bigExt(o)), true
}

func (m *bigNumberMeta) Equals(vm *VM, o *Object, other Value) bool {
	n, ok := vm.bigOf(other)
	return ok && bigExt(o).Cmp(n) == 0
}

// Hash agrees with integers for values that fit in one.
func (m *bigNumberMeta) Hash(_ *VM, o *Object) uint32 {
	n := bigExt(o)
	if i, ok := n.Int32(); ok {
		return hashInt(i)
	}
	return hashString(bignum.FormatInt(n))
}

func (m *bigNumberMeta) Compare(vm *VM, o *Object, other Value) (int, bool) {
	n, ok := vm.bigOf(other)
	if !ok {
		return 0, false
	}
	return bigExt(o).Cmp(n), true
}

func (m *bigNumberMeta) GetProp(vm *VM, o *Object, prop PropID, argc int) (Value, bool) {
	n := bigExt(o)
	switch prop {
	case BigToInteger:
		if !vm.checkArgc("toInteger", argc, 0, 0) {
			return NilValue, true
		}
		i, ok := n.Int32()
		if !ok {
			vm.throw(ExcNumOverflow, "%s does not fit in an integer", bignum.FormatInt(n))
			return NilValue, true
		}
		return IntValue(i), true
	case BigAbs:
		if !vm.checkArgc("abs", argc, 0, 0) {
			return NilValue, true
		}
		return vm.newBig(bignum.BigInt{Limbs: n.Abs().Limbs}), true
	case BigAnd, BigOr, BigXor:
		if !vm.checkArgc("bitwise", argc, 1, 0) {
			return NilValue, true
		}
		other, ok := vm.bigOf(vm.pop())
		if !ok {
			vm.throw(ExcBadType, "bignumber operand required")
			return NilValue, true
		}
		op := map[PropID]func(a, b bignum.BigInt) (bignum.BigInt, error){
			BigAnd: bignum.IntAnd, BigOr: bignum.IntOr, BigXor: bignum.IntXor,
		}[prop]
		r, err := op(n, other)
		return vm.bigResult(r, err), true
	case BigShl, BigShr:
		if !vm.checkArgc("shift", argc, 1, 0) {
			return NilValue, true
		}
		k, ok := vm.popInt()
		if !ok {
			return NilValue, true
		}
		var (
			r   bignum.BigInt
			err error
		)
		if prop == BigShl {
			r, err = bignum.IntShl(n, int(k))
		} else {
			r, err = bignum.IntShr(n, int(k))
		}
		return vm.bigResult(r, err), true
	}
	return Value{}, false
}

// bigOf widens an integer or BigNumber value.
func (vm *VM) bigOf(v Value) (bignum.BigInt, bool) {
	if v.Kind == KindInt {
		return bignum.IntFromInt64(int64(v.Int())), true
	}
	if o := vm.objectOf(v, BigNumberMeta.Desc.Base); o != nil {
		return bigExt(o), true
	}
	return bignum.BigInt{}, false
}

func (vm *VM) isBig(v Value) bool {
	return vm.objectOf(v, BigNumberMeta.Desc.Base) != nil
}

func (vm *VM) newBig(n bignum.BigInt) Value {
	id, ok := vm.newObject(BigNumberMeta, n)
	if !ok {
		return NilValue
	}
	return ObjValue(id)
}

// bigResult maps bignum errors onto bytecode exceptions.
func (vm *VM) bigResult(n bignum.BigInt, err error) Value {
	switch {
	case errors.Is(err, bignum.ErrDivByZero):
		vm.throw(ExcDivideByZero, "bignumber division by zero")
		return NilValue
	case err != nil:
		vm.throw(ExcNumOverflow, "bignumber: %v", err)
		return NilValue
	}
	return vm.newBig(n)
}

// bigArith applies a binary arithmetic opcode with BigNumber promotion.
func (vm *VM) bigArith(op Op, a, b Value) Value {
	x, ok1 := vm.bigOf(a)
	y, ok2 := vm.bigOf(b)
	if !ok1 || !ok2 {
		vm.throw(ExcBadType, "%s: numeric operands required", op)
		return NilValue
	}
	var (
		r   bignum.BigInt
		err error
	)
	switch op {
	case OpPlus, OpIncr:
		r, err = bignum.IntAdd(x, y)
	case OpMinus, OpDecr:
		r, err = bignum.IntSub(x, y)
	case OpMult:
		r, err = bignum.IntMul(x, y)
	case OpDiv:
		r, _, err = bignum.IntDivMod(x, y)
	default:
		vm.throw(ExcBadType, "%s: not defined for bignumbers", op)
		return NilValue
	}
	return vm.bigResult(r, err)
}
