package vm

import (
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// tadsGenFuncs is the general-purpose function set.
func tadsGenFuncs() *FuncSet {
	return &FuncSet{
		Desc: Descriptor{Base: "tads-gen", Version: 30008},
		Funcs: []NativeFunc{
			{Name: "dataType", Fn: bifDataType, MinArgs: 1},
			{Name: "toString", Fn: bifToString, MinArgs: 1},
			{Name: "toInteger", Fn: bifToInteger, MinArgs: 1},
			{Name: "rand", Fn: bifRand, OptArgs: 1},
			{Name: "randomize", Fn: bifRandomize, OptArgs: 1},
			{Name: "getTime", Fn: bifGetTime, OptArgs: 1},
			{Name: "max", Fn: bifMax, MinArgs: 1, Varargs: true},
			{Name: "min", Fn: bifMin, MinArgs: 1, Varargs: true},
			{Name: "concat", Fn: bifConcat, Varargs: true},
		},
	}
}

func bifDataType(vm *VM, _ int) {
	vm.r0 = IntValue(int32(vm.pop().Kind))
}

func bifToString(vm *VM, _ int) {
	vm.retString(vm.displayString(vm.pop()))
}

func bifToInteger(vm *VM, _ int) {
	v := vm.pop()
	switch v.Kind {
	case KindInt:
		vm.r0 = v
		return
	case KindNil:
		vm.r0 = IntValue(0)
		return
	case KindTrue:
		vm.r0 = IntValue(1)
		return
	}
	if b, ok := vm.bigOf(v); ok {
		n, ok := b.Int64()
		if !ok {
			vm.throw(ExcNumOverflow, "toInteger: bignumber out of range")
			return
		}
		i, err := safecast.Conv[int32](n)
		if err != nil {
			vm.throw(ExcNumOverflow, "toInteger: %d out of range", n)
			return
		}
		vm.r0 = IntValue(i)
		return
	}
	s, ok := vm.stringOf(v)
	if !ok {
		vm.throw(ExcBadType, "toInteger: cannot convert %v", v)
		return
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			vm.throw(ExcNumOverflow, "toInteger: %q out of range", s)
			return
		}
		vm.throw(ExcBadValue, "toInteger: %q is not a number", s)
		return
	}
	vm.r0 = IntValue(int32(n)) //nolint:gosec // parsed with bitSize 32
}

// bifRand returns a uniform integer in [0, n), or any integer without n.
func bifRand(vm *VM, argc int) {
	if argc == 0 {
		vm.r0 = IntValue(int32(vm.rng.Uint32())) //nolint:gosec // full-range draw
		return
	}
	n, ok := vm.popInt()
	if !ok {
		return
	}
	if n <= 0 {
		vm.throw(ExcBadValue, "rand: range %d", n)
		return
	}
	vm.r0 = IntValue(vm.rng.Int32N(n))
}

// bifRandomize reseeds the generator, from the host clock when no seed is
// given.
func bifRandomize(vm *VM, argc int) {
	if argc == 0 {
		vm.Seed(uint64(vm.host.Time(TimeTicks).Ticks)) //nolint:gosec // any bits will do
		return
	}
	n, ok := vm.popInt()
	if !ok {
		return
	}
	vm.Seed(uint64(uint32(n))) //nolint:gosec // two's complement seed
}

// bifGetTime returns the date as a list of year, month, day, weekday, hour,
// minute and second, or with TimeTicks the host's millisecond counter.
func bifGetTime(vm *VM, argc int) {
	kind := TimeDate
	if argc == 1 {
		n, ok := vm.popInt()
		if !ok {
			return
		}
		if n != int32(TimeDate) && n != int32(TimeTicks) {
			vm.throw(ExcBadValue, "getTime: unknown kind %d", n)
			return
		}
		kind = TimeKind(n) //nolint:gosec // checked above
	}
	t := vm.host.Time(kind)
	if kind == TimeTicks {
		vm.r0 = IntValue(int32(t.Ticks)) //nolint:gosec // wraps like the tick counter it reports
		return
	}
	elems := make([]Value, len(t.Date))
	for i, d := range t.Date {
		elems[i] = intResult(vm, d)
	}
	vm.r0 = vm.newList(elems)
}

func bifMax(vm *VM, argc int) { extremum(vm, argc, 1) }
func bifMin(vm *VM, argc int) { extremum(vm, argc, -1) }

func extremum(vm *VM, argc, sign int) {
	args := vm.popN(argc)
	best := args[len(args)-1]
	for i := len(args) - 2; i >= 0; i-- {
		c, ok := vm.compareValues(args[i], best)
		if !ok {
			return
		}
		if c*sign > 0 {
			best = args[i]
		}
	}
	vm.r0 = best
}

func bifConcat(vm *VM, argc int) {
	args := vm.popN(argc)
	var sb strings.Builder
	for i := len(args) - 1; i >= 0; i-- {
		sb.WriteString(vm.displayString(args[i]))
	}
	vm.retString(sb.String())
}
