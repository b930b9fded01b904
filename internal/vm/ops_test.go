package vm

import (
	"context"
	"errors"
	"testing"

	"storyvm/internal/vm/bignum"
)

// evalMain assembles a main function with build and calls it.
func evalMain(t *testing.T, opts Options, build func(p *program)) (*VM, *TestHost, Value) {
	t.Helper()
	p := newProgram(t)
	entry := p.fn("main", 0, 1)
	build(p)
	vm, host := p.load(entry, opts)
	return vm, host, mustCall(t, vm, entry)
}

func expectInt(t *testing.T, got Value, want int32) {
	t.Helper()
	if got.Kind != KindInt || got.Int() != want {
		t.Fatalf("expected %d, got %v", want, got)
	}
}

func expectString(t *testing.T, vm *VM, got Value, want string) {
	t.Helper()
	s, ok := vm.stringOf(got)
	if !ok || s != want {
		t.Fatalf("expected string %q, got %v (%q)", want, got, s)
	}
}

func TestDependCascade(t *testing.T) {
	p := newProgram(t)
	classify := p.fn("classify", 1, 0)
	p.emit(
		1, 0, OpGetLocal, OpDepend,
		OpDup, 1, OpEq, OpDepExec,
		1, 0, OpGetLocal, OpDepend,
		OpDup, 9, OpEq, OpDepExec, 19, OpSayInt,
		OpDepElse, 11, OpSayInt,
		OpEndDep,
		OpDepCase, OpDup, 2, OpEq, OpDepExec, 200, OpSayInt,
		OpDepElse, 300, OpSayInt,
		OpEndDep,
		OpReturn,
	)
	vm, host := p.load(classify, Options{})

	tests := []struct {
		arg  int32
		want string
	}{
		{1, "11"},
		{2, "200"},
		{3, "300"},
	}
	for _, tt := range tests {
		host.Out.Reset()
		mustCall(t, vm, classify, IntValue(tt.arg))
		if out := host.Out.String(); out != tt.want {
			t.Fatalf("classify(%d): expected output %q, got %q", tt.arg, tt.want, out)
		}
		if vm.Depth() != 0 {
			t.Fatalf("classify(%d): expected depth 0, got %d", tt.arg, vm.Depth())
		}
	}
}

func TestDependWithoutElseRunsNothing(t *testing.T) {
	_, host, _ := evalMain(t, Options{}, func(p *program) {
		p.emit(
			5, OpDepend,
			OpDup, 1, OpEq, OpDepExec, 1, OpSayInt,
			OpDepCase, OpDup, 2, OpEq, OpDepExec, 2, OpSayInt,
			OpEndDep,
			OpReturn,
		)
	})
	if out := host.Out.String(); out != "" {
		t.Fatalf("expected no output, got %q", out)
	}
}

func TestLoopAggregates(t *testing.T) {
	// Each iteration folds idx*idx - 4*idx for idx in 1..5: -3 -4 -3 0 5.
	tests := []struct {
		op   Op
		want int32
	}{
		{OpMin, -4},
		{OpMax, 5},
		{OpSum, -5},
		{OpCount, 5},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			vm, _, got := evalMain(t, Options{}, func(p *program) {
				p.emit(OpPushNil, 5, 1, OpLoop)
				if tt.op == OpCount {
					p.emit(OpCount)
				} else {
					p.emit(
						OpDup, 1, 0, OpSetLocal,
						1, 0, OpGetLocal, 1, 0, OpGetLocal, OpMult,
						1, 0, OpGetLocal, 4, OpMult, OpMinus,
						tt.op,
					)
				}
				p.emit(OpLoopEnd, OpRetVal)
			})
			expectInt(t, got, tt.want)
			if vm.Depth() != 0 {
				t.Fatalf("expected depth 0, got %d", vm.Depth())
			}
		})
	}
}

func TestInterpLoopRunsOnceWhenIndexEqualsLimit(t *testing.T) {
	_, host, _ := evalMain(t, Options{}, func(p *program) {
		p.emit(3, 3, OpLoop, 9, OpSayInt, OpLoopEnd, OpReturn)
	})
	if out := host.Out.String(); out != "9" {
		t.Fatalf("expected the body to run once, got output %q", out)
	}
}

func TestLoopNextSkipsRestOfBody(t *testing.T) {
	_, host, _ := evalMain(t, Options{}, func(p *program) {
		p.emit(
			5, 1, OpLoop,
			OpDup, 3, OpEq, OpIf, OpLoopNext, OpEndIf,
			OpDup, OpSayInt,
			OpLoopEnd, OpReturn,
		)
	})
	if out := host.Out.String(); out != "1245" {
		t.Fatalf("expected output %q, got %q", "1245", out)
	}
}

func TestSetOpcodes(t *testing.T) {
	tests := []struct {
		name  string
		build func(p *program)
		want  int32
	}{
		{"include ignores duplicates", func(p *program) {
			p.emit(OpNewSet, OpDup, 1, OpInclude, OpDup, 2, OpInclude, OpDup, 1, OpInclude, OpSetSize, OpRetVal)
		}, 2},
		{"exclude removes member", func(p *program) {
			p.emit(OpNewSet, OpDup, 1, OpInclude, OpDup, 2, OpInclude, OpDup, 1, OpExclude,
				OpDup, 1, OpInSet, OpIf, 1, OpRetVal, OpEndIf, OpSetSize, OpRetVal)
		}, 1},
		{"inset finds member", func(p *program) {
			p.emit(OpNewSet, OpDup, 7, OpInclude, 7, OpInSet, OpIf, 1, OpRetVal, OpEndIf, 0, OpRetVal)
		}, 1},
		{"union keeps first operand order", func(p *program) {
			p.emit(OpNewSet, OpDup, 1, OpInclude, OpDup, 2, OpInclude,
				OpNewSet, OpDup, 2, OpInclude, OpDup, 3, OpInclude,
				OpUnion, OpDup, OpSetSize, 1, 0, OpSetLocal, 3, OpSetMemb,
				1, 0, OpGetLocal, OpPlus, OpRetVal)
		}, 6},
		{"string constant and string object are one member", func(p *program) {
			a := p.str("a")
			empty := p.str("")
			p.emit(OpNewSet, OpDup, a, OpPushStr, OpInclude,
				OpDup, a, OpPushStr, empty, OpPushStr, OpConcat, OpInclude, OpSetSize, OpRetVal)
		}, 1},
		{"integer and equal BigNumber are one member", func(p *program) {
			p.emit(OpNewSet, OpDup, 5, OpInclude,
				OpDup, 5, 1, metaBigNumber, OpNew, OpInclude, OpSetSize, OpRetVal)
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, got := evalMain(t, Options{}, tt.build)
			expectInt(t, got, tt.want)
		})
	}
}

func TestSetMemberOutOfRange(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(OpNewSet, OpDup, 1, OpInclude, 2, OpSetMemb, OpRetVal)
	vm, _ := p.load(entry, Options{})

	err := vm.Call(context.Background(), entry)
	var exc *Exception
	if !errors.As(err, &exc) || exc.Kind != ExcIndexRange {
		t.Fatalf("expected index range exception, got %v", err)
	}
}

func TestContainerOpcodes(t *testing.T) {
	tests := []struct {
		name  string
		words []any
		want  Value
	}{
		{"direct size", []any{1, OpPushObj, int(TransDirect), OpContSize}, IntValue(2)},
		{"transitive size", []any{1, OpPushObj, int(TransTransitive), OpContSize}, IntValue(3)},
		{"indirect size", []any{1, OpPushObj, int(TransIndirect), OpContSize}, IntValue(1)},
		{"transitive member", []any{1, OpPushObj, 3, int(TransTransitive), OpContMemb}, ObjValue(5)},
		{"direct member", []any{1, OpPushObj, 2, int(TransDirect), OpContMemb}, ObjValue(4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := worldProgram(t)
			entry := p.fn("main", 0, 0)
			p.emit(tt.words...)
			p.emit(OpRetVal)
			vm, _ := p.load(entry, Options{})
			if got := mustCall(t, vm, entry); !got.Same(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestStringOpcodes(t *testing.T) {
	vm, _, got := evalMain(t, Options{}, func(p *program) {
		p.emit(p.str("ab"), OpPushStr, p.str("cd"), OpPushStr, OpConcat, OpRetVal)
	})
	expectString(t, vm, got, "abcd")

	vm, _, got = evalMain(t, Options{}, func(p *program) {
		p.emit(p.str("n="), OpPushStr, 5, OpConcat, OpRetVal)
	})
	expectString(t, vm, got, "n=5")

	_, _, got = evalMain(t, Options{}, func(p *program) {
		p.emit(p.str("Hello World"), OpPushStr, p.str("WORLD"), OpPushStr, OpContains, OpRetVal)
	})
	if !got.Truthy() {
		t.Fatalf("expected a case-folded match, got %v", got)
	}

	_, _, got = evalMain(t, Options{}, func(p *program) {
		p.emit(p.str("Hello"), OpPushStr, p.str("bye"), OpPushStr, OpContains, OpRetVal)
	})
	if got.Truthy() {
		t.Fatalf("expected no match, got %v", got)
	}

	_, host, _ := evalMain(t, Options{}, func(p *program) {
		p.emit(p.str("take the red apple"), OpPushStr, 2, 2, OpStrip, OpSayStr, p.str("|"), OpPushStr, OpSayStr, OpSayStr, OpReturn)
	})
	if out := host.Out.String(); out != "the red|take apple" {
		t.Fatalf("expected stripped words then the rest, got %q", out)
	}
}

func TestBetween(t *testing.T) {
	tests := []struct {
		v, lo, hi int
		want      bool
	}{
		{5, 1, 10, true},
		{5, 10, 1, true},
		{10, 1, 10, true},
		{1, 1, 10, true},
		{11, 1, 10, false},
		{0, 1, 10, false},
	}
	for _, tt := range tests {
		_, _, got := evalMain(t, Options{}, func(p *program) {
			p.emit(tt.v, tt.lo, tt.hi, OpBetween, OpRetVal)
		})
		if got.Truthy() != tt.want {
			t.Fatalf("BETWEEN %d %d %d: expected %v, got %v", tt.v, tt.lo, tt.hi, tt.want, got)
		}
	}
}

func TestRndIsDeterministic(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(1, 6, OpRnd, OpRetVal)
	roll := func() []int32 {
		vm, _ := p.load(entry, Options{Seed: 7})
		out := make([]int32, 30)
		for i := range out {
			out[i] = mustCall(t, vm, entry).Int()
			if out[i] < 1 || out[i] > 6 {
				t.Fatalf("RND 1 6 = %d", out[i])
			}
		}
		return out
	}
	a, b := roll(), roll()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("roll %d differs between equally seeded runs: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestFrameIsStackNeutral(t *testing.T) {
	vm, _, got := evalMain(t, Options{}, func(p *program) {
		p.emit(
			7,
			2, OpFrame,
			4, 1, 0, OpSetLocal,
			99, 99,
			OpEndFrame,
			OpRetVal,
		)
	})
	expectInt(t, got, 7)
	if vm.Depth() != 0 || vm.FramePointer() != -1 {
		t.Fatalf("expected empty stack, got depth %d fp %d", vm.Depth(), vm.FramePointer())
	}
}

func TestGetLocalReachesEnclosingFrame(t *testing.T) {
	_, _, got := evalMain(t, Options{}, func(p *program) {
		p.emit(
			11, 1, 0, OpSetLocal,
			1, OpFrame,
			22, 1, 0, OpSetLocal,
			1, 1, OpGetLocal, 1, 0, OpGetLocal, OpPlus, 1, 1, OpSetLocal,
			OpEndFrame,
			1, 0, OpGetLocal, OpRetVal,
		)
	})
	expectInt(t, got, 33)
}

func TestGetLocalPastEnclosingFrameIsFatal(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 1)
	// The enclosing frame has one local; slot 2 would be the inner link.
	p.emit(1, OpFrame, 2, 1, OpGetLocal, OpRetVal)
	vm, _ := p.load(entry, Options{})

	err := vm.Call(context.Background(), entry)
	var vmErr *VMError
	if !errors.As(err, &vmErr) || vmErr.Code != PanicBadFrame {
		t.Fatalf("expected %s, got %v", PanicBadFrame, err)
	}
}

// diamondProgram lays out O(13) : A(11), B(12) with A : C(10). C and B both
// define property 20.
func diamondProgram(t *testing.T) *program {
	t.Helper()
	p := newProgram(t)
	p.object(10, map[PropID]Value{20: IntValue(1)})
	p.object(11, map[PropID]Value{}, 10)
	p.object(12, map[PropID]Value{20: IntValue(2)})
	p.object(13, map[PropID]Value{}, 11, 12)
	return p
}

func TestInheritanceIsDepthFirstForEveryReader(t *testing.T) {
	tests := []struct {
		name  string
		words []any
	}{
		{"getprop", []any{13, OpPushObj, 20, OpPushProp, OpGetProp}},
		{"propcall", []any{13, OpPushObj, 20, OpPushProp, 0, OpPropCall, OpGetR0}},
		{"attribute", []any{13, OpPushObj, 20, OpAttribute}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := diamondProgram(t)
			entry := p.fn("main", 0, 0)
			p.emit(tt.words...)
			p.emit(OpRetVal)
			vm, _ := p.load(entry, Options{})
			expectInt(t, mustCall(t, vm, entry), 1)
		})
	}
}

func TestPropCallBindsSelfToReceiver(t *testing.T) {
	p := newProgram(t)
	who := p.fn("who", 0, 0)
	p.emit(RegSelf, OpRetVal)
	p.object(10, map[PropID]Value{21: FuncValue(who)})
	p.object(11, map[PropID]Value{}, 10)
	entry := p.fn("main", 0, 0)
	p.emit(11, OpPushObj, 21, OpPushProp, 0, OpPropCall, OpGetR0, OpRetVal)
	vm, _ := p.load(entry, Options{})

	if got := mustCall(t, vm, entry); !got.Same(ObjValue(11)) {
		t.Fatalf("expected self obj#11, got %v", got)
	}
}

func TestSetPropOverridesInherited(t *testing.T) {
	p := diamondProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(
		13, OpPushObj, 20, OpPushProp, 7, OpSetProp,
		13, OpPushObj, 20, OpPushProp, OpGetProp,
		10, OpPushObj, 20, OpPushProp, OpGetProp,
		OpPlus, OpRetVal,
	)
	vm, _ := p.load(entry, Options{})
	expectInt(t, mustCall(t, vm, entry), 8)
}

func TestSetPropOnImmutableObject(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(p.str("x"), OpPushStr, p.str("y"), OpPushStr, OpConcat, 20, OpPushProp, 1, OpSetProp, OpReturn)
	vm, _ := p.load(entry, Options{})

	err := vm.Call(context.Background(), entry)
	var exc *Exception
	if !errors.As(err, &exc) || exc.Kind != ExcInvalidPropSet {
		t.Fatalf("expected invalid property set, got %v", err)
	}
}

func TestAllocationInsideOpcodeKeepsOperands(t *testing.T) {
	tests := []struct {
		name       string
		maxObjects int
		words      []any
	}{
		// garbage, set, member, set: the union needs a fifth slot.
		{"union", 4, []any{
			0, metaObject, OpNew, OpPop,
			OpNewSet, OpDup, 0, metaObject, OpNew, OpInclude,
			OpNewSet, OpUnion,
		}},
		// garbage, member: the set needs a third slot.
		{"construct", 2, []any{
			0, metaObject, OpNew, OpPop,
			0, metaObject, OpNew, 1, metaSet, OpNew,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProgram(t)
			entry := p.fn("main", 0, 0)
			p.emit(tt.words...)
			p.emit(1, OpSetMemb, OpRetVal)
			vm, _ := p.load(entry, Options{MaxObjects: tt.maxObjects, GCThreshold: -1})

			got := mustCall(t, vm, entry)
			if vm.GCCount() == 0 {
				t.Fatalf("expected the allocation to collect")
			}
			if got.Kind != KindObj {
				t.Fatalf("expected an object member, got %v", got)
			}
			o := vm.Lookup(got.Obj())
			if o == nil || o.Meta != TadsObjectMeta {
				t.Fatalf("set member obj#%d was swept while still referenced", got.Obj())
			}
		})
	}
}

func TestHashAgreesWithEquality(t *testing.T) {
	p := newProgram(t)
	abc := p.str("abc")
	pair := p.list(IntValue(1), IntValue(2))
	entry := p.fn("main", 0, 0)
	p.emit(OpReturn)
	vm, _ := p.load(entry, Options{GCThreshold: -1})

	big := vm.newBig(bignum.IntFromInt64(5))
	hugeA := vm.newBig(bignum.IntFromInt64(1 << 40))
	hugeB := vm.newBig(bignum.IntFromInt64(1 << 40))
	pairs := []struct {
		name string
		a, b Value
	}{
		{"string", SStringValue(abc), vm.newString("abc")},
		{"bignumber", IntValue(5), big},
		{"large bignumber", hugeA, hugeB},
		{"list", ListValue(pair), vm.newList([]Value{IntValue(1), IntValue(2)})},
	}
	for _, tt := range pairs {
		if !vm.valuesEqual(tt.a, tt.b) {
			t.Fatalf("%s: expected %v == %v", tt.name, tt.a, tt.b)
		}
		if vm.hashValue(tt.a) != vm.hashValue(tt.b) {
			t.Fatalf("%s: equal values hash differently", tt.name)
		}
	}
	if vm.valuesEqual(vm.newString("5"), big) {
		t.Fatalf("expected a string not to equal a BigNumber")
	}
}

func TestHashOfSelfContainingVector(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(OpReturn)
	vm, _ := p.load(entry, Options{GCThreshold: -1})

	id, ok := vm.newObject(VectorMeta, &listExt{})
	if !ok {
		t.Fatalf("allocation failed: %v", vm.Pending())
	}
	ext := vm.Lookup(id).Ext.(*listExt)
	ext.elems = append(ext.elems, ObjValue(id))
	if vm.hashValue(ObjValue(id)) != vm.hashValue(ObjValue(id)) {
		t.Fatalf("expected a stable hash")
	}
}

func TestCallStatic(t *testing.T) {
	p := newProgram(t)
	chars := p.fn("chars", 0, 0)
	p.emit(105, 104, int(StrFromChars), OpPushProp, metaString)
	p.callBifWords(setT3VM, "callStatic", 4)
	p.emit(OpGetR0, OpRetVal)

	parse := p.fn("parse", 0, 0)
	p.emit(p.str("0x10"), OpPushStr, int(BigTryParse), OpPushProp, metaBigNumber)
	p.callBifWords(setT3VM, "callStatic", 3)
	p.emit(OpGetR0, OpRetVal)

	bad := p.fn("bad", 0, 0)
	p.emit(p.str("zz"), OpPushStr, int(BigTryParse), OpPushProp, metaBigNumber)
	p.callBifWords(setT3VM, "callStatic", 3)
	p.emit(OpGetR0, OpRetVal)

	missing := p.fn("missing", 0, 0)
	p.emit(int(StrFromChars), OpPushProp, metaList)
	p.callBifWords(setT3VM, "callStatic", 2)
	p.emit(OpReturn)

	vm, _ := p.load(chars, Options{})

	expectString(t, vm, mustCall(t, vm, chars), "hi")

	n, ok := vm.bigOf(mustCall(t, vm, parse))
	if !ok || n.Cmp(bignum.IntFromInt64(16)) != 0 {
		t.Fatalf("expected BigNumber 16, got %v", vm.R0())
	}
	if got := mustCall(t, vm, bad); !got.IsNil() {
		t.Fatalf("expected nil for an unparsable string, got %v", got)
	}

	err := vm.Call(context.Background(), missing)
	var exc *Exception
	if !errors.As(err, &exc) || exc.Kind != ExcBadValue {
		t.Fatalf("expected bad value for a missing static property, got %v", err)
	}
}
