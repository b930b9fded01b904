package vm

import (
	"context"
	"errors"
	"testing"
)

// bifProgram returns a function that pushes args (last argument first), calls
// set.name and returns R0.
func bifProgram(t *testing.T, set int, name string, args ...any) (*program, uint32) {
	t.Helper()
	p := newProgram(t)
	fn := p.fn(name, 0, 0)
	p.emit(args...)
	p.callBifWords(set, name, len(args))
	p.emit(OpGetR0, OpRetVal)
	return p, fn
}

func TestRandIsSeeded(t *testing.T) {
	p, fn := bifProgram(t, setGen, "rand", 100)
	draw := func() []int32 {
		vm, _ := p.load(fn, Options{Seed: 99})
		out := make([]int32, 20)
		for i := range out {
			out[i] = mustCall(t, vm, fn).Int()
			if out[i] < 0 || out[i] >= 100 {
				t.Fatalf("rand(100) = %d", out[i])
			}
		}
		return out
	}
	a, b := draw(), draw()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draw %d differs between equally seeded runs: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestRandRejectsEmptyRange(t *testing.T) {
	p, fn := bifProgram(t, setGen, "rand", 0)
	vm, _ := p.load(fn, Options{})
	err := vm.Call(context.Background(), fn)
	var exc *Exception
	if !errors.As(err, &exc) || exc.Kind != ExcBadValue {
		t.Fatalf("expected bad value, got %v", err)
	}
}

func TestToInteger(t *testing.T) {
	p := newProgram(t)
	padded := p.str(" 42 ")
	junk := p.str("abc")
	parse := p.fn("parse", 0, 0)
	p.emit(int(padded), OpPushStr)
	p.callBifWords(setGen, "toInteger", 1)
	p.emit(OpGetR0, OpRetVal)
	bad := p.fn("bad", 0, 0)
	p.emit(int(junk), OpPushStr)
	p.callBifWords(setGen, "toInteger", 1)
	p.emit(OpReturn)
	noArgs := p.fn("noArgs", 0, 0)
	p.callBifWords(setGen, "toInteger", 0)
	p.emit(OpReturn)
	vm, _ := p.load(parse, Options{})

	if got := mustCall(t, vm, parse); got.Kind != KindInt || got.Int() != 42 {
		t.Fatalf("expected 42, got %v", got)
	}
	for fn, want := range map[uint32]ExcKind{bad: ExcBadValue, noArgs: ExcWrongArgCount} {
		err := vm.Call(context.Background(), fn)
		var exc *Exception
		if !errors.As(err, &exc) || exc.Kind != want {
			t.Fatalf("fn %d: expected %s, got %v", fn, want, err)
		}
	}
}

func TestGenIntrinsics(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want int32
	}{
		{name: "dataType", args: []any{5}, want: int32(KindInt)},
		{name: "max", args: []any{4, 9, 3}, want: 9},
		{name: "min", args: []any{4, 9, 3}, want: 3},
	}
	for _, tt := range tests {
		p, fn := bifProgram(t, setGen, tt.name, tt.args...)
		vm, _ := p.load(fn, Options{})
		if got := mustCall(t, vm, fn); got.Int() != tt.want {
			t.Fatalf("%s: expected %d, got %v", tt.name, tt.want, got)
		}
	}
}

func TestConcatAndToString(t *testing.T) {
	p := newProgram(t)
	a := p.str("a")
	cat := p.fn("cat", 0, 0)
	p.emit(1, int(a), OpPushStr)
	p.callBifWords(setGen, "concat", 2)
	p.emit(OpGetR0, OpRetVal)
	str := p.fn("str", 0, 0)
	p.emit(-17)
	p.callBifWords(setGen, "toString", 1)
	p.emit(OpGetR0, OpRetVal)
	vm, _ := p.load(cat, Options{})

	for fn, want := range map[uint32]string{cat: "a1", str: "-17"} {
		got := mustCall(t, vm, fn)
		if s, ok := vm.stringOf(got); !ok || s != want {
			t.Fatalf("fn %d: expected %q, got %v", fn, want, got)
		}
	}
}

func TestVMIntrinsics(t *testing.T) {
	p, fn := bifProgram(t, setT3VM, "getVMVersion")
	vm, _ := p.load(fn, Options{})
	if got := mustCall(t, vm, fn); got.Int() != VMVersion {
		t.Fatalf("expected version %#x, got %v", VMVersion, got)
	}

	p, fn = bifProgram(t, setT3VM, "getStackDepth")
	vm, _ = p.load(fn, Options{})
	if got := mustCall(t, vm, fn); got.Kind != KindInt || got.Int() <= 0 {
		t.Fatalf("expected a positive stack depth, got %v", got)
	}
}

func TestSayWritesArgumentsInOrder(t *testing.T) {
	p := newProgram(t)
	hello := p.str("hello ")
	fn := p.fn("main", 0, 0)
	p.emit(3, int(hello), OpPushStr)
	p.callBifWords(setIO, "say", 2)
	p.emit(OpReturn)
	vm, host := p.load(fn, Options{})

	mustCall(t, vm, fn)
	if host.Out.String() != "hello 3" {
		t.Fatalf("unexpected output %q", host.Out.String())
	}
}
