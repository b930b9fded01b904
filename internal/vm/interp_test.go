package vm

import (
	"context"
	"errors"
	"math"
	"testing"

	"storyvm/internal/pool"
)

func TestInterpArithmetic(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(6, 7, OpMult, 10, OpMinus, OpRetVal)
	vm, _ := p.load(entry, Options{})

	if got := mustCall(t, vm, entry); got.Kind != KindInt || got.Int() != 32 {
		t.Fatalf("expected 32, got %v", got)
	}
	if vm.Depth() != 0 || vm.FramePointer() != -1 {
		t.Fatalf("expected empty stack after call, got depth %d fp %d", vm.Depth(), vm.FramePointer())
	}
}

func TestInterpWraparound(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(65536, 32768, OpMult, OpRetVal)
	vm, _ := p.load(entry, Options{})

	if got := mustCall(t, vm, entry).Int(); got != math.MinInt32 {
		t.Fatalf("expected %d, got %d", int32(math.MinInt32), got)
	}
}

func TestInterpIfElse(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(OpPushNil, OpIf, 1, OpSayInt, OpElse, 99, OpSayInt, OpEndIf, 7, OpRetVal)
	vm, host := p.load(entry, Options{})

	if got := mustCall(t, vm, entry).Int(); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if out := host.Out.String(); out != "99" {
		t.Fatalf("expected output %q, got %q", "99", out)
	}
}

func TestInterpNestedIfSkipsInnerBlock(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(
		0, OpIf,
		OpPushTrue, OpIf, 1, OpSayInt, OpElse, 2, OpSayInt, OpEndIf,
		OpElse, 3, OpSayInt, OpEndIf,
		OpReturn,
	)
	vm, host := p.load(entry, Options{})
	mustCall(t, vm, entry)
	if out := host.Out.String(); out != "3" {
		t.Fatalf("expected output %q, got %q", "3", out)
	}
}

func TestInterpLoopSum(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 1)
	p.emit(
		0, 1, 0, OpSetLocal,
		5, 1, OpLoop,
		OpDup, 1, 0, OpGetLocal, OpPlus, 1, 0, OpSetLocal,
		OpLoopEnd,
		1, 0, OpGetLocal, OpRetVal,
	)
	vm, _ := p.load(entry, Options{})

	if got := mustCall(t, vm, entry).Int(); got != 15 {
		t.Fatalf("expected 15, got %d", got)
	}
}

func TestInterpLoopSkippedWhenIndexExceedsLimit(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(1, 2, OpLoop, 9, OpSayInt, OpLoopEnd, 4, OpRetVal)
	vm, host := p.load(entry, Options{})

	if got := mustCall(t, vm, entry).Int(); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
	if out := host.Out.String(); out != "" {
		t.Fatalf("expected no output, got %q", out)
	}
}

func TestInterpCallWithArguments(t *testing.T) {
	p := newProgram(t)
	sub := p.fn("sub", 2, 0)
	p.emit(1, 0, OpGetLocal, 2, 0, OpGetLocal, OpMinus, OpRetVal)
	entry := p.fn("main", 0, 0)
	p.emit(3, 10, int(sub), OpPushFunc, 2, OpCall, OpGetR0, OpRetVal)
	vm, _ := p.load(entry, Options{})

	if got := mustCall(t, vm, sub, IntValue(10), IntValue(3)).Int(); got != 7 {
		t.Fatalf("direct call: expected 7, got %d", got)
	}
	if got := mustCall(t, vm, entry).Int(); got != 7 {
		t.Fatalf("bytecode call: expected 7, got %d", got)
	}
	if vm.Depth() != 0 {
		t.Fatalf("expected depth 0, got %d", vm.Depth())
	}
}

func TestInterpWrongArgCountIsException(t *testing.T) {
	p := newProgram(t)
	sub := p.fn("sub", 2, 0)
	p.emit(OpReturn)
	vm, _ := p.load(sub, Options{})

	err := vm.Call(context.Background(), sub, IntValue(1))
	var exc *Exception
	if !errors.As(err, &exc) || exc.Kind != ExcWrongArgCount {
		t.Fatalf("expected wrong argument count exception, got %v", err)
	}
}

func TestInterpHandlerCatchesDivideByZero(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	target := p.placeholder()
	p.emit(OpPushHandler, 1, 0, OpDiv, 5, OpRetVal)
	p.patch(target, p.here())
	p.emit(OpRetVal)
	vm, _ := p.load(entry, Options{})

	if got := mustCall(t, vm, entry); got.Kind != KindInt || got.Int() != int32(ExcDivideByZero) {
		t.Fatalf("expected exception code %d, got %v", ExcDivideByZero, got)
	}
}

func TestInterpHandlerCatchesCalleeException(t *testing.T) {
	p := newProgram(t)
	thrower := p.fn("thrower", 0, 0)
	p.emit(42, OpThrow, OpReturn)
	entry := p.fn("main", 0, 0)
	target := p.placeholder()
	p.emit(OpPushHandler, int(thrower), OpPushFunc, 0, OpCall, 1, OpRetVal)
	p.patch(target, p.here())
	p.emit(OpRetVal)
	vm, _ := p.load(entry, Options{})

	if got := mustCall(t, vm, entry).Int(); got != 42 {
		t.Fatalf("expected thrown value 42, got %d", got)
	}
	if vm.Depth() != 0 {
		t.Fatalf("expected depth 0 after unwinding, got %d", vm.Depth())
	}
}

func TestRunUncaughtException(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(1, 0, OpDiv, OpReturn)
	vm, _ := p.load(entry, Options{})

	status, err := vm.Run(context.Background())
	if status != StatusUncaught {
		t.Fatalf("expected status %d, got %d (%v)", StatusUncaught, status, err)
	}
	var exc *Exception
	if !errors.As(err, &exc) || exc.Kind != ExcDivideByZero {
		t.Fatalf("expected divide by zero, got %v", err)
	}
}

func TestRunQuit(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(1, OpSayInt, OpQuit, 2, OpSayInt, OpReturn)
	vm, host := p.load(entry, Options{})

	status, err := vm.Run(context.Background())
	if status != StatusOK || err != nil {
		t.Fatalf("expected clean exit, got %d %v", status, err)
	}
	if !vm.Halted() {
		t.Fatalf("expected VM to be halted")
	}
	if out := host.Out.String(); out != "1" {
		t.Fatalf("expected output %q, got %q", "1", out)
	}
}

func TestInterpUnknownClassIsFatal(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.raw(0x30000000)
	vm, _ := p.load(entry, Options{})

	err := vm.Call(context.Background(), entry)
	var vmErr *VMError
	if !errors.As(err, &vmErr) || vmErr.Code != PanicUnknownClass {
		t.Fatalf("expected %s, got %v", PanicUnknownClass, err)
	}
	if vmErr.PC != entry+1 {
		t.Fatalf("expected pc %d, got %d", entry+1, vmErr.PC)
	}
	if len(vmErr.Backtrace) != 1 || vmErr.Backtrace[0] != entry+1 {
		t.Fatalf("unexpected backtrace %v", vmErr.Backtrace)
	}
	status, _ := vm.Run(context.Background())
	if status != StatusFatal {
		t.Fatalf("expected status %d, got %d", StatusFatal, status)
	}
}

func TestInterpUnknownOpIsFatal(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.raw(Stmop(numOps))
	vm, _ := p.load(entry, Options{})

	err := vm.Call(context.Background(), entry)
	var vmErr *VMError
	if !errors.As(err, &vmErr) || vmErr.Code != PanicUnknownOp {
		t.Fatalf("expected %s, got %v", PanicUnknownOp, err)
	}
}

func TestInterpPageLoadFailureIsFatal(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(OpReturn)
	vm, _ := p.load(entry, Options{})

	err := vm.enter(context.Background(), entry, func() {
		panic(&pool.LoadError{Page: 3, Err: errors.New("disk gone")})
	})
	var vmErr *VMError
	if !errors.As(err, &vmErr) || vmErr.Code != PanicPageLoad {
		t.Fatalf("expected %s, got %v", PanicPageLoad, err)
	}
	var le *pool.LoadError
	if !errors.As(err, &le) || le.Page != 3 {
		t.Fatalf("expected the load error as cause, got %v", vmErr.Cause)
	}
	// The entry must unwind so later calls still run.
	if err := vm.Call(context.Background(), entry); err != nil {
		t.Fatalf("call after page failure: %v", err)
	}
}

func TestInterpStackLimit(t *testing.T) {
	build := func(pushes int) (*VM, uint32) {
		p := newProgram(t)
		entry := p.fn("main", 0, 0)
		for range pushes {
			p.emit(1)
		}
		p.emit(OpReturn)
		vm, _ := p.load(entry, Options{StackDepth: 8})
		return vm, entry
	}

	// The frame link takes one slot.
	vm, entry := build(7)
	if err := vm.Call(context.Background(), entry); err != nil {
		t.Fatalf("expected 7 pushes to fit, got %v", err)
	}

	vm, entry = build(8)
	err := vm.Call(context.Background(), entry)
	var vmErr *VMError
	if !errors.As(err, &vmErr) || vmErr.Code != PanicStackOverflow {
		t.Fatalf("expected %s, got %v", PanicStackOverflow, err)
	}
	if len(vmErr.Stack) == 0 {
		t.Fatalf("expected the error to carry the operand stack")
	}
}

func TestInterpStackUnderflow(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(OpEndFrame, OpPop, OpReturn)
	vm, _ := p.load(entry, Options{})

	err := vm.Call(context.Background(), entry)
	var vmErr *VMError
	if !errors.As(err, &vmErr) || vmErr.Code != PanicStackUnderflow {
		t.Fatalf("expected %s, got %v", PanicStackUnderflow, err)
	}
}

func TestInterpBadRegister(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(Register(numRegisters), OpReturn)
	vm, _ := p.load(entry, Options{})

	err := vm.Call(context.Background(), entry)
	var vmErr *VMError
	if !errors.As(err, &vmErr) || vmErr.Code != PanicBadRegister {
		t.Fatalf("expected %s, got %v", PanicBadRegister, err)
	}
}

func TestInterpCanceledContext(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(10, 1, OpLoop, OpPop, 1, OpLoopEnd, OpReturn)
	vm, _ := p.load(entry, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := vm.Call(ctx, entry)
	var vmErr *VMError
	if !errors.As(err, &vmErr) || vmErr.Code != PanicCanceled {
		t.Fatalf("expected %s, got %v", PanicCanceled, err)
	}
}

func TestInterpRegisters(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(RegScore, 5, OpPlus, OpRetVal)
	vm, _ := p.load(entry, Options{})
	vm.SetRegister(RegScore, IntValue(10))

	if got := mustCall(t, vm, entry).Int(); got != 15 {
		t.Fatalf("expected 15, got %d", got)
	}
}

func TestInterpStringEquality(t *testing.T) {
	p := newProgram(t)
	a := p.str("Hello World")
	b := p.str("hello world")
	entry := p.fn("main", 0, 0)
	p.emit(int(a), OpPushStr, int(b), OpPushStr, OpStrEq, OpRetVal)
	exact := p.fn("exact", 0, 0)
	p.emit(int(a), OpPushStr, int(b), OpPushStr, OpStrExact, OpRetVal)
	vm, _ := p.load(entry, Options{})

	if got := mustCall(t, vm, entry); !got.Truthy() {
		t.Fatalf("expected canonical equality, got %v", got)
	}
	if got := mustCall(t, vm, exact); got.Truthy() {
		t.Fatalf("expected exact comparison to differ, got %v", got)
	}
}

func TestDisasm(t *testing.T) {
	cases := map[uint32]string{
		Const(-3):         "CONST -3",
		Stmop(OpLoopEnd):  "LOOPEND",
		CurVar(RegActor):  "CURVAR actor",
		0x30000000:        "?0x30000000",
		Stmop(OpPushFunc): "PUSHFUNC",
	}
	for w, want := range cases {
		if got := Disasm(w); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
	if op, ok := OpByName("RETVAL"); !ok || op != OpRetVal {
		t.Fatalf("expected RETVAL lookup, got %v %v", op, ok)
	}
}
