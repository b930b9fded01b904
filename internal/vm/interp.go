package vm

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"storyvm/internal/pool"
	"storyvm/internal/trace"
)

// RecursionRingSize bounds the number of nested public entries (Interpret,
// Call, Tick) active at once.
const RecursionRingSize = 32

// ctxCheckInterval is how many opcodes run between context polls.
const ctxCheckInterval = 1024

// Interpret executes raw code starting at word pc until RETURN, RETVAL or
// QUIT. It returns nil, a *VMError for fatal errors or an *Exception when an
// exception escaped every handler.
func (vm *VM) Interpret(ctx context.Context, pc uint32) error {
	return vm.enter(ctx, pc, func() { vm.invoke(pc) })
}

// Call invokes the bytecode function at fn with args (first argument
// first). The result is available from R0.
func (vm *VM) Call(ctx context.Context, fn uint32, args ...Value) error {
	return vm.enter(ctx, fn, func() {
		for i := len(args) - 1; i >= 0; i-- {
			vm.push(args[i])
		}
		vm.callFunc(fn, len(args), InvalidObj)
	})
}

// enter runs body as a public entry. Fatal errors raised anywhere below are
// recovered here; the entry address occupies a slot of the recursion ring
// while it runs.
func (vm *VM) enter(ctx context.Context, pc uint32, body func()) (err error) {
	if vm.code == nil {
		return fmt.Errorf("interpret: no image attached")
	}
	if slices.Contains(vm.ring, pc) {
		return vm.eb.recursion(pc)
	}
	if len(vm.ring) >= RecursionRingSize {
		return vm.eb.recursionRingFull()
	}
	vm.ring = append(vm.ring, pc)

	savedCtx := vm.ctx
	if ctx != nil {
		vm.ctx = ctx
	}
	depth := len(vm.invocations)
	hbase, hsaved := len(vm.handlers), vm.handlerBase
	scratch, opDepth := len(vm.scratch), vm.opDepth

	span := trace.Begin(vm.tracer, trace.ScopeInterpret, "interpret", vm.runSpan).
		WithExtra("pc", strconv.FormatUint(uint64(pc), 10))
	defer func() {
		if r := recover(); r != nil {
			var vmErr *VMError
			switch x := r.(type) {
			case *VMError:
				vmErr = x
			case *pool.LoadError:
				vmErr = vm.eb.pageLoad(x)
			default:
				panic(r)
			}
			err = vmErr
			vm.invocations = vm.invocations[:depth]
			vm.handlers = vm.handlers[:hbase]
			vm.handlerBase = hsaved
			vm.scratch = vm.scratch[:scratch]
			vm.opDepth = opDepth
			vm.pending = nil
			vm.failFlag = false
		}
		vm.ring = vm.ring[:len(vm.ring)-1]
		vm.ctx = savedCtx
		detail := "ok"
		if err != nil {
			detail = err.Error()
		}
		span.End(detail)
	}()

	body()
	if exc := vm.pending; exc != nil {
		vm.pending = nil
		vm.emitException(exc, false)
		return exc
	}
	// An uncaught FAIL at the top level is not an error.
	vm.failFlag = false
	return nil
}

// invoke runs the loop for one activation until it returns, halts or leaves
// an exception its handlers could not catch.
func (vm *VM) invoke(pc uint32) {
	base := len(vm.handlers)
	savedBase := vm.handlerBase
	vm.handlerBase = base
	vm.invocations = append(vm.invocations, pc)
	vm.pc = pc
	for {
		vm.step()
		if vm.interrupted() && !vm.unwind(base) {
			break
		}
		if vm.halted {
			break
		}
		if vm.returning {
			vm.returning = false
			break
		}
		vm.maybeGC()
	}
	clear(vm.handlers[base:])
	vm.handlers = vm.handlers[:base]
	vm.handlerBase = savedBase
	vm.invocations = vm.invocations[:len(vm.invocations)-1]
}

// step executes the instruction at pc.
func (vm *VM) step() {
	pc := vm.pc
	w := vm.fetch(pc)
	vm.lastPC, vm.lastWord, vm.lastWordOK = pc, w, true
	if vm.debug != nil && vm.checkStop(pc, w) {
		return
	}
	if vm.itrace != nil {
		vm.itrace.TraceInstr(len(vm.invocations), pc, w)
	}
	vm.pc++
	vm.ops++
	if vm.ops%ctxCheckInterval == 0 {
		if err := vm.ctx.Err(); err != nil {
			vm.panic(PanicCanceled, "execution canceled: "+err.Error())
		}
	}

	mark := len(vm.scratch)
	vm.opDepth++
	class, operand := decode(w)
	switch class {
	case ClassConst:
		vm.push(IntValue(operand))
	case ClassCurVar:
		if operand < 0 || operand >= int32(numRegisters) {
			panic(vm.eb.badRegister(operand))
		}
		vm.push(vm.regs[operand])
	case ClassStmop:
		vm.exec(Op(operand))
	default:
		panic(vm.eb.unknownClass(w))
	}
	vm.opDepth--
	clear(vm.scratch[mark:])
	vm.scratch = vm.scratch[:mark]
}

// exec dispatches one statement opcode.
func (vm *VM) exec(op Op) {
	switch op {
	case OpPop:
		vm.pop()
	case OpDup:
		vm.push(vm.peek(0))

	case OpPlus, OpMinus, OpMult, OpDiv, OpIncr, OpDecr:
		vm.opArith(op)
	case OpUMinus:
		vm.opNegate()

	case OpEq, OpNe:
		vm.opEquality(op)
	case OpLt, OpLe, OpGt, OpGe:
		vm.opRelational(op)
	case OpStrEq, OpStrExact:
		vm.opStringEq(op)
	case OpBetween:
		vm.opBetween()

	case OpAnd:
		b, a := vm.pop(), vm.pop()
		vm.push(BoolValue(a.Truthy() && b.Truthy()))
	case OpOr:
		b, a := vm.pop(), vm.pop()
		vm.push(BoolValue(a.Truthy() || b.Truthy()))
	case OpNot:
		vm.push(BoolValue(!vm.pop().Truthy()))

	case OpIf, OpElse, OpEndIf, OpLoop, OpLoopNext, OpLoopEnd,
		OpDepend, OpDepCase, OpDepExec, OpDepElse, OpEndDep, OpReturn:
		vm.opControl(op)

	case OpMin, OpMax, OpSum, OpCount:
		vm.opAggregate(op)

	case OpNewSet, OpUnion, OpInclude, OpExclude, OpInSet, OpSetSize, OpSetMemb, OpContSize, OpContMemb:
		vm.opSet(op)

	case OpAttribute, OpStrAttr, OpAttrSet, OpMake, OpSet, OpSetStr, OpSetSet:
		vm.opAttribute(op)

	case OpLocate, OpWhere, OpLocation, OpHere, OpNearby, OpNear, OpAt, OpIn, OpIsa:
		vm.opInstance(op)

	case OpPrint, OpStyle, OpSay, OpSayInt, OpSayStr, OpGetStr, OpQuit, OpLook,
		OpSave, OpRestore, OpRestart, OpScore, OpVisits, OpShow, OpPlay,
		OpSchedule, OpCancel, OpStop, OpUse, OpDescribe, OpList, OpEmpty:
		vm.opShell(op)

	case OpConcat, OpContains, OpStrip:
		vm.opString(op)

	case OpRnd:
		vm.opRandom()

	case OpFrame, OpGetLocal, OpSetLocal, OpEndFrame:
		vm.opFrame(op)

	case OpPushNil, OpPushTrue, OpPushObj, OpPushProp, OpPushStr, OpPushList, OpPushFunc, OpPushEnum, OpPushBif:
		vm.opTypedPush(op)

	case OpNew, OpGetProp, OpSetProp, OpPropCall, OpCall, OpCallBif, OpGetR0, OpRetVal,
		OpPushHandler, OpPopHandler, OpThrow, OpFail:
		vm.opObject(op)

	default:
		panic(vm.eb.unknownOp(int32(op)))
	}
}

// codeWord reads word pc of the code pool.
func (vm *VM) codeWord(pc uint32) (uint32, bool) {
	return pool.Uint32At(vm.code, pc*4)
}

// callFunc invokes the bytecode function at fn with argc arguments from the
// stack, first argument on top. The result is left in R0 and the stack is
// back where it was below the arguments.
func (vm *VM) callFunc(fn uint32, argc int, self ObjID) {
	if fn >= vm.codeWords {
		panic(vm.eb.badFunction(fn))
	}
	hdr := vm.fetch(fn)
	params, locals := int(hdr&0xffff), int(hdr>>16)
	if argc != params {
		vm.popN(argc)
		vm.throw(ExcWrongArgCount, "function at %d takes %d arguments, got %d", fn, params, argc)
		return
	}
	args := vm.popN(argc)
	savedPC, savedFP, savedSelf := vm.pc, vm.fp, vm.regs[RegSelf]
	start := vm.sp

	vm.openFrame(params + locals)
	for i := 1; i <= argc; i++ {
		vm.stack[vm.fp+i-1] = args[argc-i]
	}
	if self != InvalidObj {
		vm.regs[RegSelf] = ObjValue(self)
	}
	vm.r0 = NilValue
	vm.invoke(fn + 1)

	if vm.sp < start {
		panic(vm.eb.badFrame("callee popped below its frame"))
	}
	vm.cutStack(start)
	vm.fp = savedFP
	vm.pc = savedPC
	vm.regs[RegSelf] = savedSelf
}

// callValue invokes a function or built-in pointer.
func (vm *VM) callValue(fn Value, argc int) {
	switch fn.Kind {
	case KindFuncPtr:
		vm.callFunc(fn.Offset(), argc, InvalidObj)
	case KindBifPtr:
		set, idx := fn.Bif()
		vm.callBif(set, idx, argc)
	default:
		vm.popN(argc)
		vm.throw(ExcBadType, "cannot call %v", fn)
	}
}

// emitException reports an exception to the trace sink and the debug hook.
func (vm *VM) emitException(exc *Exception, caught bool) {
	trace.Point(vm.tracer, trace.ScopeInterpret, "exception", exc.Kind.String(), vm.runSpan, map[string]string{
		"pc":     strconv.FormatUint(uint64(exc.PC), 10),
		"caught": strconv.FormatBool(caught),
	})
	if vm.debug != nil {
		vm.debug.OnException(vm, exc, caught)
	}
}
