package vm

import (
	"fmt"
	"strings"

	"storyvm/internal/pool"
)

// PanicCode identifies a fatal interpreter error.
type PanicCode int

// Stable panic codes - do not change values.
const (
	PanicOutsideProgram   PanicCode = 1101 // VM1101: executing outside program
	PanicUnknownClass     PanicCode = 1102 // VM1102: unknown instruction class
	PanicUnknownOp        PanicCode = 1103 // VM1103: unknown statement opcode
	PanicStackUnderflow   PanicCode = 1104 // VM1104: stack underflow
	PanicStackOverflow    PanicCode = 1105 // VM1105: stack overflow
	PanicRecursion        PanicCode = 1106 // VM1106: re-entry at an active address
	PanicRecursionRing    PanicCode = 1107 // VM1107: recursion ring full
	PanicBadFrame         PanicCode = 1108 // VM1108: broken frame link
	PanicBadFunction      PanicCode = 1109 // VM1109: invalid function header
	PanicBadBif           PanicCode = 1110 // VM1110: built-in index out of range
	PanicDanglingObject   PanicCode = 1111 // VM1111: reference to a free object slot
	PanicBadPoolOffset    PanicCode = 1112 // VM1112: data pool offset does not validate
	PanicBadRegister      PanicCode = 1113 // VM1113: unknown context register
	PanicCanceled         PanicCode = 1114 // VM1114: context canceled between opcodes
	PanicPageSize         PanicCode = 1201 // VM1201: page size not a power of two
	PanicMetaclassDep     PanicCode = 1202 // VM1202: metaclass dependency unsatisfiable
	PanicPageLoad         PanicCode = 1203 // VM1203: pool page could not be loaded
	PanicInvalidReplayLog PanicCode = 1301 // VM1301: malformed replay log
	PanicReplayMismatch   PanicCode = 1302 // VM1302: replay diverged from log
	PanicReplayExhausted  PanicCode = 1303 // VM1303: replay log exhausted
	PanicUnimplemented    PanicCode = 1999 // VM1999: internal error
)

// String returns the code as "VM1101" format.
func (c PanicCode) String() string {
	return fmt.Sprintf("VM%d", c)
}

// VMError is a fatal interpreter error. Bytecode cannot catch it.
type VMError struct {
	Code      PanicCode
	Message   string
	PC        uint32   // word index of the failing instruction
	Op        string   // mnemonic of the failing instruction, if decoded
	Backtrace []uint32 // entry pc of each active invocation, innermost first
	Stack     []Value  // operand stack at the time of the error (top last)
	Cause     error    // underlying host error, for attach failures
}

// Error implements the error interface.
func (e *VMError) Error() string {
	return fmt.Sprintf("panic %s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying host error, if any.
func (e *VMError) Unwrap() error { return e.Cause }

// Format renders the error with symbol names where syms knows them.
func (e *VMError) Format(syms func(pc uint32) (string, bool)) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "panic %s: %s\n", e.Code, e.Message)
	fmt.Fprintf(&sb, "at pc=%06d", e.PC)
	if e.Op != "" {
		fmt.Fprintf(&sb, " %s", e.Op)
	}
	sb.WriteString("\n")
	if len(e.Backtrace) > 0 {
		sb.WriteString("backtrace:\n")
		for i, pc := range e.Backtrace {
			name := ""
			if syms != nil {
				if n, ok := syms(pc); ok {
					name = " " + n
				}
			}
			fmt.Fprintf(&sb, "  %d: pc=%06d%s\n", i, pc, name)
		}
	}
	if len(e.Stack) > 0 {
		sb.WriteString("stack:")
		for _, v := range e.Stack {
			sb.WriteString(" ")
			sb.WriteString(v.String())
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// errorBuilder helps construct VMError values.
type errorBuilder struct {
	vm *VM
}

// maxErrorStack caps the stack snapshot carried by a VMError.
const maxErrorStack = 32

func (eb *errorBuilder) makeError(code PanicCode, msg string) *VMError {
	vm := eb.vm
	e := &VMError{
		Code:    code,
		Message: msg,
		PC:      vm.lastPC,
	}
	if vm.lastWordOK {
		e.Op = disasm(vm.lastWord)
	}
	for i := len(vm.invocations) - 1; i >= 0; i-- {
		e.Backtrace = append(e.Backtrace, vm.invocations[i])
	}
	from := max(0, vm.sp-maxErrorStack)
	e.Stack = append([]Value(nil), vm.stack[from:vm.sp]...)
	return e
}

func (eb *errorBuilder) outsideProgram(pc uint32) *VMError {
	return eb.makeError(PanicOutsideProgram, fmt.Sprintf("executing outside program at pc=%d", pc))
}

func (eb *errorBuilder) unknownClass(w uint32) *VMError {
	return eb.makeError(PanicUnknownClass, fmt.Sprintf("unknown instruction class %d in word %#08x", w>>28, w))
}

func (eb *errorBuilder) unknownOp(op int32) *VMError {
	return eb.makeError(PanicUnknownOp, fmt.Sprintf("unknown statement opcode %d", op))
}

func (eb *errorBuilder) stackUnderflow(need, have int) *VMError {
	return eb.makeError(PanicStackUnderflow, fmt.Sprintf("stack underflow: need %d, have %d", need, have))
}

func (eb *errorBuilder) stackOverflow(limit int) *VMError {
	return eb.makeError(PanicStackOverflow, fmt.Sprintf("stack overflow: depth limit %d", limit))
}

func (eb *errorBuilder) recursion(pc uint32) *VMError {
	return eb.makeError(PanicRecursion, fmt.Sprintf("recursive entry at pc=%d", pc))
}

func (eb *errorBuilder) recursionRingFull() *VMError {
	return eb.makeError(PanicRecursionRing, fmt.Sprintf("recursion ring full (%d entries)", RecursionRingSize))
}

func (eb *errorBuilder) badFrame(what string) *VMError {
	return eb.makeError(PanicBadFrame, "frame: "+what)
}

func (eb *errorBuilder) badFunction(pc uint32) *VMError {
	return eb.makeError(PanicBadFunction, fmt.Sprintf("no function header at pc=%d", pc))
}

func (eb *errorBuilder) badBif(set, fn uint16) *VMError {
	return eb.makeError(PanicBadBif, fmt.Sprintf("built-in function %d.%d is not loaded", set, fn))
}

func (eb *errorBuilder) danglingObject(id ObjID) *VMError {
	return eb.makeError(PanicDanglingObject, fmt.Sprintf("reference to free object slot %d", id))
}

func (eb *errorBuilder) badPoolOffset(ofs uint32) *VMError {
	return eb.makeError(PanicBadPoolOffset, fmt.Sprintf("data pool offset %d is invalid", ofs))
}

func (eb *errorBuilder) badRegister(n int32) *VMError {
	return eb.makeError(PanicBadRegister, fmt.Sprintf("unknown context register %d", n))
}

func (eb *errorBuilder) pageLoad(err *pool.LoadError) *VMError {
	e := eb.makeError(PanicPageLoad, fmt.Sprintf("loading pool page %d: %v", err.Page, err.Err))
	e.Cause = err
	return e
}

func (eb *errorBuilder) invalidReplayLog(msg string) *VMError {
	return eb.makeError(PanicInvalidReplayLog, "invalid replay log: "+msg)
}

func (eb *errorBuilder) replayMismatch(msg string) *VMError {
	return eb.makeError(PanicReplayMismatch, msg)
}

func (eb *errorBuilder) replayExhausted() *VMError {
	return eb.makeError(PanicReplayExhausted, "replay log exhausted")
}

// panic raises a fatal error; Interpret recovers it.
func (vm *VM) panic(code PanicCode, msg string) {
	panic(vm.eb.makeError(code, msg))
}

// ParsePanicCode parses "VM1101" into a PanicCode.
func ParsePanicCode(code string) (PanicCode, bool) {
	code = strings.TrimSpace(code)
	if !strings.HasPrefix(code, "VM") || len(code) == 2 {
		return 0, false
	}
	n := 0
	for _, ch := range code[2:] {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + int(ch-'0')
	}
	if n == 0 {
		return 0, false
	}
	return PanicCode(n), true
}
