package vm

import "fmt"

// ExcKind is the code of a recoverable bytecode exception. A handler that
// catches a runtime exception receives the code as an integer.
type ExcKind int32

const (
	ExcThrown          ExcKind = 1  // THROW from bytecode; the handler receives the thrown value
	ExcWrongArgCount   ExcKind = 2  // wrong number of arguments
	ExcBadType         ExcKind = 3  // wrong argument or operand type
	ExcStringRequired  ExcKind = 4  // string value required
	ExcListRequired    ExcKind = 5  // list value required
	ExcFileNotFound    ExcKind = 6  // file not found
	ExcNotWritable     ExcKind = 7  // file not writable
	ExcOutOfMemory     ExcKind = 8  // object table exhausted after a collection
	ExcWriteFailed     ExcKind = 9  // write failure
	ExcReadFailed      ExcKind = 10 // read failure
	ExcInvalidPropSet  ExcKind = 11 // property set on an immutable object
	ExcDivideByZero    ExcKind = 12 // integer or BigNumber division by zero
	ExcNumOverflow     ExcKind = 13 // out-of-range numeric conversion
	ExcNoAttribute     ExcKind = 14 // attribute not defined on instance
	ExcMetaclassTooOld ExcKind = 15 // metaclass version too old
	ExcIndexRange      ExcKind = 16 // index out of range
	ExcBadObject       ExcKind = 17 // value is not a live object
	ExcFileSafety      ExcKind = 18 // file access forbidden by the I/O safety level
	ExcBadValue        ExcKind = 19 // invalid value for the operation
)

var excNames = map[ExcKind]string{
	ExcThrown:          "thrown",
	ExcWrongArgCount:   "wrong number of arguments",
	ExcBadType:         "invalid type",
	ExcStringRequired:  "string value required",
	ExcListRequired:    "list value required",
	ExcFileNotFound:    "file not found",
	ExcNotWritable:     "file not writable",
	ExcOutOfMemory:     "out of memory",
	ExcWriteFailed:     "write failed",
	ExcReadFailed:      "read failed",
	ExcInvalidPropSet:  "invalid property set",
	ExcDivideByZero:    "divide by zero",
	ExcNumOverflow:     "numeric overflow",
	ExcNoAttribute:     "attribute not defined",
	ExcMetaclassTooOld: "metaclass too old",
	ExcIndexRange:      "index out of range",
	ExcBadObject:       "invalid object",
	ExcFileSafety:      "file access forbidden",
	ExcBadValue:        "invalid value",
}

func (k ExcKind) String() string {
	if s, ok := excNames[k]; ok {
		return s
	}
	return fmt.Sprintf("exception(%d)", int32(k))
}

// Exception is a pending or uncaught bytecode exception.
type Exception struct {
	Kind    ExcKind
	Value   Value // delivered to the handler
	Message string
	PC      uint32
}

func (e *Exception) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("uncaught exception: %s", e.Kind)
	}
	return fmt.Sprintf("uncaught exception: %s: %s", e.Kind, e.Message)
}

// handler is a catch point recorded by PUSHHANDLER.
type handler struct {
	target uint32 // pc of the catch code
	sp     int
	fp     int
}

// throw records a pending exception; the loop unwinds at the next opcode
// boundary. A second throw before then is dropped.
func (vm *VM) throw(kind ExcKind, format string, args ...any) {
	if vm.pending != nil {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	vm.pending = &Exception{Kind: kind, Value: IntValue(int32(kind)), Message: msg, PC: vm.lastPC}
}

// throwValue raises a bytecode-level THROW of v.
func (vm *VM) throwValue(v Value) {
	if vm.pending != nil {
		return
	}
	vm.pending = &Exception{Kind: ExcThrown, Value: v, PC: vm.lastPC}
}

// Pending returns the exception waiting to be unwound, if any.
func (vm *VM) Pending() *Exception { return vm.pending }

// interrupted reports whether an exception or the fail flag stops the loop.
func (vm *VM) interrupted() bool { return vm.pending != nil || vm.failFlag }

// unwind transfers control to the innermost handler pushed by the current
// invocation. It reports false when the invocation has none, leaving the
// exception pending for the caller.
func (vm *VM) unwind(base int) bool {
	if len(vm.handlers) <= base {
		return false
	}
	h := vm.handlers[len(vm.handlers)-1]
	vm.handlers = vm.handlers[:len(vm.handlers)-1]
	vm.cutStack(h.sp)
	vm.fp = h.fp
	if vm.failFlag {
		vm.failFlag = false
		vm.push(EmptyValue)
	} else {
		exc := vm.pending
		vm.pending = nil
		vm.emitException(exc, true)
		vm.push(exc.Value)
	}
	vm.pc = h.target
	return true
}
