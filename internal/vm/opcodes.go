package vm

import "fmt"

// Instruction classes, held in the top four bits of a code word.
const (
	ClassConst  uint32 = 0
	ClassStmop  uint32 = 1
	ClassCurVar uint32 = 2
)

const (
	operandMask = 0x0fffffff
	operandSign = 0x08000000
)

// MaxConst and MinConst bound the literal a CONST word can carry.
const (
	MaxConst = operandSign - 1
	MinConst = -operandSign
)

// decode splits a code word into class and sign-extended operand.
func decode(w uint32) (class uint32, operand int32) {
	class = w >> 28
	op := w & operandMask
	if op&operandSign != 0 {
		op |= ^uint32(operandMask)
	}
	return class, int32(op) //nolint:gosec // sign-extended 28-bit operand
}

func encode(class uint32, operand int32) uint32 {
	return class<<28 | uint32(operand)&operandMask //nolint:gosec // two's complement truncation
}

// Const encodes a CONST word. The literal must lie in [MinConst, MaxConst].
func Const(n int32) uint32 { return encode(ClassConst, n) }

// Stmop encodes a statement opcode word.
func Stmop(op Op) uint32 { return encode(ClassStmop, int32(op)) }

// CurVar encodes a context register read.
func CurVar(r Register) uint32 { return encode(ClassCurVar, int32(r)) }

// FuncHeader encodes the word at a function pointer.
func FuncHeader(params, locals uint16) uint32 { return uint32(params) | uint32(locals)<<16 }

// Register selects a CURVAR context register.
type Register int32

const (
	RegLocation Register = iota
	RegActor
	RegVerb
	RegScore
	RegInstance
	RegMaxInstance
	RegTurns
	RegSelf
	numRegisters
)

var regNames = [numRegisters]string{
	"location", "actor", "verb", "score", "instance", "maxinstance", "turns", "self",
}

func (r Register) String() string {
	if r >= 0 && r < numRegisters {
		return regNames[r]
	}
	return fmt.Sprintf("reg(%d)", int32(r))
}

// Op is a statement opcode.
type Op int32

const (
	opInvalid Op = iota

	OpPop
	OpDup

	OpPlus
	OpMinus
	OpMult
	OpDiv
	OpUMinus
	OpIncr
	OpDecr

	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpStrEq
	OpStrExact
	OpBetween

	OpAnd
	OpOr
	OpNot

	OpIf
	OpElse
	OpEndIf
	OpLoop
	OpLoopNext
	OpLoopEnd
	OpDepend
	OpDepCase
	OpDepExec
	OpDepElse
	OpEndDep
	OpReturn

	OpMin
	OpMax
	OpSum
	OpCount

	OpNewSet
	OpUnion
	OpInclude
	OpExclude
	OpInSet
	OpSetSize
	OpSetMemb
	OpContSize
	OpContMemb

	OpAttribute
	OpStrAttr
	OpAttrSet
	OpMake
	OpSet
	OpSetStr
	OpSetSet

	OpLocate
	OpWhere
	OpLocation
	OpHere
	OpNearby
	OpNear
	OpAt
	OpIn
	OpIsa

	OpPrint
	OpStyle
	OpSay
	OpSayInt
	OpSayStr
	OpGetStr
	OpQuit
	OpLook
	OpSave
	OpRestore
	OpRestart
	OpScore
	OpVisits
	OpShow
	OpPlay
	OpSchedule
	OpCancel
	OpStop
	OpUse
	OpDescribe
	OpList
	OpEmpty

	OpConcat
	OpContains
	OpStrip

	OpRnd

	OpFrame
	OpGetLocal
	OpSetLocal
	OpEndFrame

	OpPushNil
	OpPushTrue
	OpPushObj
	OpPushProp
	OpPushStr
	OpPushList
	OpPushFunc
	OpPushEnum
	OpPushBif

	OpNew
	OpGetProp
	OpSetProp
	OpPropCall
	OpCall
	OpCallBif
	OpGetR0
	OpRetVal
	OpPushHandler
	OpPopHandler
	OpThrow
	OpFail

	numOps
)

var opNames = [numOps]string{
	opInvalid: "INVALID",
	OpPop:     "POP", OpDup: "DUP",
	OpPlus: "PLUS", OpMinus: "MINUS", OpMult: "MULT", OpDiv: "DIV", OpUMinus: "UMINUS",
	OpIncr: "INCR", OpDecr: "DECR",
	OpEq: "EQ", OpNe: "NE", OpLt: "LT", OpLe: "LE", OpGt: "GT", OpGe: "GE",
	OpStrEq: "STREQ", OpStrExact: "STREXACT", OpBetween: "BETWEEN",
	OpAnd: "AND", OpOr: "OR", OpNot: "NOT",
	OpIf: "IF", OpElse: "ELSE", OpEndIf: "ENDIF",
	OpLoop: "LOOP", OpLoopNext: "LOOPNEXT", OpLoopEnd: "LOOPEND",
	OpDepend: "DEPEND", OpDepCase: "DEPCASE", OpDepExec: "DEPEXEC", OpDepElse: "DEPELSE", OpEndDep: "ENDDEP",
	OpReturn: "RETURN",
	OpMin:    "MIN", OpMax: "MAX", OpSum: "SUM", OpCount: "COUNT",
	OpNewSet: "NEWSET", OpUnion: "UNION", OpInclude: "INCLUDE", OpExclude: "EXCLUDE",
	OpInSet: "INSET", OpSetSize: "SETSIZE", OpSetMemb: "SETMEMB", OpContSize: "CONTSIZE", OpContMemb: "CONTMEMB",
	OpAttribute: "ATTRIBUTE", OpStrAttr: "STRATTR", OpAttrSet: "ATTRSET",
	OpMake: "MAKE", OpSet: "SET", OpSetStr: "SETSTR", OpSetSet: "SETSET",
	OpLocate: "LOCATE", OpWhere: "WHERE", OpLocation: "LOCATION", OpHere: "HERE",
	OpNearby: "NEARBY", OpNear: "NEAR", OpAt: "AT", OpIn: "IN", OpIsa: "ISA",
	OpPrint: "PRINT", OpStyle: "STYLE", OpSay: "SAY", OpSayInt: "SAYINT", OpSayStr: "SAYSTR",
	OpGetStr: "GETSTR", OpQuit: "QUIT", OpLook: "LOOK", OpSave: "SAVE", OpRestore: "RESTORE",
	OpRestart: "RESTART", OpScore: "SCORE", OpVisits: "VISITS", OpShow: "SHOW", OpPlay: "PLAY",
	OpSchedule: "SCHEDULE", OpCancel: "CANCEL", OpStop: "STOP", OpUse: "USE",
	OpDescribe: "DESCRIBE", OpList: "LIST", OpEmpty: "EMPTY",
	OpConcat: "CONCAT", OpContains: "CONTAINS", OpStrip: "STRIP",
	OpRnd:   "RND",
	OpFrame: "FRAME", OpGetLocal: "GETLOCAL", OpSetLocal: "SETLOCAL", OpEndFrame: "ENDFRAME",
	OpPushNil: "PUSHNIL", OpPushTrue: "PUSHTRUE", OpPushObj: "PUSHOBJ", OpPushProp: "PUSHPROP",
	OpPushStr: "PUSHSTR", OpPushList: "PUSHLIST", OpPushFunc: "PUSHFUNC", OpPushEnum: "PUSHENUM",
	OpPushBif: "PUSHBIF",
	OpNew:     "NEW", OpGetProp: "GETPROP", OpSetProp: "SETPROP", OpPropCall: "PROPCALL",
	OpCall: "CALL", OpCallBif: "CALLBIF", OpGetR0: "GETR0", OpRetVal: "RETVAL",
	OpPushHandler: "PUSHHANDLER", OpPopHandler: "POPHANDLER", OpThrow: "THROW", OpFail: "FAIL",
}

func (op Op) String() string {
	if op > opInvalid && op < numOps {
		return opNames[op]
	}
	return fmt.Sprintf("OP(%d)", int32(op))
}

// Valid reports whether op is a defined statement opcode.
func (op Op) Valid() bool { return op > opInvalid && op < numOps }

// OpByName looks up a mnemonic.
func OpByName(name string) (Op, bool) {
	for op := OpPop; op < numOps; op++ {
		if opNames[op] == name {
			return op, true
		}
	}
	return opInvalid, false
}

// disasm renders one code word.
func disasm(w uint32) string {
	class, operand := decode(w)
	switch class {
	case ClassConst:
		return fmt.Sprintf("CONST %d", operand)
	case ClassStmop:
		return Op(operand).String()
	case ClassCurVar:
		return "CURVAR " + Register(operand).String()
	default:
		return fmt.Sprintf("?%#08x", w)
	}
}

// Disasm renders one code word for tools.
func Disasm(w uint32) string { return disasm(w) }
