package vm

import "fmt"

// Structured control flow has no jump operands. IF, LOOP and DEPEND find
// their targets by scanning the word stream and counting nesting; results are
// cached per (pc, scan) because the code pool is immutable while attached.

type scanKind uint8

const (
	scanIfFalse scanKind = iota + 1
	scanElse
	scanLoopExit
	scanLoopBack
	scanDepNext
	scanDepEnd
)

type jumpKey struct {
	pc   uint32
	kind scanKind
}

// fetch reads the code word at pc.
func (vm *VM) fetch(pc uint32) uint32 {
	if pc >= vm.codeWords {
		panic(vm.eb.outsideProgram(pc))
	}
	w, ok := vm.codeWord(pc)
	if !ok {
		panic(vm.eb.outsideProgram(pc))
	}
	return w
}

// stmopAt returns the opcode at pc, or opInvalid for CONST and CURVAR words.
func (vm *VM) stmopAt(pc uint32) Op {
	class, operand := decode(vm.fetch(pc))
	if class != ClassStmop {
		return opInvalid
	}
	return Op(operand)
}

// scanForward looks for the first target at nesting level zero, starting at
// from. open and close adjust the level; a close at level zero ends the scan
// as well. It returns the opcode found and its pc.
func (vm *VM) scanForward(from uint32, open, close Op, targets ...Op) (Op, uint32) {
	level := 0
	for pc := from; ; pc++ {
		op := vm.stmopAt(pc)
		switch {
		case op == opInvalid:
		case op == open:
			level++
		case op == close:
			if level == 0 {
				return op, pc
			}
			level--
		case level == 0:
			for _, t := range targets {
				if op == t {
					return op, pc
				}
			}
		}
	}
}

// scanBackward finds the opener matching the closer just before from.
func (vm *VM) scanBackward(from uint32, open, close Op) uint32 {
	level := 0
	for pc := from; ; pc-- {
		op := vm.stmopAt(pc)
		switch op {
		case close:
			level++
		case open:
			if level == 0 {
				return pc
			}
			level--
		}
		if pc == 0 {
			panic(vm.eb.badFrame(fmt.Sprintf("no %s before pc=%d", open, from)))
		}
	}
}

// jump moves pc to the target of the given scan, which starts from the word
// after the opcode just executed.
func (vm *VM) jump(kind scanKind) {
	key := jumpKey{pc: vm.pc, kind: kind}
	if to, ok := vm.jumps[key]; ok {
		vm.pc = to
		return
	}
	var to uint32
	switch kind {
	case scanIfFalse:
		_, at := vm.scanForward(vm.pc, OpIf, OpEndIf, OpElse)
		to = at + 1
	case scanElse:
		_, at := vm.scanForward(vm.pc, OpIf, OpEndIf)
		to = at + 1
	case scanLoopExit:
		_, at := vm.scanForward(vm.pc, OpLoop, OpLoopEnd)
		to = at
	case scanLoopBack:
		if vm.pc < 2 {
			panic(vm.eb.badFrame("LOOPEND without LOOP"))
		}
		to = vm.scanBackward(vm.pc-2, OpLoop, OpLoopEnd)
	case scanDepNext:
		op, at := vm.scanForward(vm.pc, OpDepend, OpEndDep, OpDepCase, OpDepElse)
		to = at + 1
		if op == OpEndDep {
			to = at
		}
	case scanDepEnd:
		_, at := vm.scanForward(vm.pc, OpDepend, OpEndDep)
		to = at
	}
	if vm.jumps == nil {
		vm.jumps = make(map[jumpKey]uint32)
	}
	vm.jumps[key] = to
	vm.pc = to
}
