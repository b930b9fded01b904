package vm

// Operand stack and frames.
//
// The stack grows upward from index 0. A frame is a saved frame-pointer link
// followed by its locals; fp indexes the first local and the link sits at
// fp-1. Links store prev+1 so the chain ends at zero (fp == -1).

const (
	// DefaultStackDepth is the operand stack ceiling when none is configured.
	DefaultStackDepth = 4096
	// DefaultStackMargin is the reserve kept for error recovery.
	DefaultStackMargin = 64
)

// need checks that down values can be popped and up values pushed.
func (vm *VM) need(down, up int) {
	if vm.sp < down {
		panic(vm.eb.stackUnderflow(down, vm.sp))
	}
	if vm.sp-down+up > vm.stackLimit {
		panic(vm.eb.stackOverflow(vm.stackLimit))
	}
}

func (vm *VM) push(v Value) {
	vm.need(0, 1)
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	vm.need(1, 0)
	vm.sp--
	v := vm.stack[vm.sp]
	vm.stack[vm.sp] = Value{}
	vm.root(v)
	return v
}

// root keeps an object popped by the running opcode reachable until the
// opcode completes, so an allocation inside it cannot sweep its operands.
func (vm *VM) root(v Value) {
	if vm.opDepth > 0 && v.Kind == KindObj {
		vm.scratch = append(vm.scratch, v)
	}
}

// peek returns the value i slots below the top (0 is the top).
func (vm *VM) peek(i int) Value {
	vm.need(i+1, 0)
	return vm.stack[vm.sp-1-i]
}

// popN pops n values and returns them in push order.
func (vm *VM) popN(n int) []Value {
	vm.need(n, 0)
	out := make([]Value, n)
	copy(out, vm.stack[vm.sp-n:vm.sp])
	vm.cutStack(vm.sp - n)
	for _, v := range out {
		vm.root(v)
	}
	return out
}

// cutStack discards everything at or above sp.
func (vm *VM) cutStack(sp int) {
	if sp < 0 || sp > vm.sp {
		panic(vm.eb.badFrame("stack cut outside the live stack"))
	}
	clear(vm.stack[sp:vm.sp])
	vm.sp = sp
}

func linkValue(prevFP int) Value {
	return Value{Kind: KindCodeOfs, V: uint32(prevFP + 1)} //nolint:gosec // prevFP >= -1
}

// openFrame pushes the frame link and n nil locals.
func (vm *VM) openFrame(n int) {
	if n < 0 {
		panic(vm.eb.badFrame("negative local count"))
	}
	vm.need(0, n+1)
	vm.push(linkValue(vm.fp))
	vm.fp = vm.sp
	for range n {
		vm.push(NilValue)
	}
}

// closeFrame restores the saved frame pointer and cuts the stack back to
// where the frame began.
func (vm *VM) closeFrame() {
	if vm.fp < 1 {
		panic(vm.eb.badFrame("no open frame"))
	}
	link := vm.stack[vm.fp-1]
	if link.Kind != KindCodeOfs {
		panic(vm.eb.badFrame("frame link overwritten"))
	}
	start := vm.fp - 1
	vm.fp = int(link.V) - 1
	vm.cutStack(start)
}

// frameExtent walks below links back from the current frame and returns the
// first local of that frame and the index just past its last stack slot. An
// enclosing frame ends at the link of the frame nested in it.
func (vm *VM) frameExtent(below int) (base, end int) {
	if below < 0 {
		panic(vm.eb.badFrame("negative frame depth"))
	}
	f, end := vm.fp, vm.sp
	for range below {
		if f < 1 {
			break
		}
		link := vm.stack[f-1]
		if link.Kind != KindCodeOfs {
			panic(vm.eb.badFrame("frame link overwritten"))
		}
		end = f - 1
		f = int(link.V) - 1
	}
	if f < 1 {
		panic(vm.eb.badFrame("no frame at that depth"))
	}
	return f, end
}

func (vm *VM) localSlot(below, slot int) int {
	base, end := vm.frameExtent(below)
	idx := base + slot - 1
	if slot < 1 || idx >= end {
		panic(vm.eb.badFrame("local index out of range"))
	}
	return idx
}

func (vm *VM) getLocal(below, slot int) Value {
	return vm.stack[vm.localSlot(below, slot)]
}

func (vm *VM) setLocal(below, slot int, v Value) {
	vm.stack[vm.localSlot(below, slot)] = v
}

// withMargin runs fn with the reserve margin added to the stack ceiling.
func (vm *VM) withMargin(fn func()) {
	saved := vm.stackLimit
	vm.stackLimit = min(len(vm.stack), saved+vm.stackMargin)
	defer func() { vm.stackLimit = saved }()
	fn()
}

// Depth returns the operand stack depth.
func (vm *VM) Depth() int { return vm.sp }

// FramePointer returns the current frame pointer (-1 when no frame is open).
func (vm *VM) FramePointer() int { return vm.fp }

// Peek returns the value i slots below the top without popping it.
func (vm *VM) Peek(i int) (Value, bool) {
	if i < 0 || i >= vm.sp {
		return Value{}, false
	}
	return vm.stack[vm.sp-1-i], true
}

// StackValues returns a copy of the live stack, bottom first.
func (vm *VM) StackValues() []Value {
	return append([]Value(nil), vm.stack[:vm.sp]...)
}

// Local returns slot (1-based) of the frame below levels out, or false when
// no such local exists.
func (vm *VM) Local(below, slot int) (v Value, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if _, isVM := r.(*VMError); !isVM {
				panic(r)
			}
			v, ok = Value{}, false
		}
	}()
	return vm.getLocal(below, slot), true
}
