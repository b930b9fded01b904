package vm

import (
	"strconv"
	"strings"
)

func (vm *VM) opShell(op Op) {
	switch op {
	case OpPrint:
		vm.host.Output(vm.displayString(vm.pop()))
	case OpSayStr:
		if s, ok := vm.popString(); ok {
			vm.host.Output(s)
		}
	case OpSayInt:
		if n, ok := vm.popInt(); ok {
			vm.host.Output(strconv.FormatInt(int64(n), 10))
		}
	case OpSay:
		form, ok := vm.popInt()
		if !ok {
			return
		}
		if form < SaySimple || form > SayPronoun {
			vm.pop()
			vm.throw(ExcBadValue, "SAY: unknown form %d", form)
			return
		}
		vm.host.Output(vm.sayForm(vm.pop(), form))
	case OpStyle:
		n, ok := vm.popInt()
		if !ok {
			return
		}
		if st, ok := vm.host.(Styler); ok {
			st.SetStyle(int(n))
		}

	case OpGetStr:
		n, ok := vm.popInt()
		if !ok {
			return
		}
		s, ok := vm.constString(uint32(n)) //nolint:gosec // negative offsets fail the lookup
		if n < 0 || !ok {
			panic(vm.eb.badPoolOffset(uint32(n))) //nolint:gosec // reported as given
		}
		vm.push(vm.newString(s))

	case OpQuit:
		vm.halted = true
	case OpRestart:
		vm.restartReq = true
		vm.halted = true
	case OpSave:
		vm.r0 = BoolValue(vm.saveState())
	case OpRestore:
		vm.r0 = BoolValue(vm.restoreState())

	case OpScore:
		n, ok := vm.popInt()
		if !ok {
			return
		}
		cur := int32(0)
		if s := vm.regs[RegScore]; s.Kind == KindInt {
			cur = s.Int()
		}
		vm.SetRegister(RegScore, IntValue(cur+n))
	case OpVisits:
		n, ok := vm.popInt()
		if !ok {
			return
		}
		if here := vm.objects.Lookup(vm.currentPlace()); here != nil {
			vm.setPropValue(here, PropVisits, IntValue(n))
		}

	case OpShow:
		pos, ok := vm.popInt()
		if !ok {
			return
		}
		name, ok := vm.popString()
		if !ok {
			return
		}
		if m, ok := vm.host.(MediaHost); ok {
			m.ShowImage(name, int(pos))
		}
	case OpPlay:
		name, ok := vm.popString()
		if !ok {
			return
		}
		if m, ok := vm.host.(MediaHost); ok {
			m.PlaySound(name)
		}

	case OpSchedule:
		after, ok := vm.popInt()
		if !ok {
			return
		}
		arg := vm.pop()
		vm.schedule(vm.pop(), arg, after)
	case OpCancel:
		fn := vm.pop()
		if fn.Kind != KindFuncPtr {
			vm.throw(ExcBadType, "CANCEL: function pointer required, got %v", fn.Kind)
			return
		}
		vm.events.cancel(fn.Offset())
	case OpUse:
		script := vm.pop()
		if actor := vm.object(vm.pop()); actor != nil {
			vm.startScript(actor, script)
		}
	case OpStop:
		if actor := vm.object(vm.pop()); actor != nil {
			vm.stopScript(actor)
		}

	case OpDescribe:
		if o := vm.object(vm.pop()); o != nil {
			vm.describe(o)
		}
	case OpLook:
		vm.look()
	case OpList:
		if o := vm.object(vm.pop()); o != nil {
			vm.listContents(o)
		}
	case OpEmpty:
		where := vm.object(vm.pop())
		if where == nil {
			return
		}
		cont := vm.object(vm.pop())
		if cont == nil {
			return
		}
		for _, id := range vm.contents(cont.id, TransDirect) {
			vm.locate(vm.objects.Lookup(id), where)
			if vm.pending != nil {
				return
			}
		}
	}
}

// describe prints the description of o, calling it with o as self when it
// is a function.
func (vm *VM) describe(o *Object) {
	d, found := vm.propValue(o, PropDescription)
	if !found {
		return
	}
	if d.Kind == KindFuncPtr {
		vm.callFunc(d.Offset(), 0, o.id)
		return
	}
	vm.host.Output(vm.displayString(d))
}

// look prints the current location: its name as a heading, its description
// and what it holds.
func (vm *VM) look() {
	here := vm.objects.Lookup(vm.currentPlace())
	if here == nil {
		return
	}
	if name, ok := vm.objectName(here); ok {
		vm.host.Output(name + "\n")
	}
	vm.describe(here)
	if vm.interrupted() {
		return
	}
	vm.listContents(here)
}

// listContents prints the direct contents of o other than the actor as one
// sentence.
func (vm *VM) listContents(o *Object) {
	actor := vm.regs[RegActor]
	var names []string
	for _, id := range vm.contents(o.id, TransDirect) {
		if actor.Kind == KindObj && actor.Obj() == id {
			continue
		}
		names = append(names, vm.sayForm(ObjValue(id), SayIndefinite))
	}
	if len(names) == 0 {
		return
	}
	vm.host.Output("You see " + joinAnd(names) + ".\n")
}

func joinAnd(items []string) string {
	if len(items) == 1 {
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

func (vm *VM) opString(op Op) {
	switch op {
	case OpConcat:
		b, a := vm.pop(), vm.pop()
		vm.push(vm.newString(vm.displayString(a) + vm.displayString(b)))
	case OpContains:
		sub, ok := vm.popString()
		if !ok {
			return
		}
		s, ok := vm.popString()
		if !ok {
			return
		}
		vm.push(BoolValue(containsFold(s, sub)))
	case OpStrip:
		vm.opStrip()
	}
}

// opStrip removes words from a string: count words starting at word first
// (1-based). It leaves the rest and the stripped words, stripped on top.
func (vm *VM) opStrip() {
	count, ok := vm.popInt()
	if !ok {
		return
	}
	first, ok := vm.popInt()
	if !ok {
		return
	}
	s, ok := vm.popString()
	if !ok {
		return
	}
	if first < 1 || count < 0 {
		vm.throw(ExcIndexRange, "STRIP: %d words from word %d", count, first)
		return
	}
	words := strings.Fields(s)
	lo := min(int(first)-1, len(words))
	hi := min(lo+int(count), len(words))
	stripped := strings.Join(words[lo:hi], " ")
	rest := strings.Join(append(append([]string(nil), words[:lo]...), words[hi:]...), " ")
	r := vm.newString(rest)
	if vm.pending != nil {
		return
	}
	st := vm.newString(stripped)
	if vm.pending != nil {
		return
	}
	vm.push(r)
	vm.push(st)
}

// opRandom pushes a uniform integer in [lo, hi].
func (vm *VM) opRandom() {
	hi, ok := vm.popInt()
	if !ok {
		return
	}
	lo, ok := vm.popInt()
	if !ok {
		return
	}
	if hi < lo {
		vm.throw(ExcBadValue, "RND: empty range %d..%d", lo, hi)
		return
	}
	span := uint64(int64(hi)-int64(lo)) + 1
	vm.push(IntValue(int32(int64(lo) + int64(vm.rng.Uint64N(span))))) //nolint:gosec // within [lo, hi]
}
