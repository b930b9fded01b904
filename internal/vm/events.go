package vm

import (
	"context"
	"slices"
)

// event is a function scheduled to run when the turn counter reaches due.
type event struct {
	fn  uint32
	arg Value
	due int32
	seq uint64
}

// eventQueue holds scheduled events and the actors running scripts.
type eventQueue struct {
	pending []event
	seq     uint64
	actors  []ObjID
}

func (q *eventQueue) reset() {
	q.pending = q.pending[:0]
	q.actors = q.actors[:0]
	q.seq = 0
}

func (q *eventQueue) add(fn uint32, arg Value, due int32) {
	q.seq++
	q.pending = append(q.pending, event{fn: fn, arg: arg, due: due, seq: q.seq})
}

func (q *eventQueue) cancel(fn uint32) int {
	n := len(q.pending)
	q.pending = slices.DeleteFunc(q.pending, func(e event) bool { return e.fn == fn })
	return n - len(q.pending)
}

// takeDue removes and returns the events due at or before turn, oldest first.
func (q *eventQueue) takeDue(turn int32) []event {
	var due []event
	q.pending = slices.DeleteFunc(q.pending, func(e event) bool {
		if e.due <= turn {
			due = append(due, e)
			return true
		}
		return false
	})
	slices.SortFunc(due, func(a, b event) int {
		if a.due != b.due {
			return int(a.due - b.due)
		}
		return int(a.seq) - int(b.seq) //nolint:gosec // sequence numbers stay small
	})
	return due
}

func (q *eventQueue) addActor(id ObjID) {
	if !slices.Contains(q.actors, id) {
		q.actors = append(q.actors, id)
	}
}

func (q *eventQueue) removeActor(id ObjID) {
	q.actors = slices.DeleteFunc(q.actors, func(a ObjID) bool { return a == id })
}

func (q *eventQueue) markRefs(mark func(Value)) {
	for _, e := range q.pending {
		mark(e.arg)
	}
	for _, a := range q.actors {
		mark(ObjValue(a))
	}
}

// Scheduled returns the number of pending events.
func (vm *VM) Scheduled() int { return len(vm.events.pending) }

func (vm *VM) schedule(fn Value, arg Value, after int32) {
	if fn.Kind != KindFuncPtr {
		vm.throw(ExcBadType, "SCHEDULE: function pointer required, got %v", fn.Kind)
		return
	}
	if after < 0 {
		vm.throw(ExcBadValue, "SCHEDULE: negative delay %d", after)
		return
	}
	vm.events.add(fn.Offset(), arg, vm.turn()+after)
}

func (vm *VM) turn() int32 {
	if t := vm.regs[RegTurns]; t.Kind == KindInt {
		return t.Int()
	}
	return 0
}

// startScript gives actor a script: a list of function pointers run one per
// turn with the actor as self.
func (vm *VM) startScript(actor *Object, script Value) {
	if _, ok := vm.listOf(script); !ok {
		vm.throw(ExcListRequired, "USE: script list required, got %v", script)
		return
	}
	vm.setPropValue(actor, PropScript, script)
	vm.setPropValue(actor, PropScriptStep, IntValue(1))
	vm.events.addActor(actor.id)
}

func (vm *VM) stopScript(actor *Object) {
	vm.setPropValue(actor, PropScript, NilValue)
	vm.events.removeActor(actor.id)
}

// tick advances the turn counter, runs due events and takes one step of every
// actor script. It stops at the first exception.
func (vm *VM) tick() {
	vm.SetRegister(RegTurns, IntValue(vm.turn()+1))
	for _, e := range vm.events.takeDue(vm.turn()) {
		vm.push(e.arg)
		vm.callFunc(e.fn, 1, InvalidObj)
		if vm.interrupted() || vm.halted {
			return
		}
	}
	for _, id := range slices.Clone(vm.events.actors) {
		vm.stepScript(id)
		if vm.interrupted() || vm.halted {
			return
		}
	}
}

func (vm *VM) stepScript(id ObjID) {
	actor := vm.objects.Lookup(id)
	if actor == nil {
		vm.events.removeActor(id)
		return
	}
	script, _ := vm.propValue(actor, PropScript)
	steps, ok := vm.listOf(script)
	if !ok {
		vm.events.removeActor(id)
		return
	}
	n := int32(1)
	if s, _ := vm.propValue(actor, PropScriptStep); s.Kind == KindInt {
		n = s.Int()
	}
	if n < 1 || int(n) > len(steps) {
		vm.stopScript(actor)
		return
	}
	vm.setPropValue(actor, PropScriptStep, IntValue(n+1))
	fn := steps[n-1]
	if fn.Kind != KindFuncPtr {
		vm.throw(ExcBadType, "script step %d of obj#%d is %v", n, id, fn.Kind)
		return
	}
	vm.callFunc(fn.Offset(), 0, id)
}

// Tick ends a turn: the turn counter advances, due events run and every
// scripted actor takes its next step.
func (vm *VM) Tick(ctx context.Context) error {
	return vm.enter(ctx, tickEntry, vm.tick)
}

// tickEntry stands for Tick in the recursion ring; no code word has it.
const tickEntry = ^uint32(0)
