package vm

import (
	"strconv"

	"storyvm/internal/trace"
)

// GCStats summarises one collection.
type GCStats struct {
	Marked int
	Swept  int
	Live   int
}

// DefaultGCThreshold is the number of allocations between automatic
// collections.
const DefaultGCThreshold = 4096

// Pin keeps id alive across collections until Unpin. Host code holding
// object ids outside the stack uses it.
func (vm *VM) Pin(id ObjID) { vm.pinned[id]++ }

// Unpin releases one Pin of id.
func (vm *VM) Unpin(id ObjID) {
	if vm.pinned[id] <= 1 {
		delete(vm.pinned, id)
		return
	}
	vm.pinned[id]--
}

// GC runs a full tri-colour collection. It must only run between opcodes
// or from an allocation inside one, where every intermediate object is
// rooted in scratch.
func (vm *VM) GC() GCStats {
	t := vm.objects
	t.each(func(o *Object) { o.color = white })

	var work []*Object
	seenLists := make(map[uint32]bool)
	var mark func(v Value)
	mark = func(v Value) {
		switch v.Kind {
		case KindObj:
			o := t.Lookup(v.Obj())
			if o != nil && o.color == white {
				o.color = gray
				work = append(work, o)
			}
		case KindList:
			if seenLists[v.V] {
				return
			}
			seenLists[v.V] = true
			if elems, ok := vm.constList(v.V); ok {
				for _, e := range elems {
					mark(e)
				}
			}
		}
	}

	for _, v := range vm.stack[:vm.sp] {
		mark(v)
	}
	mark(vm.r0)
	for _, r := range vm.regs {
		mark(r)
	}
	if vm.pending != nil {
		mark(vm.pending.Value)
	}
	for _, v := range vm.scratch {
		mark(v)
	}
	for id := range vm.pinned {
		mark(ObjValue(id))
	}
	vm.events.markRefs(mark)
	t.each(func(o *Object) {
		if o.InRootSet() {
			mark(ObjValue(o.id))
		}
	})

	stats := GCStats{}
	for len(work) > 0 {
		o := work[len(work)-1]
		work = work[:len(work)-1]
		o.color = black
		stats.Marked++
		o.Meta.MarkRefs(o, mark)
	}

	live := func(id ObjID) bool {
		o := t.Lookup(id)
		return o != nil && o.color == black
	}
	t.each(func(o *Object) {
		if o.color == black {
			o.Meta.RemoveStaleWeakRefs(o, live)
		}
	})
	vm.undo.removeStale(live)

	var dead []*Object
	t.each(func(o *Object) {
		if o.color == white {
			dead = append(dead, o)
		}
	})
	for _, o := range dead {
		o.Meta.NotifyDelete(vm, o)
		t.release(o)
	}
	stats.Swept = len(dead)
	stats.Live = t.live
	t.allocsSinceGC = 0
	vm.gcCount++

	trace.Point(vm.tracer, trace.ScopeRun, "gc", "", vm.runSpan, map[string]string{
		"marked": strconv.Itoa(stats.Marked),
		"swept":  strconv.Itoa(stats.Swept),
		"live":   strconv.Itoa(stats.Live),
	})
	vm.itrace.TraceGC(stats)
	return stats
}

// maybeGC collects when enough allocations happened since the last cycle.
func (vm *VM) maybeGC() {
	if vm.opts.GCThreshold > 0 && vm.objects.allocsSinceGC >= vm.opts.GCThreshold {
		vm.GC()
	}
}
