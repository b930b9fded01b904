package vm

import "testing"

func newTestObject(t *testing.T, vm *VM) ObjID {
	t.Helper()
	id, ok := vm.newObject(TadsObjectMeta, newObjectExt())
	if !ok {
		t.Fatalf("allocation failed: %v", vm.Pending())
	}
	return id
}

func TestGCPinnedGraph(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(OpReturn)
	vm, _ := p.load(entry, Options{GCThreshold: -1})

	a := newTestObject(t, vm)
	b := newTestObject(t, vm)
	vm.setPropValue(vm.Lookup(a), 20, ObjValue(b))

	vm.Pin(a)
	vm.GC()
	if vm.Lookup(a) == nil || vm.Lookup(b) == nil {
		t.Fatalf("expected pinned object and its referent to survive")
	}

	vm.Unpin(a)
	stats := vm.GC()
	if vm.Lookup(a) != nil || vm.Lookup(b) != nil {
		t.Fatalf("expected both objects to be reclaimed")
	}
	if stats.Swept != 2 || stats.Live != 0 {
		t.Fatalf("expected 2 swept and 0 live, got %+v", stats)
	}
}

func TestGCKeepsImageObjects(t *testing.T) {
	p := worldProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(OpReturn)
	vm, _ := p.load(entry, Options{GCThreshold: -1})

	dyn := newTestObject(t, vm)
	vm.setPropValue(vm.Lookup(3), 20, ObjValue(dyn))
	stats := vm.GC()
	if stats.Swept != 0 {
		t.Fatalf("expected nothing swept, got %+v", stats)
	}
	if vm.Lookup(dyn) == nil {
		t.Fatalf("expected an object referenced from the image to survive")
	}
}

func TestGCDuringAllocationLoop(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(20, 1, OpLoop, 0, metaObject, OpNew, OpPop, OpLoopEnd, OpReturn)
	vm, _ := p.load(entry, Options{GCThreshold: 4})

	mustCall(t, vm, entry)
	if vm.GCCount() == 0 {
		t.Fatalf("expected automatic collections")
	}
	if live := vm.Objects().Live(); live >= 20 {
		t.Fatalf("expected garbage to be reclaimed, %d objects live", live)
	}
}

func TestObjectLimit(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(OpReturn)
	vm, _ := p.load(entry, Options{MaxObjects: 1, GCThreshold: -1})

	a := newTestObject(t, vm)
	vm.Pin(a)
	if id, ok := vm.newObject(TadsObjectMeta, newObjectExt()); ok || id != InvalidObj {
		t.Fatalf("expected the table to be full, got obj#%d", id)
	}
	if exc := vm.Pending(); exc == nil || exc.Kind != ExcOutOfMemory {
		t.Fatalf("expected out of memory, got %v", exc)
	}
}

func TestGCClearsWeakRefToCollectedTarget(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(OpReturn)
	vm, _ := p.load(entry, Options{GCThreshold: -1})

	dead := newTestObject(t, vm)
	kept := newTestObject(t, vm)
	vm.Pin(kept)
	weak := func(target ObjID) ObjID {
		id, ok := vm.newObject(WeakRefMeta, &weakRefExt{target: target})
		if !ok {
			t.Fatalf("allocation failed: %v", vm.Pending())
		}
		vm.Pin(id)
		return id
	}
	toDead, toKept := weak(dead), weak(kept)

	vm.GC()
	if vm.Lookup(dead) != nil {
		t.Fatalf("expected a weak reference not to keep its target alive")
	}
	if got := vm.Lookup(toDead).Ext.(*weakRefExt).target; got != InvalidObj {
		t.Fatalf("expected the stale target cleared, got obj#%d", got)
	}
	if v, _ := WeakRefMeta.GetProp(vm, vm.Lookup(toDead), WeakRefGet, 0); !v.IsNil() {
		t.Fatalf("expected get to return nil, got %v", v)
	}
	if v, _ := WeakRefMeta.GetProp(vm, vm.Lookup(toKept), WeakRefGet, 0); !v.Same(ObjValue(kept)) {
		t.Fatalf("expected get to return obj#%d, got %v", kept, v)
	}
}

// countingMeta counts the objects it is told were deleted.
type countingMeta struct {
	BaseMetaclass
	deleted *int
}

func (m countingMeta) NotifyDelete(*VM, *Object) { *m.deleted++ }

func TestGCNotifiesEverySweptObject(t *testing.T) {
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(OpReturn)
	vm, _ := p.load(entry, Options{GCThreshold: -1})

	var deleted int
	meta := countingMeta{BaseMetaclass{Desc: Descriptor{Base: "counting"}}, &deleted}
	for range 3 {
		if _, ok := vm.newObject(meta, nil); !ok {
			t.Fatalf("allocation failed: %v", vm.Pending())
		}
	}
	pinned, _ := vm.newObject(meta, nil)
	vm.Pin(pinned)

	vm.GC()
	if deleted != 3 {
		t.Fatalf("expected 3 delete notifications, got %d", deleted)
	}
}
