package vm

import (
	"context"
	"errors"
	"testing"
)

type memSaves struct {
	snap *Snapshot
}

func (m *memSaves) Save(s *Snapshot) error {
	m.snap = s
	return nil
}

func (m *memSaves) Load() (*Snapshot, error) {
	if m.snap == nil {
		return nil, ErrNoSavedState
	}
	return m.snap, nil
}

func prop(t *testing.T, vm *VM, id ObjID, p PropID) (Value, bool) {
	t.Helper()
	o := vm.Lookup(id)
	if o == nil {
		t.Fatalf("obj#%d is not live", id)
	}
	return vm.propValue(o, p)
}

func TestSaveAndRestoreOpcodes(t *testing.T) {
	p := worldProgram(t)
	save := p.fn("save", 0, 0)
	p.emit(OpSave, OpGetR0, OpRetVal)
	restore := p.fn("restore", 0, 0)
	p.emit(OpRestore, OpGetR0, OpRetVal)
	vm, _ := p.load(save, Options{GCThreshold: -1})
	vm.SetSaveStore(&memSaves{})

	kept := newTestObject(t, vm)
	vm.setPropValue(vm.Lookup(3), 20, IntValue(1))
	vm.setPropValue(vm.Lookup(3), 21, ObjValue(kept))
	vm.SetRegister(RegScore, IntValue(5))
	if got := mustCall(t, vm, save); !got.Truthy() {
		t.Fatalf("expected SAVE to succeed, got %v", got)
	}

	vm.setPropValue(vm.Lookup(3), 20, IntValue(2))
	vm.SetRegister(RegScore, IntValue(9))
	extra := newTestObject(t, vm)

	if got := mustCall(t, vm, restore); !got.Truthy() {
		t.Fatalf("expected RESTORE to succeed, got %v", got)
	}
	if v, _ := prop(t, vm, 3, 20); v.Int() != 1 {
		t.Fatalf("expected restored property 1, got %v", v)
	}
	if s := vm.Register(RegScore); s.Int() != 5 {
		t.Fatalf("expected restored score 5, got %v", s)
	}
	if vm.Lookup(extra) != nil {
		t.Fatalf("expected an object created after SAVE to be dropped")
	}
	if vm.Lookup(kept) == nil {
		t.Fatalf("expected the saved dynamic object to be restored")
	}
}

func TestRestoreFromEmptyStoreFails(t *testing.T) {
	p := newProgram(t)
	restore := p.fn("restore", 0, 0)
	p.emit(OpRestore, OpGetR0, OpRetVal)
	vm, _ := p.load(restore, Options{Saves: &memSaves{}})

	if got := mustCall(t, vm, restore); got.Truthy() {
		t.Fatalf("expected RESTORE to report failure, got %v", got)
	}
}

func TestSaveWithoutStoreThrows(t *testing.T) {
	p := newProgram(t)
	save := p.fn("save", 0, 0)
	p.emit(OpSave, OpReturn)
	vm, _ := p.load(save, Options{})

	err := vm.Call(context.Background(), save)
	var exc *Exception
	if !errors.As(err, &exc) || exc.Kind != ExcWriteFailed {
		t.Fatalf("expected write failure, got %v", err)
	}
}

func TestRestoreSnapshotFromOtherImage(t *testing.T) {
	p1 := newProgram(t)
	e1 := p1.fn("main", 0, 0)
	p1.emit(OpReturn)
	vm1, _ := p1.load(e1, Options{})

	p2 := newProgram(t)
	e2 := p2.fn("main", 0, 0)
	p2.emit(1, OpRetVal)
	vm2, _ := p2.load(e2, Options{})

	snap, err := vm1.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := vm2.RestoreSnapshot(snap); !errors.Is(err, ErrSnapshotImage) {
		t.Fatalf("expected ErrSnapshotImage, got %v", err)
	}
}

func TestSnapshotKeepsEvents(t *testing.T) {
	p := newProgram(t)
	handler := p.fn("handler", 1, 0)
	p.emit(OpReturn)
	entry := p.fn("main", 0, 0)
	p.emit(int(handler), OpPushFunc, 7, 3, OpSchedule, OpReturn)
	vm, _ := p.load(entry, Options{})
	mustCall(t, vm, entry)

	snap, err := vm.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	vm.events.reset()
	if err := vm.RestoreSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if vm.Scheduled() != 1 || vm.events.pending[0].due != 3 || vm.events.pending[0].arg.Int() != 7 {
		t.Fatalf("expected the event to be restored, got %+v", vm.events.pending)
	}
}

func TestUndo(t *testing.T) {
	p := worldProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(OpReturn)
	vm, _ := p.load(entry, Options{})

	if vm.Undo() {
		t.Fatalf("expected no savepoint")
	}
	vm.Savepoint()
	vm.setPropValue(vm.Lookup(3), 20, IntValue(3))
	vm.setPropValue(vm.Lookup(3), PropLocation, ObjValue(4))
	vm.SetRegister(RegScore, IntValue(4))

	if !vm.Undo() {
		t.Fatalf("expected undo to succeed")
	}
	if _, found := prop(t, vm, 3, 20); found {
		t.Fatalf("expected the new property to be removed")
	}
	if loc, _ := prop(t, vm, 3, PropLocation); loc.Obj() != 1 {
		t.Fatalf("expected the apple back in obj#1, got %v", loc)
	}
	if s := vm.Register(RegScore); s.Int() != 0 {
		t.Fatalf("expected score 0, got %v", s)
	}
	if vm.UndoDepth() != 0 {
		t.Fatalf("expected no savepoints left, got %d", vm.UndoDepth())
	}
}

func TestUndoLimit(t *testing.T) {
	p := worldProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(OpReturn)
	vm, _ := p.load(entry, Options{UndoSavepoints: 2})

	for i := range 3 {
		vm.Savepoint()
		vm.setPropValue(vm.Lookup(3), 20, IntValue(int32(i)))
	}
	if vm.UndoDepth() != 2 {
		t.Fatalf("expected 2 savepoints, got %d", vm.UndoDepth())
	}
	vm.Undo()
	vm.Undo()
	if v, _ := prop(t, vm, 3, 20); v.Int() != 0 {
		t.Fatalf("expected the value from the dropped unit to remain, got %v", v)
	}
}

func TestRestartReloadsImage(t *testing.T) {
	p := worldProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(OpReturn)
	vm, _ := p.load(entry, Options{GCThreshold: -1})

	dyn := newTestObject(t, vm)
	vm.setPropValue(vm.Lookup(3), PropLocation, ObjValue(4))
	vm.SetRegister(RegTurns, IntValue(9))

	if err := vm.Restart(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if loc, _ := prop(t, vm, 3, PropLocation); loc.Obj() != 1 {
		t.Fatalf("expected the apple back in obj#1, got %v", loc)
	}
	if turns := vm.Register(RegTurns); turns.Int() != 0 {
		t.Fatalf("expected turns reset, got %v", turns)
	}
	if vm.Lookup(dyn) != nil {
		t.Fatalf("expected dynamic objects to be collected")
	}
}
