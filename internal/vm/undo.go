package vm

// DefaultUndoSavepoints bounds how many savepoints the undo log keeps.
const DefaultUndoSavepoints = 16

// undoRecord is one reversible change. A record with obj == InvalidObj
// restores context register reg instead of a property.
type undoRecord struct {
	obj  ObjID
	prop PropID
	reg  int
	old  Value
	had  bool
}

// undoLog keeps changes made since the oldest retained savepoint. Records are
// weak: the collector drops those that mention dead objects.
type undoLog struct {
	records    []undoRecord
	savepoints []int // index into records where each savepoint begins
	limit      int
}

func (u *undoLog) active() bool { return len(u.savepoints) > 0 }

func (u *undoLog) reset() {
	u.records = u.records[:0]
	u.savepoints = u.savepoints[:0]
}

// Savepoint starts a new undo unit. The oldest unit is discarded when the
// limit is reached.
func (vm *VM) Savepoint() {
	u := &vm.undo
	if u.limit > 0 && len(u.savepoints) >= u.limit {
		drop := len(u.records)
		if len(u.savepoints) > 1 {
			drop = u.savepoints[1]
		}
		u.records = append(u.records[:0], u.records[drop:]...)
		u.savepoints = u.savepoints[1:]
		for i := range u.savepoints {
			u.savepoints[i] -= drop
		}
	}
	u.savepoints = append(u.savepoints, len(u.records))
}

// Undo rolls back to the most recent savepoint. It reports false when there
// is none.
func (vm *VM) Undo() bool {
	u := &vm.undo
	if !u.active() {
		return false
	}
	start := u.savepoints[len(u.savepoints)-1]
	for i := len(u.records) - 1; i >= start; i-- {
		r := u.records[i]
		if r.obj == InvalidObj {
			vm.regs[r.reg] = r.old
			continue
		}
		o := vm.objects.Lookup(r.obj)
		if o == nil {
			continue
		}
		if un, ok := o.Meta.(undoable); ok {
			un.undoProp(o, r.prop, r.old, r.had)
		}
	}
	clear(u.records[start:])
	u.records = u.records[:start]
	u.savepoints = u.savepoints[:len(u.savepoints)-1]
	return true
}

// UndoDepth returns the number of savepoints available to Undo.
func (vm *VM) UndoDepth() int { return len(vm.undo.savepoints) }

func (vm *VM) recordUndo(o *Object, prop PropID, old Value, had bool) {
	if !vm.undo.active() || o.Transient() {
		return
	}
	vm.undo.records = append(vm.undo.records, undoRecord{obj: o.id, prop: prop, old: old, had: had})
}

func (vm *VM) recordRegUndo(reg int, old Value) {
	if !vm.undo.active() {
		return
	}
	vm.undo.records = append(vm.undo.records, undoRecord{reg: reg, old: old, had: true})
}

// removeStale drops records whose object or saved value refers to an object
// that did not survive marking.
func (u *undoLog) removeStale(live func(ObjID) bool) {
	if len(u.records) == 0 {
		return
	}
	keep := u.records[:0]
	sp := 0
	for i, r := range u.records {
		for sp < len(u.savepoints) && u.savepoints[sp] == i {
			u.savepoints[sp] = len(keep)
			sp++
		}
		if r.obj != InvalidObj && !live(r.obj) {
			continue
		}
		if r.old.Kind == KindObj && !live(r.old.Obj()) {
			continue
		}
		keep = append(keep, r)
	}
	for ; sp < len(u.savepoints); sp++ {
		u.savepoints[sp] = len(keep)
	}
	clear(u.records[len(keep):])
	u.records = keep
}
