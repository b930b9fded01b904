package vm

import (
	"errors"
	"fmt"
)

var (
	// ErrSnapshotImage reports a snapshot taken from a different image.
	ErrSnapshotImage = errors.New("snapshot was saved from a different image")
	// ErrNoSavedState is returned by a SaveStore that holds nothing yet.
	// RESTORE then reports failure without throwing.
	ErrNoSavedState = errors.New("no saved state")
)

// SavedObject is the saved state of one object.
type SavedObject struct {
	ID      uint32 `msgpack:"id"`
	Meta    string `msgpack:"meta"`
	InImage bool   `msgpack:"img,omitempty"`
	Data    []byte `msgpack:"data"`
}

// SavedEvent is one scheduled event.
type SavedEvent struct {
	Fn  uint32 `msgpack:"fn"`
	Arg []byte `msgpack:"arg"` // data holder
	Due int32  `msgpack:"due"`
}

// Snapshot is the saved state of a VM: every persistent object, the context
// registers and the event queue. Transient objects and the operand stack
// are not part of it.
type Snapshot struct {
	ImageSig  uint32        `msgpack:"sig"`
	Registers []byte        `msgpack:"regs"` // data holders in register order
	Objects   []SavedObject `msgpack:"objs"`
	Events    []SavedEvent  `msgpack:"events,omitempty"`
	Actors    []uint32      `msgpack:"actors,omitempty"`
}

// SaveStore keeps the snapshot written by SAVE and read by RESTORE.
type SaveStore interface {
	Save(s *Snapshot) error
	Load() (*Snapshot, error)
}

// Snapshot captures the persistent state of the VM.
func (vm *VM) Snapshot() (*Snapshot, error) {
	if vm.img == nil {
		return nil, fmt.Errorf("snapshot: no image attached")
	}
	s := &Snapshot{ImageSig: vm.imageSig}
	for _, r := range vm.regs {
		s.Registers = AppendHolder(s.Registers, r)
	}
	var err error
	vm.objects.each(func(o *Object) {
		if err != nil || o.Transient() {
			return
		}
		data, serr := o.Meta.Save(vm, o)
		if serr != nil {
			err = fmt.Errorf("snapshot: object %d: %w", o.id, serr)
			return
		}
		s.Objects = append(s.Objects, SavedObject{
			ID:      uint32(o.id),
			Meta:    o.Meta.Descriptor().String(),
			InImage: o.InImage(),
			Data:    data,
		})
	})
	if err != nil {
		return nil, err
	}
	for _, e := range vm.events.pending {
		s.Events = append(s.Events, SavedEvent{Fn: e.fn, Arg: AppendHolder(nil, e.arg), Due: e.due})
	}
	for _, a := range vm.events.actors {
		s.Actors = append(s.Actors, uint32(a))
	}
	return s, nil
}

// RestoreSnapshot replaces the persistent state of the VM with s. Objects
// are restored in place under their saved ids; when a saved id is held by a
// transient object the saved one gets a fresh id and every reference to it
// is rewritten. The undo log is cleared.
func (vm *VM) RestoreSnapshot(s *Snapshot) error {
	if vm.img == nil {
		return fmt.Errorf("restore: no image attached")
	}
	if s.ImageSig != vm.imageSig {
		return ErrSnapshotImage
	}
	if len(s.Registers) != int(numRegisters)*HolderSize {
		return fmt.Errorf("restore: register block has %d bytes", len(s.Registers))
	}

	saved := make(map[ObjID]bool, len(s.Objects))
	for _, so := range s.Objects {
		saved[ObjID(so.ID)] = true
	}
	var drop []*Object
	vm.objects.each(func(o *Object) {
		if !o.Transient() && !saved[o.id] {
			drop = append(drop, o)
		}
	})
	for _, o := range drop {
		o.Meta.NotifyDelete(vm, o)
		vm.objects.release(o)
	}

	// Saved ids held by transient objects are renumbered after every other
	// id is placed, so a fresh id never collides with a saved one.
	remap := make(map[ObjID]ObjID)
	restored := make([]*Object, 0, len(s.Objects))
	var moved []SavedObject
	place := func(so SavedObject, o *Object, m Metaclass) error {
		if err := m.Restore(vm, o, so.Data); err != nil {
			return fmt.Errorf("restore: object %d (%s): %w", so.ID, so.Meta, err)
		}
		restored = append(restored, o)
		return nil
	}
	flags := func(so SavedObject) objFlags {
		return IDOptions{InRootSet: so.InImage, InImage: so.InImage}.flags()
	}
	for _, so := range s.Objects {
		m, err := vm.registry.ResolveMetaclass(so.Meta)
		if err != nil {
			return fmt.Errorf("restore: object %d: %w", so.ID, err)
		}
		o := vm.objects.Lookup(ObjID(so.ID))
		switch {
		case o != nil && o.Transient():
			moved = append(moved, so)
			continue
		case o == nil:
			if o, err = vm.objects.reserve(ObjID(so.ID), m, flags(so)); err != nil {
				return fmt.Errorf("restore: %w", err)
			}
		default:
			o.Meta = m
		}
		if err := place(so, o, m); err != nil {
			return err
		}
	}
	for _, so := range moved {
		m, err := vm.registry.ResolveMetaclass(so.Meta)
		if err != nil {
			return fmt.Errorf("restore: object %d: %w", so.ID, err)
		}
		id := vm.objects.take()
		remap[ObjID(so.ID)] = id
		if err := place(so, vm.objects.install(id, m, flags(so)), m); err != nil {
			return err
		}
	}

	fix := func(v Value) Value {
		if v.Kind == KindObj {
			if to, ok := remap[v.Obj()]; ok {
				return ObjValue(to)
			}
		}
		return v
	}
	if len(remap) > 0 {
		for _, o := range restored {
			o.Meta.Fixup(o, fix)
		}
	}

	for i := range vm.regs {
		v, err := DecodeHolder(s.Registers[i*HolderSize:])
		if err != nil {
			return fmt.Errorf("restore: register %s: %w", Register(i), err) //nolint:gosec // small index
		}
		vm.regs[i] = fix(v)
	}
	vm.events.reset()
	for _, e := range s.Events {
		arg, err := DecodeHolder(e.Arg)
		if err != nil {
			return fmt.Errorf("restore: event at %d: %w", e.Fn, err)
		}
		vm.events.add(e.Fn, fix(arg), e.Due)
	}
	for _, a := range s.Actors {
		vm.events.addActor(fix(ObjValue(ObjID(a))).Obj())
	}
	vm.undo.reset()
	return nil
}

// saveState runs SAVE: the snapshot goes to the configured store.
func (vm *VM) saveState() bool {
	if vm.opts.Saves == nil {
		vm.throw(ExcWriteFailed, "SAVE: no save store configured")
		return false
	}
	s, err := vm.Snapshot()
	if err == nil {
		err = vm.opts.Saves.Save(s)
	}
	if err != nil {
		vm.throw(ExcWriteFailed, "SAVE: %v", err)
		return false
	}
	return true
}

// restoreState runs RESTORE from the configured store.
func (vm *VM) restoreState() bool {
	if vm.opts.Saves == nil {
		vm.throw(ExcReadFailed, "RESTORE: no save store configured")
		return false
	}
	s, err := vm.opts.Saves.Load()
	if errors.Is(err, ErrNoSavedState) {
		return false
	}
	if err == nil {
		err = vm.RestoreSnapshot(s)
	}
	if err != nil {
		vm.throw(ExcReadFailed, "RESTORE: %v", err)
		return false
	}
	return true
}
