package vm

import (
	"fmt"
	"slices"
)

// SetMeta is the unordered-membership collection used by the world model's
// set opcodes. Members keep insertion order so enumeration is deterministic.
var SetMeta = &setMeta{BaseMetaclass{Desc: Descriptor{Base: "set", Version: 10000}}}

type setMeta struct{ BaseMetaclass }

type setExt struct {
	members []Value
	hashes  []uint32 // parallel to members once built; nil means stale
}

func (m *setMeta) Construct(vm *VM, argc int) ObjID {
	args := vm.popN(argc)
	ext := &setExt{}
	for _, a := range args {
		vm.setInclude(ext, a)
	}
	id, _ := vm.newObject(m, ext)
	return id
}

func (m *setMeta) LoadImage(_ *VM, o *Object, data []byte) error {
	members, err := decodeValues(data)
	if err != nil {
		return fmt.Errorf("set %d: %w", o.id, err)
	}
	o.Ext = &setExt{members: members}
	return nil
}

func (m *setMeta) Save(_ *VM, o *Object) ([]byte, error) {
	return encodeValues(o.Ext.(*setExt).members)
}

func (m *setMeta) Restore(vm *VM, o *Object, data []byte) error { return m.LoadImage(vm, o, data) }

func (m *setMeta) Fixup(o *Object, fix func(Value) Value) {
	ext := o.Ext.(*setExt)
	for i, v := range ext.members {
		ext.members[i] = fix(v)
	}
	ext.hashes = nil
}

func (m *setMeta) MarkRefs(o *Object, mark func(Value)) {
	for _, v := range o.Ext.(*setExt).members {
		mark(v)
	}
}

func (m *setMeta) Hash(vm *VM, o *Object) uint32 { return vm.hashElems(o.Ext.(*setExt).members) }

func (m *setMeta) GetProp(vm *VM, o *Object, prop PropID, argc int) (Value, bool) {
	return listMethod(vm, o.Ext.(*setExt).members, prop, argc)
}

func (vm *VM) newSet(members ...Value) Value {
	ext := &setExt{}
	for _, v := range members {
		vm.setInclude(ext, v)
	}
	id, ok := vm.newObject(SetMeta, ext)
	if !ok {
		return NilValue
	}
	return ObjValue(id)
}

// setOf resolves v to a set extension, throwing when it is not a set.
func (vm *VM) setOf(v Value) *setExt {
	o := vm.objectOf(v, SetMeta.Desc.Base)
	if o == nil {
		vm.throw(ExcBadType, "set required, got %v", v)
		return nil
	}
	return o.Ext.(*setExt)
}

// setIndex finds v among the members by hash, then by equality. A mutable
// member whose hash changed since it was included still matches itself.
func (vm *VM) setIndex(s *setExt, v Value) int {
	if len(s.hashes) != len(s.members) {
		s.hashes = make([]uint32, len(s.members))
		for i, m := range s.members {
			s.hashes[i] = vm.hashValue(m)
		}
	}
	h := vm.hashValue(v)
	for i, m := range s.members {
		if m.Same(v) || (s.hashes[i] == h && vm.valuesEqual(m, v)) {
			return i
		}
	}
	return -1
}

func (vm *VM) setInclude(s *setExt, v Value) {
	if vm.setIndex(s, v) < 0 {
		s.members = append(s.members, v)
		s.hashes = append(s.hashes, vm.hashValue(v))
	}
}

func (vm *VM) setExclude(s *setExt, v Value) {
	if i := vm.setIndex(s, v); i >= 0 {
		s.members = slices.Delete(s.members, i, i+1)
		s.hashes = slices.Delete(s.hashes, i, i+1)
	}
}
