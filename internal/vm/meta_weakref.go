package vm

import (
	"encoding/binary"
	"fmt"
)

// WeakRefMeta holds a reference that does not keep its target alive. The
// collector clears it when the target dies.
var WeakRefMeta = &weakRefMeta{BaseMetaclass{Desc: Descriptor{Base: "weakref", Version: 10000}}}

type weakRefMeta struct{ BaseMetaclass }

type weakRefExt struct {
	target ObjID
}

// WeakRefGet returns the target, or nil once it has been collected.
const WeakRefGet PropID = MethodBase

func (m *weakRefMeta) Construct(vm *VM, argc int) ObjID {
	if !vm.checkArgc("weakref", argc, 1, 0) {
		return InvalidObj
	}
	o, ok := vm.popObject()
	if !ok {
		return InvalidObj
	}
	id, _ := vm.newObject(m, &weakRefExt{target: o.id})
	return id
}

func (m *weakRefMeta) LoadImage(_ *VM, o *Object, data []byte) error {
	if len(data) != 4 {
		return fmt.Errorf("weakref %d: want 4 bytes, have %d", o.id, len(data))
	}
	o.Ext = &weakRefExt{target: ObjID(binary.LittleEndian.Uint32(data))}
	return nil
}

func (m *weakRefMeta) Save(_ *VM, o *Object) ([]byte, error) {
	return binary.LittleEndian.AppendUint32(nil, uint32(o.Ext.(*weakRefExt).target)), nil
}

func (m *weakRefMeta) Restore(vm *VM, o *Object, data []byte) error {
	return m.LoadImage(vm, o, data)
}

func (m *weakRefMeta) Fixup(o *Object, fix func(Value) Value) {
	ext := o.Ext.(*weakRefExt)
	if ext.target != InvalidObj {
		ext.target = fix(ObjValue(ext.target)).Obj()
	}
}

func (m *weakRefMeta) RemoveStaleWeakRefs(o *Object, live func(ObjID) bool) {
	ext := o.Ext.(*weakRefExt)
	if ext.target != InvalidObj && !live(ext.target) {
		ext.target = InvalidObj
	}
}

func (m *weakRefMeta) GetProp(vm *VM, o *Object, prop PropID, argc int) (Value, bool) {
	if prop != WeakRefGet {
		return Value{}, false
	}
	if !vm.checkArgc("get", argc, 0, 0) {
		return NilValue, true
	}
	ext := o.Ext.(*weakRefExt)
	if ext.target == InvalidObj || vm.objects.Lookup(ext.target) == nil {
		return NilValue, true
	}
	return ObjValue(ext.target), true
}
