package vm

import "fmt"

// ListMeta is the immutable list object; VectorMeta is its mutable sibling.
// Both keep their elements in a *listExt.
var (
	ListMeta   = &listMeta{BaseMetaclass{Desc: Descriptor{Base: "list", Version: 30008}}}
	VectorMeta = &vectorMeta{listMeta{BaseMetaclass{Desc: Descriptor{Base: "vector", Version: 30005}}}}
)

type listExt struct {
	elems []Value
}

// Intrinsic methods of lists and vectors.
const (
	ListLength PropID = MethodBase + iota
	ListGet
	ListAppend // list: returns a new list; vector: appends in place
	ListIndexOf
	ListSet // vector only
)

type listMeta struct{ BaseMetaclass }

func (m *listMeta) Construct(vm *VM, argc int) ObjID {
	args := vm.popN(argc)
	id, _ := vm.newObject(m, &listExt{elems: args})
	return id
}

func (m *listMeta) LoadImage(_ *VM, o *Object, data []byte) error {
	elems, err := decodeValues(data)
	if err != nil {
		return fmt.Errorf("%s %d: %w", m.Desc.Base, o.id, err)
	}
	o.Ext = &listExt{elems: elems}
	return nil
}

func (m *listMeta) Save(_ *VM, o *Object) ([]byte, error) {
	return encodeValues(o.Ext.(*listExt).elems)
}

func (m *listMeta) Restore(vm *VM, o *Object, data []byte) error { return m.LoadImage(vm, o, data) }

func (m *listMeta) Fixup(o *Object, fix func(Value) Value) {
	ext := o.Ext.(*listExt)
	for i, v := range ext.elems {
		ext.elems[i] = fix(v)
	}
}

func (m *listMeta) MarkRefs(o *Object, mark func(Value)) {
	for _, v := range o.Ext.(*listExt).elems {
		mark(v)
	}
}

func (m *listMeta) Equals(vm *VM, o *Object, other Value) bool {
	if other.Kind == KindObj && other.Obj() == o.id {
		return true
	}
	l, ok := vm.listOf(other)
	if !ok {
		return false
	}
	return vm.listsEqual(o.Ext.(*listExt).elems, l)
}

func (m *listMeta) Hash(vm *VM, o *Object) uint32 { return vm.hashElems(o.Ext.(*listExt).elems) }

func (m *listMeta) GetProp(vm *VM, o *Object, prop PropID, argc int) (Value, bool) {
	ext := o.Ext.(*listExt)
	switch prop {
	case ListAppend:
		if !vm.checkArgc("append", argc, 1, 0) {
			return NilValue, true
		}
		v := vm.pop()
		elems := append(append([]Value(nil), ext.elems...), v)
		id, _ := vm.newObject(ListMeta, &listExt{elems: elems})
		if id == InvalidObj {
			return NilValue, true
		}
		return ObjValue(id), true
	case ListSet:
		return Value{}, false
	}
	return listMethod(vm, ext.elems, prop, argc)
}

// listMethod implements the read-only methods shared by list objects, list
// constants and vectors.
func listMethod(vm *VM, elems []Value, prop PropID, argc int) (Value, bool) {
	switch prop {
	case ListLength:
		if !vm.checkArgc("length", argc, 0, 0) {
			return NilValue, true
		}
		return intResult(vm, len(elems)), true
	case ListGet:
		if !vm.checkArgc("get", argc, 1, 0) {
			return NilValue, true
		}
		i, ok := vm.popInt()
		if !ok {
			return NilValue, true
		}
		if i < 1 || int(i) > len(elems) {
			vm.throw(ExcIndexRange, "index %d out of range 1..%d", i, len(elems))
			return NilValue, true
		}
		return elems[i-1], true
	case ListIndexOf:
		if !vm.checkArgc("indexOf", argc, 1, 0) {
			return NilValue, true
		}
		v := vm.pop()
		for i, e := range elems {
			if vm.valuesEqual(e, v) {
				return intResult(vm, i+1), true
			}
		}
		return NilValue, true
	}
	return Value{}, false
}

type vectorMeta struct{ listMeta }

func (m *vectorMeta) Construct(vm *VM, argc int) ObjID {
	args := vm.popN(argc)
	id, _ := vm.newObject(m, &listExt{elems: args})
	return id
}

func (m *vectorMeta) LoadImage(_ *VM, o *Object, data []byte) error {
	elems, err := decodeValues(data)
	if err != nil {
		return fmt.Errorf("vector %d: %w", o.id, err)
	}
	o.Ext = &listExt{elems: elems}
	return nil
}

func (m *vectorMeta) Restore(vm *VM, o *Object, data []byte) error { return m.LoadImage(vm, o, data) }

func (m *vectorMeta) Equals(_ *VM, o *Object, other Value) bool {
	return other.Kind == KindObj && other.Obj() == o.id
}

func (m *vectorMeta) GetProp(vm *VM, o *Object, prop PropID, argc int) (Value, bool) {
	ext := o.Ext.(*listExt)
	switch prop {
	case ListAppend:
		if !vm.checkArgc("append", argc, 1, 0) {
			return NilValue, true
		}
		ext.elems = append(ext.elems, vm.pop())
		return ObjValue(o.id), true
	case ListSet:
		if !vm.checkArgc("set", argc, 2, 0) {
			return NilValue, true
		}
		i, ok := vm.popInt()
		if !ok {
			return NilValue, true
		}
		v := vm.pop()
		if i < 1 || int(i) > len(ext.elems) {
			vm.throw(ExcIndexRange, "index %d out of range 1..%d", i, len(ext.elems))
			return NilValue, true
		}
		ext.elems[i-1] = v
		return v, true
	}
	return listMethod(vm, ext.elems, prop, argc)
}

// listsEqual compares element-wise with value equality.
func (vm *VM) listsEqual(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !vm.valuesEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// newList allocates an immutable list holding elems.
func (vm *VM) newList(elems []Value) Value {
	id, ok := vm.newObject(ListMeta, &listExt{elems: elems})
	if !ok {
		return NilValue
	}
	return ObjValue(id)
}
