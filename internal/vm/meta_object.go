package vm

import (
	"encoding/binary"
	"fmt"
	"slices"

	"fortio.org/safecast"
)

// TadsObjectMeta is the general-purpose object: a superclass list plus a
// property table. World-model instances are TADS objects.
var TadsObjectMeta = &tadsObjectMeta{BaseMetaclass{Desc: Descriptor{Base: "tads-object", Version: 30005}}}

type tadsObjectMeta struct{ BaseMetaclass }

type objectExt struct {
	supers []ObjID
	props  map[PropID]Value
}

func newObjectExt() *objectExt {
	return &objectExt{props: make(map[PropID]Value)}
}

func objExt(o *Object) *objectExt { return o.Ext.(*objectExt) }

// Construct makes an instance whose superclasses are the object arguments.
func (m *tadsObjectMeta) Construct(vm *VM, argc int) ObjID {
	args := vm.popN(argc)
	ext := newObjectExt()
	for _, a := range args {
		if a.Kind != KindObj {
			vm.throw(ExcBadType, "superclass must be an object, got %v", a)
			return InvalidObj
		}
		ext.supers = append(ext.supers, a.Obj())
	}
	id, _ := vm.newObject(m, ext)
	return id
}

// Image and save layout: u16 superclass count, u32 ids, u16 property count,
// then u16 property id plus a data holder per property, ascending by id.
func (m *tadsObjectMeta) LoadImage(_ *VM, o *Object, data []byte) error {
	ext, err := decodeObjectExt(data)
	if err != nil {
		return fmt.Errorf("tads-object %d: %w", o.id, err)
	}
	o.Ext = ext
	return nil
}

func decodeObjectExt(data []byte) (*objectExt, error) {
	c := holderCursor{b: data}
	ext := newObjectExt()
	ns := c.u16()
	for range ns {
		ext.supers = append(ext.supers, ObjID(c.u32()))
	}
	np := c.u16()
	for range np {
		id := PropID(c.u16())
		ext.props[id] = c.holder()
	}
	if c.err != nil {
		return nil, c.err
	}
	return ext, nil
}

func (m *tadsObjectMeta) Save(_ *VM, o *Object) ([]byte, error) {
	ext := objExt(o)
	ns, err := safecast.Conv[uint16](len(ext.supers))
	if err != nil {
		return nil, fmt.Errorf("tads-object %d: too many superclasses", o.id)
	}
	np, err := safecast.Conv[uint16](len(ext.props))
	if err != nil {
		return nil, fmt.Errorf("tads-object %d: too many properties", o.id)
	}
	out := binary.LittleEndian.AppendUint16(nil, ns)
	for _, s := range ext.supers {
		out = binary.LittleEndian.AppendUint32(out, uint32(s))
	}
	out = binary.LittleEndian.AppendUint16(out, np)
	for _, id := range sortedProps(ext.props) {
		out = binary.LittleEndian.AppendUint16(out, uint16(id))
		out = AppendHolder(out, ext.props[id])
	}
	return out, nil
}

func (m *tadsObjectMeta) Restore(vm *VM, o *Object, data []byte) error {
	return m.LoadImage(vm, o, data)
}

func (m *tadsObjectMeta) Fixup(o *Object, fix func(Value) Value) {
	ext := objExt(o)
	for i, s := range ext.supers {
		ext.supers[i] = fix(ObjValue(s)).Obj()
	}
	for id, v := range ext.props {
		ext.props[id] = fix(v)
	}
}

func (m *tadsObjectMeta) GetProp(vm *VM, o *Object, prop PropID, argc int) (Value, bool) {
	v, ok := objExt(o).props[prop]
	if !ok {
		return Value{}, false
	}
	vm.popN(argc)
	return v, true
}

func (m *tadsObjectMeta) SetProp(vm *VM, o *Object, prop PropID, v Value) {
	ext := objExt(o)
	old, had := ext.props[prop]
	vm.recordUndo(o, prop, old, had)
	ext.props[prop] = v
}

func (m *tadsObjectMeta) Superclasses(o *Object) []ObjID { return objExt(o).supers }

func (m *tadsObjectMeta) MarkRefs(o *Object, mark func(Value)) {
	ext := objExt(o)
	for _, s := range ext.supers {
		mark(ObjValue(s))
	}
	for _, v := range ext.props {
		mark(v)
	}
}

// lookupProp returns the stored value without evaluating it.
func (m *tadsObjectMeta) lookupProp(o *Object, prop PropID) (Value, bool) {
	v, ok := objExt(o).props[prop]
	return v, ok
}

// undoProp restores a property to its state before a recorded change.
func (m *tadsObjectMeta) undoProp(o *Object, prop PropID, old Value, had bool) {
	ext := objExt(o)
	if had {
		ext.props[prop] = old
	} else {
		delete(ext.props, prop)
	}
}

func sortedProps(props map[PropID]Value) []PropID {
	ids := make([]PropID, 0, len(props))
	for id := range props {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// propStore is implemented by metaclasses whose properties may hold methods.
type propStore interface {
	lookupProp(o *Object, prop PropID) (Value, bool)
}

// undoable is implemented by metaclasses whose property sets are undoable.
type undoable interface {
	undoProp(o *Object, prop PropID, old Value, had bool)
}

// getProp evaluates prop on recv, walking superclasses depth first. A
// function-valued property is invoked with self bound to recv. The result is
// left in R0; argc arguments are consumed either way.
func (vm *VM) getProp(recv Value, prop PropID, argc int) bool {
	var (
		v     Value
		found bool
	)
	switch recv.Kind {
	case KindSString:
		s, _ := vm.stringOf(recv)
		v, found = stringMethod(vm, s, prop, argc)
	case KindList:
		l, _ := vm.listOf(recv)
		v, found = listMethod(vm, l, prop, argc)
	}
	if recv.Kind == KindSString || recv.Kind == KindList {
		if !found {
			vm.popN(argc)
			v = NilValue
		}
		vm.r0 = v
		return found
	}
	o := vm.object(recv)
	if o == nil {
		vm.popN(min(argc, vm.sp))
		return false
	}
	seen := make(map[ObjID]bool)
	var walk func(cur *Object) bool
	walk = func(cur *Object) bool {
		if cur == nil || seen[cur.id] {
			return false
		}
		seen[cur.id] = true
		if ps, ok := cur.Meta.(propStore); ok {
			if v, found := ps.lookupProp(cur, prop); found {
				if v.Kind == KindFuncPtr {
					vm.callFunc(v.Offset(), argc, recv.Obj())
				} else {
					vm.popN(argc)
					vm.r0 = v
				}
				return true
			}
		} else if v, found := cur.Meta.GetProp(vm, cur, prop, argc); found {
			vm.r0 = v
			return true
		}
		if vm.pending != nil {
			return true
		}
		for _, s := range cur.Meta.Superclasses(cur) {
			if walk(vm.objects.Lookup(s)) {
				return true
			}
		}
		return false
	}
	if walk(o) {
		return true
	}
	vm.popN(argc)
	vm.r0 = NilValue
	return false
}

// inheritsFrom reports whether o is class or has it among its ancestors.
func (vm *VM) inheritsFrom(o *Object, class ObjID) bool {
	seen := make(map[ObjID]bool)
	var walk func(cur *Object) bool
	walk = func(cur *Object) bool {
		if cur == nil || seen[cur.id] {
			return false
		}
		if cur.id == class {
			return true
		}
		seen[cur.id] = true
		for _, s := range cur.Meta.Superclasses(cur) {
			if walk(vm.objects.Lookup(s)) {
				return true
			}
		}
		return false
	}
	return walk(o)
}

// propValue reads a stored property through the superclass chain without
// invoking methods. The walk order matches getProp.
func (vm *VM) propValue(o *Object, prop PropID) (Value, bool) {
	seen := make(map[ObjID]bool)
	var walk func(cur *Object) (Value, bool)
	walk = func(cur *Object) (Value, bool) {
		if cur == nil || seen[cur.id] {
			return NilValue, false
		}
		seen[cur.id] = true
		if ps, ok := cur.Meta.(propStore); ok {
			if v, found := ps.lookupProp(cur, prop); found {
				return v, true
			}
		}
		for _, s := range cur.Meta.Superclasses(cur) {
			if v, found := walk(vm.objects.Lookup(s)); found {
				return v, true
			}
		}
		return NilValue, false
	}
	return walk(o)
}

// setPropValue stores a property, throwing when the metaclass refuses.
func (vm *VM) setPropValue(o *Object, prop PropID, v Value) {
	o.Meta.SetProp(vm, o, prop, v)
}

// holderCursor reads the fixed-width fields of extension byte streams.
type holderCursor struct {
	b   []byte
	off int
	err error
}

func (c *holderCursor) need(n int) bool {
	if c.err != nil {
		return false
	}
	if c.off+n > len(c.b) {
		c.err = fmt.Errorf("truncated at byte %d", c.off)
		return false
	}
	return true
}

func (c *holderCursor) u16() uint16 {
	if !c.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(c.b[c.off:])
	c.off += 2
	return v
}

func (c *holderCursor) u32() uint32 {
	if !c.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(c.b[c.off:])
	c.off += 4
	return v
}

func (c *holderCursor) holder() Value {
	if !c.need(HolderSize) {
		return NilValue
	}
	v, err := DecodeHolder(c.b[c.off:])
	if err != nil {
		c.err = err
		return NilValue
	}
	c.off += HolderSize
	return v
}

// encodeValues writes a u32 count followed by data holders.
func encodeValues(vals []Value) ([]byte, error) {
	n, err := safecast.Conv[uint32](len(vals))
	if err != nil {
		return nil, err
	}
	out := binary.LittleEndian.AppendUint32(make([]byte, 0, 4+len(vals)*HolderSize), n)
	for _, v := range vals {
		out = AppendHolder(out, v)
	}
	return out, nil
}

func decodeValues(data []byte) ([]Value, error) {
	c := holderCursor{b: data}
	n := c.u32()
	if c.err == nil && int(n) > (len(data)-4)/HolderSize {
		return nil, fmt.Errorf("value count %d exceeds data", n)
	}
	out := make([]Value, 0, n)
	for range n {
		out = append(out, c.holder())
	}
	return out, c.err
}
