package vm

import "bytes"

// ByteArrayMeta is a mutable array of bytes.
var ByteArrayMeta = &byteArrayMeta{BaseMetaclass{Desc: Descriptor{Base: "bytearray", Version: 30002}}}

type byteArrayMeta struct{ BaseMetaclass }

type byteArrayExt struct {
	b []byte
}

// Intrinsic methods of byte arrays.
const (
	BytesLength PropID = MethodBase + iota
	BytesGet
	BytesSet
)

// Construct takes a length, or a string whose UTF-8 bytes are copied.
func (m *byteArrayMeta) Construct(vm *VM, argc int) ObjID {
	if !vm.checkArgc("bytearray", argc, 1, 0) {
		return InvalidObj
	}
	arg := vm.pop()
	var b []byte
	switch {
	case arg.Kind == KindInt:
		if arg.Int() < 0 {
			vm.throw(ExcBadValue, "bytearray length %d", arg.Int())
			return InvalidObj
		}
		b = make([]byte, arg.Int())
	default:
		s, ok := vm.stringOf(arg)
		if !ok {
			vm.throw(ExcBadType, "bytearray needs a length or a string, got %v", arg)
			return InvalidObj
		}
		b = []byte(s)
	}
	id, _ := vm.newObject(m, &byteArrayExt{b: b})
	return id
}

func (m *byteArrayMeta) LoadImage(_ *VM, o *Object, data []byte) error {
	o.Ext = &byteArrayExt{b: bytes.Clone(data)}
	return nil
}

func (m *byteArrayMeta) Save(_ *VM, o *Object) ([]byte, error) {
	return bytes.Clone(o.Ext.(*byteArrayExt).b), nil
}

func (m *byteArrayMeta) Restore(vm *VM, o *Object, data []byte) error {
	return m.LoadImage(vm, o, data)
}

func (m *byteArrayMeta) GetProp(vm *VM, o *Object, prop PropID, argc int) (Value, bool) {
	ext := o.Ext.(*byteArrayExt)
	switch prop {
	case BytesLength:
		if !vm.checkArgc("length", argc, 0, 0) {
			return NilValue, true
		}
		return intResult(vm, len(ext.b)), true
	case BytesGet:
		if !vm.checkArgc("get", argc, 1, 0) {
			return NilValue, true
		}
		i, ok := vm.popInt()
		if !ok {
			return NilValue, true
		}
		if i < 1 || int(i) > len(ext.b) {
			vm.throw(ExcIndexRange, "index %d out of range 1..%d", i, len(ext.b))
			return NilValue, true
		}
		return IntValue(int32(ext.b[i-1])), true
	case BytesSet:
		if !vm.checkArgc("set", argc, 2, 0) {
			return NilValue, true
		}
		i, ok := vm.popInt()
		if !ok {
			return NilValue, true
		}
		v, ok := vm.popInt()
		if !ok {
			return NilValue, true
		}
		if i < 1 || int(i) > len(ext.b) {
			vm.throw(ExcIndexRange, "index %d out of range 1..%d", i, len(ext.b))
			return NilValue, true
		}
		if v < 0 || v > 255 {
			vm.throw(ExcNumOverflow, "byte value %d", v)
			return NilValue, true
		}
		ext.b[i-1] = byte(v)
		return IntValue(v), true
	}
	return Value{}, false
}

func (vm *VM) newByteArray(b []byte) Value {
	id, ok := vm.newObject(ByteArrayMeta, &byteArrayExt{b: b})
	if !ok {
		return NilValue
	}
	return ObjValue(id)
}

// ByteArrayBytes returns the contents of a byte array value.
func (vm *VM) ByteArrayBytes(v Value) ([]byte, bool) {
	o := vm.objectOf(v, ByteArrayMeta.Desc.Base)
	if o == nil {
		return nil, false
	}
	return o.Ext.(*byteArrayExt).b, true
}
