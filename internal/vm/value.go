package vm

import (
	"encoding/binary"
	"fmt"
)

// ValueKind tags a Value. The numeric values double as the one-byte tag of
// portable data holders in images and saved state.
type ValueKind uint8

const (
	KindNil     ValueKind = 1
	KindTrue    ValueKind = 2
	KindObj     ValueKind = 5
	KindProp    ValueKind = 6
	KindInt     ValueKind = 7
	KindSString ValueKind = 8  // string constant in the data pool
	KindList    ValueKind = 10 // list constant in the data pool
	KindCodeOfs ValueKind = 11 // frame link; never visible to bytecode as data
	KindFuncPtr ValueKind = 12
	KindEmpty   ValueKind = 13
	KindEnum    ValueKind = 15
	KindBifPtr  ValueKind = 16
)

func (k ValueKind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindTrue:
		return "true"
	case KindObj:
		return "object"
	case KindProp:
		return "property"
	case KindInt:
		return "int"
	case KindSString:
		return "sstring"
	case KindList:
		return "list"
	case KindCodeOfs:
		return "codeofs"
	case KindFuncPtr:
		return "funcptr"
	case KindEmpty:
		return "empty"
	case KindEnum:
		return "enum"
	case KindBifPtr:
		return "bifptr"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ObjID is an object table handle. Zero is never a live object.
type ObjID uint32

// InvalidObj is the null object handle.
const InvalidObj ObjID = 0

// PropID is a 16-bit property identifier.
type PropID uint16

// Value is the tagged union held on the stack, in locals and in properties.
// Every payload fits in 32 bits; a built-in function pointer packs the set
// index in the low half and the function index in the high half.
type Value struct {
	Kind ValueKind
	V    uint32
}

var (
	NilValue   = Value{Kind: KindNil}
	TrueValue  = Value{Kind: KindTrue}
	EmptyValue = Value{Kind: KindEmpty}
)

func IntValue(n int32) Value        { return Value{Kind: KindInt, V: uint32(n)} } //nolint:gosec // two's complement
func ObjValue(id ObjID) Value       { return Value{Kind: KindObj, V: uint32(id)} }
func PropValue(p PropID) Value      { return Value{Kind: KindProp, V: uint32(p)} }
func SStringValue(ofs uint32) Value { return Value{Kind: KindSString, V: ofs} }
func ListValue(ofs uint32) Value    { return Value{Kind: KindList, V: ofs} }
func FuncValue(pc uint32) Value     { return Value{Kind: KindFuncPtr, V: pc} }
func EnumValue(n uint32) Value      { return Value{Kind: KindEnum, V: n} }

// BifValue builds a built-in function pointer.
func BifValue(set, fn uint16) Value {
	return Value{Kind: KindBifPtr, V: uint32(set) | uint32(fn)<<16}
}

// BoolValue maps a Go bool to true/nil.
func BoolValue(b bool) Value {
	if b {
		return TrueValue
	}
	return NilValue
}

func (v Value) Int() int32     { return int32(v.V) } //nolint:gosec // two's complement
func (v Value) Obj() ObjID     { return ObjID(v.V) }
func (v Value) Prop() PropID   { return PropID(v.V) } //nolint:gosec // 16-bit payload
func (v Value) Offset() uint32 { return v.V }

// Bif returns the set and function index of a built-in function pointer.
func (v Value) Bif() (set, fn uint16) {
	return uint16(v.V), uint16(v.V >> 16) //nolint:gosec // packed halves
}

func (v Value) IsNil() bool { return v.Kind == KindNil || v.Kind == 0 }
func (v Value) IsObj() bool { return v.Kind == KindObj }

// Truthy reports the value's boolean sense: nil, integer zero and empty are
// false, everything else is true.
func (v Value) Truthy() bool {
	switch v.Kind {
	case 0, KindNil, KindEmpty:
		return false
	case KindInt:
		return v.V != 0
	default:
		return true
	}
}

// Same reports identity equality: same kind and same payload.
func (v Value) Same(o Value) bool {
	if v.IsNil() && o.IsNil() {
		return true
	}
	return v.Kind == o.Kind && v.V == o.V
}

func (v Value) String() string {
	switch v.Kind {
	case 0, KindNil:
		return "nil"
	case KindTrue:
		return "true"
	case KindEmpty:
		return "empty"
	case KindInt:
		return fmt.Sprintf("%d", v.Int())
	case KindObj:
		return fmt.Sprintf("obj#%d", v.V)
	case KindProp:
		return fmt.Sprintf("prop#%d", v.V)
	case KindSString:
		return fmt.Sprintf("sstr@%d", v.V)
	case KindList:
		return fmt.Sprintf("list@%d", v.V)
	case KindCodeOfs:
		return fmt.Sprintf("link(%d)", int(v.V)-1)
	case KindFuncPtr:
		return fmt.Sprintf("func@%d", v.V)
	case KindEnum:
		return fmt.Sprintf("enum#%d", v.V)
	case KindBifPtr:
		set, fn := v.Bif()
		return fmt.Sprintf("bif(%d,%d)", set, fn)
	default:
		return fmt.Sprintf("<%v:%d>", v.Kind, v.V)
	}
}

// HolderSize is the encoded size of a portable data holder.
const HolderSize = 5

// EncodeHolder writes v as a tag byte plus a little-endian payload.
func EncodeHolder(dst []byte, v Value) {
	kind := v.Kind
	if kind == 0 {
		kind = KindNil
	}
	dst[0] = byte(kind)
	binary.LittleEndian.PutUint32(dst[1:], v.V)
}

// AppendHolder appends the holder encoding of v to dst.
func AppendHolder(dst []byte, v Value) []byte {
	var b [HolderSize]byte
	EncodeHolder(b[:], v)
	return append(dst, b[:]...)
}

// DecodeHolder reads a data holder. It fails on unknown tags.
func DecodeHolder(src []byte) (Value, error) {
	if len(src) < HolderSize {
		return Value{}, fmt.Errorf("data holder: need %d bytes, have %d", HolderSize, len(src))
	}
	v := Value{Kind: ValueKind(src[0]), V: binary.LittleEndian.Uint32(src[1:])}
	switch v.Kind {
	case KindNil, KindTrue, KindEmpty:
		v.V = 0
	case KindObj, KindProp, KindInt, KindSString, KindList, KindFuncPtr, KindEnum, KindBifPtr:
	default:
		return Value{}, fmt.Errorf("data holder: unknown tag %d", src[0])
	}
	return v, nil
}
