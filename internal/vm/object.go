package vm

type objFlags uint8

const (
	flagLive objFlags = 1 << iota
	flagTransient
	flagInRoot
	flagInImage
)

type gcColor uint8

const (
	white gcColor = iota
	gray
	black
)

func (c gcColor) String() string {
	switch c {
	case white:
		return "white"
	case gray:
		return "gray"
	default:
		return "black"
	}
}

// Object is one object table entry. The extension is owned by the metaclass
// and opaque to everything else.
type Object struct {
	id    ObjID
	Meta  Metaclass
	Ext   any
	flags objFlags
	color gcColor
	seq   uint64 // allocation sequence, used by undo rollback
	image []byte // image bytes, kept for reload
}

func (o *Object) ID() ObjID       { return o.id }
func (o *Object) Live() bool      { return o.flags&flagLive != 0 }
func (o *Object) Transient() bool { return o.flags&flagTransient != 0 }
func (o *Object) InRootSet() bool { return o.flags&flagInRoot != 0 }
func (o *Object) InImage() bool   { return o.flags&flagInImage != 0 }

// IDOptions selects the bookkeeping flags of a new object.
type IDOptions struct {
	InRootSet bool
	InImage   bool
	Transient bool
}

func (o IDOptions) flags() objFlags {
	f := flagLive
	if o.InRootSet {
		f |= flagInRoot
	}
	if o.InImage {
		f |= flagInImage
	}
	if o.Transient {
		f |= flagTransient
	}
	return f
}
