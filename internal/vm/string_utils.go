package vm

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"storyvm/internal/pool"
)

// constString reads a string constant: u16 length then UTF-8 bytes.
func (vm *VM) constString(ofs uint32) (string, bool) {
	n, ok := pool.Uint16At(vm.data, ofs)
	if !ok {
		return "", false
	}
	b, ok := pool.BytesAt(vm.data, ofs+2, int(n))
	if !ok {
		return "", false
	}
	return string(b), true
}

// constList reads a list constant: u16 count then data holders.
func (vm *VM) constList(ofs uint32) ([]Value, bool) {
	n, ok := pool.Uint16At(vm.data, ofs)
	if !ok {
		return nil, false
	}
	b, ok := pool.BytesAt(vm.data, ofs+2, int(n)*HolderSize)
	if !ok {
		return nil, false
	}
	out := make([]Value, n)
	for i := range out {
		v, err := DecodeHolder(b[i*HolderSize:])
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// stringOf returns the text of a string constant or of any object whose
// metaclass casts to a string.
func (vm *VM) stringOf(v Value) (string, bool) {
	switch v.Kind {
	case KindSString:
		s, ok := vm.constString(v.Offset())
		if !ok {
			panic(vm.eb.badPoolOffset(v.Offset()))
		}
		return s, true
	case KindObj:
		o := vm.objects.Lookup(v.Obj())
		if o == nil {
			return "", false
		}
		return o.Meta.CastToString(vm, o)
	}
	return "", false
}

// listOf returns the elements of a list constant or a list-like object.
func (vm *VM) listOf(v Value) ([]Value, bool) {
	switch v.Kind {
	case KindList:
		l, ok := vm.constList(v.Offset())
		if !ok {
			panic(vm.eb.badPoolOffset(v.Offset()))
		}
		return l, true
	case KindObj:
		o := vm.objects.Lookup(v.Obj())
		if o == nil {
			return nil, false
		}
		switch ext := o.Ext.(type) {
		case *listExt:
			return ext.elems, true
		case *setExt:
			return ext.members, true
		}
	}
	return nil, false
}

// newString allocates a string object. On allocation failure it returns nil
// with the exception pending.
func (vm *VM) newString(s string) Value {
	id, ok := vm.newObject(StringMeta, s)
	if !ok {
		return NilValue
	}
	return ObjValue(id)
}

// displayString renders any value as text for output and concatenation.
func (vm *VM) displayString(v Value) string {
	if s, ok := vm.stringOf(v); ok {
		return s
	}
	switch v.Kind {
	case KindInt:
		return v.String()
	case KindNil, 0:
		return ""
	case KindTrue:
		return "true"
	case KindObj:
		if o := vm.objects.Lookup(v.Obj()); o != nil {
			if n, ok := vm.objectName(o); ok {
				return n
			}
		}
	}
	return v.String()
}

// canonical is the comparison form used by STREQ and CONTAINS. A Caser keeps
// state, so each call builds its own.
func canonical(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

func equalFold(a, b string) bool { return canonical(a) == canonical(b) }

func containsFold(s, sub string) bool {
	return strings.Contains(canonical(s), canonical(sub))
}
