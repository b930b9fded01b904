package vm

import (
	"strings"
	"unicode/utf8"

	"fortio.org/safecast"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// StringMeta is the dynamic string. Its extension is the Go string.
var StringMeta = &stringMeta{BaseMetaclass{Desc: Descriptor{Base: "string", Version: 30008}}}

type stringMeta struct{ BaseMetaclass }

// Intrinsic methods of strings.
const (
	StrLength PropID = MethodBase + iota
	StrSubstr
	StrToUpper
	StrToLower
	StrFind
	StrStartsWith
	StrEndsWith
)

// StrFromChars is the static method string.fromChars(code...), which builds
// a string from code points.
const StrFromChars PropID = MethodBase

func (m *stringMeta) CallStaticProp(vm *VM, prop PropID, argc int) (Value, bool) {
	if prop != StrFromChars {
		return Value{}, false
	}
	var b strings.Builder
	for range argc {
		c, ok := vm.popInt()
		if !ok {
			return NilValue, true
		}
		if c < 0 || !utf8.ValidRune(rune(c)) {
			vm.throw(ExcBadValue, "fromChars: invalid code point %d", c)
			return NilValue, true
		}
		b.WriteRune(rune(c))
	}
	return vm.newString(b.String()), true
}

func (m *stringMeta) Construct(vm *VM, argc int) ObjID {
	if !vm.checkArgc("string", argc, 0, 1) {
		return InvalidObj
	}
	s := ""
	if argc == 1 {
		s = vm.displayString(vm.pop())
	}
	id, _ := vm.newObject(m, s)
	return id
}

func (m *stringMeta) LoadImage(_ *VM, o *Object, data []byte) error {
	o.Ext = string(data)
	return nil
}

func (m *stringMeta) Save(_ *VM, o *Object) ([]byte, error) { return []byte(o.Ext.(string)), nil }

func (m *stringMeta) Restore(vm *VM, o *Object, data []byte) error { return m.LoadImage(vm, o, data) }

func (m *stringMeta) CastToString(_ *VM, o *Object) (string, bool) { return o.Ext.(string), true }

// Equals matches string constants and string objects only; other objects
// that cast to a string are not equal to it.
func (m *stringMeta) Equals(vm *VM, o *Object, other Value) bool {
	if other.Kind == KindSString {
		s, _ := vm.stringOf(other)
		return s == o.Ext.(string)
	}
	if so := vm.objectOf(other, m.Desc.Base); so != nil {
		return so.Ext.(string) == o.Ext.(string)
	}
	return false
}

func (m *stringMeta) Hash(_ *VM, o *Object) uint32 { return hashString(o.Ext.(string)) }

func (m *stringMeta) Compare(vm *VM, o *Object, other Value) (int, bool) {
	s, ok := vm.stringOf(other)
	if !ok {
		return 0, false
	}
	return strings.Compare(o.Ext.(string), s), true
}

func (m *stringMeta) GetProp(vm *VM, o *Object, prop PropID, argc int) (Value, bool) {
	s := o.Ext.(string)
	return stringMethod(vm, s, prop, argc)
}

// stringMethod implements the string methods for both string objects and
// string constants.
func stringMethod(vm *VM, s string, prop PropID, argc int) (Value, bool) {
	switch prop {
	case StrLength:
		if !vm.checkArgc("length", argc, 0, 0) {
			return NilValue, true
		}
		return intResult(vm, utf8.RuneCountInString(s)), true
	case StrSubstr:
		if !vm.checkArgc("substr", argc, 1, 1) {
			return NilValue, true
		}
		start, ok := vm.popInt()
		if !ok {
			return NilValue, true
		}
		runes := []rune(s)
		n := int32(len(runes)) //nolint:gosec // bounded by string length
		if argc == 2 {
			if n, ok = vm.popInt(); !ok {
				return NilValue, true
			}
		}
		return vm.newString(substr(runes, start, n)), true
	case StrToUpper:
		if !vm.checkArgc("toUpper", argc, 0, 0) {
			return NilValue, true
		}
		return vm.newString(cases.Upper(language.Und).String(s)), true
	case StrToLower:
		if !vm.checkArgc("toLower", argc, 0, 0) {
			return NilValue, true
		}
		return vm.newString(cases.Lower(language.Und).String(s)), true
	case StrFind:
		if !vm.checkArgc("find", argc, 1, 0) {
			return NilValue, true
		}
		sub, ok := vm.popString()
		if !ok {
			return NilValue, true
		}
		i := strings.Index(s, sub)
		if i < 0 {
			return NilValue, true
		}
		return intResult(vm, utf8.RuneCountInString(s[:i])+1), true
	case StrStartsWith, StrEndsWith:
		if !vm.checkArgc("startsWith", argc, 1, 0) {
			return NilValue, true
		}
		sub, ok := vm.popString()
		if !ok {
			return NilValue, true
		}
		if prop == StrStartsWith {
			return BoolValue(strings.HasPrefix(s, sub)), true
		}
		return BoolValue(strings.HasSuffix(s, sub)), true
	}
	return Value{}, false
}

// substr takes count runes from the 1-based start. A negative start counts
// from the end.
func substr(runes []rune, start, count int32) string {
	n := len(runes)
	i := int(start)
	if i < 0 {
		i = n + i + 1
	}
	i = max(i, 1) - 1
	if i >= n || count <= 0 {
		return ""
	}
	end := min(n, i+int(count))
	return string(runes[i:end])
}

// intResult converts a host count to an integer value, throwing on overflow.
func intResult(vm *VM, n int) Value {
	v, err := safecast.Conv[int32](n)
	if err != nil {
		vm.throw(ExcNumOverflow, "%d does not fit in an integer", n)
		return NilValue
	}
	return IntValue(v)
}
