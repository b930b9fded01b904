package vm

import (
	"context"
	"encoding/binary"
	"slices"
	"testing"

	"storyvm/internal/image"
)

// Metaclass and function-set indices of test images.
const (
	metaObject = iota
	metaString
	metaList
	metaSet
	metaBigNumber
	metaByteArray
	metaFile
	metaVector
)

const (
	setT3VM = iota
	setGen
	setIO
)

var (
	testMetaclasses = []string{
		"tads-object/030005", "string/030008", "list/030008", "set/010000",
		"bignumber/030001", "bytearray/030002", "file/030003", "vector/030005",
	}
	testFuncSets = []string{"t3vm/010006", "tads-gen/030008", "tads-io/030007"}
)

// program assembles code words, data pool constants and static objects into
// an image.
type program struct {
	t    *testing.T
	code []uint32
	data []byte
	syms map[string]uint32
	objs []image.ObjectDef
}

func newProgram(t *testing.T) *program {
	t.Helper()
	// Word 0 and data offset 0 are padding so no real address is zero.
	return &program{
		t:    t,
		code: []uint32{Stmop(OpReturn)},
		data: make([]byte, 4),
		syms: make(map[string]uint32),
	}
}

// fn starts a function and returns its address.
func (p *program) fn(name string, params, locals uint16) uint32 {
	at := uint32(len(p.code))
	p.code = append(p.code, FuncHeader(params, locals))
	if name != "" {
		p.syms[name] = at
	}
	return at
}

// emit appends words: an int is a CONST, an Op a STMOP and a Register a
// CURVAR read.
func (p *program) emit(items ...any) *program {
	p.t.Helper()
	for _, it := range items {
		switch x := it.(type) {
		case int:
			p.code = append(p.code, Const(int32(x)))
		case uint32:
			p.code = append(p.code, Const(int32(x)))
		case Op:
			p.code = append(p.code, Stmop(x))
		case Register:
			p.code = append(p.code, CurVar(x))
		default:
			p.t.Fatalf("emit: unsupported item %T", it)
		}
	}
	return p
}

// here returns the address of the next word.
func (p *program) here() uint32 { return uint32(len(p.code)) }

// placeholder emits a CONST to be filled by patch and returns its index.
func (p *program) placeholder() int {
	p.code = append(p.code, Const(0))
	return len(p.code) - 1
}

func (p *program) patch(at int, v uint32) { p.code[at] = Const(int32(v)) }

// raw appends an undecoded word.
func (p *program) raw(w uint32) { p.code = append(p.code, w) }

// str adds a string constant and returns its data pool offset.
func (p *program) str(s string) uint32 {
	at := uint32(len(p.data))
	p.data = binary.LittleEndian.AppendUint16(p.data, uint16(len(s)))
	p.data = append(p.data, s...)
	return at
}

// list adds a list constant and returns its data pool offset.
func (p *program) list(elems ...Value) uint32 {
	at := uint32(len(p.data))
	p.data = binary.LittleEndian.AppendUint16(p.data, uint16(len(elems)))
	for _, e := range elems {
		p.data = AppendHolder(p.data, e)
	}
	return at
}

// object adds a static tads-object.
func (p *program) object(id uint32, props map[PropID]Value, supers ...ObjID) {
	data := binary.LittleEndian.AppendUint16(nil, uint16(len(supers)))
	for _, s := range supers {
		data = binary.LittleEndian.AppendUint32(data, uint32(s))
	}
	data = binary.LittleEndian.AppendUint16(data, uint16(len(props)))
	ids := make([]PropID, 0, len(props))
	for id := range props {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		data = binary.LittleEndian.AppendUint16(data, uint16(id))
		data = AppendHolder(data, props[id])
	}
	p.objs = append(p.objs, image.ObjectDef{ID: id, Metaclass: metaObject, Data: data})
}

func (p *program) image(entry uint32) *image.Image {
	code := make([]byte, 0, 4*len(p.code))
	for _, w := range p.code {
		code = binary.LittleEndian.AppendUint32(code, w)
	}
	return &image.Image{
		Version:      image.FormatVersion,
		Entry:        entry,
		Code:         image.NewPoolDef(code, 4096),
		Data:         image.NewPoolDef(p.data, 4096),
		Metaclasses:  testMetaclasses,
		FunctionSets: testFuncSets,
		Objects:      p.objs,
		Symbols:      p.syms,
		Raw:          code,
	}
}

// load attaches the program to a new VM with a test host.
func (p *program) load(entry uint32, opts Options) (*VM, *TestHost) {
	p.t.Helper()
	vm := New(opts)
	host := NewTestHost()
	vm.SetHost(host)
	if err := vm.Attach(p.image(entry)); err != nil {
		p.t.Fatalf("attach: %v", err)
	}
	return vm, host
}

// callBifWords emits a built-in call of set.name with argc arguments already
// on the stack.
func (p *program) callBifWords(set int, name string, argc int) {
	p.t.Helper()
	idx := builtinFuncSets()[set].Index(name)
	if idx < 0 {
		p.t.Fatalf("no built-in %q in set %d", name, set)
	}
	p.emit(set, idx, OpPushBif, argc, OpCallBif)
}

func mustCall(t *testing.T, vm *VM, fn uint32, args ...Value) Value {
	t.Helper()
	if err := vm.Call(context.Background(), fn, args...); err != nil {
		t.Fatalf("call %d: %v", fn, err)
	}
	return vm.R0()
}
