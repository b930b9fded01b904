package vm

import (
	"errors"
	"io"
	"io/fs"
	"strings"
)

// FileMeta is an open host file. Files are transient: they are never saved
// and are closed when collected.
var FileMeta = &fileMeta{BaseMetaclass{Desc: Descriptor{Base: "file", Version: 30003}}}

// FileNameMeta is a host path kept in host encoding.
var FileNameMeta = &fileNameMeta{BaseMetaclass{Desc: Descriptor{Base: "filename", Version: 30001}}}

type fileMeta struct{ BaseMetaclass }

type fileExt struct {
	h      FileHandle
	path   string
	mode   FileMode
	ftype  FileType
	closed bool
}

// Intrinsic methods of files.
const (
	FileGetPath PropID = MethodBase + iota
	FileIsOpen
)

func (m *fileMeta) NotifyDelete(_ *VM, o *Object) {
	if ext, ok := o.Ext.(*fileExt); ok && !ext.closed {
		_ = ext.h.Close()
		ext.closed = true
	}
}

func (m *fileMeta) GetProp(vm *VM, o *Object, prop PropID, argc int) (Value, bool) {
	ext := o.Ext.(*fileExt)
	switch prop {
	case FileGetPath:
		if !vm.checkArgc("getPath", argc, 0, 0) {
			return NilValue, true
		}
		return vm.newString(vm.filenameMap.FromHost(ext.path)), true
	case FileIsOpen:
		if !vm.checkArgc("isOpen", argc, 0, 0) {
			return NilValue, true
		}
		return BoolValue(!ext.closed), true
	}
	return Value{}, false
}

// openFile opens path through the host and wraps it in a transient object.
func (vm *VM) openFile(path string, mode FileMode, ftype FileType) Value {
	h, err := vm.host.OpenFile(path, mode, ftype)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			vm.throw(ExcFileNotFound, "%s", path)
		} else if mode == FileRead {
			vm.throw(ExcFileNotFound, "%v", err)
		} else {
			vm.throw(ExcNotWritable, "%v", err)
		}
		return NilValue
	}
	id := vm.NewID(FileMeta, IDOptions{Transient: true})
	if id == InvalidObj {
		_ = h.Close()
		return NilValue
	}
	o := vm.objects.Lookup(id)
	o.Ext = &fileExt{h: h, path: path, mode: mode, ftype: ftype}
	return ObjValue(id)
}

// fileOf resolves an open file argument.
func (vm *VM) fileOf(v Value) *fileExt {
	o := vm.objectOf(v, FileMeta.Desc.Base)
	if o == nil {
		vm.throw(ExcBadType, "file required, got %v", v)
		return nil
	}
	ext := o.Ext.(*fileExt)
	if ext.closed {
		vm.throw(ExcBadValue, "%s is closed", ext.path)
		return nil
	}
	return ext
}

// readTextLine reads up to and including the next newline, one byte at a
// time so the handle's position stays exact for fileGetPos.
func readTextLine(r io.Reader) (string, error) {
	var sb strings.Builder
	var b [1]byte
	for {
		n, err := r.Read(b[:])
		if n == 1 {
			sb.WriteByte(b[0])
			if b[0] == '\n' {
				return sb.String(), nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
	}
}

type fileNameMeta struct{ BaseMetaclass }

type fileNameExt struct {
	path string
}

func (m *fileNameMeta) Construct(vm *VM, argc int) ObjID {
	if !vm.checkArgc("filename", argc, 1, 0) {
		return InvalidObj
	}
	s, ok := vm.popString()
	if !ok {
		return InvalidObj
	}
	id, _ := vm.newObject(m, &fileNameExt{path: vm.filenameMap.ToHost(s)})
	return id
}

func (m *fileNameMeta) LoadImage(_ *VM, o *Object, data []byte) error {
	o.Ext = &fileNameExt{path: string(data)}
	return nil
}

func (m *fileNameMeta) Save(_ *VM, o *Object) ([]byte, error) {
	return []byte(o.Ext.(*fileNameExt).path), nil
}

func (m *fileNameMeta) Restore(vm *VM, o *Object, data []byte) error {
	return m.LoadImage(vm, o, data)
}

func (m *fileNameMeta) CastToString(vm *VM, o *Object) (string, bool) {
	return vm.filenameMap.FromHost(o.Ext.(*fileNameExt).path), true
}

func (m *fileNameMeta) Equals(_ *VM, o *Object, other Value) bool {
	return other.Kind == KindObj && other.Obj() == o.id
}
