package vm

import (
	"errors"
	"io"
	"strings"

	"storyvm/internal/charmap"
)

// tadsIOFuncs is the console and file function set.
func tadsIOFuncs() *FuncSet {
	return &FuncSet{
		Desc: Descriptor{Base: "tads-io", Version: 30007},
		Funcs: []NativeFunc{
			{Name: "say", Fn: bifSay, Varargs: true},
			{Name: "inputLine", Fn: bifInputLine},
			{Name: "inputKey", Fn: bifInputKey},
			{Name: "fileOpen", Fn: bifFileOpen, MinArgs: 2, OptArgs: 1},
			{Name: "fileClose", Fn: bifFileClose, MinArgs: 1},
			{Name: "fileWriteValue", Fn: bifFileWriteValue, MinArgs: 2},
			{Name: "fileReadValue", Fn: bifFileReadValue, MinArgs: 1},
			{Name: "fileSeek", Fn: bifFileSeek, MinArgs: 2},
			{Name: "fileGetPos", Fn: bifFileGetPos, MinArgs: 1},
			{Name: "setCharset", Fn: bifSetCharset, MinArgs: 1},
		},
	}
}

func bifSay(vm *VM, argc int) {
	args := vm.popN(argc)
	var sb strings.Builder
	for i := len(args) - 1; i >= 0; i-- {
		sb.WriteString(vm.displayString(args[i]))
	}
	vm.host.Output(sb.String())
}

// bifInputLine returns the next line of input, or nil at end of input.
func bifInputLine(vm *VM, _ int) {
	s, ok := vm.host.ReadLine()
	if !ok {
		return
	}
	vm.retString(s)
}

func bifInputKey(vm *VM, _ int) {
	k, ok := vm.host.ReadKey()
	if !ok {
		return
	}
	vm.retString(string(k))
}

// bifFileOpen opens fileOpen(name, mode[, type]); type defaults to data mode.
func bifFileOpen(vm *VM, argc int) {
	name := vm.pop()
	m, ok := vm.popInt()
	if !ok {
		return
	}
	ftype := FileData
	if argc == 3 {
		t, ok := vm.popInt()
		if !ok {
			return
		}
		if t < int32(FileData) || t > int32(FileRaw) {
			vm.throw(ExcBadValue, "fileOpen: unknown file type %d", t)
			return
		}
		ftype = FileType(t) //nolint:gosec // checked above
	}
	if m < int32(FileRead) || m > int32(FileReadWrite) {
		vm.throw(ExcBadValue, "fileOpen: unknown mode %d", m)
		return
	}
	mode := FileMode(m) //nolint:gosec // checked above
	vm.push(name)
	path, ok := vm.popFilename(mode != FileRead)
	if !ok {
		return
	}
	vm.r0 = vm.openFile(path, mode, ftype)
}

func bifFileClose(vm *VM, _ int) {
	f := vm.fileOf(vm.pop())
	if f == nil {
		return
	}
	f.closed = true
	if err := f.h.Close(); err != nil {
		vm.throw(ExcWriteFailed, "%s: %v", f.path, err)
	}
}

// bifFileWriteValue writes one value in the file's format: a tagged value in
// data mode, display text in text mode, the bytes of a byte array in raw mode.
func bifFileWriteValue(vm *VM, _ int) {
	f := vm.fileOf(vm.pop())
	v := vm.pop()
	if f == nil {
		return
	}
	if f.mode == FileRead {
		vm.throw(ExcNotWritable, "%s is open for reading", f.path)
		return
	}
	var err error
	switch f.ftype {
	case FileData:
		err = vm.writeDataValue(f.h, v)
		if errors.Is(err, errUnsupportedData) {
			vm.throw(ExcBadType, "fileWriteValue: %v has no data-mode form", v)
			return
		}
	case FileText:
		_, err = io.WriteString(f.h, vm.displayString(v))
	case FileRaw:
		b, ok := vm.ByteArrayBytes(v)
		if !ok {
			vm.throw(ExcBadType, "fileWriteValue: byte array required in raw mode, got %v", v)
			return
		}
		_, err = f.h.Write(b)
	}
	if err != nil {
		vm.throw(ExcWriteFailed, "%s: %v", f.path, err)
	}
}

// bifFileReadValue reads the next value, leaving nil in R0 at end of file. A
// raw file is read to its end as one byte array.
func bifFileReadValue(vm *VM, _ int) {
	f := vm.fileOf(vm.pop())
	if f == nil {
		return
	}
	if f.mode == FileWrite {
		vm.throw(ExcReadFailed, "%s is open for writing", f.path)
		return
	}
	switch f.ftype {
	case FileData:
		v, err := vm.readDataValue(f.h)
		switch {
		case errors.Is(err, io.EOF):
		case err != nil:
			if vm.pending == nil {
				vm.throw(ExcReadFailed, "%s: %v", f.path, err)
			}
		default:
			vm.r0 = v
		}
	case FileText:
		line, err := readTextLine(f.h)
		switch {
		case errors.Is(err, io.EOF):
		case err != nil:
			vm.throw(ExcReadFailed, "%s: %v", f.path, err)
		default:
			vm.retString(line)
		}
	case FileRaw:
		b, err := io.ReadAll(f.h)
		if err != nil {
			vm.throw(ExcReadFailed, "%s: %v", f.path, err)
			return
		}
		if len(b) > 0 {
			vm.r0 = vm.newByteArray(b)
		}
	}
}

func bifFileSeek(vm *VM, _ int) {
	f := vm.fileOf(vm.pop())
	pos, ok := vm.popInt()
	if f == nil || !ok {
		return
	}
	if pos < 0 {
		vm.throw(ExcBadValue, "fileSeek: negative position %d", pos)
		return
	}
	if _, err := f.h.Seek(int64(pos), io.SeekStart); err != nil {
		vm.throw(ExcReadFailed, "%s: %v", f.path, err)
	}
}

func bifFileGetPos(vm *VM, _ int) {
	f := vm.fileOf(vm.pop())
	if f == nil {
		return
	}
	pos, err := f.h.Seek(0, io.SeekCurrent)
	if err != nil {
		vm.throw(ExcReadFailed, "%s: %v", f.path, err)
		return
	}
	vm.r0 = intResult(vm, int(pos))
}

// bifSetCharset selects the character mapping for file names.
func bifSetCharset(vm *VM, _ int) {
	name, ok := vm.popString()
	if !ok {
		return
	}
	m, err := charmap.Lookup(name)
	if err != nil {
		vm.throw(ExcBadValue, "setCharset: %v", err)
		return
	}
	vm.filenameMap = m
}
