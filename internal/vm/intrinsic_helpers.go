package vm

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Argument marshalling shared by native functions and intrinsic methods.
// Each pop helper throws on a type mismatch and reports false; callers return
// at once so the pending exception unwinds at the opcode boundary.

func (vm *VM) checkArgc(name string, argc, minArgs, optArgs int) bool {
	if argc < minArgs || argc > minArgs+optArgs {
		vm.popN(min(argc, vm.sp))
		vm.throw(ExcWrongArgCount, "%s: %d arguments", name, argc)
		return false
	}
	return true
}

// popKind pops a value that must have exactly kind k.
func (vm *VM) popKind(k ValueKind) (Value, bool) {
	v := vm.pop()
	if v.Kind != k {
		vm.throw(ExcBadType, "%v required, got %v", k, v.Kind)
		return Value{}, false
	}
	return v, true
}

func (vm *VM) popInt() (int32, bool) {
	v, ok := vm.popKind(KindInt)
	return v.Int(), ok
}

func (vm *VM) popBool() bool {
	return vm.pop().Truthy()
}

func (vm *VM) popProp() (PropID, bool) {
	v, ok := vm.popKind(KindProp)
	return v.Prop(), ok
}

func (vm *VM) popObject() (*Object, bool) {
	o := vm.object(vm.pop())
	return o, o != nil
}

// popString accepts string constants and any object that casts to a string.
func (vm *VM) popString() (string, bool) {
	v := vm.pop()
	s, ok := vm.stringOf(v)
	if !ok {
		vm.throw(ExcStringRequired, "string required, got %v", v)
	}
	return s, ok
}

// popList accepts list constants and list or vector objects.
func (vm *VM) popList() ([]Value, bool) {
	v := vm.pop()
	l, ok := vm.listOf(v)
	if !ok {
		vm.throw(ExcListRequired, "list required, got %v", v)
	}
	return l, ok
}

// SafetyLevel restricts file access from bytecode.
type SafetyLevel int

const (
	SafetyNone      SafetyLevel = 0 // unrestricted
	SafetyReadAny   SafetyLevel = 1 // read anywhere, write inside the sandbox
	SafetySandbox   SafetyLevel = 2 // read and write inside the sandbox
	SafetyReadLocal SafetyLevel = 3 // read inside the sandbox, no writes
	SafetyNoAccess  SafetyLevel = 4 // no file access
)

// popFilename accepts a string or FileName object and checks it against the
// configured safety level for the requested access.
func (vm *VM) popFilename(write bool) (string, bool) {
	v := vm.pop()
	var name string
	if o := vm.objectOf(v, FileNameMeta.Desc.Base); o != nil {
		name = o.Ext.(*fileNameExt).path
	} else {
		s, ok := vm.stringOf(v)
		if !ok {
			vm.throw(ExcStringRequired, "filename required, got %v", v)
			return "", false
		}
		name = vm.filenameMap.ToHost(s)
	}
	if err := vm.checkFileAccess(name, write); err != nil {
		vm.throw(ExcFileSafety, "%v", err)
		return "", false
	}
	return name, true
}

func (vm *VM) checkFileAccess(name string, write bool) error {
	level := vm.opts.Safety
	inside := func() bool {
		if vm.opts.Sandbox == "" {
			return false
		}
		root, err := filepath.Abs(vm.opts.Sandbox)
		if err != nil {
			return false
		}
		p, err := filepath.Abs(name)
		if err != nil {
			return false
		}
		rel, err := filepath.Rel(root, p)
		return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
	}
	switch {
	case level <= SafetyNone:
		return nil
	case level >= SafetyNoAccess:
		return fmt.Errorf("%s: file access disabled", name)
	case write && level == SafetyReadLocal:
		return fmt.Errorf("%s: writing disabled", name)
	case write && !inside():
		return fmt.Errorf("%s: writes restricted to the sandbox", name)
	case !write && level >= SafetySandbox && !inside():
		return fmt.Errorf("%s: reads restricted to the sandbox", name)
	}
	return nil
}

// retObj stores a freshly allocated object in R0, or nil if allocation threw.
func (vm *VM) retObj(id ObjID) {
	if id == InvalidObj {
		vm.r0 = NilValue
		return
	}
	vm.r0 = ObjValue(id)
}

// retString allocates a string result in R0.
func (vm *VM) retString(s string) {
	vm.r0 = vm.newString(s)
}
