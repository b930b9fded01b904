package vm

import "fmt"

// NativeFunc is one entry of a function set. Fn finds its arguments on the
// operand stack, first argument on top, pops exactly argc of them and leaves
// its result in R0.
type NativeFunc struct {
	Name    string
	Fn      func(vm *VM, argc int)
	MinArgs int
	OptArgs int
	Varargs bool
}

// accepts reports whether argc satisfies the declared arity.
func (f *NativeFunc) accepts(argc int) bool {
	if argc < f.MinArgs {
		return false
	}
	return f.Varargs || argc <= f.MinArgs+f.OptArgs
}

// FuncSet is a named, versioned table of native functions.
type FuncSet struct {
	Desc  Descriptor
	Funcs []NativeFunc
}

// Index returns the position of the named function, or -1.
func (fs *FuncSet) Index(name string) int {
	for i := range fs.Funcs {
		if fs.Funcs[i].Name == name {
			return i
		}
	}
	return -1
}

func builtinFuncSets() []*FuncSet {
	return []*FuncSet{t3vmFuncs(), tadsGenFuncs(), tadsIOFuncs()}
}

// callBif invokes function fn of the image's function set number set. A bad
// index is a fatal integrity error; a wrong argument count throws.
func (vm *VM) callBif(set, fn uint16, argc int) {
	if int(set) >= len(vm.funcSets) || int(fn) >= len(vm.funcSets[set].Funcs) {
		panic(vm.eb.badBif(set, fn))
	}
	f := &vm.funcSets[set].Funcs[fn]
	if !f.accepts(argc) {
		vm.popN(min(argc, vm.sp))
		vm.throw(ExcWrongArgCount, "%s.%s: %d arguments", vm.funcSets[set].Desc.Base, f.Name, argc)
		return
	}
	vm.r0 = NilValue
	base := vm.sp - argc
	f.Fn(vm, argc)
	if vm.pending == nil && vm.sp != base {
		vm.panic(PanicUnimplemented, fmt.Sprintf("%s left the stack unbalanced", f.Name))
	}
}

// BifByName returns the function pointer value for a loaded set function.
func (vm *VM) BifByName(setBase, name string) (Value, bool) {
	for si, fs := range vm.funcSets {
		if fs.Desc.Base != setBase {
			continue
		}
		if fi := fs.Index(name); fi >= 0 {
			return BifValue(uint16(si), uint16(fi)), true //nolint:gosec // table sizes fit in 16 bits
		}
	}
	return Value{}, false
}
