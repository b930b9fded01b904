package vm

// Interpreter version reported by getVMVersion as major<<16 | minor<<8 | patch.
const (
	VMVersionMajor = 1
	VMVersionMinor = 0
	VMVersionPatch = 6

	VMVersion = VMVersionMajor<<16 | VMVersionMinor<<8 | VMVersionPatch
)

// t3vmFuncs is the function set that exposes the interpreter itself.
func t3vmFuncs() *FuncSet {
	return &FuncSet{
		Desc: Descriptor{Base: "t3vm", Version: 10006},
		Funcs: []NativeFunc{
			{Name: "runGC", Fn: bifRunGC},
			{Name: "getVMVersion", Fn: bifGetVMVersion},
			{Name: "getStackDepth", Fn: bifGetStackDepth},
			{Name: "savepoint", Fn: bifSavepoint},
			{Name: "undo", Fn: bifUndo},
			{Name: "setSingleStep", Fn: bifSetSingleStep, MinArgs: 1},
			{Name: "tick", Fn: bifTick},
			{Name: "callStatic", Fn: bifCallStatic, MinArgs: 2, Varargs: true},
		},
	}
}

func bifRunGC(vm *VM, _ int) {
	vm.GC()
}

func bifGetVMVersion(vm *VM, _ int) {
	vm.r0 = IntValue(VMVersion)
}

// bifGetStackDepth reports the depth below the call's own arguments.
func bifGetStackDepth(vm *VM, _ int) {
	vm.r0 = intResult(vm, vm.sp)
}

func bifSavepoint(vm *VM, _ int) {
	vm.Savepoint()
}

func bifUndo(vm *VM, _ int) {
	vm.r0 = BoolValue(vm.Undo())
}

func bifSetSingleStep(vm *VM, _ int) {
	vm.SetSingleStep(vm.popBool(), vm.opts.TraceOut)
}

func bifTick(vm *VM, _ int) {
	vm.tick()
}

// bifCallStatic calls a static property of a loaded metaclass:
// callStatic(metaclassIndex, prop, args...).
func bifCallStatic(vm *VM, argc int) {
	idx, ok := vm.popInt()
	if !ok {
		return
	}
	prop, ok := vm.popProp()
	if !ok {
		return
	}
	argc -= 2
	if idx < 0 || int(idx) >= len(vm.metas) {
		vm.popN(argc)
		vm.throw(ExcBadValue, "callStatic: metaclass index %d not loaded", idx)
		return
	}
	m := vm.metas[idx]
	v, handled := m.CallStaticProp(vm, prop, argc)
	if !handled {
		vm.popN(argc)
		vm.throw(ExcBadValue, "%s has no static property %d", m.Descriptor(), prop)
		return
	}
	if vm.pending == nil {
		vm.r0 = v
	}
}
