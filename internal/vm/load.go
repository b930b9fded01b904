package vm

import (
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"

	"fortio.org/safecast"

	"storyvm/internal/image"
	"storyvm/internal/pool"
	"storyvm/internal/trace"
)

// Attach binds img to the VM: it opens both constant pools, resolves the
// image's metaclass and function-set dependencies against the registry and
// loads every static object. A page-size or dependency failure is reported
// as a *VMError whose Cause carries the detail.
func (vm *VM) Attach(img *image.Image) (err error) {
	if vm.img != nil {
		return fmt.Errorf("attach: an image is already attached")
	}
	span := trace.Begin(vm.tracer, trace.ScopeRun, "attach", 0).
		WithExtra("objects", strconv.Itoa(len(img.Objects)))
	defer func() {
		detail := "ok"
		if err != nil {
			detail = err.Error()
			vm.detach()
		}
		span.End(detail)
	}()

	if vm.code, err = vm.openPool(img, image.PoolCode); err != nil {
		return err
	}
	if vm.data, err = vm.openPool(img, image.PoolData); err != nil {
		return err
	}
	vm.codeWords = vm.code.Size() / 4
	if img.Entry >= vm.codeWords {
		return fmt.Errorf("attach: entry point %d outside code pool of %d words", img.Entry, vm.codeWords)
	}
	vm.img = img
	vm.entry = img.Entry
	vm.jumps = make(map[jumpKey]uint32)

	vm.metas = vm.metas[:0]
	for _, dep := range img.Metaclasses {
		m, rerr := vm.registry.ResolveMetaclass(dep)
		if rerr != nil {
			return vm.dependencyError(rerr)
		}
		vm.metas = append(vm.metas, m)
	}
	vm.funcSets = vm.funcSets[:0]
	for _, dep := range img.FunctionSets {
		fs, rerr := vm.registry.ResolveFuncSet(dep)
		if rerr != nil {
			return vm.dependencyError(rerr)
		}
		vm.funcSets = append(vm.funcSets, fs)
	}

	for _, def := range img.Objects {
		if err = vm.loadStatic(def); err != nil {
			return err
		}
	}
	vm.imageSig = crc32.ChecksumIEEE(img.Raw)
	vm.resetRegisters()
	return nil
}

func (vm *VM) openPool(img *image.Image, id image.PoolID) (pool.Pool, error) {
	p, err := image.OpenPool(img, id, vm.opts.PoolVariant, vm.opts.FlatLimit)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, pool.ErrPageSize) {
		e := vm.eb.makeError(PanicPageSize, err.Error())
		e.Cause = err
		return nil, e
	}
	return nil, fmt.Errorf("attach: %w", err)
}

func (vm *VM) dependencyError(err error) error {
	var dep *DependencyError
	if !errors.As(err, &dep) {
		return fmt.Errorf("attach: %w", err)
	}
	e := vm.eb.makeError(PanicMetaclassDep, dep.Error())
	e.Cause = err
	return e
}

// loadStatic installs one image object at its fixed id.
func (vm *VM) loadStatic(def image.ObjectDef) error {
	idx := int(def.Metaclass)
	if idx >= len(vm.metas) {
		return fmt.Errorf("attach: object %d: metaclass index %d not declared: %w", def.ID, idx, image.ErrCorruptBlock)
	}
	if _, err := safecast.Conv[int32](def.ID); err != nil {
		return fmt.Errorf("attach: object id %d out of range: %w", def.ID, err)
	}
	m := vm.metas[idx]
	o, err := vm.objects.reserve(ObjID(def.ID), m, IDOptions{
		InRootSet: true,
		InImage:   true,
		Transient: def.Transient(),
	}.flags())
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	o.image = def.Data
	if err := m.LoadImage(vm, o, def.Data); err != nil {
		return fmt.Errorf("attach: object %d (%s): %w", def.ID, m.Descriptor(), err)
	}
	return nil
}

// detach drops the image and every object.
func (vm *VM) detach() {
	if vm.code != nil {
		vm.code.Detach()
	}
	if vm.data != nil {
		vm.data.Detach()
	}
	vm.code, vm.data = nil, nil
	vm.img = nil
	vm.codeWords, vm.entry, vm.imageSig = 0, 0, 0
	vm.metas, vm.funcSets = nil, nil
	vm.objects = newObjectTable(vm.opts.MaxObjects)
	vm.jumps = nil
	vm.undo.reset()
	vm.events.reset()
	vm.resetExecution()
	vm.resetRegisters()
}

// Detach releases the attached image and everything loaded from it.
func (vm *VM) Detach() { vm.detach() }
