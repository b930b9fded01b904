package vm

import (
	"fmt"
	"strconv"

	"storyvm/internal/trace"
)

// Restart returns the VM to the state right after Attach: every image
// object is reloaded from its image bytes, dynamic objects become garbage
// and registers, undo log and events are cleared.
func (vm *VM) Restart() error {
	if vm.img == nil {
		return fmt.Errorf("restart: no image attached")
	}
	reloaded := 0
	var err error
	vm.objects.each(func(o *Object) {
		if err != nil || !o.InImage() {
			return
		}
		if lerr := o.Meta.LoadImage(vm, o, o.image); lerr != nil {
			err = fmt.Errorf("restart: object %d (%s): %w", o.id, o.Meta.Descriptor(), lerr)
			return
		}
		reloaded++
	})
	if err != nil {
		return err
	}
	vm.resetExecution()
	vm.resetRegisters()
	vm.undo.reset()
	vm.events.reset()
	vm.halted = false
	vm.restartReq = false
	stats := vm.GC()

	trace.Point(vm.tracer, trace.ScopeRun, "restart", "", vm.runSpan, map[string]string{
		"reloaded": strconv.Itoa(reloaded),
		"swept":    strconv.Itoa(stats.Swept),
	})
	return nil
}
