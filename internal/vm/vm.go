package vm

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"

	"storyvm/internal/charmap"
	"storyvm/internal/image"
	"storyvm/internal/pool"
	"storyvm/internal/trace"
)

// Options configures a VM. Zero values select the defaults.
type Options struct {
	StackDepth     int
	StackMargin    int
	MaxObjects     int
	GCThreshold    int // allocations between automatic collections; <0 disables
	UndoSavepoints int
	Seed           uint64

	PoolVariant pool.Variant
	FlatLimit   int

	Safety          SafetyLevel
	Sandbox         string
	FilenameCharset charmap.Mapper

	SingleStep bool      // trace every instruction
	TraceStack bool      // include the operand stack in instruction traces
	TraceOut   io.Writer // instruction trace sink; defaults to io.Discard

	Tracer   trace.Tracer
	Registry *Registry
	Saves    SaveStore
}

func (o *Options) defaults() {
	if o.StackDepth <= 0 {
		o.StackDepth = DefaultStackDepth
	}
	if o.StackMargin <= 0 {
		o.StackMargin = DefaultStackMargin
	}
	if o.GCThreshold == 0 {
		o.GCThreshold = DefaultGCThreshold
	}
	if o.UndoSavepoints <= 0 {
		o.UndoSavepoints = DefaultUndoSavepoints
	}
	if o.FilenameCharset == nil {
		o.FilenameCharset = charmap.UTF8
	}
	if o.Tracer == nil {
		o.Tracer = trace.Nop
	}
	if o.Registry == nil {
		o.Registry = DefaultRegistry()
	}
}

// Status codes returned by Run.
const (
	StatusOK       = 0
	StatusFatal    = 1
	StatusUncaught = 2
)

// VM is one interpreter instance. It is not safe for concurrent use; run
// separate instances on separate goroutines instead.
type VM struct {
	opts     Options
	registry *Registry
	host     Host

	img       *image.Image
	code      pool.Pool
	data      pool.Pool
	codeWords uint32
	entry     uint32
	imageSig  uint32

	stack       []Value
	sp          int
	fp          int
	stackLimit  int
	stackMargin int

	pc          uint32
	lastPC      uint32
	lastWord    uint32
	lastWordOK  bool
	invocations []uint32
	ring        []uint32
	handlers    []handler
	handlerBase int
	jumps       map[jumpKey]uint32

	pending    *Exception
	failFlag   bool
	halted     bool
	returning  bool
	restartReq bool

	r0      Value
	regs    [numRegisters]Value
	scratch []Value
	opDepth int

	hashDepth int

	objects  *ObjectTable
	pinned   map[ObjID]int
	metas    []Metaclass
	funcSets []*FuncSet
	undo     undoLog
	events   eventQueue

	rng         *rand.Rand
	seed        uint64
	filenameMap charmap.Mapper

	ctx      context.Context
	ops      uint64
	tracer   trace.Tracer
	runSpan  uint64
	itrace   *Tracer
	gcCount  int
	debug    DebugHook
	bps      *Breakpoints
	stepping bool
	recorder *Recorder
	replayer *Replayer

	eb *errorBuilder
}

// New creates a VM with no image attached.
func New(opts Options) *VM {
	opts.defaults()
	vm := &VM{
		opts:        opts,
		registry:    opts.Registry,
		stack:       make([]Value, opts.StackDepth+opts.StackMargin),
		fp:          -1,
		stackLimit:  opts.StackDepth,
		stackMargin: opts.StackMargin,
		objects:     newObjectTable(opts.MaxObjects),
		pinned:      make(map[ObjID]int),
		filenameMap: opts.FilenameCharset,
		tracer:      opts.Tracer,
		host:        NewTestHost(),
		ctx:         context.Background(),
	}
	vm.eb = &errorBuilder{vm: vm}
	vm.undo.limit = opts.UndoSavepoints
	vm.Seed(opts.Seed)
	if opts.SingleStep || opts.TraceStack {
		w := opts.TraceOut
		if w == nil {
			w = io.Discard
		}
		vm.itrace = NewTracer(w, vm, opts.TraceStack)
	}
	vm.resetRegisters()
	return vm
}

// SetHost installs the host callback table.
func (vm *VM) SetHost(h Host) { vm.host = h }

// Host returns the installed host.
func (vm *VM) Host() Host { return vm.host }

// SetRecorder logs host inputs and the exit status of Run.
func (vm *VM) SetRecorder(r *Recorder) { vm.recorder = r }

// SetReplayer checks Run against a recorded log.
func (vm *VM) SetReplayer(r *Replayer) { vm.replayer = r }

// SetSaveStore sets where SAVE and RESTORE keep snapshots.
func (vm *VM) SetSaveStore(s SaveStore) { vm.opts.Saves = s }

// SetSingleStep toggles per-instruction tracing to w.
func (vm *VM) SetSingleStep(on bool, w io.Writer) {
	if !on {
		vm.itrace = nil
		return
	}
	if w == nil {
		w = io.Discard
	}
	vm.itrace = NewTracer(w, vm, vm.opts.TraceStack)
}

// Seed resets the random number generator.
func (vm *VM) Seed(seed uint64) {
	vm.seed = seed
	vm.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // deterministic story RNG
}

// R0 returns the result register.
func (vm *VM) R0() Value { return vm.r0 }

// Register returns a context register.
func (vm *VM) Register(r Register) Value {
	if r < 0 || r >= numRegisters {
		return NilValue
	}
	return vm.regs[r]
}

// SetRegister assigns a context register. Assignments are undoable.
func (vm *VM) SetRegister(r Register, v Value) {
	if r < 0 || r >= numRegisters {
		return
	}
	vm.recordRegUndo(int(r), vm.regs[r])
	vm.regs[r] = v
}

// Image returns the attached image, or nil.
func (vm *VM) Image() *image.Image { return vm.img }

// Entry returns the entry function of the attached image.
func (vm *VM) Entry() uint32 { return vm.entry }

// GCCount returns the number of completed collections.
func (vm *VM) GCCount() int { return vm.gcCount }

// Halted reports whether QUIT ended execution.
func (vm *VM) Halted() bool { return vm.halted }

func (vm *VM) resetRegisters() {
	for i := range vm.regs {
		vm.regs[i] = NilValue
	}
	vm.regs[RegScore] = IntValue(0)
	vm.regs[RegTurns] = IntValue(0)
	if vm.img != nil {
		vm.regs[RegMaxInstance] = ObjValue(ObjID(vm.img.MaxObjectID()))
	}
}

// resetExecution discards every activation.
func (vm *VM) resetExecution() {
	clear(vm.stack[:vm.sp])
	vm.sp = 0
	vm.fp = -1
	vm.invocations = vm.invocations[:0]
	vm.ring = vm.ring[:0]
	vm.handlers = vm.handlers[:0]
	vm.handlerBase = 0
	clear(vm.scratch)
	vm.scratch = vm.scratch[:0]
	vm.opDepth = 0
	vm.pending = nil
	vm.failFlag = false
	vm.returning = false
	vm.r0 = NilValue
}

// Run calls the image entry function and returns the exit status: 0 for
// normal termination, 1 for a fatal error and 2 for an uncaught exception.
// RESTART reloads the image objects and calls the entry again.
func (vm *VM) Run(ctx context.Context) (status int, err error) {
	if vm.img == nil {
		return StatusFatal, fmt.Errorf("run: no image attached")
	}
	if vm.replayer != nil {
		if verr := vm.replayer.Validate(); verr != nil {
			return StatusFatal, vm.eb.invalidReplayLog(verr.Error())
		}
	}
	span := trace.Begin(vm.tracer, trace.ScopeRun, "run", trace.ParentSpan(ctx))
	vm.runSpan = span.ID()
	defer func() { span.End(fmt.Sprintf("status=%d", status)) }()

	vm.halted = false
	for {
		vm.resetExecution()
		err = vm.Call(ctx, vm.entry)
		if err == nil && vm.restartReq {
			vm.restartReq = false
			vm.halted = false
			if rerr := vm.Restart(); rerr != nil {
				return StatusFatal, rerr
			}
			continue
		}
		break
	}

	status = statusOf(err)
	if vmErr, ok := err.(*VMError); ok {
		if vm.replayer != nil {
			vmErr = vm.replayer.CheckPanic(vm, vmErr)
			err = vmErr
		}
		if vm.recorder != nil {
			vm.recorder.RecordPanic(vmErr)
		}
		return status, err
	}
	if vm.replayer != nil {
		if vmErr := vm.replayer.FinalizeExit(vm, status); vmErr != nil {
			return StatusFatal, vmErr
		}
	}
	if vm.recorder != nil && !vm.recorder.Done() {
		vm.recorder.RecordExit(status)
	}
	return status, err
}

func statusOf(err error) int {
	switch err.(type) {
	case nil:
		return StatusOK
	case *Exception:
		return StatusUncaught
	default:
		return StatusFatal
	}
}
