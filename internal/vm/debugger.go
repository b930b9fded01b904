package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// StopPoint describes the instruction the VM is about to execute when it
// reports to a debug hook.
type StopPoint struct {
	PC         uint32
	Word       uint32
	Op         string // disassembled instruction
	Entry      uint32 // entry pc of the current invocation
	Depth      int    // active invocations
	Symbol     string // debug symbol at PC, if any
	Breakpoint *Breakpoint
}

// DebugAction tells the VM how to go on after a stop.
type DebugAction uint8

const (
	DebugContinue DebugAction = iota // run to the next breakpoint
	DebugStep                        // stop again before the next instruction
	DebugAbort                       // halt as if by QUIT
)

// DebugHook receives breakpoint stops and exceptions. Hooks run on the
// interpreter goroutine between instructions.
type DebugHook interface {
	OnStop(vm *VM, sp StopPoint) DebugAction
	OnException(vm *VM, exc *Exception, caught bool)
}

// SetDebugHook installs h; nil removes it. With stepOnStart the hook gets a
// stop before the first instruction.
func (vm *VM) SetDebugHook(h DebugHook, stepOnStart bool) {
	vm.debug = h
	vm.stepping = h != nil && stepOnStart
	if h != nil && vm.bps == nil {
		vm.bps = NewBreakpoints()
	}
}

// Breakpoints returns the breakpoint collection consulted before each
// instruction while a debug hook is installed.
func (vm *VM) Breakpoints() *Breakpoints {
	if vm.bps == nil {
		vm.bps = NewBreakpoints()
	}
	return vm.bps
}

// checkStop reports a stop to the hook when a breakpoint matches or a step
// was requested. It returns true when the instruction must not run.
func (vm *VM) checkStop(pc, w uint32) bool {
	sp := StopPoint{PC: pc, Word: w, Op: disasm(w), Depth: len(vm.invocations)}
	if n := len(vm.invocations); n > 0 {
		sp.Entry = vm.invocations[n-1]
	}
	bp, hit := vm.bps.Match(vm, sp)
	if !hit && !vm.stepping {
		return false
	}
	vm.stepping = false
	sp.Breakpoint = bp
	if vm.img != nil {
		sp.Symbol, _ = vm.img.SymbolAt(pc)
	}
	switch vm.debug.OnStop(vm, sp) {
	case DebugStep:
		vm.stepping = true
	case DebugAbort:
		vm.halted = true
		return true
	}
	return false
}

// Debugger is a DebugHook driven by line commands, for scripted or
// interactive sessions.
type Debugger struct {
	in          *bufio.Scanner
	out         io.Writer
	interactive bool
	fmt         *Tracer
}

// NewDebugger creates a new Debugger reading commands from in.
func NewDebugger(in io.Reader, out io.Writer, interactive bool) *Debugger {
	if in == nil {
		in = strings.NewReader("")
	}
	if out == nil {
		out = io.Discard
	}
	return &Debugger{in: bufio.NewScanner(in), out: out, interactive: interactive}
}

// OnStop prints the stop and reads commands until one resumes execution.
// At the end of input execution continues.
func (d *Debugger) OnStop(vm *VM, sp StopPoint) DebugAction {
	if d.fmt == nil {
		d.fmt = NewTracer(d.out, vm, false)
	}
	if sp.Breakpoint != nil {
		fmt.Fprintf(d.out, "stopped: breakpoint #%d\n", sp.Breakpoint.ID) //nolint:errcheck
	}
	d.printStopLine(sp)

	for {
		if d.interactive {
			fmt.Fprint(d.out, "(vmdb) ") //nolint:errcheck
		}
		if !d.in.Scan() {
			return DebugContinue
		}
		line := strings.TrimSpace(d.in.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if act, resume := d.execCommand(vm, line); resume {
			return act
		}
	}
}

// OnException reports exceptions that no handler caught.
func (d *Debugger) OnException(_ *VM, exc *Exception, caught bool) {
	if caught {
		return
	}
	fmt.Fprintf(d.out, "exception: %s\n", exc.Error()) //nolint:errcheck
}

func (d *Debugger) execCommand(vm *VM, line string) (DebugAction, bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		d.help()
	case "step", "s":
		return DebugStep, true
	case "continue", "c":
		return DebugContinue, true
	case "quit", "q":
		return DebugAbort, true
	case "break", "b":
		if len(args) != 1 {
			fmt.Fprintln(d.out, "error: break expects <pc|symbol>") //nolint:errcheck
			break
		}
		if err := d.cmdBreak(vm, args[0]); err != nil {
			fmt.Fprintf(d.out, "error: %s\n", err.Error()) //nolint:errcheck
		}
	case "delete":
		if len(args) != 1 {
			fmt.Fprintln(d.out, "error: delete expects <id>") //nolint:errcheck
			break
		}
		id, err := strconv.Atoi(args[0])
		if err != nil || id <= 0 {
			fmt.Fprintln(d.out, "error: invalid breakpoint id") //nolint:errcheck
			break
		}
		if !vm.Breakpoints().Delete(id) {
			fmt.Fprintln(d.out, "error: unknown breakpoint id") //nolint:errcheck
		}
	case "list":
		fmt.Fprintln(d.out, "breakpoints:") //nolint:errcheck
		for _, bp := range vm.Breakpoints().List() {
			fmt.Fprintf(d.out, "  %s\n", bp.Summary()) //nolint:errcheck
		}
	case "stack":
		fmt.Fprintf(d.out, "stack: %s\n", d.fmt.formatStack()) //nolint:errcheck
	case "regs":
		for r := range numRegisters {
			fmt.Fprintf(d.out, "  %-11s %s\n", r, d.fmt.formatValue(vm.regs[r])) //nolint:errcheck
		}
		fmt.Fprintf(d.out, "  %-11s %s\n", "r0", d.fmt.formatValue(vm.r0)) //nolint:errcheck
	case "local":
		d.cmdLocal(vm, args)
	default:
		fmt.Fprintln(d.out, "error: unknown command") //nolint:errcheck
	}
	return DebugContinue, false
}

func (d *Debugger) cmdBreak(vm *VM, spec string) error {
	pc, sym, err := ParseBreakpointSpec(spec)
	if err != nil {
		return err
	}
	if sym == "" {
		vm.Breakpoints().AddAddress(pc)
		return nil
	}
	if vm.img == nil || vm.img.Symbols == nil {
		return fmt.Errorf("no debug symbols")
	}
	if _, ok := vm.img.Symbols[sym]; !ok {
		return fmt.Errorf("unknown symbol %q", sym)
	}
	_, err = vm.Breakpoints().AddSymbol(sym)
	return err
}

func (d *Debugger) cmdLocal(vm *VM, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(d.out, "error: local expects <slot>") //nolint:errcheck
		return
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintln(d.out, "error: invalid slot") //nolint:errcheck
		return
	}
	v, ok := vm.Local(0, slot)
	if !ok {
		fmt.Fprintln(d.out, "error: no such local") //nolint:errcheck
		return
	}
	fmt.Fprintf(d.out, "L%d = %s\n", slot, d.fmt.formatValue(v)) //nolint:errcheck
}

func (d *Debugger) printStopLine(sp StopPoint) {
	where := fmt.Sprintf("pc=%06d", sp.PC)
	if sp.Symbol != "" {
		where += " <" + sp.Symbol + ">"
	}
	fmt.Fprintf(d.out, "at %s [depth=%d] %s\n", where, sp.Depth, sp.Op) //nolint:errcheck
}

func (d *Debugger) help() {
	fmt.Fprintln(d.out, "commands:")             //nolint:errcheck
	fmt.Fprintln(d.out, "  help")                //nolint:errcheck
	fmt.Fprintln(d.out, "  step|s")              //nolint:errcheck
	fmt.Fprintln(d.out, "  continue|c")          //nolint:errcheck
	fmt.Fprintln(d.out, "  break|b <pc|symbol>") //nolint:errcheck
	fmt.Fprintln(d.out, "  delete <id>")         //nolint:errcheck
	fmt.Fprintln(d.out, "  list")                //nolint:errcheck
	fmt.Fprintln(d.out, "  stack")               //nolint:errcheck
	fmt.Fprintln(d.out, "  regs")                //nolint:errcheck
	fmt.Fprintln(d.out, "  local <slot>")        //nolint:errcheck
	fmt.Fprintln(d.out, "  quit|q")              //nolint:errcheck
}
