package vm

import (
	"bytes"
	"strings"
	"testing"
)

// addProgram assembles main at word 1: 1 2 PLUS RETVAL.
func addProgram(t *testing.T) (*VM, uint32) {
	t.Helper()
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(1, 2, OpPlus, OpRetVal)
	vm, _ := p.load(entry, Options{})
	return vm, entry
}

func TestDebuggerStepsFromSymbolBreakpoint(t *testing.T) {
	vm, entry := addProgram(t)
	var out bytes.Buffer
	vm.SetDebugHook(NewDebugger(strings.NewReader("step\ncontinue\n"), &out, false), false)
	if _, err := vm.Breakpoints().AddSymbol("main"); err != nil {
		t.Fatal(err)
	}

	if got := mustCall(t, vm, entry); got.Int() != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
	want := "stopped: breakpoint #1\n" +
		"at pc=000002 [depth=1] CONST 1\n" +
		"at pc=000003 [depth=1] CONST 2\n"
	if out.String() != want {
		t.Fatalf("unexpected transcript:\n%s", out.String())
	}
}

func TestDebuggerQuitHalts(t *testing.T) {
	vm, entry := addProgram(t)
	vm.SetDebugHook(NewDebugger(strings.NewReader("quit\n"), nil, false), true)

	mustCall(t, vm, entry)
	if !vm.Halted() {
		t.Fatalf("expected the VM to halt")
	}
	if vm.R0().Kind == KindInt {
		t.Fatalf("expected no result after quit, got %v", vm.R0())
	}
}

func TestDebuggerContinuesAtEndOfInput(t *testing.T) {
	vm, entry := addProgram(t)
	var out bytes.Buffer
	vm.SetDebugHook(NewDebugger(nil, &out, false), false)
	vm.Breakpoints().AddAddress(entry + 3)

	if got := mustCall(t, vm, entry); got.Int() != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
	if want := "stopped: breakpoint #1\nat pc=000004 [depth=1] PLUS\n"; out.String() != want {
		t.Fatalf("unexpected transcript:\n%s", out.String())
	}
}

func TestDebuggerBreakpointCommands(t *testing.T) {
	vm, entry := addProgram(t)
	var out bytes.Buffer
	script := "break pc=4\nbreak nowhere\nlist\ndelete 1\ndelete 9\ncontinue\n"
	vm.SetDebugHook(NewDebugger(strings.NewReader(script), &out, false), true)

	mustCall(t, vm, entry)
	got := out.String()
	for _, want := range []string{
		"error: unknown symbol \"nowhere\"",
		"  #1 pc=000004\n",
		"error: unknown breakpoint id\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in transcript:\n%s", want, got)
		}
	}
	if strings.Contains(got, "stopped: breakpoint") {
		t.Fatalf("expected no breakpoint stop after delete:\n%s", got)
	}
}

func TestParseBreakpointSpec(t *testing.T) {
	tests := []struct {
		spec    string
		pc      uint32
		sym     string
		wantErr bool
	}{
		{spec: "pc=12", pc: 12},
		{spec: "7", pc: 7},
		{spec: " main ", sym: "main"},
		{spec: "pc=x", wantErr: true},
		{spec: "", wantErr: true},
	}
	for _, tt := range tests {
		pc, sym, err := ParseBreakpointSpec(tt.spec)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: err = %v", tt.spec, err)
		}
		if err == nil && (pc != tt.pc || sym != tt.sym) {
			t.Fatalf("%q: got %d %q", tt.spec, pc, sym)
		}
	}
}
