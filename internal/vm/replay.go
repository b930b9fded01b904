package vm

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type replayEvent struct {
	Kind  string
	Input *LogInputEvent
	Exit  *LogExitEvent
	Panic *LogPanicEvent
}

// Replayer reads and validates a deterministic NDJSON input log.
type Replayer struct {
	header   LogHeader
	events   []replayEvent
	next     int
	parseErr error

	consumedTerm bool
}

func NewReplayerFromBytes(data []byte) *Replayer {
	r := &Replayer{}
	r.parse(bytes.NewReader(data))
	return r
}

func NewReplayerFromReader(rd io.Reader) *Replayer {
	r := &Replayer{}
	r.parse(rd)
	return r
}

// Header returns the parsed log header.
func (r *Replayer) Header() LogHeader { return r.header }

func (r *Replayer) Validate() error {
	if r == nil {
		return fmt.Errorf("nil replayer")
	}
	if r.parseErr != nil {
		return r.parseErr
	}
	if r.header.Kind != "header" {
		return fmt.Errorf("missing header")
	}
	if r.header.V != LogVersion {
		return fmt.Errorf("unsupported log version %d", r.header.V)
	}
	return nil
}

func (r *Replayer) Remaining() int {
	if r == nil || r.next >= len(r.events) {
		return 0
	}
	return len(r.events) - r.next
}

func (r *Replayer) ConsumeInput(vm *VM, name string) *LogInputEvent {
	ev := r.expectNext(vm, "input")
	if ev.Input == nil {
		panic(vm.eb.invalidReplayLog("invalid input event"))
	}
	if ev.Input.Name != name {
		panic(vm.eb.replayMismatch(fmt.Sprintf("replay mismatch: expected input %q, got %q", name, ev.Input.Name)))
	}
	return ev.Input
}

// CheckPanic compares a fatal error against the log. It returns the error to
// report: actual when it matches, or a replay error when it does not.
func (r *Replayer) CheckPanic(vm *VM, actual *VMError) *VMError {
	if r == nil || actual == nil || vm == nil {
		return actual
	}
	if err := r.Validate(); err != nil {
		return vm.eb.invalidReplayLog(err.Error())
	}
	switch actual.Code {
	case PanicReplayExhausted, PanicReplayMismatch, PanicInvalidReplayLog:
		return actual
	}
	if r.next >= len(r.events) {
		return vm.eb.replayExhausted()
	}
	ev := r.events[r.next]
	if ev.Kind != "panic" || ev.Panic == nil {
		return vm.eb.replayMismatch(fmt.Sprintf("replay mismatch: expected panic, got %s", ev.Kind))
	}
	want := *ev.Panic
	got := NewLogPanicEvent(actual)
	if want.Code != got.Code || want.Msg != got.Msg || want.PC != got.PC {
		return vm.eb.replayMismatch("replay mismatch: panic does not match log")
	}
	r.next++
	r.consumedTerm = true
	return actual
}

// FinalizeExit checks that the log ends with the same status.
func (r *Replayer) FinalizeExit(vm *VM, status int) *VMError {
	if r == nil || vm == nil {
		return nil
	}
	if err := r.Validate(); err != nil {
		return vm.eb.invalidReplayLog(err.Error())
	}
	if r.consumedTerm {
		if r.next != len(r.events) {
			return vm.eb.replayMismatch("replay mismatch: extra log events after termination")
		}
		return nil
	}
	if r.next >= len(r.events) {
		return vm.eb.replayExhausted()
	}
	ev := r.events[r.next]
	if ev.Kind != "exit" || ev.Exit == nil {
		return vm.eb.replayMismatch(fmt.Sprintf("replay mismatch: expected exit, got %s", ev.Kind))
	}
	if ev.Exit.Status != status {
		return vm.eb.replayMismatch(fmt.Sprintf("replay mismatch: expected status %d, got %d", ev.Exit.Status, status))
	}
	r.next++
	r.consumedTerm = true
	if r.next != len(r.events) {
		return vm.eb.replayMismatch("replay mismatch: extra log events after termination")
	}
	return nil
}

func (r *Replayer) expectNext(vm *VM, kind string) replayEvent {
	if r == nil {
		panic(vm.eb.replayExhausted())
	}
	if err := r.Validate(); err != nil {
		panic(vm.eb.invalidReplayLog(err.Error()))
	}
	if r.next >= len(r.events) {
		panic(vm.eb.replayExhausted())
	}
	ev := r.events[r.next]
	if ev.Kind != kind {
		panic(vm.eb.replayMismatch(fmt.Sprintf("replay mismatch: expected %s, got %s", kind, ev.Kind)))
	}
	r.next++
	return ev
}

func (r *Replayer) parse(rd io.Reader) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || r.parseErr != nil {
			continue
		}
		if line[0] != '{' {
			r.parseErr = fmt.Errorf("invalid JSON on line %d", lineNo)
			continue
		}
		if r.header.Kind == "" {
			var h LogHeader
			if err := json.Unmarshal([]byte(line), &h); err != nil {
				r.parseErr = fmt.Errorf("invalid header: %w", err)
				continue
			}
			r.header = h
			continue
		}

		var k struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal([]byte(line), &k); err != nil {
			r.parseErr = fmt.Errorf("invalid event on line %d: %w", lineNo, err)
			continue
		}
		ev := replayEvent{Kind: k.Kind}
		var target any
		switch k.Kind {
		case "input":
			ev.Input = &LogInputEvent{}
			target = ev.Input
		case "exit":
			ev.Exit = &LogExitEvent{}
			target = ev.Exit
		case "panic":
			ev.Panic = &LogPanicEvent{}
			target = ev.Panic
		default:
			r.parseErr = fmt.Errorf("unknown event kind %q on line %d", k.Kind, lineNo)
			continue
		}
		if err := json.Unmarshal([]byte(line), target); err != nil {
			r.parseErr = fmt.Errorf("invalid %s event on line %d: %w", k.Kind, lineNo, err)
			continue
		}
		r.events = append(r.events, ev)
	}
	if err := sc.Err(); err != nil && r.parseErr == nil {
		r.parseErr = err
	}
	if r.header.Kind == "" && r.parseErr == nil {
		r.parseErr = fmt.Errorf("missing header")
	}
}
