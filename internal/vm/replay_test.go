package vm

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

// echoProgram reads one line and prints it.
func echoProgram(t *testing.T) (*program, uint32) {
	t.Helper()
	p := newProgram(t)
	entry := p.fn("main", 0, 0)
	p.callBifWords(setIO, "inputLine", 0)
	p.emit(OpGetR0, OpPrint, OpReturn)
	return p, entry
}

func replayInto(t *testing.T, log []byte) (*VM, *TestHost, *Replayer, int, error) {
	t.Helper()
	p, entry := echoProgram(t)
	vm, host := p.load(entry, Options{})
	rp := NewReplayerFromBytes(log)
	vm.SetReplayer(rp)
	vm.SetHost(NewReplayHost(host, vm, rp))
	status, err := vm.Run(context.Background())
	return vm, host, rp, status, err
}

func TestRecordThenReplay(t *testing.T) {
	p, entry := echoProgram(t)
	vm, _ := p.load(entry, Options{})
	var log bytes.Buffer
	rec := NewRecorder(&log, NewLogHeader("echo.t3", 7))
	vm.SetRecorder(rec)
	vm.SetHost(NewRecordingHost(NewTestHost("hello"), rec))
	if status, err := vm.Run(context.Background()); status != StatusOK || err != nil {
		t.Fatalf("record run: %d %v", status, err)
	}
	if err := rec.Err(); err != nil || !rec.Done() {
		t.Fatalf("recorder not finished: %v", err)
	}

	_, host, rp, status, err := replayInto(t, log.Bytes())
	if status != StatusOK || err != nil {
		t.Fatalf("replay run: %d %v", status, err)
	}
	if host.Out.String() != "hello" {
		t.Fatalf("expected replayed output hello, got %q", host.Out.String())
	}
	if rp.Remaining() != 0 {
		t.Fatalf("expected the log to be consumed, %d events left", rp.Remaining())
	}
	if rp.Header().Seed != 7 {
		t.Fatalf("expected seed 7 in header, got %d", rp.Header().Seed)
	}
}

func TestReplayExhausted(t *testing.T) {
	var log bytes.Buffer
	NewRecorder(&log, NewLogHeader("echo.t3", 0))

	_, _, _, status, err := replayInto(t, log.Bytes())
	var vmErr *VMError
	if status != StatusFatal || !errors.As(err, &vmErr) || vmErr.Code != PanicReplayExhausted {
		t.Fatalf("expected %s, got %d %v", PanicReplayExhausted, status, err)
	}
}

func TestReplayMismatch(t *testing.T) {
	var log bytes.Buffer
	rec := NewRecorder(&log, NewLogHeader("echo.t3", 0))
	rec.RecordInput("read_key", LogKey('y', true))
	rec.RecordExit(StatusOK)

	_, _, _, _, err := replayInto(t, log.Bytes())
	var vmErr *VMError
	if !errors.As(err, &vmErr) || vmErr.Code != PanicReplayMismatch {
		t.Fatalf("expected %s, got %v", PanicReplayMismatch, err)
	}
}

func TestReplayRejectsBadLog(t *testing.T) {
	_, _, _, status, err := replayInto(t, []byte("not json\n"))
	var vmErr *VMError
	if status != StatusFatal || !errors.As(err, &vmErr) || vmErr.Code != PanicInvalidReplayLog {
		t.Fatalf("expected %s, got %d %v", PanicInvalidReplayLog, status, err)
	}
}
