package vm

import (
	"encoding/json"
	"io"
	"sync"
)

// Recorder writes a deterministic NDJSON log of host inputs.
type Recorder struct {
	mu   sync.Mutex
	enc  *json.Encoder
	err  error
	done bool
}

func NewRecorder(w io.Writer, header LogHeader) *Recorder {
	r := &Recorder{enc: json.NewEncoder(w)}
	r.enc.SetEscapeHTML(false)
	r.record(header)
	return r
}

func (r *Recorder) Err() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) Done() bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *Recorder) RecordInput(name string, v LogValue) {
	r.record(LogInputEvent{Kind: "input", Name: name, Value: v})
}

func (r *Recorder) RecordExit(status int) {
	r.record(LogExitEvent{Kind: "exit", Status: status})
	r.finish()
}

func (r *Recorder) RecordPanic(vmErr *VMError) {
	r.record(NewLogPanicEvent(vmErr))
	r.finish()
}

func (r *Recorder) finish() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
}

func (r *Recorder) record(v any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done || r.err != nil || r.enc == nil {
		return
	}
	if err := r.enc.Encode(v); err != nil {
		r.err = err
	}
}
