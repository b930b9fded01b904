package trace

import (
	"strconv"
	"sync"
	"time"
)

// Heartbeat emits a host-scope event at a fixed interval while a story runs.
// Each beat counts the events emitted since the previous one; a run of beats
// with events=0 means the interpreter is busy below the trace level, usually
// a story stuck in a loop.
type Heartbeat struct {
	tracer Tracer
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// StartHeartbeat starts beating. It returns nil when tracing is off or
// interval is not positive; Stop accepts a nil Heartbeat.
func StartHeartbeat(t Tracer, interval time.Duration) *Heartbeat {
	if t == nil || !t.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{
		tracer: t,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go h.run(interval)
	return h
}

func (h *Heartbeat) run(interval time.Duration) {
	defer close(h.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var beat uint64
	last := seq.Load()
	for {
		select {
		case now := <-ticker.C:
			beat++
			cur := seq.Load()
			h.tracer.Emit(&Event{
				Time:   now,
				Seq:    NextSeq(),
				Kind:   KindHeartbeat,
				Scope:  ScopeHost,
				GID:    goroutineID(),
				Name:   "heartbeat",
				Detail: "#" + strconv.FormatUint(beat, 10),
				Extra:  map[string]string{"events": strconv.FormatUint(cur-last, 10)},
			})
			last = cur + 1
		case <-h.stop:
			return
		}
	}
}

// Stop ends the heartbeat and waits for its goroutine to exit.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
