package trace

import (
	"io"
	"sync"
)

// RingTracer keeps the most recent events in a fixed-size circular buffer.
// It is the post-mortem record: after a fatal run the buffer shows what the
// interpreter did last.
type RingTracer struct {
	mu    sync.RWMutex
	buf   []Event
	next  int
	count int
	level Level
}

// NewRingTracer creates a ring that holds capacity events.
func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = 4096
	}
	return &RingTracer{buf: make([]Event, capacity), level: level}
}

// RingOf returns the ring buffer behind t, if it has one.
func RingOf(t Tracer) *RingTracer {
	switch tr := t.(type) {
	case *RingTracer:
		return tr
	case *MultiTracer:
		return tr.Ring()
	}
	return nil
}

func (t *RingTracer) accepts(ev *Event) bool {
	if ev.Kind == KindHeartbeat || t.level.ShouldEmit(ev.Scope) {
		return true
	}
	// At LevelError the ring still keeps interpreter-level history for dumps.
	return t.level == LevelError && ev.Scope <= ScopeInterpret
}

func (t *RingTracer) Emit(ev *Event) {
	if !t.accepts(ev) {
		return
	}
	stored := *ev
	if stored.Seq == 0 {
		stored.Seq = NextSeq()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf[t.next] = stored
	t.next = (t.next + 1) % len(t.buf)
	t.count = min(t.count+1, len(t.buf))
}

// Snapshot returns the stored events, oldest first.
func (t *RingTracer) Snapshot() []Event {
	return t.collect(func(*Event) bool { return true })
}

// SnapshotGoroutine returns the stored events emitted on goroutine gid,
// oldest first. In a batch every story runs on its own goroutine.
func (t *RingTracer) SnapshotGoroutine(gid uint64) []Event {
	return t.collect(func(ev *Event) bool { return ev.GID == gid })
}

func (t *RingTracer) collect(keep func(*Event) bool) []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Event, 0, t.count)
	start := (t.next - t.count + len(t.buf)) % len(t.buf)
	for i := range t.count {
		ev := &t.buf[(start+i)%len(t.buf)]
		if keep(ev) {
			out = append(out, *ev)
		}
	}
	return out
}

// Dump writes every stored event to w.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	return WriteEvents(w, t.Snapshot(), format)
}

// WriteEvents formats events to w in order.
func WriteEvents(w io.Writer, events []Event, format Format) error {
	for i := range events {
		if _, err := w.Write(FormatEvent(&events[i], format)); err != nil {
			return err
		}
	}
	return nil
}

func (t *RingTracer) Flush() error  { return nil }
func (t *RingTracer) Close() error  { return nil }
func (t *RingTracer) Level() Level  { return t.level }
func (t *RingTracer) Enabled() bool { return t.level > LevelOff }

// CurrentGoroutine returns the ID events emitted from the calling goroutine
// carry.
func CurrentGoroutine() uint64 { return goroutineID() }
