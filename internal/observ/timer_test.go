package observ

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeClock advances by step on every reading.
func fakeClock(step time.Duration) func() time.Time {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		at = at.Add(step)
		return at
	}
}

func TestTimerReport(t *testing.T) {
	tm := NewTimer()
	tm.now = fakeClock(2 * time.Millisecond)

	load := tm.Begin("load")
	tm.End(load, "")
	err := tm.Time("run", func() error { return errors.New("status 2") })
	if err == nil {
		t.Fatalf("expected Time to pass the error through")
	}

	r := tm.Report()
	if len(r.Phases) != 2 || r.TotalMS != 4 {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.Phases[1].Note != "status 2" {
		t.Fatalf("expected the error as note, got %q", r.Phases[1].Note)
	}
	sum := tm.Summary()
	for _, want := range []string{"load", "run", "// status 2", "total"} {
		if !strings.Contains(sum, want) {
			t.Fatalf("summary misses %q:\n%s", want, sum)
		}
	}
}

func TestTimerIgnoresBadIndex(t *testing.T) {
	tm := NewTimer()
	tm.End(3, "x")
	if r := tm.Report(); len(r.Phases) != 0 || r.TotalMS != 0 {
		t.Fatalf("expected an empty report, got %+v", r)
	}
}
