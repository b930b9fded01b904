// Package prof captures Go runtime profiles of the interpreter itself.
package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Paths names the profile outputs; an empty path disables that profile.
type Paths struct {
	CPU   string
	Heap  string
	Trace string
}

// Profiler owns the open profile files of one command invocation.
type Profiler struct {
	heapPath string
	cpu      *os.File
	trace    *os.File
	stopped  bool
}

// Start begins CPU profiling and runtime tracing as requested. The heap
// profile is written by Stop.
func Start(paths Paths) (*Profiler, error) {
	p := &Profiler{heapPath: paths.Heap}
	if paths.CPU != "" {
		f, err := os.Create(paths.CPU)
		if err != nil {
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close() //nolint:errcheck,gosec
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		p.cpu = f
	}
	if paths.Trace != "" {
		f, err := os.Create(paths.Trace)
		if err == nil {
			if err = trace.Start(f); err != nil {
				f.Close() //nolint:errcheck,gosec
			}
		}
		if err != nil {
			p.Stop() //nolint:errcheck,gosec
			return nil, fmt.Errorf("runtime trace: %w", err)
		}
		p.trace = f
	}
	return p, nil
}

// Stop ends the running profiles and writes the heap profile. Calling it
// again does nothing.
func (p *Profiler) Stop() error {
	if p == nil || p.stopped {
		return nil
	}
	p.stopped = true
	var errs []error
	if p.trace != nil {
		trace.Stop()
		errs = append(errs, p.trace.Close())
	}
	if p.cpu != nil {
		pprof.StopCPUProfile()
		errs = append(errs, p.cpu.Close())
	}
	if p.heapPath != "" {
		errs = append(errs, writeHeap(p.heapPath))
	}
	return errors.Join(errs...)
}

func writeHeap(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	defer func() { err = errors.Join(err, f.Close()) }()
	runtime.GC()
	return pprof.WriteHeapProfile(f)
}
