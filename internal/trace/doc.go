// Package trace provides structured event tracing for the story VM.
//
// Tracing records the coarse life of a run (image attach, runs, restarts)
// and, at finer levels, interpreter invocations, garbage collections and
// bytecode exceptions. It is separate from the per-instruction single-step
// trace the interpreter writes itself.
//
// # Usage
//
// Enable tracing via command-line flags:
//
//	storyvm run --trace=- --trace-level=detail story.svm
//
// # Architecture
//
// The package provides several tracer implementations:
//
//   - Nop: zero-overhead no-op tracer when disabled
//   - StreamTracer: immediate write to output (file/stderr)
//   - RingTracer: circular buffer kept for post-mortem dumps
//   - MultiTracer: combines multiple tracers
//
// # Levels
//
//   - LevelOff: no tracing
//   - LevelError: only post-mortem dumps
//   - LevelPhase: host and run boundaries
//   - LevelDetail: interpreter invocations, GC, exceptions
//   - LevelDebug: everything including per-opcode events
//
// # Scopes
//
//   - ScopeHost: CLI and batch operations
//   - ScopeRun: attach, run, restart
//   - ScopeInterpret: interpret invocations, GC cycles, exceptions
//   - ScopeOp: individual opcodes
//
// # Context Propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopeRun, "run", parentID)
//	defer span.End("")
package trace
