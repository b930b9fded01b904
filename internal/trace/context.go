package trace

import "context"

type ctxKey struct{}

// scope is what a context carries: the tracer and the span that encloses
// work started under the context.
type scope struct {
	tracer Tracer
	parent uint64
}

// WithSpan returns a copy of ctx carrying t and the enclosing span parent.
// Work that starts under the returned context opens its spans as children of
// parent.
func WithSpan(ctx context.Context, t Tracer, parent uint64) context.Context {
	if t == nil {
		t = Nop
	}
	return context.WithValue(ctx, ctxKey{}, scope{tracer: t, parent: parent})
}

// WithTracer is WithSpan with no enclosing span.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	return WithSpan(ctx, t, 0)
}

// FromContext returns the tracer carried by ctx, or Nop.
func FromContext(ctx context.Context) Tracer {
	if s, ok := fromContext(ctx); ok {
		return s.tracer
	}
	return Nop
}

// ParentSpan returns the enclosing span carried by ctx, or 0.
func ParentSpan(ctx context.Context) uint64 {
	s, _ := fromContext(ctx)
	return s.parent
}

func fromContext(ctx context.Context) (scope, bool) {
	if ctx == nil {
		return scope{}, false
	}
	s, ok := ctx.Value(ctxKey{}).(scope)
	return s, ok
}
