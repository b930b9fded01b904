package vm

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Tracer outputs execution traces for debugging.
type Tracer struct {
	w     io.Writer
	vm    *VM
	stack bool
}

// NewTracer creates a new tracer that writes to w. With stack set every
// instruction is followed by a dump of the operand stack.
func NewTracer(w io.Writer, vm *VM, stack bool) *Tracer {
	return &Tracer{w: w, vm: vm, stack: stack}
}

// TraceInstr traces execution of an instruction.
// Format: [depth=N] pc=NNNNNN <instr>
func (t *Tracer) TraceInstr(depth int, pc, w uint32) {
	if t == nil || t.w == nil {
		return
	}
	fmt.Fprintf(t.w, "[depth=%d] pc=%06d %s\n", depth, pc, disasm(w))
	if t.stack && t.vm != nil {
		fmt.Fprintf(t.w, "    stack: %s\n", t.formatStack())
	}
}

// TraceGC reports a completed collection.
func (t *Tracer) TraceGC(stats GCStats) {
	if t == nil || t.w == nil {
		return
	}
	fmt.Fprintf(t.w, "[gc] marked=%d swept=%d live=%d\n", stats.Marked, stats.Swept, stats.Live)
}

func (t *Tracer) formatStack() string {
	vals := t.vm.StackValues()
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = t.formatValue(v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (t *Tracer) formatValue(v Value) string {
	switch v.Kind {
	case KindSString:
		s, ok := t.vm.constString(v.Offset())
		if !ok {
			return fmt.Sprintf("sstring@%d(<invalid>)", v.Offset())
		}
		return fmt.Sprintf("sstring@%d(%q)", v.Offset(), truncateRunes(s, 32))
	case KindObj:
		o := t.vm.objects.Lookup(v.Obj())
		if o == nil {
			return fmt.Sprintf("obj#%d(<freed>)", v.Obj())
		}
		base := o.Meta.Descriptor().Base
		if s, ok := o.Ext.(string); ok {
			return fmt.Sprintf("%s#%d(%q)", base, o.id, truncateRunes(s, 32))
		}
		if l, ok := o.Ext.(*listExt); ok {
			return fmt.Sprintf("%s#%d(len=%d)", base, o.id, len(l.elems))
		}
		return fmt.Sprintf("%s#%d", base, o.id)
	default:
		return v.String()
	}
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || s == "" {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	out := make([]rune, 0, limit)
	for _, r := range s {
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return string(out)
}
