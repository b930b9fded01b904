package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// BreakpointKind distinguishes breakpoint types.
type BreakpointKind uint8

const (
	// BKAddress stops at a code word.
	BKAddress BreakpointKind = iota
	// BKSymbol stops at the code word a debug symbol names.
	BKSymbol
)

// Breakpoint represents a debugger breakpoint.
type Breakpoint struct {
	ID   int
	Kind BreakpointKind

	// BKAddress:
	PC uint32

	// BKSymbol:
	Symbol string
}

// Summary returns a string representation of the breakpoint.
func (bp *Breakpoint) Summary() string {
	if bp == nil {
		return "<nil>"
	}
	switch bp.Kind {
	case BKAddress:
		return fmt.Sprintf("#%d pc=%06d", bp.ID, bp.PC)
	case BKSymbol:
		return fmt.Sprintf("#%d sym:%s", bp.ID, bp.Symbol)
	default:
		return fmt.Sprintf("#%d <unknown>", bp.ID)
	}
}

// Breakpoints manages a collection of breakpoints.
type Breakpoints struct {
	nextID int
	list   []*Breakpoint
}

// NewBreakpoints creates a new Breakpoints collection.
func NewBreakpoints() *Breakpoints {
	return &Breakpoints{nextID: 1}
}

// AddAddress adds a breakpoint at code word pc.
func (bps *Breakpoints) AddAddress(pc uint32) *Breakpoint {
	bp := &Breakpoint{ID: bps.allocID(), Kind: BKAddress, PC: pc}
	bps.list = append(bps.list, bp)
	return bp
}

// AddSymbol adds a breakpoint at a debug symbol. A symbol naming a function
// also stops on entry, at the word after the header.
func (bps *Breakpoints) AddSymbol(name string) (*Breakpoint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("empty symbol name")
	}
	bp := &Breakpoint{ID: bps.allocID(), Kind: BKSymbol, Symbol: name}
	bps.list = append(bps.list, bp)
	return bp, nil
}

// Delete removes a breakpoint by ID.
func (bps *Breakpoints) Delete(id int) bool {
	if bps == nil || id <= 0 {
		return false
	}
	for i, bp := range bps.list {
		if bp != nil && bp.ID == id {
			copy(bps.list[i:], bps.list[i+1:])
			bps.list[len(bps.list)-1] = nil
			bps.list = bps.list[:len(bps.list)-1]
			return true
		}
	}
	return false
}

// List returns all breakpoints.
func (bps *Breakpoints) List() []*Breakpoint {
	if bps == nil || len(bps.list) == 0 {
		return nil
	}
	out := make([]*Breakpoint, 0, len(bps.list))
	out = append(out, bps.list...)
	return out
}

// Match checks if any breakpoint matches the given stop point.
func (bps *Breakpoints) Match(vm *VM, sp StopPoint) (*Breakpoint, bool) {
	if bps == nil || len(bps.list) == 0 {
		return nil, false
	}
	for _, bp := range bps.list {
		if bp == nil {
			continue
		}
		switch bp.Kind {
		case BKAddress:
			if bp.PC == sp.PC {
				return bp, true
			}
		case BKSymbol:
			if vm == nil || vm.img == nil {
				continue
			}
			at, ok := vm.img.Symbols[bp.Symbol]
			if ok && (at == sp.PC || at+1 == sp.PC && sp.Entry == sp.PC) {
				return bp, true
			}
		}
	}
	return nil, false
}

// ParseBreakpointSpec parses "pc=N", a bare number or a symbol name.
func ParseBreakpointSpec(spec string) (pc uint32, symbol string, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, "", fmt.Errorf("empty spec")
	}
	num := strings.TrimPrefix(spec, "pc=")
	if n, perr := strconv.ParseUint(num, 10, 32); perr == nil {
		return uint32(n), "", nil
	}
	if num != spec {
		return 0, "", fmt.Errorf("invalid address %q", num)
	}
	return 0, spec, nil
}

func (bps *Breakpoints) allocID() int {
	if bps.nextID <= 0 {
		bps.nextID = 1
	}
	id := bps.nextID
	bps.nextID++
	return id
}
