package pool

import (
	"fmt"
	"unsafe"
)

type pageSlot struct {
	data []byte // nil until loaded
	size int
}

// PagedPool keeps a page table with one host allocation per page.
//
// Pages load on first use unless Eager is set before Attach.
type PagedPool struct {
	geometry
	Eager bool

	store BackingStore
	pages []pageSlot
}

// Attach records the store geometry and, when Eager, loads every page.
func (p *PagedPool) Attach(store BackingStore) error {
	if p.store != nil {
		return ErrAttached
	}
	g, err := newGeometry(store)
	if err != nil {
		return err
	}
	p.geometry = g
	p.pages = make([]pageSlot, g.pageCount)
	for i := range p.pages {
		ofs := g.pageOffset(i)
		actual := store.ActualPageSize(ofs, g.pageSize)
		if actual < 0 || actual > g.pageSize {
			return fmt.Errorf("pool: page %d reports size %d (page size %d)", i, actual, g.pageSize)
		}
		p.pages[i].size = actual
	}
	p.store = store
	if p.Eager {
		for i := range p.pages {
			if err := p.load(i); err != nil {
				p.Detach()
				return err
			}
		}
	}
	return nil
}

func (p *PagedPool) load(page int) error {
	slot := &p.pages[page]
	if slot.data != nil {
		return nil
	}
	data, err := p.store.AllocAndLoad(p.pageOffset(page), p.pageSize, slot.size)
	if err != nil {
		return fmt.Errorf("%w: page %d: %w", ErrAlloc, page, err)
	}
	slot.data = data
	return nil
}

// Detach frees every loaded page back to the store.
func (p *PagedPool) Detach() {
	if p.store == nil {
		return
	}
	for i := range p.pages {
		if p.pages[i].data != nil {
			p.store.FreePage(p.pages[i].data, p.pageOffset(i), p.pageSize)
			p.pages[i].data = nil
		}
	}
	p.pages = nil
	p.store = nil
}

// LoadError is the panic value Translate raises when a page cannot be
// loaded. The interpreter turns it into a fatal error.
type LoadError struct {
	Page int
	Err  error
}

func (e *LoadError) Error() string { return e.Err.Error() }

func (e *LoadError) Unwrap() error { return e.Err }

// Translate loads the page on demand. It panics on offsets past the page
// table; callers validate untrusted offsets first. A failed load panics with
// a *LoadError.
func (p *PagedPool) Translate(offset uint32) []byte {
	page, intra := p.split(offset)
	if err := p.load(page); err != nil {
		panic(&LoadError{Page: page, Err: err})
	}
	slot := p.pages[page]
	return slot.data[intra:slot.size:slot.size]
}

// Validate checks the page number and the page's actual size.
func (p *PagedPool) Validate(offset uint32) bool {
	page, intra := p.split(offset)
	return page < len(p.pages) && intra < p.pages[page].size
}

// Reverse scans the loaded pages for the one containing ptr.
func (p *PagedPool) Reverse(ptr *byte) (uint32, bool) {
	if ptr == nil {
		return 0, false
	}
	addr := uintptr(unsafe.Pointer(ptr))
	for i, slot := range p.pages {
		if slot.data == nil {
			continue
		}
		base := uintptr(unsafe.Pointer(unsafe.SliceData(slot.data)))
		if addr < base || addr >= base+uintptr(slot.size) {
			continue
		}
		return p.pageOffset(i) + uint32(addr-base), true //nolint:gosec // addr-base < page size
	}
	return 0, false
}

// Compress is a placeholder for releasing cold pages. It does nothing.
func (p *PagedPool) Compress() {}

// Loaded reports how many pages are resident.
func (p *PagedPool) Loaded() int {
	n := 0
	for _, slot := range p.pages {
		if slot.data != nil {
			n++
		}
	}
	return n
}

func (p *PagedPool) PageSize() int  { return p.pageSize }
func (p *PagedPool) PageCount() int { return p.pageCount }
func (p *PagedPool) Size() uint32   { return p.size() }
