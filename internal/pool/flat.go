package pool

import (
	"fmt"
	"unsafe"
)

// FlatPool keeps every page in one contiguous allocation of
// PageCount*PageSize bytes.
type FlatPool struct {
	geometry
	store BackingStore
	mem   []byte
	sizes []int // actual data size per page
}

// Attach loads every page of store into a single buffer.
func (f *FlatPool) Attach(store BackingStore) error {
	if f.store != nil {
		return ErrAttached
	}
	g, err := newGeometry(store)
	if err != nil {
		return err
	}
	f.geometry = g
	f.mem = make([]byte, g.pageCount*g.pageSize)
	f.sizes = make([]int, g.pageCount)
	for i := range g.pageCount {
		ofs := g.pageOffset(i)
		actual := store.ActualPageSize(ofs, g.pageSize)
		if actual < 0 || actual > g.pageSize {
			f.release()
			return fmt.Errorf("pool: page %d reports size %d (page size %d)", i, actual, g.pageSize)
		}
		page, err := store.AllocAndLoad(ofs, g.pageSize, actual)
		if err != nil {
			f.release()
			return fmt.Errorf("%w: page %d: %w", ErrAlloc, i, err)
		}
		copy(f.mem[ofs:int(ofs)+g.pageSize], page[:actual])
		store.FreePage(page, ofs, g.pageSize)
		f.sizes[i] = actual
	}
	f.store = store
	return nil
}

// Detach drops the buffer.
func (f *FlatPool) Detach() {
	f.release()
	f.store = nil
}

func (f *FlatPool) release() {
	f.mem = nil
	f.sizes = nil
}

// Translate returns the bytes from offset to the end of its page's data.
func (f *FlatPool) Translate(offset uint32) []byte {
	page, _ := f.split(offset)
	end := int(f.pageOffset(page)) + f.sizes[page]
	return f.mem[offset:end:end]
}

// Validate reports whether offset lies inside a page's actual data.
func (f *FlatPool) Validate(offset uint32) bool {
	page, intra := f.split(offset)
	return page < len(f.sizes) && intra < f.sizes[page]
}

// Reverse is a single range test against the buffer.
func (f *FlatPool) Reverse(p *byte) (uint32, bool) {
	if p == nil || len(f.mem) == 0 {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(f.mem)))
	addr := uintptr(unsafe.Pointer(p))
	if addr < base || addr >= base+uintptr(len(f.mem)) {
		return 0, false
	}
	ofs := uint32(addr - base) //nolint:gosec // bounded by len(mem) <= 1<<32
	if !f.Validate(ofs) {
		return 0, false
	}
	return ofs, true
}

func (f *FlatPool) PageSize() int  { return f.pageSize }
func (f *FlatPool) PageCount() int { return f.pageCount }
func (f *FlatPool) Size() uint32   { return f.size() }
