// Package pool implements the paged, read-mostly constant pool that holds the
// code and data sections of a story image.
//
// A pool attaches to exactly one BackingStore for its lifetime. Pool offsets
// form one flat address space; an offset splits losslessly into a page number
// (high bits) and an intra-page offset (low bits). Two layouts exist: FlatPool
// makes one contiguous allocation, PagedPool keeps a page table. Both satisfy
// the same Pool contract.
package pool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"fortio.org/safecast"
)

// MinPageSize is the smallest page size a pool accepts. A page must hold at
// least one code word.
const MinPageSize = 4

var (
	// ErrPageSize reports a page size that is not a power of two or is below MinPageSize.
	ErrPageSize = errors.New("pool: page size is not a valid power of two")
	// ErrAttached reports a second Attach on a live pool.
	ErrAttached = errors.New("pool: already attached")
	// ErrAlloc reports a failed page allocation during attach.
	ErrAlloc = errors.New("pool: page allocation failed")
	// ErrTooLarge reports a pool whose address space does not fit in 32 bits.
	ErrTooLarge = errors.New("pool: address space exceeds 32 bits")
)

// BackingStore supplies pool pages. The pool never writes back to it.
type BackingStore interface {
	// PageCount returns the number of pages in the pool.
	PageCount() int
	// CommonPageSize returns the size of every page except possibly the last.
	CommonPageSize() int
	// ActualPageSize returns the number of valid bytes in the page starting at
	// offset, or def when the page is full.
	ActualPageSize(offset uint32, def int) int
	// AllocAndLoad allocates pageSize bytes and fills the first loadSize of
	// them with the page starting at offset.
	AllocAndLoad(offset uint32, pageSize, loadSize int) ([]byte, error)
	// FreePage releases a page obtained from AllocAndLoad.
	FreePage(page []byte, offset uint32, pageSize int)
}

// Pool is the translate/validate/reverse contract shared by both layouts.
type Pool interface {
	// Attach loads the backing store's geometry (and, for FlatPool, all pages).
	Attach(store BackingStore) error
	// Detach releases every allocated page.
	Detach()
	// Translate returns the bytes from offset to the end of its page's data.
	// The result is undefined for offsets that do not Validate.
	Translate(offset uint32) []byte
	// Validate reports whether offset addresses a loaded byte.
	Validate(offset uint32) bool
	// Reverse maps a pointer into a loaded page back to its pool offset.
	Reverse(p *byte) (uint32, bool)
	// PageSize returns the common page size.
	PageSize() int
	// PageCount returns the number of pages.
	PageCount() int
	// Size returns the number of addressable bytes (pages times page size).
	Size() uint32
}

// Variant selects a pool layout.
type Variant uint8

const (
	// VariantAuto picks flat for images up to the flat limit, paged otherwise.
	VariantAuto Variant = iota
	// VariantFlat is the single-allocation layout.
	VariantFlat
	// VariantPaged is the page-table layout.
	VariantPaged
)

// DefaultFlatLimit is the largest pool VariantAuto lays out flat.
const DefaultFlatLimit = 16 << 20

// String returns the variant name used in configuration files.
func (v Variant) String() string {
	switch v {
	case VariantAuto:
		return "auto"
	case VariantFlat:
		return "flat"
	case VariantPaged:
		return "paged"
	default:
		return fmt.Sprintf("Variant(%d)", v)
	}
}

// ParseVariant converts a configuration string to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "", "auto":
		return VariantAuto, nil
	case "flat":
		return VariantFlat, nil
	case "paged":
		return VariantPaged, nil
	default:
		return VariantAuto, fmt.Errorf("invalid pool variant: %q (expected: auto|flat|paged)", s)
	}
}

// New creates a pool of the requested variant and attaches it to store.
func New(store BackingStore, v Variant, flatLimit int) (Pool, error) {
	if flatLimit <= 0 {
		flatLimit = DefaultFlatLimit
	}
	if v == VariantAuto {
		v = VariantPaged
		if int64(store.PageCount())*int64(store.CommonPageSize()) <= int64(flatLimit) {
			v = VariantFlat
		}
	}
	var p Pool
	switch v {
	case VariantFlat:
		p = &FlatPool{}
	case VariantPaged:
		p = &PagedPool{}
	default:
		return nil, fmt.Errorf("unknown pool variant %v", v)
	}
	if err := p.Attach(store); err != nil {
		return nil, err
	}
	return p, nil
}

// geometry holds the offset split shared by both layouts.
type geometry struct {
	pageSize  int
	pageCount int
	shift     uint
	mask      uint32
}

func newGeometry(store BackingStore) (geometry, error) {
	size := store.CommonPageSize()
	if size < MinPageSize || bits.OnesCount(uint(size)) != 1 {
		return geometry{}, fmt.Errorf("%w: %d", ErrPageSize, size)
	}
	count := store.PageCount()
	if count < 0 {
		return geometry{}, fmt.Errorf("pool: negative page count %d", count)
	}
	if uint64(count)*uint64(size) > 1<<32 {
		return geometry{}, fmt.Errorf("%w: %d pages of %d bytes", ErrTooLarge, count, size)
	}
	mask, err := safecast.Conv[uint32](size - 1)
	if err != nil {
		return geometry{}, fmt.Errorf("%w: %d", ErrPageSize, size)
	}
	return geometry{
		pageSize:  size,
		pageCount: count,
		shift:     uint(bits.TrailingZeros(uint(size))),
		mask:      mask,
	}, nil
}

func (g geometry) split(offset uint32) (page int, intra int) {
	return int(offset >> g.shift), int(offset & g.mask)
}

func (g geometry) pageOffset(page int) uint32 {
	return uint32(page) << g.shift //nolint:gosec // page < pageCount, checked against 32 bits at attach
}

func (g geometry) size() uint32 {
	total := uint64(g.pageCount) * uint64(g.pageSize)
	if total > 1<<32-1 {
		return 1<<32 - 1
	}
	return uint32(total)
}

// Uint16At reads a little-endian uint16 at offset. Both bytes must lie in the
// same page.
func Uint16At(p Pool, offset uint32) (uint16, bool) {
	if !p.Validate(offset) {
		return 0, false
	}
	b := p.Translate(offset)
	if len(b) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

// Uint32At reads a little-endian uint32 at offset. All four bytes must lie in
// the same page.
func Uint32At(p Pool, offset uint32) (uint32, bool) {
	if !p.Validate(offset) {
		return 0, false
	}
	b := p.Translate(offset)
	if len(b) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

// BytesAt returns n bytes starting at offset, which must all lie in one page.
func BytesAt(p Pool, offset uint32, n int) ([]byte, bool) {
	if n < 0 || !p.Validate(offset) {
		return nil, false
	}
	b := p.Translate(offset)
	if len(b) < n {
		return nil, false
	}
	return b[:n:n], true
}
