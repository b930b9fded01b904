package image

import (
	"fmt"

	"storyvm/internal/pool"
)

// Store serves one image pool to a constant pool as a read-only BackingStore.
type Store struct {
	def *PoolDef
}

var _ pool.BackingStore = (*Store)(nil)

// NewStore returns the backing store for pool id of img.
func NewStore(img *Image, id PoolID) (*Store, error) {
	def, err := img.Pool(id)
	if err != nil {
		return nil, err
	}
	return &Store{def: def}, nil
}

func (s *Store) PageCount() int      { return s.def.PageCount }
func (s *Store) CommonPageSize() int { return s.def.PageSize }

func (s *Store) page(offset uint32) int {
	if s.def.PageSize <= 0 {
		return -1
	}
	return int(offset) / s.def.PageSize
}

func (s *Store) ActualPageSize(offset uint32, def int) int {
	i := s.page(offset)
	if i < 0 || i >= len(s.def.Pages) {
		return 0
	}
	return min(len(s.def.Pages[i]), def)
}

func (s *Store) AllocAndLoad(offset uint32, pageSize, loadSize int) ([]byte, error) {
	i := s.page(offset)
	if i < 0 || i >= len(s.def.Pages) {
		return nil, fmt.Errorf("%w: offset %d", ErrPageMissing, offset)
	}
	src := s.def.Pages[i]
	if loadSize > len(src) || loadSize > pageSize {
		return nil, fmt.Errorf("%w: page %d holds %d bytes, %d requested", ErrCorruptBlock, i, len(src), loadSize)
	}
	buf := make([]byte, pageSize)
	copy(buf, src[:loadSize])
	return buf, nil
}

func (s *Store) FreePage([]byte, uint32, int) {}

// OpenPool attaches a constant pool of the given variant to pool id of img.
func OpenPool(img *Image, id PoolID, v pool.Variant, flatLimit int) (pool.Pool, error) {
	store, err := NewStore(img, id)
	if err != nil {
		return nil, err
	}
	p, err := pool.New(store, v, flatLimit)
	if err != nil {
		return nil, fmt.Errorf("%s pool: %w", id, err)
	}
	return p, nil
}
