package pool

import "fmt"

// MemStore is a BackingStore over an in-memory byte slice, split into pages
// of a fixed size. The last page holds whatever remains.
type MemStore struct {
	data     []byte
	pageSize int

	// Allocs counts pages handed out and not yet freed.
	Allocs int
}

// NewMemStore wraps data. pageSize is validated by the pool at attach time.
func NewMemStore(data []byte, pageSize int) *MemStore {
	return &MemStore{data: data, pageSize: pageSize}
}

func (m *MemStore) PageCount() int {
	if m.pageSize <= 0 {
		return 0
	}
	return (len(m.data) + m.pageSize - 1) / m.pageSize
}

func (m *MemStore) CommonPageSize() int { return m.pageSize }

func (m *MemStore) ActualPageSize(offset uint32, def int) int {
	rest := len(m.data) - int(offset)
	if rest <= 0 {
		return 0
	}
	return min(rest, def)
}

func (m *MemStore) AllocAndLoad(offset uint32, pageSize, loadSize int) ([]byte, error) {
	start := int(offset)
	if start+loadSize > len(m.data) || loadSize > pageSize {
		return nil, fmt.Errorf("memstore: load %d bytes at %d exceeds %d", loadSize, start, len(m.data))
	}
	page := make([]byte, pageSize)
	copy(page, m.data[start:start+loadSize])
	m.Allocs++
	return page, nil
}

func (m *MemStore) FreePage(_ []byte, _ uint32, _ int) {
	m.Allocs--
}
