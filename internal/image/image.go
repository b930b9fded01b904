// Package image reads and writes story image files.
//
// An image is a signature followed by tagged blocks. Each block carries a
// four-byte tag, a body length, a flags word and the body. Blocks describe the
// entry point, the code and data pool pages, the metaclass and function-set
// dependency tables, the static objects and an optional debug symbol table.
package image

import (
	"errors"
	"fmt"
)

// Signature opens every image file.
const Signature = "SVM-image\r\n\x1a"

// FormatVersion is the container version this package writes.
const FormatVersion uint16 = 1

// Block tags.
const (
	TagEntry     = "ENTP"
	TagPoolDef   = "CPDF"
	TagPoolPage  = "CPPG"
	TagMetaDeps  = "MCLD"
	TagFuncDeps  = "FNSD"
	TagObjects   = "OBJS"
	TagSymbols   = "SYMD"
	TagEndOfFile = "EOF "
)

// BlockMandatory marks a block a reader must understand.
const BlockMandatory uint16 = 0x0001

// PoolID names one of the two constant pools.
type PoolID uint16

const (
	PoolCode PoolID = 1
	PoolData PoolID = 2
)

func (id PoolID) String() string {
	switch id {
	case PoolCode:
		return "code"
	case PoolData:
		return "data"
	default:
		return fmt.Sprintf("pool#%d", uint16(id))
	}
}

// Object flags in OBJS blocks.
const (
	ObjTransient uint16 = 0x0001
)

var (
	ErrSignature     = errors.New("image: bad signature")
	ErrVersion       = errors.New("image: unsupported format version")
	ErrCorruptBlock  = errors.New("image: corrupt block")
	ErrUnknownBlock  = errors.New("image: unknown mandatory block")
	ErrMissingBlock  = errors.New("image: required block missing")
	ErrPageMissing   = errors.New("image: pool page missing")
	ErrDuplicatePage = errors.New("image: duplicate pool page")
)

// PoolDef is one constant pool: its geometry and its (unmasked) pages.
type PoolDef struct {
	PageCount int
	PageSize  int
	Pages     [][]byte
}

// Len returns the number of data bytes held by the pool.
func (p *PoolDef) Len() int {
	n := 0
	for _, pg := range p.Pages {
		n += len(pg)
	}
	return n
}

// ObjectDef is one static object from an OBJS block.
type ObjectDef struct {
	ID        uint32
	Metaclass uint16 // index into Image.Metaclasses
	Flags     uint16
	Data      []byte
}

// Transient reports whether the object is excluded from saved state.
func (o ObjectDef) Transient() bool { return o.Flags&ObjTransient != 0 }

// Image is a decoded story image.
type Image struct {
	Version uint16
	Entry   uint32 // code word index

	Code PoolDef
	Data PoolDef

	Metaclasses  []string // "name/NNNNNN"
	FunctionSets []string
	Objects      []ObjectDef
	Symbols      map[string]uint32

	// XorMask is applied to pool page bytes on write. Pages read back are
	// always unmasked.
	XorMask byte

	// Raw holds the bytes the image was parsed from.
	Raw []byte
}

// Pool returns the definition for id.
func (img *Image) Pool(id PoolID) (*PoolDef, error) {
	switch id {
	case PoolCode:
		return &img.Code, nil
	case PoolData:
		return &img.Data, nil
	default:
		return nil, fmt.Errorf("%w: unknown pool id %d", ErrCorruptBlock, uint16(id))
	}
}

// MaxObjectID returns the highest static object id, or 0.
func (img *Image) MaxObjectID() uint32 {
	var m uint32
	for _, o := range img.Objects {
		m = max(m, o.ID)
	}
	return m
}

// SymbolAt returns the name of the symbol at word, if any. When several
// symbols share an address the lexically smallest wins.
func (img *Image) SymbolAt(word uint32) (string, bool) {
	best, found := "", false
	for name, at := range img.Symbols {
		if at == word && (!found || name < best) {
			best, found = name, true
		}
	}
	return best, found
}
