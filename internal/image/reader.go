package image

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const blockHeaderSize = 4 + 4 + 2

// Load reads and parses the image file at path.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Read parses an image from r.
func Read(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// cursor walks a block body; the first short read sticks in err.
type cursor struct {
	b   []byte
	off int
	err error
}

func (c *cursor) need(n int) bool {
	if c.err != nil {
		return false
	}
	if n < 0 || c.off+n > len(c.b) {
		c.err = fmt.Errorf("%w: need %d bytes at %d, have %d", ErrCorruptBlock, n, c.off, len(c.b)-c.off)
		return false
	}
	return true
}

func (c *cursor) u8() uint8 {
	if !c.need(1) {
		return 0
	}
	v := c.b[c.off]
	c.off++
	return v
}

func (c *cursor) u16() uint16 {
	if !c.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(c.b[c.off:])
	c.off += 2
	return v
}

func (c *cursor) u32() uint32 {
	if !c.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(c.b[c.off:])
	c.off += 4
	return v
}

func (c *cursor) bytes(n int) []byte {
	if !c.need(n) {
		return nil
	}
	v := c.b[c.off : c.off+n : c.off+n]
	c.off += n
	return v
}

func (c *cursor) str8() string {
	n := int(c.u8())
	return string(c.bytes(n))
}

func (c *cursor) rest() []byte {
	if c.err != nil {
		return nil
	}
	v := c.b[c.off:]
	c.off = len(c.b)
	return v
}

func (c *cursor) done() bool { return c.err == nil && c.off == len(c.b) }

type pageSet struct {
	defined bool
	def     PoolDef
	pages   map[uint32][]byte
}

type parser struct {
	img       *Image
	sawEntry  bool
	codePages pageSet
	dataPages pageSet
}

// Parse decodes an image held in memory. The returned image keeps data as Raw.
func Parse(data []byte) (*Image, error) {
	if len(data) < len(Signature)+2 || string(data[:len(Signature)]) != Signature {
		return nil, ErrSignature
	}
	version := binary.LittleEndian.Uint16(data[len(Signature):])
	if version == 0 || version > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, version)
	}
	p := &parser{
		img:       &Image{Version: version, Raw: data, Symbols: map[string]uint32{}},
		codePages: pageSet{pages: map[uint32][]byte{}},
		dataPages: pageSet{pages: map[uint32][]byte{}},
	}
	off := len(Signature) + 2
	for {
		if off+blockHeaderSize > len(data) {
			return nil, fmt.Errorf("%w: truncated block header at %d", ErrCorruptBlock, off)
		}
		tag := string(data[off : off+4])
		length := binary.LittleEndian.Uint32(data[off+4:])
		flags := binary.LittleEndian.Uint16(data[off+8:])
		off += blockHeaderSize
		if uint64(off)+uint64(length) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: block %q length %d overruns file", ErrCorruptBlock, tag, length)
		}
		body := data[off : off+int(length)]
		off += int(length)
		if tag == TagEndOfFile {
			break
		}
		if err := p.block(tag, flags, body); err != nil {
			return nil, err
		}
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return p.img, nil
}

func (p *parser) block(tag string, flags uint16, body []byte) error {
	c := &cursor{b: body}
	switch tag {
	case TagEntry:
		p.img.Entry = c.u32()
		p.img.Code.PageSize = int(c.u32())
		p.img.Data.PageSize = int(c.u32())
		p.sawEntry = true
	case TagPoolDef:
		id := PoolID(c.u16())
		set, err := p.pageSet(id)
		if err != nil {
			return err
		}
		if set.defined {
			return fmt.Errorf("%w: %s pool defined twice", ErrCorruptBlock, id)
		}
		set.defined = true
		set.def.PageCount = int(c.u32())
		set.def.PageSize = int(c.u32())
	case TagPoolPage:
		id := PoolID(c.u16())
		index := c.u32()
		mask := c.u8()
		page := c.rest()
		if c.err != nil {
			break
		}
		set, err := p.pageSet(id)
		if err != nil {
			return err
		}
		if _, dup := set.pages[index]; dup {
			return fmt.Errorf("%w: %s page %d", ErrDuplicatePage, id, index)
		}
		plain := make([]byte, len(page))
		for i, b := range page {
			plain[i] = b ^ mask
		}
		set.pages[index] = plain
	case TagMetaDeps:
		p.img.Metaclasses = readNames(c)
	case TagFuncDeps:
		p.img.FunctionSets = readNames(c)
	case TagObjects:
		meta := c.u16()
		oflags := c.u16()
		for c.err == nil && c.off < len(c.b) {
			id := c.u32()
			n := int(c.u16())
			data := c.bytes(n)
			if c.err != nil {
				break
			}
			p.img.Objects = append(p.img.Objects, ObjectDef{ID: id, Metaclass: meta, Flags: oflags, Data: data})
		}
	case TagSymbols:
		n := int(c.u16())
		for range n {
			name := c.str8()
			at := c.u32()
			if c.err != nil {
				break
			}
			p.img.Symbols[name] = at
		}
	default:
		if flags&BlockMandatory != 0 {
			return fmt.Errorf("%w: %q", ErrUnknownBlock, tag)
		}
		return nil
	}
	if c.err != nil {
		return fmt.Errorf("block %q: %w", tag, c.err)
	}
	if !c.done() && tag != TagObjects {
		return fmt.Errorf("%w: block %q has %d trailing bytes", ErrCorruptBlock, tag, len(c.b)-c.off)
	}
	return nil
}

func readNames(c *cursor) []string {
	n := int(c.u16())
	names := make([]string, 0, n)
	for range n {
		names = append(names, c.str8())
	}
	return names
}

func (p *parser) pageSet(id PoolID) (*pageSet, error) {
	switch id {
	case PoolCode:
		return &p.codePages, nil
	case PoolData:
		return &p.dataPages, nil
	default:
		return nil, fmt.Errorf("%w: unknown pool id %d", ErrCorruptBlock, uint16(id))
	}
}

func (p *parser) finish() error {
	if !p.sawEntry {
		return fmt.Errorf("%w: %s", ErrMissingBlock, TagEntry)
	}
	if !p.codePages.defined {
		return fmt.Errorf("%w: %s for code pool", ErrMissingBlock, TagPoolDef)
	}
	if err := assemble(PoolCode, &p.img.Code, &p.codePages); err != nil {
		return err
	}
	if p.dataPages.defined {
		if err := assemble(PoolData, &p.img.Data, &p.dataPages); err != nil {
			return err
		}
	}
	return nil
}

func assemble(id PoolID, dst *PoolDef, set *pageSet) error {
	if dst.PageSize != 0 && dst.PageSize != set.def.PageSize {
		return fmt.Errorf("%w: %s pool page size %d disagrees with entry block (%d)", ErrCorruptBlock, id, set.def.PageSize, dst.PageSize)
	}
	dst.PageSize = set.def.PageSize
	dst.PageCount = set.def.PageCount
	if len(set.pages) != dst.PageCount {
		for i := range dst.PageCount {
			if _, ok := set.pages[uint32(i)]; !ok { //nolint:gosec // i < PageCount
				return fmt.Errorf("%w: %s page %d", ErrPageMissing, id, i)
			}
		}
		return fmt.Errorf("%w: %s pool has %d pages, definition says %d", ErrCorruptBlock, id, len(set.pages), dst.PageCount)
	}
	dst.Pages = make([][]byte, dst.PageCount)
	for i := range dst.PageCount {
		page, ok := set.pages[uint32(i)] //nolint:gosec // i < PageCount
		if !ok {
			return fmt.Errorf("%w: %s page %d", ErrPageMissing, id, i)
		}
		last := i == dst.PageCount-1
		if len(page) > dst.PageSize || (!last && len(page) != dst.PageSize) {
			return fmt.Errorf("%w: %s page %d has %d bytes (page size %d)", ErrCorruptBlock, id, i, len(page), dst.PageSize)
		}
		dst.Pages[i] = page
	}
	return nil
}
