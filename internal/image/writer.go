package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"fortio.org/safecast"
)

// NewPoolDef splits data into pages of pageSize bytes. The last page holds
// the remainder.
func NewPoolDef(data []byte, pageSize int) PoolDef {
	def := PoolDef{PageSize: pageSize}
	if pageSize <= 0 {
		return def
	}
	for start := 0; start < len(data); start += pageSize {
		end := min(start+pageSize, len(data))
		def.Pages = append(def.Pages, bytes.Clone(data[start:end]))
	}
	def.PageCount = len(def.Pages)
	return def
}

type blockWriter struct {
	buf bytes.Buffer
	err error
}

func (w *blockWriter) u8(v uint8) { w.buf.WriteByte(v) }

func (w *blockWriter) u16(v uint16) {
	w.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
}

func (w *blockWriter) u32(v uint32) {
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func (w *blockWriter) count32(label string, v int) {
	n, err := safecast.Conv[uint32](v)
	if err != nil && w.err == nil {
		w.err = fmt.Errorf("image: %s %d: %w", label, v, err)
	}
	w.u32(n)
}

func (w *blockWriter) count16(label string, v int) {
	n, err := safecast.Conv[uint16](v)
	if err != nil && w.err == nil {
		w.err = fmt.Errorf("image: %s %d: %w", label, v, err)
	}
	w.u16(n)
}

func (w *blockWriter) str8(s string) {
	n, err := safecast.Conv[uint8](len(s))
	if err != nil && w.err == nil {
		w.err = fmt.Errorf("image: name %q too long: %w", s, err)
	}
	w.u8(n)
	w.buf.WriteString(s)
}

func (w *blockWriter) names(list []string) {
	w.count16("name count", len(list))
	for _, s := range list {
		w.str8(s)
	}
}

// Encode serialises img. Objects are grouped into one OBJS block per
// (metaclass, flags) pair, in first-seen order.
func (img *Image) Encode() ([]byte, error) {
	var out bytes.Buffer
	out.WriteString(Signature)
	out.Write(binary.LittleEndian.AppendUint16(nil, FormatVersion))

	emit := func(tag string, flags uint16, body *blockWriter) error {
		if body.err != nil {
			return body.err
		}
		n, err := safecast.Conv[uint32](body.buf.Len())
		if err != nil {
			return fmt.Errorf("image: block %q too large: %w", tag, err)
		}
		out.WriteString(tag)
		out.Write(binary.LittleEndian.AppendUint32(nil, n))
		out.Write(binary.LittleEndian.AppendUint16(nil, flags))
		out.Write(body.buf.Bytes())
		return nil
	}

	entry := &blockWriter{}
	entry.u32(img.Entry)
	entry.count32("code page size", img.Code.PageSize)
	entry.count32("data page size", img.Data.PageSize)
	if err := emit(TagEntry, BlockMandatory, entry); err != nil {
		return nil, err
	}

	for _, id := range []PoolID{PoolCode, PoolData} {
		def, _ := img.Pool(id)
		if id == PoolData && def.PageCount == 0 && len(def.Pages) == 0 {
			continue
		}
		hdr := &blockWriter{}
		hdr.u16(uint16(id))
		hdr.count32("page count", len(def.Pages))
		hdr.count32("page size", def.PageSize)
		if err := emit(TagPoolDef, BlockMandatory, hdr); err != nil {
			return nil, err
		}
		for i, page := range def.Pages {
			pg := &blockWriter{}
			pg.u16(uint16(id))
			pg.count32("page index", i)
			pg.u8(img.XorMask)
			for _, b := range page {
				pg.buf.WriteByte(b ^ img.XorMask)
			}
			if err := emit(TagPoolPage, BlockMandatory, pg); err != nil {
				return nil, err
			}
		}
	}

	if len(img.Metaclasses) > 0 {
		mc := &blockWriter{}
		mc.names(img.Metaclasses)
		if err := emit(TagMetaDeps, BlockMandatory, mc); err != nil {
			return nil, err
		}
	}
	if len(img.FunctionSets) > 0 {
		fs := &blockWriter{}
		fs.names(img.FunctionSets)
		if err := emit(TagFuncDeps, BlockMandatory, fs); err != nil {
			return nil, err
		}
	}

	type groupKey struct{ meta, flags uint16 }
	var order []groupKey
	groups := map[groupKey]*blockWriter{}
	for _, o := range img.Objects {
		k := groupKey{o.Metaclass, o.Flags}
		g, ok := groups[k]
		if !ok {
			g = &blockWriter{}
			g.u16(k.meta)
			g.u16(k.flags)
			groups[k] = g
			order = append(order, k)
		}
		g.u32(o.ID)
		g.count16("object data length", len(o.Data))
		g.buf.Write(o.Data)
	}
	for _, k := range order {
		if err := emit(TagObjects, BlockMandatory, groups[k]); err != nil {
			return nil, err
		}
	}

	if len(img.Symbols) > 0 {
		names := make([]string, 0, len(img.Symbols))
		for name := range img.Symbols {
			names = append(names, name)
		}
		sort.Strings(names)
		sym := &blockWriter{}
		sym.count16("symbol count", len(names))
		for _, name := range names {
			sym.str8(name)
			sym.u32(img.Symbols[name])
		}
		if err := emit(TagSymbols, 0, sym); err != nil {
			return nil, err
		}
	}

	if err := emit(TagEndOfFile, BlockMandatory, &blockWriter{}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// WriteTo writes the encoded image to w.
func (img *Image) WriteTo(w io.Writer) (int64, error) {
	data, err := img.Encode()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// WriteFile encodes img and atomically replaces path with it.
func WriteFile(path string, img *Image) (err error) {
	data, err := img.Encode()
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".image-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
