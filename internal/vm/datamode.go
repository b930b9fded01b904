package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"fortio.org/safecast"

	"storyvm/internal/vm/bignum"
)

// Data-mode record tags.
const (
	DataInt       byte = 0x01
	DataString    byte = 0x03
	DataTrue      byte = 0x08
	DataEnum      byte = 0x20
	DataBigNumber byte = 0x21
	DataByteArray byte = 0x22
)

// ErrDataTag reports an unrecognised data-mode tag.
var ErrDataTag = errors.New("data file: unknown value tag")

// errUnsupportedData reports a value with no data-mode representation.
var errUnsupportedData = errors.New("value has no data-mode form")

// writeDataValue appends one tagged value. The string length prefix counts
// its own two bytes.
func (vm *VM) writeDataValue(w io.Writer, v Value) error {
	var buf []byte
	switch {
	case v.Kind == KindInt:
		buf = binary.LittleEndian.AppendUint32([]byte{DataInt}, v.V)
	case v.Kind == KindTrue:
		buf = []byte{DataTrue}
	case v.Kind == KindEnum:
		buf = binary.LittleEndian.AppendUint32([]byte{DataEnum}, v.V)
	case vm.isBig(v):
		n, _ := vm.bigOf(v)
		b := n.Bytes()
		l, err := safecast.Conv[uint16](len(b))
		if err != nil {
			return fmt.Errorf("bignumber too large for data file: %w", err)
		}
		buf = binary.LittleEndian.AppendUint16([]byte{DataBigNumber}, l)
		buf = append(buf, b...)
	case vm.objectOf(v, ByteArrayMeta.Desc.Base) != nil:
		b := vm.objectOf(v, ByteArrayMeta.Desc.Base).Ext.(*byteArrayExt).b
		l, err := safecast.Conv[uint32](len(b))
		if err != nil {
			return err
		}
		buf = binary.LittleEndian.AppendUint32([]byte{DataByteArray}, l)
		buf = append(buf, b...)
	default:
		s, ok := vm.stringOf(v)
		if !ok {
			return errUnsupportedData
		}
		l, err := safecast.Conv[uint16](len(s) + 2)
		if err != nil {
			return fmt.Errorf("string too long for data file: %w", err)
		}
		buf = binary.LittleEndian.AppendUint16([]byte{DataString}, l)
		buf = append(buf, s...)
	}
	_, err := w.Write(buf)
	return err
}

// readDataValue reads one tagged value. It returns io.EOF only when the
// stream ends cleanly before a tag.
func (vm *VM) readDataValue(r io.Reader) (Value, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return Value{}, err
	}
	readN := func(n int) ([]byte, error) {
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, fmt.Errorf("data file: truncated value: %w", noEOF(err))
		}
		return b, nil
	}
	switch tag[0] {
	case DataInt:
		b, err := readN(4)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindInt, V: binary.LittleEndian.Uint32(b)}, nil
	case DataTrue:
		return TrueValue, nil
	case DataEnum:
		b, err := readN(4)
		if err != nil {
			return Value{}, err
		}
		return EnumValue(binary.LittleEndian.Uint32(b)), nil
	case DataString:
		b, err := readN(2)
		if err != nil {
			return Value{}, err
		}
		l := int(binary.LittleEndian.Uint16(b))
		if l < 2 {
			return Value{}, fmt.Errorf("data file: string length %d", l)
		}
		s, err := readN(l - 2)
		if err != nil {
			return Value{}, err
		}
		return vm.newString(string(s)), nil
	case DataBigNumber:
		b, err := readN(2)
		if err != nil {
			return Value{}, err
		}
		raw, err := readN(int(binary.LittleEndian.Uint16(b)))
		if err != nil {
			return Value{}, err
		}
		n, err := bignum.FromBytes(raw)
		if err != nil {
			return Value{}, fmt.Errorf("data file: %w", err)
		}
		return vm.newBig(n), nil
	case DataByteArray:
		b, err := readN(4)
		if err != nil {
			return Value{}, err
		}
		n := binary.LittleEndian.Uint32(b)
		raw, err := readLimited(r, n)
		if err != nil {
			return Value{}, err
		}
		return vm.newByteArray(raw), nil
	}
	return Value{}, fmt.Errorf("%w 0x%02x", ErrDataTag, tag[0])
}

// readLimited reads n bytes without trusting n for the allocation size.
func readLimited(r io.Reader, n uint32) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, int64(n)))
	if err != nil {
		return nil, err
	}
	if len(b) != int(n) {
		return nil, fmt.Errorf("data file: truncated byte array: %w", io.ErrUnexpectedEOF)
	}
	return b, nil
}

func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
