package bignum

import (
	"errors"
	"math"
)

// ErrEncoding reports a malformed byte encoding.
var ErrEncoding = errors.New("invalid bignum encoding")

// Bytes encodes i as a sign byte (0 or 1) followed by the big-endian
// magnitude with no leading zero bytes. Zero encodes as a single 0 byte.
func (i BigInt) Bytes() []byte {
	limbs := trimLimbs(i.Limbs)
	out := make([]byte, 1, 1+4*len(limbs))
	if i.Neg && len(limbs) > 0 {
		out[0] = 1
	}
	started := false
	for k := len(limbs) - 1; k >= 0; k-- {
		l := limbs[k]
		for shift := 24; shift >= 0; shift -= 8 {
			b := byte(l >> shift)
			if !started && b == 0 {
				continue
			}
			started = true
			out = append(out, b)
		}
	}
	return out
}

// FromBytes decodes the encoding produced by Bytes.
func FromBytes(b []byte) (BigInt, error) {
	if len(b) == 0 || b[0] > 1 {
		return BigInt{}, ErrEncoding
	}
	mag := b[1:]
	if len(mag) > 4*MaxLimbs {
		return BigInt{}, ErrMaxLimbs
	}
	limbs := make([]uint32, (len(mag)+3)/4)
	for k, byteVal := range mag {
		pos := len(mag) - 1 - k
		limbs[pos/4] |= uint32(byteVal) << (8 * (pos % 4))
	}
	limbs = trimLimbs(limbs)
	if len(limbs) == 0 {
		return BigInt{}, nil
	}
	return BigInt{Neg: b[0] == 1, Limbs: limbs}, nil
}

// Int32 converts i to int32 if it fits.
func (i BigInt) Int32() (int32, bool) {
	v, ok := i.Int64()
	if !ok || v < math.MinInt32 || v > math.MaxInt32 {
		return 0, false
	}
	return int32(v), true
}
