package bignum

import (
	"errors"
	"math/bits"
)

// MaxLimbs caps the magnitude of a BigNumber at 32768 bits so the object's
// saved form stays small.
const MaxLimbs = 1024

var (
	// ErrMaxLimbs indicates the numeric size limit was exceeded.
	ErrMaxLimbs = errors.New("bignumber size limit exceeded")
	// ErrDivByZero indicates an attempt to divide by zero.
	ErrDivByZero = errors.New("division by zero")
	ErrUnderflow = errors.New("unsigned underflow")
	errNegShift  = errors.New("negative shift")
)

// BigUint is an unsigned magnitude in base-2^32 limbs, least significant
// first. Zero has no limbs.
type BigUint struct {
	Limbs []uint32
}

// UintFromUint64 creates a BigUint from a uint64.
func UintFromUint64(v uint64) BigUint {
	hi, lo := bits.Div64(0, v, 1<<32)
	return BigUint{Limbs: trimLimbs([]uint32{uint32(lo), uint32(hi)})} //nolint:gosec // both halves fit
}

func (u BigUint) IsZero() bool {
	return len(trimLimbs(u.Limbs)) == 0
}

func (u BigUint) Cmp(v BigUint) int {
	return cmpLimbs(u.Limbs, v.Limbs)
}

// Uint64 converts u to uint64 if it fits.
func (u BigUint) Uint64() (uint64, bool) {
	limbs := trimLimbs(u.Limbs)
	if len(limbs) > 2 {
		return 0, false
	}
	var v uint64
	for i := len(limbs) - 1; i >= 0; i-- {
		v = v<<32 | uint64(limbs[i])
	}
	return v, true
}

func checked(limbs []uint32) (BigUint, error) {
	limbs = trimLimbs(limbs)
	if len(limbs) > MaxLimbs {
		return BigUint{}, ErrMaxLimbs
	}
	return BigUint{Limbs: limbs}, nil
}

// UintAdd returns a + b.
func UintAdd(a, b BigUint) (BigUint, error) {
	al, bl := trimLimbs(a.Limbs), trimLimbs(b.Limbs)
	if len(al) < len(bl) {
		al, bl = bl, al
	}
	out := make([]uint32, len(al)+1)
	var carry uint32
	for i, av := range al {
		var bv uint32
		if i < len(bl) {
			bv = bl[i]
		}
		out[i], carry = bits.Add32(av, bv, carry)
	}
	out[len(al)] = carry
	return checked(out)
}

// UintAddSmall returns u + v.
func UintAddSmall(u BigUint, v uint32) (BigUint, error) {
	return UintAdd(u, BigUint{Limbs: []uint32{v}})
}

// UintSub returns a - b, or ErrUnderflow when b > a.
func UintSub(a, b BigUint) (BigUint, error) {
	if cmpLimbs(a.Limbs, b.Limbs) < 0 {
		return BigUint{}, ErrUnderflow
	}
	out := append([]uint32(nil), trimLimbs(a.Limbs)...)
	subInPlace(out, trimLimbs(b.Limbs))
	return BigUint{Limbs: trimLimbs(out)}, nil
}

// UintMul returns a * b by schoolbook multiplication.
func UintMul(a, b BigUint) (BigUint, error) {
	al, bl := trimLimbs(a.Limbs), trimLimbs(b.Limbs)
	if len(al) == 0 || len(bl) == 0 {
		return BigUint{}, nil
	}
	if len(al)+len(bl)-1 > MaxLimbs {
		return BigUint{}, ErrMaxLimbs
	}
	out := make([]uint32, len(al)+len(bl))
	for i, av := range al {
		var carry uint64
		for j, bv := range bl {
			t := uint64(av)*uint64(bv) + uint64(out[i+j]) + carry
			out[i+j] = uint32(t) //nolint:gosec // low limb
			carry = t >> 32
		}
		out[i+len(bl)] = uint32(carry) //nolint:gosec // carry < 2^32
	}
	return checked(out)
}

// UintMulSmall returns u * m.
func UintMulSmall(u BigUint, m uint32) (BigUint, error) {
	return UintMul(u, BigUint{Limbs: []uint32{m}})
}

// UintDivModSmall divides u by a single limb.
func UintDivModSmall(u BigUint, d uint32) (q BigUint, r uint32, err error) {
	if d == 0 {
		return BigUint{}, 0, ErrDivByZero
	}
	limbs := trimLimbs(u.Limbs)
	out := make([]uint32, len(limbs))
	var rem uint32
	for i := len(limbs) - 1; i >= 0; i-- {
		out[i], rem = bits.Div32(rem, limbs[i], d)
	}
	return BigUint{Limbs: trimLimbs(out)}, rem, nil
}

// UintShl returns u << n.
func UintShl(u BigUint, n int) (BigUint, error) {
	if n < 0 {
		return BigUint{}, errNegShift
	}
	limbs := trimLimbs(u.Limbs)
	if len(limbs) == 0 {
		return BigUint{}, nil
	}
	words, shift := n/32, uint(n%32)
	if len(limbs)+words > MaxLimbs+1 {
		return BigUint{}, ErrMaxLimbs
	}
	out := make([]uint32, len(limbs)+words+1)
	for i, v := range limbs {
		out[i+words] |= v << shift
		if shift > 0 {
			out[i+words+1] = v >> (32 - shift)
		}
	}
	return checked(out)
}

// UintShr returns u >> n.
func UintShr(u BigUint, n int) (BigUint, error) {
	if n < 0 {
		return BigUint{}, errNegShift
	}
	limbs := trimLimbs(u.Limbs)
	words, shift := n/32, uint(n%32)
	if words >= len(limbs) {
		return BigUint{}, nil
	}
	out := make([]uint32, len(limbs)-words)
	for i := range out {
		out[i] = limbs[i+words] >> shift
		if shift > 0 && i+words+1 < len(limbs) {
			out[i] |= limbs[i+words+1] << (32 - shift)
		}
	}
	return BigUint{Limbs: trimLimbs(out)}, nil
}

// UintDivMod returns the quotient and remainder of a / b using binary long
// division.
func UintDivMod(a, b BigUint) (q, r BigUint, err error) {
	al, bl := trimLimbs(a.Limbs), trimLimbs(b.Limbs)
	if len(bl) == 0 {
		return BigUint{}, BigUint{}, ErrDivByZero
	}
	if cmpLimbs(al, bl) < 0 {
		return BigUint{}, BigUint{Limbs: al}, nil
	}
	if len(bl) == 1 {
		qs, rs, err := UintDivModSmall(BigUint{Limbs: al}, bl[0])
		return qs, UintFromUint64(uint64(rs)), err
	}
	shift := bitLenLimbs(al) - bitLenLimbs(bl)
	d, err := UintShl(BigUint{Limbs: bl}, shift)
	if err != nil {
		return BigUint{}, BigUint{}, err
	}
	denom := append([]uint32(nil), d.Limbs...)
	rem := append([]uint32(nil), al...)
	quot := make([]uint32, shift/32+1)
	for i := shift; i >= 0; i-- {
		if cmpLimbs(rem, denom) >= 0 {
			subInPlace(rem, denom)
			quot[i/32] |= 1 << (i % 32)
		}
		shr1InPlace(denom)
	}
	return BigUint{Limbs: trimLimbs(quot)}, BigUint{Limbs: trimLimbs(rem)}, nil
}

func trimLimbs(limbs []uint32) []uint32 {
	n := len(limbs)
	for n > 0 && limbs[n-1] == 0 {
		n--
	}
	if n == 0 {
		return nil
	}
	return limbs[:n]
}

func bitLenLimbs(limbs []uint32) int {
	limbs = trimLimbs(limbs)
	if len(limbs) == 0 {
		return 0
	}
	return (len(limbs)-1)*32 + bits.Len32(limbs[len(limbs)-1])
}

func cmpLimbs(a, b []uint32) int {
	a, b = trimLimbs(a), trimLimbs(b)
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	for i := len(a) - 1; i >= 0; i-- {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// subInPlace computes dst -= sub; dst must not be smaller than sub.
func subInPlace(dst, sub []uint32) {
	var borrow uint32
	for i := range dst {
		var sv uint32
		if i < len(sub) {
			sv = sub[i]
		}
		dst[i], borrow = bits.Sub32(dst[i], sv, borrow)
	}
}

func shr1InPlace(limbs []uint32) {
	var carry uint32
	for i := len(limbs) - 1; i >= 0; i-- {
		v := limbs[i]
		limbs[i] = v>>1 | carry<<31
		carry = v & 1
	}
}
