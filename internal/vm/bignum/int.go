package bignum

import "math"

// BigInt is a sign and magnitude integer. Zero is never negative.
type BigInt struct {
	Neg   bool
	Limbs []uint32 // magnitude, least significant limb first
}

func mkInt(neg bool, mag BigUint) BigInt {
	limbs := trimLimbs(mag.Limbs)
	if len(limbs) == 0 {
		return BigInt{}
	}
	return BigInt{Neg: neg, Limbs: limbs}
}

// IntFromInt64 creates a BigInt from an int64.
func IntFromInt64(v int64) BigInt {
	if v == math.MinInt64 {
		return mkInt(true, UintFromUint64(1<<63))
	}
	if v < 0 {
		return mkInt(true, UintFromUint64(uint64(-v)))
	}
	return mkInt(false, UintFromUint64(uint64(v)))
}

func (i BigInt) IsZero() bool { return len(trimLimbs(i.Limbs)) == 0 }

// Abs returns the magnitude.
func (i BigInt) Abs() BigUint { return BigUint{Limbs: trimLimbs(i.Limbs)} }

func (i BigInt) Negated() BigInt { return mkInt(!i.Neg, i.Abs()) }

// Cmp returns -1, 0 or 1 as i is less than, equal to or greater than j.
func (i BigInt) Cmp(j BigInt) int {
	switch {
	case i.IsZero() && j.IsZero():
		return 0
	case i.Neg != j.Neg:
		if i.Neg {
			return -1
		}
		return 1
	}
	c := cmpLimbs(i.Limbs, j.Limbs)
	if i.Neg {
		return -c
	}
	return c
}

// Int64 converts i to int64 if it fits.
func (i BigInt) Int64() (int64, bool) {
	mag, ok := i.Abs().Uint64()
	switch {
	case !ok:
		return 0, false
	case !i.Neg && mag <= math.MaxInt64:
		return int64(mag), true
	case i.Neg && mag <= 1<<63:
		return int64(-mag), true //nolint:gosec // two's complement negation, -2^63 included
	}
	return 0, false
}

// IntAdd returns a + b.
func IntAdd(a, b BigInt) (BigInt, error) {
	if a.Neg == b.Neg {
		sum, err := UintAdd(a.Abs(), b.Abs())
		return mkInt(a.Neg, sum), err
	}
	// Opposite signs: subtract the smaller magnitude from the larger one and
	// keep the sign of the larger.
	big, small := a, b
	if UintCmp(a.Abs(), b.Abs()) < 0 {
		big, small = b, a
	}
	diff, err := UintSub(big.Abs(), small.Abs())
	return mkInt(big.Neg, diff), err
}

// IntSub returns a - b.
func IntSub(a, b BigInt) (BigInt, error) {
	return IntAdd(a, b.Negated())
}

// IntMul returns a * b.
func IntMul(a, b BigInt) (BigInt, error) {
	prod, err := UintMul(a.Abs(), b.Abs())
	return mkInt(a.Neg != b.Neg, prod), err
}

// IntDivMod truncates the quotient toward zero; the remainder takes the sign
// of the dividend.
func IntDivMod(a, b BigInt) (q, r BigInt, err error) {
	qm, rm, err := UintDivMod(a.Abs(), b.Abs())
	if err != nil {
		return BigInt{}, BigInt{}, err
	}
	return mkInt(a.Neg != b.Neg, qm), mkInt(a.Neg, rm), nil
}

// UintCmp compares two magnitudes.
func UintCmp(a, b BigUint) int { return a.Cmp(b) }
