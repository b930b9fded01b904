package bignum

// IntAnd, IntOr and IntXor treat their operands as infinitely sign-extended
// two's complement integers.

func IntAnd(a, b BigInt) (BigInt, error) {
	return limbwise(a, b, func(x, y uint32) uint32 { return x & y })
}

func IntOr(a, b BigInt) (BigInt, error) {
	return limbwise(a, b, func(x, y uint32) uint32 { return x | y })
}

func IntXor(a, b BigInt) (BigInt, error) {
	return limbwise(a, b, func(x, y uint32) uint32 { return x ^ y })
}

// limbwise applies op to the two's complement forms of a and b, one extra
// limb wide so the sign survives.
func limbwise(a, b BigInt, op func(x, y uint32) uint32) (BigInt, error) {
	n := max(len(trimLimbs(a.Limbs)), len(trimLimbs(b.Limbs))) + 1
	if n-1 > MaxLimbs {
		return BigInt{}, ErrMaxLimbs
	}
	x, y := twos(a, n), twos(b, n)
	out := make([]uint32, n)
	for k := range out {
		out[k] = op(x[k], y[k])
	}
	if out[n-1]>>31 == 0 {
		return mkInt(false, BigUint{Limbs: out}), nil
	}
	negate(out)
	return mkInt(true, BigUint{Limbs: out}), nil
}

// twos returns i's two's complement form in n limbs.
func twos(i BigInt, n int) []uint32 {
	out := make([]uint32, n)
	copy(out, trimLimbs(i.Limbs))
	if i.Neg {
		negate(out)
	}
	return out
}

// negate replaces limbs with their two's complement negation.
func negate(limbs []uint32) {
	carry := uint32(1)
	for k, v := range limbs {
		limbs[k] = ^v + carry
		if limbs[k] != 0 {
			carry = 0
		}
	}
}

// IntShl returns a << n.
func IntShl(a BigInt, n int) (BigInt, error) {
	mag, err := UintShl(a.Abs(), n)
	if err != nil {
		return BigInt{}, err
	}
	return mkInt(a.Neg, mag), nil
}

// IntShr returns a >> n rounded toward negative infinity, as an arithmetic
// shift of the two's complement form would.
func IntShr(a BigInt, n int) (BigInt, error) {
	if !a.Neg {
		mag, err := UintShr(a.Abs(), n)
		return mkInt(false, mag), err
	}
	// -m >> n == -(((m - 1) >> n) + 1)
	m1, err := UintSub(a.Abs(), BigUint{Limbs: []uint32{1}})
	if err != nil {
		return BigInt{}, err
	}
	q, err := UintShr(m1, n)
	if err != nil {
		return BigInt{}, err
	}
	mag, err := UintAddSmall(q, 1)
	return mkInt(true, mag), err
}
