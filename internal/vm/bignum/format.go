package bignum

import "strconv"

// FormatInt renders i in decimal with a leading minus when negative.
func FormatInt(i BigInt) string {
	limbs := trimLimbs(i.Limbs)
	if len(limbs) == 0 {
		return "0"
	}
	// Peel base-10^9 chunks off the low end, then print them high first.
	var chunks []uint32
	cur := BigUint{Limbs: append([]uint32(nil), limbs...)}
	for !cur.IsZero() {
		var r uint32
		cur, r, _ = UintDivModSmall(cur, decimalChunk)
		chunks = append(chunks, r)
	}

	buf := make([]byte, 0, 1+len(chunks)*decimalChunkDigits)
	if i.Neg {
		buf = append(buf, '-')
	}
	buf = strconv.AppendUint(buf, uint64(chunks[len(chunks)-1]), 10)
	for k := len(chunks) - 2; k >= 0; k-- {
		digits := strconv.FormatUint(uint64(chunks[k]), 10)
		for range decimalChunkDigits - len(digits) {
			buf = append(buf, '0')
		}
		buf = append(buf, digits...)
	}
	return string(buf)
}
