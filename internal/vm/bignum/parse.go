package bignum

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrParse reports text that is not an integer.
var ErrParse = errors.New("invalid numeric format")

// decimalChunk is the largest power of ten below 2^32; digits are consumed
// nine at a time.
const (
	decimalChunk       = 1_000_000_000
	decimalChunkDigits = 9
)

// ParseInt parses an optionally signed integer. Surrounding spaces are
// ignored. A 0x prefix selects hexadecimal; otherwise the text is decimal.
func ParseInt(s string) (BigInt, error) {
	body := strings.TrimSpace(s)
	neg := false
	if rest, ok := strings.CutPrefix(body, "-"); ok {
		neg, body = true, rest
	} else {
		body = strings.TrimPrefix(body, "+")
	}

	var mag BigUint
	var err error
	if hex, ok := cutHexPrefix(body); ok {
		mag, err = parseHex(hex)
	} else {
		mag, err = parseDecimal(body)
	}
	if err != nil {
		return BigInt{}, fmt.Errorf("%w: %q", err, s)
	}
	return mkInt(neg, mag), nil
}

func cutHexPrefix(s string) (string, bool) {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:], true
	}
	return s, false
}

func parseDecimal(s string) (BigUint, error) {
	if s == "" {
		return BigUint{}, ErrParse
	}
	var out BigUint
	// The first chunk takes the leftover digits so the rest are full.
	n := len(s) % decimalChunkDigits
	if n == 0 {
		n = decimalChunkDigits
	}
	for len(s) > 0 {
		chunk := s[:n]
		s = s[n:]
		if strings.IndexFunc(chunk, notDigit) >= 0 {
			return BigUint{}, ErrParse
		}
		v, err := strconv.ParseUint(chunk, 10, 32)
		if err != nil {
			return BigUint{}, ErrParse
		}
		scale := uint32(decimalChunk)
		if len(chunk) < decimalChunkDigits {
			scale = pow10(len(chunk))
		}
		if out, err = UintMulSmall(out, scale); err != nil {
			return BigUint{}, err
		}
		if out, err = UintAddSmall(out, uint32(v)); err != nil { //nolint:gosec // parsed with bitSize 32
			return BigUint{}, err
		}
		n = decimalChunkDigits
	}
	return out, nil
}

func parseHex(s string) (BigUint, error) {
	if s == "" {
		return BigUint{}, ErrParse
	}
	if (len(s)+7)/8 > MaxLimbs {
		return BigUint{}, ErrMaxLimbs
	}
	limbs := make([]uint32, 0, (len(s)+7)/8)
	for end := len(s); end > 0; end -= 8 {
		chunk := s[max(end-8, 0):end]
		v, err := strconv.ParseUint(chunk, 16, 32)
		if err != nil {
			return BigUint{}, ErrParse
		}
		limbs = append(limbs, uint32(v)) //nolint:gosec // parsed with bitSize 32
	}
	return BigUint{Limbs: trimLimbs(limbs)}, nil
}

func notDigit(r rune) bool { return r < '0' || r > '9' }

func pow10(n int) uint32 {
	p := uint32(1)
	for range n {
		p *= 10
	}
	return p
}
