// Package base58 implements the Ripple variant of Base58 encoding.
//
// Conversion treats the input as a single big-endian integer and performs
// in-place repeated long division, so no big-number arithmetic is needed.
// Leading zero bytes are preserved as leading zero symbols ('r').
package base58

import (
	"errors"
)

// Alphabet is the Ripple Base58 symbol table. Its first symbol is the zero symbol.
const Alphabet = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"

// ErrInvalidCharacter is returned when text contains a symbol outside Alphabet.
var ErrInvalidCharacter = errors.New("base58: invalid character")

var indexes = buildIndexes()

func buildIndexes() [128]int8 {
	var idx [128]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		idx[Alphabet[i]] = int8(i)
	}
	return idx
}

// Encode converts src to Base58 text. Empty input yields an empty string.
func Encode(src []byte) string {
	if len(src) == 0 {
		return ""
	}

	input := make([]byte, len(src))
	copy(input, src)

	zeros := 0
	for zeros < len(input) && input[zeros] == 0 {
		zeros++
	}

	temp := make([]byte, len(input)*2)
	j := len(temp)

	for start := zeros; start < len(input); {
		mod := divmod(input, start, 256, 58)
		if input[start] == 0 {
			start++
		}
		j--
		temp[j] = Alphabet[mod]
	}

	for j < len(temp) && temp[j] == Alphabet[0] {
		j++
	}
	for ; zeros > 0; zeros-- {
		j--
		temp[j] = Alphabet[0]
	}

	return string(temp[j:])
}

// TryDecode decodes text into dst and reports the number of bytes written.
// It never writes past len(dst): if the decoded value does not fit, or text
// contains a character outside Alphabet, ok is false and dst is unspecified.
// Empty text decodes successfully to zero bytes.
func TryDecode(text string, dst []byte) (n int, ok bool) {
	out, err := decode(text)
	if err != nil || len(out) > len(dst) {
		return 0, false
	}
	return copy(dst, out), true
}

// DecodeString decodes text, returning ErrInvalidCharacter on a bad symbol.
func DecodeString(text string) ([]byte, error) {
	return decode(text)
}

// DecodeLength decodes text and succeeds only if it yields exactly n bytes.
func DecodeLength(text string, n int) ([]byte, bool) {
	buf := make([]byte, n)
	written, ok := TryDecode(text, buf)
	if !ok || written != n {
		return nil, false
	}
	return buf, true
}

func decode(text string) ([]byte, error) {
	if len(text) == 0 {
		return []byte{}, nil
	}

	input58 := make([]byte, len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c >= 128 || indexes[c] < 0 {
			return nil, ErrInvalidCharacter
		}
		input58[i] = byte(indexes[c])
	}

	zeros := 0
	for zeros < len(input58) && input58[zeros] == 0 {
		zeros++
	}

	temp := make([]byte, len(text))
	j := len(temp)

	for start := zeros; start < len(input58); {
		mod := divmod(input58, start, 58, 256)
		if input58[start] == 0 {
			start++
		}
		j--
		temp[j] = mod
	}

	for j < len(temp) && temp[j] == 0 {
		j++
	}

	out := make([]byte, zeros+len(temp)-j)
	copy(out[zeros:], temp[j:])
	return out, nil
}

// divmod divides number (base `from` digits, most significant first, starting
// at start) by `to` in place and returns the remainder.
func divmod(number []byte, start int, from, to int) byte {
	remainder := 0
	for i := start; i < len(number); i++ {
		acc := remainder*from + int(number[i])
		number[i] = byte(acc / to)
		remainder = acc % to
	}
	return byte(remainder)
}
