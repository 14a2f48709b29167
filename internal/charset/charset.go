// Package charset implements the restricted 32-symbol alphabet and weighted
// checksum shared by tag and key-slot identifiers.
package charset

import "fmt"

// Alphabet excludes visually confusable characters (no I, L, O, 0, 1) so a
// tag can be read off a spectrogram or spoken aloud without ambiguity.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789_"

// Primes weight each of the first 7 symbol positions when folding a tag into
// its trailing checksum character. Small, pairwise distinct primes avoid
// degenerate collisions for adjacent single-character edits.
var Primes = [7]uint32{3, 5, 7, 11, 13, 17, 19}

var indexOf [256]int8

func init() {
	for i := range indexOf {
		indexOf[i] = -1
	}
	for i, c := range []byte(Alphabet) {
		indexOf[c] = int8(i)
	}
}

// ToIndex returns the alphabet index of c, case-insensitively. ok is false if
// c is not a member of Alphabet.
func ToIndex(c byte) (idx byte, ok bool) {
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	i := indexOf[c]
	if i < 0 {
		return 0, false
	}
	return byte(i), true
}

// ToChar maps an alphabet index (0..31) back to its symbol. Panics if idx is
// out of range, which only happens on a programmer error upstream (checksum
// math is defined to stay within 0..31).
func ToChar(idx byte) byte {
	if int(idx) >= len(Alphabet) {
		panic(fmt.Sprintf("charset: index %d out of range", idx))
	}
	return Alphabet[idx]
}

// IsValid reports whether c, case-insensitively, belongs to Alphabet.
func IsValid(c byte) bool {
	_, ok := ToIndex(c)
	return ok
}

// Checksum computes the weighted-prime checksum character for the 7
// identifier characters in body, case-insensitively. body must be exactly 7
// bytes of valid alphabet characters; Checksum does not itself validate that
// (callers validate first so the error carries the original, unmodified
// input).
func Checksum(body [7]byte) byte {
	var sum uint32
	for i, c := range body {
		idx, ok := ToIndex(c)
		if !ok {
			// Programmer error: callers must validate before calling Checksum.
			panic(fmt.Sprintf("charset: invalid checksum input byte %q", c))
		}
		sum += uint32(idx) * Primes[i]
	}
	return ToChar(byte(sum % 32))
}
