package common

import (
	"crypto/rand"
	"strings"
)

// GenerateRandByteArray returns n bytes from crypto/rand. It panics if the
// system random source fails, which leaves nothing sensible to fall back to.
func GenerateRandByteArray(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// WipeByteArray zeroes b in place. Nil is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// NormalizeUsername lower-cases and trims a username. Every comparison and
// store of a username goes through it.
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
