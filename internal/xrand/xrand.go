// Package xrand generates the random bytes used in the CRAM-MD5
// challenge nonce, grounded on the same crypto/rand-backed generator
// the test helpers in internal/test/xrand use, promoted here for
// production use since a predictable nonce would make the challenge
// replayable.
package xrand

import (
	"crypto/rand"
	"fmt"
)

// Bytes returns n cryptographically random bytes.
func Bytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("xrand: failed to read random bytes: %v", err))
	}
	return b
}
