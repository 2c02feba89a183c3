package utils

import "math/rand"

// RandBytes returns bsLen pseudo random bytes. Not for cryptographic use.
func RandBytes(bsLen int) []byte {
	bs := make([]byte, bsLen)
	rand.Read(bs)
	return bs
}
