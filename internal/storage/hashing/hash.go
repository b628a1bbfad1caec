// Package hashing provides the entry serializer's content-integrity digest,
// built on github.com/cespare/xxhash/v2 rather than a hand-rolled checksum.
package hashing

import (
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// Digest128 is a 128-bit non-cryptographic content digest, the default
// hash function for frame integrity checks. It is built from two
// independently seeded xxhash64 sums rather than a single 64-bit sum,
// since xxhash/v2 exposes no native 128-bit variant.
func Digest128(data []byte) string {
	lo := xxhash.Sum64(data)

	h := xxhash.NewWithSeed(0x9e3779b97f4a7c15)
	h.Write(data)
	hi := h.Sum64()

	buf := make([]byte, 16)
	putUint64(buf[0:8], lo)
	putUint64(buf[8:16], hi)
	return hex.EncodeToString(buf)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}
