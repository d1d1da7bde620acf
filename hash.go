// Deterministic key hashing for the extendible hash index.
//
// A directory slot is chosen by reducing a key's hash modulo 2^D. For the
// split/rehash invariants in exthash.go to survive a save/load round trip,
// the hash must be identical across process runs — Go's map hash is seeded
// randomly per process and cannot be used here. Three fixed-seed algorithms
// are offered, selectable via Config.HashAlgorithm and persisted in the
// index snapshot so a reopened table keeps hashing the same way.
package strata

import (
	"hash/fnv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// Hash algorithm identifiers, persisted in extendible-hash snapshots.
const (
	AlgXXHash3 = 1 // default, fastest
	AlgFNV1a   = 2 // no external dependencies
	AlgBlake2b = 3 // best bit distribution
)

// hashKey reduces a key's canonical byte encoding to a 64-bit hash using
// the given algorithm. Unknown algorithms fall back to xxh3.
func hashKey(keyBytes []byte, alg int) uint64 {
	switch alg {
	case AlgFNV1a:
		h := fnv.New64a()
		h.Write(keyBytes)
		return h.Sum64()
	case AlgBlake2b:
		h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
		h.Write(keyBytes)
		sum := h.Sum(nil)
		var v uint64
		for _, b := range sum {
			v = v<<8 | uint64(b)
		}
		return v
	case AlgXXHash3:
		fallthrough
	default:
		return xxh3.Hash(keyBytes)
	}
}

// checksum64 computes the xxh3 checksum used to validate snapshot blobs
// in persistence.go. It reuses the same dependency hashKey uses for the
// extendible hash index's default algorithm — one hashing library covers
// both concerns.
func checksum64(data []byte) uint64 {
	return xxh3.Hash(data)
}
