// Package storagekey derives the raw storage addresses of runtime storage
// items, the way a Substrate runtime lays out its trie.
package storagekey

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/OneOfOne/xxhash"
	"golang.org/x/crypto/blake2b"
)

// Hasher hashes a storage map key.
type Hasher func(data []byte) []byte

// Twox64 returns the 8-byte xxhash64 (seed 0) of data, little-endian.
func Twox64(data []byte) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, xxhash.Checksum64S(data, 0))
	return out
}

// Twox128 returns xxhash64 of data with seed 0 followed by xxhash64 with
// seed 1, both little-endian.
func Twox128(data []byte) []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out[:8], xxhash.Checksum64S(data, 0))
	binary.LittleEndian.PutUint64(out[8:], xxhash.Checksum64S(data, 1))
	return out
}

// Twox64Concat returns Twox64(data) followed by data itself.
func Twox64Concat(data []byte) []byte {
	return append(Twox64(data), data...)
}

// Blake2_128Concat returns the 16-byte blake2b digest of data followed by data.
func Blake2_128Concat(data []byte) []byte {
	h, err := blake2b.New(16, nil)
	if err != nil {
		// Only fails for sizes outside 1..64 or oversized keys.
		panic(err)
	}
	h.Write(data)
	return append(h.Sum(nil), data...)
}

// Identity returns data unchanged.
func Identity(data []byte) []byte {
	return append([]byte(nil), data...)
}

// Prefix returns Twox128(module) ‖ Twox128(item), the address of a plain
// storage value and the common prefix of every entry of a storage map.
func Prefix(module, item string) []byte {
	return append(Twox128([]byte(module)), Twox128([]byte(item))...)
}

// Derive returns Prefix(module, item) as lowercase hex without a 0x prefix.
func Derive(module, item string) string {
	return hex.EncodeToString(Prefix(module, item))
}

// MapKey returns the address of the entry of a storage map under key.
func MapKey(module, item string, hasher Hasher, key []byte) []byte {
	return append(Prefix(module, item), hasher(key)...)
}
