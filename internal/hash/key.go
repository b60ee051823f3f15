package hash

import "hash/fnv"

// Key returns the 64-bit FNV-1a hash of an encoded key.
//
// The value is persisted implicitly through the trie shape, so it must stay
// stable across processes and releases. Seeded hashes (maphash) cannot be used.
func Key(encoded []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(encoded)
	return h.Sum64()
}
