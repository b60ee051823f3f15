// Package layout defines the fixed on-disk records of a DiskMap.
//
// Every record starts with (or contains) its own volume position. Reads
// verify that the stored position equals the position being read, which
// turns stray pointers and overwritten nodes into a CorruptionError instead
// of silently wrong data. Positions are 8-byte little-endian offsets and 0
// means absent.
//
//	Header       64 bytes   self, root, count, first free, load factor, kind, CRC32C
//	BitMapNode   11 x 8     self + 10 child positions
//	Leaf         152 bytes  self, kind, level, population, 16 forward pointers
//	Record       40 + key   self, next, hash, value position, key length, kind
//	SkipNode     32 + 8*level + key
package layout
