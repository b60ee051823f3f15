// Package diskmap implements the hybrid trie and skip-list map persisted in
// a store.Store.
//
// A key is encoded with the codec, hashed (64-bit FNV-1a) and routed through
// a fixed number of BitMapNode levels, one decimal digit of the hash per
// level. The last level points at a leaf bucket. A bucket starts as a plain
// record list and converts once, when its population passes the threshold,
// into a skip list ordered by the keys' natural ordering. Ordered maps skip
// the trie entirely: their root is a single skip-list bucket.
//
//	loadFactor  depth  threshold
//	1           1      8
//	2           2      8
//	3           3      8
//	4           4      8
//	5           4      16
//	6           5      16
//	7           5      32
//	8           6      32
//	9           6      64
//	10          7      64
//	ordered     0      0
//
// Nodes are addressed by position only; nothing but the header is kept in
// memory. Removal unlinks entries without reclaiming their space.
//
// Concurrency: every operation holds the structure lock shared and the lock
// of its bucket stripe. Creating trie nodes and Clear take the structure
// lock exclusively. A Locking strategy chosen at construction decides
// whether these locks exist at all.
package diskmap
