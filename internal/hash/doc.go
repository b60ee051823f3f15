// Package hash provides checksums for on-disk metadata and the stable key hash
// used for trie descent.
package hash
