// Package builder hands out the named maps, sets and counters of one store.
//
// A Builder keeps a catalog (name to header position) in the store itself,
// rooted at store.Root(), next to the persisted type-id table of its codec
// registry. Every structure obtained from one Builder shares the store and
// the serializer. The Builder also owns a bounded pool of temporary maps for
// transient work; a borrowed map is cleared before it re-enters the pool.
package builder
