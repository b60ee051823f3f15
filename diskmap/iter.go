package diskmap

import (
	"iter"
	"math"

	"github.com/hupe1980/burrow/codec"
	"github.com/hupe1980/burrow/layout"
)

// scanBatch is the number of ordered entries read per bucket lock hold.
const scanBatch = 256

// Bound limits a key range. The zero Bound is unbounded.
type Bound struct {
	key       any
	set, incl bool
}

// Incl returns a bound that includes k.
func Incl(k any) Bound { return Bound{key: k, set: true, incl: true} }

// Excl returns a bound that excludes k.
func Excl(k any) Bound { return Bound{key: k, set: true} }

// Unbounded reports whether b places no limit.
func (b Bound) Unbounded() bool { return !b.set }

// below reports whether k lies before the lower bound b.
func (b Bound) below(k any) bool {
	if !b.set {
		return false
	}
	c := codec.Order(k, b.key)
	return c < 0 || (c == 0 && !b.incl)
}

// above reports whether k lies past the upper bound b.
func (b Bound) above(k any) bool {
	if !b.set {
		return false
	}
	c := codec.Order(k, b.key)
	return c > 0 || (c == 0 && !b.incl)
}

func checkBound(b Bound) error {
	if b.set && !codec.Ordered(b.key) {
		return codec.ErrNotComparable
	}
	return nil
}

// withBucketAt runs fn under the read lock of the bucket at pos.
func (m *Map) withBucketAt(pos int64, fn func(b *bucket) error) error {
	sl := m.lock.Structure()
	sl.RLock()
	defer sl.RUnlock()

	bl := m.lock.Bucket(pos)
	bl.RLock()
	defer bl.RUnlock()
	return m.runBucket(pos, fn)
}

// snapshot returns every entry of the bucket at pos.
func (m *Map) snapshot(pos int64) ([]*skipEntry, error) {
	var out []*skipEntry
	err := m.withBucketAt(pos, func(b *bucket) error {
		if b.leaf.Kind == layout.KindSkipList {
			var err error
			out, err = b.skip().scan(nil, math.MaxInt)
			return err
		}
		recs, err := b.records()
		if err != nil {
			return err
		}
		out = make([]*skipEntry, len(recs))
		for i, r := range recs {
			k, err := m.ser.Unmarshal(r.Key)
			if err != nil {
				return err
			}
			out[i] = &skipEntry{
				node: &layout.SkipNode{Self: r.Self, Hash: r.Hash, ValuePos: r.ValuePos, Key: r.Key},
				key:  k,
			}
		}
		return nil
	})
	return out, err
}

func (m *Map) entry(e *skipEntry) (Entry, error) {
	v, err := m.readValue(e.node.ValuePos)
	if err != nil {
		return Entry{Key: e.key}, err
	}
	return Entry{Key: e.key, Value: v}, nil
}

// All iterates over every entry. Ordered maps yield keys in ascending order;
// hash maps in bucket order. Each bucket is read under its lock, but entries
// written concurrently with iteration may or may not be observed.
//
// A value that cannot be decoded is reported with its key and iteration
// continues if the consumer does. Structural errors end the iteration.
func (m *Map) All() iter.Seq2[Entry, error] {
	if m.IsOrdered() {
		return m.Ascend()
	}
	return func(yield func(Entry, error) bool) {
		m.walkBuckets(func(pos int64) bool {
			entries, err := m.snapshot(pos)
			if err != nil {
				return yield(Entry{}, err)
			}
			for _, e := range entries {
				if !yield(m.entry(e)) {
					return false
				}
			}
			return true
		}, func(err error) bool {
			yield(Entry{}, err)
			return false
		})
	}
}

// Keys iterates over every key without reading values.
func (m *Map) Keys() iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		if m.IsOrdered() {
			m.scanOrdered(Bound{}, Bound{}, func(e *skipEntry) bool {
				return yield(e.key, nil)
			}, func(err error) { yield(nil, err) })
			return
		}
		m.walkBuckets(func(pos int64) bool {
			entries, err := m.snapshot(pos)
			if err != nil {
				return yield(nil, err)
			}
			for _, e := range entries {
				if !yield(e.key, nil) {
					return false
				}
			}
			return true
		}, func(err error) bool {
			yield(nil, err)
			return false
		})
	}
}

// Ascend iterates over every entry in ascending key order. On a hash map
// the entries are collected and sorted first.
func (m *Map) Ascend() iter.Seq2[Entry, error] {
	return m.Range(Bound{}, Bound{})
}

// Range iterates, in ascending key order, over the entries between lo and
// hi. Ordered maps stream from the skip list; hash maps scan every bucket
// and sort the matches.
func (m *Map) Range(lo, hi Bound) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, b := range []Bound{lo, hi} {
			if err := checkBound(b); err != nil {
				yield(Entry{}, err)
				return
			}
		}
		emit := func(e *skipEntry) bool {
			return yield(m.entry(e))
		}
		if m.IsOrdered() {
			m.scanOrdered(lo, hi, emit, func(err error) { yield(Entry{}, err) })
			return
		}

		var (
			matches []*skipEntry
			failed  error
		)
		m.walkBuckets(func(pos int64) bool {
			entries, err := m.snapshot(pos)
			if err != nil {
				failed = err
				return false
			}
			for _, e := range entries {
				if !lo.below(e.key) && !hi.above(e.key) {
					matches = append(matches, e)
				}
			}
			return true
		}, func(err error) bool {
			failed = err
			return false
		})
		if failed != nil {
			yield(Entry{}, failed)
			return
		}
		sortEntries(matches)
		for _, e := range matches {
			if !emit(e) {
				return
			}
		}
	}
}

// scanOrdered streams the single skip list of an ordered map in batches,
// re-seeking after the last key of each batch.
func (m *Map) scanOrdered(lo, hi Bound, fn func(e *skipEntry) bool, onErr func(error)) {
	cmp := func(e *skipEntry) int {
		if lo.below(e.key) {
			return 1
		}
		return -1
	}
	if lo.Unbounded() {
		cmp = nil
	}
	for {
		var batch []*skipEntry
		if err := m.withBucket(0, false, false, func(b *bucket) error {
			var err error
			batch, err = b.skip().scan(cmp, scanBatch)
			return err
		}); err != nil {
			onErr(err)
			return
		}
		for _, e := range batch {
			if hi.above(e.key) || !fn(e) {
				return
			}
		}
		if len(batch) < scanBatch {
			return
		}
		last := batch[len(batch)-1]
		cmp = func(e *skipEntry) int {
			if compareKey(last.key, last.node.Key, e.key, e.node.Key) >= 0 {
				return 1
			}
			return -1
		}
	}
}

// Stats describes the shape of a map.
type Stats struct {
	Nodes       int
	Buckets     int
	RecordLists int
	SkipLists   int
	Entries     int64
	// MaxBucket is the population of the fullest bucket.
	MaxBucket int64
}

// Stats walks the structure and reports its shape.
func (m *Map) Stats() (Stats, error) {
	var (
		s   Stats
		err error
	)
	visit := func(pos int64) bool {
		err = m.withBucketAt(pos, func(b *bucket) error {
			s.Buckets++
			if b.leaf.Kind == layout.KindSkipList {
				s.SkipLists++
			} else {
				s.RecordLists++
			}
			s.Entries += b.leaf.Population
			s.MaxBucket = max(s.MaxBucket, b.leaf.Population)
			return nil
		})
		return err == nil
	}
	onErr := func(e error) bool {
		err = e
		return false
	}

	sl := m.lock.Structure()
	sl.RLock()
	root := m.header.Root
	sl.RUnlock()
	if m.params.depth == 0 {
		visit(root)
		return s, err
	}
	m.countNodes(root, 0, &s, visit, onErr)
	return s, err
}

func (m *Map) countNodes(pos int64, level int, s *Stats, visit func(int64) bool, onErr func(error) bool) bool {
	sl := m.lock.Structure()
	sl.RLock()
	node, err := layout.ReadBitMapNode(m.st, pos)
	sl.RUnlock()
	if err != nil {
		return onErr(err)
	}
	s.Nodes++
	occ := node.Occupied()
	for slot, ok := occ.NextSet(0); ok; slot, ok = occ.NextSet(slot + 1) {
		child := node.Children[slot]
		var more bool
		if level == m.params.depth-1 {
			more = visit(child)
		} else {
			more = m.countNodes(child, level+1, s, visit, onErr)
		}
		if !more {
			return false
		}
	}
	return true
}
