package diskmap

import (
	"bytes"
	"log/slog"

	"github.com/hupe1980/burrow/layout"
)

// bucket wraps a leaf read under its lock.
type bucket struct {
	m    *Map
	leaf *layout.Leaf
}

func (b *bucket) lookup(k key) (int64, bool, error) {
	if b.leaf.Kind == layout.KindSkipList {
		w := b.skip()
		n, err := w.find(k)
		if err != nil || n == nil {
			return 0, false, err
		}
		return n.node.ValuePos, true, nil
	}
	r, _, err := b.findRecord(k)
	if err != nil || r == nil {
		return 0, false, err
	}
	return r.ValuePos, true, nil
}

// upsert links k with valuePos. An existing entry gets its value pointer
// swapped when replace is set. It returns the previous value position.
func (b *bucket) upsert(k key, valuePos int64, replace bool) (int64, bool, error) {
	if b.leaf.Kind == layout.KindSkipList {
		return b.skip().upsert(k, valuePos, replace)
	}

	r, _, err := b.findRecord(k)
	if err != nil {
		return 0, false, err
	}
	if r != nil {
		old := r.ValuePos
		if replace {
			if err := r.SetValuePos(b.m.st, valuePos); err != nil {
				return 0, false, err
			}
		}
		return old, true, nil
	}

	rec, err := layout.NewRecord(b.m.st, k.hash, k.enc, valuePos, b.leaf.Forward[0])
	if err != nil {
		return 0, false, err
	}
	if err := b.leaf.SetForward(b.m.st, 0, rec.Self); err != nil {
		return 0, false, err
	}
	if err := b.leaf.SetPopulation(b.m.st, b.leaf.Population+1); err != nil {
		return 0, false, err
	}
	b.m.count.Add(1)

	if b.leaf.Population > b.m.params.threshold {
		if err := b.convert(); err != nil {
			return 0, false, err
		}
	}
	return 0, false, nil
}

func (b *bucket) remove(k key) (int64, bool, error) {
	if b.leaf.Kind == layout.KindSkipList {
		return b.skip().remove(k)
	}

	r, prev, err := b.findRecord(k)
	if err != nil || r == nil {
		return 0, false, err
	}
	if prev == nil {
		err = b.leaf.SetForward(b.m.st, 0, r.Next)
	} else {
		err = prev.SetNext(b.m.st, r.Next)
	}
	if err != nil {
		return 0, false, err
	}
	if err := b.leaf.SetPopulation(b.m.st, b.leaf.Population-1); err != nil {
		return 0, false, err
	}
	b.m.count.Add(-1)
	return r.ValuePos, true, nil
}

// findRecord walks the record list. A chain longer than the recorded
// population means a link was corrupted.
func (b *bucket) findRecord(k key) (*layout.Record, *layout.Record, error) {
	var prev *layout.Record
	steps := int64(0)
	for pos := b.leaf.Forward[0]; pos != 0; {
		if steps > b.leaf.Population {
			return nil, nil, b.chainError()
		}
		r, err := layout.ReadRecord(b.m.st, pos)
		if err != nil {
			return nil, nil, err
		}
		if r.Hash == k.hash && bytes.Equal(r.Key, k.enc) {
			return r, prev, nil
		}
		prev = r
		pos = r.Next
		steps++
	}
	return nil, nil, nil
}

func (b *bucket) chainError() error {
	return &layout.CorruptionError{Node: "leaf", Pos: b.leaf.Self, Stored: b.leaf.Self, Reason: "chain longer than population"}
}

// records returns the entries of a record-list bucket in list order.
func (b *bucket) records() ([]*layout.Record, error) {
	var out []*layout.Record
	for pos := b.leaf.Forward[0]; pos != 0; {
		if int64(len(out)) > b.leaf.Population {
			return nil, b.chainError()
		}
		r, err := layout.ReadRecord(b.m.st, pos)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
		pos = r.Next
	}
	return out, nil
}

// convert turns a record-list bucket into a skip list. The nodes are built
// first and published with a single leaf write.
func (b *bucket) convert() error {
	recs, err := b.records()
	if err != nil {
		return err
	}

	entries := make([]*skipEntry, len(recs))
	for i, r := range recs {
		val, err := b.m.ser.Unmarshal(r.Key)
		if err != nil {
			return err
		}
		entries[i] = &skipEntry{
			node: &layout.SkipNode{Hash: r.Hash, ValuePos: r.ValuePos, Key: r.Key},
			key:  val,
		}
	}
	sortEntries(entries)

	var next [layout.MaxLevel]int64
	top := 0
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		level := randomLevel()
		top = max(top, level)
		fwd := make([]int64, level)
		copy(fwd, next[:level])
		n, err := layout.NewSkipNode(b.m.st, e.node.Hash, e.node.Key, e.node.ValuePos, fwd)
		if err != nil {
			return err
		}
		for l := range level {
			next[l] = n.Self
		}
	}

	leaf := *b.leaf
	leaf.Kind = layout.KindSkipList
	leaf.Level = top
	leaf.Forward = next
	if err := leaf.Write(b.m.st); err != nil {
		return err
	}
	*b.leaf = leaf

	b.m.logger.Debug("bucket converted to skip list",
		slog.Int64("bucket", leaf.Self),
		slog.Int64("population", leaf.Population),
	)
	return nil
}
