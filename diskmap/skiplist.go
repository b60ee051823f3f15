package diskmap

import (
	"bytes"
	"math/rand/v2"
	"slices"

	"github.com/hupe1980/burrow/codec"
	"github.com/hupe1980/burrow/layout"
)

// skipEntry is a node together with its decoded key.
type skipEntry struct {
	node *layout.SkipNode
	key  any
}

// compareKey orders by natural key order. Keys that compare equal without
// being identical, such as int32(1) and int64(1), fall back to their
// encoding so the order stays total.
func compareKey(aVal any, aEnc []byte, bVal any, bEnc []byte) int {
	if c := codec.Order(aVal, bVal); c != 0 {
		return c
	}
	return bytes.Compare(aEnc, bEnc)
}

func sortEntries(entries []*skipEntry) {
	slices.SortFunc(entries, func(a, b *skipEntry) int {
		return compareKey(a.key, a.node.Key, b.key, b.node.Key)
	})
}

func randomLevel() int {
	level := 1
	for level < layout.MaxLevel && rand.IntN(4) == 0 { //nolint:gosec // G404: level distribution only
		level++
	}
	return level
}

// skipList operates on a skip-list bucket. A nil *skipEntry stands for the
// leaf head.
type skipList struct {
	b *bucket
}

func (b *bucket) skip() skipList { return skipList{b: b} }

func (s skipList) read(pos int64) (*skipEntry, error) {
	n, err := layout.ReadSkipNode(s.b.m.st, pos)
	if err != nil {
		return nil, err
	}
	k, err := s.b.m.ser.Unmarshal(n.Key)
	if err != nil {
		return nil, err
	}
	return &skipEntry{node: n, key: k}, nil
}

func (s skipList) forward(e *skipEntry, level int) int64 {
	if e == nil {
		return s.b.leaf.Forward[level]
	}
	return e.node.Forward[level]
}

func (s skipList) setForward(e *skipEntry, level int, next int64) error {
	if e == nil {
		return s.b.leaf.SetForward(s.b.m.st, level, next)
	}
	return e.node.SetForward(s.b.m.st, level, next)
}

// seek finds, for each level, the last entry ordered before the target.
// The target is described by cmp, which compares it against an entry. It
// returns the first entry at or after the target.
func (s skipList) seek(cmp func(e *skipEntry) int) ([layout.MaxLevel]*skipEntry, *skipEntry, error) {
	var update [layout.MaxLevel]*skipEntry
	var x, next *skipEntry
	limit := (s.b.leaf.Population + 1) * int64(layout.MaxLevel)
	steps := int64(0)
	for level := s.b.leaf.Level - 1; level >= 0; level-- {
		next = nil
		for pos := s.forward(x, level); pos != 0; pos = s.forward(x, level) {
			if steps++; steps > limit {
				return update, nil, s.b.chainError()
			}
			e, err := s.read(pos)
			if err != nil {
				return update, nil, err
			}
			if cmp(e) <= 0 {
				next = e
				break
			}
			x = e
		}
		update[level] = x
	}
	return update, next, nil
}

func (s skipList) seekKey(k key) ([layout.MaxLevel]*skipEntry, *skipEntry, error) {
	return s.seek(func(e *skipEntry) int {
		return compareKey(k.val, k.enc, e.key, e.node.Key)
	})
}

func (s skipList) find(k key) (*skipEntry, error) {
	_, e, err := s.seekKey(k)
	if err != nil || e == nil || !bytes.Equal(e.node.Key, k.enc) {
		return nil, err
	}
	return e, nil
}

func (s skipList) upsert(k key, valuePos int64, replace bool) (int64, bool, error) {
	update, e, err := s.seekKey(k)
	if err != nil {
		return 0, false, err
	}
	st := s.b.m.st
	if e != nil && bytes.Equal(e.node.Key, k.enc) {
		old := e.node.ValuePos
		if replace {
			if err := e.node.SetValuePos(st, valuePos); err != nil {
				return 0, false, err
			}
		}
		return old, true, nil
	}

	level := randomLevel()
	fwd := make([]int64, level)
	for l := range level {
		if l < s.b.leaf.Level {
			fwd[l] = s.forward(update[l], l)
		}
	}
	n, err := layout.NewSkipNode(st, k.hash, k.enc, valuePos, fwd)
	if err != nil {
		return 0, false, err
	}
	for l := range level {
		var prev *skipEntry
		if l < s.b.leaf.Level {
			prev = update[l]
		}
		if err := s.setForward(prev, l, n.Self); err != nil {
			return 0, false, err
		}
	}
	if level > s.b.leaf.Level {
		if err := s.b.leaf.SetLevel(st, level); err != nil {
			return 0, false, err
		}
	}
	if err := s.b.leaf.SetPopulation(st, s.b.leaf.Population+1); err != nil {
		return 0, false, err
	}
	s.b.m.count.Add(1)
	return 0, false, nil
}

func (s skipList) remove(k key) (int64, bool, error) {
	update, e, err := s.seekKey(k)
	if err != nil || e == nil || !bytes.Equal(e.node.Key, k.enc) {
		return 0, false, err
	}
	st := s.b.m.st
	for l := range e.node.Level() {
		if s.forward(update[l], l) != e.node.Self {
			continue
		}
		if err := s.setForward(update[l], l, e.node.Forward[l]); err != nil {
			return 0, false, err
		}
	}
	level := s.b.leaf.Level
	for level > 0 && s.b.leaf.Forward[level-1] == 0 {
		level--
	}
	if level != s.b.leaf.Level {
		if err := s.b.leaf.SetLevel(st, level); err != nil {
			return 0, false, err
		}
	}
	if err := s.b.leaf.SetPopulation(st, s.b.leaf.Population-1); err != nil {
		return 0, false, err
	}
	s.b.m.count.Add(-1)
	return e.node.ValuePos, true, nil
}

// scan reads up to limit entries at or after the position described by
// cmp, in key order.
func (s skipList) scan(cmp func(e *skipEntry) int, limit int) ([]*skipEntry, error) {
	var (
		e   *skipEntry
		err error
	)
	if cmp == nil {
		if pos := s.b.leaf.Forward[0]; pos != 0 {
			if e, err = s.read(pos); err != nil {
				return nil, err
			}
		}
	} else if _, e, err = s.seek(cmp); err != nil {
		return nil, err
	}

	out := make([]*skipEntry, 0, max(0, min(limit, int(s.b.leaf.Population))))
	for e != nil && len(out) < limit {
		if int64(len(out)) > s.b.leaf.Population {
			return nil, s.b.chainError()
		}
		out = append(out, e)
		if e.node.Forward[0] == 0 {
			break
		}
		if e, err = s.read(e.node.Forward[0]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
