package diskmap

import (
	"fmt"

	"github.com/hupe1980/burrow/layout"
)

// withBucket locates the bucket of hash and runs fn under its lock. With
// create set, missing trie nodes and the bucket are allocated first. fn is
// not called when the bucket does not exist.
func (m *Map) withBucket(hash uint64, create, write bool, fn func(b *bucket) error) error {
	for {
		sl := m.lock.Structure()
		sl.RLock()

		pos, err := m.findBucket(hash)
		if err != nil {
			sl.RUnlock()
			return err
		}
		if pos == 0 {
			sl.RUnlock()
			if !create {
				return nil
			}
			if err := m.createPath(hash); err != nil {
				return err
			}
			continue
		}

		bl := m.lock.Bucket(pos)
		if write {
			bl.Lock()
		} else {
			bl.RLock()
		}
		err = m.runBucket(pos, fn)
		if write {
			bl.Unlock()
		} else {
			bl.RUnlock()
		}
		sl.RUnlock()
		return err
	}
}

func (m *Map) runBucket(pos int64, fn func(b *bucket) error) error {
	leaf, err := layout.ReadLeaf(m.st, pos)
	if err != nil {
		return err
	}
	return fn(&bucket{m: m, leaf: leaf})
}

// findBucket descends the trie. It returns 0 when a node on the path is missing.
func (m *Map) findBucket(hash uint64) (int64, error) {
	pos := m.header.Root
	for level := range m.params.depth {
		node, err := layout.ReadBitMapNode(m.st, pos)
		if err != nil {
			return 0, err
		}
		pos = node.Children[slotAt(hash, level)]
		if pos == 0 {
			return 0, nil
		}
	}
	return pos, nil
}

// createPath allocates the missing nodes on the path of hash.
func (m *Map) createPath(hash uint64) error {
	sl := m.lock.Structure()
	sl.Lock()
	defer sl.Unlock()

	pos := m.header.Root
	for level := range m.params.depth {
		node, err := layout.ReadBitMapNode(m.st, pos)
		if err != nil {
			return err
		}
		slot := slotAt(hash, level)
		child := node.Children[slot]
		if child == 0 {
			if level == m.params.depth-1 {
				leaf, err := layout.NewLeaf(m.st, m.newBucketKind())
				if err != nil {
					return fmt.Errorf("diskmap: allocate bucket: %w", err)
				}
				child = leaf.Self
			} else {
				next, err := layout.NewBitMapNode(m.st)
				if err != nil {
					return fmt.Errorf("diskmap: allocate node: %w", err)
				}
				child = next.Self
			}
			if err := node.SetChild(m.st, slot, child); err != nil {
				return err
			}
		}
		pos = child
	}
	return nil
}

func (m *Map) newBucketKind() layout.Kind {
	if m.params.threshold == 0 {
		return layout.KindSkipList
	}
	return layout.KindRecordList
}

// walkBuckets visits every bucket position in slot order. A node that cannot
// be read is reported through onErr and its subtree skipped.
func (m *Map) walkBuckets(visit func(pos int64) bool, onErr func(error) bool) {
	sl := m.lock.Structure()
	sl.RLock()
	root := m.header.Root
	sl.RUnlock()

	if m.params.depth == 0 {
		visit(root)
		return
	}
	m.walkNode(root, 0, visit, onErr)
}

func (m *Map) walkNode(pos int64, level int, visit func(pos int64) bool, onErr func(error) bool) bool {
	sl := m.lock.Structure()
	sl.RLock()
	node, err := layout.ReadBitMapNode(m.st, pos)
	sl.RUnlock()
	if err != nil {
		return onErr(err)
	}
	occ := node.Occupied()
	for slot, ok := occ.NextSet(0); ok; slot, ok = occ.NextSet(slot + 1) {
		child := node.Children[slot]
		if level == m.params.depth-1 {
			if !visit(child) {
				return false
			}
			continue
		}
		if !m.walkNode(child, level+1, visit, onErr) {
			return false
		}
	}
	return true
}
