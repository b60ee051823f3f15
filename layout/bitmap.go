package layout

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/burrow/store"
)

// BitMapWidth is the fan-out of a trie node.
const BitMapWidth = 10

// BitMapNodeSize is the persisted size: self plus BitMapWidth children.
const BitMapNodeSize = (1 + BitMapWidth) * PosSize

// BitMapNode is one trie level. Children point at further BitMapNodes or,
// at the configured depth, at Leafs.
type BitMapNode struct {
	Self     int64
	Children [BitMapWidth]int64
}

// NewBitMapNode allocates an empty node.
func NewBitMapNode(st store.Store) (*BitMapNode, error) {
	n := &BitMapNode{}
	b := make([]byte, BitMapNodeSize)
	pos, err := allocWrite(st, b)
	if err != nil {
		return nil, err
	}
	n.Self = pos
	return n, nil
}

// ReadBitMapNode reads and verifies the node at pos.
func ReadBitMapNode(st store.Store, pos int64) (*BitMapNode, error) {
	b, err := st.Read(pos, BitMapNodeSize)
	if err != nil {
		return nil, err
	}
	return DecodeBitMapNode(b, pos)
}

// DecodeBitMapNode verifies b as the node stored at pos.
func DecodeBitMapNode(b []byte, pos int64) (*BitMapNode, error) {
	if err := checkSelf("bitmap node", b, pos); err != nil {
		return nil, err
	}
	n := &BitMapNode{Self: pos}
	for i := range n.Children {
		n.Children[i] = getPos(b[(i+1)*PosSize:])
	}
	return n, nil
}

// Encode returns the persisted form of n.
func (n *BitMapNode) Encode() []byte {
	b := make([]byte, BitMapNodeSize)
	putPos(b, n.Self)
	for i, c := range n.Children {
		putPos(b[(i+1)*PosSize:], c)
	}
	return b
}

// Occupied returns the set of slots holding a child.
func (n *BitMapNode) Occupied() *bitset.BitSet {
	bs := bitset.New(BitMapWidth)
	for i, c := range n.Children {
		if c != 0 {
			bs.Set(uint(i)) //nolint:gosec // G115: i < BitMapWidth
		}
	}
	return bs
}

// SetChild persists a single child slot.
func (n *BitMapNode) SetChild(st store.Store, slot int, child int64) error {
	if err := writePosAt(st, n.Self+int64((slot+1)*PosSize), child); err != nil {
		return err
	}
	n.Children[slot] = child
	return nil
}
