package layout

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/burrow/internal/conv"
	"github.com/hupe1980/burrow/store"
)

const skipFixed = 32

// SkipNode is an entry of a skip-list leaf, ordered by key.
//
//	0:8    self
//	8:16   key hash
//	16:24  value payload position (0 for set members)
//	24:28  key length
//	28     kind
//	29     level
//	30:32  reserved
//	32:    level forward pointers, then key bytes
type SkipNode struct {
	Self     int64
	Hash     uint64
	ValuePos int64
	Forward  []int64
	Key      []byte
}

// SkipNodeSize returns the allocation size of a node.
func SkipNodeSize(level, keyLen int) int { return skipFixed + level*PosSize + keyLen }

// NewSkipNode allocates and persists a node with the given forward pointers.
func NewSkipNode(st store.Store, hash uint64, key []byte, valuePos int64, forward []int64) (*SkipNode, error) {
	if len(forward) < 1 || len(forward) > MaxLevel {
		return nil, fmt.Errorf("layout: skip node level %d out of range", len(forward))
	}
	n := &SkipNode{Hash: hash, ValuePos: valuePos, Forward: forward, Key: key}
	b, err := n.encode()
	if err != nil {
		return nil, err
	}
	if n.Self, err = allocWrite(st, b); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *SkipNode) encode() ([]byte, error) {
	keyLen, err := conv.IntToUint32(len(n.Key))
	if err != nil {
		return nil, err
	}
	level := len(n.Forward)
	b := make([]byte, SkipNodeSize(level, len(n.Key)))
	putPos(b, n.Self)
	binary.LittleEndian.PutUint64(b[8:16], n.Hash)
	putPos(b[16:24], n.ValuePos)
	binary.LittleEndian.PutUint32(b[24:28], keyLen)
	b[28] = byte(KindSkipNode)
	b[29] = byte(level) //nolint:gosec // G115: level <= MaxLevel
	for i, f := range n.Forward {
		putPos(b[skipFixed+i*PosSize:], f)
	}
	copy(b[skipFixed+level*PosSize:], n.Key)
	return b, nil
}

// ReadSkipNode reads and verifies the node at pos.
func ReadSkipNode(st store.Store, pos int64) (*SkipNode, error) {
	b, err := st.Read(pos, skipFixed)
	if err != nil {
		return nil, err
	}
	if err := checkSelf("skip node", b, pos); err != nil {
		return nil, err
	}
	if Kind(b[28]) != KindSkipNode {
		return nil, &CorruptionError{Node: "skip node", Pos: pos, Stored: pos, Reason: fmt.Sprintf("unexpected %s", Kind(b[28]))}
	}
	level := int(b[29])
	if level < 1 || level > MaxLevel {
		return nil, &CorruptionError{Node: "skip node", Pos: pos, Stored: pos, Reason: fmt.Sprintf("level %d", level)}
	}
	keyLen, err := conv.Uint32ToInt(binary.LittleEndian.Uint32(b[24:28]))
	if err != nil {
		return nil, err
	}
	rest, err := st.Read(pos+skipFixed, level*PosSize+keyLen)
	if err != nil {
		return nil, err
	}
	n := &SkipNode{
		Self:     pos,
		Hash:     binary.LittleEndian.Uint64(b[8:16]),
		ValuePos: getPos(b[16:24]),
		Forward:  make([]int64, level),
		Key:      rest[level*PosSize:],
	}
	for i := range n.Forward {
		n.Forward[i] = getPos(rest[i*PosSize:])
	}
	return n, nil
}

// Level returns the node height.
func (n *SkipNode) Level() int { return len(n.Forward) }

// SetForward persists one forward pointer.
func (n *SkipNode) SetForward(st store.Store, level int, next int64) error {
	if err := writePosAt(st, n.Self+skipFixed+int64(level*PosSize), next); err != nil {
		return err
	}
	n.Forward[level] = next
	return nil
}

// SetValuePos persists the value pointer.
func (n *SkipNode) SetValuePos(st store.Store, valuePos int64) error {
	if err := writePosAt(st, n.Self+16, valuePos); err != nil {
		return err
	}
	n.ValuePos = valuePos
	return nil
}
