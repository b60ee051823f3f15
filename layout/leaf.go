package layout

import (
	"fmt"

	"github.com/hupe1980/burrow/store"
)

// MaxLevel is the maximum skip-list height.
const MaxLevel = 16

// LeafSize is the persisted size of a Leaf.
const LeafSize = 24 + MaxLevel*PosSize

// Leaf is the bucket head a trie slot points at. As a record list only
// Forward[0] is used and points at the first Record. After conversion to a
// skip list, Forward[i] points at the first SkipNode of level i.
//
//	0:8    self
//	8      kind
//	9      level (skip list height, 0 for record lists)
//	10:16  reserved
//	16:24  population
//	24:152 forward pointers
type Leaf struct {
	Self       int64
	Kind       Kind
	Level      int
	Population int64
	Forward    [MaxLevel]int64
}

// NewLeaf allocates an empty leaf of the given kind.
func NewLeaf(st store.Store, kind Kind) (*Leaf, error) {
	l := &Leaf{Kind: kind}
	pos, err := allocWrite(st, l.Encode())
	if err != nil {
		return nil, err
	}
	l.Self = pos
	return l, nil
}

// ReadLeaf reads and verifies the leaf at pos.
func ReadLeaf(st store.Store, pos int64) (*Leaf, error) {
	b, err := st.Read(pos, LeafSize)
	if err != nil {
		return nil, err
	}
	return DecodeLeaf(b, pos)
}

// DecodeLeaf verifies b as the leaf stored at pos.
func DecodeLeaf(b []byte, pos int64) (*Leaf, error) {
	if err := checkSelf("leaf", b, pos); err != nil {
		return nil, err
	}
	l := &Leaf{
		Self:       pos,
		Kind:       Kind(b[8]),
		Level:      int(b[9]),
		Population: getPos(b[16:24]),
	}
	if l.Kind != KindRecordList && l.Kind != KindSkipList {
		return nil, &CorruptionError{Node: "leaf", Pos: pos, Stored: pos, Reason: fmt.Sprintf("unexpected %s", l.Kind)}
	}
	if l.Level > MaxLevel {
		return nil, &CorruptionError{Node: "leaf", Pos: pos, Stored: pos, Reason: fmt.Sprintf("level %d", l.Level)}
	}
	for i := range l.Forward {
		l.Forward[i] = getPos(b[24+i*PosSize:])
	}
	return l, nil
}

// Encode returns the persisted form of l.
func (l *Leaf) Encode() []byte {
	b := make([]byte, LeafSize)
	putPos(b, l.Self)
	b[8] = byte(l.Kind)
	b[9] = byte(l.Level) //nolint:gosec // G115: Level <= MaxLevel
	putPos(b[16:24], l.Population)
	for i, f := range l.Forward {
		putPos(b[24+i*PosSize:], f)
	}
	return b
}

// Write persists the whole leaf.
func (l *Leaf) Write(st store.Store) error {
	_, err := st.Write(l.Encode(), l.Self)
	return err
}

// SetForward persists one forward pointer.
func (l *Leaf) SetForward(st store.Store, level int, next int64) error {
	if err := writePosAt(st, l.Self+24+int64(level*PosSize), next); err != nil {
		return err
	}
	l.Forward[level] = next
	return nil
}

// SetPopulation persists the population.
func (l *Leaf) SetPopulation(st store.Store, n int64) error {
	if err := writePosAt(st, l.Self+16, n); err != nil {
		return err
	}
	l.Population = n
	return nil
}

// SetLevel persists the skip-list height.
func (l *Leaf) SetLevel(st store.Store, level int) error {
	if level < 0 || level > MaxLevel {
		return fmt.Errorf("layout: leaf level %d out of range", level)
	}
	if _, err := st.Write([]byte{byte(level)}, l.Self+9); err != nil { //nolint:gosec // G115: checked above
		return err
	}
	l.Level = level
	return nil
}
