package layout

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/burrow/store"
)

// PosSize is the width of a persisted position.
const PosSize = 8

// Kind tags the variable records so a stray pointer into the wrong record
// type is detected.
type Kind byte

const (
	KindRecordList Kind = iota + 1
	KindSkipList
	KindRecord
	KindSkipNode
)

func (k Kind) String() string {
	switch k {
	case KindRecordList:
		return "record-list"
	case KindSkipList:
		return "skip-list"
	case KindRecord:
		return "record"
	case KindSkipNode:
		return "skip-node"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// ErrCorrupt is matched by every CorruptionError.
var ErrCorrupt = errors.New("layout: corrupt node")

// CorruptionError reports a node whose persisted identity does not match
// the position it was read from.
type CorruptionError struct {
	Node   string
	Pos    int64
	Stored int64
	Reason string
}

func (e *CorruptionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("layout: corrupt %s at %d: %s", e.Node, e.Pos, e.Reason)
	}
	return fmt.Sprintf("layout: corrupt %s at %d: stored self position %d", e.Node, e.Pos, e.Stored)
}

func (e *CorruptionError) Unwrap() error { return ErrCorrupt }

func getPos(b []byte) int64 {
	return int64(binary.LittleEndian.Uint64(b)) //nolint:gosec // G115: verified against the volume extent by the caller
}

func putPos(b []byte, pos int64) {
	binary.LittleEndian.PutUint64(b, uint64(pos)) //nolint:gosec // G115: positions are non-negative
}

func checkSelf(node string, b []byte, pos int64) error {
	if stored := getPos(b); stored != pos {
		return &CorruptionError{Node: node, Pos: pos, Stored: stored}
	}
	return nil
}

// writePosAt overwrites a single 8-byte position field.
func writePosAt(st store.Store, pos int64, v int64) error {
	var b [PosSize]byte
	putPos(b[:], v)
	_, err := st.Write(b[:], pos)
	return err
}

func allocWrite(st store.Store, b []byte) (int64, error) {
	pos, err := st.Allocate(len(b))
	if err != nil {
		return 0, err
	}
	putPos(b, pos)
	if _, err := st.Write(b, pos); err != nil {
		return 0, err
	}
	return pos, nil
}
