package layout

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/burrow/internal/conv"
	"github.com/hupe1980/burrow/store"
)

const recordFixed = 40

// Record is an entry of a record-list leaf. The value lives in a separate
// length-prefixed payload so an update is one 8-byte pointer swap.
//
//	0:8   self
//	8:16  next record
//	16:24 key hash
//	24:32 value payload position (0 for set members)
//	32:36 key length
//	36    kind
//	37:40 reserved
//	40:   key bytes
type Record struct {
	Self     int64
	Next     int64
	Hash     uint64
	ValuePos int64
	Key      []byte
}

// RecordSize returns the allocation size for a key of n bytes.
func RecordSize(n int) int { return recordFixed + n }

// NewRecord allocates and persists a record.
func NewRecord(st store.Store, hash uint64, key []byte, valuePos, next int64) (*Record, error) {
	r := &Record{Next: next, Hash: hash, ValuePos: valuePos, Key: key}
	b, err := r.encode()
	if err != nil {
		return nil, err
	}
	if r.Self, err = allocWrite(st, b); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Record) encode() ([]byte, error) {
	keyLen, err := conv.IntToUint32(len(r.Key))
	if err != nil {
		return nil, err
	}
	b := make([]byte, RecordSize(len(r.Key)))
	putPos(b, r.Self)
	putPos(b[8:16], r.Next)
	binary.LittleEndian.PutUint64(b[16:24], r.Hash)
	putPos(b[24:32], r.ValuePos)
	binary.LittleEndian.PutUint32(b[32:36], keyLen)
	b[36] = byte(KindRecord)
	copy(b[recordFixed:], r.Key)
	return b, nil
}

// ReadRecord reads and verifies the record at pos.
func ReadRecord(st store.Store, pos int64) (*Record, error) {
	b, err := st.Read(pos, recordFixed)
	if err != nil {
		return nil, err
	}
	if err := checkSelf("record", b, pos); err != nil {
		return nil, err
	}
	if Kind(b[36]) != KindRecord {
		return nil, &CorruptionError{Node: "record", Pos: pos, Stored: pos, Reason: fmt.Sprintf("unexpected %s", Kind(b[36]))}
	}
	keyLen, err := conv.Uint32ToInt(binary.LittleEndian.Uint32(b[32:36]))
	if err != nil {
		return nil, err
	}
	key, err := st.Read(pos+recordFixed, keyLen)
	if err != nil {
		return nil, err
	}
	return &Record{
		Self:     pos,
		Next:     getPos(b[8:16]),
		Hash:     binary.LittleEndian.Uint64(b[16:24]),
		ValuePos: getPos(b[24:32]),
		Key:      key,
	}, nil
}

// SetNext persists the next pointer.
func (r *Record) SetNext(st store.Store, next int64) error {
	if err := writePosAt(st, r.Self+8, next); err != nil {
		return err
	}
	r.Next = next
	return nil
}

// SetValuePos persists the value pointer.
func (r *Record) SetValuePos(st store.Store, valuePos int64) error {
	if err := writePosAt(st, r.Self+24, valuePos); err != nil {
		return err
	}
	r.ValuePos = valuePos
	return nil
}
