package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrBufferUnderflow is returned when fewer bytes remain than the next
	// value needs. It indicates a framing bug or a truncated record.
	ErrBufferUnderflow = errors.New("codec: buffer underflow")

	// ErrChecksum is returned when a position tag or checksum does not match.
	ErrChecksum = errors.New("codec: checksum mismatch")

	// ErrUnknownTag is returned for a tag byte without a decode path.
	ErrUnknownTag = errors.New("codec: unknown tag")

	// ErrUnregisteredType is returned when a type reference cannot be resolved.
	ErrUnregisteredType = errors.New("codec: unregistered type")

	// ErrUnsupportedType is returned when a Go value has no encoding.
	ErrUnsupportedType = errors.New("codec: unsupported type")

	// ErrNotComparable is returned by Compare for values without a natural order.
	ErrNotComparable = errors.New("codec: values are not comparable")

	// ErrDuplicateType is returned when a type name is registered twice.
	ErrDuplicateType = errors.New("codec: duplicate type")
)

// SerializationError reports a value read at the wrong position or with a
// bad checksum. It matches ErrChecksum.
type SerializationError struct {
	Pos      int64
	Expected uint64
	Actual   uint64
	Reason   string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("codec: %s at position %d (expected %#x, got %#x)", e.Reason, e.Pos, e.Expected, e.Actual)
}

func (e *SerializationError) Unwrap() error {
	return ErrChecksum
}
