package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Buffer is an append-only byte buffer with an independent read cursor.
// It is not safe for concurrent use.
type Buffer struct {
	b   []byte
	off int
}

// NewBuffer returns a Buffer reading from (and appending to) b.
func NewBuffer(b []byte) *Buffer {
	return &Buffer{b: b}
}

// Bytes returns the whole buffer, including bytes already read.
func (b *Buffer) Bytes() []byte { return b.b }

// Len returns the number of unread bytes.
func (b *Buffer) Len() int { return len(b.b) - b.off }

// Offset returns the read cursor.
func (b *Buffer) Offset() int { return b.off }

// Reset empties the buffer and rewinds the cursor, keeping capacity.
func (b *Buffer) Reset() {
	b.b = b.b[:0]
	b.off = 0
}

func (b *Buffer) PutByte(v byte) { b.b = append(b.b, v) }

func (b *Buffer) PutBool(v bool) {
	if v {
		b.b = append(b.b, 1)
	} else {
		b.b = append(b.b, 0)
	}
}

func (b *Buffer) PutUint16(v uint16)  { b.b = binary.LittleEndian.AppendUint16(b.b, v) }
func (b *Buffer) PutUint32(v uint32)  { b.b = binary.LittleEndian.AppendUint32(b.b, v) }
func (b *Buffer) PutUint64(v uint64)  { b.b = binary.LittleEndian.AppendUint64(b.b, v) }
func (b *Buffer) PutUvarint(v uint64) { b.b = binary.AppendUvarint(b.b, v) }
func (b *Buffer) PutVarint(v int64)   { b.b = binary.AppendVarint(b.b, v) }

func (b *Buffer) PutFloat32(v float32) { b.PutUint32(math.Float32bits(v)) }
func (b *Buffer) PutFloat64(v float64) { b.PutUint64(math.Float64bits(v)) }

// PutString writes a uvarint length followed by the UTF-8 bytes.
func (b *Buffer) PutString(s string) {
	b.PutUvarint(uint64(len(s)))
	b.b = append(b.b, s...)
}

// PutBytes writes a uvarint length followed by p.
func (b *Buffer) PutBytes(p []byte) {
	b.PutUvarint(uint64(len(p)))
	b.b = append(b.b, p...)
}

// PutRaw appends p without a length prefix.
func (b *Buffer) PutRaw(p []byte) { b.b = append(b.b, p...) }

func (b *Buffer) need(n int) error {
	if n < 0 || b.Len() < n {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrBufferUnderflow, n, b.Len())
	}
	return nil
}

func (b *Buffer) ReadByte() (byte, error) {
	if err := b.need(1); err != nil {
		return 0, err
	}
	v := b.b[b.off]
	b.off++
	return v, nil
}

func (b *Buffer) ReadBool() (bool, error) {
	v, err := b.ReadByte()
	return v != 0, err
}

func (b *Buffer) ReadUint16() (uint16, error) {
	if err := b.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(b.b[b.off:])
	b.off += 2
	return v, nil
}

func (b *Buffer) ReadUint32() (uint32, error) {
	if err := b.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(b.b[b.off:])
	b.off += 4
	return v, nil
}

func (b *Buffer) ReadUint64() (uint64, error) {
	if err := b.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(b.b[b.off:])
	b.off += 8
	return v, nil
}

func (b *Buffer) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(b.b[b.off:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: invalid uvarint", ErrBufferUnderflow)
	}
	b.off += n
	return v, nil
}

func (b *Buffer) ReadVarint() (int64, error) {
	v, n := binary.Varint(b.b[b.off:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: invalid varint", ErrBufferUnderflow)
	}
	b.off += n
	return v, nil
}

func (b *Buffer) ReadFloat32() (float32, error) {
	v, err := b.ReadUint32()
	return math.Float32frombits(v), err
}

func (b *Buffer) ReadFloat64() (float64, error) {
	v, err := b.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadRaw returns the next n bytes without copying.
func (b *Buffer) ReadRaw(n int) ([]byte, error) {
	if err := b.need(n); err != nil {
		return nil, err
	}
	v := b.b[b.off : b.off+n]
	b.off += n
	return v, nil
}

// ReadCount reads a uvarint element count and rejects counts that cannot fit in
// the remaining bytes given at least minSize bytes per element.
func (b *Buffer) ReadCount(minSize int) (int, error) {
	n, err := b.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if minSize > 0 && n > uint64(b.Len()/minSize) {
		return 0, fmt.Errorf("%w: count %d exceeds remaining %d bytes", ErrBufferUnderflow, n, b.Len())
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: count %d", ErrBufferUnderflow, n)
	}
	return int(n), nil
}

// ReadString reads a length-prefixed string.
func (b *Buffer) ReadString() (string, error) {
	n, err := b.ReadCount(1)
	if err != nil {
		return "", err
	}
	raw, err := b.ReadRaw(n)
	return string(raw), err
}

// ReadBytes reads a length-prefixed byte slice into fresh memory.
func (b *Buffer) ReadBytes() ([]byte, error) {
	n, err := b.ReadCount(1)
	if err != nil {
		return nil, err
	}
	raw, err := b.ReadRaw(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, raw)
	return out, nil
}
