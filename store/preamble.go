package store

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/burrow/internal/conv"
	"github.com/hupe1980/burrow/internal/hash"
)

var preambleMagic = [4]byte{'B', 'R', 'R', 'W'}

const preambleVersion = uint32(1)

// preamble is the persisted volume state.
//
//	0:4   magic
//	4:8   version
//	8:16  cursor
//	16:24 slice size
//	24:32 root
//	32:60 reserved
//	60:64 CRC32C of bytes 0:60
type preamble struct {
	cursor    int64
	sliceSize int64
	root      int64
}

func (p preamble) encode() []byte {
	buf := make([]byte, PreambleSize)
	copy(buf[0:4], preambleMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], preambleVersion)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(p.cursor))     //nolint:gosec // G115: cursor is non-negative
	binary.LittleEndian.PutUint64(buf[16:24], uint64(p.sliceSize)) //nolint:gosec // G115: validated slice size
	binary.LittleEndian.PutUint64(buf[24:32], uint64(p.root))      //nolint:gosec // G115: positions are non-negative
	binary.LittleEndian.PutUint32(buf[60:64], hash.CRC32C(buf[:60]))
	return buf
}

func decodePreamble(buf []byte) (preamble, error) {
	if len(buf) < PreambleSize {
		return preamble{}, fmt.Errorf("%w: short preamble (%d bytes)", ErrCorruptPreamble, len(buf))
	}
	if [4]byte(buf[0:4]) != preambleMagic {
		return preamble{}, fmt.Errorf("%w: invalid magic", ErrCorruptPreamble)
	}
	if v := binary.LittleEndian.Uint32(buf[4:8]); v != preambleVersion {
		return preamble{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptPreamble, v)
	}
	if got, want := hash.CRC32C(buf[:60]), binary.LittleEndian.Uint32(buf[60:64]); got != want {
		return preamble{}, fmt.Errorf("%w: checksum mismatch (got %08x, want %08x)", ErrCorruptPreamble, got, want)
	}

	var (
		p   preamble
		err error
	)
	if p.cursor, err = conv.Uint64ToInt64(binary.LittleEndian.Uint64(buf[8:16])); err != nil {
		return preamble{}, fmt.Errorf("%w: %w", ErrCorruptPreamble, err)
	}
	if p.sliceSize, err = conv.Uint64ToInt64(binary.LittleEndian.Uint64(buf[16:24])); err != nil {
		return preamble{}, fmt.Errorf("%w: %w", ErrCorruptPreamble, err)
	}
	if p.root, err = conv.Uint64ToInt64(binary.LittleEndian.Uint64(buf[24:32])); err != nil {
		return preamble{}, fmt.Errorf("%w: %w", ErrCorruptPreamble, err)
	}
	if p.cursor < PreambleSize || validateSliceSize(p.sliceSize) != nil || p.root >= p.cursor {
		return preamble{}, fmt.Errorf("%w: inconsistent fields (cursor=%d slice=%d root=%d)", ErrCorruptPreamble, p.cursor, p.sliceSize, p.root)
	}
	return p, nil
}
