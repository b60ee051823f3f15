package layout

import (
	"encoding/binary"

	"github.com/hupe1980/burrow/internal/hash"
	"github.com/hupe1980/burrow/store"
)

// HeaderSize is the persisted size of a Header.
const HeaderSize = 64

// MapKind distinguishes maps from sets sharing the same structure.
type MapKind byte

const (
	MapKindMap MapKind = iota + 1
	MapKindSet
)

// Header is the root metadata of one DiskMap.
//
//	0:8   self
//	8:16  root node position
//	16:24 record count
//	24:32 first free position
//	32    load factor (0 = ordered)
//	33    map kind
//	34:60 reserved
//	60:64 CRC32C of bytes 0:60
type Header struct {
	Self       int64
	Root       int64
	Count      int64
	FirstFree  int64
	LoadFactor uint8
	Kind       MapKind
}

// NewHeader allocates and persists a header with no root.
func NewHeader(st store.Store, loadFactor uint8, kind MapKind) (*Header, error) {
	h := &Header{LoadFactor: loadFactor, Kind: kind}
	pos, err := st.Allocate(HeaderSize)
	if err != nil {
		return nil, err
	}
	h.Self = pos
	if err := h.Write(st); err != nil {
		return nil, err
	}
	return h, nil
}

// ReadHeader reads and verifies the header at pos.
func ReadHeader(st store.Store, pos int64) (*Header, error) {
	b, err := st.Read(pos, HeaderSize)
	if err != nil {
		return nil, err
	}
	return DecodeHeader(b, pos)
}

// DecodeHeader verifies b as the header stored at pos.
func DecodeHeader(b []byte, pos int64) (*Header, error) {
	if err := checkSelf("header", b, pos); err != nil {
		return nil, err
	}
	if got, want := hash.CRC32C(b[:60]), binary.LittleEndian.Uint32(b[60:64]); got != want {
		return nil, &CorruptionError{Node: "header", Pos: pos, Stored: pos, Reason: "checksum mismatch"}
	}
	h := &Header{
		Self:       pos,
		Root:       getPos(b[8:16]),
		Count:      getPos(b[16:24]),
		FirstFree:  getPos(b[24:32]),
		LoadFactor: b[32],
		Kind:       MapKind(b[33]),
	}
	if h.Kind != MapKindMap && h.Kind != MapKindSet {
		return nil, &CorruptionError{Node: "header", Pos: pos, Stored: pos, Reason: "unknown map kind"}
	}
	return h, nil
}

// Encode returns the persisted form of h.
func (h *Header) Encode() []byte {
	b := make([]byte, HeaderSize)
	putPos(b[0:8], h.Self)
	putPos(b[8:16], h.Root)
	putPos(b[16:24], h.Count)
	putPos(b[24:32], h.FirstFree)
	b[32] = h.LoadFactor
	b[33] = byte(h.Kind)
	binary.LittleEndian.PutUint32(b[60:64], hash.CRC32C(b[:60]))
	return b
}

// Write persists h at h.Self.
func (h *Header) Write(st store.Store) error {
	_, err := st.Write(h.Encode(), h.Self)
	return err
}
