package backup

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	headerSize  = 12
	trailerSize = 16

	formatVersion = 1
)

var (
	headerMagic  = [8]byte{'B', 'U', 'R', 'R', 'O', 'W', 'B', 'K'}
	trailerMagic = [4]byte{'B', 'E', 'N', 'D'}
)

// Codec selects the compression of the backup body.
type Codec uint8

const (
	// CodecNone stores the image uncompressed.
	CodecNone Codec = 0
	// CodecLZ4 favors speed.
	CodecLZ4 Codec = 1
	// CodecZstd favors ratio.
	CodecZstd Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

type header struct {
	version uint8
	codec   Codec
}

func (h header) encode() []byte {
	b := make([]byte, headerSize)
	copy(b, headerMagic[:])
	b[8] = h.version
	b[9] = byte(h.codec)
	return b
}

func decodeHeader(b []byte) (header, error) {
	if len(b) < headerSize || [8]byte(b[:8]) != headerMagic {
		return header{}, fmt.Errorf("%w: bad header magic", ErrInvalidFormat)
	}
	h := header{version: b[8], codec: Codec(b[9])}
	if h.version != formatVersion {
		return header{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, h.version)
	}
	if h.codec > CodecZstd {
		return header{}, fmt.Errorf("%w: unknown %s", ErrInvalidFormat, h.codec)
	}
	return h, nil
}

type trailer struct {
	rawSize  int64
	checksum uint32
}

func (t trailer) encode() []byte {
	b := make([]byte, trailerSize)
	binary.LittleEndian.PutUint64(b[0:], uint64(t.rawSize)) //nolint:gosec // G115
	binary.LittleEndian.PutUint32(b[8:], t.checksum)
	copy(b[12:], trailerMagic[:])
	return b
}

func decodeTrailer(b []byte) (trailer, error) {
	if len(b) < trailerSize || [4]byte(b[12:16]) != trailerMagic {
		return trailer{}, fmt.Errorf("%w: bad trailer magic", ErrInvalidFormat)
	}
	return trailer{
		rawSize:  int64(binary.LittleEndian.Uint64(b[0:])), //nolint:gosec // G115
		checksum: binary.LittleEndian.Uint32(b[8:]),
	}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// compressor wraps w in the codec's streaming encoder. Closing it flushes
// the encoder but not w.
func compressor(w io.Writer, c Codec, level int) (io.WriteCloser, error) {
	switch c {
	case CodecNone:
		return nopWriteCloser{w}, nil
	case CodecLZ4:
		lw := lz4.NewWriter(w)
		if level > 0 {
			if err := lw.Apply(lz4.CompressionLevelOption(lz4.CompressionLevel(1 << (8 + level)))); err != nil {
				return nil, err
			}
		}
		return lw, nil
	case CodecZstd:
		opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if level > 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		return zstd.NewWriter(w, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown %s", ErrInvalidFormat, c)
	}
}

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

func decompressor(r io.Reader, c Codec) (io.ReadCloser, error) {
	switch c {
	case CodecNone:
		return io.NopCloser(r), nil
	case CodecLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CodecZstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{dec}, nil
	default:
		return nil, fmt.Errorf("%w: unknown %s", ErrInvalidFormat, c)
	}
}
