package backup

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hupe1980/burrow/blobstore"
	burrowhash "github.com/hupe1980/burrow/internal/hash"
	"github.com/hupe1980/burrow/internal/resource"
	"github.com/hupe1980/burrow/store"
)

// LatestName is the pointer blob maintained by Publish.
const LatestName = "LATEST"

var (
	// ErrInvalidFormat is returned for blobs that are not backups.
	ErrInvalidFormat = errors.New("backup: invalid format")

	// ErrChecksum is returned when the restored image does not match the
	// checksum recorded at export. The target volume is reset.
	ErrChecksum = errors.New("backup: checksum mismatch")

	// ErrNoBackup is returned by Latest when nothing was published.
	ErrNoBackup = errors.New("backup: no published backup")
)

// Options configures Export and Import.
type Options struct {
	// Codec compresses the body on export. Import reads it from the header.
	Codec Codec

	// Level is the codec-specific compression level; 0 uses the codec
	// default.
	Level int

	// Resources throttles blob IO. Nil means unlimited.
	Resources *resource.Controller

	// Logger receives progress events. Defaults to a discard logger.
	Logger *slog.Logger
}

// DefaultOptions are applied before any option functions.
var DefaultOptions = Options{
	Codec: CodecZstd,
}

func buildOptions(optFns []func(o *Options)) Options {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return opts
}

// Info describes a backup blob.
type Info struct {
	Name       string
	Codec      Codec
	RawSize    int64
	StoredSize int64
	Checksum   uint32
}

// Export streams the image of st into the blob name. The blob only becomes
// visible once it is complete. Concurrent writers to st should be paused;
// the image is read under the volume's read lock one chunk at a time.
func Export(ctx context.Context, st store.Store, bs blobstore.BlobStore, name string, optFns ...func(o *Options)) (Info, error) {
	opts := buildOptions(optFns)
	start := time.Now()

	w, err := bs.Create(ctx, name)
	if err != nil {
		return Info{}, fmt.Errorf("backup: create %q: %w", name, err)
	}
	info, err := export(ctx, st, w, opts)
	if err != nil {
		_ = blobstore.Abort(w)
		return Info{}, err
	}
	if err := w.Close(); err != nil {
		return Info{}, fmt.Errorf("backup: publish blob %q: %w", name, err)
	}
	info.Name = name

	opts.Logger.Info("backup exported",
		"name", name,
		"codec", info.Codec.String(),
		"raw_bytes", info.RawSize,
		"stored_bytes", info.StoredSize,
		"duration", time.Since(start))
	return info, nil
}

func export(ctx context.Context, st store.Store, w io.Writer, opts Options) (Info, error) {
	out := &countingWriter{w: resource.NewRateLimitedWriter(ctx, w, opts.Resources)}

	if _, err := out.Write(header{version: formatVersion, codec: opts.Codec}.encode()); err != nil {
		return Info{}, fmt.Errorf("backup: write header: %w", err)
	}

	comp, err := compressor(out, opts.Codec, opts.Level)
	if err != nil {
		return Info{}, err
	}

	crc := burrowhash.NewCRC32C()
	raw, err := st.WriteTo(&ctxWriter{ctx: ctx, w: io.MultiWriter(comp, crc)})
	if err != nil {
		_ = comp.Close()
		return Info{}, fmt.Errorf("backup: read volume: %w", err)
	}
	if err := comp.Close(); err != nil {
		return Info{}, fmt.Errorf("backup: flush %s: %w", opts.Codec, err)
	}

	t := trailer{rawSize: raw, checksum: crc.Sum32()}
	if _, err := out.Write(t.encode()); err != nil {
		return Info{}, fmt.Errorf("backup: write trailer: %w", err)
	}
	return Info{
		Codec:      opts.Codec,
		RawSize:    raw,
		StoredSize: out.n,
		Checksum:   t.checksum,
	}, nil
}

// Inspect validates the framing of a backup blob without restoring it.
func Inspect(ctx context.Context, bs blobstore.BlobStore, name string) (Info, error) {
	b, err := bs.Open(ctx, name)
	if err != nil {
		return Info{}, fmt.Errorf("backup: open %q: %w", name, err)
	}
	defer func() { _ = b.Close() }()

	_, info, err := readFrame(ctx, b)
	if err != nil {
		return Info{}, err
	}
	info.Name = name
	return info, nil
}

func readFrame(ctx context.Context, b blobstore.Blob) (header, Info, error) {
	size := b.Size()
	if size < headerSize+trailerSize {
		return header{}, Info{}, fmt.Errorf("%w: blob too small (%d bytes)", ErrInvalidFormat, size)
	}

	hb := make([]byte, headerSize)
	if _, err := b.ReadAt(ctx, hb, 0); err != nil && !errors.Is(err, io.EOF) {
		return header{}, Info{}, fmt.Errorf("backup: read header: %w", err)
	}
	h, err := decodeHeader(hb)
	if err != nil {
		return header{}, Info{}, err
	}

	tb := make([]byte, trailerSize)
	if _, err := b.ReadAt(ctx, tb, size-trailerSize); err != nil && !errors.Is(err, io.EOF) {
		return header{}, Info{}, fmt.Errorf("backup: read trailer: %w", err)
	}
	t, err := decodeTrailer(tb)
	if err != nil {
		return header{}, Info{}, err
	}
	return h, Info{
		Codec:      h.codec,
		RawSize:    t.rawSize,
		StoredSize: size,
		Checksum:   t.checksum,
	}, nil
}

// Import replaces the contents of st with the backup name. On a checksum
// mismatch st is reset and ErrChecksum returned.
func Import(ctx context.Context, bs blobstore.BlobStore, name string, st store.Store, optFns ...func(o *Options)) (Info, error) {
	opts := buildOptions(optFns)
	start := time.Now()

	b, err := bs.Open(ctx, name)
	if err != nil {
		return Info{}, fmt.Errorf("backup: open %q: %w", name, err)
	}
	defer func() { _ = b.Close() }()

	h, info, err := readFrame(ctx, b)
	if err != nil {
		return Info{}, err
	}
	info.Name = name

	body, err := b.ReadRange(ctx, headerSize, b.Size()-headerSize-trailerSize)
	if err != nil {
		return Info{}, fmt.Errorf("backup: read body: %w", err)
	}
	defer func() { _ = body.Close() }()

	dec, err := decompressor(resource.NewRateLimitedReader(ctx, &ctxReader{ctx: ctx, r: body}, opts.Resources), h.codec)
	if err != nil {
		return Info{}, err
	}
	defer func() { _ = dec.Close() }()

	crc := burrowhash.NewCRC32C()
	src := &countingReader{r: io.TeeReader(dec, crc)}
	err = restore(st, src)
	if err == nil {
		err = verify(src.n, crc, info)
	}
	if err != nil {
		if rerr := st.Reset(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		opts.Logger.Error("backup rejected", "name", name, "error", err)
		return Info{}, err
	}

	opts.Logger.Info("backup imported",
		"name", name,
		"codec", h.codec.String(),
		"raw_bytes", src.n,
		"duration", time.Since(start))
	return info, nil
}

func restore(st store.Store, src io.Reader) error {
	if _, err := st.ReadFrom(src); err != nil {
		return fmt.Errorf("backup: restore volume: %w", err)
	}
	// The image may carry bytes past the volume cursor; they count for the checksum.
	if _, err := io.Copy(io.Discard, src); err != nil {
		return fmt.Errorf("backup: drain body: %w", err)
	}
	return nil
}

func verify(n int64, crc hash.Hash32, info Info) error {
	if n != info.RawSize {
		return fmt.Errorf("%w: restored %d bytes, expected %d", ErrChecksum, n, info.RawSize)
	}
	if sum := crc.Sum32(); sum != info.Checksum {
		return fmt.Errorf("%w: crc32c %08x, expected %08x", ErrChecksum, sum, info.Checksum)
	}
	return nil
}

// Publish points LATEST at the backup name.
func Publish(ctx context.Context, bs blobstore.BlobStore, name string) error {
	if err := bs.Put(ctx, LatestName, []byte(name)); err != nil {
		return fmt.Errorf("backup: publish %q: %w", name, err)
	}
	return nil
}

// Latest returns the name LATEST points at.
func Latest(ctx context.Context, bs blobstore.BlobStore) (string, error) {
	data, err := blobstore.ReadAll(ctx, bs, LatestName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return "", ErrNoBackup
		}
		return "", fmt.Errorf("backup: read pointer: %w", err)
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return "", ErrNoBackup
	}
	return name, nil
}

// List returns the names of backups starting with prefix, excluding the
// pointer blob.
func List(ctx context.Context, bs blobstore.BlobStore, prefix string) ([]string, error) {
	names, err := bs.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if n != LatestName {
			out = append(out, n)
		}
	}
	return out, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type ctxWriter struct {
	ctx context.Context
	w   io.Writer
}

func (c *ctxWriter) Write(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.w.Write(p)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
