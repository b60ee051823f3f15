package store

import (
	"errors"
	"io"
	"log/slog"

	"github.com/hupe1980/burrow/internal/fs"
	"github.com/hupe1980/burrow/internal/mmap"
	"github.com/hupe1980/burrow/internal/resource"
)

const (
	// PreambleSize is the reserved region at the start of every volume.
	PreambleSize = 64

	// DefaultSliceSize is the default volume slice size (64 MiB).
	DefaultSliceSize = 64 << 20

	// MaxSliceSize bounds a single slice (1 GiB).
	MaxSliceSize = 1 << 30

	// payloadPrefix is the length prefix in front of every payload.
	payloadPrefix = 4
)

var (
	// ErrIO wraps failures of the backing medium.
	ErrIO = errors.New("store: i/o failure")

	// ErrPartialIO is returned for short reads and writes. It is fatal: the
	// affected range must not be assumed consistent.
	ErrPartialIO = errors.New("store: partial i/o")

	// ErrOutOfBounds is returned for accesses outside the allocated extent.
	ErrOutOfBounds = errors.New("store: position out of bounds")

	// ErrClosed is returned after Close or Delete.
	ErrClosed = errors.New("store: closed")

	// ErrCorruptPreamble is returned when the volume preamble fails validation.
	ErrCorruptPreamble = errors.New("store: corrupt preamble")

	// ErrInvalidSize is returned for non-positive allocation sizes.
	ErrInvalidSize = errors.New("store: invalid size")

	// ErrInvalidSliceSize is returned when the slice size is not a positive
	// multiple of the mapping granularity or exceeds MaxSliceSize.
	ErrInvalidSliceSize = errors.New("store: invalid slice size")
)

// Store is a position-addressed byte volume.
type Store interface {
	// Allocate reserves size bytes and returns their position. It is safe for
	// concurrent use and never returns 0.
	Allocate(size int) (int64, error)

	// Write writes p at pos, which must lie inside an earlier allocation.
	Write(p []byte, pos int64) (int, error)

	// Read returns size bytes starting at pos.
	Read(pos int64, size int) ([]byte, error)

	// WritePayload writes p with a 4-byte length prefix. The allocation at pos
	// must be at least PayloadSize(len(p)) bytes.
	WritePayload(pos int64, p []byte) error

	// ReadPayload reads a length-prefixed payload written by WritePayload.
	ReadPayload(pos int64) ([]byte, error)

	// Size returns the allocated extent in bytes, preamble included.
	Size() int64

	// Root returns the persisted root position (0 if unset).
	Root() int64

	// SetRoot records the root position; it is persisted on Commit.
	SetRoot(pos int64)

	// Commit persists the preamble and flushes data to the medium.
	Commit() error

	// Reset truncates the volume to empty. The handle stays usable.
	Reset() error

	// Delete closes the volume and removes its backing medium.
	Delete() error

	// Close commits and releases the medium. It is idempotent.
	Close() error

	io.WriterTo
	io.ReaderFrom
}

// PayloadSize returns the allocation size needed for an n-byte payload.
func PayloadSize(n int) int {
	return payloadPrefix + n
}

// Options configures a volume.
type Options struct {
	// SliceSize is the size of one volume slice. It must be a multiple of
	// 64 KiB and at most MaxSliceSize. Existing volumes keep the slice size
	// recorded in their preamble.
	SliceSize int64

	// FileSystem is used by file-backed media. Defaults to the local file system.
	FileSystem fs.FileSystem

	// Resources accounts memory for NewMemoryStore. Nil means unlimited.
	Resources *resource.Controller

	// Logger receives lifecycle events. Defaults to a discard logger.
	Logger *slog.Logger
}

// DefaultOptions returns default volume options.
var DefaultOptions = Options{
	SliceSize:  DefaultSliceSize,
	FileSystem: fs.Default,
}

func buildOptions(optFns []func(o *Options)) (Options, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := validateSliceSize(opts.SliceSize); err != nil {
		return opts, err
	}
	if opts.FileSystem == nil {
		opts.FileSystem = fs.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return opts, nil
}

func validateSliceSize(n int64) error {
	if n <= 0 || n > MaxSliceSize || n%mmap.Granularity != 0 {
		return ErrInvalidSliceSize
	}
	return nil
}
