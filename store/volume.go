package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// medium is the backing storage of a Volume. Capacity grows in whole slices.
type medium interface {
	kind() string
	capacity() int64
	grow(size int64) error
	readAt(p []byte, off int64) (int, error)
	writeAt(p []byte, off int64) (int, error)
	sync() error
	truncate() error
	close() error
	remove() error
}

// Volume implements Store on top of a medium.
type Volume struct {
	m         medium
	sliceSize int64
	logger    *slog.Logger

	// mu is held shared by every access and exclusively by Reset, ReadFrom
	// and Close.
	mu     sync.RWMutex
	growMu sync.Mutex
	cursor atomic.Int64
	root   atomic.Int64
	closed atomic.Bool
}

var _ Store = (*Volume)(nil)

func openVolume(m medium, existing *preamble, opts Options) (*Volume, error) {
	v := &Volume{
		m:         m,
		sliceSize: opts.SliceSize,
		logger:    opts.Logger.With(slog.String("medium", m.kind())),
	}

	if existing == nil {
		if err := v.initialize(); err != nil {
			return nil, err
		}
		v.logger.Debug("volume created", slog.Int64("slice_size", v.sliceSize))
		return v, nil
	}

	if existing.cursor > m.capacity() {
		return nil, fmt.Errorf("%w: cursor %d beyond medium capacity %d", ErrCorruptPreamble, existing.cursor, m.capacity())
	}
	v.sliceSize = existing.sliceSize
	v.cursor.Store(existing.cursor)
	v.root.Store(existing.root)
	v.logger.Debug("volume opened",
		slog.Int64("slice_size", v.sliceSize),
		slog.Int64("size", existing.cursor),
		slog.Int64("root", existing.root),
	)
	return v, nil
}

func (v *Volume) initialize() error {
	if err := v.m.grow(v.sliceSize); err != nil {
		return v.classify(err, 0, 0)
	}
	v.cursor.Store(PreambleSize)
	v.root.Store(0)
	return v.writePreamble()
}

func (v *Volume) writePreamble() error {
	buf := preamble{cursor: v.cursor.Load(), sliceSize: v.sliceSize, root: v.root.Load()}.encode()
	n, err := v.m.writeAt(buf, 0)
	return v.classify(err, n, len(buf))
}

// Allocate implements Store.
func (v *Volume) Allocate(size int) (int64, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed.Load() {
		return 0, ErrClosed
	}

	end := v.cursor.Add(int64(size))
	pos := end - int64(size)

	if end > v.m.capacity() {
		if err := v.growTo(end); err != nil {
			return 0, err
		}
	}
	return pos, nil
}

func (v *Volume) growTo(end int64) error {
	v.growMu.Lock()
	defer v.growMu.Unlock()

	if end <= v.m.capacity() {
		return nil
	}
	target := ((end + v.sliceSize - 1) / v.sliceSize) * v.sliceSize
	if err := v.m.grow(target); err != nil {
		return fmt.Errorf("%w: grow to %d: %w", ErrIO, target, err)
	}
	v.logger.Debug("volume grown", slog.Int64("capacity", target))
	return nil
}

// Write implements Store.
func (v *Volume) Write(p []byte, pos int64) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if err := v.check(pos, len(p)); err != nil {
		return 0, err
	}
	n, err := v.m.writeAt(p, pos)
	return n, v.classify(err, n, len(p))
}

// Read implements Store.
func (v *Volume) Read(pos int64, size int) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if err := v.check(pos, size); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := v.m.readAt(buf, pos)
	if err := v.classify(err, n, size); err != nil {
		return nil, err
	}
	return buf, nil
}

// WritePayload implements Store.
func (v *Volume) WritePayload(pos int64, p []byte) error {
	if uint64(len(p)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: payload of %d bytes", ErrInvalidSize, len(p))
	}
	buf := make([]byte, payloadPrefix+len(p))
	binary.LittleEndian.PutUint32(buf, uint32(len(p))) //nolint:gosec // G115: checked above
	copy(buf[payloadPrefix:], p)
	_, err := v.Write(buf, pos)
	return err
}

// ReadPayload implements Store.
func (v *Volume) ReadPayload(pos int64) ([]byte, error) {
	prefix, err := v.Read(pos, payloadPrefix)
	if err != nil {
		return nil, err
	}
	n := int64(binary.LittleEndian.Uint32(prefix))
	if pos+payloadPrefix+n > v.cursor.Load() {
		return nil, fmt.Errorf("%w: payload at %d claims %d bytes", ErrOutOfBounds, pos, n)
	}
	return v.Read(pos+payloadPrefix, int(n))
}

func (v *Volume) check(pos int64, size int) error {
	if v.closed.Load() {
		return ErrClosed
	}
	if pos < PreambleSize || pos+int64(size) > v.cursor.Load() {
		return fmt.Errorf("%w: [%d, %d) outside [%d, %d)", ErrOutOfBounds, pos, pos+int64(size), PreambleSize, v.cursor.Load())
	}
	return nil
}

// classify maps medium results onto the error taxonomy.
func (v *Volume) classify(err error, n, want int) error {
	switch {
	case n == want && (err == nil || errors.Is(err, io.EOF)):
		return nil
	case err == nil:
		return fmt.Errorf("%w: %d of %d bytes", ErrPartialIO, n, want)
	case n > 0 || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %d of %d bytes: %w", ErrPartialIO, n, want, err)
	default:
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
}

// Size implements Store.
func (v *Volume) Size() int64 {
	return v.cursor.Load()
}

// Root implements Store.
func (v *Volume) Root() int64 {
	return v.root.Load()
}

// SetRoot implements Store.
func (v *Volume) SetRoot(pos int64) {
	v.root.Store(pos)
}

// SliceSize returns the slice size in effect for this volume.
func (v *Volume) SliceSize() int64 {
	return v.sliceSize
}

// Commit implements Store.
func (v *Volume) Commit() error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed.Load() {
		return ErrClosed
	}
	return v.commitLocked()
}

func (v *Volume) commitLocked() error {
	if err := v.writePreamble(); err != nil {
		return err
	}
	if err := v.m.sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrIO, err)
	}
	return nil
}

// Reset implements Store.
func (v *Volume) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed.Load() {
		return ErrClosed
	}
	return v.resetLocked()
}

func (v *Volume) resetLocked() error {
	if err := v.m.truncate(); err != nil {
		return fmt.Errorf("%w: truncate: %w", ErrIO, err)
	}
	if err := v.initialize(); err != nil {
		return err
	}
	v.logger.Info("volume reset")
	return nil
}

// Close implements Store.
func (v *Volume) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed.Swap(true) {
		return nil
	}
	return errors.Join(v.commitLocked(), v.m.close())
}

// Delete implements Store.
func (v *Volume) Delete() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var closeErr error
	if !v.closed.Swap(true) {
		closeErr = v.m.close()
	}
	if err := v.m.remove(); err != nil {
		return errors.Join(closeErr, fmt.Errorf("%w: remove: %w", ErrIO, err))
	}
	v.logger.Info("volume deleted")
	return closeErr
}

const copyChunk = 1 << 20

// WriteTo streams the allocated extent, preamble first.
func (v *Volume) WriteTo(w io.Writer) (int64, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed.Load() {
		return 0, ErrClosed
	}

	end := v.cursor.Load()
	head := preamble{cursor: end, sliceSize: v.sliceSize, root: v.root.Load()}.encode()
	n, err := w.Write(head)
	total := int64(n)
	if err != nil {
		return total, err
	}

	buf := make([]byte, copyChunk)
	for off := int64(PreambleSize); off < end; {
		chunk := buf[:min(int64(len(buf)), end-off)]
		rn, rerr := v.m.readAt(chunk, off)
		if err := v.classify(rerr, rn, len(chunk)); err != nil {
			return total, err
		}
		wn, werr := w.Write(chunk)
		total += int64(wn)
		if werr != nil {
			return total, werr
		}
		off += int64(len(chunk))
	}
	return total, nil
}

// ReadFrom replaces the volume content with a stream produced by WriteTo.
// The volume keeps its own slice size.
func (v *Volume) ReadFrom(r io.Reader) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed.Load() {
		return 0, ErrClosed
	}

	head := make([]byte, PreambleSize)
	n, err := io.ReadFull(r, head)
	total := int64(n)
	if err != nil {
		return total, fmt.Errorf("%w: read preamble: %w", ErrCorruptPreamble, err)
	}
	p, err := decodePreamble(head)
	if err != nil {
		return total, err
	}

	if err := v.resetLocked(); err != nil {
		return total, err
	}
	if err := v.m.grow(((p.cursor + v.sliceSize - 1) / v.sliceSize) * v.sliceSize); err != nil {
		return total, fmt.Errorf("%w: grow: %w", ErrIO, err)
	}

	buf := make([]byte, copyChunk)
	for off := int64(PreambleSize); off < p.cursor; {
		chunk := buf[:min(int64(len(buf)), p.cursor-off)]
		rn, rerr := io.ReadFull(r, chunk)
		total += int64(rn)
		if rerr != nil {
			return total, fmt.Errorf("%w: stream ended at %d of %d: %w", ErrPartialIO, off+int64(rn), p.cursor, rerr)
		}
		wn, werr := v.m.writeAt(chunk, off)
		if err := v.classify(werr, wn, len(chunk)); err != nil {
			return total, err
		}
		off += int64(len(chunk))
	}

	v.cursor.Store(p.cursor)
	v.root.Store(p.root)
	if err := v.commitLocked(); err != nil {
		return total, err
	}
	v.logger.Info("volume restored", slog.Int64("size", p.cursor))
	return total, nil
}
