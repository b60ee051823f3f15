package mmap

import (
	"io"
	"os"
	"sync/atomic"
)

// Mapping represents a memory-mapped file or file window.
// It owns the underlying byte slice and is responsible for unmapping it.
type Mapping struct {
	data     []byte
	writable bool
	closed   atomic.Bool
	unmap    func([]byte) error
	flush    func([]byte) error
}

// Open maps the whole file at path read-only.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := fi.Size()
	if size == 0 {
		return &Mapping{}, nil
	}
	if size < 0 || int64(int(size)) != size {
		return nil, ErrInvalidSize
	}

	data, unmap, flush, err := osMap(f, 0, int(size), false)
	if err != nil {
		return nil, err
	}
	return &Mapping{data: data, unmap: unmap, flush: flush}, nil
}

// MapRegion maps size bytes of the file starting at offset, read/write and
// shared with the file. The file must already extend to offset+size and the
// offset must be a multiple of Granularity.
func MapRegion(h Handle, offset int64, size int) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if offset < 0 || offset%Granularity != 0 {
		return nil, ErrInvalidOffset
	}
	data, unmap, flush, err := osMap(h, offset, size, true)
	if err != nil {
		return nil, err
	}
	return &Mapping{data: data, writable: true, unmap: unmap, flush: flush}, nil
}

// Close unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.unmap != nil && m.data != nil {
		return m.unmap(m.data)
	}
	return nil
}

// Bytes returns the mapped bytes; nil after Close.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return len(m.data)
}

// Writable reports whether the mapping was created read/write.
func (m *Mapping) Writable() bool {
	return m.writable
}

// Sync flushes dirty pages of a writable mapping to the file.
func (m *Mapping) Sync() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if !m.writable || m.flush == nil || len(m.data) == 0 {
		return nil
	}
	return m.flush(m.data)
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.data == nil {
		return nil
	}
	return osAdvise(m.data, pattern)
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
