package store

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/hupe1980/burrow/internal/conv"
	"github.com/hupe1980/burrow/internal/fs"
	"github.com/hupe1980/burrow/internal/mmap"
)

// NewMmapStore opens or creates a memory-mapped volume at path.
//
// The file always spans a whole number of slices and every slice is its own
// shared read/write mapping, so growing the volume never moves bytes that are
// already mapped.
func NewMmapStore(path string, optFns ...func(o *Options)) (*Volume, error) {
	opts, err := buildOptions(optFns)
	if err != nil {
		return nil, err
	}
	f, size, existing, err := openVolumeFile(opts.FileSystem, path)
	if err != nil {
		return nil, err
	}

	sliceSize := opts.SliceSize
	if existing != nil {
		sliceSize = existing.sliceSize
	}
	m := &mmapMedium{file: f, fsys: opts.FileSystem, path: path, sliceSize: sliceSize}
	if size > 0 {
		if err := m.grow(size); err != nil {
			_ = m.close()
			return nil, fmt.Errorf("%w: map %s: %w", ErrIO, path, err)
		}
	}

	v, err := openVolume(m, existing, opts)
	if err != nil {
		_ = m.close()
		return nil, err
	}
	return v, nil
}

type mmapMedium struct {
	file      fs.File
	fsys      fs.FileSystem
	path      string
	sliceSize int64

	mu     sync.RWMutex
	slices []*mmap.Mapping
}

func (m *mmapMedium) kind() string { return "mmap" }

func (m *mmapMedium) capacity() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.slices)) * m.sliceSize
}

func (m *mmapMedium) grow(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := (size + m.sliceSize - 1) / m.sliceSize
	if int64(len(m.slices)) >= want {
		return nil
	}
	if err := m.file.Truncate(want * m.sliceSize); err != nil {
		return err
	}
	sliceLen, err := conv.Int64ToInt(m.sliceSize)
	if err != nil {
		return err
	}
	for i := int64(len(m.slices)); i < want; i++ {
		mp, err := mmap.MapRegion(m.file, i*m.sliceSize, sliceLen)
		if err != nil {
			return err
		}
		_ = mp.Advise(mmap.AccessRandom)
		m.slices = append(m.slices, mp)
	}
	return nil
}

func (m *mmapMedium) readAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyAt(p, off, false)
}

func (m *mmapMedium) writeAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyAt(p, off, true)
}

func (m *mmapMedium) copyAt(p []byte, off int64, write bool) (int, error) {
	if off+int64(len(p)) > int64(len(m.slices))*m.sliceSize {
		return 0, ErrOutOfBounds
	}
	n := 0
	spans(off, len(p), m.sliceSize, func(idx int, inner int64, lo, hi int) {
		data := m.slices[idx].Bytes()
		if write {
			n += copy(data[inner:], p[lo:hi])
		} else {
			n += copy(p[lo:hi], data[inner:])
		}
	})
	if n < len(p) {
		return n, mmap.ErrClosed
	}
	return n, nil
}

func (m *mmapMedium) sync() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for _, mp := range m.slices {
		errs = append(errs, mp.Sync())
	}
	errs = append(errs, m.file.Sync())
	return errors.Join(errs...)
}

func (m *mmapMedium) unmapAll() error {
	var errs []error
	for _, mp := range m.slices {
		errs = append(errs, mp.Close())
	}
	m.slices = nil
	return errors.Join(errs...)
}

func (m *mmapMedium) truncate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.unmapAll(); err != nil {
		return err
	}
	return m.file.Truncate(0)
}

func (m *mmapMedium) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return errors.Join(m.unmapAll(), m.file.Close())
}

func (m *mmapMedium) remove() error {
	if err := m.fsys.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
