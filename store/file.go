package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/hupe1980/burrow/internal/fs"
)

// NewFileStore opens or creates a volume at path using positioned file I/O.
func NewFileStore(path string, optFns ...func(o *Options)) (*Volume, error) {
	opts, err := buildOptions(optFns)
	if err != nil {
		return nil, err
	}
	f, size, existing, err := openVolumeFile(opts.FileSystem, path)
	if err != nil {
		return nil, err
	}

	m := &fileMedium{file: f, fsys: opts.FileSystem, path: path}
	m.size.Store(size)

	v, err := openVolume(m, existing, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return v, nil
}

// openVolumeFile opens path and decodes its preamble if the file is not empty.
func openVolumeFile(fsys fs.FileSystem, path string) (fs.File, int64, *preamble, error) {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, 0, nil, fmt.Errorf("%w: create directory: %w", ErrIO, err)
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, nil, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}
	if st.Size() == 0 {
		return f, 0, nil, nil
	}

	head := make([]byte, PreambleSize)
	if _, err := f.ReadAt(head, 0); err != nil {
		_ = f.Close()
		return nil, 0, nil, fmt.Errorf("%w: read preamble: %w", ErrCorruptPreamble, err)
	}
	p, err := decodePreamble(head)
	if err != nil {
		_ = f.Close()
		return nil, 0, nil, err
	}
	return f, st.Size(), &p, nil
}

type fileMedium struct {
	file fs.File
	fsys fs.FileSystem
	path string
	size atomic.Int64
}

func (m *fileMedium) kind() string { return "file" }

func (m *fileMedium) capacity() int64 { return m.size.Load() }

func (m *fileMedium) grow(size int64) error {
	if size <= m.size.Load() {
		return nil
	}
	if err := m.file.Truncate(size); err != nil {
		return err
	}
	m.size.Store(size)
	return nil
}

func (m *fileMedium) readAt(p []byte, off int64) (int, error) {
	return m.file.ReadAt(p, off)
}

func (m *fileMedium) writeAt(p []byte, off int64) (int, error) {
	return m.file.WriteAt(p, off)
}

func (m *fileMedium) sync() error { return m.file.Sync() }

func (m *fileMedium) truncate() error {
	if err := m.file.Truncate(0); err != nil {
		return err
	}
	m.size.Store(0)
	return nil
}

func (m *fileMedium) close() error { return m.file.Close() }

func (m *fileMedium) remove() error {
	if err := m.fsys.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
