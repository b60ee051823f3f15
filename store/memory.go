package store

import (
	"fmt"
	"sync"

	"github.com/hupe1980/burrow/internal/resource"
)

// NewMemoryStore creates an empty in-memory volume.
//
// Every slice is reserved against Options.Resources before it is added, so a
// volume that outgrows the memory budget fails Allocate with an error
// matching resource.ErrMemoryLimitExceeded.
func NewMemoryStore(optFns ...func(o *Options)) (*Volume, error) {
	opts, err := buildOptions(optFns)
	if err != nil {
		return nil, err
	}
	m := &memoryMedium{
		sliceSize: opts.SliceSize,
		rc:        opts.Resources,
	}
	m.pool.New = func() any { return make([]byte, m.sliceSize) }
	return openVolume(m, nil, opts)
}

type memoryMedium struct {
	sliceSize int64
	rc        *resource.Controller
	pool      sync.Pool

	mu     sync.RWMutex
	slices [][]byte
}

func (m *memoryMedium) kind() string { return "memory" }

func (m *memoryMedium) capacity() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.slices)) * m.sliceSize
}

func (m *memoryMedium) grow(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for int64(len(m.slices))*m.sliceSize < size {
		if err := m.rc.AcquireMemory(m.sliceSize); err != nil {
			return fmt.Errorf("memory slice %d: %w", len(m.slices), err)
		}
		b, _ := m.pool.Get().([]byte)
		clear(b)
		m.slices = append(m.slices, b)
	}
	return nil
}

func (m *memoryMedium) readAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyAt(p, off, false)
}

func (m *memoryMedium) writeAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyAt(p, off, true)
}

func (m *memoryMedium) copyAt(p []byte, off int64, write bool) (int, error) {
	if off+int64(len(p)) > int64(len(m.slices))*m.sliceSize {
		return 0, ErrOutOfBounds
	}
	spans(off, len(p), m.sliceSize, func(idx int, inner int64, lo, hi int) {
		if write {
			copy(m.slices[idx][inner:], p[lo:hi])
		} else {
			copy(p[lo:hi], m.slices[idx][inner:])
		}
	})
	return len(p), nil
}

func (m *memoryMedium) sync() error { return nil }

func (m *memoryMedium) truncate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.slices {
		m.pool.Put(b) //nolint:staticcheck // SA6002
		m.rc.ReleaseMemory(m.sliceSize)
	}
	m.slices = nil
	return nil
}

func (m *memoryMedium) close() error { return m.truncate() }

func (m *memoryMedium) remove() error { return nil }
