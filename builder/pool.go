package builder

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/burrow/diskmap"
)

// ErrNotBorrowed is returned when releasing a map that did not come from
// AcquireTemporaryMap.
var ErrNotBorrowed = errors.New("builder: map not borrowed from pool")

// tempPool recycles scratch maps. The semaphore bounds the number of maps
// borrowed at once; idle maps wait in free. Maps borrowed before a reset
// belong to an older generation and are dropped on release.
type tempPool struct {
	sem *semaphore.Weighted

	mu       sync.Mutex
	gen      uint64
	free     []*diskmap.Map
	borrowed map[*diskmap.Map]uint64
}

func newTempPool(size int) *tempPool {
	return &tempPool{
		sem:      semaphore.NewWeighted(int64(size)),
		borrowed: make(map[*diskmap.Map]uint64),
	}
}

// drain forgets idle maps after the store was reset or closed.
func (p *tempPool) drain() {
	p.mu.Lock()
	p.gen++
	p.free = nil
	p.mu.Unlock()
}

// AcquireTemporaryMap borrows an empty scratch map, blocking while the pool
// is exhausted. The map is exclusively owned until ReleaseTemporaryMap.
func (b *Builder) AcquireTemporaryMap(ctx context.Context) (*diskmap.Map, error) {
	p := b.pool
	if !p.sem.TryAcquire(1) {
		b.logger.Warn("temporary map pool exhausted, waiting", slog.Int("size", b.opts.TempPoolSize))
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	if n := len(p.free); n > 0 {
		m := p.free[n-1]
		p.free = p.free[:n-1]
		p.borrowed[m] = p.gen
		p.mu.Unlock()
		return m, nil
	}
	gen := p.gen
	p.mu.Unlock()

	m, err := b.NewMapHeader(b.opts.TempLoadFactor)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	p.mu.Lock()
	p.borrowed[m] = gen
	p.mu.Unlock()
	b.logger.Debug("temporary map created", slog.Int64("header", m.HeaderPos()))
	return m, nil
}

// ReleaseTemporaryMap clears m and returns it to the pool.
func (b *Builder) ReleaseTemporaryMap(m *diskmap.Map) error {
	p := b.pool
	p.mu.Lock()
	gen, ok := p.borrowed[m]
	delete(p.borrowed, m)
	stale := gen != p.gen
	p.mu.Unlock()
	if !ok {
		return ErrNotBorrowed
	}
	defer p.sem.Release(1)

	if stale {
		return nil
	}
	if err := m.Clear(); err != nil {
		return err
	}
	p.mu.Lock()
	if gen == p.gen {
		p.free = append(p.free, m)
	}
	p.mu.Unlock()
	return nil
}

// WithTemporaryMap runs fn with a borrowed scratch map and releases it
// afterwards, whatever fn returns.
func (b *Builder) WithTemporaryMap(ctx context.Context, fn func(m *diskmap.Map) error) (err error) {
	m, err := b.AcquireTemporaryMap(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := b.ReleaseTemporaryMap(m); err == nil {
			err = rerr
		}
	}()
	return fn(m)
}
