package blobstore

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/hupe1980/burrow/internal/cache"
	"golang.org/x/sync/errgroup"
)

// DefaultBlockSize is the cache granularity used when none is given.
const DefaultBlockSize = 64 * 1024

type blockKey struct {
	name  string
	gen   uint64
	block int64
}

// CachingStore wraps a BlobStore and caches reads in fixed-size blocks.
// Backups are read sequentially during import, and remote stores answer
// every ReadAt with a round trip.
type CachingStore struct {
	inner     BlobStore
	cache     *cache.LRU[blockKey, []byte]
	blockSize int64

	mu   sync.Mutex
	gens map[string]uint64
}

// NewCachingStore caches up to capacity blocks of blockSize bytes.
// blockSize defaults to DefaultBlockSize if <= 0.
func NewCachingStore(inner BlobStore, capacity int, blockSize int64) *CachingStore {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &CachingStore{
		inner:     inner,
		cache:     cache.NewLRU[blockKey, []byte](capacity),
		blockSize: blockSize,
		gens:      make(map[string]uint64),
	}
}

func (s *CachingStore) gen(name string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[name]
}

// invalidate orphans every cached block of name; the LRU evicts them over time.
func (s *CachingStore) invalidate(name string) {
	s.mu.Lock()
	s.gens[name]++
	s.mu.Unlock()
}

// Stats reports cache hits and misses.
func (s *CachingStore) Stats() (hits, misses int64) { return s.cache.Stats() }

func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &cachingBlob{inner: b, store: s, name: name, gen: s.gen(name)}, nil
}

func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	w, err := s.inner.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	return &invalidatingWriter{WritableBlob: w, done: func() { s.invalidate(name) }}, nil
}

func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	defer s.invalidate(name)
	return s.inner.Put(ctx, name, data)
}

func (s *CachingStore) Delete(ctx context.Context, name string) error {
	defer s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

type invalidatingWriter struct {
	WritableBlob
	done func()
}

func (w *invalidatingWriter) Close() error {
	defer w.done()
	return w.WritableBlob.Close()
}

type cachingBlob struct {
	inner Blob
	store *CachingStore
	name  string
	gen   uint64
}

func (b *cachingBlob) Close() error { return b.inner.Close() }

func (b *cachingBlob) Size() int64 { return b.inner.Size() }

func (b *cachingBlob) key(blk int64) blockKey {
	return blockKey{name: b.name, gen: b.gen, block: blk}
}

func (b *cachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	size := b.Size()
	if off >= size {
		return 0, io.EOF
	}

	bs := b.store.blockSize
	end := min(off+int64(len(p)), size)
	startBlock, endBlock := off/bs, (end-1)/bs

	if err := b.fill(ctx, startBlock, endBlock); err != nil {
		return 0, err
	}

	n := 0
	for blk := startBlock; blk <= endBlock; blk++ {
		data, err := b.block(ctx, blk)
		if err != nil {
			return n, err
		}
		blkStart := blk * bs
		from := max(off, blkStart)
		to := min(end, blkStart+int64(len(data)))
		if to <= from {
			break
		}
		n += copy(p[from-off:], data[from-blkStart:to-blkStart])
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// fill loads contiguous runs of missing blocks with one backend read each.
func (b *cachingBlob) fill(ctx context.Context, startBlock, endBlock int64) error {
	type run struct{ start, count int64 }
	var runs []run
	for blk := startBlock; blk <= endBlock; blk++ {
		if _, ok := b.store.cache.Get(b.key(blk)); ok {
			continue
		}
		if l := len(runs); l > 0 && runs[l-1].start+runs[l-1].count == blk {
			runs[l-1].count++
		} else {
			runs = append(runs, run{start: blk, count: 1})
		}
	}

	bs := b.store.blockSize
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for _, r := range runs {
		g.Go(func() error {
			start := r.start * bs
			length := min(r.count*bs, b.Size()-start)
			if length <= 0 {
				return nil
			}
			buf := make([]byte, length)
			n, err := b.inner.ReadAt(ctx, buf, start)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			buf = buf[:n]
			for i := int64(0); i < r.count && i*bs < int64(len(buf)); i++ {
				chunk := buf[i*bs : min((i+1)*bs, int64(len(buf)))]
				b.store.cache.Set(b.key(r.start+i), chunk)
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *cachingBlob) block(ctx context.Context, blk int64) ([]byte, error) {
	if data, ok := b.store.cache.Get(b.key(blk)); ok {
		return data, nil
	}
	// Evicted between fill and use.
	bs := b.store.blockSize
	buf := make([]byte, bs)
	n, err := b.inner.ReadAt(ctx, buf, blk*bs)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	buf = buf[:n]
	if n > 0 {
		b.store.cache.Set(b.key(blk), buf)
	}
	return buf, nil
}

func (b *cachingBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	limit := min(off+length, b.Size())
	return io.NopCloser(&sectionReader{ctx: ctx, blob: b, off: off, limit: limit}), nil
}
