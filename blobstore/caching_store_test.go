package blobstore

import (
	"context"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	*MemoryStore
	reads atomic.Int64
}

func (s *countingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.MemoryStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingBlob{Blob: b, reads: &s.reads}, nil
}

type countingBlob struct {
	Blob
	reads *atomic.Int64
}

func (b *countingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	b.reads.Add(1)
	return b.Blob.ReadAt(ctx, p, off)
}

func TestCachingStore_ReadAt(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{MemoryStore: NewMemoryStore()}

	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, inner.Put(ctx, "blob", data))

	store := NewCachingStore(inner, 64, 256)
	blob, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	defer blob.Close()

	buf := make([]byte, 300)
	n, err := blob.ReadAt(ctx, buf, 100)
	require.NoError(t, err)
	assert.Equal(t, 300, n)
	assert.Equal(t, data[100:400], buf)
	assert.Equal(t, int64(1), inner.reads.Load(), "contiguous misses are coalesced")

	n, err = blob.ReadAt(ctx, buf[:200], 256)
	require.NoError(t, err)
	assert.Equal(t, 200, n)
	assert.Equal(t, data[256:456], buf[:200])
	assert.Equal(t, int64(1), inner.reads.Load())

	tail := make([]byte, 100)
	n, err = blob.ReadAt(ctx, tail, 950)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 50, n)
	assert.Equal(t, data[950:], tail[:50])

	_, err = blob.ReadAt(ctx, tail, 1000)
	require.ErrorIs(t, err, io.EOF)

	hits, misses := store.Stats()
	assert.Positive(t, hits)
	assert.Positive(t, misses)
}

func TestCachingStore_PutInvalidates(t *testing.T) {
	ctx := context.Background()
	store := NewCachingStore(NewMemoryStore(), 16, 4)

	require.NoError(t, store.Put(ctx, "LATEST", []byte("aaaa")))
	got, err := ReadAll(ctx, store, "LATEST")
	require.NoError(t, err)
	assert.Equal(t, "aaaa", string(got))

	require.NoError(t, store.Put(ctx, "LATEST", []byte("bbbb")))
	got, err = ReadAll(ctx, store, "LATEST")
	require.NoError(t, err)
	assert.Equal(t, "bbbb", string(got))

	w, err := store.Create(ctx, "LATEST")
	require.NoError(t, err)
	_, err = w.Write([]byte("cccc"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err = ReadAll(ctx, store, "LATEST")
	require.NoError(t, err)
	assert.Equal(t, "cccc", string(got))
}

func TestCachingStore_ContextCanceled(t *testing.T) {
	ctx := context.Background()
	store := NewCachingStore(NewMemoryStore(), 16, 4)
	require.NoError(t, store.Put(ctx, "x", []byte("data")))

	blob, err := store.Open(ctx, "x")
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = blob.ReadAt(canceled, make([]byte, 4), 0)
	require.ErrorIs(t, err, context.Canceled)
}
