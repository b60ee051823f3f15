package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]BlobStore {
	return map[string]BlobStore{
		"memory":  NewMemoryStore(),
		"local":   NewLocalStore(t.TempDir()),
		"caching": NewCachingStore(NewMemoryStore(), 64, 4),
	}
}

func TestBlobStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	data := []byte("hello world, this is a backup blob")

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			w, err := store.Create(ctx, "backups/a.bin")
			require.NoError(t, err)
			n, err := w.Write(data)
			require.NoError(t, err)
			require.Equal(t, len(data), n)
			require.NoError(t, w.Sync())
			require.NoError(t, w.Close())

			blob, err := store.Open(ctx, "backups/a.bin")
			require.NoError(t, err)
			require.Equal(t, int64(len(data)), blob.Size())

			buf := make([]byte, 5)
			n, err = blob.ReadAt(ctx, buf, 6)
			require.NoError(t, err)
			assert.Equal(t, 5, n)
			assert.Equal(t, "world", string(buf))

			r, err := blob.ReadRange(ctx, 13, 4)
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			assert.Equal(t, "this", string(got))

			r, err = blob.ReadRange(ctx, int64(len(data))-4, 10)
			require.NoError(t, err)
			got, err = io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "blob", string(got))
			require.NoError(t, blob.Close())

			require.NoError(t, store.Put(ctx, "backups/b.bin", []byte("second")))
			require.NoError(t, store.Put(ctx, "other.bin", nil))

			names, err := store.List(ctx, "backups/")
			require.NoError(t, err)
			assert.Equal(t, []string{"backups/a.bin", "backups/b.bin"}, names)

			all, err := ReadAll(ctx, store, "backups/a.bin")
			require.NoError(t, err)
			assert.Equal(t, data, all)

			empty, err := ReadAll(ctx, store, "other.bin")
			require.NoError(t, err)
			assert.Empty(t, empty)

			require.NoError(t, store.Delete(ctx, "backups/a.bin"))
			require.NoError(t, store.Delete(ctx, "backups/a.bin"))
			_, err = store.Open(ctx, "backups/a.bin")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBlobStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "LATEST", []byte("backup-0001")))
			got, err := ReadAll(ctx, store, "LATEST")
			require.NoError(t, err)
			assert.Equal(t, "backup-0001", string(got))

			require.NoError(t, store.Put(ctx, "LATEST", []byte("backup-0002")))
			got, err = ReadAll(ctx, store, "LATEST")
			require.NoError(t, err)
			assert.Equal(t, "backup-0002", string(got))
		})
	}
}

func TestLocalStore_NoPartialBlobs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewLocalStore(dir)

	w, err := store.Create(ctx, "pending.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "pending.bin"))
	require.ErrorIs(t, err, os.ErrNotExist)
	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, w.Close())
	names, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"pending.bin"}, names)

	_, err = w.Write([]byte("late"))
	require.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestLocalStore_ReadRangePastEnd(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())
	require.NoError(t, store.Put(ctx, "digits", []byte("0123456789")))

	blob, err := store.Open(ctx, "digits")
	require.NoError(t, err)
	defer blob.Close()

	_, err = blob.ReadRange(ctx, 20, 5)
	require.ErrorIs(t, err, io.EOF)
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "missing"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestAbort(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	w, err := store.Create(ctx, "aborted.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("discard me"))
	require.NoError(t, err)
	require.NoError(t, Abort(w))
	require.NoError(t, Abort(w))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)

	mem := NewMemoryStore()
	mw, err := mem.Create(ctx, "closed.bin")
	require.NoError(t, err)
	require.NoError(t, Abort(mw))
	_, err = mem.Open(ctx, "closed.bin")
	require.NoError(t, err)
}
