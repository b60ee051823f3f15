package burrow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/burrow/backup"
	"github.com/hupe1980/burrow/blobstore"
	"github.com/hupe1980/burrow/codec"
	"github.com/hupe1980/burrow/diskmap"
	"github.com/hupe1980/burrow/record"
)

func openDB(t *testing.T, backend Backend, optFns ...Option) *DB {
	t.Helper()
	db, err := Open(context.Background(), backend, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func fill(t *testing.T, m *Map, n int) {
	t.Helper()
	for i := range n {
		_, _, err := m.Put(fmt.Sprintf("key-%04d", i), fmt.Sprintf("value-%04d", i))
		require.NoError(t, err)
	}
}

func TestOpen_Backends(t *testing.T) {
	dir := t.TempDir()
	backends := map[string]Backend{
		"memory": Memory(),
		"file":   File(filepath.Join(dir, "file.db")),
		"mmap":   Mmap(filepath.Join(dir, "mmap.db")),
	}

	for name, backend := range backends {
		t.Run(name, func(t *testing.T) {
			db := openDB(t, backend)

			m, err := db.Map("users", 3)
			require.NoError(t, err)
			fill(t, m, 200)
			assert.Equal(t, int64(200), m.Len())

			v, ok, err := m.Get("key-0042")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "value-0042", v)

			old, ok, err := m.Remove("key-0042")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "value-0042", old)

			names, err := db.Names()
			require.NoError(t, err)
			assert.Equal(t, []string{"users"}, names)
			require.NoError(t, db.Commit())
			assert.Positive(t, db.Size())
		})
	}
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "burrow.db")

	db, err := Open(ctx, Mmap(path))
	require.NoError(t, err)
	m, err := db.OrderedMap("events")
	require.NoError(t, err)
	fill(t, m, 100)
	c, err := db.Counter("seq")
	require.NoError(t, err)
	c.Set(41)
	require.NoError(t, db.Close())

	db, err = Open(ctx, Mmap(path))
	require.NoError(t, err)
	defer db.Close()

	m, err = db.OrderedMap("events")
	require.NoError(t, err)
	assert.True(t, m.IsOrdered())
	assert.Equal(t, int64(100), m.Len())

	var keys []any
	for e, err := range m.Range(diskmap.Incl("key-0010"), diskmap.Excl("key-0013")) {
		require.NoError(t, err)
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []any{"key-0010", "key-0011", "key-0012"}, keys)

	c, err = db.Counter("seq")
	require.NoError(t, err)
	assert.Equal(t, int64(41), c.Get())
}

func TestDB_Metrics(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	db := openDB(t, Memory(), WithMetricsCollector(metrics))

	m, err := db.Map("m", 2)
	require.NoError(t, err)
	fill(t, m, 10)

	_, ok, err := m.Get("key-0001")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = m.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.Compute("hits", func(old any, ok bool) (any, bool, error) {
		return "1", true, nil
	})
	require.NoError(t, err)
	_, _, err = m.Remove("key-0002")
	require.NoError(t, err)
	require.NoError(t, db.Commit())

	stats := metrics.GetStats()
	assert.Equal(t, int64(10), stats.PutCount)
	assert.Equal(t, int64(2), stats.GetCount)
	assert.Equal(t, int64(1), stats.GetHits)
	assert.Equal(t, int64(1), stats.RemoveCount)
	assert.Equal(t, int64(1), stats.ComputeCount)
	assert.Equal(t, int64(1), stats.CommitCount)
}

func TestDB_Records(t *testing.T) {
	db := openDB(t, Memory())

	people, err := db.Records(record.Descriptor{
		Entity: codec.EntityDescriptor{
			Name:     "person",
			Versions: [][]string{{"id", "name"}},
		},
		Identifier: "id",
	})
	require.NoError(t, err)

	id, err := people.Save(codec.Entity{Values: map[string]any{"name": "ada"}})
	require.NoError(t, err)
	got, ok, err := people.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ada", got.Values["name"])
}

func TestDB_TemporaryMap(t *testing.T) {
	db := openDB(t, Memory(), WithTemporaryMaps(1))

	err := db.WithTemporaryMap(context.Background(), func(m *diskmap.Map) error {
		_, _, err := m.Put("scratch", "x")
		return err
	})
	require.NoError(t, err)

	// The map is handed out cleared.
	err = db.WithTemporaryMap(context.Background(), func(m *diskmap.Map) error {
		assert.Equal(t, int64(0), m.Len())
		return nil
	})
	require.NoError(t, err)
}

func TestDB_BackupRestore(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	src := openDB(t, Memory())
	m, err := src.Map("users", 4)
	require.NoError(t, err)
	fill(t, m, 500)

	info, err := src.Backup(ctx, bs, "first.bak", func(o *backup.Options) { o.Codec = backup.CodecLZ4 })
	require.NoError(t, err)
	assert.Equal(t, src.Size(), info.RawSize)

	fill(t, m, 600)
	_, err = src.Backup(ctx, bs, "second.bak")
	require.NoError(t, err)

	names, err := backup.List(ctx, bs, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"first.bak", "second.bak"}, names)

	dst := openDB(t, Memory())
	require.NoError(t, dst.Restore(ctx, bs, ""))
	m, err = dst.Map("users", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(600), m.Len())

	require.NoError(t, dst.Restore(ctx, bs, "first.bak"))
	m, err = dst.Map("users", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(500), m.Len())
	v, ok, err := m.Get("key-0499")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value-0499", v)
}

func TestDB_BackupUnderWrites(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	src := openDB(t, Memory())
	hashed, err := src.Map("hashed", 3)
	require.NoError(t, err)
	ordered, err := src.OrderedMap("ordered")
	require.NoError(t, err)

	stop := make(chan struct{})
	var writers errgroup.Group
	for w := range 4 {
		writers.Go(func() error {
			for i := 0; ; i++ {
				select {
				case <-stop:
					return nil
				default:
				}
				key := fmt.Sprintf("w%d-%05d", w, i)
				val := strings.Repeat("x", i%97) + key
				if _, _, err := hashed.Put(key, val); err != nil {
					return err
				}
				if _, _, err := ordered.Put(key, val); err != nil {
					return err
				}
				if i%5 == 0 {
					if _, _, err := hashed.Remove(fmt.Sprintf("w%d-%05d", w, i/2)); err != nil {
						return err
					}
				}
			}
		})
	}

	const snapshots = 5
	for i := range snapshots {
		_, err := src.Backup(ctx, bs, fmt.Sprintf("snap-%d.bak", i))
		require.NoError(t, err)
	}
	close(stop)
	require.NoError(t, writers.Wait())

	dst := openDB(t, Memory())
	for i := range snapshots {
		name := fmt.Sprintf("snap-%d.bak", i)
		require.NoError(t, dst.Restore(ctx, bs, name), name)

		for _, mapName := range []string{"hashed", "ordered"} {
			var m *Map
			if mapName == "hashed" {
				m, err = dst.Map(mapName, 3)
			} else {
				m, err = dst.OrderedMap(mapName)
			}
			require.NoError(t, err)

			_, err = m.Stats()
			require.NoError(t, err, "%s/%s", name, mapName)

			var n int64
			for e, err := range m.All() {
				require.NoError(t, err, "%s/%s", name, mapName)
				key, ok := e.Key.(string)
				require.True(t, ok)
				assert.True(t, strings.HasSuffix(e.Value.(string), key), "%s/%s: %q", name, mapName, key)
				n++
			}
			assert.Equal(t, m.Len(), n, "%s/%s", name, mapName)
		}
	}
}

func TestOpen_WithRestore(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	src := openDB(t, Memory())
	m, err := src.Map("users", 2)
	require.NoError(t, err)
	fill(t, m, 50)
	_, err = src.Backup(ctx, bs, "snap.bak")
	require.NoError(t, err)

	db := openDB(t, Memory(), WithRestore(bs, ""))
	m, err = db.Map("users", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(50), m.Len())

	t.Run("missing backup", func(t *testing.T) {
		_, err := Open(ctx, Memory(), WithRestore(blobstore.NewMemoryStore(), ""))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("non-empty volume is kept", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "keep.db")
		db, err := Open(ctx, File(path))
		require.NoError(t, err)
		_, err = db.Map("local", 2)
		require.NoError(t, err)
		require.NoError(t, db.Close())

		db = openDB(t, File(path), WithRestore(bs, ""))
		names, err := db.Names()
		require.NoError(t, err)
		assert.Equal(t, []string{"local"}, names)
	})
}

func TestDB_RestoreCorrupt(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	require.NoError(t, bs.Put(ctx, "junk.bak", []byte("definitely not a backup")))

	db := openDB(t, Memory())
	m, err := db.Map("users", 2)
	require.NoError(t, err)
	fill(t, m, 5)

	t.Run("bad framing keeps the volume", func(t *testing.T) {
		err := db.Restore(ctx, bs, "junk.bak")
		require.ErrorIs(t, err, ErrCorrupt)
		names, err := db.Names()
		require.NoError(t, err)
		assert.Equal(t, []string{"users"}, names)
	})

	t.Run("missing backup", func(t *testing.T) {
		err := db.Restore(ctx, bs, "missing.bak")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("bad checksum empties the volume", func(t *testing.T) {
		_, err := db.Backup(ctx, bs, "good.bak", func(o *backup.Options) { o.Codec = backup.CodecNone })
		require.NoError(t, err)
		data, err := blobstore.ReadAll(ctx, bs, "good.bak")
		require.NoError(t, err)
		data[len(data)-16-10] ^= 0xff
		require.NoError(t, bs.Put(ctx, "good.bak", data))

		err = db.Restore(ctx, bs, "good.bak")
		require.ErrorIs(t, err, ErrCorrupt)

		names, err := db.Names()
		require.NoError(t, err)
		assert.Empty(t, names)
		m, err := db.Map("users", 2)
		require.NoError(t, err)
		assert.Equal(t, int64(0), m.Len())
	})
}

func TestDB_Closed(t *testing.T) {
	db, err := Open(context.Background(), Memory())
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err = db.Names()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.Map("m", 2)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, db.Reset(), ErrClosed)
}

func TestDB_Reset(t *testing.T) {
	db := openDB(t, Memory())
	m, err := db.Map("users", 2)
	require.NoError(t, err)
	fill(t, m, 20)

	require.NoError(t, db.Reset())
	names, err := db.Names()
	require.NoError(t, err)
	assert.Empty(t, names)
}
