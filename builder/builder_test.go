package builder

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/burrow/codec"
	"github.com/hupe1980/burrow/diskmap"
	"github.com/hupe1980/burrow/store"
)

func newMemBuilder(t *testing.T, optFns ...func(o *Options)) *Builder {
	t.Helper()
	st, err := store.NewMemoryStore()
	require.NoError(t, err)
	b, err := New(st, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBuilder_NamedStructures(t *testing.T) {
	b := newMemBuilder(t)

	m, err := b.GetMap("users", 3)
	require.NoError(t, err)
	again, err := b.GetMap("users", 7)
	require.NoError(t, err)
	assert.Same(t, m, again)
	assert.Equal(t, uint8(3), again.LoadFactor())

	om, err := b.GetOrderedMap("by-age")
	require.NoError(t, err)
	assert.True(t, om.IsOrdered())

	_, err = b.GetSet("tags", 1)
	require.NoError(t, err)
	_, err = b.GetCounter("users.seq")
	require.NoError(t, err)

	names, err := b.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"by-age", "tags", "users", "users.seq"}, names)

	_, err = b.GetSet("users", 1)
	require.ErrorIs(t, err, ErrKindMismatch)
	_, err = b.GetMap("__types", 1)
	require.ErrorIs(t, err, ErrReservedName)
}

func TestBuilder_ReopenRestoresCatalogAndTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.brw")

	st, err := store.NewMmapStore(path)
	require.NoError(t, err)
	b, err := New(st)
	require.NoError(t, err)
	require.NoError(t, b.Registry().RegisterEnum("color", "red", "green"))

	m, err := b.GetMap("things", 2)
	require.NoError(t, err)
	_, _, err = m.Put("apple", codec.Enum{Type: "color", Value: "red"})
	require.NoError(t, err)
	c, err := b.GetCounter("seq")
	require.NoError(t, err)
	c.Set(41)
	require.NoError(t, b.Close())

	st, err = store.NewMmapStore(path)
	require.NoError(t, err)
	reg := codec.NewRegistry()
	require.NoError(t, reg.RegisterEnum("color", "red", "green"))
	b, err = New(st, func(o *Options) { o.Registry = reg })
	require.NoError(t, err)
	defer b.Close()

	id, ok := reg.ID("color")
	require.True(t, ok)
	assert.GreaterOrEqual(t, id, uint32(codec.FirstDynamicID))

	m, err = b.GetMap("things", 2)
	require.NoError(t, err)
	v, ok, err := m.Get("apple")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, codec.Enum{Type: "color", Value: "red"}, v)

	c, err = b.GetCounter("seq")
	require.NoError(t, err)
	assert.Equal(t, int64(41), c.Get())
}

func TestBuilder_TemporaryMapsAreCleared(t *testing.T) {
	b := newMemBuilder(t, func(o *Options) { o.TempPoolSize = 1 })
	ctx := context.Background()

	m, err := b.AcquireTemporaryMap(ctx)
	require.NoError(t, err)
	_, _, err = m.Put("scratch", 1)
	require.NoError(t, err)
	require.NoError(t, b.ReleaseTemporaryMap(m))

	err = b.WithTemporaryMap(ctx, func(m2 *diskmap.Map) error {
		assert.Same(t, m, m2)
		assert.Equal(t, int64(0), m2.Len())
		_, ok, err := m2.Get("scratch")
		assert.False(t, ok)
		return err
	})
	require.NoError(t, err)

	require.ErrorIs(t, b.ReleaseTemporaryMap(m), ErrNotBorrowed)
}

func TestBuilder_TemporaryPoolBlocks(t *testing.T) {
	b := newMemBuilder(t, func(o *Options) { o.TempPoolSize = 1 })

	m, err := b.AcquireTemporaryMap(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.AcquireTemporaryMap(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m2, err := b.AcquireTemporaryMap(context.Background())
		assert.NoError(t, err)
		assert.NoError(t, b.ReleaseTemporaryMap(m2))
	}()
	require.NoError(t, b.ReleaseTemporaryMap(m))
	wg.Wait()
}

func TestBuilder_Reset(t *testing.T) {
	b := newMemBuilder(t)
	m, err := b.GetMap("a", 1)
	require.NoError(t, err)
	_, _, err = m.Put(1, 1)
	require.NoError(t, err)

	tmp, err := b.AcquireTemporaryMap(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.Reset())
	names, err := b.Names()
	require.NoError(t, err)
	assert.Empty(t, names)

	// A map borrowed before the reset is dropped, not cleared.
	require.NoError(t, b.ReleaseTemporaryMap(tmp))

	m, err = b.GetMap("a", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.Len())
}

func TestBuilder_CommitAndClose(t *testing.T) {
	b := newMemBuilder(t)
	m, err := b.GetMap("m", 1)
	require.NoError(t, err)
	_, _, err = m.Put("k", "v")
	require.NoError(t, err)

	require.NoError(t, b.Commit())
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err = b.GetMap("m", 1)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, b.Commit(), ErrClosed)
}

func TestBuilder_ReloadAfterRestore(t *testing.T) {
	src := newMemBuilder(t)
	m, err := src.GetMap("users", 2)
	require.NoError(t, err)
	_, _, err = m.Put("alice", int64(30))
	require.NoError(t, err)
	require.NoError(t, src.Commit())

	var img bytes.Buffer
	_, err = src.Store().WriteTo(&img)
	require.NoError(t, err)

	dst := newMemBuilder(t)
	_, err = dst.GetSet("stale", 1)
	require.NoError(t, err)

	_, err = dst.Store().ReadFrom(&img)
	require.NoError(t, err)
	require.NoError(t, dst.Reload())

	names, err := dst.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, names)

	restored, err := dst.GetMap("users", 2)
	require.NoError(t, err)
	v, ok, err := restored.Get("alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(30), v)
}
