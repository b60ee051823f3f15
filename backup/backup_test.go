package backup

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/hupe1980/burrow/blobstore"
	"github.com/hupe1980/burrow/internal/resource"
	"github.com/hupe1980/burrow/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVolume(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func fillVolume(t *testing.T, st store.Store, n int) []int64 {
	t.Helper()
	positions := make([]int64, n)
	for i := range n {
		p := []byte(fmt.Sprintf("record-%06d:%s", i, bytes.Repeat([]byte{byte(i)}, i%97)))
		pos, err := st.Allocate(store.PayloadSize(len(p)))
		require.NoError(t, err)
		require.NoError(t, st.WritePayload(pos, p))
		positions[i] = pos
	}
	st.SetRoot(positions[0])
	require.NoError(t, st.Commit())
	return positions
}

func image(t *testing.T, st store.Store) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := st.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()

	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			src := newVolume(t)
			positions := fillVolume(t, src, 2000)
			bs := blobstore.NewMemoryStore()

			info, err := Export(ctx, src, bs, "nightly.bak", func(o *Options) { o.Codec = codec })
			require.NoError(t, err)
			assert.Equal(t, "nightly.bak", info.Name)
			assert.Equal(t, codec, info.Codec)
			assert.Equal(t, src.Size(), info.RawSize)
			if codec != CodecNone {
				assert.Less(t, info.StoredSize, info.RawSize)
			}

			inspected, err := Inspect(ctx, bs, "nightly.bak")
			require.NoError(t, err)
			assert.Equal(t, info, inspected)

			dst := newVolume(t)
			fillVolume(t, dst, 3)
			restored, err := Import(ctx, bs, "nightly.bak", dst)
			require.NoError(t, err)
			assert.Equal(t, info.Checksum, restored.Checksum)

			assert.Equal(t, image(t, src), image(t, dst))
			assert.Equal(t, positions[0], dst.Root())
			p, err := dst.ReadPayload(positions[1234])
			require.NoError(t, err)
			assert.Contains(t, string(p), "record-001234:")
		})
	}
}

func TestImportRejectsCorruptBody(t *testing.T) {
	ctx := context.Background()
	src := newVolume(t)
	fillVolume(t, src, 100)
	bs := blobstore.NewMemoryStore()

	_, err := Export(ctx, src, bs, "b", func(o *Options) { o.Codec = CodecNone })
	require.NoError(t, err)

	data, err := blobstore.ReadAll(ctx, bs, "b")
	require.NoError(t, err)
	data[len(data)-trailerSize-10] ^= 0xff
	require.NoError(t, bs.Put(ctx, "b", data))

	dst := newVolume(t)
	_, err = Import(ctx, bs, "b", dst)
	require.ErrorIs(t, err, ErrChecksum)
	assert.Equal(t, int64(store.PreambleSize), dst.Size(), "rejected import leaves an empty volume")
}

func TestImportRejectsBadFraming(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	dst := newVolume(t)

	require.NoError(t, bs.Put(ctx, "tiny", []byte("nope")))
	_, err := Import(ctx, bs, "tiny", dst)
	require.ErrorIs(t, err, ErrInvalidFormat)

	require.NoError(t, bs.Put(ctx, "magic", bytes.Repeat([]byte{'x'}, 64)))
	_, err = Inspect(ctx, bs, "magic")
	require.ErrorIs(t, err, ErrInvalidFormat)

	src := newVolume(t)
	fillVolume(t, src, 10)
	_, err = Export(ctx, src, bs, "cut", func(o *Options) { o.Codec = CodecLZ4 })
	require.NoError(t, err)
	data, err := blobstore.ReadAll(ctx, bs, "cut")
	require.NoError(t, err)
	require.NoError(t, bs.Put(ctx, "cut", data[:len(data)-3]))
	_, err = Inspect(ctx, bs, "cut")
	require.ErrorIs(t, err, ErrInvalidFormat)

	_, err = Import(ctx, bs, "missing", dst)
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestExportCanceledLeavesNoBlob(t *testing.T) {
	src := newVolume(t)
	fillVolume(t, src, 100)
	bs := blobstore.NewLocalStore(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Export(ctx, src, bs, "canceled.bak")
	require.ErrorIs(t, err, context.Canceled)

	names, err := bs.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRateLimitedExport(t *testing.T) {
	ctx := context.Background()
	src := newVolume(t)
	fillVolume(t, src, 50)
	bs := blobstore.NewMemoryStore()
	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 20})

	_, err := Export(ctx, src, bs, "limited", func(o *Options) {
		o.Resources = rc
		o.Level = 3
	})
	require.NoError(t, err)

	dst := newVolume(t)
	_, err = Import(ctx, bs, "limited", dst, func(o *Options) { o.Resources = rc })
	require.NoError(t, err)
	assert.Equal(t, image(t, src), image(t, dst))
}

func TestPublishLatest(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	_, err := Latest(ctx, bs)
	require.ErrorIs(t, err, ErrNoBackup)

	src := newVolume(t)
	fillVolume(t, src, 10)
	for _, name := range []string{"backups/0001", "backups/0002"} {
		_, err := Export(ctx, src, bs, name)
		require.NoError(t, err)
		require.NoError(t, Publish(ctx, bs, name))
	}

	latest, err := Latest(ctx, bs)
	require.NoError(t, err)
	assert.Equal(t, "backups/0002", latest)

	names, err := List(ctx, bs, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"backups/0001", "backups/0002"}, names)
}
