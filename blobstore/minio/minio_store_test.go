package minio

import (
	"context"
	"io"
	"net/http"
	"os"
	"testing"

	"github.com/hupe1980/burrow/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "", normalizePrefix(""))
	assert.Equal(t, "", normalizePrefix("/"))
	assert.Equal(t, "backups/", normalizePrefix("backups"))
	assert.Equal(t, "a/b/", normalizePrefix("/a/b/"))

	store := NewStore(nil, "bucket", "backups", func(o *Options) { o.ContentType = "application/x-burrow" })
	assert.Equal(t, "backups/LATEST", store.key("LATEST"))
	assert.Equal(t, "application/x-burrow", store.putOptions().ContentType)
	assert.Equal(t, DefaultOptions.PartSize, store.putOptions().PartSize)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(minio.ErrorResponse{StatusCode: http.StatusNotFound}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}))
}

// TestMinioStore_Integration requires a running MinIO instance at
// BURROW_MINIO_ENDPOINT (e.g. localhost:9000).
func TestMinioStore_Integration(t *testing.T) {
	endpoint := os.Getenv("BURROW_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("BURROW_MINIO_ENDPOINT not set")
	}
	bucket := "burrow-test"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "test.txt", data))

	blob, err := store.Open(ctx, "test.txt")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, len(data))
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, buf)

	rc, err := blob.ReadRange(ctx, 6, 5)
	require.NoError(t, err)
	part, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "minio", string(part))
	require.NoError(t, rc.Close())
	require.NoError(t, blob.Close())

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "test.txt")

	require.NoError(t, store.Delete(ctx, "test.txt"))
	_, err = store.Open(ctx, "test.txt")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	wb, err := store.Create(ctx, "stream.txt")
	require.NoError(t, err)
	_, err = wb.Write([]byte("streamed data"))
	require.NoError(t, err)
	require.NoError(t, wb.Close())

	streamed, err := blobstore.ReadAll(ctx, store, "stream.txt")
	require.NoError(t, err)
	assert.Equal(t, "streamed data", string(streamed))

	_ = store.Delete(ctx, "stream.txt")
}
