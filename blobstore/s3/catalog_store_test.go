package s3

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/burrow/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient is an in-memory DynamoDB table keyed by catalog and version.
type mockDDBClient struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{items: make(map[string]map[string]types.AttributeValue)}
}

func attrS(item map[string]types.AttributeValue, name string) string {
	return item[name].(*types.AttributeValueMemberS).Value
}

func attrN(item map[string]types.AttributeValue, name string) uint64 {
	v, _ := strconv.ParseUint(item[name].(*types.AttributeValueMemberN).Value, 10, 64)
	return v
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%s:%d", attrS(params.Item, "catalog"), attrN(params.Item, "version"))
	if aws.ToString(params.ConditionExpression) == "attribute_not_exists(version)" {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}
	m.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	catalog := params.ExpressionAttributeValues[":c"].(*types.AttributeValueMemberS).Value
	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		if attrS(item, "catalog") == catalog {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b map[string]types.AttributeValue) int {
		va, vb := attrN(a, "version"), attrN(b, "version")
		switch {
		case va > vb:
			return -1
		case va < vb:
			return 1
		}
		return 0
	})
	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func newTestCatalogStore(ddb *mockDDBClient, catalog string) *CatalogStore {
	return NewCatalogStore(NewStore(new(MockS3Client), "test-bucket", "test/"), ddb, "burrow-catalog", catalog)
}

func readPointer(t *testing.T, s blobstore.BlobStore) string {
	t.Helper()
	data, err := blobstore.ReadAll(context.Background(), s, DefaultPointerName)
	require.NoError(t, err)
	return string(data)
}

func TestCatalogStore_Publish(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalogStore(newMockDDBClient(), "s3://test-bucket/test/")

	_, err := store.Open(ctx, DefaultPointerName)
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.Put(ctx, DefaultPointerName, []byte(fmt.Sprintf("backup-%04d", i))))
	}
	assert.Equal(t, "backup-0003", readPointer(t, store))

	version, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), version)

	require.ErrorIs(t, store.Delete(ctx, DefaultPointerName), errors.ErrUnsupported)
}

func TestCatalogStore_ConflictingCommit(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalogStore(newMockDDBClient(), "s3://test-bucket/test/")

	require.NoError(t, store.commit(ctx, 1, "backup-a"))
	require.ErrorIs(t, store.commit(ctx, 1, "backup-b"), ErrConcurrentModification)
	assert.Equal(t, "backup-a", readPointer(t, store))
}

func TestCatalogStore_ConcurrentPublishers(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalogStore(newMockDDBClient(), "s3://test-bucket/test/")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Put(ctx, DefaultPointerName, []byte(fmt.Sprintf("backup-%d", i)))
			if err != nil && !errors.Is(err, ErrConcurrentModification) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	version, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Positive(t, successes)
	assert.Equal(t, uint64(successes), version, "every successful publish owns exactly one version")
}

func TestCatalogStore_IsolatedCatalogs(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()
	a := newTestCatalogStore(ddb, "s3://bucket-a/path/")
	b := newTestCatalogStore(ddb, "s3://bucket-b/path/")

	require.NoError(t, a.Put(ctx, DefaultPointerName, []byte("backup-a")))
	require.NoError(t, b.Put(ctx, DefaultPointerName, []byte("backup-b")))

	assert.Equal(t, "backup-a", readPointer(t, a))
	assert.Equal(t, "backup-b", readPointer(t, b))
}
