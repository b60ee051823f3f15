package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/burrow/blobstore"
)

// DefaultPointerName is the blob name CatalogStore serves from DynamoDB.
const DefaultPointerName = "LATEST"

// ErrConcurrentModification is returned when another writer published a
// pointer version first.
var ErrConcurrentModification = errors.New("s3: concurrent modification detected")

// DDBClient is the subset of the DynamoDB API CatalogStore uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// CatalogStore is a Store whose pointer blob lives in DynamoDB instead of
// S3. Every Put of the pointer appends a new version with a conditional
// write, which S3 alone cannot provide.
//
// Table schema:
//   - Partition key: catalog (string), the S3 location of the backups
//   - Sort key: version (number), increasing per publish
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name burrow-catalog \
//	  --attribute-definitions AttributeName=catalog,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=catalog,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CatalogStore struct {
	*Store
	ddb     DDBClient
	table   string
	catalog string
	pointer string
}

// NewCatalogStore serves the pointer from table, partitioned by catalog
// (e.g. "s3://bucket/prefix").
func NewCatalogStore(store *Store, ddb DDBClient, table, catalog string) *CatalogStore {
	return &CatalogStore{
		Store:   store,
		ddb:     ddb,
		table:   table,
		catalog: catalog,
		pointer: DefaultPointerName,
	}
}

func (s *CatalogStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if name != s.pointer {
		return s.Store.Open(ctx, name)
	}
	version, target, err := s.latest(ctx)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, blobstore.ErrNotFound
	}
	return blobstore.NewBytesBlob([]byte(target)), nil
}

func (s *CatalogStore) Put(ctx context.Context, name string, data []byte) error {
	if name != s.pointer {
		return s.Store.Put(ctx, name, data)
	}
	version, _, err := s.latest(ctx)
	if err != nil {
		return err
	}
	return s.commit(ctx, version+1, string(data))
}

// Delete refuses to remove the pointer; its history is append-only.
func (s *CatalogStore) Delete(ctx context.Context, name string) error {
	if name == s.pointer {
		return errors.ErrUnsupported
	}
	return s.Store.Delete(ctx, name)
}

// Version returns the latest published pointer version, 0 if none.
func (s *CatalogStore) Version(ctx context.Context) (uint64, error) {
	version, _, err := s.latest(ctx)
	return version, err
}

func (s *CatalogStore) latest(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("catalog = :c"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: s.catalog},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return 0, "", fmt.Errorf("s3: query catalog: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3: invalid version attribute in catalog")
	}
	targetAttr, ok := item["target"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3: invalid target attribute in catalog")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("s3: parse catalog version: %w", err)
	}
	return version, targetAttr.Value, nil
}

func (s *CatalogStore) commit(ctx context.Context, version uint64, target string) error {
	_, err := s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"catalog": &types.AttributeValueMemberS{Value: s.catalog},
			"version": &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
			"target":  &types.AttributeValueMemberS{Value: target},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("s3: commit catalog version: %w", err)
	}
	return nil
}
