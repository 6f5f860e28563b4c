package metadata

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// GetItemAPI is the part of the DynamoDB client used for metadata lookups.
type GetItemAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

var (
	dynamoClient  *dynamodb.Client
	dynamoInitErr error
	dynamoOnce    sync.Once
)

// SharedDynamoDBClient loads the default AWS config once per process and
// returns the same client to every caller.
func SharedDynamoDBClient(ctx context.Context) (*dynamodb.Client, error) {
	dynamoOnce.Do(func() {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			dynamoInitErr = fmt.Errorf("unable to load SDK config: %w", err)
			return
		}
		dynamoClient = dynamodb.NewFromConfig(cfg)
	})
	return dynamoClient, dynamoInitErr
}

type DynamoStore struct {
	Client       GetItemAPI
	TableName    string
	KeyAttribute string
}

func NewDynamoStore(client GetItemAPI, table, keyAttribute string) (*DynamoStore, error) {
	if client == nil {
		return nil, fmt.Errorf("dynamodb client is not initialized")
	}
	if table == "" {
		return nil, fmt.Errorf("dynamodb metadata table is not set")
	}
	if keyAttribute == "" {
		keyAttribute = "metakey"
	}
	return &DynamoStore{Client: client, TableName: table, KeyAttribute: keyAttribute}, nil
}

// Get returns every attribute of the item, the key attribute included.
func (s *DynamoStore) Get(ctx context.Context, key string) (Record, bool, error) {
	out, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.TableName),
		Key: map[string]types.AttributeValue{
			s.KeyAttribute: &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("dynamodb get item %s/%s: %w", s.TableName, key, err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, false, nil
	}

	var item map[string]any
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal metadata item %s: %w", key, err)
	}
	return toRecord(item), true, nil
}
