package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// DynamoAPI is the subset of *dynamodb.Client methods used by DynamoTable.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoTable implements Table on a DynamoDB table with a composite
// (pk, rk) primary key. One DynamoTable serves one partition value.
type DynamoTable struct {
	client    DynamoAPI
	tableName string
	partition string
}

// NewDynamoTable creates a Table over tableName scoped to partition.
func NewDynamoTable(client DynamoAPI, tableName, partition string) *DynamoTable {
	return &DynamoTable{
		client:    client,
		tableName: tableName,
		partition: partition,
	}
}

func (t *DynamoTable) key(key string) Item {
	return Item{
		PartitionAttr: &types.AttributeValueMemberS{Value: t.partition},
		KeyAttr:       &types.AttributeValueMemberS{Value: key},
	}
}

// withKey returns a copy of item carrying the primary key and a fresh version.
func (t *DynamoTable) withKey(key string, item Item) (Item, string) {
	out := maps.Clone(item)
	if out == nil {
		out = Item{}
	}
	maps.Copy(out, t.key(key))
	version := newVersion()
	out[VersionAttr] = &types.AttributeValueMemberS{Value: version}
	return out, version
}

func (t *DynamoTable) Get(ctx context.Context, key string) (Item, error) {
	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.tableName),
		Key:            t.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", t.partition, key, describe(err))
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%s/%s: %w", t.partition, key, ErrNotFound)
	}
	return out.Item, nil
}

func (t *DynamoTable) Create(ctx context.Context, key string, item Item) (string, error) {
	full, version := t.withKey(key, item)

	_, err := t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(t.tableName),
		Item:                full,
		ConditionExpression: aws.String("attribute_not_exists(rk)"),
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return "", fmt.Errorf("%s/%s: %w", t.partition, key, ErrAlreadyExists)
		}
		return "", fmt.Errorf("failed to create %s/%s: %w", t.partition, key, describe(err))
	}
	return version, nil
}

func (t *DynamoTable) Update(ctx context.Context, key string, item Item, expectedVersion string) (string, error) {
	full, version := t.withKey(key, item)

	_, err := t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(t.tableName),
		Item:                full,
		ConditionExpression: aws.String("attribute_exists(rk) AND #v = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#v": VersionAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberS{Value: expectedVersion},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			if condFailed.Item == nil {
				return "", fmt.Errorf("%s/%s: %w", t.partition, key, ErrNotFound)
			}
			return "", fmt.Errorf("%s/%s: %w", t.partition, key, ErrVersionConflict)
		}
		return "", fmt.Errorf("failed to update %s/%s: %w", t.partition, key, describe(err))
	}
	return version, nil
}

func (t *DynamoTable) Scan(ctx context.Context) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		paginator := dynamodb.NewQueryPaginator(t.client, &dynamodb.QueryInput{
			TableName:              aws.String(t.tableName),
			KeyConditionExpression: aws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: t.partition},
			},
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(nil, fmt.Errorf("failed to query %s: %w", t.partition, describe(err)))
				return
			}
			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// describe prefixes AWS API errors with their service error code.
func describe(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", apiErr.ErrorCode(), err)
	}
	return err
}
