package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	pkPrefix = "RATE#"
	skPrefix = "WIN#"
	// Counters outlive their window a little so late reads still see them
	// before DynamoDB TTL removes the item.
	ttlGrace = time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore keeps counters in a DynamoDB table (PK, SK string keys, TTL on
// "ttl") so that every Lambda instance shares the same windows.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
}

func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("ratelimit: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("ratelimit: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName}, nil
}

func counterKey(key string, windowStart time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pkPrefix + key},
		"SK": &types.AttributeValueMemberS{Value: skPrefix + strconv.FormatInt(windowStart.Unix(), 10)},
	}
}

// Increment atomically adds one hit and returns the new total.
func (s *DynamoStore) Increment(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error) {
	ttl := windowStart.Add(window).Add(ttlGrace).Unix()
	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              counterKey(key, windowStart),
		UpdateExpression: aws.String("ADD hits :one SET #ttl = if_not_exists(#ttl, :ttl)"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("dynamodb increment: %w", err)
	}
	if out == nil {
		return 0, errors.New("dynamodb increment: empty response")
	}
	hits, err := intAttr(out.Attributes, "hits")
	if err != nil {
		return 0, fmt.Errorf("dynamodb increment: %w", err)
	}
	return hits, nil
}

func (s *DynamoStore) Count(ctx context.Context, key string, windowStart time.Time) (int64, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            counterKey(key, windowStart),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("dynamodb count: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return 0, nil
	}
	hits, err := intAttr(out.Item, "hits")
	if err != nil {
		return 0, fmt.Errorf("dynamodb count: %w", err)
	}
	return hits, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
