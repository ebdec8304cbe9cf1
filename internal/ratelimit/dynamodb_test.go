package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	hits         map[string]int64
	getErr       error
	updateErr    error
	lastGetInput *dynamodb.GetItemInput
	lastUpdateIn *dynamodb.UpdateItemInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{hits: make(map[string]int64)}
}

func itemKey(key map[string]types.AttributeValue) string {
	return key["PK"].(*types.AttributeValueMemberS).Value + "|" + key["SK"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	if f.getErr != nil {
		return nil, f.getErr
	}
	n, ok := f.hits[itemKey(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"hits": &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)},
	}}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpdateIn = in
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	k := itemKey(in.Key)
	f.hits[k]++
	return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
		"hits": &types.AttributeValueMemberN{Value: strconv.FormatInt(f.hits[k], 10)},
	}}, nil
}

func TestNewDynamoStore_Validates(t *testing.T) {
	_, err := NewDynamoStore(nil, "t")
	require.Error(t, err)
	_, err = NewDynamoStore(newFakeDynamo(), " ")
	require.Error(t, err)
}

func TestDynamoStore_IncrementAndCount(t *testing.T) {
	db := newFakeDynamo()
	s, err := NewDynamoStore(db, "rate-limits")
	require.NoError(t, err)
	start := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	n, err := s.Increment(context.Background(), "chat#1.2.3.4", start, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	n, err = s.Increment(context.Background(), "chat#1.2.3.4", start, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	in := db.lastUpdateIn
	require.Equal(t, "rate-limits", aws.ToString(in.TableName))
	require.Equal(t, "RATE#chat#1.2.3.4", in.Key["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "WIN#1792238400", in.Key["SK"].(*types.AttributeValueMemberS).Value)
	require.Contains(t, aws.ToString(in.UpdateExpression), "ADD hits :one")
	require.Equal(t, types.ReturnValueUpdatedNew, in.ReturnValues)
	ttl := in.ExpressionAttributeValues[":ttl"].(*types.AttributeValueMemberN).Value
	require.Equal(t, "1792242060", ttl)

	count, err := s.Count(context.Background(), "chat#1.2.3.4", start)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
	require.True(t, aws.ToBool(db.lastGetInput.ConsistentRead))

	count, err = s.Count(context.Background(), "chat#9.9.9.9", start)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestDynamoStore_Errors(t *testing.T) {
	db := newFakeDynamo()
	db.updateErr = errors.New("throttled")
	db.getErr = errors.New("unavailable")
	s, err := NewDynamoStore(db, "rate-limits")
	require.NoError(t, err)

	_, err = s.Increment(context.Background(), "k", time.Now(), time.Minute)
	require.ErrorContains(t, err, "throttled")
	_, err = s.Count(context.Background(), "k", time.Now())
	require.ErrorContains(t, err, "unavailable")
}

func TestIntAttr(t *testing.T) {
	_, err := intAttr(map[string]types.AttributeValue{}, "hits")
	require.ErrorContains(t, err, "missing")

	_, err = intAttr(map[string]types.AttributeValue{"hits": &types.AttributeValueMemberS{Value: "1"}}, "hits")
	require.ErrorContains(t, err, "not a number")

	_, err = intAttr(map[string]types.AttributeValue{"hits": &types.AttributeValueMemberN{Value: "x"}}, "hits")
	require.ErrorContains(t, err, "parse")
}

func TestLimiter_WithDynamoStore(t *testing.T) {
	s, err := NewDynamoStore(newFakeDynamo(), "rate-limits")
	require.NoError(t, err)
	l := newTestLimiter(t, 2, time.Minute, s, time.Date(2026, 10, 17, 12, 0, 30, 0, time.UTC))

	for _, want := range []bool{true, true, false} {
		d, err := l.Allow(context.Background(), "c")
		require.NoError(t, err)
		require.Equal(t, want, d.Allowed)
	}
}
