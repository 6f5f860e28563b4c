package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-logr/logr/testr"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	rec   Record
	found bool
	err   error
	calls int
}

func (f *fakeStore) Get(_ context.Context, _ string) (Record, bool, error) {
	f.calls++
	return f.rec, f.found, f.err
}

func TestResolveOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		store   *fakeStore
		want    Record
		outcome Outcome
	}{
		{"found", &fakeStore{rec: Record{"zone": "north"}, found: true}, Record{"zone": "north"}, OutcomeFound},
		{"not found", &fakeStore{}, nil, OutcomeNotFound},
		{"empty item", &fakeStore{rec: Record{}, found: true}, nil, OutcomeNotFound},
		{"store error", &fakeStore{err: errors.New("connection refused")}, nil, OutcomeDegraded},
		{"timeout", &fakeStore{err: context.DeadlineExceeded}, nil, OutcomeDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.store, testr.New(t))
			rec, outcome := r.Resolve(context.Background(), "k1")
			assert.Equal(t, tt.want, rec)
			assert.Equal(t, tt.outcome, outcome)
			assert.Equal(t, 1, tt.store.calls)
		})
	}
}

func TestResolveSkipsEmptyKey(t *testing.T) {
	store := &fakeStore{rec: Record{"zone": "north"}, found: true}
	r := NewResolver(store, testr.New(t))

	rec, outcome := r.Resolve(context.Background(), "")
	assert.Nil(t, rec)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, store.calls)
}

type fakeDynamo struct {
	input *dynamodb.GetItemInput
	out   *dynamodb.GetItemOutput
	err   error
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestDynamoStoreGet(t *testing.T) {
	client := &fakeDynamo{out: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"metakey": &types.AttributeValueMemberS{Value: "k1"},
		"zone":    &types.AttributeValueMemberS{Value: "north"},
		"floor":   &types.AttributeValueMemberN{Value: "3"},
		"active":  &types.AttributeValueMemberBOOL{Value: true},
	}}}
	store, err := NewDynamoStore(client, "sensor-metadata", "")
	require.NoError(t, err)

	rec, found, err := store.Get(context.Background(), "k1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, Record{"metakey": "k1", "zone": "north", "floor": "3", "active": "true"}, rec)

	require.NotNil(t, client.input)
	assert.Equal(t, "sensor-metadata", *client.input.TableName)
	key, ok := client.input.Key["metakey"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, "k1", key.Value)
}

func TestDynamoStoreMissingItem(t *testing.T) {
	store, err := NewDynamoStore(&fakeDynamo{out: &dynamodb.GetItemOutput{}}, "t", "metakey")
	require.NoError(t, err)

	rec, found, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, rec)
}

func TestDynamoStoreError(t *testing.T) {
	boom := errors.New("throttled")
	store, err := NewDynamoStore(&fakeDynamo{err: boom}, "t", "metakey")
	require.NoError(t, err)

	_, _, err = store.Get(context.Background(), "k1")
	require.ErrorIs(t, err, boom)
}

func TestNewDynamoStoreValidates(t *testing.T) {
	_, err := NewDynamoStore(nil, "t", "")
	require.Error(t, err)
	_, err = NewDynamoStore(&fakeDynamo{}, "", "")
	require.Error(t, err)
}

type fakeHashes struct {
	key string
	val map[string]string
	err error
}

func (f *fakeHashes) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	f.key = key
	return redis.NewMapStringStringResult(f.val, f.err)
}

func TestRedisStoreGet(t *testing.T) {
	h := &fakeHashes{val: map[string]string{"zone": "north"}}
	store := NewRedisStore(h, "meta")

	rec, found, err := store.Get(context.Background(), "k1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, Record{"zone": "north"}, rec)
	assert.Equal(t, "meta:k1", h.key)
}

func TestRedisStoreEmptyHashIsNotFound(t *testing.T) {
	store := NewRedisStore(&fakeHashes{val: map[string]string{}}, "")

	_, found, err := store.Get(context.Background(), "k1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStoreError(t *testing.T) {
	store := NewRedisStore(&fakeHashes{err: errors.New("dial tcp: refused")}, "")

	_, _, err := store.Get(context.Background(), "k1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sensor-meta:k1")
}

func TestTagValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"north", "north"},
		{float64(3), "3"},
		{1.25, "1.25"},
		{true, "true"},
		{[]any{"a", float64(2)}, "a,2"},
		{[]string{"x", "y"}, "x,y"},
		{map[string]any{"b": "2", "a": "1"}, "a:1|b:2"},
	}
	for _, tt := range tests {
		got, ok := tagValue(tt.in)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got)
	}

	_, ok := tagValue(nil)
	assert.False(t, ok)
}
