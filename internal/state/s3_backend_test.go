package state

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	lastPut *s3.PutObjectInput
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	f.lastPut = in
	return &s3.PutObjectOutput{}, nil
}

type fakeLocks struct {
	items   map[string]string
	deletes []*dynamodb.DeleteItemInput
}

func (f *fakeLocks) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	id := in.Item["LockID"].(*dbtypes.AttributeValueMemberS).Value
	if _, held := f.items[id]; held {
		return nil, &dbtypes.ConditionalCheckFailedException{Message: aws.String("conditional request failed")}
	}
	f.items[id] = in.Item["Info"].(*dbtypes.AttributeValueMemberS).Value
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeLocks) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deletes = append(f.deletes, in)
	delete(f.items, in.Key["LockID"].(*dbtypes.AttributeValueMemberS).Value)
	return &dynamodb.DeleteItemOutput{}, nil
}

func newFakeS3Backend(t *testing.T, cfg *BackendConfig) (*s3Backend, *fakeS3, *fakeLocks) {
	t.Helper()
	b, err := s3BackendFromConfig(cfg)
	require.NoError(t, err)
	objects := &fakeS3{objects: map[string][]byte{}}
	locks := &fakeLocks{items: map[string]string{}}
	b.s3Client = objects
	b.dbClient = locks
	return b, objects, locks
}

func TestS3BackendFromConfig(t *testing.T) {
	_, err := s3BackendFromConfig(&BackendConfig{Type: "s3"})
	assert.ErrorContains(t, err, "bucket")

	b, err := s3BackendFromConfig(&BackendConfig{Type: "s3", Bucket: "my-bucket"})
	require.NoError(t, err)
	assert.Equal(t, DefaultS3Key, b.key)
	assert.Equal(t, "us-east-1", b.region)
	assert.Empty(t, b.dynamoDBTable)
	assert.False(t, b.encrypt)

	b, err = s3BackendFromConfig(&BackendConfig{
		Bucket:        "custom-bucket",
		Key:           "custom/state.json",
		Region:        "eu-west-1",
		DynamoDBTable: "locks",
		Encrypt:       true,
		Profile:       "staging",
	})
	require.NoError(t, err)
	assert.Equal(t, "custom/state.json", b.key)
	assert.Equal(t, "eu-west-1", b.region)
	assert.Equal(t, "locks", b.dynamoDBTable)
	assert.Equal(t, "staging", b.profile)
	assert.True(t, b.encrypt)
}

func TestS3Backend_ReadMissingIsEmpty(t *testing.T) {
	b, _, _ := newFakeS3Backend(t, &BackendConfig{Bucket: "b"})
	s, err := b.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Version, s.Version)
	assert.Empty(t, s.Resources)
}

func TestS3Backend_WriteRead(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")
	b, objects, _ := newFakeS3Backend(t, &BackendConfig{Bucket: "b", Encrypt: true})
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, &ir.State{Serial: 7, Resources: []*ir.ResourceState{{Type: "null_resource", Name: "a"}}}))
	assert.Equal(t, s3types.ServerSideEncryptionAes256, objects.lastPut.ServerSideEncryption)
	assert.Contains(t, objects.objects, "b/"+DefaultS3Key)

	s, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, s.Serial)
	assert.NotEmpty(t, s.Lineage)
	require.Len(t, s.Resources, 1)
}

func TestS3Backend_Lock(t *testing.T) {
	b, _, locks := newFakeS3Backend(t, &BackendConfig{Bucket: "b", DynamoDBTable: "locks"})
	ctx := context.Background()

	require.NoError(t, b.Lock(ctx))
	other, _, _ := newFakeS3Backend(t, &BackendConfig{Bucket: "b", DynamoDBTable: "locks"})
	other.dbClient = locks
	assert.ErrorIs(t, other.Lock(ctx), ErrLocked)

	require.NoError(t, b.Unlock(ctx))
	require.Len(t, locks.deletes, 1)
	assert.Equal(t, "Info = :id", aws.ToString(locks.deletes[0].ConditionExpression))
	require.NoError(t, other.Lock(ctx))
}

func TestS3Backend_NoLockTable(t *testing.T) {
	b, _, locks := newFakeS3Backend(t, &BackendConfig{Bucket: "b"})
	require.NoError(t, b.Lock(context.Background()))
	require.NoError(t, b.Unlock(context.Background()))
	assert.Empty(t, locks.items)
}
