package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/pcfp/internal/config"
	"github.com/turtacn/pcfp/pkg/errors"
)

type mockObjectAPI struct {
	mock.Mock
}

func (m *mockObjectAPI) BucketExists(ctx context.Context, bucket string) (bool, error) {
	args := m.Called(ctx, bucket)
	return args.Bool(0), args.Error(1)
}

func (m *mockObjectAPI) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucket, opts).Error(0)
}

func (m *mockObjectAPI) SetBucketLifecycle(ctx context.Context, bucket string, cfg *lifecycle.Configuration) error {
	return m.Called(ctx, bucket, cfg).Error(0)
}

func (m *mockObjectAPI) PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucket, object, r, size, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *mockObjectAPI) GetObject(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, object)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockObjectAPI) StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucket, object, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func (m *mockObjectAPI) PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, params url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucket, object, expiry, params)
	u, _ := args.Get(0).(*url.URL)
	return u, args.Error(1)
}

var noSuchKey = minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}

func newTestClient(api *mockObjectAPI) *Client {
	return NewClientWithAPI(api, config.MinIOConfig{Bucket: "batches", PresignExpiry: 15 * time.Minute}, nil)
}

func TestEnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("existing bucket", func(t *testing.T) {
		api := &mockObjectAPI{}
		api.On("BucketExists", ctx, "batches").Return(true, nil)
		require.NoError(t, newTestClient(api).EnsureBucket(ctx))
		api.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("creates with lifecycle", func(t *testing.T) {
		api := &mockObjectAPI{}
		api.On("BucketExists", ctx, "batches").Return(false, nil)
		api.On("MakeBucket", ctx, "batches", minio.MakeBucketOptions{}).Return(nil)
		api.On("SetBucketLifecycle", ctx, "batches", mock.MatchedBy(func(c *lifecycle.Configuration) bool {
			return len(c.Rules) == 1 && c.Rules[0].RuleFilter.Prefix == "tmp/"
		})).Return(fmt.Errorf("not supported"))

		require.NoError(t, newTestClient(api).EnsureBucket(ctx))
		api.AssertExpectations(t)
	})

	t.Run("unreachable", func(t *testing.T) {
		api := &mockObjectAPI{}
		api.On("BucketExists", ctx, "batches").Return(false, fmt.Errorf("dial tcp: refused"))
		err := newTestClient(api).EnsureBucket(ctx)
		assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
	})
}

func TestArchive_Put(t *testing.T) {
	ctx := context.Background()
	api := &mockObjectAPI{}
	body := strings.NewReader("{}\n")
	api.On("PutObject", ctx, "batches", "exports/job.ndjson", body, int64(3), mock.MatchedBy(func(o minio.PutObjectOptions) bool {
		return o.ContentType == "application/x-ndjson"
	})).Return(minio.UploadInfo{Key: "exports/job.ndjson", Size: 3}, nil)

	key, err := NewArchive(newTestClient(api)).Put(ctx, "exports/job.ndjson", body, 3, "application/x-ndjson")
	require.NoError(t, err)
	assert.Equal(t, "exports/job.ndjson", key)

	_, err = NewArchive(newTestClient(api)).Put(ctx, "", body, 3, "")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestArchive_PutFailure(t *testing.T) {
	ctx := context.Background()
	api := &mockObjectAPI{}
	api.On("PutObject", ctx, "batches", "k", mock.Anything, int64(-1), mock.Anything).
		Return(minio.UploadInfo{}, fmt.Errorf("quota exceeded"))

	_, err := NewArchive(newTestClient(api)).Put(ctx, "k", bytes.NewReader(nil), -1, "")
	assert.True(t, errors.IsCode(err, errors.CodeStorageError))
}

func TestArchive_Get(t *testing.T) {
	ctx := context.Background()
	api := &mockObjectAPI{}
	api.On("GetObject", ctx, "batches", "present").Return(io.NopCloser(strings.NewReader("line\n")), nil)
	api.On("GetObject", ctx, "batches", "absent").Return(nil, noSuchKey)

	a := NewArchive(newTestClient(api))
	rc, err := a.Get(ctx, "present")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))

	_, err = a.Get(ctx, "absent")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestArchive_ExistsAndPresign(t *testing.T) {
	ctx := context.Background()
	api := &mockObjectAPI{}
	api.On("StatObject", ctx, "batches", "a", minio.StatObjectOptions{}).Return(minio.ObjectInfo{Key: "a"}, nil)
	api.On("StatObject", ctx, "batches", "b", minio.StatObjectOptions{}).Return(minio.ObjectInfo{}, noSuchKey)
	u, _ := url.Parse("http://minio:9000/batches/a?X-Amz-Signature=x")
	api.On("PresignedGetObject", ctx, "batches", "a", 15*time.Minute, url.Values(nil)).Return(u, nil)

	a := NewArchive(newTestClient(api))
	ok, err := a.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.Exists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)

	link, err := a.PresignedURL(ctx, "a", 0)
	require.NoError(t, err)
	assert.Contains(t, link, "X-Amz-Signature")
}
