package minio

import (
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/pcfp/pkg/errors"
)

// Archive writes batch exports as objects in the client's bucket.
type Archive struct {
	client *Client
}

var _ fingerprint.Archive = (*Archive)(nil)

func NewArchive(c *Client) *Archive {
	return &Archive{client: c}
}

// Put uploads body; size -1 streams with multipart upload.
func (a *Archive) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if key == "" {
		return "", errors.InvalidParam("object key is required")
	}
	info, err := a.client.api.PutObject(ctx, a.client.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"producer": "pcfp"},
	})
	if err != nil {
		return "", errors.Wrap(err, errors.CodeStorageError, "failed to upload object").WithDetail(key)
	}
	a.client.logger.Info("Archived object",
		logging.String("bucket", a.client.bucket),
		logging.String("key", info.Key),
		logging.Int64("size", info.Size))
	return info.Key, nil
}

func (a *Archive) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := a.client.api.GetObject(ctx, a.client.bucket, key)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errors.NotFound("archive object not found").WithDetail(key)
		}
		return nil, errors.Wrap(err, errors.CodeStorageError, "failed to read object").WithDetail(key)
	}
	return rc, nil
}

// Exists reports whether key is present.
func (a *Archive) Exists(ctx context.Context, key string) (bool, error) {
	_, err := a.client.api.StatObject(ctx, a.client.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, errors.Wrap(err, errors.CodeStorageError, "failed to stat object").WithDetail(key)
}

// PresignedURL returns a time-limited download link.
func (a *Archive) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = a.client.cfg.PresignExpiry
	}
	if expiry <= 0 {
		expiry = time.Hour
	}
	u, err := a.client.api.PresignedGetObject(ctx, a.client.bucket, key, expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeStorageError, "failed to presign object").WithDetail(key)
	}
	return u.String(), nil
}
