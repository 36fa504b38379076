package service

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// BlobStoreGateway abstracts the object store holding raw document bytes.
// Delete is idempotent: a missing object is success.
type BlobStoreGateway interface {
	Put(ctx context.Context, storageKey string, reader io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, storageKey string) error
	PresignedURL(ctx context.Context, storageKey string, ttl time.Duration) (string, error)
}

// blobObjectClient is the slice of the MinIO client the gateway needs.
type blobObjectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// MinioGateway implements BlobStoreGateway on a MinIO bucket.
type MinioGateway struct {
	client blobObjectClient
	bucket string
	logger *zap.Logger
}

// NewMinioGateway constructs the gateway.
func NewMinioGateway(client blobObjectClient, bucket string, logger *zap.Logger) *MinioGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MinioGateway{client: client, bucket: bucket, logger: logger}
}

func (g *MinioGateway) Put(ctx context.Context, storageKey string, reader io.Reader, size int64, contentType string) error {
	_, err := g.client.PutObject(ctx, g.bucket, storageKey, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", storageKey, err)
	}
	return nil
}

func (g *MinioGateway) Delete(ctx context.Context, storageKey string) error {
	err := g.client.RemoveObject(ctx, g.bucket, storageKey, minio.RemoveObjectOptions{})
	if err != nil {
		if isBlobNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete object %s: %w", storageKey, err)
	}
	return nil
}

func (g *MinioGateway) PresignedURL(ctx context.Context, storageKey string, ttl time.Duration) (string, error) {
	u, err := g.client.PresignedGetObject(ctx, g.bucket, storageKey, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", storageKey, err)
	}
	return u.String(), nil
}

// isBlobNotFound reports the missing-object-is-success case.
func isBlobNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}
