package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"

	"FileShare/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements BlobStore with a MinIO (S3 compatible) bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and makes sure the bucket exists.
func NewMinioStore(ctx context.Context, cfg config.StorageConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioUsername, cfg.MinioPassword, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return NewMinioStoreWithClient(ctx, client, cfg.BucketName)
}

// NewMinioStoreWithClient builds a store from an existing client.
func NewMinioStoreWithClient(ctx context.Context, client *minio.Client, bucket string) (*MinioStore, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

func (s *MinioStore) Put(ctx context.Context, id, filename string, data []byte) (string, error) {
	object := ObjectKey(id, filename)
	contentType := mime.TypeByExtension(path.Ext(object))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("minio put %s: %w", object, err)
	}
	return object, nil
}

func (s *MinioStore) Get(ctx context.Context, locator string) ([]byte, error) {
	if err := checkLocator(locator); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, locator, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translate(locator, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.translate(locator, err)
	}
	return data, nil
}

// Delete removes the object. S3 deletes of missing keys already succeed.
func (s *MinioStore) Delete(ctx context.Context, locator string) error {
	if err := checkLocator(locator); err != nil {
		return err
	}
	err := s.client.RemoveObject(ctx, s.bucket, locator, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("minio remove %s: %w", locator, err)
	}
	return nil
}

func (s *MinioStore) translate(locator string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, locator)
	}
	return fmt.Errorf("minio get %s: %w", locator, err)
}
