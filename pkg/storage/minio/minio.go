package minio

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	cfg "github.com/joeott/docpipeline/config"
	"github.com/joeott/docpipeline/pkg/logger"
)

// MinioStorage stores pipeline blobs in a MinIO bucket. Objects are
// written under caller-chosen keys, so re-storing the same key replaces
// the previous version.
type MinioStorage struct {
	client     *minio.Client
	bucketName string
	logger     logger.Logger
}

// Store implements Storage.Store
func (m *MinioStorage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucketName, key, reader, -1, minio.PutObjectOptions{})
	if err != nil {
		m.logger.Error("Failed to store object to MinIO",
			logger.String("bucket", m.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return "", fmt.Errorf("failed to store object: %w", err)
	}

	return key, nil
}

// Get implements Storage.Get
func (m *MinioStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		m.logger.Error("Failed to get object from MinIO",
			logger.String("bucket", m.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	// GetObject is lazy; Stat forces the lookup so a missing key surfaces
	// here instead of on the first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("object %s: %w", key, fs.ErrNotExist)
		}
		m.logger.Error("Failed to get object from MinIO",
			logger.String("bucket", m.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	return obj, nil
}

// Delete implements Storage.Delete
func (m *MinioStorage) Delete(ctx context.Context, key string) error {
	err := m.client.RemoveObject(ctx, m.bucketName, key, minio.RemoveObjectOptions{})
	if err != nil {
		m.logger.Error("Failed to delete object from MinIO",
			logger.String("bucket", m.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

// CleanupBefore implements Storage.CleanupBefore
func (m *MinioStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	objectCh := m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{Recursive: true})

	for obj := range objectCh {
		if obj.Err != nil {
			m.logger.Error("Error listing objects",
				logger.String("bucket", m.bucketName),
				logger.Error(obj.Err),
			)
			continue
		}

		if obj.LastModified.Before(threshold) {
			if err := m.Delete(ctx, obj.Key); err != nil {
				m.logger.Error("Failed to delete expired object",
					logger.String("key", obj.Key),
					logger.Error(err),
				)
				continue
			}
			m.logger.Info("Deleted expired object",
				logger.String("key", obj.Key),
				logger.Time("lastModified", obj.LastModified),
			)
		}
	}

	return nil
}

func NewMinioStorage(log logger.Logger) (*MinioStorage, error) {
	minioConfig := cfg.GetMinioConfig()
	client, err := minio.New(minioConfig.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(minioConfig.AccessKey, minioConfig.SecretKey, ""),
		Secure: minioConfig.UseSSL,
		Region: minioConfig.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(context.Background(), minioConfig.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(context.Background(), minioConfig.BucketName, minio.MakeBucketOptions{
			Region: minioConfig.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioStorage{
		client:     client,
		bucketName: minioConfig.BucketName,
		logger:     log,
	}, nil
}

func GetClient(log logger.Logger) (*MinioStorage, error) {
	return NewMinioStorage(log)
}
