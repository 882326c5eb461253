package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	cfg "github.com/joeott/docpipeline/config"
	"github.com/joeott/docpipeline/pkg/logger"
)

// S3Storage stores pipeline blobs in the same bucket Textract reads
// submitted documents from, so an upload key doubles as a Textract ref.
type S3Storage struct {
	client     *s3.Client
	bucketName string
	logger     logger.Logger
}

// Store implements Storage.Store
func (s *S3Storage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
		Body:   reader,
	})
	if err != nil {
		s.logger.Error("Failed to store object to S3",
			logger.String("bucket", s.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return "", fmt.Errorf("failed to store object: %w", err)
	}

	return key, nil
}

// Get implements Storage.Get
func (s *S3Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("object %s: %w", key, fs.ErrNotExist)
		}
		s.logger.Error("Failed to get object from S3",
			logger.String("bucket", s.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	return out.Body, nil
}

// Delete implements Storage.Delete
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.Error("Failed to delete object from S3",
			logger.String("bucket", s.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

// CleanupBefore implements Storage.CleanupBefore
func (s *S3Storage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.LastModified == nil || !obj.LastModified.Before(threshold) {
				continue
			}
			if err := s.Delete(ctx, aws.ToString(obj.Key)); err != nil {
				s.logger.Error("Failed to delete expired object",
					logger.String("key", aws.ToString(obj.Key)),
					logger.Error(err),
				)
				continue
			}
			s.logger.Info("Deleted expired object",
				logger.String("key", aws.ToString(obj.Key)),
				logger.Time("lastModified", *obj.LastModified),
			)
		}
	}

	return nil
}

func NewS3Storage(log logger.Logger) (*S3Storage, error) {
	awsCfg := cfg.GetAWSConfig()

	creds := credentials.NewStaticCredentialsProvider(awsCfg.AccessKey, awsCfg.SecretKey, "")
	loaded, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(awsCfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	return &S3Storage{
		client:     s3.NewFromConfig(loaded),
		bucketName: awsCfg.BucketName,
		logger:     log,
	}, nil
}

func GetClient(log logger.Logger) (*S3Storage, error) {
	return NewS3Storage(log)
}
