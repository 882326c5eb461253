package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/joeott/docpipeline/pkg/logger"
	"github.com/joeott/docpipeline/pkg/storage/minio"
	"github.com/joeott/docpipeline/pkg/storage/s3"
)

// ErrNotFound reports a key with no object behind it. Every backend wraps
// it on a confirmed miss so callers can tell a missing object from a
// transport failure.
var ErrNotFound = fs.ErrNotExist

// StorageType selects a blob backend.
type StorageType string

const (
	StorageTypeS3     StorageType = "s3"
	StorageTypeMinio  StorageType = "minio"
	StorageTypeMemory StorageType = "memory"
)

// Storage is the blob backend behind uploads and extracted text. Keys are
// caller-chosen so the same document always maps to the same object.
type Storage interface {
	// Store writes the object under key and returns the key.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get opens the object at key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
	// CleanupBefore removes objects last modified before threshold.
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// NewStorage is the factory for blob backends.
func NewStorage(storageType StorageType, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.GetClient(log)
	case StorageTypeMinio:
		return minio.GetClient(log)
	case StorageTypeMemory:
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
