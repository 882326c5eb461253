package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joeott/docpipeline/internal/models"
)

// Cache is the key/value layer backing two concerns: staging intermediate
// stage outputs so a retried stage skips recomputation, and the
// per-(document, stage) mutual-exclusion lock that keeps two workers off
// the same stage of the same document.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// TryLock acquires key for owner if it is free. A false return is not
	// an error: another worker holds the stage.
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Unlock releases key only if owner still holds it, so a worker that
	// outlived its lock TTL cannot release a successor's lock.
	Unlock(ctx context.Context, key, owner string) error
}

// TTLConfig tiers staging TTLs by recomputation cost: OCR text is the most
// expensive to regenerate and lives the longest.
type TTLConfig struct {
	OCRText    time.Duration `yaml:"ocrText"`
	ChunkList  time.Duration `yaml:"chunkList"`
	MentionSet time.Duration `yaml:"mentionSet"`
}

// DefaultTTLs returns the staging TTL tiers used when no config overrides.
func DefaultTTLs() TTLConfig {
	return TTLConfig{
		OCRText:    72 * time.Hour,
		ChunkList:  6 * time.Hour,
		MentionSet: 12 * time.Hour,
	}
}

// OCRTextKey stages the extracted text of a document.
func OCRTextKey(docID uuid.UUID) string {
	return fmt.Sprintf("ocr_text:%s", docID)
}

// ChunkListKey stages the chunk list of a document.
func ChunkListKey(docID uuid.UUID) string {
	return fmt.Sprintf("chunk_list:%s", docID)
}

// MentionSetKey stages the extracted mention set of a document.
func MentionSetKey(docID uuid.UUID) string {
	return fmt.Sprintf("mention_set:%s", docID)
}

// StageLockKey is the mutual-exclusion key for one stage of one document.
func StageLockKey(docID uuid.UUID, stage models.Stage) string {
	return fmt.Sprintf("stage_lock:%s:%s", docID, stage)
}

// OCRJobKey holds the in-process state of a local OCR job.
func OCRJobKey(jobID string) string {
	return fmt.Sprintf("ocr_job:%s", jobID)
}
