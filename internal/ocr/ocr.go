package ocr

import (
	"context"
	"fmt"

	"github.com/joeott/docpipeline/internal/cache"
	"github.com/joeott/docpipeline/pkg/logger"
	"github.com/joeott/docpipeline/pkg/storage"
)

// JobState is the terminal-or-not state of an external OCR job.
type JobState string

const (
	JobInProgress JobState = "IN_PROGRESS"
	JobSucceeded  JobState = "SUCCEEDED"
	JobFailed     JobState = "FAILED"
)

// JobStatus is one poll result. Text is set only on success; Error carries
// the service's failure reason verbatim.
type JobStatus struct {
	State JobState
	Text  string
	Error string
}

// Client is the async OCR contract the pipeline polls against: submit a
// blob reference, then poll the returned job id until terminal. The job id
// is durable on the service side, so a crashed poller can resume against it
// without resubmitting.
type Client interface {
	SubmitJob(ctx context.Context, blobRef string) (string, error)
	GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error)
}

// Provider selects the OCR backend.
type Provider string

const (
	ProviderTextract Provider = "textract"
	ProviderLocal    Provider = "local"
)

// NewClient builds the configured OCR backend. The local engine needs the
// blob store and cache to run jobs in-process; Textract only needs AWS config.
func NewClient(ctx context.Context, provider Provider, blobs storage.Storage, c cache.Cache, log logger.Logger) (Client, error) {
	switch provider {
	case ProviderTextract:
		return NewTextractClient(ctx, log)
	case ProviderLocal:
		return NewLocalEngine(blobs, c, log)
	default:
		return nil, fmt.Errorf("unsupported ocr provider: %s", provider)
	}
}
