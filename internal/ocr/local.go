package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/otiai10/gosseract/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/joeott/docpipeline/internal/cache"
	"github.com/joeott/docpipeline/pkg/logger"
	"github.com/joeott/docpipeline/pkg/storage"
)

// LocalEngine implements the async OCR contract in-process so the pipeline
// can run without AWS. Jobs are executed on a bounded ants pool; job state
// lives in the cache, keyed by job id, so any worker can poll a job that
// another worker's engine is running.
type LocalEngine struct {
	blobs   storage.Storage
	cache   cache.Cache
	pool    *ants.Pool
	logger  logger.Logger
	jobTTL  time.Duration
	timeout time.Duration
}

var _ Client = (*LocalEngine)(nil)

// jobRecord is the cached state of one local job.
type jobRecord struct {
	State JobState `json:"state"`
	Text  string   `json:"text,omitempty"`
	Error string   `json:"error,omitempty"`
}

func NewLocalEngine(blobs storage.Storage, c cache.Cache, log logger.Logger) (*LocalEngine, error) {
	pool, err := ants.NewPool(4)
	if err != nil {
		return nil, fmt.Errorf("failed to create ocr pool: %w", err)
	}
	return &LocalEngine{
		blobs:   blobs,
		cache:   c,
		pool:    pool,
		logger:  log.Named("localocr"),
		jobTTL:  24 * time.Hour,
		timeout: 10 * time.Minute,
	}, nil
}

func (e *LocalEngine) SubmitJob(ctx context.Context, blobRef string) (string, error) {
	jobID := uuid.New().String()
	if err := e.saveJob(ctx, jobID, jobRecord{State: JobInProgress}); err != nil {
		return "", err
	}

	err := e.pool.Submit(func() {
		// Detached from the submitting request; the job outlives it.
		runCtx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		e.run(runCtx, jobID, blobRef)
	})
	if err != nil {
		return "", fmt.Errorf("failed to schedule ocr job: %w", err)
	}

	e.logger.Info("Scheduled local OCR job",
		logger.String("jobId", jobID),
		logger.String("blobRef", blobRef),
	)
	return jobID, nil
}

func (e *LocalEngine) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	raw, ok, err := e.cache.Get(ctx, cache.OCRJobKey(jobID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &JobStatus{State: JobFailed, Error: "unknown or expired job id"}, nil
	}
	var rec jobRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode job record: %w", err)
	}
	return &JobStatus{State: rec.State, Text: rec.Text, Error: rec.Error}, nil
}

func (e *LocalEngine) Close() error {
	e.pool.Release()
	return nil
}

func (e *LocalEngine) run(ctx context.Context, jobID, blobRef string) {
	text, err := e.extract(ctx, blobRef)
	rec := jobRecord{State: JobSucceeded, Text: text}
	if err != nil {
		rec = jobRecord{State: JobFailed, Error: err.Error()}
		e.logger.Error("Local OCR job failed",
			logger.String("jobId", jobID),
			logger.Error(err),
		)
	}
	// ctx may already be dead when the failure is the run timeout; the
	// terminal record must land regardless or polls never see the reason.
	if saveErr := e.saveJob(context.WithoutCancel(ctx), jobID, rec); saveErr != nil {
		e.logger.Error("Failed to persist job result",
			logger.String("jobId", jobID),
			logger.Error(saveErr),
		)
	}
}

func (e *LocalEngine) extract(ctx context.Context, blobRef string) (string, error) {
	obj, err := e.blobs.Get(ctx, blobRef)
	if err != nil {
		return "", fmt.Errorf("failed to fetch blob: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("failed to read blob: %w", err)
	}

	if strings.EqualFold(filepath.Ext(blobRef), ".pdf") {
		return extractPDFText(data)
	}
	return e.recognizeImage(data)
}

// extractPDFText pulls embedded text out of a PDF page by page.
func extractPDFText(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= pdfReader.NumPage(); i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

// recognizeImage runs tesseract on a grayscale-normalized render of the image.
func (e *LocalEngine) recognizeImage(data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Grayscale(img), imaging.PNG); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to load image into tesseract: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract recognition failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (e *LocalEngine) saveJob(ctx context.Context, jobID string, rec jobRecord) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode job record: %w", err)
	}
	if err := e.cache.Set(ctx, cache.OCRJobKey(jobID), string(buf), e.jobTTL); err != nil {
		return fmt.Errorf("failed to store job record: %w", err)
	}
	return nil
}
