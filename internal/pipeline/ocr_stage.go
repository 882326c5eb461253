package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/joeott/docpipeline/internal/cache"
	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/pkg/logger"
	"github.com/joeott/docpipeline/pkg/storage"
)

// ocrTextRef is the blob key the extracted text is persisted under. The
// cache copy is a staging convenience; the blob copy is the durable one.
func ocrTextRef(docID uuid.UUID) string {
	return fmt.Sprintf("ocr/%s.txt", docID)
}

// runOCR delegates to the job poller; the stage completes later, from a
// poll, via completeOCR.
func (p *Pipeline) runOCR(ctx context.Context, doc *models.Document, rec *models.StageTaskRecord) error {
	return p.poller.Submit(ctx, doc, rec)
}

// completeOCR persists the extracted text and finishes the OCR stage. It is
// called from the poll handler on a SUCCEEDED job.
func (p *Pipeline) completeOCR(ctx context.Context, doc *models.Document, rec *models.StageTaskRecord, text string) error {
	if err := p.ensureActive(ctx, doc.ID); err != nil {
		return p.failStageRecord(ctx, rec, "cancelled")
	}

	if _, err := p.blobs.Store(ctx, strings.NewReader(text), ocrTextRef(doc.ID)); err != nil {
		return fmt.Errorf("failed to persist extracted text: %w", err)
	}
	if err := p.cache.Set(ctx, cache.OCRTextKey(doc.ID), text, p.cfg.TTLs.OCRText); err != nil {
		p.logger.Warn("Failed to stage extracted text",
			logger.String("documentId", doc.ID.String()),
			logger.Error(err),
		)
	}

	p.logger.Info("OCR text persisted",
		logger.String("documentId", doc.ID.String()),
		logger.Int("chars", len(text)),
	)
	return p.completeStage(ctx, doc, rec)
}

// ocrText loads a document's extracted text, preferring the staged cache
// copy and falling back to the durable blob.
func (p *Pipeline) ocrText(ctx context.Context, docID uuid.UUID) (string, error) {
	if text, ok, err := p.cache.Get(ctx, cache.OCRTextKey(docID)); err == nil && ok {
		return text, nil
	}

	obj, err := p.blobs.Get(ctx, ocrTextRef(docID))
	if errors.Is(err, storage.ErrNotFound) {
		return "", Integrity(fmt.Errorf("extracted text missing for document %s: %w", docID, err))
	}
	if err != nil {
		// Transport failures stay transient so the stage retries them.
		return "", fmt.Errorf("failed to load extracted text: %w", err)
	}
	defer obj.Close()

	var sb strings.Builder
	if _, err := io.Copy(&sb, obj); err != nil {
		return "", fmt.Errorf("failed to read extracted text: %w", err)
	}
	text := sb.String()

	// Re-warm the staging cache for downstream retries.
	if err := p.cache.Set(ctx, cache.OCRTextKey(docID), text, p.cfg.TTLs.OCRText); err != nil {
		p.logger.Debug("Failed to re-stage extracted text", logger.Error(err))
	}
	return text, nil
}
