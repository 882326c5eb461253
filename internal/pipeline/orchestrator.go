package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/joeott/docpipeline/internal/cache"
	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/internal/store"
	"github.com/joeott/docpipeline/pkg/logger"
)

// ErrNotTerminal is returned when a reprocess is requested for a document
// that is still being worked on.
var ErrNotTerminal = errors.New("pipeline: document is not in a terminal state")

// ErrTerminal is returned when a cancel is requested for a document that
// has already finished.
var ErrTerminal = errors.New("pipeline: document is already in a terminal state")

// Start registers a new document and triggers its first stage.
func (p *Pipeline) Start(ctx context.Context, doc *models.Document) error {
	if err := p.store.CreateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	p.logger.Info("Document accepted",
		logger.String("documentId", doc.ID.String()),
		logger.String("sourceRef", doc.SourceRef),
	)
	return p.queue.EnqueueStage(ctx, doc.ID, models.StageOCR, 0, 0)
}

// StatusReport is the operator-facing view: the document plus the latest
// stage task records, including attempt counts and last errors, so "still
// working" is distinguishable from "stuck" and "permanently failed".
type StatusReport struct {
	Document *models.Document         `json:"document"`
	Tasks    []models.StageTaskRecord `json:"tasks"`
}

// Status assembles the status report for a document.
func (p *Pipeline) Status(ctx context.Context, docID uuid.UUID) (*StatusReport, error) {
	doc, err := p.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	tasks, err := p.store.ListStageTasks(ctx, docID)
	if err != nil {
		return nil, err
	}
	return &StatusReport{Document: doc, Tasks: tasks}, nil
}

// Cancel marks a document cancelled. In-flight stage workers notice before
// committing output and abort.
func (p *Pipeline) Cancel(ctx context.Context, docID uuid.UUID) error {
	doc, err := p.store.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if doc.Status.Terminal() {
		return fmt.Errorf("document is already %s: %w", doc.Status, ErrTerminal)
	}
	if err := p.transition(ctx, doc, models.StatusCancelled, doc.CurrentStage); err != nil {
		return err
	}
	p.logger.Info("Document cancelled", logger.String("documentId", docID.String()))
	return nil
}

// Reprocess invalidates the given stage and everything downstream of it,
// rewinds the document and re-triggers the stage. Only terminal documents
// can be reprocessed; rewinding a live document would race its workers.
func (p *Pipeline) Reprocess(ctx context.Context, docID uuid.UUID, from models.Stage) error {
	doc, err := p.store.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if !doc.Status.Terminal() {
		return ErrNotTerminal
	}

	for _, stage := range from.From() {
		if err := p.invalidateStage(ctx, docID, stage); err != nil {
			return fmt.Errorf("failed to invalidate stage %s: %w", stage, err)
		}
	}

	doc.Reset(from.EntryStatus(), from)
	if err := p.updateWithRetry(ctx, doc); err != nil {
		return err
	}

	p.logger.Info("Document reprocessing",
		logger.String("documentId", docID.String()),
		logger.String("fromStage", string(from)),
	)
	return p.queue.EnqueueStage(ctx, docID, from, 0, 0)
}

// invalidateStage removes one stage's output rows, staged cache entries and
// task record so the stage runs fresh.
func (p *Pipeline) invalidateStage(ctx context.Context, docID uuid.UUID, stage models.Stage) error {
	switch stage {
	case models.StageOCR:
		if err := p.cache.Delete(ctx, cache.OCRTextKey(docID)); err != nil {
			return err
		}
		if err := p.blobs.Delete(ctx, ocrTextRef(docID)); err != nil {
			p.logger.Warn("Failed to delete extracted text blob",
				logger.String("documentId", docID.String()),
				logger.Error(err),
			)
		}
	case models.StageChunk:
		if err := p.cache.Delete(ctx, cache.ChunkListKey(docID)); err != nil {
			return err
		}
		if err := p.store.DeleteChunks(ctx, docID); err != nil {
			return err
		}
	case models.StageExtract:
		if err := p.cache.Delete(ctx, cache.MentionSetKey(docID)); err != nil {
			return err
		}
		if err := p.store.DeleteMentions(ctx, docID); err != nil {
			return err
		}
	case models.StageResolve:
		if err := p.store.DeleteEntities(ctx, docID); err != nil {
			return err
		}
		// Mentions upstream of the invalidation keep existing but lose
		// their canonical assignment.
		if err := p.store.AssignCanonicals(ctx, docID, nil); err != nil {
			return err
		}
	case models.StageRelate:
		if err := p.store.DeleteRelationships(ctx, docID); err != nil {
			return err
		}
	}
	return p.store.DeleteStageTask(ctx, docID, stage)
}

// advance enqueues the stage after the given one; the last stage has
// nothing to chain.
func (p *Pipeline) advance(ctx context.Context, doc *models.Document, stage models.Stage) error {
	next, ok := stage.Next()
	if !ok {
		p.logger.Info("Document completed", logger.String("documentId", doc.ID.String()))
		return nil
	}
	return p.queue.EnqueueStage(ctx, doc.ID, next, 0, 0)
}

// markDone settles the document on the stage's done status when the state
// machine allows it; a document already past that point is left alone.
func (p *Pipeline) markDone(ctx context.Context, doc *models.Document, stage models.Stage) error {
	done := stage.DoneStatus()
	if doc.Status == done || !doc.CanTransition(done) {
		return nil
	}
	return p.transition(ctx, doc, done, stage)
}

// transition applies one state-machine edge with optimistic-concurrency
// retries. Transitions never skip a stage; an illegal edge is an error.
func (p *Pipeline) transition(ctx context.Context, doc *models.Document, to models.DocumentStatus, stage models.Stage) error {
	for i := 0; i < 3; i++ {
		if doc.Status == to {
			return nil
		}
		if !doc.CanTransition(to) {
			return fmt.Errorf("illegal transition %s -> %s", doc.Status, to)
		}
		doc.Status = to
		doc.CurrentStage = stage
		err := p.store.UpdateDocument(ctx, doc)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		fresh, gerr := p.store.GetDocument(ctx, doc.ID)
		if gerr != nil {
			return gerr
		}
		*doc = *fresh
	}
	return store.ErrVersionConflict
}

// updateWithRetry persists a document mutation that bypasses the forward
// transition table (reprocess rewind), still under CAS.
func (p *Pipeline) updateWithRetry(ctx context.Context, doc *models.Document) error {
	for i := 0; i < 3; i++ {
		err := p.store.UpdateDocument(ctx, doc)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		fresh, gerr := p.store.GetDocument(ctx, doc.ID)
		if gerr != nil {
			return gerr
		}
		doc.Version = fresh.Version
	}
	return store.ErrVersionConflict
}

// failDocument moves the document to failed with the last attempt's reason
// recorded verbatim. Already-completed stages keep their output.
func (p *Pipeline) failDocument(ctx context.Context, doc *models.Document, reason string) error {
	for i := 0; i < 3; i++ {
		fresh, err := p.store.GetDocument(ctx, doc.ID)
		if err != nil {
			return err
		}
		if fresh.Status.Terminal() {
			return nil
		}
		fresh.Status = models.StatusFailed
		fresh.ErrorMessage = reason
		err = p.store.UpdateDocument(ctx, fresh)
		if err == nil {
			*doc = *fresh
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
	}
	return store.ErrVersionConflict
}
