package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joeott/docpipeline/internal/cache"
	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/internal/store"
	"github.com/joeott/docpipeline/pkg/logger"
)

// workFunc performs one stage's actual work. It may return errAwaitingPoll
// (OCR submitted, completion arrives later), errCancelled, or a classified
// stage error. Side effects are confined to the stage's own output rows.
type workFunc func(ctx context.Context, doc *models.Document, rec *models.StageTaskRecord) error

// infraRetryDelay is used when the trigger could not even reach its stage
// record (store or cache unavailable); the trigger is replayed rather than
// counted as a stage attempt.
const infraRetryDelay = 30 * time.Second

// runStage executes the stage task contract: acquire the per-(document,
// stage) lock, short-circuit if the record is already completed, run the
// work inside the stage's wall-clock budget, then persist the outcome and
// chain the next stage.
func (p *Pipeline) runStage(ctx context.Context, docID uuid.UUID, stage models.Stage, work workFunc) error {
	log := p.logger.With(
		logger.String("documentId", docID.String()),
		logger.String("stage", string(stage)),
	)

	doc, err := p.store.GetDocument(ctx, docID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("Dropping trigger for unknown document")
		return nil
	}
	if err != nil {
		return p.requeue(ctx, docID, stage, err, log)
	}
	if doc.Status.Terminal() {
		log.Debug("Document already terminal, skipping stage")
		return nil
	}

	owner := uuid.NewString()
	lockKey := cache.StageLockKey(docID, stage)
	got, err := p.cache.TryLock(ctx, lockKey, owner, p.cfg.lockTTL(stage))
	if err != nil {
		return p.requeue(ctx, docID, stage, err, log)
	}
	if !got {
		// Another worker owns this stage; not an error.
		log.Debug("Stage locked by another worker, skipping")
		return nil
	}
	defer func() {
		if err := p.cache.Unlock(context.WithoutCancel(ctx), lockKey, owner); err != nil {
			log.Warn("Failed to release stage lock", logger.Error(err))
		}
	}()

	rec, err := p.store.GetStageTask(ctx, docID, stage)
	if errors.Is(err, store.ErrNotFound) {
		rec = models.NewStageTaskRecord(docID, stage)
	} else if err != nil {
		return p.requeue(ctx, docID, stage, err, log)
	}

	if rec.Status == models.TaskCompleted {
		// Idempotent short-circuit: the work is done, only the hand-off to
		// the next stage may still be owed.
		log.Info("Stage already completed, triggering next stage")
		if err := p.markDone(ctx, doc, stage); err != nil {
			log.Warn("Failed to settle document status", logger.Error(err))
		}
		return p.advance(ctx, doc, stage)
	}

	rec.Status = models.TaskInProgress
	rec.AttemptCount++
	rec.LastError = ""
	if err := p.store.UpsertStageTask(ctx, rec); err != nil {
		return p.requeue(ctx, docID, stage, err, log)
	}

	if stage != models.StageOCR {
		// OCR only becomes ocr_submitted once the external job exists.
		if err := p.transition(ctx, doc, stage.ActiveStatus(), stage); err != nil {
			log.Error("Illegal stage entry", logger.Error(err))
			return p.failStage(ctx, doc, rec, err.Error())
		}
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.cfg.stageTimeout(stage))
	err = work(stageCtx, doc, rec)
	cancel()

	switch {
	case err == nil:
		return p.completeStage(ctx, doc, rec)
	case errors.Is(err, errAwaitingPoll):
		return nil
	case errors.Is(err, errCancelled):
		log.Info("Stage aborted: document cancelled")
		return p.failStageRecord(ctx, rec, "cancelled")
	default:
		return p.retryOrFail(ctx, doc, rec, err, log)
	}
}

// completeStage persists the completed record, moves the document to the
// stage's done status and triggers the next stage. A document cancelled
// while the stage ran is detected here, before any lifecycle advance.
func (p *Pipeline) completeStage(ctx context.Context, doc *models.Document, rec *models.StageTaskRecord) error {
	fresh, err := p.store.GetDocument(ctx, doc.ID)
	if err != nil {
		return err
	}
	if fresh.Status.Terminal() {
		return p.failStageRecord(ctx, rec, "cancelled")
	}
	*doc = *fresh

	rec.Status = models.TaskCompleted
	rec.LastError = ""
	if err := p.store.UpsertStageTask(ctx, rec); err != nil {
		return err
	}
	if err := p.markDone(ctx, doc, rec.Stage); err != nil {
		return err
	}

	p.logger.Info("Stage completed",
		logger.String("documentId", doc.ID.String()),
		logger.String("stage", string(rec.Stage)),
		logger.Int("attempts", rec.AttemptCount),
	)
	return p.advance(ctx, doc, rec.Stage)
}

// retryOrFail applies the stage's retry policy to a failed attempt.
func (p *Pipeline) retryOrFail(ctx context.Context, doc *models.Document, rec *models.StageTaskRecord, stageErr error, log logger.Logger) error {
	class := Classify(stageErr)
	rec.LastError = stageErr.Error()

	policy := p.cfg.retry(rec.Stage)
	if class == FailureTransient && rec.AttemptCount < policy.MaxAttempts {
		rec.Status = models.TaskPending
		if err := p.store.UpsertStageTask(ctx, rec); err != nil {
			return err
		}
		delay := policy.Delay(rec.AttemptCount)
		log.Warn("Stage attempt failed, retrying",
			logger.Int("attempt", rec.AttemptCount),
			logger.Duration("delay", delay),
			logger.Error(stageErr),
		)
		return p.queue.EnqueueStage(ctx, doc.ID, rec.Stage, rec.AttemptCount, delay)
	}

	log.Error("Stage failed",
		logger.String("class", class.String()),
		logger.Int("attempts", rec.AttemptCount),
		logger.Error(stageErr),
	)
	return p.failStage(ctx, doc, rec, stageErr.Error())
}

// failStage marks both the stage record and the document as failed.
func (p *Pipeline) failStage(ctx context.Context, doc *models.Document, rec *models.StageTaskRecord, reason string) error {
	if err := p.failStageRecord(ctx, rec, reason); err != nil {
		return err
	}
	return p.failDocument(ctx, doc, reason)
}

func (p *Pipeline) failStageRecord(ctx context.Context, rec *models.StageTaskRecord, reason string) error {
	rec.Status = models.TaskFailed
	rec.LastError = reason
	return p.store.UpsertStageTask(ctx, rec)
}

// requeue replays a trigger that hit infrastructure trouble before the
// stage record could account for it.
func (p *Pipeline) requeue(ctx context.Context, docID uuid.UUID, stage models.Stage, cause error, log logger.Logger) error {
	log.Warn("Replaying stage trigger after infrastructure error", logger.Error(cause))
	return p.queue.EnqueueStage(ctx, docID, stage, -1, infraRetryDelay)
}

// ensureActive re-reads the document and aborts if it went terminal while
// the stage was working. Stages call this before committing output rows.
func (p *Pipeline) ensureActive(ctx context.Context, docID uuid.UUID) error {
	doc, err := p.store.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if doc.Status.Terminal() {
		return errCancelled
	}
	return nil
}
