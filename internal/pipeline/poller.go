package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/joeott/docpipeline/internal/cache"
	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/internal/ocr"
	"github.com/joeott/docpipeline/internal/store"
	"github.com/joeott/docpipeline/pkg/logger"
	"github.com/joeott/docpipeline/pkg/queue"
)

// JobPoller coordinates asynchronous external jobs: submit, then poll on a
// backoff schedule as scheduled queue tasks, never holding a worker for the
// job's duration. The external job id is persisted before the first poll is
// scheduled, so a poller that dies is resumed by any other worker against
// the same job instead of resubmitting duplicate work.
type JobPoller struct {
	p      *Pipeline
	client ocr.Client
	policy PollPolicy
}

// Submit starts (or resumes) the external job for the document and
// schedules the first poll. Always returns errAwaitingPoll on the success
// path: completion is delivered by a later poll, not by this call.
func (jp *JobPoller) Submit(ctx context.Context, doc *models.Document, rec *models.StageTaskRecord) error {
	log := jp.p.logger.With(logger.String("documentId", doc.ID.String()))

	if doc.ExternalJobID != "" {
		// A previous worker already submitted; resume polling its job.
		log.Info("Resuming outstanding external job",
			logger.String("jobId", doc.ExternalJobID),
		)
		if err := jp.p.queue.EnqueuePoll(ctx, doc.ID, 1, jp.policy.InitialDelay); err != nil {
			return err
		}
		return errAwaitingPoll
	}

	jobID, err := jp.client.SubmitJob(ctx, doc.SourceRef)
	if err != nil {
		return err
	}

	// Persist the job id before anything can poll or crash: this is the
	// property that makes OCR recoverable without duplicate submissions.
	rec.ExternalJobID = jobID
	if err := jp.p.store.UpsertStageTask(ctx, rec); err != nil {
		return err
	}
	doc.ExternalJobID = jobID
	if err := jp.p.transition(ctx, doc, models.StatusOCRSubmitted, models.StageOCR); err != nil {
		return err
	}

	log.Info("External job submitted", logger.String("jobId", jobID))
	if err := jp.p.queue.EnqueuePoll(ctx, doc.ID, 1, jp.policy.InitialDelay); err != nil {
		return err
	}
	return errAwaitingPoll
}

// HandlePoll runs one scheduled re-check of the document's external job.
func (jp *JobPoller) HandlePoll(ctx context.Context, payload queue.PollPayload) error {
	log := jp.p.logger.With(
		logger.String("documentId", payload.DocumentID.String()),
		logger.Int("pollAttempt", payload.Attempt),
	)

	doc, err := jp.p.store.GetDocument(ctx, payload.DocumentID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("Dropping poll for unknown document")
		return nil
	}
	if err != nil {
		return jp.reschedule(ctx, payload, log)
	}
	if doc.Status.Terminal() {
		return nil
	}

	rec, err := jp.p.store.GetStageTask(ctx, doc.ID, models.StageOCR)
	if err != nil {
		return jp.reschedule(ctx, payload, log)
	}
	if rec.Status == models.TaskCompleted {
		return nil
	}
	if doc.ExternalJobID == "" {
		return jp.fail(ctx, doc, rec, "poll scheduled without an external job id")
	}

	status, err := jp.client.GetJobStatus(ctx, doc.ExternalJobID)
	if err != nil {
		log.Warn("Poll attempt failed", logger.Error(err))
		if payload.Attempt >= jp.policy.MaxAttempts {
			return jp.fail(ctx, doc, rec, err.Error())
		}
		return jp.reschedule(ctx, payload, log)
	}

	switch status.State {
	case ocr.JobInProgress:
		if payload.Attempt >= jp.policy.MaxAttempts {
			return jp.fail(ctx, doc, rec, "external job did not complete within the poll budget")
		}
		if err := jp.p.transition(ctx, doc, models.StatusOCRPolling, models.StageOCR); err != nil {
			log.Warn("Failed to mark document polling", logger.Error(err))
		}
		return jp.reschedule(ctx, payload, log)

	case ocr.JobSucceeded:
		// Completion is stage work and runs under the same per-stage lock
		// the stage runner holds; a held lock just defers to a later poll.
		owner := uuid.NewString()
		lockKey := cache.StageLockKey(doc.ID, models.StageOCR)
		got, lockErr := jp.p.cache.TryLock(ctx, lockKey, owner, jp.p.cfg.lockTTL(models.StageOCR))
		if lockErr != nil || !got {
			log.Debug("OCR stage locked, deferring completion")
			return jp.reschedule(ctx, payload, log)
		}
		defer func() {
			if err := jp.p.cache.Unlock(context.WithoutCancel(ctx), lockKey, owner); err != nil {
				log.Warn("Failed to release stage lock", logger.Error(err))
			}
		}()
		return jp.p.completeOCR(ctx, doc, rec, status.Text)

	default:
		// The service's failure reason is recorded verbatim.
		return jp.fail(ctx, doc, rec, status.Error)
	}
}

func (jp *JobPoller) reschedule(ctx context.Context, payload queue.PollPayload, log logger.Logger) error {
	next := payload.Attempt + 1
	delay := jp.policy.Delay(next)
	log.Debug("Job still in progress, scheduling re-check", logger.Duration("delay", delay))
	return jp.p.queue.EnqueuePoll(ctx, payload.DocumentID, next, delay)
}

func (jp *JobPoller) fail(ctx context.Context, doc *models.Document, rec *models.StageTaskRecord, reason string) error {
	return jp.p.failStage(ctx, doc, rec, reason)
}
