package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeott/docpipeline/internal/cache"
	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/internal/ocr"
	"github.com/joeott/docpipeline/pkg/queue"
)

func TestSubmitPersistsJobIDBeforeFirstPoll(t *testing.T) {
	env := newTestEnv(t, &fakeOCRClient{text: "text", pollsUntilDone: 1}, sampleExtractor())
	ctx := context.Background()

	doc := seedDocument(t, env, models.StatusPending, models.StageOCR)
	rec := models.NewStageTaskRecord(doc.ID, models.StageOCR)
	require.NoError(t, env.store.UpsertStageTask(ctx, rec))

	err := env.pipeline.poller.Submit(ctx, doc, rec)
	require.ErrorIs(t, err, errAwaitingPoll)

	// the job id is durable before any poll could observe the document.
	got, gerr := env.store.GetDocument(ctx, doc.ID)
	require.NoError(t, gerr)
	assert.Equal(t, "job-1", got.ExternalJobID)
	assert.Equal(t, models.StatusOCRSubmitted, got.Status)

	gotRec, gerr := env.store.GetStageTask(ctx, doc.ID, models.StageOCR)
	require.NoError(t, gerr)
	assert.Equal(t, "job-1", gotRec.ExternalJobID)

	require.Len(t, env.queue.polls, 1)
	assert.Equal(t, 1, env.queue.polls[0].Attempt)
}

func TestSubmitResumesOutstandingJobWithoutResubmitting(t *testing.T) {
	client := &fakeOCRClient{text: "text"}
	env := newTestEnv(t, client, sampleExtractor())
	ctx := context.Background()

	// a previous worker submitted and crashed before polling.
	doc := seedDocument(t, env, models.StatusOCRSubmitted, models.StageOCR)
	doc.ExternalJobID = "job-from-crashed-worker"
	require.NoError(t, env.store.UpdateDocument(ctx, doc))
	rec := models.NewStageTaskRecord(doc.ID, models.StageOCR)
	rec.ExternalJobID = doc.ExternalJobID
	require.NoError(t, env.store.UpsertStageTask(ctx, rec))

	err := env.pipeline.poller.Submit(ctx, doc, rec)
	require.ErrorIs(t, err, errAwaitingPoll)

	assert.Zero(t, client.submits, "the outstanding job is resumed, not resubmitted")
	require.Len(t, env.queue.polls, 1)
}

func TestHandlePollInProgressReschedulesWithBackoff(t *testing.T) {
	env := newTestEnv(t, &fakeOCRClient{text: "text", pollsUntilDone: 100}, sampleExtractor())
	ctx := context.Background()

	doc := seedDocument(t, env, models.StatusOCRSubmitted, models.StageOCR)
	doc.ExternalJobID = "job-1"
	require.NoError(t, env.store.UpdateDocument(ctx, doc))
	require.NoError(t, env.store.UpsertStageTask(ctx, models.NewStageTaskRecord(doc.ID, models.StageOCR)))

	require.NoError(t, env.pipeline.HandlePoll(ctx, queue.PollPayload{DocumentID: doc.ID, Attempt: 1}))

	got, err := env.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOCRPolling, got.Status)

	require.Len(t, env.queue.polls, 1)
	assert.Equal(t, 2, env.queue.polls[0].Attempt, "the re-check carries the next attempt number")
}

func TestHandlePollBudgetExhaustion(t *testing.T) {
	env := newTestEnv(t, &fakeOCRClient{text: "text", pollsUntilDone: 100}, sampleExtractor())
	ctx := context.Background()

	doc := seedDocument(t, env, models.StatusOCRPolling, models.StageOCR)
	doc.ExternalJobID = "job-1"
	require.NoError(t, env.store.UpdateDocument(ctx, doc))
	require.NoError(t, env.store.UpsertStageTask(ctx, models.NewStageTaskRecord(doc.ID, models.StageOCR)))

	budget := env.pipeline.cfg.Poll.MaxAttempts
	require.NoError(t, env.pipeline.HandlePoll(ctx, queue.PollPayload{DocumentID: doc.ID, Attempt: budget}))

	got, err := env.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "poll budget")
	assert.Empty(t, env.queue.polls, "no re-check after the budget")
}

func TestHandlePollDropsCompletedRecord(t *testing.T) {
	client := &fakeOCRClient{text: "text"}
	env := newTestEnv(t, client, sampleExtractor())
	ctx := context.Background()

	doc := seedDocument(t, env, models.StatusChunking, models.StageChunk)
	doc.ExternalJobID = "job-1"
	require.NoError(t, env.store.UpdateDocument(ctx, doc))
	rec := models.NewStageTaskRecord(doc.ID, models.StageOCR)
	rec.Status = models.TaskCompleted
	require.NoError(t, env.store.UpsertStageTask(ctx, rec))

	// a straggler poll from before completion lands late.
	require.NoError(t, env.pipeline.HandlePoll(ctx, queue.PollPayload{DocumentID: doc.ID, Attempt: 3}))

	assert.Zero(t, client.polls, "completed OCR is never re-polled")
	assert.Empty(t, env.queue.polls)
}

func TestHandlePollMissingJobIDFailsDocument(t *testing.T) {
	env := newTestEnv(t, &fakeOCRClient{}, sampleExtractor())
	ctx := context.Background()

	doc := seedDocument(t, env, models.StatusOCRSubmitted, models.StageOCR)
	require.NoError(t, env.store.UpsertStageTask(ctx, models.NewStageTaskRecord(doc.ID, models.StageOCR)))

	require.NoError(t, env.pipeline.HandlePoll(ctx, queue.PollPayload{DocumentID: doc.ID, Attempt: 1}))

	got, err := env.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
}

// flakyOCRClient fails GetJobStatus a fixed number of times before
// delegating to the embedded fake.
type flakyOCRClient struct {
	fakeOCRClient
	statusFailures int
	statusCalls    int
}

func (c *flakyOCRClient) GetJobStatus(ctx context.Context, jobID string) (*ocr.JobStatus, error) {
	c.statusCalls++
	if c.statusCalls <= c.statusFailures {
		return nil, fmt.Errorf("throttled: attempt %d", c.statusCalls)
	}
	return c.fakeOCRClient.GetJobStatus(ctx, jobID)
}

func TestHandlePollStatusErrorReschedules(t *testing.T) {
	client := &flakyOCRClient{fakeOCRClient: fakeOCRClient{text: "text"}, statusFailures: 1}
	env := newTestEnv(t, client, sampleExtractor())
	ctx := context.Background()

	doc := seedDocument(t, env, models.StatusOCRSubmitted, models.StageOCR)
	doc.ExternalJobID = "job-1"
	require.NoError(t, env.store.UpdateDocument(ctx, doc))
	require.NoError(t, env.store.UpsertStageTask(ctx, models.NewStageTaskRecord(doc.ID, models.StageOCR)))

	require.NoError(t, env.pipeline.HandlePoll(ctx, queue.PollPayload{DocumentID: doc.ID, Attempt: 1}))

	got, err := env.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, got.Status.Terminal(), "a flaky status check is not a job failure")
	require.Len(t, env.queue.polls, 1)
}

func TestErrAwaitingPollIsNotAFailure(t *testing.T) {
	// guard against anyone classifying the sentinel.
	assert.NotEqual(t, FailurePermanent, Classify(errAwaitingPoll))
	assert.False(t, errors.Is(errAwaitingPoll, errCancelled))
}

func TestHandlePollDefersCompletionWhileStageLocked(t *testing.T) {
	env := newTestEnv(t, &fakeOCRClient{text: "plain text"}, sampleExtractor())
	ctx := context.Background()

	doc := seedDocument(t, env, models.StatusOCRPolling, models.StageOCR)
	doc.ExternalJobID = "job-1"
	require.NoError(t, env.store.UpdateDocument(ctx, doc))
	require.NoError(t, env.store.UpsertStageTask(ctx, models.NewStageTaskRecord(doc.ID, models.StageOCR)))

	// another worker holds the OCR stage.
	lockKey := cache.StageLockKey(doc.ID, models.StageOCR)
	held, err := env.cache.TryLock(ctx, lockKey, "other-worker", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	require.NoError(t, env.pipeline.HandlePoll(ctx, queue.PollPayload{DocumentID: doc.ID, Attempt: 1}))

	got, err := env.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOCRPolling, got.Status, "completion waits for the stage lock")
	require.Len(t, env.queue.polls, 1)
	assert.Equal(t, 2, env.queue.polls[0].Attempt)

	// the holder released; the deferred re-check finishes the stage and the
	// lock does not linger afterwards.
	require.NoError(t, env.cache.Unlock(ctx, lockKey, "other-worker"))
	env.queue.drain(ctx, t)

	got, err = env.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	free, err := env.cache.TryLock(ctx, lockKey, "next-worker", time.Minute)
	require.NoError(t, err)
	assert.True(t, free)
}
