package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/pkg/logger"
)

// TaskTypeOCRPoll re-checks an outstanding external OCR job.
const TaskTypeOCRPoll = "ocr:poll"

// infraMaxRetry is the asynq-level redelivery ceiling. Handlers return nil
// on business failures (stage retries are owned by the task records), so
// these redeliveries fire only when a worker crashes or outlives its task
// lease; the stage lock, task id dedup and completed-record check make a
// redelivered trigger a no-op when the work already landed.
const infraMaxRetry = 5

// TaskTypeFor returns the asynq task type for a stage trigger.
func TaskTypeFor(stage models.Stage) string {
	return "stage:" + string(stage)
}

// StagePayload triggers one stage for one document. Stage input data is
// read from the datastore/cache by the handler, never carried here.
type StagePayload struct {
	DocumentID uuid.UUID    `json:"documentId"`
	Stage      models.Stage `json:"stage"`
	Attempt    int          `json:"attempt"`
}

// PollPayload re-checks the external OCR job of one document.
type PollPayload struct {
	DocumentID uuid.UUID `json:"documentId"`
	Attempt    int       `json:"attempt"`
}

// Queues maps each stage to its own asynq queue so stage types scale
// independently; the weights bias workers toward the slow OCR queues.
func Queues() map[string]int {
	return map[string]int{
		string(models.StageOCR):     3,
		string(models.StageChunk):   2,
		string(models.StageExtract): 3,
		string(models.StageResolve): 1,
		string(models.StageRelate):  1,
	}
}

// Config holds queue connection settings.
type Config struct {
	RedisAddr   string
	RedisDB     int
	TaskTimeout time.Duration
}

// StageQueue enqueues stage triggers and poll re-checks on asynq. Task IDs
// include the attempt number so duplicate triggers of the same attempt
// dedup at the queue while self-scheduled retries still go through.
type StageQueue struct {
	client  *asynq.Client
	logger  logger.Logger
	timeout time.Duration
}

func NewStageQueue(cfg *Config, log logger.Logger) *StageQueue {
	timeout := cfg.TaskTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	return &StageQueue{client: client, logger: log, timeout: timeout}
}

// EnqueueStage schedules one stage attempt, after delay if given. A
// negative attempt skips queue-level dedup; it is used to replay a trigger
// whose original task is still marked active.
func (q *StageQueue) EnqueueStage(ctx context.Context, docID uuid.UUID, stage models.Stage, attempt int, delay time.Duration) error {
	payload, err := json.Marshal(StagePayload{DocumentID: docID, Stage: stage, Attempt: attempt})
	if err != nil {
		return fmt.Errorf("failed to marshal stage payload: %w", err)
	}

	return q.enqueue(ctx, asynq.NewTask(TaskTypeFor(stage), payload, q.stageOptions(docID, stage, attempt, delay)...))
}

func (q *StageQueue) stageOptions(docID uuid.UUID, stage models.Stage, attempt int, delay time.Duration) []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(string(stage)),
		asynq.MaxRetry(infraMaxRetry),
		asynq.Timeout(q.timeout),
	}
	if attempt >= 0 {
		opts = append(opts, asynq.TaskID(fmt.Sprintf("stage:%s:%s:%d", stage, docID, attempt)))
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	return opts
}

// EnqueuePoll schedules the next OCR job re-check.
func (q *StageQueue) EnqueuePoll(ctx context.Context, docID uuid.UUID, attempt int, delay time.Duration) error {
	payload, err := json.Marshal(PollPayload{DocumentID: docID, Attempt: attempt})
	if err != nil {
		return fmt.Errorf("failed to marshal poll payload: %w", err)
	}

	return q.enqueue(ctx, asynq.NewTask(TaskTypeOCRPoll, payload, q.pollOptions(docID, attempt, delay)...))
}

func (q *StageQueue) pollOptions(docID uuid.UUID, attempt int, delay time.Duration) []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(string(models.StageOCR)),
		asynq.TaskID(fmt.Sprintf("ocr:poll:%s:%d", docID, attempt)),
		asynq.MaxRetry(infraMaxRetry),
		asynq.Timeout(q.timeout),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	return opts
}

func (q *StageQueue) enqueue(ctx context.Context, task *asynq.Task) error {
	info, err := q.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// Same trigger already queued; the idempotency layers downstream
		// make dropping this one safe.
		q.logger.Debug("Duplicate task dropped", logger.String("type", task.Type()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.Debug("Enqueued task",
		logger.String("type", task.Type()),
		logger.String("taskId", info.ID),
		logger.String("queue", info.Queue),
	)
	return nil
}

func (q *StageQueue) Close() error {
	return q.client.Close()
}
