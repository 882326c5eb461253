package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/internal/pipeline"
	"github.com/joeott/docpipeline/pkg/logger"
	"github.com/joeott/docpipeline/pkg/queue"
)

// StageWorker consumes stage triggers and OCR poll re-checks. One handler
// per stage queue; the pipeline owns retries, so a handler error only
// surfaces infrastructure failures to asynq.
type StageWorker struct {
	BaseWorker
	pipeline *pipeline.Pipeline
}

func NewStageWorker(cfg *Config, p *pipeline.Pipeline, log logger.Logger) (*StageWorker, error) {
	queues := cfg.Queues
	if queues == nil {
		queues = queue.Queues()
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      queues,
		},
	)

	w := &StageWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log.Named("worker"),
			stopChan: make(chan struct{}),
		},
		pipeline: p,
	}

	w.registerHandlers()
	return w, nil
}

func (w *StageWorker) registerHandlers() {
	for _, stage := range models.Stages() {
		w.mux.HandleFunc(queue.TaskTypeFor(stage), w.handleStage)
	}
	w.mux.HandleFunc(queue.TaskTypeOCRPoll, w.handlePoll)
}

func (w *StageWorker) handleStage(ctx context.Context, t *asynq.Task) error {
	var payload queue.StagePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("Failed to unmarshal stage payload",
			logger.String("payload", string(t.Payload())),
			logger.Error(err),
		)
		return fmt.Errorf("failed to unmarshal stage payload: %w", err)
	}

	w.logger.Debug("Stage trigger received",
		logger.String("documentId", payload.DocumentID.String()),
		logger.String("stage", string(payload.Stage)),
		logger.Int("attempt", payload.Attempt),
	)

	return w.pipeline.HandleStage(ctx, payload)
}

func (w *StageWorker) handlePoll(ctx context.Context, t *asynq.Task) error {
	var payload queue.PollPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("Failed to unmarshal poll payload",
			logger.String("payload", string(t.Payload())),
			logger.Error(err),
		)
		return fmt.Errorf("failed to unmarshal poll payload: %w", err)
	}

	return w.pipeline.HandlePoll(ctx, payload)
}

func (w *StageWorker) Start(ctx context.Context) error {
	go func() {
		if err := w.server.Run(w.mux); err != nil {
			w.logger.Error("Worker server stopped", logger.Error(err))
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopChan:
		}
	}()

	return nil
}
