package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joeott/docpipeline/internal/cache"
	"github.com/joeott/docpipeline/internal/chunker"
	"github.com/joeott/docpipeline/internal/extract"
	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/internal/ocr"
	"github.com/joeott/docpipeline/internal/resolver"
	"github.com/joeott/docpipeline/internal/store"
	"github.com/joeott/docpipeline/pkg/logger"
	"github.com/joeott/docpipeline/pkg/queue"
	"github.com/joeott/docpipeline/pkg/storage"
)

// Enqueuer schedules stage triggers and OCR poll re-checks. Satisfied by
// queue.StageQueue in production and by fakes in tests.
type Enqueuer interface {
	EnqueueStage(ctx context.Context, docID uuid.UUID, stage models.Stage, attempt int, delay time.Duration) error
	EnqueuePoll(ctx context.Context, docID uuid.UUID, attempt int, delay time.Duration) error
}

// Pipeline owns the per-document stage chain: it runs each stage's work
// under the idempotency and locking contract, drives lifecycle transitions
// and chains the next stage on success. All state it mutates lives in the
// store and cache; there is no process-wide registry.
type Pipeline struct {
	store     store.Store
	cache     cache.Cache
	queue     Enqueuer
	blobs     storage.Storage
	extractor extract.Extractor
	resolver  *resolver.Resolver
	chunker   *chunker.Chunker
	poller    *JobPoller
	logger    logger.Logger
	cfg       Config
}

// New wires a pipeline. ocrClient is the external OCR collaborator the job
// poller drives; extractor the synchronous entity-extraction collaborator.
func New(
	st store.Store,
	c cache.Cache,
	q Enqueuer,
	blobs storage.Storage,
	ocrClient ocr.Client,
	extractor extract.Extractor,
	cfg Config,
	log logger.Logger,
) *Pipeline {
	if cfg.MaxConcurrentExtract <= 0 {
		// errgroup.SetLimit(0) would admit no goroutines at all.
		cfg.MaxConcurrentExtract = DefaultConfig().MaxConcurrentExtract
	}
	p := &Pipeline{
		store:     st,
		cache:     c,
		queue:     q,
		blobs:     blobs,
		extractor: extractor,
		resolver:  resolver.New(cfg.Resolver, log.Named("resolver")),
		chunker:   chunker.New(cfg.ChunkSize),
		logger:    log.Named("pipeline"),
		cfg:       cfg,
	}
	p.poller = &JobPoller{p: p, client: ocrClient, policy: cfg.Poll}
	return p
}

// HandleStage is the queue entrypoint for a stage trigger.
func (p *Pipeline) HandleStage(ctx context.Context, payload queue.StagePayload) error {
	var work workFunc
	switch payload.Stage {
	case models.StageOCR:
		work = p.runOCR
	case models.StageChunk:
		work = p.runChunk
	case models.StageExtract:
		work = p.runExtract
	case models.StageResolve:
		work = p.runResolve
	case models.StageRelate:
		work = p.runRelate
	default:
		return fmt.Errorf("unknown stage %q", payload.Stage)
	}
	return p.runStage(ctx, payload.DocumentID, payload.Stage, work)
}

// HandlePoll is the queue entrypoint for an OCR job re-check.
func (p *Pipeline) HandlePoll(ctx context.Context, payload queue.PollPayload) error {
	return p.poller.HandlePoll(ctx, payload)
}
