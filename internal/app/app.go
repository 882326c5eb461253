package app

import (
	"context"
	"fmt"

	cfg "github.com/joeott/docpipeline/config"
	"github.com/joeott/docpipeline/internal/cache"
	"github.com/joeott/docpipeline/internal/extract"
	"github.com/joeott/docpipeline/internal/ocr"
	"github.com/joeott/docpipeline/internal/pipeline"
	"github.com/joeott/docpipeline/internal/service/document"
	"github.com/joeott/docpipeline/internal/store"
	"github.com/joeott/docpipeline/internal/store/badgerstore"
	"github.com/joeott/docpipeline/internal/utils/validator"
	"github.com/joeott/docpipeline/pkg/logger"
	"github.com/joeott/docpipeline/pkg/queue"
	"github.com/joeott/docpipeline/pkg/storage"
)

// App holds the wired collaborators shared by the server and the worker.
type App struct {
	Store     store.Store
	Cache     cache.Cache
	Queue     *queue.StageQueue
	Blobs     storage.Storage
	Pipeline  *pipeline.Pipeline
	Documents document.Service
	Logger    logger.Logger
}

// New wires the full dependency graph from configuration.
func New(ctx context.Context, log logger.Logger) (*App, error) {
	appCfg := cfg.GetAppConfig()
	redisCfg := cfg.GetRedisConfig()
	badgerCfg := cfg.GetBadgerConfig()
	serverCfg := cfg.GetServerConfig()

	st, err := badgerstore.Open(badgerCfg.Dir, badgerCfg.InMemory, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open datastore: %w", err)
	}

	c := cache.NewRedisCache(redisCfg.Addr, redisCfg.DB, log)

	blobs, err := storage.NewStorage(storage.StorageType(appCfg.StorageType), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	q := queue.NewStageQueue(&queue.Config{
		RedisAddr: redisCfg.Addr,
		RedisDB:   redisCfg.DB,
	}, log)

	ocrClient, err := ocr.NewClient(ctx, ocr.Provider(appCfg.OCRProvider), blobs, c, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OCR client: %w", err)
	}

	extractor, err := extract.NewComprehendExtractor(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize extractor: %w", err)
	}

	pipeCfg, err := pipeline.LoadConfig(appCfg.PipelineConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline config: %w", err)
	}

	p := pipeline.New(st, c, q, blobs, ocrClient, extractor, pipeCfg, log)

	v := validator.NewDocumentValidator(log, validator.DefaultValidatorConfig(serverCfg.MaxUploadSize))
	docs := document.NewService(st, blobs, p, v, log)

	return &App{
		Store:     st,
		Cache:     c,
		Queue:     q,
		Blobs:     blobs,
		Pipeline:  p,
		Documents: docs,
		Logger:    log,
	}, nil
}

// Close releases the queue client and the datastore.
func (a *App) Close() error {
	var firstErr error
	if err := a.Queue.Close(); err != nil {
		firstErr = err
	}
	if err := a.Store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
