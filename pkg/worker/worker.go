package worker

import (
	"context"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/joeott/docpipeline/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	RedisAddr   string
	RedisDB     int
	Concurrency int
	Queues      map[string]int
}

type BaseWorker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	logger   logger.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

func (w *BaseWorker) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.server.Shutdown()
	})
	return nil
}
