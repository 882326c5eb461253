package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cfg "github.com/joeott/docpipeline/config"
	"github.com/joeott/docpipeline/internal/app"
	"github.com/joeott/docpipeline/pkg/logger"
	"github.com/joeott/docpipeline/pkg/queue"
	"github.com/joeott/docpipeline/pkg/worker"
)

func main() {
	appCfg := cfg.GetAppConfig()
	redisCfg := cfg.GetRedisConfig()

	log, err := logger.NewLogger(
		logger.WithLevel(appCfg.LogLevel),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, log)
	if err != nil {
		log.Error("Failed to wire application", logger.Error(err))
		os.Exit(1)
	}
	defer application.Close()

	workerCfg := &worker.Config{
		RedisAddr:   redisCfg.Addr,
		RedisDB:     redisCfg.DB,
		Concurrency: 10,
		Queues:      queue.Queues(),
	}

	stageWorker, err := worker.NewStageWorker(workerCfg, application.Pipeline, log)
	if err != nil {
		log.Error("Failed to create stage worker", logger.Error(err))
		os.Exit(1)
	}

	if err := stageWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	stageWorker.Stop()
	log.Info("Worker stopped")
}
