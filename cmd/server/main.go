package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joeott/docpipeline/api/handlers"
	"github.com/joeott/docpipeline/api/routes"
	cfg "github.com/joeott/docpipeline/config"
	"github.com/joeott/docpipeline/internal/app"
	"github.com/joeott/docpipeline/pkg/logger"
)

func main() {
	appCfg := cfg.GetAppConfig()
	serverCfg := cfg.GetServerConfig()

	log, err := logger.NewLogger(
		logger.WithLevel(appCfg.LogLevel),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/server.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	application, err := app.New(context.Background(), log)
	if err != nil {
		log.Fatal("Failed to wire application", logger.Error(err))
	}
	defer application.Close()

	// optional retention sweep over stored blobs
	if appCfg.BlobRetention > 0 {
		go runBlobJanitor(application, appCfg.BlobRetention, log)
	}

	gin.SetMode(serverCfg.Mode)
	h := handlers.NewHandlers(application.Documents, log)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = serverCfg.MaxUploadSize
	routes.SetupRoutes(r, h)

	srv := &http.Server{
		Addr:    ":" + serverCfg.Port,
		Handler: r,
	}

	go func() {
		log.Info("Server starting", logger.String("port", serverCfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}

// runBlobJanitor sweeps expired blobs once a day.
func runBlobJanitor(application *app.App, retention time.Duration, log logger.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		threshold := time.Now().Add(-retention)
		if err := application.Blobs.CleanupBefore(context.Background(), threshold); err != nil {
			log.Error("Blob cleanup failed", logger.Error(err))
		}
	}
}
