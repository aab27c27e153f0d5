package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-task-processor/api/handlers"
	"github.com/feichai0017/pdf-task-processor/api/routes"
	"github.com/feichai0017/pdf-task-processor/config"
	"github.com/feichai0017/pdf-task-processor/internal/service/document"
	"github.com/feichai0017/pdf-task-processor/internal/service/file"
	"github.com/feichai0017/pdf-task-processor/internal/utils/validator"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
	"github.com/feichai0017/pdf-task-processor/pkg/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths(cfg.Log.OutputPaths),
		logger.WithInitialFields(map[string]interface{}{"service": "pdf-task-server"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// init document services
	services, err := document.GetService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to get document service", logger.Error(err))
	}
	defer services.Close()

	// in-process workers when tasks are not handed to cmd/worker
	var pool *worker.Pool
	if services.LocalQueue != nil {
		pool = worker.NewPool(services.LocalQueue, services.Tasks.HandleTask, cfg.Queue.Concurrency, log)
		if err := pool.Start(ctx); err != nil {
			log.Fatal("Failed to start worker pool", logger.Error(err))
		}
	}

	if cfg.Storage.Retention > 0 {
		go runCleanup(ctx, services.Files, cfg.Storage.Retention, cfg.Storage.CleanupInterval, log)
	}

	// init handlers
	uploads := validator.NewUploadValidator(log, &validator.ValidatorConfig{
		MaxFiles:     cfg.Upload.MaxFiles,
		MaxFileSize:  cfg.Upload.MaxFileSize,
		AllowedTypes: cfg.Upload.AllowedTypes,
	})
	maxUpload := int64(cfg.Upload.MaxFiles) * cfg.Upload.MaxFileSize
	h := handlers.NewHandlers(services.Files, services.Tasks, uploads, services.Queue, maxUpload, log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	routes.SetupRoutes(r, h, routes.Options{
		BasePath:     cfg.Server.BasePath,
		AllowOrigins: cfg.Server.AllowOrigins,
		Logger:       log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}

	if pool != nil {
		if err := pool.Stop(); err != nil {
			log.Error("Failed to stop worker pool", logger.Error(err))
		}
		if err := pool.WaitAll(shutdownCtx); err != nil {
			log.Warn("Workers still running at shutdown", logger.Error(err))
		}
	}
	log.Info("Server stopped")
}

// runCleanup removes unleased files older than retention every interval.
func runCleanup(ctx context.Context, files *file.FileService, retention, interval time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := files.Cleanup(ctx, time.Now().Add(-retention))
			if err != nil {
				log.Error("Cleanup failed", logger.Error(err))
				continue
			}
			if n > 0 {
				log.Info("Removed expired files", logger.Int("count", n))
			}
		}
	}
}
