package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/pdf-task-processor/config"
	"github.com/feichai0017/pdf-task-processor/internal/service/document"
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

	// 初始化日志
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths(cfg.Log.OutputPaths),
		logger.WithInitialFields(map[string]interface{}{"service": "pdf-task-worker"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.Queue.Driver != "asynq" {
		log.Error("Worker requires queue.driver asynq", logger.String("driver", cfg.Queue.Driver))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 创建文档服务
	services, err := document.GetService(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to create document service", logger.Error(err))
		os.Exit(1)
	}
	defer services.Close()

	// 创建 worker
	taskWorker := worker.NewTaskWorker(&worker.Config{
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Queue.Concurrency,
		Queues:        map[string]int{cfg.Queue.Name: 1},
	}, services.Tasks.HandleTask, log)

	// 启动 worker
	if err := taskWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Worker started",
		logger.String("queue", cfg.Queue.Name),
		logger.Int("concurrency", cfg.Queue.Concurrency),
	)

	<-ctx.Done()

	// 优雅关闭
	log.Info("Shutting down worker...")
	taskWorker.Stop()
	log.Info("Worker stopped")
}
