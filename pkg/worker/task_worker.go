package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/pdf-task-processor/pkg/logger"
	"github.com/feichai0017/pdf-task-processor/pkg/queue"
)

// TaskWorker consumes processing tasks from asynq.
type TaskWorker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	handler queue.Handler
	logger  logger.Logger
}

func NewTaskWorker(cfg *Config, handler queue.Handler, log logger.Logger) *TaskWorker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
		},
	)

	w := &TaskWorker{
		server:  server,
		mux:     asynq.NewServeMux(),
		handler: handler,
		logger:  log.Named("worker"),
	}

	// 注册任务处理器
	w.mux.HandleFunc(queue.TaskTypeProcess, w.handleProcess)
	return w
}

func (w *TaskWorker) handleProcess(ctx context.Context, t *asynq.Task) error {
	task, err := queue.DecodeTask(t.Payload())
	if err != nil {
		w.logger.Error("Invalid task payload",
			logger.String("payload", string(t.Payload())),
			logger.Error(err),
		)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	w.logger.Info("Received task",
		logger.String("id", task.ID),
		logger.Int64("taskId", task.TaskID),
	)

	if err := w.handler(ctx, task); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return nil
}

// Start runs the asynq server in the background until ctx is done.
func (w *TaskWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = w.Stop()
	}()
	return nil
}

// Stop waits for in-flight tasks, then shuts the server down.
func (w *TaskWorker) Stop() error {
	w.server.Shutdown()
	return nil
}
