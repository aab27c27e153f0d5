package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/pdf-task-processor/config"
	"github.com/feichai0017/pdf-task-processor/internal/agent"
	"github.com/feichai0017/pdf-task-processor/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-task-processor/internal/repository"
	"github.com/feichai0017/pdf-task-processor/internal/service/file"
	"github.com/feichai0017/pdf-task-processor/internal/service/task"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
	"github.com/feichai0017/pdf-task-processor/pkg/queue"
	"github.com/feichai0017/pdf-task-processor/pkg/storage"
)

// redis key prefix shared by the server and worker processes
const keyPrefix = "pdftask"

// Services bundles the document services both processes are built from.
type Services struct {
	Files     *file.FileService
	Tasks     *task.TaskService
	Processor *pdf.Processor
	Queue     queue.Queue

	// LocalQueue is set when queue.driver is local; the caller runs the pool.
	LocalQueue *queue.LocalQueue

	redis redis.UniversalClient
}

// GetService wires storage, repositories, transformers and the dispatch
// queue according to cfg.
func GetService(ctx context.Context, cfg config.Config, log logger.Logger) (*Services, error) {
	// 初始化存储
	store, err := storage.NewStorage(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	s := &Services{}

	var (
		fileRepo repository.FileRepository
		taskRepo repository.TaskRepository
	)
	switch cfg.Store.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.redis = client
		fileRepo = repository.NewRedisFileRepository(client, keyPrefix)
		taskRepo = repository.NewRedisTaskRepository(client, keyPrefix)
	default:
		fileRepo = repository.NewMemoryFileRepository()
		taskRepo = repository.NewMemoryTaskRepository()
	}

	// 初始化队列
	switch cfg.Queue.Driver {
	case "asynq":
		s.Queue = queue.NewAsynqQueue(queue.QueueConfig{
			RedisAddr:     cfg.Redis.Addr,
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
			QueueName:     cfg.Queue.Name,
		})
	default:
		s.LocalQueue = queue.NewLocalQueue(cfg.Queue.Buffer)
		s.Queue = s.LocalQueue
	}

	// 初始化处理器工厂
	s.Files = file.NewService(fileRepo, store, log.Named("files"))
	s.Processor = pdf.NewProcessor(log)
	factory := agent.NewTransformerFactory(s.Files, s.Processor, cfg.Queue.ExtractConcurrency, log.Named("agent"))
	s.Tasks = task.NewService(taskRepo, s.Files, factory, s.Queue, log.Named("tasks"))

	log.Info("Document services initialized",
		logger.String("storage", cfg.Storage.Type),
		logger.String("store", cfg.Store.Driver),
		logger.String("queue", cfg.Queue.Driver),
	)
	return s, nil
}

// Close releases the queue and the redis connection.
func (s *Services) Close() error {
	var errs []error
	if s.Queue != nil {
		errs = append(errs, s.Queue.Close())
	}
	if s.Processor != nil {
		errs = append(errs, s.Processor.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	return errors.Join(errs...)
}
