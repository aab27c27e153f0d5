package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// AsynqQueue 实现
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queueName string
}

// QueueConfig 定义队列配置
type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QueueName     string
}

// RedisOpt builds the asynq connection options shared by client and server.
func (c QueueConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// NewAsynqQueue 创建新的队列实例
func NewAsynqQueue(cfg QueueConfig) *AsynqQueue {
	redisOpt := cfg.RedisOpt()
	name := cfg.QueueName
	if name == "" {
		name = "default"
	}
	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		queueName: name,
	}
}

// Enqueue 将任务加入队列
// Retries are disabled: a task that fails is recorded as failed, not re-run.
func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	t := asynq.NewTask(TaskTypeProcess, payload,
		asynq.MaxRetry(0),
		asynq.Queue(q.queueName),
		asynq.TaskID(task.ID),
	)
	if _, err := q.client.EnqueueContext(ctx, t); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Stats(ctx context.Context) (Stats, error) {
	info, err := q.inspector.GetQueueInfo(q.queueName)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		// nothing enqueued yet
		return Stats{Driver: "asynq"}, nil
	}
	if err != nil {
		return Stats{Driver: "asynq"}, fmt.Errorf("failed to get queue info: %w", err)
	}
	return Stats{
		Driver:  "asynq",
		Pending: info.Pending,
		Active:  info.Active,
	}, nil
}

func (q *AsynqQueue) Close() error {
	if err := q.inspector.Close(); err != nil {
		return err
	}
	return q.client.Close()
}

// DecodeTask unmarshals an asynq payload produced by Enqueue.
func DecodeTask(payload []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if task.TaskID == 0 {
		return nil, fmt.Errorf("invalid task data: missing task id")
	}
	return &task, nil
}
