// pkg/queue/queue.go
package queue

import (
	"context"
	"errors"
	"time"
)

// TaskTypeProcess is the asynq task type for every processing task.
const TaskTypeProcess = "pdf:process"

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("queue is closed")

// Queue 接口定义
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Task 定义任务结构
// TaskID references the stored ProcessingTask; the queue only carries ids.
type Task struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	TaskID    int64             `json:"taskId"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Handler processes one dequeued task.
type Handler func(ctx context.Context, task *Task) error

// Stats reports queue depth for health checks.
type Stats struct {
	Driver  string `json:"driver"`
	Pending int    `json:"pending"`
	Active  int    `json:"active"`
}
