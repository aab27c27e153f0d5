package task

import (
	"context"

	"github.com/feichai0017/pdf-task-processor/internal/models"
	"github.com/feichai0017/pdf-task-processor/pkg/queue"
)

// TaskProcessor creates processing tasks, runs them and reports their state.
type TaskProcessor interface {
	// Create stores a pending task without dispatching it.
	Create(ctx context.Context, taskType models.TaskType, inputIDs []int64, params models.TaskParams) (*models.ProcessingTask, error)
	Get(ctx context.Context, id int64) (*models.ProcessingTask, error)
	Update(ctx context.Context, id int64, u models.TaskUpdate) (*models.ProcessingTask, error)

	// Submit creates a task, leases its inputs and enqueues it. If dispatch
	// fails the task is marked failed and returned together with the error.
	Submit(ctx context.Context, taskType models.TaskType, inputIDs []int64, params models.TaskParams) (*models.ProcessingTask, error)

	// HandleTask drives a task from pending to a terminal state.
	HandleTask(ctx context.Context, task *queue.Task) error
}
