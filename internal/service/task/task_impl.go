package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feichai0017/pdf-task-processor/internal/agent"
	"github.com/feichai0017/pdf-task-processor/internal/models"
	"github.com/feichai0017/pdf-task-processor/internal/repository"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
	"github.com/feichai0017/pdf-task-processor/pkg/queue"
)

// Leaser pins input files while a task uses them.
type Leaser interface {
	Acquire(ctx context.Context, ids []int64) error
	Release(ctx context.Context, ids []int64) error
}

// TransformerProvider resolves the transformer for a task type.
type TransformerProvider interface {
	GetTransformer(taskType models.TaskType) (agent.Transformer, error)
}

type TaskService struct {
	repo         repository.TaskRepository
	leases       Leaser
	transformers TransformerProvider
	queue        queue.Queue
	logger       logger.Logger
}

func NewService(
	repo repository.TaskRepository,
	leases Leaser,
	transformers TransformerProvider,
	q queue.Queue,
	log logger.Logger,
) *TaskService {
	return &TaskService{
		repo:         repo,
		leases:       leases,
		transformers: transformers,
		queue:        q,
		logger:       log.Named("task"),
	}
}

func (s *TaskService) Create(ctx context.Context, taskType models.TaskType, inputIDs []int64, params models.TaskParams) (*models.ProcessingTask, error) {
	if !taskType.Valid() {
		return nil, fmt.Errorf("unsupported task type: %s", taskType)
	}
	if len(inputIDs) == 0 {
		return nil, errors.New("task needs at least one input file")
	}
	return s.repo.Create(ctx, models.NewTask(taskType, inputIDs, params, time.Now().UTC()))
}

func (s *TaskService) Get(ctx context.Context, id int64) (*models.ProcessingTask, error) {
	return s.repo.Get(ctx, id)
}

func (s *TaskService) Update(ctx context.Context, id int64, u models.TaskUpdate) (*models.ProcessingTask, error) {
	return s.repo.Update(ctx, id, u)
}

func (s *TaskService) Submit(ctx context.Context, taskType models.TaskType, inputIDs []int64, params models.TaskParams) (*models.ProcessingTask, error) {
	task, err := s.Create(ctx, taskType, inputIDs, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if err := s.leases.Acquire(ctx, task.InputFiles); err != nil {
		return s.failDispatch(ctx, task, fmt.Errorf("failed to lease input files: %w", err), false)
	}

	err = s.queue.Enqueue(ctx, &queue.Task{
		Type:      queue.TaskTypeProcess,
		TaskID:    task.ID,
		Metadata:  map[string]string{"type": string(task.Type)},
		CreatedAt: task.CreatedAt,
	})
	if err != nil {
		return s.failDispatch(ctx, task, fmt.Errorf("failed to enqueue task: %w", err), true)
	}

	s.logger.Info("Task created",
		logger.Int64("taskId", task.ID),
		logger.String("type", string(task.Type)),
		logger.Int64s("inputFiles", task.InputFiles),
	)
	return task, nil
}

// failDispatch records pending -> failed for a task that never reached a worker.
func (s *TaskService) failDispatch(ctx context.Context, task *models.ProcessingTask, cause error, release bool) (*models.ProcessingTask, error) {
	ctx = context.WithoutCancel(ctx)
	if release {
		s.releaseInputs(ctx, task)
	}

	failed, err := s.repo.Update(ctx, task.ID, models.TaskUpdate{
		Status: models.StatusPtr(models.StatusFailed),
		Error:  models.StringPtr(cause.Error()),
	})
	if err != nil {
		s.logger.Error("Failed to record dispatch failure",
			logger.Int64("taskId", task.ID),
			logger.Error(err),
		)
		return task, cause
	}

	s.logger.Error("Task dispatch failed",
		logger.Int64("taskId", task.ID),
		logger.Error(cause),
	)
	return failed, cause
}

// HandleTask 处理任务
// Transformer errors are recorded on the task and are not returned; the
// returned error means the task could not be driven at all.
func (s *TaskService) HandleTask(ctx context.Context, qt *queue.Task) error {
	log := s.logger.With(logger.Int64("taskId", qt.TaskID))

	task, err := s.repo.Update(ctx, qt.TaskID, models.TaskUpdate{
		Status: models.StatusPtr(models.StatusProcessing),
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			log.Warn("Task is not pending, skipping", logger.Error(err))
			return nil
		}
		return fmt.Errorf("failed to start task %d: %w", qt.TaskID, err)
	}
	defer s.releaseInputs(context.WithoutCancel(ctx), task)

	log.Info("Processing task", logger.String("type", string(task.Type)))
	start := time.Now()

	outputs, runErr := s.run(ctx, task)
	update := models.TaskUpdate{
		Status:      models.StatusPtr(models.StatusCompleted),
		OutputFiles: outputs,
	}
	if runErr != nil {
		update = models.TaskUpdate{
			Status: models.StatusPtr(models.StatusFailed),
			Error:  models.StringPtr(runErr.Error()),
		}
	}

	if _, err := s.repo.Update(context.WithoutCancel(ctx), task.ID, update); err != nil {
		return fmt.Errorf("failed to finish task %d: %w", task.ID, err)
	}

	if runErr != nil {
		log.Error("Task failed",
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(runErr),
		)
		return nil
	}
	log.Info("Task completed",
		logger.Int("outputs", len(outputs)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (s *TaskService) run(ctx context.Context, task *models.ProcessingTask) (outputs []models.OutputFile, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	t, err := s.transformers.GetTransformer(task.Type)
	if err != nil {
		return nil, err
	}
	outputs, err = t.Transform(ctx, task)
	if err != nil {
		return nil, err
	}
	if outputs == nil {
		outputs = []models.OutputFile{}
	}
	return outputs, nil
}

func (s *TaskService) releaseInputs(ctx context.Context, task *models.ProcessingTask) {
	if err := s.leases.Release(ctx, task.InputFiles); err != nil {
		s.logger.Error("Failed to release input files",
			logger.Int64("taskId", task.ID),
			logger.String("inputFiles", fmt.Sprint(task.InputFiles)),
			logger.Error(err),
		)
	}
}

var _ TaskProcessor = (*TaskService)(nil)
