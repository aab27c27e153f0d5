package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/feichai0017/pdf-task-processor/pkg/logger"
	"github.com/feichai0017/pdf-task-processor/pkg/queue"
)

// Pool runs handler on tasks from a LocalQueue with bounded concurrency.
type Pool struct {
	queue       *queue.LocalQueue
	handler     queue.Handler
	concurrency int
	logger      logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(q *queue.LocalQueue, handler queue.Handler, concurrency int, log logger.Logger) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		queue:       q,
		handler:     handler,
		concurrency: concurrency,
		logger:      log.Named("pool"),
	}
}

// Start launches the workers. Tasks run under ctx; cancelling it (or Stop)
// ends the workers after their current task.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errors.New("pool already started")
	}

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}

	p.logger.Info("Worker pool started", logger.Int("concurrency", p.concurrency))
	return nil
}

func (p *Pool) loop(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		task, err := p.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		p.process(ctx, id, task)
	}
}

func (p *Pool) process(ctx context.Context, id int, task *queue.Task) {
	p.queue.MarkActive(1)
	defer p.queue.MarkActive(-1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task handler panicked",
				logger.Int("worker", id),
				logger.Int64("taskId", task.TaskID),
				logger.Any("panic", r),
			)
		}
	}()

	if err := p.handler(ctx, task); err != nil {
		p.logger.Error("Task handler failed",
			logger.Int("worker", id),
			logger.Int64("taskId", task.TaskID),
			logger.Error(err),
		)
	}
}

// Stop cancels the workers' context without waiting.
func (p *Pool) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// WaitAll blocks until every worker has returned or ctx is done.
func (p *Pool) WaitAll(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
