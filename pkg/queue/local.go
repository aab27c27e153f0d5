package queue

import (
	"context"
	"sync"
	"sync/atomic"
)

// LocalQueue is an in-process buffered queue. Enqueue blocks while the
// buffer is full, bounded by the caller's context.
type LocalQueue struct {
	tasks     chan *Task
	done      chan struct{}
	closeOnce sync.Once
	active    atomic.Int64
}

func NewLocalQueue(buffer int) *LocalQueue {
	if buffer < 1 {
		buffer = 1
	}
	return &LocalQueue{
		tasks: make(chan *Task, buffer),
		done:  make(chan struct{}),
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, task *Task) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.tasks <- task:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a task is available, the queue is closed or ctx ends.
func (q *LocalQueue) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case task := <-q.tasks:
		return task, nil
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MarkActive tracks in-flight work for Stats.
func (q *LocalQueue) MarkActive(delta int64) {
	q.active.Add(delta)
}

func (q *LocalQueue) Stats(ctx context.Context) (Stats, error) {
	return Stats{
		Driver:  "local",
		Pending: len(q.tasks),
		Active:  int(q.active.Load()),
	}, nil
}

// Close stops accepting tasks. Buffered tasks are dropped.
func (q *LocalQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
