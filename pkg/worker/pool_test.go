package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-task-processor/pkg/logger"
	"github.com/feichai0017/pdf-task-processor/pkg/queue"
)

func TestPoolProcessesAllTasks(t *testing.T) {
	q := queue.NewLocalQueue(16)
	var (
		mu   sync.Mutex
		seen = map[int64]bool{}
		wg   sync.WaitGroup
	)
	wg.Add(10)
	pool := NewPool(q, func(ctx context.Context, task *queue.Task) error {
		defer wg.Done()
		mu.Lock()
		seen[task.TaskID] = true
		mu.Unlock()
		return nil
	}, 3, logger.NewNop())

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	assert.Error(t, pool.Start(ctx))

	for i := int64(1); i <= 10; i++ {
		require.NoError(t, q.Enqueue(ctx, &queue.Task{TaskID: i}))
	}
	wg.Wait()

	require.NoError(t, pool.Stop())
	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.WaitAll(waitCtx))
	assert.Len(t, seen, 10)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	q := queue.NewLocalQueue(16)
	var (
		inFlight atomic.Int32
		maxSeen  atomic.Int32
		wg       sync.WaitGroup
	)
	wg.Add(8)
	pool := NewPool(q, func(ctx context.Context, task *queue.Task) error {
		defer wg.Done()
		n := inFlight.Add(1)
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}, 2, logger.NewNop())

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	for i := int64(1); i <= 8; i++ {
		require.NoError(t, q.Enqueue(ctx, &queue.Task{TaskID: i}))
	}
	wg.Wait()
	require.NoError(t, pool.Stop())

	assert.LessOrEqual(t, maxSeen.Load(), int32(2))
}

func TestPoolSurvivesHandlerErrorsAndPanics(t *testing.T) {
	q := queue.NewLocalQueue(4)
	log := logger.NewTestLogger()
	var wg sync.WaitGroup
	wg.Add(3)
	pool := NewPool(q, func(ctx context.Context, task *queue.Task) error {
		defer wg.Done()
		switch task.TaskID {
		case 1:
			return errors.New("bad")
		case 2:
			panic("worse")
		}
		return nil
	}, 1, log)

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, q.Enqueue(ctx, &queue.Task{TaskID: i}))
	}
	wg.Wait()
	require.NoError(t, pool.Stop())
	require.NoError(t, pool.WaitAll(context.Background()))

	assert.ElementsMatch(t, []string{"Task handler failed", "Task handler panicked"}, log.Messages("ERROR"))
}

func TestWaitAllTimesOut(t *testing.T) {
	q := queue.NewLocalQueue(1)
	release := make(chan struct{})
	started := make(chan struct{})
	pool := NewPool(q, func(ctx context.Context, task *queue.Task) error {
		close(started)
		<-release
		return nil
	}, 1, logger.NewNop())

	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, q.Enqueue(context.Background(), &queue.Task{TaskID: 1}))
	<-started
	require.NoError(t, pool.Stop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.WaitAll(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, pool.WaitAll(context.Background()))
}
