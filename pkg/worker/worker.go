package worker

import (
	"context"
)

// Worker runs queued tasks until stopped.
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	Queues        map[string]int
}

var (
	_ Worker = (*Pool)(nil)
	_ Worker = (*TaskWorker)(nil)
)
