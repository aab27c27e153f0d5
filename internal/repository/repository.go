// Package repository holds metadata for stored files and processing tasks.
// Implementations hand out copies: callers never share memory with the store.
package repository

import (
	"context"

	"github.com/feichai0017/pdf-task-processor/internal/models"
)

// FileRepository stores StoredFile records and their lease counts.
type FileRepository interface {
	// Create assigns the next id to f and stores it.
	Create(ctx context.Context, f *models.StoredFile) (*models.StoredFile, error)
	Get(ctx context.Context, id int64) (*models.StoredFile, error)
	// List returns all records in id order.
	List(ctx context.Context) ([]*models.StoredFile, error)
	// Delete removes the record and returns it. It fails with
	// models.ErrFileInUse while the file holds a lease.
	Delete(ctx context.Context, id int64) (*models.StoredFile, error)
	// Acquire takes one lease on every known id; unknown ids are ignored.
	Acquire(ctx context.Context, ids []int64) error
	Release(ctx context.Context, ids []int64) error
}

// TaskRepository stores ProcessingTask records.
type TaskRepository interface {
	// Create assigns the next id to t and stores it.
	Create(ctx context.Context, t *models.ProcessingTask) (*models.ProcessingTask, error)
	Get(ctx context.Context, id int64) (*models.ProcessingTask, error)
	// Update applies u atomically and returns the new snapshot.
	Update(ctx context.Context, id int64, u models.TaskUpdate) (*models.ProcessingTask, error)
}
