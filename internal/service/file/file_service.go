package file

import (
	"context"
	"io"
	"mime/multipart"
	"time"

	"github.com/feichai0017/pdf-task-processor/internal/models"
)

// FileStore owns the lifecycle of stored files: bytes in blob storage,
// metadata in a repository.
type FileStore interface {
	Save(ctx context.Context, content io.Reader, displayName, contentType string) (*models.StoredFile, error)
	// SaveBatch stores multipart uploads. Bytes are written concurrently,
	// ids and results follow input order; on any failure nothing is kept.
	SaveBatch(ctx context.Context, headers []*multipart.FileHeader) ([]*models.StoredFile, error)
	Get(ctx context.Context, id int64) (*models.StoredFile, error)
	List(ctx context.Context) ([]*models.StoredFile, error)
	// Delete reports false when id is unknown and fails with
	// models.ErrFileInUse while a task holds the file.
	Delete(ctx context.Context, id int64) (bool, error)
	Open(ctx context.Context, id int64) (io.ReadCloser, *models.StoredFile, error)
	ReadAll(ctx context.Context, id int64) ([]byte, *models.StoredFile, error)
	Acquire(ctx context.Context, ids []int64) error
	Release(ctx context.Context, ids []int64) error
	// Cleanup deletes unleased files created before olderThan and returns
	// how many were removed.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)
}
