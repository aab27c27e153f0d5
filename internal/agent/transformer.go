package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/feichai0017/pdf-task-processor/internal/agent/document"
	"github.com/feichai0017/pdf-task-processor/internal/models"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
)

// ErrSourceNotFound fails a conversion whose source file is gone. The
// message is what clients see in the task's error field.
var ErrSourceNotFound = errors.New("File not found")

// ErrNoValidDocuments fails a merge in which no input could be loaded.
var ErrNoValidDocuments = document.ErrNoDocuments

// Transformer runs one kind of task and returns the files it produced.
// A returned error fails the whole task; problems with individual inputs
// or pages are logged and skipped.
type Transformer interface {
	Type() models.TaskType
	Transform(ctx context.Context, task *models.ProcessingTask) ([]models.OutputFile, error)
}

// FileStore is the part of the file service transformers need.
type FileStore interface {
	Get(ctx context.Context, id int64) (*models.StoredFile, error)
	ReadAll(ctx context.Context, id int64) ([]byte, *models.StoredFile, error)
	Save(ctx context.Context, content io.Reader, displayName, contentType string) (*models.StoredFile, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

func outputOf(f *models.StoredFile) models.OutputFile {
	return models.OutputFile{
		ID:       f.ID,
		Filename: f.DisplayName,
		Type:     f.ContentType,
	}
}

// baseName drops the first ".pdf" from a display name.
func baseName(displayName string) string {
	return strings.Replace(displayName, ".pdf", "", 1)
}

func unixMilli(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

func unsupported(f *models.StoredFile) error {
	return fmt.Errorf("unsupported content type %q for file %s", f.ContentType, f.DisplayName)
}

// isolate runs fn and turns a panic into its error, so one bad item is
// skipped like any other per-item failure.
func isolate[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// discard deletes outputs already saved by a task that is failing. It
// runs detached from ctx since cancellation is the usual cause.
func discard(ctx context.Context, files FileStore, outputs []*models.OutputFile, log logger.Logger) {
	ctx = context.WithoutCancel(ctx)
	for _, o := range outputs {
		if o == nil {
			continue
		}
		if _, err := files.Delete(ctx, o.ID); err != nil {
			log.Error("Failed to discard partial output",
				logger.Int64("fileId", o.ID),
				logger.Error(err),
			)
			continue
		}
		log.Info("Discarded partial output", logger.Int64("fileId", o.ID))
	}
}

// compact drops the slots of skipped items, keeping input order.
func compact(outputs []*models.OutputFile) []models.OutputFile {
	out := make([]models.OutputFile, 0, len(outputs))
	for _, o := range outputs {
		if o != nil {
			out = append(out, *o)
		}
	}
	return out
}
