package document

import (
	"context"
	"errors"

	"github.com/feichai0017/pdf-task-processor/internal/models"
)

// ErrNoDocuments is returned when a merge is left with no usable input.
var ErrNoDocuments = errors.New("no valid documents to merge")

// Processor 文档处理器接口
type Processor interface {
	// CanProcess 检查是否可以处理指定MIME类型的文件
	CanProcess(mimeType string) bool

	// ExtractPages returns the text of every page in page order.
	ExtractPages(ctx context.Context, content []byte) ([]models.DocumentPage, error)

	// PageCount parses the document and returns its page count.
	PageCount(ctx context.Context, content []byte) (int, error)

	// Merge concatenates documents in the given order.
	Merge(ctx context.Context, docs [][]byte) ([]byte, error)

	// ExtractPage returns a single-page document holding page n (1-based).
	ExtractPage(ctx context.Context, content []byte, n int) ([]byte, error)

	// Close 清理资源
	Close() error
}
