package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/feichai0017/pdf-task-processor/internal/agent/document"
	"github.com/feichai0017/pdf-task-processor/internal/models"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
)

// MaxPages bounds the page count a document may declare. Larger counts
// come from broken page trees, not real uploads.
const MaxPages = 10000

var configOnce sync.Once

// Processor wraps the PDF libraries: ledongthuc/pdf reads text, pdfcpu
// handles page-level operations.
type Processor struct {
	logger logger.Logger
}

func NewProcessor(log logger.Logger) *Processor {
	// pdfcpu otherwise writes a config dir under the user's home on first use
	configOnce.Do(api.DisableConfigDir)
	return &Processor{
		logger: log.Named("pdf"),
	}
}

func (p *Processor) CanProcess(mimeType string) bool {
	return mimeType == models.ContentTypePDF
}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// recoverPanic turns a panic inside the PDF libraries into err. Both
// libraries panic on some malformed inputs instead of returning errors.
func (p *Processor) recoverPanic(op string, err *error) {
	if r := recover(); r != nil {
		p.logger.Warn("Recovered from malformed document",
			logger.String("op", op),
			logger.Any("panic", r),
		)
		*err = fmt.Errorf("failed to %s: malformed document: %v", op, r)
	}
}

// ExtractPages 提取每页文本
// Null pages yield a page with no tokens so numbering stays contiguous.
func (p *Processor) ExtractPages(ctx context.Context, content []byte) (_ []models.DocumentPage, err error) {
	defer p.recoverPanic("extract text", &err)

	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf: %w", err)
	}

	numPages := pdfReader.NumPage()
	if numPages < 0 || numPages > MaxPages {
		return nil, fmt.Errorf("failed to parse pdf: implausible page count %d", numPages)
	}
	pages := make([]models.DocumentPage, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := models.DocumentPage{Number: i, Tokens: []string{}}
		pdfPage := pdfReader.Page(i)
		if pdfPage.V.IsNull() {
			p.logger.Debug("Null page, emitting it empty", logger.Int("page", i))
			pages = append(pages, page)
			continue
		}

		rows, err := pdfPage.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("failed to get text from page %d: %w", i, err)
		}
		for _, row := range rows {
			for _, text := range row.Content {
				if text.S == "" {
					continue
				}
				page.Tokens = append(page.Tokens, text.S)
			}
		}
		pages = append(pages, page)
	}

	return pages, nil
}

// PageCount returns the number of pages, validating the document on the way.
func (p *Processor) PageCount(ctx context.Context, content []byte) (_ int, err error) {
	defer p.recoverPanic("count pages", &err)

	n, err := api.PageCount(bytes.NewReader(content), newConfiguration())
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return n, nil
}

// Merge concatenates docs in order into one PDF.
func (p *Processor) Merge(ctx context.Context, docs [][]byte) (_ []byte, err error) {
	if len(docs) == 0 {
		return nil, document.ErrNoDocuments
	}
	defer p.recoverPanic("merge documents", &err)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	readers := make([]io.ReadSeeker, len(docs))
	for i, doc := range docs {
		readers[i] = bytes.NewReader(doc)
	}

	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, newConfiguration()); err != nil {
		return nil, fmt.Errorf("failed to merge documents: %w", err)
	}
	return out.Bytes(), nil
}

// ExtractPage returns a single-page PDF holding page n (1-based) of content.
func (p *Processor) ExtractPage(ctx context.Context, content []byte, n int) (_ []byte, err error) {
	if n < 1 {
		return nil, fmt.Errorf("invalid page number: %d", n)
	}
	defer p.recoverPanic(fmt.Sprintf("extract page %d", n), &err)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(content), &out, []string{strconv.Itoa(n)}, newConfiguration()); err != nil {
		return nil, fmt.Errorf("failed to extract page %d: %w", n, err)
	}
	return out.Bytes(), nil
}

// Close 实现 document.Processor 接口的 Close 方法
func (p *Processor) Close() error {
	return nil
}
