package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/pdf-task-processor/internal/agent/document"
	"github.com/feichai0017/pdf-task-processor/internal/models"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
)

// PageSplitter turns every page of the source into its own PDF. This is
// what convert_to_image produces: no rasteriser is wired in, so the
// requested format is recorded but each page stays a PDF.
type PageSplitter struct {
	files     FileStore
	processor document.Processor
	workers   int
	logger    logger.Logger
	now       func() time.Time
}

func NewPageSplitter(files FileStore, processor document.Processor, workers int, log logger.Logger) *PageSplitter {
	if workers < 1 {
		workers = 1
	}
	return &PageSplitter{
		files:     files,
		processor: processor,
		workers:   workers,
		logger:    log.Named("convert_to_image"),
		now:       time.Now,
	}
}

func (s *PageSplitter) Type() models.TaskType {
	return models.TaskTypeConvertToImage
}

func (s *PageSplitter) Transform(ctx context.Context, task *models.ProcessingTask) ([]models.OutputFile, error) {
	log := s.logger.With(logger.Int64("taskId", task.ID))
	if len(task.InputFiles) == 0 {
		return nil, ErrSourceNotFound
	}

	content, src, err := s.files.ReadAll(ctx, task.InputFiles[0])
	if errors.Is(err, models.ErrFileNotFound) {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, err
	}
	if !s.processor.CanProcess(src.ContentType) {
		return nil, unsupported(src)
	}

	pageCount, err := s.processor.PageCount(ctx, content)
	if err != nil {
		return nil, err
	}
	log.Info("Splitting document",
		logger.Int64("fileId", src.ID),
		logger.Int("pages", pageCount),
		logger.String("format", task.Params.Format),
	)

	outputs := make([]*models.OutputFile, pageCount)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i := 0; i < pageCount; i++ {
		n := i + 1
		g.Go(func() error {
			out, err := isolate(func() (*models.OutputFile, error) {
				return s.splitOne(gctx, src, content, n)
			})
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn("Error converting page, skipping",
					logger.Int64("fileId", src.ID),
					logger.Int("page", n),
					logger.Error(err),
				)
				return nil
			}
			outputs[n-1] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		discard(ctx, s.files, outputs, log)
		return nil, err
	}
	return compact(outputs), nil
}

func (s *PageSplitter) splitOne(ctx context.Context, src *models.StoredFile, content []byte, n int) (*models.OutputFile, error) {
	page, err := s.processor.ExtractPage(ctx, content, n)
	if err != nil {
		return nil, err
	}

	name := baseName(src.DisplayName) + "-page-" + strconv.Itoa(n) + "-" + unixMilli(s.now()) + ".pdf"
	saved, err := s.files.Save(ctx, bytes.NewReader(page), name, models.ContentTypePDF)
	if err != nil {
		return nil, fmt.Errorf("failed to save page %d: %w", n, err)
	}

	out := outputOf(saved)
	return &out, nil
}
