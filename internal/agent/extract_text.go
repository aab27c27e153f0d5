package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/pdf-task-processor/internal/agent/document"
	"github.com/feichai0017/pdf-task-processor/internal/models"
	"github.com/feichai0017/pdf-task-processor/pkg/converters"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
)

// TextExtractor writes one text file per input document.
type TextExtractor struct {
	files     FileStore
	processor document.Processor
	converter converters.DocumentConverter
	workers   int
	logger    logger.Logger
	now       func() time.Time
}

func NewTextExtractor(files FileStore, processor document.Processor, converter converters.DocumentConverter, workers int, log logger.Logger) *TextExtractor {
	if workers < 1 {
		workers = 1
	}
	return &TextExtractor{
		files:     files,
		processor: processor,
		converter: converter,
		workers:   workers,
		logger:    log.Named("extract_text"),
		now:       time.Now,
	}
}

func (e *TextExtractor) Type() models.TaskType {
	return models.TaskTypeExtractText
}

func (e *TextExtractor) Transform(ctx context.Context, task *models.ProcessingTask) ([]models.OutputFile, error) {
	log := e.logger.With(logger.Int64("taskId", task.ID))

	// resolve metadata before any output is written
	sources := make([]*models.StoredFile, 0, len(task.InputFiles))
	for _, id := range task.InputFiles {
		f, err := e.files.Get(ctx, id)
		if errors.Is(err, models.ErrFileNotFound) {
			log.Debug("Input file not found, skipping", logger.Int64("fileId", id))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up file %d: %w", id, err)
		}
		sources = append(sources, f)
	}

	outputs := make([]*models.OutputFile, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			out, err := isolate(func() (*models.OutputFile, error) {
				return e.extractOne(gctx, src)
			})
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn("Error extracting text, skipping file",
					logger.Int64("fileId", src.ID),
					logger.String("filename", src.StorageName),
					logger.Error(err),
				)
				return nil
			}
			outputs[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		discard(ctx, e.files, outputs, log)
		return nil, err
	}
	return compact(outputs), nil
}

func (e *TextExtractor) extractOne(ctx context.Context, src *models.StoredFile) (*models.OutputFile, error) {
	if !e.processor.CanProcess(src.ContentType) {
		return nil, unsupported(src)
	}

	content, _, err := e.files.ReadAll(ctx, src.ID)
	if err != nil {
		return nil, err
	}

	pages, err := e.processor.ExtractPages(ctx, content)
	if err != nil {
		return nil, err
	}

	text, err := e.converter.Convert(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to render text: %w", err)
	}

	name := baseName(src.DisplayName) + "-text-" + unixMilli(e.now()) + e.converter.Extension()
	saved, err := e.files.Save(ctx, strings.NewReader(text), name, e.converter.ContentType())
	if err != nil {
		return nil, err
	}

	out := outputOf(saved)
	return &out, nil
}
