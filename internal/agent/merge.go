package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/pdf-task-processor/internal/agent/document"
	"github.com/feichai0017/pdf-task-processor/internal/models"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
)

// DefaultMergeFilename names a merge result when the client gave no name.
const DefaultMergeFilename = "merged.pdf"

// Merger concatenates the input documents into one PDF.
type Merger struct {
	files     FileStore
	processor document.Processor
	workers   int
	logger    logger.Logger
}

func NewMerger(files FileStore, processor document.Processor, workers int, log logger.Logger) *Merger {
	if workers < 1 {
		workers = 1
	}
	return &Merger{
		files:     files,
		processor: processor,
		workers:   workers,
		logger:    log.Named("merge"),
	}
}

func (m *Merger) Type() models.TaskType {
	return models.TaskTypeMerge
}

// MergeFilename applies the default and the .pdf suffix rule.
func MergeFilename(requested string) string {
	name := strings.TrimSpace(requested)
	if name == "" {
		return DefaultMergeFilename
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

func (m *Merger) Transform(ctx context.Context, task *models.ProcessingTask) ([]models.OutputFile, error) {
	log := m.logger.With(logger.Int64("taskId", task.ID))

	sources := make([]*models.StoredFile, 0, len(task.InputFiles))
	for _, id := range task.InputFiles {
		f, err := m.files.Get(ctx, id)
		if errors.Is(err, models.ErrFileNotFound) {
			log.Warn("Input file not found, skipping", logger.Int64("fileId", id))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up file %d: %w", id, err)
		}
		sources = append(sources, f)
	}

	docs := make([][]byte, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			content, err := isolate(func() ([]byte, error) {
				return m.load(gctx, src)
			})
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn("Error merging file, skipping",
					logger.Int64("fileId", src.ID),
					logger.String("filename", src.StorageName),
					logger.Error(err),
				)
				return nil
			}
			docs[i] = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	valid := make([][]byte, 0, len(docs))
	names := make([]string, 0, len(docs))
	for i, doc := range docs {
		if doc != nil {
			valid = append(valid, doc)
			names = append(names, sources[i].StorageName)
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoValidDocuments
	}

	merged, err := m.processor.Merge(ctx, valid)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warn("Merge failed, retrying without unmergeable inputs", logger.Error(err))
		merged, valid, err = m.mergeEach(ctx, valid, names, log)
		if err != nil {
			return nil, err
		}
	}

	saved, err := m.files.Save(ctx, bytes.NewReader(merged), MergeFilename(task.Params.OutputFilename), models.ContentTypePDF)
	if err != nil {
		return nil, fmt.Errorf("failed to save merged document: %w", err)
	}

	log.Info("Documents merged",
		logger.Int("inputs", len(valid)),
		logger.Int64("outputId", saved.ID),
	)
	return []models.OutputFile{outputOf(saved)}, nil
}

func (m *Merger) load(ctx context.Context, src *models.StoredFile) ([]byte, error) {
	if !m.processor.CanProcess(src.ContentType) {
		return nil, unsupported(src)
	}
	content, _, err := m.files.ReadAll(ctx, src.ID)
	if err != nil {
		return nil, err
	}
	if _, err := m.processor.PageCount(ctx, content); err != nil {
		return nil, err
	}
	return content, nil
}

// mergeEach drops every document that fails to merge on its own, then
// merges the rest. It returns the documents that made it in.
func (m *Merger) mergeEach(ctx context.Context, docs [][]byte, names []string, log logger.Logger) ([]byte, [][]byte, error) {
	kept := make([][]byte, 0, len(docs))
	for i, doc := range docs {
		_, err := isolate(func() ([]byte, error) {
			return m.processor.Merge(ctx, [][]byte{doc})
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			log.Warn("Error merging file, skipping",
				logger.String("filename", names[i]),
				logger.Error(err),
			)
			continue
		}
		kept = append(kept, doc)
	}
	if len(kept) == 0 {
		return nil, nil, ErrNoValidDocuments
	}

	merged, err := m.processor.Merge(ctx, kept)
	if err != nil {
		return nil, nil, err
	}
	return merged, kept, nil
}
