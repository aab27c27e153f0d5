package agent

import (
	"fmt"

	"github.com/feichai0017/pdf-task-processor/internal/agent/document"
	"github.com/feichai0017/pdf-task-processor/internal/models"
	"github.com/feichai0017/pdf-task-processor/pkg/converters"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
)

type TransformerFactory struct {
	transformers map[models.TaskType]Transformer
	logger       logger.Logger
}

// NewTransformerFactory registers a transformer for every task type.
// workers bounds per-task parallelism (files or pages in flight).
func NewTransformerFactory(files FileStore, processor document.Processor, workers int, log logger.Logger) *TransformerFactory {
	factory := &TransformerFactory{
		transformers: make(map[models.TaskType]Transformer),
		logger:       log,
	}

	factory.Register(NewTextExtractor(files, processor, converters.NewTextConverter(), workers, log))
	factory.Register(NewMerger(files, processor, workers, log))
	factory.Register(NewPageSplitter(files, processor, workers, log))

	return factory
}

// Register adds t, replacing any transformer of the same type.
func (f *TransformerFactory) Register(t Transformer) {
	f.transformers[t.Type()] = t
}

func (f *TransformerFactory) GetTransformer(taskType models.TaskType) (Transformer, error) {
	t, ok := f.transformers[taskType]
	if !ok {
		f.logger.Error("No transformer found",
			logger.String("taskType", string(taskType)),
		)
		return nil, fmt.Errorf("no transformer found for task type: %s", taskType)
	}
	return t, nil
}
