package task

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-task-processor/internal/agent"
	"github.com/feichai0017/pdf-task-processor/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-task-processor/internal/models"
	"github.com/feichai0017/pdf-task-processor/internal/repository"
	"github.com/feichai0017/pdf-task-processor/internal/service/file"
	"github.com/feichai0017/pdf-task-processor/internal/testutil/pdftest"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
	"github.com/feichai0017/pdf-task-processor/pkg/queue"
	"github.com/feichai0017/pdf-task-processor/pkg/storage/local"
)

type fixture struct {
	files *file.FileService
	queue *queue.LocalQueue
	svc   *TaskService
}

func newFixture(t *testing.T, provider TransformerProvider) *fixture {
	t.Helper()
	store, err := local.NewLocalStorage(t.TempDir(), logger.NewNop())
	require.NoError(t, err)
	files := file.NewService(repository.NewMemoryFileRepository(), store, logger.NewNop())
	if provider == nil {
		provider = agent.NewTransformerFactory(files, pdf.NewProcessor(logger.NewNop()), 2, logger.NewNop())
	}
	q := queue.NewLocalQueue(8)
	return &fixture{
		files: files,
		queue: q,
		svc:   NewService(repository.NewMemoryTaskRepository(), files, provider, q, logger.NewTestLogger()),
	}
}

func (f *fixture) upload(t *testing.T, name string, content []byte) int64 {
	t.Helper()
	saved, err := f.files.Save(context.Background(), bytes.NewReader(content), name, models.ContentTypePDF)
	require.NoError(t, err)
	return saved.ID
}

func (f *fixture) runNext(t *testing.T) {
	t.Helper()
	qt, err := f.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleTask(context.Background(), qt))
}

type stubTransformer struct {
	taskType models.TaskType
	fn       func(ctx context.Context, task *models.ProcessingTask) ([]models.OutputFile, error)
}

func (s stubTransformer) Type() models.TaskType { return s.taskType }

func (s stubTransformer) Transform(ctx context.Context, task *models.ProcessingTask) ([]models.OutputFile, error) {
	return s.fn(ctx, task)
}

type stubProvider struct {
	t agent.Transformer
}

func (p stubProvider) GetTransformer(models.TaskType) (agent.Transformer, error) {
	return p.t, nil
}

func TestCreateValidates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "ocr", []int64{1}, models.TaskParams{})
	assert.Error(t, err)
	_, err = f.svc.Create(ctx, models.TaskTypeExtractText, nil, models.TaskParams{})
	assert.Error(t, err)

	task, err := f.svc.Create(ctx, models.TaskTypeExtractText, []int64{1}, models.TaskParams{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Empty(t, task.OutputFiles)
	assert.Nil(t, task.Error)
	assert.Equal(t, task.CreatedAt, task.UpdatedAt)

	_, err = f.svc.Get(ctx, task.ID+1)
	assert.ErrorIs(t, err, models.ErrTaskNotFound)
}

func TestSubmitAndHandleExtractText(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.upload(t, "a.pdf", pdftest.New("Hello", "World"))

	task, err := f.svc.Submit(ctx, models.TaskTypeExtractText, []int64{a}, models.TaskParams{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, task.Status)

	// the input is pinned until the task finishes
	_, err = f.files.Delete(ctx, a)
	assert.ErrorIs(t, err, models.ErrFileInUse)

	f.runNext(t)

	done, err := f.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	require.Len(t, done.OutputFiles, 1)
	assert.Nil(t, done.Error)

	text, _, err := f.files.ReadAll(ctx, done.OutputFiles[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "--- Page 1 ---\nHello\n\n--- Page 2 ---\nWorld\n\n", string(text))

	again, err := f.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, done, again)

	ok, err := f.files.Delete(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHandleMergeScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.upload(t, "a.pdf", pdftest.New("a1", "a2"))
	b := f.upload(t, "b.pdf", pdftest.New("b1", "b2", "b3"))

	task, err := f.svc.Submit(ctx, models.TaskTypeMerge, []int64{a, b}, models.TaskParams{OutputFilename: "combo"})
	require.NoError(t, err)
	f.runNext(t)

	done, err := f.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, done.Status)
	require.Len(t, done.OutputFiles, 1)
	assert.Equal(t, "combo.pdf", done.OutputFiles[0].Filename)

	merged, _, err := f.files.ReadAll(ctx, done.OutputFiles[0].ID)
	require.NoError(t, err)
	n, err := pdf.NewProcessor(logger.NewNop()).PageCount(ctx, merged)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestExtractUnknownFileCompletesEmpty(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	task, err := f.svc.Submit(ctx, models.TaskTypeExtractText, []int64{999}, models.TaskParams{})
	require.NoError(t, err)
	f.runNext(t)

	done, err := f.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.NotNil(t, done.OutputFiles)
	assert.Empty(t, done.OutputFiles)
}

func TestConvertMissingSourceFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	task, err := f.svc.Submit(ctx, models.TaskTypeConvertToImage, []int64{999}, models.TaskParams{Format: "png"})
	require.NoError(t, err)
	f.runNext(t)

	done, err := f.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, done.Status)
	require.NotNil(t, done.Error)
	assert.Equal(t, "File not found", *done.Error)
	assert.Empty(t, done.OutputFiles)
}

func TestTransformerErrorIsRecordedVerbatim(t *testing.T) {
	f := newFixture(t, stubProvider{stubTransformer{
		taskType: models.TaskTypeMerge,
		fn: func(ctx context.Context, task *models.ProcessingTask) ([]models.OutputFile, error) {
			return nil, errors.New("disk on fire")
		},
	}})
	ctx := context.Background()
	a := f.upload(t, "a.pdf", pdftest.New("x"))

	task, err := f.svc.Submit(ctx, models.TaskTypeMerge, []int64{a, a}, models.TaskParams{})
	require.NoError(t, err)
	f.runNext(t)

	done, err := f.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, done.Status)
	assert.Equal(t, "disk on fire", *done.Error)

	// both leases on the duplicated input were released
	ok, err := f.files.Delete(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPanicFailsTask(t *testing.T) {
	f := newFixture(t, stubProvider{stubTransformer{
		taskType: models.TaskTypeExtractText,
		fn: func(ctx context.Context, task *models.ProcessingTask) ([]models.OutputFile, error) {
			panic("boom")
		},
	}})
	ctx := context.Background()

	task, err := f.svc.Submit(ctx, models.TaskTypeExtractText, []int64{1}, models.TaskParams{})
	require.NoError(t, err)
	f.runNext(t)

	done, err := f.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, done.Status)
	assert.Contains(t, *done.Error, "boom")
}

func TestProcessingIsVisibleWhileRunning(t *testing.T) {
	seen := make(chan models.TaskStatus, 1)
	var f *fixture
	f = newFixture(t, stubProvider{stubTransformer{
		taskType: models.TaskTypeExtractText,
		fn: func(ctx context.Context, task *models.ProcessingTask) ([]models.OutputFile, error) {
			current, err := f.svc.Get(ctx, task.ID)
			if err != nil {
				return nil, err
			}
			seen <- current.Status
			return nil, nil
		},
	}})
	ctx := context.Background()

	task, err := f.svc.Submit(ctx, models.TaskTypeExtractText, []int64{1}, models.TaskParams{})
	require.NoError(t, err)
	f.runNext(t)

	assert.Equal(t, models.StatusProcessing, <-seen)
	done, err := f.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, []models.OutputFile{}, done.OutputFiles)
}

func TestHandleTaskTwiceIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.upload(t, "a.pdf", pdftest.New("x"))

	task, err := f.svc.Submit(ctx, models.TaskTypeExtractText, []int64{a}, models.TaskParams{})
	require.NoError(t, err)
	qt, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleTask(ctx, qt))
	first, err := f.svc.Get(ctx, task.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleTask(ctx, qt))
	second, err := f.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHandleUnknownTask(t *testing.T) {
	f := newFixture(t, nil)
	err := f.svc.HandleTask(context.Background(), &queue.Task{TaskID: 404})
	assert.ErrorIs(t, err, models.ErrTaskNotFound)
}

func TestDispatchFailureMarksTaskFailed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.upload(t, "a.pdf", pdftest.New("x"))
	require.NoError(t, f.queue.Close())

	task, err := f.svc.Submit(ctx, models.TaskTypeExtractText, []int64{a}, models.TaskParams{})
	require.ErrorIs(t, err, queue.ErrQueueClosed)
	require.NotNil(t, task)
	assert.Equal(t, models.StatusFailed, task.Status)
	require.NotNil(t, task.Error)

	stored, err := f.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)

	ok, err := f.files.Delete(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)
}
