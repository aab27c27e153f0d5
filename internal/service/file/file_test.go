package file

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-task-processor/internal/models"
	"github.com/feichai0017/pdf-task-processor/internal/repository"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
	"github.com/feichai0017/pdf-task-processor/pkg/storage/local"
)

func newTestService(t *testing.T) (*FileService, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := local.NewLocalStorage(dir, logger.NewNop())
	require.NoError(t, err)
	return NewService(repository.NewMemoryFileRepository(), store, logger.NewTestLogger()), dir
}

type failingRepo struct {
	repository.FileRepository
}

func (failingRepo) Create(ctx context.Context, f *models.StoredFile) (*models.StoredFile, error) {
	return nil, errors.New("metadata unavailable")
}

func TestStorageName(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	name := StorageName("Report.PDF", now)
	assert.Regexp(t, regexp.MustCompile(`^1700000000123-[0-9a-f]{6}\.pdf$`), name)
	assert.NotEqual(t, name, StorageName("Report.PDF", now))
}

func TestSaveGetOpenDelete(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	f, err := svc.Save(ctx, strings.NewReader("%PDF-1.4 body"), "a.pdf", models.ContentTypePDF)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.ID)
	assert.Equal(t, "a.pdf", f.DisplayName)
	assert.Equal(t, int64(len("%PDF-1.4 body")), f.SizeBytes)
	assert.Equal(t, f.StorageName, f.Location)

	got, err := svc.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f, got)

	data, _, err := svc.ReadAll(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))

	ok, err := svc.Delete(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = os.Stat(filepath.Join(dir, f.Location))
	assert.True(t, os.IsNotExist(err))

	ok, err = svc.Delete(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Get(ctx, f.ID)
	assert.ErrorIs(t, err, models.ErrFileNotFound)
	_, _, err = svc.Open(ctx, f.ID)
	assert.ErrorIs(t, err, models.ErrFileNotFound)
}

func TestSameDisplayNameNeverCollides(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Save(ctx, strings.NewReader("one"), "same.pdf", models.ContentTypePDF)
	require.NoError(t, err)
	b, err := svc.Save(ctx, strings.NewReader("two"), "same.pdf", models.ContentTypePDF)
	require.NoError(t, err)
	assert.NotEqual(t, a.StorageName, b.StorageName)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
}

func TestDeleteWithMissingBytesStillSucceeds(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	f, err := svc.Save(ctx, strings.NewReader("x"), "a.pdf", models.ContentTypePDF)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, f.Location)))

	ok, err := svc.Delete(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteLeasedFile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.Save(ctx, strings.NewReader("x"), "a.pdf", models.ContentTypePDF)
	require.NoError(t, err)
	require.NoError(t, svc.Acquire(ctx, []int64{f.ID}))

	_, err = svc.Delete(ctx, f.ID)
	assert.ErrorIs(t, err, models.ErrFileInUse)

	require.NoError(t, svc.Release(ctx, []int64{f.ID}))
	ok, err := svc.Delete(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSaveRemovesBytesWhenMetadataFails(t *testing.T) {
	dir := t.TempDir()
	store, err := local.NewLocalStorage(dir, logger.NewNop())
	require.NoError(t, err)
	svc := NewService(failingRepo{repository.NewMemoryFileRepository()}, store, logger.NewNop())

	_, err = svc.Save(context.Background(), strings.NewReader("x"), "a.pdf", models.ContentTypePDF)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCleanupSkipsLeasedAndRecentFiles(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base.Add(-2 * time.Hour) }
	old, err := svc.Save(ctx, strings.NewReader("old"), "old.pdf", models.ContentTypePDF)
	require.NoError(t, err)
	leased, err := svc.Save(ctx, strings.NewReader("leased"), "leased.pdf", models.ContentTypePDF)
	require.NoError(t, err)
	require.NoError(t, svc.Acquire(ctx, []int64{leased.ID}))

	svc.now = func() time.Time { return base }
	recent, err := svc.Save(ctx, strings.NewReader("new"), "new.pdf", models.ContentTypePDF)
	require.NoError(t, err)

	removed, err := svc.Cleanup(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = svc.Get(ctx, old.ID)
	assert.ErrorIs(t, err, models.ErrFileNotFound)
	_, err = svc.Get(ctx, leased.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, recent.ID)
	assert.NoError(t, err)
}

func multipartHeaders(t *testing.T, files map[string]string, order []string) []*multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, name := range order {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		h.Set("Content-Type", models.ContentTypePDF)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = io.WriteString(part, files[name])
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["files"]
}

func TestSaveBatchKeepsOrder(t *testing.T) {
	svc, _ := newTestService(t)
	headers := multipartHeaders(t,
		map[string]string{"a.pdf": "aaa", "b.pdf": "bb", "c.pdf": "c"},
		[]string{"a.pdf", "b.pdf", "c.pdf"},
	)

	saved, err := svc.SaveBatch(context.Background(), headers)
	require.NoError(t, err)
	require.Len(t, saved, 3)
	assert.Equal(t, "a.pdf", saved[0].DisplayName)
	assert.Equal(t, "b.pdf", saved[1].DisplayName)
	assert.Equal(t, "c.pdf", saved[2].DisplayName)
	assert.Equal(t, int64(2), saved[1].SizeBytes)
	assert.Equal(t, models.ContentTypePDF, saved[2].ContentType)
	assert.Equal(t, []int64{1, 2, 3}, []int64{saved[0].ID, saved[1].ID, saved[2].ID})
}

func TestSaveNormalizesContentType(t *testing.T) {
	svc, _ := newTestService(t)

	f, err := svc.Save(context.Background(), strings.NewReader("x"), "a.pdf", "Application/PDF; charset=binary")
	require.NoError(t, err)
	assert.Equal(t, models.ContentTypePDF, f.ContentType)
}
