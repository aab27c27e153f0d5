package local

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-task-processor/pkg/logger"
)

func newTestStorage(t *testing.T) (*LocalStorage, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewLocalStorage(dir, logger.NewTestLogger())
	require.NoError(t, err)
	return s, dir
}

func TestStoreGetDelete(t *testing.T) {
	s, dir := newTestStorage(t)
	ctx := context.Background()

	loc, err := s.Store(ctx, strings.NewReader("hello"), "1700000000000-abcdef.pdf")
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-abcdef.pdf", loc)

	rc, err := s.Get(ctx, loc)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.Delete(ctx, loc))
	_, err = os.Stat(filepath.Join(dir, loc))
	assert.True(t, os.IsNotExist(err))

	err = s.Delete(ctx, loc)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = s.Get(ctx, loc)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestStoreLeavesNoTempFiles(t *testing.T) {
	s, dir := newTestStorage(t)

	_, err := s.Store(context.Background(), strings.NewReader("x"), "a.pdf")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.pdf", entries[0].Name())
}

func TestRejectsEscapingKeys(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	for _, key := range []string{"", "../x.pdf", "sub/x.pdf", ".hidden"} {
		_, err := s.Store(ctx, strings.NewReader("x"), key)
		assert.Error(t, err, key)
	}
}
