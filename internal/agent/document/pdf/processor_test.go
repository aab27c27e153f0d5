package pdf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-task-processor/internal/agent/document"
	"github.com/feichai0017/pdf-task-processor/internal/testutil/pdftest"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
)

var _ document.Processor = (*Processor)(nil)

func TestExtractPages(t *testing.T) {
	p := NewProcessor(logger.NewNop())

	pages, err := p.ExtractPages(context.Background(), pdftest.New("Hello World", "Second page"))
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, []string{"Hello World"}, pages[0].Tokens)
	assert.Equal(t, 2, pages[1].Number)
	assert.Equal(t, []string{"Second page"}, pages[1].Tokens)
}

func TestExtractPagesRejectsGarbage(t *testing.T) {
	p := NewProcessor(logger.NewNop())
	_, err := p.ExtractPages(context.Background(), []byte("not a pdf"))
	assert.Error(t, err)
}

func TestExtractPagesRejectsBrokenPageCount(t *testing.T) {
	p := NewProcessor(logger.NewNop())

	for _, count := range []int{-1, MaxPages + 1} {
		_, err := p.ExtractPages(context.Background(), pdftest.NewWithCount(count, "only page"))
		assert.Error(t, err, "count %d", count)
	}
}

func TestRecoverPanicReturnsError(t *testing.T) {
	log := logger.NewTestLogger()
	p := NewProcessor(log)

	run := func() (err error) {
		defer p.recoverPanic("extract text", &err)
		panic("lexer blew up")
	}
	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lexer blew up")
	assert.Contains(t, log.Messages("WARN"), "Recovered from malformed document")
}

func TestPageCount(t *testing.T) {
	p := NewProcessor(logger.NewNop())

	n, err := p.PageCount(context.Background(), pdftest.New("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = p.PageCount(context.Background(), []byte("%PDF-1.4 truncated"))
	assert.Error(t, err)
}

func TestMergeKeepsOrder(t *testing.T) {
	p := NewProcessor(logger.NewNop())
	ctx := context.Background()

	merged, err := p.Merge(ctx, [][]byte{
		pdftest.New("A1", "A2"),
		pdftest.New("B1", "B2", "B3"),
	})
	require.NoError(t, err)

	n, err := p.PageCount(ctx, merged)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	pages, err := p.ExtractPages(ctx, merged)
	require.NoError(t, err)
	require.Len(t, pages, 5)
	assert.Equal(t, []string{"A1"}, pages[0].Tokens)
	assert.Equal(t, []string{"B1"}, pages[2].Tokens)
	assert.Equal(t, []string{"B3"}, pages[4].Tokens)
}

func TestMergeNothing(t *testing.T) {
	p := NewProcessor(logger.NewNop())
	_, err := p.Merge(context.Background(), nil)
	assert.ErrorIs(t, err, document.ErrNoDocuments)
}

func TestExtractPage(t *testing.T) {
	p := NewProcessor(logger.NewNop())
	ctx := context.Background()
	src := pdftest.New("one", "two", "three")

	single, err := p.ExtractPage(ctx, src, 2)
	require.NoError(t, err)

	n, err := p.PageCount(ctx, single)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pages, err := p.ExtractPages(ctx, single)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, []string{"two"}, pages[0].Tokens)

	_, err = p.ExtractPage(ctx, src, 0)
	assert.Error(t, err)
}
