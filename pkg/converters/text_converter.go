package converters

import (
	"strconv"
	"strings"

	"github.com/feichai0017/pdf-task-processor/internal/models"
)

// DocumentConverter 定义文档转换器接口
type DocumentConverter interface {
	Convert(pages []models.DocumentPage) (string, error)
	ContentType() string
	Extension() string
}

// TextConverter renders pages as plain text:
//
//	--- Page N ---
//	<tokens joined by single spaces>
//	<blank line>
type TextConverter struct{}

func NewTextConverter() *TextConverter {
	return &TextConverter{}
}

func (c *TextConverter) Convert(pages []models.DocumentPage) (string, error) {
	var b strings.Builder
	for i, page := range pages {
		n := page.Number
		if n == 0 {
			n = i + 1
		}
		b.WriteString("--- Page ")
		b.WriteString(strconv.Itoa(n))
		b.WriteString(" ---\n")
		b.WriteString(strings.Join(page.Tokens, " "))
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func (c *TextConverter) ContentType() string {
	return models.ContentTypeText
}

func (c *TextConverter) Extension() string {
	return ".txt"
}
