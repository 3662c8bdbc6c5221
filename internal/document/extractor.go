package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"cvlm/internal/ports"
)

var (
	ErrEmptyDocument = errors.New("document is empty")
	ErrNoText        = errors.New("no text could be extracted from document")
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// PDFExtractor 从 PDF 字节中提取纯文本。
type PDFExtractor struct{}

var _ ports.DocumentTextExtractor = PDFExtractor{}

func NewPDFExtractor() PDFExtractor { return PDFExtractor{} }

func (PDFExtractor) Extract(ctx context.Context, content []byte) (text string, err error) {
	if len(content) == 0 {
		return "", ErrEmptyDocument
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// 解析库在损坏的文件上会 panic。
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	cleaned := Normalize(string(raw))
	if cleaned == "" {
		return "", ErrNoText
	}
	return cleaned, nil
}

// Normalize 统一换行并压缩多余空行。
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
