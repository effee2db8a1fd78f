package quizgen

import (
	"assessment_backend/internal/util"
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Extract 将上传文档转换为纯文本，换行统一为 \n
func Extract(filename string, data []byte) (string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", fmt.Errorf("%w: %s is empty", util.ErrParse, filename)
	}

	var (
		text string
		err  error
	)
	switch {
	case isPDF(data):
		text, err = extractPDF(data)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", util.ErrParse, filename, err)
		}
	case isProbablyText(data):
		text = string(data)
		if !utf8.ValidString(text) {
			text = strings.ToValidUTF8(text, "")
		}
	default:
		return "", fmt.Errorf("%w: %s is not a supported document", util.ErrParse, filename)
	}

	text = NormalizeNewlines(text)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s contains no extractable text", util.ErrParse, filename)
	}
	return text, nil
}

func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isProbablyText(b []byte) bool {
	sample := b[:min(len(b), 4096)]
	good := 0
	for _, c := range sample {
		if c == 0x00 {
			return false
		}
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
			good++
		}
	}
	return float64(good)/float64(len(sample)) > 0.95
}

// extractPDF 按行读取每一页，保留题号与选项的行结构
func extractPDF(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, rowErr := page.GetTextByRow()
		if rowErr != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, rowErr)
		}
		for _, row := range rows {
			for _, word := range row.Content {
				b.WriteString(word.S)
			}
			b.WriteByte('\n')
		}
	}
	if strings.TrimSpace(b.String()) != "" {
		return b.String(), nil
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return string(raw), nil
}
