// Package parser provides document text extraction adapters.
package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// TextParser handles plain text content types as-is.
type TextParser struct{}

// NewTextParser creates a plain text parser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse returns the document bytes as UTF-8 text.
func (p *TextParser) Parse(ctx context.Context, data []byte, contentType string) (string, error) {
	return string(data), nil
}

// SupportedTypes returns content types this parser handles.
func (p *TextParser) SupportedTypes() []string {
	return []string{"text/plain", "text/markdown"}
}

// PDFParser extracts text from PDF documents.
type PDFParser struct{}

// NewPDFParser creates a PDF parser.
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Parse extracts the plain text layer of a PDF.
func (p *PDFParser) Parse(ctx context.Context, data []byte, contentType string) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue // Skip pages we cannot decode
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return cleanText(sb.String()), nil
}

// SupportedTypes returns content types this parser handles.
func (p *PDFParser) SupportedTypes() []string {
	return []string{"application/pdf"}
}

// MultiParser dispatches to a parser by content type.
type MultiParser struct {
	parsers map[string]singleParser
}

type singleParser interface {
	Parse(ctx context.Context, data []byte, contentType string) (string, error)
	SupportedTypes() []string
}

// NewMultiParser creates a parser that handles all supported formats.
func NewMultiParser() *MultiParser {
	m := &MultiParser{parsers: make(map[string]singleParser)}
	for _, p := range []singleParser{NewTextParser(), NewPDFParser()} {
		for _, ct := range p.SupportedTypes() {
			m.parsers[ct] = p
		}
	}
	return m
}

// Parse extracts text using the parser registered for contentType.
// Parameters after a ";" (charset etc.) are ignored.
func (m *MultiParser) Parse(ctx context.Context, data []byte, contentType string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}

	p, ok := m.parsers[ct]
	if !ok {
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}
	return p.Parse(ctx, data, ct)
}

// SupportedTypes returns all registered content types.
func (m *MultiParser) SupportedTypes() []string {
	types := make([]string, 0, len(m.parsers))
	for ct := range m.parsers {
		types = append(types, ct)
	}
	return types
}

// cleanText strips non-printable runes that PDF extraction sometimes
// leaves behind.
func cleanText(content string) string {
	var cleaned strings.Builder
	for _, r := range content {
		if r >= 32 || r == '\n' || r == '\t' {
			cleaned.WriteRune(r)
		}
	}
	return strings.TrimSpace(cleaned.String())
}
