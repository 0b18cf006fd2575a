package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"docrag/internal/port"
)

// ErrUnsupportedFormat is returned for documents no extractor understands.
var ErrUnsupportedFormat = port.ErrUnsupportedFormat

const (
	MimeText     = "text/plain"
	MimeMarkdown = "text/markdown"
	MimePDF      = "application/pdf"
	MimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Parser turns the bytes of one format into text.
type Parser interface {
	Parse(ctx context.Context, data []byte) (string, error)
}

// Registry picks a parser by file extension, falling back to content sniffing.
type Registry struct {
	byExt  map[string]string
	byMime map[string]Parser
}

var _ port.Extractor = (*Registry)(nil)

// NewRegistry returns a registry for plain text, Markdown, PDF and DOCX.
func NewRegistry() *Registry {
	r := &Registry{
		byExt:  make(map[string]string),
		byMime: make(map[string]Parser),
	}
	text := &TextParser{}
	r.Register(MimeText, text, ".txt", ".text", ".log")
	r.Register(MimeMarkdown, text, ".md", ".markdown")
	r.Register(MimePDF, &PDFParser{}, ".pdf")
	r.Register(MimeDOCX, &DOCXParser{}, ".docx")
	return r
}

// Register maps a MIME type and its extensions to a parser.
func (r *Registry) Register(mime string, p Parser, exts ...string) {
	r.byMime[mime] = p
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = mime
	}
}

func (r *Registry) Detect(name string, data []byte) (string, error) {
	if mime, ok := r.byExt[strings.ToLower(filepath.Ext(name))]; ok {
		return mime, nil
	}

	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is(MimeText) {
			return MimeText, nil
		}
		for mime := range r.byMime {
			if m.Is(mime) {
				return mime, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

func (r *Registry) Extract(ctx context.Context, name string, data []byte) (string, error) {
	mime, err := r.Detect(name, data)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := r.byMime[mime].Parse(ctx, data)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s as %s: %w", name, mime, err)
	}
	return text, nil
}
