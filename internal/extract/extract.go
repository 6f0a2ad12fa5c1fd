// Package extract turns uploaded documents into plain text plus metadata.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions with no extractor.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Metadata describes an extracted document. Zero fields were not found.
type Metadata struct {
	Title     string `json:"title,omitempty"`
	Language  string `json:"language,omitempty"`
	PageCount int    `json:"page_count,omitempty"`
	Format    string `json:"format"`
}

// Result is the outcome of one extraction. Error is set instead of Text when
// the document could not be read.
type Result struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Error    string   `json:"error,omitempty"`
}

// Failed reports whether the extraction produced an error marker.
func (r Result) Failed() bool { return r.Error != "" }

// Transcriber converts recorded audio into text. No implementation ships
// with mirror; callers plug one in.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

type formatFunc func(data []byte) (string, Metadata, error)

// Extractor dispatches on the file extension.
type Extractor struct {
	formats map[string]formatFunc
}

// New returns an Extractor for .txt, .md, .markdown, .html, .htm and .pdf.
func New() *Extractor {
	return &Extractor{formats: map[string]formatFunc{
		".txt":      extractText,
		".md":       extractMarkdown,
		".markdown": extractMarkdown,
		".html":     extractHTML,
		".htm":      extractHTML,
		".pdf":      extractPDF,
	}}
}

// Supported lists the handled extensions.
func (x *Extractor) Supported() []string {
	out := make([]string, 0, len(x.formats))
	for ext := range x.formats {
		out = append(out, ext)
	}
	return out
}

// Extract reads data as the format implied by filename. Failures are
// reported in Result.Error.
func (x *Extractor) Extract(ctx context.Context, filename string, data []byte) Result {
	ext := strings.ToLower(filepath.Ext(filename))
	format := strings.TrimPrefix(ext, ".")

	if err := ctx.Err(); err != nil {
		return Result{Metadata: Metadata{Format: format}, Error: err.Error()}
	}
	fn, ok := x.formats[ext]
	if !ok {
		return Result{Metadata: Metadata{Format: format}, Error: fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext).Error()}
	}

	text, meta, err := fn(data)
	meta.Format = format
	if err != nil {
		return Result{Metadata: meta, Error: err.Error()}
	}
	return Result{Text: strings.TrimSpace(text), Metadata: meta}
}

func extractText(data []byte) (string, Metadata, error) {
	return string(bytes.ToValidUTF8(data, []byte("�"))), Metadata{}, nil
}

func extractMarkdown(data []byte) (string, Metadata, error) {
	text, meta, _ := extractText(data)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if title, ok := strings.CutPrefix(line, "# "); ok {
			meta.Title = strings.TrimSpace(title)
			break
		}
	}
	return text, meta, nil
}
