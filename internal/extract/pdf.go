package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

func extractPDF(data []byte) (text string, meta Metadata, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", Metadata{}, fmt.Errorf("opening pdf: %w", err)
	}

	meta.PageCount = r.NumPage()
	if title := r.Trailer().Key("Info").Key("Title"); title.Kind() == pdf.String {
		meta.Title = strings.TrimSpace(title.Text())
	}

	var sb strings.Builder
	for i := 1; i <= meta.PageCount; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return "", meta, fmt.Errorf("reading page %d: %w", i, err)
		}
		sb.WriteString(pageText)
		sb.WriteByte('\n')
	}
	return sb.String(), meta, nil
}
