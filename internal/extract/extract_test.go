package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_Text(t *testing.T) {
	res := New().Extract(context.Background(), "notes.TXT", []byte("  hello world \n"))

	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, "hello world", res.Text)
	assert.Equal(t, "txt", res.Metadata.Format)
}

func TestExtract_MarkdownTitle(t *testing.T) {
	md := "Some preface\n\n# Weekly plan \n\n## Monday\n- call John\n"
	res := New().Extract(context.Background(), "plan.md", []byte(md))

	require.False(t, res.Failed())
	assert.Equal(t, "Weekly plan", res.Metadata.Title)
	assert.Contains(t, res.Text, "- call John")
}

func TestExtract_HTML(t *testing.T) {
	page := `<!doctype html>
<html lang="en">
<head><title> Trip notes </title><style>p{color:red}</style></head>
<body>
  <h1>Beach</h1>
  <p>Pack   the <b>sunscreen</b>.</p>
  <script>alert("x")</script>
  <ul><li>towels</li><li>hat</li></ul>
</body>
</html>`
	res := New().Extract(context.Background(), "trip.html", []byte(page))

	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, "Trip notes", res.Metadata.Title)
	assert.Equal(t, "en", res.Metadata.Language)
	assert.Equal(t, "html", res.Metadata.Format)
	assert.Equal(t, "Beach\nPack the sunscreen.\ntowels\nhat", res.Text)
	assert.NotContains(t, res.Text, "alert")
	assert.NotContains(t, res.Text, "color")
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	res := New().Extract(context.Background(), "slides.pptx", []byte("x"))

	assert.True(t, res.Failed())
	assert.Contains(t, res.Error, ErrUnsupportedFormat.Error())
	assert.Empty(t, res.Text)
	assert.Equal(t, "pptx", res.Metadata.Format)
}

func TestExtract_BrokenPDF(t *testing.T) {
	res := New().Extract(context.Background(), "paper.pdf", []byte("not a pdf"))

	assert.True(t, res.Failed())
	assert.Empty(t, res.Text)
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New().Extract(ctx, "notes.txt", []byte("hello"))
	assert.True(t, res.Failed())
}

func TestSupported(t *testing.T) {
	assert.ElementsMatch(t, []string{".txt", ".md", ".markdown", ".html", ".htm", ".pdf"}, New().Supported())
}
