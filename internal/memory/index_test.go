package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/mirror/internal/storage"
)

// keywordEmbedder maps text onto a fixed vocabulary so similarity is predictable.
type keywordEmbedder struct {
	vocab []string
	err   error
}

func (e keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	lower := strings.ToLower(text)
	vec := make([]float32, len(e.vocab))
	for i, w := range e.vocab {
		vec[i] = float32(strings.Count(lower, w))
	}
	return vec, nil
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewIndex(s.DB(), keywordEmbedder{vocab: []string{"beach", "work", "family", "budget"}}, "")
}

func TestIndex_AddSearchDelete(t *testing.T) {
	ctx := context.Background()
	x := newTestIndex(t)

	beach, err := x.Add(ctx, "beach trip with family", map[string]any{"thought_id": "t1"})
	require.NoError(t, err)
	_, err = x.Add(ctx, "work budget review", nil)
	require.NoError(t, err)
	_, err = x.Add(ctx, "family dinner", nil)
	require.NoError(t, err)

	hits, err := x.Search(ctx, "beach", "", 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, beach, hits[0].ID)
	assert.Equal(t, "t1", hits[0].Metadata["thought_id"])
	assert.LessOrEqual(t, len(hits), 2)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}

	ok, err := x.Delete(ctx, beach)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = x.Delete(ctx, beach)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := x.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIndex_SearchScopedByUser(t *testing.T) {
	ctx := context.Background()
	x := newTestIndex(t)
	_, err := x.Add(ctx, "beach", nil)
	require.NoError(t, err)

	hits, err := x.Search(ctx, "beach", "someone_else", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = x.Search(ctx, "beach", DefaultUserID, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestIndex_PutReplaces(t *testing.T) {
	ctx := context.Background()
	x := newTestIndex(t)

	require.NoError(t, x.Put(ctx, "t1", "beach", nil))
	require.NoError(t, x.Put(ctx, "t1", "work", nil))

	hits, err := x.Search(ctx, "work", "", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "work", hits[0].Content)
}

func TestIndex_ZeroQueryVector(t *testing.T) {
	ctx := context.Background()
	x := newTestIndex(t)
	_, err := x.Add(ctx, "beach", nil)
	require.NoError(t, err)

	hits, err := x.Search(ctx, "nothing in vocabulary", "", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_EmbedError(t *testing.T) {
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	x := NewIndex(s.DB(), keywordEmbedder{err: errors.New("offline")}, "u")
	_, err = x.Add(context.Background(), "beach", nil)
	assert.ErrorContains(t, err, "offline")
	_, err = x.Search(context.Background(), "beach", "", 5)
	assert.ErrorContains(t, err, "offline")
}

func TestCosine(t *testing.T) {
	a := []float32{1, 0}
	assert.InDelta(t, 1.0, cosine(a, []float32{2, 0}, norm(a)), 1e-6)
	assert.InDelta(t, 0.0, cosine(a, []float32{0, 3}, norm(a)), 1e-6)
	assert.Equal(t, float32(0), cosine(a, []float32{1}, norm(a)))
	assert.Equal(t, float32(0), cosine(a, []float32{0, 0}, norm(a)))

	buf, err := decodeFloat32sInto(nil, encodeFloat32s([]float32{1.5, -2}))
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2}, buf)
	_, err = decodeFloat32sInto(nil, []byte{1, 2, 3})
	assert.Error(t, err)
}
