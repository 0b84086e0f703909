package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	vectors map[string][]float64
	err     error
}

func (s *stubBackend) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = s.vectors[t]
	}
	return out, nil
}

func (s *stubBackend) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors[text], nil
}

func TestEmptyTextYieldsZeroVectorWithoutBackendCall(t *testing.T) {
	backend := &stubBackend{vectors: map[string][]float64{}}
	e := New(backend, 8, false)

	vec, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
	for _, v := range vec {
		assert.Equal(t, float32(0), v)
	}
}

func TestShortBackendVectorIsPaddedDeterministically(t *testing.T) {
	backend := &stubBackend{vectors: map[string][]float64{"hi": {1, 2, 3}}}
	e := New(backend, 8, false)

	vec, err := e.Embed(context.Background(), "hi")
	require.NoError(t, err)
	require.Len(t, vec, 8)
	assert.Equal(t, []float32{1, 2, 3, 0, 0, 0, 0, 0}, vec)
}

func TestLongBackendVectorRejectedWhenMismatchDisallowed(t *testing.T) {
	backend := &stubBackend{vectors: map[string][]float64{"hi": {1, 2, 3, 4, 5}}}
	e := New(backend, 3, false)

	_, err := e.Embed(context.Background(), "hi")
	require.Error(t, err)
	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
}

func TestLongBackendVectorTruncatedWhenMismatchAllowed(t *testing.T) {
	backend := &stubBackend{vectors: map[string][]float64{"hi": {1, 2, 3, 4, 5}}}
	e := New(backend, 3, true)

	vec, err := e.Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}

// TestCosineBoundsAndSymmetry is testable property from spec section 8:
// similarity is always in [-1, 1] and symmetric.
func TestCosineBoundsAndSymmetry(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	c := []float32{1, 0, 0}

	assert.InDelta(t, 0.0, Similarity(a, b), 1e-9)
	assert.InDelta(t, 1.0, Similarity(a, c), 1e-9)
	assert.Equal(t, Similarity(a, b), Similarity(b, a))

	opposite := []float32{-1, 0, 0}
	assert.InDelta(t, -1.0, Similarity(a, opposite), 1e-9)
}

func TestSimilarityWithZeroVectorIsZero(t *testing.T) {
	zero := []float32{0, 0, 0}
	other := []float32{1, 2, 3}
	assert.Equal(t, 0.0, Similarity(zero, other))
}

func TestEmbedBatchMixesEmptyAndNonEmpty(t *testing.T) {
	backend := &stubBackend{vectors: map[string][]float64{"a": {1, 1}, "b": {2, 2}}}
	e := New(backend, 4, false)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 1, 0, 0}, vecs[0])
	assert.Equal(t, []float32{0, 0, 0, 0}, vecs[1])
	assert.Equal(t, []float32{2, 2, 0, 0}, vecs[2])
}
