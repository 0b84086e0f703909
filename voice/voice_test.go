package voice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostline-hq/ghostline/domain"
)

type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := s.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func TestExtractFeaturesOnEmptyTextIsZeroValue(t *testing.T) {
	f := ExtractFeatures("   ")
	assert.Equal(t, domain.Stylometry{}, f)
}

func TestExtractFeaturesBasicCounts(t *testing.T) {
	text := "The dragon flew high. Did it see the village? It roared loudly!"
	f := ExtractFeatures(text)

	assert.Greater(t, f.AvgSentenceLength, 0.0)
	assert.Greater(t, f.AvgWordLength, 0.0)
	assert.InDelta(t, 1.0/3.0, f.QuestionRatio, 1e-9)
	assert.InDelta(t, 1.0/3.0, f.ExclamationRatio, 1e-9)
}

func TestStylometrySimilarityIsOneForIdenticalFeatures(t *testing.T) {
	f := ExtractFeatures("The dragon flew over the silent valley at dusk, searching for its kin.")
	sim, diffs := StylometrySimilarity(f, f)
	assert.InDelta(t, 1.0, sim, 1e-9)
	for _, d := range diffs {
		assert.InDelta(t, 0.0, d, 1e-9)
	}
}

func TestStylometrySimilarityNeverNegative(t *testing.T) {
	f1 := ExtractFeatures("Short. Choppy. Bursts.")
	f2 := ExtractFeatures("This is an extraordinarily long and winding sentence that goes on and on, digressing through many clauses, subclauses, and parenthetical asides before finally, after much delay, arriving at its point; and then, as if unsatisfied, it continues still further.")
	sim, _ := StylometrySimilarity(f1, f2)
	assert.GreaterOrEqual(t, sim, 0.0)
}

func TestComputeSimilarityBlendsEmbeddingAndStylometry(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"a": {1, 0},
		"b": {1, 0},
	}}
	m := New(emb)

	res, err := m.ComputeSimilarity(context.Background(), "a", "b", 0.5, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.EmbeddingSimilarity, 1e-9)
	assert.True(t, res.PassesThreshold)
}

func TestComputeSimilarityDefaultsEmbeddingWeightWhenUnset(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{"a": {1, 0}, "b": {1, 0}}}
	m := New(emb)

	res, err := m.ComputeSimilarity(context.Background(), "a", "b", 0, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, res.EmbeddingWeight, 1e-9)
}
