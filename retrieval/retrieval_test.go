package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostline-hq/ghostline/domain"
	"github.com/ghostline-hq/ghostline/logging"
)

type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := s.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func seedStore() (*InMemoryStore, *stubEmbedder) {
	store := NewInMemoryStore()
	store.Add(
		domain.SourceChunk{ID: "1", ProjectID: "p1", Filename: "notes.txt", Content: "dragons breathe fire across the valley", Embedding: []float32{1, 0, 0}},
		domain.SourceChunk{ID: "2", ProjectID: "p1", Filename: "notes.txt", Content: "the valley council debates taxation policy", Embedding: []float32{0.9, 0.1, 0}},
		domain.SourceChunk{ID: "3", ProjectID: "p1", Filename: "letters.txt", Content: "dragons are feared across every kingdom", Embedding: []float32{0.8, 0.2, 0}},
		domain.SourceChunk{ID: "4", ProjectID: "p1", Filename: "letters.txt", Content: "taxation and trade routes shape the kingdom", Embedding: []float32{0.2, 0.8, 0}},
	)
	emb := &stubEmbedder{vectors: map[string][]float32{"dragons valley": {1, 0, 0}}}
	return store, emb
}

func TestRetrieveAppliesSimilarityThreshold(t *testing.T) {
	store, emb := seedStore()
	r := New(store, emb, false, logging.NoOp{})

	res, err := r.Retrieve(context.Background(), "dragons valley", "p1", 10, 0.99, 10)
	require.NoError(t, err)
	for _, c := range res.Chunks {
		assert.GreaterOrEqual(t, c.Similarity, 0.99)
	}
}

func TestRetrieveRerankLimitsToTopK(t *testing.T) {
	store, emb := seedStore()
	r := New(store, emb, true, logging.NoOp{})

	res, err := r.Retrieve(context.Background(), "dragons valley", "p1", 2, 0.0, 10)
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 2)
}

func TestCoverageRerankAppliesDominancePenaltyAcrossSameFilename(t *testing.T) {
	candidates := []RetrievedChunk{
		{Chunk: domain.SourceChunk{Filename: "a.txt", Content: "dragons valley fire"}, Similarity: 0.9},
		{Chunk: domain.SourceChunk{Filename: "a.txt", Content: "dragons valley smoke"}, Similarity: 0.9},
		{Chunk: domain.SourceChunk{Filename: "b.txt", Content: "dragons valley legend"}, Similarity: 0.9},
	}
	picked := coverageRerank("dragons valley", candidates, 3)
	require.Len(t, picked, 3)
	// repeat_penalty should prevent a.txt from dominating both of the top
	// two slots when b.txt scores equivalently on similarity/overlap.
	filenames := map[string]int{}
	for _, p := range picked[:2] {
		filenames[p.Chunk.Filename]++
	}
	assert.LessOrEqual(t, filenames["a.txt"], 1)
}

func TestKeywordFallbackOnEmbeddingFailure(t *testing.T) {
	store, _ := seedStore()
	failing := &failingEmbedder{}
	r := New(store, failing, true, logging.NoOp{})

	res, err := r.Retrieve(context.Background(), "dragons", "p1", 2, 0.0, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Chunks)
	for _, c := range res.Chunks {
		assert.NotEmpty(t, c.Citation.Filename)
	}
}

type failingEmbedder struct{}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, assertErr{}
}
func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, assertErr{}
}

type assertErr struct{}

func (assertErr) Error() string { return "embedding backend unavailable" }

func TestBuildContextStopsWithinTokenBudget(t *testing.T) {
	res := RAGResult{Chunks: []RetrievedChunk{
		{Chunk: domain.SourceChunk{Filename: "a.txt", Content: "short chunk one"}},
		{Chunk: domain.SourceChunk{Filename: "b.txt", Content: "short chunk two"}},
	}}

	ctx := res.BuildContext(5, true)
	assert.Contains(t, ctx, "a.txt")
	assert.NotContains(t, ctx, "b.txt")
}

func TestBuildContextAlwaysIncludesFirstChunkEvenIfOverBudget(t *testing.T) {
	res := RAGResult{Chunks: []RetrievedChunk{
		{Chunk: domain.SourceChunk{Filename: "a.txt", Content: "this single chunk is already longer than the tiny budget allows"}},
	}}

	ctx := res.BuildContext(1, false)
	assert.Contains(t, ctx, "a.txt")
}
