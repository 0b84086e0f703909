// Package embedder implements the Embedder capability (C3): embed(text),
// embed_batch(texts), similarity(a, b). Grounded on the teacher's
// rag/adapters.go LangChainEmbedder wrapping of
// github.com/tmc/langchaingo/embeddings.Embedder, with deterministic
// dimension coercion layered on top.
package embedder

import (
	"context"
	"math"

	"github.com/tmc/langchaingo/embeddings"
)

// Embedder is the Embedder capability.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LangchainEmbedder adapts a langchaingo embeddings.Embedder, coercing every
// result to a fixed target dimension per spec section 4.3.
type LangchainEmbedder struct {
	backend               embeddings.Embedder
	dimension             int
	allowDimensionMismatch bool
}

// New wraps backend, coercing outputs to dimension. When
// allowDimensionMismatch is false and the backend produces a larger vector
// than dimension, Embed/EmbedBatch return ErrDimensionMismatch rather than
// silently truncating.
func New(backend embeddings.Embedder, dimension int, allowDimensionMismatch bool) *LangchainEmbedder {
	return &LangchainEmbedder{backend: backend, dimension: dimension, allowDimensionMismatch: allowDimensionMismatch}
}

// ErrDimensionMismatch is returned when a backend embedding is larger than
// the configured target dimension and mismatches are not allowed.
type ErrDimensionMismatch struct {
	Got, Want int
}

func (e ErrDimensionMismatch) Error() string {
	return "embedder: backend produced a larger vector than the configured dimension"
}

// Embed returns a zero vector for empty text (no API call), per spec
// section 4.3, otherwise calls the backend and coerces to Dimension.
func (e *LangchainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return make([]float32, e.dimension), nil
	}
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds every text, substituting a zero vector for any empty
// string without sending it to the backend.
func (e *LangchainEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	nonEmpty := make([]string, 0, len(texts))
	idx := make([]int, 0, len(texts))
	for i, t := range texts {
		if t != "" {
			nonEmpty = append(nonEmpty, t)
			idx = append(idx, i)
		}
	}

	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, e.dimension)
	}

	if len(nonEmpty) == 0 {
		return out, nil
	}

	raw, err := e.backend.EmbedDocuments(ctx, nonEmpty)
	if err != nil {
		return nil, err
	}

	for i, vec64 := range raw {
		vec32 := make([]float32, len(vec64))
		for j, v := range vec64 {
			vec32[j] = float32(v)
		}
		coerced, err := e.coerce(vec32)
		if err != nil {
			return nil, err
		}
		out[idx[i]] = coerced
	}
	return out, nil
}

// coerce pads a short vector with zeros and truncates or rejects a long one,
// per spec section 4.3's "pads deterministically (or rejects, depending on
// allow_dimension_mismatch)". No ecosystem library does dimension
// coercion — this is new code, justified in DESIGN.md.
func (e *LangchainEmbedder) coerce(v []float32) ([]float32, error) {
	if len(v) == e.dimension {
		return v, nil
	}
	if len(v) < e.dimension {
		padded := make([]float32, e.dimension)
		copy(padded, v)
		return padded, nil
	}
	if !e.allowDimensionMismatch {
		return nil, ErrDimensionMismatch{Got: len(v), Want: e.dimension}
	}
	return v[:e.dimension], nil
}

// Similarity computes cosine similarity, clamped to [-1, 1] per spec
// section 4.3.
func Similarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}
