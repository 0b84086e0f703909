package retrieval

import (
	"context"
	"sort"

	"github.com/ghostline-hq/ghostline/domain"
	"github.com/ghostline-hq/ghostline/embedder"
)

// InMemoryStore is a VectorStore backed by a process-local slice, grounded
// on the teacher's rag/store/vector.go InMemoryVectorStore. It is the only
// VectorStore implementation in this module; there is no pgvector-backed
// store.
type InMemoryStore struct {
	chunks []domain.SourceChunk
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Add appends chunks, each of which must already carry its Embedding.
func (s *InMemoryStore) Add(chunks ...domain.SourceChunk) {
	s.chunks = append(s.chunks, chunks...)
}

func (s *InMemoryStore) Search(ctx context.Context, projectID string, queryEmbedding []float32, k int) ([]RetrievedChunk, error) {
	var scored []RetrievedChunk
	for _, c := range s.chunks {
		if c.ProjectID != projectID {
			continue
		}
		sim := embedder.Similarity(queryEmbedding, c.Embedding)
		scored = append(scored, RetrievedChunk{
			Chunk:      c,
			Similarity: (sim + 1) / 2, // cosine in [-1,1] mapped to a [0,1] similarity score
			Citation: domain.Citation{
				Filename:         c.Filename,
				SourceMaterialID: c.SourceMaterialID,
			},
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (s *InMemoryStore) AllChunks(ctx context.Context, projectID string) ([]domain.SourceChunk, error) {
	var out []domain.SourceChunk
	for _, c := range s.chunks {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	return out, nil
}
