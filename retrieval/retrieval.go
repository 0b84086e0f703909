// Package retrieval implements the Retriever / RAG capability (C4):
// retrieve(query, project_id, top_k, similarity_threshold) with a
// coverage-aware rerank, plus context assembly for chapter drafting.
//
// Grounded on the teacher's rag/store/vector.go (InMemoryVectorStore shape)
// and rag/store/mock.go's SimpleReranker (keyword-overlap scoring) /
// rag/retriever/vector.go's applyDiversitySearch (group-by-source
// diversity), recomposed to the exact scoring formula this spec defines.
package retrieval

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/ghostline-hq/ghostline/domain"
	"github.com/ghostline-hq/ghostline/embedder"
	"github.com/ghostline-hq/ghostline/logging"
)

// RetrievedChunk is one ranked result: a SourceChunk, its similarity, and
// the Citation it was retrieved under.
type RetrievedChunk struct {
	Chunk      domain.SourceChunk `json:"chunk"`
	Similarity float64            `json:"similarity"`
	Citation   domain.Citation    `json:"citation"`
}

// RAGResult is the Retriever capability's output.
type RAGResult struct {
	Chunks []RetrievedChunk `json:"chunks"`
}

// VectorStore is the storage capability Retriever searches over.
// InMemoryStore (memstore.go) satisfies it; no pgvector-backed
// implementation exists in this module.
type VectorStore interface {
	// Search returns the top k chunks for a project by cosine distance
	// to queryEmbedding, each with its similarity score in [0,1].
	Search(ctx context.Context, projectID string, queryEmbedding []float32, k int) ([]RetrievedChunk, error)
	// AllChunks returns every chunk for a project, for the keyword-overlap
	// fallback path when vector search is unavailable.
	AllChunks(ctx context.Context, projectID string) ([]domain.SourceChunk, error)
}

// Retriever is the Retriever capability.
type Retriever struct {
	store    VectorStore
	embedder embedder.Embedder
	rerank   bool
	log      logging.Logger
}

// New constructs a Retriever. rerank toggles the coverage-aware rerank
// stage (spec section 4.4 step 3); the caller decides its value.
func New(store VectorStore, emb embedder.Embedder, rerank bool, log logging.Logger) *Retriever {
	if log == nil {
		log = logging.NoOp{}
	}
	return &Retriever{store: store, embedder: emb, rerank: rerank, log: log.With("retrieval")}
}

// Retrieve runs the full algorithm from spec section 4.4: embed the query,
// fetch K candidates above similarityThreshold, coverage-aware rerank down
// to topK, with a keyword-overlap fallback on storage failure.
func (r *Retriever) Retrieve(ctx context.Context, query, projectID string, topK int, similarityThreshold float64, candidateK int) (RAGResult, error) {
	if candidateK < topK {
		candidateK = topK * 3
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return r.keywordFallback(ctx, query, projectID, topK)
	}

	candidates, err := r.store.Search(ctx, projectID, queryVec, candidateK)
	if err != nil {
		r.log.Warn("vector search unavailable, falling back to keyword overlap: %v", err)
		return r.keywordFallback(ctx, query, projectID, topK)
	}

	filtered := candidates[:0:0]
	for _, c := range candidates {
		if c.Similarity >= similarityThreshold {
			filtered = append(filtered, c)
		}
	}

	if !r.rerank || len(filtered) <= topK {
		if len(filtered) > topK {
			filtered = filtered[:topK]
		}
		return RAGResult{Chunks: filtered}, nil
	}

	return RAGResult{Chunks: coverageRerank(query, filtered, topK)}, nil
}

var queryTokenPattern = regexp.MustCompile(`[a-zA-Z0-9]{3,}`)

func tokenize(s string) []string {
	matches := queryTokenPattern.FindAllString(strings.ToLower(s), -1)
	return matches
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// coverageRerank implements spec section 4.4 step 3 exactly: base score
// 0.75*similarity + 0.20*query_token_overlap + 0.05*dominance_penalty, then
// greedy pick with a per-filename repeat_penalty.
func coverageRerank(query string, candidates []RetrievedChunk, topK int) []RetrievedChunk {
	queryTokens := tokenSet(tokenize(query))
	if len(queryTokens) == 0 {
		queryTokens = map[string]struct{}{"__none__": {}}
	}

	filenameCounts := map[string]int{}
	for _, c := range candidates {
		filenameCounts[c.Chunk.Filename]++
	}

	type scored struct {
		chunk RetrievedChunk
		base  float64
	}
	scoredCandidates := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		overlap := queryTokenOverlap(queryTokens, c.Chunk.Content)
		dominance := 1.0 / (1.0 + maxFloat(float64(filenameCounts[c.Chunk.Filename]-1), 0)/3.0)
		base := 0.75*c.Similarity + 0.20*overlap + 0.05*dominance
		scoredCandidates = append(scoredCandidates, scored{chunk: c, base: base})
	}

	picked := make([]RetrievedChunk, 0, topK)
	pickedCount := map[string]int{}
	remaining := append([]scored(nil), scoredCandidates...)

	for len(picked) < topK && len(remaining) > 0 {
		bestIdx := -1
		bestScore := -1.0
		for i, s := range remaining {
			repeatPenalty := 1.0 / (1.0 + float64(pickedCount[s.chunk.Chunk.Filename]))
			effective := s.base * repeatPenalty
			if effective > bestScore {
				bestScore = effective
				bestIdx = i
			}
		}
		picked = append(picked, remaining[bestIdx].chunk)
		pickedCount[remaining[bestIdx].chunk.Chunk.Filename]++
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return picked
}

func queryTokenOverlap(queryTokens map[string]struct{}, content string) float64 {
	contentTokens := tokenSet(tokenize(content))
	var hits int
	for t := range queryTokens {
		if _, ok := contentTokens[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// keywordFallback implements spec section 4.4 step 4: on retrieval failure,
// fall back to keyword-overlap scoring over all project chunks. Grounded on
// the teacher's SimpleReranker keyword-matching idiom.
func (r *Retriever) keywordFallback(ctx context.Context, query, projectID string, topK int) (RAGResult, error) {
	chunks, err := r.store.AllChunks(ctx, projectID)
	if err != nil {
		return RAGResult{}, err
	}

	queryTokens := tokenSet(tokenize(query))
	scored := make([]RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		overlap := queryTokenOverlap(queryTokens, c.Content)
		scored = append(scored, RetrievedChunk{
			Chunk:      c,
			Similarity: overlap,
			Citation: domain.Citation{
				Filename:         c.Filename,
				SourceMaterialID: c.SourceMaterialID,
			},
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return RAGResult{Chunks: scored}, nil
}

const avgCharsPerToken = 4

// BuildContext greedily concatenates chunks delimited by
// "---\n<citation>\n<content>\n---", stopping before the estimated token
// count (~4 chars/token) would exceed maxTokens, per spec section 4.4.
func (res RAGResult) BuildContext(maxTokens int, includeCitations bool) string {
	var b strings.Builder
	usedChars := 0
	budget := maxTokens * avgCharsPerToken

	for _, rc := range res.Chunks {
		var block strings.Builder
		block.WriteString("---\n")
		if includeCitations {
			block.WriteString(rc.Chunk.Filename)
			block.WriteString("\n")
		}
		block.WriteString(rc.Chunk.Content)
		block.WriteString("\n---\n")

		if usedChars+block.Len() > budget && usedChars > 0 {
			break
		}
		b.WriteString(block.String())
		usedChars += block.Len()
	}
	return b.String()
}
