// Package voice implements the VoiceMetrics capability (C6): deterministic
// stylometry feature extraction and a reproducible voice-similarity score
// blending those features with embedding cosine similarity. Formulas are
// ported verbatim (spec section 4.6 is exact and normative) from
// original_source/.../app/services/voice_metrics.py; no ecosystem library
// does stylometry, so this stays on stdlib regexp/unicode, documented in
// DESIGN.md.
package voice

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/ghostline-hq/ghostline/domain"
	"github.com/ghostline-hq/ghostline/embedder"
)

var (
	sentenceSplitPattern = regexp.MustCompile(`[.!?]+[\s\n]+`)
	wordPattern          = regexp.MustCompile(`[A-Za-z0-9_]+`)
	punctuationPattern   = regexp.MustCompile(`[.,;:!?"'\-]`)
)

// ExtractFeatures computes Stylometry for text, grounded on
// voice_metrics.py's extract_features.
func ExtractFeatures(text string) domain.Stylometry {
	if strings.TrimSpace(text) == "" {
		return domain.Stylometry{}
	}

	paragraphs := nonEmptyParagraphs(text)
	if len(paragraphs) == 0 {
		paragraphs = []string{text}
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		sentences = []string{text}
	}

	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	if len(words) == 0 {
		return domain.Stylometry{}
	}

	var f domain.Stylometry

	sentenceLengths := make([]float64, 0, len(sentences))
	for _, s := range sentences {
		n := len(wordPattern.FindAllString(s, -1))
		if n > 0 {
			sentenceLengths = append(sentenceLengths, float64(n))
		}
	}
	if len(sentenceLengths) > 0 {
		f.AvgSentenceLength = mean(sentenceLengths)
		if len(sentenceLengths) > 1 {
			f.SentenceLengthStd = stdev(sentenceLengths)
		}
	}

	wordLengths := make([]float64, len(words))
	for i, w := range words {
		wordLengths[i] = float64(len(w))
	}
	f.AvgWordLength = mean(wordLengths)

	unique := map[string]int{}
	for _, w := range words {
		unique[w]++
	}
	f.VocabularyComplexity = float64(len(unique)) / float64(len(words))

	var hapax int
	for _, count := range unique {
		if count == 1 {
			hapax++
		}
	}
	if len(unique) > 0 {
		f.VocabularyRichness = float64(hapax) / float64(len(unique))
	}

	punctCount := len(punctuationPattern.FindAllString(text, -1))
	f.PunctuationDensity = float64(punctCount) / float64(len(words)) * 100

	f.QuestionRatio = float64(strings.Count(text, "?")) / float64(len(sentences))
	f.ExclamationRatio = float64(strings.Count(text, "!")) / float64(len(sentences))

	commaCount := strings.Count(text, ",")
	semicolonCount := strings.Count(text, ";")
	f.CommaDensity = float64(commaCount) / float64(len(words)) * 100
	f.SemicolonDensity = float64(semicolonCount) / float64(len(words)) * 100

	f.AvgParagraphLength = float64(len(sentences)) / float64(len(paragraphs))

	return f
}

func nonEmptyParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}

func splitSentences(text string) []string {
	raw := sentenceSplitPattern.Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func stdev(vs []float64) float64 {
	m := mean(vs)
	var sumSq float64
	for _, v := range vs {
		d := v - m
		sumSq += d * d
	}
	// sample standard deviation (n-1), matching statistics.stdev.
	return math.Sqrt(sumSq / float64(len(vs)-1))
}

// toVector normalizes a Stylometry to the fixed 11-feature comparison
// vector, each feature divided by its soft cap per voice_metrics.py's
// StylometryFeatures.to_vector.
func toVector(f domain.Stylometry) [11]float64 {
	return [11]float64{
		f.AvgSentenceLength / 30.0,
		f.SentenceLengthStd / 15.0,
		f.AvgWordLength / 10.0,
		f.VocabularyComplexity,
		f.VocabularyRichness,
		f.PunctuationDensity / 20.0,
		f.QuestionRatio,
		f.ExclamationRatio,
		f.CommaDensity / 10.0,
		f.SemicolonDensity / 2.0,
		min1(f.AvgParagraphLength / 10.0),
	}
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

var featureWeights = [11]float64{2, 1, 1.5, 2, 1.5, 1, 1, 1, 0.5, 0.5, 0.5}

var featureNames = [11]string{
	"sentence_length", "sentence_variation", "word_length",
	"vocabulary_complexity", "vocabulary_richness",
	"punctuation_density", "question_ratio", "exclamation_ratio",
	"comma_density", "semicolon_density", "paragraph_length",
}

// StylometrySimilarity computes the weighted-mean-abs-difference similarity
// between two feature sets, plus a per-feature difference breakdown used
// for diagnosis.
func StylometrySimilarity(a, b domain.Stylometry) (float64, map[string]float64) {
	va, vb := toVector(a), toVector(b)

	diffs := make(map[string]float64, 11)
	var weightedSum, weightTotal float64
	for i := 0; i < 11; i++ {
		d := abs(va[i] - vb[i])
		diffs[featureNames[i]] = d
		weightedSum += d * featureWeights[i]
		weightTotal += featureWeights[i]
	}

	weightedMean := weightedSum / weightTotal
	similarity := 1.0 - weightedMean
	if similarity < 0 {
		similarity = 0
	}
	return similarity, diffs
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// SimilarityResult is the VoiceMetrics capability's compute_similarity
// output.
type SimilarityResult struct {
	OverallScore         float64            `json:"overall_score"`
	EmbeddingSimilarity  float64            `json:"embedding_similarity"`
	StylometrySimilarity float64            `json:"stylometry_similarity"`
	EmbeddingWeight      float64            `json:"embedding_weight"`
	FeatureDifferences   map[string]float64 `json:"feature_differences"`
	PassesThreshold      bool               `json:"passes_threshold"`
	Threshold            float64            `json:"threshold"`
}

// Metrics is the VoiceMetrics capability.
type Metrics struct {
	embedder embedder.Embedder
}

// New constructs a Metrics using emb for the embedding-similarity leg.
func New(emb embedder.Embedder) *Metrics {
	return &Metrics{embedder: emb}
}

// ComputeSimilarity compares two texts directly, per spec section 4.6.
func (m *Metrics) ComputeSimilarity(ctx context.Context, text1, text2 string, embeddingWeight, threshold float64) (SimilarityResult, error) {
	f1 := ExtractFeatures(text1)
	f2 := ExtractFeatures(text2)
	return m.combine(ctx, text1, text2, f1, f2, embeddingWeight, threshold)
}

// ComputeSimilarityToProfile compares content against a pre-computed
// VoiceProfile, avoiding recomputing the profile side's features/embedding.
func (m *Metrics) ComputeSimilarityToProfile(ctx context.Context, profile domain.VoiceProfile, content string, threshold float64) (SimilarityResult, error) {
	contentFeatures := ExtractFeatures(content)
	stylometrySim, diffs := StylometrySimilarity(profile.Stylometry, contentFeatures)

	contentEmb, err := m.embedder.Embed(ctx, content)
	if err != nil {
		return SimilarityResult{}, err
	}
	embeddingSim := embedder.Similarity(profile.Embedding, contentEmb)

	weight := embeddingWeightOrDefault(profile.EmbeddingWeight)
	overall := weight*embeddingSim + (1-weight)*stylometrySim

	return SimilarityResult{
		OverallScore:         overall,
		EmbeddingSimilarity:  embeddingSim,
		StylometrySimilarity: stylometrySim,
		EmbeddingWeight:      weight,
		FeatureDifferences:   diffs,
		PassesThreshold:      overall >= threshold,
		Threshold:            threshold,
	}, nil
}

func (m *Metrics) combine(ctx context.Context, text1, text2 string, f1, f2 domain.Stylometry, embeddingWeight, threshold float64) (SimilarityResult, error) {
	stylometrySim, diffs := StylometrySimilarity(f1, f2)

	emb1, err := m.embedder.Embed(ctx, text1)
	if err != nil {
		return SimilarityResult{}, err
	}
	emb2, err := m.embedder.Embed(ctx, text2)
	if err != nil {
		return SimilarityResult{}, err
	}
	embeddingSim := embedder.Similarity(emb1, emb2)

	weight := embeddingWeightOrDefault(embeddingWeight)
	overall := weight*embeddingSim + (1-weight)*stylometrySim

	return SimilarityResult{
		OverallScore:         overall,
		EmbeddingSimilarity:  embeddingSim,
		StylometrySimilarity: stylometrySim,
		EmbeddingWeight:      weight,
		FeatureDifferences:   diffs,
		PassesThreshold:      overall >= threshold,
		Threshold:            threshold,
	}, nil
}

func embeddingWeightOrDefault(w float64) float64 {
	if w <= 0 {
		return 0.4
	}
	return w
}
