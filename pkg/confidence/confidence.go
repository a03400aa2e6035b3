// Package confidence scores agreement between agent outputs. Higher scores
// mean independent agents converged on the same answer; low scores drive
// reruns and, ultimately, guardrail refusals.
package confidence

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/codehive/swarmd/pkg/models"
)

// tokenSet lowercases text and splits on whitespace into a set.
func tokenSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// jaccard is |a ∩ b| / |a ∪ b|. Two empty sets are identical, so they
// score 1; similarity is 1 exactly when the sets match.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// TokenOverlap is the mean pairwise Jaccard similarity over texts, scaled to
// 0..100 and rounded. Fewer than two texts cannot disagree: a single
// non-empty text scores 100, anything else 0.
func TokenOverlap(texts []string) int {
	if len(texts) == 0 {
		return 0
	}
	if len(texts) == 1 {
		if strings.TrimSpace(texts[0]) != "" {
			return 100
		}
		return 0
	}

	sets := make([]map[string]struct{}, len(texts))
	for i, t := range texts {
		sets[i] = tokenSet(t)
	}

	var sum float64
	pairs := 0
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			sum += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	return int(math.Round(100 * sum / float64(pairs)))
}

// Embedder produces document embeddings. langchaingo's embeddings.Embedder
// satisfies it directly.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Score is a confidence value paired with how it was computed.
type Score struct {
	Value  int                     `json:"value"`
	Method models.ConfidenceMethod `json:"method"`
}

// Scorer computes agreement scores, blending in semantic similarity when an
// embedder is configured. A nil Scorer or nil embedder degrades to pure
// token overlap.
type Scorer struct {
	embedder Embedder
}

// NewScorer creates a Scorer. embedder may be nil.
func NewScorer(embedder Embedder) *Scorer {
	return &Scorer{embedder: embedder}
}

// Hybrid combines token overlap with embedding cosine similarity as
// 0.3*jaccard + 0.7*semantic. Embedding failures are logged and degrade the
// score to plain token overlap rather than failing the stage.
func (s *Scorer) Hybrid(ctx context.Context, texts []string) Score {
	overlap := TokenOverlap(texts)
	if s == nil || s.embedder == nil || len(texts) < 2 {
		return Score{Value: overlap, Method: models.MethodJaccard}
	}

	semantic, ok := s.semanticScore(ctx, texts)
	if !ok {
		return Score{Value: overlap, Method: models.MethodJaccard}
	}

	final := int(math.Round(0.3*float64(overlap) + 0.7*semantic))
	return Score{Value: final, Method: models.MethodHybrid}
}

// Semantic scores agreement purely from embeddings. Used when callers want
// the semantic signal in isolation; Hybrid is the usual entry point.
func (s *Scorer) Semantic(ctx context.Context, texts []string) Score {
	if s == nil || s.embedder == nil || len(texts) < 2 {
		return Score{Value: TokenOverlap(texts), Method: models.MethodJaccard}
	}
	semantic, ok := s.semanticScore(ctx, texts)
	if !ok {
		return Score{Value: TokenOverlap(texts), Method: models.MethodJaccard}
	}
	return Score{Value: int(math.Round(semantic)), Method: models.MethodSemantic}
}

func (s *Scorer) semanticScore(ctx context.Context, texts []string) (float64, bool) {
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil || len(vectors) != len(texts) {
		slog.Warn("Embedding failed, falling back to token overlap", "error", err)
		return 0, false
	}

	var sum float64
	pairs := 0
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			sum += cosine(vectors[i], vectors[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0, false
	}

	// Cosine of text embeddings lives in [0,1] in practice; clamp the
	// pathological negative case so the scale contract (0..100) holds.
	mean := sum / float64(pairs)
	if mean < 0 {
		mean = 0
	}
	return mean * 100, true
}

// cosine similarity of two vectors. Zero when either has zero magnitude or
// the dimensions disagree.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
