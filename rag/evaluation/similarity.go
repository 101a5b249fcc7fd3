package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/mudler/faqrecall/rag/interfaces"
	"github.com/mudler/xlog"
)

// Similarity scores two texts with a sentence encoder and cosine similarity.
type Similarity struct {
	encoder interfaces.Embedder
}

// NewSimilarity creates a similarity scorer, usually over a SentenceEncoder.
// Without an encoder every score is 0.
func NewSimilarity(encoder interfaces.Embedder) *Similarity {
	return &Similarity{encoder: encoder}
}

// Calculate returns the cosine similarity of the two texts clamped to [0, 1].
// Any failure yields 0.
func (s *Similarity) Calculate(ctx context.Context, text1, text2 string) float64 {
	if s.encoder == nil {
		xlog.Error("Error calculating semantic similarity", "error", "no sentence encoder configured")
		return 0
	}
	a, err := s.encoder.Embed(ctx, text1)
	if err != nil {
		xlog.Error("Error calculating semantic similarity", "error", err)
		return 0
	}
	b, err := s.encoder.Embed(ctx, text2)
	if err != nil {
		xlog.Error("Error calculating semantic similarity", "error", err)
		return 0
	}

	sim, err := Cosine(a, b)
	if err != nil {
		xlog.Error("Error calculating semantic similarity", "error", err)
		return 0
	}
	return clamp(sim, 0, 1)
}

// Best returns the highest similarity between text and any of the candidates.
func (s *Similarity) Best(ctx context.Context, text string, candidates []string) float64 {
	var best float64
	for _, c := range candidates {
		if sim := s.Calculate(ctx, text, c); sim > best {
			best = sim
		}
	}
	return best
}

// Cosine returns the cosine similarity of two vectors of equal length.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector length mismatch: %d != %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, errors.New("empty vectors")
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, errors.New("zero vector")
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0, errors.New("similarity is not a number")
	}
	return sim, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
