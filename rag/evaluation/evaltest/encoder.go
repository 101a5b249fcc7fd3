// Package evaltest provides deterministic encoders for tests that need sentence
// vectors without loading a model.
package evaltest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Dimensions matches the vector size of the default sentence encoder.
const Dimensions = 384

// HashingEncoder hashes word unigrams and character trigrams into a fixed-size
// signed vector, then L2-normalises it. Texts sharing words score high, paraphrases
// without shared words do not.
type HashingEncoder struct {
	dims int
}

// NewHashingEncoder returns an encoder producing vectors of the given size.
func NewHashingEncoder(dims int) *HashingEncoder {
	if dims <= 0 {
		dims = Dimensions
	}
	return &HashingEncoder{dims: dims}
}

// Embed encodes text. Text without any letter or digit cannot be encoded.
func (e *HashingEncoder) Embed(_ context.Context, text string) ([]float32, error) {
	words := tokenize(text)
	if len(words) == 0 {
		return nil, errors.New("cannot encode empty text")
	}

	vec := make([]float64, e.dims)
	for _, w := range words {
		e.add(vec, "w:"+w, 1)
		padded := []rune("^" + w + "$")
		for i := 0; i+3 <= len(padded); i++ {
			e.add(vec, "c:"+string(padded[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, errors.New("cannot encode empty text")
	}

	out := make([]float32, e.dims)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (e *HashingEncoder) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()

	if sum>>63 == 1 {
		weight = -weight
	}
	vec[sum%uint64(e.dims)] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
