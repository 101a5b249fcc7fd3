package interfaces

import (
	"context"

	"github.com/mudler/faqrecall/rag/types"
)

// Embedder converts text into a vector with a single backend.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingProvider converts text into a vector with the selected backend.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string, provider types.Provider) ([]float32, error)
}
